package dialog

import (
	"fmt"
	"math"

	"github.com/hupe1980/dialogmesh/core"
)

// FrameStatus is the lifecycle state of one stack frame.
type FrameStatus string

const (
	StatusActive  FrameStatus = "active"
	StatusWaiting FrameStatus = "waitingForInput"
	StatusEnding  FrameStatus = "ending"
)

// Plan is the persisted cursor of one running trigger.
type Plan struct {
	Trigger string
	// Step is the index of the next action to run.
	Step int
	// Waiting is set while the action at Step waits for user input.
	Waiting bool
	// ResultProperty receives the result of a child dialog begun by the
	// action before Step.
	ResultProperty string
}

// Instance is one frame of the dialog stack.
type Instance struct {
	ID         string
	InstanceID string
	// State backs the dialog scope while this frame is focused.
	State *core.Map
	// This backs the this scope for the running action.
	This    *core.Map
	Options core.Value
	Reason  Reason
	Status  FrameStatus
	Plans   []Plan
}

func newInstance(id string, options core.Value) *Instance {
	return &Instance{
		ID:         id,
		InstanceID: core.NewID(),
		State:      core.NewMap(),
		This:       core.NewMap(),
		Options:    options,
		Reason:     ReasonBegin,
		Status:     StatusActive,
	}
}

func (inst *Instance) topPlan() *Plan {
	if len(inst.Plans) == 0 {
		return nil
	}
	return &inst.Plans[len(inst.Plans)-1]
}

func (inst *Instance) popPlan() {
	if len(inst.Plans) > 0 {
		inst.Plans = inst.Plans[:len(inst.Plans)-1]
	}
}

func (inst *Instance) toValue() core.Value {
	m := core.NewMap()
	m.Set("id", core.StringValue(inst.ID))
	m.Set("instanceId", core.StringValue(inst.InstanceID))
	m.Set("state", core.MapValue(inst.State))
	m.Set("this", core.MapValue(inst.This))
	m.Set("options", inst.Options)
	m.Set("reason", core.StringValue(string(inst.Reason)))
	m.Set("status", core.StringValue(string(inst.Status)))

	plans := core.NewList()
	for _, p := range inst.Plans {
		pm := core.NewMap()
		pm.Set("trigger", core.StringValue(p.Trigger))
		pm.Set("step", core.NumberValue(float64(p.Step)))
		pm.Set("waiting", core.BoolValue(p.Waiting))
		if p.ResultProperty != "" {
			pm.Set("resultProperty", core.StringValue(p.ResultProperty))
		}
		plans.Append(core.MapValue(pm))
	}
	m.Set("plans", core.ListValue(plans))
	return core.MapValue(m)
}

func instanceFromValue(v core.Value) (*Instance, error) {
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("frame is %s, want map", v.Kind())
	}
	str := func(k string) string {
		s, _ := m.Get(k)
		out, _ := s.AsString()
		return out
	}
	bag := func(k string) *core.Map {
		b, _ := m.Get(k)
		out, ok := b.AsMap()
		if !ok {
			return core.NewMap()
		}
		return out
	}

	inst := &Instance{
		ID:         str("id"),
		InstanceID: str("instanceId"),
		State:      bag("state"),
		This:       bag("this"),
		Reason:     Reason(str("reason")),
		Status:     FrameStatus(str("status")),
	}
	if inst.ID == "" {
		return nil, fmt.Errorf("frame without dialog id")
	}
	inst.Options, _ = m.Get("options")
	if inst.Status == "" {
		inst.Status = StatusActive
	}

	pv, _ := m.Get("plans")
	if plans, ok := pv.AsList(); ok {
		for i, item := range plans.Items() {
			pm, ok := item.AsMap()
			if !ok {
				continue
			}
			var p Plan
			if t, ok := pm.Get("trigger"); ok {
				p.Trigger, _ = t.AsString()
			}
			if s, ok := pm.Get("step"); ok {
				n, ok := s.AsNumber()
				if !ok || n < 0 || n != math.Trunc(n) {
					return nil, fmt.Errorf("plan %d: invalid step %s", i, s)
				}
				p.Step = int(n)
			}
			if w, ok := pm.Get("waiting"); ok {
				p.Waiting, _ = w.AsBool()
			}
			if r, ok := pm.Get("resultProperty"); ok {
				p.ResultProperty, _ = r.AsString()
			}
			inst.Plans = append(inst.Plans, p)
		}
	}
	return inst, nil
}

// EncodeStack converts a stack (bottom first) into its persisted form.
func EncodeStack(stack []*Instance) core.Value {
	l := core.NewList()
	for _, inst := range stack {
		l.Append(inst.toValue())
	}
	return core.ListValue(l)
}

// DecodeStack restores a stack written by EncodeStack. Null decodes to an
// empty stack.
func DecodeStack(v core.Value) ([]*Instance, error) {
	if v.IsNull() {
		return nil, nil
	}
	l, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("decode dialog stack: got %s, want list", v.Kind())
	}
	out := make([]*Instance, 0, l.Len())
	for i, item := range l.Items() {
		inst, err := instanceFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("decode dialog stack frame %d: %w", i, err)
		}
		out = append(out, inst)
	}
	return out, nil
}
