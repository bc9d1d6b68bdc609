package dialog

import (
	"context"
	"sort"

	"github.com/hupe1980/dialogmesh/core"
)

// Dialog bag keys used by TriggerDialog.
const (
	StateOptions = "options"
	StateResult  = "result"
)

// TriggerDialogOptions configure a TriggerDialog.
type TriggerDialogOptions struct {
	// Recognizer overrides the engine default for this dialog.
	Recognizer core.Recognizer
	// AutoEndDialog ends the dialog when a plan finishes (or Begin finds
	// nothing to do), using dialog.result as the result. Default true.
	AutoEndDialog bool
	// Properties are exposed read-only through the class scope.
	Properties map[string]any
}

// TriggerDialog runs declarative triggers. Each fired trigger becomes a
// plan whose actions execute in order; plans survive across turns in the
// frame, so a prompt can wait for the next activity and a child dialog can
// hand its result back mid-plan.
type TriggerDialog struct {
	Base
	triggers []*Trigger
	byID     map[string]*Trigger
	opts     TriggerDialogOptions
	class    *core.Map
}

// NewTriggerDialog creates a dialog from triggers. Triggers without an id
// get one derived from their event and position.
func NewTriggerDialog(id string, triggers []*Trigger, optFns ...func(o *TriggerDialogOptions)) *TriggerDialog {
	opts := TriggerDialogOptions{AutoEndDialog: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	d := &TriggerDialog{
		Base:  NewBase(id),
		byID:  make(map[string]*Trigger, len(triggers)),
		opts:  opts,
		class: core.MapFrom(opts.Properties),
	}
	d.class.Set("id", core.StringValue(id))
	for i, t := range triggers {
		if t.ID == "" {
			t.ID = t.defaultID(i)
		}
		d.triggers = append(d.triggers, t)
		d.byID[t.ID] = t
	}
	return d
}

// Triggers returns the dialog's triggers in declaration order.
func (d *TriggerDialog) Triggers() []*Trigger {
	out := make([]*Trigger, len(d.triggers))
	copy(out, d.triggers)
	return out
}

// ClassMemory implements ClassProvider.
func (d *TriggerDialog) ClassMemory() *core.Map { return d.class }

// Begin implements Dialog.
func (d *TriggerDialog) Begin(ctx context.Context, dc *Context, options core.Value) (core.TurnResult, error) {
	inst := dc.ActiveDialog()
	if !options.IsNull() {
		inst.State.Set(StateOptions, options.Clone())
	}

	handled, res, err := d.fire(ctx, dc, inst, EventBeginDialog, "", "")
	if err != nil || handled {
		return res, err
	}
	if !dc.ActivityProcessed() {
		handled, res, err = d.handleActivity(ctx, dc, inst)
		if err != nil || handled {
			return res, err
		}
	}
	return d.finish(ctx, dc, inst)
}

// Continue implements Dialog.
func (d *TriggerDialog) Continue(ctx context.Context, dc *Context) (core.TurnResult, error) {
	inst := dc.ActiveDialog()
	if p := inst.topPlan(); p != nil && p.Waiting {
		return d.continueWaiting(ctx, dc, inst)
	}

	handled, res, err := dc.EmitEvent(ctx, EventActivityReceived, dc.Activity().ToValue(), true)
	if err != nil || handled {
		return res, err
	}
	return core.TurnResult{Status: core.TurnStatusWaiting}, nil
}

// Resume implements Dialog. The child's result is stored where the
// BeginDialog action asked for it and the interrupted plan steps on to its
// next action with reason NextCalled.
func (d *TriggerDialog) Resume(ctx context.Context, dc *Context, _ Reason, result core.Value) (core.TurnResult, error) {
	inst := dc.ActiveDialog()
	if p := inst.topPlan(); p != nil && p.ResultProperty != "" {
		prop := p.ResultProperty
		p.ResultProperty = ""
		if err := dc.Memory().SetValue(prop, result); err != nil {
			return core.TurnResult{}, core.NewFrameError(d.ID(), "resume", err)
		}
	}
	inst.Reason = ReasonNextCalled
	return d.runPlan(ctx, dc, inst)
}

// Reprompt implements Dialog.
func (d *TriggerDialog) Reprompt(ctx context.Context, dc *Context, inst *Instance) error {
	if in := d.waitingInput(inst); in != nil {
		return in.Reprompt(ctx, dc)
	}
	return nil
}

// OnEvent implements Dialog.
func (d *TriggerDialog) OnEvent(ctx context.Context, dc *Context, inst *Instance, ev *Event) (bool, core.TurnResult, error) {
	if ev.Name == EventActivityReceived {
		return d.handleActivity(ctx, dc, inst)
	}
	return d.fire(ctx, dc, inst, ev.Name, "", "")
}

// handleActivity runs activity triggers, then recognizes a message and
// dispatches recognizedIntent, chooseIntent and unknownIntent.
func (d *TriggerDialog) handleActivity(ctx context.Context, dc *Context, inst *Instance) (bool, core.TurnResult, error) {
	a := dc.Activity()
	if handled, res, err := d.fire(ctx, dc, inst, EventActivityReceived, "", a.Type); err != nil || handled {
		return handled, res, err
	}
	if !a.IsMessage() {
		return false, core.TurnResult{}, nil
	}

	recognized, err := dc.Recognize(ctx, d.opts.Recognizer, d.ID())
	if err != nil {
		return false, core.TurnResult{}, core.NewFrameError(d.ID(), "recognize", err)
	}
	dc.MarkActivityProcessed()

	intent, _ := recognized.TopIntent()
	if intent == core.ChooseIntent {
		if handled, res, err := d.fire(ctx, dc, inst, EventChooseIntent, "", ""); err != nil || handled {
			return handled, res, err
		}
		// Without a chooser the strongest candidate wins.
		intent = ""
		if len(recognized.Candidates) > 0 {
			intent = recognized.Candidates[0].Intent
		}
	}
	if intent != "" && intent != core.NoneIntent {
		if handled, res, err := d.fire(ctx, dc, inst, EventRecognizedIntent, intent, ""); err != nil || handled {
			return handled, res, err
		}
	}
	return d.fire(ctx, dc, inst, EventUnknownIntent, "", "")
}

// continueWaiting feeds the activity to the action the top plan waits on.
func (d *TriggerDialog) continueWaiting(ctx context.Context, dc *Context, inst *Instance) (core.TurnResult, error) {
	if dc.Activity().IsMessage() {
		recognized, err := dc.Recognize(ctx, d.opts.Recognizer, d.ID())
		if err != nil {
			return core.TurnResult{}, core.NewFrameError(d.ID(), "recognize", err)
		}
		dc.MarkActivityProcessed()

		if in := d.waitingInput(inst); in != nil && in.AllowsInterruptions() {
			intent, _ := recognized.TopIntent()
			if intent != "" && intent != core.NoneIntent && intent != core.ChooseIntent {
				handled, res, err := d.fire(ctx, dc, inst, EventRecognizedIntent, intent, "")
				if err != nil || handled {
					return res, err
				}
			}
		}
	}

	in := d.waitingInput(inst)
	p := inst.topPlan()
	p.Waiting = false
	inst.Status = StatusActive

	if in == nil {
		// A plain action asked to wait for the next turn; move past it.
		p.Step++
		return d.runPlan(ctx, dc, inst)
	}

	if err := dc.Limiter().Increment(); err != nil {
		return core.TurnResult{}, core.NewFrameError(d.ID(), in.Kind(), err)
	}
	r, err := in.ContinueInput(ctx, dc)
	if err != nil {
		return core.TurnResult{}, core.NewFrameError(d.ID(), in.Kind(), err)
	}
	switch r.Status {
	case ResultWait:
		inst.topPlan().Waiting = true
		inst.Status = StatusWaiting
		return r.Turn, nil
	case ResultStop:
		return r.Turn, nil
	}
	inst.topPlan().Step++
	return d.runPlan(ctx, dc, inst)
}

// fire selects the best trigger for an event and runs it as a new plan on
// inst. Frames above inst are cancelled first.
func (d *TriggerDialog) fire(ctx context.Context, dc *Context, inst *Instance, event, intent, activityType string) (bool, core.TurnResult, error) {
	t, err := d.selectTrigger(dc, event, intent, activityType)
	if err != nil {
		return false, core.TurnResult{}, core.NewFrameError(d.ID(), "condition", err)
	}
	if t == nil {
		return false, core.TurnResult{}, nil
	}
	if err := dc.InterruptAbove(ctx, inst); err != nil {
		return false, core.TurnResult{}, core.NewFrameError(d.ID(), "interrupt", err)
	}

	dc.Logger().Debug("trigger.fired", "dialog_id", d.ID(), "trigger", t.ID, "event", event)
	inst.Plans = append(inst.Plans, Plan{Trigger: t.ID})
	res, err := d.runPlan(ctx, dc, inst)
	return true, res, err
}

// selectTrigger returns the highest priority trigger for the event whose
// condition holds; ties keep declaration order.
func (d *TriggerDialog) selectTrigger(dc *Context, event, intent, activityType string) (*Trigger, error) {
	var candidates []*Trigger
	for _, t := range d.triggers {
		if t.Event != event {
			continue
		}
		if event == EventRecognizedIntent && t.Intent != intent {
			continue
		}
		if event == EventActivityReceived && t.ActivityType != "" && t.ActivityType != activityType {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	for _, t := range candidates {
		ok, err := t.accepts(dc.Memory())
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, nil
}

// runPlan executes actions of the top plan until one waits or moves the
// stack, then falls through to the plans below.
func (d *TriggerDialog) runPlan(ctx context.Context, dc *Context, inst *Instance) (core.TurnResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.TurnResult{}, err
		}

		p := inst.topPlan()
		if p == nil {
			return d.finish(ctx, dc, inst)
		}
		if p.Waiting {
			// An interruption finished; ask again.
			if in := d.waitingInput(inst); in != nil {
				if err := in.Reprompt(ctx, dc); err != nil {
					return core.TurnResult{}, core.NewFrameError(d.ID(), in.Kind(), err)
				}
			}
			inst.Status = StatusWaiting
			return core.TurnResult{Status: core.TurnStatusWaiting}, nil
		}

		t := d.byID[p.Trigger]
		if t == nil || p.Step < 0 || p.Step >= len(t.Actions) {
			inst.popPlan()
			continue
		}

		act := t.Actions[p.Step]
		step := p.Step
		p.Step++

		if err := dc.Limiter().Increment(); err != nil {
			return core.TurnResult{}, core.NewFrameError(d.ID(), act.Kind(), err)
		}
		inst.Status = StatusActive
		r, err := act.Execute(ctx, dc)
		if err != nil {
			return core.TurnResult{}, core.NewFrameError(d.ID(), act.Kind(), err)
		}

		switch r.Status {
		case ResultWait:
			if top := inst.topPlan(); top != nil {
				top.Step = step
				top.Waiting = true
			}
			inst.Status = StatusWaiting
			return r.Turn, nil
		case ResultStop:
			return r.Turn, nil
		}
	}
}

// finish is reached when no plan is left.
func (d *TriggerDialog) finish(ctx context.Context, dc *Context, inst *Instance) (core.TurnResult, error) {
	inst.Status = StatusActive
	if d.opts.AutoEndDialog && dc.ActiveDialog() == inst {
		result, _ := inst.State.Get(StateResult)
		return dc.EndDialog(ctx, result)
	}
	return core.TurnResult{Status: core.TurnStatusWaiting}, nil
}

// waitingInput returns the input action the top plan is waiting on.
func (d *TriggerDialog) waitingInput(inst *Instance) InputAction {
	p := inst.topPlan()
	if p == nil || !p.Waiting {
		return nil
	}
	t := d.byID[p.Trigger]
	if t == nil || p.Step < 0 || p.Step >= len(t.Actions) {
		return nil
	}
	in, _ := t.Actions[p.Step].(InputAction)
	return in
}

var (
	_ Dialog        = (*TriggerDialog)(nil)
	_ ClassProvider = (*TriggerDialog)(nil)
)
