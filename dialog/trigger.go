package dialog

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/memory"
)

// Event names raised by the stack and by TriggerDialog.
const (
	EventBeginDialog      = "beginDialog"
	EventActivityReceived = "activityReceived"
	EventRecognizedIntent = "recognizedIntent"
	EventUnknownIntent    = "unknownIntent"
	EventChooseIntent     = "chooseIntent"
)

// Trigger binds an event (optionally narrowed to an intent or activity
// type) to the actions run when it fires.
type Trigger struct {
	ID           string
	Event        string
	Intent       string
	ActivityType string
	// Priority orders candidate triggers; higher runs first.
	Priority  int
	Condition Condition
	Actions   []Action
}

// OnBeginDialog fires when the dialog starts.
func OnBeginDialog(actions ...Action) *Trigger {
	return &Trigger{Event: EventBeginDialog, Actions: actions}
}

// OnIntent fires for a recognized intent.
func OnIntent(intent string, actions ...Action) *Trigger {
	return &Trigger{Event: EventRecognizedIntent, Intent: intent, Actions: actions}
}

// OnUnknownIntent fires when no intent trigger matched.
func OnUnknownIntent(actions ...Action) *Trigger {
	return &Trigger{Event: EventUnknownIntent, Actions: actions}
}

// OnChooseIntent fires when the recognizer reports an ambiguous utterance.
func OnChooseIntent(actions ...Action) *Trigger {
	return &Trigger{Event: EventChooseIntent, Actions: actions}
}

// OnEvent fires for a custom event name.
func OnEvent(name string, actions ...Action) *Trigger {
	return &Trigger{Event: name, Actions: actions}
}

// OnActivity fires for inbound activities of the given type before any
// recognition happens.
func OnActivity(activityType string, actions ...Action) *Trigger {
	return &Trigger{Event: EventActivityReceived, ActivityType: activityType, Actions: actions}
}

// OnMessage is OnActivity for message activities.
func OnMessage(actions ...Action) *Trigger {
	return OnActivity(core.ActivityTypeMessage, actions...)
}

// WithCondition sets the guard condition.
func (t *Trigger) WithCondition(c Condition) *Trigger {
	t.Condition = c
	return t
}

// WithPriority sets the priority.
func (t *Trigger) WithPriority(p int) *Trigger {
	t.Priority = p
	return t
}

// WithID sets a stable id. Persisted plans refer to triggers by id, so set
// one when a dialog's trigger list may change between deployments.
func (t *Trigger) WithID(id string) *Trigger {
	t.ID = id
	return t
}

func (t *Trigger) defaultID(index int) string {
	switch {
	case t.Intent != "":
		return fmt.Sprintf("%s:%s:%d", t.Event, t.Intent, index)
	case t.ActivityType != "":
		return fmt.Sprintf("%s:%s:%d", t.Event, t.ActivityType, index)
	default:
		return fmt.Sprintf("%s:%d", t.Event, index)
	}
}

func (t *Trigger) accepts(mem *memory.Registry) (bool, error) {
	if t.Condition == nil {
		return true, nil
	}
	return t.Condition.Evaluate(mem)
}

// Condition guards a trigger. Missing memory values are falsy.
type Condition interface {
	Evaluate(mem *memory.Registry) (bool, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(mem *memory.Registry) (bool, error)

// Evaluate implements Condition.
func (f ConditionFunc) Evaluate(mem *memory.Registry) (bool, error) { return f(mem) }

// Always is a condition that is always true.
func Always() Condition {
	return ConditionFunc(func(*memory.Registry) (bool, error) { return true, nil })
}

// IsTrue is true when the value at path is truthy.
func IsTrue(path string) Condition {
	return ConditionFunc(func(mem *memory.Registry) (bool, error) {
		return mem.GetBool(path), nil
	})
}

// HasValue is true when a value exists at path.
func HasValue(path string) Condition {
	return ConditionFunc(func(mem *memory.Registry) (bool, error) {
		return mem.HasPath(path), nil
	})
}

// Equals is true when the value at path deeply equals v.
func Equals(path string, v any) Condition {
	want := core.FromAny(v)
	return ConditionFunc(func(mem *memory.Registry) (bool, error) {
		got, ok := mem.GetValue(path)
		return ok && got.Equal(want), nil
	})
}

// IntentIs is true when the turn's top intent is name.
func IntentIs(name string) Condition {
	return Equals(memory.ScopeTurn+"."+TurnRecognized+".intent", name)
}

// Not negates c.
func Not(c Condition) Condition {
	return ConditionFunc(func(mem *memory.Registry) (bool, error) {
		ok, err := c.Evaluate(mem)
		return !ok, err
	})
}

// And is true when every condition is true. It short-circuits.
func And(conds ...Condition) Condition {
	return ConditionFunc(func(mem *memory.Registry) (bool, error) {
		for _, c := range conds {
			ok, err := c.Evaluate(mem)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Or is true when any condition is true. It short-circuits.
func Or(conds ...Condition) Condition {
	return ConditionFunc(func(mem *memory.Registry) (bool, error) {
		for _, c := range conds {
			ok, err := c.Evaluate(mem)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}
