package dialog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
)

// Reason explains why a dialog method is being invoked.
type Reason string

const (
	ReasonBegin         Reason = "beginCalled"
	ReasonContinue      Reason = "continueCalled"
	ReasonEndCalled     Reason = "endCalled"
	ReasonCancelCalled  Reason = "cancelCalled"
	ReasonReplaceCalled Reason = "replaceCalled"
	ReasonNextCalled    Reason = "nextCalled"
)

// Dialog is a unit of conversational behavior addressed by id. The Context
// owns the stack; dialogs only react to lifecycle calls and use the Context
// to push, pop or emit events.
//
// Begin is invoked right after the dialog's frame has been pushed, Continue
// when a new activity reaches the top frame, and Resume when a child frame
// ended and delivered its result. End is called while the frame is still on
// the stack, just before it is popped.
type Dialog interface {
	ID() string
	Begin(ctx context.Context, dc *Context, options core.Value) (core.TurnResult, error)
	Continue(ctx context.Context, dc *Context) (core.TurnResult, error)
	Resume(ctx context.Context, dc *Context, reason Reason, result core.Value) (core.TurnResult, error)
	Reprompt(ctx context.Context, dc *Context, inst *Instance) error
	End(ctx context.Context, dc *Context, inst *Instance, reason Reason) error
	// OnEvent offers an event to the frame inst. handled reports whether the
	// dialog consumed it; result is only meaningful when handled.
	OnEvent(ctx context.Context, dc *Context, inst *Instance, ev *Event) (handled bool, result core.TurnResult, err error)
}

// ClassProvider is implemented by dialogs that expose static, read-only
// properties through the class and dialogClass scopes.
type ClassProvider interface {
	ClassMemory() *core.Map
}

// Base provides default lifecycle behavior. Embed it and implement Begin.
//
// The defaults end the dialog on Continue, pass a child's result through on
// Resume and ignore events.
type Base struct {
	id string
}

// NewBase returns a Base with the given id.
func NewBase(id string) Base { return Base{id: id} }

// ID implements Dialog.
func (b Base) ID() string { return b.id }

// Continue implements Dialog by ending the dialog.
func (b Base) Continue(ctx context.Context, dc *Context) (core.TurnResult, error) {
	return dc.EndDialog(ctx, core.Null())
}

// Resume implements Dialog by ending with the child's result.
func (b Base) Resume(ctx context.Context, dc *Context, _ Reason, result core.Value) (core.TurnResult, error) {
	return dc.EndDialog(ctx, result)
}

// Reprompt implements Dialog as a no-op.
func (b Base) Reprompt(context.Context, *Context, *Instance) error { return nil }

// End implements Dialog as a no-op.
func (b Base) End(context.Context, *Context, *Instance, Reason) error { return nil }

// OnEvent implements Dialog and never handles anything.
func (b Base) OnEvent(context.Context, *Context, *Instance, *Event) (bool, core.TurnResult, error) {
	return false, core.TurnResult{}, nil
}

// Set is a registry of dialogs by id. It is safe for concurrent use so a
// host can register dialogs while turns are running.
type Set struct {
	mu      sync.RWMutex
	dialogs map[string]Dialog
}

// NewSet creates a set holding dialogs.
func NewSet(dialogs ...Dialog) *Set {
	s := &Set{dialogs: make(map[string]Dialog, len(dialogs))}
	for _, d := range dialogs {
		s.dialogs[d.ID()] = d
	}
	return s
}

// Add registers d, replacing a dialog with the same id.
func (s *Set) Add(d Dialog) error {
	if d == nil || d.ID() == "" {
		return fmt.Errorf("dialog must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[d.ID()] = d
	return nil
}

// Find returns the dialog registered under id.
func (s *Set) Find(id string) (Dialog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dialogs[id]
	return d, ok
}

// IDs returns all registered ids, sorted.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.dialogs))
	for id := range s.dialogs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
