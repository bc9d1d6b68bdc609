package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/memory"
)

// ResultStatus tells the plan runner what to do after an action.
type ResultStatus int

const (
	// ResultNext advances to the following action.
	ResultNext ResultStatus = iota
	// ResultWait suspends the plan until the next activity.
	ResultWait
	// ResultStop ends plan execution in this call; the action already moved
	// the stack and Turn carries the outcome.
	ResultStop
)

// Result is returned by Action.Execute.
type Result struct {
	Status ResultStatus
	Turn   core.TurnResult
}

// Next continues with the following action.
func Next() Result { return Result{Status: ResultNext} }

// Wait suspends the plan.
func Wait() Result {
	return Result{Status: ResultWait, Turn: core.TurnResult{Status: core.TurnStatusWaiting}}
}

// Stop ends plan execution with the given turn result.
func Stop(turn core.TurnResult) Result { return Result{Status: ResultStop, Turn: turn} }

// Action is one step of a trigger.
type Action interface {
	Kind() string
	Execute(ctx context.Context, dc *Context) (Result, error)
}

// InputAction is implemented by actions that wait for user input. The plan
// runner feeds it the next activity instead of dispatching triggers.
type InputAction interface {
	Action
	ContinueInput(ctx context.Context, dc *Context) (Result, error)
	Reprompt(ctx context.Context, dc *Context) error
	AllowsInterruptions() bool
}

// SendActivityAction queues an outbound activity.
type SendActivityAction struct {
	Text string
	// Activity, when set, is sent instead of a text reply. Missing
	// addressing is filled in from the inbound activity.
	Activity *core.Activity
}

// SendActivity replies with text.
func SendActivity(text string) *SendActivityAction {
	return &SendActivityAction{Text: text}
}

// Kind implements Action.
func (a *SendActivityAction) Kind() string { return "SendActivity" }

// Execute implements Action.
func (a *SendActivityAction) Execute(_ context.Context, dc *Context) (Result, error) {
	if a.Activity == nil {
		dc.SendText(a.Text)
		return Next(), nil
	}
	out := *a.Activity
	if out.ID == "" {
		out.ID = core.NewID()
	}
	if out.Conversation == nil {
		out = core.GetConversationReference(dc.Activity()).ApplyToActivity(out)
	}
	dc.SendActivity(out)
	return Next(), nil
}

// SetPropertyAction writes a value to memory.
type SetPropertyAction struct {
	Property string
	Value    core.Value
	// From copies the value at this path instead of using Value.
	From string
}

// SetProperty writes v at path.
func SetProperty(path string, v any) *SetPropertyAction {
	return &SetPropertyAction{Property: path, Value: core.FromAny(v)}
}

// CopyProperty copies the value at from to path. A missing source writes null.
func CopyProperty(path, from string) *SetPropertyAction {
	return &SetPropertyAction{Property: path, From: from}
}

// Kind implements Action.
func (a *SetPropertyAction) Kind() string { return "SetProperty" }

// Execute implements Action.
func (a *SetPropertyAction) Execute(_ context.Context, dc *Context) (Result, error) {
	v := a.Value.Clone()
	if a.From != "" {
		src, _ := dc.Memory().GetValue(a.From)
		v = src.Clone()
	}
	if err := dc.Memory().SetValue(a.Property, v); err != nil {
		return Result{}, err
	}
	return Next(), nil
}

// DeletePropertyAction removes a value from memory.
type DeletePropertyAction struct {
	Property string
}

// DeleteProperty removes the value at path.
func DeleteProperty(path string) *DeletePropertyAction {
	return &DeletePropertyAction{Property: path}
}

// Kind implements Action.
func (a *DeletePropertyAction) Kind() string { return "DeleteProperty" }

// Execute implements Action.
func (a *DeletePropertyAction) Execute(_ context.Context, dc *Context) (Result, error) {
	if err := dc.Memory().DeleteValue(a.Property); err != nil {
		return Result{}, err
	}
	return Next(), nil
}

// EmitEventAction raises an event on the stack.
type EmitEventAction struct {
	Name   string
	Value  core.Value
	Bubble bool
}

// EmitEvent raises name with value.
func EmitEvent(name string, value any, bubble bool) *EmitEventAction {
	return &EmitEventAction{Name: name, Value: core.FromAny(value), Bubble: bubble}
}

// Kind implements Action.
func (a *EmitEventAction) Kind() string { return "EmitEvent" }

// Execute implements Action. A handled event has already run its handler,
// including the rest of this plan, so the runner stops.
func (a *EmitEventAction) Execute(ctx context.Context, dc *Context) (Result, error) {
	handled, res, err := dc.EmitEvent(ctx, a.Name, a.Value.Clone(), a.Bubble)
	if err != nil {
		return Result{}, err
	}
	if handled {
		return Stop(res), nil
	}
	return Next(), nil
}

// BeginDialogAction starts a child dialog.
type BeginDialogAction struct {
	DialogID string
	Options  core.Value
	// ResultProperty receives the child's result when it ends.
	ResultProperty string
}

// BeginDialog starts dialog id as a child of the running dialog.
func BeginDialog(id string) *BeginDialogAction {
	return &BeginDialogAction{DialogID: id}
}

// WithOptions sets the options passed to the child.
func (a *BeginDialogAction) WithOptions(options any) *BeginDialogAction {
	a.Options = core.FromAny(options)
	return a
}

// WithResultProperty stores the child's result at path.
func (a *BeginDialogAction) WithResultProperty(path string) *BeginDialogAction {
	a.ResultProperty = path
	return a
}

// Kind implements Action.
func (a *BeginDialogAction) Kind() string { return "BeginDialog" }

// Execute implements Action.
func (a *BeginDialogAction) Execute(ctx context.Context, dc *Context) (Result, error) {
	if inst := dc.ActiveDialog(); inst != nil {
		if p := inst.topPlan(); p != nil {
			p.ResultProperty = a.ResultProperty
		}
	}
	res, err := dc.BeginDialog(ctx, a.DialogID, a.Options.Clone())
	if err != nil {
		return Result{}, err
	}
	return Stop(res), nil
}

// EndDialogAction ends the running dialog.
type EndDialogAction struct {
	Value core.Value
	// ValueProperty, when set, supplies the result from memory.
	ValueProperty string
}

// EndDialog ends the running dialog with value as its result.
func EndDialog(value any) *EndDialogAction {
	return &EndDialogAction{Value: core.FromAny(value)}
}

// EndDialogWith ends the running dialog with the value at path.
func EndDialogWith(path string) *EndDialogAction {
	return &EndDialogAction{ValueProperty: path}
}

// Kind implements Action.
func (a *EndDialogAction) Kind() string { return "EndDialog" }

// Execute implements Action.
func (a *EndDialogAction) Execute(ctx context.Context, dc *Context) (Result, error) {
	result := a.Value.Clone()
	if a.ValueProperty != "" {
		v, _ := dc.Memory().GetValue(a.ValueProperty)
		result = v.Clone()
	}
	res, err := dc.EndDialog(ctx, result)
	if err != nil {
		return Result{}, err
	}
	return Stop(res), nil
}

// ReplaceDialogAction replaces the running dialog.
type ReplaceDialogAction struct {
	DialogID string
	Options  core.Value
}

// ReplaceDialog replaces the running dialog with id.
func ReplaceDialog(id string, options any) *ReplaceDialogAction {
	return &ReplaceDialogAction{DialogID: id, Options: core.FromAny(options)}
}

// Kind implements Action.
func (a *ReplaceDialogAction) Kind() string { return "ReplaceDialog" }

// Execute implements Action.
func (a *ReplaceDialogAction) Execute(ctx context.Context, dc *Context) (Result, error) {
	res, err := dc.ReplaceDialog(ctx, a.DialogID, a.Options.Clone())
	if err != nil {
		return Result{}, err
	}
	return Stop(res), nil
}

// RepeatDialogAction restarts the running dialog.
type RepeatDialogAction struct{}

// RepeatDialog restarts the running dialog.
func RepeatDialog() *RepeatDialogAction { return &RepeatDialogAction{} }

// Kind implements Action.
func (a *RepeatDialogAction) Kind() string { return "RepeatDialog" }

// Execute implements Action.
func (a *RepeatDialogAction) Execute(ctx context.Context, dc *Context) (Result, error) {
	res, err := dc.RepeatDialog(ctx)
	if err != nil {
		return Result{}, err
	}
	return Stop(res), nil
}

// CancelAllDialogsAction clears the stack.
type CancelAllDialogsAction struct{}

// CancelAllDialogs clears the stack.
func CancelAllDialogs() *CancelAllDialogsAction { return &CancelAllDialogsAction{} }

// Kind implements Action.
func (a *CancelAllDialogsAction) Kind() string { return "CancelAllDialogs" }

// Execute implements Action.
func (a *CancelAllDialogsAction) Execute(ctx context.Context, dc *Context) (Result, error) {
	res, err := dc.CancelAllDialogs(ctx)
	if err != nil {
		return Result{}, err
	}
	return Stop(res), nil
}

// AddToUserContextAction appends the running dialog's properties to
// user.previousContext.{dialogId}.{property}, one list per property, so
// later conversations can see what was said before.
type AddToUserContextAction struct {
	// Properties limits the copied keys; empty copies the whole bag.
	Properties []string
}

// AddToUserContext copies the dialog bag into user memory.
func AddToUserContext(properties ...string) *AddToUserContextAction {
	return &AddToUserContextAction{Properties: properties}
}

// Kind implements Action.
func (a *AddToUserContextAction) Kind() string { return "AddToUserContext" }

// Execute implements Action.
func (a *AddToUserContextAction) Execute(_ context.Context, dc *Context) (Result, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return Result{}, fmt.Errorf("%w: no active dialog", core.ErrScopeUnavailable)
	}
	keys := a.Properties
	if len(keys) == 0 {
		keys = inst.State.Keys()
	}

	mem := dc.Memory()
	for _, key := range keys {
		v, ok := inst.State.Get(key)
		if !ok {
			continue
		}
		path := fmt.Sprintf("%s.previousContext['%s']['%s']", memory.ScopeUser,
			strings.ReplaceAll(inst.ID, "'", ""), strings.ReplaceAll(key, "'", ""))

		history := core.NewList()
		if cur, ok := mem.GetValue(path); ok {
			if l, ok := cur.AsList(); ok {
				history = l
			}
		}
		history.Append(v.Clone())
		if err := mem.SetValue(path, core.ListValue(history)); err != nil {
			return Result{}, err
		}
	}
	return Next(), nil
}

// ActionFunc adapts a function to Action.
type ActionFunc struct {
	Name string
	Fn   func(ctx context.Context, dc *Context) (Result, error)
}

// Do wraps fn as an action that continues unless fn fails.
func Do(name string, fn func(ctx context.Context, dc *Context) error) *ActionFunc {
	return &ActionFunc{Name: name, Fn: func(ctx context.Context, dc *Context) (Result, error) {
		if err := fn(ctx, dc); err != nil {
			return Result{}, err
		}
		return Next(), nil
	}}
}

// Kind implements Action.
func (a *ActionFunc) Kind() string {
	if a.Name == "" {
		return "ActionFunc"
	}
	return a.Name
}

// Execute implements Action.
func (a *ActionFunc) Execute(ctx context.Context, dc *Context) (Result, error) {
	return a.Fn(ctx, dc)
}

var (
	_ Action = (*SendActivityAction)(nil)
	_ Action = (*SetPropertyAction)(nil)
	_ Action = (*DeletePropertyAction)(nil)
	_ Action = (*EmitEventAction)(nil)
	_ Action = (*BeginDialogAction)(nil)
	_ Action = (*EndDialogAction)(nil)
	_ Action = (*ReplaceDialogAction)(nil)
	_ Action = (*RepeatDialogAction)(nil)
	_ Action = (*CancelAllDialogsAction)(nil)
	_ Action = (*AddToUserContextAction)(nil)
	_ Action = (*ActionFunc)(nil)
)
