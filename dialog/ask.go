package dialog

import (
	"context"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/memory"
)

const (
	thisTurnCount = "turnCount"
	turnValue     = "value"
)

// Ask prompts the user and stores the reply at Property. It is the action
// that puts a frame into WaitingForInput.
type Ask struct {
	Prompt   string
	Property string
	// Entity takes the first recognized entity of this type instead of the
	// raw text.
	Entity string
	// AllowInterruptions lets the dialog's intent triggers run before the
	// reply is taken as input.
	AllowInterruptions bool
	// AlwaysPrompt prompts even when Property already has a value.
	AlwaysPrompt bool
	// MaxTurnCount limits re-prompts; zero means unlimited. When reached,
	// DefaultValue (if not null) is stored and the plan continues.
	MaxTurnCount  int
	DefaultValue  core.Value
	InvalidPrompt string
	// Validation is evaluated with the candidate input at turn.value.
	Validation Condition
}

// AskFor prompts with prompt and stores the reply at property.
func AskFor(prompt, property string) *Ask {
	return &Ask{Prompt: prompt, Property: property}
}

// Kind implements Action.
func (a *Ask) Kind() string { return "Ask" }

// AllowsInterruptions implements InputAction.
func (a *Ask) AllowsInterruptions() bool { return a.AllowInterruptions }

// Execute implements Action.
func (a *Ask) Execute(_ context.Context, dc *Context) (Result, error) {
	if !a.AlwaysPrompt && dc.Memory().HasPath(a.Property) {
		return Next(), nil
	}
	if err := dc.Memory().SetValue(memory.ScopeThis+"."+thisTurnCount, core.NumberValue(0)); err != nil {
		return Result{}, err
	}
	dc.SendText(a.Prompt)
	return Wait(), nil
}

// ContinueInput implements InputAction.
func (a *Ask) ContinueInput(_ context.Context, dc *Context) (Result, error) {
	mem := dc.Memory()

	if v, ok := a.input(dc); ok {
		if err := mem.SetValue(memory.ScopeTurn+"."+turnValue, v); err != nil {
			return Result{}, err
		}
		valid := true
		if a.Validation != nil {
			var err error
			if valid, err = a.Validation.Evaluate(mem); err != nil {
				return Result{}, err
			}
		}
		if valid {
			if err := mem.SetValue(a.Property, v); err != nil {
				return Result{}, err
			}
			return Next(), a.reset(mem)
		}
	}

	count, _ := mem.GetNumber(memory.ScopeThis + "." + thisTurnCount)
	count++
	if err := mem.SetValue(memory.ScopeThis+"."+thisTurnCount, core.NumberValue(count)); err != nil {
		return Result{}, err
	}
	if a.MaxTurnCount > 0 && int(count) >= a.MaxTurnCount {
		if !a.DefaultValue.IsNull() {
			if err := mem.SetValue(a.Property, a.DefaultValue.Clone()); err != nil {
				return Result{}, err
			}
		}
		return Next(), a.reset(mem)
	}

	prompt := a.InvalidPrompt
	if prompt == "" {
		prompt = a.Prompt
	}
	dc.SendText(prompt)
	return Wait(), nil
}

// Reprompt implements InputAction.
func (a *Ask) Reprompt(_ context.Context, dc *Context) error {
	dc.SendText(a.Prompt)
	return nil
}

func (a *Ask) input(dc *Context) (core.Value, bool) {
	if a.Entity != "" {
		v, ok := dc.Memory().GetValue(memory.ScopeTurn + "." + TurnRecognized + ".entities['" + a.Entity + "'][0]")
		if ok && !v.IsNull() {
			return v, true
		}
		return core.Null(), false
	}
	text := strings.TrimSpace(dc.Activity().Text)
	if text == "" {
		return core.Null(), false
	}
	return core.StringValue(text), true
}

func (a *Ask) reset(mem *memory.Registry) error {
	return mem.DeleteValue(memory.ScopeThis + "." + thisTurnCount)
}

var _ InputAction = (*Ask)(nil)
