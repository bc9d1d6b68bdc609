package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialog"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks hook into the turn pipeline without modifying the engine:
//   - BeforeTurn: after the snapshot is hydrated, before any dialog runs
//   - AfterTurn: after the stack has been persisted into the output
//   - OnError: when a turn fails and its working state is discarded
//
// Callbacks run synchronously. A BeforeTurn or AfterTurn callback that returns
// an error fails the turn, so nothing from it will be saved.
type CallbackType string

const (
	// CallbackBeforeTurn is triggered before the root dialog begins or the
	// top frame continues. Use for validation or instrumentation.
	CallbackBeforeTurn CallbackType = "before_turn"

	// CallbackAfterTurn is triggered once the turn output is assembled.
	// Use for state validation, auditing or metrics.
	CallbackAfterTurn CallbackType = "after_turn"

	// CallbackOnError is triggered when a turn fails. Its return value is
	// only logged.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect during a turn.
type CallbackContext struct {
	// Activity is the inbound activity of the turn.
	Activity core.Activity

	// Dialog is the turn's dialog context. Nil when hydration failed.
	Dialog *dialog.Context

	// Result is the turn result. Only set for AfterTurn.
	Result *core.TurnResult

	// Output is the assembled turn output. Only set for AfterTurn.
	Output *core.TurnOutput

	// Err is the failure that triggered OnError.
	Err error

	// CallbackType indicates which lifecycle point is executing.
	CallbackType CallbackType

	// Metadata is free-form storage shared by callbacks of one turn.
	Metadata map[string]any
}

// Callback defines the interface for turn lifecycle hooks.
//
// Implementations should be fast since they block the turn.
type Callback interface {
	// Type returns the lifecycle point this callback handles.
	Type() CallbackType

	// Execute runs the callback. Returning an error fails the turn.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeTurn, func(ctx context.Context, c *CallbackContext) error {
//	    if c.Activity.From.ID == "" {
//	        return errors.New("anonymous activity")
//	    }
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, callbackCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (fc *FunctionCallback) Type() CallbackType { return fc.callbackType }

// Execute implements Callback.
func (fc *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return fc.fn(ctx, callbackCtx)
}

// CallbackManager keeps callbacks grouped by type and runs them in
// registration order. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback under its own type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// Count returns how many callbacks are registered for callbackType.
func (cm *CallbackManager) Count(callbackType CallbackType) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.callbacks[callbackType])
}

// ExecuteCallbacks runs every callback registered for callbackType and stops
// at the first error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	if callbackCtx.Metadata == nil {
		callbackCtx.Metadata = make(map[string]any)
	}

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("callback %s failed: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback creates a callback that reports the lifecycle point and
// conversation of each turn through logger.
func LoggingCallback(callbackType CallbackType, logger func(string)) Callback {
	return NewFunctionCallback(callbackType, func(_ context.Context, c *CallbackContext) error {
		msg := fmt.Sprintf("[%s] conversation=%s activity=%s", callbackType, c.Activity.Conversation.ID(), c.Activity.ID)
		if c.Result != nil {
			msg += fmt.Sprintf(" status=%s", c.Result.Status)
		}
		if c.Err != nil {
			msg += fmt.Sprintf(" error=%v", c.Err)
		}
		logger(msg)
		return nil
	})
}

// StateValidationCallback creates an AfterTurn callback that rejects a turn
// whose new snapshot fails validate.
func StateValidationCallback(validate func(state *core.PersistedState) error) Callback {
	return NewFunctionCallback(CallbackAfterTurn, func(_ context.Context, c *CallbackContext) error {
		if c.Output == nil {
			return nil
		}
		if err := validate(c.Output.State); err != nil {
			return fmt.Errorf("state validation failed: %w", err)
		}
		return nil
	})
}
