package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialog"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
)

// Config defines tuning parameters for the Engine's turn behavior.
//
// Example:
//
//	cfg := Config{
//	    MaxStackDepth:     16,
//	    MaxActionsPerTurn: 128,
//	    TurnTimeout:       5 * time.Second,
//	}
type Config struct {
	// MaxStackDepth limits how many dialog frames may be stacked. Beginning
	// a dialog beyond it fails with core.ErrStackOverflow.
	MaxStackDepth int

	// MaxActionsPerTurn caps the actions one turn may execute so a looping
	// dialog terminates with core.ErrActionLimit. Zero means unlimited.
	MaxActionsPerTurn int

	// TurnTimeout bounds a single turn, including recognizer calls. Zero
	// disables the timeout and only the caller's context applies.
	TurnTimeout time.Duration
}

// DefaultConfig provides the default turn limits:
//   - MaxStackDepth: 32
//   - MaxActionsPerTurn: 256
//   - TurnTimeout: none
var DefaultConfig = Config{
	MaxStackDepth:     dialog.DefaultMaxStackDepth,
	MaxActionsPerTurn: dialog.DefaultMaxActionsPerTurn,
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := engine.New(dialogs, func(o *engine.Options) {
//	    o.RootDialog = "main"
//	    o.Recognizer = orchestrator
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains the turn limits. Defaults to DefaultConfig.
	Config Config

	// RootDialog is begun whenever a turn starts with an empty stack.
	RootDialog string

	// Recognizer is the default recognizer for dialogs that do not bring
	// their own. Nil means messages are recognized with no intents.
	Recognizer core.Recognizer

	// Resolver expands memory path aliases. Nil uses the built-in table.
	Resolver memory.PathResolver

	// Settings backs the read-only settings scope.
	Settings core.Settings

	// Callbacks run at turn lifecycle points. Defaults to an empty manager.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger

	// Now is the clock used for conversation context expiry. Defaults to time.Now.
	Now func() time.Time
}

// Engine runs one turn at a time against a caller supplied snapshot.
//
// An Engine is safe for concurrent use. ProcessTurn never touches storage:
// it clones the snapshot, runs the dialog stack on the clone and returns the
// new snapshot only if the whole turn succeeded. Hosts that need load and
// save use the root dialogmesh package.
//
// Turn flow:
//  1. The snapshot is cloned and memory scopes are hydrated from it
//  2. BeforeTurn callbacks run
//  3. The root dialog is begun on an empty stack, otherwise the top frame continues
//  4. The stack is written back under conversation._dialogs
//  5. AfterTurn callbacks run and may still reject the turn
//
// Any error along the way discards the working copy and runs OnError
// callbacks.
type Engine struct {
	dialogs    *dialog.Set
	recognizer core.Recognizer
	resolver   memory.PathResolver
	settings   core.Settings
	callbacks  *CallbackManager
	logger     logging.Logger
	now        func() time.Time
	config     Config

	mu   sync.RWMutex
	root string
}

// New creates an Engine over dialogs. A nil set starts empty.
func New(dialogs *dialog.Set, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:    DefaultConfig,
		Callbacks: NewCallbackManager(),
		Logger:    logging.NoOpLogger{},
		Now:       time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if dialogs == nil {
		dialogs = dialog.NewSet()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		dialogs:    dialogs,
		recognizer: opts.Recognizer,
		resolver:   opts.Resolver,
		settings:   opts.Settings,
		callbacks:  opts.Callbacks,
		logger:     logging.OrNoOp(opts.Logger),
		now:        opts.Now,
		config:     opts.Config,
		root:       opts.RootDialog,
	}
}

// Register adds a dialog to the engine's set, replacing one with the same id.
func (e *Engine) Register(d dialog.Dialog) error {
	return e.dialogs.Add(d)
}

// Dialogs returns the dialog set.
func (e *Engine) Dialogs() *dialog.Set { return e.dialogs }

// SetRootDialog changes the dialog begun on an empty stack.
func (e *Engine) SetRootDialog(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = id
}

// RootDialog returns the dialog begun on an empty stack.
func (e *Engine) RootDialog() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.root
}

// Callbacks returns the callback manager so hosts can register hooks after
// construction.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// ProcessTurn runs one activity against snapshot and returns the outbound
// activities, the turn result and the new snapshot. snapshot itself is never
// modified; on error the output is nil and the caller keeps the old state.
func (e *Engine) ProcessTurn(ctx context.Context, activity core.Activity, snapshot *core.PersistedState) (*core.TurnOutput, error) {
	start := time.Now()
	if e.config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.TurnTimeout)
		defer cancel()
	}

	cbCtx := &CallbackContext{Activity: activity}

	out, err := e.runTurn(ctx, activity, snapshot, cbCtx)
	if err != nil {
		cbCtx.Err = err
		if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, cbCtx); cbErr != nil {
			e.logger.Warn("engine.callback_failed", "callback", string(CallbackOnError), "error", cbErr)
		}
		e.logTurn(activity, "failed", 0, time.Since(start), err)
		return nil, err
	}

	e.logTurn(activity, string(out.Result.Status), len(out.Activities), time.Since(start), nil)
	return out, nil
}

func (e *Engine) runTurn(ctx context.Context, activity core.Activity, snapshot *core.PersistedState, cbCtx *CallbackContext) (*core.TurnOutput, error) {
	root := e.RootDialog()
	if root == "" {
		return nil, fmt.Errorf("engine: no root dialog configured: %w", core.ErrDialogNotFound)
	}

	dc, err := dialog.NewContext(e.dialogs, activity, snapshot.Clone(), func(o *dialog.Options) {
		o.Resolver = e.resolver
		o.Settings = e.settings
		o.Recognizer = e.recognizer
		o.MaxStackDepth = e.config.MaxStackDepth
		o.MaxActionsPerTurn = e.config.MaxActionsPerTurn
		o.Logger = e.logger
		o.Now = e.now
	})
	if err != nil {
		return nil, fmt.Errorf("engine: hydrate turn: %w", err)
	}
	cbCtx.Dialog = dc

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTurn, cbCtx); err != nil {
		return nil, fmt.Errorf("engine: before turn: %w", err)
	}

	var res core.TurnResult
	if dc.Depth() == 0 {
		e.logger.Debug("turn.begin", "dialog_id", root)
		res, err = dc.BeginDialog(ctx, root, core.Null())
	} else {
		e.logger.Debug("turn.continue", "dialog_id", dc.ActiveDialog().ID, "depth", dc.Depth())
		res, err = dc.ContinueDialog(ctx)
	}
	if err != nil {
		return nil, err
	}
	// A turn cancelled after the last action must not be saved either.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &core.TurnOutput{
		Result:     res,
		Activities: dc.Outbound(),
		State:      dc.Persist(),
	}
	cbCtx.Result = &out.Result
	cbCtx.Output = out

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTurn, cbCtx); err != nil {
		return nil, fmt.Errorf("engine: after turn: %w", err)
	}
	return out, nil
}

func (e *Engine) logTurn(a core.Activity, status string, outbound int, dur time.Duration, err error) {
	if l, ok := e.logger.(*logging.DialogMeshLogger); ok {
		l.WithComponent("engine").WithConversation(a.Conversation.ID(), a.ID).LogTurn(status, outbound, dur, err)
		return
	}
	if err != nil {
		e.logger.Error("turn.failed", "conversation_id", a.Conversation.ID(), "activity_id", a.ID, "error", err)
		return
	}
	e.logger.Debug("turn.end", "conversation_id", a.Conversation.ID(), "status", status, "outbound_count", outbound, "duration_ms", dur.Milliseconds())
}
