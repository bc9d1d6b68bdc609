// Package dialogmesh provides a high-level façade over the turn engine and
// the state storage abstractions, enabling rapid construction of turn-based
// conversational bots. Most applications interact with this package by:
//  1. Creating a DialogMesh via New() (optionally overriding the default in-memory storage)
//  2. Registering one or more dialogs and selecting the root dialog
//  3. Feeding each inbound activity to ProcessActivity
//
// ProcessActivity derives the storage keys from the activity address, loads
// the user and conversation documents, runs exactly one turn and saves both
// documents only when the turn succeeded. Outbound activities are handed to
// the configured ActivitySink after the save.
package dialogmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialog"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
)

// Options configures the DialogMesh instance.
type Options struct {
	// EngineOptions are applied to the underlying engine.Options.
	EngineOptions []func(o *engine.Options)

	// Storage holds user and conversation state (defaults to in-memory).
	Storage core.Storage

	// Sink receives outbound activities after a successful save. Nil means
	// callers read them from the returned TurnOutput only.
	Sink core.ActivitySink

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// DialogMesh is the high-level façade aggregating the engine, storage and sink.
type DialogMesh struct {
	opts    Options
	dialogs *dialog.Set
	engine  *engine.Engine
	logger  logging.Logger
}

// New creates a new DialogMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *DialogMesh {
	opts := Options{
		Storage: storage.NewInMemoryStorage(),
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Storage == nil {
		opts.Storage = storage.NewInMemoryStorage()
	}
	logger := logging.OrNoOp(opts.Logger)

	dialogs := dialog.NewSet()
	eng := engine.New(dialogs, append([]func(o *engine.Options){func(o *engine.Options) {
		o.Logger = logger
	}}, opts.EngineOptions...)...)

	return &DialogMesh{opts: opts, dialogs: dialogs, engine: eng, logger: logger}
}

// RegisterDialog adds a dialog. The first dialog registered becomes the root
// unless a root was configured.
func (m *DialogMesh) RegisterDialog(d dialog.Dialog) error {
	if err := m.engine.Register(d); err != nil {
		return err
	}
	if m.engine.RootDialog() == "" {
		m.engine.SetRootDialog(d.ID())
	}
	return nil
}

// SetRootDialog selects the dialog begun on an empty stack.
func (m *DialogMesh) SetRootDialog(id string) { m.engine.SetRootDialog(id) }

// Engine exposes the underlying engine, e.g. to register callbacks.
func (m *DialogMesh) Engine() *engine.Engine { return m.engine }

// Storage returns the configured state storage.
func (m *DialogMesh) Storage() core.Storage { return m.opts.Storage }

// ProcessTurn runs one turn against a caller managed snapshot without
// touching storage.
func (m *DialogMesh) ProcessTurn(ctx context.Context, activity core.Activity, snapshot *core.PersistedState) (*core.TurnOutput, error) {
	return m.engine.ProcessTurn(ctx, activity, snapshot)
}

// ProcessActivity loads state for activity, runs one turn and saves the new
// state. On a turn or save error nothing is persisted and nothing is sent, so
// a later load returns the pre-turn state. A save that loses an ETag race
// fails with core.ErrETagMismatch and the caller may retry the activity.
//
// When the sink fails the state is already saved; the output is returned
// together with the error.
func (m *DialogMesh) ProcessActivity(ctx context.Context, activity core.Activity) (*core.TurnOutput, error) {
	keys, err := state.KeysFor(activity)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	snapshot, err := state.Load(ctx, m.opts.Storage, keys)
	m.logStorage("read", 2, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	out, err := m.engine.ProcessTurn(ctx, activity, snapshot)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	err = state.Save(ctx, m.opts.Storage, keys, out.State)
	m.logStorage("write", 2, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if m.opts.Sink != nil && len(out.Activities) > 0 {
		if err := m.opts.Sink.Send(ctx, out.Activities); err != nil {
			m.logger.Error("sink.send_failed", "conversation_id", activity.Conversation.ID(), "error", err)
			return out, fmt.Errorf("send activities: %w", err)
		}
	}
	return out, nil
}

// LoadState returns the persisted state the next turn of activity's
// conversation would start from.
func (m *DialogMesh) LoadState(ctx context.Context, activity core.Activity) (*core.PersistedState, error) {
	keys, err := state.KeysFor(activity)
	if err != nil {
		return nil, err
	}
	return state.Load(ctx, m.opts.Storage, keys)
}

func (m *DialogMesh) logStorage(op string, keys int, dur time.Duration, err error) {
	if l, ok := m.logger.(*logging.DialogMeshLogger); ok {
		l.WithComponent("storage").LogStorage(op, keys, dur, err)
		return
	}
	if err != nil {
		m.logger.Warn("storage.failed", "op", op, "error", err)
	}
}
