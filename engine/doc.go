// Package engine implements the turn pipeline of DialogMesh.
//
// The Engine takes one inbound activity and the persisted state of its user
// and conversation, runs the dialog stack for exactly one turn and returns
// the outbound activities together with the new state. It owns no storage:
// a turn either produces a complete new snapshot or an error, and the input
// snapshot is never modified.
//
// # Core Responsibilities
//
// Turn Execution:
//   - Hydrates user, conversation and turn memory from the snapshot
//   - Begins the root dialog on an empty stack, otherwise continues the top frame
//   - Enforces stack depth and per-turn action limits
//   - Applies an optional per-turn timeout on top of the caller's context
//
// Dialog Registry:
//   - Thread-safe root dialog selection
//   - Dialog registration through the shared dialog.Set
//
// Callback System:
//   - BeforeTurn, AfterTurn and OnError lifecycle hooks
//   - Built-in logging and state validation callbacks
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│              Host (dialogmesh.Runtime)                  │
//	│        load snapshot ─▶ ProcessTurn ─▶ save + send      │
//	├─────────────────────────────────────────────────────────┤
//	│                        Engine                           │
//	│  ┌─────────────┐ ┌─────────────┐ ┌─────────────────┐    │
//	│  │  Snapshot   │ │  Callbacks  │ │   Turn limits   │    │
//	│  │   clone     │ │   Manager   │ │  depth/actions  │    │
//	│  └─────────────┘ └─────────────┘ └─────────────────┘    │
//	├─────────────────────────────────────────────────────────┤
//	│                    dialog.Context                       │
//	│  ┌─────────────┐ ┌─────────────┐ ┌─────────────────┐    │
//	│  │   Stack     │ │   Memory    │ │   Recognizer    │    │
//	│  │  frames     │ │   scopes    │ │     cache       │    │
//	│  └─────────────┘ └─────────────┘ └─────────────────┘    │
//	└─────────────────────────────────────────────────────────┘
//
// # Usage Example
//
//	dialogs := dialog.NewSet(root)
//	eng := engine.New(dialogs, func(o *engine.Options) {
//	    o.RootDialog = root.ID()
//	    o.Recognizer = recognizer.NewOrchestrator(scorer)
//	})
//
//	out, err := eng.ProcessTurn(ctx, activity, snapshot)
//	if err != nil {
//	    // nothing from this turn may be saved
//	    return err
//	}
//	snapshot = out.State
//
// # Thread Safety
//
// Concurrent turns for different conversations are safe. Turns for the same
// conversation must be serialized by the host, usually through storage ETags.
package engine
