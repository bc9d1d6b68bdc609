package core

// TurnStatus reports how a turn left the dialog stack.
type TurnStatus string

const (
	// TurnStatusEmpty means the stack was empty and nothing ran.
	TurnStatusEmpty TurnStatus = "empty"
	// TurnStatusWaiting means the top frame is waiting for user input.
	TurnStatusWaiting TurnStatus = "waiting"
	// TurnStatusComplete means the last frame ended during this turn.
	TurnStatusComplete TurnStatus = "complete"
	// TurnStatusCancelled means the stack was cancelled during this turn.
	TurnStatusCancelled TurnStatus = "cancelled"
)

// TurnResult is returned by stack operations and by the turn engine.
type TurnResult struct {
	Status TurnStatus
	Result Value
	// ParentEnded is set when an ended frame delivered its result to a parent.
	ParentEnded bool
}

// TurnOutput bundles everything a processed turn produced.
type TurnOutput struct {
	Result     TurnResult
	Activities []Activity
	State      *PersistedState
}
