package core

import (
	"fmt"
	"sync/atomic"
)

// ActionLimiter caps the number of actions one turn may execute. A zero
// limit allows any number of actions.
type ActionLimiter struct {
	limit int64
	used  atomic.Int64
}

// NewActionLimiter creates a limiter allowing limit actions per turn.
func NewActionLimiter(limit int) *ActionLimiter {
	return &ActionLimiter{limit: int64(limit)}
}

// Increment records one executed action and fails with ErrActionLimit once
// the limit is passed.
func (al *ActionLimiter) Increment() error {
	n := al.used.Add(1)
	if al.limit > 0 && n > al.limit {
		return fmt.Errorf("%w: more than %d actions in one turn", ErrActionLimit, al.limit)
	}
	return nil
}

// Count returns the number of actions recorded so far.
func (al *ActionLimiter) Count() int { return int(al.used.Load()) }

// Remaining returns how many actions are left, or -1 when unlimited.
func (al *ActionLimiter) Remaining() int {
	if al.limit == 0 {
		return -1
	}
	return int(max(0, al.limit-al.used.Load()))
}
