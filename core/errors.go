package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAddressField is returned when an activity lacks the channel id or conversation id needed to build a storage key.
	ErrMissingAddressField = errors.New("missing address field")
	// ErrReadOnlyScope is returned when writing to settings, class or another read-only scope.
	ErrReadOnlyScope = errors.New("read-only scope")
	// ErrPathResolutionAmbiguous is returned when an alias table contains overlapping aliases.
	ErrPathResolutionAmbiguous = errors.New("path resolution ambiguous")
	// ErrRecognizerUnavailable is returned when the scoring backend fails.
	ErrRecognizerUnavailable = errors.New("recognizer unavailable")
	// ErrDialogNotFound is returned when beginning or replacing with an unregistered dialog id.
	ErrDialogNotFound = errors.New("dialog not found")
	// ErrFrameEvaluation wraps any failure raised while a frame evaluates triggers or actions.
	ErrFrameEvaluation = errors.New("frame evaluation failed")

	// ErrScopeNotFound is returned when a path names an unknown memory scope.
	ErrScopeNotFound = errors.New("memory scope not found")
	// ErrScopeUnavailable is returned when a frame scoped memory is addressed with no active frame.
	ErrScopeUnavailable = errors.New("memory scope unavailable")
	// ErrInvalidPath is returned for malformed memory paths or writes through non-container values.
	ErrInvalidPath = errors.New("invalid memory path")
	// ErrStackOverflow is returned when the dialog stack exceeds its configured depth.
	ErrStackOverflow = errors.New("dialog stack overflow")
	// ErrActionLimit is returned when a turn executes more actions than allowed.
	ErrActionLimit = errors.New("action limit exceeded")
	// ErrETagMismatch is returned by storage when an optimistic write loses a race.
	ErrETagMismatch = errors.New("etag mismatch")
)

// FrameError describes a fault raised while a dialog frame was evaluating.
// It matches ErrFrameEvaluation with errors.Is and unwraps to the cause.
type FrameError struct {
	DialogID string
	Action   string
	Err      error
}

// NewFrameError wraps err with the location it was raised at. Errors that are
// already frame errors are returned unchanged so the innermost location wins.
func NewFrameError(dialogID, action string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FrameError
	if errors.As(err, &fe) {
		return err
	}
	return &FrameError{DialogID: dialogID, Action: action, Err: err}
}

// Error implements error.
func (e *FrameError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: dialog %q action %q: %v", ErrFrameEvaluation, e.DialogID, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: dialog %q: %v", ErrFrameEvaluation, e.DialogID, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *FrameError) Unwrap() []error {
	return []error{ErrFrameEvaluation, e.Err}
}
