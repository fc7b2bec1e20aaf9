package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned for operations the current state does not allow.
	ErrInvalidState = errors.New("session: operation not allowed in current state")

	// ErrSubmitInProgress is returned to a second submit racing one whose write is in flight.
	ErrSubmitInProgress = fmt.Errorf("%w: submission in progress", ErrInvalidState)

	// ErrUnknownQuestion is returned when an answer names a question the exam does not have.
	ErrUnknownQuestion = errors.New("session: unknown question")

	// ErrDuplicateSubmission is returned by a SubmissionWriter when a different
	// submission for the same student and exam already exists.
	ErrDuplicateSubmission = errors.New("session: submission already exists")
)

// PersistenceError wraps a failed submission write. The engine keeps the collected
// answers and the computed score, and the same Submit may be retried.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist submission: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
