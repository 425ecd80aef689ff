package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrCollaboratorUnavailable means the reasoning service returned no usable output.
	ErrCollaboratorUnavailable = errors.New("reasoning collaborator unavailable")

	// ErrSchemaViolation means the reasoning service returned structurally invalid output.
	ErrSchemaViolation = errors.New("reasoning collaborator schema violation")

	// ErrUserInputRejected marks input the user has to change before retrying.
	ErrUserInputRejected = errors.New("user input rejected")

	ErrEntryNotFound         = errors.New("entry not found")
	ErrNoOutstandingQuestion = errors.New("entry has no outstanding question")
	ErrPendingDecision       = errors.New("a duplicate decision is pending")
	ErrNoPendingDecision     = errors.New("no duplicate decision is pending")
	ErrVersionConflict       = errors.New("memory snapshot version conflict")
	ErrBusy                  = errors.New("another operation is in progress")
)

// OffTaskError is returned when the classifier decides the input is not a
// loggable work activity.
type OffTaskError struct {
	Message string
}

func (e *OffTaskError) Error() string {
	if e.Message == "" {
		return "input is not a work activity"
	}
	return fmt.Sprintf("input is not a work activity: %s", e.Message)
}

func (e *OffTaskError) Unwrap() error { return ErrUserInputRejected }

// SchemaErrorf wraps ErrSchemaViolation with a formatted reason.
func SchemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, fmt.Sprintf(format, args...))
}
