package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when an agent acts on a job it has no right to.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyApplied is returned on a repeat application for the same job.
	ErrAlreadyApplied = errors.New("already applied")
)

// InvalidStatusError reports a lifecycle operation attempted from the wrong state.
type InvalidStatusError struct {
	Current  string
	Required string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("job is %s, must be %s", e.Current, e.Required)
}

// VerificationError reports a failed tweet attestation check. Details carries
// the diagnostic fields surfaced to the caller.
type VerificationError struct {
	Reason  string
	Details map[string]any
}

func (e *VerificationError) Error() string {
	return "verification failed: " + e.Reason
}
