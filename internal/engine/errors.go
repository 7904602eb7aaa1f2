package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange marks a date range where to < from. Non-retryable.
	ErrInvalidRange = errors.New("invalid date range: to before from")

	// ErrWriteConflict marks per-key lock contention. Retried internally a
	// bounded number of times before surfacing.
	ErrWriteConflict = errors.New("concurrent write conflict")
)

// IntegrityError reports a dangling foreign reference: a computation was
// requested against a module, tutorial group, lesson or student that does
// not exist. Surfaced unchanged so callers never compute rates against a
// phantom zero-audience lesson.
type IntegrityError struct {
	Entity string
	ID     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s %q not found", e.Entity, e.ID)
}

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
