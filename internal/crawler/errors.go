package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is active.
	ErrAlreadyRunning = errors.New("crawl already running")
	// ErrNotRunning is returned by Stop when no run is active.
	ErrNotRunning = errors.New("crawl not running")
	// ErrNotFound signals a name lookup with no matching row.
	ErrNotFound = errors.New("record not found")
)

// NavigationError reports that the remote UI did not respond as expected.
type NavigationError struct {
	Op  string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation %s: %v", e.Op, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ValidationError reports a row whose fields fail normalization. Field names
// the offending raw field.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError reports a failed storage read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
