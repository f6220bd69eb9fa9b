// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the referenced item does not exist (anymore).
	ErrNotFound = errors.New("not found")

	// ErrBackendUnavailable indicates the backend handle could not be established
	// (connect, signin or namespace/database selection failed).
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrOperationFailed indicates a list/create/delete call failed on a valid handle.
	ErrOperationFailed = errors.New("operation failed")

	// ErrUnauthorized indicates rejected backend credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary signin lock after repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyTitle indicates an add with a blank title.
	ErrEmptyTitle = errors.New("validation: empty title")

	// ErrEmptyID indicates a delete without an identifier.
	ErrEmptyID = errors.New("validation: empty id")
)

// Causes reported by BackendUnavailableError.
const (
	CauseConnect = "couldn't connect"
	CauseSignin  = "couldn't signin"
	CauseUse     = "couldn't find db"
)

// BackendUnavailableError is returned when a handle cannot be initialized.
// It matches ErrBackendUnavailable and the underlying cause with errors.Is.
type BackendUnavailableError struct {
	Cause string
	Err   error
}

func (e *BackendUnavailableError) Error() string {
	if e.Err == nil {
		return "backend unavailable: " + e.Cause
	}
	return "backend unavailable: " + e.Cause + ": " + e.Err.Error()
}

func (e *BackendUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendUnavailable}
	}
	return []error{ErrBackendUnavailable, e.Err}
}

// Unavailable builds a BackendUnavailableError.
func Unavailable(cause string, err error) error {
	return &BackendUnavailableError{Cause: cause, Err: err}
}

// OperationError carries the backend's failure for a single CRUD call.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return e.Op + ": " + ErrOperationFailed.Error() + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() []error { return []error{ErrOperationFailed, e.Err} }
