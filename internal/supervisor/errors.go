package supervisor

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization = errors.New("session bootstrap failed")
	ErrRedirected     = errors.New("redirected to login")
	ErrRefreshFailed  = errors.New("token refresh failed; re-authentication required")
	ErrTerminated     = errors.New("supervisor terminated")
	ErrBootstrapped   = errors.New("supervisor already bootstrapped")
	ErrAPICall        = errors.New("API call failed")
)

// APICallError describes a failed authenticated API call.
// Either Err is set (the request could not be performed) or Status carries the non-2xx response status.
type APICallError struct {
	Endpoint string
	Status   int
	Body     any
	Err      error
}

// Error implements the error interface
func (err *APICallError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("API call to %s failed: %v", err.Endpoint, err.Err)
	}
	return fmt.Sprintf("API call to %s failed with status %d", err.Endpoint, err.Status)
}

// Unwrap makes the error match both ErrAPICall and the underlying cause
func (err *APICallError) Unwrap() []error {
	if err.Err != nil {
		return []error{ErrAPICall, err.Err}
	}
	return []error{ErrAPICall}
}
