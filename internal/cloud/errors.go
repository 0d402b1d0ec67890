package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for client misuse.
var (
	// ErrNoCredentials is returned when a request is attempted before
	// Login has stored email and password.
	ErrNoCredentials = errors.New("cloud: credentials not set")
)

// AuthError indicates the cloud rejected our credentials or session.
//
// It is surfaced when the initial login fails with 401/403, or when a
// request still receives 401/403 after one transparent re-login.
// Callers should treat it as "needs re-authentication", not retry.
type AuthError struct {
	// Status is the HTTP status code that triggered the failure
	// (401 or 403), or 0 when no response was received.
	Status int

	// Message carries the truncated response body for diagnostics.
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cloud: auth failed (%d)", e.Status)
	}
	return fmt.Sprintf("cloud: auth failed (%d): %s", e.Status, e.Message)
}

// APIError indicates a transport or server failure talking to the cloud.
//
// Transient reports whether the failure class is retryable (network
// errors and 5xx responses). Non-transient APIErrors (4xx) surface
// immediately without retry.
type APIError struct {
	// Action names the operation that failed (e.g. "get_devices").
	Action string

	// Status is the HTTP status code, or 0 for network-level failures.
	Status int

	// Transient reports whether retrying could succeed.
	Transient bool

	// Message carries the truncated response body or transport error.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("cloud: %s failed (%d): %s", e.Action, e.Status, e.Message)
	}
	return fmt.Sprintf("cloud: %s network error: %s", e.Action, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable cloud failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	return false
}

// IsRejected reports whether err is a server-side rejection of a
// command value (HTTP 400 or 422 on a parameter endpoint).
func IsRejected(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 400 || apiErr.Status == 422
	}
	return false
}
