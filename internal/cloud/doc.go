// Package cloud implements the authenticated client for the Atmeex
// cloud REST API.
//
// This package manages:
//   - Login and bearer-token session lifecycle (proactive refresh from
//     the JWT exp claim, one transparent re-login on 401/403)
//   - Device listing and per-field parameter commands
//   - Bounded exponential-backoff retry for transient failures
//   - Error classification (AuthError vs APIError)
//   - Optional WebSocket push channel for real-time device updates
//
// # Session discipline
//
// The session token is the only mutable shared state. It follows a
// single-writer discipline: only the sign-in path replaces it, guarded
// by a mutex, so concurrent polls and commands never race two
// re-authentications against each other.
//
// # Error classification
//
// Callers distinguish failure classes with errors.As:
//
//	var authErr *cloud.AuthError
//	if errors.As(err, &authErr) {
//	    // credentials rejected, prompt for re-authentication
//	}
//
// Transient failures (network errors, 5xx) are retried internally up to
// three attempts before surfacing as *APIError with Transient=true.
// Client errors (4xx other than 401/403) surface immediately.
package cloud
