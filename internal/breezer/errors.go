package breezer

import (
	"errors"
	"fmt"
)

// Domain-specific errors for the reconciliation core.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when an operation references a
	// device the coordinator has never seen.
	ErrDeviceNotFound = errors.New("breezer: device not found")

	// ErrCoordinatorStopped is returned when an operation is attempted
	// on a stopped coordinator.
	ErrCoordinatorStopped = errors.New("breezer: coordinator stopped")

	// ErrUnknownField is returned for commands targeting a field the
	// core does not manage.
	ErrUnknownField = errors.New("breezer: unknown command field")
)

// ValidationError indicates a command value outside its field's domain,
// either rejected locally before any network call or by the server.
//
// It is surfaced synchronously to the caller; no retry, no state
// mutation, no pending command recorded.
type ValidationError struct {
	Field   Field
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("breezer: invalid %s value %v: %s", e.Field, e.Value, e.Message)
}
