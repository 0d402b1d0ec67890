package breezer

import (
	"sync"
	"time"
)

// PendingCommand is one outstanding locally issued instruction. It
// masks the polled value for its field until confirmed or expired.
type PendingCommand struct {
	Field     Field
	Value     any
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tracker holds pending commands per (device, field).
//
// Invariant: at most one PendingCommand per (device, field). A newer
// command for the same field supersedes the prior one.
//
// Thread Safety: Record and ApplyOverlay are atomic with respect to
// each other. A command recorded mid-poll either is or is not visible
// to that poll, never partially.
type Tracker struct {
	mu          sync.Mutex
	guardWindow time.Duration
	pending     map[string]map[Field]PendingCommand
}

// NewTracker creates a tracker with the given guard window. The window
// should cover one full poll interval plus device actuation delay.
func NewTracker(guardWindow time.Duration) *Tracker {
	return &Tracker{
		guardWindow: guardWindow,
		pending:     make(map[string]map[Field]PendingCommand),
	}
}

// Record registers a pending command, replacing any prior one for the
// same (device, field) pair.
func (t *Tracker) Record(deviceID string, field Field, value any, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields, ok := t.pending[deviceID]
	if !ok {
		fields = make(map[Field]PendingCommand)
		t.pending[deviceID] = fields
	}
	fields[field] = PendingCommand{
		Field:     field,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(t.guardWindow),
	}
}

// ApplyOverlay merges live pending commands onto a polled snapshot.
//
// For each field with a live pending command the returned state carries
// the commanded value instead of the polled one. A pending command is
// retired when either its expiry elapses or the polled value already
// equals the commanded value (confirmation) - whichever comes first, so
// subsequent genuine external changes are never masked.
func (t *Tracker) ApplyOverlay(deviceID string, polled DeviceState, now time.Time) DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields, ok := t.pending[deviceID]
	if !ok {
		return polled
	}

	state := polled
	for field, cmd := range fields {
		if !now.Before(cmd.ExpiresAt) {
			delete(fields, field)
			continue
		}
		if polled.fieldValue(field) == cmd.Value {
			// Confirmed: the device applied the command.
			delete(fields, field)
			continue
		}
		state = state.withField(field, cmd.Value)
	}
	if len(fields) == 0 {
		delete(t.pending, deviceID)
	}
	return state
}

// Prune drops expired pending commands for all devices.
func (t *Tracker) Prune(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for deviceID, fields := range t.pending {
		for field, cmd := range fields {
			if !now.Before(cmd.ExpiresAt) {
				delete(fields, field)
			}
		}
		if len(fields) == 0 {
			delete(t.pending, deviceID)
		}
	}
}

// PendingCount returns the number of live pending commands across all
// devices. Exposed for diagnostics.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, fields := range t.pending {
		n += len(fields)
	}
	return n
}
