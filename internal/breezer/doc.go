// Package breezer implements the reconciliation core for Atmeex
// ventilation devices.
//
// The central problem: commands are applied optimistically while the
// cloud's polled state is eventually consistent. A poll snapshot taken
// before the device applied a command would make the published value
// flicker back to the old state. The command tracker masks such stale
// reads: each issued command opens a guard window during which the
// commanded value overrides the polled one, retired early once a poll
// confirms it or when the window expires.
//
// Components:
//   - Device / DeviceState: immutable snapshot types (types.go)
//   - Tracker: per-(device, field) pending command records (tracker.go)
//   - Coordinator: interval polling, overlay merge, subscriber fan-out,
//     diagnostics (coordinator.go)
//   - Repository: SQLite persistence of the discovered device catalogue
//     and diagnostics counters (repository.go)
//
// Guarantee: for any field, the published value reflects either the
// most recent unexpired, unconfirmed local command, or the most recent
// poll result once confirmed or expired - never a value older than the
// last confirmed poll for fields with no pending command.
package breezer
