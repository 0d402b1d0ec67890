// Package logging provides structured logging for Breeze Core.
//
// It wraps the standard library's log/slog with configuration-driven
// setup (level, format, destination) and default service/version fields
// attached to every record.
package logging
