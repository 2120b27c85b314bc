// Package logging builds the slog loggers used across hoist.
//
// It provides console and JSON handlers, attribute helpers with
// standardized field names, and a no-op logger for tests. Components
// receive a *slog.Logger tagged with their component name via
// NewComponentLogger.
package logging
