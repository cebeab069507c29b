// Package logging assembles structured slog loggers and formatting helpers used
// across screencap.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so recorder code can tag log lines with the
// recording session ID and lifecycle stage. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
