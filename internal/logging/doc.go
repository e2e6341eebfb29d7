// Package logging assembles the slog loggers used across courtclip.
//
// It owns the console and JSON handlers, level parsing and output routing,
// and context helpers that tag log lines with the run ID, asset, stage and
// correlation ID carried on a context. NewNop serves tests and wiring code
// that has no logger to hand.
package logging
