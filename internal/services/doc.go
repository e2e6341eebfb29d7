// Package services defines shared utilities consumed by the finishing stages,
// the supervisor, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp asset names, stage names, run ids, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (invalid name, transient I/O, encode failure, partial publish,
//     orchestrator query failure, registry corruption) with errors.Is.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
