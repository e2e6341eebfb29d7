// Package main hosts the courtclip CLI entrypoint and command graph.
//
// The Cobra command tree covers the finishing run, the supervisor loop, the
// AMQP worker, on-demand index and metrics refreshes, heartbeats, status
// reporting and configuration scaffolding. Configuration resolution, logging
// and collaborator wiring live here so the internal packages stay free of
// process-level concerns.
package main
