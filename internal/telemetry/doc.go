// Package telemetry owns Prometheus metrics, the /metrics and /healthz HTTP
// server, and OpenTelemetry tracer setup.
package telemetry
