// Package telemetry groups the observability subpackages of the gateway.
//
//   - logging: slog construction with context request-id propagation
//   - metrics: Prometheus collectors for admissions, evictions, and
//     proxied responses
package telemetry
