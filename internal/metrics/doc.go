// Package metrics exposes the relay's observability counters in
// Prometheus format.
//
// The collectors read live values from the hub and the relay controller
// (published/dropped event totals, reader retries, session count,
// controller state), so no instrumentation calls are scattered through
// the pipeline. Handler serves the registry at /metrics.
package metrics
