// Package otel publishes orchestrator metrics through an OpenTelemetry
// meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per resolve latency bucket. A single callback reads
// [multiauth.Orchestrator.MetricsSnapshot] each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate orchestrator state.
package otel
