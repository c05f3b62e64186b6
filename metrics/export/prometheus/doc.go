// Package prometheus exposes orchestrator metrics as a
// prometheus.Collector.
//
// [NewCollector] reads [multiauth.Orchestrator.MetricsSnapshot] on every
// scrape and emits one counter per metric plus the resolve latency
// histogram. Series are named multiauth_*.
//
// # What this package must NOT do
//
//   - Register in the default Prometheus registry; callers choose the registry.
//   - Mutate orchestrator state.
package prometheus
