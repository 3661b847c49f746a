// Package sinks implements progress consumers: structured logs, Prometheus
// counters and a terminal progress bar.
package sinks
