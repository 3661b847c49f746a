// Package progress carries per-target lifecycle events from the pipeline to
// pluggable sinks. Emitters never block: a Hub batches events on a background
// goroutine and fans them out to the log, metrics and CLI progress-bar sinks.
package progress
