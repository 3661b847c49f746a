package sinks

import (
	"context"

	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
)

// MetricsSink counts finished targets and loaded pages in the process-wide
// Prometheus collectors.
type MetricsSink struct{}

// NewMetricsSink returns a MetricsSink.
func NewMetricsSink() *MetricsSink {
	metrics.Init()
	return &MetricsSink{}
}

// Consume implements progress.Sink.
func (*MetricsSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageTargetDone:
			metrics.ObserveTarget(string(evt.Status))
		case progress.StagePageDone:
			metrics.ObservePage(string(evt.StatusClass))
		}
	}
	return nil
}

// Close implements progress.Sink.
func (*MetricsSink) Close(context.Context) error {
	return nil
}
