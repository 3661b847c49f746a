package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Page events are logged at debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Target != "" {
			fields = append(fields, zap.String("target", evt.Target), zap.String("domain", evt.Domain))
		}
		switch evt.Stage {
		case progress.StageRunStart:
			fields = append(fields, zap.Int("targets", evt.Total))
		case progress.StageTargetState:
			fields = append(fields, zap.String("state", string(evt.State)))
		case progress.StagePageDone:
			fields = append(fields, zap.String("url", evt.URL), zap.String("status_class", string(evt.StatusClass)))
		case progress.StageTargetDone, progress.StageFallback:
			fields = append(fields, zap.String("status", string(evt.Status)), zap.Int("contacts", evt.Contacts))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StagePageDone || evt.Stage == progress.StageTargetState {
			s.logger.Debug("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
