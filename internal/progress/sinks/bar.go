package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/savvydealer-adam/dealership-intel/internal/progress"
)

// BarSink renders a terminal progress bar advancing once per finished target.
type BarSink struct {
	bar *progressbar.ProgressBar
}

// NewBarSink draws to w. The total is taken from the RUN_START event.
func NewBarSink(w io.Writer) *BarSink {
	return &BarSink{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("dealerships"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

// Consume implements progress.Sink.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.bar.ChangeMax(evt.Total)
		case progress.StageTargetDone:
			s.bar.Describe(fmt.Sprintf("%s (%s)", evt.Domain, evt.Status))
			if err := s.bar.Add(1); err != nil {
				return fmt.Errorf("advance progress bar: %w", err)
			}
		}
	}
	return nil
}

// Done reports how many targets have finished.
func (s *BarSink) Done() int64 {
	return s.bar.State().CurrentNum
}

// Close finishes the bar.
func (s *BarSink) Close(context.Context) error {
	if err := s.bar.Finish(); err != nil {
		return fmt.Errorf("finish progress bar: %w", err)
	}
	return nil
}
