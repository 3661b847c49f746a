package postgres

import (
	"context"
	"fmt"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
)

// RunStore records run start, per-status target counts and completion. It is
// a progress.Sink and shares the pool of an IntelStore; it never closes it.
type RunStore struct {
	db     DB
	tables tables
}

// NewRunStore wraps db.
func NewRunStore(db DB, tablePrefix string) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := tableNames(tablePrefix)
	if err != nil {
		return nil, err
	}
	return &RunStore{db: db, tables: t}, nil
}

// Consume implements progress.Sink.
func (s *RunStore) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		var err error
		switch evt.Stage {
		case progress.StageRunStart:
			err = s.startRun(ctx, evt)
		case progress.StageTargetDone:
			err = s.countTarget(ctx, evt)
		case progress.StageRunDone:
			err = s.finishRun(ctx, evt)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *RunStore) Close(context.Context) error {
	return nil
}

func (s *RunStore) startRun(ctx context.Context, evt progress.Event) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, started_at, targets)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, s.tables.runs)
	if _, err := s.db.Exec(ctx, query, evt.RunID, evt.TS, evt.Total); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) countTarget(ctx context.Context, evt progress.Event) error {
	var column string
	switch evt.Status {
	case intel.StatusSuccess:
		column = "succeeded"
	case intel.StatusPartial:
		column = "partial"
	case intel.StatusFailed:
		column = "failed"
	default:
		return fmt.Errorf("unknown target status: %s", evt.Status)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id = $1`, s.tables.runs, column, column)
	if _, err := s.db.Exec(ctx, query, evt.RunID); err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	return nil
}

func (s *RunStore) finishRun(ctx context.Context, evt progress.Event) error {
	query := fmt.Sprintf(`UPDATE %s SET finished_at = $1 WHERE id = $2`, s.tables.runs)
	if _, err := s.db.Exec(ctx, query, evt.TS, evt.RunID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
