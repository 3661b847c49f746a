package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/progress"
)

func TestRunStoreConsume(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "intel")
	require.NoError(t, err)

	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	done := start.Add(5 * time.Minute)

	mock.ExpectExec("INSERT INTO intel_runs").
		WithArgs("run-1", start, 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE intel_runs SET succeeded = succeeded + 1")).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE intel_runs SET failed = failed + 1")).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE intel_runs SET finished_at").
		WithArgs(done, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	batch := []progress.Event{
		{RunID: "run-1", TS: start, Stage: progress.StageRunStart, Total: 2},
		{RunID: "run-1", TS: start, Stage: progress.StageTargetStart, Target: "https://a.com"},
		{RunID: "run-1", TS: start, Stage: progress.StageTargetDone, Target: "https://a.com", Status: intel.StatusSuccess},
		{RunID: "run-1", TS: start, Stage: progress.StagePageDone, URL: "https://b.com/", StatusClass: progress.Status2xx},
		{RunID: "run-1", TS: start, Stage: progress.StageTargetDone, Target: "https://b.com", Status: intel.StatusFailed},
		{RunID: "run-1", TS: done, Stage: progress.StageRunDone},
	}
	require.NoError(t, store.Consume(context.Background(), batch))
	require.NoError(t, store.Close(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	err = store.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", TS: time.Now(), Stage: progress.StageTargetDone, Target: "https://a.com", Status: "bogus"},
	})
	require.ErrorContains(t, err, "unknown target status")
}
