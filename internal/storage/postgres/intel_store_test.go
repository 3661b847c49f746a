package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/storage"
)

func sampleRecord() intel.DealershipIntel {
	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return intel.DealershipIntel{
		ID:          "rec-1",
		RunID:       "run-1",
		Target:      intel.Target{URL: "https://example-motors.com", Name: "Example Motors"},
		Domain:      "example-motors.com",
		CompanyName: "Example Motors",
		Status:      intel.StatusSuccess,
		Platform:    intel.Platform{Name: "dealer.com", Confidence: 0.9, Method: "signature"},
		Contacts: []intel.ScoredContact{{
			ContactCandidate: intel.ContactCandidate{
				Name:    "Jane Doe",
				Title:   "General Manager",
				Email:   "jane@example-motors.com",
				Phone:   "555-123-4567",
				Source:  intel.SourceCrawl,
				Sources: []intel.Source{intel.SourceCrawl, intel.SourceFallback},
			},
			Seniority:  "c-suite",
			Category:   "management",
			Validation: intel.ValidationValid,
			Checks:     []intel.Check{{Name: "email_syntax", Outcome: intel.Pass}},
			Score:      90,
		}},
		Fallback:    intel.FallbackUsage{Needed: true, Invoked: true, Strategy: intel.StrategyDomain, APICalls: 2},
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	}
}

func newStore(t *testing.T) (*IntelStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewIntelStore(mock, "intel")
	require.NoError(t, err)
	return store, mock
}

func TestIntelStoreWriteUpsertsRecordAndContacts(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO intel_dealerships").
		WithArgs(
			rec.ID,
			rec.RunID,
			rec.Domain,
			rec.CompanyName,
			"success",
			"dealer.com",
			true,
			1,
			rec.StartedAt,
			rec.CompletedAt,
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM intel_contacts").
		WithArgs(rec.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO intel_contacts").
		WithArgs(
			rec.ID,
			0,
			"Jane Doe",
			"General Manager",
			"jane@example-motors.com",
			"555-123-4567",
			"c-suite",
			"management",
			"crawl,fallback",
			"valid",
			90.0,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Write(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntelStoreWriteRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO intel_dealerships").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Write(context.Background(), sampleRecord())
	require.ErrorContains(t, err, "upsert dealership")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntelStoreWriteRequiresID(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	err := store.Write(context.Background(), intel.DealershipIntel{})
	require.ErrorContains(t, err, "record id is required")
}

func TestIntelStoreGet(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	rec := sampleRecord()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record FROM intel_dealerships").
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(payload))
	mock.ExpectQuery("SELECT record FROM intel_dealerships").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.CompanyName, got.CompanyName)
	require.Len(t, got.Contacts, 1)
	assert.Equal(t, intel.Pass, got.Contacts[0].Checks[0].Outcome)

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntelStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	for _, table := range []string{"intel_dealerships", "intel_contacts", "intel_runs"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewIntelStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewIntelStore(nil, "intel")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewIntelStore(mock, "intel; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table prefix")
}

func TestJoinSources(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "crawl", joinSources(nil, intel.SourceCrawl))
	assert.Equal(t, "crawl,fallback", joinSources([]intel.Source{intel.SourceCrawl, intel.SourceFallback}, intel.SourceCrawl))
}
