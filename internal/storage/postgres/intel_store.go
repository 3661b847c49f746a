// Package postgres provides Postgres-backed persistence for dealership records
// and run bookkeeping.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/storage"
)

var validPrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN string
	// TablePrefix names the tables <prefix>_dealerships, <prefix>_contacts
	// and <prefix>_runs.
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of pgxpool.Pool the stores use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Open connects a pool for cfg.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

type tables struct {
	dealerships string
	contacts    string
	runs        string
}

func tableNames(prefix string) (tables, error) {
	if prefix == "" {
		prefix = "intel"
	}
	if !validPrefix.MatchString(prefix) {
		return tables{}, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return tables{
		dealerships: prefix + "_dealerships",
		contacts:    prefix + "_contacts",
		runs:        prefix + "_runs",
	}, nil
}

// IntelStore writes dealership records and their contacts. The full record is
// kept as JSONB next to the queryable columns.
type IntelStore struct {
	db     DB
	tables tables
}

// NewIntelStore wraps db. The store takes ownership of db and closes it.
func NewIntelStore(db DB, tablePrefix string) (*IntelStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := tableNames(tablePrefix)
	if err != nil {
		return nil, err
	}
	return &IntelStore{db: db, tables: t}, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *IntelStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema(s.tables) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func schema(t tables) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	company_name TEXT NOT NULL,
	status TEXT NOT NULL,
	platform TEXT NOT NULL,
	fallback_used BOOLEAN NOT NULL,
	contact_count INTEGER NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	record JSONB NOT NULL
)`, t.dealerships),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	dealership_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	title TEXT,
	email TEXT,
	phone TEXT,
	seniority TEXT,
	category TEXT,
	sources TEXT NOT NULL,
	validation TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (dealership_id, position)
)`, t.contacts, t.dealerships),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	targets INTEGER NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	partial INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
)`, t.runs),
	}
}

// Ping checks the connection.
func (s *IntelStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *IntelStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// Write upserts rec and replaces its contacts in one transaction.
func (s *IntelStore) Write(ctx context.Context, rec intel.DealershipIntel) (err error) {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	upsert := fmt.Sprintf(`
INSERT INTO %s (
	id, run_id, domain, company_name, status, platform,
	fallback_used, contact_count, started_at, completed_at, record
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	company_name = EXCLUDED.company_name,
	status = EXCLUDED.status,
	platform = EXCLUDED.platform,
	fallback_used = EXCLUDED.fallback_used,
	contact_count = EXCLUDED.contact_count,
	started_at = EXCLUDED.started_at,
	completed_at = EXCLUDED.completed_at,
	record = EXCLUDED.record`, s.tables.dealerships)
	if _, err = tx.Exec(ctx, upsert,
		rec.ID,
		rec.RunID,
		rec.Domain,
		rec.CompanyName,
		string(rec.Status),
		rec.Platform.Name,
		rec.Fallback.Invoked,
		len(rec.Contacts),
		rec.StartedAt,
		rec.CompletedAt,
		payload,
	); err != nil {
		return fmt.Errorf("upsert dealership: %w", err)
	}

	if _, err = tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE dealership_id = $1`, s.tables.contacts), rec.ID); err != nil {
		return fmt.Errorf("clear contacts: %w", err)
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (
	dealership_id, position, name, title, email, phone,
	seniority, category, sources, validation, score
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, s.tables.contacts)
	for i, c := range rec.Contacts {
		if _, err = tx.Exec(ctx, insert,
			rec.ID,
			i,
			c.Name,
			c.Title,
			c.Email,
			c.Phone,
			c.Seniority,
			c.Category,
			joinSources(c.Sources, c.Source),
			string(c.Validation),
			c.Score,
		); err != nil {
			return fmt.Errorf("insert contact %d: %w", i, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get loads the record stored under id or returns storage.ErrNotFound.
func (s *IntelStore) Get(ctx context.Context, id string) (intel.DealershipIntel, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, s.tables.dealerships)
	var payload []byte
	if err := s.db.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return intel.DealershipIntel{}, storage.ErrNotFound
		}
		return intel.DealershipIntel{}, fmt.Errorf("get dealership: %w", err)
	}
	var rec intel.DealershipIntel
	if err := json.Unmarshal(payload, &rec); err != nil {
		return intel.DealershipIntel{}, fmt.Errorf("decode dealership: %w", err)
	}
	return rec, nil
}

func joinSources(sources []intel.Source, primary intel.Source) string {
	if len(sources) == 0 {
		return string(primary)
	}
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = string(src)
	}
	return strings.Join(parts, ",")
}
