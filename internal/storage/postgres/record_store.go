// Package postgres provides a Postgres-backed record store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for DA rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RecordStore writes DA rows into Postgres.
type RecordStore struct {
	pool  pool
	table string
}

// NewRecordStore connects, then creates the table and its date index if missing.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
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
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "data"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// Migrate creates the records table and date index when absent.
func (s *RecordStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	council_reference TEXT PRIMARY KEY,
	address           TEXT NOT NULL,
	description       TEXT NOT NULL,
	info_url          TEXT NOT NULL DEFAULT '',
	date_scraped      DATE NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_date_scraped_idx ON %[1]s (date_scraped)`, s.table)
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("create index on %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Upsert inserts the record or overwrites the existing row with the same reference.
func (s *RecordStore) Upsert(ctx context.Context, record da.Record) error {
	query := fmt.Sprintf(`
INSERT INTO %s (council_reference, address, description, info_url, date_scraped)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (council_reference) DO UPDATE SET
	address = EXCLUDED.address,
	description = EXCLUDED.description,
	info_url = EXCLUDED.info_url,
	date_scraped = EXCLUDED.date_scraped`, s.table)

	args := []any{
		record.CouncilReference,
		record.Address,
		record.Description,
		record.InfoURL,
		da.DateOf(record.DateScraped),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", record.CouncilReference, err)
	}
	return nil
}

// CountOlderThan returns how many rows predate cutoff and the oldest such date.
func (s *RecordStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, time.Time, error) {
	query := fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(MIN(date_scraped), DATE '0001-01-01') FROM %s WHERE date_scraped < $1`,
		s.table,
	)
	var (
		count  int64
		oldest time.Time
	)
	if err := s.pool.QueryRow(ctx, query, da.DateOf(cutoff)).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("count stale records: %w", err)
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}
	return count, da.DateOf(oldest), nil
}

// DeleteOlderThan removes rows scraped before cutoff.
func (s *RecordStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE date_scraped < $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, da.DateOf(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete stale records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compact vacuums the records table.
func (s *RecordStore) Compact(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("VACUUM %s", s.table)); err != nil {
		return fmt.Errorf("vacuum %s: %w", s.table, err)
	}
	return nil
}
