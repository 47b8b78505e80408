// Package postgres provides a Postgres-backed checkpoint store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagevet/pagevet/internal/audit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for checkpoints.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists scan checkpoints in a single-row-per-scan table with jsonb
// batch and result columns.
type Store struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed checkpoint store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "scan_checkpoints"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "scan_checkpoints"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save upserts the checkpoint row for the scan.
func (s *Store) Save(ctx context.Context, cp audit.Checkpoint) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("checkpoint store is not configured")
	}
	if cp.ScanID == "" {
		return fmt.Errorf("%w: checkpoint scan id is required", audit.ErrInvalidInput)
	}
	batchesJSON, err := json.Marshal(cp.Batches)
	if err != nil {
		return fmt.Errorf("marshal batches: %w", err)
	}
	resultsJSON, err := json.Marshal(cp.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (scan_id, url, batches, results, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (scan_id) DO UPDATE
SET url = EXCLUDED.url,
    batches = EXCLUDED.batches,
    results = EXCLUDED.results,
    updated_at = now()`, s.table)

	if _, err := s.pool.Exec(ctx, query, cp.ScanID, cp.URL, batchesJSON, resultsJSON); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Load fetches the checkpoint for a scan, returning audit.ErrNotFound when
// no row exists.
func (s *Store) Load(ctx context.Context, scanID string) (audit.Checkpoint, error) {
	if s == nil || s.pool == nil {
		return audit.Checkpoint{}, fmt.Errorf("checkpoint store is not configured")
	}
	query := fmt.Sprintf(
		`SELECT url, batches, results FROM %s WHERE scan_id = $1`, s.table)

	var (
		url         string
		batchesJSON []byte
		resultsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, scanID).Scan(&url, &batchesJSON, &resultsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Checkpoint{}, fmt.Errorf("checkpoint for scan %s: %w", scanID, audit.ErrNotFound)
	}
	if err != nil {
		return audit.Checkpoint{}, fmt.Errorf("select checkpoint: %w", err)
	}

	cp := audit.Checkpoint{ScanID: scanID, URL: url}
	if err := json.Unmarshal(batchesJSON, &cp.Batches); err != nil {
		return audit.Checkpoint{}, fmt.Errorf("unmarshal batches: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &cp.Results); err != nil {
		return audit.Checkpoint{}, fmt.Errorf("unmarshal results: %w", err)
	}
	return cp, nil
}

// Clear deletes the checkpoint row for a scan. Deleting a missing row is not
// an error.
func (s *Store) Clear(ctx context.Context, scanID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("checkpoint store is not configured")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE scan_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, scanID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
