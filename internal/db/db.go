// Package db provides PostgreSQL access to the song catalog.
package db

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	// ErrNotFound is returned when no row matches, including an empty catalog.
	ErrNotFound = errors.New("not found")

	// ErrStore marks failures talking to the catalog store.
	ErrStore = errors.New("catalog store error")
)

// querier is the subset of pgxpool.Pool used by the repositories.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
	q    querier
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, storeError(err, "parsing database URL")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, storeError(err, "creating connection pool")
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeError(err, "pinging database")
	}

	return &DB{pool: pool, q: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Songs returns a SongRepository.
func (db *DB) Songs() *SongRepository {
	return &SongRepository{q: db.q}
}

// Reports returns a ReportRepository.
func (db *DB) Reports() *ReportRepository {
	return &ReportRepository{q: db.q}
}

// storeError wraps err with msg and marks it as ErrStore.
func storeError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrStore)
}
