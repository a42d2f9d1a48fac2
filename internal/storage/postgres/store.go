package postgres

// Package postgres provides the pgx-backed production ledger store.
//
// It is intentionally small and explicit: SQL is written by hand, the schema
// lives in migrations/ and is applied by Migrate, and every write runs inside
// WithTx. Year guards use transaction-scoped advisory locks so a closing lock
// waits for in-flight postings of the same year and vice versa.

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/storage"
)

//go:embed migrations/0001_init.sql
var initSQL string

// yearLockSpace namespaces the advisory locks taken by GuardYear ("LEDG").
const yearLockSpace int32 = 0x4c454447

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store holds a pgx connection pool and implements storage.Store.
// All methods are safe for concurrent use.
type Store struct {
	reader
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{reader: reader{q: pool}, pool: pool}, nil
}

// Migrate applies the embedded schema. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, initSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithTx implements storage.Store at read committed isolation.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{reader: reader{q: pgTx}}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// tx wraps a pgx.Tx and implements storage.Tx.
type tx struct {
	reader
}

// GuardYear takes a transaction-scoped advisory lock on year.
func (t *tx) GuardYear(ctx context.Context, year int, exclusive bool) error {
	fn := "pg_advisory_xact_lock_shared"
	if exclusive {
		fn = "pg_advisory_xact_lock"
	}
	if _, err := t.q.Exec(ctx, `select `+fn+`($1, $2)`, yearLockSpace, int32(year)); err != nil {
		return fmt.Errorf("guard year %d: %w", year, err)
	}
	return nil
}

// mapConstraint turns unique violations into want and foreign key
// violations into errs.ErrValidation.
func mapConstraint(err error, want error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", want, what)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s: unknown reference (%s)", errs.ErrValidation, what, pgErr.ConstraintName)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s: %s", errs.ErrValidation, what, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
