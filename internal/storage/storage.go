// Package storage defines the repository contract every ledger backend
// (memory, sqlite, postgres) implements. Services depend on these interfaces
// only; a backend is picked once in main.
package storage

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/ledger"
)

// Reader is the read side shared by Store and Tx. Lookups of a single row
// return errs.ErrNotFound when the row is absent.
type Reader interface {
	Account(ctx context.Context, number string) (ledger.Account, error)
	Accounts(ctx context.Context) ([]ledger.Account, error)

	Entry(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
	// EntryBySource returns the entry currently holding the idempotency key.
	EntryBySource(ctx context.Context, key ledger.SourceKey) (ledger.Entry, error)
	// StornoOf returns the storno that reverses id.
	StornoOf(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
	// Entries yields matching entries ordered by (booking date, entry number).
	// Every range re-runs the query.
	Entries(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error]

	Asset(ctx context.Context, id uuid.UUID) (ledger.Asset, error)
	Assets(ctx context.Context) ([]ledger.Asset, error)
	Depreciations(ctx context.Context, year int) ([]ledger.Depreciation, error)
	AssetDepreciations(ctx context.Context, assetID uuid.UUID) ([]ledger.Depreciation, error)

	BalanceSheet(ctx context.Context, year int) (ledger.BalanceSheet, error)
	IncomeStatement(ctx context.Context, year int) (ledger.IncomeStatement, error)
	Closing(ctx context.Context, year int) (ledger.YearEndClosing, error)
}

// Tx is a unit of work. Every write the services perform goes through a Tx.
type Tx interface {
	Reader

	// GuardYear serialises work on one fiscal year until the transaction
	// ends. Postings take it shared; the closing lock takes it exclusive.
	GuardYear(ctx context.Context, year int, exclusive bool) error

	// CreateAccount returns errs.ErrAlreadyExists for a duplicate number.
	CreateAccount(ctx context.Context, a ledger.Account) error

	// InsertEntry persists e, assigns its entry number and claims its source
	// key. A key or storno reference that is already taken yields
	// errs.ErrConflict.
	InsertEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	// ReleaseSource frees a source key so the event can be posted again.
	ReleaseSource(ctx context.Context, key ledger.SourceKey) error
	// LockEntries sets the locked flag on every entry booked within r.
	LockEntries(ctx context.Context, r ledger.DateRange) (int64, error)

	// CreateAsset returns errs.ErrAlreadyExists for a duplicate asset number.
	CreateAsset(ctx context.Context, a ledger.Asset) error
	UpdateAsset(ctx context.Context, a ledger.Asset) error
	// InsertDepreciation returns errs.ErrAlreadyExists for a second row of
	// the same (asset, year).
	InsertDepreciation(ctx context.Context, d ledger.Depreciation) error
	MarkDepreciationBooked(ctx context.Context, id, entryID uuid.UUID) error

	// SaveBalanceSheet and SaveIncomeStatement insert or replace the
	// snapshot of a year.
	SaveBalanceSheet(ctx context.Context, bs ledger.BalanceSheet) error
	SaveIncomeStatement(ctx context.Context, is ledger.IncomeStatement) error
	LockStatements(ctx context.Context, year int) error

	// CreateClosing returns errs.ErrAlreadyExists if the year has a row.
	CreateClosing(ctx context.Context, c ledger.YearEndClosing) error
	UpdateClosing(ctx context.Context, c ledger.YearEndClosing) error
}

// Store is a ledger backend.
type Store interface {
	Reader
	// WithTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Ready verifies the backend is reachable.
	Ready(ctx context.Context) error
	Close() error
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[ledger.Entry, error]) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
