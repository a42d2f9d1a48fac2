package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
)

// reader implements storage.Reader on a pool or a transaction.
type reader struct{ q querier }

// --- Account reads/writes ---

func (r reader) Account(ctx context.Context, number string) (ledger.Account, error) {
	var a ledger.Account
	err := r.q.QueryRow(ctx, `
		select number, name, type, created_at from accounts where number = $1
	`, number).Scan(&a.Number, &a.Name, &a.Type, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: account %s", errs.ErrNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account %s: %w", number, err)
	}
	return a, nil
}

func (r reader) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := r.q.Query(ctx, `select number, name, type, created_at from accounts order by number`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.Number, &a.Name, &a.Type, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.q.Exec(ctx, `
		insert into accounts (number, name, type, created_at) values ($1, $2, $3, $4)
	`, a.Number, a.Name, string(a.Type), a.CreatedAt)
	return mapConstraint(err, errs.ErrAlreadyExists, "account %s", a.Number)
}

// --- Entry reads ---

const entryColumns = `id, entry_number, booking_date, document_date, debit_account, credit_account,
	amount_minor, currency, description, source_type, source_id, is_storno, storno_of_id,
	locked, created_by, created_at`

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		e        ledger.Entry
		minor    int64
		currency string
		sourceID *string
		stornoOf uuid.NullUUID
	)
	if err := row.Scan(&e.ID, &e.EntryNumber, &e.BookingDate, &e.DocumentDate, &e.DebitAccount, &e.CreditAccount,
		&minor, &currency, &e.Description, &e.SourceType, &sourceID, &e.IsStorno, &stornoOf,
		&e.Locked, &e.CreatedBy, &e.CreatedAt); err != nil {
		return ledger.Entry{}, err
	}
	amt, err := ledger.FromMinor(strings.TrimSpace(currency), minor)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Amount = amt
	e.BookingDate = ledger.Day(e.BookingDate)
	if sourceID != nil {
		e.SourceID = *sourceID
	}
	if stornoOf.Valid {
		id := stornoOf.UUID
		e.StornoOfID = &id
	}
	return e, nil
}

func (r reader) entry(ctx context.Context, what, query string, args ...any) (ledger.Entry, error) {
	e, err := scanEntry(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("%w: %s", errs.ErrNotFound, what)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get %s: %w", what, err)
	}
	return e, nil
}

func (r reader) Entry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return r.entry(ctx, "entry "+id.String(), `select `+entryColumns+` from entries where id = $1`, id)
}

func (r reader) EntryBySource(ctx context.Context, key ledger.SourceKey) (ledger.Entry, error) {
	return r.entry(ctx, "entry for source "+key.String(), `
		select `+entryColumns+` from entries
		where id = (select entry_id from entry_sources where source_type = $1 and source_id = $2)
	`, string(key.Type), key.ID)
}

func (r reader) StornoOf(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return r.entry(ctx, "storno of "+id.String(), `select `+entryColumns+` from entries where storno_of_id = $1`, id)
}

func entryQuery(f ledger.EntryFilter) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.AccountNumber != "" {
		p := arg(f.AccountNumber)
		where = append(where, `(debit_account = `+p+` or credit_account = `+p+`)`)
	}
	if f.Range != nil {
		if !f.Range.From.IsZero() {
			where = append(where, `booking_date >= `+arg(ledger.Day(f.Range.From)))
		}
		where = append(where, `booking_date <= `+arg(ledger.Day(f.Range.To)))
	}
	if f.SourceType != "" {
		where = append(where, `source_type = `+arg(string(f.SourceType)))
	}
	q := `select ` + entryColumns + ` from entries`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, ` and `)
	}
	return q + ` order by booking_date, entry_number`, args
}

// Entries streams rows straight from the cursor. Inside a transaction the
// sequence must be drained before the next statement runs on that tx.
func (r reader) Entries(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		query, args := entryQuery(f)
		rows, err := r.q.Query(ctx, query, args...)
		if err != nil {
			yield(ledger.Entry{}, fmt.Errorf("query entries: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				yield(ledger.Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(ledger.Entry{}, err)
		}
	}
}

// --- Entry writes ---

func (t *tx) InsertEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	e.BookingDate = ledger.Day(e.BookingDate)
	var sourceID *string
	if e.SourceID != "" {
		sourceID = &e.SourceID
	}
	err := t.q.QueryRow(ctx, `
		insert into entries (id, booking_date, document_date, debit_account, credit_account, amount_minor,
			currency, description, source_type, source_id, is_storno, storno_of_id, locked, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		returning entry_number
	`, e.ID, e.BookingDate, dateOrNil(e.DocumentDate), e.DebitAccount, e.CreditAccount, e.Minor(),
		e.Amount.Curr().Code(), e.Description, string(e.SourceType), sourceID, e.IsStorno, e.StornoOfID,
		e.Locked, e.CreatedBy, e.CreatedAt).Scan(&e.EntryNumber)
	if err != nil {
		return ledger.Entry{}, mapConstraint(err, errs.ErrConflict, "insert entry %s", e.ID)
	}
	if key, ok := e.Key(); ok {
		_, err := t.q.Exec(ctx, `
			insert into entry_sources (source_type, source_id, entry_id) values ($1, $2, $3)
		`, string(key.Type), key.ID, e.ID)
		if err != nil {
			return ledger.Entry{}, mapConstraint(err, errs.ErrConflict, "source %s already booked", key)
		}
	}
	return e, nil
}

func (t *tx) ReleaseSource(ctx context.Context, key ledger.SourceKey) error {
	if _, err := t.q.Exec(ctx, `
		delete from entry_sources where source_type = $1 and source_id = $2
	`, string(key.Type), key.ID); err != nil {
		return fmt.Errorf("release source %s: %w", key, err)
	}
	return nil
}

func (t *tx) LockEntries(ctx context.Context, r ledger.DateRange) (int64, error) {
	ct, err := t.q.Exec(ctx, `
		update entries set locked = true
		where booking_date between $1 and $2 and not locked
	`, ledger.Day(r.From), ledger.Day(r.To))
	if err != nil {
		return 0, fmt.Errorf("lock entries: %w", err)
	}
	return ct.RowsAffected(), nil
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ledger.Day(*t)
}
