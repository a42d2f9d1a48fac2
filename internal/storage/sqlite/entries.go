package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
)

// reader implements storage.Reader on a querier.
type reader struct{ q querier }

type scanner interface{ Scan(dest ...any) error }

// --- accounts ---

func (r reader) Account(ctx context.Context, number string) (ledger.Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx,
		`SELECT number, name, type, created_at FROM accounts WHERE number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, fmt.Errorf("%w: account %s", errs.ErrNotFound, number)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account %s: %w", number, err)
	}
	return a, nil
}

func (r reader) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT number, name, type, created_at FROM accounts ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(sc scanner) (ledger.Account, error) {
	var a ledger.Account
	var typ, created string
	if err := sc.Scan(&a.Number, &a.Name, &typ, &created); err != nil {
		return ledger.Account{}, err
	}
	a.Type = ledger.AccountType(typ)
	a.CreatedAt = parseTS(created)
	return a, nil
}

func (t *tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO accounts (number, name, type, created_at) VALUES (?, ?, ?, ?)`,
		a.Number, a.Name, string(a.Type), formatTS(a.CreatedAt))
	return mapConstraint(err, errs.ErrAlreadyExists, "account %s", a.Number)
}

// --- entries ---

const entryColumns = `id, entry_number, booking_date, document_date, debit_account, credit_account,
	amount_minor, currency, description, source_type, source_id, is_storno, storno_of_id,
	locked, created_by, created_at`

func scanEntry(sc scanner) (ledger.Entry, error) {
	var (
		e                  ledger.Entry
		booking, created   string
		currency, source   string
		docDate, sourceID  sql.NullString
		stornoOf           uuid.NullUUID
		minor              int64
		isStorno, isLocked int
	)
	if err := sc.Scan(&e.ID, &e.EntryNumber, &booking, &docDate, &e.DebitAccount, &e.CreditAccount,
		&minor, &currency, &e.Description, &source, &sourceID, &isStorno, &stornoOf,
		&isLocked, &e.CreatedBy, &created); err != nil {
		return ledger.Entry{}, err
	}
	var err error
	if e.BookingDate, err = parseDate(booking); err != nil {
		return ledger.Entry{}, err
	}
	if e.DocumentDate, err = parseNullDate(docDate); err != nil {
		return ledger.Entry{}, err
	}
	if e.Amount, err = ledger.FromMinor(currency, minor); err != nil {
		return ledger.Entry{}, err
	}
	e.SourceType = ledger.SourceType(source)
	e.SourceID = sourceID.String
	e.IsStorno = isStorno == 1
	if stornoOf.Valid {
		id := stornoOf.UUID
		e.StornoOfID = &id
	}
	e.Locked = isLocked == 1
	e.CreatedAt = parseTS(created)
	return e, nil
}

func (r reader) entry(ctx context.Context, what string, query string, args ...any) (ledger.Entry, error) {
	e, err := scanEntry(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("%w: %s", errs.ErrNotFound, what)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get %s: %w", what, err)
	}
	return e, nil
}

func (r reader) Entry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return r.entry(ctx, "entry "+id.String(),
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
}

func (r reader) EntryBySource(ctx context.Context, key ledger.SourceKey) (ledger.Entry, error) {
	return r.entry(ctx, "entry for source "+key.String(),
		`SELECT `+entryColumns+` FROM entries
		WHERE id = (SELECT entry_id FROM entry_sources WHERE source_type = ? AND source_id = ?)`,
		string(key.Type), key.ID)
}

func (r reader) StornoOf(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return r.entry(ctx, "storno of "+id.String(),
		`SELECT `+entryColumns+` FROM entries WHERE storno_of_id = ?`, id)
}

func entryQuery(f ledger.EntryFilter) (string, []any) {
	var where []string
	var args []any
	if f.AccountNumber != "" {
		where = append(where, `(debit_account = ? OR credit_account = ?)`)
		args = append(args, f.AccountNumber, f.AccountNumber)
	}
	if f.Range != nil {
		if !f.Range.From.IsZero() {
			where = append(where, `booking_date >= ?`)
			args = append(args, formatDate(f.Range.From))
		}
		where = append(where, `booking_date <= ?`)
		args = append(args, formatDate(f.Range.To))
	}
	if f.SourceType != "" {
		where = append(where, `source_type = ?`)
		args = append(args, string(f.SourceType))
	}
	q := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return q + ` ORDER BY booking_date, entry_number`, args
}

func (r reader) Entries(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		query, args := entryQuery(f)
		rows, err := r.q.QueryContext(ctx, query, args...)
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

func (t *tx) InsertEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	var next int64
	if err := t.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(entry_number), 0) + 1 FROM entries`).Scan(&next); err != nil {
		return ledger.Entry{}, fmt.Errorf("next entry number: %w", err)
	}
	e.EntryNumber = next
	e.BookingDate = ledger.Day(e.BookingDate)

	var sourceID any
	if e.SourceID != "" {
		sourceID = e.SourceID
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntryNumber, formatDate(e.BookingDate), nullDate(e.DocumentDate), e.DebitAccount, e.CreditAccount,
		e.Minor(), e.Amount.Curr().Code(), e.Description, string(e.SourceType), sourceID, boolInt(e.IsStorno), e.StornoOfID,
		boolInt(e.Locked), e.CreatedBy, formatTS(e.CreatedAt))
	if err != nil {
		return ledger.Entry{}, mapConstraint(err, errs.ErrConflict, "insert entry %s", e.ID)
	}
	if key, ok := e.Key(); ok {
		_, err := t.q.ExecContext(ctx,
			`INSERT INTO entry_sources (source_type, source_id, entry_id) VALUES (?, ?, ?)`,
			string(key.Type), key.ID, e.ID)
		if err != nil {
			return ledger.Entry{}, mapConstraint(err, errs.ErrConflict, "source %s already booked", key)
		}
	}
	return e, nil
}

func (t *tx) ReleaseSource(ctx context.Context, key ledger.SourceKey) error {
	_, err := t.q.ExecContext(ctx,
		`DELETE FROM entry_sources WHERE source_type = ? AND source_id = ?`, string(key.Type), key.ID)
	if err != nil {
		return fmt.Errorf("release source %s: %w", key, err)
	}
	return nil
}

func (t *tx) LockEntries(ctx context.Context, r ledger.DateRange) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE entries SET locked = 1 WHERE booking_date >= ? AND booking_date <= ? AND locked = 0`,
		formatDate(r.From), formatDate(r.To))
	if err != nil {
		return 0, fmt.Errorf("lock entries: %w", err)
	}
	return res.RowsAffected()
}
