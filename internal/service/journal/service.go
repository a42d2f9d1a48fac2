package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

// Service is the journal: an insert-only sequence of entries, corrected by
// stornos, plus balance helpers over it.
type Service interface {
	ValidateEntry(e ledger.Entry) error
	// Append validates and persists e in its own transaction.
	Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	// AppendTx performs the checks of Append inside tx, so callers can combine
	// it with their own reads and writes.
	AppendTx(ctx context.Context, tx storage.Tx, e ledger.Entry) (ledger.Entry, error)
	// Storno reverses an entry on its own booking date and frees its source
	// key so the business event can be posted again.
	Storno(ctx context.Context, id uuid.UUID, reason, user string) (ledger.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
	Query(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error]
	Export(ctx context.Context, r ledger.DateRange) iter.Seq2[ledger.Entry, error]
	TrialBalance(ctx context.Context, asOf *time.Time) (map[string]money.Amount, error)
	AccountBalance(ctx context.Context, number string, asOf *time.Time) (money.Amount, error)
}

type service struct {
	store    storage.Store
	currency string
	log      *slog.Logger
	now      func() time.Time
}

func New(store storage.Store, currency string, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, currency: currency, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) ValidateEntry(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if code := e.Amount.Curr().Code(); code != s.currency {
		return fmt.Errorf("%w: amount currency %s, ledger keeps %s", errs.ErrValidation, code, s.currency)
	}
	return nil
}

func (s *service) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := s.ValidateEntry(e); err != nil {
		return ledger.Entry{}, err
	}
	var out ledger.Entry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = s.AppendTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	return out, nil
}

func (s *service) AppendTx(ctx context.Context, tx storage.Tx, e ledger.Entry) (ledger.Entry, error) {
	if err := s.ValidateEntry(e); err != nil {
		return ledger.Entry{}, err
	}
	e.BookingDate = ledger.Day(e.BookingDate)
	if err := checkOpen(ctx, tx, e.BookingDate.Year()); err != nil {
		return ledger.Entry{}, err
	}
	for _, number := range []string{e.DebitAccount, e.CreditAccount} {
		if _, err := tx.Account(ctx, number); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return ledger.Entry{}, fmt.Errorf("%w: unknown account %s", errs.ErrValidation, number)
			}
			return ledger.Entry{}, err
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Locked = false
	e.CreatedAt = s.now()
	out, err := tx.InsertEntry(ctx, e)
	if err != nil {
		return ledger.Entry{}, err
	}
	s.log.Debug("entry appended",
		"entry_id", out.ID,
		"entry_number", out.EntryNumber,
		"debit", out.DebitAccount,
		"credit", out.CreditAccount,
		"source_type", out.SourceType,
		"source_id", out.SourceID,
	)
	return out, nil
}

// checkOpen takes the shared year guard and re-reads the closing row inside
// the writing transaction.
func checkOpen(ctx context.Context, tx storage.Tx, year int) error {
	if err := tx.GuardYear(ctx, year, false); err != nil {
		return err
	}
	c, err := tx.Closing(ctx, year)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.Locked() {
		return fmt.Errorf("%w: fiscal year %d is closed", errs.ErrPeriodLocked, year)
	}
	return nil
}

func (s *service) Storno(ctx context.Context, id uuid.UUID, reason, user string) (ledger.Entry, error) {
	if id == uuid.Nil {
		return ledger.Entry{}, fmt.Errorf("%w: entry id is required", errs.ErrValidation)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ledger.Entry{}, fmt.Errorf("%w: storno of %s: reason is required", errs.ErrValidation, id)
	}
	var out ledger.Entry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		orig, err := tx.Entry(ctx, id)
		if err != nil {
			return err
		}
		if orig.IsStorno {
			return fmt.Errorf("%w: entry %d is itself a storno", errs.ErrValidation, orig.EntryNumber)
		}
		if prev, err := tx.StornoOf(ctx, id); err == nil {
			return fmt.Errorf("%w: entry %d reversed by %d", errs.ErrAlreadyReversed, orig.EntryNumber, prev.EntryNumber)
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if orig.Locked {
			return fmt.Errorf("%w: entry %d is locked", errs.ErrPeriodLocked, orig.EntryNumber)
		}
		ref := orig.ID
		st := ledger.Entry{
			ID:            uuid.New(),
			BookingDate:   orig.BookingDate,
			DocumentDate:  orig.DocumentDate,
			DebitAccount:  orig.CreditAccount,
			CreditAccount: orig.DebitAccount,
			Amount:        orig.Amount,
			Description:   fmt.Sprintf("Storno %d: %s", orig.EntryNumber, reason),
			SourceType:    orig.SourceType,
			IsStorno:      true,
			StornoOfID:    &ref,
			CreatedBy:     user,
		}
		if out, err = s.AppendTx(ctx, tx, st); err != nil {
			return err
		}
		if key, ok := orig.Key(); ok {
			return tx.ReleaseSource(ctx, key)
		}
		return nil
	})
	if errors.Is(err, errs.ErrConflict) {
		return ledger.Entry{}, fmt.Errorf("%w: entry %s", errs.ErrAlreadyReversed, id)
	}
	if err != nil {
		return ledger.Entry{}, err
	}
	s.log.Info("entry reversed", "entry_id", id, "storno_id", out.ID, "entry_number", out.EntryNumber, "user", user)
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return s.store.Entry(ctx, id)
}

func (s *service) Query(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error] {
	return s.store.Entries(ctx, f)
}

func (s *service) Export(ctx context.Context, r ledger.DateRange) iter.Seq2[ledger.Entry, error] {
	return s.store.Entries(ctx, ledger.EntryFilter{Range: &r})
}

// TrialBalance returns net amounts (debits - credits) per account up to asOf.
func (s *service) TrialBalance(ctx context.Context, asOf *time.Time) (map[string]money.Amount, error) {
	var f ledger.EntryFilter
	if asOf != nil {
		f.Range = &ledger.DateRange{To: *asOf}
	}
	sums := make(map[string]int64)
	for e, err := range s.store.Entries(ctx, f) {
		if err != nil {
			return nil, err
		}
		units := e.Minor()
		sums[e.DebitAccount] += units
		sums[e.CreditAccount] -= units
	}
	out := make(map[string]money.Amount, len(sums))
	for number, units := range sums {
		amt, err := ledger.FromMinor(s.currency, units)
		if err != nil {
			return nil, err
		}
		out[number] = amt
	}
	return out, nil
}

// AccountBalance returns the balance of one account up to asOf, on the
// account's normal side: debit - credit for assets and expenses, credit -
// debit otherwise.
func (s *service) AccountBalance(ctx context.Context, number string, asOf *time.Time) (money.Amount, error) {
	acc, err := s.store.Account(ctx, number)
	if err != nil {
		return money.Amount{}, err
	}
	f := ledger.EntryFilter{AccountNumber: number}
	if asOf != nil {
		f.Range = &ledger.DateRange{To: *asOf}
	}
	var net int64
	for e, err := range s.store.Entries(ctx, f) {
		if err != nil {
			return money.Amount{}, err
		}
		if e.DebitAccount == number {
			net += e.Minor()
		} else {
			net -= e.Minor()
		}
	}
	if !acc.Type.DebitNormal() {
		net = -net
	}
	return ledger.FromMinor(s.currency, net)
}
