// Package booking turns business events (approved expenses, issued invoices,
// payouts, scheduled depreciation) into journal entries. It owns idempotency
// per source key and the policy that accounting failures never block the
// operational workflow that triggered them.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/journal"
	"github.com/reifenwerk/ledger/internal/storage"
)

var (
	entriesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "entries_posted_total",
			Help:      "Entries created from business events",
		},
		[]string{"source_type"},
	)
	bookingWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "booking_warnings_total",
			Help:      "Business events completed without a ledger entry",
		},
		[]string{"source_type", "reason"},
	)
)

// Event is one business occurrence to be booked.
type Event struct {
	SourceType    ledger.SourceType
	SourceID      string
	DebitAccount  string
	CreditAccount string
	Amount        money.Amount
	BookingDate   time.Time
	DocumentDate  *time.Time
	Description   string
	CreatedBy     string
}

// Key is the idempotency key of the event.
func (ev Event) Key() ledger.SourceKey {
	return ledger.SourceKey{Type: ev.SourceType, ID: ev.SourceID}
}

func (ev Event) entry() ledger.Entry {
	return ledger.Entry{
		BookingDate:   ev.BookingDate,
		DocumentDate:  ev.DocumentDate,
		DebitAccount:  ev.DebitAccount,
		CreditAccount: ev.CreditAccount,
		Amount:        ev.Amount,
		Description:   ev.Description,
		SourceType:    ev.SourceType,
		SourceID:      ev.SourceID,
		CreatedBy:     ev.CreatedBy,
	}
}

// Outcome reports what a posting did. Existing is set when the source key
// was already booked and no entry was created. Warning is only set by
// PostNonBlocking.
type Outcome struct {
	EntryID     uuid.UUID
	EntryNumber int64
	Existing    bool
	Warning     string
}

// DepreciationResult counts the work of PostDepreciations.
type DepreciationResult struct {
	Posted  int
	Already int
}

// Accounts names the accounts depreciation is booked against.
type Accounts struct {
	DepreciationExpense     string
	AccumulatedDepreciation string
}

type Service interface {
	// PostBusinessEvent books ev once per (SourceType, SourceID). A repeated
	// call returns the id of the entry that holds the key.
	PostBusinessEvent(ctx context.Context, ev Event) (Outcome, error)
	// PostNonBlocking is PostBusinessEvent for triggering workflows: a closed
	// period is logged and returned as a warning instead of an error.
	PostNonBlocking(ctx context.Context, ev Event) (Outcome, error)
	// PostDepreciations books every unbooked depreciation row of year.
	PostDepreciations(ctx context.Context, year int, user string) (DepreciationResult, error)
}

type service struct {
	store    storage.Store
	journal  journal.Service
	accounts Accounts
	log      *slog.Logger
}

func New(store storage.Store, j journal.Service, accounts Accounts, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, journal: j, accounts: accounts, log: log}
}

func (s *service) PostBusinessEvent(ctx context.Context, ev Event) (Outcome, error) {
	e := ev.entry()
	if err := s.journal.ValidateEntry(e); err != nil {
		return Outcome{}, err
	}
	if ev.SourceID == "" {
		out, err := s.journal.Append(ctx, e)
		if err != nil {
			return Outcome{}, err
		}
		entriesPosted.WithLabelValues(string(ev.SourceType)).Inc()
		return Outcome{EntryID: out.ID, EntryNumber: out.EntryNumber}, nil
	}

	key := ev.Key()
	if prev, err := s.store.EntryBySource(ctx, key); err == nil {
		return existing(prev), nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return Outcome{}, err
	}

	var res Outcome
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		prev, err := tx.EntryBySource(ctx, key)
		if err == nil {
			res = existing(prev)
			return nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		out, err := s.journal.AppendTx(ctx, tx, e)
		if err != nil {
			return err
		}
		res = Outcome{EntryID: out.ID, EntryNumber: out.EntryNumber}
		return nil
	})
	if errors.Is(err, errs.ErrConflict) {
		// Lost the race on the source key: the winner has committed.
		prev, rerr := s.store.EntryBySource(ctx, key)
		if rerr != nil {
			return Outcome{}, fmt.Errorf("source %s: re-read after conflict: %w", key, rerr)
		}
		return existing(prev), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("source %s: %w", key, err)
	}
	if !res.Existing {
		entriesPosted.WithLabelValues(string(ev.SourceType)).Inc()
		s.log.Info("business event booked",
			"source_type", ev.SourceType,
			"source_id", ev.SourceID,
			"entry_id", res.EntryID,
			"entry_number", res.EntryNumber,
			"debit", ev.DebitAccount,
			"credit", ev.CreditAccount,
		)
	}
	return res, nil
}

func existing(e ledger.Entry) Outcome {
	return Outcome{EntryID: e.ID, EntryNumber: e.EntryNumber, Existing: true}
}

func (s *service) PostNonBlocking(ctx context.Context, ev Event) (Outcome, error) {
	out, err := s.PostBusinessEvent(ctx, ev)
	if errors.Is(err, errs.ErrPeriodLocked) {
		bookingWarnings.WithLabelValues(string(ev.SourceType), "period_locked").Inc()
		s.log.Warn("business event not booked",
			"source_type", ev.SourceType,
			"source_id", ev.SourceID,
			"year", ev.BookingDate.Year(),
			"err", err,
		)
		return Outcome{Warning: err.Error()}, nil
	}
	return out, err
}

// PostDepreciations books each unbooked row on Dec 31 of year under the key
// (DEPRECIATION, row id) and flips it to booked in the same transaction.
func (s *service) PostDepreciations(ctx context.Context, year int, user string) (DepreciationResult, error) {
	rows, err := s.store.Depreciations(ctx, year)
	if err != nil {
		return DepreciationResult{}, err
	}
	var res DepreciationResult
	for _, d := range rows {
		if d.Booked {
			res.Already++
			continue
		}
		asset, err := s.store.Asset(ctx, d.AssetID)
		if err != nil {
			return res, err
		}
		posted, err := s.postDepreciation(ctx, asset, d, user)
		if err != nil {
			return res, fmt.Errorf("depreciation %s of asset %s for %d: %w", d.ID, asset.AssetNumber, year, err)
		}
		if posted {
			res.Posted++
		} else {
			res.Already++
		}
	}
	s.log.Info("depreciation posted", "year", year, "posted", res.Posted, "already", res.Already)
	return res, nil
}

func (s *service) postDepreciation(ctx context.Context, a ledger.Asset, d ledger.Depreciation, user string) (bool, error) {
	e := ledger.Entry{
		BookingDate:   ledger.Date(d.Year, time.December, 31),
		DebitAccount:  s.accounts.DepreciationExpense,
		CreditAccount: s.accounts.AccumulatedDepreciation,
		Amount:        d.Amount,
		Description:   fmt.Sprintf("AfA %d %s %s", d.Year, a.AssetNumber, a.Name),
		SourceType:    ledger.SourceDepreciation,
		SourceID:      d.ID.String(),
		CreatedBy:     user,
	}
	key, _ := e.Key()
	posted := false
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		posted = false
		entryID := uuid.Nil
		if prev, err := tx.EntryBySource(ctx, key); err == nil {
			entryID = prev.ID
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		} else {
			out, err := s.journal.AppendTx(ctx, tx, e)
			if err != nil {
				return err
			}
			entryID = out.ID
			posted = true
		}
		return tx.MarkDepreciationBooked(ctx, d.ID, entryID)
	})
	if errors.Is(err, errs.ErrConflict) {
		// A concurrent run booked the row first.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if posted {
		entriesPosted.WithLabelValues(string(ledger.SourceDepreciation)).Inc()
	}
	return posted, nil
}
