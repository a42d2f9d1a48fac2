// Package closing runs the year-end workflow: initiate, complete the
// depreciation and report steps, then lock the fiscal year against postings.
package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/account"
	"github.com/reifenwerk/ledger/internal/service/booking"
	"github.com/reifenwerk/ledger/internal/service/depreciation"
	"github.com/reifenwerk/ledger/internal/service/statement"
	"github.com/reifenwerk/ledger/internal/storage"
)

var transitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "year_end_transitions_total",
		Help:      "Year-end closing steps completed",
	},
	[]string{"step"},
)

// Authorizer decides who may run the closing workflow.
type Authorizer interface {
	IsClosingAdmin(user string) bool
}

type Service interface {
	Initiate(ctx context.Context, year int, fiscalYear, user string) (ledger.YearEndClosing, error)
	CompleteDepreciation(ctx context.Context, year int, user string) (ledger.YearEndClosing, error)
	CompleteReports(ctx context.Context, year int, user string) (ledger.YearEndClosing, error)
	LockYear(ctx context.Context, year int, user string) (ledger.YearEndClosing, error)
	// Status returns a NotInitialized closing for years without a row.
	Status(ctx context.Context, year int) (ledger.YearEndClosing, error)
}

// Deps are the components the workflow delegates to.
type Deps struct {
	Store        storage.Store
	Accounts     account.Service
	Depreciation depreciation.Service
	Booking      booking.Service
	Statements   statement.Service
	Auth         Authorizer
	Log          *slog.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func New(d Deps) Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &service{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) authorize(user string, year int) error {
	if s.Auth != nil && !s.Auth.IsClosingAdmin(user) {
		return fmt.Errorf("%w: user %q may not close fiscal year %d", errs.ErrForbidden, user, year)
	}
	return nil
}

func (s *service) Initiate(ctx context.Context, year int, fiscalYear, user string) (ledger.YearEndClosing, error) {
	if err := s.authorize(user, year); err != nil {
		return ledger.YearEndClosing{}, err
	}
	ok, err := s.Accounts.Initialized(ctx)
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	if !ok {
		return ledger.YearEndClosing{}, fmt.Errorf("%w: chart of accounts is empty", errs.ErrNotInitialized)
	}
	var c ledger.YearEndClosing
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Closing(ctx, year); err == nil {
			return fmt.Errorf("%w: year-end closing %d", errs.ErrAlreadyExists, year)
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		now := s.now()
		c = ledger.YearEndClosing{
			Year:        year,
			FiscalYear:  fiscalYear,
			Status:      ledger.ClosingNotInitialized,
			InitiatedBy: user,
			CreatedAt:   now,
		}
		if err := c.Advance(ledger.ClosingInProgress, now); err != nil {
			return err
		}
		return tx.CreateClosing(ctx, c)
	})
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	transitions.WithLabelValues("initiated").Inc()
	s.Log.Info("year-end closing initiated", "year", year, "user", user)
	return c, nil
}

// inProgress loads the closing of year and refuses years that were never
// initiated or are already locked.
func (s *service) inProgress(ctx context.Context, r storage.Reader, year int) (ledger.YearEndClosing, error) {
	c, err := r.Closing(ctx, year)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.YearEndClosing{}, fmt.Errorf("%w: year-end closing %d was not initiated", errs.ErrNotInitialized, year)
	}
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	if c.Locked() {
		return ledger.YearEndClosing{}, fmt.Errorf("%w: fiscal year %d", errs.ErrAlreadyLocked, year)
	}
	return c, nil
}

// record stamps a completed sub-step. The first completion time is kept.
func (s *service) record(ctx context.Context, year int, stamp func(c *ledger.YearEndClosing, at time.Time)) (ledger.YearEndClosing, error) {
	var c ledger.YearEndClosing
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if c, err = s.inProgress(ctx, tx, year); err != nil {
			return err
		}
		stamp(&c, s.now())
		return tx.UpdateClosing(ctx, c)
	})
	return c, err
}

func (s *service) CompleteDepreciation(ctx context.Context, year int, user string) (ledger.YearEndClosing, error) {
	if err := s.authorize(user, year); err != nil {
		return ledger.YearEndClosing{}, err
	}
	if _, err := s.inProgress(ctx, s.Store, year); err != nil {
		return ledger.YearEndClosing{}, err
	}
	sched, err := s.Depreciation.ScheduleYear(ctx, year)
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	posted, err := s.Booking.PostDepreciations(ctx, year, user)
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	c, err := s.record(ctx, year, func(c *ledger.YearEndClosing, at time.Time) {
		if c.DepreciationCompletedAt == nil {
			c.DepreciationCompletedAt = &at
		}
	})
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	transitions.WithLabelValues("depreciation").Inc()
	s.Log.Info("year-end depreciation completed", "year", year, "scheduled", sched.Created, "posted", posted.Posted, "user", user)
	return c, nil
}

func (s *service) CompleteReports(ctx context.Context, year int, user string) (ledger.YearEndClosing, error) {
	if err := s.authorize(user, year); err != nil {
		return ledger.YearEndClosing{}, err
	}
	c, err := s.inProgress(ctx, s.Store, year)
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	if _, err := s.Statements.BalanceSheet(ctx, year); errors.Is(err, errs.ErrNotFound) {
		if _, err := s.Statements.GenerateBalanceSheet(ctx, year, c.FiscalYear); err != nil {
			return ledger.YearEndClosing{}, err
		}
	} else if err != nil {
		return ledger.YearEndClosing{}, err
	}
	if _, err := s.Statements.IncomeStatement(ctx, year); errors.Is(err, errs.ErrNotFound) {
		if _, err := s.Statements.GenerateIncomeStatement(ctx, year, c.FiscalYear); err != nil {
			return ledger.YearEndClosing{}, err
		}
	} else if err != nil {
		return ledger.YearEndClosing{}, err
	}
	c, err = s.record(ctx, year, func(c *ledger.YearEndClosing, at time.Time) {
		if c.ReportsCompletedAt == nil {
			c.ReportsCompletedAt = &at
		}
	})
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	transitions.WithLabelValues("reports").Inc()
	s.Log.Info("year-end reports completed", "year", year, "user", user)
	return c, nil
}

// LockYear takes the exclusive year guard, so it waits for in-flight
// postings of the year and every later one sees the lock.
func (s *service) LockYear(ctx context.Context, year int, user string) (ledger.YearEndClosing, error) {
	if err := s.authorize(user, year); err != nil {
		return ledger.YearEndClosing{}, err
	}
	var (
		c      ledger.YearEndClosing
		locked int64
	)
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.GuardYear(ctx, year, true); err != nil {
			return err
		}
		var err error
		c, err = tx.Closing(ctx, year)
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("%w: year-end closing %d was not initiated", errs.ErrNotInitialized, year)
		}
		if err != nil {
			return err
		}
		if err := c.Advance(ledger.ClosingLocked, s.now()); err != nil {
			return err
		}
		if locked, err = tx.LockEntries(ctx, ledger.YearRange(year)); err != nil {
			return err
		}
		if err := tx.LockStatements(ctx, year); err != nil {
			return err
		}
		return tx.UpdateClosing(ctx, c)
	})
	if err != nil {
		return ledger.YearEndClosing{}, err
	}
	transitions.WithLabelValues("locked").Inc()
	s.Log.Info("fiscal year locked", "year", year, "entries", locked, "user", user)
	return c, nil
}

func (s *service) Status(ctx context.Context, year int) (ledger.YearEndClosing, error) {
	c, err := s.Store.Closing(ctx, year)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.YearEndClosing{Year: year, Status: ledger.ClosingNotInitialized}, nil
	}
	return c, err
}
