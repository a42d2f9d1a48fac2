// Package depreciation keeps the fixed-asset register and schedules the
// straight-line write-down of every asset per fiscal year.
package depreciation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

// ScheduleResult counts the outcome of ScheduleYear. Exhausted counts assets
// in service during the year whose useful life has already been written off;
// it stays zero unless the service caps depreciation at cost.
type ScheduleResult struct {
	Created   int
	Skipped   int
	Exhausted int
}

type Service interface {
	RegisterAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error)
	// UpdateAsset replaces the master data and recomputes the annual amount.
	UpdateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error)
	DisposeAsset(ctx context.Context, id uuid.UUID, on time.Time) (ledger.Asset, error)
	Asset(ctx context.Context, id uuid.UUID) (ledger.Asset, error)
	Assets(ctx context.Context) ([]ledger.Asset, error)
	// ScheduleYear creates the missing depreciation rows of year. Running it
	// again creates nothing.
	ScheduleYear(ctx context.Context, year int) (ScheduleResult, error)
	Schedule(ctx context.Context, year int) ([]ledger.Depreciation, error)
}

type service struct {
	store     storage.Store
	currency  string
	capAtCost bool
	log       *slog.Logger
	now       func() time.Time
}

type Option func(*service)

// CapAtCost books the rounding remainder in the final year of the useful
// life and stops scheduling once the acquisition cost is written off.
// Without it every in-service year gets the annual amount.
func CapAtCost(on bool) Option {
	return func(s *service) { s.capAtCost = on }
}

func New(store storage.Store, currency string, log *slog.Logger, opts ...Option) Service {
	if log == nil {
		log = slog.Default()
	}
	s := &service{store: store, currency: currency, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) prepare(a *ledger.Asset) error {
	a.Name = strings.TrimSpace(a.Name)
	a.AssetNumber = strings.TrimSpace(a.AssetNumber)
	if err := a.Validate(); err != nil {
		return err
	}
	if code := a.AcquisitionCost.Curr().Code(); code != s.currency {
		return fmt.Errorf("%w: asset %s: currency %s, ledger keeps %s", errs.ErrValidation, a.AssetNumber, code, s.currency)
	}
	a.AcquisitionDate = ledger.Day(a.AcquisitionDate)
	if a.DisposalDate != nil {
		d := ledger.Day(*a.DisposalDate)
		a.DisposalDate = &d
	}
	return a.Recompute()
}

func (s *service) RegisterAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error) {
	if err := s.prepare(&a); err != nil {
		return ledger.Asset{}, err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateAsset(ctx, a)
	})
	if err != nil {
		return ledger.Asset{}, err
	}
	s.log.Info("asset registered", "asset_id", a.ID, "asset_number", a.AssetNumber, "annual", a.AnnualDepreciation.String())
	return a, nil
}

func (s *service) UpdateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error) {
	if err := s.prepare(&a); err != nil {
		return ledger.Asset{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.Asset(ctx, a.ID)
		if err != nil {
			return err
		}
		a.CreatedAt = cur.CreatedAt
		return tx.UpdateAsset(ctx, a)
	})
	if err != nil {
		return ledger.Asset{}, err
	}
	return a, nil
}

func (s *service) DisposeAsset(ctx context.Context, id uuid.UUID, on time.Time) (ledger.Asset, error) {
	if on.IsZero() {
		return ledger.Asset{}, fmt.Errorf("%w: disposal date is required", errs.ErrValidation)
	}
	var out ledger.Asset
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.Asset(ctx, id)
		if err != nil {
			return err
		}
		if a.DisposalDate != nil {
			return fmt.Errorf("%w: asset %s already disposed on %s", errs.ErrValidation, a.AssetNumber, a.DisposalDate.Format(time.DateOnly))
		}
		d := ledger.Day(on)
		a.DisposalDate = &d
		if err := a.Validate(); err != nil {
			return err
		}
		out = a
		return tx.UpdateAsset(ctx, a)
	})
	if err != nil {
		return ledger.Asset{}, err
	}
	s.log.Info("asset disposed", "asset_id", out.ID, "asset_number", out.AssetNumber, "on", out.DisposalDate.Format(time.DateOnly))
	return out, nil
}

func (s *service) Asset(ctx context.Context, id uuid.UUID) (ledger.Asset, error) {
	return s.store.Asset(ctx, id)
}

func (s *service) Assets(ctx context.Context) ([]ledger.Asset, error) {
	return s.store.Assets(ctx)
}

func (s *service) ScheduleYear(ctx context.Context, year int) (ScheduleResult, error) {
	var res ScheduleResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		res = ScheduleResult{}
		if err := tx.GuardYear(ctx, year, true); err != nil {
			return err
		}
		if c, err := tx.Closing(ctx, year); err == nil && c.Locked() {
			return fmt.Errorf("%w: fiscal year %d is closed", errs.ErrPeriodLocked, year)
		} else if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		assets, err := tx.Assets(ctx)
		if err != nil {
			return err
		}
		for _, a := range assets {
			if !a.InServiceDuring(year) {
				continue
			}
			amount, ok, err := a.DepreciationFor(year, s.capAtCost)
			if err != nil {
				return err
			}
			if !ok {
				res.Exhausted++
				continue
			}
			// A failed insert aborts a postgres transaction, so look first.
			done, err := scheduled(ctx, tx, a.ID, year)
			if err != nil {
				return err
			}
			if done {
				res.Skipped++
				continue
			}
			err = tx.InsertDepreciation(ctx, ledger.Depreciation{
				ID:        uuid.New(),
				AssetID:   a.ID,
				Year:      year,
				Amount:    amount,
				Method:    ledger.DepreciationLinear,
				CreatedAt: s.now(),
			})
			if err != nil {
				return err
			}
			res.Created++
		}
		return nil
	})
	if err != nil {
		return ScheduleResult{}, err
	}
	s.log.Info("depreciation scheduled", "year", year, "created", res.Created, "skipped", res.Skipped, "exhausted", res.Exhausted)
	return res, nil
}

func scheduled(ctx context.Context, tx storage.Tx, assetID uuid.UUID, year int) (bool, error) {
	rows, err := tx.AssetDepreciations(ctx, assetID)
	if err != nil {
		return false, err
	}
	for _, d := range rows {
		if d.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) Schedule(ctx context.Context, year int) ([]ledger.Depreciation, error) {
	return s.store.Depreciations(ctx, year)
}
