// Package account implements the chart of accounts: accounts are created once,
// typed by the leading digit of their number, and never deleted.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reifenwerk/ledger/internal/dictionary"
	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

type Service interface {
	ValidateCreate(number, name string) error
	Create(ctx context.Context, number, name string) (ledger.Account, error)
	Lookup(ctx context.Context, number string) (ledger.Account, error)
	List(ctx context.Context) ([]ledger.Account, error)
	// EnsureChart creates the accounts of chart that do not exist yet, in one
	// transaction. It returns the number of accounts created.
	EnsureChart(ctx context.Context, chart []dictionary.ChartEntry) (int, error)
	// Initialized reports whether the chart holds any account at all.
	Initialized(ctx context.Context) (bool, error)
}

type service struct {
	store storage.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store storage.Store, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) ValidateCreate(number, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: account %s: name is required", errs.ErrValidation, number)
	}
	_, err := ledger.TypeForNumber(number)
	return err
}

func (s *service) Create(ctx context.Context, number, name string) (ledger.Account, error) {
	if err := s.ValidateCreate(number, name); err != nil {
		return ledger.Account{}, err
	}
	typ, _ := ledger.TypeForNumber(number)
	a := ledger.Account{Number: number, Name: strings.TrimSpace(name), Type: typ, CreatedAt: s.now()}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateAccount(ctx, a)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	s.log.Info("account created", "account", a.Number, "type", a.Type)
	return a, nil
}

func (s *service) Lookup(ctx context.Context, number string) (ledger.Account, error) {
	return s.store.Account(ctx, number)
}

func (s *service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.store.Accounts(ctx)
}

func (s *service) EnsureChart(ctx context.Context, chart []dictionary.ChartEntry) (int, error) {
	for _, c := range chart {
		if err := s.ValidateCreate(c.Number, c.Name); err != nil {
			return 0, err
		}
	}
	created := 0
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		created = 0
		for _, c := range chart {
			_, err := tx.Account(ctx, c.Number)
			if err == nil {
				continue
			}
			if !errors.Is(err, errs.ErrNotFound) {
				return err
			}
			typ, _ := ledger.TypeForNumber(c.Number)
			if err := tx.CreateAccount(ctx, ledger.Account{Number: c.Number, Name: c.Name, Type: typ, CreatedAt: s.now()}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.log.Info("chart of accounts seeded", "created", created)
	}
	return created, nil
}

func (s *service) Initialized(ctx context.Context) (bool, error) {
	all, err := s.store.Accounts(ctx)
	if err != nil {
		return false, err
	}
	return len(all) > 0, nil
}
