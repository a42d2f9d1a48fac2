// Package statement aggregates the journal into balance sheets and income
// statements per fiscal year and persists them as snapshots.
package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/reifenwerk/ledger/internal/dictionary"
	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

type Service interface {
	// GenerateBalanceSheet aggregates all entries up to Dec 31 of year and
	// stores the snapshot, replacing an unlocked one.
	GenerateBalanceSheet(ctx context.Context, year int, fiscalYear string) (ledger.BalanceSheet, error)
	// GenerateIncomeStatement aggregates revenue and expenses booked within year.
	GenerateIncomeStatement(ctx context.Context, year int, fiscalYear string) (ledger.IncomeStatement, error)
	BalanceSheet(ctx context.Context, year int) (ledger.BalanceSheet, error)
	IncomeStatement(ctx context.Context, year int) (ledger.IncomeStatement, error)
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

// checkRegenerate refuses to replace a snapshot of a closed year.
func checkRegenerate(ctx context.Context, tx storage.Tx, year int, locked func() (bool, error)) error {
	if err := tx.GuardYear(ctx, year, false); err != nil {
		return err
	}
	c, err := tx.Closing(ctx, year)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if err == nil && c.Locked() {
		return fmt.Errorf("%w: fiscal year %d is closed", errs.ErrAlreadyLocked, year)
	}
	isLocked, err := locked()
	if err != nil {
		return err
	}
	if isLocked {
		return fmt.Errorf("%w: statement for %d is locked", errs.ErrAlreadyLocked, year)
	}
	return nil
}

func (s *service) GenerateBalanceSheet(ctx context.Context, year int, fiscalYear string) (ledger.BalanceSheet, error) {
	var bs ledger.BalanceSheet
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		err := checkRegenerate(ctx, tx, year, func() (bool, error) {
			prev, err := tx.BalanceSheet(ctx, year)
			if errors.Is(err, errs.ErrNotFound) {
				return false, nil
			}
			return prev.Locked, err
		})
		if err != nil {
			return err
		}
		agg, err := s.aggregate(ctx, tx, ledger.Through(year))
		if err != nil {
			return err
		}
		bs = ledger.BalanceSheet{Year: year, FiscalYear: fiscalYear, GeneratedAt: s.now()}
		var totA, totL, totE, retained, netIncome int64
		for _, b := range agg.accounts {
			switch b.typ {
			case ledger.AccountTypeRevenue, ledger.AccountTypeExpense:
				// Income accounts enter equity as the result of their year.
				for y, units := range b.byYear {
					if y < year {
						retained -= units
					} else if y == year {
						netIncome -= units
					}
				}
			}
		}
		if bs.Assets, totA, err = s.lines(agg, ledger.AccountTypeAsset); err != nil {
			return err
		}
		if bs.Liabilities, totL, err = s.lines(agg, ledger.AccountTypeLiability); err != nil {
			return err
		}
		if bs.Equity, totE, err = s.lines(agg, ledger.AccountTypeEquity); err != nil {
			return err
		}
		if bs.TotalAssets, err = ledger.FromMinor(s.currency, totA); err != nil {
			return err
		}
		if bs.TotalLiabilities, err = ledger.FromMinor(s.currency, totL); err != nil {
			return err
		}
		if bs.TotalEquity, err = ledger.FromMinor(s.currency, totE); err != nil {
			return err
		}
		if bs.RetainedEarnings, err = ledger.FromMinor(s.currency, retained); err != nil {
			return err
		}
		if bs.NetIncome, err = ledger.FromMinor(s.currency, netIncome); err != nil {
			return err
		}
		bs.Balanced = totA == totL+totE+retained+netIncome
		return tx.SaveBalanceSheet(ctx, bs)
	})
	if err != nil {
		return ledger.BalanceSheet{}, err
	}
	lvl := slog.LevelInfo
	if !bs.Balanced {
		lvl = slog.LevelWarn
	}
	s.log.Log(ctx, lvl, "balance sheet generated", "year", year, "total_assets", bs.TotalAssets.String(), "balanced", bs.Balanced)
	return bs, nil
}

func (s *service) GenerateIncomeStatement(ctx context.Context, year int, fiscalYear string) (ledger.IncomeStatement, error) {
	var is ledger.IncomeStatement
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		err := checkRegenerate(ctx, tx, year, func() (bool, error) {
			prev, err := tx.IncomeStatement(ctx, year)
			if errors.Is(err, errs.ErrNotFound) {
				return false, nil
			}
			return prev.Locked, err
		})
		if err != nil {
			return err
		}
		agg, err := s.aggregate(ctx, tx, ledger.YearRange(year))
		if err != nil {
			return err
		}
		is = ledger.IncomeStatement{Year: year, FiscalYear: fiscalYear, GeneratedAt: s.now()}
		var totR, totX int64
		if is.Revenue, totR, err = s.lines(agg, ledger.AccountTypeRevenue); err != nil {
			return err
		}
		if is.Expenses, totX, err = s.lines(agg, ledger.AccountTypeExpense); err != nil {
			return err
		}
		if is.TotalRevenue, err = ledger.FromMinor(s.currency, totR); err != nil {
			return err
		}
		if is.TotalExpenses, err = ledger.FromMinor(s.currency, totX); err != nil {
			return err
		}
		if is.NetIncome, err = ledger.FromMinor(s.currency, totR-totX); err != nil {
			return err
		}
		return tx.SaveIncomeStatement(ctx, is)
	})
	if err != nil {
		return ledger.IncomeStatement{}, err
	}
	s.log.Info("income statement generated", "year", year, "net_income", is.NetIncome.String())
	return is, nil
}

func (s *service) BalanceSheet(ctx context.Context, year int) (ledger.BalanceSheet, error) {
	return s.store.BalanceSheet(ctx, year)
}

func (s *service) IncomeStatement(ctx context.Context, year int) (ledger.IncomeStatement, error) {
	return s.store.IncomeStatement(ctx, year)
}

// accountBalance holds debit minus credit in cents, in total and per year.
type accountBalance struct {
	number string
	typ    ledger.AccountType
	net    int64
	byYear map[int]int64
}

type aggregation struct {
	accounts map[string]*accountBalance
}

func (s *service) aggregate(ctx context.Context, tx storage.Tx, r ledger.DateRange) (aggregation, error) {
	accounts, err := tx.Accounts(ctx)
	if err != nil {
		return aggregation{}, err
	}
	types := make(map[string]ledger.AccountType, len(accounts))
	for _, a := range accounts {
		types[a.Number] = a.Type
	}
	// Drain before any further statement on tx.
	entries, err := storage.Collect(tx.Entries(ctx, ledger.EntryFilter{Range: &r}))
	if err != nil {
		return aggregation{}, err
	}
	agg := aggregation{accounts: make(map[string]*accountBalance)}
	get := func(number string) (*accountBalance, error) {
		if b, ok := agg.accounts[number]; ok {
			return b, nil
		}
		typ, ok := types[number]
		if !ok {
			var err error
			if typ, err = ledger.TypeForNumber(number); err != nil {
				return nil, err
			}
		}
		b := &accountBalance{number: number, typ: typ, byYear: make(map[int]int64)}
		agg.accounts[number] = b
		return b, nil
	}
	for _, e := range entries {
		units := e.Minor()
		debit, err := get(e.DebitAccount)
		if err != nil {
			return aggregation{}, err
		}
		credit, err := get(e.CreditAccount)
		if err != nil {
			return aggregation{}, err
		}
		debit.net += units
		debit.byYear[e.Year()] += units
		credit.net -= units
		credit.byYear[e.Year()] -= units
	}
	return agg, nil
}

// lines sums the accounts of typ per group, on the normal side of typ,
// ordered by group code. Groups netting to zero are left out.
func (s *service) lines(agg aggregation, typ ledger.AccountType) ([]ledger.StatementLine, int64, error) {
	sums := make(map[string]int64)
	for _, b := range agg.accounts {
		if b.typ != typ {
			continue
		}
		units := b.net
		if !typ.DebitNormal() {
			units = -units
		}
		sums[ledger.GroupCode(b.number)] += units
	}
	codes := make([]string, 0, len(sums))
	for code := range sums {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	out := make([]ledger.StatementLine, 0, len(codes))
	var total int64
	for _, code := range codes {
		units := sums[code]
		total += units
		if units == 0 {
			continue
		}
		amt, err := ledger.FromMinor(s.currency, units)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ledger.StatementLine{
			Group:  code,
			Label:  dictionary.LabelFor(code),
			Type:   typ,
			Amount: amt,
		})
	}
	return out, total, nil
}
