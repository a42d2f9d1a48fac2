package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

// --- Statements ---

func (r reader) BalanceSheet(ctx context.Context, year int) (ledger.BalanceSheet, error) {
	var (
		bs                                ledger.BalanceSheet
		currency                          string
		assets, liabilities, equity       []byte
		totA, totL, totE, retained, netIn int64
	)
	err := r.q.QueryRow(ctx, `
		select year, fiscal_year, currency, assets, liabilities, equity,
			total_assets_minor, total_liabilities_minor, total_equity_minor,
			retained_earnings_minor, net_income_minor, balanced, locked, generated_at
		from balance_sheets where year = $1
	`, year).Scan(&bs.Year, &bs.FiscalYear, &currency, &assets, &liabilities, &equity,
		&totA, &totL, &totE, &retained, &netIn, &bs.Balanced, &bs.Locked, &bs.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.BalanceSheet{}, fmt.Errorf("%w: balance sheet %d", errs.ErrNotFound, year)
	}
	if err != nil {
		return ledger.BalanceSheet{}, fmt.Errorf("get balance sheet %d: %w", year, err)
	}
	currency = strings.TrimSpace(currency)
	if bs.Assets, err = storage.DecodeLines(currency, assets); err != nil {
		return ledger.BalanceSheet{}, err
	}
	if bs.Liabilities, err = storage.DecodeLines(currency, liabilities); err != nil {
		return ledger.BalanceSheet{}, err
	}
	if bs.Equity, err = storage.DecodeLines(currency, equity); err != nil {
		return ledger.BalanceSheet{}, err
	}
	bs.TotalAssets = ledger.MustFromMinor(currency, totA)
	bs.TotalLiabilities = ledger.MustFromMinor(currency, totL)
	bs.TotalEquity = ledger.MustFromMinor(currency, totE)
	bs.RetainedEarnings = ledger.MustFromMinor(currency, retained)
	bs.NetIncome = ledger.MustFromMinor(currency, netIn)
	return bs, nil
}

func (t *tx) SaveBalanceSheet(ctx context.Context, bs ledger.BalanceSheet) error {
	assets, err := storage.EncodeLines(bs.Assets)
	if err != nil {
		return err
	}
	liabilities, err := storage.EncodeLines(bs.Liabilities)
	if err != nil {
		return err
	}
	equity, err := storage.EncodeLines(bs.Equity)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		insert into balance_sheets (year, fiscal_year, currency, assets, liabilities, equity,
			total_assets_minor, total_liabilities_minor, total_equity_minor,
			retained_earnings_minor, net_income_minor, balanced, locked, generated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		on conflict (year) do update set
			fiscal_year = excluded.fiscal_year, currency = excluded.currency,
			assets = excluded.assets, liabilities = excluded.liabilities, equity = excluded.equity,
			total_assets_minor = excluded.total_assets_minor,
			total_liabilities_minor = excluded.total_liabilities_minor,
			total_equity_minor = excluded.total_equity_minor,
			retained_earnings_minor = excluded.retained_earnings_minor,
			net_income_minor = excluded.net_income_minor,
			balanced = excluded.balanced, locked = excluded.locked, generated_at = excluded.generated_at
	`, bs.Year, bs.FiscalYear, bs.TotalAssets.Curr().Code(), assets, liabilities, equity,
		ledger.MinorUnits(bs.TotalAssets), ledger.MinorUnits(bs.TotalLiabilities), ledger.MinorUnits(bs.TotalEquity),
		ledger.MinorUnits(bs.RetainedEarnings), ledger.MinorUnits(bs.NetIncome), bs.Balanced, bs.Locked, bs.GeneratedAt)
	if err != nil {
		return fmt.Errorf("save balance sheet %d: %w", bs.Year, err)
	}
	return nil
}

func (r reader) IncomeStatement(ctx context.Context, year int) (ledger.IncomeStatement, error) {
	var (
		is                ledger.IncomeStatement
		currency          string
		revenue, expenses []byte
		totR, totE, netIn int64
	)
	err := r.q.QueryRow(ctx, `
		select year, fiscal_year, currency, revenue, expenses,
			total_revenue_minor, total_expenses_minor, net_income_minor, locked, generated_at
		from income_statements where year = $1
	`, year).Scan(&is.Year, &is.FiscalYear, &currency, &revenue, &expenses, &totR, &totE, &netIn, &is.Locked, &is.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.IncomeStatement{}, fmt.Errorf("%w: income statement %d", errs.ErrNotFound, year)
	}
	if err != nil {
		return ledger.IncomeStatement{}, fmt.Errorf("get income statement %d: %w", year, err)
	}
	currency = strings.TrimSpace(currency)
	if is.Revenue, err = storage.DecodeLines(currency, revenue); err != nil {
		return ledger.IncomeStatement{}, err
	}
	if is.Expenses, err = storage.DecodeLines(currency, expenses); err != nil {
		return ledger.IncomeStatement{}, err
	}
	is.TotalRevenue = ledger.MustFromMinor(currency, totR)
	is.TotalExpenses = ledger.MustFromMinor(currency, totE)
	is.NetIncome = ledger.MustFromMinor(currency, netIn)
	return is, nil
}

func (t *tx) SaveIncomeStatement(ctx context.Context, is ledger.IncomeStatement) error {
	revenue, err := storage.EncodeLines(is.Revenue)
	if err != nil {
		return err
	}
	expenses, err := storage.EncodeLines(is.Expenses)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		insert into income_statements (year, fiscal_year, currency, revenue, expenses,
			total_revenue_minor, total_expenses_minor, net_income_minor, locked, generated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		on conflict (year) do update set
			fiscal_year = excluded.fiscal_year, currency = excluded.currency,
			revenue = excluded.revenue, expenses = excluded.expenses,
			total_revenue_minor = excluded.total_revenue_minor,
			total_expenses_minor = excluded.total_expenses_minor,
			net_income_minor = excluded.net_income_minor,
			locked = excluded.locked, generated_at = excluded.generated_at
	`, is.Year, is.FiscalYear, is.NetIncome.Curr().Code(), revenue, expenses,
		ledger.MinorUnits(is.TotalRevenue), ledger.MinorUnits(is.TotalExpenses), ledger.MinorUnits(is.NetIncome),
		is.Locked, is.GeneratedAt)
	if err != nil {
		return fmt.Errorf("save income statement %d: %w", is.Year, err)
	}
	return nil
}

func (t *tx) LockStatements(ctx context.Context, year int) error {
	if _, err := t.q.Exec(ctx, `update balance_sheets set locked = true where year = $1 and not locked`, year); err != nil {
		return fmt.Errorf("lock balance sheet %d: %w", year, err)
	}
	if _, err := t.q.Exec(ctx, `update income_statements set locked = true where year = $1 and not locked`, year); err != nil {
		return fmt.Errorf("lock income statement %d: %w", year, err)
	}
	return nil
}

// --- Year-end closing ---

func (r reader) Closing(ctx context.Context, year int) (ledger.YearEndClosing, error) {
	var c ledger.YearEndClosing
	err := r.q.QueryRow(ctx, `
		select year, fiscal_year, status, depreciation_completed_at, reports_completed_at,
			locked_at, initiated_by, created_at
		from year_end_closings where year = $1
	`, year).Scan(&c.Year, &c.FiscalYear, &c.Status, &c.DepreciationCompletedAt, &c.ReportsCompletedAt,
		&c.LockedAt, &c.InitiatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.YearEndClosing{}, fmt.Errorf("%w: year-end closing %d", errs.ErrNotFound, year)
	}
	if err != nil {
		return ledger.YearEndClosing{}, fmt.Errorf("get year-end closing %d: %w", year, err)
	}
	return c, nil
}

func (t *tx) CreateClosing(ctx context.Context, c ledger.YearEndClosing) error {
	_, err := t.q.Exec(ctx, `
		insert into year_end_closings (year, fiscal_year, status, depreciation_completed_at,
			reports_completed_at, locked_at, initiated_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.Year, c.FiscalYear, string(c.Status), c.DepreciationCompletedAt, c.ReportsCompletedAt,
		c.LockedAt, c.InitiatedBy, c.CreatedAt)
	return mapConstraint(err, errs.ErrAlreadyExists, "year-end closing %d", c.Year)
}

func (t *tx) UpdateClosing(ctx context.Context, c ledger.YearEndClosing) error {
	ct, err := t.q.Exec(ctx, `
		update year_end_closings
		set status = $1, depreciation_completed_at = $2, reports_completed_at = $3, locked_at = $4
		where year = $5
	`, string(c.Status), c.DepreciationCompletedAt, c.ReportsCompletedAt, c.LockedAt, c.Year)
	if err != nil {
		return fmt.Errorf("update year-end closing %d: %w", c.Year, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: year-end closing %d", errs.ErrNotFound, c.Year)
	}
	return nil
}
