package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

func (r reader) BalanceSheet(ctx context.Context, year int) (ledger.BalanceSheet, error) {
	var (
		bs                                ledger.BalanceSheet
		currency, generated               string
		assets, liabilities, equity       []byte
		totA, totL, totE, retained, netIn int64
		balanced, locked                  int
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT year, fiscal_year, currency, assets, liabilities, equity,
			total_assets_minor, total_liabilities_minor, total_equity_minor,
			retained_earnings_minor, net_income_minor, balanced, locked, generated_at
		FROM balance_sheets WHERE year = ?`, year).
		Scan(&bs.Year, &bs.FiscalYear, &currency, &assets, &liabilities, &equity,
			&totA, &totL, &totE, &retained, &netIn, &balanced, &locked, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.BalanceSheet{}, fmt.Errorf("%w: balance sheet %d", errs.ErrNotFound, year)
	}
	if err != nil {
		return ledger.BalanceSheet{}, fmt.Errorf("get balance sheet %d: %w", year, err)
	}
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
	bs.Balanced = balanced == 1
	bs.Locked = locked == 1
	bs.GeneratedAt = parseTS(generated)
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
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO balance_sheets (year, fiscal_year, currency, assets, liabilities, equity,
			total_assets_minor, total_liabilities_minor, total_equity_minor,
			retained_earnings_minor, net_income_minor, balanced, locked, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (year) DO UPDATE SET
			fiscal_year = excluded.fiscal_year, currency = excluded.currency,
			assets = excluded.assets, liabilities = excluded.liabilities, equity = excluded.equity,
			total_assets_minor = excluded.total_assets_minor,
			total_liabilities_minor = excluded.total_liabilities_minor,
			total_equity_minor = excluded.total_equity_minor,
			retained_earnings_minor = excluded.retained_earnings_minor,
			net_income_minor = excluded.net_income_minor,
			balanced = excluded.balanced, locked = excluded.locked, generated_at = excluded.generated_at`,
		bs.Year, bs.FiscalYear, bs.TotalAssets.Curr().Code(), string(assets), string(liabilities), string(equity),
		ledger.MinorUnits(bs.TotalAssets), ledger.MinorUnits(bs.TotalLiabilities), ledger.MinorUnits(bs.TotalEquity),
		ledger.MinorUnits(bs.RetainedEarnings), ledger.MinorUnits(bs.NetIncome), boolInt(bs.Balanced), boolInt(bs.Locked),
		formatTS(bs.GeneratedAt))
	if err != nil {
		return fmt.Errorf("save balance sheet %d: %w", bs.Year, err)
	}
	return nil
}

func (r reader) IncomeStatement(ctx context.Context, year int) (ledger.IncomeStatement, error) {
	var (
		is                  ledger.IncomeStatement
		currency, generated string
		revenue, expenses   []byte
		totR, totE, netIn   int64
		locked              int
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT year, fiscal_year, currency, revenue, expenses,
			total_revenue_minor, total_expenses_minor, net_income_minor, locked, generated_at
		FROM income_statements WHERE year = ?`, year).
		Scan(&is.Year, &is.FiscalYear, &currency, &revenue, &expenses, &totR, &totE, &netIn, &locked, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.IncomeStatement{}, fmt.Errorf("%w: income statement %d", errs.ErrNotFound, year)
	}
	if err != nil {
		return ledger.IncomeStatement{}, fmt.Errorf("get income statement %d: %w", year, err)
	}
	if is.Revenue, err = storage.DecodeLines(currency, revenue); err != nil {
		return ledger.IncomeStatement{}, err
	}
	if is.Expenses, err = storage.DecodeLines(currency, expenses); err != nil {
		return ledger.IncomeStatement{}, err
	}
	is.TotalRevenue = ledger.MustFromMinor(currency, totR)
	is.TotalExpenses = ledger.MustFromMinor(currency, totE)
	is.NetIncome = ledger.MustFromMinor(currency, netIn)
	is.Locked = locked == 1
	is.GeneratedAt = parseTS(generated)
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
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO income_statements (year, fiscal_year, currency, revenue, expenses,
			total_revenue_minor, total_expenses_minor, net_income_minor, locked, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (year) DO UPDATE SET
			fiscal_year = excluded.fiscal_year, currency = excluded.currency,
			revenue = excluded.revenue, expenses = excluded.expenses,
			total_revenue_minor = excluded.total_revenue_minor,
			total_expenses_minor = excluded.total_expenses_minor,
			net_income_minor = excluded.net_income_minor,
			locked = excluded.locked, generated_at = excluded.generated_at`,
		is.Year, is.FiscalYear, is.NetIncome.Curr().Code(), string(revenue), string(expenses),
		ledger.MinorUnits(is.TotalRevenue), ledger.MinorUnits(is.TotalExpenses), ledger.MinorUnits(is.NetIncome),
		boolInt(is.Locked), formatTS(is.GeneratedAt))
	if err != nil {
		return fmt.Errorf("save income statement %d: %w", is.Year, err)
	}
	return nil
}

func (t *tx) LockStatements(ctx context.Context, year int) error {
	if _, err := t.q.ExecContext(ctx, `UPDATE balance_sheets SET locked = 1 WHERE year = ? AND locked = 0`, year); err != nil {
		return fmt.Errorf("lock balance sheet %d: %w", year, err)
	}
	if _, err := t.q.ExecContext(ctx, `UPDATE income_statements SET locked = 1 WHERE year = ? AND locked = 0`, year); err != nil {
		return fmt.Errorf("lock income statement %d: %w", year, err)
	}
	return nil
}

// --- year-end closing ---

func (r reader) Closing(ctx context.Context, year int) (ledger.YearEndClosing, error) {
	var (
		c                          ledger.YearEndClosing
		status, created            string
		depDone, repDone, lockedAt sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT year, fiscal_year, status, depreciation_completed_at, reports_completed_at,
			locked_at, initiated_by, created_at
		FROM year_end_closings WHERE year = ?`, year).
		Scan(&c.Year, &c.FiscalYear, &status, &depDone, &repDone, &lockedAt, &c.InitiatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.YearEndClosing{}, fmt.Errorf("%w: year-end closing %d", errs.ErrNotFound, year)
	}
	if err != nil {
		return ledger.YearEndClosing{}, fmt.Errorf("get year-end closing %d: %w", year, err)
	}
	c.Status = ledger.ClosingStatus(status)
	c.DepreciationCompletedAt = parseNullTS(depDone)
	c.ReportsCompletedAt = parseNullTS(repDone)
	c.LockedAt = parseNullTS(lockedAt)
	c.CreatedAt = parseTS(created)
	return c, nil
}

func (t *tx) CreateClosing(ctx context.Context, c ledger.YearEndClosing) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO year_end_closings (year, fiscal_year, status, depreciation_completed_at,
			reports_completed_at, locked_at, initiated_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Year, c.FiscalYear, string(c.Status), nullTS(c.DepreciationCompletedAt),
		nullTS(c.ReportsCompletedAt), nullTS(c.LockedAt), c.InitiatedBy, formatTS(c.CreatedAt))
	return mapConstraint(err, errs.ErrAlreadyExists, "year-end closing %d", c.Year)
}

func (t *tx) UpdateClosing(ctx context.Context, c ledger.YearEndClosing) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE year_end_closings
		SET status = ?, depreciation_completed_at = ?, reports_completed_at = ?, locked_at = ?
		WHERE year = ?`,
		string(c.Status), nullTS(c.DepreciationCompletedAt), nullTS(c.ReportsCompletedAt), nullTS(c.LockedAt), c.Year)
	if err != nil {
		return fmt.Errorf("update year-end closing %d: %w", c.Year, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: year-end closing %d", errs.ErrNotFound, c.Year)
	}
	return nil
}
