package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		if err := migrateV1(ctx, tx); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			number     TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			type       TEXT NOT NULL CHECK (type IN ('asset','liability','equity','revenue','expense')),
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS entries (
			id             TEXT PRIMARY KEY,
			entry_number   INTEGER NOT NULL UNIQUE,
			booking_date   TEXT NOT NULL,
			document_date  TEXT,
			debit_account  TEXT NOT NULL REFERENCES accounts(number),
			credit_account TEXT NOT NULL REFERENCES accounts(number),
			amount_minor   INTEGER NOT NULL CHECK (amount_minor > 0),
			currency       TEXT NOT NULL,
			description    TEXT NOT NULL,
			source_type    TEXT NOT NULL,
			source_id      TEXT,
			is_storno      INTEGER NOT NULL DEFAULT 0,
			storno_of_id   TEXT UNIQUE REFERENCES entries(id),
			locked         INTEGER NOT NULL DEFAULT 0,
			created_by     TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			CHECK (debit_account <> credit_account)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_booking ON entries(booking_date, entry_number)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_debit ON entries(debit_account)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_credit ON entries(credit_account)`,

		// Idempotency keys. A storno deletes the key of the entry it reverses.
		`CREATE TABLE IF NOT EXISTS entry_sources (
			source_type TEXT NOT NULL,
			source_id   TEXT NOT NULL,
			entry_id    TEXT NOT NULL REFERENCES entries(id),
			PRIMARY KEY (source_type, source_id)
		)`,

		// Entries are insert-only; only the locked flag may flip, and only to 1.
		`CREATE TRIGGER IF NOT EXISTS trg_entries_immutable
		BEFORE UPDATE ON entries
		WHEN NEW.id IS NOT OLD.id
			OR NEW.entry_number IS NOT OLD.entry_number
			OR NEW.booking_date IS NOT OLD.booking_date
			OR NEW.document_date IS NOT OLD.document_date
			OR NEW.debit_account IS NOT OLD.debit_account
			OR NEW.credit_account IS NOT OLD.credit_account
			OR NEW.amount_minor IS NOT OLD.amount_minor
			OR NEW.currency IS NOT OLD.currency
			OR NEW.description IS NOT OLD.description
			OR NEW.source_type IS NOT OLD.source_type
			OR NEW.source_id IS NOT OLD.source_id
			OR NEW.is_storno IS NOT OLD.is_storno
			OR NEW.storno_of_id IS NOT OLD.storno_of_id
			OR NEW.created_by IS NOT OLD.created_by
			OR NEW.created_at IS NOT OLD.created_at
			OR (OLD.locked = 1 AND NEW.locked = 0)
		BEGIN
			SELECT RAISE(ABORT, 'entries are immutable; post a storno instead');
		END`,
		`CREATE TRIGGER IF NOT EXISTS trg_entries_no_delete
		BEFORE DELETE ON entries
		BEGIN
			SELECT RAISE(ABORT, 'entries cannot be deleted');
		END`,

		`CREATE TABLE IF NOT EXISTS assets (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			asset_number       TEXT NOT NULL UNIQUE,
			acquisition_date   TEXT NOT NULL,
			useful_life_years  INTEGER NOT NULL CHECK (useful_life_years > 0),
			cost_minor         INTEGER NOT NULL CHECK (cost_minor > 0),
			annual_minor       INTEGER NOT NULL,
			currency           TEXT NOT NULL,
			disposal_date      TEXT,
			created_at         TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS depreciations (
			id           TEXT PRIMARY KEY,
			asset_id     TEXT NOT NULL REFERENCES assets(id),
			year         INTEGER NOT NULL,
			amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
			currency     TEXT NOT NULL,
			method       TEXT NOT NULL,
			booked       INTEGER NOT NULL DEFAULT 0,
			entry_id     TEXT REFERENCES entries(id),
			created_at   TEXT NOT NULL,
			UNIQUE (asset_id, year)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_depreciations_year ON depreciations(year)`,

		`CREATE TABLE IF NOT EXISTS balance_sheets (
			year                     INTEGER PRIMARY KEY,
			fiscal_year              TEXT NOT NULL DEFAULT '',
			currency                 TEXT NOT NULL,
			assets                   TEXT NOT NULL,
			liabilities              TEXT NOT NULL,
			equity                   TEXT NOT NULL,
			total_assets_minor       INTEGER NOT NULL,
			total_liabilities_minor  INTEGER NOT NULL,
			total_equity_minor       INTEGER NOT NULL,
			retained_earnings_minor  INTEGER NOT NULL,
			net_income_minor         INTEGER NOT NULL,
			balanced                 INTEGER NOT NULL,
			locked                   INTEGER NOT NULL DEFAULT 0,
			generated_at             TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS income_statements (
			year                  INTEGER PRIMARY KEY,
			fiscal_year           TEXT NOT NULL DEFAULT '',
			currency              TEXT NOT NULL,
			revenue               TEXT NOT NULL,
			expenses              TEXT NOT NULL,
			total_revenue_minor   INTEGER NOT NULL,
			total_expenses_minor  INTEGER NOT NULL,
			net_income_minor      INTEGER NOT NULL,
			locked                INTEGER NOT NULL DEFAULT 0,
			generated_at          TEXT NOT NULL
		)`,
		`CREATE TRIGGER IF NOT EXISTS trg_balance_sheets_locked
		BEFORE UPDATE ON balance_sheets
		WHEN OLD.locked = 1
		BEGIN
			SELECT RAISE(ABORT, 'balance sheet is locked');
		END`,
		`CREATE TRIGGER IF NOT EXISTS trg_income_statements_locked
		BEFORE UPDATE ON income_statements
		WHEN OLD.locked = 1
		BEGIN
			SELECT RAISE(ABORT, 'income statement is locked');
		END`,

		`CREATE TABLE IF NOT EXISTS year_end_closings (
			year                      INTEGER PRIMARY KEY,
			fiscal_year               TEXT NOT NULL DEFAULT '',
			status                    TEXT NOT NULL CHECK (status IN ('not_initialized','in_progress','locked')),
			depreciation_completed_at TEXT,
			reports_completed_at      TEXT,
			locked_at                 TEXT,
			initiated_by              TEXT NOT NULL,
			created_at                TEXT NOT NULL
		)`,
		`CREATE TRIGGER IF NOT EXISTS trg_closings_forward_only
		BEFORE UPDATE ON year_end_closings
		WHEN OLD.status = 'locked'
		BEGIN
			SELECT RAISE(ABORT, 'year is locked');
		END`,

		`INSERT INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", head(stmt), err)
		}
	}
	return nil
}

func head(s string) string {
	if len(s) > 60 {
		return s[:60]
	}
	return s
}
