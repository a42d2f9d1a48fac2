package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
)

const assetColumns = `id, name, asset_number, acquisition_date, useful_life_years, cost_minor,
	annual_minor, currency, disposal_date, created_at`

func scanAsset(sc scanner) (ledger.Asset, error) {
	var (
		a                 ledger.Asset
		acquired, created string
		currency          string
		disposal          sql.NullString
		cost, annual      int64
	)
	if err := sc.Scan(&a.ID, &a.Name, &a.AssetNumber, &acquired, &a.UsefulLifeYears, &cost,
		&annual, &currency, &disposal, &created); err != nil {
		return ledger.Asset{}, err
	}
	var err error
	if a.AcquisitionDate, err = parseDate(acquired); err != nil {
		return ledger.Asset{}, err
	}
	if a.DisposalDate, err = parseNullDate(disposal); err != nil {
		return ledger.Asset{}, err
	}
	if a.AcquisitionCost, err = ledger.FromMinor(currency, cost); err != nil {
		return ledger.Asset{}, err
	}
	if a.AnnualDepreciation, err = ledger.FromMinor(currency, annual); err != nil {
		return ledger.Asset{}, err
	}
	a.CreatedAt = parseTS(created)
	return a, nil
}

func (r reader) Asset(ctx context.Context, id uuid.UUID) (ledger.Asset, error) {
	a, err := scanAsset(r.q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Asset{}, fmt.Errorf("%w: asset %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return ledger.Asset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	return a, nil
}

func (r reader) Assets(ctx context.Context) ([]ledger.Asset, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY asset_number`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()
	out := make([]ledger.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) CreateAsset(ctx context.Context, a ledger.Asset) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.AssetNumber, formatDate(a.AcquisitionDate), a.UsefulLifeYears, ledger.MinorUnits(a.AcquisitionCost),
		ledger.MinorUnits(a.AnnualDepreciation), a.AcquisitionCost.Curr().Code(), nullDate(a.DisposalDate), formatTS(a.CreatedAt))
	return mapConstraint(err, errs.ErrAlreadyExists, "asset number %s", a.AssetNumber)
}

func (t *tx) UpdateAsset(ctx context.Context, a ledger.Asset) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE assets
		SET name = ?, asset_number = ?, acquisition_date = ?, useful_life_years = ?, cost_minor = ?,
			annual_minor = ?, currency = ?, disposal_date = ?
		WHERE id = ?`,
		a.Name, a.AssetNumber, formatDate(a.AcquisitionDate), a.UsefulLifeYears, ledger.MinorUnits(a.AcquisitionCost),
		ledger.MinorUnits(a.AnnualDepreciation), a.AcquisitionCost.Curr().Code(), nullDate(a.DisposalDate), a.ID)
	if err != nil {
		return mapConstraint(err, errs.ErrAlreadyExists, "asset number %s", a.AssetNumber)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: asset %s", errs.ErrNotFound, a.ID)
	}
	return nil
}

// --- depreciation ---

const depreciationColumns = `id, asset_id, year, amount_minor, currency, method, booked, entry_id, created_at`

func scanDepreciation(sc scanner) (ledger.Depreciation, error) {
	var (
		d                ledger.Depreciation
		currency, method string
		created          string
		minor            int64
		booked           int
		entryID          uuid.NullUUID
	)
	if err := sc.Scan(&d.ID, &d.AssetID, &d.Year, &minor, &currency, &method, &booked, &entryID, &created); err != nil {
		return ledger.Depreciation{}, err
	}
	amt, err := ledger.FromMinor(currency, minor)
	if err != nil {
		return ledger.Depreciation{}, err
	}
	d.Amount = amt
	d.Method = ledger.DepreciationMethod(method)
	d.Booked = booked == 1
	if entryID.Valid {
		id := entryID.UUID
		d.EntryID = &id
	}
	d.CreatedAt = parseTS(created)
	return d, nil
}

func (r reader) depreciations(ctx context.Context, query string, args ...any) ([]ledger.Depreciation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list depreciations: %w", err)
	}
	defer rows.Close()
	out := make([]ledger.Depreciation, 0)
	for rows.Next() {
		d, err := scanDepreciation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r reader) Depreciations(ctx context.Context, year int) ([]ledger.Depreciation, error) {
	return r.depreciations(ctx,
		`SELECT `+depreciationColumns+` FROM depreciations WHERE year = ? ORDER BY created_at, id`, year)
}

func (r reader) AssetDepreciations(ctx context.Context, assetID uuid.UUID) ([]ledger.Depreciation, error) {
	return r.depreciations(ctx,
		`SELECT `+depreciationColumns+` FROM depreciations WHERE asset_id = ? ORDER BY year`, assetID)
}

func (t *tx) InsertDepreciation(ctx context.Context, d ledger.Depreciation) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO depreciations (`+depreciationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AssetID, d.Year, ledger.MinorUnits(d.Amount), d.Amount.Curr().Code(), string(d.Method),
		boolInt(d.Booked), d.EntryID, formatTS(d.CreatedAt))
	return mapConstraint(err, errs.ErrAlreadyExists, "depreciation of asset %s for %d", d.AssetID, d.Year)
}

func (t *tx) MarkDepreciationBooked(ctx context.Context, id, entryID uuid.UUID) error {
	res, err := t.q.ExecContext(ctx, `UPDATE depreciations SET booked = 1, entry_id = ? WHERE id = ?`, entryID, id)
	if err != nil {
		return fmt.Errorf("mark depreciation %s booked: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: depreciation %s", errs.ErrNotFound, id)
	}
	return nil
}
