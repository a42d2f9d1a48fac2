package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
)

const assetColumns = `id, name, asset_number, acquisition_date, useful_life_years, cost_minor,
	annual_minor, currency, disposal_date, created_at`

func scanAsset(row pgx.Row) (ledger.Asset, error) {
	var (
		a            ledger.Asset
		cost, annual int64
		currency     string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.AssetNumber, &a.AcquisitionDate, &a.UsefulLifeYears, &cost,
		&annual, &currency, &a.DisposalDate, &a.CreatedAt); err != nil {
		return ledger.Asset{}, err
	}
	currency = strings.TrimSpace(currency)
	var err error
	if a.AcquisitionCost, err = ledger.FromMinor(currency, cost); err != nil {
		return ledger.Asset{}, err
	}
	if a.AnnualDepreciation, err = ledger.FromMinor(currency, annual); err != nil {
		return ledger.Asset{}, err
	}
	a.AcquisitionDate = ledger.Day(a.AcquisitionDate)
	return a, nil
}

func (r reader) Asset(ctx context.Context, id uuid.UUID) (ledger.Asset, error) {
	a, err := scanAsset(r.q.QueryRow(ctx, `select `+assetColumns+` from assets where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Asset{}, fmt.Errorf("%w: asset %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return ledger.Asset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	return a, nil
}

func (r reader) Assets(ctx context.Context) ([]ledger.Asset, error) {
	rows, err := r.q.Query(ctx, `select `+assetColumns+` from assets order by asset_number`)
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
	_, err := t.q.Exec(ctx, `
		insert into assets (`+assetColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Name, a.AssetNumber, ledger.Day(a.AcquisitionDate), a.UsefulLifeYears, ledger.MinorUnits(a.AcquisitionCost),
		ledger.MinorUnits(a.AnnualDepreciation), a.AcquisitionCost.Curr().Code(), dateOrNil(a.DisposalDate), a.CreatedAt)
	return mapConstraint(err, errs.ErrAlreadyExists, "asset number %s", a.AssetNumber)
}

func (t *tx) UpdateAsset(ctx context.Context, a ledger.Asset) error {
	ct, err := t.q.Exec(ctx, `
		update assets
		set name = $1, asset_number = $2, acquisition_date = $3, useful_life_years = $4, cost_minor = $5,
			annual_minor = $6, currency = $7, disposal_date = $8
		where id = $9
	`, a.Name, a.AssetNumber, ledger.Day(a.AcquisitionDate), a.UsefulLifeYears, ledger.MinorUnits(a.AcquisitionCost),
		ledger.MinorUnits(a.AnnualDepreciation), a.AcquisitionCost.Curr().Code(), dateOrNil(a.DisposalDate), a.ID)
	if err != nil {
		return mapConstraint(err, errs.ErrAlreadyExists, "asset number %s", a.AssetNumber)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset %s", errs.ErrNotFound, a.ID)
	}
	return nil
}

// --- Depreciation ---

const depreciationColumns = `id, asset_id, year, amount_minor, currency, method, booked, entry_id, created_at`

func scanDepreciation(row pgx.Row) (ledger.Depreciation, error) {
	var (
		d        ledger.Depreciation
		minor    int64
		currency string
		entryID  uuid.NullUUID
	)
	if err := row.Scan(&d.ID, &d.AssetID, &d.Year, &minor, &currency, &d.Method, &d.Booked, &entryID, &d.CreatedAt); err != nil {
		return ledger.Depreciation{}, err
	}
	amt, err := ledger.FromMinor(strings.TrimSpace(currency), minor)
	if err != nil {
		return ledger.Depreciation{}, err
	}
	d.Amount = amt
	if entryID.Valid {
		id := entryID.UUID
		d.EntryID = &id
	}
	return d, nil
}

func (r reader) depreciations(ctx context.Context, query string, args ...any) ([]ledger.Depreciation, error) {
	rows, err := r.q.Query(ctx, query, args...)
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
	return r.depreciations(ctx, `
		select `+depreciationColumns+` from depreciations where year = $1 order by created_at, id
	`, year)
}

func (r reader) AssetDepreciations(ctx context.Context, assetID uuid.UUID) ([]ledger.Depreciation, error) {
	return r.depreciations(ctx, `
		select `+depreciationColumns+` from depreciations where asset_id = $1 order by year
	`, assetID)
}

func (t *tx) InsertDepreciation(ctx context.Context, d ledger.Depreciation) error {
	_, err := t.q.Exec(ctx, `
		insert into depreciations (`+depreciationColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.AssetID, d.Year, ledger.MinorUnits(d.Amount), d.Amount.Curr().Code(), string(d.Method),
		d.Booked, d.EntryID, d.CreatedAt)
	return mapConstraint(err, errs.ErrAlreadyExists, "depreciation of asset %s for %d", d.AssetID, d.Year)
}

func (t *tx) MarkDepreciationBooked(ctx context.Context, id, entryID uuid.UUID) error {
	ct, err := t.q.Exec(ctx, `update depreciations set booked = true, entry_id = $1 where id = $2`, entryID, id)
	if err != nil {
		return fmt.Errorf("mark depreciation %s booked: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: depreciation %s", errs.ErrNotFound, id)
	}
	return nil
}
