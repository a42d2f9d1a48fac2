package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/reifenwerk/ledger/internal/errs"
)

// DepreciationMethod names how an asset loses value over its useful life.
type DepreciationMethod string

// DepreciationLinear spreads the acquisition cost evenly over the useful life.
const DepreciationLinear DepreciationMethod = "linear"

// Asset is a fixed asset of the entity (tire changers, balancing machines,
// lifts, vehicles, office equipment).
type Asset struct {
	ID                 uuid.UUID
	Name               string
	AssetNumber        string
	AcquisitionDate    time.Time
	UsefulLifeYears    int
	AcquisitionCost    money.Amount
	AnnualDepreciation money.Amount
	DisposalDate       *time.Time
	CreatedAt          time.Time
}

// Depreciation is the scheduled write-down of one asset for one year.
// Booked flips to true only once the ledger entry exists.
type Depreciation struct {
	ID        uuid.UUID
	AssetID   uuid.UUID
	Year      int
	Amount    money.Amount
	Method    DepreciationMethod
	Booked    bool
	EntryID   *uuid.UUID
	CreatedAt time.Time
}

// StraightLine computes cost / years rounded half-up to the cent.
func StraightLine(cost money.Amount, years int) (money.Amount, error) {
	if years <= 0 {
		return money.Amount{}, fmt.Errorf("%w: useful life must be > 0, got %d", errs.ErrValidation, years)
	}
	units := MinorUnits(cost)
	per := decimal.NewFromInt(units).Div(decimal.NewFromInt(int64(years))).Round(0)
	return FromMinor(cost.Curr().Code(), per.IntPart())
}

// Recompute derives AnnualDepreciation from cost and useful life.
func (a *Asset) Recompute() error {
	annual, err := StraightLine(a.AcquisitionCost, a.UsefulLifeYears)
	if err != nil {
		return err
	}
	a.AnnualDepreciation = annual
	return nil
}

// Validate checks the asset master data.
func (a Asset) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: asset name is required", errs.ErrValidation)
	}
	if a.AssetNumber == "" {
		return fmt.Errorf("%w: asset number is required", errs.ErrValidation)
	}
	if a.AcquisitionDate.IsZero() {
		return fmt.Errorf("%w: asset %s: acquisition date is required", errs.ErrValidation, a.AssetNumber)
	}
	if a.UsefulLifeYears <= 0 {
		return fmt.Errorf("%w: asset %s: useful life must be > 0", errs.ErrValidation, a.AssetNumber)
	}
	if MinorUnits(a.AcquisitionCost) <= 0 {
		return fmt.Errorf("%w: asset %s: acquisition cost must be > 0", errs.ErrValidation, a.AssetNumber)
	}
	if a.DisposalDate != nil && a.DisposalDate.Before(a.AcquisitionDate) {
		return fmt.Errorf("%w: asset %s: disposal before acquisition", errs.ErrValidation, a.AssetNumber)
	}
	return nil
}

// InServiceDuring reports whether the asset is held at some point of year:
// acquired on or before Dec 31 and not disposed on or before Jan 1.
func (a Asset) InServiceDuring(year int) bool {
	r := YearRange(year)
	if Day(a.AcquisitionDate).After(r.To) {
		return false
	}
	if a.DisposalDate != nil && !Day(*a.DisposalDate).After(r.From) {
		return false
	}
	return a.UsefulLifeYears > 0
}

// DepreciationFor returns the write-down for year: the annual amount for
// every year the asset is in service. With capAtCost the final year of the
// useful life takes the rounding remainder so the sum equals the acquisition
// cost, and ok is false once the life is exhausted.
func (a Asset) DepreciationFor(year int, capAtCost bool) (amount money.Amount, ok bool, err error) {
	if !a.InServiceDuring(year) {
		return money.Amount{}, false, nil
	}
	if !capAtCost {
		return a.AnnualDepreciation, true, nil
	}
	idx := year - a.AcquisitionDate.Year()
	if idx < 0 || idx >= a.UsefulLifeYears {
		return money.Amount{}, false, nil
	}
	annual := MinorUnits(a.AnnualDepreciation)
	units := annual
	if idx == a.UsefulLifeYears-1 {
		units = MinorUnits(a.AcquisitionCost) - annual*int64(a.UsefulLifeYears-1)
	}
	if units <= 0 {
		return money.Amount{}, false, nil
	}
	amount, err = FromMinor(a.AcquisitionCost.Curr().Code(), units)
	if err != nil {
		return money.Amount{}, false, err
	}
	return amount, true, nil
}
