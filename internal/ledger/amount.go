package ledger

import (
	"fmt"

	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/reifenwerk/ledger/internal/errs"
)

// Zero returns a zero amount in curr.
func Zero(curr string) money.Amount {
	a, _ := money.NewAmountFromMinorUnits(curr, 0)
	return a
}

// FromMinor builds an amount from minor units (cents).
func FromMinor(curr string, units int64) (money.Amount, error) {
	a, err := money.NewAmountFromMinorUnits(curr, units)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: amount %d %s: %v", errs.ErrValidation, units, curr, err)
	}
	return a, nil
}

// MustFromMinor is FromMinor for constants and tests.
func MustFromMinor(curr string, units int64) money.Amount {
	a, err := FromMinor(curr, units)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAmount parses a decimal string such as "119.00" or "119" into an
// amount. More than two fractional digits are rejected rather than rounded.
func ParseAmount(curr, s string) (money.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: invalid amount %q", errs.ErrValidation, s)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return money.Amount{}, fmt.Errorf("%w: amount %q has more than 2 decimal places", errs.ErrValidation, s)
	}
	return FromMinor(curr, cents.IntPart())
}

// MinorUnits returns a in cents; amounts that do not fit are reported as 0.
func MinorUnits(a money.Amount) int64 {
	units, _ := a.MinorUnits()
	return units
}

// FormatMinor renders cents as a plain decimal string ("119.00").
func FormatMinor(units int64) string {
	return decimal.New(units, -2).StringFixed(2)
}
