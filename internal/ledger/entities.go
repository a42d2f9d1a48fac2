package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/reifenwerk/ledger/internal/errs"
)

// AccountType enumerates the broad classification of an account in the chart.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds resources of the entity.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest in the entity.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeRevenue represents inflows that increase equity.
	AccountTypeRevenue AccountType = "revenue"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// DebitNormal reports whether balances of t are shown as debit minus credit.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// BalanceSheetType reports whether t is carried forward across years.
func (t AccountType) BalanceSheetType() bool {
	return t == AccountTypeAsset || t == AccountTypeLiability || t == AccountTypeEquity
}

// TypeForNumber derives the account type from the leading digit of an
// SKR-style account number:
//
//	0, 1    assets (fixed, current)
//	2, 9    equity (capital, carry-forward accounts)
//	3       liabilities
//	4 - 7   expenses
//	8       revenue
func TypeForNumber(number string) (AccountType, error) {
	if len(number) < 4 || len(number) > 8 {
		return "", fmt.Errorf("%w: account number %q must have 4-8 digits", errs.ErrValidation, number)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: account number %q must be numeric", errs.ErrValidation, number)
		}
	}
	switch number[0] {
	case '0', '1':
		return AccountTypeAsset, nil
	case '2', '9':
		return AccountTypeEquity, nil
	case '3':
		return AccountTypeLiability, nil
	case '4', '5', '6', '7':
		return AccountTypeExpense, nil
	default:
		return AccountTypeRevenue, nil
	}
}

// GroupCode returns the account group an account number is aggregated under
// in statements: its first two digits.
func GroupCode(number string) string {
	if len(number) < 2 {
		return number
	}
	return number[:2]
}

// Account is a row of the chart of accounts.
type Account struct {
	Number    string
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// SourceType names the business event an entry originates from.
type SourceType string

const (
	SourceManual       SourceType = "MANUAL"
	SourceExpense      SourceType = "EXPENSE"
	SourceInvoice      SourceType = "INVOICE"
	SourcePayment      SourceType = "PAYMENT"
	SourcePayout       SourceType = "PAYOUT"
	SourceCommission   SourceType = "COMMISSION"
	SourceDepreciation SourceType = "DEPRECIATION"
)

var sourceTypes = []SourceType{
	SourceManual, SourceExpense, SourceInvoice, SourcePayment,
	SourcePayout, SourceCommission, SourceDepreciation,
}

// SourceTypes returns all known source types.
func SourceTypes() []SourceType {
	out := make([]SourceType, len(sourceTypes))
	copy(out, sourceTypes)
	return out
}

// ParseSourceType accepts a source type case-insensitively.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown source type %q", errs.ErrValidation, s)
	}
	return st, nil
}

// Valid reports whether st is a known source type.
func (st SourceType) Valid() bool {
	for _, v := range sourceTypes {
		if v == st {
			return true
		}
	}
	return false
}

// Entry is a single journal line: one amount moved from the credit account
// to the debit account. Entries are never updated except for the Locked flag;
// corrections are stornos linked through StornoOfID.
type Entry struct {
	ID            uuid.UUID
	EntryNumber   int64
	BookingDate   time.Time
	DocumentDate  *time.Time
	DebitAccount  string
	CreditAccount string
	Amount        money.Amount
	Description   string
	SourceType    SourceType
	SourceID      string
	IsStorno      bool
	StornoOfID    *uuid.UUID
	Locked        bool
	CreatedBy     string
	CreatedAt     time.Time
}

// SourceKey identifies the business event behind an entry for idempotency.
type SourceKey struct {
	Type SourceType
	ID   string
}

func (k SourceKey) String() string { return string(k.Type) + "/" + k.ID }

// Key returns the idempotency key of e; ok is false when e carries no source id.
func (e Entry) Key() (SourceKey, bool) {
	if e.SourceID == "" {
		return SourceKey{}, false
	}
	return SourceKey{Type: e.SourceType, ID: e.SourceID}, true
}

// Minor returns the amount in minor currency units (cents).
func (e Entry) Minor() int64 {
	units, _ := e.Amount.MinorUnits()
	return units
}

// Year is the fiscal year the entry is booked in.
func (e Entry) Year() int { return e.BookingDate.Year() }

// DateRange is an inclusive range of booking days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether day t lies within r.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.From)) && !d.After(Day(r.To))
}

// EntryFilter narrows ledger queries. Zero values match everything.
type EntryFilter struct {
	AccountNumber string
	Range         *DateRange
	SourceType    SourceType
}

// Matches applies the filter to a single entry.
func (f EntryFilter) Matches(e Entry) bool {
	if f.AccountNumber != "" && e.DebitAccount != f.AccountNumber && e.CreditAccount != f.AccountNumber {
		return false
	}
	if f.Range != nil && !f.Range.Contains(e.BookingDate) {
		return false
	}
	if f.SourceType != "" && e.SourceType != f.SourceType {
		return false
	}
	return true
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a booking day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// YearRange returns Jan 1 .. Dec 31 of year.
func YearRange(year int) DateRange {
	return DateRange{From: Date(year, time.January, 1), To: Date(year, time.December, 31)}
}

// Through returns the cumulative range from the beginning of records to Dec 31 of year.
func Through(year int) DateRange {
	return DateRange{From: time.Time{}, To: Date(year, time.December, 31)}
}

// Validate checks the shape of an entry before it touches the store. Account
// existence and period locks are checked by the journal inside the write.
func (e Entry) Validate() error {
	if e.DebitAccount == "" || e.CreditAccount == "" {
		return fmt.Errorf("%w: debit and credit account are required", errs.ErrValidation)
	}
	if e.DebitAccount == e.CreditAccount {
		return fmt.Errorf("%w: debit and credit account must differ (both %s)", errs.ErrValidation, e.DebitAccount)
	}
	if units, ok := e.Amount.MinorUnits(); !ok || units <= 0 {
		return fmt.Errorf("%w: amount must be > 0 (%s -> %s)", errs.ErrValidation, e.CreditAccount, e.DebitAccount)
	}
	// MinorUnits rounds, so fractions of a cent would slip through silently.
	if e.Amount.MinScale() > e.Amount.Curr().Scale() {
		return fmt.Errorf("%w: amount %s has more decimals than %s allows", errs.ErrValidation, e.Amount, e.Amount.Curr().Code())
	}
	if e.BookingDate.IsZero() {
		return fmt.Errorf("%w: booking date is required", errs.ErrValidation)
	}
	if !e.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", errs.ErrValidation, e.SourceType)
	}
	if e.IsStorno != (e.StornoOfID != nil) {
		return fmt.Errorf("%w: storno flag and storno reference must be set together", errs.ErrValidation)
	}
	return nil
}
