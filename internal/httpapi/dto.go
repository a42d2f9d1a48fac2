package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/booking"
)

// postEntryRequest books a business event. Dates are YYYY-MM-DD.
type postEntryRequest struct {
	SourceType    string `json:"source_type"`
	SourceID      string `json:"source_id"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AmountMinor   int64  `json:"amount_minor"`
	BookingDate   string `json:"booking_date"`
	DocumentDate  string `json:"document_date,omitempty"`
	Description   string `json:"description"`
	// NonBlocking downgrades a closed period into a warning.
	NonBlocking   bool   `json:"non_blocking,omitempty"`
}

type validatedEvent struct {
	event       booking.Event
	nonBlocking bool
}

type postEntryResponse struct {
	EntryID     *uuid.UUID `json:"entry_id,omitempty"`
	EntryNumber int64      `json:"entry_number,omitempty"`
	Existing    bool       `json:"existing"`
	Warning     string     `json:"warning,omitempty"`
}

type entryResponse struct {
	ID            uuid.UUID  `json:"id"`
	EntryNumber   int64      `json:"entry_number"`
	BookingDate   string     `json:"booking_date"`
	DocumentDate  string     `json:"document_date,omitempty"`
	DebitAccount  string     `json:"debit_account"`
	CreditAccount string     `json:"credit_account"`
	AmountMinor   int64      `json:"amount_minor"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Description   string     `json:"description"`
	SourceType    string     `json:"source_type"`
	SourceID      string     `json:"source_id,omitempty"`
	IsStorno      bool       `json:"is_storno"`
	StornoOfID    *uuid.UUID `json:"storno_of_id,omitempty"`
	Locked        bool       `json:"locked"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

type listEntriesResponse struct {
	Items []entryResponse `json:"items"`
}

type stornoRequest struct {
	Reason string `json:"reason"`
}

type postAccountRequest struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

type accountResponse struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Group  string `json:"group"`
	Label  string `json:"group_label"`
}

type balanceResponse struct {
	Account     string  `json:"account"`
	AsOf        *string `json:"as_of,omitempty"`
	AmountMinor int64   `json:"amount_minor"`
	Amount      string  `json:"amount"`
}

type trialBalanceResponse struct {
	AsOf  *string           `json:"as_of,omitempty"`
	Items []balanceResponse `json:"items"`
}

type assetRequest struct {
	Name            string `json:"name"`
	AssetNumber     string `json:"asset_number"`
	AcquisitionDate string `json:"acquisition_date"`
	UsefulLifeYears int    `json:"useful_life_years"`
	CostMinor       int64  `json:"acquisition_cost_minor"`
}

type disposeRequest struct {
	DisposalDate string `json:"disposal_date"`
}

type assetResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	AssetNumber     string    `json:"asset_number"`
	AcquisitionDate string    `json:"acquisition_date"`
	UsefulLifeYears int       `json:"useful_life_years"`
	CostMinor       int64     `json:"acquisition_cost_minor"`
	AnnualMinor     int64     `json:"annual_depreciation_minor"`
	DisposalDate    string    `json:"disposal_date,omitempty"`
}

type depreciationResponse struct {
	ID          uuid.UUID  `json:"id"`
	AssetID     uuid.UUID  `json:"asset_id"`
	Year        int        `json:"year"`
	AmountMinor int64      `json:"amount_minor"`
	Method      string     `json:"method"`
	Booked      bool       `json:"booked"`
	EntryID     *uuid.UUID `json:"entry_id,omitempty"`
}

type lineResponse struct {
	Group       string `json:"group"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	AmountMinor int64  `json:"amount_minor"`
}

type balanceSheetResponse struct {
	Year             int            `json:"year"`
	FiscalYear       string         `json:"fiscal_year,omitempty"`
	Assets           []lineResponse `json:"assets"`
	Liabilities      []lineResponse `json:"liabilities"`
	Equity           []lineResponse `json:"equity"`
	TotalAssets      int64          `json:"total_assets_minor"`
	TotalLiabilities int64          `json:"total_liabilities_minor"`
	TotalEquity      int64          `json:"total_equity_minor"`
	RetainedEarnings int64          `json:"retained_earnings_minor"`
	NetIncome        int64          `json:"net_income_minor"`
	Balanced         bool           `json:"balanced"`
	Locked           bool           `json:"locked"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

type incomeStatementResponse struct {
	Year          int            `json:"year"`
	FiscalYear    string         `json:"fiscal_year,omitempty"`
	Revenue       []lineResponse `json:"revenue"`
	Expenses      []lineResponse `json:"expenses"`
	TotalRevenue  int64          `json:"total_revenue_minor"`
	TotalExpenses int64          `json:"total_expenses_minor"`
	NetIncome     int64          `json:"net_income_minor"`
	Locked        bool           `json:"locked"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

type generateRequest struct {
	FiscalYear string `json:"fiscal_year"`
}

type closingResponse struct {
	Year                    int        `json:"year"`
	FiscalYear              string     `json:"fiscal_year,omitempty"`
	Status                  string     `json:"status"`
	DepreciationCompletedAt *time.Time `json:"depreciation_completed_at,omitempty"`
	ReportsCompletedAt      *time.Time `json:"reports_completed_at,omitempty"`
	LockedAt                *time.Time `json:"locked_at,omitempty"`
	InitiatedBy             string     `json:"initiated_by,omitempty"`
}

func formatDay(t time.Time) string { return t.Format(time.DateOnly) }

func formatDayPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDay(*t)
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		EntryNumber:   e.EntryNumber,
		BookingDate:   formatDay(e.BookingDate),
		DocumentDate:  formatDayPtr(e.DocumentDate),
		DebitAccount:  e.DebitAccount,
		CreditAccount: e.CreditAccount,
		AmountMinor:   e.Minor(),
		Amount:        ledger.FormatMinor(e.Minor()),
		Currency:      e.Amount.Curr().Code(),
		Description:   e.Description,
		SourceType:    string(e.SourceType),
		SourceID:      e.SourceID,
		IsStorno:      e.IsStorno,
		StornoOfID:    e.StornoOfID,
		Locked:        e.Locked,
		CreatedBy:     e.CreatedBy,
		CreatedAt:     e.CreatedAt,
	}
}

func toAssetResponse(a ledger.Asset) assetResponse {
	return assetResponse{
		ID:              a.ID,
		Name:            a.Name,
		AssetNumber:     a.AssetNumber,
		AcquisitionDate: formatDay(a.AcquisitionDate),
		UsefulLifeYears: a.UsefulLifeYears,
		CostMinor:       ledger.MinorUnits(a.AcquisitionCost),
		AnnualMinor:     ledger.MinorUnits(a.AnnualDepreciation),
		DisposalDate:    formatDayPtr(a.DisposalDate),
	}
}

func toDepreciationResponse(d ledger.Depreciation) depreciationResponse {
	return depreciationResponse{
		ID:          d.ID,
		AssetID:     d.AssetID,
		Year:        d.Year,
		AmountMinor: ledger.MinorUnits(d.Amount),
		Method:      string(d.Method),
		Booked:      d.Booked,
		EntryID:     d.EntryID,
	}
}

func toLines(in []ledger.StatementLine) []lineResponse {
	out := make([]lineResponse, 0, len(in))
	for _, l := range in {
		out = append(out, lineResponse{Group: l.Group, Label: l.Label, Type: string(l.Type), AmountMinor: ledger.MinorUnits(l.Amount)})
	}
	return out
}

func minor(a money.Amount) int64 { return ledger.MinorUnits(a) }

func toBalanceSheetResponse(bs ledger.BalanceSheet) balanceSheetResponse {
	return balanceSheetResponse{
		Year:             bs.Year,
		FiscalYear:       bs.FiscalYear,
		Assets:           toLines(bs.Assets),
		Liabilities:      toLines(bs.Liabilities),
		Equity:           toLines(bs.Equity),
		TotalAssets:      minor(bs.TotalAssets),
		TotalLiabilities: minor(bs.TotalLiabilities),
		TotalEquity:      minor(bs.TotalEquity),
		RetainedEarnings: minor(bs.RetainedEarnings),
		NetIncome:        minor(bs.NetIncome),
		Balanced:         bs.Balanced,
		Locked:           bs.Locked,
		GeneratedAt:      bs.GeneratedAt,
	}
}

func toIncomeStatementResponse(is ledger.IncomeStatement) incomeStatementResponse {
	return incomeStatementResponse{
		Year:          is.Year,
		FiscalYear:    is.FiscalYear,
		Revenue:       toLines(is.Revenue),
		Expenses:      toLines(is.Expenses),
		TotalRevenue:  minor(is.TotalRevenue),
		TotalExpenses: minor(is.TotalExpenses),
		NetIncome:     minor(is.NetIncome),
		Locked:        is.Locked,
		GeneratedAt:   is.GeneratedAt,
	}
}

func toClosingResponse(c ledger.YearEndClosing) closingResponse {
	return closingResponse{
		Year:                    c.Year,
		FiscalYear:              c.FiscalYear,
		Status:                  string(c.Status),
		DepreciationCompletedAt: c.DepreciationCompletedAt,
		ReportsCompletedAt:      c.ReportsCompletedAt,
		LockedAt:                c.LockedAt,
		InitiatedBy:             c.InitiatedBy,
	}
}
