package ledger

import (
	"time"

	"github.com/govalues/money"
)

// StatementLine is the aggregated balance of one account group.
type StatementLine struct {
	Group  string
	Label  string
	Type   AccountType
	Amount money.Amount
}

// BalanceSheet is the persisted snapshot of cumulative asset, liability and
// equity balances as of Dec 31 of Year.
type BalanceSheet struct {
	Year             int
	FiscalYear       string
	Assets           []StatementLine
	Liabilities      []StatementLine
	Equity           []StatementLine
	TotalAssets      money.Amount
	TotalLiabilities money.Amount
	TotalEquity      money.Amount
	// RetainedEarnings is the cumulative result of all years before Year.
	RetainedEarnings money.Amount
	// NetIncome is the result of Year itself.
	NetIncome   money.Amount
	Balanced    bool
	Locked      bool
	GeneratedAt time.Time
}

// IncomeStatement is the persisted snapshot of revenue and expenses booked
// within Jan 1 .. Dec 31 of Year.
type IncomeStatement struct {
	Year          int
	FiscalYear    string
	Revenue       []StatementLine
	Expenses      []StatementLine
	TotalRevenue  money.Amount
	TotalExpenses money.Amount
	NetIncome     money.Amount
	Locked        bool
	GeneratedAt   time.Time
}
