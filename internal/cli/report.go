package cli

import (
	"github.com/govalues/money"
	"github.com/spf13/cobra"

	"github.com/reifenwerk/ledger/internal/ledger"
)

func newReportCommand(get func() *app) *cobra.Command {
	var (
		generate   bool
		fiscalYear string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show or generate financial statements",
	}
	cmd.PersistentFlags().BoolVar(&generate, "generate", false, "regenerate the snapshot before printing")
	cmd.PersistentFlags().StringVar(&fiscalYear, "fiscal-year", "", "fiscal year label stored with a generated snapshot")

	cmd.AddCommand(&cobra.Command{
		Use:   "balance-sheet <year>",
		Short: "Balance sheet as of Dec 31",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			svc := get().svc.Statements
			var bs ledger.BalanceSheet
			if generate {
				bs, err = svc.GenerateBalanceSheet(cmd.Context(), year, fiscalYear)
			} else {
				bs, err = svc.BalanceSheet(cmd.Context(), year)
			}
			if err != nil {
				return err
			}
			printf(cmd, "Bilanz %d%s\n", bs.Year, lockedMark(bs.Locked))
			section(cmd, "Aktiva", bs.Assets, bs.TotalAssets)
			section(cmd, "Passiva", bs.Liabilities, bs.TotalLiabilities)
			section(cmd, "Eigenkapital", bs.Equity, bs.TotalEquity)
			printf(cmd, "  %-40s %14s\n", "Gewinnvortrag", ledger.FormatMinor(ledger.MinorUnits(bs.RetainedEarnings)))
			printf(cmd, "  %-40s %14s\n", "Jahresergebnis", ledger.FormatMinor(ledger.MinorUnits(bs.NetIncome)))
			if !bs.Balanced {
				printf(cmd, "WARNING: balance sheet does not balance\n")
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "income-statement <year>",
		Short: "Income statement for Jan 1 to Dec 31",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			svc := get().svc.Statements
			var is ledger.IncomeStatement
			if generate {
				is, err = svc.GenerateIncomeStatement(cmd.Context(), year, fiscalYear)
			} else {
				is, err = svc.IncomeStatement(cmd.Context(), year)
			}
			if err != nil {
				return err
			}
			printf(cmd, "GuV %d%s\n", is.Year, lockedMark(is.Locked))
			section(cmd, "Erträge", is.Revenue, is.TotalRevenue)
			section(cmd, "Aufwendungen", is.Expenses, is.TotalExpenses)
			printf(cmd, "  %-40s %14s\n", "Jahresergebnis", ledger.FormatMinor(ledger.MinorUnits(is.NetIncome)))
			return nil
		},
	})
	return cmd
}

func lockedMark(locked bool) string {
	if locked {
		return " (festgeschrieben)"
	}
	return ""
}

func section(cmd *cobra.Command, title string, lines []ledger.StatementLine, total money.Amount) {
	printf(cmd, "%s\n", title)
	for _, l := range lines {
		printf(cmd, "  %-4s %-35s %14s\n", l.Group, l.Label, ledger.FormatMinor(ledger.MinorUnits(l.Amount)))
	}
	printf(cmd, "  %-40s %14s\n", "Summe "+title, ledger.FormatMinor(ledger.MinorUnits(total)))
}
