package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/reifenwerk/ledger/internal/ledger"
)

func newCloseCommand(get func() *app, root *rootFlags) *cobra.Command {
	var fiscalYear string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Run the year-end closing workflow",
		Long: `The closing of a year runs in order: init, depreciation, reports, lock.
Once locked, entries and statements of the year can no longer change.`,
	}

	step := func(use, short string, run func(cmd *cobra.Command, a *app, year int) (ledger.YearEndClosing, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <year>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				year, err := parseYear(args[0])
				if err != nil {
					return err
				}
				c, err := run(cmd, get(), year)
				if err != nil {
					return err
				}
				printClosing(cmd, c)
				return nil
			},
		}
	}

	initCmd := step("init", "Start the closing of a year", func(cmd *cobra.Command, a *app, year int) (ledger.YearEndClosing, error) {
		return a.svc.Closing.Initiate(cmd.Context(), year, fiscalYear, root.user)
	})
	initCmd.Flags().StringVar(&fiscalYear, "fiscal-year", "", "fiscal year label, e.g. 2024")

	cmd.AddCommand(
		initCmd,
		step("depreciation", "Schedule and book the depreciation of the year", func(cmd *cobra.Command, a *app, year int) (ledger.YearEndClosing, error) {
			return a.svc.Closing.CompleteDepreciation(cmd.Context(), year, root.user)
		}),
		step("reports", "Generate the statements of the year", func(cmd *cobra.Command, a *app, year int) (ledger.YearEndClosing, error) {
			return a.svc.Closing.CompleteReports(cmd.Context(), year, root.user)
		}),
		step("lock", "Lock the year", func(cmd *cobra.Command, a *app, year int) (ledger.YearEndClosing, error) {
			return a.svc.Closing.LockYear(cmd.Context(), year, root.user)
		}),
		step("status", "Show the closing state of a year", func(cmd *cobra.Command, a *app, year int) (ledger.YearEndClosing, error) {
			return a.svc.Closing.Status(cmd.Context(), year)
		}),
	)
	return cmd
}

func printClosing(cmd *cobra.Command, c ledger.YearEndClosing) {
	printf(cmd, "Year %d: %s\n", c.Year, c.Status)
	stamp := func(label string, t *time.Time) {
		if t != nil {
			printf(cmd, "  %-14s %s\n", label, t.Format(time.RFC3339))
		}
	}
	stamp("depreciation", c.DepreciationCompletedAt)
	stamp("reports", c.ReportsCompletedAt)
	stamp("locked", c.LockedAt)
}
