package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reifenwerk/ledger/internal/ledger"
)

func newAssetCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage the fixed-asset register",
	}
	cmd.AddCommand(newAssetAddCommand(get), newAssetListCommand(get), newAssetDisposeCommand(get))
	return cmd
}

func newAssetAddCommand(get func() *app) *cobra.Command {
	var (
		name     string
		number   string
		acquired string
		years    int
		cost     string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an asset for straight-line depreciation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			day, err := parseDay("acquired", acquired)
			if err != nil {
				return err
			}
			amt, err := ledger.ParseAmount(a.cfg.Currency, cost)
			if err != nil {
				return err
			}
			asset, err := a.svc.Depreciation.RegisterAsset(cmd.Context(), ledger.Asset{
				Name:            name,
				AssetNumber:     number,
				AcquisitionDate: day,
				UsefulLifeYears: years,
				AcquisitionCost: amt,
			})
			if err != nil {
				return err
			}
			printf(cmd, "Registered %s %q (%s), %s per year\n", asset.AssetNumber, asset.Name, asset.ID,
				ledger.FormatMinor(ledger.MinorUnits(asset.AnnualDepreciation)))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "asset name")
	f.StringVar(&number, "number", "", "inventory number")
	f.StringVar(&acquired, "acquired", "", "acquisition date")
	f.IntVar(&years, "years", 0, "useful life in years")
	f.StringVar(&cost, "cost", "", "acquisition cost, e.g. 5000.00")
	for _, n := range []string{"name", "number", "acquired", "years", "cost"} {
		_ = cmd.MarkFlagRequired(n)
	}
	return cmd
}

func newAssetListCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			assets, err := get().svc.Depreciation.Assets(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd, "%-10s  %-30s  %-10s  %5s  %12s  %12s  %s\n", "NUMBER", "NAME", "ACQUIRED", "YEARS", "COST", "ANNUAL", "DISPOSED")
			for _, a := range assets {
				disposed := ""
				if a.DisposalDate != nil {
					disposed = a.DisposalDate.Format(time.DateOnly)
				}
				printf(cmd, "%-10s  %-30s  %-10s  %5d  %12s  %12s  %s\n",
					a.AssetNumber, a.Name, a.AcquisitionDate.Format(time.DateOnly), a.UsefulLifeYears,
					ledger.FormatMinor(ledger.MinorUnits(a.AcquisitionCost)),
					ledger.FormatMinor(ledger.MinorUnits(a.AnnualDepreciation)), disposed)
			}
			return nil
		},
	}
}

func newAssetDisposeCommand(get func() *app) *cobra.Command {
	var on string
	cmd := &cobra.Command{
		Use:   "dispose <asset-id>",
		Short: "Record the disposal of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid asset id %q: %w", args[0], err)
			}
			day, err := parseDay("date", on)
			if err != nil {
				return err
			}
			a, err := get().svc.Depreciation.DisposeAsset(cmd.Context(), id, day)
			if err != nil {
				return err
			}
			printf(cmd, "Disposed %s on %s\n", a.AssetNumber, day.Format(time.DateOnly))
			return nil
		},
	}
	cmd.Flags().StringVar(&on, "date", time.Now().UTC().Format(time.DateOnly), "disposal date")
	return cmd
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(s)
	if err != nil || y < 1900 || y > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

func newDepreciationCommand(get func() *app, root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depreciation",
		Short: "Schedule and post annual depreciation",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schedule <year>",
		Short: "Create the missing depreciation rows of a year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			res, err := get().svc.Depreciation.ScheduleYear(cmd.Context(), year)
			if err != nil {
				return err
			}
			printf(cmd, "%d: %d scheduled, %d already scheduled, %d fully depreciated\n", year, res.Created, res.Skipped, res.Exhausted)
			return nil
		},
	}, &cobra.Command{
		Use:   "post <year>",
		Short: "Book the scheduled depreciation of a year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			res, err := get().svc.Booking.PostDepreciations(cmd.Context(), year, root.user)
			if err != nil {
				return err
			}
			printf(cmd, "%d: %d posted, %d already booked\n", year, res.Posted, res.Already)
			return nil
		},
	})
	return cmd
}
