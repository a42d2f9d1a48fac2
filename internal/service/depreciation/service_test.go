package depreciation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/memory"
)

func asset(number string, cents int64, years int, acquired time.Time) ledger.Asset {
	return ledger.Asset{
		Name:            "Auswuchtmaschine " + number,
		AssetNumber:     number,
		AcquisitionDate: acquired,
		UsefulLifeYears: years,
		AcquisitionCost: ledger.MustFromMinor("EUR", cents),
	}
}

func TestRegisterComputesAnnualAmount(t *testing.T) {
	svc := New(memory.New(), "EUR", nil)
	a, err := svc.RegisterAsset(context.Background(), asset("A-1", 1200000, 4, ledger.Date(2024, time.February, 1)))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := ledger.MinorUnits(a.AnnualDepreciation); got != 300000 {
		t.Fatalf("want 3000.00 per year, got %d", got)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	svc := New(memory.New(), "EUR", nil)
	ctx := context.Background()
	cases := map[string]ledger.Asset{
		"no life":   asset("A-1", 1000, 0, ledger.Date(2024, time.January, 1)),
		"no cost":   asset("A-1", 0, 3, ledger.Date(2024, time.January, 1)),
		"no number": asset("", 1000, 3, ledger.Date(2024, time.January, 1)),
		"no date":   asset("A-1", 1000, 3, time.Time{}),
	}
	for name, a := range cases {
		if _, err := svc.RegisterAsset(ctx, a); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: want ErrValidation, got %v", name, err)
		}
	}
	if _, err := svc.RegisterAsset(ctx, asset("A-1", 1000, 3, ledger.Date(2024, time.January, 1))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterAsset(ctx, asset("A-1", 1000, 3, ledger.Date(2024, time.January, 1))); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("duplicate number: want ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateRecomputes(t *testing.T) {
	svc := New(memory.New(), "EUR", nil)
	ctx := context.Background()
	a, _ := svc.RegisterAsset(ctx, asset("A-1", 1200000, 4, ledger.Date(2024, time.January, 1)))
	a.UsefulLifeYears = 6
	a, err := svc.UpdateAsset(ctx, a)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := svc.Asset(ctx, a.ID)
	if ledger.MinorUnits(got.AnnualDepreciation) != 200000 {
		t.Fatalf("want 2000.00 after update, got %s", got.AnnualDepreciation)
	}
}

func TestScheduleYearIsIdempotent(t *testing.T) {
	st := memory.New()
	svc := New(st, "EUR", nil)
	ctx := context.Background()
	a, err := svc.RegisterAsset(ctx, asset("A-1", 1200000, 4, ledger.Date(2024, time.March, 1)))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := svc.ScheduleYear(ctx, 2024)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if res.Created != 1 || res.Skipped != 0 {
		t.Fatalf("first run: %+v", res)
	}
	rows, _ := svc.Schedule(ctx, 2024)
	if len(rows) != 1 || rows[0].AssetID != a.ID || rows[0].Booked || ledger.MinorUnits(rows[0].Amount) != 300000 {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	res, err = svc.ScheduleYear(ctx, 2024)
	if err != nil || res.Created != 0 || res.Skipped != 1 {
		t.Fatalf("second run: %+v %v", res, err)
	}
	rows, _ = svc.Schedule(ctx, 2024)
	if len(rows) != 1 {
		t.Fatalf("no duplicates allowed, got %d rows", len(rows))
	}
}

func TestScheduleHonoursServicePeriod(t *testing.T) {
	st := memory.New()
	svc := New(st, "EUR", nil)
	ctx := context.Background()

	// 1000.00 over 3 years: 333.33 in every year of service
	odd, _ := svc.RegisterAsset(ctx, asset("A-1", 100000, 3, ledger.Date(2021, time.June, 1)))
	future, _ := svc.RegisterAsset(ctx, asset("A-2", 50000, 5, ledger.Date(2025, time.February, 1)))
	gone, _ := svc.RegisterAsset(ctx, asset("A-3", 50000, 5, ledger.Date(2020, time.February, 1)))
	if _, err := svc.DisposeAsset(ctx, gone.ID, ledger.Date(2022, time.July, 1)); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if _, err := svc.DisposeAsset(ctx, gone.ID, ledger.Date(2022, time.August, 1)); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("second disposal: want ErrValidation, got %v", err)
	}

	for year := 2021; year <= 2024; year++ {
		res, err := svc.ScheduleYear(ctx, year)
		if err != nil {
			t.Fatalf("schedule %d: %v", year, err)
		}
		if res.Exhausted != 0 {
			t.Fatalf("%d: nothing is exhausted without the cost cap: %+v", year, res)
		}
		rows, _ := svc.Schedule(ctx, year)
		var seen bool
		for _, d := range rows {
			if d.AssetID == future.ID {
				t.Fatalf("asset acquired in 2025 scheduled for %d", year)
			}
			if d.AssetID == gone.ID && year > 2022 {
				t.Fatalf("disposed asset scheduled for %d", year)
			}
			if d.AssetID == odd.ID {
				seen = true
				if got := ledger.MinorUnits(d.Amount); got != 33333 {
					t.Fatalf("%d: want the annual amount 33333, got %d", year, got)
				}
			}
		}
		if !seen {
			t.Fatalf("%d: in-service asset has no row", year)
		}
	}
}

func TestScheduleCappedAtCost(t *testing.T) {
	svc := New(memory.New(), "EUR", nil, CapAtCost(true))
	ctx := context.Background()

	a, _ := svc.RegisterAsset(ctx, asset("A-1", 100000, 3, ledger.Date(2020, time.March, 1)))
	want := map[int]int64{2020: 33333, 2021: 33333, 2022: 33334}
	var total int64
	for year := 2020; year <= 2024; year++ {
		res, err := svc.ScheduleYear(ctx, year)
		if err != nil {
			t.Fatalf("schedule %d: %v", year, err)
		}
		rows, _ := svc.Schedule(ctx, year)
		if year > 2022 {
			if res.Exhausted != 1 || res.Created != 0 || len(rows) != 0 {
				t.Fatalf("%d: written-off asset must not be scheduled: %+v %d rows", year, res, len(rows))
			}
			continue
		}
		if len(rows) != 1 || rows[0].AssetID != a.ID {
			t.Fatalf("%d: want one row, got %+v", year, rows)
		}
		got := ledger.MinorUnits(rows[0].Amount)
		if got != want[year] {
			t.Fatalf("%d: want %d, got %d", year, want[year], got)
		}
		total += got
	}
	if total != 100000 {
		t.Fatalf("depreciation must sum to the cost, got %d", total)
	}
}

func TestScheduleRejectsLockedYear(t *testing.T) {
	st := memory.New()
	svc := New(st, "EUR", nil)
	ctx := context.Background()
	now := time.Now().UTC()
	err := st.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateClosing(ctx, ledger.YearEndClosing{
			Year: 2024, Status: ledger.ClosingLocked,
			DepreciationCompletedAt: &now, ReportsCompletedAt: &now, LockedAt: &now, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("seed closing: %v", err)
	}
	if _, err := svc.ScheduleYear(ctx, 2024); !errors.Is(err, errs.ErrPeriodLocked) {
		t.Fatalf("want ErrPeriodLocked, got %v", err)
	}
}
