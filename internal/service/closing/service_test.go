package closing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reifenwerk/ledger/internal/config"
	"github.com/reifenwerk/ledger/internal/dictionary"
	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/account"
	"github.com/reifenwerk/ledger/internal/service/booking"
	"github.com/reifenwerk/ledger/internal/service/depreciation"
	"github.com/reifenwerk/ledger/internal/service/journal"
	"github.com/reifenwerk/ledger/internal/service/statement"
	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/memory"
)

type fixture struct {
	store   storage.Store
	accts   account.Service
	journal journal.Service
	booking booking.Service
	deps    depreciation.Service
	stmts   statement.Service
	svc     Service
}

func newFixture(t *testing.T, cfg *config.Config) fixture {
	t.Helper()
	st := memory.New()
	f := fixture{store: st}
	f.accts = account.New(st, nil)
	f.journal = journal.New(st, cfg.Currency, nil)
	f.booking = booking.New(st, f.journal, booking.Accounts{
		DepreciationExpense:     cfg.Accounts.DepreciationExpense,
		AccumulatedDepreciation: cfg.Accounts.AccumulatedDepreciation,
	}, nil)
	f.deps = depreciation.New(st, cfg.Currency, nil)
	f.stmts = statement.New(st, cfg.Currency, nil)
	f.svc = New(Deps{
		Store:        st,
		Accounts:     f.accts,
		Depreciation: f.deps,
		Booking:      f.booking,
		Statements:   f.stmts,
		Auth:         cfg,
	})
	return f
}

func seeded(t *testing.T, cfg *config.Config) fixture {
	t.Helper()
	f := newFixture(t, cfg)
	if _, err := f.accts.EnsureChart(context.Background(), dictionary.DefaultChart); err != nil {
		t.Fatalf("seed chart: %v", err)
	}
	return f
}

func event(id string, day time.Time) booking.Event {
	return booking.Event{
		SourceType:    ledger.SourceInvoice,
		SourceID:      id,
		DebitAccount:  "1400",
		CreditAccount: "8400",
		Amount:        ledger.MustFromMinor("EUR", 23800),
		BookingDate:   day,
		Description:   "Rechnung Radwechsel",
		CreatedBy:     "billing",
	}
}

func TestInitiateRequiresChart(t *testing.T) {
	f := newFixture(t, config.Default())
	if _, err := f.svc.Initiate(context.Background(), 2024, "", "anna"); !errors.Is(err, errs.ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
}

func TestInitiateOnce(t *testing.T) {
	f := seeded(t, config.Default())
	ctx := context.Background()
	c, err := f.svc.Initiate(ctx, 2024, "GJ 2024", "anna")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if c.Status != ledger.ClosingInProgress || c.InitiatedBy != "anna" || c.FiscalYear != "GJ 2024" {
		t.Fatalf("unexpected closing: %+v", c)
	}
	if _, err := f.svc.Initiate(ctx, 2024, "", "anna"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	f := seeded(t, config.Default())
	ctx := context.Background()
	c, err := f.svc.Status(ctx, 2030)
	if err != nil || c.Status != ledger.ClosingNotInitialized || c.Year != 2030 {
		t.Fatalf("unknown year: %+v %v", c, err)
	}
	if _, err := f.svc.Initiate(ctx, 2030, "", "anna"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if c, _ := f.svc.Status(ctx, 2030); c.Status != ledger.ClosingInProgress {
		t.Fatalf("want in progress, got %s", c.Status)
	}
}

func TestStepsRequireInitiation(t *testing.T) {
	f := seeded(t, config.Default())
	ctx := context.Background()
	if _, err := f.svc.CompleteDepreciation(ctx, 2024, "anna"); !errors.Is(err, errs.ErrNotInitialized) {
		t.Fatalf("depreciation: want ErrNotInitialized, got %v", err)
	}
	if _, err := f.svc.CompleteReports(ctx, 2024, "anna"); !errors.Is(err, errs.ErrNotInitialized) {
		t.Fatalf("reports: want ErrNotInitialized, got %v", err)
	}
	if _, err := f.svc.LockYear(ctx, 2024, "anna"); !errors.Is(err, errs.ErrNotInitialized) {
		t.Fatalf("lock: want ErrNotInitialized, got %v", err)
	}
}

func TestAuthorization(t *testing.T) {
	cfg := config.Default()
	cfg.Closing.Admins = []string{"steuerberater"}
	f := seeded(t, cfg)
	ctx := context.Background()
	if _, err := f.svc.Initiate(ctx, 2024, "", "azubi"); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Initiate(ctx, 2024, "", "steuerberater"); err != nil {
		t.Fatalf("admin initiate: %v", err)
	}
	if _, err := f.svc.LockYear(ctx, 2024, "azubi"); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestYearEndWorkflow(t *testing.T) {
	f := seeded(t, config.Default())
	ctx := context.Background()

	first, err := f.booking.PostBusinessEvent(ctx, event("inv-1", ledger.Date(2024, time.March, 3)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := f.deps.RegisterAsset(ctx, ledger.Asset{
		Name: "Reifenmontiermaschine", AssetNumber: "AV-01",
		AcquisitionDate: ledger.Date(2024, time.January, 5), UsefulLifeYears: 4,
		AcquisitionCost: ledger.MustFromMinor("EUR", 1200000),
	}); err != nil {
		t.Fatalf("register asset: %v", err)
	}

	if _, err := f.svc.Initiate(ctx, 2024, "", "anna"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.LockYear(ctx, 2024, "anna"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("lock before steps: want ErrValidation, got %v", err)
	}

	c, err := f.svc.CompleteDepreciation(ctx, 2024, "anna")
	if err != nil || c.DepreciationCompletedAt == nil {
		t.Fatalf("complete depreciation: %+v %v", c, err)
	}
	stamp := *c.DepreciationCompletedAt
	c, err = f.svc.CompleteDepreciation(ctx, 2024, "anna")
	if err != nil || !c.DepreciationCompletedAt.Equal(stamp) {
		t.Fatalf("repeated step must be a no-op: %+v %v", c, err)
	}
	dep := ledger.EntryFilter{SourceType: ledger.SourceDepreciation}
	deps, _ := storage.Collect(f.journal.Query(ctx, dep))
	if len(deps) != 1 || deps[0].Minor() != 300000 {
		t.Fatalf("want one depreciation entry of 3000.00, got %+v", deps)
	}

	if c, err = f.svc.CompleteReports(ctx, 2024, "anna"); err != nil || c.ReportsCompletedAt == nil {
		t.Fatalf("complete reports: %+v %v", c, err)
	}
	is, err := f.stmts.IncomeStatement(ctx, 2024)
	if err != nil || ledger.MinorUnits(is.NetIncome) != 23800-300000 {
		t.Fatalf("income statement: %+v %v", is, err)
	}
	if _, err := f.svc.CompleteReports(ctx, 2024, "anna"); err != nil {
		t.Fatalf("repeated reports: %v", err)
	}

	c, err = f.svc.LockYear(ctx, 2024, "anna")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if c.Status != ledger.ClosingLocked || c.LockedAt == nil {
		t.Fatalf("unexpected closing: %+v", c)
	}
	if _, err := f.svc.LockYear(ctx, 2024, "anna"); !errors.Is(err, errs.ErrAlreadyLocked) {
		t.Fatalf("second lock: want ErrAlreadyLocked, got %v", err)
	}

	// every 2024 entry and both statements carry the lock
	for e, err := range f.journal.Export(ctx, ledger.YearRange(2024)) {
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		if !e.Locked {
			t.Fatalf("entry %d not locked", e.EntryNumber)
		}
	}
	if bs, _ := f.stmts.BalanceSheet(ctx, 2024); !bs.Locked {
		t.Fatalf("balance sheet not locked")
	}
	if is, _ := f.stmts.IncomeStatement(ctx, 2024); !is.Locked {
		t.Fatalf("income statement not locked")
	}

	if _, err := f.booking.PostBusinessEvent(ctx, event("inv-2", ledger.Date(2024, time.June, 1))); !errors.Is(err, errs.ErrPeriodLocked) {
		t.Fatalf("post into 2024: want ErrPeriodLocked, got %v", err)
	}
	if _, err := f.booking.PostBusinessEvent(ctx, event("inv-2", ledger.Date(2025, time.January, 1))); err != nil {
		t.Fatalf("post into 2025: %v", err)
	}
	if _, err := f.journal.Storno(ctx, first.EntryID, "Gutschrift", "anna"); !errors.Is(err, errs.ErrPeriodLocked) {
		t.Fatalf("storno in 2024: want ErrPeriodLocked, got %v", err)
	}
	if _, err := f.stmts.GenerateIncomeStatement(ctx, 2024, ""); !errors.Is(err, errs.ErrAlreadyLocked) {
		t.Fatalf("regenerate: want ErrAlreadyLocked, got %v", err)
	}
	if _, err := f.svc.CompleteReports(ctx, 2024, "anna"); !errors.Is(err, errs.ErrAlreadyLocked) {
		t.Fatalf("step after lock: want ErrAlreadyLocked, got %v", err)
	}
}
