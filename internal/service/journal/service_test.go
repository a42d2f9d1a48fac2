package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/memory"
	"github.com/reifenwerk/ledger/internal/storage/storagetest"
)

func newJournal(t *testing.T) (Service, storage.Store) {
	t.Helper()
	st := memory.New()
	storagetest.Seed(t, st, "1200", "1400", "3806", "4400", "8400")
	return New(st, "EUR", nil), st
}

func entry(debit, credit string, cents int64, day time.Time) ledger.Entry {
	return ledger.Entry{
		BookingDate:   day,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        ledger.MustFromMinor("EUR", cents),
		Description:   "Reifenwechsel",
		SourceType:    ledger.SourceManual,
		CreatedBy:     "tester",
	}
}

func lockYear(t *testing.T, st storage.Store, year int) {
	t.Helper()
	now := time.Now().UTC()
	err := st.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateClosing(ctx, ledger.YearEndClosing{
			Year: year, Status: ledger.ClosingLocked,
			DepreciationCompletedAt: &now, ReportsCompletedAt: &now, LockedAt: &now,
			InitiatedBy: "tester", CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("lock year: %v", err)
	}
}

func TestAppendValidation(t *testing.T) {
	svc, st := newJournal(t)
	ctx := context.Background()
	day := ledger.Date(2024, time.March, 1)

	usd := entry("4400", "1200", 100, day)
	usd.Amount = ledger.MustFromMinor("USD", 100)
	subCent := entry("4400", "1200", 100, day)
	subCent.Amount = money.MustParseAmount("EUR", "0.006")
	cases := []struct {
		name string
		e    ledger.Entry
	}{
		{"same account", entry("1200", "1200", 100, day)},
		{"zero amount", entry("4400", "1200", 0, day)},
		{"negative amount", entry("4400", "1200", -5, day)},
		{"unknown debit", entry("4999", "1200", 100, day)},
		{"unknown credit", entry("4400", "1999", 100, day)},
		{"missing date", entry("4400", "1200", 100, time.Time{})},
		{"other currency", usd},
		{"fraction of a cent", subCent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Append(ctx, tc.e); !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
	all, err := storage.Collect(st.Entries(ctx, ledger.EntryFilter{}))
	if err != nil || len(all) != 0 {
		t.Fatalf("nothing must be persisted: %d %v", len(all), err)
	}
}

func TestAppendAssignsNumbers(t *testing.T) {
	svc, _ := newJournal(t)
	ctx := context.Background()
	a, err := svc.Append(ctx, entry("4400", "1200", 11900, ledger.Date(2024, time.March, 1)))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	b, err := svc.Append(ctx, entry("1400", "8400", 5000, ledger.Date(2024, time.February, 1)))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if a.ID == uuid.Nil || b.EntryNumber <= a.EntryNumber {
		t.Fatalf("numbers not monotonic: %d %d", a.EntryNumber, b.EntryNumber)
	}
	var got []int64
	for e, err := range svc.Query(ctx, ledger.EntryFilter{}) {
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		got = append(got, e.EntryNumber)
	}
	if len(got) != 2 || got[0] != b.EntryNumber || got[1] != a.EntryNumber {
		t.Fatalf("want booking date order, got %v", got)
	}
}

func TestAppendRejectsLockedYear(t *testing.T) {
	svc, st := newJournal(t)
	ctx := context.Background()
	lockYear(t, st, 2024)
	if _, err := svc.Append(ctx, entry("4400", "1200", 100, ledger.Date(2024, time.June, 1))); !errors.Is(err, errs.ErrPeriodLocked) {
		t.Fatalf("want ErrPeriodLocked, got %v", err)
	}
	if _, err := svc.Append(ctx, entry("4400", "1200", 100, ledger.Date(2025, time.January, 1))); err != nil {
		t.Fatalf("next year must stay open: %v", err)
	}
}

func TestStornoNetsToZero(t *testing.T) {
	svc, _ := newJournal(t)
	ctx := context.Background()
	orig, err := svc.Append(ctx, entry("4400", "1200", 11900, ledger.Date(2024, time.March, 1)))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	st, err := svc.Storno(ctx, orig.ID, "falsche Rechnung", "anna")
	if err != nil {
		t.Fatalf("storno: %v", err)
	}
	if st.DebitAccount != orig.CreditAccount || st.CreditAccount != orig.DebitAccount {
		t.Fatalf("accounts not swapped: %+v", st)
	}
	if st.Minor() != orig.Minor() || !st.IsStorno || st.StornoOfID == nil || *st.StornoOfID != orig.ID {
		t.Fatalf("unexpected storno: %+v", st)
	}
	if st.CreatedBy != "anna" || st.Description != "Storno 1: falsche Rechnung" {
		t.Fatalf("unexpected storno metadata: %q %q", st.CreatedBy, st.Description)
	}
	tb, err := svc.TrialBalance(ctx, nil)
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	for number, amt := range tb {
		if !amt.IsZero() {
			t.Fatalf("account %s not netted: %s", number, amt)
		}
	}
}

func TestStornoErrors(t *testing.T) {
	svc, st := newJournal(t)
	ctx := context.Background()

	if _, err := svc.Storno(ctx, uuid.New(), "x", "anna"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	orig, _ := svc.Append(ctx, entry("4400", "1200", 100, ledger.Date(2024, time.March, 1)))
	if _, err := svc.Storno(ctx, orig.ID, "  ", "anna"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("empty reason: want ErrValidation, got %v", err)
	}
	rev, err := svc.Storno(ctx, orig.ID, "doppelt", "anna")
	if err != nil {
		t.Fatalf("storno: %v", err)
	}
	if _, err := svc.Storno(ctx, orig.ID, "nochmal", "anna"); !errors.Is(err, errs.ErrAlreadyReversed) {
		t.Fatalf("want ErrAlreadyReversed, got %v", err)
	}
	if _, err := svc.Storno(ctx, rev.ID, "zurück", "anna"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("storno of storno: want ErrValidation, got %v", err)
	}

	old, _ := svc.Append(ctx, entry("4400", "1200", 100, ledger.Date(2023, time.May, 1)))
	lockYear(t, st, 2023)
	if _, err := svc.Storno(ctx, old.ID, "zu spät", "anna"); !errors.Is(err, errs.ErrPeriodLocked) {
		t.Fatalf("want ErrPeriodLocked, got %v", err)
	}
}

func TestStornoReleasesSourceKey(t *testing.T) {
	svc, st := newJournal(t)
	ctx := context.Background()
	e := entry("4400", "1200", 100, ledger.Date(2024, time.March, 1))
	e.SourceType, e.SourceID = ledger.SourceExpense, "exp-7"
	orig, err := svc.Append(ctx, e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	key, _ := orig.Key()
	if _, err := svc.Storno(ctx, orig.ID, "storniert", "anna"); err != nil {
		t.Fatalf("storno: %v", err)
	}
	if _, err := st.EntryBySource(ctx, key); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("key must be released, got %v", err)
	}
	again, err := svc.Append(ctx, e)
	if err != nil {
		t.Fatalf("re-post after storno: %v", err)
	}
	if got, _ := st.EntryBySource(ctx, key); got.ID != again.ID {
		t.Fatalf("key must point at the new entry")
	}
}

func TestBalancesAsOf(t *testing.T) {
	svc, _ := newJournal(t)
	ctx := context.Background()
	mustAppend := func(e ledger.Entry) {
		if _, err := svc.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	mustAppend(entry("1200", "8400", 10000, ledger.Date(2024, time.January, 10)))
	mustAppend(entry("4400", "1200", 2500, ledger.Date(2024, time.February, 10)))
	mustAppend(entry("1200", "8400", 4000, ledger.Date(2024, time.March, 10)))

	asOf := ledger.Date(2024, time.February, 28)
	bank, err := svc.AccountBalance(ctx, "1200", &asOf)
	if err != nil || ledger.MinorUnits(bank) != 7500 {
		t.Fatalf("bank as of Feb: %s %v", bank, err)
	}
	revenue, err := svc.AccountBalance(ctx, "8400", nil)
	if err != nil || ledger.MinorUnits(revenue) != 14000 {
		t.Fatalf("revenue is credit-normal: %s %v", revenue, err)
	}
	tb, err := svc.TrialBalance(ctx, nil)
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	var sum int64
	for _, amt := range tb {
		sum += ledger.MinorUnits(amt)
	}
	if sum != 0 {
		t.Fatalf("trial balance must net to zero, got %d", sum)
	}
	if _, err := svc.AccountBalance(ctx, "9999", nil); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	var exported int
	for _, err := range svc.Export(ctx, ledger.DateRange{From: ledger.Date(2024, time.February, 1), To: ledger.Date(2024, time.March, 31)}) {
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		exported++
	}
	if exported != 2 {
		t.Fatalf("want 2 exported entries, got %d", exported)
	}
}
