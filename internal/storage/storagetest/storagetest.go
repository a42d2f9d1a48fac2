// Package storagetest is a backend-independent test suite for storage.Store
// implementations.
package storagetest

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
)

// Opener returns a fresh, empty store. It registers its own cleanup.
type Opener func(t *testing.T) storage.Store

// Run exercises every method of the storage contract against open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"Accounts", testAccounts},
		{"InsertEntryAssignsNumbers", testInsertEntry},
		{"SourceKeys", testSourceKeys},
		{"Stornos", testStornos},
		{"EntriesOrderAndFilter", testEntriesOrderAndFilter},
		{"RollbackOnError", testRollback},
		{"LockEntries", testLockEntries},
		{"AssetsAndDepreciation", testAssets},
		{"Statements", testStatements},
		{"Closings", testClosings},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

// Seed creates the accounts the suite posts against.
func Seed(t *testing.T, s storage.Store, numbers ...string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		for _, n := range numbers {
			typ, err := ledger.TypeForNumber(n)
			if err != nil {
				return err
			}
			if err := tx.CreateAccount(ctx, ledger.Account{Number: n, Name: "Konto " + n, Type: typ, CreatedAt: time.Now().UTC()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed accounts: %v", err)
	}
}

func newEntry(debit, credit string, cents int64, day time.Time, st ledger.SourceType, sid string) ledger.Entry {
	return ledger.Entry{
		ID:            uuid.New(),
		BookingDate:   day,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        ledger.MustFromMinor("EUR", cents),
		Description:   "test",
		SourceType:    st,
		SourceID:      sid,
		CreatedBy:     "test",
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func insert(t *testing.T, s storage.Store, e ledger.Entry) ledger.Entry {
	t.Helper()
	var out ledger.Entry
	err := s.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.InsertEntry(ctx, e)
		return err
	})
	if err != nil {
		t.Fatalf("insert entry: %v", err)
	}
	return out
}

func testAccounts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200")

	a, err := s.Account(ctx, "4400")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if a.Type != ledger.AccountTypeExpense || a.Name != "Konto 4400" {
		t.Fatalf("unexpected account: %+v", a)
	}
	if _, err := s.Account(ctx, "9999"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateAccount(ctx, ledger.Account{Number: "1200", Name: "dup", Type: ledger.AccountTypeAsset})
	})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	all, err := s.Accounts(ctx)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(all) != 2 || all[0].Number != "1200" || all[1].Number != "4400" {
		t.Fatalf("want [1200 4400], got %+v", all)
	}
}

func testInsertEntry(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200")
	doc := ledger.Date(2024, time.February, 28)
	e := newEntry("4400", "1200", 11900, ledger.Date(2024, time.March, 1), ledger.SourceExpense, "exp-1")
	e.DocumentDate = &doc

	first := insert(t, s, e)
	second := insert(t, s, newEntry("4400", "1200", 500, ledger.Date(2024, time.March, 1), ledger.SourceManual, ""))
	if first.EntryNumber <= 0 || second.EntryNumber <= first.EntryNumber {
		t.Fatalf("entry numbers not monotonic: %d, %d", first.EntryNumber, second.EntryNumber)
	}

	got, err := s.Entry(ctx, first.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got.Minor() != 11900 || got.Amount.Curr().Code() != "EUR" {
		t.Fatalf("amount roundtrip: %v", got.Amount)
	}
	if got.DebitAccount != "4400" || got.CreditAccount != "1200" || got.SourceID != "exp-1" || got.SourceType != ledger.SourceExpense {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.BookingDate.Equal(ledger.Date(2024, time.March, 1)) {
		t.Fatalf("booking date: %v", got.BookingDate)
	}
	if got.DocumentDate == nil || !got.DocumentDate.Equal(doc) {
		t.Fatalf("document date: %v", got.DocumentDate)
	}
	if got.EntryNumber != first.EntryNumber || got.IsStorno || got.StornoOfID != nil || got.Locked {
		t.Fatalf("unexpected flags: %+v", got)
	}
	if _, err := s.Entry(ctx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testSourceKeys(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200")
	key := ledger.SourceKey{Type: ledger.SourceExpense, ID: "exp-1"}
	first := insert(t, s, newEntry("4400", "1200", 100, ledger.Date(2024, time.March, 1), key.Type, key.ID))

	got, err := s.EntryBySource(ctx, key)
	if err != nil || got.ID != first.ID {
		t.Fatalf("entry by source: %v %v", got.ID, err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.InsertEntry(ctx, newEntry("4400", "1200", 100, ledger.Date(2024, time.March, 2), key.Type, key.ID))
		return err
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict for duplicate source, got %v", err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.ReleaseSource(ctx, key) })
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := s.EntryBySource(ctx, key); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound after release, got %v", err)
	}
	again := insert(t, s, newEntry("4400", "1200", 100, ledger.Date(2024, time.March, 3), key.Type, key.ID))
	if got, _ := s.EntryBySource(ctx, key); got.ID != again.ID {
		t.Fatalf("key should point at the new entry")
	}
}

func testStornos(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200")
	orig := insert(t, s, newEntry("4400", "1200", 100, ledger.Date(2024, time.March, 1), ledger.SourceManual, ""))

	if _, err := s.StornoOf(ctx, orig.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	st := newEntry("1200", "4400", 100, ledger.Date(2024, time.March, 2), ledger.SourceManual, "")
	st.IsStorno = true
	st.StornoOfID = &orig.ID
	st = insert(t, s, st)

	got, err := s.StornoOf(ctx, orig.ID)
	if err != nil || got.ID != st.ID || got.StornoOfID == nil || *got.StornoOfID != orig.ID {
		t.Fatalf("storno of: %+v %v", got, err)
	}

	dup := newEntry("1200", "4400", 100, ledger.Date(2024, time.March, 3), ledger.SourceManual, "")
	dup.IsStorno = true
	dup.StornoOfID = &orig.ID
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.InsertEntry(ctx, dup)
		return err
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict for second storno, got %v", err)
	}
}

func testEntriesOrderAndFilter(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200", "8400", "1400")
	// inserted out of date order on purpose
	e3 := insert(t, s, newEntry("1400", "8400", 300, ledger.Date(2024, time.May, 1), ledger.SourceInvoice, "inv-1"))
	e1 := insert(t, s, newEntry("4400", "1200", 100, ledger.Date(2024, time.January, 10), ledger.SourceExpense, "exp-1"))
	e2 := insert(t, s, newEntry("4400", "1200", 200, ledger.Date(2024, time.January, 10), ledger.SourceExpense, "exp-2"))
	e4 := insert(t, s, newEntry("1200", "1400", 300, ledger.Date(2025, time.January, 2), ledger.SourcePayment, "pay-1"))

	seq := s.Entries(ctx, ledger.EntryFilter{})
	want := []uuid.UUID{e1.ID, e2.ID, e3.ID, e4.ID}
	for round := 0; round < 2; round++ { // restartable
		got, err := storage.Collect(seq)
		if err != nil {
			t.Fatalf("collect: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("round %d: want %d entries, got %d", round, len(want), len(got))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("round %d: position %d: want %s got %s", round, i, want[i], got[i].ID)
			}
		}
	}

	cases := []struct {
		name   string
		filter ledger.EntryFilter
		want   []uuid.UUID
	}{
		{"account", ledger.EntryFilter{AccountNumber: "1400"}, []uuid.UUID{e3.ID, e4.ID}},
		{"year", ledger.EntryFilter{Range: &ledger.DateRange{From: ledger.Date(2024, 1, 1), To: ledger.Date(2024, 12, 31)}}, []uuid.UUID{e1.ID, e2.ID, e3.ID}},
		{"through", ledger.EntryFilter{Range: ptr(ledger.Through(2024))}, []uuid.UUID{e1.ID, e2.ID, e3.ID}},
		{"source", ledger.EntryFilter{SourceType: ledger.SourceExpense}, []uuid.UUID{e1.ID, e2.ID}},
		{"combined", ledger.EntryFilter{AccountNumber: "1200", SourceType: ledger.SourcePayment}, []uuid.UUID{e4.ID}},
	}
	for _, tc := range cases {
		got, err := storage.Collect(s.Entries(ctx, tc.filter))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: want %d entries, got %d", tc.name, len(tc.want), len(got))
		}
		for i := range tc.want {
			if got[i].ID != tc.want[i] {
				t.Fatalf("%s: position %d mismatch", tc.name, i)
			}
		}
	}

	// early break must not leak or fail
	for range s.Entries(ctx, ledger.EntryFilter{}) {
		break
	}
}

func testRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200")
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.InsertEntry(ctx, newEntry("4400", "1200", 100, ledger.Date(2024, 3, 1), ledger.SourceExpense, "exp-9")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	got, err := storage.Collect(s.Entries(ctx, ledger.EntryFilter{}))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rolled back entry is visible: %+v", got)
	}
	if _, err := s.EntryBySource(ctx, ledger.SourceKey{Type: ledger.SourceExpense, ID: "exp-9"}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("rolled back source key is visible: %v", err)
	}
}

func testLockEntries(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, "4400", "1200")
	in := insert(t, s, newEntry("4400", "1200", 100, ledger.Date(2024, 6, 1), ledger.SourceManual, ""))
	out := insert(t, s, newEntry("4400", "1200", 100, ledger.Date(2025, 1, 1), ledger.SourceManual, ""))

	var n int64
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.LockEntries(ctx, ledger.YearRange(2024))
		return err
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 locked entry, got %d", n)
	}
	if e, _ := s.Entry(ctx, in.ID); !e.Locked {
		t.Fatalf("entry in 2024 should be locked")
	}
	if e, _ := s.Entry(ctx, out.ID); e.Locked {
		t.Fatalf("entry in 2025 should not be locked")
	}
}

func testAssets(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := ledger.Asset{
		ID:              uuid.New(),
		Name:            "Montiermaschine",
		AssetNumber:     "A-001",
		AcquisitionDate: ledger.Date(2024, 1, 15),
		UsefulLifeYears: 4,
		AcquisitionCost: ledger.MustFromMinor("EUR", 1200000),
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := a.Recompute(); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.CreateAsset(ctx, a) })
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	dup := a
	dup.ID = uuid.New()
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.CreateAsset(ctx, dup) })
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}

	disposed := ledger.Date(2026, 3, 31)
	a.DisposalDate = &disposed
	if err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.UpdateAsset(ctx, a) }); err != nil {
		t.Fatalf("update asset: %v", err)
	}
	got, err := s.Asset(ctx, a.ID)
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	if ledger.MinorUnits(got.AnnualDepreciation) != 300000 || got.DisposalDate == nil || !got.DisposalDate.Equal(disposed) {
		t.Fatalf("unexpected asset: %+v", got)
	}

	d := ledger.Depreciation{ID: uuid.New(), AssetID: a.ID, Year: 2024, Amount: a.AnnualDepreciation, Method: ledger.DepreciationLinear, CreatedAt: time.Now().UTC()}
	if err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.InsertDepreciation(ctx, d) }); err != nil {
		t.Fatalf("insert depreciation: %v", err)
	}
	again := d
	again.ID = uuid.New()
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.InsertDepreciation(ctx, again) })
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists for (asset, year), got %v", err)
	}

	Seed(t, s, "4830", "0299")
	e := insert(t, s, newEntry("4830", "0299", 300000, ledger.Date(2024, 12, 31), ledger.SourceDepreciation, d.ID.String()))
	if err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.MarkDepreciationBooked(ctx, d.ID, e.ID) }); err != nil {
		t.Fatalf("mark booked: %v", err)
	}
	rows, err := s.Depreciations(ctx, 2024)
	if err != nil {
		t.Fatalf("depreciations: %v", err)
	}
	if len(rows) != 1 || !rows[0].Booked || rows[0].EntryID == nil || *rows[0].EntryID != e.ID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	byAsset, err := s.AssetDepreciations(ctx, a.ID)
	if err != nil || len(byAsset) != 1 {
		t.Fatalf("asset depreciations: %v %v", byAsset, err)
	}
}

func testStatements(t *testing.T, s storage.Store) {
	ctx := context.Background()
	eur := func(c int64) money.Amount { return ledger.MustFromMinor("EUR", c) }
	bs := ledger.BalanceSheet{
		Year:             2024,
		FiscalYear:       "GJ 2024",
		Assets:           []ledger.StatementLine{{Group: "12", Label: "Bankguthaben", Type: ledger.AccountTypeAsset, Amount: eur(-11900)}},
		Equity:           []ledger.StatementLine{},
		TotalAssets:      eur(-11900),
		TotalLiabilities: eur(0),
		TotalEquity:      eur(0),
		RetainedEarnings: eur(0),
		NetIncome:        eur(-11900),
		Balanced:         true,
		GeneratedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	is := ledger.IncomeStatement{
		Year:          2024,
		Expenses:      []ledger.StatementLine{{Group: "44", Label: "Sonstige", Type: ledger.AccountTypeExpense, Amount: eur(11900)}},
		TotalRevenue:  eur(0),
		TotalExpenses: eur(11900),
		NetIncome:     eur(-11900),
		GeneratedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	save := func() error {
		return s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := tx.SaveBalanceSheet(ctx, bs); err != nil {
				return err
			}
			return tx.SaveIncomeStatement(ctx, is)
		})
	}
	if err := save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	// upsert while unlocked
	bs.FiscalYear = "GJ 2024 (neu)"
	if err := save(); err != nil {
		t.Fatalf("resave: %v", err)
	}

	gotBS, err := s.BalanceSheet(ctx, 2024)
	if err != nil {
		t.Fatalf("balance sheet: %v", err)
	}
	if gotBS.FiscalYear != "GJ 2024 (neu)" || len(gotBS.Assets) != 1 || ledger.MinorUnits(gotBS.Assets[0].Amount) != -11900 || !gotBS.Balanced {
		t.Fatalf("unexpected balance sheet: %+v", gotBS)
	}
	gotIS, err := s.IncomeStatement(ctx, 2024)
	if err != nil {
		t.Fatalf("income statement: %v", err)
	}
	if ledger.MinorUnits(gotIS.NetIncome) != -11900 || len(gotIS.Expenses) != 1 || gotIS.Expenses[0].Group != "44" {
		t.Fatalf("unexpected income statement: %+v", gotIS)
	}

	if err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.LockStatements(ctx, 2024) }); err != nil {
		t.Fatalf("lock statements: %v", err)
	}
	gotBS, _ = s.BalanceSheet(ctx, 2024)
	gotIS, _ = s.IncomeStatement(ctx, 2024)
	if !gotBS.Locked || !gotIS.Locked {
		t.Fatalf("statements should be locked")
	}
	if _, err := s.BalanceSheet(ctx, 2023); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testClosings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c := ledger.YearEndClosing{Year: 2024, Status: ledger.ClosingInProgress, InitiatedBy: "alice", CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	if err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.CreateClosing(ctx, c) }); err != nil {
		t.Fatalf("create closing: %v", err)
	}
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.CreateClosing(ctx, c) })
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	c.DepreciationCompletedAt = &now
	if err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.UpdateClosing(ctx, c) }); err != nil {
		t.Fatalf("update closing: %v", err)
	}
	got, err := s.Closing(ctx, 2024)
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if got.Status != ledger.ClosingInProgress || got.InitiatedBy != "alice" || got.DepreciationCompletedAt == nil || got.ReportsCompletedAt != nil {
		t.Fatalf("unexpected closing: %+v", got)
	}
	if _, err := s.Closing(ctx, 2030); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
