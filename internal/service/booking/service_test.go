package booking

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/journal"
	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/memory"
	"github.com/reifenwerk/ledger/internal/storage/sqlite"
	"github.com/reifenwerk/ledger/internal/storage/storagetest"
)

var testAccounts = Accounts{DepreciationExpense: "4830", AccumulatedDepreciation: "0299"}

func newBooking(t *testing.T, st storage.Store) Service {
	t.Helper()
	storagetest.Seed(t, st, "0299", "0420", "1200", "1400", "4400", "4830", "8400")
	return New(st, journal.New(st, "EUR", nil), testAccounts, nil)
}

func expense(id string, day time.Time) Event {
	return Event{
		SourceType:    ledger.SourceExpense,
		SourceID:      id,
		DebitAccount:  "4400",
		CreditAccount: "1200",
		Amount:        ledger.MustFromMinor("EUR", 11900),
		BookingDate:   day,
		Description:   "Werkstattbedarf",
		CreatedBy:     "approval",
	}
}

func countEntries(t *testing.T, st storage.Store, f ledger.EntryFilter) int {
	t.Helper()
	all, err := storage.Collect(st.Entries(context.Background(), f))
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	return len(all)
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

func TestPostBusinessEventIsIdempotent(t *testing.T) {
	st := memory.New()
	svc := newBooking(t, st)
	ctx := context.Background()

	ev := expense("exp-1", ledger.Date(2024, time.March, 1))
	first, err := svc.PostBusinessEvent(ctx, ev)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if first.Existing {
		t.Fatalf("first post must create an entry")
	}
	second, err := svc.PostBusinessEvent(ctx, ev)
	if err != nil {
		t.Fatalf("re-post: %v", err)
	}
	if !second.Existing || second.EntryID != first.EntryID {
		t.Fatalf("re-post must return the first entry: %+v vs %+v", second, first)
	}
	if n := countEntries(t, st, ledger.EntryFilter{SourceType: ledger.SourceExpense}); n != 1 {
		t.Fatalf("want exactly one entry, got %d", n)
	}
}

func TestPostBusinessEventValidation(t *testing.T) {
	st := memory.New()
	svc := newBooking(t, st)
	ev := expense("exp-2", ledger.Date(2024, time.March, 1))
	ev.CreditAccount = ev.DebitAccount
	if _, err := svc.PostBusinessEvent(context.Background(), ev); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if n := countEntries(t, st, ledger.EntryFilter{}); n != 0 {
		t.Fatalf("nothing must be persisted, got %d", n)
	}
}

func TestLockedYearRejectsPosting(t *testing.T) {
	st := memory.New()
	svc := newBooking(t, st)
	ctx := context.Background()
	lockYear(t, st, 2024)

	if _, err := svc.PostBusinessEvent(ctx, expense("exp-3", ledger.Date(2024, time.June, 1))); !errors.Is(err, errs.ErrPeriodLocked) {
		t.Fatalf("want ErrPeriodLocked, got %v", err)
	}
	out, err := svc.PostBusinessEvent(ctx, expense("exp-3", ledger.Date(2025, time.January, 1)))
	if err != nil || out.Existing {
		t.Fatalf("open year must accept the event: %+v %v", out, err)
	}
}

func TestPostNonBlockingDowngradesLockedPeriod(t *testing.T) {
	st := memory.New()
	svc := newBooking(t, st)
	ctx := context.Background()
	lockYear(t, st, 2024)

	out, err := svc.PostNonBlocking(ctx, expense("exp-4", ledger.Date(2024, time.June, 1)))
	if err != nil {
		t.Fatalf("locked period must not fail the workflow: %v", err)
	}
	if out.Warning == "" || out.EntryID != uuid.Nil {
		t.Fatalf("want warning without entry, got %+v", out)
	}

	bad := expense("exp-5", ledger.Date(2025, time.June, 1))
	bad.DebitAccount = "4999"
	if _, err := svc.PostNonBlocking(ctx, bad); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("other errors must still surface, got %v", err)
	}
}

func TestConcurrentPostsYieldOneEntry(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Store{
		"memory": func(*testing.T) storage.Store { return memory.New() },
		"sqlite": func(t *testing.T) storage.Store {
			s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			svc := newBooking(t, st)
			ctx := context.Background()
			ev := expense("exp-race", ledger.Date(2024, time.April, 2))

			const n = 16
			ids := make([]uuid.UUID, n)
			errc := make(chan error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					out, err := svc.PostBusinessEvent(ctx, ev)
					if err != nil {
						errc <- err
						return
					}
					ids[i] = out.EntryID
				}(i)
			}
			wg.Wait()
			close(errc)
			for err := range errc {
				t.Fatalf("post: %v", err)
			}
			for _, id := range ids[1:] {
				if id != ids[0] {
					t.Fatalf("all callers must see the same entry: %v", ids)
				}
			}
			if c := countEntries(t, st, ledger.EntryFilter{}); c != 1 {
				t.Fatalf("want one entry, got %d", c)
			}
		})
	}
}

func TestPostDepreciations(t *testing.T) {
	st := memory.New()
	svc := newBooking(t, st)
	ctx := context.Background()

	asset := ledger.Asset{
		ID: uuid.New(), Name: "Montiermaschine", AssetNumber: "A-001",
		AcquisitionDate: ledger.Date(2024, time.January, 15), UsefulLifeYears: 4,
		AcquisitionCost: ledger.MustFromMinor("EUR", 1200000), CreatedAt: time.Now().UTC(),
	}
	if err := asset.Recompute(); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	dep := ledger.Depreciation{
		ID: uuid.New(), AssetID: asset.ID, Year: 2024, Amount: asset.AnnualDepreciation,
		Method: ledger.DepreciationLinear, CreatedAt: time.Now().UTC(),
	}
	err := st.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateAsset(ctx, asset); err != nil {
			return err
		}
		return tx.InsertDepreciation(ctx, dep)
	})
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	res, err := svc.PostDepreciations(ctx, 2024, "closing")
	if err != nil {
		t.Fatalf("post depreciations: %v", err)
	}
	if res.Posted != 1 || res.Already != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	res, err = svc.PostDepreciations(ctx, 2024, "closing")
	if err != nil || res.Posted != 0 || res.Already != 1 {
		t.Fatalf("second run must be a no-op: %+v %v", res, err)
	}

	rows, _ := st.Depreciations(ctx, 2024)
	if len(rows) != 1 || !rows[0].Booked || rows[0].EntryID == nil {
		t.Fatalf("row must be booked: %+v", rows)
	}
	e, err := st.Entry(ctx, *rows[0].EntryID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if e.DebitAccount != "4830" || e.CreditAccount != "0299" || e.Minor() != 300000 {
		t.Fatalf("unexpected depreciation entry: %+v", e)
	}
	if !e.BookingDate.Equal(ledger.Date(2024, time.December, 31)) || e.SourceID != dep.ID.String() {
		t.Fatalf("unexpected date or key: %s %s", e.BookingDate, e.SourceID)
	}
}
