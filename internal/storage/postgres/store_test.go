package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/storagetest"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// the delete trigger only fires for DELETE, not TRUNCATE
	if _, err := s.pool.Exec(ctx, `
		truncate table entry_sources, depreciations, assets, entries, accounts,
			balance_sheets, income_statements, year_end_closings restart identity cascade
	`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestStoreContract(t *testing.T) {
	dsn := getTestDSN(t)
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := mustOpen(t, dsn)
		truncateAll(t, s)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := getTestDSN(t)
	s := mustOpen(t, dsn)
	defer s.Close()
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestGuardYearExclusiveWaitsForShared(t *testing.T) {
	dsn := getTestDSN(t)
	s := mustOpen(t, dsn)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sharedHeld := make(chan struct{})
	releaseShared := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(s string) { mu.Lock(); order = append(order, s); mu.Unlock() }

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := tx.GuardYear(ctx, 2024, false); err != nil {
				return err
			}
			close(sharedHeld)
			<-releaseShared
			record("posting committed")
			return nil
		})
	}()

	<-sharedHeld
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := tx.GuardYear(ctx, 2024, true); err != nil {
				return err
			}
			record("lock acquired")
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	close(releaseShared)
	wg.Wait()

	if len(order) != 2 || order[0] != "posting committed" {
		t.Fatalf("exclusive guard did not wait for the shared holder: %v", order)
	}
}
