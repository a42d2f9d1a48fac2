package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/storagetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openTemp(t) })
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	storagetest.Seed(t, s, "1200")
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	a, err := s.Account(context.Background(), "1200")
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountTypeAsset, a.Type)
}

func insertOne(t *testing.T, s *Store) ledger.Entry {
	t.Helper()
	storagetest.Seed(t, s, "4400", "1200")
	var out ledger.Entry
	err := s.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.InsertEntry(ctx, ledger.Entry{
			ID: uuid.New(), BookingDate: ledger.Date(2024, 3, 1), DebitAccount: "4400", CreditAccount: "1200",
			Amount: ledger.MustFromMinor("EUR", 11900), Description: "Werkstattbedarf", SourceType: ledger.SourceExpense,
			SourceID: "exp-1", CreatedBy: "test", CreatedAt: time.Now().UTC(),
		})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestTriggersRejectMutation(t *testing.T) {
	s := openTemp(t)
	e := insertOne(t, s)
	ctx := context.Background()

	_, err := s.writer.ExecContext(ctx, `UPDATE entries SET amount_minor = 1 WHERE id = ?`, e.ID)
	assert.ErrorContains(t, err, "immutable")

	_, err = s.writer.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, e.ID)
	assert.ErrorContains(t, err, "cannot be deleted")

	_, err = s.writer.ExecContext(ctx, `UPDATE entries SET locked = 1 WHERE id = ?`, e.ID)
	require.NoError(t, err, "locking is the one permitted update")

	_, err = s.writer.ExecContext(ctx, `UPDATE entries SET locked = 0 WHERE id = ?`, e.ID)
	assert.ErrorContains(t, err, "immutable", "locked entries cannot be unlocked")
}

func TestCheckConstraints(t *testing.T) {
	s := openTemp(t)
	storagetest.Seed(t, s, "4400", "1200")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.InsertEntry(ctx, ledger.Entry{
			ID: uuid.New(), BookingDate: ledger.Date(2024, 3, 1), DebitAccount: "4400", CreditAccount: "4400",
			Amount: ledger.MustFromMinor("EUR", 100), SourceType: ledger.SourceManual, CreatedBy: "test",
		})
		return err
	})
	require.Error(t, err)

	err = s.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.InsertEntry(ctx, ledger.Entry{
			ID: uuid.New(), BookingDate: ledger.Date(2024, 3, 1), DebitAccount: "4400", CreditAccount: "7777",
			Amount: ledger.MustFromMinor("EUR", 100), SourceType: ledger.SourceManual, CreatedBy: "test",
		})
		return err
	})
	require.Error(t, err, "unknown account must violate the foreign key")
}

func TestLockedClosingIsForwardOnly(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Now().UTC()
	c := ledger.YearEndClosing{Year: 2024, Status: ledger.ClosingLocked, InitiatedBy: "alice", LockedAt: &now, CreatedAt: now}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.CreateClosing(ctx, c) }))

	c.Status = ledger.ClosingInProgress
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.UpdateClosing(ctx, c) })
	assert.ErrorContains(t, err, "locked")
}
