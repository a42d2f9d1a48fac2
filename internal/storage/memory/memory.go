// Package memory provides an in-memory ledger backend used for development
// and tests. A transaction writes to the live state under the store's write
// lock and keeps an undo log; a failed unit of work replays it backwards, so
// nothing is left behind and a commit costs only what it wrote.
package memory

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/storage"
)

// entryKey tracks ordering of entries: sorted asc by (BookingDate, Number).
type entryKey struct {
	Date   time.Time
	Number int64
	ID     uuid.UUID
}

type depKey struct {
	AssetID uuid.UUID
	Year    int
}

type state struct {
	accounts map[string]ledger.Account
	entries  map[uuid.UUID]ledger.Entry
	// sorted index of entries for ordered scans
	order []entryKey
	// idempotency: source key -> entry id
	sources map[ledger.SourceKey]uuid.UUID
	// original entry id -> storno entry id
	stornos    map[uuid.UUID]uuid.UUID
	nextNumber int64

	assets      map[uuid.UUID]ledger.Asset
	deps        map[uuid.UUID]ledger.Depreciation
	depsByAsset map[depKey]uuid.UUID

	balanceSheets    map[int]ledger.BalanceSheet
	incomeStatements map[int]ledger.IncomeStatement
	closings         map[int]ledger.YearEndClosing
}

func newState() *state {
	return &state{
		accounts:         make(map[string]ledger.Account),
		entries:          make(map[uuid.UUID]ledger.Entry),
		sources:          make(map[ledger.SourceKey]uuid.UUID),
		stornos:          make(map[uuid.UUID]uuid.UUID),
		nextNumber:       1,
		assets:           make(map[uuid.UUID]ledger.Asset),
		deps:             make(map[uuid.UUID]ledger.Depreciation),
		depsByAsset:      make(map[depKey]uuid.UUID),
		balanceSheets:    make(map[int]ledger.BalanceSheet),
		incomeStatements: make(map[int]ledger.IncomeStatement),
		closings:         make(map[int]ledger.YearEndClosing),
	}
}

// Store is an in-memory implementation of storage.Store.
// It is guarded by an RWMutex; WithTx holds the write lock for its duration.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New constructs an empty in-memory store.
func New() *Store { return &Store{st: newState()} }

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.st = newState()
	s.mu.Unlock()
}

func (s *Store) Ready(context.Context) error { return nil }
func (s *Store) Close() error                { return nil }

// WithTx implements storage.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tx{state: s.st}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()
	if err := fn(ctx, t); err != nil {
		return err
	}
	committed = true
	return nil
}

// view runs fn against the committed state under the read lock.
func view[T any](s *Store, fn func(*state) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) Account(ctx context.Context, number string) (ledger.Account, error) {
	return view(s, func(st *state) (ledger.Account, error) { return st.Account(ctx, number) })
}

func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	return view(s, func(st *state) ([]ledger.Account, error) { return st.Accounts(ctx) })
}

func (s *Store) Entry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return view(s, func(st *state) (ledger.Entry, error) { return st.Entry(ctx, id) })
}

func (s *Store) EntryBySource(ctx context.Context, key ledger.SourceKey) (ledger.Entry, error) {
	return view(s, func(st *state) (ledger.Entry, error) { return st.EntryBySource(ctx, key) })
}

func (s *Store) StornoOf(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return view(s, func(st *state) (ledger.Entry, error) { return st.StornoOf(ctx, id) })
}

// Entries snapshots the matching entries under the read lock on every range.
func (s *Store) Entries(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		s.mu.RLock()
		matched := s.st.matching(f)
		s.mu.RUnlock()
		for _, e := range matched {
			if err := ctx.Err(); err != nil {
				yield(ledger.Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *Store) Asset(ctx context.Context, id uuid.UUID) (ledger.Asset, error) {
	return view(s, func(st *state) (ledger.Asset, error) { return st.Asset(ctx, id) })
}

func (s *Store) Assets(ctx context.Context) ([]ledger.Asset, error) {
	return view(s, func(st *state) ([]ledger.Asset, error) { return st.Assets(ctx) })
}

func (s *Store) Depreciations(ctx context.Context, year int) ([]ledger.Depreciation, error) {
	return view(s, func(st *state) ([]ledger.Depreciation, error) { return st.Depreciations(ctx, year) })
}

func (s *Store) AssetDepreciations(ctx context.Context, assetID uuid.UUID) ([]ledger.Depreciation, error) {
	return view(s, func(st *state) ([]ledger.Depreciation, error) { return st.AssetDepreciations(ctx, assetID) })
}

func (s *Store) BalanceSheet(ctx context.Context, year int) (ledger.BalanceSheet, error) {
	return view(s, func(st *state) (ledger.BalanceSheet, error) { return st.BalanceSheet(ctx, year) })
}

func (s *Store) IncomeStatement(ctx context.Context, year int) (ledger.IncomeStatement, error) {
	return view(s, func(st *state) (ledger.IncomeStatement, error) { return st.IncomeStatement(ctx, year) })
}

func (s *Store) Closing(ctx context.Context, year int) (ledger.YearEndClosing, error) {
	return view(s, func(st *state) (ledger.YearEndClosing, error) { return st.Closing(ctx, year) })
}

// --- reads on a state (committed or in-flight) ---

func (st *state) Account(_ context.Context, number string) (ledger.Account, error) {
	a, ok := st.accounts[number]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: account %s", errs.ErrNotFound, number)
	}
	return a, nil
}

func (st *state) Accounts(context.Context) ([]ledger.Account, error) {
	out := slices.Collect(maps.Values(st.accounts))
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (st *state) Entry(_ context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, ok := st.entries[id]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: entry %s", errs.ErrNotFound, id)
	}
	return e, nil
}

func (st *state) EntryBySource(ctx context.Context, key ledger.SourceKey) (ledger.Entry, error) {
	id, ok := st.sources[key]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: entry for source %s", errs.ErrNotFound, key)
	}
	return st.Entry(ctx, id)
}

func (st *state) StornoOf(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	sid, ok := st.stornos[id]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: storno of %s", errs.ErrNotFound, id)
	}
	return st.Entry(ctx, sid)
}

func (st *state) Entries(ctx context.Context, f ledger.EntryFilter) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		for _, e := range st.matching(f) {
			if err := ctx.Err(); err != nil {
				yield(ledger.Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// matching returns a copy of the entries selected by f in index order.
func (st *state) matching(f ledger.EntryFilter) []ledger.Entry {
	keys := st.order
	if f.Range != nil {
		keys = st.rangeByDate(ledger.Day(f.Range.From), ledger.Day(f.Range.To))
	}
	out := make([]ledger.Entry, 0, len(keys))
	for _, k := range keys {
		e, ok := st.entries[k.ID]
		if ok && f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// rangeByDate returns the index slice within [from, to] inclusive.
func (st *state) rangeByDate(from, to time.Time) []entryKey {
	keys := st.order
	start := sort.Search(len(keys), func(i int) bool { return !keys[i].Date.Before(from) })
	end := sort.Search(len(keys), func(i int) bool { return keys[i].Date.After(to) })
	if start >= end {
		return nil
	}
	return keys[start:end]
}

func (st *state) Asset(_ context.Context, id uuid.UUID) (ledger.Asset, error) {
	a, ok := st.assets[id]
	if !ok {
		return ledger.Asset{}, fmt.Errorf("%w: asset %s", errs.ErrNotFound, id)
	}
	return a, nil
}

func (st *state) Assets(context.Context) ([]ledger.Asset, error) {
	out := slices.Collect(maps.Values(st.assets))
	sort.Slice(out, func(i, j int) bool { return out[i].AssetNumber < out[j].AssetNumber })
	return out, nil
}

func (st *state) Depreciations(_ context.Context, year int) ([]ledger.Depreciation, error) {
	out := make([]ledger.Depreciation, 0)
	for _, d := range st.deps {
		if d.Year == year {
			out = append(out, d)
		}
	}
	sortDepreciations(out)
	return out, nil
}

func (st *state) AssetDepreciations(_ context.Context, assetID uuid.UUID) ([]ledger.Depreciation, error) {
	out := make([]ledger.Depreciation, 0)
	for _, d := range st.deps {
		if d.AssetID == assetID {
			out = append(out, d)
		}
	}
	sortDepreciations(out)
	return out, nil
}

func sortDepreciations(ds []ledger.Depreciation) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Year != ds[j].Year {
			return ds[i].Year < ds[j].Year
		}
		if !ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].CreatedAt.Before(ds[j].CreatedAt)
		}
		return ds[i].ID.String() < ds[j].ID.String()
	})
}

func (st *state) BalanceSheet(_ context.Context, year int) (ledger.BalanceSheet, error) {
	bs, ok := st.balanceSheets[year]
	if !ok {
		return ledger.BalanceSheet{}, fmt.Errorf("%w: balance sheet %d", errs.ErrNotFound, year)
	}
	return bs, nil
}

func (st *state) IncomeStatement(_ context.Context, year int) (ledger.IncomeStatement, error) {
	is, ok := st.incomeStatements[year]
	if !ok {
		return ledger.IncomeStatement{}, fmt.Errorf("%w: income statement %d", errs.ErrNotFound, year)
	}
	return is, nil
}

func (st *state) Closing(_ context.Context, year int) (ledger.YearEndClosing, error) {
	c, ok := st.closings[year]
	if !ok {
		return ledger.YearEndClosing{}, fmt.Errorf("%w: year-end closing %d", errs.ErrNotFound, year)
	}
	return c, nil
}

// --- writes ---

// tx is the in-flight unit of work handed to WithTx callbacks.
type tx struct {
	*state
	undo []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember records how to restore m[k] to its value before the next write.
func remember[K comparable, V any](t *tx, m map[K]V, k K) {
	prev, had := m[k]
	t.undo = append(t.undo, func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

// GuardYear is a no-op: WithTx already holds the store's write lock.
func (t *tx) GuardYear(context.Context, int, bool) error { return nil }

func (t *tx) CreateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := t.accounts[a.Number]; ok {
		return fmt.Errorf("%w: account %s", errs.ErrAlreadyExists, a.Number)
	}
	remember(t, t.accounts, a.Number)
	t.accounts[a.Number] = a
	return nil
}

func (t *tx) InsertEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if _, ok := t.entries[e.ID]; ok {
		return ledger.Entry{}, fmt.Errorf("%w: entry %s", errs.ErrConflict, e.ID)
	}
	key, hasKey := e.Key()
	if hasKey {
		if _, taken := t.sources[key]; taken {
			return ledger.Entry{}, fmt.Errorf("%w: source %s already booked", errs.ErrConflict, key)
		}
	}
	if e.StornoOfID != nil {
		if _, taken := t.stornos[*e.StornoOfID]; taken {
			return ledger.Entry{}, fmt.Errorf("%w: entry %s already reversed", errs.ErrConflict, *e.StornoOfID)
		}
	}
	e.EntryNumber = t.nextNumber
	t.nextNumber++
	e.BookingDate = ledger.Day(e.BookingDate)
	remember(t, t.entries, e.ID)
	t.entries[e.ID] = e
	k := entryKey{Date: e.BookingDate, Number: e.EntryNumber, ID: e.ID}
	t.insertIndex(k)
	t.undo = append(t.undo, func() {
		t.removeIndex(k)
		t.nextNumber--
	})
	if hasKey {
		remember(t, t.sources, key)
		t.sources[key] = e.ID
	}
	if e.StornoOfID != nil {
		remember(t, t.stornos, *e.StornoOfID)
		t.stornos[*e.StornoOfID] = e.ID
	}
	return e, nil
}

// insertIndex keeps order asc by (Date, Number). New entries carry the highest
// number, so they go after every entry of the same day.
func (t *tx) insertIndex(k entryKey) {
	keys := t.order
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Date.After(k.Date) })
	keys = append(keys, entryKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	t.order = keys
}

// removeIndex drops k from order. Only used to undo insertIndex.
func (t *tx) removeIndex(k entryKey) {
	keys := t.order
	i := sort.Search(len(keys), func(i int) bool { return !keys[i].Date.Before(k.Date) })
	for ; i < len(keys); i++ {
		if keys[i].ID == k.ID {
			t.order = slices.Delete(keys, i, i+1)
			return
		}
	}
}

func (t *tx) ReleaseSource(_ context.Context, key ledger.SourceKey) error {
	remember(t, t.sources, key)
	delete(t.sources, key)
	return nil
}

func (t *tx) LockEntries(_ context.Context, r ledger.DateRange) (int64, error) {
	var n int64
	for _, k := range t.rangeByDate(ledger.Day(r.From), ledger.Day(r.To)) {
		e := t.entries[k.ID]
		if e.Locked {
			continue
		}
		e.Locked = true
		remember(t, t.entries, k.ID)
		t.entries[k.ID] = e
		n++
	}
	return n, nil
}

func (t *tx) CreateAsset(_ context.Context, a ledger.Asset) error {
	for _, existing := range t.assets {
		if existing.AssetNumber == a.AssetNumber {
			return fmt.Errorf("%w: asset number %s", errs.ErrAlreadyExists, a.AssetNumber)
		}
	}
	remember(t, t.assets, a.ID)
	t.assets[a.ID] = a
	return nil
}

func (t *tx) UpdateAsset(_ context.Context, a ledger.Asset) error {
	if _, ok := t.assets[a.ID]; !ok {
		return fmt.Errorf("%w: asset %s", errs.ErrNotFound, a.ID)
	}
	remember(t, t.assets, a.ID)
	t.assets[a.ID] = a
	return nil
}

func (t *tx) InsertDepreciation(_ context.Context, d ledger.Depreciation) error {
	k := depKey{AssetID: d.AssetID, Year: d.Year}
	if _, ok := t.depsByAsset[k]; ok {
		return fmt.Errorf("%w: depreciation of asset %s for %d", errs.ErrAlreadyExists, d.AssetID, d.Year)
	}
	remember(t, t.deps, d.ID)
	remember(t, t.depsByAsset, k)
	t.deps[d.ID] = d
	t.depsByAsset[k] = d.ID
	return nil
}

func (t *tx) MarkDepreciationBooked(_ context.Context, id, entryID uuid.UUID) error {
	d, ok := t.deps[id]
	if !ok {
		return fmt.Errorf("%w: depreciation %s", errs.ErrNotFound, id)
	}
	d.Booked = true
	d.EntryID = &entryID
	remember(t, t.deps, id)
	t.deps[id] = d
	return nil
}

func (t *tx) SaveBalanceSheet(_ context.Context, bs ledger.BalanceSheet) error {
	remember(t, t.balanceSheets, bs.Year)
	t.balanceSheets[bs.Year] = bs
	return nil
}

func (t *tx) SaveIncomeStatement(_ context.Context, is ledger.IncomeStatement) error {
	remember(t, t.incomeStatements, is.Year)
	t.incomeStatements[is.Year] = is
	return nil
}

func (t *tx) LockStatements(_ context.Context, year int) error {
	if bs, ok := t.balanceSheets[year]; ok {
		bs.Locked = true
		remember(t, t.balanceSheets, year)
		t.balanceSheets[year] = bs
	}
	if is, ok := t.incomeStatements[year]; ok {
		is.Locked = true
		remember(t, t.incomeStatements, year)
		t.incomeStatements[year] = is
	}
	return nil
}

func (t *tx) CreateClosing(_ context.Context, c ledger.YearEndClosing) error {
	if _, ok := t.closings[c.Year]; ok {
		return fmt.Errorf("%w: year-end closing %d", errs.ErrAlreadyExists, c.Year)
	}
	remember(t, t.closings, c.Year)
	t.closings[c.Year] = c
	return nil
}

func (t *tx) UpdateClosing(_ context.Context, c ledger.YearEndClosing) error {
	if _, ok := t.closings[c.Year]; !ok {
		return fmt.Errorf("%w: year-end closing %d", errs.ErrNotFound, c.Year)
	}
	remember(t, t.closings, c.Year)
	t.closings[c.Year] = c
	return nil
}
