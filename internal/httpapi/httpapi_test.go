package httpapi

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reifenwerk/ledger/internal/config"
	"github.com/reifenwerk/ledger/internal/service/account"
	"github.com/reifenwerk/ledger/internal/service/booking"
	"github.com/reifenwerk/ledger/internal/service/closing"
	"github.com/reifenwerk/ledger/internal/service/depreciation"
	"github.com/reifenwerk/ledger/internal/service/journal"
	"github.com/reifenwerk/ledger/internal/service/statement"
	"github.com/reifenwerk/ledger/internal/storage/memory"
	"github.com/reifenwerk/ledger/internal/storage/storagetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T, opts Options) (*memory.Store, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Closing.Admins = []string{"steuerberater"}
	store := memory.New()
	storagetest.Seed(t, store, "0420", "0299", "1200", "1400", "2000", "4400", "4830", "8400")

	accts := account.New(store, testLogger())
	j := journal.New(store, cfg.Currency, testLogger())
	b := booking.New(store, j, booking.Accounts{
		DepreciationExpense:     cfg.Accounts.DepreciationExpense,
		AccumulatedDepreciation: cfg.Accounts.AccumulatedDepreciation,
	}, testLogger())
	d := depreciation.New(store, cfg.Currency, testLogger())
	st := statement.New(store, cfg.Currency, testLogger())
	c := closing.New(closing.Deps{Store: store, Accounts: accts, Depreciation: d, Booking: b, Statements: st, Auth: cfg, Log: testLogger()})

	if opts.Currency == "" {
		opts.Currency = cfg.Currency
	}
	svc := Services{Accounts: accts, Journal: j, Booking: b, Depreciation: d, Statements: st, Closing: c}
	return store, New(svc, store, opts, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func event(sourceID, date string, minor int64) map[string]any {
	return map[string]any{
		"source_type":    "INVOICE",
		"source_id":      sourceID,
		"debit_account":  "1400",
		"credit_account": "8400",
		"amount_minor":   minor,
		"booking_date":   date,
		"description":    "Rechnung " + sourceID,
	}
}

func TestPostEntryIsIdempotent(t *testing.T) {
	_, h := setup(t, Options{})

	rr := do(t, h, http.MethodPost, "/v1/entries", event("inv-1", "2024-03-01", 11900), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first post: %d %s", rr.Code, rr.Body.String())
	}
	first := decode[postEntryResponse](t, rr)
	if first.EntryID == nil || first.EntryNumber != 1 || first.Existing {
		t.Fatalf("unexpected first response: %+v", first)
	}

	rr = do(t, h, http.MethodPost, "/v1/entries", event("inv-1", "2024-03-01", 11900), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("repeat post: %d %s", rr.Code, rr.Body.String())
	}
	again := decode[postEntryResponse](t, rr)
	if !again.Existing || again.EntryID == nil || *again.EntryID != *first.EntryID {
		t.Fatalf("repeat should return the existing entry, got %+v", again)
	}

	rr = do(t, h, http.MethodGet, "/v1/entries/"+first.EntryID.String(), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get entry: %d", rr.Code)
	}
	e := decode[entryResponse](t, rr)
	if e.AmountMinor != 11900 || e.Amount != "119.00" || e.CreatedBy != defaultUser {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestPostEntryValidation(t *testing.T) {
	_, h := setup(t, Options{})
	cases := []struct {
		name   string
		mutate func(map[string]any)
		status int
	}{
		{"same accounts", func(m map[string]any) { m["credit_account"] = "1400" }, http.StatusUnprocessableEntity},
		{"zero amount", func(m map[string]any) { m["amount_minor"] = 0 }, http.StatusUnprocessableEntity},
		{"bad date", func(m map[string]any) { m["booking_date"] = "01.03.2024" }, http.StatusUnprocessableEntity},
		{"unknown source", func(m map[string]any) { m["source_type"] = "GIFT" }, http.StatusUnprocessableEntity},
		{"unknown account", func(m map[string]any) { m["debit_account"] = "1799" }, http.StatusUnprocessableEntity},
		{"unknown field", func(m map[string]any) { m["lines"] = []int{1} }, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := event("inv-x", "2024-03-01", 100)
			tc.mutate(body)
			rr := do(t, h, http.MethodPost, "/v1/entries", body, nil)
			if rr.Code != tc.status {
				t.Fatalf("want %d, got %d %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: want 415, got %d", rr.Code)
	}
}

func TestStornoAndBalances(t *testing.T) {
	_, h := setup(t, Options{})
	rr := do(t, h, http.MethodPost, "/v1/entries", event("inv-2", "2024-05-10", 50000), map[string]string{"X-User-ID": "buchhaltung"})
	id := decode[postEntryResponse](t, rr).EntryID

	rr = do(t, h, http.MethodGet, "/v1/accounts/1400/balance", nil, nil)
	if got := decode[balanceResponse](t, rr); got.AmountMinor != 50000 {
		t.Fatalf("receivables balance: %+v", got)
	}

	rr = do(t, h, http.MethodPost, "/v1/entries/"+id.String()+"/storno", map[string]string{"reason": "Doppelt erfasst"}, map[string]string{"X-User-ID": "buchhaltung"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("storno: %d %s", rr.Code, rr.Body.String())
	}
	st := decode[entryResponse](t, rr)
	if !st.IsStorno || st.DebitAccount != "8400" || st.CreditAccount != "1400" || st.CreatedBy != "buchhaltung" {
		t.Fatalf("unexpected storno: %+v", st)
	}

	rr = do(t, h, http.MethodPost, "/v1/entries/"+id.String()+"/storno", map[string]string{"reason": "nochmal"}, nil)
	if rr.Code != http.StatusConflict || decode[errResp](t, rr).Code != "already_reversed" {
		t.Fatalf("second storno: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/v1/trial-balance?as_of=2024-12-31", nil, nil)
	tb := decode[trialBalanceResponse](t, rr)
	for _, it := range tb.Items {
		if it.AmountMinor != 0 {
			t.Fatalf("balance of %s should net to zero, got %d", it.Account, it.AmountMinor)
		}
	}

	rr = do(t, h, http.MethodGet, "/v1/entries?account=1400&from=2024-01-01&to=2024-12-31", nil, nil)
	if list := decode[listEntriesResponse](t, rr); len(list.Items) != 2 {
		t.Fatalf("want 2 entries on 1400, got %d", len(list.Items))
	}
}

func TestExportStreamsNDJSON(t *testing.T) {
	_, h := setup(t, Options{})
	for i, id := range []string{"a", "b", "c"} {
		do(t, h, http.MethodPost, "/v1/entries", event(id, time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly), 100), nil)
	}

	rr := do(t, h, http.MethodGet, "/v1/entries/export?from=2024-02-01&to=2024-12-31", nil, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/x-ndjson" {
		t.Fatalf("export: %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	var n int
	sc := bufio.NewScanner(rr.Body)
	for sc.Scan() {
		var e entryResponse
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("want 2 exported entries, got %d", n)
	}

	rr = do(t, h, http.MethodGet, "/v1/entries/export?from=2024-02-01", nil, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("open range export: want 422, got %d", rr.Code)
	}
}

func TestListEntriesByBookingDate(t *testing.T) {
	_, h := setup(t, Options{})
	// posted out of order: entry numbers 1..3 carry dates Jun, Feb, Apr
	for _, ev := range []map[string]any{
		event("jun", "2024-06-01", 100),
		event("feb", "2024-02-01", 100),
		event("apr", "2024-04-01", 100),
	} {
		if rr := do(t, h, http.MethodPost, "/v1/entries", ev, nil); rr.Code != http.StatusCreated {
			t.Fatalf("post: %d %s", rr.Code, rr.Body)
		}
	}

	rr := do(t, h, http.MethodGet, "/v1/entries", nil, nil)
	list := decode[listEntriesResponse](t, rr)
	var got []string
	for _, it := range list.Items {
		got = append(got, it.SourceID)
	}
	if strings.Join(got, ",") != "feb,apr,jun" {
		t.Fatalf("want booking date order feb,apr,jun, got %v", got)
	}
	if list.Items[0].EntryNumber != 2 {
		t.Fatalf("entry numbers follow posting order, got %d first", list.Items[0].EntryNumber)
	}
}

func TestYearEndClosingOverHTTP(t *testing.T) {
	_, h := setup(t, Options{})
	admin := map[string]string{"X-User-ID": "steuerberater"}

	rr := do(t, h, http.MethodPost, "/v1/assets", map[string]any{
		"name":                   "Reifenmontiermaschine",
		"asset_number":           "AV-1",
		"acquisition_date":       "2024-01-15",
		"useful_life_years":      5,
		"acquisition_cost_minor": 500000,
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register asset: %d %s", rr.Code, rr.Body.String())
	}
	if a := decode[assetResponse](t, rr); a.AnnualMinor != 100000 {
		t.Fatalf("annual depreciation: %+v", a)
	}
	do(t, h, http.MethodPost, "/v1/entries", event("inv-3", "2024-06-01", 200000), nil)

	rr = do(t, h, http.MethodPost, "/v1/closing/2024/initiate", nil, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("initiate without admin: want 403, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/v1/closing/2024/lock", nil, admin)
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("lock before initiate: want 412, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/v1/closing/2024/initiate", map[string]string{"fiscal_year": "2024"}, admin)
	if rr.Code != http.StatusCreated {
		t.Fatalf("initiate: %d %s", rr.Code, rr.Body.String())
	}
	for _, step := range []string{"depreciation", "reports", "lock"} {
		rr = do(t, h, http.MethodPost, "/v1/closing/2024/"+step, nil, admin)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step, rr.Code, rr.Body.String())
		}
	}
	if c := decode[closingResponse](t, rr); c.Status != "locked" || c.LockedAt == nil {
		t.Fatalf("closing after lock: %+v", c)
	}

	rr = do(t, h, http.MethodGet, "/v1/statements/2024/income-statement", nil, nil)
	is := decode[incomeStatementResponse](t, rr)
	if is.NetIncome != 100000 || !is.Locked {
		t.Fatalf("income statement: %+v", is)
	}

	rr = do(t, h, http.MethodPost, "/v1/entries", event("inv-4", "2024-12-30", 100), nil)
	if rr.Code != http.StatusConflict || decode[errResp](t, rr).Code != "period_locked" {
		t.Fatalf("post into locked year: %d %s", rr.Code, rr.Body.String())
	}
	body := event("inv-4", "2024-12-30", 100)
	body["non_blocking"] = true
	rr = do(t, h, http.MethodPost, "/v1/entries", body, nil)
	if rr.Code != http.StatusAccepted || decode[postEntryResponse](t, rr).Warning == "" {
		t.Fatalf("non-blocking post: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/v1/closing/2025", nil, nil)
	if c := decode[closingResponse](t, rr); c.Status != "not_initialized" {
		t.Fatalf("2025 status: %+v", c)
	}
}

func TestYearParam(t *testing.T) {
	_, h := setup(t, Options{})
	rr := do(t, h, http.MethodGet, "/v1/closing/20x4", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/statements/2024/balance-sheet", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot: want 404, got %d", rr.Code)
	}
}

func sign(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	enc := base64.RawURLEncoding
	hdr := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	b, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	payload := enc.EncodeToString(b)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(hdr + "." + payload))
	return hdr + "." + payload + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestJWTAuth(t *testing.T) {
	_, h := setup(t, Options{JWTSecret: "s3cret", JWTIssuer: "werkstatt"})

	if rr := do(t, h, http.MethodGet, "/healthz", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz should bypass auth, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/accounts", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", rr.Code)
	}
	bad := sign(t, "other", map[string]any{"sub": "x", "iss": "werkstatt"})
	if rr := do(t, h, http.MethodGet, "/v1/accounts", nil, map[string]string{"Authorization": "Bearer " + bad}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: want 401, got %d", rr.Code)
	}
	expired := sign(t, "s3cret", map[string]any{"sub": "x", "iss": "werkstatt", "exp": time.Now().Add(-time.Minute).Unix()})
	if rr := do(t, h, http.MethodGet, "/v1/accounts", nil, map[string]string{"Authorization": "Bearer " + expired}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expired: want 401, got %d", rr.Code)
	}

	tok := sign(t, "s3cret", map[string]any{"sub": "steuerberater", "iss": "werkstatt", "exp": time.Now().Add(time.Hour).Unix()})
	auth := map[string]string{"Authorization": "Bearer " + tok, "X-User-ID": "spoofed"}
	rr := do(t, h, http.MethodPost, "/v1/entries", event("inv-5", "2024-02-02", 500), auth)
	if rr.Code != http.StatusCreated {
		t.Fatalf("authorized post: %d %s", rr.Code, rr.Body.String())
	}
	id := decode[postEntryResponse](t, rr).EntryID
	rr = do(t, h, http.MethodGet, "/v1/entries/"+id.String(), nil, auth)
	if e := decode[entryResponse](t, rr); e.CreatedBy != "steuerberater" {
		t.Fatalf("creator should come from the token subject, got %q", e.CreatedBy)
	}
}

func TestAccountsAndDictionary(t *testing.T) {
	_, h := setup(t, Options{})
	rr := do(t, h, http.MethodPost, "/v1/accounts", map[string]string{"number": "4930", "name": "Bürobedarf"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", rr.Code, rr.Body.String())
	}
	if a := decode[accountResponse](t, rr); a.Type != "expense" || a.Group != "49" {
		t.Fatalf("unexpected account: %+v", a)
	}
	rr = do(t, h, http.MethodPost, "/v1/accounts", map[string]string{"number": "4930", "name": "Bürobedarf"}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate account: want 409, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/accounts?type=revenue", nil, nil)
	if list := decode[[]accountResponse](t, rr); len(list) != 1 || list[0].Number != "8400" {
		t.Fatalf("revenue accounts: %+v", list)
	}
	rr = do(t, h, http.MethodGet, "/v1/dictionary/groups?type=revenue", nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"84"`) {
		t.Fatalf("groups: %d %s", rr.Code, rr.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	_, h := setup(t, Options{})
	if rr := do(t, h, http.MethodGet, "/readyz", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/metrics", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
}
