package httpapi

import (
	"encoding/json"
	"iter"
	"net/http"
	"sort"
	"time"

	"github.com/reifenwerk/ledger/internal/ledger"
)

// postEntry books a business event. A new entry answers 201, a repeated
// source key 200 with the existing entry.
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	in := validated[validatedEvent](r)
	post := s.svc.Booking.PostBusinessEvent
	if in.nonBlocking {
		post = s.svc.Booking.PostNonBlocking
	}
	out, err := post(r.Context(), in.event)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	resp := postEntryResponse{EntryNumber: out.EntryNumber, Existing: out.Existing, Warning: out.Warning}
	status := http.StatusCreated
	switch {
	case out.Warning != "":
		status = http.StatusAccepted
	case out.Existing:
		status = http.StatusOK
	}
	if out.Warning == "" {
		id := out.EntryID
		resp.EntryID = &id
	}
	toJSON(w, status, resp)
}

// listEntries handles GET /entries. Results are ordered by booking date, then entry number.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	f := validated[ledger.EntryFilter](r)
	items := make([]entryResponse, 0)
	for e, err := range s.svc.Journal.Query(r.Context(), f) {
		if err != nil {
			s.serviceErr(w, r, err)
			return
		}
		items = append(items, toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, listEntriesResponse{Items: items})
}

// exportEntries streams the entries of a range as newline-delimited JSON.
func (s *Server) exportEntries(w http.ResponseWriter, r *http.Request) {
	rng := validated[ledger.DateRange](r)
	next, stop := iter.Pull2(s.svc.Journal.Export(r.Context(), rng))
	defer stop()

	// Peek at the first row so a failing query still gets a proper status.
	first, err, ok := next()
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for ok {
		if err != nil {
			s.log.Error("export aborted", "req_id", reqID(r), "err", err)
			return
		}
		if encErr := enc.Encode(toEntryResponse(first)); encErr != nil {
			return
		}
		first, err, ok = next()
	}
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	e, err := s.svc.Journal.Get(r.Context(), id)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) stornoEntry(w http.ResponseWriter, r *http.Request) {
	in := validated[stornoInput](r)
	e, err := s.svc.Journal.Storno(r.Context(), in.id, in.reason, actor(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponse(e))
}

func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := validated[*time.Time](r)
	balances, err := s.svc.Journal.TrialBalance(r.Context(), asOf)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	numbers := make([]string, 0, len(balances))
	for n := range balances {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)
	resp := trialBalanceResponse{AsOf: dayString(asOf), Items: make([]balanceResponse, 0, len(numbers))}
	for _, n := range numbers {
		units := ledger.MinorUnits(balances[n])
		resp.Items = append(resp.Items, balanceResponse{Account: n, AmountMinor: units, Amount: ledger.FormatMinor(units)})
	}
	toJSON(w, http.StatusOK, resp)
}

func dayString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDay(*t)
	return &s
}
