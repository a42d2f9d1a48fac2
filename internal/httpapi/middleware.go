package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/booking"
)

type ctxKey int

const (
	ctxSubject ctxKey = iota
	ctxYear
	ctxValidated
)

// defaultUser is recorded as creator when a request carries no identity.
const defaultUser = "api"

func reqID(r *http.Request) string { return chimw.GetReqID(r.Context()) }

// requestLogger logs basic request info at INFO.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			id := reqID(r)
			l.Info("request started", "req_id", id, "method", r.Method, "path", r.URL.Path)

			next.ServeHTTP(ww, r)

			l.Info("request complete",
				"req_id", id,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// recoverer logs panics as ERROR and returns 500.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic", "req_id", reqID(r), "err", rec, "stack", string(debug.Stack()))
					writeErr(w, http.StatusInternalServerError, "internal error", "internal")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireJSON writes 415 unless the body is declared as application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	mime := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	if mime != "application/json" {
		writeErr(w, http.StatusUnsupportedMediaType, "content type must be application/json", "unsupported_media_type")
		return false
	}
	return true
}

// actor is userFrom with the anonymous fallback applied.
func actor(r *http.Request) string {
	if u := userFrom(r); u != "" {
		return u
	}
	return defaultUser
}

func parseDay(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", errs.ErrValidation, field)
	}
	return t, nil
}

func parseOptionalDay(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDay(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseID reads the {id} path parameter.
func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", errs.ErrValidation)
	}
	return id, nil
}

func withValidated(r *http.Request, v any) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxValidated, v))
}

func validated[T any](r *http.Request) T {
	v, _ := r.Context().Value(ctxValidated).(T)
	return v
}

func yearOf(r *http.Request) int {
	y, _ := r.Context().Value(ctxYear).(int)
	return y
}

// validatePostEvent turns the POST /entries body into a booking event and
// checks it against the entry rules before the handler runs.
func (s *Server) validatePostEvent() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postEntryRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			ev, err := s.toEvent(req, actor(r))
			if err != nil {
				s.serviceErr(w, r, err)
				return
			}
			probe := ledger.Entry{
				BookingDate:   ev.BookingDate,
				DebitAccount:  ev.DebitAccount,
				CreditAccount: ev.CreditAccount,
				Amount:        ev.Amount,
				SourceType:    ev.SourceType,
			}
			if err := s.svc.Journal.ValidateEntry(probe); err != nil {
				s.serviceErr(w, r, err)
				return
			}
			next.ServeHTTP(w, withValidated(r, validatedEvent{event: ev, nonBlocking: req.NonBlocking}))
		})
	}
}

func (s *Server) toEvent(req postEntryRequest, user string) (booking.Event, error) {
	st, err := ledger.ParseSourceType(req.SourceType)
	if err != nil {
		return booking.Event{}, err
	}
	amt, err := ledger.FromMinor(s.opts.Currency, req.AmountMinor)
	if err != nil {
		return booking.Event{}, err
	}
	day, err := parseDay("booking_date", req.BookingDate)
	if err != nil {
		return booking.Event{}, err
	}
	doc, err := parseOptionalDay("document_date", req.DocumentDate)
	if err != nil {
		return booking.Event{}, err
	}
	return booking.Event{
		SourceType:    st,
		SourceID:      strings.TrimSpace(req.SourceID),
		DebitAccount:  strings.TrimSpace(req.DebitAccount),
		CreditAccount: strings.TrimSpace(req.CreditAccount),
		Amount:        amt,
		BookingDate:   day,
		DocumentDate:  doc,
		Description:   strings.TrimSpace(req.Description),
		CreatedBy:     user,
	}, nil
}

// validateListEntries parses account, source_type, from and to.
func (s *Server) validateListEntries() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var f ledger.EntryFilter
			f.AccountNumber = strings.TrimSpace(q.Get("account"))
			if st := q.Get("source_type"); st != "" {
				parsed, err := ledger.ParseSourceType(st)
				if err != nil {
					s.serviceErr(w, r, err)
					return
				}
				f.SourceType = parsed
			}
			if q.Get("from") != "" || q.Get("to") != "" {
				rng, err := parseRange(q.Get("from"), q.Get("to"), false)
				if err != nil {
					s.serviceErr(w, r, err)
					return
				}
				f.Range = &rng
			}
			next.ServeHTTP(w, withValidated(r, f))
		})
	}
}

// validateExport requires both ends of the range.
func (s *Server) validateExport() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			rng, err := parseRange(q.Get("from"), q.Get("to"), true)
			if err != nil {
				s.serviceErr(w, r, err)
				return
			}
			next.ServeHTTP(w, withValidated(r, rng))
		})
	}
}

// parseRange reads an inclusive day range. Open ends are allowed unless
// required is set.
func parseRange(from, to string, required bool) (ledger.DateRange, error) {
	if required && (from == "" || to == "") {
		return ledger.DateRange{}, fmt.Errorf("%w: from and to are required", errs.ErrValidation)
	}
	var rng ledger.DateRange
	var err error
	if from != "" {
		if rng.From, err = parseDay("from", from); err != nil {
			return rng, err
		}
	}
	if to != "" {
		if rng.To, err = parseDay("to", to); err != nil {
			return rng, err
		}
	} else {
		rng.To = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	if rng.To.Before(rng.From) {
		return rng, fmt.Errorf("%w: from is after to", errs.ErrValidation)
	}
	return rng, nil
}

type stornoInput struct {
	id     uuid.UUID
	reason string
}

func (s *Server) validateStorno() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := parseID(r)
			if err != nil {
				s.serviceErr(w, r, err)
				return
			}
			if !requireJSON(w, r) {
				return
			}
			var req stornoRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				s.serviceErr(w, r, fmt.Errorf("%w: reason is required", errs.ErrValidation))
				return
			}
			next.ServeHTTP(w, withValidated(r, stornoInput{id: id, reason: reason}))
		})
	}
}

// validateAsOf parses the optional as_of day.
func (s *Server) validateAsOf() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			asOf, err := parseOptionalDay("as_of", r.URL.Query().Get("as_of"))
			if err != nil {
				s.serviceErr(w, r, err)
				return
			}
			next.ServeHTTP(w, withValidated(r, asOf))
		})
	}
}

func (s *Server) validatePostAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postAccountRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if err := s.svc.Accounts.ValidateCreate(req.Number, req.Name); err != nil {
				s.serviceErr(w, r, err)
				return
			}
			next.ServeHTTP(w, withValidated(r, req))
		})
	}
}

// validateAsset decodes asset master data. The rules themselves live in the
// depreciation service.
func (s *Server) validateAsset() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req assetRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			acquired, err := parseDay("acquisition_date", req.AcquisitionDate)
			if err != nil {
				s.serviceErr(w, r, err)
				return
			}
			cost, err := ledger.FromMinor(s.opts.Currency, req.CostMinor)
			if err != nil {
				s.serviceErr(w, r, err)
				return
			}
			a := ledger.Asset{
				Name:            req.Name,
				AssetNumber:     req.AssetNumber,
				AcquisitionDate: acquired,
				UsefulLifeYears: req.UsefulLifeYears,
				AcquisitionCost: cost,
			}
			next.ServeHTTP(w, withValidated(r, a))
		})
	}
}

// validateYear parses {year} into the request context.
func (s *Server) validateYear() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			y, err := strconv.Atoi(chi.URLParam(r, "year"))
			if err != nil || y < 1900 || y > 9999 {
				badRequest(w, "year must be a four digit number")
				return
			}
			ctx := context.WithValue(r.Context(), ctxYear, y)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
