// Package httpapi exposes the ledger to dashboards and the administrative
// closing workflow over HTTP. Handlers stay thin and delegate every rule to
// the service layer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/reifenwerk/ledger/internal/service/account"
	"github.com/reifenwerk/ledger/internal/service/booking"
	"github.com/reifenwerk/ledger/internal/service/closing"
	"github.com/reifenwerk/ledger/internal/service/depreciation"
	"github.com/reifenwerk/ledger/internal/service/journal"
	"github.com/reifenwerk/ledger/internal/service/statement"
)

// ReadyChecker reports whether the backing store is reachable.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Services bundles the components the API delegates to.
type Services struct {
	Accounts     account.Service
	Journal      journal.Service
	Booking      booking.Service
	Depreciation depreciation.Service
	Statements   statement.Service
	Closing      closing.Service
}

// Options tune the HTTP surface.
type Options struct {
	Currency string
	// JWT settings; an empty secret disables bearer authentication.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// Server wires handlers and middleware using Chi.
type Server struct {
	svc   Services
	ready ReadyChecker
	opts  Options
	log   *slog.Logger
	rt    *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by request logging and panic recovery.
func New(svc Services, ready ReadyChecker, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	if mw := authJWT(opts.JWTSecret, opts.JWTIssuer, opts.JWTAudience); mw != nil {
		r.Use(mw)
	}

	s := &Server{svc: svc, ready: ready, opts: opts, log: logger, rt: r}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }
