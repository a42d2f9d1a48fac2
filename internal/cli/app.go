package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/reifenwerk/ledger/internal/config"
	"github.com/reifenwerk/ledger/internal/dictionary"
	"github.com/reifenwerk/ledger/internal/httpapi"
	"github.com/reifenwerk/ledger/internal/service/account"
	"github.com/reifenwerk/ledger/internal/service/booking"
	"github.com/reifenwerk/ledger/internal/service/closing"
	"github.com/reifenwerk/ledger/internal/service/depreciation"
	"github.com/reifenwerk/ledger/internal/service/journal"
	"github.com/reifenwerk/ledger/internal/service/statement"
	"github.com/reifenwerk/ledger/internal/storage"
	"github.com/reifenwerk/ledger/internal/storage/memory"
	"github.com/reifenwerk/ledger/internal/storage/postgres"
	"github.com/reifenwerk/ledger/internal/storage/sqlite"
)

// app is the wired process: config, logger, store and services.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store storage.Store
	svc   httpapi.Services
}

// newLogger builds the slog logger from the log section. Output goes to w so
// command output on stdout stays parseable.
func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.Level)}
	if strings.EqualFold(strings.TrimSpace(c.Format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads path, overlays the environment and validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("storage backend: postgres")
		return pg, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Storage.SQLitePath, err)
		}
		log.Info("storage backend: sqlite", "path", cfg.Storage.SQLitePath)
		return s, nil
	default:
		log.Info("storage backend: memory")
		return memory.New(), nil
	}
}

// wire builds every service on top of store.
func wire(cfg *config.Config, store storage.Store, log *slog.Logger) httpapi.Services {
	accts := account.New(store, log)
	j := journal.New(store, cfg.Currency, log)
	b := booking.New(store, j, booking.Accounts{
		DepreciationExpense:     cfg.Accounts.DepreciationExpense,
		AccumulatedDepreciation: cfg.Accounts.AccumulatedDepreciation,
	}, log)
	d := depreciation.New(store, cfg.Currency, log, depreciation.CapAtCost(cfg.Depreciation.CapAtCost))
	st := statement.New(store, cfg.Currency, log)
	c := closing.New(closing.Deps{
		Store:        store,
		Accounts:     accts,
		Depreciation: d,
		Booking:      b,
		Statements:   st,
		Auth:         cfg,
		Log:          log,
	})
	return httpapi.Services{Accounts: accts, Journal: j, Booking: b, Depreciation: d, Statements: st, Closing: c}
}

func openApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Log, logOut)
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: store, svc: wire(cfg, store, log)}
	if cfg.Accounts.SeedDefaultChart {
		n, err := a.svc.Accounts.EnsureChart(ctx, dictionary.DefaultChart)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("seed chart of accounts: %w", err)
		}
		if n > 0 {
			log.Info("chart of accounts seeded", "created", n)
		}
	}
	return a, nil
}

func (a *app) Close() error { return a.store.Close() }
