// Package config holds the lifecycle-scoped settings of a ledger process.
// A Config is built once in main and handed to the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reifenwerk/ledger/internal/errs"
	"github.com/reifenwerk/ledger/internal/ledger"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level ledger.yaml configuration.
type Config struct {
	Currency     string             `yaml:"currency"`
	Accounts     AccountsConfig     `yaml:"accounts"`
	Depreciation DepreciationConfig `yaml:"depreciation"`
	Storage      StorageConfig      `yaml:"storage"`
	HTTP         HTTPConfig         `yaml:"http"`
	Log          LogConfig          `yaml:"log"`
	Closing      ClosingConfig      `yaml:"closing"`
}

// AccountsConfig names the accounts automatic postings use.
type AccountsConfig struct {
	DepreciationExpense     string `yaml:"depreciation_expense"`
	AccumulatedDepreciation string `yaml:"accumulated_depreciation"`
	SeedDefaultChart        bool   `yaml:"seed_default_chart"`
}

// DepreciationConfig tunes scheduling. With cap_at_cost the final year of the
// useful life books the rounding remainder and fully written-off assets get
// no further rows. Off by default: every in-service year books the annual amount.
type DepreciationConfig struct {
	CapAtCost bool `yaml:"cap_at_cost"`
}

// StorageConfig selects the backing store. An empty driver is inferred:
// database_url selects postgres, sqlite_path selects sqlite, else memory.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// HTTPConfig configures the admin and reporting API. With a JWT secret set,
// requests need an HS256 bearer token and the token subject is the acting user.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	JWTSecret   string `yaml:"jwt_secret,omitempty"`
	JWTIssuer   string `yaml:"jwt_issuer,omitempty"`
	JWTAudience string `yaml:"jwt_audience,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

// ClosingConfig guards the year-end workflow. No admins means anyone may close.
type ClosingConfig struct {
	Admins []string `yaml:"admins,omitempty"`
}

// Default returns a Config with the defaults for a new deployment.
func Default() *Config {
	return &Config{
		Currency: "EUR",
		Accounts: AccountsConfig{
			DepreciationExpense:     "4830",
			AccumulatedDepreciation: "0299",
			SeedDefaultChart:        true,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a ledger.yaml file on top of the defaults. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Storage.DatabaseURL = v
	}
	if v, ok := lookup("LEDGER_SQLITE_PATH"); ok && v != "" {
		c.Storage.SQLitePath = v
	}
	if v, ok := lookup("LEDGER_STORAGE_DRIVER"); ok && v != "" {
		c.Storage.Driver = v
	}
	if v, ok := lookup("LEDGER_HTTP_ADDR"); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("JWT_HS256_SECRET"); ok && v != "" {
		c.HTTP.JWTSecret = v
	}
	if v, ok := lookup("JWT_ISSUER"); ok && v != "" {
		c.HTTP.JWTIssuer = v
	}
	if v, ok := lookup("JWT_AUDIENCE"); ok && v != "" {
		c.HTTP.JWTAudience = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
}

// Driver returns the effective storage driver.
func (c *Config) Driver() string {
	switch {
	case c.Storage.Driver != "":
		return strings.ToLower(c.Storage.Driver)
	case c.Storage.DatabaseURL != "":
		return DriverPostgres
	case c.Storage.SQLitePath != "":
		return DriverSQLite
	default:
		return DriverMemory
	}
}

// Validate checks the settings the services rely on.
func (c *Config) Validate() error {
	var problems []error
	if len(c.Currency) != 3 {
		problems = append(problems, fmt.Errorf("currency %q must be an ISO 4217 code", c.Currency))
	}
	for name, number := range map[string]string{
		"accounts.depreciation_expense":     c.Accounts.DepreciationExpense,
		"accounts.accumulated_depreciation": c.Accounts.AccumulatedDepreciation,
	} {
		if _, err := ledger.TypeForNumber(number); err != nil {
			problems = append(problems, fmt.Errorf("%s: %v", name, err))
		}
	}
	switch c.Driver() {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			problems = append(problems, errors.New("storage.sqlite_path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			problems = append(problems, errors.New("storage.database_url is required for postgres"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: config: %w", errs.ErrValidation, errors.Join(problems...))
	}
	return nil
}

// IsClosingAdmin reports whether user may run the year-end workflow.
func (c *Config) IsClosingAdmin(user string) bool {
	if len(c.Closing.Admins) == 0 {
		return true
	}
	for _, a := range c.Closing.Admins {
		if a == user {
			return true
		}
	}
	return false
}
