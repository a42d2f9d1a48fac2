package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifenwerk/ledger/internal/errs"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "4830", cfg.Accounts.DepreciationExpense)
	assert.Equal(t, "0299", cfg.Accounts.AccumulatedDepreciation)
	assert.True(t, cfg.Accounts.SeedDefaultChart)
	assert.False(t, cfg.Depreciation.CapAtCost)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, DriverMemory, cfg.Driver())
	require.NoError(t, cfg.Validate())
}

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = DriverSQLite
	cfg.Storage.SQLitePath = "/var/lib/ledger/ledger.db"
	cfg.Closing.Admins = []string{"alice", "bob"}

	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  depreciation_expense: \"4822\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "4822", cfg.Accounts.DepreciationExpense)
	assert.Equal(t, "0299", cfg.Accounts.AccumulatedDepreciation)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.False(t, cfg.Depreciation.CapAtCost)
}

func TestLoadDepreciationSwitch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depreciation:\n  cap_at_cost: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Depreciation.CapAtCost)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":     "postgres://ledger@localhost/ledger",
		"LEDGER_HTTP_ADDR": ":9090",
		"LOG_LEVEL":        "debug",
		"LOG_FORMAT":       "",
		"JWT_HS256_SECRET": "s3cret",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, DriverPostgres, cfg.Driver())
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "empty env values do not override")
	assert.Equal(t, "s3cret", cfg.HTTP.JWTSecret)
	assert.Empty(t, cfg.HTTP.JWTIssuer)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Currency = "EURO"
	cfg.Accounts.AccumulatedDepreciation = "x1"
	cfg.Storage.Driver = DriverSQLite

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "currency")
	assert.Contains(t, err.Error(), "accumulated_depreciation")
	assert.Contains(t, err.Error(), "sqlite_path")
}

func TestIsClosingAdmin(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsClosingAdmin("anyone"))

	cfg.Closing.Admins = []string{"alice"}
	assert.True(t, cfg.IsClosingAdmin("alice"))
	assert.False(t, cfg.IsClosingAdmin("mallory"))
}
