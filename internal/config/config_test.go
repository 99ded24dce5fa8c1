package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.RetryAttempts)
	assert.Equal(t, "@every 30m", cfg.Auth.RefreshSchedule)
	assert.Equal(t, "http://localhost:3001", cfg.API.BaseURL)
	assert.InDelta(t, 5.0, cfg.API.RatePerSec, 0.001)

	assert.True(t, cfg.Engine.Enabled)
	assert.False(t, cfg.Engine.ConfirmBeforePurchase)
	assert.InDelta(t, 7.0, cfg.Engine.ReturnRate, 0.001)
	assert.Equal(t, 10, cfg.Engine.Years)
	assert.InDelta(t, 10.0, cfg.Engine.MinPrice, 0.001)

	assert.Len(t, cfg.Scanner.Product, 7)
	assert.Len(t, cfg.Scanner.Cart, 4)
	assert.Contains(t, cfg.Intercept.CheckoutSelectors, "#buy-now-button")
	assert.Equal(t, 2*time.Second, cfg.Intercept.VariantTimeout())
	assert.Equal(t, 5*time.Second, cfg.Decision.Timeout())
	assert.Equal(t, "sqlite", cfg.Local.Driver)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
store:
  driver: sqlite
  database_url: savings.db
engine:
  confirm_before_purchase: true
  return_rate: 5
  years: 20
  min_price: 25
intercept:
  variant_timeout_ms: 500
  checkout_selectors:
    - "#place-order"
local:
  driver: redis
  redis_addr: cache:6379
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "savings.db", cfg.Store.DatabaseURL)
	assert.True(t, cfg.Engine.ConfirmBeforePurchase)
	assert.True(t, cfg.Engine.Enabled, "unset keys keep defaults")
	assert.Equal(t, 20, cfg.Engine.Years)
	assert.InDelta(t, 25.0, cfg.Engine.MinPrice, 0.001)
	assert.Equal(t, 500*time.Millisecond, cfg.Intercept.VariantTimeout())
	assert.Equal(t, []string{"#place-order"}, cfg.Intercept.CheckoutSelectors)
	assert.Equal(t, "redis", cfg.Local.Driver)
	assert.Equal(t, "cache:6379", cfg.Local.RedisAddr)
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRUECOST_SERVER_PORT", "9090")
	t.Setenv("TRUECOST_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRUECOST_STORE_DATABASE_URL=postgres://dotenv/db\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TRUECOST_STORE_DATABASE_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://dotenv/db", cfg.Store.DatabaseURL)
}

func TestLoadRejectsInvalidEngineSettings(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("engine:\n  years: 0\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: engine")
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "truecost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4100\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse log level")
}
