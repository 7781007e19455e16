package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_ALPACA_KEY", "abc123")

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
alpaca:
  api_key: ${TEST_ALPACA_KEY}
  secret_key: literal-secret
  base_url: https://paper-api.alpaca.markets
  data_url: https://data.alpaca.markets
safety:
  max_position_pct: 0.2
  max_orders_per_minute: 5
  cooldown_seconds: 2
  paper_only: true
`), 0o644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", settings.Alpaca.APIKey)
	assert.Equal(t, "literal-secret", settings.Alpaca.SecretKey)
	assert.Equal(t, 0.2, settings.Safety.MaxPositionPct)
}

func TestLoadSettingsAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
alpaca:
  api_key: k
  secret_key: s
  base_url: https://paper-api.alpaca.markets
  data_url: https://data.alpaca.markets
`), 0o644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, settings.Safety.MaxPositionPct)
	assert.Equal(t, 10, settings.Safety.MaxOrdersPerMinute)
	assert.Equal(t, ":8080", settings.HTTP.ListenAddr)
}

func TestLoadStrategiesBuildsEnabledOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies:
  - type: momentum
    name: mom1
    symbols: [AAPL]
    threshold_pct: 2
    exit_threshold_pct: 1
    lookback_seconds: 30
  - type: buy_and_hold
    name: bah1
    symbols: [MSFT]
    enabled: false
`), 0o644))

	strategies, err := LoadStrategies(path)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "mom1", strategies[0].Name())
}
