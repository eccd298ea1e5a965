package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "zerodha-stream/internal/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10000, cfg.Feed.QueueSize)
	assert.Equal(t, 100.0, cfg.Feed.PriceScaleDivisor)
	assert.True(t, cfg.Feed.PriceScaleAuto)
	assert.Equal(t, []int{60}, cfg.Aggregation.IntervalsSeconds)
	assert.Equal(t, 3.0, cfg.RateLimit.RatePerSecond)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero queue size", func(c *Config) { c.Feed.QueueSize = 0 }},
		{"negative scale divisor", func(c *Config) { c.Feed.PriceScaleDivisor = -1 }},
		{"no intervals", func(c *Config) { c.Aggregation.IntervalsSeconds = nil }},
		{"negative interval", func(c *Config) { c.Aggregation.IntervalsSeconds = []int{60, -5} }},
		{"zero rate", func(c *Config) { c.RateLimit.RatePerSecond = 0 }},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"zero retries", func(c *Config) { c.Backfill.MaxRetries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *apperrors.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestLoadCreatesTemplatesOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// First run writes commented template files and returns defaults.
	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))
	assert.Equal(t, Default().Feed.QueueSize, cfg.Feed.QueueSize)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()

	configTOML := `
[feed]
queue_size = 512
price_scale_divisor = 100.0
price_scale_auto = false

[feed.symbols]
RELIANCE = 738561
SBIN = 779521

[aggregation]
intervals_seconds = [60, 300]

[orders]
[[orders.gtt]]
symbol = "SBIN"
trigger_price = 800.0
limit_price = 801.0
quantity = 10
side = "BUY"
condition = "GTE"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(configTOML), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Feed.QueueSize)
	assert.False(t, cfg.Feed.PriceScaleAuto)
	assert.Equal(t, uint32(738561), cfg.Feed.Symbols["RELIANCE"])
	assert.Equal(t, uint32(779521), cfg.Feed.Symbols["SBIN"])
	assert.Equal(t, []int{60, 300}, cfg.Aggregation.IntervalsSeconds)

	require.Len(t, cfg.Orders.GTT, 1)
	assert.Equal(t, "SBIN", cfg.Orders.GTT[0].Symbol)
	assert.Equal(t, 800.0, cfg.Orders.GTT[0].TriggerPrice)
}

func TestLoadReadsCredentials(t *testing.T) {
	dir := t.TempDir()

	credsTOML := `
[zerodha]
api_key = "testkey"
api_secret = "testsecret"
access_token = "testtoken"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(credsTOML), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "testkey", cfg.Credentials.Zerodha.APIKey)
	assert.Equal(t, "testtoken", cfg.Credentials.Zerodha.AccessToken)
}

func TestEnvOverridesWinOverFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ZSTREAM_API_KEY", "envkey")
	t.Setenv("ZSTREAM_DB_PATH", "/tmp/override.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "envkey", cfg.Credentials.Zerodha.APIKey)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DBPath)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()

	configTOML := `
[feed]
queue_size = -1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(configTOML), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
