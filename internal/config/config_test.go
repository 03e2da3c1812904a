package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Scraper.RequestDelay)
	assert.Equal(t, 5000, cfg.Scraper.MaxContentLength)
	assert.Equal(t, 1000, cfg.Scraper.RawSnippetLength)
	assert.Equal(t, 50, cfg.Scraper.BatchLimit)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Browser.SettleDelay)

	assert.Equal(t, "https://api.x.ai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 0.1, cfg.LLM.Temperature)
	assert.Equal(t, 200, cfg.LLM.MaxTokens)

	assert.Equal(t, 5.0, cfg.Alerts.DropThresholdPct)
	assert.Equal(t, 30*24*time.Hour, cfg.Alerts.TrendWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Alerts.CompareWindow)

	assert.Equal(t, "stream:price_events", cfg.Relay.Stream)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCRAPER_REQUEST_DELAY", "5s")
	t.Setenv("SCRAPER_MAX_CONTENT_LENGTH", "2000")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("LLM_API_KEY", "secret")
	t.Setenv("LLM_TEMPERATURE", "0.3")
	t.Setenv("ALERT_DROP_THRESHOLD_PCT", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Scraper.RequestDelay)
	assert.Equal(t, 2000, cfg.Scraper.MaxContentLength)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 10.0, cfg.Alerts.DropThresholdPct)
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("SCRAPER_MAX_CONTENT_LENGTH", "not-a-number")
	t.Setenv("BROWSER_HEADLESS", "maybe")
	t.Setenv("SCRAPER_REQUEST_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Scraper.MaxContentLength)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2*time.Second, cfg.Scraper.RequestDelay)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "negative request delay", mutate: func(c *Config) { c.Scraper.RequestDelay = -time.Second }},
		{name: "zero content length", mutate: func(c *Config) { c.Scraper.MaxContentLength = 0 }},
		{name: "zero batch limit", mutate: func(c *Config) { c.Scraper.BatchLimit = 0 }},
		{name: "zero browser timeout", mutate: func(c *Config) { c.Browser.Timeout = 0 }},
		{name: "temperature out of range", mutate: func(c *Config) { c.LLM.Temperature = 3 }},
		{name: "negative drop threshold", mutate: func(c *Config) { c.Alerts.DropThresholdPct = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
