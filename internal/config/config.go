package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	LLM      LLMConfig
	Database DatabaseConfig
	Alerts   AlertConfig
	Relay    RelayConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	// RequestDelay is the fixed pause between vendors in a batch. Sequential
	// scraping plus this delay is the whole throttling mechanism.
	RequestDelay time.Duration
	// MaxContentLength bounds the page text handed to the extractors.
	MaxContentLength int
	// RawSnippetLength bounds the audit snippet stored with an observation.
	RawSnippetLength int
	// BatchLimit caps how many targets one batch run may process.
	BatchLimit int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	SettleDelay    time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	// Temperature stays low so repeated extractions of the same page agree.
	Temperature float64
	// MaxPromptLength bounds page text embedded in the extraction prompt.
	MaxPromptLength int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AlertConfig holds the analytics thresholds. The 5% constants come from the
// product requirements and are deliberately configurable rather than inferred.
type AlertConfig struct {
	// DropThresholdPct triggers a price-drop alert when the latest unit price
	// fell by more than this percentage against the prior period.
	DropThresholdPct float64
	// TrendThresholdPct separates "up"/"down" from "stable" over the trend window.
	TrendThresholdPct float64
	TrendWindow       time.Duration
	// CompareWindow is how far back the prior-period price for alert
	// comparison may be, and LatestWindow how fresh the latest price must be.
	CompareWindow time.Duration
	LatestWindow  time.Duration
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Stream       string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			RequestDelay:     getDurationOrDefault("SCRAPER_REQUEST_DELAY", 2*time.Second),
			MaxContentLength: getIntOrDefault("SCRAPER_MAX_CONTENT_LENGTH", 5000),
			RawSnippetLength: getIntOrDefault("SCRAPER_RAW_SNIPPET_LENGTH", 1000),
			BatchLimit:       getIntOrDefault("SCRAPER_BATCH_LIMIT", 50),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			SettleDelay:    getDurationOrDefault("BROWSER_SETTLE_DELAY", 2*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
		},
		LLM: LLMConfig{
			APIKey:          os.Getenv("LLM_API_KEY"),
			BaseURL:         getEnvOrDefault("LLM_BASE_URL", "https://api.x.ai/v1"),
			Model:           getEnvOrDefault("LLM_MODEL", "grok-2-1212"),
			Timeout:         getDurationOrDefault("LLM_TIMEOUT", 30*time.Second),
			MaxTokens:       getIntOrDefault("LLM_MAX_TOKENS", 200),
			Temperature:     getFloatOrDefault("LLM_TEMPERATURE", 0.1),
			MaxPromptLength: getIntOrDefault("LLM_MAX_PROMPT_LENGTH", 3000),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_tracker"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Alerts: AlertConfig{
			DropThresholdPct:  getFloatOrDefault("ALERT_DROP_THRESHOLD_PCT", 5),
			TrendThresholdPct: getFloatOrDefault("ALERT_TREND_THRESHOLD_PCT", 5),
			TrendWindow:       getDurationOrDefault("ALERT_TREND_WINDOW", 30*24*time.Hour),
			CompareWindow:     getDurationOrDefault("ALERT_COMPARE_WINDOW", 7*24*time.Hour),
			LatestWindow:      getDurationOrDefault("ALERT_LATEST_WINDOW", 24*time.Hour),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
			Stream:       getEnvOrDefault("RELAY_STREAM", "stream:price_events"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.RequestDelay < 0 {
		return fmt.Errorf("SCRAPER_REQUEST_DELAY cannot be negative")
	}
	if c.Scraper.MaxContentLength < 1 {
		return fmt.Errorf("SCRAPER_MAX_CONTENT_LENGTH must be at least 1")
	}
	if c.Scraper.BatchLimit < 1 {
		return fmt.Errorf("SCRAPER_BATCH_LIMIT must be at least 1")
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("BROWSER_TIMEOUT must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.Alerts.DropThresholdPct < 0 {
		return fmt.Errorf("ALERT_DROP_THRESHOLD_PCT cannot be negative")
	}
	if c.Alerts.TrendThresholdPct < 0 {
		return fmt.Errorf("ALERT_TREND_THRESHOLD_PCT cannot be negative")
	}
	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
