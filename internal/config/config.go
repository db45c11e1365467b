package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the resulthawk engine.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Wallet   WalletConfig
	Browser  BrowserConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type WalletConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// BrowserConfig sizes the headless browser pool. Sessions older than MaxAge
// are retired instead of leased again; InitBatch bounds how many sessions are
// created at once during warm-up.
type BrowserConfig struct {
	PoolSize     int
	PoolMax      int
	InitBatch    int
	MaxAge       time.Duration
	AcquireWait  time.Duration
	ResetTimeout time.Duration
	StepTimeout  time.Duration
	Headless     bool
}

type EngineConfig struct {
	MaxConcurrent int
	PollInterval  time.Duration
	JobTimeout    time.Duration
	MaxRetries    int
	StaleAfter    time.Duration
	JanitorSpec   string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("RESULTHAWK_PORT", 8080),
			Env:  envString("RESULTHAWK_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Wallet: WalletConfig{
			BaseURL: os.Getenv("WALLET_BASE_URL"),
			APIKey:  os.Getenv("WALLET_API_KEY"),
			Timeout: envDuration("WALLET_TIMEOUT", 10*time.Second),
		},
		Browser: BrowserConfig{
			PoolSize:     envInt("BROWSER_POOL_SIZE", 3),
			PoolMax:      envInt("BROWSER_POOL_MAX", 5),
			InitBatch:    envInt("BROWSER_INIT_BATCH", 2),
			MaxAge:       envDuration("BROWSER_MAX_AGE", 30*time.Minute),
			AcquireWait:  envDuration("BROWSER_ACQUIRE_WAIT", 30*time.Second),
			ResetTimeout: envDuration("BROWSER_RESET_TIMEOUT", 5*time.Second),
			StepTimeout:  envDuration("BROWSER_STEP_TIMEOUT", 15*time.Second),
			Headless:     envBool("BROWSER_HEADLESS", true),
		},
		Engine: EngineConfig{
			MaxConcurrent: envInt("ENGINE_MAX_CONCURRENT", 3),
			PollInterval:  envDuration("ENGINE_POLL_INTERVAL", 2*time.Second),
			JobTimeout:    envDuration("ENGINE_JOB_TIMEOUT", 2*time.Minute),
			MaxRetries:    envInt("ENGINE_MAX_RETRIES", 2),
			StaleAfter:    envDuration("ENGINE_STALE_AFTER", 5*time.Minute),
			JanitorSpec:   envString("ENGINE_JANITOR_SPEC", "@every 1m"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Wallet.BaseURL == "" {
		return fmt.Errorf("WALLET_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Wallet.BaseURL, "http://") && !strings.HasPrefix(c.Wallet.BaseURL, "https://") {
		return fmt.Errorf("WALLET_BASE_URL must start with http:// or https://, got %q", c.Wallet.BaseURL)
	}

	if c.Browser.PoolSize < 1 {
		return fmt.Errorf("BROWSER_POOL_SIZE must be at least 1, got %d", c.Browser.PoolSize)
	}
	if c.Browser.PoolMax < c.Browser.PoolSize {
		return fmt.Errorf("BROWSER_POOL_MAX (%d) must be >= BROWSER_POOL_SIZE (%d)",
			c.Browser.PoolMax, c.Browser.PoolSize)
	}
	if c.Browser.InitBatch < 1 {
		return fmt.Errorf("BROWSER_INIT_BATCH must be at least 1, got %d", c.Browser.InitBatch)
	}

	if c.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("ENGINE_MAX_CONCURRENT must be at least 1, got %d", c.Engine.MaxConcurrent)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must not be negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.StaleAfter <= c.Engine.JobTimeout {
		return fmt.Errorf("ENGINE_STALE_AFTER (%s) must be greater than ENGINE_JOB_TIMEOUT (%s)",
			c.Engine.StaleAfter, c.Engine.JobTimeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
