// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Durations are configured as integer milliseconds/hours and exposed through accessor methods.
package config

import (
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// GitHubToken authenticates every platform call. Required.
	GitHubToken string `koanf:"github_token"`

	// GitHubBaseURL points at the REST API root.
	GitHubBaseURL string `koanf:"github_base_url"`

	// DatabaseDriver selects the durable store: sqlite or postgres.
	DatabaseDriver string `koanf:"database_driver"`

	// DatabaseDSN is the driver specific data source name.
	DatabaseDSN string `koanf:"database_dsn"`

	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `koanf:"retry_max_delay_ms"`

	// RateLimitRPS and RateLimitBurst throttle outbound calls client side.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// PageSize is the per_page value for list endpoints.
	PageSize int `koanf:"page_size"`

	// SearchMaxPages caps search pagination (the search API stops at 1000 results).
	SearchMaxPages int `koanf:"search_max_pages"`

	NewAccountLookbackHours      int `koanf:"new_account_lookback_hours"`
	ExistingAccountLookbackHours int `koanf:"existing_account_lookback_hours"`

	// MetadataBatchSize repos are resolved concurrently, then the pass sleeps MetadataBatchDelayMS.
	MetadataBatchSize    int `koanf:"metadata_batch_size"`
	MetadataBatchDelayMS int `koanf:"metadata_batch_delay_ms"`

	// RepoWorkers sets how many repositories are ingested in parallel.
	RepoWorkers int `koanf:"repo_workers"`

	// DiscoveryTimeoutSec bounds the join over all account discovery tasks.
	DiscoveryTimeoutSec int `koanf:"discovery_timeout_sec"`

	// QueueSize is the capacity of the repository job queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets the size of the raw event id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// BundleMaxLimit caps the per list size of GET /bundle.
	BundleMaxLimit int `koanf:"bundle_max_limit"`

	// RunTimeoutSec bounds one synchronous POST /runs.
	RunTimeoutSec int `koanf:"run_timeout_sec"`

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint    string `koanf:"otel_endpoint"`
	OTelServiceName string `koanf:"otel_service_name"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                     "info",
		Addr:                         ":9080",
		GitHubBaseURL:                "https://api.github.com",
		DatabaseDriver:               DriverSQLite,
		DatabaseDSN:                  "file:ghpulse.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		RetryMaxAttempts:             5,
		RetryBaseDelayMS:             1000,
		RetryMaxDelayMS:              60_000,
		RateLimitRPS:                 10,
		RateLimitBurst:               5,
		PageSize:                     100,
		SearchMaxPages:               10,
		NewAccountLookbackHours:      180 * 24,
		ExistingAccountLookbackHours: 48,
		MetadataBatchSize:            3,
		MetadataBatchDelayMS:         1000,
		RepoWorkers:                  4,
		DiscoveryTimeoutSec:          300,
		QueueSize:                    10_000,
		DedupeSize:                   500_000,
		BundleMaxLimit:               1000,
		RunTimeoutSec:                1800,
		OTelServiceName:              "ghpulse",
	}
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

func (c *Config) MetadataBatchDelay() time.Duration {
	return time.Duration(c.MetadataBatchDelayMS) * time.Millisecond
}

func (c *Config) NewAccountLookback() time.Duration {
	return time.Duration(c.NewAccountLookbackHours) * time.Hour
}

func (c *Config) ExistingAccountLookback() time.Duration {
	return time.Duration(c.ExistingAccountLookbackHours) * time.Hour
}

func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.DiscoveryTimeoutSec) * time.Second
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSec) * time.Second
}
