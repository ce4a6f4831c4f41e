package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "GHPULSE_"
	envFileKey = "GHPULSE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if GHPULSE_CONFIG is set
//  3. env (prefix GHPULSE_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// GHPULSE_GITHUB_TOKEN -> github_token. Underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GitHubToken) == "" {
		return fmt.Errorf("%w: github_token", ErrConfigMissing)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("%w: database_dsn must not be empty", ErrInvalidConfig)
	}
	positive := map[string]int{
		"retry_max_attempts":  c.RetryMaxAttempts,
		"retry_base_delay_ms": c.RetryBaseDelayMS,
		"retry_max_delay_ms":  c.RetryMaxDelayMS,
		"rate_limit_burst":    c.RateLimitBurst,
		"page_size":           c.PageSize,
		"search_max_pages":    c.SearchMaxPages,
		"metadata_batch_size": c.MetadataBatchSize,
		"repo_workers":        c.RepoWorkers,
		"queue_size":          c.QueueSize,
		"dedupe_size":         c.DedupeSize,
		"bundle_max_limit":    c.BundleMaxLimit,
		"run_timeout_sec":     c.RunTimeoutSec,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
		}
	}
	if c.RetryMaxDelayMS < c.RetryBaseDelayMS {
		return fmt.Errorf("%w: retry_max_delay_ms below retry_base_delay_ms", ErrInvalidConfig)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive", ErrInvalidConfig)
	}
	return nil
}
