package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/detflow/internal/domain/selection"
)

const (
	envPrefix = "DETFLOW_"
	envFile   = "DETFLOW_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if DETFLOW_CONFIG is set
//  3. env (prefix DETFLOW_, "__" separates nested keys)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// DETFLOW_STORE__DRIVER -> store.driver, DETFLOW_QUEUE_SIZE -> queue_size.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if raw := strings.TrimSpace(cfg.Selection.CatalogJSON); raw != "" {
		var catalog []selection.CatalogEntry
		if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
			return nil, fmt.Errorf("%w: selection.catalog_json: %w", ErrInvalidConfig, err)
		}
		cfg.Selection.Catalog = catalog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive")
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive")
	case c.DedupeSize < 0:
		return invalid("dedupe_size must not be negative")
	case c.RequestTimeout <= 0:
		return invalid("request_timeout must be positive")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return invalid("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return invalid("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if strings.TrimSpace(c.Lock.Addr) == "" {
			return invalid("lock.addr is required for the redis driver")
		}
		if c.Lock.TTL <= c.RequestTimeout {
			return invalid("lock.ttl (%s) must exceed request_timeout (%s) so a caller lock outlives its job",
				c.Lock.TTL, c.RequestTimeout)
		}
	default:
		return invalid("lock.driver %q is not one of local, redis", c.Lock.Driver)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sample_ratio must be within [0,1]")
	}
	if c.LLM.MaxRetries < 0 {
		return invalid("llm.max_retries must not be negative")
	}
	if c.Orchestrator.HistoryWindow <= 0 || c.Orchestrator.WeaknessThreshold <= 0 {
		return invalid("orchestrator.history_window and weakness_threshold must be positive")
	}

	if _, err := selection.New(c.SelectorOptions()...); err != nil {
		return fmt.Errorf("%w: selection: %w", ErrInvalidConfig, err)
	}
	if len(c.Selection.Catalog) > 0 {
		for activity, id := range c.Selection.Overrides {
			if _, ok := selection.Lookup(c.Selection.Catalog, strings.TrimSpace(id)); !ok {
				return invalid("selection.overrides.%s names %q which is not in the catalog", activity, id)
			}
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
