// Package config defines the service configuration and how it is loaded.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// DETFLOW_CONFIG, then DETFLOW_ environment variables. Structure is validated
// once at load so components never see malformed settings.
package config

import (
	"runtime"
	"time"

	"github.com/okian/detflow/internal/domain/selection"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds each per-shard message queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of shards, one worker each.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps remembered inbound message ids; 0 disables the cap.
	DedupeSize int `koanf:"dedupe_size"`
	// DedupeTTL forgets message ids after this long; 0 keeps them until evicted.
	DedupeTTL time.Duration `koanf:"dedupe_ttl"`

	// RequestTimeout bounds the processing of one message.
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Store        StoreConfig        `koanf:"store"`
	Lock         LockConfig         `koanf:"lock"`
	Tracing      TracingConfig      `koanf:"tracing"`
	LLM          LLMConfig          `koanf:"llm"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Selection    SelectionConfig    `koanf:"selection"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// LockConfig selects how messages of one caller are serialised across replicas.
type LockConfig struct {
	// Driver is local or redis.
	Driver    string        `koanf:"driver"`
	Addr      string        `koanf:"addr"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	TTL       time.Duration `koanf:"ttl"`
	KeyPrefix string        `koanf:"key_prefix"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Exporter    string  `koanf:"exporter"`
	SampleRatio float64 `koanf:"sample_ratio"`
	ServiceName string  `koanf:"service_name"`
	Environment string  `koanf:"environment"`
}

// Endpoint is one OpenAI-compatible API.
type Endpoint struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// LLMConfig configures the chat-completion backends.
type LLMConfig struct {
	// APIKey and BaseURL configure the default provider. An empty key falls
	// back to OPENAI_API_KEY.
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	DefaultProvider string        `koanf:"default_provider"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxRetries      int           `koanf:"max_retries"`
	Temperature     float64       `koanf:"temperature"`
	// Providers adds endpoints keyed by catalog provider name, e.g. anthropic
	// behind a compatible gateway.
	Providers map[string]Endpoint `koanf:"providers"`
	// ChatReplies lets a model answer greetings, help and unknown messages
	// instead of canned text.
	ChatReplies bool `koanf:"chat_replies"`
}

// OrchestratorConfig holds workflow defaults.
type OrchestratorConfig struct {
	TaskType           string `koanf:"task_type"`
	TaskPrompt         string `koanf:"task_prompt"`
	DefaultLevel       string `koanf:"default_level"`
	DefaultTargetScore int    `koanf:"default_target_score"`
	HoursPerWeek       int    `koanf:"hours_per_week"`
	SingleActivePlan   bool   `koanf:"single_active_plan"`
	WeaknessThreshold  int    `koanf:"weakness_threshold"`
	HistoryWindow      int    `koanf:"history_window"`
}

// SelectionConfig configures the model selector.
type SelectionConfig struct {
	// Catalog replaces the built-in catalog when non-empty.
	Catalog []selection.CatalogEntry `koanf:"catalog"`
	// CatalogJSON is a JSON array alternative to Catalog, convenient in env vars.
	CatalogJSON string `koanf:"catalog_json"`
	// Weights and Constraints are keyed by activity name or "default".
	Weights     map[string]selection.WeightOverride `koanf:"weights"`
	Constraints map[string]selection.Constraints    `koanf:"constraints"`
	// Overrides pin a model id per activity.
	Overrides     map[string]string `koanf:"overrides"`
	FallbackModel string            `koanf:"fallback_model"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		Addr:            ":9080",
		QueueSize:       1024,
		WorkerCount:     runtime.NumCPU() * 2,
		DedupeSize:      50_000,
		DedupeTTL:       24 * time.Hour,
		RequestTimeout:  90 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Store: StoreConfig{
			Driver: "memory",
		},
		Lock: LockConfig{
			Driver:    "local",
			Addr:      "localhost:6379",
			TTL:       2 * time.Minute,
			KeyPrefix: "detflow:lock:",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			SampleRatio: 0.1,
			ServiceName: "detflow",
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Timeout:         60 * time.Second,
			MaxRetries:      2,
			Temperature:     0.2,
		},
		Orchestrator: OrchestratorConfig{
			TaskType:           "write_about_photo",
			TaskPrompt:         "Write about what you see in the photo.",
			DefaultLevel:       "B1",
			DefaultTargetScore: 120,
			HoursPerWeek:       10,
			WeaknessThreshold:  100,
			HistoryWindow:      10,
		},
	}
}

// SelectorOptions converts the selection section into selector options.
func (c *Config) SelectorOptions() []selection.Option {
	var opts []selection.Option
	if len(c.Selection.Catalog) > 0 {
		opts = append(opts, selection.WithCatalog(c.Selection.Catalog))
	}
	if len(c.Selection.Weights) > 0 {
		opts = append(opts, selection.WithWeightOverrides(c.Selection.Weights))
	}
	if len(c.Selection.Constraints) > 0 {
		opts = append(opts, selection.WithConstraintOverrides(c.Selection.Constraints))
	}
	if len(c.Selection.Overrides) > 0 {
		opts = append(opts, selection.WithOverrides(c.Selection.Overrides))
	}
	if c.Selection.FallbackModel != "" {
		opts = append(opts, selection.WithFallbackModel(c.Selection.FallbackModel))
	}
	return opts
}
