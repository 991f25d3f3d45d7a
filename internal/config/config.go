package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/qaintel/eventmemory/internal/localstate"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Prefix for every variable. envconfig falls back to the bare name when the
// prefixed one is unset, so LM_STUDIO_URL and LLM_MODEL work as is.
const Prefix = "EVENT_MEMORY"

// Config holds the configuration for the event memory service.
// Environment variables are parsed from the EVENT_MEMORY_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Event store: sqlite (single file) or postgres
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	EventCacheEntries int64 `envconfig:"EVENT_CACHE_ENTRIES" default:"10000"`

	// Vector index
	IndexPath                string `envconfig:"INDEX_PATH" default:""`
	IndexQueueSize           int    `envconfig:"INDEX_QUEUE_SIZE" default:"1024"`
	IndexSaveIntervalSeconds int    `envconfig:"INDEX_SAVE_INTERVAL_SECONDS" default:"30"`

	// Embeddings: ollama, openai (any OpenAI-compatible server) or hash (offline)
	EmbedProvider   string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel      string `envconfig:"EMBED_MODEL" default:"all-minilm"`
	EmbedURL        string `envconfig:"EMBED_URL" default:""`
	EmbedAPIKey     string `envconfig:"EMBED_API_KEY" default:""`
	EmbedDimensions int    `envconfig:"EMBED_DIMENSIONS" default:"384"`

	// Language model (OpenAI-compatible chat completions)
	LLMBaseURL              string `envconfig:"LM_STUDIO_URL" default:"http://localhost:1234/v1"`
	LLMModel                string `envconfig:"LLM_MODEL" default:"qwen2.5-7b-instruct"`
	LLMTimeoutSeconds       int    `envconfig:"LLM_TIMEOUT_SECONDS" default:"60"`
	LLMHealthTimeoutSeconds int    `envconfig:"LLM_HEALTH_TIMEOUT_SECONDS" default:"5"`

	// Health checks
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates drivers and providers and fills data-dir paths.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			p, err := localstate.DBPath()
			if err != nil {
				return fmt.Errorf("resolve sqlite path: %w", err)
			}
			c.SQLitePath = p
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.EmbedProvider {
	case "ollama", "openai", "hash":
	default:
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}
	if c.EmbedProvider == "openai" && c.EmbedURL == "" {
		c.EmbedURL = c.LLMBaseURL
	}

	if c.IndexPath == "" {
		p, err := localstate.IndexPath()
		if err != nil {
			return fmt.Errorf("resolve index path: %w", err)
		}
		c.IndexPath = p
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: EVENT_MEMORY_HTTP_PORT, EVENT_MEMORY_DB_DRIVER
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("db_driver", cfg.DBDriver).
		Str("sqlite_path", cfg.SQLitePath).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Str("index_path", cfg.IndexPath).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Str("llm_url", cfg.LLMBaseURL).
		Str("llm_model", cfg.LLMModel).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing: in-memory
// friendly defaults with the offline hash embedder.
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		DBDriver:                  "sqlite",
		EventCacheEntries:         1000,
		IndexQueueSize:            64,
		IndexSaveIntervalSeconds:  1,
		EmbedProvider:             "hash",
		EmbedModel:                "hash",
		EmbedDimensions:           64,
		LLMBaseURL:                "http://localhost:1234/v1",
		LLMModel:                  "test-model",
		LLMTimeoutSeconds:         5,
		LLMHealthTimeoutSeconds:   1,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) LLMTimeout() time.Duration         { return seconds(c.LLMTimeoutSeconds) }
func (c *Config) LLMHealthTimeout() time.Duration   { return seconds(c.LLMHealthTimeoutSeconds) }
func (c *Config) IndexSaveInterval() time.Duration  { return seconds(c.IndexSaveIntervalSeconds) }
func (c *Config) HealthInterval() time.Duration     { return seconds(c.HealthIntervalSeconds) }
func (c *Config) HealthProbeTimeout() time.Duration { return seconds(c.HealthProbeTimeoutSeconds) }
