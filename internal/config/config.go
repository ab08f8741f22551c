package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	ListenHost string `envconfig:"LISTEN_HOST" default:"0.0.0.0"`
	ListenPort int    `envconfig:"LISTEN_PORT" default:"8000"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"20"`

	// LLM / embedding provider (OpenAI-compatible).
	LLMBaseURL          string  `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMModel            string  `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMAPIKey           string  `envconfig:"LLM_API_KEY" default:""`
	LLMTemperature      float64 `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	LLMMaxTokens        int     `envconfig:"LLM_MAX_TOKENS" default:"2000"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-large"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1024"`

	// Worker pools.
	FetchConcurrency   int `envconfig:"FETCH_CONCURRENCY" default:"8"`
	EnrichConcurrency  int `envconfig:"ENRICH_CONCURRENCY" default:"4"`
	WebhookConcurrency int `envconfig:"WEBHOOK_CONCURRENCY" default:"4"`

	// API surface.
	RateLimitRPM       int `envconfig:"RATE_LIMIT_RPM" default:"120"`
	MaxPushConnections int `envconfig:"MAX_PUSH_CONNECTIONS" default:"100"`

	// Source configuration files.
	SourcesPath        string `envconfig:"SOURCES_PATH" default:"config/sources.yaml"`
	DiscoverySeedsPath string `envconfig:"DISCOVERY_SEEDS_PATH" default:"config/discovery_seeds.yaml"`

	// Discovery.
	DiscoveryEnabled          bool   `envconfig:"DISCOVERY_ENABLED" default:"false"`
	DiscoveryIntervalHours    int    `envconfig:"DISCOVERY_INTERVAL_HOURS" default:"24"`
	DiscoverySearchAPIKey     string `envconfig:"DISCOVERY_SEARCH_API_KEY" default:""`
	DiscoverySearchEngineID   string `envconfig:"DISCOVERY_SEARCH_ENGINE_ID" default:""`
	DiscoveryAutoApproveScore int    `envconfig:"DISCOVERY_AUTO_APPROVE_SCORE" default:"75"`
	DiscoveryMaxCandidates    int    `envconfig:"DISCOVERY_MAX_CANDIDATES" default:"50"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("LISTEN_PORT must be between 1 and 65535")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be >= 1")
	}
	if c.EnrichConcurrency < 1 {
		return fmt.Errorf("ENRICH_CONCURRENCY must be >= 1")
	}
	if c.WebhookConcurrency < 1 {
		return fmt.Errorf("WEBHOOK_CONCURRENCY must be >= 1")
	}
	if c.RateLimitRPM < 1 {
		return fmt.Errorf("RATE_LIMIT_RPM must be >= 1")
	}
	if c.MaxPushConnections < 1 {
		return fmt.Errorf("MAX_PUSH_CONNECTIONS must be >= 1")
	}
	if c.DiscoveryAutoApproveScore < 0 || c.DiscoveryAutoApproveScore > 100 {
		return fmt.Errorf("DISCOVERY_AUTO_APPROVE_SCORE must be within 0..100")
	}
	return nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// LLMConfigured reports whether enrichment can run at all.
func (c *Config) LLMConfigured() bool {
	return strings.TrimSpace(c.LLMAPIKey) != ""
}
