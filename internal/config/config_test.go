package config

import "testing"

func validConfig() *Config {
	return &Config{
		DatabaseURL:         "postgres://localhost/collector",
		ListenPort:          8000,
		DBMinConns:          1,
		DBMaxConns:          20,
		LogFormat:           "json",
		EmbeddingDimensions: 1024,
		FetchConcurrency:    8,
		EnrichConcurrency:   4,
		WebhookConcurrency:  4,
		RateLimitRPM:        120,
		MaxPushConnections:  100,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = "  "
	if cfg.Validate() == nil {
		t.Fatal("blank DATABASE_URL accepted")
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.LogFormat = "xml"
	if cfg.Validate() == nil {
		t.Fatal("unknown LOG_FORMAT accepted")
	}
}

func TestValidateRejectsPoolInversion(t *testing.T) {
	cfg := validConfig()
	cfg.DBMinConns = 30
	if cfg.Validate() == nil {
		t.Fatal("min > max accepted")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.DiscoveryAutoApproveScore = 150
	if cfg.Validate() == nil {
		t.Fatal("out-of-range auto-approve score accepted")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := validConfig()
	cfg.ListenHost = "127.0.0.1"
	if cfg.ListenAddr() != "127.0.0.1:8000" {
		t.Fatalf("addr = %q", cfg.ListenAddr())
	}
}

func TestLLMConfigured(t *testing.T) {
	cfg := validConfig()
	if cfg.LLMConfigured() {
		t.Fatal("empty key must report unconfigured")
	}
	cfg.LLMAPIKey = "sk-x"
	if !cfg.LLMConfigured() {
		t.Fatal("key set must report configured")
	}
}
