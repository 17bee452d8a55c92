package mcp

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Transport != "stdio" {
		t.Fatalf("expected default transport stdio, got %q", cfg.Transport)
	}
	if cfg.HTTPAddr != "localhost:8081" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.IndexPath != ":memory:" {
		t.Fatalf("expected default index path, got %q", cfg.IndexPath)
	}
	if cfg.LLMTimeout.Std() != 600*time.Second {
		t.Fatalf("expected default llm timeout, got %v", cfg.LLMTimeout.Std())
	}
	if cfg.LLMRetries != 3 {
		t.Fatalf("expected default llm retries, got %d", cfg.LLMRetries)
	}
	if cfg.LLMRetryDelay.Std() != 2*time.Second {
		t.Fatalf("expected default llm retry delay, got %v", cfg.LLMRetryDelay.Std())
	}
	if cfg.LLMHealthCheckTimeout.Std() != 3*time.Second {
		t.Fatalf("expected default health check timeout, got %v", cfg.LLMHealthCheckTimeout.Std())
	}
}

func TestParseConfigEnv(t *testing.T) {
	t.Setenv("REVIEWFORGE_MCP_TRANSPORT", "http")
	t.Setenv("REVIEWFORGE_MCP_HTTP_ADDR", "localhost:9000")
	t.Setenv("LLM_API_BASE_URL", "https://gateway.internal")
	t.Setenv("LLM_API_TOKEN", "env-token")
	t.Setenv("LLM_API_TIMEOUT", "90s")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Transport != "http" {
		t.Fatalf("expected env transport, got %q", cfg.Transport)
	}
	if cfg.HTTPAddr != "localhost:9000" {
		t.Fatalf("expected env http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.LLMBaseURL != "https://gateway.internal" {
		t.Fatalf("expected env base url, got %q", cfg.LLMBaseURL)
	}
	if cfg.LLMToken != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.LLMToken)
	}
	if cfg.LLMTimeout.Std() != 90*time.Second {
		t.Fatalf("expected env timeout, got %v", cfg.LLMTimeout.Std())
	}
}

func TestParseConfigIntegerSecondsEnv(t *testing.T) {
	t.Setenv("LLM_API_TIMEOUT", "600")
	t.Setenv("LLM_API_RETRY_DELAY", "2")
	t.Setenv("LLM_API_HEALTH_CHECK_TIMEOUT", "3")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.LLMTimeout.Std() != 600*time.Second {
		t.Fatalf("expected 600s timeout, got %v", cfg.LLMTimeout.Std())
	}
	if cfg.LLMRetryDelay.Std() != 2*time.Second {
		t.Fatalf("expected 2s retry delay, got %v", cfg.LLMRetryDelay.Std())
	}
	if cfg.LLMHealthCheckTimeout.Std() != 3*time.Second {
		t.Fatalf("expected 3s health check timeout, got %v", cfg.LLMHealthCheckTimeout.Std())
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("REVIEWFORGE_MCP_TRANSPORT", "stdio")
	t.Setenv("REVIEWFORGE_MCP_HTTP_ADDR", "env-http")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	args := []string{"-transport", "http", "-http-addr", "flag-http", "-embedding-model", "embed-small"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Transport != "http" {
		t.Fatalf("expected flag transport, got %q", cfg.Transport)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.EmbeddingModel != "embed-small" {
		t.Fatalf("expected flag embedding model, got %q", cfg.EmbeddingModel)
	}
}
