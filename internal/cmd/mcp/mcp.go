// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	mcpapp "github.com/reviewforge/reviewforge/internal/app/mcp"
	"github.com/reviewforge/reviewforge/internal/platform/config"
	"github.com/reviewforge/reviewforge/internal/platform/otel"
)

// Config holds MCP command configuration. The LLM_API_* names match what
// operators already export for the gateway; the REVIEWFORGE_* names cover the
// server's own surface.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL"                   envDefault:"info"`
	Transport      string `env:"REVIEWFORGE_MCP_TRANSPORT"   envDefault:"stdio"`
	HTTPAddr       string `env:"REVIEWFORGE_MCP_HTTP_ADDR"   envDefault:"localhost:8081"`
	GuidelinesPath string `env:"REVIEWFORGE_GUIDELINES_PATH"`
	IndexPath      string `env:"REVIEWFORGE_INDEX_PATH"      envDefault:":memory:"`
	EmbeddingModel string `env:"REVIEWFORGE_EMBEDDING_MODEL"`
	LLMCacheAddr   string `env:"REVIEWFORGE_LLM_CACHE_ADDR"`

	// The LLM_API_* durations are documented in seconds, so config.Duration
	// accepts "600" as well as "600s".
	LLMBaseURL            string          `env:"LLM_API_BASE_URL"`
	LLMToken              string          `env:"LLM_API_TOKEN"`
	LLMTimeout            config.Duration `env:"LLM_API_TIMEOUT"              envDefault:"600"`
	LLMRetries            int             `env:"LLM_API_RETRIES"              envDefault:"3"`
	LLMRetryDelay         config.Duration `env:"LLM_API_RETRY_DELAY"          envDefault:"2"`
	LLMHealthCheckTimeout config.Duration `env:"LLM_API_HEALTH_CHECK_TIMEOUT" envDefault:"3"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.GuidelinesPath, "guidelines", cfg.GuidelinesPath, "path to a guidelines markdown file (embedded document when empty)")
	fs.StringVar(&cfg.IndexPath, "index", cfg.IndexPath, "path to the guidelines index database")
	fs.StringVar(&cfg.EmbeddingModel, "embedding-model", cfg.EmbeddingModel, "gateway model used for guideline embeddings (lexical ranking when empty)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter.
func Run(ctx context.Context, cfg Config) error {
	if strings.EqualFold(cfg.LogLevel, "debug") {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	shutdown, err := otel.Setup(ctx, "mcp")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return mcpapp.Run(ctx, mcpapp.Options{
		Transport:      cfg.Transport,
		HTTPAddr:       cfg.HTTPAddr,
		GuidelinesPath: cfg.GuidelinesPath,
		IndexPath:      cfg.IndexPath,
		EmbeddingModel: cfg.EmbeddingModel,
		LLMCacheAddr:   cfg.LLMCacheAddr,

		LLMBaseURL:            cfg.LLMBaseURL,
		LLMToken:              cfg.LLMToken,
		LLMTimeout:            cfg.LLMTimeout.Std(),
		LLMRetries:            cfg.LLMRetries,
		LLMRetryDelay:         cfg.LLMRetryDelay.Std(),
		LLMHealthCheckTimeout: cfg.LLMHealthCheckTimeout.Std(),
	})
}
