// Package mcp wires the review MCP server's backends and starts the service.
package mcp

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reviewforge/reviewforge/internal/guidelines"
	"github.com/reviewforge/reviewforge/internal/index"
	"github.com/reviewforge/reviewforge/internal/llm"
	"github.com/reviewforge/reviewforge/internal/services/mcp/service"
)

// Options holds the resolved configuration for one MCP server process.
type Options struct {
	Transport      string
	HTTPAddr       string
	GuidelinesPath string
	IndexPath      string
	EmbeddingModel string
	LLMCacheAddr   string

	LLMBaseURL            string
	LLMToken              string
	LLMTimeout            time.Duration
	LLMRetries            int
	LLMRetryDelay         time.Duration
	LLMHealthCheckTimeout time.Duration
}

// Run builds the gateway client, guidelines document, and search index, then
// serves MCP until the context ends.
func Run(ctx context.Context, opts Options) error {
	transportKind, err := transportKind(opts.Transport)
	if err != nil {
		return err
	}

	gateway := newGateway(opts)

	doc, err := guidelines.Load(opts.GuidelinesPath)
	if err != nil {
		return fmt.Errorf("load guidelines: %w", err)
	}

	var embedder index.Embedder
	if gateway != nil && opts.EmbeddingModel != "" {
		embedder = gateway.EmbedderFor(opts.EmbeddingModel)
	}

	idx, err := index.Open(opts.IndexPath, doc, embedder)
	if err != nil {
		return fmt.Errorf("open guidelines index: %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.Printf("close guidelines index: %v", err)
		}
	}()

	return service.Run(ctx, service.Config{
		Transport: transportKind,
		HTTPAddr:  opts.HTTPAddr,
	}, service.Deps{
		Gateway:    gateway,
		Index:      idx,
		Guidelines: doc,
	})
}

// newGateway builds the LLM client when credentials are present. Tool calls
// that need the gateway fail individually when it is absent; guideline search
// and resources stay available.
func newGateway(opts Options) *llm.Client {
	if opts.LLMBaseURL == "" || opts.LLMToken == "" {
		log.Printf("llm gateway not configured; llm_invoke_model is disabled")
		return nil
	}

	gateway, err := llm.New(llm.Config{
		BaseURL:            opts.LLMBaseURL,
		Token:              opts.LLMToken,
		Timeout:            opts.LLMTimeout,
		Retries:            opts.LLMRetries,
		RetryDelay:         opts.LLMRetryDelay,
		HealthCheckTimeout: opts.LLMHealthCheckTimeout,
	})
	if err != nil {
		log.Printf("llm gateway misconfigured, running without it: %v", err)
		return nil
	}

	if opts.LLMCacheAddr != "" {
		gateway = gateway.WithCache(llm.NewCache(opts.LLMCacheAddr, llm.DefaultCacheTTL))
	}
	return gateway
}

func transportKind(transport string) (service.TransportKind, error) {
	switch transport {
	case "http":
		return service.TransportHTTP, nil
	case "stdio", "":
		return service.TransportStdio, nil
	default:
		return "", fmt.Errorf("invalid transport %q: must be 'stdio' or 'http'", transport)
	}
}
