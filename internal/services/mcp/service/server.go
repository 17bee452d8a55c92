package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/guidelines"
	"github.com/reviewforge/reviewforge/internal/index"
	"github.com/reviewforge/reviewforge/internal/llm"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Reviewforge MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"

	// gatewayHealthInterval is how often the background monitor probes the
	// LLM gateway while the HTTP transport is serving.
	gatewayHealthInterval = 30 * time.Second
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over HTTP/SSE for browser or remote clients.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	Transport TransportKind
	HTTPAddr  string // HTTP server address. Defaults to localhost:8081 for HTTP transport.
}

// Deps holds the backends the MCP handlers delegate to. Gateway and Index may
// be nil when unconfigured; their tools then fail per call with a clear error
// instead of blocking startup.
type Deps struct {
	Gateway    *llm.Client
	Index      *index.Index
	Guidelines *guidelines.Document
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	gateway   *llm.Client
}

// New creates a configured MCP server and registers the review tools and
// guidelines resources against the provided backends.
func New(deps Deps) (*Server, error) {
	if deps.Guidelines == nil {
		return nil, fmt.Errorf("guidelines document is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		CompletionHandler:  completionHandler,
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})

	server := &Server{mcpServer: mcpServer, gateway: deps.Gateway}

	for _, module := range newRegistrationModules(deps) {
		if err := module.register(serverRegistrationAdapter{server: mcpServer}); err != nil {
			return nil, fmt.Errorf("register MCP module %q: %w", module.name, err)
		}
	}

	return server, nil
}

// completionHandler handles completion/complete requests with empty results.
// Guideline section names would be the natural completion source once the SDK
// exposes which argument is being completed for resource templates.
func completionHandler(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Values: []string{},
		},
	}, nil
}

// resourceSubscribeHandler accepts resource subscriptions with a valid URI.
// The guidelines document is static for the process lifetime, so accepting a
// subscription never produces update notifications.
func resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// resourceUnsubscribeHandler accepts resource unsubscriptions with a valid URI.
func resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
// It is intentionally transport-agnostic so startup can choose stdio for local
// tools and HTTP for browser/remote integrations.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	switch cfg.Transport {
	case TransportStdio:
		server, err := New(deps)
		if err != nil {
			return err
		}
		return server.Serve(ctx)
	case TransportHTTP:
		return runWithHTTPTransport(ctx, cfg, deps)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// runWithHTTPTransport creates a server and serves it over HTTP transport.
// HTTP session and stateful transport concerns stay isolated from the same MCP
// domain handlers used by stdio.
func runWithHTTPTransport(ctx context.Context, cfg Config, deps Deps) error {
	// Default to localhost-only binding for security
	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = "localhost:8081"
	}

	server, err := New(deps)
	if err != nil {
		return err
	}

	// Detect gateway outages during HTTP operation. The server keeps serving;
	// per-call errors carry the detail.
	healthCtx, healthCancel := context.WithCancel(ctx)
	defer healthCancel()
	go server.monitorGatewayHealth(healthCtx)

	httpTransport := NewHTTPTransportWithServer(httpAddr, server.mcpServer, server.gateway)
	return httpTransport.Start(ctx)
}

// monitorGatewayHealth periodically probes the LLM gateway and logs failures.
// It never terminates the HTTP server; guideline tools keep working when the
// gateway is down.
func (s *Server) monitorGatewayHealth(ctx context.Context) {
	if s == nil || s.gateway == nil {
		return
	}

	ticker := time.NewTicker(gatewayHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.gateway.CheckHealth(ctx)
			if status != llm.HealthReachable {
				log.Printf("llm gateway health: %s", status)
			}
		}
	}
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
