package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/llm"
	"github.com/reviewforge/reviewforge/internal/platform/config"
)

var listenTCP = net.Listen

// mcpHTTPEnv holds env-parsed configuration for MCP HTTP transport.
type mcpHTTPEnv struct {
	AllowedHosts []string `env:"REVIEWFORGE_MCP_ALLOWED_HOSTS" envSeparator:","`
	AuthSecret   string   `env:"REVIEWFORGE_MCP_AUTH_SECRET"`
	AuthIssuer   string   `env:"REVIEWFORGE_MCP_AUTH_ISSUER"`
}

const (
	// defaultChannelBufferSize is the buffer size for request, response, and
	// notification channels.
	defaultChannelBufferSize = 10

	// defaultRequestTimeout is the maximum time to wait for a JSON-RPC
	// response. Model invocations run long, so this must exceed the gateway
	// client's invocation timeout.
	defaultRequestTimeout = 11 * time.Minute

	// defaultShutdownTimeout is the maximum time to wait for graceful HTTP
	// server shutdown.
	defaultShutdownTimeout = 35 * time.Second

	// sessionCleanupInterval is how often expired sessions are removed.
	sessionCleanupInterval = 5 * time.Minute

	// sessionExpirationTime is how long a session can be inactive before
	// being cleaned up.
	sessionExpirationTime = 1 * time.Hour

	// sseHeartbeatInterval is how often lastUsed is refreshed for active SSE
	// connections.
	sseHeartbeatInterval = 30 * time.Second

	// defaultSessionReadyTimeout bounds how long we wait for a session
	// connection to become ready before request handling continues.
	defaultSessionReadyTimeout = 100 * time.Millisecond
)

// HTTPTransport implements mcp.Transport for HTTP-based MCP communication.
// It provides an HTTP server that handles JSON-RPC messages over POST requests
// and supports Server-Sent Events (SSE) for streaming responses. Session
// lifecycle and cleanup are explicit so long-lived clients cannot leak
// resources when the gateway stops responding.
type HTTPTransport struct {
	addr         string
	allowedHosts map[string]struct{}
	server       *mcp.Server
	gateway      *llm.Client
	sessions     map[string]*httpSession
	sessionsMu   sync.RWMutex
	httpServer   *http.Server
	serverCtx    context.Context
	serverCancel context.CancelFunc
	serverOnceMu sync.Mutex
	serverOnce   map[string]*sync.Once
	auth         *bearerAuth

	serverReadyTimeout time.Duration
	randomReader       func([]byte) (int, error)
	readyAfter         func(time.Duration) <-chan time.Time
}

// httpSession maintains state for a single MCP session in memory. It tracks
// liveness and the active connection so cleanup and SSE delivery can be scoped
// to one client session.
type httpSession struct {
	id        string
	conn      *httpConnection
	createdAt time.Time
	lastUsed  time.Time
}

// NewHTTPTransport creates a new HTTP transport that will serve MCP over HTTP.
// It defaults to localhost-only binding so the default footprint stays local
// unless explicit host configuration broadens access.
func NewHTTPTransport(addr string) *HTTPTransport {
	if addr == "" {
		addr = "localhost:8081"
	}
	var raw mcpHTTPEnv
	_ = config.ParseEnv(&raw)
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		addr:               addr,
		allowedHosts:       parseAllowedHosts(raw.AllowedHosts),
		sessions:           make(map[string]*httpSession),
		serverCtx:          ctx,
		serverCancel:       cancel,
		serverOnce:         make(map[string]*sync.Once),
		serverReadyTimeout: defaultSessionReadyTimeout,
		randomReader:       rand.Read,
		readyAfter:         time.After,
		auth:               loadBearerAuthFromEnv(raw),
	}
}

// NewHTTPTransportWithServer creates a new HTTP transport with a reference to
// the MCP server and the gateway client used by the health endpoint.
func NewHTTPTransportWithServer(addr string, server *mcp.Server, gateway *llm.Client) *HTTPTransport {
	transport := NewHTTPTransport(addr)
	transport.server = server
	transport.gateway = gateway
	return transport
}

// Start starts the HTTP server and begins handling requests. The same server
// instance multiplexes POST requests and SSE streams while sharing host
// validation, auth, and session lifecycle enforcement.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.serverCtx, t.serverCancel = context.WithCancel(ctx)

	go t.cleanupSessions(ctx)

	mux := http.NewServeMux()

	// /mcp handles both GET (SSE) and POST (messages) based on HTTP method
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			t.handleSSE(w, r)
		case http.MethodPost:
			t.handleMessages(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// /health mirrors the gateway-facing probe clients already use;
	// /mcp/health is the transport-scoped alias.
	mux.HandleFunc("/health", t.handleHealth)
	mux.HandleFunc("/mcp/health", t.handleHealth)

	t.httpServer = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	log.Printf("Starting MCP HTTP server on %s", t.addr)

	errChan := make(chan error, 1)
	go func() {
		listener, err := listenTCP("tcp", t.addr)
		if err != nil {
			errChan <- err
			return
		}
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		// Cancel server context to stop all server.Run goroutines
		if t.serverCancel != nil {
			t.serverCancel()
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// healthResponse is the JSON body for GET /health.
type healthResponse struct {
	Status   string                      `json:"status"`
	Services map[string]llm.HealthStatus `json:"services"`
}

// handleHealth handles GET /health and reports gateway connectivity alongside
// the server's own liveness.
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := t.validateLocalRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := healthResponse{
		Status: "ok",
		Services: map[string]llm.HealthStatus{
			"llm_api": t.gateway.CheckHealth(r.Context()),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to write health response: %v", err)
	}
}
