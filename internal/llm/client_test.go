package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Token:      "test-token",
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{Token: "t"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := New(Config{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestInvokePostsModelEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode request payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"generated_text": "ok"})
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Invoke(context.Background(), "review-model", map[string]any{"inputs": "diff"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if gotPath != "/review-model" {
		t.Errorf("expected path /review-model, got %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPayload["inputs"] != "diff" {
		t.Errorf("unexpected payload: %v", gotPayload)
	}
	if result["generated_text"] != "ok" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestInvokeRequiresModel(t *testing.T) {
	client, err := New(testConfig("http://localhost:0"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Invoke(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestInvokeRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Invoke(context.Background(), "m", map[string]any{"inputs": "x"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result["ok"] != true {
		t.Fatalf("unexpected result: %v", result)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestInvokeGivesUpAfterConfiguredRetries(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retries = 2
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.Invoke(context.Background(), "m", nil); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestInvokeDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Invoke(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected single attempt for 4xx, got %d", got)
	}
}

func TestEmbedDecodesBareAndWrappedShapes(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[[0.1, 0.2], [0.3, 0.4]]`))
		}))
		defer server.Close()

		client, err := New(testConfig(server.URL))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		vectors, err := client.Embed(context.Background(), "embedder", []string{"a", "b"})
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if len(vectors) != 2 || len(vectors[0]) != 2 {
			t.Fatalf("unexpected vectors: %v", vectors)
		}
	})

	t.Run("wrapped object", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings": [[1, 2, 3]]}`))
		}))
		defer server.Close()

		client, err := New(testConfig(server.URL))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		vectors, err := client.Embed(context.Background(), "embedder", []string{"a"})
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if len(vectors) != 1 || len(vectors[0]) != 3 {
			t.Fatalf("unexpected vectors: %v", vectors)
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[[0.1]]`))
		}))
		defer server.Close()

		client, err := New(testConfig(server.URL))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if _, err := client.Embed(context.Background(), "embedder", []string{"a", "b"}); err == nil {
			t.Fatal("expected error for embedding count mismatch")
		}
	})
}

func TestEmbedNoTexts(t *testing.T) {
	client, err := New(testConfig("http://localhost:0"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	vectors, err := client.Embed(context.Background(), "embedder", nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected no vectors, got %v", vectors)
	}
}

func TestCheckHealth(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("expected bearer auth on health probe")
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, err := New(testConfig(server.URL))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if got := client.CheckHealth(context.Background()); got != "reachable" {
			t.Fatalf("expected reachable, got %q", got)
		}
	})

	t.Run("unreachable status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, err := New(testConfig(server.URL))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		got := client.CheckHealth(context.Background())
		if !strings.Contains(string(got), "unreachable (status: 503)") {
			t.Fatalf("unexpected status: %q", got)
		}
	})

	t.Run("unreachable transport", func(t *testing.T) {
		client, err := New(testConfig("http://127.0.0.1:1"))
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		got := client.CheckHealth(context.Background())
		if !strings.HasPrefix(string(got), "unreachable (error:") {
			t.Fatalf("unexpected status: %q", got)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		var client *Client
		if got := client.CheckHealth(context.Background()); got != "not_configured" {
			t.Fatalf("expected not_configured, got %q", got)
		}
	})
}
