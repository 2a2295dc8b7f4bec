package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func embeddingResponse(vectors ...[]float32) []byte {
	type item struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	items := make([]item, len(vectors))
	for i, v := range vectors {
		items[i] = item{Embedding: v, Index: i}
	}
	b, _ := json.Marshal(map[string]any{
		"object": "list",
		"data":   items,
		"model":  "bge-m3",
	})
	return b
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) (*Embedder, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewEmbedder(&EmbedderConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "bge-m3",
		Logger:  zap.NewNop(),
	})
	e.sleep = noSleep
	return e, srv
}

func TestEmbed_Success(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(embeddingResponse([]float32{0.1, 0.2, 0.3}))
	})

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
}

func TestEmbed_UpdatesObservedDimension(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(embeddingResponse([]float32{0.1, 0.2, 0.3}))
	})

	if e.Dimension() != 1024 {
		t.Fatalf("expected bge-m3 default dimension 1024, got %d", e.Dimension())
	}

	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Dimension() != 3 {
		t.Errorf("observed dimension should win over the default, got %d", e.Dimension())
	}
}

func TestEmbed_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(embeddingResponse([]float32{0.5}))
	})

	vec, err := e.Embed(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vec) != 1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestEmbed_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	_, err := e.Embed(context.Background(), "doomed")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestEmbed_TerminalErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	})

	_, err := e.Embed(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("401 must not be retried, got %d attempts", got)
	}
}

func TestEmbedBatch_PreservesInputOrder(t *testing.T) {
	// Respond with indices reversed relative to wire order.
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"embedding": []float32{2}, "index": 1},
				{"embedding": []float32{1}, "index": 0},
			},
			"model": "bge-m3",
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("vectors not in input order: %v", vectors)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty batch")
	})

	vectors, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil, got %v", vectors)
	}
}

func TestRetryReason(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"bad gateway", &openai.APIError{HTTPStatusCode: 502}, true},
		{"unavailable", &openai.APIError{HTTPStatusCode: 503}, true},
		{"gateway timeout", &openai.APIError{HTTPStatusCode: 504}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"generic", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := retryReason(tt.err); got != tt.retryable {
				t.Errorf("retryReason(%v) retryable = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}
