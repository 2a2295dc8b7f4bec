package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/cache"
	"github.com/seamark-nav/seamark/internal/domain"
)

type mockEmbedder struct {
	vec        []float32
	err        error
	calls      int
	batchCalls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int { return len(m.vec) }
func (m *mockEmbedder) Model() string  { return "bge-m3" }

func newTestCachedEmbedder(inner *mockEmbedder) *CachedEmbedder {
	c := cache.New(time.Hour, 10)
	return New(inner, c, time.Hour, nil, zap.NewNop())
}

func TestEmbed_CachesSecondCall(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2}}
	ce := newTestCachedEmbedder(inner)
	ctx := context.Background()

	first, err := ce.Embed(ctx, "golang")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ce.Embed(ctx, "golang")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Errorf("unexpected vectors: %v, %v", first, second)
	}
}

func TestEmbed_DifferentTextsMiss(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1}}
	ce := newTestCachedEmbedder(inner)
	ctx := context.Background()

	ce.Embed(ctx, "golang")
	ce.Embed(ctx, "rust")
	if inner.calls != 2 {
		t.Errorf("expected 2 inner calls, got %d", inner.calls)
	}
}

func TestEmbed_ErrorNotCached(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("boom")}
	ce := newTestCachedEmbedder(inner)
	ctx := context.Background()

	if _, err := ce.Embed(ctx, "golang"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	inner.vec = []float32{0.5}
	if _, err := ce.Embed(ctx, "golang"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("failed call must not populate the cache, got %d calls", inner.calls)
	}
}

func TestEmbedBatch_BypassesCache(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1}}
	ce := newTestCachedEmbedder(inner)
	ctx := context.Background()

	texts := []string{"a", "b"}
	ce.EmbedBatch(ctx, texts)
	ce.EmbedBatch(ctx, texts)
	if inner.batchCalls != 2 {
		t.Errorf("batch calls must not be cached, got %d", inner.batchCalls)
	}
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	ce := newTestCachedEmbedder(inner)

	var e domain.Embedder = ce
	if e.Dimension() != 3 {
		t.Errorf("dimension passthrough: got %d", e.Dimension())
	}
	if e.Model() != "bge-m3" {
		t.Errorf("model passthrough: got %s", e.Model())
	}
}
