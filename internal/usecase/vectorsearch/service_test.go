package vectorsearch

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
)

type mockEmbedder struct {
	vec        []float32
	err        error
	calls      int
	batchCalls int
	lastText   string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls++
	m.lastText = text
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
func (m *mockEmbedder) Model() string  { return "test-model" }

type mockStore struct {
	ensureDim   int
	ensureErr   error
	upserts     map[int64]domain.VectorPayload
	upsertErr   error
	hits        []domain.VectorHit
	searchErr   error
	searchLimit int
	deleted     []int64
	existing    map[int64]bool
}

func (m *mockStore) EnsureReady(_ context.Context, dim int) error {
	m.ensureDim = dim
	return m.ensureErr
}

func (m *mockStore) Upsert(_ context.Context, id int64, _ []float32, p domain.VectorPayload) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.upserts == nil {
		m.upserts = make(map[int64]domain.VectorPayload)
	}
	m.upserts[id] = p
	return nil
}

func (m *mockStore) Delete(_ context.Context, id int64) {
	m.deleted = append(m.deleted, id)
}

func (m *mockStore) Existing(_ context.Context, _ []int64) (map[int64]bool, error) {
	return m.existing, nil
}

func (m *mockStore) Search(_ context.Context, _ []float32, limit int, _ float64) ([]domain.VectorHit, error) {
	m.searchLimit = limit
	return m.hits, m.searchErr
}

func TestIndexWebsite_EmbedsJoinedText(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{0.1, 0.2}}
	store := &mockStore{}
	svc := New(embed, store, 10, 0, zap.NewNop())

	w := domain.Website{ID: 1, Title: "GitHub", Description: "Code hosting", Category: "Development", URL: "https://github.com"}
	stored, err := svc.IndexWebsite(context.Background(), w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored {
		t.Fatal("expected vector to be stored")
	}
	if embed.lastText != "GitHub Code hosting Development" {
		t.Errorf("unexpected index text: %q", embed.lastText)
	}
	if store.ensureDim != 2 {
		t.Errorf("index must be ensured for the observed dimension, got %d", store.ensureDim)
	}
	if p := store.upserts[1]; p.URL != "https://github.com" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestIndexWebsite_SkipsEmptyText(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{0.1}}
	store := &mockStore{}
	svc := New(embed, store, 10, 0, zap.NewNop())

	stored, err := svc.IndexWebsite(context.Background(), domain.Website{ID: 2, Title: "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored {
		t.Error("no text means nothing to store")
	}
	if embed.calls != 0 {
		t.Error("embedding API must not be called for empty text")
	}
}

func TestIndexWebsite_EmbedError(t *testing.T) {
	embed := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	store := &mockStore{}
	svc := New(embed, store, 10, 0, zap.NewNop())

	_, err := svc.IndexWebsite(context.Background(), domain.Website{ID: 1, Title: "GitHub"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if len(store.upserts) != 0 {
		t.Error("nothing should be upserted after an embed failure")
	}
}

func TestIndexBatch_SkipsEmptyAndCounts(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{0.1}}
	store := &mockStore{}
	svc := New(embed, store, 10, 0, zap.NewNop())

	sites := []domain.Website{
		{ID: 1, Title: "GitHub"},
		{ID: 2, Title: "   "},
		{ID: 3, Title: "Figma"},
	}
	stored, err := svc.IndexBatch(context.Background(), sites)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored != 2 {
		t.Errorf("expected 2 stored, got %d", stored)
	}
	if embed.batchCalls != 1 {
		t.Errorf("expected one batch call, got %d", embed.batchCalls)
	}
	if _, ok := store.upserts[2]; ok {
		t.Error("empty-text website must not be upserted")
	}
}

func TestSearch_EmptyQueryShortCircuits(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{0.1}}
	store := &mockStore{}
	svc := New(embed, store, 10, 0, zap.NewNop())

	hits, err := svc.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != nil || embed.calls != 0 {
		t.Error("empty query must not reach the embedding API")
	}
}

func TestSearch_UsesConfiguredLimit(t *testing.T) {
	embed := &mockEmbedder{vec: []float32{0.1}}
	store := &mockStore{hits: []domain.VectorHit{{WebsiteID: 1, Score: 0.9}}}
	svc := New(embed, store, 25, 0.5, zap.NewNop())

	hits, err := svc.Search(context.Background(), "code hosting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchLimit != 25 {
		t.Errorf("expected limit 25, got %d", store.searchLimit)
	}
	if len(hits) != 1 {
		t.Errorf("unexpected hits: %+v", hits)
	}
}
