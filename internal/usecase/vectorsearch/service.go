// Package vectorsearch maintains website embeddings and answers semantic
// similarity queries.
package vectorsearch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
)

// Service embeds website text and stores or queries the resulting vectors.
type Service struct {
	embed  domain.Embedder
	store  VectorStore
	logger *zap.Logger

	maxResults int
	threshold  float64
}

// New creates a vector search service.
func New(embed domain.Embedder, store VectorStore, maxResults int, threshold float64, logger *zap.Logger) *Service {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Service{
		embed:      embed,
		store:      store,
		logger:     logger,
		maxResults: maxResults,
		threshold:  threshold,
	}
}

// indexText joins the searchable fields of a website into the text that gets
// embedded. Order matters: it must stay stable across versions or identical
// content would re-embed differently.
func indexText(w domain.Website) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{w.Title, w.Description, w.Category} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// IndexWebsite embeds a website and upserts its vector. A website with no
// indexable text is skipped without calling the embedding API; the returned
// bool reports whether a vector was stored.
func (s *Service) IndexWebsite(ctx context.Context, w domain.Website) (bool, error) {
	text := indexText(w)
	if text == "" {
		s.logger.Debug("Skipping website with no indexable text", zap.Int64("website_id", w.ID))
		return false, nil
	}

	vec, err := s.embed.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("embed website %d: %w", w.ID, err)
	}

	if err := s.store.EnsureReady(ctx, len(vec)); err != nil {
		return false, err
	}

	payload := domain.VectorPayload{
		Title:       w.Title,
		Description: w.Description,
		Category:    w.Category,
		URL:         w.URL,
	}
	if err := s.store.Upsert(ctx, w.ID, vec, payload); err != nil {
		return false, err
	}
	return true, nil
}

// IndexBatch embeds several websites in one API call and upserts each vector.
// Websites without indexable text are skipped. Returns the number stored.
func (s *Service) IndexBatch(ctx context.Context, sites []domain.Website) (int, error) {
	texts := make([]string, 0, len(sites))
	indexable := make([]domain.Website, 0, len(sites))
	for _, w := range sites {
		if text := indexText(w); text != "" {
			texts = append(texts, text)
			indexable = append(indexable, w)
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(indexable) {
		return 0, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(indexable))
	}

	if err := s.store.EnsureReady(ctx, len(vectors[0])); err != nil {
		return 0, err
	}

	stored := 0
	for i, w := range indexable {
		payload := domain.VectorPayload{
			Title:       w.Title,
			Description: w.Description,
			Category:    w.Category,
			URL:         w.URL,
		}
		if err := s.store.Upsert(ctx, w.ID, vectors[i], payload); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// Remove drops a website's vector. Best-effort.
func (s *Service) Remove(ctx context.Context, websiteID int64) {
	s.store.Delete(ctx, websiteID)
}

// Existing reports which website ids already have stored vectors.
func (s *Service) Existing(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return s.store.Existing(ctx, ids)
}

// Search embeds the query and returns the most similar websites, best first.
func (s *Service) Search(ctx context.Context, query string) ([]domain.VectorHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, vec, s.maxResults, s.threshold)
	if err != nil {
		return nil, err
	}
	return hits, nil
}
