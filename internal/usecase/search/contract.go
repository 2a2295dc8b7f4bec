package search

import (
	"context"

	"github.com/seamark-nav/seamark/internal/domain"
)

// WebsiteStore is the keyword-search and materialization contract.
type WebsiteStore interface {
	Search(ctx context.Context, term string, viewer domain.Viewer, limit int) ([]domain.Website, error)
	ByIDs(ctx context.Context, ids []int64, viewer domain.Viewer) ([]domain.Website, error)
}

// VectorSearcher answers semantic similarity queries.
type VectorSearcher interface {
	Search(ctx context.Context, query string) ([]domain.VectorHit, error)
}

// IntentService drives the two LLM calls.
type IntentService interface {
	AnalyzeIntent(ctx context.Context, query string) (domain.Intent, error)
	Recommend(ctx context.Context, query string, it domain.Intent, candidates []domain.Candidate, maxRecs int) (domain.RankingResult, error)
}

// ResultCache memoizes whole responses.
type ResultCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
