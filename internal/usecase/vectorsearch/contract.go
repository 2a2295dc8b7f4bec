package vectorsearch

import (
	"context"

	"github.com/seamark-nav/seamark/internal/domain"
)

// VectorStore is the storage contract for website vectors.
type VectorStore interface {
	EnsureReady(ctx context.Context, dim int) error
	Upsert(ctx context.Context, websiteID int64, vec []float32, payload domain.VectorPayload) error
	Delete(ctx context.Context, websiteID int64)
	Existing(ctx context.Context, websiteIDs []int64) (map[int64]bool, error)
	Search(ctx context.Context, vec []float32, limit int, threshold float64) ([]domain.VectorHit, error)
}
