package indexjob

import (
	"context"

	"github.com/seamark-nav/seamark/internal/domain"
)

// WebsiteLister enumerates every website for batch re-indexing.
type WebsiteLister interface {
	All(ctx context.Context) ([]domain.Website, error)
}

// Indexer maintains individual website vectors.
type Indexer interface {
	IndexWebsite(ctx context.Context, w domain.Website) (bool, error)
	Existing(ctx context.Context, ids []int64) (map[int64]bool, error)
	Remove(ctx context.Context, websiteID int64)
}
