package domain

import "context"

// VectorPayload is the metadata stored alongside a website's embedding.
type VectorPayload struct {
	Title       string
	Description string
	Category    string
	URL         string
}

// VectorHit is one similarity-search match.
type VectorHit struct {
	WebsiteID int64
	Score     float64
	Payload   VectorPayload
}

// Embedder turns text into fixed-length vectors. Dimension reports the last
// observed output length — models may report different dimensions across
// versions, so it is tracked, not assumed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}
