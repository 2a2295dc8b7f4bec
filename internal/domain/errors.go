package domain

import "errors"

var (
	// ErrEmbeddingUnavailable signals that the embedding API exhausted its retry budget.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrVectorStore signals a similarity-store failure (upsert/search/migration).
	ErrVectorStore = errors.New("vector store error")
	// ErrIntentParse signals malformed JSON from the intent analysis call.
	ErrIntentParse = errors.New("intent response parse failed")
	// ErrRecommendationParse signals malformed JSON from the re-rank call.
	ErrRecommendationParse = errors.New("recommendation response parse failed")
	// ErrConfigIncomplete signals that an AI/vector feature was requested without the settings it needs.
	ErrConfigIncomplete = errors.New("configuration incomplete")
	// ErrJobRunning signals that a batch indexing job is already in flight.
	ErrJobRunning = errors.New("indexing job already running")
)
