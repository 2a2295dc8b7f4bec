// Package openai wraps the OpenAI-compatible embedding and chat-completion
// APIs used by the search pipeline.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
	"github.com/seamark-nav/seamark/internal/metrics"
)

const (
	maxAttempts  = 3
	singleBase   = 2 * time.Second
	batchBase    = 3 * time.Second
	singleExpiry = 30 * time.Second
	batchExpiry  = 60 * time.Second
)

// defaultDimensions maps known embedding models to their usual output length.
// The observed dimension of the first successful call wins over this table.
var defaultDimensions = map[string]int{
	"text-embedding-3-small":       1536,
	"text-embedding-3-large":       3072,
	"text-embedding-ada-002":       1536,
	"bge-large-zh-v1.5":            1024,
	"bge-small-zh-v1.5":            512,
	"bge-m3":                       1024,
	"bge-large-en-v1.5":            1024,
	"jina-embeddings-v2-base-zh":   768,
	"jina-embeddings-v2-base-code": 768,
	"text-embedding-004":           768,
	"gemini-embedding-001":         768,
}

// Embedder is an embedding provider using the OpenAI-compatible API.
// It retries transient failures and tracks the observed vector dimension.
type Embedder struct {
	client    *openai.Client
	model     string
	dimension atomic.Int64
	sleep     func(context.Context, time.Duration) error
	logger    *zap.Logger
}

// EmbedderConfig holds the embedding provider settings.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *EmbedderConfig) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1"
	}

	e := &Embedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		sleep:  sleepCtx,
		logger: cfg.Logger,
	}

	dim, ok := defaultDimensions[strings.ToLower(cfg.Model)]
	if !ok {
		dim = 1024
	}
	e.dimension.Store(int64(dim))

	return e
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Dimension returns the last observed vector length (or the model default
// before the first successful call).
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

// Embed implements domain.Embedder. Empty text is coerced to "", not rejected.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.create(ctx, []string{text}, singleBase, singleExpiry)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds several texts in one call, preserving input order.
// Batch calls get a longer timeout and a longer backoff base.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.create(ctx, texts, batchBase, batchExpiry)
}

func (e *Embedder) create(
	ctx context.Context, input []string, backoffBase, expiry time.Duration,
) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, expiry)
		start := time.Now()
		resp, err := e.client.CreateEmbeddings(callCtx, req)
		cancel()

		if err == nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.model, "success").Inc()
			metrics.EmbeddingRequestDuration.WithLabelValues(e.model).Observe(time.Since(start).Seconds())
			return e.collect(resp)
		}

		metrics.EmbeddingRequestsTotal.WithLabelValues(e.model, "error").Inc()
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		reason, retryable := retryReason(err)
		if !retryable || attempt == maxAttempts {
			break
		}

		// Linearly increasing backoff: attempt index times the base delay.
		wait := time.Duration(attempt) * backoffBase
		metrics.EmbeddingRetriesTotal.WithLabelValues(e.model, reason).Inc()
		e.logger.Warn("Embedding API transient failure, retrying",
			zap.String("reason", reason),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := e.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, lastErr)
}

// collect validates the response and returns vectors in input order.
// The observed vector length updates the known dimension.
func (e *Embedder) collect(resp openai.EmbeddingResponse) ([][]float32, error) {
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", domain.ErrEmbeddingUnavailable)
	}

	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}

	if observed := len(vectors[0]); observed > 0 && observed != e.Dimension() {
		e.logger.Info("Detected embedding dimension",
			zap.String("model", e.model),
			zap.Int("dimension", observed),
		)
		e.dimension.Store(int64(observed))
	}

	return vectors, nil
}

// retryReason classifies an error as retryable (rate limit, upstream
// unavailability, timeout) or terminal.
func retryReason(err error) (string, bool) {
	status := 0

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}

	switch status {
	case 429:
		return "rate_limited", true
	case 502, 503, 504:
		return "upstream_unavailable", true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", true
	}

	return "terminal", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
