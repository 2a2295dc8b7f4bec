package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
	"github.com/seamark-nav/seamark/internal/metrics"
)

const (
	// initialLimit keeps the first keyword page small so the first paint is fast.
	initialLimit = 20

	// rerankInputLimit bounds how many shown items are handed to the re-rank
	// call; the emitted lists themselves are never truncated.
	rerankInputLimit = 50
)

// Event is one progressive search update. Results is always the cumulative
// list so a client can render each event as the full current state.
type Event struct {
	Stage     string               `json:"stage"` // initial | enhanced | final | error
	Results   []domain.WebsiteView `json:"results"`
	Total     int                  `json:"total"`
	AIEnabled bool                 `json:"ai_enabled"`
	Summary   string               `json:"ai_summary,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// EmitFunc delivers one event to the client. A non-nil error aborts the stream.
type EmitFunc func(Event) error

// SearchStream runs the progressive pipeline: an immediate keyword-only
// `initial` event, semantic hits drip-fed as `enhanced` events, and a
// re-ranked `final` event. The vector and LLM stages are gated separately by
// their backends and degrade on their own; only a keyword store failure emits
// a terminal `error` event. The final event always contains every item shown
// so far — re-ranking reorders, it never drops. Streams are never served from
// or written to the result cache.
func (s *Service) SearchStream(ctx context.Context, query string, viewer domain.Viewer, emit EmitFunc) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return emit(Event{Stage: "final", Results: []domain.WebsiteView{}})
	}

	// Stage 1: keyword only. Never waits on vector or LLM work.
	start := time.Now()
	keywordSites, err := s.store.Search(ctx, query, viewer, initialLimit)
	metrics.SearchStageDuration.WithLabelValues("keyword").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Stream keyword stage failed",
			zap.String("query", query),
			zap.Error(err),
		)
		metrics.SearchRequestsTotal.WithLabelValues("stream", "error").Inc()
		_ = emit(Event{Stage: "error", Results: []domain.WebsiteView{}, Message: "search unavailable"})
		return err
	}

	keywordViews := make([]domain.WebsiteView, 0, len(keywordSites))
	shownIDs := make(map[int64]bool, len(keywordSites))
	scores := make(map[int64]float64)
	for _, w := range keywordSites {
		keywordViews = append(keywordViews, domain.ViewOf(w))
		shownIDs[w.ID] = true
	}
	if err := emit(Event{Stage: "initial", Results: keywordViews, Total: len(keywordViews)}); err != nil {
		return err
	}

	if s.vectors == nil && s.intents == nil {
		metrics.SearchRequestsTotal.WithLabelValues("stream", "success").Inc()
		return emit(Event{Stage: "final", Results: keywordViews, Total: len(keywordViews)})
	}

	// Kick off intent analysis while the enhanced stage streams.
	intentCh := make(chan *domain.Intent, 1)
	if s.intents != nil && needsIntent(query) {
		go func() {
			it, err := s.intents.AnalyzeIntent(ctx, query)
			if err != nil {
				s.logger.Warn("Stream intent analysis failed", zap.Error(err))
				intentCh <- nil
				return
			}
			intentCh <- &it
		}()
	} else {
		intentCh <- nil
	}

	// Stage 2: semantic hits not already shown, best first, dripped in
	// batches so the UI fills in gradually. The cumulative list puts vector
	// hits ahead of the initial keyword results.
	shown := keywordViews
	if s.vectors != nil {
		shown, err = s.streamEnhanced(ctx, query, viewer, keywordViews, shownIDs, scores, emit)
		if err != nil {
			return err
		}
	}

	if s.intents == nil {
		metrics.SearchRequestsTotal.WithLabelValues("stream", "success").Inc()
		return emit(Event{Stage: "final", Results: shown, Total: len(shown)})
	}

	var queryIntent *domain.Intent
	select {
	case queryIntent = <-intentCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Stage 3: re-rank everything shown so far.
	final := s.finalEvent(ctx, query, queryIntent, shown)
	metrics.SearchRequestsTotal.WithLabelValues("stream", "success").Inc()
	return emit(final)
}

func (s *Service) streamEnhanced(
	ctx context.Context,
	query string,
	viewer domain.Viewer,
	keywordViews []domain.WebsiteView,
	shownIDs map[int64]bool,
	scores map[int64]float64,
	emit EmitFunc,
) ([]domain.WebsiteView, error) {
	start := time.Now()
	hits, err := s.vectors.Search(ctx, query)
	metrics.SearchStageDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Stream vector stage failed, skipping enhanced events",
			zap.String("query", query),
			zap.Error(err),
		)
		return keywordViews, nil
	}

	fresh := make([]int64, 0, len(hits))
	for _, h := range hits {
		if !shownIDs[h.WebsiteID] {
			fresh = append(fresh, h.WebsiteID)
			scores[h.WebsiteID] = h.Score
		}
	}
	if len(fresh) == 0 {
		return keywordViews, nil
	}

	sites, err := s.store.ByIDs(ctx, fresh, viewer)
	if err != nil {
		s.logger.Warn("Stream candidate materialization failed", zap.Error(err))
		return keywordViews, nil
	}

	vecViews := make([]domain.WebsiteView, 0, len(sites))
	for i := 0; i < len(sites); i += s.batchSize {
		if i > 0 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				return keywordViews, err
			}
		}
		for _, w := range sites[i:min(i+s.batchSize, len(sites))] {
			v := domain.ViewOf(w)
			v.VectorScore = scores[w.ID]
			vecViews = append(vecViews, v)
			shownIDs[w.ID] = true
		}
		if err := emit(Event{
			Stage:   "enhanced",
			Results: concatViews(vecViews, keywordViews),
			Total:   len(vecViews) + len(keywordViews),
		}); err != nil {
			return keywordViews, err
		}
	}
	return concatViews(vecViews, keywordViews), nil
}

func (s *Service) finalEvent(
	ctx context.Context,
	query string,
	queryIntent *domain.Intent,
	shown []domain.WebsiteView,
) Event {
	if len(shown) == 0 {
		return Event{Stage: "final", Results: shown, Total: 0}
	}

	it := domain.SyntheticIntent(query)
	if queryIntent != nil {
		it = *queryIntent
	}

	// Bound the re-rank prompt, not the output: shown is vector-first, so the
	// cap keeps the best-scored items.
	input := shown
	if len(input) > rerankInputLimit {
		input = input[:rerankInputLimit]
	}
	candidates := make([]domain.Candidate, len(input))
	for i, v := range input {
		c := domain.Candidate{
			ID:          v.ID,
			Title:       v.Title,
			Description: v.Description,
			URL:         v.URL,
			VectorScore: v.VectorScore,
		}
		if v.Category != nil {
			c.Category = v.Category.Name
		}
		candidates[i] = c
	}

	start := time.Now()
	ranking, err := s.intents.Recommend(ctx, query, it, candidates, s.opts.MaxRecommendations)
	metrics.SearchStageDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Stream re-rank failed, keeping current order",
			zap.String("query", query),
			zap.Error(err),
		)
		return Event{Stage: "final", Results: shown, Total: len(shown)}
	}

	merged := mergeRankedViews(shown, ranking.Recommendations)
	return Event{
		Stage:     "final",
		Results:   merged,
		Total:     len(merged),
		AIEnabled: true,
		Summary:   ranking.Summary,
	}
}

// mergeRankedViews reorders the already-shown views: recommended first
// (recommendation order), then every remaining view in prior order. The
// result always holds the same set of items as shown.
func mergeRankedViews(shown []domain.WebsiteView, recs []domain.Recommendation) []domain.WebsiteView {
	byID := make(map[int64]domain.WebsiteView, len(shown))
	for _, v := range shown {
		byID[v.ID] = v
	}

	taken := make(map[int64]bool, len(recs))
	out := make([]domain.WebsiteView, 0, len(shown))
	for _, r := range recs {
		v, ok := byID[r.WebsiteID]
		if !ok || taken[r.WebsiteID] {
			continue
		}
		taken[r.WebsiteID] = true
		out = append(out, v)
	}
	for _, v := range shown {
		if !taken[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

func concatViews(a, b []domain.WebsiteView) []domain.WebsiteView {
	out := make([]domain.WebsiteView, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
