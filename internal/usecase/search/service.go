// Package search orchestrates keyword, vector and LLM stages into one
// search pipeline, synchronous or progressively streamed.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seamark-nav/seamark/internal/cache"
	"github.com/seamark-nav/seamark/internal/domain"
	"github.com/seamark-nav/seamark/internal/metrics"
)

// shortQueryRunes is the boundary below which a query is considered short:
// short queries skip intent analysis and, in AI mode, are the only ones
// whose responses get cached (longer free-text queries rarely repeat).
const shortQueryRunes = 5

// Response is the synchronous search result.
type Response struct {
	Query     string               `json:"query"`
	Results   []domain.WebsiteView `json:"results"`
	Total     int                  `json:"total"`
	AIEnabled bool                 `json:"ai_enabled"`
	Intent    *domain.Intent       `json:"intent,omitempty"`
	Summary   string               `json:"ai_summary,omitempty"`
	FromCache bool                 `json:"from_cache,omitempty"`
}

// Options tunes the orchestrator.
type Options struct {
	KeywordLimit       int // per keyword-search call
	CandidateCap       int // union size bound
	MaxRecommendations int
	ExpandedLimit      int // per expanded-keyword lookup
	RelatedLimit       int // per related-term lookup
}

func (o *Options) applyDefaults() {
	if o.KeywordLimit <= 0 {
		o.KeywordLimit = 200
	}
	if o.CandidateCap <= 0 {
		o.CandidateCap = 400
	}
	if o.MaxRecommendations <= 0 {
		o.MaxRecommendations = 20
	}
	if o.ExpandedLimit <= 0 {
		o.ExpandedLimit = 100
	}
	if o.RelatedLimit <= 0 {
		o.RelatedLimit = 50
	}
}

// Service is the search orchestrator. Vector and intent dependencies are
// optional; a nil value degrades the pipeline to what remains.
type Service struct {
	store   WebsiteStore
	vectors VectorSearcher
	intents IntentService
	cache   ResultCache
	opts    Options
	logger  *zap.Logger

	// stream pacing, injectable for tests
	batchSize  int
	batchDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

// New creates the orchestrator. vectors and intents may be nil when the
// corresponding backends are not configured.
func New(
	store WebsiteStore,
	vectors VectorSearcher,
	intents IntentService,
	resultCache ResultCache,
	opts Options,
	logger *zap.Logger,
) *Service {
	opts.applyDefaults()
	return &Service{
		store:      store,
		vectors:    vectors,
		intents:    intents,
		cache:      resultCache,
		opts:       opts,
		logger:     logger,
		batchSize:  3,
		batchDelay: 350 * time.Millisecond,
		sleep:      sleepCtx,
	}
}

// SetStreamPacing overrides the enhanced-stage drip rate.
func (s *Service) SetStreamPacing(batchSize int, delay time.Duration) {
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if delay >= 0 {
		s.batchDelay = delay
	}
}

// Search runs the synchronous pipeline. useAI requests the AI pipeline, which
// needs the chat backend; the vector stage inside it is gated separately and
// simply contributes nothing when unconfigured. Only the keyword store is
// load-bearing.
func (s *Service) Search(ctx context.Context, query string, useAI bool, viewer domain.Viewer) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{Results: []domain.WebsiteView{}}, nil
	}

	useAI = useAI && s.intents != nil

	key := cache.SearchKey(query, useAI, viewer.ID)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if resp, ok := v.(Response); ok {
				metrics.SearchRequestsTotal.WithLabelValues(mode(useAI), "cache_hit").Inc()
				resp.FromCache = true
				return resp, nil
			}
		}
	}

	var resp Response
	var err error
	if useAI {
		resp, err = s.searchAI(ctx, query, viewer)
	} else {
		resp, err = s.searchKeyword(ctx, query, viewer)
	}
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(mode(useAI), "error").Inc()
		return Response{}, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode(useAI), "success").Inc()

	if s.cache != nil && s.cacheable(query, useAI) {
		s.cache.Set(key, resp)
	}
	return resp, nil
}

// cacheable: keyword responses always; AI responses only for short queries,
// where the expensive pipeline is most likely to repeat verbatim.
func (s *Service) cacheable(query string, useAI bool) bool {
	if !useAI {
		return true
	}
	return len([]rune(query)) <= shortQueryRunes
}

func (s *Service) searchKeyword(ctx context.Context, query string, viewer domain.Viewer) (Response, error) {
	start := time.Now()
	sites, err := s.store.Search(ctx, query, viewer, s.opts.KeywordLimit)
	metrics.SearchStageDuration.WithLabelValues("keyword").Observe(time.Since(start).Seconds())
	if err != nil {
		return Response{}, fmt.Errorf("keyword search: %w", err)
	}

	views := make([]domain.WebsiteView, 0, len(sites))
	for _, w := range sites {
		views = append(views, domain.ViewOf(w))
	}
	return Response{Query: query, Results: views, Total: len(views)}, nil
}

func (s *Service) searchAI(ctx context.Context, query string, viewer domain.Viewer) (Response, error) {
	var (
		keywordSites []domain.Website
		vectorHits   []domain.VectorHit
		queryIntent  *domain.Intent
	)

	g, gctx := errgroup.WithContext(ctx)

	// Keyword search is the load-bearing stage: its failure fails the request.
	g.Go(func() error {
		start := time.Now()
		sites, err := s.store.Search(gctx, query, viewer, s.opts.KeywordLimit)
		metrics.SearchStageDuration.WithLabelValues("keyword").Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		keywordSites = sites
		return nil
	})

	// Vector search degrades to no semantic hits, and is skipped outright
	// when the backend is not configured.
	if s.vectors != nil {
		g.Go(func() error {
			start := time.Now()
			hits, err := s.vectors.Search(gctx, query)
			metrics.SearchStageDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
			if err != nil {
				s.logger.Warn("Vector search failed, continuing without semantic hits",
					zap.String("query", query),
					zap.Error(err),
				)
				return nil
			}
			vectorHits = hits
			return nil
		})
	}

	// Intent analysis degrades to a synthetic intent later.
	if needsIntent(query) {
		g.Go(func() error {
			start := time.Now()
			it, err := s.intents.AnalyzeIntent(gctx, query)
			metrics.SearchStageDuration.WithLabelValues("intent").Observe(time.Since(start).Seconds())
			if err != nil {
				s.logger.Warn("Intent analysis failed, continuing without it",
					zap.String("query", query),
					zap.Error(err),
				)
				return nil
			}
			queryIntent = &it
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	candidates, scores := s.unionCandidates(ctx, viewer, vectorHits, keywordSites, queryIntent)

	it := domain.SyntheticIntent(query)
	if queryIntent != nil {
		it = *queryIntent
	}

	resp := Response{Query: query, AIEnabled: true, Intent: queryIntent, Summary: ""}

	start := time.Now()
	ranking, err := s.intents.Recommend(ctx, query, it, toRankCandidates(candidates, scores), s.opts.MaxRecommendations)
	metrics.SearchStageDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Re-rank failed, returning raw candidate order",
			zap.String("query", query),
			zap.Error(err),
		)
		resp.AIEnabled = false
		resp.Results = viewsOf(candidates, scores)
		resp.Total = len(resp.Results)
		return resp, nil
	}

	resp.Results = rankedViews(candidates, scores, ranking.Recommendations)
	resp.Total = len(resp.Results)
	resp.Summary = ranking.Summary
	return resp, nil
}

// unionCandidates builds the deduplicated candidate list, first discovery
// wins: vector hits (best first), keyword matches (store order), expanded
// keyword lookups, then related terms, capped at CandidateCap. Vector hits
// are materialized through the store so visibility is enforced in one place.
func (s *Service) unionCandidates(
	ctx context.Context,
	viewer domain.Viewer,
	vectorHits []domain.VectorHit,
	keywordSites []domain.Website,
	it *domain.Intent,
) ([]domain.Website, map[int64]float64) {
	scores := make(map[int64]float64, len(vectorHits))
	seen := make(map[int64]bool)
	var orderedIDs []int64

	add := func(id int64) bool {
		if seen[id] || len(orderedIDs) >= s.opts.CandidateCap {
			return false
		}
		seen[id] = true
		orderedIDs = append(orderedIDs, id)
		return true
	}

	for _, h := range vectorHits {
		scores[h.WebsiteID] = h.Score
		add(h.WebsiteID)
	}

	byID := make(map[int64]domain.Website, len(keywordSites))
	for _, w := range keywordSites {
		byID[w.ID] = w
		add(w.ID)
	}

	if it != nil {
		lookup := func(terms []string, limit int) {
			for _, term := range terms {
				if len(orderedIDs) >= s.opts.CandidateCap {
					return
				}
				sites, err := s.store.Search(ctx, term, viewer, limit)
				if err != nil {
					s.logger.Warn("Expanded keyword lookup failed",
						zap.String("term", term),
						zap.Error(err),
					)
					continue
				}
				for _, w := range sites {
					byID[w.ID] = w
					add(w.ID)
				}
			}
		}
		lookup(it.Keywords, s.opts.ExpandedLimit)
		lookup(it.RelatedTerms, s.opts.RelatedLimit)
	}

	// Vector hits carry only the indexed payload; fetch the full rows and let
	// the store drop what this viewer must not see.
	missing := make([]int64, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sites, err := s.store.ByIDs(ctx, missing, viewer)
		if err != nil {
			s.logger.Warn("Candidate materialization failed", zap.Error(err))
		}
		for _, w := range sites {
			byID[w.ID] = w
		}
	}

	out := make([]domain.Website, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		if w, ok := byID[id]; ok {
			out = append(out, w)
		}
	}
	return out, scores
}

func toRankCandidates(sites []domain.Website, scores map[int64]float64) []domain.Candidate {
	out := make([]domain.Candidate, len(sites))
	for i, w := range sites {
		out[i] = domain.Candidate{
			ID:          w.ID,
			Title:       w.Title,
			Description: w.Description,
			Category:    w.Category,
			URL:         w.URL,
			VectorScore: scores[w.ID],
		}
	}
	return out
}

func viewsOf(sites []domain.Website, scores map[int64]float64) []domain.WebsiteView {
	out := make([]domain.WebsiteView, len(sites))
	for i, w := range sites {
		v := domain.ViewOf(w)
		v.VectorScore = scores[w.ID]
		out[i] = v
	}
	return out
}

// rankedViews keeps only the recommended candidates, in recommendation
// order. Candidates the model left out are dropped: the AI-mode response is
// the model's selection, not a reshuffle of the whole union. The raw
// candidate order is the fallback for re-rank failure only.
func rankedViews(sites []domain.Website, scores map[int64]float64, recs []domain.Recommendation) []domain.WebsiteView {
	byID := make(map[int64]domain.Website, len(sites))
	for _, w := range sites {
		byID[w.ID] = w
	}

	taken := make(map[int64]bool, len(recs))
	out := make([]domain.WebsiteView, 0, len(recs))
	for _, r := range recs {
		w, ok := byID[r.WebsiteID]
		if !ok || taken[r.WebsiteID] {
			continue
		}
		taken[r.WebsiteID] = true
		v := domain.ViewOf(w)
		v.VectorScore = scores[w.ID]
		out = append(out, v)
	}
	return out
}

// needsIntent reports whether the query warrants an intent-analysis call.
// Short single-token queries without a question mark or question word are
// unambiguous enough to skip it.
func needsIntent(query string) bool {
	runes := []rune(query)
	if len(runes) > shortQueryRunes {
		return true
	}
	for _, r := range runes {
		if unicode.IsSpace(r) {
			return true
		}
	}
	if strings.ContainsAny(query, "?？") {
		return true
	}
	lower := strings.ToLower(query)
	for _, w := range []string{"how", "what", "why", "where", "when", "which", "who"} {
		if lower == w {
			return true
		}
	}
	return false
}

func mode(useAI bool) string {
	if useAI {
		return "ai"
	}
	return "keyword"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
