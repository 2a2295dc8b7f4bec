// Package intent asks the LLM what a query means and which candidates
// answer it best.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
)

const (
	maxKeywords       = 5
	maxKeywordLen     = 100
	maxRelatedTerms   = 3
	maxRelatedTermLen = 50

	// rerankCandidateCap bounds the prompt size of a re-rank call.
	rerankCandidateCap = 200

	intentMaxTokens    = 500
	recommendMaxTokens = 2000
)

// Service drives the two LLM calls of the search pipeline.
type Service struct {
	completer Completer
	logger    *zap.Logger
}

// New creates an intent service.
func New(completer Completer, logger *zap.Logger) *Service {
	return &Service{completer: completer, logger: logger}
}

// AnalyzeIntent asks the LLM what the query means. The reply is normalized:
// keyword and related-term lists are truncated to their caps and blank
// entries dropped. A reply that cannot be parsed yields ErrIntentParse.
func (s *Service) AnalyzeIntent(ctx context.Context, query string) (domain.Intent, error) {
	raw, err := s.completer.Complete(ctx, intentSystemPrompt, fmt.Sprintf(intentUserTemplate, query), intentMaxTokens)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("%w: %w", domain.ErrIntentParse, err)
	}

	var parsed domain.Intent
	if err := parseInto(raw, &parsed); err != nil {
		s.logger.Warn("Intent analysis reply not parseable",
			zap.String("query", query),
			zap.Error(err),
		)
		return domain.Intent{}, fmt.Errorf("%w: %w", domain.ErrIntentParse, err)
	}

	parsed.Keywords = normalizeTerms(parsed.Keywords, maxKeywords, maxKeywordLen)
	parsed.RelatedTerms = normalizeTerms(parsed.RelatedTerms, maxRelatedTerms, maxRelatedTermLen)
	if parsed.Intent == "" && len(parsed.Keywords) == 0 {
		return domain.Intent{}, fmt.Errorf("%w: empty intent object", domain.ErrIntentParse)
	}
	if len(parsed.Keywords) == 0 {
		parsed.Keywords = []string{query}
	}
	return parsed, nil
}

// Recommend asks the LLM to pick and score the best candidates for the query.
// Recommendations referencing ids outside the candidate list are dropped and
// relevance scores clamped to [0, 1]. A reply that cannot be parsed yields
// ErrRecommendationParse.
func (s *Service) Recommend(
	ctx context.Context, query string, it domain.Intent, candidates []domain.Candidate, maxRecs int,
) (domain.RankingResult, error) {
	if len(candidates) == 0 {
		return domain.RankingResult{}, nil
	}
	if maxRecs <= 0 {
		maxRecs = 20
	}

	pruned := pruneCandidates(candidates, rerankCandidateCap)

	payload, err := json.Marshal(pruned)
	if err != nil {
		return domain.RankingResult{}, fmt.Errorf("marshal candidates: %w", err)
	}

	user := fmt.Sprintf(recommendUserTemplate, query, it.Intent, payload, maxRecs)
	raw, err := s.completer.Complete(ctx, recommendSystemPrompt, user, recommendMaxTokens)
	if err != nil {
		return domain.RankingResult{}, fmt.Errorf("%w: %w", domain.ErrRecommendationParse, err)
	}

	var result domain.RankingResult
	if err := parseInto(raw, &result); err != nil {
		s.logger.Warn("Re-rank reply not parseable",
			zap.String("query", query),
			zap.Error(err),
		)
		return domain.RankingResult{}, fmt.Errorf("%w: %w", domain.ErrRecommendationParse, err)
	}

	known := make(map[int64]bool, len(pruned))
	for _, c := range pruned {
		known[c.ID] = true
	}

	kept := result.Recommendations[:0]
	for _, r := range result.Recommendations {
		if !known[r.WebsiteID] {
			s.logger.Debug("Dropping hallucinated recommendation", zap.Int64("website_id", r.WebsiteID))
			continue
		}
		r.Relevance = max(0, min(1, r.Relevance))
		kept = append(kept, r)
		if len(kept) == maxRecs {
			break
		}
	}
	result.Recommendations = kept
	return result, nil
}

// pruneCandidates bounds the list handed to the re-rank prompt. Vector-scored
// candidates win first, best score first; the rest keep their order with
// described entries ahead of bare ones.
func pruneCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if len(candidates) <= limit {
		return candidates
	}

	ordered := make([]domain.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if (ordered[i].VectorScore > 0) != (ordered[j].VectorScore > 0) {
			return ordered[i].VectorScore > 0
		}
		if ordered[i].VectorScore != ordered[j].VectorScore {
			return ordered[i].VectorScore > ordered[j].VectorScore
		}
		hasDesc := func(c domain.Candidate) bool { return strings.TrimSpace(c.Description) != "" }
		if hasDesc(ordered[i]) != hasDesc(ordered[j]) {
			return hasDesc(ordered[i])
		}
		return false
	})
	return ordered[:limit]
}

func normalizeTerms(terms []string, maxCount, maxLen int) []string {
	out := make([]string, 0, min(len(terms), maxCount))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if r := []rune(t); len(r) > maxLen {
			t = string(r[:maxLen])
		}
		out = append(out, t)
		if len(out) == maxCount {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
