package domain

import "fmt"

// Intent is the LLM's reading of a search query. Ephemeral — produced per
// query, never persisted.
type Intent struct {
	Intent        string   `json:"intent"`
	Keywords      []string `json:"keywords"`
	RelatedTerms  []string `json:"related_terms"`
	CategoryHints []string `json:"category_hints"`
}

// SyntheticIntent builds the minimal intent substituted when analysis was
// skipped for a short unambiguous query, so the re-rank call always has an
// intent to reference.
func SyntheticIntent(query string) Intent {
	return Intent{
		Intent:   fmt.Sprintf("user wants websites related to %q", query),
		Keywords: []string{query},
	}
}

// Candidate is the compact website representation handed to the re-rank call.
type Candidate struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	URL         string  `json:"url"`
	VectorScore float64 `json:"vector_score,omitempty"`
}

// Recommendation is one re-ranked candidate with its relevance score.
type Recommendation struct {
	WebsiteID int64   `json:"website_id"`
	Relevance float64 `json:"relevance_score"`
	Reason    string  `json:"reason"`
}

// RankingResult is the full outcome of a re-rank call.
type RankingResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary"`
}
