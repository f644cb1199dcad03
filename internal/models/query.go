package models

import (
	"fmt"

	"github.com/hyperjump/vectorscore/internal/script"
)

// SearchQuery is a search request: an optional keyword query selecting candidates and a
// binary_vector_score script scoring them.
type SearchQuery struct {
	Query          string        `json:"query,omitempty"`
	Script         script.Script `json:"script"`
	Limit          int           `json:"limit,omitempty"`
	Offset         int           `json:"offset,omitempty"`
	MinScore       float64       `json:"min_score,omitempty"`
	FuzzyEnabled   bool          `json:"fuzzy_enabled,omitempty"`  // typo-tolerant candidate matching
	VectorWeight   *float64      `json:"vector_weight,omitempty"`  // nil uses the configured default
	KeywordWeight  *float64      `json:"keyword_weight,omitempty"` // nil uses the configured default
	CandidateLimit int           `json:"candidate_limit,omitempty"`
}

// Validate normalizes limit and offset against defaultLimit and maxLimit.
// Returns an error for negative paging values.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if q.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
