package search

import (
	"math"
	"sort"

	"github.com/hyperjump/vectorscore/internal/keyword"
)

// FusedResult holds a document ID and its weighted vector and keyword scores.
type FusedResult struct {
	DocumentID   string
	Score        float64
	VectorScore  float64
	KeywordScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// Fuse combines vector scores (one per candidate) with keyword scores and returns the
// results sorted by descending score, ties broken by document ID.
// Results whose combined score is NaN or infinite are dropped.
func Fuse(vectorScores, keywordScores map[string]float64, vectorWeight, keywordWeight float64) []*FusedResult {
	results := make([]*FusedResult, 0, len(vectorScores))
	for id, vs := range vectorScores {
		ks := keywordScores[id]
		score := vectorWeight*vs + keywordWeight*ks
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		results = append(results, &FusedResult{
			DocumentID:   id,
			Score:        score,
			VectorScore:  vs,
			KeywordScore: ks,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	return results
}

// FilterMinScore keeps results scoring at least minScore. Results must be sorted.
func FilterMinScore(results []*FusedResult, minScore float64) []*FusedResult {
	for i, r := range results {
		if r.Score < minScore {
			return results[:i]
		}
	}
	return results
}

// Page returns results[offset:offset+limit], clamped to the slice bounds.
func Page(results []*FusedResult, offset, limit int) []*FusedResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return results[len(results):]
	}
	end := len(results)
	if limit >= 0 && limit < end-offset {
		end = offset + limit
	}
	return results[offset:end]
}
