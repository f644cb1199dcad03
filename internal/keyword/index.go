// Package keyword provides the bleve index that selects candidate documents and hosts
// stored vector doc values.
package keyword

import (
	"context"

	"github.com/hyperjump/vectorscore/internal/models"
)

// SearchOptions optional parameters for candidate search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of matches in the title field. Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines candidate search and doc-value access.
type KeywordIndex interface {
	// Index indexes doc and stores values (field name -> encoded vector) as doc values.
	Index(ctx context.Context, doc *models.Document, values map[string][]byte) error
	// Candidates returns up to limit matching documents; an empty query matches all documents.
	Candidates(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// BinaryValue returns the stored doc value of field for docID.
	BinaryValue(ctx context.Context, field, docID string) ([]byte, bool, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single candidate hit.
type KeywordResult struct {
	ID    string
	Score float64
}
