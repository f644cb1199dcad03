// Package cli formats command line output for vectorscore.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/vectorscore/internal/models"
	"github.com/hyperjump/vectorscore/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one result per line.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is the raw search response.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat returns the format named s.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.6f\t%s\t%s\n", r.Rank, r.Score, r.Document.ID, oneLine(r.Document.Title))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%d candidates scored, %d skipped)\n\n",
		response.Total, response.QueryTime, response.Scored, response.Skipped)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Vector: %.4f, Keyword: %.4f)\n",
			result.Rank, result.Score, result.VectorScore, result.KeywordScore)
		fmt.Fprintf(w, "ID: %s\n", result.Document.ID)
		if result.Document.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", result.Document.Title)
		}
		if result.Document.Content != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Document.Content, 200))
		}
		fmt.Fprintln(w)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseVector parses a comma separated list of numbers, e.g. "0.1,0.2,-3".
func ParseVector(s string) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal([]byte("["+s+"]"), &vec); err != nil {
		return nil, fmt.Errorf("invalid vector %q: %w", s, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("vector is empty")
	}
	return vec, nil
}
