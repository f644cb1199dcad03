package models

// SearchResult represents a single scored document.
type SearchResult struct {
	Document     *Document `json:"document"`
	Score        float64   `json:"score"`
	VectorScore  float64   `json:"vector_score"`
	KeywordScore float64   `json:"keyword_score"`
	Rank         int       `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	Scored    int             `json:"scored"`  // candidates with a decodable vector
	Skipped   int             `json:"skipped"` // candidates scored 0 because of a missing or bad vector
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
