package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hyperjump/vectorscore/internal/cli"
	"github.com/hyperjump/vectorscore/internal/models"
	"github.com/hyperjump/vectorscore/internal/script"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: vectorscore search [flags] [keyword query]\n\n")
	fmt.Fprintf(fs.Output(), "The keyword query selects candidates; without one every document is scored.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  vectorscore search -field embedding -vector 0.1,0.2,0.3
  vectorscore search -field embedding -vector 0.1,0.2,0.3 -cosine -stored-norm invoice
  vectorscore search -field embedding -vector 1,0 -keyword-weight 0.5 -min-score 0.2 "sales report"
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// searchFlags are the parsed search subcommand flags.
type searchFlags struct {
	field         string
	vector        string
	cosine        bool
	storedNorm    bool
	fuzzy         bool
	limit         int
	offset        int
	minScore      float64
	vectorWeight  float64
	keywordWeight float64
}

// buildScriptQuery builds the search request for query from the parsed flags.
// Negative weights mean "use the server default".
func buildScriptQuery(query string, f searchFlags) (*models.SearchQuery, error) {
	if f.field == "" {
		return nil, fmt.Errorf("-field is required")
	}
	vec, err := cli.ParseVector(f.vector)
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{
		Query: query,
		Script: script.Script{
			Lang:   script.Lang,
			Source: script.Source,
			Params: script.Params{
				VectorField:         f.field,
				Vector:              vec,
				Cosine:              f.cosine,
				UseStoredVectorNorm: f.storedNorm,
			},
		},
		Limit:        f.limit,
		Offset:       f.offset,
		MinScore:     f.minScore,
		FuzzyEnabled: f.fuzzy,
	}
	if f.vectorWeight >= 0 {
		w := f.vectorWeight
		q.VectorWeight = &w
	}
	if f.keywordWeight >= 0 {
		w := f.keywordWeight
		q.KeywordWeight = &w
	}
	return q, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	var f searchFlags
	fs.StringVar(&f.field, "field", "", "vector field to score")
	fs.StringVar(&f.vector, "vector", "", "query vector, comma separated")
	fs.BoolVar(&f.cosine, "cosine", false, "cosine similarity instead of dot product")
	fs.BoolVar(&f.storedNorm, "stored-norm", false, "use the norm stored with each document (cosine only)")
	fs.BoolVar(&f.fuzzy, "fuzzy", false, "typo-tolerant keyword matching")
	fs.IntVar(&f.limit, "limit", 10, "number of results")
	fs.IntVar(&f.offset, "offset", 0, "results to skip")
	fs.Float64Var(&f.minScore, "min-score", 0, "minimum combined score (0 = no filter)")
	fs.Float64Var(&f.vectorWeight, "vector-weight", -1, "weight of the vector score (negative = server default)")
	fs.Float64Var(&f.keywordWeight, "keyword-weight", -1, "weight of the keyword score (negative = server default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query, err := buildScriptQuery(buildSearchQuery(fs.Args()), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printSearchUsage(fs)
		os.Exit(1)
	}
	response, err := searchViaHTTP(*serverURL, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents        int64                  `json:"documents"`
	DocValues        int64                  `json:"doc_values"`
	IndexedDocuments int64                  `json:"indexed_documents"`
	DiskUsageBytes   *int64                 `json:"disk_usage_bytes,omitempty"`
	VectorFields     []statusVectorField    `json:"vector_fields"`
	Config           map[string]interface{} `json:"config,omitempty"`
}

type statusVectorField struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	StoreNorm  bool   `json:"store_norm"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "documents:          %d\n", status.Documents)
	fmt.Fprintf(w, "doc_values:         %d\n", status.DocValues)
	fmt.Fprintf(w, "indexed_documents:  %d\n", status.IndexedDocuments)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
	if len(status.VectorFields) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# vector fields")
		for _, f := range status.VectorFields {
			fmt.Fprintf(w, "%-18s  dims=%d store_norm=%t\n", f.Name, f.Dimensions, f.StoreNorm)
		}
	}
	if src, ok := status.Config["doc_values_source"]; ok {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "doc_values_source:  %v\n", src)
		fmt.Fprintf(w, "byte_order:         %v\n", status.Config["byte_order"])
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := httpClient.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
