package search

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/vectorscore/internal/config"
	"github.com/hyperjump/vectorscore/internal/indexer"
	"github.com/hyperjump/vectorscore/internal/keyword"
	"github.com/hyperjump/vectorscore/internal/metrics"
	"github.com/hyperjump/vectorscore/internal/models"
	"github.com/hyperjump/vectorscore/internal/script"
	"github.com/hyperjump/vectorscore/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testEngine struct {
	engine  *Engine
	indexer *indexer.Indexer
	store   *storage.SQLiteStorage
	reg     *prometheus.Registry
}

func newTestEngine(t *testing.T, source string, fields []script.Field) *testEngine {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	kwIndex, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIndex.Close() })

	var cfg config.Config
	cfg.Scoring.DocValuesSource = source
	cfg.Scoring.Workers = 2
	config.ApplyDefaults(&cfg)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	registry := script.NewRegistry(fields, cfg.Scoring.CodecOptions()...)
	return &testEngine{
		engine:  NewEngine(store, kwIndex, registry, &cfg.Scoring, WithMetrics(m)),
		indexer: indexer.NewIndexer(store, kwIndex, registry, indexer.WithMetrics(m)),
		store:   store,
		reg:     reg,
	}
}

func (te *testEngine) add(t *testing.T, id, content string, vectors map[string][]float64) {
	t.Helper()
	if err := te.indexer.IndexDocument(context.Background(), &models.DocumentInput{
		ID: id, Title: id, Content: content, Vectors: vectors,
	}); err != nil {
		t.Fatal(err)
	}
}

func vectorScript(field string, vec []float64, cosine, storedNorm bool) script.Script {
	return script.Script{
		Lang:   script.Lang,
		Source: script.Source,
		Params: script.Params{VectorField: field, Vector: vec, Cosine: cosine, UseStoredVectorNorm: storedNorm},
	}
}

func resultIDs(resp *models.SearchResponse) []string {
	ids := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.Document.ID
	}
	return ids
}

func TestEngine_SearchDotProduct(t *testing.T) {
	for _, source := range []string{config.DocValuesSQLite, config.DocValuesBleve} {
		t.Run(source, func(t *testing.T) {
			te := newTestEngine(t, source, nil)
			te.add(t, "a", "alpha", map[string][]float64{"v": {1, 0}})
			te.add(t, "b", "beta", map[string][]float64{"v": {0.5, 0.5}})
			te.add(t, "c", "gamma", map[string][]float64{"v": {0, 1}})

			resp, err := te.engine.Search(context.Background(), &models.SearchQuery{
				Script: vectorScript("v", []float64{1, 0}, false, false),
			})
			if err != nil {
				t.Fatal(err)
			}
			got := strings.Join(resultIDs(resp), ",")
			if got != "a,b,c" {
				t.Errorf("order = %s, want a,b,c", got)
			}
			if resp.Total != 3 || resp.Scored != 3 || resp.Skipped != 0 {
				t.Errorf("total=%d scored=%d skipped=%d", resp.Total, resp.Scored, resp.Skipped)
			}
			if resp.Results[0].Score != 1 || resp.Results[1].Score != 0.5 || resp.Results[0].Rank != 1 {
				t.Errorf("unexpected scores %+v %+v", resp.Results[0], resp.Results[1])
			}
		})
	}
}

func TestEngine_SearchCosineStoredNorm(t *testing.T) {
	te := newTestEngine(t, config.DocValuesBleve, []script.Field{{Name: "emb", Dimensions: 2, StoreNorm: true}})
	te.add(t, "same", "x", map[string][]float64{"emb": {3, 4}})
	te.add(t, "orth", "y", map[string][]float64{"emb": {-4, 3}})

	for _, stored := range []bool{true, false} {
		resp, err := te.engine.Search(context.Background(), &models.SearchQuery{
			Script: vectorScript("emb", []float64{6, 8}, true, stored),
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) != 2 || resp.Results[0].Document.ID != "same" {
			t.Fatalf("stored=%v: unexpected results %v", stored, resultIDs(resp))
		}
		if resp.Results[0].Score != 1 {
			t.Errorf("stored=%v: cosine of parallel vectors = %v, want 1", stored, resp.Results[0].Score)
		}
		if resp.Results[1].Score != 0 {
			t.Errorf("stored=%v: cosine of orthogonal vectors = %v, want 0", stored, resp.Results[1].Score)
		}
	}
}

func TestEngine_SearchSkipsBadValues(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, nil)
	ctx := context.Background()
	te.add(t, "good", "x", map[string][]float64{"v": {2, 2}})
	te.add(t, "absent", "x", nil)
	te.add(t, "broken", "x", nil)
	if err := te.store.PutDocValue(ctx, "broken", "v", []byte{0x80, 0x80, 0x80}); err != nil {
		t.Fatal(err)
	}
	te.add(t, "short", "x", map[string][]float64{"v": {1}})

	resp, err := te.engine.Search(ctx, &models.SearchQuery{
		Script: vectorScript("v", []float64{1, 1}, false, false),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Scored != 1 || resp.Skipped != 3 {
		t.Errorf("scored=%d skipped=%d, want 1 and 3", resp.Scored, resp.Skipped)
	}
	if resp.Total != 4 {
		t.Errorf("skipped candidates still rank with score 0, total=%d", resp.Total)
	}
	if resp.Results[0].Document.ID != "good" || resp.Results[0].Score != 4 {
		t.Errorf("top result = %+v", resp.Results[0])
	}
	for _, r := range resp.Results[1:] {
		if r.Score != 0 {
			t.Errorf("%s scored %v, want 0", r.Document.ID, r.Score)
		}
	}
	// ties at 0 are ordered by ID
	if got := strings.Join(resultIDs(resp)[1:], ","); got != "absent,broken,short" {
		t.Errorf("tie order = %s", got)
	}

	const want = `
# HELP vectorscore_documents_scored_total Candidate documents scored, by outcome
# TYPE vectorscore_documents_scored_total counter
vectorscore_documents_scored_total{outcome="absent"} 1
vectorscore_documents_scored_total{outcome="decode_failure"} 2
vectorscore_documents_scored_total{outcome="scored"} 1
`
	if err := testutil.GatherAndCompare(te.reg, strings.NewReader(want), "vectorscore_documents_scored_total"); err != nil {
		t.Error(err)
	}
}

func TestEngine_SearchMinScoreAndPaging(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, nil)
	for i, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		te.add(t, id, "doc", map[string][]float64{"v": {float64(i + 1)}})
	}
	ctx := context.Background()

	resp, err := te.engine.Search(ctx, &models.SearchQuery{
		Script:   vectorScript("v", []float64{1}, false, false),
		MinScore: 2,
		Limit:    2,
		Offset:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 4 {
		t.Errorf("total after min_score = %d, want 4", resp.Total)
	}
	if got := strings.Join(resultIDs(resp), ","); got != "d4,d3" {
		t.Errorf("page = %s, want d4,d3", got)
	}
	if resp.Results[0].Rank != 2 {
		t.Errorf("rank = %d, want 2", resp.Results[0].Rank)
	}

	resp, err = te.engine.Search(ctx, &models.SearchQuery{
		Script: vectorScript("v", []float64{1}, false, false),
		Offset: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || resp.Total != 5 {
		t.Errorf("offset past the end: %d results, total %d", len(resp.Results), resp.Total)
	}

	if _, err := te.engine.Search(ctx, &models.SearchQuery{
		Script: vectorScript("v", []float64{1}, false, false),
		Offset: -1,
	}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("negative offset error = %v", err)
	}
}

func TestEngine_SearchHugeOffset(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, nil)
	te.add(t, "a", "x", map[string][]float64{"v": {1}})

	resp, err := te.engine.Search(context.Background(), &models.SearchQuery{
		Script: vectorScript("v", []float64{1}, false, false),
		Offset: math.MaxInt - 5,
		Limit:  10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || resp.Total != 1 {
		t.Errorf("results = %v, total = %d", resultIDs(resp), resp.Total)
	}

	te.engine.config.CandidateLimit = 0
	if got := te.engine.candidateLimit(&models.SearchQuery{Offset: math.MaxInt - 5, Limit: 10}); got != math.MaxInt32 {
		t.Errorf("candidateLimit = %d, want %d", got, math.MaxInt32)
	}
}

func TestEngine_SearchKeywordWeight(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, nil)
	te.add(t, "match", "invoice totals", map[string][]float64{"v": {0}})
	te.add(t, "other", "unrelated notes", map[string][]float64{"v": {10}})

	kw := 1.0
	resp, err := te.engine.Search(context.Background(), &models.SearchQuery{
		Query:         "invoice",
		Script:        vectorScript("v", []float64{1}, false, false),
		KeywordWeight: &kw,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Document.ID != "match" {
		t.Fatalf("only keyword candidates are scored, got %v", resultIDs(resp))
	}
	if resp.Results[0].KeywordScore != 1 || resp.Results[0].Score != 1 {
		t.Errorf("result = %+v", resp.Results[0])
	}
}

func TestEngine_SearchFuzzyCandidates(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, nil)
	te.add(t, "d1", "invoice totals", map[string][]float64{"v": {1}})
	te.add(t, "d2", "unrelated notes", map[string][]float64{"v": {2}})
	ctx := context.Background()

	exact, err := te.engine.Search(ctx, &models.SearchQuery{
		Query:  "invoise",
		Script: vectorScript("v", []float64{1}, false, false),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(exact.Results) != 0 {
		t.Errorf("misspelled query without fuzzy matching should select nothing, got %v", resultIDs(exact))
	}

	fuzzy, err := te.engine.Search(ctx, &models.SearchQuery{
		Query:        "invoise",
		Script:       vectorScript("v", []float64{1}, false, false),
		FuzzyEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if ids := resultIDs(fuzzy); len(ids) != 1 || ids[0] != "d1" {
		t.Errorf("fuzzy query should select d1, got %v", ids)
	}
}

func TestEngine_SearchTitleBoost(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, nil)
	te.add(t, "budget", "quarterly numbers", map[string][]float64{"v": {0}})
	te.add(t, "notes", "budget budget draft", map[string][]float64{"v": {0}})

	vw, kw := 0.0, 1.0
	resp, err := te.engine.Search(context.Background(), &models.SearchQuery{
		Query:         "budget",
		Script:        vectorScript("v", []float64{1}, false, false),
		VectorWeight:  &vw,
		KeywordWeight: &kw,
	})
	if err != nil {
		t.Fatal(err)
	}
	ids := resultIDs(resp)
	if len(ids) != 2 || ids[0] != "budget" {
		t.Fatalf("title match should rank first, got %v", ids)
	}
	if resp.Results[1].KeywordScore >= 1 {
		t.Errorf("content-only match should score below the title match, got %+v", resp.Results[1])
	}
}

func TestEngine_SearchConfigErrors(t *testing.T) {
	te := newTestEngine(t, config.DocValuesSQLite, []script.Field{{Name: "v", Dimensions: 2}})
	te.add(t, "a", "x", map[string][]float64{"v": {1, 1}})

	tests := []struct {
		name   string
		script script.Script
	}{
		{"wrong lang", script.Script{Lang: "painless", Source: script.Source, Params: script.Params{VectorField: "v", Vector: []float64{1, 1}}}},
		{"unknown source", script.Script{Source: "other", Params: script.Params{VectorField: "v", Vector: []float64{1, 1}}}},
		{"missing field", script.Script{Source: script.Source, Params: script.Params{Vector: []float64{1, 1}}}},
		{"missing vector", script.Script{Source: script.Source, Params: script.Params{VectorField: "v"}}},
		{"unknown field", vectorScript("w", []float64{1, 1}, false, false)},
		{"wrong dimension", vectorScript("v", []float64{1, 1, 1}, false, false)},
		{"stored norm on a field without norms", vectorScript("v", []float64{1, 1}, true, true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.engine.Search(context.Background(), &models.SearchQuery{Script: tt.script})
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsConfigError(err) {
				t.Errorf("IsConfigError(%v) = false", err)
			}
		})
	}

	const want = `
# HELP vectorscore_script_compile_errors_total Search requests rejected at script compilation
# TYPE vectorscore_script_compile_errors_total counter
vectorscore_script_compile_errors_total 7
`
	if err := testutil.GatherAndCompare(te.reg, strings.NewReader(want), "vectorscore_script_compile_errors_total"); err != nil {
		t.Error(err)
	}
	if IsConfigError(errors.New("disk on fire")) {
		t.Error("plain errors are not config errors")
	}
}

func TestEngine_DocValuesSource(t *testing.T) {
	te := newTestEngine(t, config.DocValuesBleve, nil)
	if got := te.engine.DocValuesSource(); got != config.DocValuesBleve {
		t.Errorf("DocValuesSource = %q", got)
	}
}
