// Package search selects candidates with the keyword index and scores them with a compiled
// binary_vector_score script.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/hyperjump/vectorscore/internal/config"
	"github.com/hyperjump/vectorscore/internal/keyword"
	"github.com/hyperjump/vectorscore/internal/metrics"
	"github.com/hyperjump/vectorscore/internal/models"
	"github.com/hyperjump/vectorscore/internal/scoring"
	"github.com/hyperjump/vectorscore/internal/script"
	"github.com/hyperjump/vectorscore/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidQuery wraps paging errors in a search request.
var ErrInvalidQuery = errors.New("invalid search query")

// Engine runs scripted vector scoring over keyword candidates.
type Engine struct {
	storage      storage.Storage
	keywordIndex keyword.KeywordIndex
	fields       *script.Registry
	docValues    scoring.DocValues
	config       *config.ScoringConfig
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for per-document scoring failures.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a search engine. Doc values are read from the keyword index when
// cfg.DocValuesSource is "bleve" and from storage otherwise.
func NewEngine(
	storage storage.Storage,
	keywordIndex keyword.KeywordIndex,
	fields *script.Registry,
	cfg *config.ScoringConfig,
	opts ...EngineOption,
) *Engine {
	if fields == nil {
		fields = script.NewRegistry(nil)
	}
	e := &Engine{
		storage:      storage,
		keywordIndex: keywordIndex,
		fields:       fields,
		docValues:    storage,
		config:       cfg,
		logger:       zap.NewNop(),
	}
	if cfg.DocValuesSource == config.DocValuesBleve {
		e.docValues = keywordIndex
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// candidateScore is the outcome of scoring one candidate.
type candidateScore struct {
	score   float64
	outcome string
	err     error
}

// Search compiles the query script, scores the keyword candidates and returns one page of
// documents ordered by combined score. Script errors are returned before any document is read.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q, err := e.fields.Compile(query.Script)
	if err != nil {
		e.metrics.IncConfigErrors()
		return nil, err
	}

	candidates, err := e.keywordIndex.Candidates(ctx, query.Query, e.candidateLimit(query), e.keywordOptions(query))
	if err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}

	scores, err := e.scoreCandidates(ctx, q, candidates)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, 4)
	vectorScores := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		s := scores[i]
		counts[s.outcome]++
		vectorScores[c.ID] = s.score
		if s.err != nil && s.outcome != metrics.OutcomeAbsent {
			e.logger.Debug("search candidate scored zero",
				zap.String("id", c.ID),
				zap.String("field", q.Field()),
				zap.String("outcome", s.outcome),
				zap.Error(s.err))
		}
	}
	e.metrics.ObserveOutcomes(counts)

	var keywordScores map[string]float64
	if strings.TrimSpace(query.Query) != "" {
		keywordScores = NormalizeKeywordScores(candidates)
	}
	vectorWeight, keywordWeight := e.weights(query)
	fused := Fuse(vectorScores, keywordScores, vectorWeight, keywordWeight)
	if query.MinScore != 0 {
		fused = FilterMinScore(fused, query.MinScore)
	}
	paged := Page(fused, query.Offset, query.Limit)

	response := &models.SearchResponse{
		Results: make([]*models.SearchResult, 0, len(paged)),
		Total:   len(fused),
		Scored:  counts[metrics.OutcomeScored],
		Skipped: len(candidates) - counts[metrics.OutcomeScored],
		Query:   query.Query,
	}
	for i, r := range paged {
		doc, err := e.storage.GetDocument(ctx, r.DocumentID)
		if err != nil {
			e.logger.Debug("search result document missing", zap.String("id", r.DocumentID), zap.Error(err))
			continue
		}
		response.Results = append(response.Results, &models.SearchResult{
			Document:     doc,
			Score:        r.Score,
			VectorScore:  r.VectorScore,
			KeywordScore: r.KeywordScore,
			Rank:         query.Offset + i + 1,
		})
	}
	elapsed := time.Since(startTime)
	response.QueryTime = elapsed.Milliseconds()
	e.metrics.ObserveSearch(elapsed)
	return response, nil
}

// scoreCandidates scores candidates in contiguous slices, one DocumentScorer per slice.
func (e *Engine) scoreCandidates(ctx context.Context, q *scoring.QueryState, candidates []*keyword.KeywordResult) ([]candidateScore, error) {
	scores := make([]candidateScore, len(candidates))
	if len(candidates) == 0 {
		return scores, nil
	}
	workers := e.workers()
	if workers > len(candidates) {
		workers = len(candidates)
	}
	chunk := (len(candidates) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(candidates); start += chunk {
		start := start
		end := start + chunk
		if end > len(candidates) {
			end = len(candidates)
		}
		g.Go(func() error {
			scorer := q.NewScorer()
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				scores[i] = e.scoreOne(gctx, scorer, candidates[i].ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (e *Engine) scoreOne(ctx context.Context, scorer *scoring.DocumentScorer, docID string) candidateScore {
	raw, ok, err := e.docValues.BinaryValue(ctx, scorer.Query().Field(), docID)
	if err != nil {
		return candidateScore{outcome: metrics.OutcomeAccessorError, err: err}
	}
	if !ok {
		return candidateScore{outcome: metrics.OutcomeAbsent, err: scoring.ErrAbsent}
	}
	score, err := scorer.TryScore(raw)
	switch {
	case err == nil:
		return candidateScore{score: score, outcome: metrics.OutcomeScored}
	case errors.Is(err, scoring.ErrAbsent):
		return candidateScore{outcome: metrics.OutcomeAbsent, err: err}
	default:
		return candidateScore{outcome: metrics.OutcomeDecodeFailure, err: err}
	}
}

func (e *Engine) workers() int {
	if e.config.Workers > 0 {
		return e.config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Engine) candidateLimit(query *models.SearchQuery) int {
	limit := e.config.CandidateLimit
	if query.CandidateLimit > 0 && (limit <= 0 || query.CandidateLimit < limit) {
		limit = query.CandidateLimit
	}
	if limit <= 0 {
		limit = query.Offset + query.Limit
		if limit < query.Offset {
			limit = math.MaxInt32
		}
	}
	return limit
}

func (e *Engine) keywordOptions(query *models.SearchQuery) *keyword.SearchOptions {
	return &keyword.SearchOptions{
		TitleBoost:   e.config.KeywordTitleBoost,
		FuzzyEnabled: query.FuzzyEnabled,
		Fuzziness:    e.config.KeywordFuzziness,
	}
}

func (e *Engine) weights(query *models.SearchQuery) (vectorWeight, keywordWeight float64) {
	vectorWeight, keywordWeight = e.config.VectorWeight, e.config.KeywordWeight
	if query.VectorWeight != nil {
		vectorWeight = *query.VectorWeight
	}
	if query.KeywordWeight != nil {
		keywordWeight = *query.KeywordWeight
	}
	return vectorWeight, keywordWeight
}

// Fields returns the declared vector fields.
func (e *Engine) Fields() *script.Registry {
	return e.fields
}

// DocValuesSource returns the configured doc-value source name.
func (e *Engine) DocValuesSource() string {
	if e.config.DocValuesSource == "" {
		return config.DocValuesSQLite
	}
	return e.config.DocValuesSource
}

// IsConfigError reports whether err is a script compilation error, as opposed to a failure
// while searching.
func IsConfigError(err error) bool {
	var cfgErr *scoring.ConfigError
	return errors.As(err, &cfgErr) ||
		errors.Is(err, script.ErrUnsupportedLang) ||
		errors.Is(err, script.ErrUnknownSource) ||
		errors.Is(err, script.ErrUnknownField) ||
		errors.Is(err, script.ErrDimensionMismatch) ||
		errors.Is(err, script.ErrNoStoredNorm)
}

// IndexedCount returns the number of documents in the keyword index.
func (e *Engine) IndexedCount() (uint64, error) {
	return e.keywordIndex.DocCount()
}
