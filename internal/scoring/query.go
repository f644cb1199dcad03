// Package scoring computes dot-product and cosine scores between a compiled query vector and
// the binary-encoded vector stored in a document's doc value.
package scoring

import (
	"errors"
	"fmt"

	"github.com/hyperjump/vectorscore/internal/codec"
)

var (
	// ErrMissingField is returned when the query does not name a vector field.
	ErrMissingField = errors.New("vector field is required")
	// ErrMissingVector is returned when the query vector is empty.
	ErrMissingVector = errors.New("query vector is required")
)

// ConfigError is a query compilation failure. Scoring never starts for a query that fails to compile.
type ConfigError struct {
	Param string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid scoring config [%s]: %v", e.Param, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is the typed query-time configuration.
type Config struct {
	// Field is the doc-value field holding the encoded document vectors.
	Field string
	// Vector is the query vector; its length is the query dimension.
	Vector []float64
	// Cosine selects cosine similarity instead of the raw dot product.
	Cosine bool
	// UseStoredNorm reads the document norm from the trailing 8 bytes instead of computing it.
	// Only meaningful with Cosine.
	UseStoredNorm bool
	// Term is accepted for compatibility with term-style queries. It does not affect scores.
	Term string
}

// QueryState is a compiled query. It is immutable and may be shared by any number of goroutines.
type QueryState struct {
	field         string
	vector        []float64
	cosine        bool
	useStoredNorm bool
	norm          float64
	term          string
	codec         *codec.Codec
}

// NewQueryState validates cfg and compiles it. The vector is copied. opts configure the
// doc-value codec (e.g. byte order).
func NewQueryState(cfg Config, opts ...codec.Option) (*QueryState, error) {
	if cfg.Field == "" {
		return nil, &ConfigError{Param: "field", Err: ErrMissingField}
	}
	if len(cfg.Vector) == 0 {
		return nil, &ConfigError{Param: "vector", Err: ErrMissingVector}
	}
	q := &QueryState{
		field:         cfg.Field,
		vector:        append([]float64(nil), cfg.Vector...),
		cosine:        cfg.Cosine,
		useStoredNorm: cfg.Cosine && cfg.UseStoredNorm,
		term:          cfg.Term,
	}
	if q.cosine {
		q.norm = codec.Norm(q.vector)
	}
	q.codec = codec.New(q.useStoredNorm, opts...)
	return q, nil
}

// Field returns the doc-value field name.
func (q *QueryState) Field() string { return q.field }

// Dim returns the query dimension.
func (q *QueryState) Dim() int { return len(q.vector) }

// Vector returns a copy of the query vector.
func (q *QueryState) Vector() []float64 { return append([]float64(nil), q.vector...) }

// Cosine reports whether scores are cosine similarities.
func (q *QueryState) Cosine() bool { return q.cosine }

// UseStoredNorm reports whether document norms are read from doc values. Always false without Cosine.
func (q *QueryState) UseStoredNorm() bool { return q.useStoredNorm }

// Norm returns the query vector norm, or 0 when Cosine is off.
func (q *QueryState) Norm() float64 { return q.norm }

// Term returns the compatibility term parameter.
func (q *QueryState) Term() string { return q.term }

// NewScorer returns a DocumentScorer bound to q. Each goroutine needs its own scorer.
func (q *QueryState) NewScorer() *DocumentScorer {
	return &DocumentScorer{query: q, scratch: make([]float64, len(q.vector))}
}
