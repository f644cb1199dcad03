// Package script compiles binary_vector_score script requests into scoring queries.
package script

import (
	"errors"
	"fmt"

	"github.com/hyperjump/vectorscore/internal/codec"
	"github.com/hyperjump/vectorscore/internal/scoring"
)

const (
	// Lang is the script language served by this package.
	Lang = "binary_vector_score"
	// Source is the only script source Lang accepts.
	Source = "vector_scoring"
)

var (
	// ErrUnsupportedLang is returned for scripts in another language.
	ErrUnsupportedLang = errors.New("unsupported script lang")
	// ErrUnknownSource is returned for script sources other than Source.
	ErrUnknownSource = errors.New("unknown script source")
	// ErrUnknownField is returned when the field is not a declared vector field.
	ErrUnknownField = errors.New("unknown vector field")
	// ErrDimensionMismatch is returned when the query vector length differs from the declared dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNoStoredNorm is returned when a query reads stored norms from a field declared without them.
	ErrNoStoredNorm = errors.New("vector field has no stored norm")
)

// Params are the script parameters as sent by clients.
type Params struct {
	VectorField         string    `json:"vector_field,omitempty"`
	Field               string    `json:"field,omitempty"` // alias of vector_field
	Vector              []float64 `json:"vector"`
	Cosine              bool      `json:"cosine,omitempty"`
	UseStoredVectorNorm bool      `json:"use_stored_vector_norm,omitempty"`
	Term                string    `json:"term,omitempty"`
}

// Script is a script reference in a search request.
type Script struct {
	Lang   string `json:"lang"`
	Source string `json:"source"`
	Params Params `json:"params"`
}

// Config converts p into a scoring config. vector_field wins over field when both are set.
func (p Params) Config() scoring.Config {
	field := p.VectorField
	if field == "" {
		field = p.Field
	}
	return scoring.Config{
		Field:         field,
		Vector:        p.Vector,
		Cosine:        p.Cosine,
		UseStoredNorm: p.UseStoredVectorNorm,
		Term:          p.Term,
	}
}

// Compile checks the script lang and source and compiles its params. An empty lang defaults to Lang.
func Compile(s Script, opts ...codec.Option) (*scoring.QueryState, error) {
	if s.Lang != "" && s.Lang != Lang {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLang, s.Lang)
	}
	if s.Source != Source {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, s.Source)
	}
	q, err := scoring.NewQueryState(s.Params.Config(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s script: %w", Lang, err)
	}
	return q, nil
}
