package script

import (
	"fmt"
	"sort"

	"github.com/hyperjump/vectorscore/internal/codec"
	"github.com/hyperjump/vectorscore/internal/scoring"
)

// Field describes a declared vector field.
type Field struct {
	Name       string
	Dimensions int  // 0 accepts any dimension
	StoreNorm  bool // encoded values carry a trailing norm
}

// Registry holds the declared vector fields. An empty registry accepts any field.
type Registry struct {
	fields map[string]Field
	opts   []codec.Option
}

// NewRegistry creates a registry. opts are passed to every codec the registry builds.
func NewRegistry(fields []Field, opts ...codec.Option) *Registry {
	r := &Registry{fields: make(map[string]Field, len(fields)), opts: opts}
	for _, f := range fields {
		r.fields[f.Name] = f
	}
	return r
}

// Lookup returns the declared field by name.
func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Names returns the declared field names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Codec returns the codec used to write values of the named field. Undeclared fields have no stored norm.
func (r *Registry) Codec(name string) *codec.Codec {
	f := r.fields[name]
	return codec.New(f.StoreNorm, r.opts...)
}

// Compile compiles s with the registry's codec options and validates it against the declared fields.
func (r *Registry) Compile(s Script) (*scoring.QueryState, error) {
	q, err := Compile(s, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate rejects queries on undeclared fields, with the wrong dimension, or reading stored
// norms from a field declared without them.
func (r *Registry) Validate(q *scoring.QueryState) error {
	if err := r.CheckVector(q.Field(), q.Dim()); err != nil {
		return err
	}
	if f, ok := r.fields[q.Field()]; ok && q.UseStoredNorm() && !f.StoreNorm {
		return fmt.Errorf("%w: %q", ErrNoStoredNorm, f.Name)
	}
	return nil
}

// CheckVector validates a vector of length dim for field against the declared fields.
func (r *Registry) CheckVector(field string, dim int) error {
	if len(r.fields) == 0 {
		return nil
	}
	f, ok := r.fields[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if f.Dimensions > 0 && f.Dimensions != dim {
		return fmt.Errorf("%w: field %q has %d dimensions, got %d", ErrDimensionMismatch, f.Name, f.Dimensions, dim)
	}
	return nil
}
