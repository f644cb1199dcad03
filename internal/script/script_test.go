package script

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperjump/vectorscore/internal/scoring"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		script  Script
		wantErr error
	}{
		{"valid", Script{Lang: Lang, Source: Source, Params: Params{VectorField: "v", Vector: []float64{1}}}, nil},
		{"default lang", Script{Source: Source, Params: Params{Field: "v", Vector: []float64{1}}}, nil},
		{"wrong lang", Script{Lang: "painless", Source: Source}, ErrUnsupportedLang},
		{"unknown source", Script{Lang: Lang, Source: "other"}, ErrUnknownSource},
		{"missing field", Script{Source: Source, Params: Params{Vector: []float64{1}}}, scoring.ErrMissingField},
		{"missing vector", Script{Source: Source, Params: Params{VectorField: "v"}}, scoring.ErrMissingVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Compile(tt.script)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Compile() error = %v", err)
				}
				if q.Field() != "v" {
					t.Errorf("Field() = %q, want v", q.Field())
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParams_JSON(t *testing.T) {
	body := `{"vector_field":"embedding","field":"ignored","vector":[0.5,1],"cosine":true,"use_stored_vector_norm":true,"term":"x"}`
	var p Params
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatal(err)
	}
	cfg := p.Config()
	if cfg.Field != "embedding" {
		t.Errorf("Field = %q, want embedding", cfg.Field)
	}
	if !cfg.Cosine || !cfg.UseStoredNorm {
		t.Errorf("flags not decoded: %+v", cfg)
	}
	if cfg.Term != "x" || len(cfg.Vector) != 2 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestRegistry_Validate(t *testing.T) {
	r := NewRegistry([]Field{
		{Name: "embedding", Dimensions: 3, StoreNorm: true},
		{Name: "free"},
	})
	s := func(field string, vec ...float64) Script {
		return Script{Source: Source, Params: Params{VectorField: field, Vector: vec}}
	}

	if _, err := r.Compile(s("embedding", 1, 2, 3)); err != nil {
		t.Errorf("declared field: %v", err)
	}
	if _, err := r.Compile(s("free", 1)); err != nil {
		t.Errorf("free dimension field: %v", err)
	}
	if _, err := r.Compile(s("embedding", 1, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
	if _, err := r.Compile(s("other", 1)); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected unknown field, got %v", err)
	}

	storedNorm := func(field string, vec ...float64) Script {
		sc := s(field, vec...)
		sc.Params.Cosine = true
		sc.Params.UseStoredVectorNorm = true
		return sc
	}
	if _, err := r.Compile(storedNorm("embedding", 1, 2, 3)); err != nil {
		t.Errorf("stored norm on a norm field: %v", err)
	}
	if _, err := r.Compile(storedNorm("free", 1)); !errors.Is(err, ErrNoStoredNorm) {
		t.Errorf("expected no stored norm, got %v", err)
	}
	noCosine := s("free", 1)
	noCosine.Params.UseStoredVectorNorm = true
	if _, err := r.Compile(noCosine); err != nil {
		t.Errorf("stored norm flag is ignored without cosine: %v", err)
	}

	if _, err := NewRegistry(nil).Compile(s("anything", 1)); err != nil {
		t.Errorf("empty registry should accept any field: %v", err)
	}
}

func TestRegistry_Codec(t *testing.T) {
	r := NewRegistry([]Field{{Name: "embedding", StoreNorm: true}})
	if !r.Codec("embedding").StoredNorm() {
		t.Error("embedding codec should store norms")
	}
	if r.Codec("plain").StoredNorm() {
		t.Error("undeclared field should not store norms")
	}
	if got := r.Names(); len(got) != 1 || got[0] != "embedding" {
		t.Errorf("Names() = %v", got)
	}
}
