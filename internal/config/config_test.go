package config

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hyperjump/vectorscore/internal/codec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
scoring:
  doc_values_source: bleve
  workers: 3
vector_fields:
  - name: embedding
    dimensions: 4
    store_norm: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Scoring.DocValuesSource != DocValuesBleve || cfg.Scoring.Workers != 3 {
		t.Errorf("unexpected scoring config: %+v", cfg.Scoring)
	}
	if len(cfg.VectorFields) != 1 || cfg.VectorFields[0].Dimensions != 4 || !cfg.VectorFields[0].StoreNorm {
		t.Errorf("unexpected vector fields: %+v", cfg.VectorFields)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/docvalues.db"
watch:
  directories: ["./imports"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "docvalues.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "imports")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown source", "scoring:\n  doc_values_source: redis\n"},
		{"unknown byte order", "scoring:\n  byte_order: middle\n"},
		{"negative workers", "scoring:\n  workers: -1\n"},
		{"title boost below one", "scoring:\n  keyword_title_boost: 0.5\n"},
		{"fuzziness out of range", "scoring:\n  keyword_fuzziness: 3\n"},
		{"unnamed field", "vector_fields:\n  - dimensions: 3\n"},
		{"negative dimensions", "vector_fields:\n  - name: v\n    dimensions: -3\n"},
		{"duplicate field", "vector_fields:\n  - name: v\n  - name: v\n"},
		{"bad yaml", "scoring: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Scoring.DefaultLimit != 10 || cfg.Scoring.MaxLimit != 100 {
		t.Errorf("default limits: got %d/%d", cfg.Scoring.DefaultLimit, cfg.Scoring.MaxLimit)
	}
	if cfg.Scoring.DocValuesSource != DocValuesSQLite {
		t.Errorf("default doc values source: got %s", cfg.Scoring.DocValuesSource)
	}
	if cfg.Scoring.Workers != runtime.GOMAXPROCS(0) {
		t.Errorf("default workers: got %d", cfg.Scoring.Workers)
	}
	if cfg.Scoring.VectorWeight != 1.0 || cfg.Scoring.KeywordWeight != 0 {
		t.Errorf("default weights: got vector=%f keyword=%f", cfg.Scoring.VectorWeight, cfg.Scoring.KeywordWeight)
	}
	if cfg.Scoring.KeywordTitleBoost != 10 || cfg.Scoring.KeywordFuzziness != 2 {
		t.Errorf("keyword defaults: boost=%f fuzziness=%d", cfg.Scoring.KeywordTitleBoost, cfg.Scoring.KeywordFuzziness)
	}
	if cfg.Scoring.ByteOrder != "little" {
		t.Errorf("default byte order: got %s", cfg.Scoring.ByteOrder)
	}
	if len(cfg.Watch.Extensions) != 1 || cfg.Watch.Extensions[0] != ".jsonl" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_keepsKeywordOnlyWeights(t *testing.T) {
	cfg := &Config{Scoring: ScoringConfig{KeywordWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Scoring.VectorWeight != 0 {
		t.Errorf("vector weight should stay 0 when keyword weight is set, got %f", cfg.Scoring.VectorWeight)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/imports"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestScoringConfig_CodecOptions(t *testing.T) {
	big := &ScoringConfig{ByteOrder: "big"}
	if got := codec.New(false, big.CodecOptions()...).ByteOrder(); got != binary.BigEndian {
		t.Errorf("byte order = %v, want big endian", got)
	}
	little := &ScoringConfig{ByteOrder: "little"}
	if got := codec.New(false, little.CodecOptions()...).ByteOrder(); got != binary.LittleEndian {
		t.Errorf("byte order = %v, want little endian", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:       ServerConfig{Host: "localhost", Port: 9090},
		Storage:      StorageConfig{DatabasePath: "/tmp/db"},
		VectorFields: []VectorFieldConfig{{Name: "embedding", Dimensions: 8}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if len(loaded.VectorFields) != 1 || loaded.VectorFields[0].Dimensions != 8 {
		t.Errorf("loaded vector fields: %+v", loaded.VectorFields)
	}
}
