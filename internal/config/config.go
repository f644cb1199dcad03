// Package config provides configuration loading and structs for the vectorscore server.
package config

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/vectorscore/internal/codec"
	"gopkg.in/yaml.v3"
)

// Doc-value sources for scoring.
const (
	DocValuesSQLite = "sqlite"
	DocValuesBleve  = "bleve"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool                `yaml:"debug"`
	Server       ServerConfig        `yaml:"server"`
	Storage      StorageConfig       `yaml:"storage"`
	Scoring      ScoringConfig       `yaml:"scoring"`
	VectorFields []VectorFieldConfig `yaml:"vector_fields"`
	Watch        WatchConfig         `yaml:"watch"`
}

// WatchConfig holds import directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// ScoringConfig holds search and scoring settings.
type ScoringConfig struct {
	// DocValuesSource selects where encoded vectors are read from: "sqlite" or "bleve".
	DocValuesSource string  `yaml:"doc_values_source"`
	Workers         int     `yaml:"workers"`
	DefaultLimit    int     `yaml:"default_limit"`
	MaxLimit        int     `yaml:"max_limit"`
	CandidateLimit  int     `yaml:"candidate_limit"`
	VectorWeight    float64 `yaml:"vector_weight"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	// KeywordTitleBoost multiplies title matches when selecting candidates. 1 disables the boost.
	KeywordTitleBoost float64 `yaml:"keyword_title_boost"`
	// KeywordFuzziness is the edit distance used by fuzzy candidate queries (1 or 2).
	KeywordFuzziness int `yaml:"keyword_fuzziness"`
	// ByteOrder of packed doubles in doc values: "little" (default) or "big".
	ByteOrder string `yaml:"byte_order"`
}

// CodecOptions returns the codec options for the configured byte order.
func (s *ScoringConfig) CodecOptions() []codec.Option {
	if s.ByteOrder == "big" {
		return []codec.Option{codec.WithByteOrder(binary.BigEndian)}
	}
	return []codec.Option{codec.WithByteOrder(binary.LittleEndian)}
}

// VectorFieldConfig declares a vector field.
type VectorFieldConfig struct {
	Name       string `yaml:"name"`
	Dimensions int    `yaml:"dimensions"`
	StoreNorm  bool   `yaml:"store_norm"`
}

// Load reads and parses the config file at path, expands paths, applies defaults, and validates.
// Returns an error if the file cannot be read, parsed, or is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate checks enumerated settings and vector field declarations.
func (c *Config) Validate() error {
	switch c.Scoring.DocValuesSource {
	case DocValuesSQLite, DocValuesBleve:
	default:
		return fmt.Errorf("invalid scoring.doc_values_source %q (supported: sqlite, bleve)", c.Scoring.DocValuesSource)
	}
	switch c.Scoring.ByteOrder {
	case "little", "big":
	default:
		return fmt.Errorf("invalid scoring.byte_order %q (supported: little, big)", c.Scoring.ByteOrder)
	}
	if c.Scoring.KeywordTitleBoost < 1 {
		return fmt.Errorf("scoring.keyword_title_boost must be at least 1")
	}
	if c.Scoring.KeywordFuzziness < 1 || c.Scoring.KeywordFuzziness > 2 {
		return fmt.Errorf("scoring.keyword_fuzziness must be 1 or 2")
	}
	if c.Scoring.Workers < 0 {
		return fmt.Errorf("scoring.workers must not be negative")
	}
	seen := make(map[string]bool, len(c.VectorFields))
	for i, f := range c.VectorFields {
		if f.Name == "" {
			return fmt.Errorf("vector_fields[%d]: name is required", i)
		}
		if f.Dimensions < 0 {
			return fmt.Errorf("vector_fields[%d]: dimensions must not be negative", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("vector_fields[%d]: duplicate field %q", i, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
