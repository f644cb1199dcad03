package config

import "runtime"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/vectorscore/data/db/docvalues.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/vectorscore/data/indices/bleve"
	}
	if cfg.Scoring.DocValuesSource == "" {
		cfg.Scoring.DocValuesSource = DocValuesSQLite
	}
	if cfg.Scoring.Workers == 0 {
		cfg.Scoring.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Scoring.DefaultLimit == 0 {
		cfg.Scoring.DefaultLimit = 10
	}
	if cfg.Scoring.MaxLimit == 0 {
		cfg.Scoring.MaxLimit = 100
	}
	if cfg.Scoring.CandidateLimit == 0 {
		cfg.Scoring.CandidateLimit = 1000
	}
	// Vector score only when neither weight is set.
	if cfg.Scoring.VectorWeight == 0 && cfg.Scoring.KeywordWeight == 0 {
		cfg.Scoring.VectorWeight = 1.0
	}
	if cfg.Scoring.KeywordTitleBoost == 0 {
		cfg.Scoring.KeywordTitleBoost = 10.0
	}
	if cfg.Scoring.KeywordFuzziness == 0 {
		cfg.Scoring.KeywordFuzziness = 2
	}
	if cfg.Scoring.ByteOrder == "" {
		cfg.Scoring.ByteOrder = "little"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jsonl"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
