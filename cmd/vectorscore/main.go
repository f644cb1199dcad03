// Package main is the vectorscore CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/vectorscore/internal/config"
	"github.com/hyperjump/vectorscore/internal/indexer"
	"github.com/hyperjump/vectorscore/internal/keyword"
	"github.com/hyperjump/vectorscore/internal/metrics"
	"github.com/hyperjump/vectorscore/internal/script"
	"github.com/hyperjump/vectorscore/internal/search"
	"github.com/hyperjump/vectorscore/internal/server"
	"github.com/hyperjump/vectorscore/internal/storage"
	"github.com/hyperjump/vectorscore/internal/watcher"
	"github.com/hyperjump/vectorscore/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/vectorscore/config.yaml"

// loadConfig loads config from path. When path is the default and config.yaml exists in the
// current directory, that file is used instead. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "import":
		runImport()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("vectorscore version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("doc_values_source", cfg.Scoring.DocValuesSource),
		zap.Int("vector_fields", len(cfg.VectorFields)),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	components, err := initializeComponents(cfg, logger, metrics.New(reg))
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			n, err := idx.ImportFile(context.Background(), path)
			if err != nil {
				logger.Warn("watch import failed", zap.String("path", path), zap.Int("imported", n), zap.Error(err))
				return
			}
			logger.Info("watch import done", zap.String("path", path), zap.Int("imported", n))
		},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExisting()

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		cfg,
		logger,
		server.WithWatch(watchSvc, resolvedConfigPath),
		server.WithGatherer(reg),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: vectorscore import [flags] <file.jsonl-or-directory>")
		fmt.Println("Writes directly to the configured storage; stop the server first.")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var n int
	if info.IsDir() {
		n, err = components.Indexer.ImportDirectory(ctx, path, cfg.Watch.Extensions)
	} else {
		n, err = components.Indexer.ImportFile(ctx, path)
	}
	if err != nil {
		fmt.Printf("Import failed after %d document(s): %v\n", n, err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d document(s) from %s\n", n, path)
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	KeywordIndex keyword.KeywordIndex
	Fields       *script.Registry
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

// Close releases storage and the keyword index.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

// vectorFields converts the configured vector fields for the script registry.
func vectorFields(cfg *config.Config) []script.Field {
	fields := make([]script.Field, 0, len(cfg.VectorFields))
	for _, f := range cfg.VectorFields {
		fields = append(fields, script.Field{Name: f.Name, Dimensions: f.Dimensions, StoreNorm: f.StoreNorm})
	}
	return fields
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	kwIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	fields := script.NewRegistry(vectorFields(cfg), cfg.Scoring.CodecOptions()...)
	engine := search.NewEngine(store, kwIndex, fields, &cfg.Scoring,
		search.WithLogger(logger), search.WithMetrics(m))
	idx := indexer.NewIndexer(store, kwIndex, fields,
		indexer.WithLogger(logger), indexer.WithMetrics(m))

	return &Components{
		Storage:      store,
		KeywordIndex: kwIndex,
		Fields:       fields,
		Engine:       engine,
		Indexer:      idx,
	}, nil
}

func printUsage() {
	fmt.Print(`vectorscore - scripted vector scoring over a keyword index

Usage:
  vectorscore <command> [flags]

Commands:
  server    Start the HTTP API server (and the import watcher)
  import    Import a JSON Lines file or directory directly into storage
  search    Score documents through a running server
  status    Show index status from a running server
  version   Print the version
  help      Show this help

Examples:
  vectorscore server -config ./config.yaml
  vectorscore import ./docs.jsonl
  vectorscore search -field embedding -vector 0.1,0.2,0.3 -cosine "quarterly report"
`)
}
