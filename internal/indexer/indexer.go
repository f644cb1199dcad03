// Package indexer encodes document vectors and writes documents to storage and the keyword index.
package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/vectorscore/internal/keyword"
	"github.com/hyperjump/vectorscore/internal/metrics"
	"github.com/hyperjump/vectorscore/internal/models"
	"github.com/hyperjump/vectorscore/internal/script"
	"github.com/hyperjump/vectorscore/internal/storage"
	"go.uber.org/zap"
)

// maxLineBytes bounds one JSON Lines record.
const maxLineBytes = 64 << 20

// ErrEmptyVector is returned when a document carries a vector with no elements.
var ErrEmptyVector = errors.New("empty vector")

// Indexer indexes documents into storage and the keyword index.
type Indexer struct {
	storage      storage.Storage
	keywordIndex keyword.KeywordIndex
	fields       *script.Registry
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (document indexed, file imported, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// NewIndexer creates an indexer. fields decides the encoding (stored norm, byte order) of each
// vector field; nil accepts any field without a stored norm.
func NewIndexer(
	storage storage.Storage,
	keywordIndex keyword.KeywordIndex,
	fields *script.Registry,
	opts ...IndexerOption,
) *Indexer {
	if fields == nil {
		fields = script.NewRegistry(nil)
	}
	idx := &Indexer{
		storage:      storage,
		keywordIndex: keywordIndex,
		fields:       fields,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument encodes the input's vectors and stores the document in storage and the
// keyword index, replacing any previous version. An empty ID is replaced by a new UUID.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) error {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	values, err := idx.encodeVectors(input.Vectors)
	if err != nil {
		return err
	}
	doc := &models.Document{
		ID:       input.ID,
		Title:    Preprocess(input.Title),
		Content:  Preprocess(input.Content),
		Metadata: input.Metadata,
	}
	if err := idx.storage.PutDocument(ctx, doc, values); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	// Underscores as spaces so "q3_sales_report" matches "sales report".
	docForKeyword := *doc
	docForKeyword.Title = normalizeTitleForKeywordSearch(doc.Title)
	if err := idx.keywordIndex.Index(ctx, &docForKeyword, values); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	idx.metrics.IncIndexed()
	idx.logger.Debug("indexer document indexed", zap.String("id", doc.ID), zap.Int("vectors", len(values)))
	return nil
}

func (idx *Indexer) encodeVectors(vectors map[string][]float64) (map[string][]byte, error) {
	values := make(map[string][]byte, len(vectors))
	for field, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrEmptyVector, field)
		}
		if err := idx.fields.CheckVector(field, len(vec)); err != nil {
			return nil, err
		}
		values[field] = idx.fields.Codec(field).Encode(vec)
	}
	return values, nil
}

// normalizeTitleForKeywordSearch returns the title with underscores replaced by spaces
// so that Bleve's standard analyzer can match multi-word queries.
func normalizeTitleForKeywordSearch(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}

// ImportFile indexes every record of a JSON Lines file of DocumentInput values.
// Blank lines are skipped. Returns the number of documents indexed and stops at the first
// invalid record.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (int, error) {
	idx.logger.Debug("indexer importing file", zap.String("path", path))
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n, line := 0, 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var input models.DocumentInput
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return n, fmt.Errorf("%s:%d: invalid record: %w", path, line, err)
		}
		if err := idx.IndexDocument(ctx, &input); err != nil {
			return n, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read import file: %w", err)
	}
	idx.logger.Debug("indexer file imported", zap.String("path", path), zap.Int("documents", n))
	return n, nil
}

// ImportDirectory walks dir recursively and imports each regular file whose extension
// is in allowedExts (if non-empty; otherwise all files). Returns the number of documents
// indexed and the first error encountered, if any.
func (idx *Indexer) ImportDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		count, importErr := idx.ImportFile(ctx, path)
		n += count
		return importErr
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document from the keyword index and storage.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	idx.logger.Debug("indexer deleting document", zap.String("id", id))
	if err := idx.keywordIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
