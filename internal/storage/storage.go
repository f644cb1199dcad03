// Package storage defines the persistence interface for documents and their vector doc values.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/vectorscore/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Storage defines document and doc-value persistence operations.
// BinaryValue makes every Storage usable as a scoring.DocValues source.
type Storage interface {
	// Document operations
	PutDocument(ctx context.Context, doc *models.Document, values map[string][]byte) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Doc-value operations
	PutDocValue(ctx context.Context, docID, field string, value []byte) error
	BinaryValue(ctx context.Context, field, docID string) ([]byte, bool, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountDocValues(ctx context.Context) (int64, error)

	Close() error
}
