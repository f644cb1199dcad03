// Package models defines core data structures for documents, queries, and search results.
package models

import "time"

// Document is the stored text and metadata of a document. Its vectors live in doc values.
type Document struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// DocumentInput is the input for creating or replacing a document.
// Vectors maps a vector field name to the document's vector for that field.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vectors  map[string][]float64   `json:"vectors,omitempty"`
}
