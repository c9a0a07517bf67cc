// Package vectorstore defines the contract this core requires from a
// vector index engine and provides two adapters: an embedded chromem-go
// index and a PostgreSQL/pgvector index.
//
// Distance-to-similarity mapping is this package's responsibility: every
// adapter returns similarities in [0, 1], higher is better.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested document id does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrWriteFailed indicates the index rejected a write.
	ErrWriteFailed = errors.New("index write failed")

	// ErrQueryFailed indicates the index rejected a query.
	ErrQueryFailed = errors.New("index query failed")
)

// Document is the unit of storage: id, content, flat string metadata and an
// optional embedding. Metadata stays map[string]string to satisfy the
// embedded index's requirements; numeric values are stringified.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
}

// SearchHit pairs a stored document with its similarity to the query.
type SearchHit struct {
	Document   Document
	Similarity float32
}

// Store is one named collection of documents.
//
// Implementations must be safe for concurrent use; consistency guarantees
// beyond that (read-your-writes, durability) belong to the backing engine.
type Store interface {
	// Add upserts documents and returns their ids. Documents without an id
	// are assigned one.
	Add(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k documents ranked by similarity to the query
	// embedding, optionally restricted to documents whose metadata contains
	// every filter entry.
	Search(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]SearchHit, error)

	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Update replaces content, metadata and embedding of an existing
	// document. Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, doc Document) error

	// Delete removes the given ids and reports how many existed.
	Delete(ctx context.Context, ids []string) (int, error)

	// DeleteByMetadata removes all documents matching the filter and
	// reports how many were removed.
	DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error)

	// List returns up to limit documents matching the filter, in stable
	// insertion order. A nil filter matches everything; limit <= 0 means
	// no limit.
	List(ctx context.Context, filter map[string]string, limit int) ([]Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// Provider creates and destroys named collections. Collection creation is
// idempotent (get-or-create).
type Provider interface {
	Collection(ctx context.Context, name string) (Store, error)
	Drop(ctx context.Context, name string) error
}

// matchesFilter reports whether metadata contains every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
