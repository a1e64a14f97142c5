// Package store provides the vector stores that persist tool records.
//
// A record is keyed by tool name and carries the embedding of
// "{name}: {description}", a short document text and string metadata.
// Every backend implements Add as an atomic compare-and-insert so that
// concurrent creations of the same name leave exactly one record.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/neuroidss/ToolArtifact/internal/config"
	"github.com/neuroidss/ToolArtifact/internal/logging"
)

var (
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by Add when the id is already taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrEmptyID is returned when a record has no id.
	ErrEmptyID = errors.New("record id cannot be empty")
)

// Record is one stored entry.
type Record struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  map[string]string
}

// Match is a Query result. Higher Similarity is closer.
type Match struct {
	Record
	Similarity float32
}

// VectorStore is the persistence contract the tool registry depends on.
type VectorStore interface {
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Add inserts rec unless its id exists, in which case it returns
	// ErrAlreadyExists and leaves the stored record untouched.
	Add(ctx context.Context, rec Record) error

	// Query returns up to k records ranked by similarity to embedding.
	// k larger than the collection returns every record; k <= 0 returns none.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Open creates the store selected by cfg. path is the resolved storage
// location; an empty path gives an in-memory chromem store.
func Open(cfg config.StoreConfig, path string) (VectorStore, error) {
	logging.Store("Opening %s store (path=%q, collection=%s)", cfg.Backend, path, cfg.Collection)

	switch cfg.Backend {
	case "", "chromem":
		return NewChromemStore(path, cfg.Collection, cfg.Compress)
	case "sqlite":
		return NewSQLiteStore(cfg.Driver, path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
