package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/neuroidss/ToolArtifact/internal/logging"
)

// errEmbeddingRequired is returned by the collection's embedding func.
// Callers always supply vectors, so chromem must never compute one itself.
var errEmbeddingRequired = errors.New("chromem store: embeddings must be supplied by the caller")

// ChromemStore keeps records in a chromem-go collection, optionally
// persisted to a directory.
type ChromemStore struct {
	// mu serializes Add so the existence check and the insert are one step.
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemStore opens the named collection. An empty dir keeps the data in memory.
func NewChromemStore(dir, collection string, compress bool) (*ChromemStore, error) {
	if collection == "" {
		collection = "tools"
	}

	var db *chromem.DB
	if dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(dir, compress)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errEmbeddingRequired
	}
	col, err := db.GetOrCreateCollection(collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	logging.StoreDebug("Chromem collection %s ready with %d records", collection, col.Count())
	return &ChromemStore{db: db, collection: col}, nil
}

// Get returns the record with the given id.
func (s *ChromemStore) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	// chromem reports a missing id as an error; only an absent id produces one here.
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Record{
		ID:        doc.ID,
		Document:  doc.Content,
		Embedding: doc.Embedding,
		Metadata:  cloneMetadata(doc.Metadata),
	}, nil
}

// Add inserts rec if no record has its id.
func (s *ChromemStore) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("add %s: embedding is empty", rec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collection.GetByID(ctx, rec.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ID)
	}

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Metadata:  cloneMetadata(rec.Metadata),
		Embedding: append([]float32(nil), rec.Embedding...),
		Content:   rec.Document,
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", rec.ID, err)
	}
	logging.StoreDebug("Chromem: added %s", rec.ID)
	return nil
}

// Query returns the k nearest records in chromem's rank order.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	n := s.collection.Count()
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Record: Record{
				ID:        r.ID,
				Document:  r.Content,
				Embedding: r.Embedding,
				Metadata:  cloneMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// Count returns the number of records in the collection.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op; a persistent chromem DB writes through on every add.
func (s *ChromemStore) Close() error {
	return nil
}
