package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/neuroidss/ToolArtifact/internal/embedding"
	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/store"
)

// Record metadata keys.
const (
	metaName        = "name"
	metaDescription = "description"
	metaParameters  = "parameters_json"
	metaCode        = "code"
	metaIsInternal  = "is_internal"
)

// Registry maps tools onto vector store records. It holds no state of its
// own; the store is the single source of truth and the arbiter of
// duplicate names.
type Registry struct {
	store store.VectorStore
}

// NewRegistry creates a registry over s.
func NewRegistry(s store.VectorStore) *Registry {
	return &Registry{store: s}
}

// Store returns the underlying vector store.
func (r *Registry) Store() store.VectorStore {
	return r.store
}

// Get returns the tool with the given name.
// Returns an error wrapping ErrToolNotFound if absent.
func (r *Registry) Get(ctx context.Context, name string) (*Tool, error) {
	rec, err := r.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	t, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Has reports whether a tool with the given name is stored.
func (r *Registry) Has(ctx context.Context, name string) (bool, error) {
	_, err := r.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Add stores t with the given embedding.
// Returns an error wrapping ErrToolExists if the name is taken.
func (r *Registry) Add(ctx context.Context, t Tool, vec []float32) error {
	rec, err := toRecord(t, vec)
	if err != nil {
		return err
	}
	err = r.store.Add(ctx, rec)
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("%w: %s", ErrToolExists, t.Name)
	}
	if err != nil {
		return err
	}
	logging.ToolsDebug("Registry: stored %s (provenance=%s)", t.Name, t.Provenance)
	return nil
}

// Query returns up to k tools nearest to vec in store rank order.
// Records that cannot be decoded are logged and skipped.
func (r *Registry) Query(ctx context.Context, vec []float32, k int) ([]Tool, error) {
	matches, err := r.store.Query(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]Tool, 0, len(matches))
	for _, m := range matches {
		t, err := fromRecord(m.Record)
		if err != nil {
			logging.ToolsWarn("Registry: skipping %s: %v", m.ID, err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Describe returns the descriptor and provenance of a stored tool.
func (r *Registry) Describe(ctx context.Context, name string) (Descriptor, Provenance, error) {
	t, err := r.Get(ctx, name)
	if err != nil {
		return Descriptor{}, "", err
	}
	return t.Descriptor(), t.Provenance, nil
}

// EnsureReserved stores the bootstrap tool if it is missing.
// It reports whether a record was created.
func (r *Registry) EnsureReserved(ctx context.Context, engine embedding.EmbeddingEngine) (bool, error) {
	ok, err := r.Has(ctx, ReservedToolName)
	if err != nil {
		return false, fmt.Errorf("check reserved tool: %w", err)
	}
	if ok {
		return false, nil
	}

	t := ReservedTool()
	vec, err := engine.Embed(ctx, EmbeddingText(t.Name, t.Description))
	if err != nil {
		return false, fmt.Errorf("embed reserved tool: %w", err)
	}
	if err := r.Add(ctx, t, vec); err != nil {
		if errors.Is(err, ErrToolExists) {
			return false, nil
		}
		return false, fmt.Errorf("store reserved tool: %w", err)
	}
	logging.Tools("Registry: recreated reserved tool %s", ReservedToolName)
	return true, nil
}

func toRecord(t Tool, vec []float32) (store.Record, error) {
	params, err := EncodeSchema(t.Parameters)
	if err != nil {
		return store.Record{}, err
	}
	internal := "false"
	if t.Provenance == ProvenanceReserved {
		internal = "true"
	}
	return store.Record{
		ID:        t.Name,
		Document:  EmbeddingText(t.Name, t.Description),
		Embedding: vec,
		Metadata: map[string]string{
			metaName:        t.Name,
			metaDescription: t.Description,
			metaParameters:  params,
			metaCode:        t.Source,
			metaIsInternal:  internal,
		},
	}, nil
}

func fromRecord(rec store.Record) (Tool, error) {
	name := rec.Metadata[metaName]
	if name == "" {
		name = rec.ID
	}
	params, err := DecodeSchema(rec.Metadata[metaParameters])
	if err != nil {
		return Tool{}, fmt.Errorf("%w %s: %v", ErrCorruptRecord, rec.ID, err)
	}
	prov := ProvenanceGenerated
	if rec.Metadata[metaIsInternal] == "true" {
		prov = ProvenanceReserved
	}
	return Tool{
		Name:        name,
		Description: rec.Metadata[metaDescription],
		Parameters:  params,
		Source:      rec.Metadata[metaCode],
		Provenance:  prov,
	}, nil
}
