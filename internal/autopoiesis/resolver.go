package autopoiesis

import (
	"context"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/embedding"
	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/telemetry"
	"github.com/neuroidss/ToolArtifact/internal/tools"

	"go.opentelemetry.io/otel/attribute"
)

// Resolver answers "which tools fit this context" by embedding similarity.
type Resolver struct {
	registry *tools.Registry
	embedder embedding.EmbeddingEngine
	observer *telemetry.Observer
}

// NewResolver creates a resolver.
func NewResolver(registry *tools.Registry, embedder embedding.EmbeddingEngine, observer *telemetry.Observer) *Resolver {
	return &Resolver{registry: registry, embedder: embedder, observer: observer}
}

// GetAvailableTools returns the reserved tool followed by up to k stored
// tools nearest to contextText, in store rank order. It never fails: when
// embedding or search fails the reserved tool is returned alone.
func (r *Resolver) GetAvailableTools(ctx context.Context, contextText string, k int) []tools.Descriptor {
	start := time.Now()
	ctx, end := r.observer.Start(ctx, telemetry.SpanResolve, attribute.Int("k", k))

	out := []tools.Descriptor{tools.ReservedDescriptor()}
	if k <= 0 {
		end(nil)
		r.observer.ObserveResolve(ctx, len(out), false, time.Since(start))
		return out
	}

	found, err := r.nearest(ctx, contextText, k)
	end(err)
	if err != nil {
		logging.Get(logging.CategoryAutopoiesis).Warn("Resolver: falling back to %s only: %v", tools.ReservedToolName, err)
		r.observer.ObserveResolve(ctx, len(out), true, time.Since(start))
		return out
	}

	seen := map[string]bool{tools.ReservedToolName: true}
	for _, t := range found {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t.Descriptor())
	}

	logging.AutopoiesisDebug("Resolver: %d tools for k=%d", len(out), k)
	r.observer.ObserveResolve(ctx, len(out), false, time.Since(start))
	return out
}

func (r *Resolver) nearest(ctx context.Context, contextText string, k int) ([]tools.Tool, error) {
	vec, err := r.embedder.Embed(ctx, contextText)
	if err != nil {
		return nil, tools.Fail(tools.KindEmbedding, "", err)
	}
	found, err := r.registry.Query(ctx, vec, k)
	if err != nil {
		return nil, tools.Fail(tools.KindStore, "", err)
	}
	return found, nil
}
