// Package autopoiesis lets the system grow its own tools.
//
// A Forge wires three operations over one vector store:
//
//	CreateTool        - Registrar: prompt, generate, sanitize, validate, store
//	GetAvailableTools - Resolver: reserved tool first, then nearest neighbours
//	ExecuteTool       - Executor: look up, check arguments, run in the sandbox
//
// All three report failure as strings starting with "Error:"; none of them
// returns a Go error or panics.
package autopoiesis

import (
	"context"
	"fmt"

	"github.com/neuroidss/ToolArtifact/internal/config"
	"github.com/neuroidss/ToolArtifact/internal/embedding"
	"github.com/neuroidss/ToolArtifact/internal/llm"
	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/sandbox"
	"github.com/neuroidss/ToolArtifact/internal/store"
	"github.com/neuroidss/ToolArtifact/internal/telemetry"
	"github.com/neuroidss/ToolArtifact/internal/tools"
)

// Options overrides collaborators that would otherwise be built from config.
type Options struct {
	Provider llm.CodeProvider
	Embedder embedding.EmbeddingEngine
	Store    store.VectorStore
	Observer *telemetry.Observer
}

// Forge is the tool management facade.
type Forge struct {
	registry  *tools.Registry
	registrar *Registrar
	resolver  *Resolver
	executor  *Executor

	store     store.VectorStore
	ownsStore bool
	defaultK  int
}

// New builds a Forge from cfg and makes sure the reserved tool is stored.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Forge, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "forge init")
	defer timer.Stop()

	var err error
	provider := opts.Provider
	if provider == nil {
		if provider, err = llm.NewProvider(cfg.LLM, cfg.GetLLMTimeout()); err != nil {
			return nil, fmt.Errorf("create code provider: %w", err)
		}
	}
	embedder := opts.Embedder
	if embedder == nil {
		if embedder, err = embedding.NewEngine(cfg.Embedding); err != nil {
			return nil, fmt.Errorf("create embedding engine: %w", err)
		}
	}
	observer := opts.Observer
	if observer == nil {
		observer = telemetry.Noop()
	}

	f := &Forge{store: opts.Store, defaultK: cfg.Resolver.DefaultK}
	if f.store == nil {
		if f.store, err = store.Open(cfg.Store, cfg.StorePath()); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		f.ownsStore = true
	}

	runner := sandbox.NewRunner(sandbox.Config{
		Timeout:         cfg.GetSandboxTimeout(),
		AllowedPackages: cfg.Sandbox.AllowedPackages,
		MaxSourceBytes:  cfg.Sandbox.MaxSourceBytes,
		MaxOutputBytes:  cfg.Sandbox.MaxOutputBytes,
	})

	f.registry = tools.NewRegistry(f.store)
	f.registrar = NewRegistrar(f.registry, embedder, provider, runner, observer, cfg.GetLLMTimeout())
	f.resolver = NewResolver(f.registry, embedder, observer)
	f.executor = NewExecutor(f.registry, f.registrar, runner, observer)

	created, err := f.registry.EnsureReserved(ctx, embedder)
	if err != nil {
		f.Close()
		return nil, err
	}
	logging.Boot("Forge ready: provider=%s embedder=%s reserved_created=%v", provider.Name(), embedder.Name(), created)
	return f, nil
}

// CreateTool generates and stores a new tool.
func (f *Forge) CreateTool(ctx context.Context, name, description string, schema tools.ParameterSchema) string {
	return f.registrar.CreateTool(ctx, name, description, schema)
}

// ExecuteTool runs a stored tool, or creates one when name is the reserved tool.
func (f *Forge) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) string {
	return f.executor.ExecuteTool(ctx, name, args)
}

// GetAvailableTools lists the reserved tool and up to k tools relevant to contextText.
func (f *Forge) GetAvailableTools(ctx context.Context, contextText string, k int) []tools.Descriptor {
	return f.resolver.GetAvailableTools(ctx, contextText, k)
}

// Describe returns a stored tool including its source.
func (f *Forge) Describe(ctx context.Context, name string) (*tools.Tool, error) {
	return f.registry.Get(ctx, name)
}

// Count returns the number of stored tools, the reserved tool included.
func (f *Forge) Count(ctx context.Context) (int, error) {
	return f.store.Count(ctx)
}

// DefaultK is the configured number of tools to resolve when a caller does not say.
func (f *Forge) DefaultK() int { return f.defaultK }

// Close releases the store if the Forge opened it.
func (f *Forge) Close() error {
	if f.ownsStore && f.store != nil {
		return f.store.Close()
	}
	return nil
}
