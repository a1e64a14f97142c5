package autopoiesis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/embedding"
	"github.com/neuroidss/ToolArtifact/internal/llm"
	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/sandbox"
	"github.com/neuroidss/ToolArtifact/internal/telemetry"
	"github.com/neuroidss/ToolArtifact/internal/tools"

	"go.opentelemetry.io/otel/attribute"
)

// Registrar turns a capability request into a stored tool:
// prompt -> generate -> sanitize -> validate -> de-dup -> embed -> insert.
type Registrar struct {
	registry *tools.Registry
	embedder embedding.EmbeddingEngine
	provider llm.CodeProvider
	runner   *sandbox.Runner
	observer *telemetry.Observer
	timeout  time.Duration
	allowed  []string
}

// NewRegistrar creates a registrar. timeout bounds the provider call.
func NewRegistrar(registry *tools.Registry, embedder embedding.EmbeddingEngine, provider llm.CodeProvider, runner *sandbox.Runner, observer *telemetry.Observer, timeout time.Duration) *Registrar {
	allowed := make([]string, 0)
	for p := range runner.Allowed() {
		allowed = append(allowed, p)
	}
	sort.Strings(allowed)

	return &Registrar{
		registry: registry,
		embedder: embedder,
		provider: provider,
		runner:   runner,
		observer: observer,
		timeout:  timeout,
		allowed:  allowed,
	}
}

// CreateTool generates, validates and stores a new tool. It never returns
// an error: the outcome string starts with Success:, Warning: (the name is
// already taken) or Error:.
func (r *Registrar) CreateTool(ctx context.Context, name, description string, schema tools.ParameterSchema) string {
	start := time.Now()
	ctx, end := r.observer.Start(ctx, telemetry.SpanCreate, attribute.String("tool_name", name))

	outcome, err := r.create(ctx, name, description, schema)
	end(err)

	switch {
	case err != nil:
		logging.Get(logging.CategoryAutopoiesis).With("tool", name, "kind", string(tools.KindOf(err))).Warn("Registrar: %v", err)
		r.observer.ObserveCreate(ctx, name, "error", string(tools.KindOf(err)), time.Since(start))
		return tools.ErrorOutcome(err)
	case strings.HasPrefix(outcome, tools.WarningPrefix):
		r.observer.ObserveCreate(ctx, name, "exists", "", time.Since(start))
	default:
		r.observer.ObserveCreate(ctx, name, "created", "", time.Since(start))
	}
	return outcome
}

func (r *Registrar) create(ctx context.Context, name, description string, schema tools.ParameterSchema) (string, error) {
	if err := tools.ValidateName(name); err != nil {
		return "", tools.Fail(tools.KindValidation, name, err)
	}
	if name == tools.ReservedToolName {
		return "", tools.Fail(tools.KindValidation, name, fmt.Errorf("%w: %s is reserved", tools.ErrInvalidName, name))
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return "", tools.Fail(tools.KindValidation, name, errors.New("description cannot be empty"))
	}
	if err := schema.Validate(); err != nil {
		return "", tools.Fail(tools.KindValidation, name, err)
	}
	schema = schema.Normalize()

	exists, err := r.registry.Has(ctx, name)
	if err != nil {
		return "", tools.Fail(tools.KindStore, name, err)
	}
	if exists {
		logging.AutopoiesisDebug("Registrar: %s already exists, skipping generation", name)
		return tools.ExistsOutcome(name), nil
	}

	source, err := r.generate(ctx, name, description, schema)
	if err != nil {
		return "", err
	}

	// Another caller may have stored the name while we were generating.
	exists, err = r.registry.Has(ctx, name)
	if err != nil {
		return "", tools.Fail(tools.KindStore, name, err)
	}
	if exists {
		return tools.ExistsOutcome(name), nil
	}

	vec, err := r.embedder.Embed(ctx, tools.EmbeddingText(name, description))
	if err != nil {
		return "", tools.Fail(tools.KindEmbedding, name, err)
	}

	t := tools.Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Source:      source,
		Provenance:  tools.ProvenanceGenerated,
	}
	if err := r.registry.Add(ctx, t, vec); err != nil {
		if errors.Is(err, tools.ErrToolExists) {
			logging.Autopoiesis("Registrar: lost creation race for %s", name)
			return tools.ExistsOutcome(name), nil
		}
		return "", tools.Fail(tools.KindStore, name, err)
	}

	logging.Autopoiesis("Registrar: created %s (%d bytes of source)", name, len(source))
	return tools.CreatedOutcome(name), nil
}

// generate makes exactly one provider call and returns validated source.
func (r *Registrar) generate(ctx context.Context, name, description string, schema tools.ParameterSchema) (string, error) {
	prompt := buildPrompt(name, description, schema, r.allowed)

	genCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryAutopoiesis, "generate "+name)
	raw, err := r.provider.Complete(genCtx, prompt)
	timer.Stop()
	if err != nil {
		return "", tools.Fail(tools.KindGeneration, name, fmt.Errorf("%s: %w", r.provider.Name(), err))
	}
	if strings.TrimSpace(raw) == "" {
		return "", tools.Fail(tools.KindGeneration, name, fmt.Errorf("%s returned empty output", r.provider.Name()))
	}

	source, err := Sanitize(name, raw)
	if err != nil {
		return "", tools.Fail(tools.KindSanitization, name, err)
	}
	if _, err := r.runner.Check(name, source); err != nil {
		logging.AutopoiesisDebug("Registrar: rejected source for %s:\n%s", name, source)
		return "", tools.Fail(tools.KindSanitization, name, err)
	}
	return source, nil
}
