package autopoiesis

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/sandbox"
	"github.com/neuroidss/ToolArtifact/internal/telemetry"
	"github.com/neuroidss/ToolArtifact/internal/tools"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Executor runs stored tools by name. The reserved tool is not run; its
// arguments are handed to the Registrar instead.
type Executor struct {
	registry  *tools.Registry
	registrar *Registrar
	runner    *sandbox.Runner
	observer  *telemetry.Observer
}

// NewExecutor creates an executor.
func NewExecutor(registry *tools.Registry, registrar *Registrar, runner *sandbox.Runner, observer *telemetry.Observer) *Executor {
	return &Executor{registry: registry, registrar: registrar, runner: runner, observer: observer}
}

// ExecuteTool runs the named tool with args and returns its result. Every
// failure is reported as a string starting with Error:.
func (e *Executor) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) string {
	if name == tools.ReservedToolName {
		return e.delegate(ctx, args)
	}

	callID := uuid.NewString()
	log := logging.Get(logging.CategoryAutopoiesis).With("tool", name, "call_id", callID)
	start := time.Now()
	ctx, end := e.observer.Start(ctx, telemetry.SpanExecute,
		attribute.String("tool_name", name),
		attribute.String("call_id", callID),
	)

	out, err := e.execute(ctx, name, args)
	end(err)
	e.observer.ObserveInvoke(ctx, name, err == nil, string(tools.KindOf(err)), time.Since(start))

	if err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			log.Info("Executor: not found")
			return tools.Errorf("tool '%s' not found.", name)
		}
		log.Warn("Executor: %v", err)
		return tools.ErrorOutcome(err)
	}
	log.Debug("Executor: ok in %s", time.Since(start))
	return out
}

func (e *Executor) execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, err := e.registry.Get(ctx, name)
	if errors.Is(err, tools.ErrToolNotFound) {
		return "", err
	}
	if err != nil {
		return "", tools.Fail(tools.KindStore, name, err)
	}
	if t.Provenance != tools.ProvenanceGenerated {
		return "", tools.Fail(tools.KindValidation, name, tools.ErrInternalTool)
	}
	if missing := t.Parameters.MissingRequired(args); len(missing) > 0 {
		return "", tools.Fail(tools.KindValidation, name, fmt.Errorf("%w: %s", tools.ErrMissingRequiredArg, strings.Join(missing, ", ")))
	}

	params := maps.Clone(args)
	if params == nil {
		params = map[string]interface{}{}
	}
	res, err := e.runner.Run(ctx, name, t.Source, params)
	if err != nil {
		return "", tools.Fail(tools.KindExecution, name, err)
	}
	return res.Output, nil
}

// delegate validates the reserved tool's arguments and creates the tool they describe.
func (e *Executor) delegate(ctx context.Context, args map[string]interface{}) string {
	reserved := tools.ReservedDescriptor()
	if missing := reserved.Parameters.MissingRequired(args); len(missing) > 0 {
		err := fmt.Errorf("%w: %s", tools.ErrMissingRequiredArg, strings.Join(missing, ", "))
		return tools.ErrorOutcome(tools.Fail(tools.KindValidation, tools.ReservedToolName, err))
	}

	name, ok := args[tools.ParamNewToolName].(string)
	if !ok {
		return tools.Errorf("%s must be a string, got %T", tools.ParamNewToolName, args[tools.ParamNewToolName])
	}
	description, ok := args[tools.ParamNewToolDescription].(string)
	if !ok {
		return tools.Errorf("%s must be a string, got %T", tools.ParamNewToolDescription, args[tools.ParamNewToolDescription])
	}
	schema, err := tools.SchemaFromValue(args[tools.ParamNewToolParameters])
	if err != nil {
		return tools.ErrorOutcome(tools.Fail(tools.KindValidation, name, err))
	}

	logging.Autopoiesis("Executor: %s delegating creation of %s", tools.ReservedToolName, name)
	return e.registrar.CreateTool(ctx, name, description, schema)
}
