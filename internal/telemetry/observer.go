// Package telemetry records tool lifecycle signals into OpenTelemetry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentation = "github.com/neuroidss/ToolArtifact"

// Span names.
const (
	SpanCreate  = "tool.create"
	SpanExecute = "tool.execute"
	SpanResolve = "tool.resolve"
)

// Observer records creations, invocations and lookups. A nil *Observer
// is valid and records nothing.
type Observer struct {
	tracer trace.Tracer

	creations   metric.Int64Counter
	invocations metric.Int64Counter
	fallbacks   metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter and tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	creations, err := meter.Int64Counter(
		"toolartifact.tool.creations",
		metric.WithDescription("Number of tool creation attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}
	invocations, err := meter.Int64Counter(
		"toolartifact.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	fallbacks, err := meter.Int64Counter(
		"toolartifact.resolver.fallbacks",
		metric.WithDescription("Number of lookups answered with the reserved tool only after a search failure"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolartifact.tool.latency",
		metric.WithDescription("Tool operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:      tracer,
		creations:   creations,
		invocations: invocations,
		fallbacks:   fallbacks,
		latency:     latency,
	}, nil
}

// Noop returns an observer backed by no-op providers.
func Noop() *Observer {
	o, err := NewObserver(metricnoop.NewMeterProvider().Meter(instrumentation), tracenoop.NewTracerProvider().Tracer(instrumentation))
	if err != nil {
		return nil
	}
	return o
}

// Start opens a span. The returned func ends it, marking it failed when err is non-nil.
func (o *Observer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	if o == nil || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// ObserveCreate records one creation attempt. Outcome is "created", "exists" or "error".
func (o *Observer) ObserveCreate(ctx context.Context, tool, outcome, kind string, d time.Duration) {
	if o == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", tool),
		attribute.String("operation", "create"),
		attribute.String("outcome", outcome),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String("error_kind", kind))
	}
	options := metric.WithAttributes(attrs...)
	o.creations.Add(ctx, 1, options)
	o.latency.Record(ctx, d.Seconds(), options)
}

// ObserveInvoke records one execution.
func (o *Observer) ObserveInvoke(ctx context.Context, tool string, success bool, kind string, d time.Duration) {
	if o == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", tool),
		attribute.String("operation", "execute"),
		attribute.Bool("success", success),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String("error_kind", kind))
	}
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, d.Seconds(), options)
}

// ObserveResolve records one lookup.
func (o *Observer) ObserveResolve(ctx context.Context, returned int, fallback bool, d time.Duration) {
	if o == nil {
		return
	}
	options := metric.WithAttributes(
		attribute.String("operation", "resolve"),
		attribute.Bool("fallback", fallback),
		attribute.Int("returned", returned),
	)
	if fallback {
		o.fallbacks.Add(ctx, 1)
	}
	o.latency.Record(ctx, d.Seconds(), options)
}
