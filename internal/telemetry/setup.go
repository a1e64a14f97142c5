package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/config"
	"github.com/neuroidss/ToolArtifact/internal/logging"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider owns the exporters behind an Observer.
type Provider struct {
	Observer *Observer

	traces   *sdktrace.TracerProvider
	metrics  *sdkmetric.MeterProvider
	server   *http.Server
	listener net.Listener
}

// Setup builds the telemetry pipeline described by cfg. When telemetry is
// disabled the returned provider carries a no-op observer.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{Observer: Noop()}, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "toolartifact"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	p := &Provider{}

	topts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		topts = append(topts, sdktrace.WithBatcher(exporter))
	}
	p.traces = sdktrace.NewTracerProvider(topts...)
	otel.SetTracerProvider(p.traces)

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	p.metrics = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(p.metrics)

	p.Observer, err = NewObserver(p.metrics.Meter(instrumentation), p.traces.Tracer(instrumentation))
	if err != nil {
		return nil, fmt.Errorf("create observer: %w", err)
	}

	if cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.MetricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		p.listener = ln
		p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Get(logging.CategoryBoot).Error("metrics server: %v", err)
			}
		}()
		logging.Boot("Metrics exposed on http://%s/metrics", ln.Addr())
	}

	return p, nil
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (p *Provider) MetricsAddr() string {
	if p == nil || p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Shutdown flushes exporters and stops the metrics server.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.server != nil {
		errs = append(errs, p.server.Shutdown(ctx))
	}
	if p.traces != nil {
		errs = append(errs, p.traces.Shutdown(ctx))
	}
	if p.metrics != nil {
		errs = append(errs, p.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
