// Package telemetry sets up tracing export and the Prometheus registry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Options configures Setup.
type Options struct {
	ServiceName string
	// Endpoint is an OTLP/HTTP URL or host:port. When empty,
	// OTEL_EXPORTER_OTLP_ENDPOINT enables export; otherwise tracing is a
	// no-op.
	Endpoint    string
	SampleRatio float64
	Version     string
}

// Telemetry holds the process-wide tracer provider and metrics registry.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	Registry       *prometheus.Registry

	sdk *sdktrace.TracerProvider
}

// Setup builds the tracer provider and a registry preloaded with the Go and
// process collectors.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t := &Telemetry{
		TracerProvider: noop.NewTracerProvider(),
		Registry:       reg,
	}

	endpoint := opts.Endpoint
	fromEnv := endpoint == "" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
	if endpoint == "" && !fromEnv {
		return t, nil
	}

	var exporterOpts []otlptracehttp.Option
	switch {
	case fromEnv:
		// The exporter reads the OTEL_EXPORTER_OTLP_* variables itself.
	case strings.Contains(endpoint, "://"):
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(endpoint))
	default:
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = "thinkloop"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if opts.Version != "" {
		attrs = append(attrs, attribute.String("service.version", opts.Version))
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	t.sdk = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	t.TracerProvider = t.sdk
	return t, nil
}

// Tracing reports whether spans are exported.
func (t *Telemetry) Tracing() bool {
	return t.sdk != nil
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{Registry: t.Registry})
}

// ServeMetrics serves /metrics on addr until ctx is done.
func (t *Telemetry) ServeMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		<-errCh
		return nil
	}
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.Shutdown(ctx)
}
