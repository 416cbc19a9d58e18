// Package tracing installs the process-wide OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zeusync/substrate/internal/config"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

// ShutdownFunc flushes buffered spans.
type ShutdownFunc func(context.Context) error

type Option func(*options)

type options struct {
	writer   io.Writer
	exporter sdktrace.SpanExporter
}

// WithWriter sends stdout-exported spans to w instead of os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithExporter replaces the stdout exporter, e.g. with tracetest.NewInMemoryExporter.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// Init installs a tracer provider for cfg. A disabled config installs a noop
// provider. The returned function must be called on shutdown.
func Init(ctx context.Context, cfg config.Tracing, logger log.Log, opts ...Option) (ShutdownFunc, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp := o.exporter
	if exp == nil {
		stdoutOpts := []stdouttrace.Option{stdouttrace.WithWriter(o.writer), stdouttrace.WithoutTimestamps()}
		if cfg.PrettyPrint {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithPrettyPrint())
		}
		var err error
		if exp, err = stdouttrace.New(stdoutOpts...); err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled", log.String("service_name", cfg.ServiceName))
	return tp.Shutdown, nil
}

// Shutdown calls fn with a bounded timeout and logs a failure.
func Shutdown(ctx context.Context, fn ShutdownFunc, timeout time.Duration, logger log.Log) {
	if fn == nil {
		return
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("tracing shutdown failed", log.Error(err))
	}
}
