package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zeusync/substrate/internal/config"
)

func TestDisabledInstallsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.Tracing{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestEnabledExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Init(context.Background(),
		config.Tracing{Enabled: true, ServiceName: "substrate-test"}, nil, WithExporter(exp))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "world.tick")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "world.tick", spans[0].Name)
	assert.Equal(t, "substrate-test", attrValue(spans[0], "service.name"))

	Shutdown(context.Background(), shutdown, time.Second, nil)
}

func attrValue(s tracetest.SpanStub, key string) string {
	for _, kv := range s.Resource.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}
