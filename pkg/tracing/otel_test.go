package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewWithProvider(tp), recorder
}

func TestEmbeddingSpan(t *testing.T) {
	tracer, recorder := recordingTracer()

	ctx, span := tracer.StartEmbeddingSpan(context.Background(), "openai", "text-embedding-3-small", 3)
	assert.NotEmpty(t, GetTraceID(ctx))
	End(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "embedding.generate", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("embedding.provider", "openai"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("embedding.items", 3))
}

func TestCollectionSpanError(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.StartCollectionSpan(context.Background(), "chroma", "create", "docs")
	End(span, errors.New("already exists"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "collection.create", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
}

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tracer, err := NewTracer(Config{ServiceName: "embedctl"})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "noop")
	End(span, nil)

	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, tracer.Shutdown(context.Background()))
}
