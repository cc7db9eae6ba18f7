package embeddings

import (
	"context"
	"time"

	"github.com/snow-ghost/embedcfg/pkg/logging"
	"github.com/snow-ghost/embedcfg/pkg/metrics"
	"github.com/snow-ghost/embedcfg/pkg/tracing"
)

// InstrumentedEmbeddingFunction logs, measures and traces every call
type InstrumentedEmbeddingFunction struct {
	inner   EmbeddingFunction
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

var (
	_ EmbeddingFunction = (*InstrumentedEmbeddingFunction)(nil)
	_ Wrapper           = (*InstrumentedEmbeddingFunction)(nil)
)

// NewInstrumentedEmbeddingFunction wraps inner. Nil logger and tracer select no-op
// implementations; nil metrics disables recording.
func NewInstrumentedEmbeddingFunction(inner EmbeddingFunction, logger *logging.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *InstrumentedEmbeddingFunction {
	if logger == nil {
		logger = logging.NewNop()
	}
	if tracer == nil {
		tracer = tracing.NewNoop()
	}
	return &InstrumentedEmbeddingFunction{
		inner:   inner,
		logger:  logger,
		metrics: m,
		tracer:  tracer,
	}
}

func (i *InstrumentedEmbeddingFunction) Unwrap() EmbeddingFunction { return i.inner }

func (i *InstrumentedEmbeddingFunction) Name() string { return i.inner.Name() }

func (i *InstrumentedEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (vectors Embeddings, err error) {
	model := modelOf(i.inner)
	ctx, span := i.tracer.StartEmbeddingSpan(ctx, i.Name(), model, input.Len())
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		tracing.End(span, err)
		i.logger.LogEmbedding(ctx, i.Name(), model, input.Len(), vectors.Dimension(), duration, err)
		if i.metrics != nil {
			i.metrics.RecordRequest(i.Name(), model, input.Len(), duration, err)
		}
	}()

	return i.inner.GenerateEmbeddings(ctx, input)
}

func (i *InstrumentedEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return i.inner.DefaultMetric()
}

func (i *InstrumentedEmbeddingFunction) GetConfig() Config {
	return i.inner.GetConfig()
}

func (i *InstrumentedEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	inner, err := i.inner.BuildFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	next := *i
	next.inner = inner
	return &next, nil
}

func (i *InstrumentedEmbeddingFunction) ModifiableVariables() []string {
	return i.inner.ModifiableVariables()
}

// modelOf reads model_name from ef's config, falling back to the module path for wasm
func modelOf(ef EmbeddingFunction) string {
	cfg := ef.GetConfig()
	for _, key := range []string{"model_name", "module_path"} {
		if v, err := cfg.String(key); err == nil && v != "" {
			return v
		}
	}
	return "unknown"
}
