package embeddings

import (
	"context"

	"github.com/snow-ghost/embedcfg/pkg/limiter"
)

// ProtectedEmbeddingFunction runs calls through rate limiting, retries and a
// circuit breaker keyed by provider name
type ProtectedEmbeddingFunction struct {
	inner      EmbeddingFunction
	protection *limiter.Protection
}

var (
	_ EmbeddingFunction = (*ProtectedEmbeddingFunction)(nil)
	_ Wrapper           = (*ProtectedEmbeddingFunction)(nil)
)

// NewProtectedEmbeddingFunction wraps inner with p
func NewProtectedEmbeddingFunction(inner EmbeddingFunction, p *limiter.Protection) *ProtectedEmbeddingFunction {
	return &ProtectedEmbeddingFunction{inner: inner, protection: p}
}

func (p *ProtectedEmbeddingFunction) Unwrap() EmbeddingFunction { return p.inner }

func (p *ProtectedEmbeddingFunction) Name() string { return p.inner.Name() }

func (p *ProtectedEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var vectors Embeddings
	err := p.protection.Execute(ctx, p.Name(), func(ctx context.Context) error {
		var err error
		vectors, err = p.inner.GenerateEmbeddings(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *ProtectedEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	return p.inner.DefaultMetric()
}

func (p *ProtectedEmbeddingFunction) GetConfig() Config {
	return p.inner.GetConfig()
}

func (p *ProtectedEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	inner, err := p.inner.BuildFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &ProtectedEmbeddingFunction{inner: inner, protection: p.protection}, nil
}

func (p *ProtectedEmbeddingFunction) ModifiableVariables() []string {
	return p.inner.ModifiableVariables()
}
