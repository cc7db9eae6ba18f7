// Package vectordb applies collection configurations to vector engines
package vectordb

import (
	"context"
	"errors"
	"maps"

	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/snow-ghost/embedcfg/pkg/logging"
	"github.com/snow-ghost/embedcfg/pkg/metrics"
	"github.com/snow-ghost/embedcfg/pkg/tracing"
)

var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Collection is a collection as the engine reports it
type Collection struct {
	ID       string                            `json:"id"`
	Name     string                            `json:"name"`
	Config   collection.CreateCollectionConfig `json:"config"`
	Metadata map[string]any                    `json:"metadata,omitempty"`
}

// Collections manages the lifecycle of collections in a vector engine
type Collections interface {
	// CreateCollection fails with ErrCollectionExists if name is taken
	CreateCollection(ctx context.Context, name string, cfg collection.CreateCollectionConfig) (*Collection, error)

	// UpdateCollection applies the mutable settings in cfg. A new embedding
	// function must be compatible with the one the collection was created with.
	UpdateCollection(ctx context.Context, name string, cfg collection.UpdateCollectionConfig) (*Collection, error)

	GetCollection(ctx context.Context, name string) (*Collection, error)

	DeleteCollection(ctx context.Context, name string) error
}

// Option configures the instrumentation shared by every backend
type Option func(*observer)

func WithLogger(l *logging.Logger) Option {
	return func(o *observer) { o.logger = l }
}

func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(o *observer) { o.metrics = m }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(o *observer) { o.tracer = t }
}

// observer logs, counts and traces collection operations
type observer struct {
	backend string
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

func newObserver(backend string, opts []Option) observer {
	o := observer{
		backend: backend,
		logger:  logging.NewNop(),
		tracer:  tracing.NewNoop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o observer) observe(ctx context.Context, operation, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.StartCollectionSpan(ctx, o.backend, operation, name)
	err := fn(ctx)
	tracing.End(span, err)

	o.logger.LogCollection(ctx, o.backend, operation, name, err)
	if o.metrics != nil {
		o.metrics.RecordCollectionOp(o.backend, operation, err)
	}
	return err
}

// applyUpdate returns current with the settings update staged applied. Fields
// the update left unset keep the collection's values.
func applyUpdate(current collection.CreateCollectionConfig, update collection.UpdateCollectionConfig) (collection.CreateCollectionConfig, error) {
	if err := update.Validate(); err != nil {
		return collection.CreateCollectionConfig{}, err
	}
	if update.EmbeddingFunction != nil {
		if err := embeddings.CheckCompatible(current.EmbeddingFunction, update.EmbeddingFunction); err != nil {
			return collection.CreateCollectionConfig{}, err
		}
	}

	next := update.ApplyTo(current)
	if err := next.Validate(); err != nil {
		return collection.CreateCollectionConfig{}, err
	}
	return next, nil
}

func cloneMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	return maps.Clone(meta)
}
