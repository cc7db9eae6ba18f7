package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/snow-ghost/embedcfg/config"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/snow-ghost/embedcfg/pkg/cache"
	"github.com/snow-ghost/embedcfg/pkg/limiter"
	"github.com/snow-ghost/embedcfg/pkg/logging"
	"github.com/snow-ghost/embedcfg/pkg/metrics"
	"github.com/snow-ghost/embedcfg/pkg/tracing"
	"github.com/snow-ghost/embedcfg/vectordb"
)

// app holds the components assembled from Settings
type app struct {
	settings   *config.Settings
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
	tracer     *tracing.Tracer
	registry   *embeddings.Registry
	cache      cache.VectorCache
	protection *limiter.Protection
	redis      *redis.Client
	closers    []func(context.Context) error
}

func newApp(settings *config.Settings, logger *logging.Logger) (_ *app, err error) {
	a := &app{
		settings: settings,
		logger:   logger,
		metrics:  metrics.NewPrometheusMetrics(prometheus.NewRegistry()),
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.close(context.Background()))
		}
	}()

	tracer, err := tracing.NewTracer(settings.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracer = tracer
	a.closers = append(a.closers, tracer.Shutdown)

	a.registry = embeddings.NewDefaultRegistry(embeddings.RegistryOptions{},
		embeddings.WithRegistryLogger(logger),
		embeddings.WithRegistryMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.registry.Close)
	if err := a.registry.BuildAll(settings.Providers); err != nil {
		return nil, err
	}

	if settings.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		a.closers = append(a.closers, func(context.Context) error { return a.redis.Close() })
	}

	if settings.Cache.Enabled {
		if a.redis != nil {
			a.cache = cache.NewRedisCache(a.redis, "", settings.Cache.TTL)
		} else {
			cfg := cache.DefaultCacheConfig()
			if settings.Cache.Size > 0 {
				cfg.MaxSize = settings.Cache.Size
			}
			if settings.Cache.TTL > 0 {
				cfg.DefaultTTL = settings.Cache.TTL
			}
			lru, err := cache.NewLRUCache(cfg)
			if err != nil {
				return nil, err
			}
			a.cache = lru
			a.closers = append(a.closers, func(context.Context) error { lru.Close(); return nil })
		}
	}

	if settings.Protection.Enabled {
		a.protection = limiter.NewProtection(settings.Protection.ProtectionConfig, logger.GetZap())
	}
	return a, nil
}

// embeddingFunction returns the registered provider name with overrides applied,
// wrapped with the configured protection, cache and instrumentation
func (a *app) embeddingFunction(name string, overrides embeddings.Config) (embeddings.EmbeddingFunction, error) {
	ef, err := a.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if ef, err = ef.BuildFromConfig(overrides); err != nil {
			return nil, err
		}
		if closer, ok := ef.(embeddings.Closer); ok {
			a.closers = append(a.closers, closer.Close)
		}
	}

	if a.protection != nil {
		ef = embeddings.NewProtectedEmbeddingFunction(ef, a.protection)
	}
	if a.cache != nil {
		ef = embeddings.NewCachedEmbeddingFunction(ef, a.cache,
			embeddings.WithCacheTTL(a.settings.Cache.TTL),
			embeddings.WithLookupHook(func(ctx context.Context, provider string, hits, misses int) {
				a.metrics.RecordCache(provider, hits, misses)
				a.logger.LogCacheOperation(ctx, provider, hits, misses)
			}),
		)
	}
	return embeddings.NewInstrumentedEmbeddingFunction(ef, a.logger, a.metrics, a.tracer), nil
}

func (a *app) chroma() (*vectordb.ChromaCollections, error) {
	if a.settings.ChromaAddr == "" {
		return nil, errors.New("chroma_addr is not configured")
	}
	return vectordb.NewChromaCollections(a.settings.ChromaAddr, a.registry,
		vectordb.WithLogger(a.logger),
		vectordb.WithMetrics(a.metrics),
		vectordb.WithTracer(a.tracer),
	)
}

func (a *app) redisIndexes() (*vectordb.RedisIndexes, error) {
	if a.redis == nil {
		return nil, errors.New("redis_addr is not configured")
	}
	return vectordb.NewRedisIndexes(a.redis,
		vectordb.WithLogger(a.logger),
		vectordb.WithMetrics(a.metrics),
		vectordb.WithTracer(a.tracer),
	), nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}
