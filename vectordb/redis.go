package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
)

// redisDoer is satisfied by *redis.Client and *redis.ClusterClient
type redisDoer interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// IndexOptions describes where an index finds its vectors
type IndexOptions struct {
	// Prefix selects the hashes the index covers; defaults to "<name>:"
	Prefix string
	// Field is the hash field holding the vector; defaults to "embedding"
	Field string
	// Dimension overrides the embedding function's declared dimension
	Dimension int
}

// RedisIndexes creates RediSearch HNSW vector indexes from collection configs
type RedisIndexes struct {
	client redisDoer
	obs    observer
}

// NewRedisIndexes uses client to issue FT.* commands
func NewRedisIndexes(client redisDoer, opts ...Option) *RedisIndexes {
	return &RedisIndexes{client: client, obs: newObserver("redis", opts)}
}

// CreateIndexArgs builds the FT.CREATE command for cfg
func CreateIndexArgs(name string, cfg collection.CreateCollectionConfig, opts IndexOptions) ([]interface{}, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dim := opts.Dimension
	if dim == 0 && cfg.EmbeddingFunction != nil {
		dim = embeddings.DimensionOf(cfg.EmbeddingFunction)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: index %s needs a vector dimension", collection.ErrInvalidConfig, name)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = name + ":"
	}
	field := opts.Field
	if field == "" {
		field = "embedding"
	}

	attrs := []interface{}{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", redisMetric(cfg.HNSW.DistanceMetric),
		"M", strconv.Itoa(cfg.HNSW.MaxNeighbors),
		"EF_CONSTRUCTION", strconv.Itoa(cfg.HNSW.EfConstruction),
		"EF_RUNTIME", strconv.Itoa(cfg.HNSW.EfSearch),
	}

	args := []interface{}{
		"FT.CREATE", name,
		"ON", "HASH",
		"PREFIX", "1", prefix,
		"SCHEMA", field, "VECTOR", "HNSW", strconv.Itoa(len(attrs)),
	}
	return append(args, attrs...), nil
}

func redisMetric(m embeddings.DistanceMetric) string {
	switch m {
	case embeddings.Cosine:
		return "COSINE"
	case embeddings.InnerProduct:
		return "IP"
	default:
		return "L2"
	}
}

// CreateIndex creates the index name for cfg
func (r *RedisIndexes) CreateIndex(ctx context.Context, name string, cfg collection.CreateCollectionConfig, opts IndexOptions) error {
	return r.obs.observe(ctx, "create", name, func(ctx context.Context) error {
		args, err := CreateIndexArgs(name, cfg, opts)
		if err != nil {
			return err
		}
		if err := r.client.Do(ctx, args...).Err(); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "already exists") {
				return fmt.Errorf("%w: %s", ErrCollectionExists, name)
			}
			return fmt.Errorf("FT.CREATE %s failed: %w", name, err)
		}
		return nil
	})
}

// DropIndex removes the index name, leaving the indexed hashes in place
func (r *RedisIndexes) DropIndex(ctx context.Context, name string) error {
	return r.obs.observe(ctx, "delete", name, func(ctx context.Context) error {
		if err := r.client.Do(ctx, "FT.DROPINDEX", name).Err(); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unknown index name") {
				return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
			}
			return fmt.Errorf("FT.DROPINDEX %s failed: %w", name, err)
		}
		return nil
	})
}
