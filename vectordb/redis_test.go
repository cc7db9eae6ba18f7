package vectordb

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDoer struct {
	calls [][]interface{}
	err   error
}

func (r *recordingDoer) Do(ctx context.Context, args ...interface{}) *redis.Cmd {
	r.calls = append(r.calls, args)
	return redis.NewCmdResult("OK", r.err)
}

func TestCreateIndexArgs(t *testing.T) {
	t.Run("Should translate the HNSW config", func(t *testing.T) {
		cfg := collection.NewCreateCollectionConfig().
			WithHNSW(collection.HNSWCreateOptions{DistanceMetric: collection.Metric(embeddings.Cosine), MaxNeighbors: collection.Int(16)}).
			WithEmbeddingFunction(embeddings.NewDefaultEmbeddingFunction(embeddings.DefaultOptions{})).
			Build()

		args, err := CreateIndexArgs("docs", cfg, IndexOptions{})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{
			"FT.CREATE", "docs",
			"ON", "HASH",
			"PREFIX", "1", "docs:",
			"SCHEMA", "embedding", "VECTOR", "HNSW", "12",
			"TYPE", "FLOAT32",
			"DIM", "384",
			"DISTANCE_METRIC", "COSINE",
			"M", "16",
			"EF_CONSTRUCTION", "80",
			"EF_RUNTIME", "100",
		}, args)
	})

	t.Run("Should honor index options", func(t *testing.T) {
		cfg := collection.NewCreateCollectionConfig().
			WithHNSW(collection.HNSWCreateOptions{DistanceMetric: collection.Metric(embeddings.InnerProduct)}).
			Build()

		args, err := CreateIndexArgs("docs", cfg, IndexOptions{Prefix: "doc:", Field: "vec", Dimension: 8})
		require.NoError(t, err)
		assert.Equal(t, "doc:", args[6])
		assert.Equal(t, "vec", args[8])
		assert.Contains(t, args, "IP")
		assert.Contains(t, args, "8")
	})

	t.Run("Should require a dimension", func(t *testing.T) {
		_, err := CreateIndexArgs("docs", collection.NewCreateCollectionConfig().Build(), IndexOptions{})
		assert.ErrorIs(t, err, collection.ErrInvalidConfig)
	})

	t.Run("Should validate the config", func(t *testing.T) {
		cfg := collection.NewCreateCollectionConfig().WithHNSW(collection.HNSWCreateOptions{MaxNeighbors: collection.Int(0)}).Build()
		_, err := CreateIndexArgs("docs", cfg, IndexOptions{Dimension: 4})
		assert.ErrorIs(t, err, collection.ErrInvalidConfig)
	})
}

func TestRedisIndexes(t *testing.T) {
	ctx := context.Background()
	cfg := collection.NewCreateCollectionConfig().Build()

	t.Run("Should issue FT.CREATE and FT.DROPINDEX", func(t *testing.T) {
		doer := &recordingDoer{}
		indexes := NewRedisIndexes(doer)

		require.NoError(t, indexes.CreateIndex(ctx, "docs", cfg, IndexOptions{Dimension: 4}))
		require.NoError(t, indexes.DropIndex(ctx, "docs"))

		require.Len(t, doer.calls, 2)
		assert.Equal(t, "FT.CREATE", doer.calls[0][0])
		assert.Equal(t, []interface{}{"FT.DROPINDEX", "docs"}, doer.calls[1])
	})

	t.Run("Should map server errors", func(t *testing.T) {
		indexes := NewRedisIndexes(&recordingDoer{err: errors.New("Index already exists")})
		assert.ErrorIs(t, indexes.CreateIndex(ctx, "docs", cfg, IndexOptions{Dimension: 4}), ErrCollectionExists)

		indexes = NewRedisIndexes(&recordingDoer{err: errors.New("Unknown Index name")})
		assert.ErrorIs(t, indexes.DropIndex(ctx, "docs"), ErrCollectionNotFound)
	})

	t.Run("Should surface servers without RediSearch", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		err := NewRedisIndexes(client).CreateIndex(ctx, "docs", cfg, IndexOptions{Dimension: 4})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCollectionExists)
		assert.Contains(t, err.Error(), "FT.CREATE docs failed")
	})
}
