package vectordb

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"

	"github.com/amikos-tech/chroma-go/types"
	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChroma mimics the server's collection endpoints and error messages
type fakeChroma struct {
	mu       sync.Mutex
	metadata map[string]map[string]any
	spaces   map[string]types.DistanceFunction
	modified int
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{
		metadata: make(map[string]map[string]any),
		spaces:   make(map[string]types.DistanceFunction),
	}
}

func (f *fakeChroma) create(_ context.Context, name string, metadata map[string]any, _ types.EmbeddingFunction, space types.DistanceFunction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.metadata[name]; exists {
		return "", fmt.Errorf("Collection %s already exists", name)
	}
	f.metadata[name] = maps.Clone(metadata)
	f.spaces[name] = space
	return "id-" + name, nil
}

func (f *fakeChroma) get(_ context.Context, name string) (string, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, exists := f.metadata[name]
	if !exists {
		return "", nil, fmt.Errorf("Collection %s does not exist.", name)
	}
	// The server returns numbers as JSON floats
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if i, ok := v.(int); ok {
			out[k] = float64(i)
			continue
		}
		out[k] = v
	}
	return "id-" + name, out, nil
}

func (f *fakeChroma) modify(_ context.Context, name string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.metadata[name]; !exists {
		return fmt.Errorf("Collection %s does not exist.", name)
	}
	f.metadata[name] = maps.Clone(metadata)
	f.modified++
	return nil
}

func (f *fakeChroma) delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.metadata[name]; !exists {
		return fmt.Errorf("Collection %s does not exist.", name)
	}
	delete(f.metadata, name)
	return nil
}

func (f *fakeChroma) query(ctx context.Context, name string, ef types.EmbeddingFunction, texts []string, n int32) (*QueryResult, error) {
	vectors, err := ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	result := &QueryResult{}
	for i, v := range vectors {
		result.IDs = append(result.IDs, []string{fmt.Sprintf("%s-%d-%d", name, i, len(*v.ArrayOfFloat32))})
		result.Distances = append(result.Distances, []float32{0})
	}
	return result, nil
}

func TestChromaCollections(t *testing.T) {
	ctx := context.Background()
	registry := embeddings.NewDefaultRegistry(embeddings.RegistryOptions{})
	local := embeddings.NewDefaultEmbeddingFunction(embeddings.DefaultOptions{})

	createConfig := collection.NewCreateCollectionConfig().
		WithHNSW(collection.HNSWCreateOptions{DistanceMetric: collection.Metric(embeddings.Cosine), MaxNeighbors: collection.Int(32)}).
		WithEmbeddingFunction(local).
		Build()

	t.Run("Should create collections with engine metadata", func(t *testing.T) {
		backend := newFakeChroma()
		store := newChromaCollections(backend, registry)

		created, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)
		assert.Equal(t, "id-docs", created.ID)
		assert.Equal(t, types.DistanceFunction("cosine"), backend.spaces["docs"])
		assert.Equal(t, 32, backend.metadata["docs"][collection.MetaMaxNeighbors])
		assert.Contains(t, backend.metadata["docs"], collection.MetaEmbeddingFunction)

		_, err = store.CreateCollection(ctx, "docs", createConfig)
		assert.ErrorIs(t, err, ErrCollectionExists)
	})

	t.Run("Should rebuild the config from metadata", func(t *testing.T) {
		store := newChromaCollections(newFakeChroma(), registry)
		_, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)

		got, err := store.GetCollection(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, createConfig.HNSW, got.Config.HNSW)
		assert.Equal(t, createConfig.Runtime, got.Config.Runtime)
		require.NotNil(t, got.Config.EmbeddingFunction)
		assert.Equal(t, local.GetConfig(), got.Config.EmbeddingFunction.GetConfig())

		_, err = store.GetCollection(ctx, "missing")
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})

	t.Run("Should merge updated settings into metadata", func(t *testing.T) {
		backend := newFakeChroma()
		store := newChromaCollections(backend, registry)
		_, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)

		updated, err := store.UpdateCollection(ctx, "docs", collection.NewUpdateCollectionConfig().
			WithHNSW(collection.HNSWOptions{EfSearch: collection.Int(64)}).
			Build())
		require.NoError(t, err)
		assert.Equal(t, 64, updated.Config.HNSW.EfSearch)
		assert.Equal(t, 32, updated.Config.HNSW.MaxNeighbors)
		assert.Equal(t, 64, backend.metadata["docs"][collection.MetaSearchEf])
		assert.Equal(t, "cosine", backend.metadata["docs"][collection.MetaSpace])
		assert.Contains(t, backend.metadata["docs"], collection.MetaEmbeddingFunction)
	})

	t.Run("Should only write the keys an update staged", func(t *testing.T) {
		backend := newFakeChroma()
		store := newChromaCollections(backend, registry)
		_, err := store.CreateCollection(ctx, "docs", collection.NewCreateCollectionConfig().
			WithRuntime(collection.RuntimeOptions{NumThreads: collection.Int(8)}).
			Build())
		require.NoError(t, err)

		updated, err := store.UpdateCollection(ctx, "docs", collection.NewUpdateCollectionConfig().
			WithHNSW(collection.HNSWOptions{EfSearch: collection.Int(50)}).
			Build())
		require.NoError(t, err)
		assert.Equal(t, 8, updated.Config.Runtime.NumThreads)
		assert.Equal(t, 50, backend.metadata["docs"][collection.MetaSearchEf])

		got, err := store.GetCollection(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 8, got.Config.Runtime.NumThreads)
		assert.Equal(t, 50, got.Config.HNSW.EfSearch)
	})

	t.Run("Should refuse an incompatible embedding function", func(t *testing.T) {
		backend := newFakeChroma()
		store := newChromaCollections(backend, registry)
		_, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)

		_, err = store.UpdateCollection(ctx, "docs", collection.NewUpdateCollectionConfig().
			WithEmbeddingFunction(cohere("large", "")).
			Build())
		assert.ErrorIs(t, err, embeddings.ErrIncompatibleEmbeddingFunction)
		assert.Equal(t, 0, backend.modified)
	})

	t.Run("Should query with the collection's embedding function", func(t *testing.T) {
		store := newChromaCollections(newFakeChroma(), registry)
		_, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)

		result, err := store.Query(ctx, "docs", []string{"hello", "world"}, 3, collection.NewQueryCollectionConfig().Build())
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"docs-0-384"}, {"docs-1-384"}}, result.IDs)
	})

	t.Run("Should refuse to query without an embedding function", func(t *testing.T) {
		store := newChromaCollections(newFakeChroma(), registry)
		_, err := store.CreateCollection(ctx, "bare", collection.NewCreateCollectionConfig().Build())
		require.NoError(t, err)

		_, err = store.Query(ctx, "bare", []string{"hello"}, 1, collection.NewQueryCollectionConfig().Build())
		assert.ErrorIs(t, err, embeddings.ErrIncompleteConfiguration)
	})

	t.Run("Should delete collections", func(t *testing.T) {
		store := newChromaCollections(newFakeChroma(), registry)
		_, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)

		require.NoError(t, store.DeleteCollection(ctx, "docs"))
		assert.ErrorIs(t, store.DeleteCollection(ctx, "docs"), ErrCollectionNotFound)
	})
}

func TestChromaEmbedder(t *testing.T) {
	ef := bridge(embeddings.NewDefaultEmbeddingFunction(embeddings.DefaultOptions{}))

	query, err := ef.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, *query.ArrayOfFloat32, 384)

	docs, err := ef.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	assert.Error(t, ef.EmbedRecords(context.Background(), nil, false))
	assert.Nil(t, bridge(nil))
}
