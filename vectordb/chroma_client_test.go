package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chromaServer serves the collection endpoints of the Chroma REST API
// for a single collection
type chromaServer struct {
	mu       sync.Mutex
	name     string
	metadata map[string]any
	updates  []map[string]any
}

func (s *chromaServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		// below 0.4.15 the client skips the tenant and database checks
		writeJSON(w, http.StatusOK, "0.4.14")
	})
	mux.HandleFunc("POST /api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string         `json:"name"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.name, s.metadata = req.Name, req.Metadata
		writeJSON(w, http.StatusOK, s.collection())
	})
	mux.HandleFunc("GET /api/v1/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if r.PathValue("name") != s.name {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Collection " + r.PathValue("name") + " does not exist."})
			return
		}
		writeJSON(w, http.StatusOK, s.collection())
	})
	mux.HandleFunc("PUT /api/v1/collections/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NewName     string         `json:"new_name"`
			NewMetadata map[string]any `json:"new_metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || r.PathValue("id") != "c1" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad update"})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.name, s.metadata = req.NewName, req.NewMetadata
		s.updates = append(s.updates, req.NewMetadata)
		writeJSON(w, http.StatusOK, s.collection())
	})
	return mux
}

func (s *chromaServer) collection() map[string]any {
	return map[string]any{"id": "c1", "name": s.name, "metadata": s.metadata}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func TestChromaClient(t *testing.T) {
	ctx := context.Background()
	registry := embeddings.NewDefaultRegistry(embeddings.RegistryOptions{})

	newStore := func(t *testing.T) (*ChromaCollections, *chromaServer) {
		t.Helper()
		server := &chromaServer{}
		srv := httptest.NewServer(server.handler())
		t.Cleanup(srv.Close)

		store, err := NewChromaCollections(srv.URL, registry)
		require.NoError(t, err)
		return store, server
	}

	createConfig := collection.NewCreateCollectionConfig().
		WithHNSW(collection.HNSWCreateOptions{DistanceMetric: collection.Metric(embeddings.Cosine), MaxNeighbors: collection.Int(32)}).
		WithRuntime(collection.RuntimeOptions{NumThreads: collection.Int(8)}).
		WithEmbeddingFunction(embeddings.NewDefaultEmbeddingFunction(embeddings.DefaultOptions{})).
		Build()

	t.Run("Should send merged metadata to the collection update endpoint", func(t *testing.T) {
		store, server := newStore(t)
		created, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)
		assert.Equal(t, "c1", created.ID)

		updated, err := store.UpdateCollection(ctx, "docs", collection.NewUpdateCollectionConfig().
			WithHNSW(collection.HNSWOptions{EfSearch: collection.Int(64)}).
			Build())
		require.NoError(t, err)
		assert.Equal(t, 64, updated.Config.HNSW.EfSearch)

		require.Len(t, server.updates, 1)
		sent := server.updates[0]
		assert.Equal(t, float64(64), sent[collection.MetaSearchEf])
		assert.Equal(t, float64(32), sent[collection.MetaMaxNeighbors])
		assert.Equal(t, float64(8), sent[collection.MetaNumThreads])
		assert.Equal(t, "cosine", sent[collection.MetaSpace])
		assert.Contains(t, sent, collection.MetaEmbeddingFunction)
		assert.Equal(t, "docs", server.name)
	})

	t.Run("Should read settings back from the server", func(t *testing.T) {
		store, _ := newStore(t)
		_, err := store.CreateCollection(ctx, "docs", createConfig)
		require.NoError(t, err)
		_, err = store.UpdateCollection(ctx, "docs", collection.NewUpdateCollectionConfig().
			WithRuntime(collection.RuntimeOptions{ResizeFactor: collection.Float(1.5)}).
			Build())
		require.NoError(t, err)

		got, err := store.GetCollection(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ID)
		assert.Equal(t, embeddings.Cosine, got.Config.HNSW.DistanceMetric)
		assert.Equal(t, 32, got.Config.HNSW.MaxNeighbors)
		assert.Equal(t, 8, got.Config.Runtime.NumThreads)
		assert.Equal(t, 1.5, got.Config.Runtime.ResizeFactor)
		require.NotNil(t, got.Config.EmbeddingFunction)
		assert.Equal(t, createConfig.EmbeddingFunction.GetConfig(), got.Config.EmbeddingFunction.GetConfig())
	})

	t.Run("Should report a missing collection", func(t *testing.T) {
		store, _ := newStore(t)
		_, err := store.UpdateCollection(ctx, "missing", collection.NewUpdateCollectionConfig().
			WithHNSW(collection.HNSWOptions{EfSearch: collection.Int(64)}).
			Build())
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})
}
