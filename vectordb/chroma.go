package vectordb

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	chroma "github.com/amikos-tech/chroma-go"
	openapi "github.com/amikos-tech/chroma-go/swagger"
	"github.com/amikos-tech/chroma-go/types"
	"github.com/snow-ghost/embedcfg/collection"
	"github.com/snow-ghost/embedcfg/embeddings"
)

// chromaBackend is the part of the Chroma API the adapter uses
type chromaBackend interface {
	create(ctx context.Context, name string, metadata map[string]any, ef types.EmbeddingFunction, space types.DistanceFunction) (id string, err error)
	get(ctx context.Context, name string) (id string, metadata map[string]any, err error)
	modify(ctx context.Context, name string, metadata map[string]any) error
	delete(ctx context.Context, name string) error
	query(ctx context.Context, name string, ef types.EmbeddingFunction, texts []string, n int32) (*QueryResult, error)
}

// QueryResult holds the nearest neighbors the engine returned, one row per query text
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Distances [][]float32
}

// ChromaCollections manages collections in a Chroma server. Collection settings
// are written as collection metadata and read back through FromMetadata, so the
// registry must know every provider a stored collection refers to.
type ChromaCollections struct {
	backend  chromaBackend
	registry *embeddings.Registry
	obs      observer
}

var _ Collections = (*ChromaCollections)(nil)

// NewChromaCollections connects to the Chroma server at addr
func NewChromaCollections(addr string, registry *embeddings.Registry, opts ...Option) (*ChromaCollections, error) {
	ch, err := chroma.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return newChromaCollections(&chromaClient{ch: ch}, registry, opts...), nil
}

func newChromaCollections(backend chromaBackend, registry *embeddings.Registry, opts ...Option) *ChromaCollections {
	return &ChromaCollections{
		backend:  backend,
		registry: registry,
		obs:      newObserver("chroma", opts),
	}
}

func (c *ChromaCollections) CreateCollection(ctx context.Context, name string, cfg collection.CreateCollectionConfig) (*Collection, error) {
	var created *Collection
	err := c.obs.observe(ctx, "create", name, func(ctx context.Context) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		meta, err := cfg.Metadata()
		if err != nil {
			return err
		}

		id, err := c.backend.create(ctx, name, meta, bridge(cfg.EmbeddingFunction), types.DistanceFunction(collection.Space(cfg.HNSW.DistanceMetric)))
		if err != nil {
			return mapChromaError(name, err)
		}
		created = &Collection{ID: id, Name: name, Config: cfg, Metadata: meta}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *ChromaCollections) UpdateCollection(ctx context.Context, name string, cfg collection.UpdateCollectionConfig) (*Collection, error) {
	var updated *Collection
	err := c.obs.observe(ctx, "update", name, func(ctx context.Context) error {
		current, err := c.load(ctx, name)
		if err != nil {
			return err
		}

		next, err := applyUpdate(current.Config, cfg)
		if err != nil {
			return err
		}
		changes, err := cfg.Metadata()
		if err != nil {
			return err
		}

		meta := cloneMetadata(current.Metadata)
		if meta == nil {
			meta = make(map[string]any, len(changes))
		}
		maps.Copy(meta, changes)
		if err := c.backend.modify(ctx, name, meta); err != nil {
			return mapChromaError(name, err)
		}

		updated = &Collection{ID: current.ID, Name: name, Config: next, Metadata: meta}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *ChromaCollections) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return c.load(ctx, name)
}

func (c *ChromaCollections) DeleteCollection(ctx context.Context, name string) error {
	return c.obs.observe(ctx, "delete", name, func(ctx context.Context) error {
		return mapChromaError(name, c.backend.delete(ctx, name))
	})
}

// Query embeds texts with the collection's embedding function, or the one in cfg
// when set, and returns the n nearest records per text
func (c *ChromaCollections) Query(ctx context.Context, name string, texts []string, n int, cfg collection.QueryCollectionConfig) (*QueryResult, error) {
	var result *QueryResult
	err := c.obs.observe(ctx, "query", name, func(ctx context.Context) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ef := cfg.EmbeddingFunction
		if ef == nil {
			current, err := c.load(ctx, name)
			if err != nil {
				return err
			}
			ef = current.Config.EmbeddingFunction
		}
		if ef == nil {
			return fmt.Errorf("%w: collection %s has no embedding function", embeddings.ErrIncompleteConfiguration, name)
		}

		var err error
		result, err = c.backend.query(ctx, name, bridge(ef), texts, int32(n))
		return mapChromaError(name, err)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ChromaCollections) load(ctx context.Context, name string) (*Collection, error) {
	id, meta, err := c.backend.get(ctx, name)
	if err != nil {
		return nil, mapChromaError(name, err)
	}
	cfg, err := collection.FromMetadata(meta, c.registry)
	if err != nil {
		return nil, fmt.Errorf("collection %s has unusable metadata: %w", name, err)
	}
	return &Collection{ID: id, Name: name, Config: cfg, Metadata: meta}, nil
}

// mapChromaError translates server messages into the package's sentinel errors
func mapChromaError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCollectionExists) || errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	msg := err.Error()
	var apiErr *openapi.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		// the status line alone does not say what went wrong
		msg += " " + string(apiErr.Body())
	}
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %s: %v", ErrCollectionExists, name, err)
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %s: %v", ErrCollectionNotFound, name, err)
	}
	return fmt.Errorf("chroma: %w", err)
}

// chromaClient implements chromaBackend with the chroma-go client
type chromaClient struct {
	ch *chroma.Client
}

func (c *chromaClient) create(ctx context.Context, name string, metadata map[string]any, ef types.EmbeddingFunction, space types.DistanceFunction) (string, error) {
	const createOrGet = false
	coll, err := c.ch.CreateCollection(ctx, name, metadata, createOrGet, ef, space)
	if err != nil {
		return "", err
	}
	return coll.ID, nil
}

func (c *chromaClient) get(ctx context.Context, name string) (string, map[string]any, error) {
	coll, err := c.ch.GetCollection(ctx, name, nil)
	if err != nil {
		return "", nil, err
	}
	return coll.ID, coll.Metadata, nil
}

func (c *chromaClient) modify(ctx context.Context, name string, metadata map[string]any) error {
	coll, err := c.ch.GetCollection(ctx, name, nil)
	if err != nil {
		return err
	}
	_, err = coll.Update(ctx, name, &metadata)
	return err
}

func (c *chromaClient) delete(ctx context.Context, name string) error {
	_, err := c.ch.DeleteCollection(ctx, name)
	return err
}

func (c *chromaClient) query(ctx context.Context, name string, ef types.EmbeddingFunction, texts []string, n int32) (*QueryResult, error) {
	coll, err := c.ch.GetCollection(ctx, name, ef)
	if err != nil {
		return nil, err
	}
	res, err := coll.Query(ctx, texts, n, nil, nil, []types.QueryEnum{types.IDocuments, types.IDistances})
	if err != nil {
		return nil, err
	}
	return &QueryResult{IDs: res.Ids, Documents: res.Documents, Distances: res.Distances}, nil
}

// chromaEmbedder adapts an EmbeddingFunction to chroma-go's interface
type chromaEmbedder struct {
	ef embeddings.EmbeddingFunction
}

var _ types.EmbeddingFunction = (*chromaEmbedder)(nil)

func bridge(ef embeddings.EmbeddingFunction) types.EmbeddingFunction {
	if ef == nil {
		return nil
	}
	return &chromaEmbedder{ef: ef}
}

func (e *chromaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]*types.Embedding, error) {
	vectors, err := e.ef.GenerateEmbeddings(ctx, embeddings.Documents(texts...))
	if err != nil {
		return nil, err
	}
	out := make([]*types.Embedding, len(vectors))
	for i, v := range vectors {
		v32 := []float32(v)
		out[i] = &types.Embedding{ArrayOfFloat32: &v32}
	}
	return out, nil
}

func (e *chromaEmbedder) EmbedQuery(ctx context.Context, text string) (*types.Embedding, error) {
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedRecords is not used by the adapter: records are added with precomputed
// vectors or plain documents
func (e *chromaEmbedder) EmbedRecords(ctx context.Context, records []*types.Record, force bool) error {
	return fmt.Errorf("%s: embedding chroma records is not supported", e.ef.Name())
}
