package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/snow-ghost/embedcfg/embeddings"
	"gopkg.in/yaml.v3"
)

// Collection metadata keys understood by the vector engine
const (
	MetaSpace             = "hnsw:space"
	MetaConstructionEf    = "hnsw:construction_ef"
	MetaSearchEf          = "hnsw:search_ef"
	MetaMaxNeighbors      = "hnsw:M"
	MetaNumThreads        = "hnsw:num_threads"
	MetaResizeFactor      = "hnsw:resize_factor"
	MetaBatchSize         = "hnsw:batch_size"
	MetaSyncThreshold     = "hnsw:sync_threshold"
	MetaEmbeddingFunction = "embedding_function"
)

// CreateDocument is the serialized form of a CreateCollectionConfig
type CreateDocument struct {
	HNSW              HNSWCreateConfig         `json:"hnsw" yaml:"hnsw"`
	Runtime           RuntimeConfig            `json:"runtime" yaml:"runtime"`
	EmbeddingFunction *embeddings.StoredConfig `json:"embedding_function,omitempty" yaml:"embedding_function,omitempty"`
}

// UpdateDocument is the serialized form of an UpdateCollectionConfig. Only the
// fields present are applied to the collection.
type UpdateDocument struct {
	HNSW              HNSWOptions              `json:"hnsw" yaml:"hnsw,omitempty"`
	Runtime           RuntimeOptions           `json:"runtime" yaml:"runtime,omitempty"`
	EmbeddingFunction *embeddings.StoredConfig `json:"embedding_function,omitempty" yaml:"embedding_function,omitempty"`
}

// QueryDocument is the serialized form of a QueryCollectionConfig
type QueryDocument struct {
	HNSW              HNSWConfig               `json:"hnsw" yaml:"hnsw"`
	EmbeddingFunction *embeddings.StoredConfig `json:"embedding_function,omitempty" yaml:"embedding_function,omitempty"`
}

func storedOf(ef embeddings.EmbeddingFunction) *embeddings.StoredConfig {
	if ef == nil {
		return nil
	}
	stored := embeddings.Store(ef)
	return &stored
}

func buildStored(stored *embeddings.StoredConfig, registry *embeddings.Registry) (embeddings.EmbeddingFunction, error) {
	if stored == nil {
		return nil, nil
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: a registry is needed to rebuild embedding function %q", ErrInvalidConfig, stored.Name)
	}
	return registry.Build(*stored)
}

// Document returns the serialized form of c
func (c CreateCollectionConfig) Document() CreateDocument {
	return CreateDocument{HNSW: c.HNSW, Runtime: c.Runtime, EmbeddingFunction: storedOf(c.EmbeddingFunction)}
}

// Resolve rebuilds the embedding function through registry and validates the result
func (d CreateDocument) Resolve(registry *embeddings.Registry) (CreateCollectionConfig, error) {
	ef, err := buildStored(d.EmbeddingFunction, registry)
	if err != nil {
		return CreateCollectionConfig{}, err
	}
	cfg := CreateCollectionConfig{HNSW: d.HNSW, Runtime: d.Runtime, EmbeddingFunction: ef}
	if err := cfg.Validate(); err != nil {
		return CreateCollectionConfig{}, err
	}
	return cfg, nil
}

func (c UpdateCollectionConfig) Document() UpdateDocument {
	return UpdateDocument{HNSW: c.hnswChanges, Runtime: c.runtimeChanges, EmbeddingFunction: storedOf(c.EmbeddingFunction)}
}

func (d UpdateDocument) Resolve(registry *embeddings.Registry) (UpdateCollectionConfig, error) {
	ef, err := buildStored(d.EmbeddingFunction, registry)
	if err != nil {
		return UpdateCollectionConfig{}, err
	}
	cfg := NewUpdateCollectionConfig().
		WithHNSW(d.HNSW).
		WithRuntime(d.Runtime).
		WithEmbeddingFunction(ef).
		Build()
	if err := cfg.Validate(); err != nil {
		return UpdateCollectionConfig{}, err
	}
	return cfg, nil
}

func (c QueryCollectionConfig) Document() QueryDocument {
	return QueryDocument{HNSW: c.HNSW, EmbeddingFunction: storedOf(c.EmbeddingFunction)}
}

func (d QueryDocument) Resolve(registry *embeddings.Registry) (QueryCollectionConfig, error) {
	ef, err := buildStored(d.EmbeddingFunction, registry)
	if err != nil {
		return QueryCollectionConfig{}, err
	}
	cfg := QueryCollectionConfig{HNSW: d.HNSW, EmbeddingFunction: ef}
	if err := cfg.Validate(); err != nil {
		return QueryCollectionConfig{}, err
	}
	return cfg, nil
}

// Fields missing from a document keep their defaults
func defaultCreateDocument() CreateDocument {
	return NewCreateCollectionConfig().Build().Document()
}

func defaultQueryDocument() QueryDocument {
	return NewQueryCollectionConfig().Build().Document()
}

// EncodeCreate serializes cfg as JSON
func EncodeCreate(cfg CreateCollectionConfig) ([]byte, error) {
	data, err := json.Marshal(cfg.Document())
	if err != nil {
		return nil, fmt.Errorf("failed to encode create config: %w", err)
	}
	return data, nil
}

// DecodeCreate parses JSON produced by EncodeCreate. The embedding function, if
// any, is rebuilt from registry.
func DecodeCreate(data []byte, registry *embeddings.Registry) (CreateCollectionConfig, error) {
	doc := defaultCreateDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return CreateCollectionConfig{}, fmt.Errorf("failed to decode create config: %w", err)
	}
	return doc.Resolve(registry)
}

// ParseCreateYAML parses a YAML create config
func ParseCreateYAML(data []byte, registry *embeddings.Registry) (CreateCollectionConfig, error) {
	doc := defaultCreateDocument()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return CreateCollectionConfig{}, fmt.Errorf("failed to parse create config: %w", err)
	}
	return doc.Resolve(registry)
}

// LoadCreateYAML reads a YAML create config from path
func LoadCreateYAML(path string, registry *embeddings.Registry) (CreateCollectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CreateCollectionConfig{}, fmt.Errorf("failed to read create config %s: %w", path, err)
	}
	return ParseCreateYAML(data, registry)
}

func EncodeUpdate(cfg UpdateCollectionConfig) ([]byte, error) {
	data, err := json.Marshal(cfg.Document())
	if err != nil {
		return nil, fmt.Errorf("failed to encode update config: %w", err)
	}
	return data, nil
}

func DecodeUpdate(data []byte, registry *embeddings.Registry) (UpdateCollectionConfig, error) {
	var doc UpdateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return UpdateCollectionConfig{}, fmt.Errorf("failed to decode update config: %w", err)
	}
	return doc.Resolve(registry)
}

func ParseUpdateYAML(data []byte, registry *embeddings.Registry) (UpdateCollectionConfig, error) {
	var doc UpdateDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return UpdateCollectionConfig{}, fmt.Errorf("failed to parse update config: %w", err)
	}
	return doc.Resolve(registry)
}

func LoadUpdateYAML(path string, registry *embeddings.Registry) (UpdateCollectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UpdateCollectionConfig{}, fmt.Errorf("failed to read update config %s: %w", path, err)
	}
	return ParseUpdateYAML(data, registry)
}

func EncodeQuery(cfg QueryCollectionConfig) ([]byte, error) {
	data, err := json.Marshal(cfg.Document())
	if err != nil {
		return nil, fmt.Errorf("failed to encode query config: %w", err)
	}
	return data, nil
}

func DecodeQuery(data []byte, registry *embeddings.Registry) (QueryCollectionConfig, error) {
	doc := defaultQueryDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return QueryCollectionConfig{}, fmt.Errorf("failed to decode query config: %w", err)
	}
	return doc.Resolve(registry)
}

func ParseQueryYAML(data []byte, registry *embeddings.Registry) (QueryCollectionConfig, error) {
	doc := defaultQueryDocument()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return QueryCollectionConfig{}, fmt.Errorf("failed to parse query config: %w", err)
	}
	return doc.Resolve(registry)
}

func LoadQueryYAML(path string, registry *embeddings.Registry) (QueryCollectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QueryCollectionConfig{}, fmt.Errorf("failed to read query config %s: %w", path, err)
	}
	return ParseQueryYAML(data, registry)
}

// Space returns the engine's name for metric m
func Space(m embeddings.DistanceMetric) string {
	if m == embeddings.InnerProduct {
		return "ip"
	}
	return string(m)
}

// ParseSpace is the inverse of Space
func ParseSpace(s string) (embeddings.DistanceMetric, error) {
	if s == "ip" {
		return embeddings.InnerProduct, nil
	}
	return embeddings.ParseDistanceMetric(s)
}

func (r RuntimeConfig) metadata(meta map[string]any) {
	meta[MetaNumThreads] = r.NumThreads
	meta[MetaResizeFactor] = r.ResizeFactor
	meta[MetaBatchSize] = r.BatchSize
	meta[MetaSyncThreshold] = r.SyncThreshold
}

func (o RuntimeOptions) metadata(meta map[string]any) {
	if o.NumThreads != nil {
		meta[MetaNumThreads] = *o.NumThreads
	}
	if o.ResizeFactor != nil {
		meta[MetaResizeFactor] = *o.ResizeFactor
	}
	if o.BatchSize != nil {
		meta[MetaBatchSize] = *o.BatchSize
	}
	if o.SyncThreshold != nil {
		meta[MetaSyncThreshold] = *o.SyncThreshold
	}
}

func embeddingMetadata(meta map[string]any, ef embeddings.EmbeddingFunction) error {
	if ef == nil {
		return nil
	}
	data, err := embeddings.MarshalStoredJSON(ef)
	if err != nil {
		return err
	}
	meta[MetaEmbeddingFunction] = string(data)
	return nil
}

// Metadata maps c onto the engine's collection metadata keys
func (c CreateCollectionConfig) Metadata() (map[string]any, error) {
	meta := map[string]any{
		MetaSpace:          Space(c.HNSW.DistanceMetric),
		MetaConstructionEf: c.HNSW.EfConstruction,
		MetaSearchEf:       c.HNSW.EfSearch,
		MetaMaxNeighbors:   c.HNSW.MaxNeighbors,
	}
	c.Runtime.metadata(meta)
	if err := embeddingMetadata(meta, c.EmbeddingFunction); err != nil {
		return nil, err
	}
	return meta, nil
}

// Metadata maps the staged fields of c onto the metadata keys an existing
// collection accepts
func (c UpdateCollectionConfig) Metadata() (map[string]any, error) {
	meta := make(map[string]any)
	if c.hnswChanges.EfSearch != nil {
		meta[MetaSearchEf] = *c.hnswChanges.EfSearch
	}
	c.runtimeChanges.metadata(meta)
	if err := embeddingMetadata(meta, c.EmbeddingFunction); err != nil {
		return nil, err
	}
	return meta, nil
}

// FromMetadata rebuilds a create config from collection metadata written by
// Metadata. Missing keys keep their defaults. Engines that round-trip metadata
// through JSON return numbers as float64, which is accepted for integer keys.
func FromMetadata(meta map[string]any, registry *embeddings.Registry) (CreateCollectionConfig, error) {
	doc := defaultCreateDocument()
	values := embeddings.Config(meta)

	if values.Has(MetaSpace) {
		space, err := values.String(MetaSpace)
		if err != nil {
			return CreateCollectionConfig{}, err
		}
		if doc.HNSW.DistanceMetric, err = ParseSpace(space); err != nil {
			return CreateCollectionConfig{}, err
		}
	}

	for key, field := range map[string]*int{
		MetaConstructionEf: &doc.HNSW.EfConstruction,
		MetaSearchEf:       &doc.HNSW.EfSearch,
		MetaMaxNeighbors:   &doc.HNSW.MaxNeighbors,
		MetaNumThreads:     &doc.Runtime.NumThreads,
		MetaBatchSize:      &doc.Runtime.BatchSize,
		MetaSyncThreshold:  &doc.Runtime.SyncThreshold,
	} {
		if !values.Has(key) {
			continue
		}
		v, err := values.Int(key)
		if err != nil {
			return CreateCollectionConfig{}, err
		}
		*field = v
	}

	if raw, ok := meta[MetaResizeFactor]; ok {
		f, ok := toFloat(raw)
		if !ok {
			return CreateCollectionConfig{}, fmt.Errorf("%w: %s is %T, not a number", ErrInvalidConfig, MetaResizeFactor, raw)
		}
		doc.Runtime.ResizeFactor = f
	}

	if values.Has(MetaEmbeddingFunction) {
		raw, err := values.String(MetaEmbeddingFunction)
		if err != nil {
			return CreateCollectionConfig{}, err
		}
		stored, err := embeddings.UnmarshalStoredJSON([]byte(raw))
		if err != nil {
			return CreateCollectionConfig{}, err
		}
		doc.EmbeddingFunction = &stored
	}

	return doc.Resolve(registry)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		// shortest decimal form, so 1.2 stays 1.2 rather than 1.2000000476837158
		f, err := strconv.ParseFloat(strconv.FormatFloat(float64(n), 'g', -1, 32), 64)
		return f, err == nil
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
