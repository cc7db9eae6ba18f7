// Package collection builds the index and runtime settings a vector engine
// collection is created, updated and queried with.
package collection

import (
	"github.com/snow-ghost/embedcfg/embeddings"
)

// Defaults applied to any field a builder leaves unset
const (
	DefaultEfSearch       = 100
	DefaultDistanceMetric = embeddings.L2
	DefaultEfConstruction = 80
	DefaultMaxNeighbors   = 50
	DefaultNumThreads     = 4
	DefaultResizeFactor   = 1.3
	DefaultBatchSize      = 100
	DefaultSyncThreshold  = 1000
)

// HNSWConfig holds the HNSW parameters that can change after creation
type HNSWConfig struct {
	EfSearch int `json:"ef_search" yaml:"ef_search" validate:"gte=1"`
}

// HNSWCreateConfig holds the HNSW parameters fixed when a collection is created
type HNSWCreateConfig struct {
	EfSearch       int                       `json:"ef_search" yaml:"ef_search" validate:"gte=1"`
	DistanceMetric embeddings.DistanceMetric `json:"distance_metric" yaml:"distance_metric" validate:"metric"`
	EfConstruction int                       `json:"ef_construction" yaml:"ef_construction" validate:"gte=1"`
	MaxNeighbors   int                       `json:"max_neighbors" yaml:"max_neighbors" validate:"gte=2"`
}

// RuntimeConfig tunes how the engine maintains an index
type RuntimeConfig struct {
	NumThreads    int     `json:"num_threads" yaml:"num_threads" validate:"gte=1"`
	ResizeFactor  float64 `json:"resize_factor" yaml:"resize_factor" validate:"gte=1"`
	BatchSize     int     `json:"batch_size" yaml:"batch_size" validate:"gte=1"`
	SyncThreshold int     `json:"sync_threshold" yaml:"sync_threshold" validate:"gte=0"`
}

// CreateCollectionConfig is everything needed to create a collection
type CreateCollectionConfig struct {
	HNSW              HNSWCreateConfig             `json:"hnsw" yaml:"hnsw"`
	Runtime           RuntimeConfig                `json:"runtime" yaml:"runtime"`
	EmbeddingFunction embeddings.EmbeddingFunction `json:"-" yaml:"-" validate:"-"`
}

// UpdateCollectionConfig holds the settings an existing collection accepts.
// HNSW and Runtime report every field with defaults filled in; ApplyTo only
// changes the fields that were staged.
type UpdateCollectionConfig struct {
	HNSW              HNSWConfig                   `json:"hnsw" yaml:"hnsw"`
	Runtime           RuntimeConfig                `json:"runtime" yaml:"runtime"`
	EmbeddingFunction embeddings.EmbeddingFunction `json:"-" yaml:"-" validate:"-"`

	hnswChanges    HNSWOptions
	runtimeChanges RuntimeOptions
}

// Changes returns the fields the update staged
func (c UpdateCollectionConfig) Changes() (HNSWOptions, RuntimeOptions) {
	return c.hnswChanges, c.runtimeChanges
}

// ApplyTo returns current with the staged fields of c applied. The embedding
// function is replaced only when c carries one.
func (c UpdateCollectionConfig) ApplyTo(current CreateCollectionConfig) CreateCollectionConfig {
	next := current
	if c.hnswChanges.EfSearch != nil {
		next.HNSW.EfSearch = *c.hnswChanges.EfSearch
	}
	next.Runtime = c.runtimeChanges.applyTo(current.Runtime)
	if c.EmbeddingFunction != nil {
		next.EmbeddingFunction = c.EmbeddingFunction
	}
	return next
}

// QueryCollectionConfig holds per-query settings
type QueryCollectionConfig struct {
	HNSW              HNSWConfig                   `json:"hnsw" yaml:"hnsw"`
	EmbeddingFunction embeddings.EmbeddingFunction `json:"-" yaml:"-" validate:"-"`
}

// Int returns a pointer to v, for option structs
func Int(v int) *int { return &v }

// Float returns a pointer to v, for option structs
func Float(v float64) *float64 { return &v }

// Metric returns a pointer to m, for option structs
func Metric(m embeddings.DistanceMetric) *embeddings.DistanceMetric { return &m }

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// pick returns a copy of next when set, else cur
func pick[T any](cur, next *T) *T {
	if next == nil {
		return cur
	}
	v := *next
	return &v
}

// HNSWConfigBuilder stages HNSWConfig fields
type HNSWConfigBuilder struct {
	efSearch *int
}

func NewHNSWConfigBuilder() *HNSWConfigBuilder {
	return &HNSWConfigBuilder{}
}

func (b *HNSWConfigBuilder) WithEfSearch(v int) *HNSWConfigBuilder {
	b.efSearch = &v
	return b
}

func (b *HNSWConfigBuilder) Build() HNSWConfig {
	return HNSWConfig{EfSearch: valueOr(b.efSearch, DefaultEfSearch)}
}

// HNSWCreateConfigBuilder stages HNSWCreateConfig fields
type HNSWCreateConfigBuilder struct {
	efSearch       *int
	distanceMetric *embeddings.DistanceMetric
	efConstruction *int
	maxNeighbors   *int
}

func NewHNSWCreateConfigBuilder() *HNSWCreateConfigBuilder {
	return &HNSWCreateConfigBuilder{}
}

func (b *HNSWCreateConfigBuilder) WithEfSearch(v int) *HNSWCreateConfigBuilder {
	b.efSearch = &v
	return b
}

func (b *HNSWCreateConfigBuilder) WithDistanceMetric(m embeddings.DistanceMetric) *HNSWCreateConfigBuilder {
	b.distanceMetric = &m
	return b
}

func (b *HNSWCreateConfigBuilder) WithEfConstruction(v int) *HNSWCreateConfigBuilder {
	b.efConstruction = &v
	return b
}

func (b *HNSWCreateConfigBuilder) WithMaxNeighbors(v int) *HNSWCreateConfigBuilder {
	b.maxNeighbors = &v
	return b
}

func (b *HNSWCreateConfigBuilder) Build() HNSWCreateConfig {
	return HNSWCreateConfig{
		EfSearch:       valueOr(b.efSearch, DefaultEfSearch),
		DistanceMetric: valueOr(b.distanceMetric, DefaultDistanceMetric),
		EfConstruction: valueOr(b.efConstruction, DefaultEfConstruction),
		MaxNeighbors:   valueOr(b.maxNeighbors, DefaultMaxNeighbors),
	}
}

// RuntimeConfigBuilder stages RuntimeConfig fields
type RuntimeConfigBuilder struct {
	numThreads    *int
	resizeFactor  *float64
	batchSize     *int
	syncThreshold *int
}

func NewRuntimeConfigBuilder() *RuntimeConfigBuilder {
	return &RuntimeConfigBuilder{}
}

func (b *RuntimeConfigBuilder) WithNumThreads(v int) *RuntimeConfigBuilder {
	b.numThreads = &v
	return b
}

func (b *RuntimeConfigBuilder) WithResizeFactor(v float64) *RuntimeConfigBuilder {
	b.resizeFactor = &v
	return b
}

func (b *RuntimeConfigBuilder) WithBatchSize(v int) *RuntimeConfigBuilder {
	b.batchSize = &v
	return b
}

func (b *RuntimeConfigBuilder) WithSyncThreshold(v int) *RuntimeConfigBuilder {
	b.syncThreshold = &v
	return b
}

func (b *RuntimeConfigBuilder) Build() RuntimeConfig {
	return RuntimeConfig{
		NumThreads:    valueOr(b.numThreads, DefaultNumThreads),
		ResizeFactor:  valueOr(b.resizeFactor, DefaultResizeFactor),
		BatchSize:     valueOr(b.batchSize, DefaultBatchSize),
		SyncThreshold: valueOr(b.syncThreshold, DefaultSyncThreshold),
	}
}

// HNSWOptions is a partial update of HNSWConfig. Nil fields are left as staged.
type HNSWOptions struct {
	EfSearch *int `json:"ef_search,omitempty" yaml:"ef_search,omitempty"`
}

func (o HNSWOptions) merge(next HNSWOptions) HNSWOptions {
	return HNSWOptions{EfSearch: pick(o.EfSearch, next.EfSearch)}
}

func (o HNSWOptions) apply(b *HNSWConfigBuilder) {
	if o.EfSearch != nil {
		b.WithEfSearch(*o.EfSearch)
	}
}

// HNSWCreateOptions is a partial update of HNSWCreateConfig
type HNSWCreateOptions struct {
	EfSearch       *int
	DistanceMetric *embeddings.DistanceMetric
	EfConstruction *int
	MaxNeighbors   *int
}

func (o HNSWCreateOptions) apply(b *HNSWCreateConfigBuilder) {
	if o.EfSearch != nil {
		b.WithEfSearch(*o.EfSearch)
	}
	if o.DistanceMetric != nil {
		b.WithDistanceMetric(*o.DistanceMetric)
	}
	if o.EfConstruction != nil {
		b.WithEfConstruction(*o.EfConstruction)
	}
	if o.MaxNeighbors != nil {
		b.WithMaxNeighbors(*o.MaxNeighbors)
	}
}

// RuntimeOptions is a partial update of RuntimeConfig
type RuntimeOptions struct {
	NumThreads    *int     `json:"num_threads,omitempty" yaml:"num_threads,omitempty"`
	ResizeFactor  *float64 `json:"resize_factor,omitempty" yaml:"resize_factor,omitempty"`
	BatchSize     *int     `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	SyncThreshold *int     `json:"sync_threshold,omitempty" yaml:"sync_threshold,omitempty"`
}

func (o RuntimeOptions) merge(next RuntimeOptions) RuntimeOptions {
	return RuntimeOptions{
		NumThreads:    pick(o.NumThreads, next.NumThreads),
		ResizeFactor:  pick(o.ResizeFactor, next.ResizeFactor),
		BatchSize:     pick(o.BatchSize, next.BatchSize),
		SyncThreshold: pick(o.SyncThreshold, next.SyncThreshold),
	}
}

func (o RuntimeOptions) applyTo(r RuntimeConfig) RuntimeConfig {
	return RuntimeConfig{
		NumThreads:    valueOr(o.NumThreads, r.NumThreads),
		ResizeFactor:  valueOr(o.ResizeFactor, r.ResizeFactor),
		BatchSize:     valueOr(o.BatchSize, r.BatchSize),
		SyncThreshold: valueOr(o.SyncThreshold, r.SyncThreshold),
	}
}

func (o RuntimeOptions) apply(b *RuntimeConfigBuilder) {
	if o.NumThreads != nil {
		b.WithNumThreads(*o.NumThreads)
	}
	if o.ResizeFactor != nil {
		b.WithResizeFactor(*o.ResizeFactor)
	}
	if o.BatchSize != nil {
		b.WithBatchSize(*o.BatchSize)
	}
	if o.SyncThreshold != nil {
		b.WithSyncThreshold(*o.SyncThreshold)
	}
}

// CreateCollectionConfigBuilder assembles a CreateCollectionConfig
type CreateCollectionConfigBuilder struct {
	hnsw              *HNSWCreateConfigBuilder
	runtime           *RuntimeConfigBuilder
	embeddingFunction embeddings.EmbeddingFunction
}

// NewCreateCollectionConfig starts a create config with every field at its default
func NewCreateCollectionConfig() *CreateCollectionConfigBuilder {
	return &CreateCollectionConfigBuilder{
		hnsw:    NewHNSWCreateConfigBuilder(),
		runtime: NewRuntimeConfigBuilder(),
	}
}

// WithHNSW stages the non-nil fields of opts. Repeated calls merge.
func (b *CreateCollectionConfigBuilder) WithHNSW(opts HNSWCreateOptions) *CreateCollectionConfigBuilder {
	opts.apply(b.hnsw)
	return b
}

func (b *CreateCollectionConfigBuilder) WithRuntime(opts RuntimeOptions) *CreateCollectionConfigBuilder {
	opts.apply(b.runtime)
	return b
}

func (b *CreateCollectionConfigBuilder) WithEmbeddingFunction(ef embeddings.EmbeddingFunction) *CreateCollectionConfigBuilder {
	b.embeddingFunction = ef
	return b
}

func (b *CreateCollectionConfigBuilder) Build() CreateCollectionConfig {
	return CreateCollectionConfig{
		HNSW:              b.hnsw.Build(),
		Runtime:           b.runtime.Build(),
		EmbeddingFunction: b.embeddingFunction,
	}
}

// UpdateCollectionConfigBuilder assembles an UpdateCollectionConfig. Unlike the
// create builder it remembers which fields were staged.
type UpdateCollectionConfigBuilder struct {
	hnsw              HNSWOptions
	runtime           RuntimeOptions
	embeddingFunction embeddings.EmbeddingFunction
}

func NewUpdateCollectionConfig() *UpdateCollectionConfigBuilder {
	return &UpdateCollectionConfigBuilder{}
}

func (b *UpdateCollectionConfigBuilder) WithHNSW(opts HNSWOptions) *UpdateCollectionConfigBuilder {
	b.hnsw = b.hnsw.merge(opts)
	return b
}

func (b *UpdateCollectionConfigBuilder) WithRuntime(opts RuntimeOptions) *UpdateCollectionConfigBuilder {
	b.runtime = b.runtime.merge(opts)
	return b
}

func (b *UpdateCollectionConfigBuilder) WithEmbeddingFunction(ef embeddings.EmbeddingFunction) *UpdateCollectionConfigBuilder {
	b.embeddingFunction = ef
	return b
}

func (b *UpdateCollectionConfigBuilder) Build() UpdateCollectionConfig {
	hnsw := NewHNSWConfigBuilder()
	b.hnsw.apply(hnsw)
	runtime := NewRuntimeConfigBuilder()
	b.runtime.apply(runtime)

	return UpdateCollectionConfig{
		HNSW:              hnsw.Build(),
		Runtime:           runtime.Build(),
		EmbeddingFunction: b.embeddingFunction,
		hnswChanges:       b.hnsw,
		runtimeChanges:    b.runtime,
	}
}

// QueryCollectionConfigBuilder assembles a QueryCollectionConfig
type QueryCollectionConfigBuilder struct {
	hnsw              *HNSWConfigBuilder
	embeddingFunction embeddings.EmbeddingFunction
}

func NewQueryCollectionConfig() *QueryCollectionConfigBuilder {
	return &QueryCollectionConfigBuilder{hnsw: NewHNSWConfigBuilder()}
}

func (b *QueryCollectionConfigBuilder) WithHNSW(opts HNSWOptions) *QueryCollectionConfigBuilder {
	opts.apply(b.hnsw)
	return b
}

func (b *QueryCollectionConfigBuilder) WithEmbeddingFunction(ef embeddings.EmbeddingFunction) *QueryCollectionConfigBuilder {
	b.embeddingFunction = ef
	return b
}

func (b *QueryCollectionConfigBuilder) Build() QueryCollectionConfig {
	return QueryCollectionConfig{
		HNSW:              b.hnsw.Build(),
		EmbeddingFunction: b.embeddingFunction,
	}
}
