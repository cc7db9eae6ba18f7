package vectordb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/snow-ghost/embedcfg/collection"
)

// MemoryCollections is an in-process stand-in for a vector engine's collection API.
// It keeps effective configurations only; it stores and searches no vectors.
type MemoryCollections struct {
	collections map[string]*Collection
	nextID      int
	mu          sync.RWMutex
	obs         observer
}

var _ Collections = (*MemoryCollections)(nil)

// NewMemoryCollections creates an empty in-memory collection store
func NewMemoryCollections(opts ...Option) *MemoryCollections {
	return &MemoryCollections{
		collections: make(map[string]*Collection),
		obs:         newObserver("memory", opts),
	}
}

// CreateCollection validates cfg and stores it under name
func (m *MemoryCollections) CreateCollection(ctx context.Context, name string, cfg collection.CreateCollectionConfig) (*Collection, error) {
	var created *Collection
	err := m.obs.observe(ctx, "create", name, func(ctx context.Context) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		meta, err := cfg.Metadata()
		if err != nil {
			return err
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if _, exists := m.collections[name]; exists {
			return fmt.Errorf("%w: %s", ErrCollectionExists, name)
		}
		m.nextID++
		c := &Collection{
			ID:       strconv.Itoa(m.nextID),
			Name:     name,
			Config:   cfg,
			Metadata: meta,
		}
		m.collections[name] = c
		created = copyCollection(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateCollection applies the mutable settings of cfg to the stored collection
func (m *MemoryCollections) UpdateCollection(ctx context.Context, name string, cfg collection.UpdateCollectionConfig) (*Collection, error) {
	var updated *Collection
	err := m.obs.observe(ctx, "update", name, func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		c, exists := m.collections[name]
		if !exists {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}

		next, err := applyUpdate(c.Config, cfg)
		if err != nil {
			return err
		}
		meta, err := next.Metadata()
		if err != nil {
			return err
		}

		c.Config = next
		c.Metadata = meta
		updated = copyCollection(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetCollection returns a copy of the stored collection
func (m *MemoryCollections) GetCollection(ctx context.Context, name string) (*Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.collections[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return copyCollection(c), nil
}

// DeleteCollection removes a collection by name
func (m *MemoryCollections) DeleteCollection(ctx context.Context, name string) error {
	return m.obs.observe(ctx, "delete", name, func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if _, exists := m.collections[name]; !exists {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		delete(m.collections, name)
		return nil
	})
}

// Names returns the stored collection names in sorted order
func (m *MemoryCollections) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.collections))
}

// GetStats returns statistics about the store
func (m *MemoryCollections) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_collections": len(m.collections),
		"backend":           m.obs.backend,
	}
}

func copyCollection(c *Collection) *Collection {
	out := *c
	out.Metadata = cloneMetadata(c.Metadata)
	return &out
}
