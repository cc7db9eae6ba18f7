package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent identical embedding requests into one upstream call
type Deduplicator struct {
	group singleflight.Group
	mu    sync.Mutex
	stats DedupStats
}

// DedupStats represents deduplication statistics
type DedupStats struct {
	Requests     int64 `json:"requests"`
	Deduplicated int64 `json:"deduplicated"`
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Execute runs fn once for all concurrent callers sharing key. Callers receive
// their own copy of the outer slice; vectors themselves are shared and must not
// be mutated.
func (d *Deduplicator) Execute(ctx context.Context, key CacheKey, fn func(ctx context.Context) ([][]float32, error)) ([][]float32, error) {
	ch := d.group.DoChan(string(key), func() (interface{}, error) {
		return fn(ctx)
	})

	select {
	case <-ctx.Done():
		d.record(false)
		return nil, ctx.Err()
	case res := <-ch:
		d.record(res.Shared)
		if res.Err != nil {
			return nil, res.Err
		}
		vectors := res.Val.([][]float32)
		return append([][]float32(nil), vectors...), nil
	}
}

func (d *Deduplicator) record(shared bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Requests++
	if shared {
		d.stats.Deduplicated++
	}
}

// Stats returns deduplication statistics
func (d *Deduplicator) Stats() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stats
}

// DedupRate returns the share of requests served by another caller's call
func (d *Deduplicator) DedupRate() float64 {
	stats := d.Stats()
	if stats.Requests == 0 {
		return 0.0
	}
	return float64(stats.Deduplicated) / float64(stats.Requests)
}
