package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CacheKey identifies one cached vector
type CacheKey string

// Key derives the cache key for one input item embedded by the function whose
// configuration fingerprint is given. Identical items under identical
// configurations share a key.
func Key(fingerprint string, item []byte) CacheKey {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(item)
	return CacheKey(hex.EncodeToString(h.Sum(nil)))
}

// VectorCache stores embeddings by key. Implementations are safe for concurrent use.
type VectorCache interface {
	Get(ctx context.Context, key CacheKey) ([]float32, bool, error)
	Set(ctx context.Context, key CacheKey, vector []float32, ttl time.Duration) error
	Delete(ctx context.Context, key CacheKey) error
}

// CacheEntry is a cached vector with its bookkeeping
type CacheEntry struct {
	Vector       []float32 `json:"vector"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// IsExpired checks if the cache entry is expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Touch updates the access time and count
func (e *CacheEntry) Touch() {
	e.LastAccessed = time.Now()
	e.AccessCount++
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MaxSize         int           `json:"max_size" yaml:"max_size"`
	DefaultTTL      time.Duration `json:"default_ttl" yaml:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxSize:         10000,
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
}

// CalculateHitRate calculates the hit rate
func (s *CacheStats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}
