package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache кеш снимков в памяти процесса поверх ristretto.
// Вытеснение по суммарному размеру значений (MaxBytes).
type MemoryCache struct {
	cache *ristretto.Cache
	stats stats
}

// NewMemoryCache создаёт кеш в памяти
func NewMemoryCache(config CacheConfig) (*MemoryCache, error) {
	config = config.withDefaults()
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     config.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{cache: c}, nil
}

// Get получает значение по ключу
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&m.stats.requests, 1)
	v, ok := m.cache.Get(key)
	if !ok {
		atomic.AddInt64(&m.stats.misses, 1)
		return nil, ErrCacheMiss
	}
	atomic.AddInt64(&m.stats.hits, 1)
	return v.([]byte), nil
}

// Set сохраняет значение. Запись становится видна после применения буфера ristretto.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !m.cache.SetWithTTL(key, value, int64(len(value)), ttl) {
		return fmt.Errorf("memory cache rejected key %s", key)
	}
	m.cache.Wait()
	return nil
}

// Delete удаляет ключ
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

// Close останавливает фоновые горутины ristretto
func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}

// GetMetrics возвращает метрики кеша
func (m *MemoryCache) GetMetrics() *CacheMetrics {
	return m.stats.snapshot()
}

func (s *stats) snapshot() *CacheMetrics {
	hits := atomic.LoadInt64(&s.hits)
	misses := atomic.LoadInt64(&s.misses)
	metrics := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&s.requests),
		CacheHits:     hits,
		CacheMisses:   misses,
		LastUpdate:    time.Now(),
	}
	if total := hits + misses; total > 0 {
		metrics.HitRatio = float64(hits) / float64(total)
	}
	return metrics
}
