// Package cache держит горячие снимки сеток перед основным хранилищем.
//
// Использование:
//
//	hot, _ := cache.NewMemoryCache(cfg)
//	repo := cache.NewCachedGridRepo(cold, hot, nil, cfg)
//	data, err := repo.Load(ctx, shipID)
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache определяет интерфейс горячего кеша снимков.
type Cache interface {
	// Get получает значение по ключу из кеша.
	// Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с указанным TTL.
	// TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ из кеша.
	Delete(ctx context.Context, key string) error

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// CacheInvalidator управляет инвалидацией кеша через Pub/Sub.
type CacheInvalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации.
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations подписывается на уведомления об инвалидации.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	// Close закрывает соединение.
	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	// Write-Behind метрики
	PendingWrites int64 `json:"pending_writes"`

	// Последнее обновление
	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию кеша снимков.
type CacheConfig struct {
	Backend string `yaml:"backend"` // memory | redis

	// Redis конфигурация
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`

	// Память
	MaxBytes int64 `yaml:"max_bytes"`

	// TTL снимка в кеше
	TTL time.Duration `yaml:"ttl"`

	// Write-Behind конфигурация
	WriteBehindEnabled   bool          `yaml:"write_behind_enabled"`
	WriteBehindInterval  time.Duration `yaml:"write_behind_interval"`
	WriteBehindBatchSize int           `yaml:"write_behind_batch_size"`
}

// withDefaults возвращает копию конфигурации с заполненными значениями по умолчанию
func (c CacheConfig) withDefaults() CacheConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "shipgrid:cache:"
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 64 << 20
	}
	if c.TTL == 0 {
		c.TTL = 10 * time.Minute
	}
	if c.WriteBehindInterval == 0 {
		c.WriteBehindInterval = 5 * time.Second
	}
	if c.WriteBehindBatchSize == 0 {
		c.WriteBehindBatchSize = 100
	}
	return c
}

// ErrCacheMiss ключ отсутствует в кеше
var ErrCacheMiss = errors.New("cache: miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// stats общие счётчики попаданий для реализаций Cache
type stats struct {
	requests int64
	hits     int64
	misses   int64
}
