package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/shipgrid/internal/logging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisGridRepo хранит снимки кораблей в Redis
type RedisGridRepo struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "shipgrid:ship:",
	}
}

// NewRedisGridRepo подключается к Redis и проверяет соединение
func NewRedisGridRepo(ctx context.Context, config *RedisConfig) (*RedisGridRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", config.Addr)
	return &RedisGridRepo{client: client, keyPrefix: config.KeyPrefix}, nil
}

func (r *RedisGridRepo) key(shipID uuid.UUID) string {
	return r.keyPrefix + shipID.String()
}

// Save сохраняет снимок без TTL
func (r *RedisGridRepo) Save(ctx context.Context, shipID uuid.UUID, data []byte) error {
	return r.client.Set(ctx, r.key(shipID), data, 0).Err()
}

// Load загружает снимок
func (r *RedisGridRepo) Load(ctx context.Context, shipID uuid.UUID) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(shipID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", shipID, err)
	}
	return data, nil
}

// Delete удаляет снимок
func (r *RedisGridRepo) Delete(ctx context.Context, shipID uuid.UUID) error {
	return r.client.Del(ctx, r.key(shipID)).Err()
}

// List перебирает ключи через SCAN
func (r *RedisGridRepo) List(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id, err := uuid.Parse(strings.TrimPrefix(iter.Val(), r.keyPrefix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

// Close закрывает соединение
func (r *RedisGridRepo) Close() error {
	return r.client.Close()
}
