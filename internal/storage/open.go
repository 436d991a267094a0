package storage

import (
	"context"
	"fmt"

	"github.com/annel0/shipgrid/internal/config"
)

// Open создаёт хранилище снимков по конфигурации
func Open(ctx context.Context, cfg config.StorageConfig) (GridRepo, error) {
	switch backend := cfg.GetBackend(); backend {
	case "memory":
		return NewMemoryGridRepo(), nil
	case "badger":
		path := cfg.Badger.Path
		if path == "" {
			path = "data"
		}
		return NewBadgerGridRepo(path)
	case "redis":
		rc := DefaultRedisConfig()
		if cfg.Redis.Addr != "" {
			rc.Addr = cfg.Redis.Addr
		}
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.KeyPrefix != "" {
			rc.KeyPrefix = cfg.Redis.KeyPrefix
		}
		return NewRedisGridRepo(ctx, rc)
	case "maria":
		return NewMariaGridRepo(ctx, cfg.Maria.DSN, cfg.Maria.Table)
	case "mongo":
		return NewMongoGridRepo(ctx, MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %q", backend)
	}
}
