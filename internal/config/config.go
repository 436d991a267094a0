package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath файл конфигурации, если путь не задан ни флагом, ни SHIPGRID_CONFIG
const DefaultPath = "config/config.yml"

// Config корневая структура конфигурации приложения
type Config struct {
	Grid       GridConfig     `yaml:"grid"`
	Storage    StorageConfig  `yaml:"storage"`
	EventBus   EventBusConfig `yaml:"eventbus"`
	Server     ServerConfig   `yaml:"server"`
	Logging    LoggingConfig  `yaml:"logging"`
	Blocks     []string       `yaml:"blocks"`      // ассеты, регистрируемые при старте
	BlocksFile string         `yaml:"blocks_file"` // дополнительный YAML-каталог ассетов
}

type GridConfig struct {
	NodeCapacity int `yaml:"node_capacity"`
	ResizeEvery  int `yaml:"resize_every"`
}

// GetNodeCapacity возвращает ёмкость пулов узлов одной сетки
func (g *GridConfig) GetNodeCapacity() int {
	if g.NodeCapacity > 0 && g.NodeCapacity <= 0xFFFF {
		return g.NodeCapacity
	}
	return 0xFFFF
}

// GetResizeEvery возвращает, через сколько удалений выполнять Resize сетки
func (g *GridConfig) GetResizeEvery() int {
	if g.ResizeEvery > 0 {
		return g.ResizeEvery
	}
	return 256
}

type StorageConfig struct {
	Backend string       `yaml:"backend"` // memory | badger | redis | maria | mongo
	Badger  BadgerConfig `yaml:"badger"`
	Redis   RedisConfig  `yaml:"redis"`
	Maria   MariaConfig  `yaml:"maria"`
	Mongo   MongoConfig  `yaml:"mongo"`
	Cache   CacheConfig  `yaml:"cache"`
}

// GetBackend возвращает тип хранилища с приоритетом: config -> env -> memory
func (s *StorageConfig) GetBackend() string {
	return getStringWithEnvFallback(s.Backend, "SHIPGRID_STORAGE_BACKEND", "memory")
}

type BadgerConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MariaConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// CacheConfig горячий кеш снимков перед хранилищем
type CacheConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Backend         string `yaml:"backend"` // memory | redis
	RedisAddr       string `yaml:"redis_addr"`
	MaxBytes        int64  `yaml:"max_bytes"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
	WriteBehind     bool   `yaml:"write_behind"`
	InvalidationURL string `yaml:"invalidation_url"` // NATS для инвалидации между узлами, пусто - без неё
	NodeID          string `yaml:"node_id"`
}

// GetTTL возвращает TTL снимка в кеше
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTLSeconds > 0 {
		return time.Duration(c.TTLSeconds) * time.Second
	}
	return 10 * time.Minute
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type EventBusConfig struct {
	Type      string `yaml:"type"` // memory | jetstream | none
	Buffer    int    `yaml:"buffer"`
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// GetRetention возвращает срок хранения событий в стриме
func (e *EventBusConfig) GetRetention() time.Duration {
	if e.Retention > 0 {
		return time.Duration(e.Retention) * time.Hour
	}
	return 24 * time.Hour
}

// GetBuffer возвращает размер буфера in-memory шины
func (e *EventBusConfig) GetBuffer() int {
	if e.Buffer > 0 {
		return e.Buffer
	}
	return 1024
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "SHIPGRID_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "SHIPGRID_METRICS_PORT", 2112)
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// GetLevel возвращает уровень логирования с приоритетом: config -> env -> INFO
func (l *LoggingConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "SHIPGRID_LOG_LEVEL", "INFO")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

// Load читает YAML файл конфигурации.
// Если path == "", путь берётся из ENV SHIPGRID_CONFIG, затем DefaultPath.
// Отсутствие файла по DefaultPath не ошибка: возвращается пустая конфигурация
// (все значения по умолчанию).
func Load(path string) (*Config, error) {
	optional := false
	if path == "" {
		path = os.Getenv("SHIPGRID_CONFIG")
	}
	if path == "" {
		path, optional = DefaultPath, true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
