package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/shipgrid/internal/api"
	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/cache"
	"github.com/annel0/shipgrid/internal/config"
	"github.com/annel0/shipgrid/internal/eventbus"
	"github.com/annel0/shipgrid/internal/logging"
	"github.com/annel0/shipgrid/internal/metrics"
	"github.com/annel0/shipgrid/internal/shipyard"
	"github.com/annel0/shipgrid/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию SHIPGRID_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.GetLevel())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if err := logging.Init(logging.Options{Level: level, JSON: cfg.Logging.JSON}); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.GetLoggerManager().SyncAll()

	logging.Info("🛠  Запуск ShipGrid сервера...")

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// === РЕЕСТР АССЕТОВ ===
	registry := block.NewRegistry()
	if err := registry.RegisterAll(cfg.Blocks); err != nil {
		return fmt.Errorf("регистрация ассетов: %w", err)
	}
	if cfg.BlocksFile != "" {
		if err := registry.LoadFile(cfg.BlocksFile); err != nil {
			return fmt.Errorf("каталог ассетов: %w", err)
		}
	}
	logging.Info("🧱 Зарегистрировано ассетов: %d", len(registry.Names()))

	// === ХРАНИЛИЩЕ ===
	repo, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище: %w", err)
	}
	if cfg.Storage.Cache.Enabled {
		cached, err := openCache(ctx, repo, cfg.Storage.Cache)
		if err != nil {
			repo.Close()
			return fmt.Errorf("кеш снимков: %w", err)
		}
		repo = cached
	}
	defer repo.Close()
	logging.Info("💾 Хранилище: %s (кеш: %t)", cfg.Storage.GetBackend(), cfg.Storage.Cache.Enabled)

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}

	// === МЕТРИКИ ===
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gridMetrics := metrics.NewGridMetrics(promReg)

	var exporter *eventbus.MetricsExporter
	if bus != nil {
		exporter = eventbus.NewMetricsExporter(bus, promReg)
		exporter.Start()
		if _, err := eventbus.StartLoggingListener(bus); err != nil {
			logging.Warn("Логирование событий недоступно: %v", err)
		}
	}

	// === ВЕРФЬ ===
	yard := shipyard.New(shipyard.Options{
		Repo:         repo,
		Bus:          bus,
		Metrics:      gridMetrics,
		Registry:     registry,
		Logger:       logging.GetShipyardLogger(),
		ResizeEvery:  cfg.Grid.GetResizeEvery(),
		NodeCapacity: cfg.Grid.GetNodeCapacity(),
	})

	ids, err := repo.List(ctx)
	if err != nil {
		logging.Warn("Не удалось получить список кораблей: %v", err)
	}
	for _, id := range ids {
		if err := yard.Load(ctx, id); err != nil {
			logging.Warn("Корабль %s не загружен: %v", id, err)
		}
	}

	// === HTTP ===
	gin.SetMode(gin.ReleaseMode)
	restServer := api.NewRestServer(api.Config{
		Port:     fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Shipyard: yard,
		Registry: promReg,
		Logger:   logging.GetAPILogger(),
	})
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           gridMetrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- restServer.Start() }()
	go func() {
		logging.Info("📈 Метрики: http://localhost%s/metrics", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.Server.GetRESTPort())

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case runErr = <-errCh:
		logging.Error("❌ HTTP сервер остановился: %v", runErr)
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки сервера метрик: %v", err)
	}

	logging.Debug("Сохранение кораблей...")
	if err := yard.SaveAll(shutdownCtx); err != nil {
		logging.Error("❌ Не все корабли сохранены: %v", err)
	}

	if bus != nil {
		if err := bus.Close(); err != nil {
			logging.Error("❌ Ошибка закрытия шины событий: %v", err)
		}
		exporter.Stop()
	}
	return runErr
}

func openCache(ctx context.Context, cold storage.GridRepo, cfg config.CacheConfig) (storage.GridRepo, error) {
	cacheCfg := cache.CacheConfig{
		Backend:            cfg.Backend,
		RedisURL:           cfg.RedisAddr,
		MaxBytes:           cfg.MaxBytes,
		TTL:                cfg.GetTTL(),
		WriteBehindEnabled: cfg.WriteBehind,
	}

	var hot cache.Cache
	switch cfg.Backend {
	case "", "memory":
		mc, err := cache.NewMemoryCache(cacheCfg)
		if err != nil {
			return nil, err
		}
		hot = mc
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cacheCfg)
		if err != nil {
			return nil, err
		}
		hot = rc
	default:
		return nil, fmt.Errorf("неизвестный тип кеша: %q", cfg.Backend)
	}

	var invalidator cache.CacheInvalidator
	if cfg.InvalidationURL != "" {
		nodeID := cfg.NodeID
		if nodeID == "" {
			nodeID = uuid.NewString()
		}
		inv, err := cache.NewNATSInvalidator(cache.InvalidatorConfig{NATSURL: cfg.InvalidationURL}, nodeID)
		if err != nil {
			hot.Close()
			return nil, err
		}
		invalidator = inv
	}

	repo := cache.NewCachedGridRepo(cold, hot, invalidator, cacheCfg)
	if err := repo.SubscribeInvalidations(ctx); err != nil {
		if invalidator != nil {
			invalidator.Close()
		}
		hot.Close()
		return nil, err
	}
	return repo, nil
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Type {
	case "", "memory":
		return eventbus.NewMemoryBus(cfg.GetBuffer()), nil
	case "jetstream":
		jb, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.GetRetention())
		if err != nil {
			return nil, err
		}
		return jb, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("неизвестный тип шины: %q", cfg.Type)
	}
}
