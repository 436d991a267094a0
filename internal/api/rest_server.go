package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/shipgrid/internal/logging"
	"github.com/annel0/shipgrid/internal/middleware"
	"github.com/annel0/shipgrid/internal/shipyard"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// RestServer представляет REST API сервер верфи
type RestServer struct {
	router   *gin.Engine
	http     *http.Server
	shipyard *shipyard.Shipyard
	metrics  *ServerMetrics
	log      *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string               // адрес для запуска сервера, например ":8088"
	Shipyard *shipyard.Shipyard   // сервис кораблей
	Registry *prometheus.Registry // реестр для HTTP-метрик и /metrics, nil - без метрик
	Logger   *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger(config.Logger)
	router.Use(loggerMw.Handler())

	if config.Registry != nil {
		promMw := middleware.NewPrometheusMiddleware("shipgrid_api", config.Registry)
		router.Use(promMw.Handler())
		promMw.RegisterMetricsEndpoint(router, config.Registry)
	}

	server := &RestServer{
		router:   router,
		shipyard: config.Shipyard,
		metrics:  NewServerMetrics(),
		log:      config.Logger,
	}
	server.http = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)

		api.GET("/assets", rs.handleListAssets)
		api.POST("/assets", rs.handleRegisterAsset)

		api.GET("/ships", rs.handleListShips)
		api.POST("/ships", rs.handleCreateShip)
	}

	ship := api.Group("/ships/:id")
	{
		ship.GET("", rs.handleShipStats)
		ship.DELETE("", rs.handleUnloadShip)
		ship.GET("/nodes", rs.handleShipNodes)
		ship.GET("/blocks", rs.handleGetBlock)
		ship.POST("/blocks", rs.handlePlaceBlock)
		ship.DELETE("/blocks", rs.handleRemoveBlock)
		ship.POST("/raycast", rs.handleRaycast)
		ship.GET("/instances", rs.handleInstances)
		ship.POST("/save", rs.handleSave)
		ship.POST("/load", rs.handleLoad)
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler с маршрутами сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleServerInfo возвращает сведения о процессе сервера
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data: map[string]interface{}{
			"uptime":      rs.metrics.GetUptime(),
			"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
			"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
			"ships":       len(rs.shipyard.Ships()),
			"memory":      rs.metrics.GetDetailedMemoryStats(),
			"server_time": time.Now().Unix(),
		},
	})
}

// Start запускает REST сервер и блокируется до его остановки
func (rs *RestServer) Start() error {
	rs.log.Info("🌐 REST API слушает %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
