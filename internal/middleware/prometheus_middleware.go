package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPath = "/metrics"

// Группы маршрутов REST API
const (
	ScopeShips     = "ships"
	ScopeAssets    = "assets"
	ScopeSystem    = "system"
	ScopeUnmatched = "unmatched"
)

// PrometheusMiddleware собирает HTTP-метрики REST API сеток.
// Запросы к /metrics не учитываются. Маршруты без совпадения попадают
// под общую метку route="unmatched", чтобы сырые URL не раздували кардинальность.
//
// Метрики:
// * http_request_duration_seconds{method,route,scope,status} - histogram
// * http_requests_inflight - gauge
// * http_request_errors_total{scope,status} - counter (4xx/5xx)
// * ship_operations_total{op,status} - counter, операции над кораблями
type PrometheusMiddleware struct {
	reqDuration *prometheus.HistogramVec
	reqInflight prometheus.Gauge
	reqErrors   *prometheus.CounterVec
	shipOps     *prometheus.CounterVec
}

// NewPrometheusMiddleware создаёт middleware и регистрирует метрики в reg
func NewPrometheusMiddleware(service string, reg prometheus.Registerer) *PrometheusMiddleware {
	pm := &PrometheusMiddleware{
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "scope", "status"}),
		reqInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Текущее количество обрабатываемых HTTP-запросов.",
		}),
		reqErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Запросы, завершившиеся ошибкой (4xx/5xx), по группам маршрутов.",
		}, []string{"scope", "status"}),
		shipOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "ship_operations_total",
			Help:      "Операции над кораблями через REST API.",
		}, []string{"op", "status"}),
	}

	reg.MustRegister(pm.reqDuration, pm.reqInflight, pm.reqErrors, pm.shipOps)
	return pm
}

// Handler возвращает gin.HandlerFunc для router.Use()
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == metricsPath {
			c.Next()
			return
		}

		start := time.Now()
		pm.reqInflight.Inc()
		c.Next()
		pm.reqInflight.Dec()

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		scope := routeScope(route)
		if route == "" {
			route = ScopeUnmatched
		}

		pm.reqDuration.WithLabelValues(c.Request.Method, route, scope, status).
			Observe(time.Since(start).Seconds())
		if code >= 400 {
			pm.reqErrors.WithLabelValues(scope, status).Inc()
		}
		if scope == ScopeShips {
			pm.shipOps.WithLabelValues(shipOperation(c.Request.Method, route), status).Inc()
		}
	}
}

// RegisterMetricsEndpoint добавляет GET /metrics с метриками реестра g
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine, g prometheus.Gatherer) {
	r.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

// routeScope группа маршрута по шаблону gin
func routeScope(route string) string {
	switch {
	case route == "":
		return ScopeUnmatched
	case strings.HasPrefix(route, "/api/ships"):
		return ScopeShips
	case strings.HasPrefix(route, "/api/assets"):
		return ScopeAssets
	default:
		return ScopeSystem
	}
}

// shipOperation имя операции: "create", "list", "stats", "unload"
// или подресурс корабля с методом, например "blocks_post"
func shipOperation(method, route string) string {
	rest := strings.TrimPrefix(route, "/api/ships")
	if rest == "" || rest == "/" {
		if method == "POST" {
			return "create"
		}
		return "list"
	}

	rest = strings.TrimPrefix(rest, "/:id")
	if rest == "" {
		if method == "DELETE" {
			return "unload"
		}
		return "stats"
	}
	return strings.TrimPrefix(rest, "/") + "_" + strings.ToLower(method)
}
