// Package metrics содержит Prometheus-метрики работы с сетками кораблей.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shipgrid"

// Значения метки result у raycasts_total
const (
	RayHit  = "hit"
	RayMiss = "miss"
)

// GridMetrics набор метрик сеток.
//
// Метрики:
// * shipgrid_blocks_placed_total - counter
// * shipgrid_blocks_removed_total - counter
// * shipgrid_raycasts_total{result} - counter
// * shipgrid_snapshots_saved_total - counter
// * shipgrid_ships_loaded - gauge
// * shipgrid_grid_nodes - gauge, суммарно по загруженным кораблям
// * shipgrid_instance_build_seconds - histogram
type GridMetrics struct {
	gatherer prometheus.Gatherer

	BlocksPlaced   prometheus.Counter
	BlocksRemoved  prometheus.Counter
	Raycasts       *prometheus.CounterVec
	SnapshotsSaved prometheus.Counter
	ShipsLoaded    prometheus.Gauge
	GridNodes      prometheus.Gauge
	InstanceBuild  prometheus.Histogram
}

// NewGridMetrics создаёт метрики и регистрирует их в reg.
// Если reg nil, создаётся собственный реестр.
func NewGridMetrics(reg *prometheus.Registry) *GridMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &GridMetrics{
		gatherer: reg,
		BlocksPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_placed_total",
			Help:      "Общее число поставленных блоков.",
		}),
		BlocksRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_removed_total",
			Help:      "Общее число убранных блоков.",
		}),
		Raycasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raycasts_total",
			Help:      "Лучи выбора по результату (hit/miss).",
		}, []string{"result"}),
		SnapshotsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_saved_total",
			Help:      "Сохранённые снимки сеток.",
		}),
		ShipsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ships_loaded",
			Help:      "Корабли в памяти.",
		}),
		GridNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_nodes",
			Help:      "Узлы октодеревьев всех загруженных кораблей.",
		}),
		InstanceBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instance_build_seconds",
			Help:      "Длительность сборки буфера инстансов.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}

	reg.MustRegister(
		m.BlocksPlaced,
		m.BlocksRemoved,
		m.Raycasts,
		m.SnapshotsSaved,
		m.ShipsLoaded,
		m.GridNodes,
		m.InstanceBuild,
	)
	return m
}

// ObserveRaycast учитывает луч выбора
func (m *GridMetrics) ObserveRaycast(hit bool) {
	result := RayMiss
	if hit {
		result = RayHit
	}
	m.Raycasts.WithLabelValues(result).Inc()
}

// ObserveInstanceBuild учитывает сборку буфера инстансов, начатую в start
func (m *GridMetrics) ObserveInstanceBuild(start time.Time) {
	m.InstanceBuild.Observe(time.Since(start).Seconds())
}

// Gatherer возвращает реестр, в котором зарегистрированы метрики
func (m *GridMetrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Handler отдаёт метрики реестра в формате Prometheus
func (m *GridMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
