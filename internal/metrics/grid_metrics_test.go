package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridMetricsCounters(t *testing.T) {
	m := NewGridMetrics(prometheus.NewRegistry())

	m.BlocksPlaced.Add(3)
	m.BlocksRemoved.Inc()
	m.ObserveRaycast(true)
	m.ObserveRaycast(false)
	m.ObserveRaycast(false)
	m.ShipsLoaded.Set(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.BlocksPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Raycasts.WithLabelValues(RayHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Raycasts.WithLabelValues(RayMiss)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ShipsLoaded))

	m.ObserveInstanceBuild(time.Now())
	n, err := testutil.GatherAndCount(m.Gatherer(), "shipgrid_instance_build_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGridMetricsOwnRegistry(t *testing.T) {
	// Два набора метрик не конфликтуют в разных реестрах
	a := NewGridMetrics(nil)
	b := NewGridMetrics(nil)
	a.BlocksPlaced.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BlocksPlaced))
}

func TestGridMetricsHandler(t *testing.T) {
	m := NewGridMetrics(nil)
	m.SnapshotsSaved.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "shipgrid_snapshots_saved_total 1"))
}
