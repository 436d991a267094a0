package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/shipgrid/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventBlockPlaced}}, func(ctx context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	placed, err := NewEnvelope(EventBlockPlaced, "shipyard", 3, BlockPlaced{ShipID: "s1", Pos: vec.Vec3{X: 1}, Asset: "hull"})
	require.NoError(t, err)
	removed, err := NewEnvelope(EventBlockRemoved, "shipyard", 3, BlockRemoved{ShipID: "s1"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), removed))
	require.NoError(t, bus.Publish(context.Background(), placed))

	select {
	case ev := <-got:
		assert.Equal(t, EventBlockPlaced, ev.EventType)
		var payload BlockPlaced
		require.NoError(t, ev.Decode(&payload))
		assert.Equal(t, "hull", payload.Asset)
		assert.Equal(t, vec.Vec3{X: 1}, payload.Pos)
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}

	select {
	case ev := <-got:
		t.Fatalf("получено событие вне фильтра: %s", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, err := NewEnvelope(EventGridSaved, "test", 1, GridPersisted{ShipID: "s"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestMemoryBusCloseFlushes(t *testing.T) {
	bus := NewMemoryBus(64)

	var mu sync.Mutex
	seen := 0
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		ev, err := NewEnvelope(EventBlockRemoved, "test", 1, BlockRemoved{})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	mu.Lock()
	assert.Equal(t, 10, seen)
	mu.Unlock()

	stats := bus.Metrics()
	assert.Equal(t, uint64(10), stats.Published)
	assert.Equal(t, uint64(10), stats.Consumed)

	ev, _ := NewEnvelope(EventBlockRemoved, "test", 1, BlockRemoved{})
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
	_, err = bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMatchFilter(t *testing.T) {
	ev := &Envelope{EventType: EventBlockPlaced, Source: "shipyard"}
	assert.True(t, matchFilter(ev, Filter{}))
	assert.True(t, matchFilter(ev, Filter{Types: []string{EventBlockRemoved, EventBlockPlaced}}))
	assert.False(t, matchFilter(ev, Filter{Sources: []string{"api"}}))
}

func TestMetricsExporter(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	exp := NewMetricsExporter(bus, reg)

	for i := 0; i < 3; i++ {
		ev, err := NewEnvelope(EventBlockPlaced, "test", 1, BlockPlaced{})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	exp.update()
	assert.Equal(t, 3.0, testutil.ToFloat64(exp.published))

	exp.update()
	assert.Equal(t, 3.0, testutil.ToFloat64(exp.published), "повторное обновление не должно удваивать счётчик")

	exp.Start()
	exp.Stop()
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	sub, err := StartLoggingListener(bus)
	require.NoError(t, err)
	sub.Unsubscribe()
}
