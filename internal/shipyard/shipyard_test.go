package shipyard

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/eventbus"
	"github.com/annel0/shipgrid/internal/logging"
	"github.com/annel0/shipgrid/internal/metrics"
	"github.com/annel0/shipgrid/internal/storage"
	"github.com/annel0/shipgrid/internal/vec"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	yard    *Shipyard
	repo    *storage.MemoryGridRepo
	bus     eventbus.EventBus
	metrics *metrics.GridMetrics
	events  chan *eventbus.Envelope
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, resizeEvery int) *fixture {
	t.Helper()

	reg := block.NewRegistry()
	require.NoError(t, reg.RegisterAll([]string{"hull", "thruster", "cockpit"}))

	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		repo:    storage.NewMemoryGridRepo(),
		bus:     eventbus.NewMemoryBus(64),
		metrics: metrics.NewGridMetrics(nil),
		events:  make(chan *eventbus.Envelope, 64),
		logs:    logs,
	}
	t.Cleanup(func() { f.bus.Close() })

	_, err := f.bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		f.events <- ev
	})
	require.NoError(t, err)

	f.yard = New(Options{
		Repo:        f.repo,
		Bus:         f.bus,
		Metrics:     f.metrics,
		Registry:    reg,
		Logger:      logging.NewLoggerWithCore("shipyard", core, logging.DEBUG),
		ResizeEvery: resizeEvery,
	})
	return f
}

func (f *fixture) waitEvent(t *testing.T, eventType string) *eventbus.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("событие %s не получено", eventType)
			return nil
		}
	}
}

func TestPlaceAndRemoveBlock(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := f.yard.CreateShip()
	assert.Equal(t, []uuid.UUID{id}, f.yard.Ships())

	ref, err := f.yard.PlaceBlock(ctx, id, "hull", vec.Vec3{X: 1, Y: 2, Z: 3}, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: 1, Y: 2, Z: 3}, ref.Pos)

	ev := f.waitEvent(t, eventbus.EventBlockPlaced)
	var placed eventbus.BlockPlaced
	require.NoError(t, ev.Decode(&placed))
	assert.Equal(t, "hull", placed.Asset)
	assert.Equal(t, id.String(), placed.ShipID)

	found, ok, err := f.yard.Block(id, vec.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hull", found.Asset.Name)
	assert.Equal(t, uint8(4), found.Node.Rotation)
	assert.Equal(t, uint8(5), found.Node.Color)

	removed, err := f.yard.RemoveBlock(ctx, id, vec.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.True(t, removed)
	f.waitEvent(t, eventbus.EventBlockRemoved)

	removed, err = f.yard.RemoveBlock(ctx, id, vec.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.False(t, removed, "пустая ячейка не должна удаляться")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BlocksPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BlocksRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ShipsLoaded))
}

func TestUnknownShipAndAsset(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	missing := uuid.New()

	_, err := f.yard.PlaceBlock(ctx, missing, "hull", vec.Vec3{}, 0, 0)
	assert.ErrorIs(t, err, ErrShipNotFound)

	id := f.yard.CreateShip()
	_, err = f.yard.PlaceBlock(ctx, id, "warp-core", vec.Vec3{}, 0, 0)
	assert.ErrorIs(t, err, ErrUnknownAsset)

	_, err = f.yard.Stats(missing)
	assert.ErrorIs(t, err, ErrShipNotFound)
	assert.ErrorIs(t, f.yard.Load(ctx, missing), ErrShipNotFound)
	assert.False(t, f.yard.Unload(missing))
}

func TestPickAndInstances(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := f.yard.CreateShip()

	for x := 0; x < 3; x++ {
		_, err := f.yard.PlaceBlock(ctx, id, "hull", vec.Vec3{X: x}, 0, 0)
		require.NoError(t, err)
	}
	_, err := f.yard.PlaceBlock(ctx, id, "cockpit", vec.Vec3{Y: 1}, 0, 0)
	require.NoError(t, err)

	res, hit, err := f.yard.Pick(id, vec.Vec3Float{X: 10}, vec.Vec3Float{X: -10})
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, vec.Vec3{X: 2}, res.Node.Pos)
	assert.Equal(t, vec.Vec3{X: 3}, res.Adjacent())

	_, hit, err = f.yard.Pick(id, vec.Vec3Float{Y: 10, Z: 10}, vec.Vec3Float{Y: 10, Z: -10})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Raycasts.WithLabelValues(metrics.RayHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Raycasts.WithLabelValues(metrics.RayMiss)))

	buf, err := f.yard.Instances(id, false)
	require.NoError(t, err)
	hull, _ := f.yard.Registry().Get("hull")
	cockpit, _ := f.yard.Registry().Get("cockpit")
	assert.Len(t, buf, 2)
	assert.Len(t, buf[hull], 3)
	assert.Len(t, buf[cockpit], 1)

	buf, err = f.yard.Instances(id, true)
	require.NoError(t, err)
	assert.Empty(t, buf, "после полной сборки изменений нет")

	st, err := f.yard.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Blocks)
	assert.Equal(t, 2, st.Types)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := f.yard.CreateShip()

	positions := []vec.Vec3{{X: 0}, {X: -3, Y: 2}, {X: 7, Y: -7, Z: 1}}
	for i, p := range positions {
		_, err := f.yard.PlaceBlock(ctx, id, "thruster", p, uint8(i), uint8(10+i))
		require.NoError(t, err)
	}

	require.NoError(t, f.yard.Save(ctx, id))
	ev := f.waitEvent(t, eventbus.EventGridSaved)
	var saved eventbus.GridPersisted
	require.NoError(t, ev.Decode(&saved))
	assert.Equal(t, 3, saved.Blocks)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SnapshotsSaved))

	require.True(t, f.yard.Unload(id))
	assert.Empty(t, f.yard.Ships())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.GridNodes))

	require.NoError(t, f.yard.Load(ctx, id))
	f.waitEvent(t, eventbus.EventGridLoaded)

	nodes, types, err := f.yard.Nodes(id)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	require.Len(t, types, 1)
	assert.Equal(t, "thruster", types[0].Asset.Name)

	for i, p := range positions {
		found, ok, err := f.yard.Block(id, p)
		require.NoError(t, err)
		require.True(t, ok, "блок %v должен восстановиться", p)
		assert.Equal(t, uint8(i), found.Node.Rotation)
		assert.Equal(t, uint8(10+i), found.Node.Color)
	}
	assert.Greater(t, testutil.ToFloat64(f.metrics.GridNodes), 0.0)
}

func TestSaveAll(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	a := f.yard.CreateShip()
	b := f.yard.CreateShip()
	_, err := f.yard.PlaceBlock(ctx, a, "hull", vec.Vec3{}, 0, 0)
	require.NoError(t, err)

	require.NoError(t, f.yard.SaveAll(ctx))
	ids, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids)
}

func TestResizeEvery(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.yard.CreateShip()

	for x := -8; x < 8; x++ {
		_, err := f.yard.PlaceBlock(ctx, id, "hull", vec.Vec3{X: x, Y: x, Z: x}, 0, 0)
		require.NoError(t, err)
	}
	before, err := f.yard.Stats(id)
	require.NoError(t, err)

	for x := -8; x < 8; x++ {
		removed, err := f.yard.RemoveBlock(ctx, id, vec.Vec3{X: x, Y: x, Z: x})
		require.NoError(t, err)
		require.True(t, removed)
	}

	after, err := f.yard.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Blocks)
	assert.Less(t, after.Nodes, before.Nodes)
	assert.Equal(t, float64(after.Nodes), testutil.ToFloat64(f.metrics.GridNodes))
	assert.Greater(t, f.logs.FilterMessageSnippet("сжатие сетки").Len(), 0)
}

func TestNoBusNoMetrics(t *testing.T) {
	reg := block.NewRegistry()
	_, err := reg.Register("hull")
	require.NoError(t, err)

	yard := New(Options{Registry: reg})
	id := yard.CreateShip()
	_, err = yard.PlaceBlock(context.Background(), id, "hull", vec.Vec3{}, 0, 0)
	require.NoError(t, err)
	require.NoError(t, yard.Save(context.Background(), id))
	require.NoError(t, yard.Load(context.Background(), id))
}
