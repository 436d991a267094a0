// Package shipyard держит в памяти сетки кораблей и сериализует доступ к ним.
//
// Каждая сетка принадлежит своему кораблю и защищена его мьютексом;
// наружу уходят только копии результатов.
package shipyard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/eventbus"
	"github.com/annel0/shipgrid/internal/grid"
	"github.com/annel0/shipgrid/internal/logging"
	"github.com/annel0/shipgrid/internal/metrics"
	"github.com/annel0/shipgrid/internal/storage"
	"github.com/annel0/shipgrid/internal/vec"
	"github.com/google/uuid"
)

var (
	// ErrShipNotFound корабль не загружен
	ErrShipNotFound = errors.New("shipyard: ship not found")
	// ErrUnknownAsset ассет с таким именем не зарегистрирован
	ErrUnknownAsset = fmt.Errorf("shipyard: unknown asset: %w", grid.ErrInvalidAsset)
)

// eventSource имя источника событий верфи
const eventSource = "shipyard"

// priorityGrid приоритет событий изменения сетки. Низкий: при переполнении
// буфера шины такие события можно отбросить.
const priorityGrid = 3

// Options зависимости верфи. Bus и Metrics необязательны.
type Options struct {
	Repo         storage.GridRepo
	Bus          eventbus.EventBus
	Metrics      *metrics.GridMetrics
	Registry     *block.Registry
	Logger       *logging.Logger
	ResizeEvery  int // через сколько удалений блоков сжимать сетку, 0 - никогда
	NodeCapacity int // ёмкость пулов узлов новой сетки
}

// Ship корабль в памяти
type Ship struct {
	mu       sync.Mutex
	id       uuid.UUID
	grid     *grid.BlockGrid
	removals int
	nodes    int // последнее значение, учтённое в метрике grid_nodes
}

// Shipyard сервис кораблей
type Shipyard struct {
	mu    sync.RWMutex
	ships map[uuid.UUID]*Ship
	opts  Options
	log   *logging.Logger
}

// New создаёт верфь
func New(opts Options) *Shipyard {
	if opts.Repo == nil {
		opts.Repo = storage.NewMemoryGridRepo()
	}
	if opts.Registry == nil {
		opts.Registry = block.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetShipyardLogger()
	}
	return &Shipyard{
		ships: make(map[uuid.UUID]*Ship),
		opts:  opts,
		log:   opts.Logger,
	}
}

// Registry возвращает реестр ассетов верфи
func (y *Shipyard) Registry() *block.Registry {
	return y.opts.Registry
}

// CreateShip заводит корабль с пустой сеткой
func (y *Shipyard) CreateShip() uuid.UUID {
	id := uuid.New()
	y.attach(id, grid.NewWithCapacity(y.opts.NodeCapacity))
	y.log.Info("🚀 Создан корабль %s", id)
	return id
}

// Ships возвращает идентификаторы загруженных кораблей по возрастанию
func (y *Shipyard) Ships() []uuid.UUID {
	y.mu.RLock()
	ids := make([]uuid.UUID, 0, len(y.ships))
	for id := range y.ships {
		ids = append(ids, id)
	}
	y.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// PlaceBlock ставит блок ассета assetName в ячейку pos корабля id.
// Занятая ячейка перезаписывается.
func (y *Shipyard) PlaceBlock(ctx context.Context, id uuid.UUID, assetName string, pos vec.Vec3, rotation, color uint8) (grid.NodeRef, error) {
	asset, ok := y.opts.Registry.Get(assetName)
	if !ok {
		return grid.NodeRef{}, fmt.Errorf("%w: %q", ErrUnknownAsset, assetName)
	}

	var ref grid.NodeRef
	err := y.withShip(id, func(s *Ship) error {
		var err error
		ref, err = s.grid.InsertColored(asset, pos, rotation, color)
		if err != nil {
			return err
		}
		y.trackNodes(s)
		return nil
	})
	if err != nil {
		return grid.NodeRef{}, err
	}

	if m := y.opts.Metrics; m != nil {
		m.BlocksPlaced.Inc()
	}
	y.log.Debug("Корабль %s: блок %s в %s", id, asset, pos)
	y.publish(ctx, eventbus.EventBlockPlaced, eventbus.BlockPlaced{
		ShipID:   id.String(),
		Pos:      pos,
		Asset:    asset.Name,
		Rotation: rotation,
		Color:    color,
	})
	return ref, nil
}

// RemoveBlock убирает блок из ячейки pos. Возвращает false, если ячейка пуста.
func (y *Shipyard) RemoveBlock(ctx context.Context, id uuid.UUID, pos vec.Vec3) (bool, error) {
	var removed bool
	err := y.withShip(id, func(s *Ship) error {
		removed = s.grid.RemoveAt(pos)
		if !removed {
			return nil
		}
		s.removals++
		if every := y.opts.ResizeEvery; every > 0 && s.removals%every == 0 {
			if freed := s.grid.Resize(); freed > 0 {
				y.log.Debug("Корабль %s: сжатие сетки освободило %d слотов", id, freed)
			}
		}
		y.trackNodes(s)
		return nil
	})
	if err != nil || !removed {
		return false, err
	}

	if m := y.opts.Metrics; m != nil {
		m.BlocksRemoved.Inc()
	}
	y.publish(ctx, eventbus.EventBlockRemoved, eventbus.BlockRemoved{ShipID: id.String(), Pos: pos})
	return true, nil
}

// Block ищет блок в ячейке pos
func (y *Shipyard) Block(id uuid.UUID, pos vec.Vec3) (grid.Found, bool, error) {
	var (
		found grid.Found
		ok    bool
	)
	err := y.withShip(id, func(s *Ship) error {
		found, ok = s.grid.Find(pos)
		return nil
	})
	return found, ok, err
}

// Pick пускает луч выбора from -> to по сетке корабля
func (y *Shipyard) Pick(id uuid.UUID, from, to vec.Vec3Float) (grid.RayCastResult, bool, error) {
	var (
		res grid.RayCastResult
		hit bool
	)
	err := y.withShip(id, func(s *Ship) error {
		res, hit = s.grid.RayCast(from, to)
		return nil
	})
	if err != nil {
		return grid.RayCastResult{}, false, err
	}
	if m := y.opts.Metrics; m != nil {
		m.ObserveRaycast(hit)
	}
	return res, hit, nil
}

// Instances собирает буфер инстансов корабля
func (y *Shipyard) Instances(id uuid.UUID, incremental bool) (grid.InstanceBuffer, error) {
	var buf grid.InstanceBuffer
	err := y.withShip(id, func(s *Ship) error {
		start := time.Now()
		buf = s.grid.BuildInstanceBuffer(incremental)
		if m := y.opts.Metrics; m != nil {
			m.ObserveInstanceBuild(start)
		}
		return nil
	})
	return buf, err
}

// Stats возвращает сводку по сетке корабля
func (y *Shipyard) Stats(id uuid.UUID) (grid.Stats, error) {
	var st grid.Stats
	err := y.withShip(id, func(s *Ship) error {
		st = s.grid.Stats()
		return nil
	})
	return st, err
}

// Nodes возвращает копию всех блоков корабля
func (y *Shipyard) Nodes(id uuid.UUID) ([]grid.Node, []grid.Type, error) {
	var (
		nodes []grid.Node
		types []grid.Type
	)
	err := y.withShip(id, func(s *Ship) error {
		nodes = s.grid.Nodes()
		types = s.grid.Types()
		return nil
	})
	return nodes, types, err
}

// Save сохраняет снимок сетки корабля в хранилище
func (y *Shipyard) Save(ctx context.Context, id uuid.UUID) error {
	var (
		data   []byte
		blocks int
	)
	err := y.withShip(id, func(s *Ship) error {
		var err error
		data, err = storage.EncodeGrid(s.grid)
		blocks = s.grid.Len()
		return err
	})
	if err != nil {
		return err
	}

	if err := y.opts.Repo.Save(ctx, id, data); err != nil {
		return fmt.Errorf("сохранение корабля %s: %w", id, err)
	}
	if m := y.opts.Metrics; m != nil {
		m.SnapshotsSaved.Inc()
	}
	y.log.Info("💾 Корабль %s сохранён: %d блоков, %d байт", id, blocks, len(data))
	y.publish(ctx, eventbus.EventGridSaved, eventbus.GridPersisted{ShipID: id.String(), Blocks: blocks, Bytes: len(data)})
	return nil
}

// Load загружает корабль из хранилища, заменяя версию в памяти
func (y *Shipyard) Load(ctx context.Context, id uuid.UUID) error {
	data, err := y.opts.Repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrShipNotFound, id)
		}
		return fmt.Errorf("загрузка корабля %s: %w", id, err)
	}

	g, err := storage.DecodeGrid(data, y.opts.Registry, y.opts.NodeCapacity)
	if err != nil {
		return fmt.Errorf("загрузка корабля %s: %w", id, err)
	}

	y.attach(id, g)
	y.log.Info("📦 Корабль %s загружен: %d блоков", id, g.Len())
	y.publish(ctx, eventbus.EventGridLoaded, eventbus.GridPersisted{ShipID: id.String(), Blocks: g.Len(), Bytes: len(data)})
	return nil
}

// SaveAll сохраняет все загруженные корабли. Ошибки отдельных кораблей
// не прерывают сохранение остальных.
func (y *Shipyard) SaveAll(ctx context.Context) error {
	var errs []error
	for _, id := range y.Ships() {
		if err := y.Save(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unload выгружает корабль из памяти без сохранения
func (y *Shipyard) Unload(id uuid.UUID) bool {
	y.mu.Lock()
	s, ok := y.ships[id]
	delete(y.ships, id)
	count := len(y.ships)
	y.mu.Unlock()
	if !ok {
		return false
	}

	if m := y.opts.Metrics; m != nil {
		s.mu.Lock()
		m.GridNodes.Sub(float64(s.nodes))
		s.nodes = 0
		s.mu.Unlock()
		m.ShipsLoaded.Set(float64(count))
	}
	y.log.Info("Корабль %s выгружен", id)
	return true
}

// attach ставит сетку g кораблю id, заменяя прежнюю
func (y *Shipyard) attach(id uuid.UUID, g *grid.BlockGrid) {
	s := &Ship{id: id, grid: g}
	y.mu.Lock()
	old := y.ships[id]
	y.ships[id] = s
	count := len(y.ships)
	y.mu.Unlock()

	if m := y.opts.Metrics; m != nil {
		if old != nil {
			old.mu.Lock()
			m.GridNodes.Sub(float64(old.nodes))
			old.nodes = 0
			old.mu.Unlock()
		}
		s.mu.Lock()
		y.trackNodes(s)
		s.mu.Unlock()
		m.ShipsLoaded.Set(float64(count))
	}
}

// withShip выполняет fn под мьютексом корабля
func (y *Shipyard) withShip(id uuid.UUID, fn func(s *Ship) error) error {
	y.mu.RLock()
	s, ok := y.ships[id]
	y.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrShipNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// trackNodes переносит изменение числа узлов в метрику. Вызывается под s.mu.
func (y *Shipyard) trackNodes(s *Ship) {
	m := y.opts.Metrics
	if m == nil {
		return
	}
	n := s.grid.Stats().Nodes
	m.GridNodes.Add(float64(n - s.nodes))
	s.nodes = n
}

func (y *Shipyard) publish(ctx context.Context, eventType string, payload interface{}) {
	if y.opts.Bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventType, eventSource, priorityGrid, payload)
	if err != nil {
		y.log.Warn("Событие %s не создано: %v", eventType, err)
		return
	}
	if err := y.opts.Bus.Publish(ctx, ev); err != nil {
		y.log.Warn("Событие %s не опубликовано: %v", eventType, err)
	}
}
