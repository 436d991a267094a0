package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/annel0/shipgrid/internal/logging"
	"github.com/annel0/shipgrid/internal/storage"
	"github.com/google/uuid"
)

// CachedGridRepo реализует storage.GridRepo: горячий кеш перед холодным хранилищем.
//
// Чтение идёт через кеш (Read-Through). Запись попадает в кеш сразу, а в холодное
// хранилище синхронно или пакетами в фоне (Write-Behind). Удаление и запись
// рассылают инвалидацию другим узлам, если задан invalidator.
type CachedGridRepo struct {
	cold        storage.GridRepo
	hot         Cache
	invalidator CacheInvalidator
	config      CacheConfig
	log         *logging.Logger

	// Write-Behind: последний снимок каждого корабля, ещё не записанный в cold.
	// deletes - счётчик удалений корабля; запись из очереди, взятая до удаления,
	// в cold не попадает. shipLocks упорядочивают запись и удаление в cold по кораблю.
	mu        sync.Mutex
	pending   map[uuid.UUID][]byte
	deletes   map[uuid.UUID]uint64
	shipLocks map[uuid.UUID]*sync.Mutex
	flushCh   chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCachedGridRepo оборачивает cold кешем hot. invalidator может быть nil.
// Репозиторий владеет всеми тремя и закрывает их в Close.
func NewCachedGridRepo(cold storage.GridRepo, hot Cache, invalidator CacheInvalidator, config CacheConfig) *CachedGridRepo {
	r := &CachedGridRepo{
		cold:        cold,
		hot:         hot,
		invalidator: invalidator,
		config:      config.withDefaults(),
		log:         logging.GetStorageLogger(),
		pending:     make(map[uuid.UUID][]byte),
		deletes:     make(map[uuid.UUID]uint64),
		shipLocks:   make(map[uuid.UUID]*sync.Mutex),
	}

	if r.config.WriteBehindEnabled {
		r.flushCh = make(chan struct{}, 1)
		r.stopCh = make(chan struct{})
		r.startWriteBehind()
	}
	return r
}

// SubscribeInvalidations сбрасывает кеш снимков, которые сохранили другие узлы
func (r *CachedGridRepo) SubscribeInvalidations(ctx context.Context) error {
	if r.invalidator == nil {
		return nil
	}
	return r.invalidator.SubscribeInvalidations(ctx, func(key string) error {
		return r.hot.Delete(context.Background(), key)
	})
}

// Save сохраняет снимок в кеш и холодное хранилище
func (r *CachedGridRepo) Save(ctx context.Context, shipID uuid.UUID, data []byte) error {
	if r.config.WriteBehindEnabled {
		r.mu.Lock()
		r.pending[shipID] = data
		full := len(r.pending) >= r.config.WriteBehindBatchSize
		r.mu.Unlock()
		if full {
			select {
			case r.flushCh <- struct{}{}:
			default:
			}
		}
	} else if err := r.saveCold(ctx, shipID, data); err != nil {
		return err
	}

	if err := r.hot.Set(ctx, shipID.String(), data, r.config.TTL); err != nil {
		// Холодное хранилище остаётся источником истины
		r.log.Warn("Cache set failed for ship %s: %v", shipID, err)
		_ = r.hot.Delete(ctx, shipID.String())
	}
	r.invalidate(ctx, shipID)
	return nil
}

// Load читает снимок: сначала несохранённые записи, затем кеш, затем холодное хранилище
func (r *CachedGridRepo) Load(ctx context.Context, shipID uuid.UUID) ([]byte, error) {
	r.mu.Lock()
	data, ok := r.pending[shipID]
	r.mu.Unlock()
	if ok {
		return data, nil
	}

	data, err := r.hot.Get(ctx, shipID.String())
	if err == nil {
		return data, nil
	}
	if !IsCacheMiss(err) {
		r.log.Warn("Cache get failed for ship %s: %v", shipID, err)
	}

	data, err = r.cold.Load(ctx, shipID)
	if err != nil {
		return nil, err
	}
	if err := r.hot.Set(ctx, shipID.String(), data, r.config.TTL); err != nil {
		r.log.Debug("Cache fill skipped for ship %s: %v", shipID, err)
	}
	return data, nil
}

// Delete удаляет снимок везде. Запись того же корабля, уже начатая сбросом
// очереди, завершается до удаления.
func (r *CachedGridRepo) Delete(ctx context.Context, shipID uuid.UUID) error {
	lk := r.shipLock(shipID)
	lk.Lock()
	defer lk.Unlock()

	r.mu.Lock()
	delete(r.pending, shipID)
	r.deletes[shipID]++
	r.mu.Unlock()

	if err := r.hot.Delete(ctx, shipID.String()); err != nil {
		r.log.Warn("Cache delete failed for ship %s: %v", shipID, err)
	}
	if err := r.cold.Delete(ctx, shipID); err != nil {
		return err
	}
	r.invalidate(ctx, shipID)
	return nil
}

// List возвращает корабли холодного хранилища и ещё не записанные
func (r *CachedGridRepo) List(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.cold.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	r.mu.Lock()
	for id := range r.pending {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Pending количество снимков, ожидающих записи в холодное хранилище
func (r *CachedGridRepo) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush записывает все отложенные снимки в холодное хранилище.
// Снимки кораблей, удалённых после начала сброса, пропускаются.
func (r *CachedGridRepo) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	gens := make(map[uuid.UUID]uint64, len(batch))
	for id := range batch {
		gens[id] = r.deletes[id]
	}
	r.pending = make(map[uuid.UUID][]byte)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	var errs []error
	for id, data := range batch {
		if err := r.flushOne(ctx, id, data, gens[id]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.log.Error("Write-Behind flush failed (%d of %d items)", len(errs), len(batch))
		return errors.Join(errs...)
	}
	r.log.Debug("Write-Behind flushed %d snapshots in %v", len(batch), time.Since(start))
	return nil
}

// Close дописывает отложенные снимки и закрывает кеш, invalidator и холодное хранилище
func (r *CachedGridRepo) Close() error {
	if r.stopCh != nil {
		close(r.stopCh)
		r.wg.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	flushErr := r.Flush(ctx)

	var errs []error
	if flushErr != nil {
		errs = append(errs, flushErr)
	}
	if r.invalidator != nil {
		if err := r.invalidator.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.hot.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.cold.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GetMetrics возвращает метрики кеша с учётом очереди Write-Behind
func (r *CachedGridRepo) GetMetrics() *CacheMetrics {
	metrics := r.hot.GetMetrics()
	metrics.PendingWrites = int64(r.Pending())
	return metrics
}

// flushOne записывает снимок из очереди, если корабль не удаляли с поколения gen
func (r *CachedGridRepo) flushOne(ctx context.Context, id uuid.UUID, data []byte, gen uint64) error {
	lk := r.shipLock(id)
	lk.Lock()
	defer lk.Unlock()

	r.mu.Lock()
	deleted := r.deletes[id] != gen
	r.mu.Unlock()
	if deleted {
		r.log.Debug("Write-Behind skipped deleted ship %s", id)
		return nil
	}

	if err := r.cold.Save(ctx, id, data); err != nil {
		r.requeue(id, data, gen)
		return err
	}
	return nil
}

func (r *CachedGridRepo) saveCold(ctx context.Context, id uuid.UUID, data []byte) error {
	lk := r.shipLock(id)
	lk.Lock()
	defer lk.Unlock()
	return r.cold.Save(ctx, id, data)
}

func (r *CachedGridRepo) shipLock(id uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lk, ok := r.shipLocks[id]
	if !ok {
		lk = &sync.Mutex{}
		r.shipLocks[id] = lk
	}
	return lk
}

// requeue возвращает снимок в очередь, если за время записи не появился более
// новый и корабль не удалён
func (r *CachedGridRepo) requeue(id uuid.UUID, data []byte, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deletes[id] != gen {
		return
	}
	if _, ok := r.pending[id]; !ok {
		r.pending[id] = data
	}
}

func (r *CachedGridRepo) invalidate(ctx context.Context, shipID uuid.UUID) {
	if r.invalidator == nil {
		return
	}
	if err := r.invalidator.PublishInvalidation(ctx, shipID.String()); err != nil {
		r.log.Warn("Failed to publish invalidation for ship %s: %v", shipID, err)
	}
}

// startWriteBehind запускает горутину периодической записи в холодное хранилище.
func (r *CachedGridRepo) startWriteBehind() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.config.WriteBehindInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
			case <-r.flushCh:
			case <-r.stopCh:
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = r.Flush(ctx)
			cancel()
		}
	}()

	r.log.Info("Write-Behind started (interval: %v, batch size: %d)",
		r.config.WriteBehindInterval, r.config.WriteBehindBatchSize)
}

var _ storage.GridRepo = (*CachedGridRepo)(nil)
