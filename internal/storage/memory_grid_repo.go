package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryGridRepo реализует GridRepo в памяти.
// Используется для CI/локальной разработки без внешних хранилищ.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryGridRepo struct {
	mu   sync.RWMutex
	data map[uuid.UUID][]byte
}

// NewMemoryGridRepo создает новый репозиторий снимков в памяти
func NewMemoryGridRepo() *MemoryGridRepo {
	return &MemoryGridRepo{
		data: make(map[uuid.UUID][]byte),
	}
}

// Save сохраняет копию снимка
func (r *MemoryGridRepo) Save(ctx context.Context, shipID uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[shipID] = buf
	return nil
}

// Load возвращает копию снимка
func (r *MemoryGridRepo) Load(ctx context.Context, shipID uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.data[shipID]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete удаляет снимок
func (r *MemoryGridRepo) Delete(ctx context.Context, shipID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, shipID)
	return nil
}

// List возвращает идентификаторы кораблей в лексикографическом порядке
func (r *MemoryGridRepo) List(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.data))
	for id := range r.data {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, nil
}

// Close ничего не делает
func (r *MemoryGridRepo) Close() error {
	return nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
