package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

const badgerShipPrefix = "ship:"

// BadgerGridRepo хранит снимки кораблей во встроенной BadgerDB, ключи вида "ship:<uuid>"
type BadgerGridRepo struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerGridRepo открывает хранилище в каталоге dataPath/ships
func NewBadgerGridRepo(dataPath string) (*BadgerGridRepo, error) {
	dbPath := filepath.Join(dataPath, "ships")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerGridRepo{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

func shipKey(shipID uuid.UUID) []byte {
	return []byte(badgerShipPrefix + shipID.String())
}

// Save сохраняет снимок корабля
func (r *BadgerGridRepo) Save(ctx context.Context, shipID uuid.UUID, data []byte) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(shipKey(shipID), data)
	})
}

// Load загружает снимок корабля
func (r *BadgerGridRepo) Load(ctx context.Context, shipID uuid.UUID) ([]byte, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(shipKey(shipID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения снимка %s: %w", shipID, err)
	}
	return data, nil
}

// Delete удаляет снимок корабля
func (r *BadgerGridRepo) Delete(ctx context.Context, shipID uuid.UUID) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(shipKey(shipID))
	})
}

// List перебирает ключи с префиксом "ship:"
func (r *BadgerGridRepo) List(ctx context.Context) ([]uuid.UUID, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var ids []uuid.UUID
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerShipPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			id, err := uuid.Parse(strings.TrimPrefix(key, badgerShipPrefix))
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

// Close закрывает хранилище данных
func (r *BadgerGridRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}

	r.isReady = false
	return r.db.Close()
}
