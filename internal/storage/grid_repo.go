package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound возвращается, если снимок корабля отсутствует в хранилище
var ErrNotFound = errors.New("storage: ship snapshot not found")

// GridRepo определяет интерфейс хранилища снимков сеток кораблей.
// Снимок - непрозрачный набор байт, полученный через EncodeGrid.
type GridRepo interface {
	// Save сохраняет снимок сетки корабля, заменяя предыдущий.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   shipID - идентификатор корабля
	//   data - снимок сетки
	// Возвращает:
	//   error - ошибка при сохранении
	Save(ctx context.Context, shipID uuid.UUID, data []byte) error

	// Load загружает снимок сетки корабля.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   shipID - идентификатор корабля
	// Возвращает:
	//   []byte - снимок сетки
	//   error - ErrNotFound, если снимка нет, либо ошибка хранилища
	Load(ctx context.Context, shipID uuid.UUID) ([]byte, error)

	// Delete удаляет снимок. Удаление отсутствующего снимка не является ошибкой.
	Delete(ctx context.Context, shipID uuid.UUID) error

	// List возвращает идентификаторы всех сохранённых кораблей.
	List(ctx context.Context) ([]uuid.UUID, error)

	// Close освобождает ресурсы хранилища.
	Close() error
}
