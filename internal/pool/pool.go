// Package pool содержит арену слотов фиксированной ёмкости с адресацией
// по 16-битным хэндлам и повторным использованием освобождённых слотов.
package pool

import (
	"errors"
	"fmt"
)

// Handle индекс слота в пуле
type Handle uint16

const (
	// DefaultCapacity ёмкость пула по умолчанию
	DefaultCapacity = 0xFFFF

	// Invalid никогда не выдаётся пулом и обозначает пустую ссылку
	Invalid Handle = 0xFFFF
)

// ErrCapacityExceeded возвращается при попытке выделить слот сверх ёмкости
var ErrCapacityExceeded = errors.New("pool: capacity exceeded")

// Pool арена слотов типа T.
// Освобождённые хэндлы складываются в стек и выдаются повторно в порядке LIFO,
// поэтому erase и следующий за ним insert возвращают тот же хэндл.
type Pool[T any] struct {
	items    []T
	live     []bool
	free     []Handle
	size     int
	capacity int
}

// New создаёт пул указанной ёмкости. Ёмкость вне диапазона [1, DefaultCapacity]
// заменяется на DefaultCapacity.
func New[T any](capacity int) *Pool[T] {
	if capacity <= 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Pool[T]{capacity: capacity}
}

// Insert выделяет слот и возвращает его хэндл и указатель на обнулённое значение.
// Указатель действителен до следующего Insert.
func (p *Pool[T]) Insert() (Handle, *T, error) {
	var zero T

	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		p.items[h] = zero
		p.live[h] = true
		p.size++
		return h, &p.items[h], nil
	}

	if len(p.items) >= p.capacity {
		return Invalid, nil, fmt.Errorf("%w: %d", ErrCapacityExceeded, p.capacity)
	}

	h := Handle(len(p.items))
	p.items = append(p.items, zero)
	p.live = append(p.live, true)
	p.size++
	return h, &p.items[h], nil
}

// Erase освобождает слот. Освобождение недействительного хэндла - ошибка программиста.
func (p *Pool[T]) Erase(h Handle) {
	p.mustBeLive(h)

	var zero T
	p.items[h] = zero
	p.live[h] = false
	p.free = append(p.free, h)
	p.size--
}

// At возвращает указатель на значение живого слота
func (p *Pool[T]) At(h Handle) *T {
	p.mustBeLive(h)
	return &p.items[h]
}

// Valid проверяет, что хэндл указывает на живой слот
func (p *Pool[T]) Valid(h Handle) bool {
	return int(h) < len(p.live) && p.live[h]
}

// Data возвращает все выделенные слоты, включая освобождённые (они хранят нулевое значение)
func (p *Pool[T]) Data() []T {
	return p.items
}

// Size возвращает количество живых слотов
func (p *Pool[T]) Size() int {
	return p.size
}

// Len возвращает количество выделенных слотов (живых и освобождённых)
func (p *Pool[T]) Len() int {
	return len(p.items)
}

// Cap возвращает ёмкость пула
func (p *Pool[T]) Cap() int {
	return p.capacity
}

// Available возвращает, сколько слотов ещё можно выделить
func (p *Pool[T]) Available() int {
	return p.capacity - p.size
}

// NextEmpty возвращает хэндл, который выдаст следующий Insert.
// Для пула, в котором ещё нет слотов, и для заполненного пула возвращается
// значение ёмкости.
func (p *Pool[T]) NextEmpty() Handle {
	if n := len(p.free); n > 0 {
		return p.free[n-1]
	}
	if len(p.items) == 0 || len(p.items) >= p.capacity {
		return Handle(p.capacity)
	}
	return Handle(len(p.items))
}

// Each обходит живые слоты в порядке возрастания хэндлов.
// Обход прекращается, если fn вернула false.
func (p *Pool[T]) Each(fn func(h Handle, item *T) bool) {
	for i := range p.items {
		if !p.live[i] {
			continue
		}
		if !fn(Handle(i), &p.items[i]) {
			return
		}
	}
}

// Trim отбрасывает освобождённые слоты в конце арены и возвращает их количество
func (p *Pool[T]) Trim() int {
	end := len(p.items)
	for end > 0 && !p.live[end-1] {
		end--
	}
	trimmed := len(p.items) - end
	if trimmed == 0 {
		return 0
	}

	kept := p.free[:0]
	for _, h := range p.free {
		if int(h) < end {
			kept = append(kept, h)
		}
	}
	p.free = kept

	// Копируем, чтобы отпустить память хвоста
	p.items = append([]T(nil), p.items[:end]...)
	p.live = append([]bool(nil), p.live[:end]...)
	return trimmed
}

func (p *Pool[T]) mustBeLive(h Handle) {
	if !p.Valid(h) {
		panic(fmt.Sprintf("pool: invalid handle %d (len=%d)", h, len(p.items)))
	}
}
