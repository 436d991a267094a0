package grid

import (
	"fmt"

	"github.com/annel0/shipgrid/internal/block"
)

// MaxTypes максимальное количество записей в таблице типов
const MaxTypes = 0xFFFF

// Type запись таблицы типов: ассет, количество живых вокселей и флаг изменения.
// Запись с нулевым ассетом свободна.
type Type struct {
	Asset block.Asset
	Count uint16
	Dirty bool
}

// acquireType находит или создаёт запись для ассета и увеличивает счётчик
func (g *BlockGrid) acquireType(asset block.Asset) (uint16, error) {
	if idx, ok := g.index[asset]; ok {
		t := &g.types[idx]
		t.Count++
		t.Dirty = true
		return idx, nil
	}

	var idx uint16
	if n := len(g.freeTypes); n > 0 {
		idx = g.freeTypes[n-1]
		g.freeTypes = g.freeTypes[:n-1]
	} else {
		if len(g.types) >= MaxTypes {
			return 0, fmt.Errorf("%w: %d", ErrTypeTableFull, MaxTypes)
		}
		idx = uint16(len(g.types))
		g.types = append(g.types, Type{})
	}

	g.types[idx] = Type{Asset: asset, Count: 1, Dirty: true}
	g.index[asset] = idx
	return idx, nil
}

// releaseType уменьшает счётчик записи. Запись с нулевым счётчиком остаётся
// помеченной до следующей сборки буфера инстансов, которая её и освобождает.
func (g *BlockGrid) releaseType(idx uint16) {
	t, ok := g.liveType(idx)
	if !ok || t.Count == 0 {
		return
	}
	t.Count--
	t.Dirty = true
}

// liveType возвращает занятую запись по индексу
func (g *BlockGrid) liveType(idx uint16) (*Type, bool) {
	if int(idx) >= len(g.types) {
		return nil, false
	}
	t := &g.types[idx]
	if t.Asset.IsZero() {
		return nil, false
	}
	return t, true
}

// reclaimType освобождает запись без живых вокселей
func (g *BlockGrid) reclaimType(idx uint16) {
	t := &g.types[idx]
	if t.Asset.IsZero() || t.Count > 0 {
		return
	}
	delete(g.index, t.Asset)
	*t = Type{}
	g.freeTypes = append(g.freeTypes, idx)
}

// trimTypes отбрасывает свободные записи в конце таблицы
func (g *BlockGrid) trimTypes() int {
	end := len(g.types)
	for end > 0 && g.types[end-1].Asset.IsZero() {
		end--
	}
	trimmed := len(g.types) - end
	if trimmed == 0 {
		return 0
	}
	g.types = g.types[:end]

	kept := g.freeTypes[:0]
	for _, idx := range g.freeTypes {
		if int(idx) < end {
			kept = append(kept, idx)
		}
	}
	g.freeTypes = kept
	return trimmed
}

// Type возвращает запись таблицы типов по индексу
func (g *BlockGrid) Type(idx uint16) (Type, bool) {
	t, ok := g.liveType(idx)
	if !ok {
		return Type{}, false
	}
	return *t, true
}

// Types возвращает копию таблицы типов. Индекс в срезе совпадает с индексом типа,
// свободные записи имеют нулевой ассет.
func (g *BlockGrid) Types() []Type {
	out := make([]Type, len(g.types))
	copy(out, g.types)
	return out
}

// TypeCount возвращает количество занятых записей таблицы типов
func (g *BlockGrid) TypeCount() int {
	return len(g.index)
}
