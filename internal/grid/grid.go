// Package grid реализует сетку блоков корабля поверх разреженного октодерева:
// дедупликацию ассетов в таблицу типов, вставку и удаление блоков,
// луч выбора и сборку буферов инстансов для рендера.
//
// BlockGrid не потокобезопасен: экземпляр принадлежит одному владельцу,
// курсоры и результаты лучей недействительны после любой мутации.
package grid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/octree"
	"github.com/annel0/shipgrid/internal/pool"
	"github.com/annel0/shipgrid/internal/vec"
)

var (
	// ErrInvalidAsset возвращается при вставке блока без ассета
	ErrInvalidAsset = errors.New("grid: invalid block asset")
	// ErrStaleNode возвращается, если ссылка на узел больше не указывает на живой блок
	ErrStaleNode = errors.New("grid: stale node reference")
	// ErrTypeTableFull возвращается при переполнении таблицы типов
	ErrTypeTableFull = errors.New("grid: type table is full")
)

// Node блок сетки
type Node struct {
	Pos      vec.Vec3
	Rotation uint8
	Color    uint8
	Type     uint16
}

// NodeRef ссылка на блок: хэндл листа и его позиция для проверки актуальности
type NodeRef struct {
	Handle pool.Handle
	Pos    vec.Vec3
}

// Found результат поиска блока по позиции
type Found struct {
	Ref   NodeRef
	Node  Node
	Asset block.Asset
}

// Stats сводка по сетке
type Stats struct {
	Blocks int
	Nodes  int
	Types  int
	Depth  int
	Width  int
}

// BlockGrid сетка блоков одного корабля
type BlockGrid struct {
	voxels    *octree.Octree
	types     []Type
	index     map[block.Asset]uint16
	freeTypes []uint16
}

// New создаёт пустую сетку
func New() *BlockGrid {
	return NewWithCapacity(pool.DefaultCapacity)
}

// NewWithCapacity создаёт сетку, в которой каждый пул узлов вмещает capacity узлов
func NewWithCapacity(capacity int) *BlockGrid {
	return &BlockGrid{
		voxels: octree.NewWithCapacity(capacity),
		index:  make(map[block.Asset]uint16),
	}
}

// Insert ставит блок ассета asset в ячейку pos
func (g *BlockGrid) Insert(asset block.Asset, pos vec.Vec3, rotation uint8) (NodeRef, error) {
	return g.InsertColored(asset, pos, rotation, 0)
}

// InsertColored ставит блок с индексом цвета. Блок, уже стоявший в ячейке, заменяется.
func (g *BlockGrid) InsertColored(asset block.Asset, pos vec.Vec3, rotation, color uint8) (NodeRef, error) {
	if asset.IsZero() {
		return NodeRef{}, ErrInvalidAsset
	}

	prev, replaced := g.voxels.Find(pos)

	idx, err := g.acquireType(asset)
	if err != nil {
		return NodeRef{}, err
	}

	h, err := g.voxels.Insert(pos, octree.Voxel{Type: idx, Color: color, Rotation: rotation})
	if err != nil {
		g.releaseType(idx)
		return NodeRef{}, fmt.Errorf("grid: insert %v: %w", pos, err)
	}
	if replaced {
		g.releaseType(prev.Type)
	}
	return NodeRef{Handle: h, Pos: pos}, nil
}

// Find ищет блок в ячейке pos
func (g *BlockGrid) Find(pos vec.Vec3) (Found, bool) {
	h, ok := g.voxels.FindLeaf(pos)
	if !ok {
		return Found{}, false
	}
	leaf, ok := g.voxels.Leaf(h)
	if !ok {
		return Found{}, false
	}
	t, ok := g.liveType(leaf.Voxel.Type)
	if !ok {
		return Found{}, false
	}
	return Found{
		Ref:   NodeRef{Handle: h, Pos: leaf.Pos},
		Node:  nodeOf(leaf),
		Asset: t.Asset,
	}, true
}

// Remove удаляет блок по ссылке
func (g *BlockGrid) Remove(ref NodeRef) error {
	leaf, ok := g.voxels.Leaf(ref.Handle)
	if !ok || !leaf.Pos.Equals(ref.Pos) {
		return fmt.Errorf("%w: handle=%d pos=%v", ErrStaleNode, ref.Handle, ref.Pos)
	}
	g.voxels.Remove(ref.Pos)
	g.releaseType(leaf.Voxel.Type)
	return nil
}

// RemoveAt удаляет блок в ячейке pos, если он есть
func (g *BlockGrid) RemoveAt(pos vec.Vec3) bool {
	v, ok := g.voxels.Remove(pos)
	if !ok {
		return false
	}
	g.releaseType(v.Type)
	return true
}

// Nodes возвращает все блоки в порядке обхода дерева
func (g *BlockGrid) Nodes() []Node {
	nodes := make([]Node, 0, g.voxels.Len())
	g.voxels.Walk(func(h pool.Handle, leaf octree.Leaf) bool {
		nodes = append(nodes, nodeOf(leaf))
		return true
	})
	return nodes
}

// Len возвращает количество блоков
func (g *BlockGrid) Len() int {
	return g.voxels.Len()
}

// Octree даёт доступ к дереву только для чтения и обхода
func (g *BlockGrid) Octree() *octree.Octree {
	return g.voxels
}

// Resize отбрасывает неиспользуемый хвост пулов узлов и таблицы типов.
// Возвращает количество освобождённых слотов.
func (g *BlockGrid) Resize() int {
	return g.voxels.Trim() + g.trimTypes()
}

// Stats возвращает сводку по сетке
func (g *BlockGrid) Stats() Stats {
	return Stats{
		Blocks: g.voxels.Len(),
		Nodes:  g.voxels.Size(),
		Types:  g.TypeCount(),
		Depth:  g.voxels.Depth(),
		Width:  g.voxels.Width(),
	}
}

// Dump возвращает отладочное описание таблицы типов и дерева
func (g *BlockGrid) Dump() string {
	var sb strings.Builder
	for i, t := range g.types {
		if t.Asset.IsZero() {
			continue
		}
		fmt.Fprintf(&sb, "type %d %s count=%d dirty=%t\n", i, t.Asset, t.Count, t.Dirty)
	}
	sb.WriteString(g.voxels.Dump())
	return sb.String()
}

func nodeOf(leaf octree.Leaf) Node {
	return Node{
		Pos:      leaf.Pos,
		Rotation: leaf.Voxel.Rotation,
		Color:    leaf.Voxel.Color,
		Type:     leaf.Voxel.Type,
	}
}
