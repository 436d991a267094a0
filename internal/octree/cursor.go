package octree

import (
	"github.com/annel0/shipgrid/internal/pool"
	"github.com/annel0/shipgrid/internal/vec"
)

// Cursor однопроходный курсор обхода в глубину по октантам.
// Курсор перебирает детей одного узла в фиксированном порядке октантов
// (индексы 0..7), пропуская пустые. Любая мутация дерева делает курсор недействительным.
type Cursor struct {
	tree   *Octree
	level  int
	origin vec.Vec3
	slots  [8]pool.Handle
	octant int
	pos    vec.Vec3
}

// Iterate возвращает курсор уровня 0, указывающий на корень
func (o *Octree) Iterate() Cursor {
	c := Cursor{tree: o, level: 0}
	for i := range c.slots {
		c.slots[i] = pool.Invalid
	}
	c.slots[0] = o.root
	return c
}

// Valid сообщает, указывает ли курсор на узел. После восьмого октанта курсор исчерпан.
func (c *Cursor) Valid() bool {
	return c.octant < len(c.slots)
}

// Level глубина текущего узла; 0 - корень, Depth() - листья
func (c *Cursor) Level() int {
	return c.level
}

// Origin центр родительского узла
func (c *Cursor) Origin() vec.Vec3 {
	return c.origin
}

// Pos центр текущей ветви либо ячейка текущего листа
func (c *Cursor) Pos() vec.Vec3 {
	return c.pos
}

// Octant индекс октанта текущего узла внутри родителя
func (c *Cursor) Octant() int {
	return c.octant
}

// Handle хэндл текущего узла в пуле ветвей или листьев
func (c *Cursor) Handle() pool.Handle {
	if !c.Valid() {
		return pool.Invalid
	}
	return c.slots[c.octant]
}

// IsVoxel сообщает, является ли текущий узел листом
func (c *Cursor) IsVoxel() bool {
	return c.Valid() && c.level == c.tree.depth
}

// BranchWidth длина ребра куба, покрытого текущим узлом
func (c *Cursor) BranchWidth() int {
	return 1 << (c.tree.depth - c.level)
}

// Value содержимое текущего листа. Вызывать только если IsVoxel().
func (c *Cursor) Value() Voxel {
	return c.Leaf().Voxel
}

// Leaf текущий лист целиком. Вызывать только если IsVoxel().
func (c *Cursor) Leaf() Leaf {
	return *c.tree.leaves.At(c.Handle())
}

// Children возвращает курсор на уровень глубже, по детям текущей ветви.
// Для листа и исчерпанного курсора возвращается исчерпанный курсор.
func (c *Cursor) Children() Cursor {
	child := Cursor{tree: c.tree, level: c.level + 1, origin: c.pos}
	for i := range child.slots {
		child.slots[i] = pool.Invalid
	}
	if c.Valid() && !c.IsVoxel() {
		child.slots = c.tree.branches.At(c.Handle()).Children
	}
	child.octant = -1
	child.Next()
	return child
}

// Next переходит к следующему непустому октанту
func (c *Cursor) Next() {
	for c.octant++; c.octant < len(c.slots); c.octant++ {
		if c.slots[c.octant] != pool.Invalid {
			c.pos = c.position()
			return
		}
	}
}

func (c *Cursor) position() vec.Vec3 {
	if c.level == 0 {
		return vec.Vec3{}
	}
	if c.level == c.tree.depth {
		return voxelCell(c.origin, c.octant)
	}
	return childCenter(c.origin, c.octant, 1<<(c.tree.depth-c.level-1))
}

// Walk обходит все листья дерева в порядке курсора.
// Обход прекращается, если fn вернула false.
func (o *Octree) Walk(fn func(h pool.Handle, leaf Leaf) bool) {
	walk(o.Iterate(), fn)
}

func walk(c Cursor, fn func(h pool.Handle, leaf Leaf) bool) bool {
	for ; c.Valid(); c.Next() {
		if c.IsVoxel() {
			if !fn(c.Handle(), c.Leaf()) {
				return false
			}
			continue
		}
		if !walk(c.Children(), fn) {
			return false
		}
	}
	return true
}
