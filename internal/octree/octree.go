// Package octree реализует разреженное октодерево над целочисленной решёткой
// со знаковыми координатами. Дерево растёт автоматически, сохраняя координаты
// уже вставленных ячеек.
package octree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/shipgrid/internal/pool"
	"github.com/annel0/shipgrid/internal/vec"
)

// MaxDepth максимальная глубина дерева; ширина корня 2^(MaxDepth-1)
const MaxDepth = 31

// ErrDepthOverflow возвращается, когда для вставки требуется глубина больше MaxDepth
var ErrDepthOverflow = errors.New("octree: depth overflow")

// Voxel полезная нагрузка листа
type Voxel struct {
	Type     uint16
	Color    uint8
	Rotation uint8
}

// Leaf лист дерева: ячейка и её содержимое.
// Позиция избыточна (следует из пути в дереве), но хранится для доступа за O(1).
type Leaf struct {
	Pos   vec.Vec3
	Voxel Voxel
}

// Branch внутренний узел с восемью дочерними хэндлами, по одному на октант.
// На последнем уровне дети - хэндлы листьев, выше - хэндлы ветвей.
type Branch struct {
	Children [8]pool.Handle
}

func (b *Branch) empty() bool {
	for _, c := range b.Children {
		if c != pool.Invalid {
			return false
		}
	}
	return true
}

// Знаки смещения октанта относительно центра узла.
// Порядок задаёт и порядок обхода: (+,+,+) (-,+,+) (-,+,-) (+,+,-) (+,-,+) (-,-,+) (-,-,-) (+,-,-)
var octantSigns = [8]vec.Vec3{
	{X: 1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: -1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: -1},
	{X: 1, Y: -1, Z: -1},
}

// oppositeOctant октант с противоположными знаками по всем осям
var oppositeOctant = [8]int{6, 7, 4, 5, 2, 3, 0, 1}

// octantOf выбирает октант, в который попадает pos относительно центра
func octantOf(pos, center vec.Vec3) int {
	px, py, pz := pos.X >= center.X, pos.Y >= center.Y, pos.Z >= center.Z
	switch {
	case py && px && pz:
		return 0
	case py && !px && pz:
		return 1
	case py && !px && !pz:
		return 2
	case py && px && !pz:
		return 3
	case !py && px && pz:
		return 4
	case !py && !px && pz:
		return 5
	case !py && !px && !pz:
		return 6
	default:
		return 7
	}
}

// childCenter центр дочерней ветви; quarter - четверть ребра родителя
func childCenter(center vec.Vec3, octant, quarter int) vec.Vec3 {
	return center.Add(octantSigns[octant].Scale(quarter))
}

// voxelCell ячейка, которую занимает лист в октанте ветви последнего уровня
func voxelCell(center vec.Vec3, octant int) vec.Vec3 {
	s := octantSigns[octant]
	cell := center
	if s.X < 0 {
		cell.X--
	}
	if s.Y < 0 {
		cell.Y--
	}
	if s.Z < 0 {
		cell.Z--
	}
	return cell
}

// Octree разреженное октодерево.
// Корень - ветвь с центром в начале координат, покрывающая куб со стороной 2*Width().
// Ячейки p внутри корня удовлетворяют -Width() < p < Width() по каждой оси.
type Octree struct {
	branches *pool.Pool[Branch]
	leaves   *pool.Pool[Leaf]
	root     pool.Handle
	depth    int
}

// New создаёт дерево с пулами ёмкости по умолчанию
func New() *Octree {
	return NewWithCapacity(pool.DefaultCapacity)
}

// NewWithCapacity создаёт дерево, каждый из пулов которого (ветви и листья)
// вмещает не больше capacity узлов.
func NewWithCapacity(capacity int) *Octree {
	o := &Octree{
		branches: pool.New[Branch](capacity),
		leaves:   pool.New[Leaf](capacity),
		depth:    1,
	}
	root, err := o.newBranch()
	if err != nil {
		// Пул всегда вмещает хотя бы один узел
		panic(err)
	}
	o.root = root
	return o
}

func (o *Octree) newBranch() (pool.Handle, error) {
	h, b, err := o.branches.Insert()
	if err != nil {
		return pool.Invalid, err
	}
	for i := range b.Children {
		b.Children[i] = pool.Invalid
	}
	return h, nil
}

// Depth возвращает количество уровней ветвей от корня до листьев
func (o *Octree) Depth() int {
	return o.depth
}

// Width возвращает ширину дерева 2^(depth-1)
func (o *Octree) Width() int {
	return 1 << (o.depth - 1)
}

// Size возвращает общее количество узлов (ветви и листья)
func (o *Octree) Size() int {
	return o.branches.Size() + o.leaves.Size()
}

// Len возвращает количество листьев
func (o *Octree) Len() int {
	return o.leaves.Size()
}

// IsOutside проверяет, лежит ли позиция вне куба, покрытого корнем
func (o *Octree) IsOutside(pos vec.Vec3) bool {
	w := o.Width()
	return pos.X >= w || pos.X <= -w ||
		pos.Y >= w || pos.Y <= -w ||
		pos.Z >= w || pos.Z <= -w
}

// Insert записывает воксель в ячейку pos, при необходимости увеличивая дерево.
// Существующий воксель перезаписывается. Возвращает хэндл листа.
func (o *Octree) Insert(pos vec.Vec3, v Voxel) (pool.Handle, error) {
	for o.IsOutside(pos) {
		if err := o.grow(); err != nil {
			return pool.Invalid, err
		}
	}

	h := o.root
	var center vec.Vec3
	for level := 0; ; level++ {
		oct := octantOf(pos, center)
		child := o.branches.At(h).Children[oct]

		if level+1 == o.depth {
			if child != pool.Invalid {
				o.leaves.At(child).Voxel = v
				return child, nil
			}
			lh, leaf, err := o.leaves.Insert()
			if err != nil {
				return pool.Invalid, err
			}
			*leaf = Leaf{Pos: pos, Voxel: v}
			o.branches.At(h).Children[oct] = lh
			return lh, nil
		}

		if child == pool.Invalid {
			nh, err := o.newBranch()
			if err != nil {
				return pool.Invalid, err
			}
			o.branches.At(h).Children[oct] = nh
			child = nh
		}
		center = childCenter(center, oct, 1<<(o.depth-level-2))
		h = child
	}
}

// grow удваивает ширину дерева. Корень остаётся на месте, а каждый занятый
// октант корня оборачивается новой ветвью, в которой прежний ребёнок занимает
// противоположный октант. Абсолютные координаты всех ячеек сохраняются.
// Если ветвей на все октанты не хватает, дерево не меняется.
func (o *Octree) grow() error {
	if o.depth >= MaxDepth {
		return fmt.Errorf("%w: %d", ErrDepthOverflow, o.depth)
	}

	children := o.branches.At(o.root).Children
	occupied := 0
	for _, child := range children {
		if child != pool.Invalid {
			occupied++
		}
	}
	if occupied > o.branches.Available() {
		return fmt.Errorf("%w: growth needs %d branches, %d left",
			pool.ErrCapacityExceeded, occupied, o.branches.Available())
	}

	for oct, child := range children {
		if child == pool.Invalid {
			continue
		}
		nh, err := o.newBranch()
		if err != nil {
			return err
		}
		o.branches.At(nh).Children[oppositeOctant[oct]] = child
		o.branches.At(o.root).Children[oct] = nh
	}
	o.depth++
	return nil
}

// FindLeaf ищет хэндл листа в ячейке pos
func (o *Octree) FindLeaf(pos vec.Vec3) (pool.Handle, bool) {
	if o.IsOutside(pos) {
		return pool.Invalid, false
	}

	h := o.root
	var center vec.Vec3
	for level := 0; ; level++ {
		oct := octantOf(pos, center)
		child := o.branches.At(h).Children[oct]
		if child == pool.Invalid {
			return pool.Invalid, false
		}
		if level+1 == o.depth {
			return child, true
		}
		center = childCenter(center, oct, 1<<(o.depth-level-2))
		h = child
	}
}

// Find возвращает воксель в ячейке pos
func (o *Octree) Find(pos vec.Vec3) (Voxel, bool) {
	h, ok := o.FindLeaf(pos)
	if !ok {
		return Voxel{}, false
	}
	return o.leaves.At(h).Voxel, true
}

// Leaf возвращает лист по хэндлу, если хэндл жив
func (o *Octree) Leaf(h pool.Handle) (Leaf, bool) {
	if !o.leaves.Valid(h) {
		return Leaf{}, false
	}
	return *o.leaves.At(h), true
}

// Remove удаляет воксель из ячейки pos и освобождает ставшие пустыми ветви.
// Корень не удаляется, глубина не уменьшается.
func (o *Octree) Remove(pos vec.Vec3) (Voxel, bool) {
	if o.IsOutside(pos) {
		return Voxel{}, false
	}

	type step struct {
		branch pool.Handle
		octant int
	}
	path := make([]step, 0, o.depth)

	h := o.root
	var center vec.Vec3
	for level := 0; ; level++ {
		oct := octantOf(pos, center)
		child := o.branches.At(h).Children[oct]
		if child == pool.Invalid {
			return Voxel{}, false
		}
		path = append(path, step{branch: h, octant: oct})
		if level+1 == o.depth {
			break
		}
		center = childCenter(center, oct, 1<<(o.depth-level-2))
		h = child
	}

	last := path[len(path)-1]
	leafHandle := o.branches.At(last.branch).Children[last.octant]
	removed := o.leaves.At(leafHandle).Voxel
	o.leaves.Erase(leafHandle)
	o.branches.At(last.branch).Children[last.octant] = pool.Invalid

	for i := len(path) - 1; i > 0; i-- {
		b := path[i].branch
		if !o.branches.At(b).empty() {
			break
		}
		o.branches.Erase(b)
		parent := path[i-1]
		o.branches.At(parent.branch).Children[parent.octant] = pool.Invalid
	}
	return removed, true
}

// Trim отбрасывает освобождённые слоты в конце пулов и возвращает их количество
func (o *Octree) Trim() int {
	return o.branches.Trim() + o.leaves.Trim()
}

// Dump возвращает текстовое представление структуры дерева для отладки
func (o *Octree) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "octree depth=%d width=%d size=%d\n", o.depth, o.Width(), o.Size())
	dumpLevel(&sb, o.Iterate())
	return sb.String()
}

func dumpLevel(sb *strings.Builder, c Cursor) {
	for ; c.Valid(); c.Next() {
		sb.WriteString(strings.Repeat("  ", c.Level()))
		if c.IsVoxel() {
			v := c.Value()
			fmt.Fprintf(sb, "voxel %v type=%d rot=%d color=%d\n", c.Pos(), v.Type, v.Rotation, v.Color)
			continue
		}
		fmt.Fprintf(sb, "branch #%d level=%d pos=%v width=%d\n", c.Handle(), c.Level(), c.Pos(), c.BranchWidth())
		dumpLevel(sb, c.Children())
	}
}
