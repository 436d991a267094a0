package grid

import (
	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/octree"
	"github.com/annel0/shipgrid/internal/pool"
	"github.com/go-gl/mathgl/mgl32"
)

// Transform мировое преобразование инстанса: сдвиг и дискретный поворот,
// который разворачивается рендером
type Transform struct {
	Translation mgl32.Vec3
	Rotation    uint8
}

// Matrix возвращает матрицу сдвига инстанса
func (t Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z())
}

// InstanceBuffer списки инстансов по ассетам
type InstanceBuffer map[block.Asset][]Transform

// BuildInstanceBuffer собирает преобразования всех блоков по ассетам.
// В инкрементальном режиме в результат попадают только изменившиеся типы;
// тип, у которого не осталось блоков, попадает с пустым списком и освобождается.
// После вызова флаги изменения сброшены.
func (g *BlockGrid) BuildInstanceBuffer(incremental bool) InstanceBuffer {
	out := make(InstanceBuffer)
	selected := make([]bool, len(g.types))
	for i, t := range g.types {
		if t.Asset.IsZero() || (incremental && !t.Dirty) {
			continue
		}
		selected[i] = true
		out[t.Asset] = make([]Transform, 0, t.Count)
	}
	if len(out) == 0 {
		return out
	}

	g.voxels.Walk(func(h pool.Handle, leaf octree.Leaf) bool {
		idx := int(leaf.Voxel.Type)
		if idx >= len(selected) || !selected[idx] {
			return true
		}
		asset := g.types[idx].Asset
		out[asset] = append(out[asset], Transform{
			Translation: mgl32.Vec3{float32(leaf.Pos.X), float32(leaf.Pos.Y), float32(leaf.Pos.Z)},
			Rotation:    leaf.Voxel.Rotation,
		})
		return true
	})

	for i, ok := range selected {
		if !ok {
			continue
		}
		g.types[i].Dirty = false
		g.reclaimType(uint16(i))
	}
	return out
}

// Dirty сообщает, есть ли типы, изменившиеся с последней сборки
func (g *BlockGrid) Dirty() bool {
	for _, t := range g.types {
		if t.Dirty {
			return true
		}
	}
	return false
}
