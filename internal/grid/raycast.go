package grid

import (
	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/vec"
)

// RayCastResult результат луча выбора
type RayCastResult struct {
	Ref    NodeRef
	Node   Node
	Asset  block.Asset
	HitPos vec.Vec3Float
	Normal vec.Vec3
}

// Adjacent ячейка по другую сторону задетой грани, куда ставится следующий блок
func (r RayCastResult) Adjacent() vec.Vec3 {
	return r.Node.Pos.Add(r.Normal)
}

// RayCast ищет первый блок на отрезке from -> to
func (g *BlockGrid) RayCast(from, to vec.Vec3Float) (RayCastResult, bool) {
	hit, ok := g.voxels.RayCast(from, to)
	if !ok {
		return RayCastResult{}, false
	}
	t, ok := g.liveType(hit.Voxel.Type)
	if !ok {
		return RayCastResult{}, false
	}
	return RayCastResult{
		Ref: NodeRef{Handle: hit.Leaf, Pos: hit.Pos},
		Node: Node{
			Pos:      hit.Pos,
			Rotation: hit.Voxel.Rotation,
			Color:    hit.Voxel.Color,
			Type:     hit.Voxel.Type,
		},
		Asset:  t.Asset,
		HitPos: hit.HitPos,
		Normal: hit.Normal,
	}, true
}
