package octree

import (
	"math"

	"github.com/annel0/shipgrid/internal/pool"
	"github.com/annel0/shipgrid/internal/vec"
)

// normalThreshold порог, начиная с которого смещение точки попадания от центра
// ячейки считается лежащим на грани
const normalThreshold = 0.49

// RayHit результат пересечения отрезка с деревом
type RayHit struct {
	Leaf   pool.Handle
	Pos    vec.Vec3
	Voxel  Voxel
	HitPos vec.Vec3Float
	Normal vec.Vec3
}

// box кубический объём узла в мировых координатах.
// Ячейка p занимает [p-0.5, p+0.5] по каждой оси.
type box struct {
	min, max vec.Vec3Float
}

func cellBox(p vec.Vec3) box {
	c := p.ToFloat()
	h := vec.Vec3Float{X: 0.5, Y: 0.5, Z: 0.5}
	return box{min: c.Sub(h), max: c.Add(h)}
}

// branchBox объём ветви с центром center и ребром edge (в ячейках).
// Ветвь покрывает ячейки [center-edge/2, center+edge/2-1].
func branchBox(center vec.Vec3, edge int) box {
	half := float64(edge) / 2
	c := center.ToFloat()
	return box{
		min: vec.Vec3Float{X: c.X - half - 0.5, Y: c.Y - half - 0.5, Z: c.Z - half - 0.5},
		max: vec.Vec3Float{X: c.X + half - 0.5, Y: c.Y + half - 0.5, Z: c.Z + half - 0.5},
	}
}

// intersect пересекает отрезок from + t*dir, t в [0, 1], с коробкой методом слэбов.
// Возвращает параметр входа.
func (b box) intersect(from, dir vec.Vec3Float) (float64, bool) {
	tmin, tmax := 0.0, 1.0
	for axis := 0; axis < 3; axis++ {
		o, d := from.Axis(axis), dir.Axis(axis)
		lo, hi := b.min.Axis(axis), b.max.Axis(axis)
		if math.Abs(d) < 1e-12 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t0, t1 := (lo-o)/d, (hi-o)/d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math.Max(tmin, t0)
		tmax = math.Min(tmax, t1)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// RayCast ищет первую по ходу отрезка from -> to занятую ячейку.
// Дерево обходится сверху вниз, дети каждой ветви проверяются в порядке входа луча.
func (o *Octree) RayCast(from, to vec.Vec3Float) (RayHit, bool) {
	dir := to.Sub(from)
	if _, ok := branchBox(vec.Vec3{}, 2*o.Width()).intersect(from, dir); !ok {
		return RayHit{}, false
	}
	root := o.Iterate()
	return o.rayCastLevel(root.Children(), from, dir)
}

type rayCandidate struct {
	cursor Cursor
	t      float64
}

func (o *Octree) rayCastLevel(c Cursor, from, dir vec.Vec3Float) (RayHit, bool) {
	var candidates [8]rayCandidate
	n := 0
	for ; c.Valid(); c.Next() {
		var b box
		if c.IsVoxel() {
			b = cellBox(c.Pos())
		} else {
			b = branchBox(c.Pos(), c.BranchWidth())
		}
		t, ok := b.intersect(from, dir)
		if !ok {
			continue
		}
		// Вставка с сохранением порядка по t
		i := n
		for i > 0 && candidates[i-1].t > t {
			candidates[i] = candidates[i-1]
			i--
		}
		candidates[i] = rayCandidate{cursor: c, t: t}
		n++
	}

	for i := 0; i < n; i++ {
		cand := candidates[i].cursor
		if cand.IsVoxel() {
			hitPos := from.Add(dir.Scale(candidates[i].t))
			return RayHit{
				Leaf:   cand.Handle(),
				Pos:    cand.Pos(),
				Voxel:  cand.Value(),
				HitPos: hitPos,
				Normal: faceNormal(hitPos.Sub(cand.Pos().ToFloat())),
			}, true
		}
		if hit, ok := o.rayCastLevel(cand.Children(), from, dir); ok {
			return hit, true
		}
	}
	return RayHit{}, false
}

// faceNormal переводит смещение точки попадания от центра ячейки в нормаль грани.
// Оси проверяются в порядке X, Y, Z; если точка лежит внутри ячейки,
// выбирается ось с наибольшим смещением.
func faceNormal(d vec.Vec3Float) vec.Vec3 {
	switch {
	case d.X > normalThreshold:
		return vec.Vec3{X: 1}
	case d.X < -normalThreshold:
		return vec.Vec3{X: -1}
	case d.Y > normalThreshold:
		return vec.Vec3{Y: 1}
	case d.Y < -normalThreshold:
		return vec.Vec3{Y: -1}
	case d.Z > normalThreshold:
		return vec.Vec3{Z: 1}
	case d.Z < -normalThreshold:
		return vec.Vec3{Z: -1}
	}

	ax, ay, az := math.Abs(d.X), math.Abs(d.Y), math.Abs(d.Z)
	switch {
	case ax >= ay && ax >= az:
		return vec.Vec3{X: sign(d.X)}
	case ay >= az:
		return vec.Vec3{Y: sign(d.Y)}
	default:
		return vec.Vec3{Z: sign(d.Z)}
	}
}

func sign(f float64) int {
	if f < 0 {
		return -1
	}
	return 1
}
