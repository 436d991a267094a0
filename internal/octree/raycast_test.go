package octree

import (
	"testing"

	"github.com/annel0/shipgrid/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRayCastRow(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
	mustInsert(t, o, v3(1, 0, 0), Voxel{Type: 2})
	mustInsert(t, o, v3(2, 0, 0), Voxel{Type: 3})

	tests := []struct {
		name     string
		from, to vec.Vec3Float
		pos      vec.Vec3
		hitPos   vec.Vec3Float
		normal   vec.Vec3
	}{
		{
			name:   "сверху на первую ячейку",
			from:   vec.Vec3Float{X: -1.8079, Y: 1.6197, Z: 2.1964},
			to:     vec.Vec3Float{X: 56.6264, Y: -37.6196, Z: -71.3039},
			pos:    v3(0, 0, 0),
			hitPos: vec.Vec3Float{X: -0.1404, Y: 0.5, Z: 0.0990},
			normal: vec.Vec3{Y: 1},
		},
		{
			name:   "сверху под острым углом",
			from:   vec.Vec3Float{X: -2.3182, Y: 0.8346, Z: 0.8073},
			to:     vec.Vec3Float{X: 96.6622, Y: -14.8716, Z: -22.7637},
			pos:    v3(0, 0, 0),
			hitPos: vec.Vec3Float{X: -0.2095, Y: 0.5, Z: 0.3052},
			normal: vec.Vec3{Y: 1},
		},
		{
			name:   "сбоку в торец ряда",
			from:   vec.Vec3Float{X: 6.0170, Y: 0.8460, Z: 0.0430},
			to:     vec.Vec3Float{X: -94.3868, Y: -12.2380, Z: 0.3020},
			pos:    v3(2, 0, 0),
			hitPos: vec.Vec3Float{X: 2.5, Y: 0.3877, Z: 0.0521},
			normal: vec.Vec3{X: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := o.RayCast(tt.from, tt.to)
			require.True(t, ok)
			assert.Equal(t, tt.pos, hit.Pos)
			assert.InDelta(t, tt.hitPos.X, hit.HitPos.X, 0.01)
			assert.InDelta(t, tt.hitPos.Y, hit.HitPos.Y, 0.01)
			assert.InDelta(t, tt.hitPos.Z, hit.HitPos.Z, 0.01)
			assert.Equal(t, tt.normal, hit.Normal)

			leaf, ok := o.Leaf(hit.Leaf)
			require.True(t, ok)
			assert.Equal(t, hit.Pos, leaf.Pos)
		})
	}
}

func TestRayCastNearestFirst(t *testing.T) {
	o := New()
	for x := -6; x <= 6; x += 3 {
		mustInsert(t, o, v3(x, 0, 0), Voxel{Type: uint16(x + 10)})
	}

	hit, ok := o.RayCast(vec.Vec3Float{X: -20}, vec.Vec3Float{X: 20})
	require.True(t, ok)
	assert.Equal(t, v3(-6, 0, 0), hit.Pos)
	assert.Equal(t, vec.Vec3{X: -1}, hit.Normal)
	assert.InDelta(t, -6.5, hit.HitPos.X, 1e-9)

	hit, ok = o.RayCast(vec.Vec3Float{X: 20}, vec.Vec3Float{X: -20})
	require.True(t, ok)
	assert.Equal(t, v3(6, 0, 0), hit.Pos)
	assert.Equal(t, vec.Vec3{X: 1}, hit.Normal)
}

func TestRayCastMiss(t *testing.T) {
	o := New()
	_, ok := o.RayCast(vec.Vec3Float{X: -5}, vec.Vec3Float{X: 5})
	assert.False(t, ok, "пустое дерево")

	mustInsert(t, o, v3(0, 0, 0), Voxel{})
	mustInsert(t, o, v3(3, 3, 3), Voxel{})

	_, ok = o.RayCast(vec.Vec3Float{X: -5, Y: 2}, vec.Vec3Float{X: 5, Y: 2})
	assert.False(t, ok, "луч проходит над ячейками")

	_, ok = o.RayCast(vec.Vec3Float{X: -5}, vec.Vec3Float{X: -1})
	assert.False(t, ok, "отрезок заканчивается до ячейки")

	_, ok = o.RayCast(vec.Vec3Float{X: 100, Y: 100}, vec.Vec3Float{X: 200, Y: 100})
	assert.False(t, ok, "отрезок вне дерева")
}

func TestRayCastFromInside(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 9})

	hit, ok := o.RayCast(vec.Vec3Float{X: 0.1}, vec.Vec3Float{X: 0.1, Y: 5})
	require.True(t, ok)
	assert.Equal(t, v3(0, 0, 0), hit.Pos)
	assert.Equal(t, vec.Vec3Float{X: 0.1}, hit.HitPos)
	assert.Equal(t, uint16(9), hit.Voxel.Type)
}

func TestFaceNormal(t *testing.T) {
	assert.Equal(t, vec.Vec3{Z: -1}, faceNormal(vec.Vec3Float{X: 0.1, Y: 0.2, Z: -0.5}))
	assert.Equal(t, vec.Vec3{Y: -1}, faceNormal(vec.Vec3Float{Y: -0.3}))
	assert.Equal(t, vec.Vec3{X: 1}, faceNormal(vec.Vec3Float{}))
}
