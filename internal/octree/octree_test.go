package octree

import (
	"errors"
	"testing"

	"github.com/annel0/shipgrid/internal/pool"
	"github.com/annel0/shipgrid/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v3(x, y, z int) vec.Vec3 {
	return vec.Vec3{X: x, Y: y, Z: z}
}

func mustInsert(t *testing.T, o *Octree, pos vec.Vec3, v Voxel) {
	t.Helper()
	_, err := o.Insert(pos, v)
	require.NoError(t, err)
}

func TestOctreeEmpty(t *testing.T) {
	o := New()
	assert.Equal(t, 1, o.Depth())
	assert.Equal(t, 1, o.Width())
	assert.Equal(t, 1, o.Size())
	assert.False(t, o.IsOutside(v3(0, 0, 0)))
	assert.True(t, o.IsOutside(v3(1, 0, 0)))
	assert.True(t, o.IsOutside(v3(0, -1, 0)))

	_, ok := o.Find(v3(0, 0, 0))
	assert.False(t, ok)
}

func TestOctreeSingleVoxel(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 123})

	assert.Equal(t, 1, o.Depth())
	assert.Equal(t, 1, o.Width())
	assert.Equal(t, 2, o.Size())

	v, ok := o.Find(v3(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, uint16(123), v.Type)

	_, ok = o.Find(v3(1, 0, 0))
	assert.False(t, ok)
}

func TestOctreeCube(t *testing.T) {
	o := New()
	voxels := map[vec.Vec3]Voxel{}
	n := uint16(0)
	for x := -1; x <= 0; x++ {
		for y := -1; y <= 0; y++ {
			for z := -1; z <= 0; z++ {
				n++
				voxels[v3(x, y, z)] = Voxel{Type: n, Color: uint8(n), Rotation: uint8(x + 2)}
			}
		}
	}
	for pos, v := range voxels {
		mustInsert(t, o, pos, v)
	}

	assert.Equal(t, 2, o.Depth())
	assert.Equal(t, 2, o.Width())
	assert.Equal(t, 17, o.Size())

	for pos, want := range voxels {
		got, ok := o.Find(pos)
		require.True(t, ok, "ячейка %v не найдена", pos)
		assert.Equal(t, want, got, "неверный воксель в %v", pos)
	}
}

func TestOctreeGrowth(t *testing.T) {
	t.Run("один шаг", func(t *testing.T) {
		o := New()
		mustInsert(t, o, v3(1, 0, 0), Voxel{Type: 1})
		assert.Equal(t, 2, o.Depth())
		assert.Equal(t, 2, o.Width())
		assert.Equal(t, 3, o.Size())
	})

	t.Run("общая ветвь", func(t *testing.T) {
		o := New()
		mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
		mustInsert(t, o, v3(1, 0, 0), Voxel{Type: 2})
		assert.Equal(t, 2, o.Depth())
		assert.Equal(t, 4, o.Size())
	})

	t.Run("два шага", func(t *testing.T) {
		o := New()
		mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
		mustInsert(t, o, v3(2, 0, 0), Voxel{Type: 2})
		assert.Equal(t, 3, o.Depth())
		assert.Equal(t, 4, o.Width())
		assert.Equal(t, 6, o.Size())

		v, ok := o.Find(v3(0, 0, 0))
		require.True(t, ok)
		assert.Equal(t, uint16(1), v.Type)
		v, ok = o.Find(v3(2, 0, 0))
		require.True(t, ok)
		assert.Equal(t, uint16(2), v.Type)
	})

	t.Run("линия", func(t *testing.T) {
		o := New()
		for x := 0; x < 8; x++ {
			mustInsert(t, o, v3(x, 0, 0), Voxel{Type: uint16(x)})
			assert.False(t, o.IsOutside(v3(x, 0, 0)))
		}
		assert.Equal(t, 4, o.Depth())
		assert.Equal(t, 8, o.Width())
		for x := 0; x < 8; x++ {
			v, ok := o.Find(v3(x, 0, 0))
			require.True(t, ok)
			assert.Equal(t, uint16(x), v.Type)
		}
	})

	t.Run("отрицательные координаты", func(t *testing.T) {
		o := New()
		points := []vec.Vec3{v3(5, -3, 2), v3(-17, 0, 9), v3(0, 0, 0), v3(-1, -1, -1), v3(31, 31, -31)}
		for i, p := range points {
			mustInsert(t, o, p, Voxel{Type: uint16(i + 1)})
		}
		for i, p := range points {
			v, ok := o.Find(p)
			require.True(t, ok, "ячейка %v потеряна после роста", p)
			assert.Equal(t, uint16(i+1), v.Type)
		}
	})
}

func TestOctreeExpandTwice(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
	mustInsert(t, o, v3(-1, 0, 0), Voxel{Type: 2})
	mustInsert(t, o, v3(1, 0, 0), Voxel{Type: 3})
	mustInsert(t, o, v3(-1, 0, 1), Voxel{Type: 4})

	_, ok := o.Find(v3(0, 0, 1))
	assert.False(t, ok)
	_, ok = o.Find(v3(1, 0, 1))
	assert.False(t, ok)
	v, ok := o.Find(v3(-1, 0, 1))
	require.True(t, ok)
	assert.Equal(t, uint16(4), v.Type)

	// Порядок октантов задан octantSigns: (+,+,+) (-,+,+) (-,+,-) (+,+,-) ...,
	// поэтому внутри ветви [-1,0,1] идёт раньше [-1,0,0]
	var order []vec.Vec3
	o.Walk(func(h pool.Handle, leaf Leaf) bool {
		order = append(order, leaf.Pos)
		return true
	})
	assert.Equal(t, []vec.Vec3{v3(0, 0, 0), v3(1, 0, 0), v3(-1, 0, 1), v3(-1, 0, 0)}, order)
}

func TestOctreeOverwrite(t *testing.T) {
	o := New()
	h1, err := o.Insert(v3(3, 3, 3), Voxel{Type: 1})
	require.NoError(t, err)
	size := o.Size()

	h2, err := o.Insert(v3(3, 3, 3), Voxel{Type: 2, Rotation: 5})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, size, o.Size())

	v, ok := o.Find(v3(3, 3, 3))
	require.True(t, ok)
	assert.Equal(t, Voxel{Type: 2, Rotation: 5}, v)
}

func TestOctreeRemove(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
	mustInsert(t, o, v3(5, 5, 5), Voxel{Type: 2})
	size := o.Size()

	v, ok := o.Remove(v3(5, 5, 5))
	require.True(t, ok)
	assert.Equal(t, uint16(2), v.Type)

	_, ok = o.Find(v3(5, 5, 5))
	assert.False(t, ok)
	v, ok = o.Find(v3(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, uint16(1), v.Type)

	// Ветви, оставшиеся без детей, освобождены
	assert.Less(t, o.Size(), size)
	assert.Equal(t, 1, o.Len())

	_, ok = o.Remove(v3(5, 5, 5))
	assert.False(t, ok)
	_, ok = o.Remove(v3(1000, 0, 0))
	assert.False(t, ok)

	_, ok = o.Remove(v3(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, 1, o.Size(), "остаётся только корень")

	mustInsert(t, o, v3(5, 5, 5), Voxel{Type: 3})
	v, ok = o.Find(v3(5, 5, 5))
	require.True(t, ok)
	assert.Equal(t, uint16(3), v.Type)
}

func TestOctreeTrim(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
	for x := 1; x < 6; x++ {
		mustInsert(t, o, v3(x, x, x), Voxel{Type: 2})
	}
	for x := 1; x < 6; x++ {
		_, ok := o.Remove(v3(x, x, x))
		require.True(t, ok)
	}

	assert.Greater(t, o.Trim(), 0)
	assert.Equal(t, 0, o.Trim())

	v, ok := o.Find(v3(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, uint16(1), v.Type)
}

func TestOctreeCapacity(t *testing.T) {
	o := NewWithCapacity(4)
	mustInsert(t, o, v3(0, 0, 0), Voxel{})
	mustInsert(t, o, v3(-1, -1, -1), Voxel{})

	var err error
	for x := 0; x < 8 && err == nil; x++ {
		_, err = o.Insert(v3(x*4, 0, 0), Voxel{})
	}
	assert.True(t, errors.Is(err, pool.ErrCapacityExceeded))
}

func TestOctreeFailedGrowthKeepsTree(t *testing.T) {
	o := NewWithCapacity(4)
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 1})
	mustInsert(t, o, v3(-1, -1, -1), Voxel{Type: 2})
	require.Equal(t, 2, o.Depth())
	size := o.Size()

	// Два занятых октанта корня, а свободная ветвь одна
	_, err := o.Insert(v3(5, 5, 5), Voxel{Type: 3})
	require.True(t, errors.Is(err, pool.ErrCapacityExceeded), "получено %v", err)

	assert.Equal(t, 2, o.Depth())
	assert.Equal(t, size, o.Size(), "при неудачном росте узлы не выделяются")

	v, ok := o.Find(v3(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, uint16(1), v.Type)
	v, ok = o.Find(v3(-1, -1, -1))
	require.True(t, ok)
	assert.Equal(t, uint16(2), v.Type)
	_, ok = o.Find(v3(5, 5, 5))
	assert.False(t, ok)

	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 4})
	v, ok = o.Find(v3(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, uint16(4), v.Type, "дерево остаётся рабочим")
}

func TestOctreeDepthOverflow(t *testing.T) {
	o := New()
	_, err := o.Insert(v3(1<<40, 0, 0), Voxel{})
	assert.True(t, errors.Is(err, ErrDepthOverflow))
}

func TestOctreeDump(t *testing.T) {
	o := New()
	mustInsert(t, o, v3(0, 0, 0), Voxel{Type: 7})
	mustInsert(t, o, v3(-1, 0, 0), Voxel{Type: 8})

	dump := o.Dump()
	assert.Contains(t, dump, "depth=2")
	assert.Contains(t, dump, "voxel [0,0,0] type=7")
	assert.Contains(t, dump, "voxel [-1,0,0] type=8")
}
