package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	a int
	b string
}

func TestPoolInsertErase(t *testing.T) {
	p := New[item](0)

	assert.Equal(t, 0, p.Size())
	assert.Equal(t, Handle(DefaultCapacity), p.NextEmpty())

	h, it, err := p.Insert()
	require.NoError(t, err)
	assert.Equal(t, Handle(0), h)
	it.a, it.b = 10, "Hello World"
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, Handle(1), p.NextEmpty())

	for i := 1; i < 1026; i++ {
		h, it, err := p.Insert()
		require.NoError(t, err)
		require.Equal(t, Handle(i), h)
		it.a = i
	}
	assert.Equal(t, 1026, p.Size())
	assert.Equal(t, Handle(1026), p.NextEmpty())

	assert.Equal(t, 10, p.At(0).a)
	assert.Equal(t, "Hello World", p.At(0).b)
	assert.Equal(t, 3, p.At(3).a)

	p.Erase(3)
	assert.Equal(t, 1025, p.Size())
	assert.Equal(t, Handle(3), p.NextEmpty())
	assert.False(t, p.Valid(3))

	h, it, err = p.Insert()
	require.NoError(t, err)
	assert.Equal(t, Handle(3), h)
	assert.Equal(t, 0, it.a, "переиспользованный слот должен быть обнулён")
	assert.Equal(t, 1026, p.Size())
	assert.Equal(t, Handle(1026), p.NextEmpty())
}

func TestPoolReusesEveryErasedHandle(t *testing.T) {
	p := New[int](16)
	for i := 0; i < 8; i++ {
		_, _, err := p.Insert()
		require.NoError(t, err)
	}

	p.Erase(2)
	p.Erase(5)

	h1, _, err := p.Insert()
	require.NoError(t, err)
	h2, _, err := p.Insert()
	require.NoError(t, err)
	h3, _, err := p.Insert()
	require.NoError(t, err)

	assert.Equal(t, Handle(5), h1)
	assert.Equal(t, Handle(2), h2)
	assert.Equal(t, Handle(8), h3)
	assert.Equal(t, 9, p.Size())
}

func TestPoolCapacityExceeded(t *testing.T) {
	p := New[int](2)
	assert.Equal(t, 2, p.Available())
	_, _, err := p.Insert()
	require.NoError(t, err)
	_, _, err = p.Insert()
	require.NoError(t, err)

	assert.Equal(t, 0, p.Available())
	assert.Equal(t, Handle(2), p.NextEmpty())
	_, _, err = p.Insert()
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	p.Erase(0)
	assert.Equal(t, 1, p.Available(), "освобождённый слот снова доступен")
	h, _, err := p.Insert()
	require.NoError(t, err)
	assert.Equal(t, Handle(0), h)
}

func TestPoolInvalidHandlePanics(t *testing.T) {
	p := New[int](4)
	assert.Panics(t, func() { p.At(0) })

	h, _, err := p.Insert()
	require.NoError(t, err)
	p.Erase(h)
	assert.Panics(t, func() { p.Erase(h) })
	assert.Panics(t, func() { p.At(Invalid) })
}

func TestPoolEachAndTrim(t *testing.T) {
	p := New[int](0)
	for i := 0; i < 6; i++ {
		_, v, err := p.Insert()
		require.NoError(t, err)
		*v = i * 10
	}
	p.Erase(1)
	p.Erase(4)
	p.Erase(5)

	var seen []int
	p.Each(func(h Handle, v *int) bool {
		seen = append(seen, *v)
		return true
	})
	assert.Equal(t, []int{0, 20, 30}, seen)

	assert.Equal(t, 2, p.Trim())
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, 3, p.Size())
	assert.Equal(t, Handle(1), p.NextEmpty())
	assert.Equal(t, 0, p.Trim())

	h, _, err := p.Insert()
	require.NoError(t, err)
	assert.Equal(t, Handle(1), h)
	h, _, err = p.Insert()
	require.NoError(t, err)
	assert.Equal(t, Handle(4), h)
}
