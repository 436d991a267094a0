package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	hull, err := r.Register("hull_steel")
	require.NoError(t, err)
	assert.NotEqual(t, NoAsset, hull.ID)
	assert.False(t, hull.IsZero())

	again, err := r.Register("hull_steel")
	require.NoError(t, err)
	assert.Equal(t, hull, again, "повторная регистрация должна вернуть тот же ассет")

	glass, err := r.Register("  window_glass ")
	require.NoError(t, err)
	assert.NotEqual(t, hull.ID, glass.ID)
	assert.Equal(t, "window_glass", glass.Name)

	_, err = r.Register("   ")
	assert.Error(t, err)

	got, ok := r.ByID(glass.ID)
	require.True(t, ok)
	assert.Equal(t, glass, got)

	assert.True(t, r.IsValid(hull))
	assert.False(t, r.IsValid(Asset{ID: hull.ID, Name: "other"}))
	assert.False(t, r.IsValid(Asset{}))
	assert.Equal(t, []string{"hull_steel", "window_glass"}, r.Names())
}

func TestRegistryLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.yml")
	require.NoError(t, os.WriteFile(path, []byte("blocks:\n  - engine\n  - thruster\n  - engine\n"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.LoadFile(path))
	assert.Equal(t, []string{"engine", "thruster"}, r.Names())

	_, ok := r.Get("thruster")
	assert.True(t, ok)

	assert.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "missing.yml")))
}

func TestAssetZero(t *testing.T) {
	assert.True(t, Asset{}.IsZero())
	assert.Equal(t, "engine#3", Asset{ID: 3, Name: "engine"}.String())
}
