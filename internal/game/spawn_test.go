package game

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout_Valid(t *testing.T) {
	l := DefaultLayout()
	require.NoError(t, l.Validate())
	assert.Len(t, l.SpawnPoints, 8)
}

func TestLayout_Validate(t *testing.T) {
	l := DefaultLayout()

	short := l
	short.SpawnPoints = l.SpawnPoints[:1]
	assert.Error(t, short.Validate())

	flat := l
	flat.HalfExtent = 0
	assert.Error(t, flat.Validate())

	out := DefaultLayout()
	out.HalfExtent = 5
	assert.Error(t, out.Validate(), "ring points lie outside a 5-unit arena")
}

func TestLoadLayout_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena.yaml")
	content := []byte(`name: warehouse
half_extent: 30
spawn_points:
  - {x: -20, y: 0, z: -20}
  - {x: 20, y: 0, z: 20}
  - {x: -20, y: 0, z: 20}
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	l, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", l.Name)
	assert.Len(t, l.SpawnPoints, 3)
	assert.Equal(t, -20.0, l.SpawnPoints[0].X)
}

func TestLoadLayout_Missing(t *testing.T) {
	_, err := LoadLayout(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSpawnPicker_AtWraps(t *testing.T) {
	p := NewSpawnPicker(DefaultLayout(), 1)
	assert.Equal(t, p.At(0), p.At(8))
	assert.Equal(t, p.At(3), p.At(11))
}

func TestSpawnPicker_FreshAvoidsPrevious(t *testing.T) {
	p := NewSpawnPicker(DefaultLayout(), 42)
	for prev := 0; prev < p.Points(); prev++ {
		for i := 0; i < 50; i++ {
			idx, pos := p.Fresh(prev)
			require.NotEqual(t, prev, idx)
			assert.Equal(t, p.At(idx), pos)
		}
	}
}
