package fileops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/primitives"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestMkdirAndIsFound(t *testing.T) {
	root := primitives.Filepath(t.TempDir())
	dir := root.Join("a", "b")

	assert.False(t, IsFound(dir))
	require.NoError(t, Mkdir(dir))
	assert.True(t, IsFound(dir))
	assert.False(t, IsFound(""))
}

func TestRmAll(t *testing.T) {
	root := primitives.Filepath(t.TempDir())
	touch(t, root.Join("a", "f").String())

	require.NoError(t, RmAll(root.Join("a")))
	assert.False(t, IsFound(root.Join("a")))

	require.NoError(t, RmAll(root.Join("missing")))
}

func TestRmAllExcept(t *testing.T) {
	root := primitives.Filepath(t.TempDir())
	touch(t, root.Join("area", "keep", "data").String())
	touch(t, root.Join("area", "drop", "data").String())
	touch(t, root.Join("area", "file").String())

	err := RmAllExcept(root.Join("area"), []primitives.Filepath{root.Join("area", "keep")})
	require.NoError(t, err)

	assert.True(t, IsFound(root.Join("area", "keep", "data")))
	assert.False(t, IsFound(root.Join("area", "drop")))
	assert.False(t, IsFound(root.Join("area", "file")))
}

func TestRmAllExcept_TargetProtected(t *testing.T) {
	root := primitives.Filepath(t.TempDir())
	touch(t, root.Join("area", "data").String())

	require.NoError(t, RmAllExcept(root.Join("area", "."), []primitives.Filepath{root}))
	assert.True(t, IsFound(root.Join("area", "data")))
}

func TestMove(t *testing.T) {
	root := primitives.Filepath(t.TempDir())
	touch(t, root.Join("src", "obj", "data").String())

	require.NoError(t, Move(root.Join("src", "obj"), root.Join("dst", "nested", "obj")))
	assert.True(t, IsFound(root.Join("dst", "nested", "obj", "data")))
	assert.False(t, IsFound(root.Join("src", "obj")))

	// nothing to move
	require.NoError(t, Move(root.Join("src", "obj"), root.Join("dst", "other")))
	assert.False(t, IsFound(root.Join("dst", "other")))
}

func TestIsEmptyDir(t *testing.T) {
	root := primitives.Filepath(t.TempDir())

	empty, err := IsEmptyDir(root)
	require.NoError(t, err)
	assert.True(t, empty)

	touch(t, root.Join("f").String())
	empty, err = IsEmptyDir(root)
	require.NoError(t, err)
	assert.False(t, empty)

	empty, err = IsEmptyDir(root.Join("missing"))
	require.NoError(t, err)
	assert.True(t, empty)
}
