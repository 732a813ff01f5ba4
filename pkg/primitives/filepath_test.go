package primitives

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilepath_Join(t *testing.T) {
	base := Filepath("/data")
	result := base.Join("tables", "users")
	assert.Equal(t, filepath.Join("/data", "tables", "users"), result.String())
}

func TestFilepath_BaseAndDir(t *testing.T) {
	path := Filepath("/data/areas/a1")
	assert.Equal(t, "a1", path.Base())
	assert.Equal(t, Filepath("/data/areas"), path.Dir())
}

func TestFilepath_Clean(t *testing.T) {
	tests := []struct {
		path     Filepath
		expected Filepath
	}{
		{"/data/../data/./users", "/data/users"},
		{"/data//tables///users", "/data/tables/users"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.path.Clean(), "path %s", tt.path)
	}
}

func TestFilepath_FullPath(t *testing.T) {
	tests := []struct {
		name     string
		path     Filepath
		base     Filepath
		expected Filepath
	}{
		{"relative", "area1", "/data", "/data/area1"},
		{"absolute untouched", "/x/y", "/data", "/x/y"},
		{"canonicalised", "/x/./y/", "/data", "/x/y"},
		{"empty stays empty", "", "/data", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.path.FullPath(tt.base))
		})
	}
}

func TestFilepath_Compare(t *testing.T) {
	tests := []struct {
		a, b     Filepath
		expected PathRelation
	}{
		{"/data/x", "/data/x", PathIdentical},
		{"/data/x", "/data/./x/", PathIdentical},
		{"/data", "/data/x", PathParent},
		{"/data/x/y", "/data/x", PathChild},
		{"/data/x", "/data/xy", PathUnrelated},
		{"/data/x", "/other", PathUnrelated},
		{"/", "/data", PathParent},
		{"", "", PathIdentical},
		{"", "/data", PathUnrelated},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.a.Compare(tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestFilepath_Exists(t *testing.T) {
	dir := Filepath(t.TempDir())
	assert.True(t, dir.Exists())
	assert.False(t, dir.Join("missing").Exists())

	assert.NoError(t, os.Mkdir(dir.Join("present").String(), 0o750))
	assert.True(t, dir.Join("present").Exists())
}

func TestObjectID(t *testing.T) {
	assert.False(t, InvalidObjectID.IsValid())
	assert.False(t, SystemTableID.IsValid())
	assert.True(t, ObjectID(7).IsValid())
	assert.Equal(t, "ObjectID(invalid)", InvalidObjectID.String())
	assert.False(t, IllegalSessionID.IsLegal())
	assert.True(t, SessionID(3).IsLegal())
}

func TestStringConversions(t *testing.T) {
	paths := FromStrings([]string{"a", "/b"})
	assert.Equal(t, []string{"a", "/b"}, ToStrings(paths))
	assert.Equal(t, []Filepath{"/base/a", "/b"}, FullPaths(paths, "/base"))
}
