package primitives

import (
	"os"
	"path/filepath"
	"strings"
)

// Filepath is a type-safe wrapper around directory and file paths used by
// the catalog: area paths, database paths and log files.
//
// Example usage:
//
//	base := primitives.Filepath("/data")
//	areaPath := primitives.Filepath("area1").FullPath(base)
//	if areaPath.Compare("/data/area1/tbl") == primitives.PathParent {
//	    // areaPath contains the table directory
//	}
type Filepath string

// PathRelation is the result of comparing two paths.
type PathRelation int

const (
	// PathUnrelated means neither path contains the other.
	PathUnrelated PathRelation = iota

	// PathIdentical means both paths denote the same location.
	PathIdentical

	// PathParent means the receiver is an ancestor of the argument.
	PathParent

	// PathChild means the receiver lies under the argument.
	PathChild
)

func (r PathRelation) String() string {
	switch r {
	case PathIdentical:
		return "identical"
	case PathParent:
		return "parent"
	case PathChild:
		return "child"
	default:
		return "unrelated"
	}
}

// String converts the Filepath to a standard string.
func (f Filepath) String() string {
	return string(f)
}

// IsEmpty checks whether the filepath is an empty string.
func (f Filepath) IsEmpty() bool {
	return string(f) == ""
}

// Join concatenates path elements to this path and returns a new Filepath.
//
// Example:
//
//	dataDir := primitives.Filepath("/data")
//	tablePath := dataDir.Join("tables", "users")
//	// Returns Filepath("/data/tables/users")
func (f Filepath) Join(elem ...string) Filepath {
	parts := append([]string{string(f)}, elem...)
	return Filepath(filepath.Join(parts...))
}

// Base returns the last element of the path.
func (f Filepath) Base() string {
	return filepath.Base(string(f))
}

// Dir returns the parent directory of the path.
func (f Filepath) Dir() Filepath {
	return Filepath(filepath.Dir(string(f)))
}

// IsAbs reports whether the path is absolute.
func (f Filepath) IsAbs() bool {
	return filepath.IsAbs(string(f))
}

// Clean returns the shortest path name equivalent to the path by purely
// lexical processing.
//
// Example:
//
//	path := primitives.Filepath("/data/../data/./area1")
//	clean := path.Clean() // Returns "/data/area1"
func (f Filepath) Clean() Filepath {
	return Filepath(filepath.Clean(string(f)))
}

// Exists checks whether the path exists on the filesystem.
func (f Filepath) Exists() bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// FullPath resolves a relative path against base and returns the canonical
// absolute form. An empty path stays empty so that callers can keep
// "no path at this index" slots in a path array.
//
// Example:
//
//	primitives.Filepath("area1").FullPath("/data")     // "/data/area1"
//	primitives.Filepath("/x/./y/").FullPath("/data")   // "/x/y"
func (f Filepath) FullPath(base Filepath) Filepath {
	if f.IsEmpty() {
		return f
	}
	if !f.IsAbs() {
		return base.Join(string(f)).canonical()
	}
	return f.canonical()
}

func (f Filepath) canonical() Filepath {
	abs, err := filepath.Abs(string(f))
	if err != nil {
		return f.Clean()
	}
	return Filepath(abs)
}

// Compare reports how f relates to other. Both paths are compared in their
// canonical absolute form, so "/data/x" and "/data/./x/" are Identical.
func (f Filepath) Compare(other Filepath) PathRelation {
	if f.IsEmpty() || other.IsEmpty() {
		if f.IsEmpty() && other.IsEmpty() {
			return PathIdentical
		}
		return PathUnrelated
	}

	a := string(f.canonical())
	b := string(other.canonical())

	if a == b {
		return PathIdentical
	}
	if isUnder(b, a) {
		return PathParent
	}
	if isUnder(a, b) {
		return PathChild
	}
	return PathUnrelated
}

// isUnder reports whether path lies strictly below dir.
func isUnder(path, dir string) bool {
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}

// FullPaths applies FullPath to each element.
func FullPaths(paths []Filepath, base Filepath) []Filepath {
	out := make([]Filepath, len(paths))
	for i, p := range paths {
		out[i] = p.FullPath(base)
	}
	return out
}

// FromStrings converts a string slice to Filepaths.
func FromStrings(paths []string) []Filepath {
	out := make([]Filepath, len(paths))
	for i, p := range paths {
		out[i] = Filepath(p)
	}
	return out
}

// ToStrings converts Filepaths to a string slice.
func ToStrings(paths []Filepath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}
