// Package fileops is the directory service used by the catalog to create,
// move and remove area and database directories.
package fileops

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"schemacore/pkg/primitives"
)

// IsFound reports whether path exists.
func IsFound(path primitives.Filepath) bool {
	if path.IsEmpty() {
		return false
	}
	_, err := os.Stat(path.String())
	return err == nil
}

// Mkdir creates path and any missing parents.
func Mkdir(path primitives.Filepath) error {
	if err := os.MkdirAll(path.String(), 0o750); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", path)
	}
	return nil
}

// RmAll removes path and everything below it. A missing path is not an
// error.
func RmAll(path primitives.Filepath) error {
	if path.IsEmpty() {
		return nil
	}
	if err := os.RemoveAll(path.String()); err != nil {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// RmAllExcept removes path like RmAll but keeps every entry of except and
// the directories leading to them.
func RmAllExcept(path primitives.Filepath, except []primitives.Filepath) error {
	if path.IsEmpty() {
		return nil
	}

	keepParent := false
	for _, e := range except {
		switch path.Compare(e) {
		case primitives.PathIdentical, primitives.PathChild:
			return nil
		case primitives.PathParent:
			keepParent = true
		}
	}
	if !keepParent {
		return RmAll(path)
	}

	entries, err := os.ReadDir(path.String())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read directory %s", path)
	}

	var errs error
	for _, entry := range entries {
		errs = errors.CombineErrors(errs, RmAllExcept(path.Join(entry.Name()), except))
	}
	return errs
}

// Move renames src to dst, creating the parent of dst when needed. A
// missing src is not an error; there is nothing to move.
func Move(src, dst primitives.Filepath) error {
	if !IsFound(src) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst.String()), 0o750); err != nil {
		return errors.Wrapf(err, "failed to create parent of %s", dst)
	}
	if err := os.Rename(src.String(), dst.String()); err != nil {
		return errors.Wrapf(err, "failed to move %s to %s", src, dst)
	}
	return nil
}

// IsEmptyDir reports whether path is a directory with no entries. A missing
// path counts as empty.
func IsEmptyDir(path primitives.Filepath) (bool, error) {
	entries, err := os.ReadDir(path.String())
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrapf(err, "failed to read directory %s", path)
	}
	return len(entries) == 0, nil
}

// OpenFile opens a file for read and write, creating it when missing.
func OpenFile(path primitives.Filepath) (*os.File, error) {
	file, err := os.OpenFile(path.String(), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", path)
	}
	return file, nil
}
