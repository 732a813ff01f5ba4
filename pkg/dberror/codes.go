package dberror

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Stable error codes of the catalog core. Callers branch on these with Is.
const (
	CodeAlreadyDefined        = "ALREADY_DEFINED"
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidPath           = "INVALID_PATH"
	CodeOtherObjectDepending  = "OTHER_OBJECT_DEPENDING"
	CodeNotSupported          = "NOT_SUPPORTED"
	CodeLogItemCorrupted      = "LOG_ITEM_CORRUPTED"
	CodeBadArgument           = "BAD_ARGUMENT"
	CodeMetaDatabaseCorrupted = "META_DATABASE_CORRUPTED"
	CodeDatabaseUnavailable   = "DATABASE_UNAVAILABLE"
	CodeReadOnlyTransaction   = "READ_ONLY_TRANSACTION"
	CodeFakeError             = "FAKE_ERROR"
	CodeIO                    = "IO_ERROR"
)

// AlreadyDefined reports a duplicate object name, e.g. AreaAlreadyDefined.
func AlreadyDefined(category, name, database string) *DBError {
	return New(ErrCategoryUser, CodeAlreadyDefined,
		fmt.Sprintf("%s already defined", category)).
		WithDetail("%s %q in database %q", category, name, database)
}

// NotFound reports a referenced object that does not exist.
func NotFound(category, name string) *DBError {
	return New(ErrCategoryUser, CodeNotFound,
		fmt.Sprintf("%s not found", category)).
		WithDetail("%s %q", category, name)
}

// InvalidPath reports a path count mismatch or a missing mount directory.
func InvalidPath(name string) *DBError {
	return New(ErrCategoryUser, CodeInvalidPath, "invalid path").
		WithDetail("%s", name)
}

// OtherObjectDepending reports a drop blocked by dependent objects.
func OtherObjectDepending(name string) *DBError {
	return New(ErrCategoryUser, CodeOtherObjectDepending, "other objects depend on this object").
		WithDetail("%s", name).
		WithHint("drop or move the depending tables and indexes first")
}

func NotSupported(what string) *DBError {
	return New(ErrCategoryUser, CodeNotSupported, "not supported").
		WithDetail("%s", what)
}

func LogItemCorrupted(format string, args ...any) *DBError {
	return New(ErrCategoryData, CodeLogItemCorrupted, "log item corrupted").
		WithDetail(format, args...)
}

func BadArgument(format string, args ...any) *DBError {
	return New(ErrCategorySystem, CodeBadArgument, "bad argument").
		WithDetail(format, args...)
}

func MetaDatabaseCorrupted(format string, args ...any) *DBError {
	return New(ErrCategoryData, CodeMetaDatabaseCorrupted, "meta database corrupted").
		WithDetail(format, args...)
}

// DatabaseUnavailable is returned for every operation on a quarantined database.
func DatabaseUnavailable(name string) *DBError {
	return New(ErrCategorySystem, CodeDatabaseUnavailable, "database not available").
		WithDetail("%s", name).
		WithHint("the database was quarantined after a failed rollback; restore it from backup")
}

func ReadOnlyTransaction(operation string) *DBError {
	return New(ErrCategoryUser, CodeReadOnlyTransaction, "read-only transaction").
		WithDetail("%s requires an update transaction", operation)
}

// FakeError is produced by the fault injector at a named point.
func FakeError(point string) *DBError {
	return New(ErrCategoryTransient, CodeFakeError, "injected fault").
		WithDetail("%s", point)
}

// Is reports whether any DBError in err's chain carries code.
func Is(err error, code string) bool {
	for err != nil {
		var dbErr *DBError
		if !errors.As(err, &dbErr) {
			return false
		}
		if dbErr.Code == code {
			return true
		}
		err = dbErr.Cause
	}
	return false
}

// CodeOf returns the code of the outermost DBError in err's chain, or "".
func CodeOf(err error) string {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Code
	}
	return ""
}
