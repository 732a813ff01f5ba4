package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/dberror"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/primitives"
)

func createAreaRecord(name string, id primitives.ObjectID, paths ...string) *logdata.LogData {
	l := logdata.New(logdata.CreateArea, "sales")
	l.AddString(name)
	l.AddID(id)
	l.AddStrings(paths)
	return l
}

func openTestLog(t *testing.T, bufferSize int) (*LogFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logical.log")
	f, err := Open(path, bufferSize)
	require.NoError(t, err)
	return f, path
}

func TestNewLogReader_NonExistentFile(t *testing.T) {
	reader, err := NewLogReader("/nonexistent/path/log.file")
	assert.Error(t, err)
	assert.Nil(t, reader)
}

func TestLogReader_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	reader, err := NewLogReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadNext()
	assert.Equal(t, io.EOF, err)
}

func TestLogFile_AppendAndReadBack(t *testing.T) {
	f, path := openTestLog(t, 4096)

	lsn1, err := f.Append(createAreaRecord("A1", 1, "/d/a"))
	require.NoError(t, err)
	lsn2, err := f.Append(createAreaRecord("A2", 2, "/d/b", "/d/c"))
	require.NoError(t, err)

	assert.Equal(t, FirstLSN, lsn1)
	assert.Greater(t, lsn2, lsn1)
	require.NoError(t, f.Force(lsn2))
	require.NoError(t, f.Close())

	reader, err := NewLogReader(path)
	require.NoError(t, err)
	defer reader.Close()

	entries, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, lsn1, entries[0].LSN)
	assert.Equal(t, lsn2, entries[1].LSN)

	name, err := entries[1].Data.String(0)
	require.NoError(t, err)
	assert.Equal(t, "A2", name)

	paths, err := entries[1].Data.Strings(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"/d/b", "/d/c"}, paths)

	reader.Reset()
	first, err := reader.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, lsn1, first.LSN)
}

func TestLogFile_ReopenAppendsAtEnd(t *testing.T) {
	f, path := openTestLog(t, 16)

	_, err := f.Append(createAreaRecord("A1", 1, "/d/a"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := Open(path, 16)
	require.NoError(t, err)
	lsn, err := f2.Append(createAreaRecord("A2", 2, "/d/b"))
	require.NoError(t, err)
	assert.Greater(t, lsn, FirstLSN)
	require.NoError(t, f2.Close())

	reader, err := NewLogReader(path)
	require.NoError(t, err)
	defer reader.Close()

	entries, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLogReader_TornTail(t *testing.T) {
	f, path := openTestLog(t, 4096)
	_, err := f.Append(createAreaRecord("A1", 1, "/d/a"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	reader, err := NewLogReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadNext()
	assert.True(t, dberror.Is(err, dberror.CodeLogItemCorrupted), "got %v", err)
}

func TestLogWriter_ForceFlushesBuffer(t *testing.T) {
	f, path := openTestLog(t, 4096)
	defer f.Close()

	lsn, err := f.Append(createAreaRecord("A1", 1, "/d/a"))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "record is still buffered")

	require.NoError(t, f.Force(lsn))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(f.CurrentLSN()), info.Size())
}
