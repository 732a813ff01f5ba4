package wal

import (
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"schemacore/pkg/log/logdata"
	"schemacore/pkg/primitives"
)

const (
	FirstLSN primitives.LSN = 0

	// DefaultBufferSize is used when Open is given a non-positive size.
	DefaultBufferSize = 64 * 1024
)

// LogFile is the append-only logical log of catalog operations.
type LogFile struct {
	path   string
	file   *os.File
	mutex  sync.Mutex
	writer *LogWriter
}

// Open opens or creates the log file at path and positions the writer at
// its end.
func Open(path string, bufferSize int) (*LogFile, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open logical log %s", path)
	}

	pos, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.CombineErrors(
			errors.Wrapf(err, "seek to end of logical log %s", path), file.Close())
	}

	return &LogFile{
		path:   path,
		file:   file,
		writer: NewLogWriter(file, bufferSize, primitives.LSN(pos)), // #nosec G115
	}, nil
}

func (f *LogFile) Path() string {
	return f.path
}

// Append serializes rec and buffers it. The record is durable only after
// Force returns for its LSN.
func (f *LogFile) Append(rec *logdata.LogData) (primitives.LSN, error) {
	data, err := rec.Marshal()
	if err != nil {
		return 0, errors.Wrap(err, "marshal log record")
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	lsn, err := f.writer.Write(data)
	if err != nil {
		return 0, errors.Wrapf(err, "append %s record", rec.SubCategory())
	}
	return lsn, nil
}

// Force ensures all log records up to the given LSN are on disk.
func (f *LogFile) Force(lsn primitives.LSN) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.writer.Force(lsn); err != nil {
		return errors.Wrap(err, "flush logical log")
	}
	return errors.Wrap(f.file.Sync(), "sync logical log")
}

// CurrentLSN is the LSN the next appended record will get.
func (f *LogFile) CurrentLSN() primitives.LSN {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.writer.CurrentLSN()
}

// Close flushes any remaining buffered data and closes the file.
func (f *LogFile) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.writer.Close(); err != nil {
		return errors.CombineErrors(errors.Wrap(err, "close logical log writer"), f.file.Close())
	}
	return errors.Wrap(f.file.Close(), "close logical log")
}
