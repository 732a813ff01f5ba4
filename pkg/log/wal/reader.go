package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"schemacore/pkg/dberror"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/primitives"
)

const (
	MaxLogRecordSize = 10 * 1024 * 1024 // 10 MB max record size
)

// Entry is one record read back from the log with its position.
type Entry struct {
	LSN  primitives.LSN
	Data *logdata.LogData
}

// LogReader reads and deserializes records from a logical log file.
// It provides sequential access to all records in the log.
type LogReader struct {
	file   *os.File
	offset int64
}

// NewLogReader creates a new log reader for the specified file
func NewLogReader(logPath string) (*LogReader, error) {
	file, err := os.Open(logPath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &LogReader{
		file:   file,
		offset: 0,
	}, nil
}

// ReadNext reads the next record from the file.
// Returns io.EOF when the end of the log is reached.
func (lr *LogReader) ReadNext() (Entry, error) {
	recLen, err := readHeader(lr.file, lr.offset)
	if err != nil {
		return Entry{}, err
	}

	fullRecord, err := readRecordBytes(lr.file, int64(recLen), lr.offset)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read record bytes at offset %d: %w", lr.offset, err)
	}

	rec, err := logdata.Unmarshal(fullRecord)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to deserialize record at offset %d: %w", lr.offset, err)
	}

	entry := Entry{LSN: primitives.LSN(lr.offset), Data: rec} // #nosec G115
	lr.offset += int64(recLen)
	return entry, nil
}

// ReadAll reads all records from the file
func (lr *LogReader) ReadAll() ([]Entry, error) {
	var entries []Entry

	for {
		e, err := lr.ReadNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Reset resets the reader to the beginning of the file
func (lr *LogReader) Reset() {
	lr.offset = 0
}

// Close closes the underlying file
func (lr *LogReader) Close() error {
	if lr.file != nil {
		return lr.file.Close()
	}
	return nil
}

// GetFileSize returns the total size of the log file
func (lr *LogReader) GetFileSize() (int64, error) {
	stat, err := lr.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func readHeader(file *os.File, offset int64) (uint32, error) {
	sizeBuf := make([]byte, logdata.RecordSize)
	n, err := file.ReadAt(sizeBuf, offset)
	if err == io.EOF && n == 0 {
		return 0, io.EOF
	}
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read record size: %w", err)
	}
	if n < logdata.RecordSize {
		return 0, dberror.LogItemCorrupted("torn record header at offset %d", offset)
	}

	recordSize := binary.BigEndian.Uint32(sizeBuf)
	if recordSize < logdata.HeaderSize || recordSize > MaxLogRecordSize {
		return 0, dberror.LogItemCorrupted("invalid record size %d at offset %d", recordSize, offset)
	}

	return recordSize, nil
}

func readRecordBytes(file *os.File, size, offset int64) ([]byte, error) {
	recordBuf := make([]byte, size)
	n, err := file.ReadAt(recordBuf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read record data: %w", err)
	}
	if n != int(size) {
		return nil, dberror.LogItemCorrupted("incomplete record: expected %d bytes, got %d", size, n)
	}

	return recordBuf, nil
}
