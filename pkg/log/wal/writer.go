package wal

import (
	"io"

	"schemacore/pkg/primitives"
)

// LogWriter groups appended records in memory and writes them out at
// their LSN, which is also their byte offset in the file. A record is
// never split across two writes.
type LogWriter struct {
	out     io.WriterAt
	pending []byte
	limit   int

	// written is the offset just past the last byte handed to out.
	written primitives.LSN
}

func NewLogWriter(out io.WriterAt, bufferSize int, end primitives.LSN) *LogWriter {
	return &LogWriter{
		out:     out,
		pending: make([]byte, 0, bufferSize),
		limit:   bufferSize,
		written: end,
	}
}

// Write queues data and returns the LSN it was assigned. Records that do
// not fit in an empty buffer are written through directly.
func (w *LogWriter) Write(data []byte) (primitives.LSN, error) {
	if len(w.pending)+len(data) > w.limit {
		if err := w.flush(); err != nil {
			return 0, err
		}
	}

	lsn := w.CurrentLSN()
	if len(data) > w.limit {
		if _, err := w.out.WriteAt(data, int64(w.written)); err != nil { // #nosec G115
			return 0, err
		}
		w.written += primitives.LSN(len(data))
		return lsn, nil
	}
	w.pending = append(w.pending, data...)
	return lsn, nil
}

// Force writes out the record at lsn if it is still queued.
func (w *LogWriter) Force(lsn primitives.LSN) error {
	if lsn < w.written {
		return nil
	}
	return w.flush()
}

func (w *LogWriter) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if _, err := w.out.WriteAt(w.pending, int64(w.written)); err != nil { // #nosec G115
		return err
	}
	w.written += primitives.LSN(len(w.pending))
	w.pending = w.pending[:0]
	return nil
}

// CurrentLSN is the LSN the next record will get.
func (w *LogWriter) CurrentLSN() primitives.LSN {
	return w.written + primitives.LSN(len(w.pending))
}

func (w *LogWriter) FlushedLSN() primitives.LSN {
	return w.written
}

func (w *LogWriter) Close() error {
	return w.flush()
}
