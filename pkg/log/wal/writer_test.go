package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/primitives"
)

// memFile records every WriteAt call.
type memFile struct {
	data   []byte
	writes int
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	copy(m.data[off:], p)
	m.writes++
	return len(p), nil
}

func TestLogWriter_Batches(t *testing.T) {
	out := &memFile{}
	w := NewLogWriter(out, 8, 0)

	a, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	b, err := w.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, primitives.LSN(0), a)
	assert.Equal(t, primitives.LSN(3), b)
	assert.Zero(t, out.writes)

	c, err := w.Write([]byte("ghi"))
	require.NoError(t, err)
	assert.Equal(t, primitives.LSN(6), c)
	assert.Equal(t, 1, out.writes, "a full buffer is written before queuing more")
	assert.Equal(t, primitives.LSN(6), w.FlushedLSN())

	require.NoError(t, w.Force(a), "already written")
	assert.Equal(t, 1, out.writes)
	require.NoError(t, w.Force(c))
	assert.Equal(t, "abcdefghi", string(out.data))
	assert.Equal(t, w.CurrentLSN(), w.FlushedLSN())
}

func TestLogWriter_LargeRecordWritesThrough(t *testing.T) {
	out := &memFile{}
	w := NewLogWriter(out, 4, 10)
	out.data = make([]byte, 10)

	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	lsn, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, primitives.LSN(12), lsn)
	assert.Equal(t, primitives.LSN(22), w.FlushedLSN())
	assert.Equal(t, "ab0123456789", string(out.data[10:]))
	require.NoError(t, w.Close())
}
