package transaction

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/primitives"
)

func TestTransactionStatus_String(t *testing.T) {
	tests := []struct {
		status   TransactionStatus
		expected string
	}{
		{TxActive, "ACTIVE"},
		{TxCommitting, "COMMITTING"},
		{TxAborting, "ABORTING"},
		{TxCommitted, "COMMITTED"},
		{TxAborted, "ABORTED"},
		{TransactionStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestTransactionID_Unique(t *testing.T) {
	a := NewTransactionID()
	b := NewTransactionID()

	assert.Greater(t, b.ID(), a.ID())
	assert.True(t, a.Equals(TransactionIDOf(a.ID())))
	assert.False(t, a.Equals(nil))
	assert.True(t, (*TransactionID)(nil).Equals(nil))
	assert.Zero(t, (*TransactionID)(nil).ID())
	assert.Equal(t, "txn(none)", (*TransactionID)(nil).String())
}

func TestTransactionContext_Defaults(t *testing.T) {
	ctx := NewTransactionContext(NewTransactionID(), ReadWrite, 5)

	assert.False(t, ctx.IsReadOnly())
	assert.Equal(t, primitives.SessionID(5), ctx.SessionID())
	assert.Equal(t, primitives.InvalidObjectID, ctx.DatabaseID())
	assert.True(t, ctx.IsNoVersion())
	assert.True(t, ctx.IsActive())

	ctx.SetDatabaseID(3)
	assert.Equal(t, primitives.ObjectID(3), ctx.DatabaseID())

	ctx.SetVersioned()
	assert.False(t, ctx.IsNoVersion())
}

func TestTransactionContext_LSNChain(t *testing.T) {
	ctx := NewTransactionContext(NewTransactionID(), ReadWrite, primitives.IllegalSessionID)

	ctx.UpdateLSN(0)
	ctx.UpdateLSN(128)
	ctx.UpdateLSN(256)

	assert.Equal(t, primitives.LSN(0), ctx.GetFirstLSN())
	assert.Equal(t, primitives.LSN(256), ctx.GetLastLSN())
	assert.Equal(t, 3, ctx.GetStatistics().LogRecords)
}

func TestTransactionContext_Stats(t *testing.T) {
	ctx := NewTransactionContext(NewTransactionID(), ReadWrite, 1)
	ctx.RecordCreate()
	ctx.RecordCreate()
	ctx.RecordDrop()
	ctx.RecordAlter()

	stats := ctx.GetStatistics()
	assert.Equal(t, 2, stats.ObjectsCreated)
	assert.Equal(t, 1, stats.ObjectsDropped)
	assert.Equal(t, 1, stats.ObjectsAltered)
	assert.True(t, strings.Contains(ctx.String(), "READ_WRITE"))
}

func TestRegistry_Lifecycle(t *testing.T) {
	reg := NewTransactionRegistry()

	a := reg.Begin(ReadWrite, 1)
	b := reg.Begin(ReadOnly, 2)
	assert.Equal(t, 2, reg.Count())
	assert.Len(t, reg.GetActive(), 2)
	assert.Len(t, reg.ForSession(1), 1)

	got, err := reg.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	reg.Commit(a)
	assert.Equal(t, TxCommitted, a.GetStatus())
	_, err = reg.Get(a.ID)
	assert.Error(t, err)

	reg.Abort(b)
	assert.Equal(t, TxAborted, b.GetStatus())
	assert.Zero(t, reg.Count())
	assert.Greater(t, b.Duration().Nanoseconds(), int64(-1))
}

func TestRegistry_ConcurrentBegin(t *testing.T) {
	reg := NewTransactionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Begin(ReadWrite, primitives.SessionID(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, reg.Count())
}
