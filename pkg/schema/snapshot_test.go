package schema

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/primitives"
)

func sessionTxn(session primitives.SessionID) *transaction.TransactionContext {
	return transaction.NewTransactionContext(transaction.NewTransactionID(), transaction.ReadOnly, session)
}

func TestSnapshot_ReservedSessionOpensOnce(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	s := m.NoVersion()
	const session primitives.SessionID = 5

	s.ReserveDatabase(session)
	for i := 0; i < 3; i++ {
		got, err := s.Database(db.ID(), sessionTxn(session))
		require.NoError(t, err)
		assert.Same(t, db, got)
	}
	assert.True(t, s.IsDatabaseOpened(session))
	assert.True(t, db.IsOpened())

	s.ReleaseDatabase(session)
	assert.False(t, s.IsDatabaseOpened(session))
	assert.False(t, db.IsOpened())
	assert.Equal(t, 1, m.delayed.len(), "the cache release is delayed")

	s.ReleaseDatabase(session)
	assert.False(t, db.IsOpened(), "a second release is a no-op")

	_, err := s.Database(db.ID(), sessionTxn(session))
	require.NoError(t, err)
	assert.True(t, db.IsOpened())
	assert.Zero(t, m.delayed.len(), "reopening takes the database off the delayed list")

	s.ReleaseDatabase(session)
	s.EraseReservation(session)
}

func TestSnapshot_UnreservedSessionDoesNotPin(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	got, err := m.NoVersion().Database(db.ID(), sessionTxn(9))
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.False(t, db.IsOpened())

	got, err = m.NoVersion().Database(primitives.InvalidObjectID, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshot_SessionBindsFirstDatabaseOnly(t *testing.T) {
	m := newTestManager(t)
	sales := newTestDatabase(t, m, "sales")
	hr := newTestDatabase(t, m, "hr")
	s := m.NoVersion()
	const session primitives.SessionID = 3

	s.ReserveDatabase(session)
	_, err := s.Database(sales.ID(), sessionTxn(session))
	require.NoError(t, err)
	_, err = s.Database(hr.ID(), sessionTxn(session))
	require.NoError(t, err)

	assert.True(t, sales.IsOpened())
	assert.False(t, hr.IsOpened())

	s.EraseDatabase(sales.ID(), session)
	assert.False(t, sales.IsOpened(), "erasing releases the session's open")
	got, err := s.Database(sales.ID(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelayedClearList_Order(t *testing.T) {
	var d delayedClearList
	d.insert(1, 10, false)
	d.insert(1, 11, false)
	d.insert(2, 12, true)
	d.erase(1, 11)
	d.erase(9, 9)

	var got []primitives.ObjectID
	for {
		e, ok := d.pop()
		if !ok {
			break
		}
		got = append(got, e.database)
	}
	assert.Equal(t, []primitives.ObjectID{12, 10}, got)
}

func TestClearDatabaseCache_StopsUnderLimit(t *testing.T) {
	m := newTestManager(t)
	sales := newTestDatabase(t, m, "sales")
	hr := newTestDatabase(t, m, "hr")
	createTestArea(t, m, sales, "a", "a")
	createTestArea(t, m, hr, "b", "b")

	s := m.NoVersion()
	s.AddDelayedClear(sales.ID(), false)
	s.AddDelayedClear(hr.ID(), false)
	m.cfg.ObjectCacheSize = m.CacheSize() - 1
	require.True(t, m.CheckCacheSize())

	m.ClearDatabaseCache()
	assert.False(t, m.CheckCacheSize())
	assert.Equal(t, 1, m.delayed.len(), "hr is left queued")

	// the abandoned caches are read back from the catalog
	area, err := sales.AreaByName(nil, "a")
	require.NoError(t, err)
	assert.NotNil(t, area)
}

func TestClose_OverLimitAbandonsCache(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	createTestArea(t, m, db, "a", "a")
	m.cfg.ObjectCacheSize = 0

	db.Open()
	before := m.CacheSize()
	db.Close(false)
	assert.Less(t, m.CacheSize(), before)
	assert.Zero(t, m.delayed.len())
}

func TestSnapshot_CacheAccounting(t *testing.T) {
	m := newTestManager(t)
	newTestDatabase(t, m, "sales")
	newTestDatabase(t, m, "hr")
	base := m.CacheSize()

	s := m.NewSnapshot(false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.Snapshots))

	dbs, err := s.Databases(nil)
	require.NoError(t, err)
	assert.Len(t, dbs, 2)
	assert.Equal(t, base+2, m.CacheSize())

	s.Reset()
	assert.Equal(t, base, m.CacheSize())
	dbs, err = s.Databases(nil)
	require.NoError(t, err)
	assert.Empty(t, dbs, "a reset snapshot stays loaded")

	s.Clear()
	dbs, err = s.Databases(nil)
	require.NoError(t, err)
	assert.Len(t, dbs, 2, "a cleared snapshot reads the catalog again")

	s.Destroy()
	assert.Equal(t, base, m.CacheSize())
	assert.Nil(t, m.Snapshot(s.ID()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Snapshots))
}

func TestSnapshot_DatabaseID(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	id, err := m.NoVersion().DatabaseID("sales", nil)
	require.NoError(t, err)
	assert.Equal(t, db.ID(), id)

	id, err = m.NoVersion().DatabaseID("missing", nil)
	require.NoError(t, err)
	assert.Equal(t, primitives.InvalidObjectID, id)
}

func TestObjectID_SharedAcrossSnapshots(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	s := m.NewSnapshot(false)
	defer s.Destroy()
	copied, err := s.Database(db.ID(), nil)
	require.NoError(t, err)
	require.NotNil(t, copied)
	require.NotSame(t, db, copied)

	a1 := createTestArea(t, m, copied, "a1", "a1")
	a2 := createTestArea(t, m, db, "a2", "a2")
	a3 := createTestArea(t, m, copied, "a3", "a3")
	assert.NotEqual(t, a1.ID(), a2.ID())
	assert.NotEqual(t, a2.ID(), a3.ID())
	assert.NotEqual(t, a1.ID(), a3.ID())
	assert.Equal(t, db.Sequence(), copied.Sequence())

	db.AbandonCache()
	for _, name := range []string{"a1", "a2", "a3"} {
		area, err := db.AreaByName(nil, name)
		require.NoError(t, err)
		assert.NotNil(t, area, "%s survives a reload", name)
	}
	areas, err := db.Areas(nil)
	require.NoError(t, err)
	assert.Len(t, areas, 3)
}

func TestSnapshot_ConcurrentDatabaseOpensOnce(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	s := m.NoVersion()
	const session primitives.SessionID = 6

	s.ReserveDatabase(session)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Database(db.ID(), sessionTxn(session))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.True(t, db.IsOpened())

	s.ReleaseDatabase(session)
	assert.False(t, db.IsOpened(), "one release undoes the single open")
	s.EraseReservation(session)
}

func TestDatabase_UnbalancedClose(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	db.Close(false)
	assert.False(t, db.IsOpened())

	db.Open()
	assert.True(t, db.IsOpened())
	db.Close(false)
	assert.False(t, db.IsOpened())
}
