package schema

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/dberror"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/primitives"
)

// failingMover moves like DirMover but fails on the n-th forward move.
// With failUndo set, moves back fail as well.
type failingMover struct {
	DirMover
	failAt   int32
	failUndo bool
	calls    atomic.Int32
}

func (f *failingMover) MoveContent(c *AreaContent, prev, post []string, undo, recovery, mount bool) error {
	if undo {
		if f.failUndo {
			return errors.New("undo move failed")
		}
		return f.DirMover.MoveContent(c, prev, post, undo, recovery, mount)
	}
	if f.calls.Add(1) == f.failAt {
		return errors.New("no space left on device")
	}
	return f.DirMover.MoveContent(c, prev, post, undo, recovery, mount)
}

func createTestArea(t *testing.T, m *Manager, db *Database, name string, paths ...string) *Area {
	t.Helper()
	area, err := m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: name, Paths: paths})
	require.NoError(t, err)
	require.NotNil(t, area)
	return area
}

// assignObjects puts n objects in area, each with one data file.
func assignObjects(t *testing.T, m *Manager, area *Area, n int) []*AreaContent {
	t.Helper()
	out := make([]*AreaContent, n)
	for i := range out {
		c, err := m.AssignArea(writeTxn(), area, primitives.ObjectID(100+i), CategoryTable, AreaHeap)
		require.NoError(t, err)
		for _, p := range area.Path() {
			writeFile(t, filepath.Join(p, ObjectDirName(c), "data.bin"))
		}
		out[i] = c
	}
	return out
}

func TestCreateArea(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	area := createTestArea(t, m, db, "a1", "a1", "a2")
	assert.Equal(t, []string{areaPath(m, "a1"), areaPath(m, "a2")}, area.Path())
	assert.Equal(t, StatusPersistent, area.Status())
	assert.Equal(t, db.ID(), area.DatabaseID())
	assert.DirExists(t, areaPath(m, "a1"))

	got, err := db.AreaByName(nil, "a1")
	require.NoError(t, err)
	assert.Same(t, area, got)

	_, err = m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "a1", Paths: []string{"other"}})
	assert.True(t, dberror.Is(err, dberror.CodeAlreadyDefined))

	_, err = m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "b", Paths: []string{"a1"}})
	assert.True(t, dberror.Is(err, dberror.CodeInvalidPath))

	_, err = m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "c", Paths: []string{"a2/sub"}})
	assert.True(t, dberror.Is(err, dberror.CodeInvalidPath), "path below another area")

	_, err = m.CreateArea(readTxn(), db, &CreateAreaStmt{Name: "d", Paths: []string{"d"}})
	assert.True(t, dberror.Is(err, dberror.CodeReadOnlyTransaction))
}

func TestCreateArea_CanceledWhenDuplicated(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.CanceledWhenDuplicated = true })
	db := newTestDatabase(t, m, "sales")
	createTestArea(t, m, db, "a1", "a1")

	area, err := m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "a1", Paths: []string{"other"}})
	assert.NoError(t, err)
	assert.Nil(t, area)
}

func TestCreateArea_FaultReleasesReservations(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	m.SetFaultInjector(FailAt(FaultCreateAreaReserved))
	_, err := m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "a1", Paths: []string{"a1"}})
	require.True(t, dberror.Is(err, dberror.CodeFakeError))
	m.SetFaultInjector(nil)

	got, err := db.AreaByName(nil, "a1")
	require.NoError(t, err)
	assert.Nil(t, got)

	createTestArea(t, m, db, "a1", "a1")
}

func TestObjectID_Monotonic(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	a := createTestArea(t, m, db, "a", "a")
	b := createTestArea(t, m, db, "b", "b")
	assert.Greater(t, b.ID(), a.ID())

	require.NoError(t, m.DropArea(writeTxn(), db, "b"))
	again := createTestArea(t, m, db, "b", "b")
	assert.Greater(t, again.ID(), b.ID(), "a dropped ID is never reused")

	p, err := m.AlterPrivilege(writeTxn(), db, &GrantStmt{RoleNames: []string{"data_operations"}, Users: []string{"u7"}, Grant: true})
	require.NoError(t, err)
	assert.Greater(t, p.ID(), again.ID())
	assert.Equal(t, p.ID(), db.Sequence())
}

func TestAlterArea_SamePathSpelledDifferently(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	area := createTestArea(t, m, db, "a1", "a1")
	before := m.log.CurrentLSN()

	rec := logdata.New(logdata.AlterArea, db.Name())
	dotted := filepath.Join(m.cfg.DefaultAreaPath, ".", "x", "..", "a1") + "/"
	_, _, changed, err := AlterArea(writeTxn(), area, &AlterAreaStmt{Name: "a1", Action: SingleModify, Paths: ModifyPaths(dotted)}, rec)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, rec.Count())

	require.NoError(t, m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "a1", Action: SingleModify, Paths: ModifyPaths(dotted)}))
	assert.Equal(t, before, m.log.CurrentLSN(), "no record for a void alter")
}

func TestAlterArea_PathCountMismatch(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	createTestArea(t, m, db, "a1", "a1", "a2")

	err := m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "a1", Action: FullAryModify, Paths: ModifyPaths("b1")})
	assert.True(t, dberror.Is(err, dberror.CodeInvalidPath))

	err = m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "zz", Action: FullAryModify, Paths: ModifyPaths("b1")})
	assert.True(t, dberror.Is(err, dberror.CodeNotFound))
}

func TestAlterArea_MovesContents(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	area := createTestArea(t, m, db, "a1", "a1", "a2")
	contents := assignObjects(t, m, area, 3)

	stmt := &AlterAreaStmt{Name: "a1", Action: ElemAryModify, Paths: []AreaElement{{}, {Path: "b2", Set: true}}}
	require.NoError(t, m.AlterArea(writeTxn(), db, stmt))

	assert.Equal(t, []string{areaPath(m, "a1"), areaPath(m, "b2")}, area.Path())
	assert.Equal(t, StatusPersistent, area.Status())
	for _, c := range contents {
		assert.FileExists(t, filepath.Join(areaPath(m, "a1"), ObjectDirName(c), "data.bin"))
		assert.FileExists(t, filepath.Join(areaPath(m, "b2"), ObjectDirName(c), "data.bin"))
	}
	assert.NoDirExists(t, areaPath(m, "a2"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.AreaMoves))

	db.AbandonCache()
	stored, err := db.AreaByName(nil, "a1")
	require.NoError(t, err)
	assert.Equal(t, area.Path(), stored.Path())
}

func TestAlterArea_MoveFailureRestoresPath(t *testing.T) {
	mover := &failingMover{failAt: 1}
	m := newTestManager(t, func(c *Config) { c.Mover = mover })
	db := newTestDatabase(t, m, "sales")
	root := filepath.Dir(m.cfg.Dir)
	from, to := filepath.Join(root, "d", "a"), filepath.Join(root, "d", "b")

	area := createTestArea(t, m, db, "A1", from)
	contents := assignObjects(t, m, area, 1)

	rec := logdata.New(logdata.AlterArea, db.Name())
	prev, post, changed, err := AlterArea(writeTxn(), area, &AlterAreaStmt{Name: "A1", Action: ElemAryModify, Paths: ModifyPaths(to)}, rec)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{from}, prev)
	assert.Equal(t, []string{to}, post)

	err = m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "A1", Action: ElemAryModify, Paths: ModifyPaths(to)})
	require.Error(t, err)

	assert.Equal(t, []string{from}, area.Path())
	assert.NoDirExists(t, to)
	assert.FileExists(t, filepath.Join(from, ObjectDirName(contents[0]), "data.bin"))
	assert.True(t, db.IsAvailable())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.MoveRollbacks))

	// the reservation of the failed statement is gone
	mover.failAt = 0
	require.NoError(t, m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "A1", Action: ElemAryModify, Paths: ModifyPaths(to)}))
	assert.Equal(t, []string{to}, area.Path())
}

func TestAlterArea_PartialMoveIsAllOrNothing(t *testing.T) {
	for k := int32(1); k <= 4; k++ {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			m := newTestManager(t, func(c *Config) { c.Mover = &failingMover{failAt: k} })
			db := newTestDatabase(t, m, "sales")
			area := createTestArea(t, m, db, "a", "a1", "a2")
			contents := assignObjects(t, m, area, 4)

			err := m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "a", Action: FullAryModify, Paths: ModifyPaths("b1", "b2")})
			require.Error(t, err)

			assert.Equal(t, []string{areaPath(m, "a1"), areaPath(m, "a2")}, area.Path())
			for _, c := range contents {
				for _, p := range []string{"a1", "a2"} {
					assert.FileExists(t, filepath.Join(areaPath(m, p), ObjectDirName(c), "data.bin"))
				}
			}
			assert.NoDirExists(t, areaPath(m, "b1"))
			assert.NoDirExists(t, areaPath(m, "b2"))
		})
	}
}

func TestAlterArea_FaultPointsRollBack(t *testing.T) {
	points := []string{
		FaultMovePrepared, FaultMoveFileMoved, FaultMoveMoved, FaultSweepMoveMoved,
		FaultMoveSweeped, FaultAlterAreaMoved, FaultAlterAreaStored,
	}
	for _, point := range points {
		t.Run(point, func(t *testing.T) {
			m := newTestManager(t)
			db := newTestDatabase(t, m, "sales")
			area := createTestArea(t, m, db, "a", "a1")
			contents := assignObjects(t, m, area, 2)

			m.SetFaultInjector(FailAt(point))
			err := m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "a", Action: SingleModify, Paths: ModifyPaths("b1")})
			m.SetFaultInjector(nil)
			require.True(t, dberror.Is(err, dberror.CodeFakeError))

			assert.Equal(t, []string{areaPath(m, "a1")}, area.Path())
			for _, c := range contents {
				assert.FileExists(t, filepath.Join(areaPath(m, "a1"), ObjectDirName(c), "data.bin"))
			}
			assert.NoDirExists(t, areaPath(m, "b1"))
			assert.True(t, db.IsAvailable())

			db.AbandonCache()
			stored, err := db.AreaByName(nil, "a")
			require.NoError(t, err)
			assert.Equal(t, []string{areaPath(m, "a1")}, stored.Path())
		})
	}
}

func TestAlterArea_FailedRollbackQuarantines(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.Mover = &failingMover{failAt: 2, failUndo: true} })
	db := newTestDatabase(t, m, "sales")
	area := createTestArea(t, m, db, "a", "a1")
	assignObjects(t, m, area, 2)

	err := m.AlterArea(writeTxn(), db, &AlterAreaStmt{Name: "a", Action: SingleModify, Paths: ModifyPaths("b1")})
	require.Error(t, err)
	assert.False(t, db.IsAvailable())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Quarantines))

	_, err = m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "c", Paths: []string{"c"}})
	assert.True(t, dberror.Is(err, dberror.CodeDatabaseUnavailable))
}

func TestCreateArea_ConcurrentSameName(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	const n = 8
	var wg sync.WaitGroup
	var created atomic.Int32
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			area, err := m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: "same", Paths: []string{fmt.Sprintf("same_%d", i)}})
			errs[i] = err
			if area != nil {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, err := range errs {
		if err != nil {
			assert.True(t, dberror.Is(err, dberror.CodeAlreadyDefined), err.Error())
		}
	}
	areas, err := db.Areas(nil)
	require.NoError(t, err)
	assert.Len(t, areas, 1)
}

func TestCreateArea_ConcurrentSamePath(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")

	const n = 8
	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			area, err := m.CreateArea(writeTxn(), db, &CreateAreaStmt{Name: fmt.Sprintf("a%d", i), Paths: []string{"shared"}})
			if err == nil && area != nil {
				created.Add(1)
				return
			}
			assert.True(t, dberror.Is(err, dberror.CodeInvalidPath), "%v", err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())
}

func TestDropArea_RemovesDirectoriesOnPersist(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	area := createTestArea(t, m, db, "a", "a1")

	txn := writeTxn()
	rec := logdata.New(logdata.DropArea, db.Name())
	require.NoError(t, DropArea(area, rec, txn))
	assert.Equal(t, StatusDeleted, area.Status())
	assert.DirExists(t, areaPath(m, "a1"), "nothing is removed before persist")

	require.NoError(t, m.Persist(txn, rec, area))
	assert.NoDirExists(t, areaPath(m, "a1"))
	assert.Equal(t, StatusReallyDeleted, area.Status())

	got, err := db.AreaByName(nil, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	paths, err := AreaPath(rec)
	require.NoError(t, err)
	assert.Equal(t, []string{areaPath(m, "a1")}, paths)
}

func TestDropArea_NotEmpty(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	area := createTestArea(t, m, db, "a", "a1")
	assignObjects(t, m, area, 1)

	err := m.DropArea(writeTxn(), db, "a")
	assert.True(t, dberror.Is(err, dberror.CodeOtherObjectDepending))
	assert.Equal(t, StatusPersistent, area.Status())
	assert.DirExists(t, areaPath(m, "a1"))

	assert.True(t, dberror.Is(m.DropArea(writeTxn(), db, "missing"), dberror.CodeNotFound))
}

func TestAreaContent(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	area := createTestArea(t, m, db, "a", "a1")
	contents := assignObjects(t, m, area, 2)

	assert.Equal(t, area.ID(), contents[0].AreaID())
	assert.Equal(t, "table_100", ObjectDirName(contents[0]))

	got, err := area.Content(nil, 101, CategoryTable)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, contents[1].ID(), got.ID())

	area.ClearContent()
	loaded, err := area.LoadContent(nil, false)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, AreaHeap, loaded[0].AreaCategory())
	assert.Equal(t, CategoryTable, loaded[0].ObjectCategory())

	contents[0].Drop(false)
	require.NoError(t, m.Persist(writeTxn(), nil, contents[0]))
	loaded, err = area.LoadContent(nil, false)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestArea_PathAccessors(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	area := newArea(db, "a", []string{"/x"})

	area.AddPath("/y")
	assert.Equal(t, 2, area.Size())
	p, err := area.PathAt(1)
	require.NoError(t, err)
	assert.Equal(t, "/y", p)
	_, err = area.PathAt(2)
	assert.True(t, dberror.Is(err, dberror.CodeBadArgument))

	area.ResetPath()
	assert.Equal(t, []string{}, area.Path())
	area.ClearPath()
	assert.Nil(t, area.Path())
}

func TestAreaContent_CacheSizeBalanced(t *testing.T) {
	m := newTestManager(t)
	db := newTestDatabase(t, m, "sales")
	assignObjects(t, m, createTestArea(t, m, db, "a", "a"), 3)

	db.AbandonCache()
	base := m.CacheSize()

	area, err := db.AreaByName(nil, "a")
	require.NoError(t, err)
	require.NotNil(t, area)
	withArea := m.CacheSize()
	assert.Equal(t, base+1, withArea)

	for i := 0; i < 2; i++ {
		contents, err := area.LoadContent(nil, false)
		require.NoError(t, err)
		require.Len(t, contents, 3)
		assert.Equal(t, withArea+3, m.CacheSize())

		area.ClearContent()
		assert.Equal(t, withArea, m.CacheSize(), "cycle %d", i)
	}

	_, err = area.LoadContent(nil, false)
	require.NoError(t, err)
	area.ResetContent()
	assert.Equal(t, withArea, m.CacheSize())

	_, err = area.LoadContent(nil, false)
	require.NoError(t, err)
	db.AbandonCache()
	assert.Equal(t, base, m.CacheSize())
}
