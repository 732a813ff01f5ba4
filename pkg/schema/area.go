package schema

import (
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"

	"schemacore/pkg/catalog/systable"
	"schemacore/pkg/concurrency/lock"
	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/fileops"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/meta"
	"schemacore/pkg/schema/recovery"
)

// Positions of the items of area log records.
const (
	areaLogName     = 0
	areaLogID       = 1
	areaLogPath     = 2
	areaLogPrevPath = 2
	areaLogPostPath = 3
)

// Area is a named, ordered array of directories that tables and indexes
// can be stored in.
type Area struct {
	Object

	db *Database

	// guarded by Object.rw
	paths    []string
	contents map[primitives.ObjectID]*AreaContent

	nameReserved  bool
	pathsReserved bool
}

var areaDefinitions = []meta.Definition[*Area]{
	meta.Define[*Area](meta.FileOID),
	meta.Define[*Area](meta.ObjectID),
	meta.Define[*Area](meta.Name),
	meta.DefineWith(meta.StringArray,
		func(a *Area) meta.Field { return meta.StringArrayField(a.pathSnapshot()) },
		func(a *Area, f meta.Field) { a.paths = f.Strs }),
	meta.Define[*Area](meta.Timestamp),
}

func newArea(db *Database, name string, paths []string) *Area {
	a := &Area{db: db, paths: paths}
	a.init(CategoryArea, db.Scope(), db.ID(), name)
	return a
}

// Database returns the owning database.
func (a *Area) Database() *Database {
	return a.db
}

func (a *Area) logger() *slog.Logger {
	return logging.WithObject(CategoryArea.String(), uint32(a.ID()), a.Name())
}

// fullPathName resolves a path given in a statement. Relative paths are
// placed under the default area path.
func (m *Manager) fullPathName(p string) string {
	return primitives.Filepath(p).FullPath(primitives.Filepath(m.cfg.DefaultAreaPath)).String()
}

// ---- statements ----

// CreateArea builds an area from CREATE AREA and records it in log. A nil
// area with a nil error means the statement was canceled as a duplicate.
func CreateArea(db *Database, stmt AreaDefinition, log *logdata.LogData,
	txn *transaction.TransactionContext) (*Area, error) {
	if txn.IsReadOnly() {
		return nil, dberror.ReadOnlyTransaction("CREATE AREA")
	}
	if err := db.mgr.checkAvailability(db); err != nil {
		return nil, err
	}

	elements := stmt.Elements()
	paths := make([]string, len(elements))
	for i, e := range elements {
		paths[i] = db.mgr.fullPathName(e)
	}

	area := newArea(db, stmt.AreaName(), paths)
	if exists, err := area.checkName(txn); exists || err != nil {
		return nil, err
	}
	area.create(db, primitives.InvalidObjectID)
	area.makeLogData(log)
	txn.RecordCreate()
	return area, nil
}

// CreateAreaFromLog rebuilds an area from a CreateArea record during
// recovery. A path recorded by a later undone ALTER AREA takes precedence
// over the logged one.
func CreateAreaFromLog(txn *transaction.TransactionContext, db *Database, log *logdata.LogData) (*Area, error) {
	name, err := AreaName(log)
	if err != nil {
		return nil, err
	}
	id, err := AreaObjectID(log)
	if err != nil {
		return nil, err
	}
	paths, err := AreaPath(log)
	if err != nil {
		return nil, err
	}

	area := newArea(db, name, paths)
	if exists, err := area.checkName(txn); exists || err != nil {
		return nil, err
	}
	area.checkUndo(id)
	area.create(db, id)
	return area, nil
}

// CreateAreaForMount rebuilds an area of a database being mounted. The
// name is known to be unique so no check is made.
func CreateAreaForMount(txn *transaction.TransactionContext, db *Database, log *logdata.LogData) (*Area, error) {
	name, err := AreaName(log)
	if err != nil {
		return nil, err
	}
	id, err := AreaObjectID(log)
	if err != nil {
		return nil, err
	}
	paths, err := AreaPath(log)
	if err != nil {
		return nil, err
	}
	area := newArea(db, name, paths)
	area.create(db, id)
	area.setStatus(StatusMounted)
	return area, nil
}

// DropArea marks area dropped and records it in log. Its directories are
// removed when the drop is persisted.
func DropArea(area *Area, log *logdata.LogData, txn *transaction.TransactionContext) error {
	if txn.IsReadOnly() {
		return dberror.ReadOnlyTransaction("DROP AREA")
	}
	if err := area.db.mgr.checkAvailability(area.db); err != nil {
		return err
	}
	if err := area.Drop(txn, false, true); err != nil {
		return err
	}
	area.makeLogData(log)
	txn.RecordDrop()
	return nil
}

// Drop marks the area dropped. With check set, an area that still has
// contents is refused and left untouched.
func (a *Area) Drop(txn *transaction.TransactionContext, recovery, check bool) error {
	if check {
		contents, err := a.LoadContent(txn, recovery)
		if err != nil {
			return err
		}
		if len(contents) > 0 {
			a.logger().Info("can't drop area, area is not empty", "contents", len(contents))
			return dberror.OtherObjectDepending(a.Name())
		}
	}
	a.drop(recovery)
	return nil
}

// DropForMount drops an area of a database being mounted.
func (a *Area) DropForMount(txn *transaction.TransactionContext) error {
	return a.Drop(txn, true, false)
}

// AlterArea computes the path change of ALTER AREA. When some path really
// changes it records the name, the ID and both path arrays in log and
// returns changed. The files are moved later by Move.
func AlterArea(txn *transaction.TransactionContext, area *Area, stmt AlterAreaStatement,
	log *logdata.LogData) (prev, post []string, changed bool, err error) {
	if txn.IsReadOnly() {
		return nil, nil, false, dberror.ReadOnlyTransaction("ALTER AREA")
	}
	if err := area.db.mgr.checkAvailability(area.db); err != nil {
		return nil, nil, false, err
	}

	prev, post, changed, err = area.setMovePrepare(stmt.ActionType(), stmt.AreaElements())
	if err != nil || !changed {
		return prev, post, false, err
	}
	area.makeLogData(log)
	log.AddStrings(prev)
	log.AddStrings(post)
	txn.RecordAlter()
	return prev, post, true, nil
}

// ---- existence checks ----

// checkName reserves the area name and looks for an existing area of the
// same name. exists with a nil error means the create was canceled.
func (a *Area) checkName(txn *transaction.TransactionContext) (exists bool, err error) {
	m := a.db.mgr
	duplicate := func() (bool, error) {
		if m.canceledWhenDuplicated() {
			a.logger().Info("area already defined, canceled", "database", a.db.Name())
			return true, nil
		}
		return true, dberror.AlreadyDefined("Area", a.Name(), a.db.Name())
	}

	if !m.ReserveName(a.db.ID(), CategoryArea, a.Name()) {
		return duplicate()
	}
	existing, err := a.db.AreaByName(txn, a.Name())
	if err != nil {
		m.WithdrawName(a.db.ID(), CategoryArea, a.Name())
		return true, err
	}
	if existing != nil {
		m.WithdrawName(a.db.ID(), CategoryArea, a.Name())
		return duplicate()
	}
	a.nameReserved = true
	return false, nil
}

// CheckPath examines the directories a CREATE, ALTER or MOUNT is about to
// use. paths nil means the area's own paths; otherwise positions whose
// path does not change are skipped. It returns true when some path is
// already in use. needExistence is the MOUNT rule (the directory must
// exist); eraseExistence removes existing directories instead of
// reporting them.
func (a *Area) CheckPath(txn *transaction.TransactionContext, paths []string,
	eraseExistence, needExistence bool) (bool, error) {
	m := a.db.mgr
	own := a.Path()

	candidates := own
	if paths != nil {
		candidates = nil
		for i, p := range paths {
			if i < len(own) && primitives.Filepath(p).Compare(primitives.Filepath(own[i])) == primitives.PathIdentical {
				continue
			}
			candidates = append(candidates, p)
		}
	}

	var checked []primitives.Filepath
	for _, p := range candidates {
		if m.cfg.MaxPathLength > 0 && len(p) > m.cfg.MaxPathLength {
			a.logger().Warn("area path is too long", "path", p, "max", m.cfg.MaxPathLength)
		}
		fp := primitives.Filepath(p)
		if slices.ContainsFunc(checked, func(c primitives.Filepath) bool {
			return c.Compare(fp) == primitives.PathIdentical
		}) {
			continue
		}
		checked = append(checked, fp)
	}
	if len(checked) == 0 {
		return false, nil
	}

	if !m.ReservePath(a, checked) {
		a.logger().Info("area path is used by another statement")
		return true, nil
	}
	release := func() { m.WithdrawPath(a, checked) }

	for _, fp := range checked {
		if fileops.IsFound(fp) {
			switch {
			case needExistence:
			case eraseExistence:
				if err := fileops.RmAll(fp); err != nil {
					release()
					return true, err
				}
			default:
				release()
				return true, nil
			}
		} else if needExistence {
			release()
			a.logger().Info("area path does not exist", "path", fp.String())
			return false, dberror.InvalidPath(fp.String())
		}

		used, err := m.isUsedInOthers(txn, fp, a)
		if err != nil {
			release()
			return true, err
		}
		if used {
			release()
			return true, nil
		}
	}

	if needExistence {
		release()
	} else {
		a.pathsReserved = true
	}
	return false, nil
}

// checkUndo replaces the path with the final path of an ALTER AREA that
// was undone later in the log.
func (a *Area) checkUndo(id primitives.ObjectID) {
	u := a.db.mgr.recovery
	if !u.IsEntered(a.db.Name(), id, recovery.UndoAlterArea) {
		return
	}
	if p, ok := u.UndoAreaPath(a.db.Name(), id); ok {
		a.SetPath(p)
	}
}

// ---- paths ----

// Path returns a copy of the path array.
func (a *Area) Path() []string {
	l := lock.NewAuto(&a.rw)
	defer l.Unlock()
	return slices.Clone(a.paths)
}

func (a *Area) pathSnapshot() []string {
	l := lock.NewAuto(&a.rw)
	defer l.Unlock()
	if a.paths == nil {
		return []string{}
	}
	return slices.Clone(a.paths)
}

// PathAt returns the i-th path.
func (a *Area) PathAt(i int) (string, error) {
	l := lock.NewAuto(&a.rw)
	defer l.Unlock()
	if i < 0 || i >= len(a.paths) {
		return "", dberror.BadArgument("area %q has no path at %d", a.Name(), i)
	}
	return a.paths[i], nil
}

// Size returns the number of paths.
func (a *Area) Size() int {
	l := lock.NewAuto(&a.rw)
	defer l.Unlock()
	return len(a.paths)
}

func (a *Area) AddPath(p string) {
	l := lock.NewAuto(&a.rw, lock.Write)
	defer l.Unlock()
	a.paths = append(a.paths, p)
}

func (a *Area) SetPath(paths []string) {
	l := lock.NewAuto(&a.rw, lock.Write)
	defer l.Unlock()
	a.paths = slices.Clone(paths)
}

// ResetPath empties the path array.
func (a *Area) ResetPath() {
	l := lock.NewAuto(&a.rw, lock.Write)
	defer l.Unlock()
	a.paths = []string{}
}

// ClearPath releases the path array.
func (a *Area) ClearPath() {
	l := lock.NewAuto(&a.rw, lock.Write)
	defer l.Unlock()
	a.paths = nil
}

// ---- persistence ----

func (a *Area) object() *Object { return &a.Object }

// Destroy removes every directory of the area.
func (a *Area) Destroy() error {
	var errs error
	for _, p := range a.Path() {
		if err := fileops.RmAll(primitives.Filepath(p)); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (a *Area) doBeforePersist(status Status) error {
	if status == StatusDeleted {
		return a.Destroy()
	}
	return nil
}

func (a *Area) stage(b *systable.Batch, status Status) {
	switch status {
	case StatusDeleted, StatusDeletedInRecovery:
		areaTable.Delete(b, a.DatabaseID(), a)
	default:
		areaTable.Put(b, a.DatabaseID(), a)
	}
}

func (a *Area) doAfterPersist(status Status) {
	switch status {
	case StatusCreated, StatusMounted, StatusDeleteCanceled:
		a.db.addArea(a)
	case StatusChanged:
		a.ClearContent()
	case StatusDeleted, StatusDeletedInRecovery:
		a.setStatus(StatusReallyDeleted)
		a.ResetContent()
		a.db.eraseArea(a.ID())
	}
	a.withdrawReservations()
}

func (a *Area) withdrawReservations() {
	m := a.db.mgr
	if a.nameReserved {
		m.WithdrawName(a.db.ID(), CategoryArea, a.Name())
		a.nameReserved = false
	}
	if a.pathsReserved {
		m.WithdrawAllPaths(a)
		a.pathsReserved = false
	}
}

// doAfterLoad binds an area read from the catalog to its database. The
// caller holds the database lock.
func (a *Area) doAfterLoad(db *Database) {
	a.db = db
	a.category = CategoryArea
	a.scope = db.Scope()
	a.databaseID = db.ID()
	a.parentID = db.ID()
	a.setStatus(StatusPersistent)
	a.checkUndo(a.ID())
}

// ---- log data ----

func (a *Area) makeLogData(log *logdata.LogData) {
	log.AddString(a.Name())
	log.AddID(a.ID())
	switch log.SubCategory() {
	case logdata.CreateArea, logdata.DropArea:
		log.AddStrings(a.Path())
	}
}

// AreaObjectID reads the area ID of an area record.
func AreaObjectID(log *logdata.LogData) (primitives.ObjectID, error) {
	return log.ID(areaLogID)
}

// AreaName reads the area name of an area record.
func AreaName(log *logdata.LogData) (string, error) {
	return log.String(areaLogName)
}

// AreaPath reads the paths of a CreateArea or DropArea record.
func AreaPath(log *logdata.LogData) ([]string, error) {
	return log.Strings(areaLogPath)
}

// AreaMovePaths reads both path arrays of an AlterArea record.
func AreaMovePaths(log *logdata.LogData) (prev, post []string, err error) {
	if prev, err = log.Strings(areaLogPrevPath); err != nil {
		return nil, nil, err
	}
	if post, err = log.Strings(areaLogPostPath); err != nil {
		return nil, nil, err
	}
	return prev, post, nil
}
