package schema

import (
	"slices"
	"sort"
	"sync"

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
)

// Database is one catalog database as seen through one snapshot. It
// caches its areas and privileges. Object IDs come from the manager, so
// every snapshot's copy of a database draws from the same sequence.
type Database struct {
	Object

	mgr      *Manager
	snapshot *Snapshot
	paths    []string

	seqOnce   sync.Once
	seq       *idSequence
	storedSeq primitives.ObjectID

	// guarded by Object.rw
	reference    int
	delayedClear bool
	areas        map[primitives.ObjectID]*Area
	areaByName   map[string]*Area
	privileges   map[primitives.ObjectID]*Privilege
	privByUser   map[int32]*Privilege
}

var databaseDefinitions = []meta.Definition[*Database]{
	meta.Define[*Database](meta.FileOID),
	meta.Define[*Database](meta.ObjectID),
	meta.Define[*Database](meta.Name),
	meta.DefineWith(meta.StringArray,
		func(db *Database) meta.Field { return meta.StringArrayField(db.paths) },
		func(db *Database, f meta.Field) { db.paths = f.Strs }),
	meta.DefineWith(meta.ID,
		func(db *Database) meta.Field { return meta.IDField(db.Sequence()) },
		func(db *Database, f meta.Field) { db.storedSeq = f.ID }),
	meta.Define[*Database](meta.Timestamp),
}

func newDatabase(mgr *Manager, name string, paths []string) *Database {
	db := &Database{mgr: mgr, paths: slices.Clone(paths)}
	db.init(CategoryDatabase, ScopePermanent, primitives.SystemTableID, name)
	return db
}

// Paths returns the directories of the database.
func (db *Database) Paths() []string {
	return slices.Clone(db.paths)
}

// ---- ID sequence ----

// ids binds db to the manager's sequence for its ID on first use. The
// value read from the catalog row only ever moves that sequence forward.
func (db *Database) ids() *idSequence {
	db.seqOnce.Do(func() {
		db.seq = db.mgr.sequence(db.ID(), db.storedSeq)
	})
	return db.seq
}

func (db *Database) nextID() primitives.ObjectID {
	return db.ids().next()
}

// adoptID moves the sequence past an ID that was assigned elsewhere, such
// as a replayed log record.
func (db *Database) adoptID(id primitives.ObjectID) {
	db.ids().adopt(id)
}

// Sequence returns the last assigned object ID.
func (db *Database) Sequence() primitives.ObjectID {
	return db.ids().current()
}

// ---- open count ----

// Open pins the database. The first open takes it off the delayed clear
// list.
func (db *Database) Open() {
	a := lock.NewAuto(&db.rw, lock.Write)
	defer a.Unlock()
	db.reference++
	if db.reference == 1 && db.delayedClear && db.snapshot != nil {
		db.delayedClear = false
		db.snapshot.EraseDelayedClear(db.ID())
	}
}

// Close releases one pin. When the last pin goes the caches are abandoned
// right away if the cache is over its limit or the database is
// quarantined; otherwise their release is delayed. A volatile close puts
// the database at the head of the delayed list.
func (db *Database) Close(volatile bool) {
	a := lock.NewAuto(&db.rw, lock.Write)
	if db.reference == 0 {
		a.Unlock()
		logging.WithDatabase(uint32(db.ID()), db.Name()).Warn("unbalanced database close")
		return
	}
	db.reference--
	if db.reference > 0 || db.snapshot == nil {
		a.Unlock()
		return
	}
	a.Unlock()

	if !volatile && db.mgr.CheckCacheSize() {
		db.mgr.ClearCache()
	}
	if !db.IsAvailable() || db.mgr.CheckCacheSize() {
		db.AbandonCache()
		return
	}
	a = lock.NewAuto(&db.rw, lock.Write)
	db.delayedClear = true
	a.Unlock()
	db.snapshot.AddDelayedClear(db.ID(), volatile)
}

func (db *Database) IsOpened() bool {
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	return db.reference > 0
}

func (db *Database) IsAvailable() bool {
	return db.mgr.IsAvailable(db.ID())
}

// ---- areas ----

func (db *Database) loadAreas() error {
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	if db.areas != nil {
		return nil
	}
	a.Convert(lock.Write)
	if db.areas != nil {
		return nil
	}

	loaded, err := areaTable.LoadAll(db.mgr.store, db.ID())
	if err != nil {
		return err
	}
	db.areas = make(map[primitives.ObjectID]*Area, len(loaded))
	db.areaByName = make(map[string]*Area, len(loaded))
	for _, area := range loaded {
		area.doAfterLoad(db)
		db.areas[area.ID()] = area
		db.areaByName[area.Name()] = area
	}
	db.mgr.IncrementCacheSize(int64(len(loaded)))
	return nil
}

// Area returns the area with id, or nil.
func (db *Database) Area(_ *transaction.TransactionContext, id primitives.ObjectID) (*Area, error) {
	if err := db.loadAreas(); err != nil {
		return nil, err
	}
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	return db.areas[id], nil
}

// AreaByName returns the area called name, or nil.
func (db *Database) AreaByName(_ *transaction.TransactionContext, name string) (*Area, error) {
	if err := db.loadAreas(); err != nil {
		return nil, err
	}
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	return db.areaByName[name], nil
}

// Areas returns every area ordered by ID.
func (db *Database) Areas(_ *transaction.TransactionContext) ([]*Area, error) {
	if err := db.loadAreas(); err != nil {
		return nil, err
	}
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	out := make([]*Area, 0, len(db.areas))
	for _, area := range db.areas {
		out = append(out, area)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (db *Database) addArea(area *Area) {
	if err := db.loadAreas(); err != nil {
		logging.WithError(err).Warn("area cache not loaded", "database", db.Name())
	}
	a := lock.NewAuto(&db.rw, lock.Write)
	defer a.Unlock()
	if db.areas == nil {
		db.areas = make(map[primitives.ObjectID]*Area)
		db.areaByName = make(map[string]*Area)
	}
	if _, ok := db.areas[area.ID()]; !ok {
		db.mgr.IncrementCacheSize(1)
	}
	db.areas[area.ID()] = area
	db.areaByName[area.Name()] = area
}

func (db *Database) eraseArea(id primitives.ObjectID) {
	a := lock.NewAuto(&db.rw, lock.Write)
	area, ok := db.areas[id]
	if ok {
		delete(db.areas, id)
		if db.areaByName[area.Name()] == area {
			delete(db.areaByName, area.Name())
		}
	}
	a.Unlock()
	if ok {
		db.mgr.DecrementCacheSize(1)
		area.ClearContent()
	}
}

// ---- privileges ----

func (db *Database) loadPrivileges() error {
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	if db.privileges != nil {
		return nil
	}
	a.Convert(lock.Write)
	if db.privileges != nil {
		return nil
	}

	loaded, err := privilegeTable.LoadAll(db.mgr.store, db.ID())
	if err != nil {
		return err
	}
	db.privileges = make(map[primitives.ObjectID]*Privilege, len(loaded))
	db.privByUser = make(map[int32]*Privilege, len(loaded))
	for _, p := range loaded {
		p.doAfterLoad(db)
		db.privileges[p.ID()] = p
		db.privByUser[p.UserID()] = p
	}
	db.mgr.IncrementCacheSize(int64(len(loaded)))
	return nil
}

// Privilege returns the privilege with id, or nil.
func (db *Database) Privilege(_ *transaction.TransactionContext, id primitives.ObjectID) (*Privilege, error) {
	if err := db.loadPrivileges(); err != nil {
		return nil, err
	}
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	return db.privileges[id], nil
}

// PrivilegeOf returns the privilege granted to userID, or nil.
func (db *Database) PrivilegeOf(_ *transaction.TransactionContext, userID int32) (*Privilege, error) {
	if err := db.loadPrivileges(); err != nil {
		return nil, err
	}
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	return db.privByUser[userID], nil
}

// Privileges returns every privilege ordered by ID.
func (db *Database) Privileges(_ *transaction.TransactionContext) ([]*Privilege, error) {
	if err := db.loadPrivileges(); err != nil {
		return nil, err
	}
	a := lock.NewAuto(&db.rw)
	defer a.Unlock()
	out := make([]*Privilege, 0, len(db.privileges))
	for _, p := range db.privileges {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (db *Database) addPrivilege(p *Privilege) {
	if err := db.loadPrivileges(); err != nil {
		logging.WithError(err).Warn("privilege cache not loaded", "database", db.Name())
	}
	a := lock.NewAuto(&db.rw, lock.Write)
	defer a.Unlock()
	if db.privileges == nil {
		db.privileges = make(map[primitives.ObjectID]*Privilege)
		db.privByUser = make(map[int32]*Privilege)
	}
	if _, ok := db.privileges[p.ID()]; !ok {
		db.mgr.IncrementCacheSize(1)
	}
	db.privileges[p.ID()] = p
	db.privByUser[p.UserID()] = p
}

func (db *Database) erasePrivilege(id primitives.ObjectID) {
	a := lock.NewAuto(&db.rw, lock.Write)
	defer a.Unlock()
	if p, ok := db.privileges[id]; ok {
		delete(db.privileges, id)
		if db.privByUser[p.UserID()] == p {
			delete(db.privByUser, p.UserID())
		}
		db.mgr.DecrementCacheSize(1)
	}
}

// builtInRoles are the role names of each privilege category.
var builtInRoles = [PrivilegeCategoryCount]string{
	"system_operations",
	"database_operations",
	"data_operations",
	"reference_operations",
}

// RolePrivilege sets into every bit of the category the role stands for.
func (db *Database) RolePrivilege(role string, into []uint32) error {
	for i, name := range builtInRoles {
		if name == role {
			into[i] = PrivilegeAll
			return nil
		}
	}
	return dberror.NotFound("Role", role)
}

// CheckRelatedPath reports whether path overlaps a directory of the
// database or of one of its areas other than omit.
func (db *Database) CheckRelatedPath(path primitives.Filepath, omit *Area) (bool, error) {
	for _, p := range db.paths {
		if path.Compare(primitives.Filepath(p)) != primitives.PathUnrelated {
			return true, nil
		}
	}
	areas, err := db.Areas(nil)
	if err != nil {
		return false, err
	}
	for _, area := range areas {
		if area == omit || (omit != nil && area.ID() == omit.ID()) {
			continue
		}
		for _, p := range area.Path() {
			if path.Compare(primitives.Filepath(p)) != primitives.PathUnrelated {
				return true, nil
			}
		}
	}
	return false, nil
}

// AbandonCache drops every cached child object. They are reloaded from
// the catalog on next use.
func (db *Database) AbandonCache() {
	a := lock.NewAuto(&db.rw, lock.Write)
	n := len(db.areas) + len(db.privileges)
	areas := make([]*Area, 0, len(db.areas))
	for _, area := range db.areas {
		areas = append(areas, area)
	}
	db.areas, db.areaByName = nil, nil
	db.privileges, db.privByUser = nil, nil
	db.delayedClear = false
	a.Unlock()

	// area locks are never taken under the database lock
	for _, area := range areas {
		area.ClearContent()
	}
	if n > 0 {
		db.mgr.DecrementCacheSize(int64(n))
		logging.WithDatabase(uint32(db.ID()), db.Name()).Debug("database cache abandoned", "objects", n)
	}
}

// ---- persistence ----

func (db *Database) object() *Object { return &db.Object }

func (db *Database) doBeforePersist(status Status) error {
	if status != StatusDeleted {
		return nil
	}
	var errs error
	for _, p := range db.paths {
		if err := fileops.RmAll(primitives.Filepath(p)); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (db *Database) stage(b *systable.Batch, status Status) {
	switch status {
	case StatusDeleted, StatusDeletedInRecovery:
		databaseTable.Delete(b, primitives.SystemTableID, db)
	default:
		databaseTable.Put(b, primitives.SystemTableID, db)
	}
}

func (db *Database) doAfterPersist(status Status) {
	switch status {
	case StatusCreated, StatusMounted, StatusDeleteCanceled:
		db.mgr.noVersion.AddDatabase(db)
	case StatusDeleted, StatusDeletedInRecovery:
		db.setStatus(StatusReallyDeleted)
		db.mgr.noVersion.EraseDatabase(db.ID(), primitives.IllegalSessionID)
	}
}

// doAfterLoad binds a database read from the catalog. The caller holds the
// snapshot lock.
func (db *Database) doAfterLoad(mgr *Manager, s *Snapshot) {
	db.mgr = mgr
	db.snapshot = s
	db.category = CategoryDatabase
	db.scope = ScopePermanent
	db.databaseID = db.ID()
	db.parentID = primitives.SystemTableID
	db.setStatus(StatusPersistent)
}

func (db *Database) makeLogData(log *logdata.LogData) {
	log.AddString(db.Name())
	log.AddID(db.ID())
	log.AddStrings(db.paths)
}
