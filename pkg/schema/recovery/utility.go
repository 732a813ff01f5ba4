// Package recovery holds the state that reconciles logical log replay with
// the final catalog state during crash recovery and mount.
//
// The backward undo scan records, per database and object, which
// operations were undone and what the final path, name, area assignment or
// privilege value of the object is. The forward redo pass then consults
// these maps before the values recorded in the log, so a single replay
// produces the same result as "replay, then apply every later undo".
//
// A Utility is created once per process or per recovery pass and released
// with Terminate. Every method is safe for concurrent use.
package recovery

import (
	"slices"
	"sync"

	"schemacore/pkg/fileops"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
)

// Mounting is a database whose mount is being recovered. Paths recorded in
// the log are superseded by the paths it was mounted with.
type Mounting interface {
	Name() string
	Paths() []string
}

// Utility is the recovery context.
type Utility struct {
	mu sync.Mutex

	undoObjects   map[primitives.ObjectID]UndoType
	undoObjectMap idMapVector[primitives.ObjectID, UndoType]

	undoDatabasePath map[primitives.ObjectID][]string
	undoAreaPath     idMapVector[primitives.ObjectID, []string]
	undoArea         idMapVector[primitives.ObjectID, []primitives.ObjectID]
	undoName         idMapVector[primitives.ObjectID, string]
	undoFileName     idMapVector[primitives.ObjectID, string]
	undoPrivilege    idMapVector[primitives.ObjectID, []uint32]
	unremovableArea  idMapVector[primitives.ObjectID, int]
	usedIDMax        mapVector[primitives.ObjectID]

	exceptPaths []primitives.Filepath
	usedPaths   []primitives.Filepath
	mounting    []Mounting
}

func New() *Utility {
	return &Utility{}
}

// Terminate frees every map. The Utility can be reused afterwards.
func (u *Utility) Terminate() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.usedIDMax.reset()
	u.unremovableArea.reset()
	u.undoPrivilege.reset()
	u.undoName.reset()
	u.undoFileName.reset()
	u.undoArea.reset()
	u.undoDatabasePath = nil
	u.undoAreaPath.reset()
	u.undoObjects = nil
	u.undoObjectMap.reset()
	u.exceptPaths = nil
	u.usedPaths = nil

	logging.WithComponent("recovery").Debug("recovery state terminated")
}

// InitializeDatabase starts the recovery scope of a database being mounted.
func (u *Utility) InitializeDatabase(db Mounting) {
	u.EnterMounting(db)
}

// TerminateDatabase drops everything recorded for db.
func (u *Utility) TerminateDatabase(db Mounting) {
	u.mu.Lock()
	name := db.Name()
	u.usedIDMax.erase(name)
	u.unremovableArea.erase(name)
	u.undoPrivilege.erase(name)
	u.undoName.erase(name)
	u.undoFileName.erase(name)
	u.undoArea.erase(name)
	u.undoAreaPath.erase(name)
	u.undoObjectMap.erase(name)
	u.mu.Unlock()

	u.RemoveMounting(db)
}

// Empty reports whether no per-database state remains.
func (u *Utility) Empty() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.undoObjects) == 0 &&
		u.undoObjectMap.len() == 0 &&
		len(u.undoDatabasePath) == 0 &&
		u.undoAreaPath.len() == 0 &&
		u.undoArea.len() == 0 &&
		u.undoName.len() == 0 &&
		u.undoFileName.len() == 0 &&
		u.undoPrivilege.len() == 0 &&
		u.unremovableArea.len() == 0 &&
		u.usedIDMax.len() == 0
}

// ---- Undo ----

// EnterGlobal records a pending undo of t for a database-level object.
func (u *Utility) EnterGlobal(id primitives.ObjectID, t UndoType) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.undoObjects == nil {
		u.undoObjects = make(map[primitives.ObjectID]UndoType)
	}
	u.undoObjects[id] = setBits(u.undoObjects[id], t)
}

// RemoveGlobal clears t for id and forgets id once no type is left.
func (u *Utility) RemoveGlobal(id primitives.ObjectID, t UndoType) {
	u.mu.Lock()
	defer u.mu.Unlock()
	mask, ok := u.undoObjects[id]
	if !ok {
		return
	}
	if mask = clearBits(mask, t); mask == 0 {
		delete(u.undoObjects, id)
		if len(u.undoObjects) == 0 {
			u.undoObjects = nil
		}
		return
	}
	u.undoObjects[id] = mask
}

func (u *Utility) IsEnteredGlobal(id primitives.ObjectID, t UndoType) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	mask, ok := u.undoObjects[id]
	return ok && hasAll(mask, t)
}

// Enter records a pending undo of t for an object of database dbName.
func (u *Utility) Enter(dbName string, id primitives.ObjectID, t UndoType) {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, _ := u.undoObjectMap.find(dbName, true, newMap[primitives.ObjectID, UndoType])
	(*m)[id] = setBits((*m)[id], t)
}

// Remove clears t for id. The entry and then the database map are dropped
// once they become empty.
func (u *Utility) Remove(dbName string, id primitives.ObjectID, t UndoType) {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, _ := u.undoObjectMap.find(dbName, false, nil)
	if m == nil {
		return
	}
	mask, ok := (*m)[id]
	if !ok {
		return
	}
	if mask = clearBits(mask, t); mask != 0 {
		(*m)[id] = mask
		return
	}
	delete(*m, id)
	if len(*m) == 0 {
		u.undoObjectMap.erase(dbName)
	}
}

func (u *Utility) IsEntered(dbName string, id primitives.ObjectID, t UndoType) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	mask, ok := u.undoObjectMap.get(dbName, id)
	return ok && hasAll(mask, t)
}

func (u *Utility) EnterMounting(db Mounting) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mounting = append(u.mounting, db)
}

func (u *Utility) RemoveMounting(db Mounting) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if i := slices.Index(u.mounting, db); i >= 0 {
		u.mounting = slices.Delete(u.mounting, i, i+1)
	}
}

// IsMounting returns the database named dbName when its mount is being
// recovered.
func (u *Utility) IsMounting(dbName string) (Mounting, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.isMountingLocked(dbName)
}

func (u *Utility) isMountingLocked(dbName string) (Mounting, bool) {
	for _, db := range u.mounting {
		if db.Name() == dbName {
			return db, true
		}
	}
	return nil, false
}

// IsValidDatabase reports whether database id will survive recovery.
func (u *Utility) IsValidDatabase(id primitives.ObjectID) bool {
	return !u.IsEnteredGlobal(id, UndoDropDatabase) && !u.IsEnteredGlobal(id, UndoUnmount)
}

func (u *Utility) IsValidTable(dbName string, id primitives.ObjectID) bool {
	return !u.IsEntered(dbName, id, UndoDropTable)
}

// ---- Path ----

// SetUndoDatabasePath registers the final path of a database. It returns
// false when a path was already registered.
func (u *Utility) SetUndoDatabasePath(id primitives.ObjectID, paths []string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.undoDatabasePath == nil {
		u.undoDatabasePath = make(map[primitives.ObjectID][]string)
	}
	if _, ok := u.undoDatabasePath[id]; ok {
		return false
	}
	u.undoDatabasePath[id] = slices.Clone(paths)
	return true
}

func (u *Utility) UndoDatabasePath(id primitives.ObjectID) ([]string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.undoDatabasePath[id]
	return slices.Clone(p), ok
}

// SetUndoAreaPath registers the final path array of an area.
func (u *Utility) SetUndoAreaPath(dbName string, id primitives.ObjectID, paths []string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoAreaPath.setIfAbsent(dbName, id, slices.Clone(paths))
}

func (u *Utility) UndoAreaPath(dbName string, id primitives.ObjectID) ([]string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.undoAreaPath.get(dbName, id)
	return slices.Clone(p), ok
}

func (u *Utility) EraseUndoAreaPath(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undoAreaPath.remove(dbName, id)
}

// AddUnremovablePath protects path and everything below it from
// RmAllRemovable.
func (u *Utility) AddUnremovablePath(path primitives.Filepath) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.exceptPaths = append(u.exceptPaths, path)
}

// RmAllRemovable removes path except the protected paths below it. When
// lookParent is set a protected ancestor of path protects path as well.
func (u *Utility) RmAllRemovable(path primitives.Filepath, lookParent bool) error {
	u.mu.Lock()
	protected := slices.Clone(u.exceptPaths)
	u.mu.Unlock()

	var except []primitives.Filepath
	for _, e := range protected {
		switch path.Compare(e) {
		case primitives.PathIdentical:
			return nil
		case primitives.PathChild:
			if lookParent {
				return nil
			}
		case primitives.PathParent:
			except = append(except, e)
		}
	}
	return fileops.RmAllExcept(path, except)
}

// IsRemovableAreaPath reports whether path can be removed: it must not be
// related to the final path of any area still marked unremovable.
func (u *Utility) IsRemovableAreaPath(dbName string, path primitives.Filepath) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	m, _ := u.unremovableArea.find(dbName, false, nil)
	if m == nil {
		return true
	}
	for id, refs := range *m {
		if refs <= 0 {
			continue
		}
		paths, ok := u.undoAreaPath.get(dbName, id)
		if !ok {
			// never altered, so it cannot share the path
			continue
		}
		for _, p := range paths {
			if path.Compare(primitives.Filepath(p)) != primitives.PathUnrelated {
				return false
			}
		}
	}
	return true
}

func (u *Utility) AddUsedPath(path primitives.Filepath) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usedPaths = append(u.usedPaths, path)
}

// IsUsedPath reports whether path is a used path or lies below one.
func (u *Utility) IsUsedPath(path primitives.Filepath) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, used := range u.usedPaths {
		switch path.Compare(used) {
		case primitives.PathIdentical, primitives.PathChild:
			return true
		}
	}
	return false
}

// EffectiveDatabasePath returns the final path of the database logged at
// idIndex, falling back to EffectiveDatabasePathInDrop.
func (u *Utility) EffectiveDatabasePath(log *logdata.LogData, idIndex, pathIndex int, dbName string) ([]string, error) {
	id, err := log.ID(idIndex)
	if err != nil {
		return nil, err
	}
	if p, ok := u.UndoDatabasePath(id); ok {
		return p, nil
	}
	return u.EffectiveDatabasePathInDrop(log, pathIndex, dbName)
}

// EffectiveDatabasePathInDrop returns the mount path of a database being
// mounted, or the path recorded in the log.
func (u *Utility) EffectiveDatabasePathInDrop(log *logdata.LogData, pathIndex int, dbName string) ([]string, error) {
	if db, ok := u.IsMounting(dbName); ok {
		return db.Paths(), nil
	}
	return log.Strings(pathIndex)
}

// ---- ID ----

func (u *Utility) SetUndoAreaID(dbName string, id primitives.ObjectID, areas []primitives.ObjectID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoArea.setIfAbsent(dbName, id, slices.Clone(areas))
}

func (u *Utility) UndoAreaID(dbName string, id primitives.ObjectID) ([]primitives.ObjectID, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	a, ok := u.undoArea.get(dbName, id)
	return slices.Clone(a), ok
}

func (u *Utility) EraseUndoAreaID(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undoArea.remove(dbName, id)
}

// SetUnremovableAreaID adds one reference protecting the directories of
// area id. Invalid IDs are ignored.
func (u *Utility) SetUnremovableAreaID(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.setUnremovableLocked(dbName, id)
}

func (u *Utility) SetUnremovableAreaIDs(dbName string, ids []primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range ids {
		u.setUnremovableLocked(dbName, id)
	}
}

func (u *Utility) setUnremovableLocked(dbName string, id primitives.ObjectID) {
	if id == primitives.InvalidObjectID {
		return
	}
	m, _ := u.unremovableArea.find(dbName, true, newMap[primitives.ObjectID, int])
	(*m)[id]++
}

// EraseUnremovableAreaID drops one reference. Protection ends when the
// count reaches zero.
func (u *Utility) EraseUnremovableAreaID(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.eraseUnremovableLocked(dbName, id)
}

func (u *Utility) EraseUnremovableAreaIDs(dbName string, ids []primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range ids {
		u.eraseUnremovableLocked(dbName, id)
	}
}

func (u *Utility) eraseUnremovableLocked(dbName string, id primitives.ObjectID) {
	if id == primitives.InvalidObjectID {
		return
	}
	refs, ok := u.unremovableArea.get(dbName, id)
	if !ok {
		return
	}
	if refs > 1 {
		m, _ := u.unremovableArea.find(dbName, false, nil)
		(*m)[id] = refs - 1
		return
	}
	u.unremovableArea.remove(dbName, id)
}

func (u *Utility) IsUnremovableAreaID(dbName string, id primitives.ObjectID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	refs, ok := u.unremovableArea.get(dbName, id)
	return ok && refs > 0
}

// EffectiveAreaID returns the final area assignment of object id, or the
// IDs logged at index. A negative index yields nothing.
func (u *Utility) EffectiveAreaID(log *logdata.LogData, index int, id primitives.ObjectID, dbName string) ([]primitives.ObjectID, error) {
	if a, ok := u.UndoAreaID(dbName, id); ok {
		return a, nil
	}
	if index < 0 {
		return nil, nil
	}
	return log.IDs(index)
}

// SetUsedID records that id appears in the log of dbName.
func (u *Utility) SetUsedID(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	used, _ := u.usedIDMax.find(dbName, true, func() primitives.ObjectID { return 0 })
	if *used < id {
		*used = id
	}
}

// UsedIDMax returns the highest ID seen in the log of dbName, or zero.
func (u *Utility) UsedIDMax(dbName string) primitives.ObjectID {
	u.mu.Lock()
	defer u.mu.Unlock()
	if used, _ := u.usedIDMax.find(dbName, false, nil); used != nil {
		return *used
	}
	return 0
}

// ---- Name ----

func (u *Utility) SetUndoName(dbName string, id primitives.ObjectID, name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoName.setIfAbsent(dbName, id, name)
}

func (u *Utility) UndoName(dbName string, id primitives.ObjectID) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoName.get(dbName, id)
}

func (u *Utility) EraseUndoName(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undoName.remove(dbName, id)
}

// EffectiveName returns the final name of object id, or the name logged at
// index.
func (u *Utility) EffectiveName(log *logdata.LogData, index int, id primitives.ObjectID, dbName string) (string, error) {
	if n, ok := u.UndoName(dbName, id); ok {
		return n, nil
	}
	if index < 0 {
		return "", nil
	}
	return log.String(index)
}

func (u *Utility) SetUndoFileName(dbName string, id primitives.ObjectID, name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoFileName.setIfAbsent(dbName, id, name)
}

func (u *Utility) UndoFileName(dbName string, id primitives.ObjectID) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoFileName.get(dbName, id)
}

func (u *Utility) EraseUndoFileName(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undoFileName.remove(dbName, id)
}

func (u *Utility) EffectiveFileName(log *logdata.LogData, index int, id primitives.ObjectID, dbName string) (string, error) {
	if n, ok := u.UndoFileName(dbName, id); ok {
		return n, nil
	}
	if index < 0 {
		return "", nil
	}
	return log.String(index)
}

// ---- PrivilegeValue ----

func (u *Utility) SetUndoValue(dbName string, id primitives.ObjectID, value []uint32) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.undoPrivilege.setIfAbsent(dbName, id, slices.Clone(value))
}

func (u *Utility) UndoValue(dbName string, id primitives.ObjectID) ([]uint32, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.undoPrivilege.get(dbName, id)
	return slices.Clone(v), ok
}

func (u *Utility) EraseUndoValue(dbName string, id primitives.ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undoPrivilege.remove(dbName, id)
}

// EffectiveValue returns the final privilege value of id, or the value
// logged at index.
func (u *Utility) EffectiveValue(log *logdata.LogData, index int, id primitives.ObjectID, dbName string) ([]uint32, error) {
	if v, ok := u.UndoValue(dbName, id); ok {
		return v, nil
	}
	return log.UnsignedIntegers(index)
}
