package schema

import (
	"container/list"
	"sort"
	"sync"

	"schemacore/pkg/concurrency/lock"
	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
)

// Snapshot caches the databases seen by one session or recovery pass. The
// no-version snapshot holds the live catalog.
//
// A session that fetches a database through Database holds one extra open
// on it until ReleaseDatabase, however many times it fetches it.
type Snapshot struct {
	mgr       *Manager
	id        primitives.SnapshotID
	noVersion bool

	rw        lock.RWLock
	databases map[primitives.ObjectID]*Database
	opened    map[primitives.SessionID]bool
}

// NewSnapshot creates and registers a snapshot.
func (m *Manager) NewSnapshot(noVersion bool) *Snapshot {
	s := &Snapshot{
		mgr:       m,
		id:        primitives.SnapshotID(m.snapshotSeq.Add(1)),
		noVersion: noVersion,
		opened:    make(map[primitives.SessionID]bool),
	}
	m.snapshots.Store(s.id, s)
	m.metrics.Snapshots.Inc()
	return s
}

// Snapshot returns the registered snapshot id, or nil.
func (m *Manager) Snapshot(id primitives.SnapshotID) *Snapshot {
	s, _ := m.snapshots.Load(id)
	return s
}

// EraseSnapshot unregisters id.
func (m *Manager) EraseSnapshot(id primitives.SnapshotID) {
	if _, ok := m.snapshots.LoadAndDelete(id); ok {
		m.metrics.Snapshots.Dec()
	}
}

// NoVersion returns the snapshot of the live catalog.
func (m *Manager) NoVersion() *Snapshot {
	return m.noVersion
}

func (s *Snapshot) ID() primitives.SnapshotID { return s.id }
func (s *Snapshot) IsNoVersion() bool         { return s.noVersion }

// Destroy unregisters the snapshot and releases every database it holds.
func (s *Snapshot) Destroy() {
	s.mgr.EraseSnapshot(s.id)
	s.Clear()
}

// Reset empties the database map but keeps it loaded.
func (s *Snapshot) Reset() {
	l := lock.NewAuto(&s.rw, lock.Write)
	var dropped []*Database
	if s.databases != nil {
		dropped = s.resetDatabaseLocked()
	}
	clear(s.opened)
	l.Unlock()
	abandon(dropped)
}

// Clear forgets the database map; it is read again on next use.
func (s *Snapshot) Clear() {
	l := lock.NewAuto(&s.rw, lock.Write)
	dropped := s.clearDatabaseLocked()
	clear(s.opened)
	l.Unlock()
	abandon(dropped)
}

func (s *Snapshot) ResetDatabase() {
	l := lock.NewAuto(&s.rw, lock.Write)
	dropped := s.resetDatabaseLocked()
	l.Unlock()
	abandon(dropped)
}

func (s *Snapshot) ClearDatabase() {
	l := lock.NewAuto(&s.rw, lock.Write)
	dropped := s.clearDatabaseLocked()
	l.Unlock()
	abandon(dropped)
}

func (s *Snapshot) resetDatabaseLocked() []*Database {
	if s.databases == nil {
		s.databases = make(map[primitives.ObjectID]*Database)
		return nil
	}
	dropped := make([]*Database, 0, len(s.databases))
	for _, db := range s.databases {
		dropped = append(dropped, db)
	}
	s.mgr.DecrementCacheSize(int64(len(s.databases)))
	s.databases = make(map[primitives.ObjectID]*Database)
	return dropped
}

func (s *Snapshot) clearDatabaseLocked() []*Database {
	if s.databases == nil {
		return nil
	}
	dropped := s.resetDatabaseLocked()
	s.databases = nil
	return dropped
}

// abandon releases the child caches of databases no longer reachable
// from a snapshot, so the cache counter stays balanced.
func abandon(dbs []*Database) {
	for _, db := range dbs {
		db.AbandonCache()
	}
}

// ---- sessions ----

// ReserveDatabase prepares session to hold an extra open on the first
// database it fetches.
func (s *Snapshot) ReserveDatabase(session primitives.SessionID) {
	s.mgr.sessions.reserve(session)
}

func (s *Snapshot) EraseReservation(session primitives.SessionID) {
	s.mgr.sessions.erase(session)
}

// ReleaseDatabase drops the extra open session holds in this snapshot.
func (s *Snapshot) ReleaseDatabase(session primitives.SessionID) {
	l := lock.NewAuto(&s.rw)
	if !s.opened[session] {
		l.Unlock()
		return
	}
	var db *Database
	if s.databases != nil {
		db = s.databases[s.mgr.sessions.database(session)]
	}
	l.Convert(lock.Write)
	if !s.opened[session] {
		l.Unlock()
		return
	}
	delete(s.opened, session)
	l.Unlock()

	if db != nil {
		logging.WithSession(uint32(session)).Debug("database released", "database", db.Name())
		db.Close(false)
	}
}

// IsDatabaseOpened reports whether session holds an extra open here.
func (s *Snapshot) IsDatabaseOpened(session primitives.SessionID) bool {
	l := lock.NewAuto(&s.rw)
	defer l.Unlock()
	return s.opened[session]
}

// ---- databases ----

// LoadDatabase reads the database table once.
func (s *Snapshot) LoadDatabase(_ *transaction.TransactionContext) error {
	l := lock.NewAuto(&s.rw)
	defer l.Unlock()
	if s.databases != nil {
		return nil
	}
	l.Convert(lock.Write)
	if s.databases != nil {
		return nil
	}

	loaded, err := databaseTable.LoadAll(s.mgr.store, primitives.SystemTableID)
	if err != nil {
		return err
	}
	s.databases = make(map[primitives.ObjectID]*Database, len(loaded))
	for _, db := range loaded {
		db.doAfterLoad(s.mgr, s)
		s.databases[db.ID()] = db
	}
	s.mgr.IncrementCacheSize(int64(len(loaded)))
	logging.WithSnapshot(uint64(s.id)).Debug("databases loaded", "count", len(loaded))
	return nil
}

// Databases returns every valid database ordered by ID.
func (s *Snapshot) Databases(txn *transaction.TransactionContext) ([]*Database, error) {
	if err := s.LoadDatabase(txn); err != nil {
		return nil, err
	}
	l := lock.NewAuto(&s.rw)
	defer l.Unlock()
	out := make([]*Database, 0, len(s.databases))
	for id, db := range s.databases {
		if s.mgr.recovery.IsValidDatabase(id) {
			out = append(out, db)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Database returns the database id, or nil when it is unknown or being
// undone. The first fetch by a reserved session pins the database for it.
func (s *Snapshot) Database(id primitives.ObjectID, txn *transaction.TransactionContext) (*Database, error) {
	if !id.IsValid() || !s.mgr.recovery.IsValidDatabase(id) {
		return nil, nil
	}
	if err := s.LoadDatabase(txn); err != nil {
		return nil, err
	}

	l := lock.NewAuto(&s.rw)
	defer l.Unlock()
	db := s.databases[id]
	if db == nil {
		return nil, nil
	}
	session := primitives.IllegalSessionID
	if txn != nil {
		session = txn.SessionID()
	}
	if !session.IsLegal() {
		return db, nil
	}
	s.mgr.sessions.setDatabase(session, id)
	if s.opened[session] || s.mgr.sessions.database(session) != id {
		return db, nil
	}
	l.Convert(lock.Write)
	// Convert drops the lock: the entry may have been replaced or erased
	db = s.databases[id]
	if db == nil {
		return nil, nil
	}
	if !s.opened[session] && s.mgr.sessions.database(session) == id {
		db.Open()
		s.opened[session] = true
	}
	return db, nil
}

// DatabaseID returns the ID of the database called name, or
// InvalidObjectID.
func (s *Snapshot) DatabaseID(name string, txn *transaction.TransactionContext) (primitives.ObjectID, error) {
	if err := s.LoadDatabase(txn); err != nil {
		return primitives.InvalidObjectID, err
	}
	l := lock.NewAuto(&s.rw)
	defer l.Unlock()
	for id, db := range s.databases {
		if db.Name() == name && s.mgr.recovery.IsValidDatabase(id) {
			return id, nil
		}
	}
	return primitives.InvalidObjectID, nil
}

// AddDatabase puts db in the snapshot and binds it to it.
func (s *Snapshot) AddDatabase(db *Database) {
	if err := s.LoadDatabase(nil); err != nil {
		logging.WithError(err).Warn("database table not loaded", "database", db.Name())
	}
	l := lock.NewAuto(&s.rw, lock.Write)
	defer l.Unlock()
	if s.databases == nil {
		s.databases = make(map[primitives.ObjectID]*Database)
	}
	if _, ok := s.databases[db.ID()]; !ok {
		s.mgr.IncrementCacheSize(1)
	}
	s.databases[db.ID()] = db
	db.snapshot = s
}

// EraseDatabase removes id from the snapshot. When session holds the
// extra open on it, that open is released too.
func (s *Snapshot) EraseDatabase(id primitives.ObjectID, session primitives.SessionID) {
	l := lock.NewAuto(&s.rw, lock.Write)
	if s.databases == nil {
		l.Unlock()
		return
	}
	db, ok := s.databases[id]
	if !ok {
		l.Unlock()
		return
	}
	s.mgr.DecrementCacheSize(1)
	release := s.mgr.sessions.database(session) == id && s.opened[session]
	if release {
		delete(s.opened, session)
	}
	delete(s.databases, id)
	l.Unlock()

	if release {
		db.Close(false)
	}
	db.AbandonCache()
}

// CloseDatabase releases one open of database id.
func (s *Snapshot) CloseDatabase(id primitives.ObjectID) {
	l := lock.NewAuto(&s.rw)
	db := s.databases[id]
	l.Unlock()
	if db != nil {
		db.Close(false)
	}
}

// ---- delayed cache clear ----

// AddDelayedClear queues the caches of database id for release. Volatile
// entries go first.
func (s *Snapshot) AddDelayedClear(id primitives.ObjectID, volatile bool) {
	s.mgr.delayed.insert(s.id, id, volatile)
}

func (s *Snapshot) EraseDelayedClear(id primitives.ObjectID) {
	s.mgr.delayed.erase(s.id, id)
}

func (s *Snapshot) clearDatabaseCache(id primitives.ObjectID) {
	l := lock.NewAuto(&s.rw)
	db := s.databases[id]
	l.Unlock()
	if db != nil {
		db.AbandonCache()
	}
}

// ClearDatabaseCache releases queued database caches, oldest volatile
// first, until the cache is back under its limit.
func (m *Manager) ClearDatabaseCache() {
	for {
		e, ok := m.delayed.pop()
		if !ok {
			return
		}
		s := m.Snapshot(e.snapshot)
		if s == nil {
			continue
		}
		s.clearDatabaseCache(e.database)
		if !m.CheckCacheSize() {
			return
		}
	}
}

// delayedEntry names one database of one snapshot.
type delayedEntry struct {
	snapshot primitives.SnapshotID
	database primitives.ObjectID
}

// delayedClearList is the queue of databases whose caches may be released.
type delayedClearList struct {
	mu sync.Mutex
	l  list.List
}

func (d *delayedClearList) insert(snapshot primitives.SnapshotID, database primitives.ObjectID, head bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := delayedEntry{snapshot: snapshot, database: database}
	if head {
		d.l.PushFront(e)
	} else {
		d.l.PushBack(e)
	}
}

func (d *delayedClearList) erase(snapshot primitives.SnapshotID, database primitives.ObjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for el := d.l.Front(); el != nil; el = el.Next() {
		if el.Value.(delayedEntry) == (delayedEntry{snapshot: snapshot, database: database}) {
			d.l.Remove(el)
			return
		}
	}
}

func (d *delayedClearList) pop() (delayedEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el := d.l.Front()
	if el == nil {
		return delayedEntry{}, false
	}
	return d.l.Remove(el).(delayedEntry), true
}

func (d *delayedClearList) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.l.Len()
}

// sessionTable maps a session to the database it holds open. A reserved
// session maps to InvalidObjectID until its first fetch.
type sessionTable struct {
	mu sync.Mutex
	m  map[primitives.SessionID]primitives.ObjectID
}

func (t *sessionTable) reserve(session primitives.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[primitives.SessionID]primitives.ObjectID)
	}
	t.m[session] = primitives.InvalidObjectID
}

func (t *sessionTable) erase(session primitives.SessionID) {
	if !session.IsLegal() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, session)
}

// setDatabase binds a reserved session to id and reports whether this
// was the first binding.
func (t *sessionTable) setDatabase(session primitives.SessionID, id primitives.ObjectID) bool {
	if !session.IsLegal() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.m[session]
	if !ok || cur != primitives.InvalidObjectID {
		return false
	}
	t.m[session] = id
	return true
}

func (t *sessionTable) database(session primitives.SessionID) primitives.ObjectID {
	if !session.IsLegal() {
		return primitives.InvalidObjectID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.m[session]; ok {
		return id
	}
	return primitives.InvalidObjectID
}
