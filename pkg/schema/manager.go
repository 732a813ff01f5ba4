// Package schema is the catalog of databases, areas and privileges. A
// Manager owns the catalog store, the logical log and the recovery state;
// every schema object reaches them through its database.
package schema

import (
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"schemacore/pkg/catalog/systable"
	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/fileops"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/log/wal"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/recovery"
)

const (
	storeDirName   = "catalog"
	logicalLogName = "schema.log"
)

// FaultInjector is consulted at named points of multi-phase operations. A
// non-nil error is raised at that point.
type FaultInjector func(point string) error

// Manager is the process-wide catalog context.
type Manager struct {
	cfg      Config
	store    *systable.Store
	log      *wal.LogFile
	recovery *recovery.Utility
	txns     *transaction.TransactionRegistry
	metrics  *Metrics
	mover    ContentMover

	noVersion   *Snapshot
	snapshots   *xsync.MapOf[primitives.SnapshotID, *Snapshot]
	snapshotSeq atomic.Uint64
	sessions    sessionTable
	delayed     delayedClearList

	names   *xsync.MapOf[string, struct{}]
	pathMu  sync.Mutex
	paths   []pathReservation
	unavail *xsync.MapOf[primitives.ObjectID, bool]

	cacheSize  atomic.Int64
	faults     atomic.Pointer[FaultInjector]
	inRecovery atomic.Bool

	dbSeqMu sync.Mutex
	dbSeq   primitives.ObjectID

	sequences *xsync.MapOf[primitives.ObjectID, *idSequence]
}

// idSequence hands out the object IDs of one database.
type idSequence struct {
	mu   sync.Mutex
	last primitives.ObjectID
}

func (s *idSequence) next() primitives.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

func (s *idSequence) adopt(id primitives.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.IsValid() && id > s.last {
		s.last = id
	}
}

func (s *idSequence) current() primitives.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// sequence returns the ID sequence of database, creating it at seed. A
// seed above the current value moves it forward.
func (m *Manager) sequence(database, seed primitives.ObjectID) *idSequence {
	seq, _ := m.sequences.LoadOrCompute(database, func() *idSequence {
		return &idSequence{}
	})
	seq.adopt(seed)
	return seq
}

// pathReservation is a directory claimed by an area statement in flight.
type pathReservation struct {
	owner *Area
	path  primitives.Filepath
}

// NewManager opens the catalog in cfg.Dir.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, dberror.BadArgument("catalog directory is not set")
	}
	if cfg.ObjectCacheSize <= 0 {
		cfg.ObjectCacheSize = math.MaxInt64
	}
	if cfg.Mover == nil {
		cfg.Mover = DirMover{}
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	if err := fileops.Mkdir(primitives.Filepath(cfg.Dir)); err != nil {
		return nil, err
	}

	store, err := systable.Open(filepath.Join(cfg.Dir, storeDirName), cfg.StoreCacheSize)
	if err != nil {
		return nil, err
	}
	logFile, err := wal.Open(filepath.Join(cfg.Dir, logicalLogName), cfg.LogBufferSize)
	if err != nil {
		return nil, errors.CombineErrors(err, store.Close())
	}

	m := &Manager{
		cfg:       cfg,
		store:     store,
		log:       logFile,
		recovery:  recovery.New(),
		txns:      transaction.NewTransactionRegistry(),
		metrics:   newMetrics(cfg.Registerer),
		mover:     cfg.Mover,
		snapshots: xsync.NewMapOf[primitives.SnapshotID, *Snapshot](),
		names:     xsync.NewMapOf[string, struct{}](),
		unavail:   xsync.NewMapOf[primitives.ObjectID, bool](),
		sequences: xsync.NewMapOf[primitives.ObjectID, *idSequence](),
	}
	m.noVersion = m.NewSnapshot(true)

	dbs, err := m.noVersion.Databases(nil)
	if err != nil {
		return nil, errors.CombineErrors(err, m.Close())
	}
	for _, db := range dbs {
		if db.ID() > m.dbSeq {
			m.dbSeq = db.ID()
		}
	}

	logging.WithComponent("schema").Info("catalog opened", "dir", cfg.Dir, "databases", len(dbs))
	return m, nil
}

func (m *Manager) Config() Config              { return m.cfg }
func (m *Manager) Store() *systable.Store      { return m.store }
func (m *Manager) Log() *wal.LogFile           { return m.log }
func (m *Manager) Recovery() *recovery.Utility { return m.recovery }
func (m *Manager) Metrics() *Metrics           { return m.metrics }

// Transactions holds the transactions the catalog itself runs, such as
// a recovery pass.
func (m *Manager) Transactions() *transaction.TransactionRegistry { return m.txns }

// Close releases the snapshots, flushes the log and closes the store.
func (m *Manager) Close() error {
	m.snapshots.Range(func(_ primitives.SnapshotID, s *Snapshot) bool {
		s.Destroy()
		return true
	})

	var g errgroup.Group
	g.Go(func() error {
		if err := m.log.Force(m.log.CurrentLSN()); err != nil {
			return errors.CombineErrors(err, m.log.Close())
		}
		return m.log.Close()
	})
	g.Go(m.store.Close)
	return g.Wait()
}

// ---- databases ----

func (m *Manager) nextDatabaseID() primitives.ObjectID {
	m.dbSeqMu.Lock()
	defer m.dbSeqMu.Unlock()
	m.dbSeq++
	return m.dbSeq
}

// CreateDatabase creates a database with paths and grants every
// permission on it to owner.
func (m *Manager) CreateDatabase(txn *transaction.TransactionContext, name string, paths []string, owner int32) (*Database, error) {
	if txn.IsReadOnly() {
		return nil, dberror.ReadOnlyTransaction("CREATE DATABASE")
	}
	id, err := m.noVersion.DatabaseID(name, txn)
	if err != nil {
		return nil, err
	}
	if id.IsValid() {
		return nil, dberror.AlreadyDefined("Database", name, "")
	}
	if !m.ReserveName(primitives.SystemTableID, CategoryDatabase, name) {
		return nil, dberror.AlreadyDefined("Database", name, "")
	}
	defer m.WithdrawName(primitives.SystemTableID, CategoryDatabase, name)

	full := make([]string, len(paths))
	for i, p := range paths {
		full[i] = m.fullPathName(p)
		if err := fileops.Mkdir(primitives.Filepath(full[i])); err != nil {
			return nil, err
		}
	}

	db := newDatabase(m, name, full)
	db.id = m.nextDatabaseID()
	db.databaseID = db.id
	db.snapshot = m.noVersion
	db.setStatus(StatusCreated)

	rec := logdata.New(logdata.CreateDatabase, name)
	db.makeLogData(rec)
	txn.RecordCreate()
	if err := m.Persist(txn, rec, db); err != nil {
		return nil, err
	}

	prec := logdata.New(logdata.CreatePrivilege, name)
	p := CreateDefaultPrivilege(db, owner, prec, txn)
	if err := m.Persist(txn, prec, p); err != nil {
		return nil, err
	}

	logging.WithDatabase(uint32(db.ID()), name).Info("database created", "paths", full, "owner", owner)
	return db, nil
}

// DropDatabase removes db, its directories and every row it owns.
func (m *Manager) DropDatabase(txn *transaction.TransactionContext, db *Database) error {
	if txn.IsReadOnly() {
		return dberror.ReadOnlyTransaction("DROP DATABASE")
	}
	db.drop(false)
	rec := logdata.New(logdata.DropDatabase, db.Name())
	db.makeLogData(rec)
	txn.RecordDrop()
	if err := m.Persist(txn, rec, db); err != nil {
		return err
	}
	if err := m.store.DropDatabase(db.ID()); err != nil {
		return err
	}
	m.unavail.Delete(db.ID())
	m.sequences.Delete(db.ID())
	return nil
}

// Database returns the live database called name, or nil.
func (m *Manager) Database(txn *transaction.TransactionContext, name string) (*Database, error) {
	id, err := m.noVersion.DatabaseID(name, txn)
	if err != nil || !id.IsValid() {
		return nil, err
	}
	return m.noVersion.Database(id, txn)
}

// ---- persistence ----

// Persistable is a schema object that can be written to the catalog.
type Persistable interface {
	object() *Object
	doBeforePersist(status Status) error
	stage(b *systable.Batch, status Status)
	doAfterPersist(status Status)
}

// writeLog appends rec to the logical log and forces it.
func (m *Manager) writeLog(txn *transaction.TransactionContext, rec *logdata.LogData) error {
	if rec == nil || m.inRecovery.Load() {
		return nil
	}
	lsn, err := m.log.Append(rec)
	if err != nil {
		return err
	}
	if err := m.log.Force(lsn); err != nil {
		return err
	}
	if txn != nil {
		txn.UpdateLSN(lsn)
		logging.WithTx(uint64(txn.ID.ID())).Debug("logical log record written", // #nosec G115
			"record", rec.SubCategory().String(), "database", rec.DatabaseName, "lsn", lsn)
	}
	return nil
}

// Persist logs rec, then writes every object to the catalog in one batch
// and updates the caches. Objects whose creation was canceled are not
// written but still release their reservations.
func (m *Manager) Persist(txn *transaction.TransactionContext, rec *logdata.LogData, objs ...Persistable) error {
	if err := m.writeLog(txn, rec); err != nil {
		return err
	}

	statuses := make([]Status, len(objs))
	for i, o := range objs {
		statuses[i] = o.object().Status()
		if err := o.doBeforePersist(statuses[i]); err != nil {
			return err
		}
	}

	b := m.store.NewBatch()
	owners := make(map[primitives.ObjectID]*Database)
	for i, o := range objs {
		switch statuses[i] {
		case StatusCreated, StatusMounted, StatusChanged, StatusDeleteCanceled,
			StatusDeleted, StatusDeletedInRecovery:
			o.stage(b, statuses[i])
			if db := ownerDatabase(o); db != nil {
				owners[db.ID()] = db
			}
		}
	}
	// the sequence of the owning database moves with its objects
	for _, db := range owners {
		switch db.Status() {
		case StatusDeleted, StatusDeletedInRecovery, StatusReallyDeleted, StatusCreateCanceled:
		default:
			databaseTable.Put(b, primitives.SystemTableID, db)
		}
	}
	if b.Len() > 0 {
		if err := m.store.Apply(b); err != nil {
			return err
		}
	}

	for i, o := range objs {
		o.doAfterPersist(statuses[i])
		switch statuses[i] {
		case StatusCreated, StatusMounted, StatusChanged, StatusDeleteCanceled:
			o.object().setStatus(StatusPersistent)
		}
	}
	return nil
}

func ownerDatabase(o Persistable) *Database {
	switch v := o.(type) {
	case *Area:
		return v.db
	case *AreaContent:
		return v.area.db
	case *Privilege:
		return v.db
	}
	return nil
}

// ---- reservations ----

func nameKey(database primitives.ObjectID, category Category, name string) string {
	return fmt.Sprintf("%d/%s/%s", uint32(database), category, name)
}

// ReserveName claims name for a create in flight. It fails when another
// statement holds it.
func (m *Manager) ReserveName(database primitives.ObjectID, category Category, name string) bool {
	_, loaded := m.names.LoadOrStore(nameKey(database, category, name), struct{}{})
	return !loaded
}

func (m *Manager) WithdrawName(database primitives.ObjectID, category Category, name string) {
	m.names.Delete(nameKey(database, category, name))
}

// ReservePath claims paths for owner. It fails when another area holds a
// path that is the same as, inside or above one of them.
func (m *Manager) ReservePath(owner *Area, paths []primitives.Filepath) bool {
	m.pathMu.Lock()
	defer m.pathMu.Unlock()
	for _, r := range m.paths {
		if r.owner == owner {
			continue
		}
		for _, p := range paths {
			if r.path.Compare(p) != primitives.PathUnrelated {
				return false
			}
		}
	}
	for _, p := range paths {
		m.paths = append(m.paths, pathReservation{owner: owner, path: p})
	}
	return true
}

func (m *Manager) WithdrawPath(owner *Area, paths []primitives.Filepath) {
	m.pathMu.Lock()
	defer m.pathMu.Unlock()
	kept := m.paths[:0]
	for _, r := range m.paths {
		drop := false
		if r.owner == owner {
			for _, p := range paths {
				if r.path.Compare(p) == primitives.PathIdentical {
					drop = true
					break
				}
			}
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	m.paths = kept
}

func (m *Manager) WithdrawAllPaths(owner *Area) {
	m.pathMu.Lock()
	defer m.pathMu.Unlock()
	kept := m.paths[:0]
	for _, r := range m.paths {
		if r.owner != owner {
			kept = append(kept, r)
		}
	}
	m.paths = kept
}

// isUsedInOthers reports whether path overlaps a directory of any
// database or of any area other than omit.
func (m *Manager) isUsedInOthers(txn *transaction.TransactionContext, path primitives.Filepath, omit *Area) (bool, error) {
	dbs, err := m.noVersion.Databases(txn)
	if err != nil {
		return false, err
	}
	for _, db := range dbs {
		used, err := db.CheckRelatedPath(path, omit)
		if err != nil || used {
			return used, err
		}
	}
	return false, nil
}

// ---- availability ----

// SetAvailability marks a database usable or quarantined.
func (m *Manager) SetAvailability(database primitives.ObjectID, available bool) {
	if available {
		m.unavail.Delete(database)
		return
	}
	if _, loaded := m.unavail.LoadOrStore(database, true); !loaded {
		m.metrics.Quarantines.Inc()
		logging.WithComponent("schema").Error("database quarantined", "database_id", uint32(database))
	}
}

func (m *Manager) IsAvailable(database primitives.ObjectID) bool {
	_, quarantined := m.unavail.Load(database)
	return !quarantined
}

func (m *Manager) checkAvailability(db *Database) error {
	if !m.IsAvailable(db.ID()) {
		return dberror.DatabaseUnavailable(db.Name())
	}
	return nil
}

// ---- object cache ----

func (m *Manager) IncrementCacheSize(n int64) {
	m.metrics.CacheSize.Set(float64(m.cacheSize.Add(n)))
}

func (m *Manager) DecrementCacheSize(n int64) {
	m.metrics.CacheSize.Set(float64(m.cacheSize.Add(-n)))
}

func (m *Manager) CacheSize() int64 {
	return m.cacheSize.Load()
}

// CheckCacheSize reports whether more objects are cached than configured.
func (m *Manager) CheckCacheSize() bool {
	return m.cacheSize.Load() > m.cfg.ObjectCacheSize
}

// ClearCache releases delayed database caches until the limit holds.
func (m *Manager) ClearCache() {
	m.ClearDatabaseCache()
}

// ---- faults ----

// SetFaultInjector installs f; nil removes it.
func (m *Manager) SetFaultInjector(f FaultInjector) {
	if f == nil {
		m.faults.Store(nil)
		return
	}
	m.faults.Store(&f)
}

func (m *Manager) fault(point string) error {
	f := m.faults.Load()
	if f == nil {
		return nil
	}
	return (*f)(point)
}

// FailAt returns an injector that raises a fake error at point.
func FailAt(point string) FaultInjector {
	return func(p string) error {
		if p == point {
			return dberror.FakeError(point)
		}
		return nil
	}
}

func (m *Manager) canceledWhenDuplicated() bool {
	return m.cfg.CanceledWhenDuplicated || m.inRecovery.Load()
}
