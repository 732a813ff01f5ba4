package schema

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/fileops"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/log/wal"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/recovery"
)

// Positions of the items of database log records.
const (
	databaseLogName = 0
	databaseLogID   = 1
	databaseLogPath = 2
)

// Record is one logical log record handed to recovery. Committed records
// are undone and then redone; the others are only undone.
type Record struct {
	Data      *logdata.LogData
	Committed bool
}

// Undo reverts the effect of log on disk and records in the recovery
// utility what the redo pass has to know about it. redone tells whether
// log will be redone afterwards. A rollforward only collects used IDs.
func (m *Manager) Undo(_ *transaction.TransactionContext, log *logdata.LogData, redone, rollforward bool) error {
	m.metrics.RecoveryRecords.WithLabelValues("undo", log.SubCategory().String()).Inc()
	u := m.recovery
	dbName := log.DatabaseName

	switch log.SubCategory() {
	case logdata.CreateDatabase:
		if rollforward || redone {
			return nil
		}
		paths, err := log.Strings(databaseLogPath)
		if err != nil {
			return err
		}
		return rmAllRemovable(u, paths)

	case logdata.CreateArea:
		id, err := AreaObjectID(log)
		if err != nil {
			return err
		}
		u.SetUsedID(dbName, id)
		if rollforward {
			return nil
		}
		if u.IsEntered(dbName, id, recovery.UndoDropArea) {
			if redone {
				u.Enter(dbName, id, recovery.UndoCreateArea)
			}
			return nil
		}
		paths, ok := u.UndoAreaPath(dbName, id)
		if !ok {
			if paths, err = AreaPath(log); err != nil {
				return err
			}
			if redone {
				u.SetUndoAreaPath(dbName, id, paths)
			}
		} else if u.IsEntered(dbName, id, recovery.UndoAlterArea) {
			u.EraseUnremovableAreaID(dbName, id)
		}
		return rmAllArea(u, dbName, paths)

	case logdata.DropArea:
		id, err := AreaObjectID(log)
		if err != nil {
			return err
		}
		u.SetUsedID(dbName, id)
		if rollforward {
			return nil
		}
		paths, err := AreaPath(log)
		if err != nil {
			return err
		}
		if redone {
			u.Enter(dbName, id, recovery.UndoDropArea)
			return nil
		}
		return rmAllArea(u, dbName, paths)

	case logdata.AlterArea:
		id, err := AreaObjectID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoDropArea) {
			return nil
		}
		u.SetUsedID(dbName, id)
		if rollforward {
			return nil
		}
		prev, post, err := AreaMovePaths(log)
		if err != nil {
			return err
		}
		if redone {
			replaced := false
			if u.IsEntered(dbName, id, recovery.UndoAlterAreaInMount) {
				u.Remove(dbName, id, recovery.UndoAlterAreaInMount)
				u.EraseUndoAreaPath(dbName, id)
				replaced = true
			}
			u.Enter(dbName, id, recovery.UndoAlterArea)
			if u.SetUndoAreaPath(dbName, id, post) && !replaced {
				u.SetUnremovableAreaID(dbName, id)
			}
			return nil
		}
		var errs error
		for i := range prev {
			if i >= len(post) {
				break
			}
			errs = errors.CombineErrors(errs,
				fileops.Move(primitives.Filepath(post[i]), primitives.Filepath(prev[i])))
		}
		return errs

	case logdata.CreatePrivilege:
		id, err := PrivilegeID(log)
		if err != nil {
			return err
		}
		u.SetUsedID(dbName, id)
		if rollforward {
			return nil
		}
		if u.IsEntered(dbName, id, recovery.UndoDropPrivilege) {
			if redone {
				u.Enter(dbName, id, recovery.UndoCreatePrivilege)
			}
			return nil
		}
		if _, ok := u.UndoValue(dbName, id); !ok {
			value, err := PrivilegeValue(log)
			if err != nil {
				return err
			}
			if redone {
				u.SetUndoValue(dbName, id, value)
			}
		}
		return nil

	case logdata.DropPrivilege:
		id, err := PrivilegeID(log)
		if err != nil {
			return err
		}
		u.SetUsedID(dbName, id)
		if !rollforward && redone {
			u.Enter(dbName, id, recovery.UndoDropPrivilege)
		}
		return nil

	case logdata.AlterPrivilege:
		id, err := PrivilegeID(log)
		if err != nil {
			return err
		}
		u.SetUsedID(dbName, id)
		if rollforward || u.IsEntered(dbName, id, recovery.UndoDropPrivilege) {
			return nil
		}
		if redone {
			post, err := PrivilegePostValue(log)
			if err != nil {
				return err
			}
			u.SetUndoValue(dbName, id, post)
		}
		return nil
	}
	return nil
}

func rmAllArea(u *recovery.Utility, dbName string, paths []string) error {
	var errs error
	for _, p := range paths {
		fp := primitives.Filepath(p)
		if u.IsRemovableAreaPath(dbName, fp) {
			errs = errors.CombineErrors(errs, fileops.RmAll(fp))
		}
	}
	return errs
}

func rmAllRemovable(u *recovery.Utility, paths []string) error {
	var errs error
	for _, p := range paths {
		errs = errors.CombineErrors(errs, u.RmAllRemovable(primitives.Filepath(p), true))
	}
	return errs
}

// Redo applies log again on top of the catalog, taking into account what
// the undo pass recorded about later operations on the same objects.
func (m *Manager) Redo(txn *transaction.TransactionContext, log *logdata.LogData) error {
	m.metrics.RecoveryRecords.WithLabelValues("redo", log.SubCategory().String()).Inc()
	u := m.recovery
	dbName := log.DatabaseName

	switch log.SubCategory() {
	case logdata.CreateDatabase:
		return m.redoCreateDatabase(txn, log)
	case logdata.DropDatabase:
		db, err := m.Database(txn, dbName)
		if err != nil || db == nil {
			return err
		}
		db.drop(false)
		if err := m.Persist(txn, nil, db); err != nil {
			return err
		}
		return m.store.DropDatabase(db.ID())
	}

	db, err := m.Database(txn, dbName)
	if err != nil {
		return err
	}
	if db == nil {
		return dberror.NotFound("Database", dbName)
	}

	switch log.SubCategory() {
	case logdata.CreateArea:
		id, err := AreaObjectID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoDropArea) {
			db.adoptID(id)
			return nil
		}
		area, err := CreateAreaFromLog(txn, db, log)
		if err != nil || area == nil {
			return err
		}
		return m.Persist(txn, nil, area)

	case logdata.DropArea:
		id, err := AreaObjectID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoCreateArea) {
			u.Remove(dbName, id, recovery.UndoCreateArea)
			return nil
		}
		area, err := db.Area(txn, id)
		if err != nil || area == nil {
			return err
		}
		if err := area.Drop(txn, true, false); err != nil {
			return err
		}
		return m.Persist(txn, nil, area)

	case logdata.AlterArea:
		id, err := AreaObjectID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoDropArea) {
			return nil
		}
		area, err := db.Area(txn, id)
		if err != nil {
			return err
		}
		if area == nil {
			return dberror.NotFound("Area", id.String())
		}
		prev, post, err := AreaMovePaths(log)
		if err != nil {
			return err
		}
		u.Remove(dbName, id, recovery.UndoAlterArea)
		if final, ok := u.UndoAreaPath(dbName, id); ok {
			if err := area.MoveForMount(txn, prev, final, false, true); err != nil {
				return err
			}
		} else {
			if err := area.Move(txn, prev, post, false, true, false); err != nil {
				return err
			}
			area.touch()
		}
		return m.Persist(txn, nil, area)

	case logdata.CreatePrivilege:
		id, err := PrivilegeID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoDropPrivilege) {
			db.adoptID(id)
			return nil
		}
		p, err := CreatePrivilegeFromLog(txn, db, log)
		if err != nil {
			return err
		}
		return m.Persist(txn, nil, p)

	case logdata.DropPrivilege:
		id, err := PrivilegeID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoCreatePrivilege) {
			u.Remove(dbName, id, recovery.UndoCreatePrivilege)
			return nil
		}
		p, err := DropPrivilegeFromLog(txn, db, log)
		if err != nil {
			return err
		}
		return m.Persist(txn, nil, p)

	case logdata.AlterPrivilege:
		id, err := PrivilegeID(log)
		if err != nil {
			return err
		}
		if u.IsEntered(dbName, id, recovery.UndoDropPrivilege) {
			return nil
		}
		p, err := AlterPrivilegeFromLog(txn, db, log)
		if err != nil || p == nil {
			return err
		}
		return m.Persist(txn, nil, p)
	}
	return dberror.LogItemCorrupted("unexpected log record %s", log.SubCategory())
}

// redoCreateDatabase brings back a database whose creation was logged
// but is missing from the catalog.
func (m *Manager) redoCreateDatabase(txn *transaction.TransactionContext, log *logdata.LogData) error {
	name, err := log.String(databaseLogName)
	if err != nil {
		return err
	}
	id, err := log.ID(databaseLogID)
	if err != nil {
		return err
	}
	paths, err := log.Strings(databaseLogPath)
	if err != nil {
		return err
	}
	existing, err := m.noVersion.DatabaseID(name, txn)
	if err != nil || existing.IsValid() {
		return err
	}
	for _, p := range paths {
		if err := fileops.Mkdir(primitives.Filepath(p)); err != nil {
			return err
		}
	}

	db := newDatabase(m, name, paths)
	db.id = id
	db.databaseID = id
	db.snapshot = m.noVersion
	db.setStatus(StatusCreated)
	m.dbSeqMu.Lock()
	if id > m.dbSeq {
		m.dbSeq = id
	}
	m.dbSeqMu.Unlock()
	return m.Persist(txn, nil, db)
}

// persistSequence stores the object ID sequence of db.
func (m *Manager) persistSequence(db *Database) error {
	b := m.store.NewBatch()
	databaseTable.Put(b, primitives.SystemTableID, db)
	return m.store.Apply(b)
}

// Recovery replays the logical log after a restart.
type Recovery struct {
	mgr    *Manager
	passID string
	logger *slog.Logger
}

// NewRecovery starts a recovery pass.
func (m *Manager) NewRecovery() *Recovery {
	id := uuid.NewString()
	return &Recovery{mgr: m, passID: id, logger: logging.WithRecovery(id)}
}

func (r *Recovery) ID() string { return r.passID }

// Run undoes records from the last to the first, then redoes the
// committed ones in log order. Databases are redone concurrently; the
// records of one database keep their order. Each database sequence is
// moved past every ID seen in the log.
func (r *Recovery) Run(ctx context.Context, records []Record) error {
	m := r.mgr
	m.inRecovery.Store(true)
	defer m.inRecovery.Store(false)
	defer m.recovery.Terminate()

	txn := m.txns.Begin(transaction.ReadWrite, primitives.IllegalSessionID)
	if err := r.run(ctx, txn, records); err != nil {
		m.txns.Abort(txn)
		return err
	}
	m.txns.Commit(txn)
	return nil
}

func (r *Recovery) run(ctx context.Context, txn *transaction.TransactionContext, records []Record) error {
	m := r.mgr
	r.logger.Info("recovery started", "records", len(records))

	for i := len(records) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := records[i]
		if err := m.Undo(txn, rec.Data, rec.Committed, false); err != nil {
			r.logger.Error("undo failed", "record", rec.Data.SubCategory().String(),
				"database", rec.Data.DatabaseName, "error", err)
			return errors.Wrapf(err, "undo %s", rec.Data.SubCategory())
		}
	}

	var order []string
	byDatabase := make(map[string][]*logdata.LogData)
	for _, rec := range records {
		if !rec.Committed {
			continue
		}
		name := rec.Data.DatabaseName
		if _, ok := byDatabase[name]; !ok {
			order = append(order, name)
		}
		byDatabase[name] = append(byDatabase[name], rec.Data)
	}

	g, gctx := errgroup.WithContext(ctx)
	if n := m.cfg.RecoveryParallelism; n > 0 {
		g.SetLimit(n)
	}
	for _, name := range order {
		name := name
		logs := byDatabase[name]
		g.Go(func() error {
			for _, log := range logs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := m.Redo(txn, log); err != nil {
					r.logger.Error("redo failed", "record", log.SubCategory().String(),
						"database", name, "error", err)
					return errors.Wrapf(err, "redo %s in %s", log.SubCategory(), name)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dbs, err := m.noVersion.Databases(txn)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		used := m.recovery.UsedIDMax(db.Name())
		if used <= db.Sequence() {
			continue
		}
		db.adoptID(used)
		if err := m.persistSequence(db); err != nil {
			return err
		}
	}

	r.logger.Info("recovery finished", "databases", len(order))
	return nil
}

// ReadLog reads every record of the logical log of m as committed.
func (m *Manager) ReadLog() ([]Record, error) {
	if err := m.log.Force(m.log.CurrentLSN()); err != nil {
		return nil, err
	}
	return ReadLogFile(m.log.Path())
}

// ReadLogFile reads every record of the logical log at path as committed.
func ReadLogFile(path string) ([]Record, error) {
	r, err := wal.NewLogReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	entries, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = Record{Data: e.Data, Committed: true}
	}
	return out, nil
}
