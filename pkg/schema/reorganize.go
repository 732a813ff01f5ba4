package schema

import (
	"github.com/cockroachdb/errors"

	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/fileops"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
)

// Fault points of the statement executors.
const (
	FaultCreateAreaReserved = "ReorganizeArea.Create.Reserved"
	FaultAlterAreaMoved     = "ReorganizeArea.Alter.Moved"
	FaultAlterAreaStored    = "ReorganizeArea.Alter.Stored"
)

// alterPhase is how far an ALTER AREA got before an error.
type alterPhase int

const (
	alterNone alterPhase = iota
	alterPathReserved
	alterMoved
	alterStored
)

// CreateArea executes CREATE AREA in db. A nil area with a nil error
// means the statement was canceled as a duplicate.
func (m *Manager) CreateArea(txn *transaction.TransactionContext, db *Database, stmt AreaDefinition) (*Area, error) {
	rec := logdata.New(logdata.CreateArea, db.Name())
	area, err := CreateArea(db, stmt, rec, txn)
	if err != nil || area == nil {
		return nil, err
	}

	cancel := func() {
		area.drop(false)
		area.withdrawReservations()
	}

	used, err := area.CheckPath(txn, nil, false, false)
	if err != nil {
		cancel()
		return nil, err
	}
	if used {
		cancel()
		area.logger().Info("area path is already used", "paths", area.Path())
		return nil, dberror.InvalidPath(area.Name())
	}
	if err := m.fault(FaultCreateAreaReserved); err != nil {
		cancel()
		return nil, err
	}

	if err := m.Persist(txn, rec, area); err != nil {
		cancel()
		return nil, err
	}
	for _, p := range area.Path() {
		if err := fileops.Mkdir(primitives.Filepath(p)); err != nil {
			return area, err
		}
	}
	area.logger().Info("area created", "paths", area.Path())
	return area, nil
}

// AlterArea executes ALTER AREA in db. The files of every content are
// moved before the new path is stored; a failure puts them back.
func (m *Manager) AlterArea(txn *transaction.TransactionContext, db *Database, stmt AlterAreaStatement) (err error) {
	area, err := db.AreaByName(txn, stmt.AreaName())
	if err != nil {
		return err
	}
	if area == nil {
		return dberror.NotFound("Area", stmt.AreaName())
	}

	rec := logdata.New(logdata.AlterArea, db.Name())
	prev, post, changed, err := AlterArea(txn, area, stmt, rec)
	if err != nil || !changed {
		return err
	}

	used, err := area.CheckPath(txn, post, false, false)
	if err != nil {
		area.withdrawReservations()
		return err
	}
	if used {
		area.withdrawReservations()
		area.logger().Info("area path is already used", "paths", post)
		return dberror.InvalidPath(area.Name())
	}

	phase := alterPathReserved
	defer func() {
		if err == nil {
			return
		}
		switch phase {
		case alterStored:
			area.reorganizeRecovery(func() error {
				if rerr := area.Move(txn, post, prev, true, false, false); rerr != nil {
					return rerr
				}
				area.touch()
				return m.Persist(txn, nil, area)
			})
		case alterMoved:
			area.reorganizeRecovery(func() error {
				if rerr := area.Move(txn, post, prev, true, false, false); rerr != nil {
					return rerr
				}
				area.untouch()
				return nil
			})
			fallthrough
		case alterPathReserved:
			area.withdrawReservations()
		}
	}()

	if err = m.writeLog(txn, rec); err != nil {
		return err
	}
	if err = area.Move(txn, prev, post, false, false, false); err != nil {
		return err
	}
	phase = alterMoved
	area.touch()
	if err = m.fault(FaultAlterAreaMoved); err != nil {
		return err
	}

	if err = m.Persist(txn, nil, area); err != nil {
		return err
	}
	phase = alterStored
	if err = m.fault(FaultAlterAreaStored); err != nil {
		return err
	}

	area.logger().Info("area altered", "from", prev, "to", post)
	return nil
}

// DropArea executes DROP AREA in db. An area that still holds objects is
// refused.
func (m *Manager) DropArea(txn *transaction.TransactionContext, db *Database, name string) error {
	area, err := db.AreaByName(txn, name)
	if err != nil {
		return err
	}
	if area == nil {
		return dberror.NotFound("Area", name)
	}
	rec := logdata.New(logdata.DropArea, db.Name())
	if err := DropArea(area, rec, txn); err != nil {
		return err
	}
	if err := m.Persist(txn, rec, area); err != nil {
		return errors.Wrapf(err, "drop area %s", name)
	}
	area.logger().Info("area dropped")
	return nil
}

// AssignArea records that the files of an object are stored in area and
// creates its directory under every area path.
func (m *Manager) AssignArea(txn *transaction.TransactionContext, area *Area, objectID primitives.ObjectID,
	objectCategory Category, areaCategory AreaCategory) (*AreaContent, error) {
	c, err := NewAreaContent(txn, area, objectID, objectCategory, areaCategory)
	if err != nil {
		return nil, err
	}
	for _, p := range area.Path() {
		if err := fileops.Mkdir(primitives.Filepath(p).Join(ObjectDirName(c))); err != nil {
			return nil, err
		}
	}
	if err := m.Persist(txn, nil, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AlterPrivilege executes GRANT or REVOKE in db. A nil privilege with a
// nil error means nothing changed.
func (m *Manager) AlterPrivilege(txn *transaction.TransactionContext, db *Database, stmt GrantStatement) (*Privilege, error) {
	rec := logdata.New(logdata.AlterPrivilege, db.Name())
	p, _, post, err := AlterPrivilege(db, stmt, rec, txn)
	if err != nil || p == nil {
		return nil, err
	}
	if err := m.Persist(txn, rec, p); err != nil {
		return nil, err
	}
	logging.WithObject(CategoryPrivilege.String(), uint32(p.ID()), "").
		Info("privilege changed", "user", p.UserID(), "record", rec.SubCategory().String(), "value", post)
	return p, nil
}
