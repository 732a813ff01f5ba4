package schema

import (
	"slices"

	"schemacore/pkg/catalog/systable"
	"schemacore/pkg/concurrency/lock"
	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/log/logdata"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/meta"
)

// Privilege categories. A privilege value holds one bitmask per category;
// a vector shorter than PrivilegeCategoryCount means None for the rest.
const (
	PrivilegeSystem = iota
	PrivilegeDatabase
	PrivilegeData
	PrivilegeReference

	PrivilegeCategoryCount
)

const (
	PrivilegeNone uint32 = 0
	PrivilegeAll  uint32 = 0xFFFFFFFF
)

// ObjectType scopes a privilege to a kind of object. Only database-wide
// privileges are granted today.
type ObjectType int32

const (
	ObjectTypeDatabase ObjectType = iota
	ObjectTypeTable
	ObjectTypeColumn
	ObjectTypeFunction

	ObjectTypeUnknown
)

// Positions of the items of privilege log records.
const (
	privilegeLogID            = 0
	privilegeLogUserID        = 1
	privilegeLogObjectType    = 2
	privilegeLogObjectIDs     = 3
	privilegeLogValue         = 4
	privilegeLogPostPrivilege = 5
)

// Privilege is the permission vector granted to one user in a database.
type Privilege struct {
	Object

	db         *Database
	userID     int32
	value      []uint32
	objectType ObjectType
	objectIDs  []primitives.ObjectID
}

var privilegeDefinitions = []meta.Definition[*Privilege]{
	meta.Define[*Privilege](meta.FileOID),
	meta.Define[*Privilege](meta.ObjectID),
	meta.DefineWith(meta.Integer,
		func(p *Privilege) meta.Field { return meta.IntegerField(p.userID) },
		func(p *Privilege, f meta.Field) { p.userID = f.Int }),
	meta.DefineWith(meta.UnsignedIntegerArray,
		func(p *Privilege) meta.Field { return meta.UnsignedArrayField(p.Value()) },
		func(p *Privilege, f meta.Field) { p.value = f.Uints }),
	meta.DefineWith(meta.Integer,
		func(p *Privilege) meta.Field { return meta.IntegerField(int32(p.objectType)) },
		func(p *Privilege, f meta.Field) { p.objectType = ObjectType(f.Int) }),
	meta.DefineWith(meta.IDArray,
		func(p *Privilege) meta.Field { return meta.IDArrayField(p.objectIDs) },
		func(p *Privilege, f meta.Field) { p.objectIDs = f.IDs }),
	meta.Define[*Privilege](meta.Timestamp),
}

func newPrivilege(db *Database, userID int32, value []uint32) *Privilege {
	p := &Privilege{db: db, userID: userID, value: slices.Clone(value), objectType: ObjectTypeDatabase}
	p.init(CategoryPrivilege, db.Scope(), db.ID(), "")
	return p
}

func (p *Privilege) UserID() int32                    { return p.userID }
func (p *Privilege) ObjectType() ObjectType           { return p.objectType }
func (p *Privilege) ObjectIDs() []primitives.ObjectID { return slices.Clone(p.objectIDs) }

// Value returns a copy of the permission vector.
func (p *Privilege) Value() []uint32 {
	l := lock.NewAuto(&p.rw)
	defer l.Unlock()
	return slices.Clone(p.value)
}

// Serialize is refused; privileges live only in catalog rows.
func (p *Privilege) Serialize() ([]byte, error) {
	return nil, dberror.NotSupported("privilege serialization")
}

// ---- value arithmetic ----

// AddValue ORs role into value per category, growing value when role is
// longer.
func AddValue(role []uint32, value []uint32) []uint32 {
	for len(value) < len(role) {
		value = append(value, PrivilegeNone)
	}
	for i, v := range role {
		value[i] |= v
	}
	return value
}

// RemoveValue clears the bits of role from value and reports whether
// every category of value is None afterwards.
func RemoveValue(role []uint32, value []uint32) bool {
	n := min(len(role), len(value))
	for i := 0; i < n; i++ {
		value[i] &^= role[i]
	}
	for _, v := range value {
		if v != PrivilegeNone {
			return false
		}
	}
	return true
}

// equalValue compares two vectors treating missing categories as None.
func equalValue(a, b []uint32) bool {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y uint32
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return false
		}
	}
	return true
}

// alter replaces the vector and marks the privilege changed. It returns
// false when the new vector grants the same permissions.
func (p *Privilege) alter(value []uint32) bool {
	l := lock.NewAuto(&p.rw, lock.Write)
	if equalValue(p.value, value) {
		l.Unlock()
		return false
	}
	p.value = slices.Clone(value)
	l.Unlock()
	p.touch()
	return true
}

// ---- statements ----

// AlterPrivilege applies GRANT or REVOKE. prev and post are the vectors
// before and after; a nil privilege with a nil error means nothing
// changed. A revoke that leaves no permission drops the privilege.
func AlterPrivilege(db *Database, stmt GrantStatement, log *logdata.LogData,
	txn *transaction.TransactionContext) (p *Privilege, prev, post []uint32, err error) {
	if txn.IsReadOnly() {
		return nil, nil, nil, dberror.ReadOnlyTransaction("GRANT/REVOKE")
	}
	grantees := stmt.Grantees()
	if len(grantees) > 1 {
		logging.WithDatabase(uint32(db.ID()), db.Name()).Info("GRANT/REVOKE for more than one users is not supported.")
		return nil, nil, nil, dberror.NotSupported("GRANT/REVOKE for more than one user")
	}
	if len(grantees) == 0 {
		return nil, nil, nil, dberror.BadArgument("GRANT/REVOKE without grantee")
	}

	role := make([]uint32, PrivilegeCategoryCount)
	for _, r := range stmt.Roles() {
		if err := db.RolePrivilege(r, role); err != nil {
			return nil, nil, nil, err
		}
	}

	m := db.mgr
	user := grantees[0]
	if user == m.cfg.SuperUser {
		logging.WithDatabase(uint32(db.ID()), db.Name()).Info("grant/revoke for superuser is not allowed", "user", user)
		return nil, nil, nil, dberror.NotSupported("GRANT/REVOKE for " + user)
	}
	userID, ok := m.cfg.Users[user]
	if !ok {
		return nil, nil, nil, dberror.NotFound("User", user)
	}

	existing, err := db.PrivilegeOf(txn, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	if existing == nil {
		if !stmt.IsGrant() {
			return nil, nil, nil, nil
		}
		p = newPrivilege(db, userID, role)
		p.create(db, primitives.InvalidObjectID)
		log.SetSubCategory(logdata.CreatePrivilege)
		p.makeLogData(log)
		txn.RecordCreate()
		return p, nil, slices.Clone(role), nil
	}

	prev = existing.Value()
	post = existing.Value()
	if stmt.IsGrant() {
		post = AddValue(role, post)
	} else if RemoveValue(role, post) {
		log.SetSubCategory(logdata.DropPrivilege)
		existing.makeLogData(log)
		existing.drop(false)
		txn.RecordDrop()
		return existing, prev, post, nil
	}

	if equalValue(prev, post) {
		return nil, prev, post, nil
	}
	log.SetSubCategory(logdata.AlterPrivilege)
	existing.makeLogData(log)
	log.AddUnsignedIntegers(post)
	existing.alter(post)
	txn.RecordAlter()
	return existing, prev, post, nil
}

// CreateDefaultPrivilege grants every permission to the owner of a new
// database.
func CreateDefaultPrivilege(db *Database, userID int32, log *logdata.LogData,
	txn *transaction.TransactionContext) *Privilege {
	all := make([]uint32, PrivilegeCategoryCount)
	for i := range all {
		all[i] = PrivilegeAll
	}
	p := newPrivilege(db, userID, all)
	p.create(db, primitives.InvalidObjectID)
	log.SetSubCategory(logdata.CreatePrivilege)
	p.makeLogData(log)
	txn.RecordCreate()
	return p
}

// CreatePrivilegeFromLog rebuilds a privilege from a CreatePrivilege
// record. A value left by a later undone ALTER takes precedence.
func CreatePrivilegeFromLog(txn *transaction.TransactionContext, db *Database, log *logdata.LogData) (*Privilege, error) {
	id, err := PrivilegeID(log)
	if err != nil {
		return nil, err
	}
	userID, err := PrivilegeUserID(log)
	if err != nil {
		return nil, err
	}
	objectType, err := PrivilegeObjectType(log)
	if err != nil {
		return nil, err
	}
	value, err := db.mgr.recovery.EffectiveValue(log, privilegeLogValue, id, db.Name())
	if err != nil {
		return nil, err
	}
	p := newPrivilege(db, userID, value)
	p.objectType = objectType
	p.create(db, id)
	return p, nil
}

// AlterPrivilegeFromLog replays an AlterPrivilege record. A nil privilege
// means the stored value already matches.
func AlterPrivilegeFromLog(txn *transaction.TransactionContext, db *Database, log *logdata.LogData) (*Privilege, error) {
	id, err := PrivilegeID(log)
	if err != nil {
		return nil, err
	}
	p, err := db.Privilege(txn, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, dberror.NotFound("Privilege", id.String())
	}
	value, err := db.mgr.recovery.EffectiveValue(log, privilegeLogPostPrivilege, id, db.Name())
	if err != nil {
		return nil, err
	}
	if !p.alter(value) {
		return nil, nil
	}
	return p, nil
}

// DropPrivilegeFromLog replays a DropPrivilege record.
func DropPrivilegeFromLog(txn *transaction.TransactionContext, db *Database, log *logdata.LogData) (*Privilege, error) {
	id, err := PrivilegeID(log)
	if err != nil {
		return nil, err
	}
	p, err := db.Privilege(txn, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, dberror.NotFound("Privilege", id.String())
	}
	p.drop(true)
	return p, nil
}

// ---- log data ----

func (p *Privilege) makeLogData(log *logdata.LogData) {
	log.AddID(p.ID())
	log.AddInteger(p.userID)
	log.AddInteger(int32(p.objectType))
	log.AddIDs(p.objectIDs)
	log.AddUnsignedIntegers(p.Value())
}

func PrivilegeID(log *logdata.LogData) (primitives.ObjectID, error) {
	return log.ID(privilegeLogID)
}

func PrivilegeUserID(log *logdata.LogData) (int32, error) {
	return log.Integer(privilegeLogUserID)
}

// PrivilegeObjectType reads the object type and rejects values outside
// the known range.
func PrivilegeObjectType(log *logdata.LogData) (ObjectType, error) {
	v, err := log.Integer(privilegeLogObjectType)
	if err != nil {
		return ObjectTypeUnknown, err
	}
	if v < 0 || ObjectType(v) > ObjectTypeUnknown {
		return ObjectTypeUnknown, dberror.LogItemCorrupted("privilege object type %d out of range", v)
	}
	return ObjectType(v), nil
}

func PrivilegeObjectIDs(log *logdata.LogData) ([]primitives.ObjectID, error) {
	return log.IDs(privilegeLogObjectIDs)
}

// PrivilegeValue reads the value of a privilege record; for AlterPrivilege
// this is the value before the change.
func PrivilegeValue(log *logdata.LogData) ([]uint32, error) {
	return log.UnsignedIntegers(privilegeLogValue)
}

// PrivilegePostValue reads the value after an AlterPrivilege.
func PrivilegePostValue(log *logdata.LogData) ([]uint32, error) {
	return log.UnsignedIntegers(privilegeLogPostPrivilege)
}

// ---- persistence ----

func (p *Privilege) object() *Object { return &p.Object }

func (p *Privilege) doBeforePersist(Status) error { return nil }

func (p *Privilege) stage(b *systable.Batch, status Status) {
	switch status {
	case StatusDeleted, StatusDeletedInRecovery:
		privilegeTable.Delete(b, p.DatabaseID(), p)
	default:
		privilegeTable.Put(b, p.DatabaseID(), p)
	}
}

func (p *Privilege) doAfterPersist(status Status) {
	switch status {
	case StatusCreated, StatusMounted, StatusDeleteCanceled:
		p.db.addPrivilege(p)
	case StatusDeleted, StatusDeletedInRecovery:
		p.setStatus(StatusReallyDeleted)
		p.db.erasePrivilege(p.ID())
	}
}

// doAfterLoad binds a privilege read from the catalog. The caller holds
// the database lock, so the database caches are not touched.
func (p *Privilege) doAfterLoad(db *Database) {
	p.db = db
	p.category = CategoryPrivilege
	p.scope = db.Scope()
	p.databaseID = db.ID()
	p.parentID = db.ID()
	p.setStatus(StatusPersistent)
}
