package schema

import (
	"sync/atomic"

	"schemacore/pkg/concurrency/lock"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/meta"
)

// Category identifies the class of a schema object.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryDatabase
	CategoryArea
	CategoryAreaContent
	CategoryPrivilege
	CategoryTable
	CategoryIndex
	CategoryFile
)

func (c Category) String() string {
	switch c {
	case CategoryDatabase:
		return "database"
	case CategoryArea:
		return "area"
	case CategoryAreaContent:
		return "area_content"
	case CategoryPrivilege:
		return "privilege"
	case CategoryTable:
		return "table"
	case CategoryIndex:
		return "index"
	case CategoryFile:
		return "file"
	default:
		return "unknown"
	}
}

// Status is the persistence state of an object relative to the catalog.
type Status int32

const (
	StatusUnknown Status = iota
	StatusCreated
	StatusMounted
	StatusChanged
	StatusPersistent
	StatusDeleted
	StatusDeletedInRecovery
	StatusDeleteCanceled
	StatusCreateCanceled
	StatusReallyDeleted
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusMounted:
		return "Mounted"
	case StatusChanged:
		return "Changed"
	case StatusPersistent:
		return "Persistent"
	case StatusDeleted:
		return "Deleted"
	case StatusDeletedInRecovery:
		return "DeletedInRecovery"
	case StatusDeleteCanceled:
		return "DeleteCanceled"
	case StatusCreateCanceled:
		return "CreateCanceled"
	case StatusReallyDeleted:
		return "ReallyDeleted"
	default:
		return "Unknown"
	}
}

// Scope tells how long an object lives.
type Scope int

const (
	ScopePermanent Scope = iota
	ScopeSessionTemporary
	ScopeMeta
)

// Object is the state shared by every schema object. The embedded lock
// guards the lazily built members of the concrete object.
type Object struct {
	rw lock.RWLock

	category   Category
	scope      Scope
	id         primitives.ObjectID
	parentID   primitives.ObjectID
	databaseID primitives.ObjectID
	name       string
	fileOID    uint64
	timestamp  atomic.Uint64
	status     atomic.Int32
}

func (o *Object) init(category Category, scope Scope, databaseID primitives.ObjectID, name string) {
	o.category = category
	o.scope = scope
	o.id = primitives.InvalidObjectID
	o.parentID = databaseID
	o.databaseID = databaseID
	o.name = name
}

func (o *Object) ID() primitives.ObjectID         { return o.id }
func (o *Object) Name() string                    { return o.name }
func (o *Object) Category() Category              { return o.category }
func (o *Object) Scope() Scope                    { return o.scope }
func (o *Object) ParentID() primitives.ObjectID   { return o.parentID }
func (o *Object) DatabaseID() primitives.ObjectID { return o.databaseID }

func (o *Object) Status() Status {
	return Status(o.status.Load())
}

func (o *Object) setStatus(s Status) {
	o.status.Store(int32(s))
}

func (o *Object) Timestamp() primitives.Timestamp {
	return primitives.Timestamp(o.timestamp.Load())
}

func (o *Object) setTimestamp(ts primitives.Timestamp) {
	o.timestamp.Store(uint64(ts))
}

// create gives the object its ID. A valid id comes from a log record and
// only moves the database sequence forward; otherwise a new ID is drawn.
func (o *Object) create(db *Database, id primitives.ObjectID) {
	if id.IsValid() {
		db.adoptID(id)
	} else {
		id = db.nextID()
	}
	o.id = id
	o.databaseID = db.ID()
	o.parentID = db.ID()
	o.setStatus(StatusCreated)
}

// drop marks the object for deletion at the next persist. An object that
// never reached the catalog is just canceled.
func (o *Object) drop(recovery bool) {
	switch o.Status() {
	case StatusCreated, StatusMounted, StatusDeleteCanceled:
		o.setStatus(StatusCreateCanceled)
	case StatusPersistent, StatusChanged:
		if recovery {
			o.setStatus(StatusDeletedInRecovery)
		} else {
			o.setStatus(StatusDeleted)
		}
	}
}

// touch marks a persistent object dirty and advances its timestamp.
func (o *Object) touch() {
	if o.status.CompareAndSwap(int32(StatusPersistent), int32(StatusChanged)) {
		o.timestamp.Add(1)
	}
}

// untouch reverts touch for objects whose change turned out to be void.
func (o *Object) untouch() {
	switch o.Status() {
	case StatusMounted, StatusChanged:
		o.setStatus(StatusPersistent)
	}
}

func (o *Object) PackMember(t meta.MemberType) meta.Field {
	switch t {
	case meta.FileOID:
		return meta.Uint64Field(o.fileOID)
	case meta.ObjectID:
		return meta.IDField(o.id)
	case meta.ParentID:
		return meta.IDField(o.parentID)
	case meta.Name:
		return meta.StringField(o.name)
	case meta.FileObjectID:
		return meta.IDField(primitives.InvalidObjectID)
	case meta.Timestamp:
		return meta.Uint64Field(o.timestamp.Load())
	}
	return meta.Field{}
}

func (o *Object) UnpackMember(t meta.MemberType, f meta.Field) {
	switch t {
	case meta.FileOID:
		o.fileOID = f.U64
	case meta.ObjectID:
		o.id = f.ID
	case meta.ParentID:
		o.parentID = f.ID
	case meta.Name:
		o.name = f.Str
	case meta.Timestamp:
		o.timestamp.Store(f.U64)
	}
}
