package primitives

import (
	"fmt"
	"math"
)

// ObjectID identifies any catalog object within its database.
//
// IDs are handed out by the owning database's sequence, strictly increasing,
// and are never reused even after the object is dropped, so that a logical
// log record naming an ID is unambiguous for the whole life of the database.
type ObjectID uint32

const (
	// InvalidObjectID marks an unset or unknown object.
	InvalidObjectID ObjectID = math.MaxUint32

	// SystemTableID is the pseudo database that owns the system tables.
	SystemTableID ObjectID = 0
)

// IsValid reports whether id is neither the Invalid sentinel nor zero.
func (id ObjectID) IsValid() bool {
	return id != InvalidObjectID && id != SystemTableID
}

func (id ObjectID) String() string {
	if id == InvalidObjectID {
		return "ObjectID(invalid)"
	}
	return fmt.Sprintf("ObjectID(%d)", uint32(id))
}

// SessionID identifies a client session. IllegalSessionID is used by
// internal transactions (recovery, mount) that are not bound to a session.
type SessionID uint32

const IllegalSessionID SessionID = math.MaxUint32

// IsLegal reports whether id names a real session.
func (id SessionID) IsLegal() bool {
	return id != IllegalSessionID
}

// SnapshotID identifies one ObjectSnapshot in the process-wide registry.
type SnapshotID uint64

const InvalidSnapshotID SnapshotID = 0

// LSN (Log Sequence Number) uniquely identifies each logical log record.
// It is the byte offset of the record in the log file.
type LSN uint64

// Timestamp represents a logical timestamp (the LSN at which a catalog
// object was last persisted).
type Timestamp uint64

// Archive sizes of the identifier types in catalog rows and log records.
const (
	ObjectIDArchiveSize  = 4
	SessionIDArchiveSize = 4
	TimestampArchiveSize = 8
)
