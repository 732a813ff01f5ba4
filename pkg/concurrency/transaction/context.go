package transaction

import (
	"fmt"
	"sync"
	"time"

	"schemacore/pkg/primitives"
)

// TransactionStatus represents the current state of a transaction
type TransactionStatus int

const (
	TxActive TransactionStatus = iota
	TxCommitting
	TxAborting
	TxCommitted
	TxAborted
)

func (ts TransactionStatus) String() string {
	switch ts {
	case TxActive:
		return "ACTIVE"
	case TxCommitting:
		return "COMMITTING"
	case TxAborting:
		return "ABORTING"
	case TxCommitted:
		return "COMMITTED"
	case TxAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Category is the access level requested when the transaction began.
type Category int

const (
	ReadOnly Category = iota
	ReadWrite
)

func (c Category) String() string {
	if c == ReadOnly {
		return "READ_ONLY"
	}
	return "READ_WRITE"
}

// TransactionStats counts the catalog work done by one transaction.
type TransactionStats struct {
	ObjectsCreated int
	ObjectsDropped int
	ObjectsAltered int
	LogRecords     int
}

// TransactionContext is the opaque context the catalog receives on every
// operation: category, session and the database it works in.
type TransactionContext struct {
	// Identity
	ID *TransactionID

	category   Category
	sessionID  primitives.SessionID
	databaseID primitives.ObjectID
	noVersion  bool

	// Lifecycle state
	status    TransactionStatus
	startTime time.Time
	endTime   time.Time
	mutex     sync.RWMutex

	// Logical log state
	firstLSN primitives.LSN
	lastLSN  primitives.LSN

	stats TransactionStats
}

// NewTransactionContext creates an active context. Contexts created for
// recovery and mount pass primitives.IllegalSessionID.
func NewTransactionContext(tid *TransactionID, category Category, session primitives.SessionID) *TransactionContext {
	return &TransactionContext{
		ID:         tid,
		category:   category,
		sessionID:  session,
		databaseID: primitives.InvalidObjectID,
		noVersion:  true,
		status:     TxActive,
		startTime:  time.Now(),
	}
}

func (tc *TransactionContext) Category() Category {
	return tc.category
}

// IsReadOnly returns true for read-only transactions; DDL rejects them.
func (tc *TransactionContext) IsReadOnly() bool {
	return tc.category == ReadOnly
}

func (tc *TransactionContext) SessionID() primitives.SessionID {
	return tc.sessionID
}

func (tc *TransactionContext) DatabaseID() primitives.ObjectID {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.databaseID
}

func (tc *TransactionContext) SetDatabaseID(id primitives.ObjectID) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.databaseID = id
}

// IsNoVersion reports whether the transaction reads the live catalog
// rather than a versioned view.
func (tc *TransactionContext) IsNoVersion() bool {
	return tc.noVersion
}

// SetVersioned makes the transaction read a versioned catalog view.
func (tc *TransactionContext) SetVersioned() {
	tc.noVersion = false
}

// IsActive returns true if the transaction is still active
func (tc *TransactionContext) IsActive() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.status == TxActive
}

func (tc *TransactionContext) GetStatus() TransactionStatus {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.status
}

func (tc *TransactionContext) SetStatus(status TransactionStatus) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	tc.status = status
	if status == TxCommitted || status == TxAborted {
		tc.endTime = time.Now()
	}
}

// UpdateLSN records that the transaction wrote a logical log record at lsn.
func (tc *TransactionContext) UpdateLSN(lsn primitives.LSN) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.stats.LogRecords == 0 {
		tc.firstLSN = lsn
	}
	tc.lastLSN = lsn
	tc.stats.LogRecords++
}

// GetLastLSN returns the last LSN for this transaction
func (tc *TransactionContext) GetLastLSN() primitives.LSN {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.lastLSN
}

// GetFirstLSN returns the first LSN for this transaction
func (tc *TransactionContext) GetFirstLSN() primitives.LSN {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.firstLSN
}

func (tc *TransactionContext) RecordCreate() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.stats.ObjectsCreated++
}

func (tc *TransactionContext) RecordDrop() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.stats.ObjectsDropped++
}

func (tc *TransactionContext) RecordAlter() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.stats.ObjectsAltered++
}

// GetStatistics returns a snapshot of transaction statistics
func (tc *TransactionContext) GetStatistics() TransactionStats {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.stats
}

// Duration returns how long the transaction has been running
func (tc *TransactionContext) Duration() time.Duration {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.durationLocked()
}

func (tc *TransactionContext) durationLocked() time.Duration {
	endTime := tc.endTime
	if endTime.IsZero() {
		endTime = time.Now()
	}
	return endTime.Sub(tc.startTime)
}

// String returns a string representation of the transaction context
func (tc *TransactionContext) String() string {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	return fmt.Sprintf("Transaction %s [Status=%s, Category=%s, Session=%d, Duration=%v]",
		tc.ID.String(), tc.status.String(), tc.category.String(),
		uint32(tc.sessionID), tc.durationLocked())
}
