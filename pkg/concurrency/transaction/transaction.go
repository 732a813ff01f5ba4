package transaction

import (
	"fmt"
	"sync/atomic"
)

var lastTransactionID atomic.Int64

// TransactionID names one transaction. IDs grow by one per process
// starting at 1; zero is never handed out.
type TransactionID struct {
	id int64
}

func NewTransactionID() *TransactionID {
	return &TransactionID{id: lastTransactionID.Add(1)}
}

// TransactionIDOf wraps an id read back from a log record.
func TransactionIDOf(id int64) *TransactionID {
	return &TransactionID{id: id}
}

// ID returns the numeric id, or 0 for a nil receiver.
func (tid *TransactionID) ID() int64 {
	if tid == nil {
		return 0
	}
	return tid.id
}

func (tid *TransactionID) String() string {
	if tid == nil {
		return "txn(none)"
	}
	return fmt.Sprintf("txn(%d)", tid.id)
}

func (tid *TransactionID) Equals(other *TransactionID) bool {
	if tid == nil || other == nil {
		return tid == other
	}
	return tid.id == other.id
}
