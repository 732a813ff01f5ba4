package transaction

import (
	"fmt"
	"sync"

	"schemacore/pkg/primitives"
)

// TransactionRegistry manages all active transaction contexts
type TransactionRegistry struct {
	contexts map[int64]*TransactionContext
	mutex    sync.RWMutex
}

// NewTransactionRegistry creates a new transaction registry
func NewTransactionRegistry() *TransactionRegistry {
	return &TransactionRegistry{
		contexts: make(map[int64]*TransactionContext),
	}
}

// Begin creates a new transaction context and registers it
func (tr *TransactionRegistry) Begin(category Category, session primitives.SessionID) *TransactionContext {
	tid := NewTransactionID()
	ctx := NewTransactionContext(tid, category, session)

	tr.mutex.Lock()
	tr.contexts[tid.ID()] = ctx
	tr.mutex.Unlock()

	return ctx
}

// Get retrieves a transaction context by ID
func (tr *TransactionRegistry) Get(tid *TransactionID) (*TransactionContext, error) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	ctx, exists := tr.contexts[tid.ID()]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found", tid.String())
	}
	return ctx, nil
}

// Commit marks the transaction committed and forgets it.
func (tr *TransactionRegistry) Commit(ctx *TransactionContext) {
	ctx.SetStatus(TxCommitted)
	tr.Remove(ctx.ID)
}

// Abort marks the transaction aborted and forgets it.
func (tr *TransactionRegistry) Abort(ctx *TransactionContext) {
	ctx.SetStatus(TxAborted)
	tr.Remove(ctx.ID)
}

// Remove removes a transaction context from the registry
func (tr *TransactionRegistry) Remove(tid *TransactionID) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	delete(tr.contexts, tid.ID())
}

// GetActive returns all active transaction contexts
func (tr *TransactionRegistry) GetActive() []*TransactionContext {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	active := make([]*TransactionContext, 0)
	for _, ctx := range tr.contexts {
		if ctx.IsActive() {
			active = append(active, ctx)
		}
	}
	return active
}

// Count returns the number of registered transactions
func (tr *TransactionRegistry) Count() int {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()
	return len(tr.contexts)
}

// ForSession returns the active transactions of one session.
func (tr *TransactionRegistry) ForSession(session primitives.SessionID) []*TransactionContext {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	var out []*TransactionContext
	for _, ctx := range tr.contexts {
		if ctx.SessionID() == session && ctx.IsActive() {
			out = append(out, ctx)
		}
	}
	return out
}
