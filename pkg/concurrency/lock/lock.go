package lock

import (
	"sync"

	"schemacore/pkg/dberror"
)

// Mode is the access mode requested from an RWLock.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// RWLock admits any number of readers or one writer. The zero value is an
// unlocked lock; it must not be copied after first use.
type RWLock struct {
	mu sync.RWMutex
}

// Lock blocks until mode is granted.
func (l *RWLock) Lock(mode Mode) {
	switch mode {
	case Read:
		l.mu.RLock()
	case Write:
		l.mu.Lock()
	default:
		badMode("Lock", mode)
	}
}

// TryLock grants mode without blocking and reports whether it did.
func (l *RWLock) TryLock(mode Mode) bool {
	switch mode {
	case Read:
		return l.mu.TryRLock()
	case Write:
		return l.mu.TryLock()
	default:
		badMode("TryLock", mode)
		return false
	}
}

// Unlock releases mode, which must be the mode currently held.
func (l *RWLock) Unlock(mode Mode) {
	switch mode {
	case Read:
		l.mu.RUnlock()
	case Write:
		l.mu.Unlock()
	default:
		badMode("Unlock", mode)
	}
}

func badMode(op string, mode Mode) {
	panic(dberror.BadArgument("lock mode %d", int(mode)).In(op, "RWLock"))
}
