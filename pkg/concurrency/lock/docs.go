// Package lock provides the reader/writer lock that guards every catalog
// object, and a scope-bound acquisition wrapper.
//
// # Modes
//
//   - [Read]: shared, compatible with other readers.
//   - [Write]: exclusive, incompatible with everything.
//
// # Scope-bound acquisition
//
// [Auto] locks on construction and is released with a deferred Unlock:
//
//	a := lock.NewAuto(&obj.RWLock, lock.Read)
//	defer a.Unlock()
//
//	if obj.paths == nil {
//	    a.Convert(lock.Write)
//	    if obj.paths == nil { // re-check: Convert releases the lock first
//	        obj.paths = load()
//	    }
//	}
//
// Convert is NOT atomic. The old mode is released before the new one is
// acquired, so any state read under the old mode must be checked again
// after the conversion. The catalog code follows this check-twice pattern
// everywhere a lazily allocated member is filled in.
//
// An unknown mode is a programming error and panics with a BadArgument
// error from package dberror.
package lock
