package lock

// Auto holds an RWLock for the duration of a scope.
type Auto struct {
	lock   *RWLock
	mode   Mode
	locked bool
}

// NewAuto locks l in the given mode (Read when omitted).
func NewAuto(l *RWLock, mode ...Mode) *Auto {
	m := Read
	if len(mode) > 0 {
		m = mode[0]
	}
	l.Lock(m)
	return &Auto{lock: l, mode: m, locked: true}
}

// TryAuto is the non-blocking form of NewAuto. The returned Auto is nil
// when the lock could not be granted.
func TryAuto(l *RWLock, mode Mode) (*Auto, bool) {
	if !l.TryLock(mode) {
		return nil, false
	}
	return &Auto{lock: l, mode: mode, locked: true}, true
}

// Convert releases the held mode and then acquires mode. Other goroutines
// may run in between; callers must re-validate what they read before.
func (a *Auto) Convert(mode Mode) {
	if a.locked && a.mode == mode {
		return
	}
	if a.locked {
		a.lock.Unlock(a.mode)
	}
	a.lock.Lock(mode)
	a.mode = mode
	a.locked = true
}

// Mode returns the mode currently held.
func (a *Auto) Mode() Mode {
	return a.mode
}

// Unlock releases the lock. Calling it more than once is a no-op.
func (a *Auto) Unlock() {
	if !a.locked {
		return
	}
	a.lock.Unlock(a.mode)
	a.locked = false
}
