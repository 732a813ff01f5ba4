package schema

import (
	"slices"

	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/fileops"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
)

// movePhase is how far Move got before an error.
type movePhase int

const (
	moveNone movePhase = iota
	movePrepared
	moveMoved
	moveSweeped
)

// Fault points of an area move.
const (
	FaultMovePrepared   = "Area.Move.Prepared"
	FaultMoveMoved      = "Area.Move.Moved"
	FaultMoveSweeped    = "Area.Move.Sweeped"
	FaultMoveFileMoved  = "Area.MoveFile.Moved"
	FaultSweepMoveMoved = "Area.SweepMove.Moved"
)

// setMovePrepare computes the path array an ALTER AREA leads to. changed
// is false when every new path denotes the same directory as the old one,
// however it is spelled.
func (a *Area) setMovePrepare(action ActionType, elements []AreaElement) (prev, post []string, changed bool, err error) {
	m := a.db.mgr
	prev = a.Path()
	post = slices.Clone(prev)
	n := len(prev)

	switch action {
	case SingleModify, FullAryModify:
		if len(elements) != n {
			a.logger().Info("area path number mismatch", "paths", n, "specified", len(elements))
			return nil, nil, false, dberror.InvalidPath(a.Name())
		}
		for i, e := range elements {
			post[i] = m.fullPathName(e.Path)
		}
	case ElemAryModify:
		if len(elements) > n {
			a.logger().Info("area path number mismatch", "paths", n, "specified", len(elements))
			return nil, nil, false, dberror.InvalidPath(a.Name())
		}
		for i, e := range elements {
			if e.Set {
				post[i] = m.fullPathName(e.Path)
				break
			}
		}
	default:
		return nil, nil, false, dberror.BadArgument("unknown alter area action %d", action)
	}

	for i := range prev {
		if primitives.Filepath(prev[i]).Compare(primitives.Filepath(post[i])) != primitives.PathIdentical {
			changed = true
			break
		}
	}
	return prev, post, changed, nil
}

// Move relocates the area from prev to post. The contents are moved
// first, then the directories left behind are removed. Mount and redo do
// not touch the old directories. On failure the completed phases are
// undone in reverse order and the original error is returned.
func (a *Area) Move(txn *transaction.TransactionContext, prev, post []string, undo, recovery, mount bool) (err error) {
	if len(prev) != len(post) {
		return dberror.BadArgument("area %q: %d paths moved to %d", a.Name(), len(prev), len(post))
	}
	m := a.db.mgr
	phase := moveNone
	fault := func(point string) error {
		if undo {
			return nil
		}
		return m.fault(point)
	}

	defer func() {
		if err == nil {
			return
		}
		m.metrics.MoveRollbacks.Inc()
		a.reorganizeRecovery(func() error {
			switch phase {
			case moveSweeped, moveMoved:
				if rerr := a.moveFile(txn, post, prev, true, recovery, mount); rerr != nil {
					return rerr
				}
				fallthrough
			case movePrepared:
				if !mount && !recovery {
					return a.sweepMove(post, prev, true)
				}
			}
			return nil
		})
	}()

	phase = movePrepared
	if err = fault(FaultMovePrepared); err != nil {
		return err
	}

	if err = a.moveFile(txn, prev, post, undo, recovery, mount); err != nil {
		return err
	}
	phase = moveMoved
	if err = fault(FaultMoveMoved); err != nil {
		return err
	}

	if !mount && !recovery {
		if err = a.sweepMove(prev, post, undo); err != nil {
			return err
		}
		phase = moveSweeped
	}
	if err = fault(FaultMoveSweeped); err != nil {
		return err
	}

	m.metrics.AreaMoves.Inc()
	a.logger().Debug("area moved", "from", prev, "to", post, "recovery", recovery, "mount", mount)
	return nil
}

// MoveForMount moves the area of a database being mounted. The status is
// reverted when an undo brings a not yet persisted area back.
func (a *Area) MoveForMount(txn *transaction.TransactionContext, prev, post []string, undo, recovery bool) error {
	if err := a.Move(txn, prev, post, undo, recovery, true); err != nil {
		return err
	}
	if undo && a.Status() != StatusPersistent {
		a.untouch()
	} else {
		a.touch()
	}
	return nil
}

// moveFile moves the files of every content and then switches the path
// array. When a content fails, the contents already moved are moved back
// and the path array is restored.
func (a *Area) moveFile(txn *transaction.TransactionContext, prev, post []string, undo, recovery, mount bool) error {
	contents, err := a.LoadContent(txn, recovery)
	if err != nil {
		return err
	}
	m := a.db.mgr

	moved := 0
	err = func() error {
		for _, c := range contents {
			if err := c.MoveFile(txn, prev, post, undo, recovery, mount); err != nil {
				return err
			}
			moved++
		}
		if undo {
			return nil
		}
		return m.fault(FaultMoveFileMoved)
	}()
	if err == nil {
		a.SetPath(post)
		return nil
	}

	a.reorganizeRecovery(func() error {
		a.SetPath(post)
		for _, c := range contents[:moved] {
			if rerr := c.MoveFile(txn, post, prev, true, recovery, mount); rerr != nil {
				return rerr
			}
		}
		a.SetPath(prev)
		return nil
	})
	return err
}

// sweepMove removes every directory of prev that is not also in post.
func (a *Area) sweepMove(prev, post []string, undo bool) error {
	for _, p := range prev {
		fp := primitives.Filepath(p)
		kept := slices.ContainsFunc(post, func(q string) bool {
			return fp.Compare(primitives.Filepath(q)) == primitives.PathIdentical
		})
		if kept {
			continue
		}
		if err := fileops.RmAll(fp); err != nil {
			return err
		}
	}
	if undo {
		return nil
	}
	return a.db.mgr.fault(FaultSweepMoveMoved)
}

// reorganizeRecovery runs the compensation of a failed reorganization.
// A failure here leaves disk and catalog out of step, so the database is
// quarantined instead of reporting a second error. Nothing more is
// attempted on a database already quarantined.
func (a *Area) reorganizeRecovery(fn func() error) {
	if !a.db.IsAvailable() {
		return
	}
	if err := fn(); err != nil {
		logging.WithError(err).Error("recovery of area reorganization failed, database is unavailable",
			"database", a.db.Name(), "area", a.Name())
		a.db.mgr.SetAvailability(a.db.ID(), false)
	}
}
