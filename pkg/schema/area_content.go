package schema

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"

	"schemacore/pkg/catalog/systable"
	"schemacore/pkg/concurrency/lock"
	"schemacore/pkg/concurrency/transaction"
	"schemacore/pkg/dberror"
	"schemacore/pkg/fileops"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/meta"
)

// AreaCategory is the role an area plays for the object stored in it.
type AreaCategory int32

const (
	AreaDefault AreaCategory = iota
	AreaHeap
	AreaIndex
	AreaFullText
	AreaLogicalLog
	AreaPhysicalLog
)

func (c AreaCategory) String() string {
	switch c {
	case AreaDefault:
		return "Default"
	case AreaHeap:
		return "Heap"
	case AreaIndex:
		return "Index"
	case AreaFullText:
		return "FullText"
	case AreaLogicalLog:
		return "LogicalLog"
	case AreaPhysicalLog:
		return "PhysicalLog"
	default:
		return "Unknown"
	}
}

// AreaContent records that the files of one object live in an area.
type AreaContent struct {
	Object

	area           *Area
	objectID       primitives.ObjectID
	objectCategory Category
	areaCategory   AreaCategory
}

var areaContentDefinitions = []meta.Definition[*AreaContent]{
	meta.Define[*AreaContent](meta.FileOID),
	meta.Define[*AreaContent](meta.ObjectID),
	meta.Define[*AreaContent](meta.ParentID),
	meta.DefineWith(meta.ID,
		func(c *AreaContent) meta.Field { return meta.IDField(c.objectID) },
		func(c *AreaContent, f meta.Field) { c.objectID = f.ID }),
	meta.DefineWith(meta.Integer,
		func(c *AreaContent) meta.Field { return meta.IntegerField(int32(c.areaCategory)) },
		func(c *AreaContent, f meta.Field) { c.areaCategory = AreaCategory(f.Int) }),
	meta.DefineWith(meta.Integer,
		func(c *AreaContent) meta.Field { return meta.IntegerField(int32(c.objectCategory)) },
		func(c *AreaContent, f meta.Field) { c.objectCategory = Category(f.Int) }),
	meta.Define[*AreaContent](meta.Timestamp),
}

// NewAreaContent assigns the object objectID to area.
func NewAreaContent(txn *transaction.TransactionContext, area *Area, objectID primitives.ObjectID,
	objectCategory Category, areaCategory AreaCategory) (*AreaContent, error) {
	if txn.IsReadOnly() {
		return nil, dberror.ReadOnlyTransaction("assign area")
	}
	c := &AreaContent{area: area, objectID: objectID, objectCategory: objectCategory, areaCategory: areaCategory}
	c.init(CategoryAreaContent, area.Scope(), area.DatabaseID(), "")
	c.create(area.db, primitives.InvalidObjectID)
	c.parentID = area.ID()
	return c, nil
}

// Drop marks the assignment for removal.
func (c *AreaContent) Drop(recovery bool) {
	c.drop(recovery)
}

func (c *AreaContent) AreaID() primitives.ObjectID   { return c.parentID }
func (c *AreaContent) ObjectID() primitives.ObjectID { return c.objectID }
func (c *AreaContent) ObjectCategory() Category      { return c.objectCategory }
func (c *AreaContent) AreaCategory() AreaCategory    { return c.areaCategory }
func (c *AreaContent) Area() *Area                   { return c.area }

// MoveFile moves the files of the object from prev to post.
func (c *AreaContent) MoveFile(_ *transaction.TransactionContext, prev, post []string, undo, recovery, mount bool) error {
	return c.area.db.mgr.mover.MoveContent(c, prev, post, undo, recovery, mount)
}

// ContentMover moves the files of an area content when its area moves.
type ContentMover interface {
	MoveContent(c *AreaContent, prev, post []string, undo, recovery, mount bool) error
}

// ObjectDirName is the directory an object keeps under each area path.
func ObjectDirName(c *AreaContent) string {
	return fmt.Sprintf("%s_%d", c.ObjectCategory(), uint32(c.ObjectID()))
}

// DirMover keeps the files of each content in one directory per area
// path and moves that directory. Mounted files are already in place.
type DirMover struct{}

func (DirMover) MoveContent(c *AreaContent, prev, post []string, undo, _ bool, mount bool) error {
	if mount {
		return nil
	}
	dir := ObjectDirName(c)
	var moved []int
	for i := range prev {
		src := primitives.Filepath(prev[i]).Join(dir)
		dst := primitives.Filepath(post[i]).Join(dir)
		if src.Compare(dst) == primitives.PathIdentical {
			continue
		}
		if err := fileops.Move(src, dst); err != nil {
			if !undo {
				for _, j := range moved {
					back := fileops.Move(primitives.Filepath(post[j]).Join(dir), primitives.Filepath(prev[j]).Join(dir))
					err = errors.CombineErrors(err, back)
				}
			}
			return err
		}
		moved = append(moved, i)
	}
	return nil
}

// ---- area side ----

// LoadContent returns the contents of the area ordered by ID. An area not
// yet in the catalog has none, except when mount recovery asks for them.
func (a *Area) LoadContent(_ *transaction.TransactionContext, recovery bool) ([]*AreaContent, error) {
	m := a.db.mgr
	overLimit := false

	l := lock.NewAuto(&a.rw)
	if a.contents == nil {
		l.Convert(lock.Write)
		if a.contents == nil {
			if (a.Scope() != ScopePermanent || a.Status() == StatusCreated) && !recovery {
				a.contents = make(map[primitives.ObjectID]*AreaContent)
			} else {
				loaded, err := areaContentTable.LoadAll(m.store, a.DatabaseID())
				if err != nil {
					l.Unlock()
					return nil, err
				}
				a.contents = make(map[primitives.ObjectID]*AreaContent)
				for _, c := range loaded {
					if c.AreaID() != a.ID() {
						continue
					}
					c.doAfterLoad(a)
					a.contents[c.ID()] = c
				}
				m.IncrementCacheSize(int64(len(a.contents)))
				overLimit = m.CheckCacheSize()
			}
		}
	}
	out := make([]*AreaContent, 0, len(a.contents))
	for _, c := range a.contents {
		out = append(out, c)
	}
	l.Unlock()

	if overLimit {
		m.ClearCache()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Content returns the content for an object of category, or nil.
func (a *Area) Content(txn *transaction.TransactionContext, objectID primitives.ObjectID, category Category) (*AreaContent, error) {
	contents, err := a.LoadContent(txn, false)
	if err != nil {
		return nil, err
	}
	for _, c := range contents {
		if c.ObjectID() == objectID && c.ObjectCategory() == category {
			return c, nil
		}
	}
	return nil, nil
}

// AddContent caches c. Every cached content counts toward the manager's
// cache size until it is erased or the content set is dropped.
func (a *Area) AddContent(txn *transaction.TransactionContext, c *AreaContent) error {
	if _, err := a.LoadContent(txn, false); err != nil {
		return err
	}
	l := lock.NewAuto(&a.rw, lock.Write)
	defer l.Unlock()
	if a.contents == nil {
		a.contents = make(map[primitives.ObjectID]*AreaContent)
	}
	if _, ok := a.contents[c.ID()]; !ok {
		a.db.mgr.IncrementCacheSize(1)
	}
	a.contents[c.ID()] = c
	return nil
}

func (a *Area) EraseContent(id primitives.ObjectID) {
	l := lock.NewAuto(&a.rw, lock.Write)
	defer l.Unlock()
	if _, ok := a.contents[id]; ok {
		delete(a.contents, id)
		a.db.mgr.DecrementCacheSize(1)
	}
}

// ResetContent leaves the area with an empty, loaded content set.
func (a *Area) ResetContent() {
	a.dropContent(make(map[primitives.ObjectID]*AreaContent))
}

// ClearContent forgets the content set; it is read again on next use.
func (a *Area) ClearContent() {
	a.dropContent(nil)
}

func (a *Area) dropContent(next map[primitives.ObjectID]*AreaContent) {
	l := lock.NewAuto(&a.rw, lock.Write)
	n := len(a.contents)
	a.contents = next
	l.Unlock()
	if n > 0 {
		a.db.mgr.DecrementCacheSize(int64(n))
	}
}

// ---- persistence ----

func (c *AreaContent) object() *Object { return &c.Object }

func (c *AreaContent) doBeforePersist(Status) error { return nil }

func (c *AreaContent) stage(b *systable.Batch, status Status) {
	switch status {
	case StatusDeleted, StatusDeletedInRecovery:
		areaContentTable.Delete(b, c.DatabaseID(), c)
	default:
		areaContentTable.Put(b, c.DatabaseID(), c)
	}
}

func (c *AreaContent) doAfterPersist(status Status) {
	switch status {
	case StatusCreated, StatusMounted, StatusDeleteCanceled:
		if err := c.area.AddContent(nil, c); err != nil {
			c.area.ClearContent()
		}
	case StatusDeleted, StatusDeletedInRecovery:
		c.setStatus(StatusReallyDeleted)
		c.area.EraseContent(c.ID())
	}
}

func (c *AreaContent) doAfterLoad(area *Area) {
	c.area = area
	c.category = CategoryAreaContent
	c.scope = area.Scope()
	c.databaseID = area.DatabaseID()
	c.setStatus(StatusPersistent)
}
