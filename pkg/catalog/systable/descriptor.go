package systable

import (
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/meta"
)

// Table tags the system table a row belongs to.
type Table uint8

const (
	TableDatabase Table = iota + 1
	TableArea
	TableAreaContent
	TablePrivilege
)

func (t Table) String() string {
	switch t {
	case TableDatabase:
		return "Database"
	case TableArea:
		return "Area"
	case TableAreaContent:
		return "AreaContent"
	case TablePrivilege:
		return "Privilege"
	default:
		return "Unknown"
	}
}

// Descriptor holds all static metadata for one system table.
// It has NO dependency on the Store or any I/O layer.
type Descriptor[T meta.Base] struct {
	name        string
	table       Table
	definitions []meta.Definition[T]
	newFn       func() T
	idFn        func(T) primitives.ObjectID
}

// NewDescriptor declares a system table. newFn returns an empty object for
// loading; idFn returns the row key of an object.
func NewDescriptor[T meta.Base](name string, table Table, defs []meta.Definition[T],
	newFn func() T, idFn func(T) primitives.ObjectID) *Descriptor[T] {
	return &Descriptor[T]{
		name:        name,
		table:       table,
		definitions: defs,
		newFn:       newFn,
		idFn:        idFn,
	}
}

func (d *Descriptor[T]) TableName() string {
	return d.name
}

func (d *Descriptor[T]) Table() Table {
	return d.table
}

// Definitions returns the ordered field definitions.
func (d *Descriptor[T]) Definitions() []meta.Definition[T] {
	return d.definitions
}

// CreateRow packs obj.
func (d *Descriptor[T]) CreateRow(obj T) meta.Row {
	return meta.Pack(obj, d.definitions)
}

// ParseRow builds a new object from row.
func (d *Descriptor[T]) ParseRow(row meta.Row) (T, error) {
	obj := d.newFn()
	if err := meta.Unpack(obj, d.definitions, row); err != nil {
		var zero T
		return zero, err
	}
	return obj, nil
}

// Put stages obj in b.
func (d *Descriptor[T]) Put(b *Batch, database primitives.ObjectID, obj T) {
	b.Put(database, d.table, d.idFn(obj), d.CreateRow(obj))
}

// Delete stages the removal of obj in b.
func (d *Descriptor[T]) Delete(b *Batch, database primitives.ObjectID, obj T) {
	b.Delete(database, d.table, d.idFn(obj))
}

// LoadAll reads every row of the table for one database in ID order.
func (d *Descriptor[T]) LoadAll(s *Store, database primitives.ObjectID) ([]T, error) {
	var out []T
	err := s.Scan(database, d.table, func(_ primitives.ObjectID, row meta.Row) error {
		obj, err := d.ParseRow(row)
		if err != nil {
			return err
		}
		out = append(out, obj)
		return nil
	})
	return out, err
}

// Load reads one object; ok is false when no row exists.
func (d *Descriptor[T]) Load(s *Store, database, id primitives.ObjectID) (obj T, ok bool, err error) {
	row, ok, err := s.Get(database, d.table, id)
	if err != nil || !ok {
		return obj, ok, err
	}
	obj, err = d.ParseRow(row)
	return obj, err == nil, err
}
