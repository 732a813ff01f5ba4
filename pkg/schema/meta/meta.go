// Package meta describes how catalog objects are laid out as system table
// rows. Each object class owns an ordered table of Definitions; the index
// into that table is the member ID, and the order is the on-disk contract.
package meta

import (
	"schemacore/pkg/dberror"
)

// MemberType is the declared type of one row field. Types below
// UseObjectMax are owned by the object base and packed by it.
type MemberType int

const (
	FileOID MemberType = iota
	ObjectID
	ParentID
	Name
	FileObjectID
	Timestamp

	UseObjectMax

	Integer
	UnsignedInteger
	ID
	String
	StringArray
	UnsignedIntegerArray
	IDArray
)

func (t MemberType) String() string {
	switch t {
	case FileOID:
		return "FileOID"
	case ObjectID:
		return "ObjectID"
	case ParentID:
		return "ParentID"
	case Name:
		return "Name"
	case FileObjectID:
		return "FileObjectID"
	case Timestamp:
		return "Timestamp"
	case Integer:
		return "Integer"
	case UnsignedInteger:
		return "UnsignedInteger"
	case ID:
		return "ID"
	case String:
		return "String"
	case StringArray:
		return "StringArray"
	case UnsignedIntegerArray:
		return "UnsignedIntegerArray"
	case IDArray:
		return "IDArray"
	default:
		return "Unknown"
	}
}

// Kind returns the value kind a member of type t is stored as.
func (t MemberType) Kind() Kind {
	switch t {
	case FileOID, Timestamp:
		return KindUint64
	case ObjectID, ParentID, FileObjectID, ID:
		return KindID
	case Name, String:
		return KindString
	case Integer:
		return KindInteger
	case UnsignedInteger:
		return KindUnsigned
	case StringArray:
		return KindStringArray
	case UnsignedIntegerArray:
		return KindUnsignedArray
	case IDArray:
		return KindIDArray
	default:
		return KindNull
	}
}

// Definition binds one member ID to its type and accessors. Get and Set
// are nil for object-owned members.
type Definition[T any] struct {
	Type MemberType
	Get  func(T) Field
	Set  func(T, Field)
}

// Define declares an object-owned member.
func Define[T any](t MemberType) Definition[T] {
	return Definition[T]{Type: t}
}

// DefineWith declares a class-owned member.
func DefineWith[T any](t MemberType, get func(T) Field, set func(T, Field)) Definition[T] {
	return Definition[T]{Type: t, Get: get, Set: set}
}

// Base is implemented by the object base for members below UseObjectMax.
type Base interface {
	PackMember(t MemberType) Field
	UnpackMember(t MemberType, f Field)
}

// Pack converts obj into a row, one field per definition in order.
func Pack[T Base](obj T, defs []Definition[T]) Row {
	row := make(Row, len(defs))
	for i, def := range defs {
		if def.Type < UseObjectMax {
			row[i] = obj.PackMember(def.Type)
		} else {
			row[i] = def.Get(obj)
		}
	}
	return row
}

// Unpack fills obj from row. A row with the wrong width or a field whose
// kind does not match its definition is a corrupted catalog.
func Unpack[T Base](obj T, defs []Definition[T], row Row) error {
	if len(row) != len(defs) {
		return dberror.MetaDatabaseCorrupted("row has %d fields, expected %d", len(row), len(defs))
	}
	for i, def := range defs {
		f := row[i]
		if f.Kind != def.Type.Kind() {
			return dberror.MetaDatabaseCorrupted("member %d (%s) stored as %s",
				i, def.Type, f.Kind)
		}
		if def.Type < UseObjectMax {
			obj.UnpackMember(def.Type, f)
		} else {
			def.Set(obj, f)
		}
	}
	return nil
}

// Kinds lists the field kinds of a definition table, for diagnostics.
func Kinds[T any](defs []Definition[T]) []Kind {
	out := make([]Kind, len(defs))
	for i, def := range defs {
		out[i] = def.Type.Kind()
	}
	return out
}
