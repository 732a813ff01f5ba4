package meta

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"schemacore/pkg/dberror"
	"schemacore/pkg/primitives"
)

// Kind is the wire tag of a stored field.
type Kind uint8

const (
	KindNull Kind = iota
	KindUint64
	KindID
	KindString
	KindInteger
	KindUnsigned
	KindStringArray
	KindUnsignedArray
	KindIDArray
)

func (k Kind) String() string {
	switch k {
	case KindUint64:
		return "uint64"
	case KindID:
		return "id"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindUnsigned:
		return "unsigned"
	case KindStringArray:
		return "string[]"
	case KindUnsignedArray:
		return "unsigned[]"
	case KindIDArray:
		return "id[]"
	default:
		return "null"
	}
}

// Field is one tagged value of a row.
type Field struct {
	Kind  Kind
	U64   uint64
	ID    primitives.ObjectID
	Str   string
	Int   int32
	Uint  uint32
	Strs  []string
	Uints []uint32
	IDs   []primitives.ObjectID
}

// Row is the ordered field list of one catalog object.
type Row []Field

func Uint64Field(v uint64) Field           { return Field{Kind: KindUint64, U64: v} }
func IDField(id primitives.ObjectID) Field { return Field{Kind: KindID, ID: id} }
func StringField(s string) Field           { return Field{Kind: KindString, Str: s} }
func IntegerField(v int32) Field           { return Field{Kind: KindInteger, Int: v} }
func UnsignedField(v uint32) Field         { return Field{Kind: KindUnsigned, Uint: v} }

func StringArrayField(s []string) Field {
	return Field{Kind: KindStringArray, Strs: append([]string(nil), s...)}
}

func UnsignedArrayField(v []uint32) Field {
	return Field{Kind: KindUnsignedArray, Uints: append([]uint32(nil), v...)}
}

func IDArrayField(ids []primitives.ObjectID) Field {
	return Field{Kind: KindIDArray, IDs: append([]primitives.ObjectID(nil), ids...)}
}

// EncodeRow serializes a row as [Count:2]{[Kind:1][payload]}, big endian.
func EncodeRow(row Row) []byte {
	var buf bytes.Buffer
	put16(&buf, uint16(len(row))) // #nosec G115

	for _, f := range row {
		buf.WriteByte(byte(f.Kind))
		switch f.Kind {
		case KindUint64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], f.U64)
			buf.Write(b[:])
		case KindID:
			put32(&buf, uint32(f.ID))
		case KindString:
			putString(&buf, f.Str)
		case KindInteger:
			put32(&buf, uint32(f.Int)) // #nosec G115
		case KindUnsigned:
			put32(&buf, f.Uint)
		case KindStringArray:
			put32(&buf, uint32(len(f.Strs))) // #nosec G115
			for _, s := range f.Strs {
				putString(&buf, s)
			}
		case KindUnsignedArray:
			put32(&buf, uint32(len(f.Uints))) // #nosec G115
			for _, v := range f.Uints {
				put32(&buf, v)
			}
		case KindIDArray:
			put32(&buf, uint32(len(f.IDs))) // #nosec G115
			for _, id := range f.IDs {
				put32(&buf, uint32(id))
			}
		}
	}
	return buf.Bytes()
}

func put16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func put32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	put32(buf, uint32(len(s))) // #nosec G115
	buf.WriteString(s)
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(data []byte) (Row, error) {
	d := decoder{data: data}
	n := int(d.u16())
	row := make(Row, 0, n)

	for i := 0; i < n && d.err == nil; i++ {
		f := Field{Kind: Kind(d.u8())}
		switch f.Kind {
		case KindNull:
		case KindUint64:
			f.U64 = d.u64()
		case KindID:
			f.ID = primitives.ObjectID(d.u32())
		case KindString:
			f.Str = d.str()
		case KindInteger:
			f.Int = int32(d.u32()) // #nosec G115
		case KindUnsigned:
			f.Uint = d.u32()
		case KindStringArray:
			for c := d.count(); c > 0 && d.err == nil; c-- {
				f.Strs = append(f.Strs, d.str())
			}
		case KindUnsignedArray:
			for c := d.count(); c > 0 && d.err == nil; c-- {
				f.Uints = append(f.Uints, d.u32())
			}
		case KindIDArray:
			for c := d.count(); c > 0 && d.err == nil; c-- {
				f.IDs = append(f.IDs, primitives.ObjectID(d.u32()))
			}
		default:
			d.fail(fmt.Sprintf("unknown field kind %d", f.Kind))
		}
		row = append(row, f)
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(data) {
		return nil, dberror.MetaDatabaseCorrupted("%d trailing bytes in row", len(data)-d.off)
	}
	return row, nil
}

type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) fail(msg string) {
	if d.err == nil {
		d.err = dberror.MetaDatabaseCorrupted("%s at offset %d", msg, d.off)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.fail("truncated row")
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) str() string {
	return string(d.take(int(d.u32())))
}

func (d *decoder) count() int {
	n := int(d.u32())
	if d.err == nil && n*4 > len(d.data)-d.off {
		d.fail(fmt.Sprintf("element count %d exceeds row", n))
		return 0
	}
	return n
}
