package logdata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash"

	"schemacore/pkg/dberror"
	"schemacore/pkg/primitives"
)

const (
	// RecordSize is the width of the leading length field.
	RecordSize = 4

	// HeaderSize covers the length field and the checksum.
	HeaderSize = RecordSize + 8
)

// Marshal converts a LogData into its binary representation.
// The serialization format uses big-endian byte ordering.
//
// Binary format structure:
//
//	[Size:4][Checksum:8][Category:1][SubCategory:1][DbNameLen:2][DbName][Count:2]{[Tag:1][payload]}
//
// Payloads:
//   - string:  [Len:4][bytes]
//   - id:      [ID:4]
//   - strings: [N:4]{[Len:4][bytes]}
//   - integer: [Value:4]
//   - ids:     [N:4]{[ID:4]}
//   - uints:   [N:4]{[Value:4]}
//
// Size covers the whole record. Checksum is xxhash64 over everything after it.
func (l *LogData) Marshal() ([]byte, error) {
	var buf bytes.Buffer

	if len(l.DatabaseName) > math.MaxUint16 {
		return nil, fmt.Errorf("database name too long: %d bytes", len(l.DatabaseName))
	}
	if len(l.items) > math.MaxUint16 {
		return nil, fmt.Errorf("too many log items: %d", len(l.items))
	}

	buf.WriteByte(byte(l.category))
	buf.WriteByte(byte(l.subCategory))
	writeUint16(&buf, uint16(len(l.DatabaseName)))
	buf.WriteString(l.DatabaseName)
	writeUint16(&buf, uint16(len(l.items)))

	for i := range l.items {
		if err := l.items[i].marshal(&buf); err != nil {
			return nil, err
		}
	}

	body := buf.Bytes()
	result := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(result, uint32(len(result))) // #nosec G115
	binary.BigEndian.PutUint64(result[RecordSize:], xxhash.Sum64(body))
	copy(result[HeaderSize:], body)

	return result, nil
}

func (it *item) marshal(buf *bytes.Buffer) error {
	buf.WriteByte(byte(it.tag))

	switch it.tag {
	case TagString:
		writeString(buf, it.str)
	case TagID:
		writeUint32(buf, uint32(it.id))
	case TagStrings:
		writeUint32(buf, uint32(len(it.strs))) // #nosec G115
		for _, s := range it.strs {
			writeString(buf, s)
		}
	case TagInteger:
		writeUint32(buf, uint32(it.num)) // #nosec G115
	case TagIDs:
		writeUint32(buf, uint32(len(it.ids))) // #nosec G115
		for _, id := range it.ids {
			writeUint32(buf, uint32(id))
		}
	case TagUnsignedIntegers:
		writeUint32(buf, uint32(len(it.uints))) // #nosec G115
		for _, v := range it.uints {
			writeUint32(buf, v)
		}
	default:
		return fmt.Errorf("unknown log item tag %d", it.tag)
	}
	return nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s))) // #nosec G115
	buf.WriteString(s)
}

// Unmarshal rebuilds a LogData from the output of Marshal. Any size,
// checksum or tag inconsistency is reported as LogItemCorrupted.
func Unmarshal(data []byte) (*LogData, error) {
	if len(data) < HeaderSize {
		return nil, dberror.LogItemCorrupted("record of %d bytes is shorter than its header", len(data))
	}

	size := binary.BigEndian.Uint32(data)
	if int(size) != len(data) {
		return nil, dberror.LogItemCorrupted("record size %d does not match %d bytes read", size, len(data))
	}

	body := data[HeaderSize:]
	if sum := binary.BigEndian.Uint64(data[RecordSize:]); sum != xxhash.Sum64(body) {
		return nil, dberror.LogItemCorrupted("checksum mismatch")
	}

	r := &reader{data: body}
	l := &LogData{
		category:    Category(r.byte()),
		subCategory: Category(r.byte()),
	}
	l.DatabaseName = string(r.bytes(int(r.uint16())))

	count := int(r.uint16())
	for i := 0; i < count && r.err == nil; i++ {
		l.items = append(l.items, r.item())
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(body) {
		return nil, dberror.LogItemCorrupted("%d trailing bytes", len(body)-r.off)
	}
	return l, nil
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = dberror.LogItemCorrupted("truncated record at offset %d", r.off)
		return false
	}
	return true
}

func (r *reader) byte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *reader) uint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) string() string {
	return string(r.bytes(int(r.uint32())))
}

// count reads an element count and rejects values that cannot fit in the
// remaining bytes, each element taking at least width bytes.
func (r *reader) count(width int) int {
	n := int(r.uint32())
	if r.err == nil && n*width > len(r.data)-r.off {
		r.err = dberror.LogItemCorrupted("element count %d exceeds record", n)
		return 0
	}
	return n
}

func (r *reader) item() item {
	it := item{tag: Tag(r.byte())}

	switch it.tag {
	case TagString:
		it.str = r.string()
	case TagID:
		it.id = primitives.ObjectID(r.uint32())
	case TagStrings:
		n := r.count(4)
		it.strs = make([]string, 0, n)
		for i := 0; i < n; i++ {
			it.strs = append(it.strs, r.string())
		}
	case TagInteger:
		it.num = int32(r.uint32()) // #nosec G115
	case TagIDs:
		n := r.count(4)
		it.ids = make([]primitives.ObjectID, 0, n)
		for i := 0; i < n; i++ {
			it.ids = append(it.ids, primitives.ObjectID(r.uint32()))
		}
	case TagUnsignedIntegers:
		n := r.count(4)
		it.uints = make([]uint32, 0, n)
		for i := 0; i < n; i++ {
			it.uints = append(it.uints, r.uint32())
		}
	default:
		if r.err == nil {
			r.err = dberror.LogItemCorrupted("unknown item tag %d", it.tag)
		}
	}
	return it
}
