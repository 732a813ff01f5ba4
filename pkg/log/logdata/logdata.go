package logdata

import (
	"schemacore/pkg/dberror"
	"schemacore/pkg/primitives"
)

// Category represents the kind of catalog operation a record describes.
type Category uint8

const (
	Undefined Category = iota

	CreateDatabase
	DropDatabase
	AlterDatabase
	Mount
	Unmount

	CreateArea
	DropArea
	AlterArea

	CreatePrivilege
	DropPrivilege
	AlterPrivilege

	categoryCount
)

var categoryNames = [...]string{
	Undefined:       "Undefined",
	CreateDatabase:  "CreateDatabase",
	DropDatabase:    "DropDatabase",
	AlterDatabase:   "AlterDatabase",
	Mount:           "Mount",
	Unmount:         "Unmount",
	CreateArea:      "CreateArea",
	DropArea:        "DropArea",
	AlterArea:       "AlterArea",
	CreatePrivilege: "CreatePrivilege",
	DropPrivilege:   "DropPrivilege",
	AlterPrivilege:  "AlterPrivilege",
}

func (c Category) String() string {
	if c < categoryCount {
		return categoryNames[c]
	}
	return "Unknown"
}

// Tag identifies the type of one item in a record.
type Tag uint8

const (
	TagString Tag = iota + 1
	TagID
	TagStrings
	TagInteger
	TagIDs
	TagUnsignedIntegers
)

func (t Tag) String() string {
	switch t {
	case TagString:
		return "string"
	case TagID:
		return "id"
	case TagStrings:
		return "strings"
	case TagInteger:
		return "integer"
	case TagIDs:
		return "ids"
	case TagUnsignedIntegers:
		return "uints"
	default:
		return "unknown"
	}
}

type item struct {
	tag   Tag
	str   string
	id    primitives.ObjectID
	strs  []string
	num   int32
	ids   []primitives.ObjectID
	uints []uint32
}

// LogData is an append-only typed record of one catalog operation. The
// position of each item is fixed per record kind; readers address items
// by index.
type LogData struct {
	category    Category
	subCategory Category

	// DatabaseName is the database the record belongs to.
	DatabaseName string

	items []item
}

// New creates an empty record. The subcategory starts equal to the
// category and is refined by operations such as privilege grants.
func New(category Category, databaseName string) *LogData {
	return &LogData{
		category:     category,
		subCategory:  category,
		DatabaseName: databaseName,
	}
}

func (l *LogData) Category() Category {
	return l.category
}

func (l *LogData) SubCategory() Category {
	return l.subCategory
}

func (l *LogData) SetSubCategory(c Category) {
	l.subCategory = c
}

// Count returns the number of items.
func (l *LogData) Count() int {
	return len(l.items)
}

// TagAt returns the tag of item i, or 0 when i is out of range.
func (l *LogData) TagAt(i int) Tag {
	if i < 0 || i >= len(l.items) {
		return 0
	}
	return l.items[i].tag
}

func (l *LogData) AddString(s string) {
	l.items = append(l.items, item{tag: TagString, str: s})
}

func (l *LogData) AddID(id primitives.ObjectID) {
	l.items = append(l.items, item{tag: TagID, id: id})
}

func (l *LogData) AddStrings(s []string) {
	l.items = append(l.items, item{tag: TagStrings, strs: append([]string(nil), s...)})
}

func (l *LogData) AddInteger(n int32) {
	l.items = append(l.items, item{tag: TagInteger, num: n})
}

func (l *LogData) AddIDs(ids []primitives.ObjectID) {
	l.items = append(l.items, item{tag: TagIDs, ids: append([]primitives.ObjectID(nil), ids...)})
}

func (l *LogData) AddUnsignedIntegers(v []uint32) {
	l.items = append(l.items, item{tag: TagUnsignedIntegers, uints: append([]uint32(nil), v...)})
}

func (l *LogData) at(i int, tag Tag) (*item, error) {
	if i < 0 || i >= len(l.items) {
		return nil, dberror.LogItemCorrupted("%s record has %d items, index %d requested",
			l.subCategory, len(l.items), i)
	}
	if l.items[i].tag != tag {
		return nil, dberror.LogItemCorrupted("%s record item %d is %s, expected %s",
			l.subCategory, i, l.items[i].tag, tag)
	}
	return &l.items[i], nil
}

func (l *LogData) String(i int) (string, error) {
	it, err := l.at(i, TagString)
	if err != nil {
		return "", err
	}
	return it.str, nil
}

func (l *LogData) ID(i int) (primitives.ObjectID, error) {
	it, err := l.at(i, TagID)
	if err != nil {
		return primitives.InvalidObjectID, err
	}
	return it.id, nil
}

// Strings returns a copy of the string array at index i.
func (l *LogData) Strings(i int) ([]string, error) {
	it, err := l.at(i, TagStrings)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), it.strs...), nil
}

func (l *LogData) Integer(i int) (int32, error) {
	it, err := l.at(i, TagInteger)
	if err != nil {
		return 0, err
	}
	return it.num, nil
}

func (l *LogData) IDs(i int) ([]primitives.ObjectID, error) {
	it, err := l.at(i, TagIDs)
	if err != nil {
		return nil, err
	}
	return append([]primitives.ObjectID(nil), it.ids...), nil
}

func (l *LogData) UnsignedIntegers(i int) ([]uint32, error) {
	it, err := l.at(i, TagUnsignedIntegers)
	if err != nil {
		return nil, err
	}
	return append([]uint32(nil), it.uints...), nil
}
