package main

import (
	"fmt"
	"strconv"
	"strings"

	"schemacore/pkg/log/logdata"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema"
)

// view is one table of the catalog ready to be rendered.
type view struct {
	title   string
	headers []string
	rows    [][]string
}

type viewKind int

const (
	viewDatabases viewKind = iota
	viewAreas
	viewPrivileges
	viewContents
	viewLog
)

var viewTitles = [...]string{
	viewDatabases:  "Databases",
	viewAreas:      "Areas",
	viewPrivileges: "Privileges",
	viewContents:   "Area contents",
	viewLog:        "Logical log",
}

func (k viewKind) String() string { return viewTitles[k] }

// databases returns the databases to show: all of them, or only the one
// with ID filter when filter is valid.
func databases(m *schema.Manager, filter primitives.ObjectID) ([]*schema.Database, error) {
	dbs, err := m.NoVersion().Databases(nil)
	if err != nil {
		return nil, err
	}
	if !filter.IsValid() {
		return dbs, nil
	}
	for _, db := range dbs {
		if db.ID() == filter {
			return []*schema.Database{db}, nil
		}
	}
	return nil, fmt.Errorf("database %s not found", idString(filter))
}

func idString(id primitives.ObjectID) string {
	if id == primitives.InvalidObjectID {
		return "-"
	}
	return strconv.FormatUint(uint64(id), 10)
}

func databaseView(m *schema.Manager) (view, error) {
	v := view{title: viewDatabases.String(), headers: []string{"ID", "NAME", "PATHS", "SEQUENCE", "STATUS", "AVAILABLE"}}
	dbs, err := databases(m, primitives.InvalidObjectID)
	if err != nil {
		return v, err
	}
	for _, db := range dbs {
		v.rows = append(v.rows, []string{
			idString(db.ID()),
			db.Name(),
			strings.Join(db.Paths(), ", "),
			idString(db.Sequence()),
			db.Status().String(),
			strconv.FormatBool(db.IsAvailable()),
		})
	}
	return v, nil
}

func areaView(m *schema.Manager, filter primitives.ObjectID) (view, error) {
	v := view{title: viewAreas.String(), headers: []string{"DATABASE", "ID", "NAME", "PATHS", "STATUS"}}
	dbs, err := databases(m, filter)
	if err != nil {
		return v, err
	}
	for _, db := range dbs {
		areas, err := db.Areas(nil)
		if err != nil {
			return v, err
		}
		for _, a := range areas {
			v.rows = append(v.rows, []string{
				db.Name(),
				idString(a.ID()),
				a.Name(),
				strings.Join(a.Path(), ", "),
				a.Status().String(),
			})
		}
	}
	return v, nil
}

func privilegeView(m *schema.Manager, filter primitives.ObjectID) (view, error) {
	v := view{title: viewPrivileges.String(), headers: []string{"DATABASE", "ID", "USER", "SYSTEM", "DATABASE OPS", "DATA", "REFERENCE"}}
	dbs, err := databases(m, filter)
	if err != nil {
		return v, err
	}
	for _, db := range dbs {
		privs, err := db.Privileges(nil)
		if err != nil {
			return v, err
		}
		for _, p := range privs {
			row := []string{db.Name(), idString(p.ID()), strconv.Itoa(int(p.UserID()))}
			value := p.Value()
			for i := 0; i < schema.PrivilegeCategoryCount; i++ {
				var bits uint32
				if i < len(value) {
					bits = value[i]
				}
				row = append(row, fmt.Sprintf("%08x", bits))
			}
			v.rows = append(v.rows, row)
		}
	}
	return v, nil
}

func contentView(m *schema.Manager, filter primitives.ObjectID) (view, error) {
	v := view{title: viewContents.String(), headers: []string{"DATABASE", "AREA", "ID", "OBJECT", "ROLE", "DIRECTORY"}}
	dbs, err := databases(m, filter)
	if err != nil {
		return v, err
	}
	for _, db := range dbs {
		areas, err := db.Areas(nil)
		if err != nil {
			return v, err
		}
		for _, a := range areas {
			contents, err := a.LoadContent(nil, false)
			if err != nil {
				return v, err
			}
			for _, c := range contents {
				v.rows = append(v.rows, []string{
					db.Name(),
					a.Name(),
					idString(c.ID()),
					fmt.Sprintf("%s %d", c.ObjectCategory(), uint32(c.ObjectID())),
					c.AreaCategory().String(),
					schema.ObjectDirName(c),
				})
			}
		}
	}
	return v, nil
}

func logView(records []schema.Record) view {
	v := view{title: viewLog.String(), headers: []string{"#", "RECORD", "DATABASE", "ITEMS"}}
	for i, r := range records {
		v.rows = append(v.rows, []string{
			strconv.Itoa(i + 1),
			r.Data.SubCategory().String(),
			r.Data.DatabaseName,
			formatItems(r.Data),
		})
	}
	return v
}

// formatItems prints every item of a record by its tag.
func formatItems(l *logdata.LogData) string {
	parts := make([]string, 0, l.Count())
	for i := 0; i < l.Count(); i++ {
		var s string
		switch l.TagAt(i) {
		case logdata.TagString:
			v, _ := l.String(i)
			s = strconv.Quote(v)
		case logdata.TagID:
			v, _ := l.ID(i)
			s = "#" + idString(v)
		case logdata.TagStrings:
			v, _ := l.Strings(i)
			s = "[" + strings.Join(v, " ") + "]"
		case logdata.TagInteger:
			v, _ := l.Integer(i)
			s = strconv.Itoa(int(v))
		case logdata.TagIDs:
			v, _ := l.IDs(i)
			ids := make([]string, len(v))
			for j, id := range v {
				ids[j] = idString(id)
			}
			s = "{" + strings.Join(ids, " ") + "}"
		case logdata.TagUnsignedIntegers:
			v, _ := l.UnsignedIntegers(i)
			bits := make([]string, len(v))
			for j, b := range v {
				bits[j] = fmt.Sprintf("%x", b)
			}
			s = "<" + strings.Join(bits, " ") + ">"
		default:
			s = "?"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
