// Package systable persists catalog objects as system table rows in a
// pebble key-value store.
//
// # Architecture
//
// Every system table is modelled the same way:
//
//  1. A [Descriptor] holds the compile-time knowledge about the table: its
//     name, its [Table] tag, and the ordered meta definitions that convert a
//     domain object to and from a [meta.Row]. Descriptors are pure,
//     goroutine-safe package-level variables declared next to the object
//     class they describe.
//
//  2. A [Store] owns the pebble database and a decoded-row LRU cache.
//     Rows are keyed by database, table and object ID so that all rows of
//     one table of one database are contiguous and can be scanned in ID
//     order.
//
// # Key layout
//
//	'S' | databaseID:4 | table:1 | objectID:4     (big endian)
//
// Rows of the pseudo database [primitives.SystemTableID] hold the Database
// table itself.
//
// # System Tables
//
//	Database     ID | Name | Path[] | Scope
//	Area         FileOID | ID | Name | Path[] | Timestamp
//	AreaContent  FileOID | ID | AreaID | ObjectID | ObjectCategory | AreaCategory | Timestamp
//	Privilege    FileOID | ID | UserID | Value[] | ObjectType | ObjectID[] | Timestamp
//
// Writes that belong to one persist step go through a [Batch] so that the
// rows of a transaction become visible atomically.
package systable
