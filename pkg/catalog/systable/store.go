package systable

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"

	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema/meta"
)

const (
	keyPrefix = 'S'
	keySize   = 1 + 4 + 1 + 4

	// DefaultCacheSize is the number of decoded rows kept in memory.
	DefaultCacheSize = 4096
)

// Store is the persistent catalog.
type Store struct {
	db    *pebble.DB
	cache *lru.Cache[string, meta.Row]
	mu    sync.Mutex // serializes Apply against cache invalidation
}

// Open opens (or creates) the catalog store in dir.
func Open(dir string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog store %s", dir)
	}

	cache, err := lru.New[string, meta.Row](cacheSize)
	if err != nil {
		return nil, errors.CombineErrors(errors.Wrap(err, "create row cache"), db.Close())
	}

	logging.WithComponent("systable").Debug("catalog store opened", "dir", dir, "cache_size", cacheSize)
	return &Store{db: db, cache: cache}, nil
}

// Key builds the row key of one object.
func Key(database primitives.ObjectID, table Table, id primitives.ObjectID) []byte {
	k := make([]byte, keySize)
	k[0] = keyPrefix
	binary.BigEndian.PutUint32(k[1:], uint32(database))
	k[5] = byte(table)
	binary.BigEndian.PutUint32(k[6:], uint32(id))
	return k
}

// ParseKey is the inverse of Key.
func ParseKey(k []byte) (database primitives.ObjectID, table Table, id primitives.ObjectID, ok bool) {
	if len(k) != keySize || k[0] != keyPrefix {
		return 0, 0, 0, false
	}
	return primitives.ObjectID(binary.BigEndian.Uint32(k[1:])),
		Table(k[5]),
		primitives.ObjectID(binary.BigEndian.Uint32(k[6:])),
		true
}

func tableBounds(database primitives.ObjectID, table Table) (lower, upper []byte) {
	lower = Key(database, table, 0)
	upper = make([]byte, 6)
	copy(upper, lower[:6])
	upper[5]++
	return lower, upper
}

// Put writes one row.
func (s *Store) Put(database primitives.ObjectID, table Table, id primitives.ObjectID, row meta.Row) error {
	b := s.NewBatch()
	b.Put(database, table, id, row)
	return s.Apply(b)
}

// Delete removes one row. Deleting a missing row is not an error.
func (s *Store) Delete(database primitives.ObjectID, table Table, id primitives.ObjectID) error {
	b := s.NewBatch()
	b.Delete(database, table, id)
	return s.Apply(b)
}

// Get reads one row; ok is false when the row does not exist.
func (s *Store) Get(database primitives.ObjectID, table Table, id primitives.ObjectID) (meta.Row, bool, error) {
	key := Key(database, table, id)
	if row, ok := s.cache.Get(string(key)); ok {
		return row, true, nil
	}

	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read %s row %d", table, id)
	}
	defer closer.Close()

	row, err := meta.DecodeRow(val)
	if err != nil {
		return nil, false, err
	}
	s.cache.Add(string(key), row)
	return row, true, nil
}

// Scan calls fn for every row of one table of one database in ID order.
// Iteration stops at the first error fn returns.
func (s *Store) Scan(database primitives.ObjectID, table Table, fn func(id primitives.ObjectID, row meta.Row) error) error {
	lower, upper := tableBounds(database, table)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errors.Wrapf(err, "scan %s rows", table)
	}
	defer it.Close()

	for valid := it.First(); valid; valid = it.Next() {
		_, _, id, ok := ParseKey(it.Key())
		if !ok {
			continue
		}
		row, err := meta.DecodeRow(it.Value())
		if err != nil {
			return err
		}
		if err := fn(id, row); err != nil {
			return err
		}
	}
	return errors.Wrap(it.Error(), "iterate catalog rows")
}

// Count returns the number of rows of one table of one database.
func (s *Store) Count(database primitives.ObjectID, table Table) (int, error) {
	n := 0
	err := s.Scan(database, table, func(primitives.ObjectID, meta.Row) error {
		n++
		return nil
	})
	return n, err
}

// DropDatabase removes every row of one database.
func (s *Store) DropDatabase(database primitives.ObjectID) error {
	b := s.NewBatch()
	for _, t := range []Table{TableArea, TableAreaContent, TablePrivilege} {
		err := s.Scan(database, t, func(id primitives.ObjectID, _ meta.Row) error {
			b.Delete(database, t, id)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return s.Apply(b)
}

// Close closes the store.
func (s *Store) Close() error {
	s.cache.Purge()
	return errors.Wrap(s.db.Close(), "close catalog store")
}

// Batch collects row writes applied atomically by Store.Apply.
type Batch struct {
	b    *pebble.Batch
	keys []string
}

func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Put stages one row.
func (b *Batch) Put(database primitives.ObjectID, table Table, id primitives.ObjectID, row meta.Row) {
	key := Key(database, table, id)
	_ = b.b.Set(key, meta.EncodeRow(row), nil)
	b.keys = append(b.keys, string(key))
}

// Delete stages the removal of one row.
func (b *Batch) Delete(database primitives.ObjectID, table Table, id primitives.ObjectID) {
	key := Key(database, table, id)
	_ = b.b.Delete(key, nil)
	b.keys = append(b.keys, string(key))
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.keys)
}

// Apply commits b durably and drops the touched rows from the cache.
func (s *Store) Apply(b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer b.b.Close()

	if len(b.keys) == 0 {
		return nil
	}
	if err := s.db.Apply(b.b, pebble.Sync); err != nil {
		return errors.Wrap(err, "apply catalog batch")
	}
	for _, k := range b.keys {
		s.cache.Remove(k)
	}
	return nil
}
