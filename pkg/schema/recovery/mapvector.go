package recovery

// mapVector keeps one value per database name. Lookups move the hit to the
// front since recovery tends to work on one database at a time.
type mapVector[V any] struct {
	entries []*namedEntry[V]
}

type namedEntry[V any] struct {
	name  string
	value V
}

// find returns the value for name. When missing and create is set, a new
// value from newFn is inserted at the front; created reports that case.
func (mv *mapVector[V]) find(name string, create bool, newFn func() V) (v *V, created bool) {
	for i, e := range mv.entries {
		if e.name == name {
			if i != 0 {
				mv.entries[0], mv.entries[i] = mv.entries[i], mv.entries[0]
			}
			return &e.value, false
		}
	}
	if !create {
		return nil, false
	}
	e := &namedEntry[V]{name: name, value: newFn()}
	mv.entries = append([]*namedEntry[V]{e}, mv.entries...)
	return &e.value, true
}

func (mv *mapVector[V]) erase(name string) {
	for i, e := range mv.entries {
		if e.name == name {
			mv.entries = append(mv.entries[:i], mv.entries[i+1:]...)
			break
		}
	}
	if len(mv.entries) == 0 {
		mv.entries = nil
	}
}

func (mv *mapVector[V]) len() int {
	return len(mv.entries)
}

func (mv *mapVector[V]) reset() {
	mv.entries = nil
}

// idMapVector is a mapVector of per-object maps with the set-if-absent and
// erase-with-GC helpers shared by every undo map.
type idMapVector[K comparable, V any] struct {
	mapVector[map[K]V]
}

func newMap[K comparable, V any]() map[K]V {
	return make(map[K]V)
}

// setIfAbsent records v for key unless a value is already registered. The
// first registration during the backward scan is the final value.
func (mv *idMapVector[K, V]) setIfAbsent(name string, key K, v V) bool {
	m, _ := mv.find(name, true, newMap[K, V])
	if _, ok := (*m)[key]; ok {
		return false
	}
	(*m)[key] = v
	return true
}

func (mv *idMapVector[K, V]) get(name string, key K) (V, bool) {
	m, _ := mv.find(name, false, nil)
	if m == nil {
		var zero V
		return zero, false
	}
	v, ok := (*m)[key]
	return v, ok
}

func (mv *idMapVector[K, V]) remove(name string, key K) {
	m, _ := mv.find(name, false, nil)
	if m == nil {
		return
	}
	delete(*m, key)
	if len(*m) == 0 {
		mv.erase(name)
	}
}
