package schema

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"schemacore/pkg/catalog/systable"
)

// Config carries the settings of a Manager.
type Config struct {
	// Dir holds the catalog store and the logical log.
	Dir string

	// DefaultAreaPath is the base of relative area paths.
	DefaultAreaPath string

	// CanceledWhenDuplicated makes a duplicate CREATE a silent no-op
	// instead of an AlreadyDefined error. Redo relies on it.
	CanceledWhenDuplicated bool

	// ObjectCacheSize is the number of cached objects above which
	// delayed caches are abandoned.
	ObjectCacheSize int64

	// MaxPathLength only produces a warning when exceeded.
	MaxPathLength int

	// SuperUser may not be the grantee of GRANT or REVOKE.
	SuperUser string
	Users     map[string]int32

	StoreCacheSize      int
	LogBufferSize       int
	RecoveryParallelism int

	// Registerer receives the catalog metrics. A private registry is used
	// when nil.
	Registerer prometheus.Registerer

	// Mover moves the files of area contents. DirMover when nil.
	Mover ContentMover
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:                 dir,
		ObjectCacheSize:     math.MaxInt64,
		MaxPathLength:       100,
		SuperUser:           "root",
		Users:               map[string]int32{"root": 0},
		StoreCacheSize:      systable.DefaultCacheSize,
		LogBufferSize:       64 * 1024,
		RecoveryParallelism: 4,
	}
}
