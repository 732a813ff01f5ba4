package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/dberror"
)

func TestRWLock_Compatibility(t *testing.T) {
	var l RWLock

	l.Lock(Read)
	assert.True(t, l.TryLock(Read), "readers are compatible")
	assert.False(t, l.TryLock(Write), "writer excluded by readers")
	l.Unlock(Read)
	l.Unlock(Read)

	l.Lock(Write)
	assert.False(t, l.TryLock(Read))
	assert.False(t, l.TryLock(Write))
	l.Unlock(Write)

	assert.True(t, l.TryLock(Write))
	l.Unlock(Write)
}

func TestRWLock_BadMode(t *testing.T) {
	var l RWLock

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, dberror.Is(err, dberror.CodeBadArgument))
	}()
	l.Lock(Mode(9))
}

func TestAuto_DefaultsToRead(t *testing.T) {
	var l RWLock

	a := NewAuto(&l)
	assert.Equal(t, Read, a.Mode())
	assert.True(t, l.TryLock(Read))
	l.Unlock(Read)

	a.Unlock()
	a.Unlock()
	assert.True(t, l.TryLock(Write))
	l.Unlock(Write)
}

func TestAuto_Convert(t *testing.T) {
	var l RWLock

	a := NewAuto(&l, Read)
	a.Convert(Write)
	assert.Equal(t, Write, a.Mode())
	assert.False(t, l.TryLock(Read))

	a.Convert(Write)
	a.Unlock()
	assert.True(t, l.TryLock(Read))
	l.Unlock(Read)
}

func TestTryAuto(t *testing.T) {
	var l RWLock

	held := NewAuto(&l, Write)
	a, ok := TryAuto(&l, Read)
	assert.False(t, ok)
	assert.Nil(t, a)
	held.Unlock()

	a, ok = TryAuto(&l, Read)
	require.True(t, ok)
	a.Unlock()
}

// Convert opens a window in which a writer can slip in; the check-twice
// pattern must observe the writer's update.
func TestAuto_ConvertWindowRequiresRecheck(t *testing.T) {
	var l RWLock
	var value atomic.Int32

	a := NewAuto(&l, Read)
	seen := value.Load()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := NewAuto(&l, Write)
		defer w.Unlock()
		value.Store(42)
	}()

	// Give the writer time to queue behind the reader.
	time.Sleep(20 * time.Millisecond)
	a.Convert(Write)
	recheck := value.Load()
	a.Unlock()
	wg.Wait()

	assert.Equal(t, int32(0), seen)
	assert.Equal(t, int32(42), recheck)
}

func TestRWLock_ConcurrentWriters(t *testing.T) {
	var l RWLock
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := NewAuto(&l, Write)
			defer a.Unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}
