package symtab

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/relocate/pkg/reference"
)

func TestTable_Intern(t *testing.T) {
	tab := NewTable()

	a := tab.Intern(reference.Class("a/B"))
	b := tab.Intern(reference.Method("a/B", "m", "()V"))
	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)
	assert.Equal(t, a, tab.Intern(reference.Class("a/B")))

	// same text, different kinds
	typeless := tab.Intern(reference.TypelessMethod("a/B", "x"))
	field := tab.Intern(reference.PartialField("a/B", "x"))
	assert.NotEqual(t, typeless, field)

	assert.Equal(t, reference.Reference(reference.Class("a/B")), tab.Ref(a))
	assert.Equal(t, 4, tab.Len())

	_, ok := tab.Lookup(reference.Class("z/Z"))
	assert.False(t, ok)
}

func TestTable_ConcurrentInternIsDense(t *testing.T) {
	tab := NewTable()
	const n = 500

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				tab.Intern(reference.Class(fmt.Sprintf("p/C%d", i)))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, n, tab.Len())
	seen := make(map[uint32]bool)
	for i := 0; i < n; i++ {
		id, ok := tab.Lookup(reference.Class(fmt.Sprintf("p/C%d", i)))
		require.True(t, ok)
		assert.Less(t, id, uint32(n))
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestQueued_TryQueueOnce(t *testing.T) {
	q := NewQueued(NewTable())
	ref := reference.Field("a/B", "f", "I")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, first := q.TryQueue(ref); first {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.set.bitmap.Contains(0))
}

func TestBitSet(t *testing.T) {
	b := NewBitSet()
	assert.True(t, b.Add(7))
	assert.False(t, b.Add(7))
	assert.True(t, b.bitmap.Contains(7))
	assert.False(t, b.bitmap.Contains(8))
	assert.Equal(t, uint64(1), b.Len())
}
