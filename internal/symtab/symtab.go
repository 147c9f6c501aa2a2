// Package symtab interns references to dense ids and tracks which ids have
// been queued for resolution.
package symtab

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/panbanda/relocate/pkg/reference"
)

const shardCount = 64

type shard struct {
	mu  sync.RWMutex
	ids map[reference.Reference]uint32
}

// Table assigns each distinct reference a stable uint32 id, starting at 0.
// It is safe for concurrent use.
type Table struct {
	shards [shardCount]shard

	mu   sync.RWMutex
	refs []reference.Reference
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].ids = make(map[reference.Reference]uint32)
	}
	return t
}

func (t *Table) shardFor(r reference.Reference) *shard {
	h := xxhash.New()
	_, _ = h.WriteString(r.Kind().String())
	_, _ = h.WriteString(r.String())
	return &t.shards[h.Sum64()%shardCount]
}

// Intern returns the id of r, assigning the next free id on first sight.
func (t *Table) Intern(r reference.Reference) uint32 {
	s := t.shardFor(r)
	s.mu.RLock()
	id, ok := s.ids[r]
	s.mu.RUnlock()
	if ok {
		return id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[r]; ok {
		return id
	}
	t.mu.Lock()
	id = uint32(len(t.refs))
	t.refs = append(t.refs, r)
	t.mu.Unlock()
	s.ids[r] = id
	return id
}

// Lookup returns the id of r if it was interned.
func (t *Table) Lookup(r reference.Reference) (uint32, bool) {
	s := t.shardFor(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[r]
	return id, ok
}

// Ref returns the reference with the id. It panics for unknown ids.
func (t *Table) Ref(id uint32) reference.Reference {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refs[id]
}

// Len returns the number of interned references.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.refs)
}

// BitSet is a concurrent set of ids backed by a roaring bitmap.
type BitSet struct {
	mu     sync.RWMutex
	bitmap *roaring.Bitmap
}

// NewBitSet returns an empty set.
func NewBitSet() *BitSet {
	return &BitSet{bitmap: roaring.New()}
}

// Add inserts id and reports whether it was absent.
func (b *BitSet) Add(id uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitmap.CheckedAdd(id)
}

// Len returns the number of ids in the set.
func (b *BitSet) Len() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.GetCardinality()
}

// Queued pairs a Table with a BitSet to give each reference a single
// transition from unseen to queued.
type Queued struct {
	table *Table
	set   *BitSet
}

// NewQueued returns an empty queued set over table.
func NewQueued(table *Table) *Queued {
	return &Queued{table: table, set: NewBitSet()}
}

// TryQueue interns r and reports whether this call queued it.
func (q *Queued) TryQueue(r reference.Reference) (uint32, bool) {
	id := q.table.Intern(r)
	return id, q.set.Add(id)
}

// Len returns how many references have been queued.
func (q *Queued) Len() int { return int(q.set.Len()) }

