package mark

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/relocate/internal/symtab"
	"github.com/panbanda/relocate/pkg/reference"
)

// Edge is a directed step of the walk: From caused To to be queued, or From
// resolved to the symbol To.
type Edge struct {
	From, To uint32
}

// Trace is the reference graph recorded by a traced run. Ids come from the
// engine's symbol table.
type Trace struct {
	table *symtab.Table

	mu    sync.Mutex
	roots *roaring.Bitmap
	edges map[Edge]struct{}
}

func newTrace(table *symtab.Table) *Trace {
	return &Trace{table: table, roots: roaring.New(), edges: make(map[Edge]struct{})}
}

func (t *Trace) addRoot(id uint32) {
	t.mu.Lock()
	t.roots.Add(id)
	t.mu.Unlock()
}

func (t *Trace) addEdge(from, to uint32) {
	t.mu.Lock()
	t.edges[Edge{From: from, To: to}] = struct{}{}
	t.mu.Unlock()
}

// Roots returns the ids of the seeded references.
func (t *Trace) Roots() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roots.ToArray()
}

// Edges returns every recorded edge ordered by (From, To).
func (t *Trace) Edges() []Edge {
	t.mu.Lock()
	out := make([]Edge, 0, len(t.edges))
	for e := range t.edges {
		out = append(out, e)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Ref returns the reference behind id.
func (t *Trace) Ref(id uint32) reference.Reference { return t.table.Ref(id) }

// Lookup returns the id of r if the run saw it.
func (t *Trace) Lookup(r reference.Reference) (uint32, bool) { return t.table.Lookup(r) }

// Len returns the number of ids in the table.
func (t *Trace) Len() int { return t.table.Len() }
