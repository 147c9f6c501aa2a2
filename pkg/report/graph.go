// Package report turns the outcome of a mark run into queries and
// renderable summaries: why a symbol was kept, which classes reference each
// other in cycles, and which classes the closure leans on the most.
package report

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/relocate/pkg/mark"
	"github.com/panbanda/relocate/pkg/reference"
)

// ErrNotReached is returned by WhyKept for a reference the run never queued.
var ErrNotReached = errors.New("symbol was not reached from the roots")

// source is the virtual node linked to every root. Symbol ids are shifted
// by one so they never collide with it.
const source int64 = 0

func node(id uint32) int64 { return int64(id) + 1 }

// Graph is the reference graph recorded by a traced mark run.
type Graph struct {
	trace *mark.Trace
	g     *simple.DirectedGraph

	once sync.Once
	tree path.Shortest

	classOnce sync.Once
	classes   *classGraph
}

// Build converts a trace into a graph. A nil trace yields an empty graph.
func Build(t *mark.Trace) *Graph {
	g := &Graph{trace: t, g: simple.NewDirectedGraph()}
	g.g.AddNode(simple.Node(source))
	if t == nil {
		return g
	}
	for _, id := range t.Roots() {
		g.g.SetEdge(simple.Edge{F: simple.Node(source), T: simple.Node(node(id))})
	}
	// simple graphs reject self loops; they never lie on a shortest path
	for _, e := range t.Edges() {
		if e.From == e.To {
			continue
		}
		g.g.SetEdge(simple.Edge{F: simple.Node(node(e.From)), T: simple.Node(node(e.To))})
	}
	return g
}

// Nodes returns the number of symbols in the graph.
func (g *Graph) Nodes() int { return g.g.Nodes().Len() - 1 }

// Edges returns the number of recorded edges, root links included.
func (g *Graph) Edges() int { return g.g.Edges().Len() }

// WhyKept returns a shortest chain of references from a root to r, root
// first and r last. When several chains are equally short any one of them
// may be returned.
func (g *Graph) WhyKept(r reference.Reference) ([]reference.Reference, error) {
	if g.trace == nil {
		return nil, ErrNotReached
	}
	id, ok := g.trace.Lookup(r)
	if !ok || g.g.Node(node(id)) == nil {
		return nil, ErrNotReached
	}
	g.once.Do(func() {
		g.tree = path.DijkstraFrom(simple.Node(source), g.g)
	})
	nodes, _ := g.tree.To(node(id))
	if len(nodes) < 2 {
		return nil, ErrNotReached
	}
	chain := make([]reference.Reference, 0, len(nodes)-1)
	for _, n := range nodes[1:] {
		chain = append(chain, g.trace.Ref(uint32(n.ID()-1)))
	}
	return chain, nil
}

// classGraph collapses the symbol graph onto owning classes.
type classGraph struct {
	g     *simple.DirectedGraph
	names []string
}

func (g *Graph) classGraph() *classGraph {
	g.classOnce.Do(func() {
		g.classes = collapse(g.trace)
	})
	return g.classes
}

func collapse(t *mark.Trace) *classGraph {
	cg := &classGraph{g: simple.NewDirectedGraph()}
	if t == nil {
		return cg
	}
	edges := t.Edges()
	owner := func(id uint32) string { return t.Ref(id).Class().Name }

	seen := make(map[string]struct{})
	for _, e := range edges {
		seen[owner(e.From)] = struct{}{}
		seen[owner(e.To)] = struct{}{}
	}
	for name := range seen {
		if strings.HasPrefix(name, "[") {
			continue
		}
		cg.names = append(cg.names, name)
	}
	sort.Strings(cg.names)

	ids := make(map[string]int64, len(cg.names))
	for i, name := range cg.names {
		ids[name] = int64(i)
		cg.g.AddNode(simple.Node(i))
	}
	for _, e := range edges {
		from, fok := ids[owner(e.From)]
		to, tok := ids[owner(e.To)]
		if fok && tok && from != to {
			cg.g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}
	return cg
}

// ClassCycles returns the strongly connected groups of classes that
// reference each other. Each group is sorted, and groups are ordered by
// their first class name.
func (g *Graph) ClassCycles() [][]string {
	cg := g.classGraph()
	var cycles [][]string
	for _, scc := range topo.TarjanSCC(cg.g) {
		if len(scc) < 2 {
			continue
		}
		names := make([]string, len(scc))
		for i, n := range scc {
			names[i] = cg.names[n.ID()]
		}
		sort.Strings(names)
		cycles = append(cycles, names)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// Rank is a class with its PageRank score in the class graph.
type Rank struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	In    int     `json:"in"`
}

// Hubs returns the n classes with the highest PageRank, ties broken by
// name. n <= 0 returns every class.
func (g *Graph) Hubs(n int) []Rank {
	cg := g.classGraph()
	if len(cg.names) == 0 {
		return nil
	}
	scores := network.PageRankSparse(cg.g, 0.85, 1e-6)
	ranks := make([]Rank, len(cg.names))
	for i, name := range cg.names {
		ranks[i] = Rank{Class: name, Score: scores[int64(i)], In: inDegree(cg.g, int64(i))}
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return ranks[i].Class < ranks[j].Class
	})
	if n > 0 && n < len(ranks) {
		ranks = ranks[:n]
	}
	return ranks
}

func inDegree(g graph.Directed, id int64) int {
	return g.To(id).Len()
}
