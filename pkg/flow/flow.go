// Package flow provides structural analysis over a built graph model: which
// nodes are reachable from the epoch flow, which are orphaned, and whether
// decision branches form cycles.
package flow

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/trialviz/soa-analyzer/pkg/model"
)

// Index is a directed gonum graph built over a graph model's nodes and
// edges, with id mapping in both directions.
type Index struct {
	graph  *simple.DirectedGraph
	ids    map[string]int64
	byID   map[int64]string
	nextID int64
}

// NewIndex builds the flow index from a graph model.
func NewIndex(m *model.GraphModel) *Index {
	idx := &Index{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[string]int64),
		byID:  make(map[int64]string),
	}

	for _, n := range m.Nodes {
		idx.add(n.Data.ID)
	}
	for _, e := range m.Edges {
		from, okFrom := idx.ids[e.Source]
		to, okTo := idx.ids[e.Target]
		if !okFrom || !okTo || from == to {
			continue
		}
		if !idx.graph.HasEdgeFromTo(from, to) {
			idx.graph.SetEdge(idx.graph.NewEdge(idx.graph.Node(from), idx.graph.Node(to)))
		}
	}
	return idx
}

func (idx *Index) add(id string) {
	if _, exists := idx.ids[id]; exists {
		return
	}
	idx.ids[id] = idx.nextID
	idx.byID[idx.nextID] = id
	idx.graph.AddNode(simple.Node(idx.nextID))
	idx.nextID++
}

// Reachable returns the ids of all nodes reachable from the given node,
// excluding the node itself, sorted for deterministic output.
func (idx *Index) Reachable(fromID string) []string {
	start, ok := idx.ids[fromID]
	if !ok {
		return nil
	}

	visited := map[int64]bool{start: true}
	queue := []int64{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		it := idx.graph.From(cur)
		for it.Next() {
			next := it.Node().ID()
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, idx.byID[next])
			queue = append(queue, next)
		}
	}
	sort.Strings(out)
	return out
}

// Orphans returns the ids of nodes with no incident edges, sorted.
func (idx *Index) Orphans() []string {
	var out []string
	for id, gid := range idx.ids {
		if idx.graph.From(gid).Len() == 0 && idx.graph.To(gid).Len() == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Cycles returns all strongly connected components with more than one node,
// each sorted internally. A non-empty result means decision branches (or
// malformed sequence data) loop back on themselves.
func (idx *Index) Cycles() [][]string {
	var cycles [][]string
	for _, scc := range topo.TarjanSCC(idx.graph) {
		if len(scc) < 2 {
			continue
		}
		ids := make([]string, 0, len(scc))
		for _, n := range scc {
			ids = append(ids, idx.byID[n.ID()])
		}
		sort.Strings(ids)
		cycles = append(cycles, ids)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// Report summarizes the flow analysis for the CLI and the web API.
type Report struct {
	NodeCount   int        `json:"nodeCount"`
	EdgeCount   int        `json:"edgeCount"`
	Orphans     []string   `json:"orphans,omitempty"`
	Cycles      [][]string `json:"cycles,omitempty"`
	Unreachable []string   `json:"unreachable,omitempty"`
}

// Analyze builds the index and produces the summary report. Unreachable
// nodes are those not reachable from any source node (in-degree zero), which
// only happens when edges loop back on themselves.
func Analyze(m *model.GraphModel) Report {
	idx := NewIndex(m)
	r := Report{
		NodeCount: len(m.Nodes),
		EdgeCount: len(m.Edges),
		Orphans:   idx.Orphans(),
		Cycles:    idx.Cycles(),
	}

	reachable := make(map[string]bool)
	for _, n := range m.Nodes {
		gid := idx.ids[n.Data.ID]
		if idx.graph.To(gid).Len() != 0 {
			continue
		}
		reachable[n.Data.ID] = true
		for _, id := range idx.Reachable(n.Data.ID) {
			reachable[id] = true
		}
	}
	for _, n := range m.Nodes {
		if !reachable[n.Data.ID] {
			r.Unreachable = append(r.Unreachable, n.Data.ID)
		}
	}
	sort.Strings(r.Unreachable)
	return r
}
