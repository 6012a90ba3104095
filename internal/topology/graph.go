// Package topology implements the Topology Graph: an immutable, in-memory
// galaxy adjacency built once at startup from the Catalog DB. It is the
// leaf dependency of the pipeline — signals, the interest map, and the
// prefetch gate all consult it, but it consults nothing.
//
// The graph itself is a gonum simple.UndirectedGraph (the same library the
// rest of the retrieved corpus uses for dependency/critical-path analysis);
// BFS distance and the tie-broken shortest path are hand-rolled against
// gonum's graph.Graph interface because gonum ships Dijkstra/A* but not the
// deterministic tie-break rule this system needs.
package topology

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"killwatch/pkg/catalog"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// SecurityBand classifies a system's security status into the three bands
// operators reason about.
type SecurityBand string

const (
	BandHighSec SecurityBand = "highsec"
	BandLowSec  SecurityBand = "lowsec"
	BandNullSec SecurityBand = "nullsec"
)

// Band returns the security band for a raw security status value.
func Band(security float64) SecurityBand {
	switch {
	case security >= 0.5:
		return BandHighSec
	case security > 0.0:
		return BandLowSec
	default:
		return BandNullSec
	}
}

type node int64

func (n node) ID() int64 { return int64(n) }

// Graph is the frozen galaxy adjacency. It is safe for unsynchronized
// concurrent reads: nothing here is mutated after NewGraph returns.
type Graph struct {
	g *simple.UndirectedGraph

	attrs map[int64]catalog.SystemAttrs
	names map[string]int64 // lowercased name -> id

	byRegion map[int64]map[int64]struct{}

	border []int64
}

// NewGraph loads every system and link from db and freezes them into a
// Graph. A dangling edge (referencing an unknown system) is a corrupt-graph
// condition and is fatal, per the topology's failure semantics: the caller
// should treat a non-nil error as unrecoverable at startup.
func NewGraph(ctx context.Context, db catalog.DB) (*Graph, error) {
	systems, err := db.AllSystems(ctx)
	if err != nil {
		return nil, fmt.Errorf("topology: load systems: %w", err)
	}
	links, err := db.AllLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("topology: load links: %w", err)
	}

	gr := &Graph{
		g:        simple.NewUndirectedGraph(),
		attrs:    make(map[int64]catalog.SystemAttrs, len(systems)),
		names:    make(map[string]int64, len(systems)),
		byRegion: make(map[int64]map[int64]struct{}),
	}

	for _, sys := range systems {
		gr.g.AddNode(node(sys.SystemID))
		gr.attrs[sys.SystemID] = sys
		gr.names[strings.ToLower(sys.Name)] = sys.SystemID

		if gr.byRegion[sys.RegionID] == nil {
			gr.byRegion[sys.RegionID] = make(map[int64]struct{})
		}
		gr.byRegion[sys.RegionID][sys.SystemID] = struct{}{}
	}

	for _, link := range links {
		if _, ok := gr.attrs[link.A]; !ok {
			return nil, fmt.Errorf("topology: dangling edge references unknown system %d", link.A)
		}
		if _, ok := gr.attrs[link.B]; !ok {
			return nil, fmt.Errorf("topology: dangling edge references unknown system %d", link.B)
		}
		if link.A == link.B {
			continue
		}
		if gr.g.HasEdgeBetween(link.A, link.B) {
			continue
		}
		gr.g.SetEdge(gr.g.NewEdge(node(link.A), node(link.B)))
	}

	gr.border = gr.computeBorderSystems()

	return gr, nil
}

// Resolve performs a case-insensitive name -> id lookup. An unknown name is
// a soft error: ok is false, callers must surface it themselves.
func (gr *Graph) Resolve(name string) (int64, bool) {
	id, ok := gr.names[strings.ToLower(name)]
	return id, ok
}

// Attrs returns a system's static attributes.
func (gr *Graph) Attrs(id int64) (catalog.SystemAttrs, bool) {
	a, ok := gr.attrs[id]
	return a, ok
}

// RegionSystems returns every system id in the given region.
func (gr *Graph) RegionSystems(regionID int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(gr.byRegion[regionID]))
	for id := range gr.byRegion[regionID] {
		out[id] = struct{}{}
	}
	return out
}

// BorderSystems returns systems with a neighbor in a different security
// band or a different region, precomputed once at load.
func (gr *Graph) BorderSystems() []int64 {
	out := make([]int64, len(gr.border))
	copy(out, gr.border)
	return out
}

func (gr *Graph) computeBorderSystems() []int64 {
	var out []int64
	nodes := gr.g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		self := gr.attrs[id]
		selfBand := Band(self.Security)

		isBorder := false
		neighbors := gr.g.From(id)
		for neighbors.Next() {
			nb := gr.attrs[neighbors.Node().ID()]
			if Band(nb.Security) != selfBand || nb.RegionID != self.RegionID {
				isBorder = true
				break
			}
		}
		if isBorder {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Distances runs a bounded BFS from origin and returns every reachable
// system within maxHops, mapped to its hop count. origin itself maps to 0.
func (gr *Graph) Distances(origin int64, maxHops int) map[int64]int {
	dist := map[int64]int{origin: 0}
	if !gr.g.Has(origin) {
		return dist
	}

	frontier := []int64{origin}
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []int64
		for _, id := range frontier {
			it := gr.g.From(id)
			for it.Next() {
				nb := it.Node().ID()
				if _, seen := dist[nb]; seen {
					continue
				}
				dist[nb] = hop
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return dist
}

// Path returns the shortest path (inclusive of both endpoints) between a
// and b by hop count. Among equal-length shortest paths, ties are broken
// first by lower total summed system security, then by lexicographic
// concatenation of system names, both evaluated deterministically.
// A nil result means no path exists.
func (gr *Graph) Path(a, b int64) []int64 {
	if !gr.g.Has(a) || !gr.g.Has(b) {
		return nil
	}
	if a == b {
		return []int64{a}
	}

	distA := gr.bfsFull(a)
	distB := gr.bfsFull(b)

	d, ok := distA[b]
	if !ok {
		return nil
	}

	// best[v] holds the lowest-scoring path (by security sum, then by
	// lexicographic name sequence) from a to v among shortest-path-DAG
	// predecessors, built in increasing distance order.
	type candidate struct {
		secSum float64
		names  []string
		path   []int64
	}
	best := make(map[int64]candidate)
	best[a] = candidate{secSum: gr.attrs[a].Security, names: []string{gr.attrs[a].Name}, path: []int64{a}}

	order := make([]int64, 0, len(distA))
	for id, da := range distA {
		if db, ok := distB[id]; ok && da+db == d {
			order = append(order, id)
		}
	}
	sort.Slice(order, func(i, j int) bool { return distA[order[i]] < distA[order[j]] })

	for _, v := range order {
		if v == a {
			continue
		}
		dv := distA[v]
		var chosen candidate
		found := false

		it := gr.g.From(v)
		for it.Next() {
			u := it.Node().ID()
			cu, ok := best[u]
			if !ok || distA[u] != dv-1 {
				continue
			}
			cand := candidate{
				secSum: cu.secSum + gr.attrs[v].Security,
				names:  append(append([]string{}, cu.names...), gr.attrs[v].Name),
				path:   append(append([]int64{}, cu.path...), v),
			}
			if !found || betterCandidate(cand.secSum, cand.names, chosen.secSum, chosen.names) {
				chosen = cand
				found = true
			}
		}
		if found {
			best[v] = chosen
		}
	}

	result, ok := best[b]
	if !ok {
		return nil
	}
	return result.path
}

// betterCandidate reports whether (secA, namesA) sorts before (secB, namesB)
// under the tie-break rule: lower security sum wins, then lexicographic
// name-sequence comparison.
func betterCandidate(secA float64, namesA []string, secB float64, namesB []string) bool {
	if secA != secB {
		return secA < secB
	}
	return strings.Join(namesA, "\x00") < strings.Join(namesB, "\x00")
}

// bfsFull computes hop distance from origin to every reachable node, with
// no max-hops bound. Used internally by Path, which needs full reachability
// to identify the shortest-path DAG; Distances is the bounded public API.
func (gr *Graph) bfsFull(origin int64) map[int64]int {
	dist := map[int64]int{origin: 0}
	frontier := []int64{origin}
	for len(frontier) > 0 {
		var next []int64
		for _, id := range frontier {
			it := gr.g.From(id)
			for it.Next() {
				nb := it.Node().ID()
				if _, seen := dist[nb]; seen {
					continue
				}
				dist[nb] = dist[id] + 1
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return dist
}

// underlying exposes the raw gonum graph for tests that want to assert on
// structural properties (node/edge counts) without reaching into internals.
func (gr *Graph) underlying() graph.Graph { return gr.g }
