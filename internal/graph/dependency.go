// Package graph implements the comparison graph (spec §4.2): a directed
// winner/loser graph over candidate ids, closed transitively on every
// insert, owned for the lifetime of a single ranking call.
package graph

import "sync"

// Choice identifies which side of a recorded comparison won.
type Choice int

const (
	// None means no directed path connects the two candidates.
	None Choice = iota
	// A means the left-hand candidate of the query wins (directly or
	// transitively).
	A
	// B means the right-hand candidate of the query wins.
	B
)

// ComparisonGraph holds two adjacency maps, beats and loses_to, kept as
// exact inverses of one another: y ∈ beats[x] iff x ∈ losesTo[y].
type ComparisonGraph struct {
	mu      sync.RWMutex
	beats   map[string]map[string]struct{}
	losesTo map[string]map[string]struct{}
}

// New creates an empty ComparisonGraph.
func New() *ComparisonGraph {
	return &ComparisonGraph{
		beats:   make(map[string]map[string]struct{}),
		losesTo: make(map[string]map[string]struct{}),
	}
}

// Record inserts the edge winner -> loser and closes it transitively: every
// x that already beats winner is extended to beat loser, every y that
// loser already beats is extended to be beaten by winner, and every such x
// is extended to beat every such y. Because the stored edge sets are
// already closed, a single pass over the existing predecessors/successors
// is sufficient to converge (spec §4.2).
func (g *ComparisonGraph) Record(winner, loser string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.edge(winner, loser) {
		return
	}
	g.addEdge(winner, loser)

	predecessors := g.predecessorsOf(winner)
	successors := g.successorsOf(loser)

	for x := range predecessors {
		g.addEdge(x, loser)
	}
	for y := range successors {
		g.addEdge(winner, y)
	}
	for x := range predecessors {
		for y := range successors {
			g.addEdge(x, y)
		}
	}
}

// Infer reports whether a directed path already connects a and b: A if a
// beats b, B if b beats a, None otherwise.
func (g *ComparisonGraph) Infer(a, b string) Choice {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.edge(a, b) {
		return A
	}
	if g.edge(b, a) {
		return B
	}
	return None
}

// Reset clears both adjacency maps.
func (g *ComparisonGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.beats = make(map[string]map[string]struct{})
	g.losesTo = make(map[string]map[string]struct{})
}

// edge reports whether winner beats loser. Callers must hold g.mu.
func (g *ComparisonGraph) edge(winner, loser string) bool {
	set, ok := g.beats[winner]
	if !ok {
		return false
	}
	_, ok = set[loser]
	return ok
}

// addEdge records winner -> loser in both maps. Callers must hold g.mu
// (write lock).
func (g *ComparisonGraph) addEdge(winner, loser string) {
	if g.beats[winner] == nil {
		g.beats[winner] = make(map[string]struct{})
	}
	g.beats[winner][loser] = struct{}{}

	if g.losesTo[loser] == nil {
		g.losesTo[loser] = make(map[string]struct{})
	}
	g.losesTo[loser][winner] = struct{}{}
}

// predecessorsOf returns every x with x -> name (x beats name). Callers
// must hold g.mu.
func (g *ComparisonGraph) predecessorsOf(name string) map[string]struct{} {
	out := make(map[string]struct{}, len(g.losesTo[name]))
	for x := range g.losesTo[name] {
		out[x] = struct{}{}
	}
	return out
}

// successorsOf returns every y with name -> y (name beats y). Callers must
// hold g.mu.
func (g *ComparisonGraph) successorsOf(name string) map[string]struct{} {
	out := make(map[string]struct{}, len(g.beats[name]))
	for y := range g.beats[name] {
		out[y] = struct{}{}
	}
	return out
}

// Seed pre-loads known_comparisons (winner, loser) pairs into the graph
// before any ranking work starts (spec §4.4's known_comparisons contract).
func (g *ComparisonGraph) Seed(edges [][2]string) {
	for _, e := range edges {
		g.Record(e[0], e[1])
	}
}
