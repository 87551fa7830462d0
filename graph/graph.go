package graph

import (
	"sort"

	"github.com/viant/borrowck/cfg"
)

// Graph is the borrow state at one control-flow point: a map from
// deduplicated edge kind to the conditions it holds under. At most one entry
// exists per kind; inserting an existing kind joins conditions instead.
type Graph struct {
	body  *cfg.Body
	edges map[string]*Edge
}

// New creates an empty graph over the given procedure shape.
func New(body *cfg.Body) *Graph {
	return &Graph{body: body, edges: map[string]*Edge{}}
}

// Body returns the procedure shape the graph is defined over.
func (g *Graph) Body() *cfg.Body {
	return g.body
}

// Len returns the number of stored edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Insert adds an edge, joining conditions when the kind is already present,
// and reports whether the graph changed.
func (g *Graph) Insert(edge Edge) bool {
	key := edge.Kind.Key()
	if existing, ok := g.edges[key]; ok {
		return existing.Conditions.Join(edge.Conditions, g.body)
	}
	stored := edge.Clone()
	g.edges[key] = &stored
	return true
}

// Remove takes an edge out: the entry is deleted when its stored conditions
// exactly equal the edge's, otherwise the edge's conditions are subtracted
// so the edge persists on the paths the removal did not cover. Reports
// whether the graph changed.
func (g *Graph) Remove(edge Edge) bool {
	key := edge.Kind.Key()
	existing, ok := g.edges[key]
	if !ok {
		return false
	}
	if existing.Conditions.Equal(edge.Conditions) {
		delete(g.edges, key)
		return true
	}
	before := existing.Conditions.Key()
	if existing.Conditions.Subtract(edge.Conditions, g.body) {
		delete(g.edges, key)
		return true
	}
	return existing.Conditions.Key() != before
}

// RemoveKind deletes the edge with the given kind regardless of conditions.
func (g *Graph) RemoveKind(kind Kind) bool {
	key := kind.Key()
	if _, ok := g.edges[key]; !ok {
		return false
	}
	delete(g.edges, key)
	return true
}

// Edge returns the stored edge for a kind, if any.
func (g *Graph) Edge(kind Kind) (Edge, bool) {
	if existing, ok := g.edges[kind.Key()]; ok {
		return existing.Clone(), true
	}
	return Edge{}, false
}

// Edges returns all edges ordered by kind key.
func (g *Graph) Edges() []Edge {
	keys := make([]string, 0, len(g.edges))
	for key := range g.edges {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	result := make([]Edge, 0, len(keys))
	for _, key := range keys {
		result = append(result, g.edges[key].Clone())
	}
	return result
}

// Nodes returns every node referenced by some edge, ordered by key.
func (g *Graph) Nodes() []Node {
	seen := map[string]Node{}
	for _, edge := range g.edges {
		for _, node := range edge.Kind.BlockedNodes() {
			seen[node.Key()] = node
		}
		for _, node := range edge.Kind.BlockedByNodes() {
			seen[node.Key()] = node
		}
	}
	return sortedNodes(seen)
}

// Contains reports whether any edge references the node.
func (g *Graph) Contains(node Node) bool {
	key := node.Key()
	for _, edge := range g.edges {
		for _, candidate := range edge.Kind.BlockedNodes() {
			if candidate.Key() == key {
				return true
			}
		}
		for _, candidate := range edge.Kind.BlockedByNodes() {
			if candidate.Key() == key {
				return true
			}
		}
	}
	return false
}

// HasEdgeBlocking reports whether some edge blocks the node, i.e. lists it
// among its blocked nodes.
func (g *Graph) HasEdgeBlocking(node Node) bool {
	key := node.Key()
	for _, edge := range g.edges {
		for _, blocked := range edge.Kind.BlockedNodes() {
			if blocked.Key() == key {
				return true
			}
		}
	}
	return false
}

// EdgesBlocking returns the edges blocking the node (node among the edge's
// blocked nodes), ordered by kind key.
func (g *Graph) EdgesBlocking(node Node) []Edge {
	key := node.Key()
	var result []Edge
	for _, edge := range g.edges {
		for _, blocked := range edge.Kind.BlockedNodes() {
			if blocked.Key() == key {
				result = append(result, edge.Clone())
				break
			}
		}
	}
	sortEdges(result)
	return result
}

// EdgesBlockedBy returns the edges the node participates in as a blocker
// (node among the edge's blocked-by nodes), ordered by kind key.
func (g *Graph) EdgesBlockedBy(node Node) []Edge {
	key := node.Key()
	var result []Edge
	for _, edge := range g.edges {
		for _, blocker := range edge.Kind.BlockedByNodes() {
			if blocker.Key() == key {
				result = append(result, edge.Clone())
				break
			}
		}
	}
	sortEdges(result)
	return result
}

// IsRoot reports whether the node is a borrow-graph root: an owned location,
// or any node not blocked by some edge.
func (g *Graph) IsRoot(node Node) bool {
	if location, ok := node.(Location); ok && location.IsOwned() {
		return true
	}
	return !g.HasEdgeBlocking(node)
}

// Roots returns the root nodes ordered by key.
func (g *Graph) Roots() []Node {
	result := map[string]Node{}
	for _, node := range g.Nodes() {
		if g.IsRoot(node) {
			result[node.Key()] = node
		}
	}
	return sortedNodes(result)
}

// LeafEdges returns the edges none of whose blocked-by nodes are themselves
// blocked: removing them cannot strand a dependent edge.
func (g *Graph) LeafEdges() []Edge {
	var result []Edge
	for _, edge := range g.edges {
		leaf := true
		for _, blocker := range edge.Kind.BlockedByNodes() {
			if g.HasEdgeBlocking(blocker) {
				leaf = false
				break
			}
		}
		if leaf {
			result = append(result, edge.Clone())
		}
	}
	sortEdges(result)
	return result
}

// IsAcyclic reports whether no feasible blocked-by chain revisits a node.
func (g *Graph) IsAcyclic() bool {
	return g.Frozen().IsAcyclic()
}

// Clone returns a deep copy sharing only the immutable body.
func (g *Graph) Clone() *Graph {
	clone := New(g.body)
	for key, edge := range g.edges {
		copied := edge.Clone()
		clone.edges[key] = &copied
	}
	return clone
}

// Equal reports whether both graphs store the same kinds under the same
// conditions.
func (g *Graph) Equal(other *Graph) bool {
	if len(g.edges) != len(other.edges) {
		return false
	}
	for key, edge := range g.edges {
		counterpart, ok := other.edges[key]
		if !ok || !edge.Conditions.Equal(counterpart.Conditions) {
			return false
		}
	}
	return true
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Kind.Key() < edges[j].Kind.Key()
	})
}

func sortedNodes(byKey map[string]Node) []Node {
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	result := make([]Node, 0, len(keys))
	for _, key := range keys {
		result = append(result, byKey[key])
	}
	return result
}
