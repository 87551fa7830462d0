package graph

// Frozen is a read-only view over a graph for one traversal pass. It pays
// one O(edges) sweep to build per-node adjacency tables so repeated blocking
// and blocked-by queries during a join or cycle search are map lookups. The
// underlying graph must not be mutated while the view is in use; views are
// built on demand and discarded at the end of the traversal.
type Frozen struct {
	graph     *Graph
	nodes     []Node
	blocking  map[string][]*Edge
	blockedBy map[string][]*Edge
	roots     []Node
	leaves    []Edge
	hasLeaves bool
}

// Frozen builds a read-only view of the graph's current state.
func (g *Graph) Frozen() *Frozen {
	view := &Frozen{
		graph:     g,
		blocking:  map[string][]*Edge{},
		blockedBy: map[string][]*Edge{},
	}
	seen := map[string]Node{}
	for _, stored := range g.edges {
		edge := stored
		for _, node := range edge.Kind.BlockedNodes() {
			key := node.Key()
			seen[key] = node
			view.blocking[key] = append(view.blocking[key], edge)
		}
		for _, node := range edge.Kind.BlockedByNodes() {
			key := node.Key()
			seen[key] = node
			view.blockedBy[key] = append(view.blockedBy[key], edge)
		}
	}
	view.nodes = sortedNodes(seen)
	return view
}

// Nodes returns every node referenced by some edge, ordered by key.
func (f *Frozen) Nodes() []Node {
	return f.nodes
}

// Contains reports whether any edge references the node.
func (f *Frozen) Contains(node Node) bool {
	key := node.Key()
	return len(f.blocking[key]) > 0 || len(f.blockedBy[key]) > 0
}

// HasEdgeBlocking reports whether some edge blocks the node.
func (f *Frozen) HasEdgeBlocking(node Node) bool {
	return len(f.blocking[node.Key()]) > 0
}

// EdgesBlocking returns the edges blocking the node.
func (f *Frozen) EdgesBlocking(node Node) []*Edge {
	return f.blocking[node.Key()]
}

// EdgesBlockedBy returns the edges the node blocks in.
func (f *Frozen) EdgesBlockedBy(node Node) []*Edge {
	return f.blockedBy[node.Key()]
}

// IsRoot mirrors Graph.IsRoot on the cached tables.
func (f *Frozen) IsRoot(node Node) bool {
	if location, ok := node.(Location); ok && location.IsOwned() {
		return true
	}
	return !f.HasEdgeBlocking(node)
}

// Roots returns the root nodes ordered by key, computed once.
func (f *Frozen) Roots() []Node {
	if f.roots == nil {
		byKey := map[string]Node{}
		for _, node := range f.nodes {
			if f.IsRoot(node) {
				byKey[node.Key()] = node
			}
		}
		f.roots = sortedNodes(byKey)
	}
	return f.roots
}

// LeafEdges returns the leaf edges ordered by kind key, computed once.
func (f *Frozen) LeafEdges() []Edge {
	if !f.hasLeaves {
		for _, stored := range f.graph.edges {
			leaf := true
			for _, blocker := range stored.Kind.BlockedByNodes() {
				if f.HasEdgeBlocking(blocker) {
					leaf = false
					break
				}
			}
			if leaf {
				f.leaves = append(f.leaves, stored.Clone())
			}
		}
		sortEdges(f.leaves)
		f.hasLeaves = true
	}
	return f.leaves
}
