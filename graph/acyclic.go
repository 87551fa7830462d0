package graph

import (
	"github.com/viant/borrowck/cond"
)

// Cycle search over the frozen view. Starting from every node, the search
// follows blocked-by chains (node, then each edge blocking it, then that
// edge's blocker nodes) with an explicit stack instead of recursion, keeping
// the conditions of the edges along the current path. An extension whose
// condition chain cannot hold on any single path is discarded, so a cycle is
// declared only on a feasible path revisiting a node already on it. Nodes
// fully explored without finding a cycle are memoized as safe, but only when
// the chain leading to them carried no branch constraints: a constrained
// prefix narrows which extensions are feasible, so safety proven under it
// does not transfer to other entries.

type searchStep struct {
	edge *Edge
	node Node
}

type searchFrame struct {
	node  Node
	steps []searchStep
	next  int
}

// IsAcyclic reports whether no feasible blocked-by chain revisits a node.
func (f *Frozen) IsAcyclic() bool {
	safe := map[string]bool{}
	for _, start := range f.nodes {
		if safe[start.Key()] {
			continue
		}
		if !f.searchFrom(start, safe) {
			return false
		}
	}
	return true
}

// searchFrom explores every feasible chain from start, reporting false on a
// cycle. Safe nodes discovered on the way are recorded in safe.
func (f *Frozen) searchFrom(start Node, safe map[string]bool) bool {
	onPath := map[string]bool{start.Key(): true}
	stack := []searchFrame{{node: start, steps: f.stepsFrom(start)}}
	var chain []cond.Conditions
	constrained := 0

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.steps) {
			if constrained == 0 {
				safe[top.node.Key()] = true
			}
			delete(onPath, top.node.Key())
			stack = stack[:len(stack)-1]
			if len(chain) > 0 {
				if !chain[len(chain)-1].IsUnconditional() {
					constrained--
				}
				chain = chain[:len(chain)-1]
			}
			continue
		}
		step := top.steps[top.next]
		top.next++

		candidate := append(chain, step.edge.Conditions)
		if !cond.FeasibleChain(candidate, f.graph.body) {
			continue
		}
		key := step.node.Key()
		if onPath[key] {
			return false
		}
		if safe[key] {
			continue
		}
		onPath[key] = true
		if !step.edge.Conditions.IsUnconditional() {
			constrained++
		}
		chain = append(chain, step.edge.Conditions)
		stack = append(stack, searchFrame{node: step.node, steps: f.stepsFrom(step.node)})
	}
	return true
}

// stepsFrom enumerates the blocked-by extensions of a node: for each edge
// blocking it, each of that edge's blocker nodes.
func (f *Frozen) stepsFrom(node Node) []searchStep {
	var steps []searchStep
	for _, edge := range f.EdgesBlocking(node) {
		for _, blocker := range edge.Kind.BlockedByNodes() {
			steps = append(steps, searchStep{edge: edge, node: blocker})
		}
	}
	return steps
}
