// Package borrowck provides a control-flow sensitive model of borrow
// relationships within a single procedure. It tracks which memory locations
// are borrowed, from where, under what access kind and for how long, as a
// hypergraph over locations and lifetime-token projections.
//
// The core packages are:
//
//   - cfg: the procedure shape the analysis runs over (blocks, successors,
//     dominators, realized paths)
//   - cond: per-edge validity conditions over branch choices
//   - graph: the borrow graph, its edge kinds and traversal queries
//   - coupling: partitioning of summary edges into hyperedges
//   - join: the merge algorithm applied at control-flow joins and loop heads
//   - action: ordered graph edits emitted by a front end
//   - analysis: the fixpoint driver tying the above together
package borrowck
