// Package cfg describes the control-flow shape of a procedure as consumed by
// the borrow analysis: basic blocks, successor lists, dominators and realized
// paths. The front end lowers whatever IR it has into this form.
package cfg

import (
	"fmt"
	"sort"
)

// Block identifies a basic block within one procedure.
type Block int

func (b Block) String() string {
	return fmt.Sprintf("bb%d", int(b))
}

// Point is a control-flow point: a statement index within a block. Statement
// len(block) denotes the block terminator.
type Point struct {
	Block     Block
	Statement int
}

func (p Point) String() string {
	return fmt.Sprintf("bb%d[%d]", int(p.Block), p.Statement)
}

// Snapshot labels a historical version of a location: the value it held the
// last time it was (possibly) overwritten at this point.
type Snapshot struct {
	At Point
}

func (s Snapshot) String() string {
	return "at " + s.At.String()
}

// BlockStart returns the snapshot taken at the start of a block.
func BlockStart(b Block) Snapshot {
	return Snapshot{At: Point{Block: b}}
}

// Body is the control-flow graph of one procedure. Blocks are numbered
// contiguously from 0; the entry block is block 0.
type Body struct {
	name  string
	succs [][]Block
	preds [][]Block
	exits []Block
	idom  []Block // immediate dominators, computed on first use
}

// NewBody creates a Body from per-block successor lists. succs[i] holds the
// successors of block i; a block without successors is a procedure exit.
func NewBody(name string, succs [][]Block) *Body {
	b := &Body{name: name, succs: succs}
	b.preds = make([][]Block, len(succs))
	for from, targets := range succs {
		for _, to := range targets {
			b.preds[to] = append(b.preds[to], Block(from))
		}
		if len(targets) == 0 {
			b.exits = append(b.exits, Block(from))
		}
	}
	for i := range b.preds {
		sort.Slice(b.preds[i], func(x, y int) bool { return b.preds[i][x] < b.preds[i][y] })
	}
	return b
}

// Name returns the procedure name.
func (b *Body) Name() string {
	return b.name
}

// Blocks returns the number of basic blocks.
func (b *Body) Blocks() int {
	return len(b.succs)
}

// Entry returns the entry block.
func (b *Body) Entry() Block {
	return 0
}

// Successors returns the successors of the given block.
func (b *Body) Successors(block Block) []Block {
	return b.succs[block]
}

// Predecessors returns the predecessors of the given block.
func (b *Body) Predecessors(block Block) []Block {
	return b.preds[block]
}

// Exits returns the blocks without successors.
func (b *Body) Exits() []Block {
	return b.exits
}

// SuccessorIndex returns the position of to within from's successor list, or
// -1 when to is not a successor of from.
func (b *Body) SuccessorIndex(from, to Block) int {
	for i, s := range b.succs[from] {
		if s == to {
			return i
		}
	}
	return -1
}

// IsBackEdge reports whether the control-flow edge from -> to is a back-edge,
// i.e. whether to dominates from. Back-edges select the loop regime of the
// join algorithm.
func (b *Body) IsBackEdge(from, to Block) bool {
	return b.Dominates(to, from)
}

// Dominates reports whether block a dominates block b: every path from the
// entry to b passes through a.
func (b *Body) Dominates(a, blk Block) bool {
	b.ensureDominators()
	for cur := blk; ; {
		if cur == a {
			return true
		}
		next := b.idom[cur]
		if next == cur || next < 0 {
			return cur == a
		}
		cur = next
	}
}

// ImmediateDominator returns the immediate dominator of the given block; the
// entry block is its own immediate dominator.
func (b *Body) ImmediateDominator(block Block) Block {
	b.ensureDominators()
	return b.idom[block]
}
