// Package cond implements per-edge validity conditions: which control-flow
// paths an edge of the borrow graph holds on, recorded as required successor
// choices at multi-successor blocks.
package cond

import (
	"fmt"
	"sort"
	"strings"

	"github.com/viant/borrowck"
	"github.com/viant/borrowck/cfg"
)

// maxSuccessors bounds the successor fan-out a single branch choice can
// record. Real procedure blocks have two or three successors; switch
// lowering stays far below this.
const maxSuccessors = 64

// Choice constrains one multi-successor block: when leaving Branch, control
// must take one of the successors whose index bit is set in Allowed.
type Choice struct {
	Branch  cfg.Block `yaml:"branch"`
	Allowed uint64    `yaml:"allowed"`
}

// Permits reports whether the choice allows the successor at index.
func (c Choice) Permits(index int) bool {
	return c.Allowed&(1<<uint(index)) != 0
}

// Conditions is the set of control-flow paths an edge is valid for, stored
// as choices ordered by branch block. The zero value is unconditional: valid
// on every path.
type Conditions struct {
	choices []Choice
}

// Unconditional returns conditions valid on every path.
func Unconditional() Conditions {
	return Conditions{}
}

// IsUnconditional reports whether no branch is constrained.
func (c Conditions) IsUnconditional() bool {
	return len(c.choices) == 0
}

// Choices returns the recorded choices ordered by branch block.
func (c Conditions) Choices() []Choice {
	return c.choices
}

// Constrains reports whether a choice is recorded for the branch block.
func (c Conditions) Constrains(branch cfg.Block) bool {
	return c.at(branch) >= 0
}

// at returns the index of the choice for branch, or -1.
func (c Conditions) at(branch cfg.Block) int {
	for i, choice := range c.choices {
		if choice.Branch == branch {
			return i
		}
	}
	return -1
}

// Insert records that the edge was created while leaving from towards to.
// Blocks with a single successor carry no information and are skipped. A
// second constraint for the same branch block is a caller bug.
func (c *Conditions) Insert(from, to cfg.Block, body *cfg.Body) error {
	succs := body.Successors(from)
	if len(succs) < 2 {
		return nil
	}
	if len(succs) > maxSuccessors {
		return borrowck.Internal("block %s has %d successors, limit %d", from, len(succs), maxSuccessors)
	}
	index := body.SuccessorIndex(from, to)
	if index < 0 {
		return borrowck.Internal("%s is not a successor of %s", to, from)
	}
	if c.at(from) >= 0 {
		return borrowck.Internal("conflicting branch constraint at %s", from)
	}
	c.choices = append(c.choices, Choice{Branch: from, Allowed: 1 << uint(index)})
	sort.Slice(c.choices, func(i, j int) bool {
		return c.choices[i].Branch < c.choices[j].Branch
	})
	return nil
}

// Join widens the receiver to cover every path either side covers: bitsets
// are unioned per branch block constrained by both sides, and a constraint
// missing on one side, or whose union permits every successor, is dropped as
// unconditional. Join reports whether the receiver changed; it is
// commutative and idempotent in the result.
func (c *Conditions) Join(other Conditions, body *cfg.Body) bool {
	var merged []Choice
	for _, choice := range c.choices {
		i := other.at(choice.Branch)
		if i < 0 {
			continue
		}
		union := choice.Allowed | other.choices[i].Allowed
		if coversAll(union, len(body.Successors(choice.Branch))) {
			continue
		}
		merged = append(merged, Choice{Branch: choice.Branch, Allowed: union})
	}
	changed := !equalChoices(c.choices, merged)
	c.choices = merged
	return changed
}

// ValidForPath reports whether the conditions admit a realized path: false
// iff some recorded choice excludes the successor the path actually takes at
// that branch.
func (c Conditions) ValidForPath(path cfg.Path, body *cfg.Body) bool {
	for _, choice := range c.choices {
		next, ok := path.SuccessorOf(choice.Branch)
		if !ok {
			continue
		}
		index := body.SuccessorIndex(choice.Branch, next)
		if index < 0 || !choice.Permits(index) {
			return false
		}
	}
	return true
}

// Subtract narrows the receiver to the paths other does not cover. Per
// branch other constrains, the paths other misses on that branch form one
// residue, with an unconstrained receiver branch standing for all
// successors. No residue at all means other covers every path the receiver
// covers: the receiver empties and the owning edge should be dropped. A
// single residue is the exact remainder and replaces the receiver's choice
// for that branch. Several residues form a disjunction a choice list cannot
// hold, so the receiver is left unchanged and the edge conservatively
// persists on all its paths.
func (c *Conditions) Subtract(other Conditions, body *cfg.Body) (emptied bool) {
	type residue struct {
		branch      cfg.Block
		rest        uint64
		expressible bool
	}
	var residues []residue
	for _, choice := range other.choices {
		if i := c.at(choice.Branch); i >= 0 {
			if rest := c.choices[i].Allowed &^ choice.Allowed; rest != 0 {
				residues = append(residues, residue{branch: choice.Branch, rest: rest, expressible: true})
			}
			continue
		}
		successors := len(body.Successors(choice.Branch))
		if successors < 2 {
			continue
		}
		if successors > maxSuccessors {
			residues = append(residues, residue{branch: choice.Branch})
			continue
		}
		if rest := (uint64(1)<<uint(successors) - 1) &^ choice.Allowed; rest != 0 {
			residues = append(residues, residue{branch: choice.Branch, rest: rest, expressible: true})
		}
	}
	if len(residues) == 0 {
		c.choices = nil
		return true
	}
	if len(residues) == 1 && residues[0].expressible {
		if i := c.at(residues[0].branch); i >= 0 {
			c.choices[i].Allowed = residues[0].rest
		} else {
			c.choices = append(c.choices, Choice{Branch: residues[0].branch, Allowed: residues[0].rest})
			sort.Slice(c.choices, func(i, j int) bool {
				return c.choices[i].Branch < c.choices[j].Branch
			})
		}
	}
	return false
}

// FeasibleChain reports whether a chain of edges can all hold on one path.
// It is a deliberate under-approximation: the chain is declared infeasible
// only when some branch block's accumulated choices intersect to nothing and
// every procedure exit block has exactly one predecessor, so no path can
// reach an exit while satisfying the contradictory constraints. Any other
// shape is conservatively treated as feasible.
func FeasibleChain(chain []Conditions, body *cfg.Body) bool {
	intersection := map[cfg.Block]uint64{}
	for _, conditions := range chain {
		for _, choice := range conditions.choices {
			if mask, ok := intersection[choice.Branch]; ok {
				intersection[choice.Branch] = mask & choice.Allowed
			} else {
				intersection[choice.Branch] = choice.Allowed
			}
		}
	}
	contradiction := false
	for _, mask := range intersection {
		if mask == 0 {
			contradiction = true
			break
		}
	}
	if !contradiction {
		return true
	}
	for _, exit := range body.Exits() {
		if len(body.Predecessors(exit)) != 1 {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (c Conditions) Clone() Conditions {
	if len(c.choices) == 0 {
		return Conditions{}
	}
	choices := make([]Choice, len(c.choices))
	copy(choices, c.choices)
	return Conditions{choices: choices}
}

// Equal reports structural equality.
func (c Conditions) Equal(other Conditions) bool {
	return equalChoices(c.choices, other.choices)
}

// Key returns a canonical textual form usable as a map key.
func (c Conditions) Key() string {
	if len(c.choices) == 0 {
		return "*"
	}
	var builder strings.Builder
	for i, choice := range c.choices {
		if i > 0 {
			builder.WriteByte(',')
		}
		fmt.Fprintf(&builder, "%s:%x", choice.Branch, choice.Allowed)
	}
	return builder.String()
}

func (c Conditions) String() string {
	return c.Key()
}

func coversAll(mask uint64, successors int) bool {
	if successors >= maxSuccessors {
		return false
	}
	return mask == (uint64(1)<<uint(successors))-1
}

func equalChoices(a, b []Choice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
