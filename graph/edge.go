package graph

import (
	"strings"

	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/cond"
)

// Access is the capability a borrow was taken with.
type Access int

const (
	// AccessShared is a read-only borrow.
	AccessShared Access = iota
	// AccessMutable is an exclusive borrow.
	AccessMutable
)

func (a Access) String() string {
	if a == AccessMutable {
		return "mut"
	}
	return "shared"
}

// Kind is the closed union of edge kinds. A kind is an immutable value; its
// Key deduplicates edges within one graph, and the blocked/blocked-by node
// lists drive every traversal. MapNodes rebuilds the kind with every node
// rewritten, which is how relabelling and redirection are implemented.
type Kind interface {
	Key() string
	Name() string
	BlockedNodes() []Node
	BlockedByNodes() []Node
	MapNodes(rewrite func(Node) Node) Kind
	String() string
}

// Edge pairs a kind with the conditions under which it holds.
type Edge struct {
	Kind       Kind
	Conditions cond.Conditions
}

// NewEdge builds an unconditional edge.
func NewEdge(kind Kind) Edge {
	return Edge{Kind: kind}
}

// Clone returns an independent copy.
func (e Edge) Clone() Edge {
	return Edge{Kind: e.Kind, Conditions: e.Conditions.Clone()}
}

// Borrow records that referencing Blocked produced a value tracked at the
// Assigned token, with the given access capability, at Origin.
type Borrow struct {
	Blocked  Location  `yaml:"blocked"`
	Assigned Token     `yaml:"assigned"`
	Access   Access    `yaml:"access"`
	Origin   cfg.Point `yaml:"origin"`
}

func (b Borrow) Name() string { return "borrow" }

func (b Borrow) Key() string {
	return "borrow|" + b.Blocked.Key() + "|" + b.Assigned.Key() + "|" + b.Access.String() + "|" + b.Origin.String()
}

func (b Borrow) BlockedNodes() []Node   { return []Node{b.Blocked} }
func (b Borrow) BlockedByNodes() []Node { return []Node{b.Assigned} }

func (b Borrow) MapNodes(rewrite func(Node) Node) Kind {
	if mapped, ok := rewrite(b.Blocked).(Location); ok {
		b.Blocked = mapped
	}
	if mapped, ok := rewrite(b.Assigned).(Token); ok {
		b.Assigned = mapped
	}
	return b
}

func (b Borrow) String() string {
	return b.Blocked.String() + " -" + b.Access.String() + "-> " + b.Assigned.String()
}

// Expansion records that Base was expanded into its syntactic sub-parts, so
// Base is blocked by each part for as long as the parts are in use.
type Expansion struct {
	Base  Node   `yaml:"base"`
	Parts []Node `yaml:"parts"`
}

func (e Expansion) Name() string { return "expansion" }

func (e Expansion) Key() string {
	var builder strings.Builder
	builder.WriteString("expansion|")
	builder.WriteString(e.Base.Key())
	builder.WriteString("|")
	builder.WriteString(nodeListKey(e.Parts))
	return builder.String()
}

func (e Expansion) BlockedNodes() []Node   { return []Node{e.Base} }
func (e Expansion) BlockedByNodes() []Node { return e.Parts }

func (e Expansion) MapNodes(rewrite func(Node) Node) Kind {
	mapped := Expansion{Base: rewrite(e.Base), Parts: make([]Node, len(e.Parts))}
	for i, part := range e.Parts {
		mapped.Parts[i] = rewrite(part)
	}
	return mapped
}

func (e Expansion) String() string {
	return e.Base.String() + " -expands-> {" + nodeListKey(e.Parts) + "}"
}

// Flow records a provable outlives/rename relationship: borrow information
// reaching From also reaches To, and From stays blocked by To.
type Flow struct {
	From Token `yaml:"from"`
	To   Token `yaml:"to"`
}

func (f Flow) Name() string { return "flow" }

func (f Flow) Key() string {
	return "flow|" + f.From.Key() + "|" + f.To.Key()
}

func (f Flow) BlockedNodes() []Node   { return []Node{f.From} }
func (f Flow) BlockedByNodes() []Node { return []Node{f.To} }

func (f Flow) MapNodes(rewrite func(Node) Node) Kind {
	if mapped, ok := rewrite(f.From).(Token); ok {
		f.From = mapped
	}
	if mapped, ok := rewrite(f.To).(Token); ok {
		f.To = mapped
	}
	return f
}

func (f Flow) String() string {
	return f.From.String() + " -flows-> " + f.To.String()
}

// Origin distinguishes what an abstraction edge summarizes.
type Origin int

const (
	// OriginLoop summarizes the borrow effect of one loop iteration.
	OriginLoop Origin = iota
	// OriginCall summarizes the borrow effect of a call.
	OriginCall
)

func (o Origin) String() string {
	if o == OriginCall {
		return "call"
	}
	return "loop"
}

// Abstraction is a summary hyperedge standing for an unbounded or opaque
// relationship chain: the ordered Inputs are blocked by the ordered Outputs.
// Input and output sets must be disjoint.
type Abstraction struct {
	Inputs  []Node    `yaml:"inputs"`
	Outputs []Node    `yaml:"outputs"`
	Origin  Origin    `yaml:"origin"`
	At      cfg.Point `yaml:"at"`
}

func (a Abstraction) Name() string { return "abstraction" }

func (a Abstraction) Key() string {
	return "abstraction|" + a.Origin.String() + "|" + a.At.String() + "|" +
		nodeListKey(a.Inputs) + "|" + nodeListKey(a.Outputs)
}

func (a Abstraction) BlockedNodes() []Node   { return a.Inputs }
func (a Abstraction) BlockedByNodes() []Node { return a.Outputs }

func (a Abstraction) MapNodes(rewrite func(Node) Node) Kind {
	mapped := Abstraction{Origin: a.Origin, At: a.At}
	mapped.Inputs = mapNodes(a.Inputs, rewrite)
	mapped.Outputs = mapNodes(a.Outputs, rewrite)
	return mapped
}

func (a Abstraction) String() string {
	return "{" + nodeListKey(a.Inputs) + "} -" + a.Origin.String() + "-> {" + nodeListKey(a.Outputs) + "}"
}

// Coupled has the abstraction shape but is explicitly the product of
// coupling: its inputs were grouped because they share this exact output set.
type Coupled struct {
	Inputs  []Node    `yaml:"inputs"`
	Outputs []Node    `yaml:"outputs"`
	At      cfg.Point `yaml:"at"`
}

func (c Coupled) Name() string { return "coupled" }

func (c Coupled) Key() string {
	return "coupled|" + c.At.String() + "|" + nodeListKey(c.Inputs) + "|" + nodeListKey(c.Outputs)
}

func (c Coupled) BlockedNodes() []Node   { return c.Inputs }
func (c Coupled) BlockedByNodes() []Node { return c.Outputs }

func (c Coupled) MapNodes(rewrite func(Node) Node) Kind {
	mapped := Coupled{At: c.At}
	mapped.Inputs = mapNodes(c.Inputs, rewrite)
	mapped.Outputs = mapNodes(c.Outputs, rewrite)
	return mapped
}

func (c Coupled) String() string {
	return "{" + nodeListKey(c.Inputs) + "} -coupled-> {" + nodeListKey(c.Outputs) + "}"
}

func mapNodes(nodes []Node, rewrite func(Node) Node) []Node {
	mapped := make([]Node, len(nodes))
	for i, node := range nodes {
		mapped[i] = rewrite(node)
	}
	return mapped
}

func nodeListKey(nodes []Node) string {
	keys := make([]string, len(nodes))
	for i, node := range nodes {
		keys[i] = node.Key()
	}
	return strings.Join(keys, ",")
}
