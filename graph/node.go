// Package graph implements the borrow graph: a hypergraph of typed edges
// over memory locations and lifetime-token projections, with per-edge
// validity conditions, root/leaf queries, feasibility-aware cycle detection
// and the mutation surface used by the join algorithm.
package graph

import (
	"strings"

	"github.com/viant/borrowck/cfg"
)

// Node is either a Location or a Token. Nodes are immutable values compared
// and stored by their canonical Key.
type Node interface {
	Key() string
	String() string
	node()
}

// DerefField marks a dereference step within a projection path.
const DerefField = "*"

// Location is a symbolic memory slot with an optional projection path (field
// names, DerefField for a deref step). A labelled location denotes the value
// the slot held the last time it was possibly overwritten at the label's
// point, rather than its current value.
type Location struct {
	Base       string        `yaml:"base"`
	Projection []string      `yaml:"projection,omitempty"`
	Label      *cfg.Snapshot `yaml:"label,omitempty"`
}

// Loc builds an unlabelled location.
func Loc(base string, projection ...string) Location {
	return Location{Base: base, Projection: projection}
}

// Deref returns the location one dereference step below.
func (l Location) Deref() Location {
	return l.Project(DerefField)
}

// Project returns the location extended by one projection step.
func (l Location) Project(step string) Location {
	projection := make([]string, 0, len(l.Projection)+1)
	projection = append(projection, l.Projection...)
	projection = append(projection, step)
	return Location{Base: l.Base, Projection: projection, Label: l.Label}
}

// Labelled returns the historical form of the location at the given snapshot.
func (l Location) Labelled(at cfg.Snapshot) Location {
	l.Label = &at
	return l
}

// IsLabelled reports whether the location denotes a historical value.
func (l Location) IsLabelled() bool {
	return l.Label != nil
}

// IsOwned reports whether the slot is reached without dereferencing, i.e.
// the procedure owns its storage directly. Owned locations are borrow-graph
// roots even while blocked.
func (l Location) IsOwned() bool {
	for _, step := range l.Projection {
		if step == DerefField {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether other is l itself or a projection extension of
// it, ignoring labels.
func (l Location) IsPrefixOf(other Location) bool {
	if l.Base != other.Base || len(l.Projection) > len(other.Projection) {
		return false
	}
	for i, step := range l.Projection {
		if other.Projection[i] != step {
			return false
		}
	}
	return true
}

func (l Location) Key() string {
	var builder strings.Builder
	builder.WriteString(l.Base)
	for _, step := range l.Projection {
		builder.WriteByte('.')
		builder.WriteString(step)
	}
	if l.Label != nil {
		builder.WriteByte('@')
		builder.WriteString(l.Label.At.String())
	}
	return builder.String()
}

func (l Location) String() string {
	return l.Key()
}

func (l Location) node() {}

// Mark distinguishes the three temporal forms of a lifetime token.
type Mark int

const (
	// MarkCurrent denotes the token's present value.
	MarkCurrent Mark = iota
	// MarkSnapshot denotes the value the token held at a recorded point.
	MarkSnapshot
	// MarkFuture is a placeholder for the value the token will hold once
	// its current blockers are removed.
	MarkFuture
)

// Token is a lifetime-token projection: a location paired with one of its
// lifetime parameters, optionally labelled with a snapshot or the future
// marker.
type Token struct {
	Place  Location  `yaml:"place"`
	Region string    `yaml:"region"`
	Mark   Mark      `yaml:"mark,omitempty"`
	At     cfg.Point `yaml:"at,omitempty"`
}

// Tok builds a current-valued token for the location's region parameter.
func Tok(place Location, region string) Token {
	return Token{Place: place, Region: region}
}

// Snapshotted returns the token labelled with the given point.
func (t Token) Snapshotted(at cfg.Point) Token {
	t.Mark = MarkSnapshot
	t.At = at
	return t
}

// Future returns the future-placeholder form of the token.
func (t Token) Future() Token {
	t.Mark = MarkFuture
	t.At = cfg.Point{}
	return t
}

// IsCurrent reports whether the token carries no temporal label.
func (t Token) IsCurrent() bool {
	return t.Mark == MarkCurrent
}

func (t Token) Key() string {
	var builder strings.Builder
	builder.WriteString(t.Place.Key())
	builder.WriteByte('|')
	builder.WriteString(t.Region)
	switch t.Mark {
	case MarkSnapshot:
		builder.WriteByte('@')
		builder.WriteString(t.At.String())
	case MarkFuture:
		builder.WriteString("@future")
	}
	return builder.String()
}

func (t Token) String() string {
	return t.Key()
}

func (t Token) node() {}

// SameNode reports whether two nodes denote the same value.
func SameNode(a, b Node) bool {
	return a.Key() == b.Key()
}

// containsNode reports membership by canonical key.
func containsNode(nodes []Node, node Node) bool {
	key := node.Key()
	for _, candidate := range nodes {
		if candidate.Key() == key {
			return true
		}
	}
	return false
}
