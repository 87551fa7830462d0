package graph

import (
	"github.com/viant/borrowck/cfg"
)

// Latest is the per-location latest-snapshot table: for each location, the
// most recent point at which it was possibly overwritten. Locations without
// an entry default to the start of the entry block.
type Latest struct {
	snapshots map[string]cfg.Snapshot
}

// NewLatest creates an empty table.
func NewLatest() *Latest {
	return &Latest{snapshots: map[string]cfg.Snapshot{}}
}

// Set records that the location was possibly overwritten at the point.
func (l *Latest) Set(location Location, at cfg.Point) {
	l.snapshots[unlabelled(location).Key()] = cfg.Snapshot{At: at}
}

// At returns the latest snapshot recorded for the location.
func (l *Latest) At(location Location) cfg.Snapshot {
	if snapshot, ok := l.snapshots[unlabelled(location).Key()]; ok {
		return snapshot
	}
	return cfg.BlockStart(0)
}

// Clone returns an independent copy.
func (l *Latest) Clone() *Latest {
	clone := NewLatest()
	for key, snapshot := range l.snapshots {
		clone.snapshots[key] = snapshot
	}
	return clone
}

// ReplaceWith swaps the receiver's content for a copy of other's.
func (l *Latest) ReplaceWith(other *Latest) {
	l.snapshots = make(map[string]cfg.Snapshot, len(other.snapshots))
	for key, snapshot := range other.snapshots {
		l.snapshots[key] = snapshot
	}
}

func unlabelled(location Location) Location {
	location.Label = nil
	return location
}

// FilterForPath drops every edge whose conditions exclude the realized path
// and reports whether anything was dropped.
func (g *Graph) FilterForPath(path cfg.Path) bool {
	changed := false
	for key, edge := range g.edges {
		if !edge.Conditions.ValidForPath(path, g.body) {
			delete(g.edges, key)
			changed = true
		}
	}
	return changed
}

// MakePlaceOld relabels every current node denoting the location, or an
// extension of it, to its historical form per the latest-snapshot table.
// Called whenever the location may be overwritten, so surviving edges keep
// referring to the value that was actually borrowed.
func (g *Graph) MakePlaceOld(location Location, latest *Latest) bool {
	target := unlabelled(location)
	return g.rewriteNodes(func(node Node) Node {
		switch actual := node.(type) {
		case Location:
			if actual.IsLabelled() || !target.IsPrefixOf(actual) {
				return node
			}
			return actual.Labelled(latest.At(actual))
		case Token:
			if actual.Mark != MarkCurrent || actual.Place.IsLabelled() || !target.IsPrefixOf(actual.Place) {
				return node
			}
			actual.Place = actual.Place.Labelled(latest.At(actual.Place))
			return actual
		}
		return node
	})
}

// RelabelToken rewrites every occurrence of one token to another, joining
// conditions where rewritten kinds collide.
func (g *Graph) RelabelToken(from, to Token) bool {
	fromKey := from.Key()
	return g.rewriteNodes(func(node Node) Node {
		if token, ok := node.(Token); ok && token.Key() == fromKey {
			return to
		}
		return node
	})
}

// RedirectEdge replaces the stored edge of one kind with another kind,
// keeping its conditions. No-op when the old kind is absent.
func (g *Graph) RedirectEdge(old, new Kind) bool {
	stored, ok := g.edges[old.Key()]
	if !ok {
		return false
	}
	delete(g.edges, old.Key())
	g.Insert(Edge{Kind: new, Conditions: stored.Conditions})
	return true
}

// AddPathCondition constrains every stored edge to the control-flow edge
// from -> to. Edges already constrained at the branch keep their narrower
// choice. Used when propagating a block's exit state to one successor.
func (g *Graph) AddPathCondition(from, to cfg.Block) error {
	for _, edge := range g.edges {
		if edge.Conditions.Constrains(from) {
			continue
		}
		if err := edge.Conditions.Insert(from, to, g.body); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceWith swaps the receiver's content for a copy of other's.
func (g *Graph) ReplaceWith(other *Graph) {
	g.body = other.body
	g.edges = make(map[string]*Edge, len(other.edges))
	for key, edge := range other.edges {
		copied := edge.Clone()
		g.edges[key] = &copied
	}
}

// rewriteNodes rebuilds the store with every edge's nodes rewritten,
// rejoining conditions where two kinds collapse into one.
func (g *Graph) rewriteNodes(rewrite func(Node) Node) bool {
	changed := false
	rebuilt := map[string]*Edge{}
	for key, edge := range g.edges {
		mapped := edge.Kind.MapNodes(rewrite)
		mappedKey := mapped.Key()
		if mappedKey != key {
			changed = true
		}
		if existing, ok := rebuilt[mappedKey]; ok {
			existing.Conditions.Join(edge.Conditions, g.body)
			continue
		}
		rebuilt[mappedKey] = &Edge{Kind: mapped, Conditions: edge.Conditions}
	}
	g.edges = rebuilt
	return changed
}
