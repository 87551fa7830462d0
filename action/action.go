// Package action defines the ordered graph edits a front end emits while
// walking statements. Each action carries a justification string for debug
// output; a batch applies atomically or not at all.
package action

import (
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/graph"
)

// Action is one graph edit. Apply mutates the graph or the latest-snapshot
// table and reports whether anything changed.
type Action interface {
	Apply(g *graph.Graph, latest *graph.Latest) (bool, error)
	Reason() string
	String() string
}

// AddEdge inserts an edge.
type AddEdge struct {
	Edge graph.Edge
	Why  string
}

func (a AddEdge) Apply(g *graph.Graph, latest *graph.Latest) (bool, error) {
	return g.Insert(a.Edge), nil
}

func (a AddEdge) Reason() string { return a.Why }
func (a AddEdge) String() string { return "add " + a.Edge.Kind.String() }

// RemoveEdge removes an edge, deleting or narrowing its stored conditions.
type RemoveEdge struct {
	Edge graph.Edge
	Why  string
}

func (a RemoveEdge) Apply(g *graph.Graph, latest *graph.Latest) (bool, error) {
	return g.Remove(a.Edge), nil
}

func (a RemoveEdge) Reason() string { return a.Why }
func (a RemoveEdge) String() string { return "remove " + a.Edge.Kind.String() }

// RedirectEdge replaces one edge kind with another, keeping conditions.
type RedirectEdge struct {
	Old graph.Kind
	New graph.Kind
	Why string
}

func (a RedirectEdge) Apply(g *graph.Graph, latest *graph.Latest) (bool, error) {
	return g.RedirectEdge(a.Old, a.New), nil
}

func (a RedirectEdge) Reason() string { return a.Why }
func (a RedirectEdge) String() string { return "redirect " + a.Old.String() + " to " + a.New.String() }

// RelabelToken rewrites every occurrence of one lifetime token.
type RelabelToken struct {
	From graph.Token
	To   graph.Token
	Why  string
}

func (a RelabelToken) Apply(g *graph.Graph, latest *graph.Latest) (bool, error) {
	return g.RelabelToken(a.From, a.To), nil
}

func (a RelabelToken) Reason() string { return a.Why }
func (a RelabelToken) String() string { return "relabel " + a.From.String() + " to " + a.To.String() }

// MakeOld relabels the location and its extensions to their historical form.
type MakeOld struct {
	Location graph.Location
	Why      string
}

func (a MakeOld) Apply(g *graph.Graph, latest *graph.Latest) (bool, error) {
	return g.MakePlaceOld(a.Location, latest), nil
}

func (a MakeOld) Reason() string { return a.Why }
func (a MakeOld) String() string { return "make old " + a.Location.String() }

// SetLatest records a possible overwrite of the location at a point.
type SetLatest struct {
	Location graph.Location
	At       cfg.Point
	Why      string
}

func (a SetLatest) Apply(g *graph.Graph, latest *graph.Latest) (bool, error) {
	latest.Set(a.Location, a.At)
	return true, nil
}

func (a SetLatest) Reason() string { return a.Why }
func (a SetLatest) String() string { return "latest " + a.Location.String() + " = " + a.At.String() }

// Apply runs a batch atomically: edits land on copies and are swapped in
// only when every action succeeded. Reports whether anything changed.
func Apply(g *graph.Graph, latest *graph.Latest, actions []Action) (bool, error) {
	if len(actions) == 0 {
		return false, nil
	}
	workGraph := g.Clone()
	workLatest := latest.Clone()
	changed := false
	for _, act := range actions {
		actChanged, err := act.Apply(workGraph, workLatest)
		if err != nil {
			return false, err
		}
		if actChanged {
			changed = true
		}
	}
	if changed {
		g.ReplaceWith(workGraph)
		latest.ReplaceWith(workLatest)
	}
	return changed, nil
}
