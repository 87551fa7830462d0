// Package oracle declares the interfaces the analysis consumes from the
// surrounding compiler: region/lifetime facts and liveness/loop-usage facts.
// The analysis never computes these itself; callers plug in implementations
// and the package provides trivial ones for tests and the demo front end.
package oracle

import (
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/graph"
)

// Region answers lifetime questions at a control-flow point. Implementations
// must be pure; results are not memoized here.
type Region interface {
	// Outlives reports whether a's region provably outlives b's at the point.
	Outlives(a, b graph.Token, at cfg.Point) bool
	// IsDead reports whether the node's value can no longer be used at the point.
	IsDead(node graph.Node, at cfg.Point) bool
	// SameRegion reports whether both tokens denote the same inference region.
	SameRegion(a, b graph.Token, at cfg.Point) bool
}

// LoopUse pairs a location with the access it is used under inside a loop.
type LoopUse struct {
	Location graph.Location
	Access   graph.Access
}

// Usage answers liveness and loop-usage questions.
type Usage interface {
	// UsedLocationsInLoop returns the locations the loop headed at head uses.
	UsedLocationsInLoop(head cfg.Block) []LoopUse
	// IsLiveAndInitializedAt reports whether the location holds a usable value
	// at the point.
	IsLiveAndInitializedAt(at cfg.Point, location graph.Location) bool
	// IsDirectlyBlocked reports whether some edge blocks the location itself
	// at the point, as opposed to one of its extensions.
	IsDirectlyBlocked(location graph.Location, at cfg.Point) bool
}

// StaticUsage is a table-backed Usage for tests and the demo front end.
type StaticUsage struct {
	Uses    map[cfg.Block][]LoopUse
	Live    map[string]bool // location key, empty means everything live
	Blocked map[string]bool // location key
}

// UsedLocationsInLoop returns the configured uses for the loop head.
func (s *StaticUsage) UsedLocationsInLoop(head cfg.Block) []LoopUse {
	return s.Uses[head]
}

// IsLiveAndInitializedAt consults the live table, defaulting to live.
func (s *StaticUsage) IsLiveAndInitializedAt(at cfg.Point, location graph.Location) bool {
	if len(s.Live) == 0 {
		return true
	}
	return s.Live[location.Key()]
}

// IsDirectlyBlocked consults the blocked table.
func (s *StaticUsage) IsDirectlyBlocked(location graph.Location, at cfg.Point) bool {
	return s.Blocked[location.Key()]
}

// StaticRegion is a table-backed Region for tests and the demo front end.
type StaticRegion struct {
	OutlivesPairs map[[2]string]bool // [longer, shorter] token keys
	Dead          map[string]bool    // node key
}

// Outlives consults the outlives table.
func (s *StaticRegion) Outlives(a, b graph.Token, at cfg.Point) bool {
	return s.OutlivesPairs[[2]string{a.Key(), b.Key()}]
}

// IsDead consults the dead table.
func (s *StaticRegion) IsDead(node graph.Node, at cfg.Point) bool {
	return s.Dead[node.Key()]
}

// SameRegion reports mutual outlives.
func (s *StaticRegion) SameRegion(a, b graph.Token, at cfg.Point) bool {
	return s.Outlives(a, b, at) && s.Outlives(b, a, at)
}
