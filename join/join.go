package join

import (
	"sort"

	"go.uber.org/zap"

	"github.com/viant/borrowck"
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/graph"
	"github.com/viant/borrowck/oracle"
)

// Option customizes a Joiner.
type Option func(j *Joiner)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(j *Joiner) {
		j.logger = logger
	}
}

// WithCycleCheck enables the acyclicity assertion after each join. Off by
// default; it walks every blocked-by chain of the merged graph.
func WithCycleCheck(enabled bool) Option {
	return func(j *Joiner) {
		j.checkCycles = enabled
	}
}

// WithStrict makes invariant violations fatal instead of logged warnings.
func WithStrict(strict bool) Option {
	return func(j *Joiner) {
		j.strict = strict
	}
}

// Joiner merges a predecessor's borrow graph into the graph at a merge
// point, selecting the loop regime when the merge edge is a back-edge.
type Joiner struct {
	body        *cfg.Body
	constructor *Constructor
	logger      *zap.Logger
	checkCycles bool
	strict      bool
}

// New creates a Joiner over the procedure shape, consulting the oracles for
// loop summarization.
func New(body *cfg.Body, usage oracle.Usage, region oracle.Region, options ...Option) *Joiner {
	j := &Joiner{body: body, logger: zap.NewNop()}
	for _, option := range options {
		option(j)
	}
	j.constructor = NewConstructor(usage, region, j.logger)
	return j
}

// Join merges other into self across the control-flow edge from -> to,
// reporting whether self changed. A back-edge (to dominates from) selects
// the loop regime; any other edge is an ordinary merge.
func (j *Joiner) Join(self, other *graph.Graph, from, to cfg.Block) (bool, error) {
	var changed bool
	var err error
	if j.body.IsBackEdge(from, to) {
		changed, err = j.joinLoop(self, other, to)
	} else {
		changed = j.joinMerge(self, other)
	}
	if err != nil {
		return changed, err
	}
	if j.checkCycles {
		if violation := j.assertInvariants(self, to); violation != nil {
			if j.strict {
				return changed, violation
			}
			j.logger.Warn("invariant violation",
				zap.String("procedure", j.body.Name()),
				zap.Stringer("block", to),
				zap.Error(violation))
		}
	}
	return changed, nil
}

// assertInvariants checks feasible-path acyclicity and summary input/output
// disjointness on the merged graph.
func (j *Joiner) assertInvariants(g *graph.Graph, at cfg.Block) error {
	if !g.IsAcyclic() {
		return borrowck.Internal("borrow graph cycle after join").At(j.body.Name(), int(at))
	}
	for _, edge := range g.Edges() {
		if !isSummary(edge.Kind) {
			continue
		}
		for _, blocked := range edge.Kind.BlockedNodes() {
			for _, blocker := range edge.Kind.BlockedByNodes() {
				if blocked.Key() == blocker.Key() {
					return borrowck.Internal("summary edge blocks its own blocker %s", blocked).
						At(j.body.Name(), int(at))
				}
			}
		}
	}
	return nil
}

// joinMerge unions other's edges into self, then drops edges a summary
// hyperedge already encapsulates and resolves future placeholders whose
// current form became part of the graph.
func (j *Joiner) joinMerge(self, other *graph.Graph) bool {
	changed := false
	for _, edge := range other.Edges() {
		if self.Insert(edge) {
			changed = true
		}
	}
	if j.dropEncapsulated(self) {
		changed = true
	}
	if j.resolveFutures(self) {
		changed = true
	}
	return changed
}

// joinLoop merges the iteration's graph and summarizes at the head. The
// result counts as changed unless it is structurally identical to the state
// before the iteration.
func (j *Joiner) joinLoop(self, other *graph.Graph, head cfg.Block) (bool, error) {
	before, err := self.Fingerprint()
	if err != nil {
		return false, err
	}
	merged := self.Clone()
	for _, edge := range other.Edges() {
		merged.Insert(edge)
	}
	if err := j.constructor.Construct(merged, head); err != nil {
		return false, err
	}
	after, err := merged.Fingerprint()
	if err != nil {
		return false, err
	}
	if after == before {
		return false, nil
	}
	self.ReplaceWith(merged)
	j.logger.Debug("loop summarized",
		zap.String("procedure", j.body.Name()),
		zap.Stringer("head", head),
		zap.Int("edges", self.Len()))
	return true, nil
}

// dropEncapsulated removes every non-summary edge whose blocked and
// blocked-by node sets are both covered by one summary hyperedge.
func (j *Joiner) dropEncapsulated(g *graph.Graph) bool {
	var summaries []graph.Edge
	for _, edge := range g.Edges() {
		if isSummary(edge.Kind) {
			summaries = append(summaries, edge)
		}
	}
	if len(summaries) == 0 {
		return false
	}
	changed := false
	for _, edge := range g.Edges() {
		if isSummary(edge.Kind) {
			continue
		}
		for _, summary := range summaries {
			if coveredBy(edge.Kind, summary.Kind) {
				g.RemoveKind(edge.Kind)
				changed = true
				break
			}
		}
	}
	return changed
}

// resolveFutures relabels future placeholders whose current form is now part
// of the graph: the awaited value became reachable.
func (j *Joiner) resolveFutures(g *graph.Graph) bool {
	changed := false
	for _, node := range g.Nodes() {
		token, ok := node.(graph.Token)
		if !ok || token.Mark != graph.MarkFuture {
			continue
		}
		current := token
		current.Mark = graph.MarkCurrent
		current.At = cfg.Point{}
		if g.Contains(current) && g.RelabelToken(token, current) {
			changed = true
		}
	}
	return changed
}

func isSummary(kind graph.Kind) bool {
	switch kind.(type) {
	case graph.Abstraction, graph.Coupled:
		return true
	}
	return false
}

// coveredBy reports whether the summary's blocked and blocked-by sets
// contain the edge's respective sets.
func coveredBy(kind, summary graph.Kind) bool {
	return subset(kind.BlockedNodes(), summary.BlockedNodes()) &&
		subset(kind.BlockedByNodes(), summary.BlockedByNodes())
}

func subset(nodes, within []graph.Node) bool {
	keys := map[string]bool{}
	for _, node := range within {
		keys[node.Key()] = true
	}
	for _, node := range nodes {
		if !keys[node.Key()] {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
