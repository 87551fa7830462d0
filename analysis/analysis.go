// Package analysis drives the borrow analysis over one procedure: a
// worklist fixpoint that joins predecessor graphs at every block, applies
// the front end's edit actions and iterates until block states stop
// changing.
package analysis

import (
	"errors"

	"go.uber.org/zap"

	"github.com/viant/borrowck"
	"github.com/viant/borrowck/action"
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/cond"
	"github.com/viant/borrowck/graph"
	"github.com/viant/borrowck/join"
	"github.com/viant/borrowck/oracle"
)

// Config carries the analysis switches.
type Config struct {
	// CheckCycles enables the acyclicity assertion after every join.
	CheckCycles bool
	// Strict makes invariant violations fatal instead of logged warnings.
	Strict bool
	// MaxVisits bounds how often one block may be reprocessed before the
	// fixpoint is declared broken.
	MaxVisits int
}

// DefaultConfig returns the default switches: no cycle checking, warn-only
// violations.
func DefaultConfig() Config {
	return Config{MaxVisits: 64}
}

// Source supplies the front end's graph edits for each block, in statement
// order.
type Source interface {
	ActionsFor(block cfg.Block) []action.Action
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(block cfg.Block) []action.Action

// ActionsFor returns f(block).
func (f SourceFunc) ActionsFor(block cfg.Block) []action.Action {
	return f(block)
}

// Option customizes an Analyzer.
type Option func(a *Analyzer)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(a *Analyzer) {
		a.config = config
	}
}

// WithUsage sets the liveness/loop-usage oracle.
func WithUsage(usage oracle.Usage) Option {
	return func(a *Analyzer) {
		a.usage = usage
	}
}

// WithRegion sets the region/lifetime oracle.
func WithRegion(region oracle.Region) Option {
	return func(a *Analyzer) {
		a.region = region
	}
}

// Analyzer runs the fixpoint for one procedure.
type Analyzer struct {
	body   *cfg.Body
	source Source
	usage  oracle.Usage
	region oracle.Region
	config Config
	logger *zap.Logger
}

// New creates an analyzer for the procedure with the given action source.
func New(body *cfg.Body, source Source, options ...Option) *Analyzer {
	a := &Analyzer{
		body:   body,
		source: source,
		usage:  &oracle.StaticUsage{},
		region: &oracle.StaticRegion{},
		config: DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Result holds the per-block graphs of one analyzed procedure. An
// unsupported procedure carries the error instead of usable states.
type Result struct {
	Procedure   string
	Entry       map[cfg.Block]*graph.Graph
	Exit        map[cfg.Block]*graph.Graph
	Unsupported *borrowck.UnsupportedError
}

// Analyzed reports whether the procedure was fully analyzed.
func (r *Result) Analyzed() bool {
	return r.Unsupported == nil
}

// Run iterates the worklist to fixpoint. It returns an error only for fatal
// internal failures; an unsupported procedure is reported in the result and
// leaves the error nil.
func (a *Analyzer) Run() (*Result, error) {
	result := &Result{
		Procedure: a.body.Name(),
		Entry:     map[cfg.Block]*graph.Graph{},
		Exit:      map[cfg.Block]*graph.Graph{},
	}
	joiner := join.New(a.body, a.usage, a.region,
		join.WithLogger(a.logger),
		join.WithCycleCheck(a.config.CheckCycles),
		join.WithStrict(a.config.Strict))
	latest := graph.NewLatest()

	visits := map[cfg.Block]int{}
	arrivals := map[cfg.Block]cond.Conditions{a.body.Entry(): cond.Unconditional()}
	worklist := []cfg.Block{a.body.Entry()}
	queued := map[cfg.Block]bool{a.body.Entry(): true}

	for len(worklist) > 0 {
		block := worklist[0]
		worklist = worklist[1:]
		queued[block] = false

		visits[block]++
		if visits[block] > a.config.MaxVisits {
			return nil, borrowck.Internal("no fixpoint after %d visits", a.config.MaxVisits).
				At(a.body.Name(), int(block))
		}

		in, err := a.inState(joiner, result, arrivals, block)
		if err != nil {
			if a.reportUnsupported(result, err) {
				return result, nil
			}
			return nil, err
		}
		result.Entry[block] = in.Clone()

		actions := stamped(a.source.ActionsFor(block), arrivals[block])
		if _, err := action.Apply(in, latest, actions); err != nil {
			if a.reportUnsupported(result, err) {
				return result, nil
			}
			if a.config.Strict {
				return nil, err
			}
			a.logger.Warn("action batch failed",
				zap.String("procedure", a.body.Name()),
				zap.Stringer("block", block),
				zap.Error(err))
		}

		previous := result.Exit[block]
		if previous != nil && previous.Equal(in) {
			continue
		}
		result.Exit[block] = in
		a.logger.Debug("block state changed",
			zap.String("procedure", a.body.Name()),
			zap.Stringer("block", block),
			zap.Int("edges", in.Len()))
		for _, successor := range a.body.Successors(block) {
			if !queued[successor] {
				queued[successor] = true
				worklist = append(worklist, successor)
			}
		}
	}
	return result, nil
}

// inState joins the exit states of the block's processed predecessors,
// constraining each contribution to the control-flow edge it arrives over,
// and refreshes the block's arrival conditions on the way.
func (a *Analyzer) inState(joiner *join.Joiner, result *Result, arrivals map[cfg.Block]cond.Conditions, block cfg.Block) (*graph.Graph, error) {
	in := graph.New(a.body)
	first := true
	arrival := cond.Unconditional()
	for _, pred := range a.body.Predecessors(block) {
		exit := result.Exit[pred]
		if exit == nil {
			continue
		}
		contribution := exit.Clone()
		via := arrivals[pred].Clone()
		if len(a.body.Successors(pred)) > 1 {
			if err := contribution.AddPathCondition(pred, block); err != nil {
				return nil, err
			}
			if !via.Constrains(pred) {
				if err := via.Insert(pred, block, a.body); err != nil {
					return nil, err
				}
			}
		}
		if first {
			arrival = via
			first = false
		} else {
			arrival.Join(via, a.body)
		}
		if _, err := joiner.Join(in, contribution, pred, block); err != nil {
			return nil, err
		}
	}
	if block != a.body.Entry() {
		arrivals[block] = arrival
	}
	return in, nil
}

// stamped gives every added edge without conditions the conditions under
// which its block is reached, so an edge created on one branch arm is valid
// only on paths through that arm.
func stamped(actions []action.Action, arrival cond.Conditions) []action.Action {
	if arrival.IsUnconditional() {
		return actions
	}
	result := make([]action.Action, len(actions))
	for i, act := range actions {
		if add, ok := act.(action.AddEdge); ok && add.Edge.Conditions.IsUnconditional() {
			add.Edge.Conditions = arrival.Clone()
			result[i] = add
			continue
		}
		result[i] = act
	}
	return result
}

// reportUnsupported records an unsupported-construct failure on the result,
// reporting whether the error was of that kind.
func (a *Analyzer) reportUnsupported(result *Result, err error) bool {
	var unsupported *borrowck.UnsupportedError
	if !errors.As(err, &unsupported) {
		return false
	}
	result.Unsupported = unsupported
	result.Entry = nil
	result.Exit = nil
	a.logger.Info("procedure not analyzed",
		zap.String("procedure", a.body.Name()),
		zap.Error(unsupported))
	return true
}

// RunAll analyzes procedures in order. Unsupported procedures are reported
// in their results and do not stop the batch; a fatal internal failure does.
func RunAll(analyzers []*Analyzer) ([]*Result, error) {
	results := make([]*Result, 0, len(analyzers))
	for _, analyzer := range analyzers {
		result, err := analyzer.Run()
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
