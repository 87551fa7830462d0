package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/borrowck/action"
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/graph"
	"github.com/viant/borrowck/oracle"
)

func TestAnalyzer_StraightLineBorrow(t *testing.T) {
	body := cfg.NewBody("straight", [][]cfg.Block{{1}, {2}, {}})
	x := graph.Loc("x")
	r := graph.Tok(graph.Loc("r").Deref(), "'0")
	borrow := graph.Borrow{Blocked: x, Assigned: r, Access: graph.AccessMutable, Origin: cfg.Point{Block: 0, Statement: 1}}

	source := SourceFunc(func(block cfg.Block) []action.Action {
		switch block {
		case 0:
			return []action.Action{action.AddEdge{Edge: graph.NewEdge(borrow), Why: "x borrowed into r"}}
		case 1:
			return []action.Action{action.RemoveEdge{Edge: graph.NewEdge(borrow), Why: "borrow expired"}}
		}
		return nil
	})

	result, err := New(body, source).Run()
	assert.Nil(t, err)
	assert.True(t, result.Analyzed())

	afterBorrow := result.Exit[0]
	assert.EqualValues(t, 1, afterBorrow.Len())
	assert.True(t, afterBorrow.IsRoot(x), "owned borrowed location stays a root")
	assert.True(t, afterBorrow.IsRoot(r), "nothing blocks the assigned reference")

	afterRemove := result.Exit[1]
	assert.EqualValues(t, 0, afterRemove.Len(), "graph is empty once the borrow expires")
	assert.True(t, afterRemove.IsRoot(r))
}

func TestAnalyzer_BranchJoinDiscriminates(t *testing.T) {
	body := cfg.NewBody("diamond", [][]cfg.Block{{1, 2}, {3}, {3}, {}})
	x := graph.Loc("x")
	r := graph.Tok(graph.Loc("r").Deref(), "'0")
	thenBorrow := graph.Borrow{Blocked: x, Assigned: r, Access: graph.AccessMutable, Origin: cfg.Point{Block: 1}}
	elseBorrow := graph.Borrow{Blocked: x, Assigned: r, Access: graph.AccessMutable, Origin: cfg.Point{Block: 2}}

	source := SourceFunc(func(block cfg.Block) []action.Action {
		switch block {
		case 1:
			return []action.Action{action.AddEdge{Edge: graph.NewEdge(thenBorrow), Why: "then arm"}}
		case 2:
			return []action.Action{action.AddEdge{Edge: graph.NewEdge(elseBorrow), Why: "else arm"}}
		}
		return nil
	})

	result, err := New(body, source).Run()
	assert.Nil(t, err)

	joined := result.Exit[3]
	assert.EqualValues(t, 2, joined.Len(), "both borrows survive the join")

	stored, ok := joined.Edge(thenBorrow)
	assert.True(t, ok)
	assert.True(t, stored.Conditions.ValidForPath(cfg.Path{0, 1, 3}, body))
	assert.False(t, stored.Conditions.ValidForPath(cfg.Path{0, 2, 3}, body))

	stored, ok = joined.Edge(elseBorrow)
	assert.True(t, ok)
	assert.False(t, stored.Conditions.ValidForPath(cfg.Path{0, 1, 3}, body))
	assert.True(t, stored.Conditions.ValidForPath(cfg.Path{0, 2, 3}, body))
}

func loopFixture() (*cfg.Body, Source, oracle.Usage) {
	body := cfg.NewBody("loop", [][]cfg.Block{{1}, {2, 3}, {1}, {}})
	srcDeref := graph.Loc("src").Deref()
	tSrc := graph.Tok(srcDeref, "'0")
	tDst := graph.Tok(graph.Loc("dst").Deref(), "'1")

	source := SourceFunc(func(block cfg.Block) []action.Action {
		if block != 2 {
			return nil
		}
		return []action.Action{
			action.AddEdge{
				Edge: graph.NewEdge(graph.Borrow{Blocked: srcDeref, Assigned: tDst, Access: graph.AccessShared, Origin: cfg.Point{Block: 2}}),
				Why:  "*src borrowed into dst",
			},
			action.AddEdge{
				Edge: graph.NewEdge(graph.Flow{From: tSrc, To: tDst}),
				Why:  "src lifetime flows into dst",
			},
		}
	})
	usage := &oracle.StaticUsage{
		Uses: map[cfg.Block][]oracle.LoopUse{
			1: {
				{Location: srcDeref, Access: graph.AccessShared},
				{Location: graph.Loc("dst"), Access: graph.AccessMutable},
			},
		},
		Blocked: map[string]bool{srcDeref.Key(): true},
	}
	return body, source, usage
}

func TestAnalyzer_LoopReachesFixpoint(t *testing.T) {
	body, source, usage := loopFixture()
	result, err := New(body, source, WithUsage(usage)).Run()
	assert.Nil(t, err)
	assert.True(t, result.Analyzed())

	head := result.Exit[1]
	assert.EqualValues(t, 1, head.Len(), "per-iteration chain collapsed into one summary")
	summary := head.Edges()[0]
	switch summary.Kind.(type) {
	case graph.Coupled, graph.Abstraction:
	default:
		t.Fatalf("expected a summary hyperedge, got %v", summary.Kind)
	}

	exit := result.Exit[3]
	assert.EqualValues(t, 1, exit.Len(), "summary survives past the loop")
}

func TestAnalyzer_UnsupportedProcedureIsReported(t *testing.T) {
	body := cfg.NewBody("raw", [][]cfg.Block{{1}, {2, 3}, {1}, {}})
	raw := graph.Loc("p").Deref()

	source := SourceFunc(func(block cfg.Block) []action.Action {
		if block != 2 {
			return nil
		}
		return []action.Action{action.AddEdge{
			Edge: graph.NewEdge(graph.Borrow{Blocked: raw, Assigned: graph.Tok(graph.Loc("q").Deref(), "'0"), Access: graph.AccessMutable, Origin: cfg.Point{Block: 2}}),
			Why:  "*p borrowed",
		}}
	})
	usage := &oracle.StaticUsage{
		Uses: map[cfg.Block][]oracle.LoopUse{
			1: {{Location: raw, Access: graph.AccessMutable}},
		},
	}

	result, err := New(body, source, WithUsage(usage)).Run()
	assert.Nil(t, err, "unsupported constructs are not fatal")
	assert.False(t, result.Analyzed())
	assert.NotNil(t, result.Unsupported)
	assert.EqualValues(t, "raw", result.Unsupported.Procedure)
}

func TestRunAll_ContinuesPastUnsupported(t *testing.T) {
	supportedBody := cfg.NewBody("ok", [][]cfg.Block{{1}, {}})
	supported := New(supportedBody, SourceFunc(func(cfg.Block) []action.Action { return nil }))

	body, source, usage := loopFixture()
	rawBody := cfg.NewBody("raw", [][]cfg.Block{{1}, {2, 3}, {1}, {}})
	raw := graph.Loc("p").Deref()
	rawSource := SourceFunc(func(block cfg.Block) []action.Action {
		if block != 2 {
			return nil
		}
		return []action.Action{action.AddEdge{
			Edge: graph.NewEdge(graph.Borrow{Blocked: raw, Assigned: graph.Tok(graph.Loc("q").Deref(), "'0"), Access: graph.AccessMutable, Origin: cfg.Point{Block: 2}}),
			Why:  "*p borrowed",
		}}
	})
	rawUsage := &oracle.StaticUsage{
		Uses: map[cfg.Block][]oracle.LoopUse{
			1: {{Location: raw, Access: graph.AccessMutable}},
		},
	}
	unsupported := New(rawBody, rawSource, WithUsage(rawUsage))

	results, err := RunAll([]*Analyzer{unsupported, supported, New(body, source, WithUsage(usage))})
	assert.Nil(t, err)
	assert.EqualValues(t, 3, len(results))
	assert.False(t, results[0].Analyzed())
	assert.True(t, results[1].Analyzed())
	assert.True(t, results[2].Analyzed())
}
