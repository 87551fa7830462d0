package join

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/borrowck"
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/graph"
	"github.com/viant/borrowck/oracle"
)

// bb0 -> bb1 (head); bb1 -> {bb2 (body), bb3 (exit)}; bb2 -> bb1 (latch)
func loopBody() *cfg.Body {
	return cfg.NewBody("loop", [][]cfg.Block{{1}, {2, 3}, {1}, {}})
}

func diamond() *cfg.Body {
	return cfg.NewBody("diamond", [][]cfg.Block{{1, 2}, {3}, {3}, {}})
}

func noOracles() (oracle.Usage, oracle.Region) {
	return &oracle.StaticUsage{}, &oracle.StaticRegion{}
}

func TestJoiner_MergeKeepsBothArms(t *testing.T) {
	body := diamond()
	x := graph.Loc("x")
	r := graph.Tok(graph.Loc("r").Deref(), "'0")

	thenEdge := graph.NewEdge(graph.Borrow{Blocked: x, Assigned: r, Access: graph.AccessMutable, Origin: cfg.Point{Block: 1}})
	assert.Nil(t, thenEdge.Conditions.Insert(0, 1, body))
	elseEdge := graph.NewEdge(graph.Borrow{Blocked: x, Assigned: r, Access: graph.AccessMutable, Origin: cfg.Point{Block: 2}})
	assert.Nil(t, elseEdge.Conditions.Insert(0, 2, body))

	left := graph.New(body)
	left.Insert(thenEdge)
	right := graph.New(body)
	right.Insert(elseEdge)

	usage, region := noOracles()
	joiner := New(body, usage, region)
	changed, err := joiner.Join(left, right, 2, 3)
	assert.Nil(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 2, left.Len(), "both borrows survive with their own conditions")

	stored, ok := left.Edge(thenEdge.Kind)
	assert.True(t, ok)
	assert.True(t, stored.Conditions.ValidForPath(cfg.Path{0, 1, 3}, body))
	assert.False(t, stored.Conditions.ValidForPath(cfg.Path{0, 2, 3}, body))

	stored, ok = left.Edge(elseEdge.Kind)
	assert.True(t, ok)
	assert.False(t, stored.Conditions.ValidForPath(cfg.Path{0, 1, 3}, body))
	assert.True(t, stored.Conditions.ValidForPath(cfg.Path{0, 2, 3}, body))
}

func TestJoiner_MergeIsIdempotent(t *testing.T) {
	body := diamond()
	edge := graph.NewEdge(graph.Flow{
		From: graph.Tok(graph.Loc("r").Deref(), "'0"),
		To:   graph.Tok(graph.Loc("s").Deref(), "'1"),
	})
	left := graph.New(body)
	left.Insert(edge)
	right := left.Clone()

	usage, region := noOracles()
	joiner := New(body, usage, region)
	changed, err := joiner.Join(left, right, 1, 3)
	assert.Nil(t, err)
	assert.False(t, changed, "merging an identical graph changes nothing")
}

func TestJoiner_MergeDropsEncapsulated(t *testing.T) {
	body := diamond()
	a := graph.Tok(graph.Loc("a").Deref(), "'0")
	b := graph.Tok(graph.Loc("b").Deref(), "'1")

	left := graph.New(body)
	left.Insert(graph.NewEdge(graph.Coupled{
		Inputs:  []graph.Node{a},
		Outputs: []graph.Node{b},
		At:      cfg.Point{Block: 1},
	}))
	right := graph.New(body)
	right.Insert(graph.NewEdge(graph.Flow{From: a, To: b}))

	usage, region := noOracles()
	joiner := New(body, usage, region)
	changed, err := joiner.Join(left, right, 2, 3)
	assert.Nil(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 1, left.Len(), "the summarized flow edge is redundant")
	assert.EqualValues(t, "coupled", left.Edges()[0].Kind.Name())
}

func TestJoiner_MergeResolvesFutures(t *testing.T) {
	body := diamond()
	x := graph.Loc("x")
	r := graph.Tok(graph.Loc("r").Deref(), "'0")
	s := graph.Tok(graph.Loc("s").Deref(), "'1")

	left := graph.New(body)
	left.Insert(graph.NewEdge(graph.Flow{From: r.Future(), To: s}))
	right := graph.New(body)
	right.Insert(graph.NewEdge(graph.Borrow{Blocked: x, Assigned: r, Access: graph.AccessShared, Origin: cfg.Point{Block: 1}}))

	usage, region := noOracles()
	joiner := New(body, usage, region)
	changed, err := joiner.Join(left, right, 2, 3)
	assert.Nil(t, err)
	assert.True(t, changed)
	assert.False(t, left.Contains(r.Future()), "placeholder resolved to the reachable current form")

	flows := left.EdgesBlocking(r)
	assert.EqualValues(t, 1, len(flows))
	assert.EqualValues(t, "flow", flows[0].Kind.Name())
}

func loopOracles() (oracle.Usage, oracle.Region) {
	srcDeref := graph.Loc("src").Deref()
	usage := &oracle.StaticUsage{
		Uses: map[cfg.Block][]oracle.LoopUse{
			1: {
				{Location: srcDeref, Access: graph.AccessShared},
				{Location: graph.Loc("dst"), Access: graph.AccessMutable},
			},
		},
		Blocked: map[string]bool{srcDeref.Key(): true},
	}
	return usage, &oracle.StaticRegion{}
}

func iterationEdges(body *cfg.Body) []graph.Edge {
	srcDeref := graph.Loc("src").Deref()
	tSrc := graph.Tok(srcDeref, "'0")
	tDst := graph.Tok(graph.Loc("dst").Deref(), "'1")
	return []graph.Edge{
		graph.NewEdge(graph.Borrow{Blocked: srcDeref, Assigned: tDst, Access: graph.AccessShared, Origin: cfg.Point{Block: 2}}),
		graph.NewEdge(graph.Flow{From: tSrc, To: tDst}),
	}
}

func TestJoiner_LoopConverges(t *testing.T) {
	body := loopBody()
	usage, region := loopOracles()
	joiner := New(body, usage, region)

	head := graph.New(body)
	for _, edge := range iterationEdges(body) {
		head.Insert(edge)
	}

	latch := head.Clone()
	changed, err := joiner.Join(head, latch, 2, 1)
	assert.Nil(t, err)
	assert.True(t, changed, "first back-edge join splices the summary in")

	summarized := false
	for _, edge := range head.Edges() {
		switch edge.Kind.(type) {
		case graph.Coupled, graph.Abstraction:
			summarized = true
		}
	}
	assert.True(t, summarized, "per-iteration chain replaced by a summary hyperedge")
	size := head.Len()

	// the next iteration re-emits the same chain; the summary absorbs it
	latch = head.Clone()
	for _, edge := range iterationEdges(body) {
		latch.Insert(edge)
	}
	changed, err = joiner.Join(head, latch, 2, 1)
	assert.Nil(t, err)
	assert.False(t, changed, "fixpoint reached")
	assert.EqualValues(t, size, head.Len(), "edge count stays stable")
}

func TestConstructor_SkipsDeadTokens(t *testing.T) {
	body := loopBody()
	usage, _ := loopOracles()
	region := &oracle.StaticRegion{Dead: map[string]bool{
		graph.Tok(graph.Loc("src").Deref(), "'0").Key(): true,
		graph.Tok(graph.Loc("dst").Deref(), "'1").Key(): true,
	}}
	constructor := NewConstructor(usage, region, nil)

	head := graph.New(body)
	for _, edge := range iterationEdges(body) {
		head.Insert(edge)
	}
	size := head.Len()

	assert.Nil(t, constructor.Construct(head, 1))
	assert.EqualValues(t, size, head.Len(), "dead tokens carry nothing out of the loop, so no summary forms")
	for _, edge := range head.Edges() {
		switch edge.Kind.(type) {
		case graph.Coupled, graph.Abstraction:
			t.Fatalf("unexpected summary over dead tokens: %v", edge.Kind)
		}
	}
}

func TestJoiner_LoopUnsupported(t *testing.T) {
	body := loopBody()
	raw := graph.Loc("p").Deref()
	usage := &oracle.StaticUsage{
		Uses: map[cfg.Block][]oracle.LoopUse{
			1: {{Location: raw, Access: graph.AccessMutable}},
		},
	}
	joiner := New(body, usage, &oracle.StaticRegion{})

	head := graph.New(body)
	head.Insert(graph.NewEdge(graph.Borrow{
		Blocked:  raw,
		Assigned: graph.Tok(graph.Loc("q").Deref(), "'0"),
		Access:   graph.AccessMutable,
		Origin:   cfg.Point{Block: 2},
	}))

	_, err := joiner.Join(head, head.Clone(), 2, 1)
	var unsupported *borrowck.UnsupportedError
	assert.ErrorAs(t, err, &unsupported, "untracked pointer dereference in a loop")
}

func TestJoiner_MergePreservesAcyclicity(t *testing.T) {
	// random DAG-shaped flow graphs per branch arm; any cycle mixing both
	// arms carries contradictory branch choices and is infeasible
	body := cfg.NewBody("funnel", [][]cfg.Block{{1, 2}, {3}, {3}, {4}, {}})
	random := rand.New(rand.NewSource(42))

	tokens := make([]graph.Token, 6)
	for i := range tokens {
		tokens[i] = graph.Tok(graph.Loc(fmt.Sprintf("t%d", i)).Deref(), fmt.Sprintf("'%d", i))
	}
	randomDAG := func(arm cfg.Block) *graph.Graph {
		order := random.Perm(len(tokens))
		g := graph.New(body)
		for n := 0; n < 6; n++ {
			i := random.Intn(len(tokens) - 1)
			j := i + 1 + random.Intn(len(tokens)-i-1)
			edge := graph.NewEdge(graph.Flow{From: tokens[order[i]], To: tokens[order[j]]})
			assert.Nil(t, edge.Conditions.Insert(0, arm, body))
			g.Insert(edge)
		}
		return g
	}

	usage, region := noOracles()
	joiner := New(body, usage, region)
	for trial := 0; trial < 50; trial++ {
		left, right := randomDAG(1), randomDAG(2)
		assert.True(t, left.IsAcyclic())
		assert.True(t, right.IsAcyclic())

		_, err := joiner.Join(left, right, 2, 3)
		assert.Nil(t, err)
		assert.True(t, left.IsAcyclic(), "trial %d: merged graph stays acyclic", trial)
	}
}

func TestJoiner_StrictCycleCheck(t *testing.T) {
	body := diamond()
	r := graph.Tok(graph.Loc("r").Deref(), "'0")
	s := graph.Tok(graph.Loc("s").Deref(), "'1")

	left := graph.New(body)
	left.Insert(graph.NewEdge(graph.Flow{From: r, To: s}))
	right := graph.New(body)
	right.Insert(graph.NewEdge(graph.Flow{From: s, To: r}))

	usage, region := noOracles()
	lenient := New(body, usage, region, WithCycleCheck(true))
	_, err := lenient.Join(left.Clone(), right, 1, 3)
	assert.Nil(t, err, "violations are warnings by default")

	strict := New(body, usage, region, WithCycleCheck(true), WithStrict(true))
	_, err = strict.Join(left, right, 1, 3)
	var internal *borrowck.InternalError
	assert.ErrorAs(t, err, &internal, "strict mode surfaces the broken invariant")
}
