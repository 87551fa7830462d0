// Package join merges borrow graphs at control-flow merge points. Ordinary
// merges union edges; back-edge merges summarize the loop body's borrow
// effect into finite hyperedges so fixpoint iteration terminates.
package join

import (
	"go.uber.org/zap"

	"github.com/viant/borrowck"
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/coupling"
	"github.com/viant/borrowck/graph"
	"github.com/viant/borrowck/oracle"
)

// Constructor builds the loop summary: it replaces the per-iteration borrow
// chains accumulated at a loop head with abstraction hyperedges over the
// loop's input and output tokens.
type Constructor struct {
	usage  oracle.Usage
	region oracle.Region
	logger *zap.Logger
}

// NewConstructor creates a constructor consulting the given oracles.
func NewConstructor(usage oracle.Usage, region oracle.Region, logger *zap.Logger) *Constructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Constructor{usage: usage, region: region, logger: logger}
}

// Construct summarizes the graph at a loop head in place. It returns an
// UnsupportedError when a live loop location dereferences a pointer no
// lifetime token tracks; such a procedure cannot be summarized.
func (c *Constructor) Construct(g *graph.Graph, head cfg.Block) error {
	at := cfg.Point{Block: head}
	live := c.liveUses(g, at, head)
	if len(live) == 0 {
		return nil
	}
	for _, location := range live {
		if err := c.checkSupported(g, location); err != nil {
			return err
		}
	}

	frozen := g.Frozen()
	inputs := c.inputTokens(frozen, live, at)
	outputs := c.outputTokens(frozen, live, at)
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil
	}

	pairs, interior := c.connect(frozen, inputs, outputs)
	pairs = c.addProvenPairs(pairs, inputs, outputs, at)
	if len(pairs) == 0 {
		return nil
	}

	hypers, err := coupling.Partition(pairs)
	if err != nil {
		c.logger.Debug("coupling degraded",
			zap.String("procedure", g.Body().Name()),
			zap.Stringer("head", head),
			zap.Error(err))
	}

	for _, kind := range interior {
		g.RemoveKind(kind)
	}
	for _, input := range inputs {
		if token, ok := input.(graph.Token); ok && token.IsCurrent() {
			g.RelabelToken(token, token.Snapshotted(at))
		}
	}
	for _, hyper := range hypers {
		// input and output sets of one hyperedge must stay disjoint
		disjoint := excludeNodes(hyper.Outputs, hyper.Inputs)
		if len(disjoint) == 0 {
			continue
		}
		if hyper.Degraded {
			g.Insert(graph.NewEdge(graph.Abstraction{
				Inputs:  hyper.Inputs,
				Outputs: disjoint,
				Origin:  graph.OriginLoop,
				At:      at,
			}))
			continue
		}
		g.Insert(graph.NewEdge(graph.Coupled{
			Inputs:  hyper.Inputs,
			Outputs: disjoint,
			At:      at,
		}))
	}
	return nil
}

// excludeNodes returns nodes without any member of exclude.
func excludeNodes(nodes, exclude []graph.Node) []graph.Node {
	keys := map[string]bool{}
	for _, node := range exclude {
		keys[node.Key()] = true
	}
	var result []graph.Node
	for _, node := range nodes {
		if !keys[node.Key()] {
			result = append(result, node)
		}
	}
	return result
}

// liveUses restricts the loop's used locations to those live and initialized
// at the head.
func (c *Constructor) liveUses(g *graph.Graph, at cfg.Point, head cfg.Block) []graph.Location {
	var live []graph.Location
	for _, use := range c.usage.UsedLocationsInLoop(head) {
		if c.usage.IsLiveAndInitializedAt(at, use.Location) {
			live = append(live, use.Location)
		}
	}
	return live
}

// checkSupported rejects a live location dereferencing a pointer no token
// tracks: an untracked (raw) pointer target cannot be summarized.
func (c *Constructor) checkSupported(g *graph.Graph, location graph.Location) error {
	derefDepth := 0
	for _, step := range location.Projection {
		if step == graph.DerefField {
			derefDepth++
		}
	}
	if derefDepth == 0 {
		return nil
	}
	if len(tokensForLocation(g.Frozen(), location)) == 0 {
		return borrowck.Unsupported("untracked pointer dereference", g.Body().Name(), location.String())
	}
	return nil
}

// inputTokens collects the tokens of the blocker locations: live locations
// with a non-empty lifetime-token set, plus the external unblocked borrow
// roots their chains end in. Tokens the region oracle reports dead at the
// head are skipped; they cannot carry borrow information out of the loop.
func (c *Constructor) inputTokens(frozen *graph.Frozen, live []graph.Location, at cfg.Point) []graph.Node {
	liveKeys := map[string]bool{}
	for _, location := range live {
		liveKeys[location.Key()] = true
	}
	byKey := map[string]graph.Node{}
	for _, location := range live {
		for _, token := range tokensForLocation(frozen, location) {
			if c.region.IsDead(token, at) {
				continue
			}
			byKey[token.Key()] = token
		}
		for _, root := range borrowRoots(frozen, location, liveKeys) {
			if token, ok := root.(graph.Token); ok && !c.region.IsDead(token, at) {
				byKey[token.Key()] = token
			}
		}
	}
	return sortedByKey(byKey)
}

// outputTokens collects the tokens of the locations directly blocked at the
// head: the loop's candidate outputs. Dead tokens are skipped as above.
func (c *Constructor) outputTokens(frozen *graph.Frozen, live []graph.Location, at cfg.Point) []graph.Node {
	byKey := map[string]graph.Node{}
	for _, location := range live {
		if !c.usage.IsDirectlyBlocked(location, at) {
			continue
		}
		for _, token := range tokensForLocation(frozen, location) {
			if c.region.IsDead(token, at) {
				continue
			}
			byKey[token.Key()] = token
		}
	}
	return sortedByKey(byKey)
}

// connect pairs each input with every output a borrow/flow chain links it
// to, and records the edge kinds traversed on successful searches; those
// edges form the interior the summary replaces. Chains are followed in both
// directions and may hop between a location and its token projections, since
// an iteration can move borrow information either way.
func (c *Constructor) connect(frozen *graph.Frozen, inputs, outputs []graph.Node) ([]coupling.Pair, []graph.Kind) {
	outputKeys := map[string]graph.Node{}
	for _, output := range outputs {
		outputKeys[output.Key()] = output
	}
	samePlace := placeAdjacency(frozen)

	var pairs []coupling.Pair
	interior := map[string]graph.Kind{}
	for _, input := range inputs {
		visited := map[string]bool{input.Key(): true}
		traversed := map[string]graph.Kind{}
		reached := map[string]graph.Node{}
		frontier := []graph.Node{input}
		for len(frontier) > 0 {
			node := frontier[0]
			frontier = frontier[1:]
			var steps []step
			for _, edge := range frozen.EdgesBlocking(node) {
				steps = appendSteps(steps, edge, edge.Kind.BlockedByNodes())
			}
			for _, edge := range frozen.EdgesBlockedBy(node) {
				steps = appendSteps(steps, edge, edge.Kind.BlockedNodes())
			}
			for _, neighbour := range samePlace[placeKey(node)] {
				steps = append(steps, step{node: neighbour})
			}
			for _, next := range steps {
				key := next.node.Key()
				if next.edge != nil {
					traversed[next.edge.Kind.Key()] = next.edge.Kind
				}
				if output, ok := outputKeys[key]; ok && key != input.Key() {
					reached[key] = output
				}
				if !visited[key] {
					visited[key] = true
					frontier = append(frontier, next.node)
				}
			}
		}
		if len(reached) == 0 {
			continue
		}
		for _, output := range sortedByKey(reached) {
			pairs = append(pairs, coupling.Pair{Input: input, Output: output})
		}
		for key, kind := range traversed {
			interior[key] = kind
		}
	}

	kinds := make([]graph.Kind, 0, len(interior))
	for _, key := range sortedKeys(interior) {
		kinds = append(kinds, interior[key])
	}
	return pairs, kinds
}

type step struct {
	edge *graph.Edge
	node graph.Node
}

func appendSteps(steps []step, edge *graph.Edge, nodes []graph.Node) []step {
	for _, node := range nodes {
		steps = append(steps, step{edge: edge, node: node})
	}
	return steps
}

// placeAdjacency groups the graph's current nodes by the place they denote,
// so a location and its token projections count as connected.
func placeAdjacency(frozen *graph.Frozen) map[string][]graph.Node {
	result := map[string][]graph.Node{}
	for _, node := range frozen.Nodes() {
		result[placeKey(node)] = append(result[placeKey(node)], node)
	}
	return result
}

func placeKey(node graph.Node) string {
	switch actual := node.(type) {
	case graph.Location:
		unlabelled := actual
		unlabelled.Label = nil
		return unlabelled.Key()
	case graph.Token:
		unlabelled := actual.Place
		unlabelled.Label = nil
		return unlabelled.Key()
	}
	return node.Key()
}


// addProvenPairs connects input and output tokens the region oracle relates
// even when no explicit edge chain does: a provable outlives between them
// means the loop can move borrow information across.
func (c *Constructor) addProvenPairs(pairs []coupling.Pair, inputs, outputs []graph.Node, at cfg.Point) []coupling.Pair {
	seen := map[string]bool{}
	for _, pair := range pairs {
		seen[pair.Input.Key()+"->"+pair.Output.Key()] = true
	}
	for _, input := range inputs {
		inputToken, ok := input.(graph.Token)
		if !ok {
			continue
		}
		for _, output := range outputs {
			outputToken, ok := output.(graph.Token)
			if !ok {
				continue
			}
			key := input.Key() + "->" + output.Key()
			if seen[key] || input.Key() == output.Key() {
				continue
			}
			if c.region.Outlives(outputToken, inputToken, at) || c.region.SameRegion(outputToken, inputToken, at) {
				seen[key] = true
				pairs = append(pairs, coupling.Pair{Input: input, Output: output})
			}
		}
	}
	return pairs
}

// tokensForLocation returns the graph's tokens projecting from the location
// or an extension of it, current forms only.
func tokensForLocation(frozen *graph.Frozen, location graph.Location) []graph.Token {
	target := location
	target.Label = nil
	var result []graph.Token
	for _, node := range frozen.Nodes() {
		token, ok := node.(graph.Token)
		if !ok || !token.IsCurrent() || token.Place.IsLabelled() {
			continue
		}
		if target.IsPrefixOf(token.Place) || token.Place.IsPrefixOf(target) {
			result = append(result, token)
		}
	}
	return result
}

// borrowRoots returns the maximal transitive blockers of the location:
// unblocked chain ends that are not themselves live loop locations.
func borrowRoots(frozen *graph.Frozen, location graph.Location, liveKeys map[string]bool) []graph.Node {
	byKey := map[string]graph.Node{}
	visited := map[string]bool{location.Key(): true}
	frontier := []graph.Node{location}
	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]
		for _, edge := range frozen.EdgesBlocking(node) {
			for _, blocker := range edge.Kind.BlockedByNodes() {
				key := blocker.Key()
				if visited[key] {
					continue
				}
				visited[key] = true
				if !frozen.HasEdgeBlocking(blocker) {
					if !liveKeys[key] {
						byKey[key] = blocker
					}
					continue
				}
				frontier = append(frontier, blocker)
			}
		}
	}
	return sortedByKey(byKey)
}

func sortedByKey(byKey map[string]graph.Node) []graph.Node {
	result := make([]graph.Node, 0, len(byKey))
	for _, key := range sortedKeys(byKey) {
		result = append(result, byKey[key])
	}
	return result
}
