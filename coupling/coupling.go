// Package coupling partitions the single-input/output summary edges of one
// loop iteration or call into hyperedges whose inputs share an identical
// output set.
package coupling

import (
	"errors"
	"sort"

	"github.com/viant/borrowck/graph"
)

// ErrCannotConstructShape reports that an input's output set emptied before
// the input was grouped, so no shared-output hyperedge can contain it. The
// caller degrades to keeping that input's original edges individually.
var ErrCannotConstructShape = errors.New("coupling: cannot construct shape")

// Pair is one single-input/output summary edge.
type Pair struct {
	Input  graph.Node
	Output graph.Node
}

// Hyper is one group of the partition: every input blocks exactly the same
// output set. A degraded hyper could not be grouped and carries a single
// input with its original outputs.
type Hyper struct {
	Inputs   []graph.Node
	Outputs  []graph.Node
	Degraded bool
}

// Partition groups pairs into hyperedges. Inputs are grouped when their
// remaining output sets are identical; after a group is formed its outputs
// are removed from every remaining input's set so shared outputs are not
// counted twice. An input whose set empties before grouping is returned as
// its own degraded hyperedge over its original outputs, together with
// ErrCannotConstructShape; the rest of the partition is still produced.
func Partition(pairs []Pair) ([]Hyper, error) {
	outputs := map[string]map[string]graph.Node{}
	inputs := map[string]graph.Node{}
	original := map[string]map[string]graph.Node{}
	for _, pair := range pairs {
		key := pair.Input.Key()
		inputs[key] = pair.Input
		if outputs[key] == nil {
			outputs[key] = map[string]graph.Node{}
			original[key] = map[string]graph.Node{}
		}
		outputs[key][pair.Output.Key()] = pair.Output
		original[key][pair.Output.Key()] = pair.Output
	}

	remaining := make([]string, 0, len(inputs))
	for key := range inputs {
		remaining = append(remaining, key)
	}
	sort.Strings(remaining)

	var result []Hyper
	var failure error
	for len(remaining) > 0 {
		lead := remaining[0]

		if len(outputs[lead]) == 0 {
			// emptied before grouping: degrade to the input's original edges
			failure = ErrCannotConstructShape
			result = append(result, Hyper{
				Inputs:   []graph.Node{inputs[lead]},
				Outputs:  sorted(original[lead]),
				Degraded: true,
			})
			remaining = remaining[1:]
			continue
		}

		group := []string{lead}
		var rest []string
		for _, candidate := range remaining[1:] {
			if sameSet(outputs[lead], outputs[candidate]) {
				group = append(group, candidate)
			} else {
				rest = append(rest, candidate)
			}
		}

		hyper := Hyper{Outputs: sorted(outputs[lead])}
		for _, member := range group {
			hyper.Inputs = append(hyper.Inputs, inputs[member])
		}
		result = append(result, hyper)

		for _, candidate := range rest {
			for outputKey := range outputs[lead] {
				delete(outputs[candidate], outputKey)
			}
		}
		remaining = rest
	}
	return result, failure
}

func sameSet(a, b map[string]graph.Node) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

func sorted(set map[string]graph.Node) []graph.Node {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	nodes := make([]graph.Node, 0, len(keys))
	for _, key := range keys {
		nodes = append(nodes, set[key])
	}
	return nodes
}
