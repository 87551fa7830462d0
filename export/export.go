// Package export produces debug snapshots of borrow graphs: a plain
// node/edge listing serializable to yaml, a DOT rendering, and persistence
// through the afs storage abstraction. Export is read-only and plays no part
// in the analysis itself.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/borrowck/graph"
	"gopkg.in/yaml.v3"
)

// Node is one exported node.
type Node struct {
	Key  string `yaml:"key"`
	Kind string `yaml:"kind"`
	Root bool   `yaml:"root,omitempty"`
}

// Edge is one exported edge.
type Edge struct {
	Kind       string   `yaml:"kind"`
	Detail     string   `yaml:"detail"`
	Blocked    []string `yaml:"blocked"`
	BlockedBy  []string `yaml:"blockedBy"`
	Conditions string   `yaml:"conditions,omitempty"`
}

// Snapshot is the exported form of one graph.
type Snapshot struct {
	Procedure string `yaml:"procedure"`
	Nodes     []Node `yaml:"nodes"`
	Edges     []Edge `yaml:"edges"`
}

// FromGraph lists the graph's nodes and edges in deterministic order.
func FromGraph(g *graph.Graph) *Snapshot {
	snapshot := &Snapshot{Procedure: g.Body().Name()}
	for _, node := range g.Nodes() {
		kind := "location"
		if _, ok := node.(graph.Token); ok {
			kind = "token"
		}
		snapshot.Nodes = append(snapshot.Nodes, Node{
			Key:  node.Key(),
			Kind: kind,
			Root: g.IsRoot(node),
		})
	}
	for _, edge := range g.Edges() {
		exported := Edge{
			Kind:   edge.Kind.Name(),
			Detail: edge.Kind.String(),
		}
		for _, node := range edge.Kind.BlockedNodes() {
			exported.Blocked = append(exported.Blocked, node.Key())
		}
		for _, node := range edge.Kind.BlockedByNodes() {
			exported.BlockedBy = append(exported.BlockedBy, node.Key())
		}
		if !edge.Conditions.IsUnconditional() {
			exported.Conditions = edge.Conditions.Key()
		}
		snapshot.Edges = append(snapshot.Edges, exported)
	}
	return snapshot
}

// YAML serializes the snapshot.
func (s *Snapshot) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// DOT renders the snapshot for graphviz; hyperedges become a box node with
// fan-in and fan-out arrows.
func (s *Snapshot) DOT() string {
	var builder strings.Builder
	builder.WriteString("digraph borrows {\n")
	for _, node := range s.Nodes {
		shape := "ellipse"
		if node.Kind == "token" {
			shape = "diamond"
		}
		fmt.Fprintf(&builder, "  %q [shape=%v];\n", node.Key, shape)
	}
	for i, edge := range s.Edges {
		if len(edge.Blocked) == 1 && len(edge.BlockedBy) == 1 {
			fmt.Fprintf(&builder, "  %q -> %q [label=%q];\n", edge.Blocked[0], edge.BlockedBy[0], edge.Kind)
			continue
		}
		hyper := fmt.Sprintf("edge%d", i)
		fmt.Fprintf(&builder, "  %q [shape=box,label=%q];\n", hyper, edge.Kind)
		for _, key := range edge.Blocked {
			fmt.Fprintf(&builder, "  %q -> %q;\n", key, hyper)
		}
		for _, key := range edge.BlockedBy {
			fmt.Fprintf(&builder, "  %q -> %q;\n", hyper, key)
		}
	}
	builder.WriteString("}\n")
	return builder.String()
}

// Save uploads the yaml form of the snapshot to the given URL.
func Save(ctx context.Context, URL string, snapshot *Snapshot) error {
	data, err := snapshot.YAML()
	if err != nil {
		return err
	}
	fs := afs.New()
	return fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data))
}
