package dsl

import (
	"fmt"

	"github.com/aretw0/threadgraph/pkg/graph"
)

// Builder manages the graph construction.
type Builder struct {
	nodes map[string]*NodeBuilder
	order []string
	entry []string
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		id:      id,
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Entry sets the nodes reached from graph.Start.
// When never called, the first node added is the entry.
func (b *Builder) Entry(ids ...string) *Builder {
	b.entry = append(b.entry, ids...)
	return b
}

// Build compiles the graph.
func (b *Builder) Build(opts ...graph.Option) (*graph.Graph, error) {
	gb := graph.NewBuilder()

	entry := b.entry
	if len(entry) == 0 && len(b.order) > 0 {
		entry = b.order[:1]
	}
	for _, id := range entry {
		gb.AddEdge(graph.Start, id)
	}

	for _, id := range b.order {
		nb := b.nodes[id]
		gb.AddNode(id, nb.fn)
		for _, to := range nb.next {
			gb.AddEdge(id, to)
		}
		for _, br := range nb.branches {
			gb.AddConditionalEdges(id, br.Router, br.Destinations...)
		}
	}

	g, err := gb.Compile(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return g, nil
}
