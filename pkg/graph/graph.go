package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Option configures a compiled graph.
type Option func(*Graph)

// WithMaxSteps sets the per-turn step budget. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxSteps = n
		}
	}
}

// Graph is a compiled, validated graph. It is safe for concurrent use.
type Graph struct {
	nodes      map[string]NodeFunc
	order      []string
	edges      map[string][]string
	branches   map[string][]Branch
	edgeList   []Edge
	branchList []Branch
	maxSteps   int
}

// Nodes returns node names in registration order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.order)
}

// Node returns the function registered under name.
func (g *Graph) Node(name string) (NodeFunc, bool) {
	fn, ok := g.nodes[name]
	return fn, ok
}

// Edges returns the unconditional edges in declaration order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edgeList)
}

// Branches returns the conditional edges in declaration order.
func (g *Graph) Branches() []Branch {
	return slices.Clone(g.branchList)
}

// MaxSteps is the per-turn step budget.
func (g *Graph) MaxSteps() int {
	return g.maxSteps
}

// Next resolves the successors of node for the given state: unconditional
// edges first, then the routers' choices, each in declaration order.
// The result may contain End.
func (g *Graph) Next(ctx context.Context, node string, state domain.State) ([]string, error) {
	next := slices.Clone(g.edges[node])
	for _, br := range g.branches[node] {
		dst, err := br.Router(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("route from %q: %w", node, err)
		}
		if !slices.Contains(br.Destinations, dst) {
			return nil, &domain.GraphError{Node: node, Err: fmt.Errorf("%w: %q", domain.ErrInvalidRoute, dst)}
		}
		next = append(next, dst)
	}
	return next, nil
}

// Entry resolves the first nodes of a turn.
func (g *Graph) Entry(ctx context.Context, state domain.State) ([]string, error) {
	return g.Next(ctx, Start, state)
}

// successors lists every statically possible successor of node.
func (g *Graph) successors(node string) []string {
	out := slices.Clone(g.edges[node])
	for _, br := range g.branches[node] {
		out = append(out, br.Destinations...)
	}
	return out
}

func (g *Graph) reachable(from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, n := range g.successors(cur) {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}
