package graph

import (
	"errors"
	"fmt"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Builder accumulates nodes and edges. Problems are recorded as they happen
// and reported together by Compile.
type Builder struct {
	nodes    map[string]NodeFunc
	order    []string
	edges    []Edge
	branches []Branch
	errs     []error
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]NodeFunc),
	}
}

// AddNode registers a named computation step.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	switch {
	case name == "":
		b.fail(name, fmt.Errorf("%w: empty name", domain.ErrReservedNode))
	case name == Start || name == End:
		b.fail(name, domain.ErrReservedNode)
	case fn == nil:
		b.fail(name, errors.New("node function is nil"))
	default:
		if _, exists := b.nodes[name]; exists {
			b.fail(name, domain.ErrDuplicateNode)
			return b
		}
		b.nodes[name] = fn
		b.order = append(b.order, name)
	}
	return b
}

// AddEdge adds an unconditional transition. Either end may be a sentinel.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// AddConditionalEdges routes from a node to one of the declared destinations,
// chosen at run time by router.
func (b *Builder) AddConditionalEdges(from string, router RouterFunc, destinations ...string) *Builder {
	if router == nil {
		b.fail(from, fmt.Errorf("%w: nil router", domain.ErrInvalidEdge))
		return b
	}
	if len(destinations) == 0 {
		b.fail(from, fmt.Errorf("%w: conditional edge declares no destinations", domain.ErrInvalidEdge))
		return b
	}
	b.branches = append(b.branches, Branch{
		From:         from,
		Destinations: append([]string(nil), destinations...),
		Router:       router,
	})
	return b
}

func (b *Builder) fail(node string, err error) {
	b.errs = append(b.errs, &domain.GraphError{Node: node, Err: err})
}

// Compile validates the graph and returns an executable, immutable Graph.
func (b *Builder) Compile(opts ...Option) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]NodeFunc, len(b.nodes)),
		order:    append([]string(nil), b.order...),
		edges:    make(map[string][]string),
		branches: make(map[string][]Branch),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(g)
	}
	for name, fn := range b.nodes {
		g.nodes[name] = fn
	}

	errs := append([]error(nil), b.errs...)

	for _, e := range b.edges {
		if err := b.checkEdge(e.From, e.To); err != nil {
			errs = append(errs, err)
			continue
		}
		g.edges[e.From] = append(g.edges[e.From], e.To)
		g.edgeList = append(g.edgeList, e)
	}
	for _, br := range b.branches {
		valid := true
		for _, dst := range br.Destinations {
			if err := b.checkEdge(br.From, dst); err != nil {
				errs = append(errs, err)
				valid = false
			}
		}
		if valid {
			g.branches[br.From] = append(g.branches[br.From], br)
			g.branchList = append(g.branchList, br)
		}
	}

	if len(g.edges[Start]) == 0 && len(g.branches[Start]) == 0 {
		errs = append(errs, &domain.GraphError{Node: Start, Err: domain.ErrNoEntry})
	} else if !g.reachable(Start, End) {
		errs = append(errs, &domain.GraphError{Err: domain.ErrNoPathToEnd})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

func (b *Builder) checkEdge(from, to string) error {
	switch {
	case from == End:
		return &domain.GraphError{Node: from, Err: fmt.Errorf("%w: edge out of end", domain.ErrInvalidEdge)}
	case to == Start:
		return &domain.GraphError{Node: from, Err: fmt.Errorf("%w: edge into start", domain.ErrInvalidEdge)}
	}
	if from != Start {
		if _, ok := b.nodes[from]; !ok {
			return &domain.GraphError{Node: from, Err: domain.ErrUnknownNode}
		}
	}
	if to != End {
		if _, ok := b.nodes[to]; !ok {
			return &domain.GraphError{Node: to, Err: domain.ErrUnknownNode}
		}
	}
	return nil
}
