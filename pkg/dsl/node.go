package dsl

import "github.com/aretw0/threadgraph/pkg/graph"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	id       string
	fn       graph.NodeFunc
	next     []string
	branches []graph.Branch
	builder  *Builder
}

// Do sets the function executed when the node runs.
func (n *NodeBuilder) Do(fn graph.NodeFunc) *NodeBuilder {
	n.fn = fn
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.next = append(n.next, target)
	return n
}

// Branch adds a conditional transition. The router must return one of destinations.
func (n *NodeBuilder) Branch(router graph.RouterFunc, destinations ...string) *NodeBuilder {
	n.branches = append(n.branches, graph.Branch{
		From:         n.id,
		Destinations: destinations,
		Router:       router,
	})
	return n
}

// Terminal marks the node as the last step of the turn.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.next = []string{graph.End}
	n.branches = nil
	return n
}

// Then starts a new node and links the current one to it.
func (n *NodeBuilder) Then(id string) *NodeBuilder {
	n.Go(id)
	return n.builder.Add(id)
}

// ID returns the node name.
func (n *NodeBuilder) ID() string {
	return n.id
}
