/*
Package dsl provides a fluent builder for threadgraph graphs.

It is sugar over graph.Builder: nodes are declared in order, the first one
becomes the entry unless Entry is called, and transitions read top to bottom.

Example usage:

	package main

	import (
		"github.com/aretw0/threadgraph/pkg/dsl"
		"github.com/aretw0/threadgraph/pkg/nodes"
	)

	func main() {
		b := dsl.New()

		b.Add("agent").
			Do(nodes.Chat(model)).
			Terminal()

		g, err := b.Build()
		// ... pass g to threadgraph.New(...)
	}
*/
package dsl
