/*
Package graph declares the computation graph a conversation turn runs through.

A graph is a set of named nodes connected by edges between the Start and End
sentinels. Nodes are plain Go functions that receive a snapshot of the thread
state and return a partial update; conditional edges choose the next node with
a router function. Builder collects the definition and Compile validates it,
returning an immutable Graph that can be shared across threads.

	g, err := graph.NewBuilder().
		AddNode("agent", agent).
		AddEdge(graph.Start, "agent").
		AddEdge("agent", graph.End).
		Compile()
*/
package graph
