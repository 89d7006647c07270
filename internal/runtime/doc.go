// Package runtime executes compiled graphs turn by turn.
//
// A turn loads the thread's latest checkpoint, merges the input, walks the
// graph in supersteps from graph.Start and writes a new checkpoint when the
// frontier is exhausted. Fragments are pushed straight to the range loop of
// the caller; the engine starts no goroutines of its own.
package runtime
