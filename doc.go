/*
Package threadgraph runs conversations as graphs of computation steps over shared,
accumulating state, checkpointing that state per thread so a conversation can be
paused and resumed across process restarts.

# Concept

A graph is a small, statically declared set of nodes between a start and an end
sentinel. Each turn loads the thread's latest checkpoint, appends the caller's input,
walks the graph, merges every node's partial update through per-field reducers and
writes a new checkpoint. While the turn runs, assistant output produced by nodes is
streamed back to the caller as a lazy sequence of fragments.

# Key Features

  - Append-only transcript: the messages field is only ever appended to during execution.
  - Versioned checkpoints: every successful turn writes version N+1; failed turns write nothing.
  - One turn per thread: concurrent turns on a thread queue or are rejected, never interleaved.
  - Cancellation by disconnection: breaking out of the fragment loop cancels the turn.
  - Pluggable storage: memory, file, Redis and SQLite stores, plus encryption and redaction middleware.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/threadgraph"
		"github.com/aretw0/threadgraph/pkg/adapters/echo"
		"github.com/aretw0/threadgraph/pkg/adapters/memory"
		"github.com/aretw0/threadgraph/pkg/dsl"
		"github.com/aretw0/threadgraph/pkg/nodes"
	)

	func main() {
		b := dsl.New()
		b.Add("agent").Do(nodes.Chat(echo.New())).Terminal()
		g, err := b.Build()
		if err != nil {
			log.Fatal(err)
		}

		eng, err := threadgraph.New(g, memory.NewStore())
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		for frag, err := range eng.Send(ctx, "thread-1", "hi") {
			if err != nil {
				log.Fatal(err)
			}
			fmt.Print(frag.Content())
		}
	}

# Resuming

When a thread is resumed from an external archive after its checkpoints are gone,
SeedIfEmpty installs the archived transcript exactly once; later calls are no-ops.
*/
package threadgraph
