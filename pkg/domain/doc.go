/*
Package domain contains the core domain models of the threadgraph engine.

It defines the shared state threaded through a graph during a turn, the merge
(reducer) rules applied to partial updates, versioned checkpoints, streamed
fragments and the error taxonomy reported to callers. This package is kept pure
and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Message: an immutable role-tagged transcript entry (user, assistant, system).
  - State: the append-only message list plus arbitrary named values.
  - Update: a partial state returned by nodes and merged through a Schema.
  - Checkpoint: a versioned snapshot of a thread's State.
  - Fragment: a streamed piece of assistant output tagged with its node.
*/
package domain
