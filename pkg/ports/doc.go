/*
Package ports defines the driven ports (interfaces) for the threadgraph engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends, model providers and lock managers.

# Key Interfaces

  - CheckpointStore: Persists and loads versioned thread state.
  - ThreadArchive: Keeps the session layer's thread records used for resume.
  - ChatModel / StreamingChatModel: The language model collaborator.
  - DistributedLocker: Provides distributed locking for turns on the same thread across replicas.
  - Engine: What transports and session layers drive.
*/
package ports
