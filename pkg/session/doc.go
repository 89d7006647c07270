/*
Package session serializes turns per thread.

A Manager hands out one turn slot per thread identity. Distinct threads never
contend; a second turn on the same thread either waits (PolicyQueue) or fails
with *domain.ConcurrentTurnError (PolicyReject). With a ports.DistributedLocker
the guarantee extends across replicas sharing one checkpoint store.
*/
package session
