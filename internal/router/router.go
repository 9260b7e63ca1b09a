// Package router implements the Router: stateless,
// synchronous, consistent-hash dispatch of a Payload to its owning
// partition, plus a broadcast mode for the per-partition aggregates (KEYS,
// SCAN, DBSIZE, FLUSHDB/ALL, RANDOMKEY, PUBSUB*).
package router

import (
	"curiodb/internal/clusterhash"
	"curiodb/internal/command"
)

// Partition is anything that can accept a routed Payload: in practice
// *keymanager.Manager. Kept as an interface here so router never imports
// keymanager (keymanager in turn declares its own Router interface, which
// *Router satisfies, for its RENAME/RENAMENX/SORT STORE follow-ups).
type Partition interface {
	Send(p command.Payload)
}

// Router dispatches payloads across a fixed set of partitions by
// hash(key) mod len(partitions). It holds no mutable state once built.
type Router struct {
	partitions []Partition
}

// New builds a Router over partitions, in partition-index order.
func New(partitions []Partition) *Router {
	return &Router{partitions: partitions}
}

// Route delivers p to the single partition owning p.Key.
func (r *Router) Route(p command.Payload) {
	if len(r.partitions) == 0 {
		return
	}
	idx := clusterhash.Partition(p.Key, len(r.partitions))
	r.partitions[idx].Send(p)
}

// Broadcast delivers a copy of p (one per partition, each with its own
// Reply channel since all must be answered independently) to every
// partition, returning the per-partition reply channels in partition order.
func (r *Router) Broadcast(p command.Payload) []chan command.Reply {
	replies := make([]chan command.Reply, len(r.partitions))
	for i, part := range r.partitions {
		cp := p
		cp.Reply = make(chan command.Reply, 1)
		replies[i] = cp.Reply
		part.Send(cp)
	}
	return replies
}

// NumPartitions reports how many partitions this router dispatches across.
func (r *Router) NumPartitions() int { return len(r.partitions) }
