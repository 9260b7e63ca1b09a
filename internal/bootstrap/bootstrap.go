// Package bootstrap wires the KeyManager partitions, Router, and Aggregator
// into one runnable cluster node from a loaded Config and command metadata
// Table. cmd/curiodbd and the end-to-end tests share this construction path
// so a test server is built exactly the way the real binary builds one.
package bootstrap

import (
	"fmt"
	"net"
	"time"

	"curiodb/internal/aggregator"
	"curiodb/internal/config"
	"curiodb/internal/descriptor"
	"curiodb/internal/keymanager"
	"curiodb/internal/logging"
	"curiodb/internal/persistence"
	"curiodb/internal/router"
	"curiodb/internal/session"
	"curiodb/internal/valuenode"
)

// Node is one cluster node's fully wired in-process components: every
// partition's KeyManager, the Router dispatching across them, and the
// Aggregator handling multi-key commands.
type Node struct {
	Table      *descriptor.Table
	Router     *router.Router
	Managers   []*keymanager.Manager
	Aggregator *aggregator.Aggregator

	idleTimeout time.Duration
}

// Build constructs a Node's partitions, router and aggregator from cfg and
// table, backed by store for snapshot persistence.
func Build(cfg *config.Config, table *descriptor.Table, store persistence.SnapshotStore) (*Node, error) {
	valuenode.SetPrecision(uint8(cfg.HyperLogLog.RegisterLog))

	partitionCount := cfg.Partitions()
	if partitionCount <= 0 {
		return nil, fmt.Errorf("bootstrap: no partitions configured (keynodes=%d, nodes=%d)", cfg.KeynodesPerNode, len(cfg.Nodes))
	}

	managers := make([]*keymanager.Manager, partitionCount)
	routerPartitions := make([]router.Partition, partitionCount)
	for i := range managers {
		m := keymanager.New(i, table, store, cfg.SleepAfter(), cfg.PersistAfter())
		managers[i] = m
		routerPartitions[i] = m
	}
	r := router.New(routerPartitions)
	for _, m := range managers {
		m.SetRouter(r)
	}

	return &Node{
		Table:       table,
		Router:      r,
		Managers:    managers,
		Aggregator:  aggregator.New(r, cfg.AggregateTimeout()),
		idleTimeout: cfg.IdleTimeout(),
	}, nil
}

// Accept serves one accepted connection as a ClientSession until the peer
// disconnects or issues QUIT/SHUTDOWN. Blocks the calling goroutine.
func (n *Node) Accept(conn net.Conn) {
	log := logging.Component("server")
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")
	session.New(conn, n.Table, n.Router, n.Managers, n.Aggregator, n.idleTimeout).Serve()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
}

// Stop terminates every partition's KeyManager goroutine.
func (n *Node) Stop() {
	for _, m := range n.Managers {
		m.Stop()
	}
}
