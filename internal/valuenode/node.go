// Package valuenode implements the ValueNode actor: the goroutine-per-key
// owner of a single piece of data (string, hash, list, set, sorted set,
// bitmap or hyperloglog). A Node receives command.Payloads on its mailbox,
// mutates or reads its private data with no locking, and replies on the
// payload's Reply channel. Nothing outside the owning goroutine ever
// touches Node.data.
package valuenode

import (
	"time"

	"curiodb/internal/command"
	"curiodb/internal/descriptor"
	"curiodb/internal/logging"
	"curiodb/internal/persistence"
)

// Node is the actor for one key. KeyManager creates one per (db, key,
// kind) and routes every Payload addressed to that key through its
// mailbox.
type Node struct {
	db   int
	key  string
	kind descriptor.NodeType

	mailbox  chan command.Payload
	quit     chan struct{}
	snapshot persistence.SnapshotStore

	// persistAfter mirrors curiodb.persist-after: 0 flushes
	// every dirty write synchronously, >0 coalesces writes within that
	// window behind persistTimer, <0 disables persistence entirely.
	persistAfter time.Duration
	persistTimer *time.Timer
	persistArmed bool

	data       any
	lastAccess time.Time
	dirty      bool
}

// New creates a Node of the given kind for (db, key), seeding its data
// from snapshot if one is found, or with a fresh zero value otherwise.
// It starts the actor's goroutine and returns immediately.
func New(db int, key string, kind descriptor.NodeType, store persistence.SnapshotStore) *Node {
	return NewWithPersistDelay(db, key, kind, store, 0)
}

// NewWithPersistDelay is New with an explicit persist-after debounce window.
func NewWithPersistDelay(db int, key string, kind descriptor.NodeType, store persistence.SnapshotStore, persistAfter time.Duration) *Node {
	n := &Node{
		db:           db,
		key:          key,
		kind:         kind,
		mailbox:      make(chan command.Payload, 64),
		quit:         make(chan struct{}),
		snapshot:     store,
		persistAfter: persistAfter,
		lastAccess:   time.Now(),
	}
	n.data = n.loadOrZero()
	go n.run()
	return n
}

// Identity is the stable string SnapshotStore keys this node's state
// under: "$db-$type-$key".
func (n *Node) Identity() string {
	return persistence.Identity(n.db, string(n.kind), n.key)
}

func (n *Node) loadOrZero() any {
	zero := n.zeroValue()
	if n.snapshot == nil {
		return zero
	}
	raw, ok, err := n.snapshot.Load(n.Identity())
	if err != nil {
		logging.Component("valuenode").Warn().Err(err).Str("key", n.key).Msg("snapshot load failed, starting empty")
		return zero
	}
	if !ok {
		return zero
	}
	restored, err := decodeSnapshot(n.kind, raw)
	if err != nil {
		logging.Component("valuenode").Warn().Err(err).Str("key", n.key).Msg("snapshot decode failed, starting empty")
		return zero
	}
	return restored
}

func (n *Node) zeroValue() any {
	switch n.kind {
	case descriptor.NodeString:
		return ""
	case descriptor.NodeHash:
		return NewHash()
	case descriptor.NodeList:
		return NewList()
	case descriptor.NodeSet:
		return NewSet()
	case descriptor.NodeSortedSet:
		return NewZSet()
	case descriptor.NodeBitmap:
		return NewBitmap()
	case descriptor.NodeHyperLogLog:
		return NewHyperLogLog(configuredPrecision)
	default:
		return nil
	}
}

// Send delivers a payload to this node's mailbox. The caller should select
// on payload.Reply with a deadline; Send itself never blocks the caller
// beyond mailbox backpressure.
func (n *Node) Send(p command.Payload) {
	n.mailbox <- p
}

// Stop terminates the actor's goroutine after its mailbox drains.
func (n *Node) Stop() {
	close(n.quit)
}

func (n *Node) run() {
	log := logging.Component("valuenode").With().Str("key", n.key).Str("kind", string(n.kind)).Logger()
	persistFire := make(chan struct{}, 1)
	for {
		select {
		case p := <-n.mailbox:
			n.lastAccess = time.Now()
			reply := n.dispatch(p)
			n.schedulePersist(persistFire)
			select {
			case p.Reply <- reply:
			default:
			}
		case <-persistFire:
			n.persistArmed = false
			if n.dirty {
				n.persist()
				n.dirty = false
			}
		case <-n.quit:
			for {
				select {
				case p := <-n.mailbox:
					reply := n.dispatch(p)
					n.schedulePersist(persistFire)
					select {
					case p.Reply <- reply:
					default:
					}
				default:
					log.Debug().Msg("node stopped")
					return
				}
			}
		}
	}
}

// schedulePersist applies the persist-after debounce after a
// command left the node dirty: 0 flushes synchronously, negative never
// persists, positive coalesces behind a single pending timer so a burst of
// writes to the same key produces one snapshot instead of many.
func (n *Node) schedulePersist(fire chan struct{}) {
	if !n.dirty || n.snapshot == nil {
		return
	}
	switch {
	case n.persistAfter < 0:
		n.dirty = false
	case n.persistAfter == 0:
		n.persist()
		n.dirty = false
	default:
		if !n.persistArmed {
			n.persistArmed = true
			time.AfterFunc(n.persistAfter, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		}
	}
}

func (n *Node) persist() {
	raw, err := encodeSnapshot(n.kind, n.data)
	if err != nil {
		logging.Component("valuenode").Warn().Err(err).Str("key", n.key).Msg("snapshot encode failed")
		return
	}
	if err := n.snapshot.Save(n.Identity(), raw); err != nil {
		logging.Component("valuenode").Warn().Err(err).Str("key", n.key).Msg("snapshot save failed")
	}
}

func (n *Node) markDirty() { n.dirty = true }

// Export snapshots this node's current value through the same gob envelope
// used for persistence, for use by RENAME's export/import handoff between
// partitions. The caller must not call Export concurrently with Send; in
// practice it is only used from the owning KeyManager goroutine right
// before the node is stopped.
func (n *Node) Export() ([]byte, descriptor.NodeType, error) {
	raw, err := encodeSnapshot(n.kind, n.data)
	return raw, n.kind, err
}

// Import replaces this node's value with the contents of a previous
// Export, keeping n.kind unchanged.
func (n *Node) Import(raw []byte) error {
	data, err := decodeSnapshot(n.kind, raw)
	if err != nil {
		return err
	}
	n.data = data
	n.markDirty()
	return nil
}

// Empty reports whether the node's data is equivalent to absent, i.e.
// whether the owning KeyManager should delete it from its index after
// this operation.
func (n *Node) Empty() bool {
	switch v := n.data.(type) {
	case string:
		return v == ""
	case *Hash:
		return v.Len() == 0
	case *List:
		return v.Length == 0
	case *Set:
		return v.Len() == 0
	case *ZSet:
		return v.Len() == 0
	case *Bitmap:
		return len(v.bits) == 0
	case *HyperLogLog:
		return false // HLLs never shrink back to absent on their own
	default:
		return true
	}
}

// dispatch routes a payload to the type-specific handler for n.kind.
func (n *Node) dispatch(p command.Payload) command.Reply {
	switch n.kind {
	case descriptor.NodeString:
		return n.dispatchString(p)
	case descriptor.NodeHash:
		return n.dispatchHash(p)
	case descriptor.NodeList:
		return n.dispatchList(p)
	case descriptor.NodeSet:
		return n.dispatchSet(p)
	case descriptor.NodeSortedSet:
		return n.dispatchZSet(p)
	case descriptor.NodeBitmap:
		return n.dispatchBitmap(p)
	case descriptor.NodeHyperLogLog:
		return n.dispatchHyperLogLog(p)
	default:
		return command.Err("ERR unsupported node type")
	}
}
