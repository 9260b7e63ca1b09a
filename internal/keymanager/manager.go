// Package keymanager implements the KeyManager actor: the per-partition
// owner of a directory mapping (db, key) to ValueNode, the partition's
// pub/sub registry, and every "keys"-typed command (DEL, EXPIRE, RENAME,
// TYPE, PUBLISH, ...).
package keymanager

import (
	"bytes"
	"encoding/gob"
	"strconv"
	"sync"
	"time"

	"curiodb/internal/command"
	"curiodb/internal/descriptor"
	"curiodb/internal/logging"
	"curiodb/internal/persistence"
	"curiodb/internal/valuenode"
)

// entry is a NodeEntry: the kind never changes once set, the node handle
// is nil while passivated, and both timers are cancelable single-shot
// tokens (rearming cancels the previous one).
type entry struct {
	kind descriptor.NodeType
	node *valuenode.Node

	expiresAt   *time.Time
	expireTimer *time.Timer

	passivateTimer *time.Timer
}

// Router is the dependency a KeyManager uses to deliver a follow-up Payload
// to whichever partition owns its key — RENAME's destination import,
// cross-partition RENAMENX existence checks, SORT ... STORE's destination
// write. Satisfied by internal/router.Router.
type Router interface {
	Route(p command.Payload)
}

// Manager is one partition's KeyManager. Every Payload for keys this
// partition owns is processed by a single goroutine (run), so the
// db→key→entry map and the pub/sub registry never need locking.
type Manager struct {
	id       int
	mailbox  chan command.Payload
	calls    chan func()
	quit     chan struct{}
	stopOnce sync.Once

	table  *descriptor.Table
	store  persistence.SnapshotStore
	router Router

	sleepAfter   time.Duration // 0 disables passivation
	persistAfter time.Duration // persist-after: 0 sync, <0 disabled

	dbs    map[int]map[string]*entry
	pubsub *registry
}

// SetRouter wires the Router this manager uses for cross-partition
// follow-ups. Called once during startup, after every partition's Manager
// has been constructed (the Router itself needs all of them).
func (m *Manager) SetRouter(r Router) { m.router = r }

// New creates a partition KeyManager and starts its goroutine.
func New(id int, table *descriptor.Table, store persistence.SnapshotStore, sleepAfter, persistAfter time.Duration) *Manager {
	m := &Manager{
		id:           id,
		mailbox:      make(chan command.Payload, 256),
		calls:        make(chan func()),
		quit:         make(chan struct{}),
		table:        table,
		store:        store,
		sleepAfter:   sleepAfter,
		persistAfter: persistAfter,
		dbs:          make(map[int]map[string]*entry),
		pubsub:       newRegistry(),
	}
	m.recoverSkeleton()
	go m.run()
	return m
}

// skeleton is the serializable (db, key) -> kind directory a KeyManager
// snapshots alongside its ValueNodes' own per-key snapshots (invariant 6:
// in-memory actor handles and timers never appear in it). It is what lets
// a partition rebuild its key directory on a cold restart instead of only
// ever seeing keys a client happens to name again.
type skeleton map[int]map[string]string

// recoverSkeleton reconstructs this partition's directory from its last
// saved skeleton, if any. Each recovered entry starts with node set to nil
// (passivated); if passivation is disabled the ValueNode is materialized
// immediately so the "eager when passivation is off" half of the recovery
// rule in the data model holds. Either way the ValueNode itself restores
// its value lazily from its own snapshot the moment it's created.
func (m *Manager) recoverSkeleton() {
	if m.store == nil {
		return
	}
	raw, ok, err := m.store.Load(persistence.PartitionIdentity(m.id))
	if err != nil {
		logging.Component("keymanager").Warn().Err(err).Int("partition", m.id).Msg("skeleton load failed, starting empty")
		return
	}
	if !ok {
		return
	}
	var skel skeleton
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&skel); err != nil {
		logging.Component("keymanager").Warn().Err(err).Int("partition", m.id).Msg("skeleton decode failed, starting empty")
		return
	}

	for db, keys := range skel {
		entries := m.dbEntries(db)
		for key, kind := range keys {
			e := &entry{kind: descriptor.NodeType(kind)}
			if m.sleepAfter <= 0 {
				e.node = m.newNode(db, key, e.kind)
			}
			entries[key] = e
		}
	}
	logging.Component("keymanager").Info().Int("partition", m.id).Int("dbs", len(skel)).Msg("skeleton recovered")
}

// saveSkeleton persists the current (db, key) -> kind directory. Called
// synchronously on every structural change (entry created or deleted) since
// the directory itself changes far less often than any one key's value, and
// keeping it exact avoids layering a second debounce policy on top of the
// per-ValueNode one.
func (m *Manager) saveSkeleton() {
	if m.store == nil {
		return
	}
	skel := make(skeleton, len(m.dbs))
	for db, entries := range m.dbs {
		keys := make(map[string]string, len(entries))
		for key, e := range entries {
			keys[key] = string(e.kind)
		}
		skel[db] = keys
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(skel); err != nil {
		logging.Component("keymanager").Warn().Err(err).Int("partition", m.id).Msg("skeleton encode failed")
		return
	}
	if err := m.store.Save(persistence.PartitionIdentity(m.id), buf.Bytes()); err != nil {
		logging.Component("keymanager").Warn().Err(err).Int("partition", m.id).Msg("skeleton save failed")
	}
}

func (m *Manager) newNode(db int, key string, kind descriptor.NodeType) *valuenode.Node {
	return valuenode.NewWithPersistDelay(db, key, kind, m.store, m.persistAfter)
}

// Send delivers a payload to this partition's mailbox. Callers (the Router,
// an Aggregator) wait on payload.Reply themselves; Send never blocks beyond
// mailbox backpressure.
func (m *Manager) Send(p command.Payload) {
	m.mailbox <- p
}

// Stop terminates the manager's goroutine after its mailbox drains. It does
// not stop owned ValueNodes. Safe to call more than once
// (a test that stops a Manager early alongside t.Cleanup's own Stop call,
// for instance).
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
}

func (m *Manager) run() {
	log := logging.Component("keymanager")
	for {
		select {
		case p := <-m.mailbox:
			m.handle(p)
		case fn := <-m.calls:
			fn()
		case <-m.quit:
			for {
				select {
				case p := <-m.mailbox:
					m.handle(p)
				default:
					log.Debug().Int("partition", m.id).Msg("keymanager stopped")
					return
				}
			}
		}
	}
}

// manager-internal-only messages never appear in the command descriptor
// table: they are synthesized by the manager itself (passivation timers,
// rename's export/import handoff) rather than ever arriving from a client.
func (m *Manager) handle(p command.Payload) {
	switch p.Name {
	case "_PASSIVATE":
		m.passivate(p.DB, p.Key)
		return
	case "_IMPORT":
		m.importKey(p)
		return
	}

	desc := m.table.Lookup(p.Name)
	if desc == nil {
		m.reply(p, command.Err("ERR unknown command '"+p.Name+"'"))
		return
	}

	switch {
	case p.Name == "_DEL":
		m.delKey(p.DB, p.Key)
		m.reply(p, command.Int(1))
	case p.Name == "_RENAME":
		m.renameKey(p)
	case isPubSubAdmin(p.Name):
		m.handlePubSub(p)
	case desc.NodeType == descriptor.NodeKeys:
		m.handleKeysCommand(p, desc)
	default:
		m.validateAndForward(p, desc)
	}
}

func (m *Manager) reply(p command.Payload, r command.Reply) {
	select {
	case p.Reply <- r:
	default:
	}
}

func (m *Manager) dbEntries(db int) map[string]*entry {
	entries, ok := m.dbs[db]
	if !ok {
		entries = make(map[string]*entry)
		m.dbs[db] = entries
	}
	return entries
}

// validateAndForward applies the validation order to a keyed, type-specific
// command before handing it to the owning ValueNode: WRONGTYPE →
// lpushx/rpushx-on-missing → setnx-on-existing → default → forward
// (creating the entry/node if necessary, deleting an old differently-typed
// value first when the command overwrites). The default-reply short-circuit
// applies uniformly to every command with a real descriptor default,
// whether the payload came straight from a client or was scattered by an
// Aggregator (GET for MGET, SMEMBERS for SDIFF/SINTER/SUNION, ...): a read
// against a missing key must never materialize an entry for it. Only
// descriptor-marked overwrites commands (SET, SETEX, the _*STORE family)
// bypass the short-circuit, since those are explicitly write-and-replace
// commands that are supposed to create the key.
func (m *Manager) validateAndForward(p command.Payload, desc *descriptor.Descriptor) {
	if !desc.Keyed {
		m.reply(p, command.Err("ERR command '"+p.Name+"' must be keyed"))
		return
	}
	if !desc.Arity.Accepts(len(p.Args) + 1) {
		m.reply(p, command.Err("ERR wrong number of arguments for '"+p.Name+"' command"))
		return
	}

	if p.Name == "SETEX" || p.Name == "PSETEX" {
		if _, err := strconv.ParseInt(p.Args[0], 10, 64); err != nil {
			m.reply(p, command.Err("ERR value is not an integer or out of range"))
			return
		}
	}

	entries := m.dbEntries(p.DB)
	e, exists := entries[p.Key]

	if exists && e.kind != desc.NodeType && !desc.Overwrites {
		m.reply(p, command.WrongType())
		return
	}

	if !exists {
		switch p.Name {
		case "LPUSHX", "RPUSHX":
			m.reply(p, command.Int(0))
			return
		case "SETNX":
			// falls through: SETNX on a missing key always writes.
		default:
			if desc.Default != descriptor.DefaultNone && !desc.Overwrites {
				if r, ok := command.DefaultReply(desc.Default); ok {
					m.reply(p, r)
					return
				}
			}
		}
	} else if p.Name == "SETNX" {
		m.reply(p, command.Int(0))
		return
	}

	if exists && e.kind != desc.NodeType && desc.Overwrites {
		m.deleteEntry(p.DB, p.Key, e)
		exists = false
	}

	if !exists {
		e = &entry{kind: desc.NodeType}
		entries[p.Key] = e
		m.saveSkeleton()
	}
	if e.node == nil {
		e.node = m.newNode(p.DB, p.Key, e.kind)
	}

	if p.Name == "SETEX" || p.Name == "PSETEX" {
		m.setexTTL(p, e)
	}

	m.armPassivation(p.DB, p.Key, e)
	e.node.Send(p)
}

func (m *Manager) deleteEntry(db int, key string, e *entry) {
	m.deleteEntryNoSave(db, key, e)
	m.saveSkeleton()
}

// deleteEntryNoSave is deleteEntry without the skeleton flush, for callers
// (FLUSHDB, FLUSHALL) that remove many entries in one pass and save once
// afterward instead of once per key.
func (m *Manager) deleteEntryNoSave(db int, key string, e *entry) {
	if e.expireTimer != nil {
		e.expireTimer.Stop()
	}
	if e.passivateTimer != nil {
		e.passivateTimer.Stop()
	}
	if e.node != nil {
		e.node.Stop()
	}
	if m.store != nil {
		_ = m.store.Delete(persistence.Identity(db, string(e.kind), key))
	}
	delete(m.dbs[db], key)
}

func (m *Manager) delKey(db int, key string) {
	if e, ok := m.dbEntries(db)[key]; ok {
		m.deleteEntry(db, key, e)
	}
}

// armPassivation (re)arms the sleep-after timer for a just-touched key. On
// fire the ValueNode is asked to stop (its last snapshot already reflects
// every write, since writes persist synchronously/debounced on their own);
// the NodeEntry survives with node set back to nil so the next command
// recreates it from that snapshot.
func (m *Manager) armPassivation(db int, key string, e *entry) {
	if m.sleepAfter <= 0 {
		return
	}
	if e.passivateTimer != nil {
		e.passivateTimer.Stop()
	}
	e.passivateTimer = time.AfterFunc(m.sleepAfter, func() {
		m.mailbox <- command.Payload{DB: db, Name: "_PASSIVATE", Key: key, Reply: make(chan command.Reply, 1), Internal: true}
	})
}

func (m *Manager) passivate(db int, key string) {
	e, ok := m.dbEntries(db)[key]
	if !ok || e.node == nil {
		return
	}
	e.node.Stop()
	e.node = nil
}
