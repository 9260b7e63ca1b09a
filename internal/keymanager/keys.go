package keymanager

import (
	"encoding/base64"
	"math/rand"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"curiodb/internal/command"
	"curiodb/internal/descriptor"
	"curiodb/internal/logging"
	"curiodb/internal/valuenode"
)

// handleKeysCommand serves every command whose descriptor targets the
// "keys" node type directly on the partition.
func (m *Manager) handleKeysCommand(p command.Payload, desc *descriptor.Descriptor) {
	n := len(p.Args)
	if desc.Keyed {
		n++
	}
	if !desc.Arity.Accepts(n) && p.Name != "DEL" && p.Name != "EXISTS" {
		m.reply(p, command.Err("ERR wrong number of arguments for '"+p.Name+"' command"))
		return
	}

	switch p.Name {
	case "DEL":
		entries := m.dbEntries(p.DB)
		if _, ok := entries[p.Key]; !ok {
			m.reply(p, command.Int(0))
			return
		}
		m.delKey(p.DB, p.Key)
		m.reply(p, command.Int(1))

	case "EXISTS":
		entries := m.dbEntries(p.DB)
		if _, ok := entries[p.Key]; ok {
			m.reply(p, command.Int(1))
		} else {
			m.reply(p, command.Int(0))
		}

	case "KEYS":
		pattern := ""
		if len(p.Args) > 0 {
			pattern = p.Args[0]
		}
		out := make([]string, 0, len(m.dbEntries(p.DB)))
		for k := range m.dbEntries(p.DB) {
			if pattern == "" {
				out = append(out, k)
				continue
			}
			if ok, _ := filepath.Match(pattern, k); ok {
				out = append(out, k)
			}
		}
		m.reply(p, command.BulkStrings(out))

	case "RANDOMKEY":
		entries := m.dbEntries(p.DB)
		if len(entries) == 0 {
			m.reply(p, command.Null())
			return
		}
		idx := rand.Intn(len(entries))
		i := 0
		for k := range entries {
			if i == idx {
				m.reply(p, command.Bulk(k))
				return
			}
			i++
		}

	case "FLUSHDB":
		for key, e := range m.dbEntries(p.DB) {
			m.deleteEntryNoSave(p.DB, key, e)
		}
		m.saveSkeleton()
		m.reply(p, command.OK())

	case "FLUSHALL":
		for db, entries := range m.dbs {
			for key, e := range entries {
				m.deleteEntryNoSave(db, key, e)
			}
		}
		m.saveSkeleton()
		m.reply(p, command.OK())

	case "DBSIZE":
		m.reply(p, command.Int(int64(len(m.dbEntries(p.DB)))))

	case "SCAN":
		pattern := ""
		for i := 1; i < len(p.Args); i++ {
			if strings.EqualFold(p.Args[i-1], "MATCH") {
				pattern = p.Args[i]
			}
		}
		out := make([]string, 0, len(m.dbEntries(p.DB)))
		for k := range m.dbEntries(p.DB) {
			if pattern == "" {
				out = append(out, k)
				continue
			}
			if ok, _ := filepath.Match(pattern, k); ok {
				out = append(out, k)
			}
		}
		m.reply(p, command.Array(command.Bulk("0"), command.BulkStrings(out)))

	case "TTL", "PTTL":
		e, ok := m.dbEntries(p.DB)[p.Key]
		if !ok {
			m.reply(p, command.Int(-2))
			return
		}
		if e.expiresAt == nil {
			m.reply(p, command.Int(-1))
			return
		}
		remaining := time.Until(*e.expiresAt)
		if remaining < 0 {
			remaining = 0
		}
		if p.Name == "TTL" {
			m.reply(p, command.Int(int64(remaining/time.Second)))
		} else {
			m.reply(p, command.Int(int64(remaining/time.Millisecond)))
		}

	case "EXPIRE", "PEXPIRE", "EXPIREAT", "PEXPIREAT":
		m.handleExpire(p)

	case "PERSIST":
		e, ok := m.dbEntries(p.DB)[p.Key]
		if !ok || e.expiresAt == nil {
			m.reply(p, command.Int(0))
			return
		}
		if e.expireTimer != nil {
			e.expireTimer.Stop()
			e.expireTimer = nil
		}
		e.expiresAt = nil
		m.reply(p, command.Int(1))

	case "TYPE":
		e, ok := m.dbEntries(p.DB)[p.Key]
		if !ok {
			m.reply(p, command.Simple("none"))
			return
		}
		m.reply(p, command.Simple(redisTypeName(e.kind)))

	case "RENAME":
		m.renameKey(p)

	case "RENAMENX":
		m.renameNX(p)

	case "SORT":
		m.sortKey(p)

	case "PUBLISH":
		count := m.pubsub.publish(p.Key, p.Args[0])
		m.reply(p, command.Int(int64(count)))

	default:
		m.reply(p, command.Err("ERR unknown keys command '"+p.Name+"'"))
	}
}

func redisTypeName(kind descriptor.NodeType) string {
	if kind == descriptor.NodeSortedSet {
		return "zset"
	}
	return string(kind)
}

func (m *Manager) handleExpire(p command.Payload) {
	entries := m.dbEntries(p.DB)
	e, ok := entries[p.Key]
	if !ok {
		m.reply(p, command.Int(0))
		return
	}

	n, err := strconv.ParseInt(p.Args[0], 10, 64)
	if err != nil {
		m.reply(p, command.Err("ERR value is not an integer or out of range"))
		return
	}

	var deadline time.Time
	switch p.Name {
	case "EXPIRE":
		deadline = time.Now().Add(time.Duration(n) * time.Second)
	case "PEXPIRE":
		deadline = time.Now().Add(time.Duration(n) * time.Millisecond)
	case "EXPIREAT":
		deadline = time.Unix(n, 0)
	case "PEXPIREAT":
		deadline = time.UnixMilli(n)
	}

	m.armExpireAt(p.DB, p.Key, e, deadline)
	m.reply(p, command.Int(1))
}

// armExpireAt cancels any timer already on e and schedules one firing an
// internal _DEL at deadline. Shared by EXPIRE/PEXPIRE/EXPIREAT/PEXPIREAT
// (handleExpire) and by SETEX/PSETEX (setexTTL below), since both paths
// end up arming the same single-shot cancelable timer on the entry.
func (m *Manager) armExpireAt(db int, key string, e *entry, deadline time.Time) {
	if e.expireTimer != nil {
		e.expireTimer.Stop()
	}
	e.expiresAt = &deadline

	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	e.expireTimer = time.AfterFunc(delay, func() {
		m.mailbox <- command.Payload{DB: db, Name: "_DEL", Key: key, Reply: make(chan command.Reply, 1), Internal: true}
	})
}

// setexTTL parses SETEX/PSETEX's leading TTL argument and arms the same
// expire timer EXPIRE/PEXPIRE use, so "set then schedule expiry" (spec.md
// §4.3) holds for both commands instead of silently dropping the TTL.
// Callers must have already validated p.Args[0] as an integer.
func (m *Manager) setexTTL(p command.Payload, e *entry) {
	n, _ := strconv.ParseInt(p.Args[0], 10, 64)
	var deadline time.Time
	if p.Name == "SETEX" {
		deadline = time.Now().Add(time.Duration(n) * time.Second)
	} else {
		deadline = time.Now().Add(time.Duration(n) * time.Millisecond)
	}
	m.armExpireAt(p.DB, p.Key, e, deadline)
}

// renameKey implements rename via export/import: the source ValueNode's
// whole value is snapshotted through the same gob envelope used for
// persistence, generalized into a reusable Export/Import pair instead of
// one typed constructor command per type, then delivered to whichever
// partition owns the destination key.
func (m *Manager) renameKey(p command.Payload) {
	if len(p.Args) < 1 {
		m.reply(p, command.Err("ERR wrong number of arguments for 'rename' command"))
		return
	}
	dest := p.Args[0]

	entries := m.dbEntries(p.DB)
	e, ok := entries[p.Key]
	if !ok {
		m.reply(p, command.Err("ERR no such key"))
		return
	}
	if e.node == nil {
		e.node = m.newNode(p.DB, p.Key, e.kind)
	}

	raw, kind, err := e.node.Export()
	if err != nil {
		logging.Component("keymanager").Warn().Err(err).Str("key", p.Key).Msg("rename export failed")
		m.reply(p, command.Err("ERR rename failed"))
		return
	}
	m.deleteEntry(p.DB, p.Key, e)

	importPayload := command.Payload{
		DB:       p.DB,
		Name:     "_IMPORT",
		Key:      dest,
		Args:     []string{string(kind), base64.StdEncoding.EncodeToString(raw)},
		Reply:    make(chan command.Reply, 1),
		Internal: true,
	}
	m.deliver(importPayload)
	m.reply(p, command.OK())
}

// renameNX checks destination existence (possibly on another partition) out
// of band, then re-enters the mailbox to perform the rename, so the check's
// round trip never blocks this partition's own command loop.
func (m *Manager) renameNX(p command.Payload) {
	if len(p.Args) < 1 {
		m.reply(p, command.Err("ERR wrong number of arguments for 'renamenx' command"))
		return
	}
	dest := p.Args[0]
	check := command.Payload{DB: p.DB, Name: "EXISTS", Key: dest, Reply: make(chan command.Reply, 1), Internal: true}

	go func() {
		m.deliver(check)
		r := <-check.Reply
		if r.Kind == command.KindInteger && r.Int != 0 {
			m.reply(p, command.Int(0))
			return
		}
		renamed := make(chan command.Reply, 1)
		m.mailbox <- command.Payload{DB: p.DB, Name: "_RENAME", Key: p.Key, Args: p.Args, Reply: renamed, Internal: true}
		rr := <-renamed
		if rr.IsError() {
			m.reply(p, rr)
			return
		}
		m.reply(p, command.Int(1))
	}()
}

// deliver routes a payload to whichever partition owns it. When no Router
// has been wired in (e.g. a single-partition deployment or a unit test),
// it falls back to this same manager's mailbox.
func (m *Manager) deliver(p command.Payload) {
	if m.router != nil {
		m.router.Route(p)
		return
	}
	m.Send(p)
}

// importKey materializes a ValueNode at p.Key from an exported snapshot
// produced by renameKey, replacing anything already stored there.
func (m *Manager) importKey(p command.Payload) {
	if len(p.Args) != 2 {
		return
	}
	kind := descriptor.NodeType(p.Args[0])
	raw, err := base64.StdEncoding.DecodeString(p.Args[1])
	if err != nil {
		logging.Component("keymanager").Warn().Err(err).Str("key", p.Key).Msg("import decode failed")
		return
	}

	entries := m.dbEntries(p.DB)
	if old, exists := entries[p.Key]; exists {
		m.deleteEntry(p.DB, p.Key, old)
	}

	node := m.newNode(p.DB, p.Key, kind)
	if err := node.Import(raw); err != nil {
		logging.Component("keymanager").Warn().Err(err).Str("key", p.Key).Msg("import restore failed")
	}
	entries[p.Key] = &entry{kind: kind, node: node}
	m.saveSkeleton()
}

// sortKey implements a basic SORT: fetch the collection's members from its
// owning node, sort numerically (default) or lexicographically (ALPHA),
// apply LIMIT/DESC, and reply. BY/GET external-key patterns are not
// implemented (see DESIGN.md).
func (m *Manager) sortKey(p command.Payload) {
	entries := m.dbEntries(p.DB)
	e, ok := entries[p.Key]
	if !ok {
		m.reply(p, command.ArraySlice([]command.Reply{}))
		return
	}

	var fetch command.Payload
	switch e.kind {
	case descriptor.NodeList:
		fetch = command.Payload{DB: p.DB, Name: "LRANGE", Key: p.Key, Args: []string{"0", "-1"}, Reply: make(chan command.Reply, 1), Internal: true}
	case descriptor.NodeSet:
		fetch = command.Payload{DB: p.DB, Name: "SMEMBERS", Key: p.Key, Reply: make(chan command.Reply, 1), Internal: true}
	case descriptor.NodeSortedSet:
		fetch = command.Payload{DB: p.DB, Name: "ZRANGE", Key: p.Key, Args: []string{"0", "-1"}, Reply: make(chan command.Reply, 1), Internal: true}
	default:
		m.reply(p, command.WrongType())
		return
	}
	if e.node == nil {
		e.node = m.newNode(p.DB, p.Key, e.kind)
	}
	e.node.Send(fetch)
	result := <-fetch.Reply

	members := make([]string, len(result.Array))
	for i, r := range result.Array {
		members[i] = r.Str
	}

	alpha, desc, limitOff, limitCount := false, false, -1, -1
	store := ""
	for i := 0; i < len(p.Args); i++ {
		switch strings.ToUpper(p.Args[i]) {
		case "ALPHA":
			alpha = true
		case "DESC":
			desc = true
		case "ASC":
			desc = false
		case "LIMIT":
			if i+2 < len(p.Args) {
				limitOff, _ = strconv.Atoi(p.Args[i+1])
				limitCount, _ = strconv.Atoi(p.Args[i+2])
				i += 2
			}
		case "STORE":
			if i+1 < len(p.Args) {
				store = p.Args[i+1]
				i++
			}
		}
	}

	if alpha {
		sort.Strings(members)
	} else {
		sort.Slice(members, func(i, j int) bool {
			a, errA := strconv.ParseFloat(members[i], 64)
			b, errB := strconv.ParseFloat(members[j], 64)
			if errA != nil || errB != nil {
				return members[i] < members[j]
			}
			return a < b
		})
	}
	if desc {
		for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
			members[i], members[j] = members[j], members[i]
		}
	}
	if limitOff >= 0 {
		if limitOff > len(members) {
			limitOff = len(members)
		}
		end := len(members)
		if limitCount >= 0 && limitOff+limitCount < end {
			end = limitOff + limitCount
		}
		members = members[limitOff:end]
	}

	if store != "" {
		storePayload := command.Payload{
			DB:       p.DB,
			Name:     "_XSTORE",
			Key:      store,
			Args:     members,
			Reply:    make(chan command.Reply, 1),
			Internal: true,
		}
		m.deliver(storePayload)
		m.reply(p, command.Int(int64(len(members))))
		return
	}

	m.reply(p, command.BulkStrings(members))
}
