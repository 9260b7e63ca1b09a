// Package session implements the ClientSession actor: one goroutine per
// connection, owning its read buffer, selected database, and subscriptions,
// driving every command through a five-step dispatch path: descriptor
// lookup, arity validation, local client commands, multi-key aggregation,
// or routed forward to the owning partition.
package session

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"curiodb/internal/aggregator"
	"curiodb/internal/clusterhash"
	"curiodb/internal/command"
	"curiodb/internal/descriptor"
	"curiodb/internal/keymanager"
	"curiodb/internal/logging"
	"curiodb/internal/protocol"
	"curiodb/internal/router"
)

// aggregateCommands is the set of multi-key commands a ClientSession hands
// to an Aggregator rather than routing directly to one partition.
var aggregateCommands = map[string]bool{
	"MGET": true, "MSET": true, "MSETNX": true,
	"SDIFF": true, "SINTER": true, "SUNION": true,
	"SDIFFSTORE": true, "SINTERSTORE": true, "SUNIONSTORE": true,
	"ZUNIONSTORE": true, "ZINTERSTORE": true,
	"BITOP": true, "PFCOUNT": true, "PFMERGE": true,
	"DEL": true, "KEYS": true, "SCAN": true, "DBSIZE": true,
	"RANDOMKEY": true, "FLUSHDB": true, "FLUSHALL": true, "PUBSUB": true,
}

const blockPollInterval = 20 * time.Millisecond

// Session is one connection's actor. Nothing here is shared across
// goroutines except through the KeyManager/Router/Aggregator it talks to.
type Session struct {
	id   string
	conn net.Conn

	reader *bufio.Reader
	writer *bufio.Writer

	table      *descriptor.Table
	router     *router.Router
	partitions []*keymanager.Manager
	aggregator *aggregator.Aggregator

	idleTimeout time.Duration
	db          int

	sub         *keymanager.Subscriber
	subChannels map[string]bool
	subPatterns map[string]bool

	quit bool
}

// New builds a Session over an accepted connection. partitions must be in
// the same order the Router dispatches across, since SUBSCRIBE/PSUBSCRIBE
// address a partition directly by clusterhash index.
func New(conn net.Conn, table *descriptor.Table, r *router.Router, partitions []*keymanager.Manager, agg *aggregator.Aggregator, idleTimeout time.Duration) *Session {
	id := fmt.Sprintf("client:%s", uuid.New().String())
	return &Session{
		id:          id,
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, 4096),
		writer:      bufio.NewWriterSize(conn, 4096),
		table:       table,
		router:      r,
		partitions:  partitions,
		aggregator:  agg,
		idleTimeout: idleTimeout,
		subChannels: make(map[string]bool),
		subPatterns: make(map[string]bool),
	}
}

// Serve runs the session until the peer disconnects, QUIT is issued, or a
// framing error occurs. Blocks the calling goroutine.
func (s *Session) Serve() {
	log := logging.Component("session")
	defer s.cleanup()

	for {
		if s.sub != nil {
			s.conn.SetReadDeadline(time.Time{})
		} else if s.idleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		cmd, err := protocol.ParseCommand(s.reader)
		if err != nil {
			return
		}
		if len(cmd.Args) == 0 {
			continue
		}

		s.handle(cmd.Args)
		if err := s.writer.Flush(); err != nil {
			return
		}
		if s.quit {
			log.Debug().Str("session", s.id).Msg("quit")
			return
		}
	}
}

func (s *Session) cleanup() {
	s.conn.Close()
	if s.sub == nil {
		return
	}
	for ch := range s.subChannels {
		idx := clusterhash.Partition(ch, len(s.partitions))
		s.partitions[idx].Unsubscribe(s.sub.ID, ch)
	}
	for pat := range s.subPatterns {
		for _, part := range s.partitions {
			part.PUnsubscribe(s.sub.ID, pat)
		}
	}
	for _, part := range s.partitions {
		part.RemoveSubscriber(s.sub.ID)
	}
}

// handle implements the five-step command path: descriptor lookup,
// keyed-ness/arity validation, client-local execution, aggregate dispatch,
// or routed forward to the owning partition.
func (s *Session) handle(args []string) {
	name := strings.ToUpper(args[0])
	rest := args[1:]

	desc := s.table.Lookup(name)
	if desc == nil {
		s.writeReply(command.Err("ERR unknown command '" + name + "'"))
		return
	}

	if desc.Keyed && len(rest) == 0 {
		s.writeReply(command.Err("ERR wrong number of arguments for '" + name + "' command"))
		return
	}
	if !desc.Arity.Accepts(len(rest)) {
		s.writeReply(command.Err("ERR wrong number of arguments for '" + name + "' command"))
		return
	}

	switch {
	case desc.NodeType == descriptor.NodeClient:
		s.handleClient(name, rest)
	case aggregateCommands[name]:
		s.writeReply(s.aggregator.Dispatch(s.db, name, rest))
	default:
		s.route(name, rest, desc)
	}
}

func (s *Session) route(name string, rest []string, desc *descriptor.Descriptor) {
	key := ""
	args := rest
	if desc.Keyed {
		key = rest[0]
		args = rest[1:]
	}
	if !desc.Arity.Accepts(len(rest)) {
		s.writeReply(command.Err("ERR wrong number of arguments for '" + name + "' command"))
		return
	}

	switch name {
	case "BLPOP", "BRPOP":
		s.writeReply(s.blockingPop(name, rest))
		return
	case "BRPOPLPUSH":
		s.writeReply(s.blockingPopPush(rest))
		return
	case "RPOPLPUSH":
		s.writeReply(s.popPush(key, args[0]))
		return
	case "SMOVE":
		s.writeReply(s.smove(key, args[0], args[1]))
		return
	}

	p := command.Payload{DB: s.db, Name: name, Key: key, Args: args, Reply: make(chan command.Reply, 1)}
	s.router.Route(p)
	s.writeReply(<-p.Reply)
}

func (s *Session) handleClient(name string, rest []string) {
	switch name {
	case "SELECT":
		db, err := strconv.Atoi(rest[0])
		if err != nil || db < 0 {
			s.writeReply(command.Err("ERR invalid DB index"))
			return
		}
		s.db = db
		s.writeReply(command.OK())

	case "ECHO":
		s.writeReply(command.Bulk(rest[0]))

	case "PING":
		if len(rest) > 0 {
			s.writeReply(command.Bulk(rest[0]))
			return
		}
		s.writeReply(command.Simple("PONG"))

	case "TIME":
		now := time.Now()
		s.writeReply(command.BulkStrings([]string{
			strconv.FormatInt(now.Unix(), 10),
			strconv.FormatInt(int64(now.Nanosecond()/1000), 10),
		}))

	case "SHUTDOWN":
		s.writeReply(command.OK())
		s.quit = true

	case "QUIT":
		s.writeReply(command.OK())
		s.quit = true

	case "SUBSCRIBE":
		s.subscribe(rest)
	case "UNSUBSCRIBE":
		s.unsubscribe(rest)
	case "PSUBSCRIBE":
		s.psubscribe(rest)
	case "PUNSUBSCRIBE":
		s.punsubscribe(rest)

	default:
		s.writeReply(command.Err("ERR unknown command '" + name + "'"))
	}
}

func (s *Session) ensureSubscriber() {
	if s.sub != nil {
		return
	}
	s.sub = &keymanager.Subscriber{ID: s.id, Events: make(chan keymanager.Event, 64)}
	go s.pumpEvents(s.sub)
}

// pumpEvents delivers pushed pub/sub messages to the connection from a
// dedicated goroutine, since Serve's loop is blocked reading the next
// command. Writes directly to the connection rather than through the
// shared buffered writer.
func (s *Session) pumpEvents(sub *keymanager.Subscriber) {
	for ev := range sub.Events {
		var reply command.Reply
		switch ev.Kind {
		case "message":
			reply = command.ArraySlice([]command.Reply{command.Bulk("message"), command.Bulk(ev.Channel), command.Bulk(ev.Payload)})
		case "pmessage":
			reply = command.ArraySlice([]command.Reply{command.Bulk("pmessage"), command.Bulk(ev.Pattern), command.Bulk(ev.Channel), command.Bulk(ev.Payload)})
		default:
			reply = command.ArraySlice([]command.Reply{command.Bulk(ev.Kind), command.Bulk(ev.Channel + ev.Pattern), command.Int(int64(ev.Count))})
		}
		if _, err := s.conn.Write(protocol.Encode(reply)); err != nil {
			return
		}
	}
}

func (s *Session) subscribe(channels []string) {
	s.ensureSubscriber()
	for _, ch := range channels {
		idx := clusterhash.Partition(ch, len(s.partitions))
		count := s.partitions[idx].Subscribe(s.sub, ch)
		s.subChannels[ch] = true
		s.conn.Write(protocol.Encode(command.ArraySlice([]command.Reply{
			command.Bulk("subscribe"), command.Bulk(ch), command.Int(int64(count)),
		})))
	}
}

func (s *Session) unsubscribe(channels []string) {
	if s.sub == nil {
		s.conn.Write(protocol.Encode(command.ArraySlice([]command.Reply{
			command.Bulk("unsubscribe"), command.Null(), command.Int(0),
		})))
		return
	}
	if len(channels) == 0 {
		for ch := range s.subChannels {
			channels = append(channels, ch)
		}
	}
	for _, ch := range channels {
		idx := clusterhash.Partition(ch, len(s.partitions))
		count := s.partitions[idx].Unsubscribe(s.sub.ID, ch)
		delete(s.subChannels, ch)
		s.conn.Write(protocol.Encode(command.ArraySlice([]command.Reply{
			command.Bulk("unsubscribe"), command.Bulk(ch), command.Int(int64(count)),
		})))
	}
}

// psubscribe registers the pattern on every partition: PUBLISH only reaches
// the partition owning a channel's exact key, so a pattern that might match
// any channel has to be known everywhere.
func (s *Session) psubscribe(patterns []string) {
	s.ensureSubscriber()
	for _, pat := range patterns {
		var count int
		for _, part := range s.partitions {
			count = part.PSubscribe(s.sub, pat)
		}
		s.subPatterns[pat] = true
		s.conn.Write(protocol.Encode(command.ArraySlice([]command.Reply{
			command.Bulk("psubscribe"), command.Bulk(pat), command.Int(int64(count)),
		})))
	}
}

func (s *Session) punsubscribe(patterns []string) {
	if s.sub == nil {
		s.conn.Write(protocol.Encode(command.ArraySlice([]command.Reply{
			command.Bulk("punsubscribe"), command.Null(), command.Int(0),
		})))
		return
	}
	if len(patterns) == 0 {
		for pat := range s.subPatterns {
			patterns = append(patterns, pat)
		}
	}
	for _, pat := range patterns {
		var count int
		for _, part := range s.partitions {
			count = part.PUnsubscribe(s.sub.ID, pat)
		}
		delete(s.subPatterns, pat)
		s.conn.Write(protocol.Encode(command.ArraySlice([]command.Reply{
			command.Bulk("punsubscribe"), command.Bulk(pat), command.Int(int64(count)),
		})))
	}
}

func (s *Session) writeReply(r command.Reply) {
	s.writer.Write(protocol.Encode(r))
}

// popPush implements RPOPLPUSH: pop from the source node, then push onto
// the destination (which may live on a different partition).
func (s *Session) popPush(src, dest string) command.Reply {
	pop := command.Payload{DB: s.db, Name: "RPOPLPUSH", Key: src, Args: []string{dest}, Reply: make(chan command.Reply, 1)}
	s.router.Route(pop)
	r := <-pop.Reply
	if r.Kind != command.KindBulk {
		return r
	}
	push := command.Payload{DB: s.db, Name: "LPUSH", Key: dest, Args: []string{r.Str}, Internal: true, Reply: make(chan command.Reply, 1)}
	s.router.Route(push)
	<-push.Reply
	return r
}

func (s *Session) smove(src, dest, member string) command.Reply {
	pop := command.Payload{DB: s.db, Name: "SMOVE", Key: src, Args: []string{dest, member}, Reply: make(chan command.Reply, 1)}
	s.router.Route(pop)
	r := <-pop.Reply
	if r.Kind != command.KindInteger || r.Int == 0 {
		return r
	}
	push := command.Payload{DB: s.db, Name: "SADD", Key: dest, Args: []string{member}, Internal: true, Reply: make(chan command.Reply, 1)}
	s.router.Route(push)
	<-push.Reply
	return r
}

// blockingPop implements BLPOP/BRPOP by polling each candidate key's
// non-blocking pop in order until one yields a value or the deadline
// elapses — a deliberate simplification versus a waiter-registry /
// re-entrant-callback design, documented in DESIGN.md.
func (s *Session) blockingPop(name string, rest []string) command.Reply {
	if len(rest) < 2 {
		return command.Err("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
	}
	keys := rest[:len(rest)-1]
	timeoutSec, err := strconv.ParseFloat(rest[len(rest)-1], 64)
	if err != nil || timeoutSec < 0 {
		return command.Err("ERR timeout is not a float or out of range")
	}
	popName := "LPOP"
	if name == "BRPOP" {
		popName = "RPOP"
	}

	var deadline time.Time
	if timeoutSec > 0 {
		deadline = time.Now().Add(time.Duration(timeoutSec * float64(time.Second)))
	}

	for {
		for _, key := range keys {
			p := command.Payload{DB: s.db, Name: popName, Key: key, Reply: make(chan command.Reply, 1)}
			s.router.Route(p)
			r := <-p.Reply
			if r.Kind == command.KindBulk {
				return command.ArraySlice([]command.Reply{command.Bulk(key), r})
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return command.Null()
		}
		time.Sleep(blockPollInterval)
	}
}

func (s *Session) blockingPopPush(rest []string) command.Reply {
	if len(rest) != 3 {
		return command.Err("ERR wrong number of arguments for 'brpoplpush' command")
	}
	src, dest := rest[0], rest[1]
	timeoutSec, err := strconv.ParseFloat(rest[2], 64)
	if err != nil || timeoutSec < 0 {
		return command.Err("ERR timeout is not a float or out of range")
	}

	var deadline time.Time
	if timeoutSec > 0 {
		deadline = time.Now().Add(time.Duration(timeoutSec * float64(time.Second)))
	}

	for {
		r := s.popPush(src, dest)
		if r.Kind == command.KindBulk {
			return r
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return command.Null()
		}
		time.Sleep(blockPollInterval)
	}
}
