package keymanager

import (
	"regexp"
	"strings"

	"curiodb/internal/command"
)

// Subscriber is a client-side handle a ClientSession registers with every
// partition's pub/sub registry it subscribes through. Delivery is
// best-effort: a full channel drops the message rather than blocking the
// KeyManager goroutine.
type Subscriber struct {
	ID     string
	Events chan Event
}

// Event is what a subscriber receives: a delivered message, or an ack for a
// (un)subscribe action carrying the subscriber's new total subscription
// count.
type Event struct {
	Kind    string // "message", "pmessage", "subscribe", "unsubscribe", "psubscribe", "punsubscribe"
	Channel string
	Pattern string
	Payload string
	Count   int
}

// registry is a partition's pub/sub bookkeeping: which subscribers are on
// which channels/patterns, the inverse per-subscriber index needed for
// cleanup, and one compiled regex per pattern. A plain map of compiled
// patterns is used instead of a pattern-trie, since per-partition pattern
// counts are small (see DESIGN.md).
type registry struct {
	channels map[string]map[string]*Subscriber
	patterns map[string]map[string]*Subscriber
	compiled map[string]*regexp.Regexp

	subChannels map[string]map[string]bool
	subPatterns map[string]map[string]bool
	subscribers map[string]*Subscriber
}

func newRegistry() *registry {
	return &registry{
		channels:    make(map[string]map[string]*Subscriber),
		patterns:    make(map[string]map[string]*Subscriber),
		compiled:    make(map[string]*regexp.Regexp),
		subChannels: make(map[string]map[string]bool),
		subPatterns: make(map[string]map[string]bool),
		subscribers: make(map[string]*Subscriber),
	}
}

func compileGlob(pattern string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `.`)
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return nil
	}
	return re
}

func (r *registry) subscribe(sub *Subscriber, channel string) int {
	if existing, ok := r.subscribers[sub.ID]; ok {
		sub = existing
	} else {
		r.subscribers[sub.ID] = sub
	}
	if r.channels[channel] == nil {
		r.channels[channel] = make(map[string]*Subscriber)
	}
	r.channels[channel][sub.ID] = sub
	if r.subChannels[sub.ID] == nil {
		r.subChannels[sub.ID] = make(map[string]bool)
	}
	r.subChannels[sub.ID][channel] = true
	return r.subscriptionCount(sub.ID)
}

func (r *registry) unsubscribe(subID, channel string) int {
	if subs, ok := r.channels[channel]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	delete(r.subChannels[subID], channel)
	return r.subscriptionCount(subID)
}

func (r *registry) psubscribe(sub *Subscriber, pattern string) int {
	if existing, ok := r.subscribers[sub.ID]; ok {
		sub = existing
	} else {
		r.subscribers[sub.ID] = sub
	}
	if r.patterns[pattern] == nil {
		r.patterns[pattern] = make(map[string]*Subscriber)
		r.compiled[pattern] = compileGlob(pattern)
	}
	r.patterns[pattern][sub.ID] = sub
	if r.subPatterns[sub.ID] == nil {
		r.subPatterns[sub.ID] = make(map[string]bool)
	}
	r.subPatterns[sub.ID][pattern] = true
	return r.subscriptionCount(sub.ID)
}

func (r *registry) punsubscribe(subID, pattern string) int {
	if subs, ok := r.patterns[pattern]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(r.patterns, pattern)
			delete(r.compiled, pattern)
		}
	}
	delete(r.subPatterns[subID], pattern)
	return r.subscriptionCount(subID)
}

func (r *registry) subscriptionCount(subID string) int {
	return len(r.subChannels[subID]) + len(r.subPatterns[subID])
}

// publish delivers payload to every channel subscriber and every pattern
// subscriber whose pattern matches channel, returning the recipient count.
func (r *registry) publish(channel, payload string) int {
	count := 0
	if subs, ok := r.channels[channel]; ok {
		for _, sub := range subs {
			select {
			case sub.Events <- Event{Kind: "message", Channel: channel, Payload: payload}:
				count++
			default:
			}
		}
	}
	for pattern, subs := range r.patterns {
		re := r.compiled[pattern]
		if re == nil || !re.MatchString(channel) {
			continue
		}
		for _, sub := range subs {
			select {
			case sub.Events <- Event{Kind: "pmessage", Pattern: pattern, Channel: channel, Payload: payload}:
				count++
			default:
			}
		}
	}
	return count
}

// removeSubscriber drops every subscription a disconnecting session held,
// used when a ClientSession's peer connection closes.
func (r *registry) removeSubscriber(subID string) {
	for channel := range r.subChannels[subID] {
		if subs, ok := r.channels[channel]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(r.channels, channel)
			}
		}
	}
	delete(r.subChannels, subID)
	for pattern := range r.subPatterns[subID] {
		if subs, ok := r.patterns[pattern]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(r.patterns, pattern)
				delete(r.compiled, pattern)
			}
		}
	}
	delete(r.subPatterns, subID)
	delete(r.subscribers, subID)
}

func isPubSubAdmin(name string) bool {
	switch name {
	case "_NUMSUB", "_NUMPAT", "_CHANNELS":
		return true
	default:
		return false
	}
}

// handlePubSub serves the per-partition introspection commands PUBSUB's
// aggregator fans out: _NUMSUB, _NUMPAT, _CHANNELS. Subscribe/unsubscribe
// themselves are not Payloads — see Manager.Subscribe et al. below, called
// directly by a ClientSession since a live *Subscriber can't be carried in
// a Payload's []string Args.
func (m *Manager) handlePubSub(p command.Payload) {
	switch p.Name {
	case "_NUMSUB":
		total := 0
		for _, ch := range p.Args {
			if subs, ok := m.pubsub.channels[ch]; ok {
				total += len(subs)
			}
		}
		m.reply(p, command.Int(int64(total)))
	case "_NUMPAT":
		m.reply(p, command.Int(int64(len(m.pubsub.patterns))))
	case "_CHANNELS":
		pattern := ""
		if len(p.Args) > 0 {
			pattern = p.Args[0]
		}
		out := make([]string, 0, len(m.pubsub.channels))
		for ch := range m.pubsub.channels {
			if pattern == "" {
				out = append(out, ch)
				continue
			}
			if re := compileGlob(pattern); re != nil && re.MatchString(ch) {
				out = append(out, ch)
			}
		}
		m.reply(p, command.BulkStrings(out))
	default:
		m.reply(p, command.Err("ERR unknown pubsub command '"+p.Name+"'"))
	}
}

// Subscribe/Unsubscribe/PSubscribe/PUnsubscribe/RemoveSubscriber are called
// directly by a ClientSession (not routed through the mailbox as Payloads)
// because they carry a live *Subscriber handle. They still only touch
// m.pubsub from the manager's own goroutine by round-tripping through a
// tiny internal channel op, preserving the single-writer discipline every
// other mutation in this package relies on.
func (m *Manager) Subscribe(sub *Subscriber, channel string) int {
	return m.withPubSub(func() int { return m.pubsub.subscribe(sub, channel) })
}

func (m *Manager) Unsubscribe(subID, channel string) int {
	return m.withPubSub(func() int { return m.pubsub.unsubscribe(subID, channel) })
}

func (m *Manager) PSubscribe(sub *Subscriber, pattern string) int {
	return m.withPubSub(func() int { return m.pubsub.psubscribe(sub, pattern) })
}

func (m *Manager) PUnsubscribe(subID, pattern string) int {
	return m.withPubSub(func() int { return m.pubsub.punsubscribe(subID, pattern) })
}

func (m *Manager) RemoveSubscriber(subID string) {
	m.withPubSub(func() int { m.pubsub.removeSubscriber(subID); return 0 })
}

// withPubSub submits fn to run on the manager's own goroutine and blocks
// until it completes, giving external callers (ClientSession) exclusive,
// serialized access to the registry without a mutex.
func (m *Manager) withPubSub(fn func() int) int {
	result := make(chan int, 1)
	m.calls <- func() { result <- fn() }
	return <-result
}
