// Package command defines the Payload that flows from a ClientSession
// through the Router into a KeyManager and finally a ValueNode, and the
// Reply that flows back. Every actor in the store communicates exclusively
// through these two types.
package command

import (
	"strings"

	"curiodb/internal/descriptor"
)

// Payload is one command addressed to a single partition. Multi-key client
// commands are decomposed into one Payload per key by an Aggregator before
// they ever reach a Router.
type Payload struct {
	DB   int      // logical database index
	Name string   // upper-cased command name, e.g. "SET"
	Key  string   // empty when the command is not keyed
	Args []string // positional arguments, excluding the command name and key

	// Reply carries the response back to whoever issued the payload. It is
	// always buffered by 1 so the sender never blocks on a slow receiver.
	Reply chan Reply

	// Internal marks payloads synthesized by the system itself (Router
	// redirects, Aggregator scatter/gather, KeyManager rename/passivation)
	// rather than received verbatim from a client. It does not change
	// validation or the default-reply-on-missing-key short-circuit — the
	// descriptor table's own Overwrites flag decides that (see
	// keymanager.validateAndForward), so a scattered GET or SMEMBERS gets
	// exactly the same missing-key reply a client's own GET/SMEMBERS would,
	// instead of silently materializing a phantom key.
	Internal bool
}

// NewPayload builds a Payload from raw RESP arguments (args[0] is the
// command name). desc.Keyed controls whether args[1] is peeled off as Key.
func NewPayload(db int, args []string, desc *descriptor.Descriptor) Payload {
	name := strings.ToUpper(args[0])
	rest := args[1:]
	p := Payload{
		DB:    db,
		Name:  name,
		Reply: make(chan Reply, 1),
	}
	if desc != nil && desc.Keyed && len(rest) > 0 {
		p.Key = rest[0]
		p.Args = rest[1:]
	} else {
		p.Args = rest
	}
	return p
}

// Pairs interprets Args as a flat (a, b, a, b, ...) sequence, as used by
// MSET, HSET and similar pairs-arity commands.
func (p Payload) Pairs() [][2]string {
	out := make([][2]string, 0, len(p.Args)/2)
	for i := 0; i+1 < len(p.Args); i += 2 {
		out = append(out, [2]string{p.Args[i], p.Args[i+1]})
	}
	return out
}

// ReplyKind is a closed enum of the RESP reply shapes a ValueNode or
// KeyManager can produce: simple string, error, integer, bulk string, null
// and array, plus KindDouble for scores.
type ReplyKind int

const (
	KindSimple ReplyKind = iota
	KindError
	KindInteger
	KindBulk
	KindNull
	KindArray
	KindDouble // RESP2 represents this as a bulk string; kept distinct for callers
)

// Reply is the closed-variant response a ValueNode, KeyManager or
// Aggregator hands back for a Payload.
type Reply struct {
	Kind  ReplyKind
	Str   string   // KindSimple, KindError, KindBulk, KindDouble
	Int   int64    // KindInteger
	Array []Reply  // KindArray
}

func Simple(s string) Reply  { return Reply{Kind: KindSimple, Str: s} }
func Err(s string) Reply     { return Reply{Kind: KindError, Str: s} }
func Errf(format string, a ...any) Reply {
	return Reply{Kind: KindError, Str: sprintf(format, a...)}
}
func Int(n int64) Reply      { return Reply{Kind: KindInteger, Int: n} }
func Bulk(s string) Reply    { return Reply{Kind: KindBulk, Str: s} }
func Null() Reply            { return Reply{Kind: KindNull} }
func Array(r ...Reply) Reply { return Reply{Kind: KindArray, Array: r} }
func ArraySlice(r []Reply) Reply { return Reply{Kind: KindArray, Array: r} }
func Double(f float64) Reply { return Reply{Kind: KindDouble, Str: formatFloat(f)} }

// BulkStrings wraps a []string as a KindArray of KindBulk replies, the most
// common shape for range/members/keys-style responses.
func BulkStrings(ss []string) Reply {
	out := make([]Reply, len(ss))
	for i, s := range ss {
		out[i] = Bulk(s)
	}
	return ArraySlice(out)
}

// OK is the canonical "+OK" simple-string reply.
func OK() Reply { return Simple("OK") }

// IsError reports whether this reply represents an error.
func (r Reply) IsError() bool { return r.Kind == KindError }

// WrongType is the canonical reply for a command applied to the wrong
// value-node type.
func WrongType() Reply {
	return Err("WRONGTYPE Operation against a key holding the wrong kind of value")
}
