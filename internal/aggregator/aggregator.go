// Package aggregator implements the scatter/gather/reduce variants for
// every multi-key command a ClientSession cannot route to a single
// partition: it is decomposed here into per-key (or broadcast) Payloads,
// collected, and reduced into one client-facing Reply.
//
// Each run is bounded by a deadline; a partition that has not replied by
// then is treated as a zero-valued/omitted contributor and the miss is
// logged rather than hanging the aggregator forever.
package aggregator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"curiodb/internal/command"
	"curiodb/internal/logging"
	"curiodb/internal/router"
	"curiodb/internal/valuenode"
)

// Aggregator holds the one thing every variant needs: a way to scatter
// Payloads across partitions, and how long to wait for the gather.
type Aggregator struct {
	router  *router.Router
	timeout time.Duration
}

// New builds an Aggregator dispatching through r, bounding each run to
// timeout (the aggregate-timeout setting).
func New(r *router.Router, timeout time.Duration) *Aggregator {
	return &Aggregator{router: r, timeout: timeout}
}

// Dispatch runs the named multi-key command against args (the raw
// positional arguments, excluding the command name itself) and returns the
// single Reply a ClientSession sends back to its client.
func (a *Aggregator) Dispatch(db int, name string, args []string) command.Reply {
	switch name {
	case "MGET":
		return a.mget(db, args)
	case "MSET":
		return a.mset(db, args)
	case "MSETNX":
		return a.msetnx(db, args)
	case "SDIFF", "SINTER", "SUNION":
		return a.setOp(db, name, args, "")
	case "SDIFFSTORE":
		return a.setOp(db, "SDIFF", args[1:], args[0])
	case "SINTERSTORE":
		return a.setOp(db, "SINTER", args[1:], args[0])
	case "SUNIONSTORE":
		return a.setOp(db, "SUNION", args[1:], args[0])
	case "ZUNIONSTORE":
		return a.zsetOp(db, "UNION", args)
	case "ZINTERSTORE":
		return a.zsetOp(db, "INTER", args)
	case "BITOP":
		return a.bitop(db, args)
	case "PFCOUNT":
		return a.pfcount(db, args)
	case "PFMERGE":
		return a.pfmerge(db, args)
	case "DEL":
		return a.delMulti(db, args)
	case "KEYS":
		return a.broadcastFlatten(db, "KEYS", args)
	case "SCAN":
		return a.scanAll(db, args)
	case "DBSIZE":
		return a.broadcastSum(db, "DBSIZE", nil)
	case "RANDOMKEY":
		return a.randomKey(db)
	case "FLUSHDB":
		return a.broadcastAllOK(db, "FLUSHDB", nil)
	case "FLUSHALL":
		return a.broadcastAllOK(db, "FLUSHALL", nil)
	case "PUBSUB":
		return a.pubsub(db, args)
	default:
		return command.Err("ERR unknown aggregate command '" + name + "'")
	}
}

// scatter sends one Payload per key (name, possibly with per-key args via
// argsFor) to its owning partition and gathers the replies, preserving
// key order. A partition that misses the deadline contributes a zero Reply
// (Kind defaults to KindSimple with an empty Str — callers must treat a
// Reply with no Kind set as "missing").
func (a *Aggregator) scatter(db int, name string, keys []string, argsFor func(i int) []string) []command.Reply {
	replyChans := make([]chan command.Reply, len(keys))
	for i, key := range keys {
		p := command.Payload{DB: db, Name: name, Key: key, Internal: true, Reply: make(chan command.Reply, 1)}
		if argsFor != nil {
			p.Args = argsFor(i)
		}
		replyChans[i] = p.Reply
		a.router.Route(p)
	}
	return a.collect(name, keys, replyChans)
}

func (a *Aggregator) collect(name string, labels []string, replyChans []chan command.Reply) []command.Reply {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	out := make([]command.Reply, len(replyChans))
	for i, ch := range replyChans {
		select {
		case r := <-ch:
			out[i] = r
		case <-ctx.Done():
			label := ""
			if i < len(labels) {
				label = labels[i]
			}
			logging.Component("aggregator").Warn().Str("command", name).Str("key", label).Msg("aggregate timeout")
		}
	}
	return out
}

// broadcast fans a Payload out to every partition and gathers one reply
// each, in partition order.
func (a *Aggregator) broadcast(db int, name string, args []string) []command.Reply {
	p := command.Payload{DB: db, Name: name, Args: args, Internal: true}
	chans := a.router.Broadcast(p)
	labels := make([]string, len(chans))
	return a.collect(name, labels, chans)
}

func missing(r command.Reply) bool {
	return r.Kind == command.KindSimple && r.Str == "" && r.Array == nil
}

func (a *Aggregator) mget(db int, keys []string) command.Reply {
	results := a.scatter(db, "GET", keys, nil)
	out := make([]command.Reply, len(results))
	for i, r := range results {
		if missing(r) {
			out[i] = command.Null()
			continue
		}
		out[i] = r
	}
	return command.ArraySlice(out)
}

func (a *Aggregator) mset(db int, args []string) command.Reply {
	keys := make([]string, 0, len(args)/2)
	values := make([]string, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		keys = append(keys, args[i])
		values = append(values, args[i+1])
	}
	a.scatter(db, "SET", keys, func(i int) []string { return []string{values[i]} })
	return command.OK()
}

func (a *Aggregator) msetnx(db int, args []string) command.Reply {
	keys := make([]string, 0, len(args)/2)
	values := make([]string, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		keys = append(keys, args[i])
		values = append(values, args[i+1])
	}
	existence := a.scatter(db, "EXISTS", keys, nil)
	for _, r := range existence {
		if r.Kind == command.KindInteger && r.Int != 0 {
			return command.Int(0)
		}
	}
	a.scatter(db, "SET", keys, func(i int) []string { return []string{values[i]} })
	return command.Int(1)
}

// setOp implements SDIFF/SINTER/SUNION and their *STORE variants: gather
// every source key's SMEMBERS, left-fold with the requested set operation,
// and either return the result or _SSTORE it to dest.
func (a *Aggregator) setOp(db int, op string, keys []string, dest string) command.Reply {
	results := a.scatter(db, "SMEMBERS", keys, nil)

	var acc map[string]bool
	for i, r := range results {
		members := make(map[string]bool, len(r.Array))
		for _, m := range r.Array {
			members[m.Str] = true
		}
		if i == 0 {
			acc = members
			continue
		}
		switch op {
		case "SDIFF":
			for m := range members {
				delete(acc, m)
			}
		case "SINTER":
			for m := range acc {
				if !members[m] {
					delete(acc, m)
				}
			}
		case "SUNION":
			for m := range members {
				acc[m] = true
			}
		}
	}

	out := make([]string, 0, len(acc))
	for m := range acc {
		out = append(out, m)
	}

	if dest == "" {
		return command.BulkStrings(out)
	}
	storeArgs := out
	p := command.Payload{DB: db, Name: "_SSTORE", Key: dest, Args: storeArgs, Internal: true, Reply: make(chan command.Reply, 1)}
	a.router.Route(p)
	<-p.Reply
	return command.Int(int64(len(out)))
}

// zsetOp implements ZUNIONSTORE/ZINTERSTORE: args is "dest numkeys key...
// [WEIGHTS w...] [AGGREGATE SUM|MIN|MAX]".
func (a *Aggregator) zsetOp(db int, op string, args []string) command.Reply {
	if len(args) < 2 {
		return command.Err("ERR syntax error")
	}
	dest := args[0]
	numKeys, err := strconv.Atoi(args[1])
	if err != nil || numKeys <= 0 || 2+numKeys > len(args) {
		return command.Err("ERR syntax error")
	}
	keys := args[2 : 2+numKeys]
	rest := args[2+numKeys:]

	weights := make([]float64, numKeys)
	for i := range weights {
		weights[i] = 1
	}
	aggregate := "SUM"
	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(rest[i]) {
		case "WEIGHTS":
			for j := 0; j < numKeys && i+1+j < len(rest); j++ {
				w, err := strconv.ParseFloat(rest[i+1+j], 64)
				if err == nil {
					weights[j] = w
				}
			}
			i += numKeys
		case "AGGREGATE":
			if i+1 < len(rest) {
				aggregate = strings.ToUpper(rest[i+1])
				i++
			}
		}
	}

	results := a.scatter(db, "_ZGET", keys, nil)

	scores := make(map[string]float64)
	seen := make(map[string]bool)
	for i, r := range results {
		present := make(map[string]bool)
		for j := 0; j+1 < len(r.Array); j += 2 {
			member := r.Array[j].Str
			score, _ := strconv.ParseFloat(r.Array[j+1].Str, 64)
			weighted := score * weights[i]
			present[member] = true

			if old, ok := scores[member]; ok {
				switch aggregate {
				case "MIN":
					if weighted < old {
						scores[member] = weighted
					}
				case "MAX":
					if weighted > old {
						scores[member] = weighted
					}
				default:
					scores[member] = old + weighted
				}
			} else {
				scores[member] = weighted
			}
		}
		if op == "INTER" {
			if i == 0 {
				for m := range present {
					seen[m] = true
				}
			} else {
				for m := range seen {
					if !present[m] {
						delete(seen, m)
					}
				}
			}
		}
	}

	if op == "INTER" {
		for m := range scores {
			if !seen[m] {
				delete(scores, m)
			}
		}
	}

	storeArgs := make([]string, 0, len(scores)*2)
	for m, s := range scores {
		storeArgs = append(storeArgs, m, strconv.FormatFloat(s, 'f', -1, 64))
	}
	p := command.Payload{DB: db, Name: "_ZSTORE", Key: dest, Args: storeArgs, Internal: true, Reply: make(chan command.Reply, 1)}
	a.router.Route(p)
	<-p.Reply
	return command.Int(int64(len(scores)))
}

// bitop implements BITOP op dest key [key ...]: gather every source's bit
// index set via _BGET, AND/OR/XOR left-fold (or NOT over the first key),
// and _BSTORE the result to dest.
func (a *Aggregator) bitop(db int, args []string) command.Reply {
	if len(args) < 2 {
		return command.Err("ERR wrong number of arguments for 'bitop' command")
	}
	op := strings.ToUpper(args[0])
	dest := args[1]
	keys := args[2:]
	if len(keys) == 0 || (op == "NOT" && len(keys) != 1) {
		return command.Err("ERR syntax error")
	}

	results := a.scatter(db, "_BGET", keys, nil)
	sets := make([]map[int64]bool, len(results))
	maxLen := 0
	for i, r := range results {
		s := make(map[int64]bool, len(r.Array))
		for _, b := range r.Array {
			off, _ := strconv.ParseInt(b.Str, 10, 64)
			s[off] = true
			if int(off)+1 > maxLen {
				maxLen = int(off) + 1
			}
		}
		sets[i] = s
	}

	var resultBits map[int64]bool
	switch op {
	case "NOT":
		resultBits = make(map[int64]bool)
		for off := int64(0); off < int64(maxLen); off++ {
			if !sets[0][off] {
				resultBits[off] = true
			}
		}
	case "AND":
		resultBits = sets[0]
		for _, s := range sets[1:] {
			for off := range resultBits {
				if !s[off] {
					delete(resultBits, off)
				}
			}
		}
	case "OR":
		resultBits = make(map[int64]bool)
		for _, s := range sets {
			for off := range s {
				resultBits[off] = true
			}
		}
	case "XOR":
		resultBits = make(map[int64]bool)
		for _, s := range sets {
			for off := range s {
				if resultBits[off] {
					delete(resultBits, off)
				} else {
					resultBits[off] = true
				}
			}
		}
	default:
		return command.Err("ERR syntax error")
	}

	storeArgs := make([]string, 0, len(resultBits))
	for off := range resultBits {
		storeArgs = append(storeArgs, strconv.FormatInt(off, 10))
	}
	p := command.Payload{DB: db, Name: "_BSTORE", Key: dest, Args: storeArgs, Internal: true, Reply: make(chan command.Reply, 1)}
	a.router.Route(p)
	<-p.Reply
	return command.Int(int64((maxLen + 7) / 8))
}

// decodeHLL turns a _PFGET reply (precision, then one register per element)
// back into a *valuenode.HyperLogLog for cross-partition reduction.
func decodeHLL(r command.Reply) *valuenode.HyperLogLog {
	precision, _ := strconv.Atoi(r.Array[0].Str)
	registers := make([]uint8, len(r.Array)-1)
	for i, reg := range r.Array[1:] {
		v, _ := strconv.Atoi(reg.Str)
		registers[i] = uint8(v)
	}
	return valuenode.FromRegisters(uint8(precision), registers)
}

func encodeHLL(hll *valuenode.HyperLogLog) []string {
	registers := hll.Registers()
	out := make([]string, len(registers)+1)
	out[0] = strconv.Itoa(int(hll.Precision()))
	for i, reg := range registers {
		out[i+1] = strconv.Itoa(int(reg))
	}
	return out
}

// pfcount sums per-key cardinalities rather than computing a true sketch
// union across keys: real Redis unions the sketches for a multi-key count,
// which this implementation approximates as a sum of each key's own count
// (a pinned, documented divergence — see DESIGN.md).
func (a *Aggregator) pfcount(db int, keys []string) command.Reply {
	results := a.scatter(db, "_PFCOUNT", keys, nil)
	var total int64
	for _, r := range results {
		if r.Kind == command.KindInteger {
			total += r.Int
		}
	}
	return command.Int(total)
}

func (a *Aggregator) pfmerge(db int, args []string) command.Reply {
	if len(args) < 1 {
		return command.Err("ERR wrong number of arguments for 'pfmerge' command")
	}
	dest := args[0]
	sources := args
	if len(args) > 1 {
		sources = args[1:]
	}

	results := a.scatter(db, "_PFGET", sources, nil)
	var merged *valuenode.HyperLogLog
	for _, r := range results {
		if len(r.Array) == 0 {
			continue
		}
		h := decodeHLL(r)
		if merged == nil {
			merged = h
			continue
		}
		merged.Merge(h)
	}
	if merged == nil {
		merged = valuenode.NewHyperLogLog(valuenode.DefaultPrecision)
	}

	p := command.Payload{DB: db, Name: "_PFSTORE", Key: dest, Args: encodeHLL(merged), Internal: true, Reply: make(chan command.Reply, 1)}
	a.router.Route(p)
	<-p.Reply
	return command.OK()
}

func (a *Aggregator) delMulti(db int, keys []string) command.Reply {
	results := a.scatter(db, "DEL", keys, nil)
	var total int64
	for _, r := range results {
		if r.Kind == command.KindInteger {
			total += r.Int
		}
	}
	return command.Int(total)
}

func (a *Aggregator) broadcastFlatten(db int, name string, args []string) command.Reply {
	results := a.broadcast(db, name, args)
	var out []command.Reply
	for _, r := range results {
		out = append(out, r.Array...)
	}
	return command.ArraySlice(out)
}

func (a *Aggregator) scanAll(db int, args []string) command.Reply {
	results := a.broadcast(db, "SCAN", args)
	var out []command.Reply
	for _, r := range results {
		if len(r.Array) == 2 {
			out = append(out, r.Array[1].Array...)
		}
	}
	return command.Array(command.Bulk("0"), command.ArraySlice(out))
}

func (a *Aggregator) broadcastSum(db int, name string, args []string) command.Reply {
	results := a.broadcast(db, name, args)
	var total int64
	for _, r := range results {
		if r.Kind == command.KindInteger {
			total += r.Int
		}
	}
	return command.Int(total)
}

func (a *Aggregator) broadcastAllOK(db int, name string, args []string) command.Reply {
	a.broadcast(db, name, args)
	return command.OK()
}

func (a *Aggregator) randomKey(db int) command.Reply {
	results := a.broadcast(db, "RANDOMKEY", nil)
	for _, r := range results {
		if r.Kind == command.KindBulk {
			return r
		}
	}
	return command.Null()
}

// pubsub implements PUBSUB CHANNELS [pattern] | NUMSUB [channel...] |
// NUMPAT by broadcasting the matching internal introspection command and
// reducing across partitions.
func (a *Aggregator) pubsub(db int, args []string) command.Reply {
	if len(args) == 0 {
		return command.Err("ERR wrong number of arguments for 'pubsub' command")
	}
	switch strings.ToUpper(args[0]) {
	case "CHANNELS":
		return a.broadcastFlatten(db, "_CHANNELS", args[1:])
	case "NUMPAT":
		return a.broadcastSum(db, "_NUMPAT", nil)
	case "NUMSUB":
		channels := args[1:]
		out := make([]command.Reply, 0, len(channels)*2)
		for _, ch := range channels {
			r := a.broadcastSum(db, "_NUMSUB", []string{ch})
			out = append(out, command.Bulk(ch), r)
		}
		return command.ArraySlice(out)
	default:
		return command.Err("ERR unknown PUBSUB subcommand")
	}
}
