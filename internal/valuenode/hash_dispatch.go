package valuenode

import (
	"strconv"

	"curiodb/internal/command"
)

func (n *Node) hash() *Hash { return n.data.(*Hash) }

func (n *Node) dispatchHash(p command.Payload) command.Reply {
	h := n.hash()

	switch p.Name {
	case "HSET", "HMSET":
		newFields := 0
		for _, pair := range p.Pairs() {
			if h.Set(pair[0], pair[1]) {
				newFields++
			}
		}
		n.markDirty()
		if p.Name == "HMSET" {
			return command.OK()
		}
		return command.Int(int64(newFields))

	case "HSETNX":
		ok := h.SetNX(p.Args[0], p.Args[1])
		if ok {
			n.markDirty()
			return command.Int(1)
		}
		return command.Int(0)

	case "HGET":
		v, ok := h.Get(p.Args[0])
		if !ok {
			return command.Null()
		}
		return command.Bulk(v)

	case "HMGET":
		out := make([]command.Reply, len(p.Args))
		for i, field := range p.Args {
			if v, ok := h.Get(field); ok {
				out[i] = command.Bulk(v)
			} else {
				out[i] = command.Null()
			}
		}
		return command.ArraySlice(out)

	case "HGETALL":
		return command.BulkStrings(h.GetAll())

	case "HDEL":
		deleted := 0
		for _, field := range p.Args {
			if h.Delete(field) {
				deleted++
			}
		}
		if deleted > 0 {
			n.markDirty()
		}
		return command.Int(int64(deleted))

	case "HKEYS":
		return command.BulkStrings(h.Keys())

	case "HVALS":
		return command.BulkStrings(h.Values())

	case "HLEN":
		return command.Int(int64(h.Len()))

	case "HEXISTS":
		if h.Exists(p.Args[0]) {
			return command.Int(1)
		}
		return command.Int(0)

	case "HINCRBY":
		delta, err := strconv.ParseInt(p.Args[1], 10, 64)
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		var current int64
		if v, ok := h.Get(p.Args[0]); ok {
			current, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return command.Err("ERR hash value is not an integer")
			}
		}
		newVal := current + delta
		h.Set(p.Args[0], strconv.FormatInt(newVal, 10))
		n.markDirty()
		return command.Int(newVal)

	case "HINCRBYFLOAT":
		delta, err := strconv.ParseFloat(p.Args[1], 64)
		if err != nil {
			return command.Err("ERR value is not a valid float")
		}
		var current float64
		if v, ok := h.Get(p.Args[0]); ok {
			current, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return command.Err("ERR hash value is not a float")
			}
		}
		result := current + delta
		formatted := strconv.FormatFloat(result, 'f', -1, 64)
		h.Set(p.Args[0], formatted)
		n.markDirty()
		return command.Bulk(formatted)

	case "HSCAN":
		return scanOver(h.GetAll(), p.Args[1:])

	default:
		return command.Err("ERR unknown hash command '" + p.Name + "'")
	}
}
