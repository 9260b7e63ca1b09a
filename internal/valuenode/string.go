package valuenode

import (
	"strconv"

	"curiodb/internal/command"
)

func (n *Node) str() string      { return n.data.(string) }
func (n *Node) setStr(v string)  { n.data = v; n.markDirty() }

func (n *Node) dispatchString(p command.Payload) command.Reply {
	switch p.Name {
	case "GET":
		if n.str() == "" {
			return command.Null()
		}
		return command.Bulk(n.str())

	case "SET":
		n.setStr(p.Args[0])
		return command.OK()

	case "SETNX":
		n.setStr(p.Args[0])
		return command.Int(1)

	case "GETSET":
		old := n.str()
		n.setStr(p.Args[0])
		if old == "" {
			return command.Null()
		}
		return command.Bulk(old)

	case "GETDEL":
		old := n.str()
		n.setStr("")
		if old == "" {
			return command.Null()
		}
		return command.Bulk(old)

	case "APPEND":
		n.setStr(n.str() + p.Args[0])
		return command.Int(int64(len(n.str())))

	case "STRLEN":
		return command.Int(int64(len(n.str())))

	case "GETRANGE":
		return command.Bulk(stringRange(n.str(), p.Args[0], p.Args[1]))

	case "SETRANGE":
		offset, err := strconv.Atoi(p.Args[0])
		if err != nil || offset < 0 {
			return command.Err("ERR offset is out of range")
		}
		n.setStr(setRange(n.str(), offset, p.Args[1]))
		return command.Int(int64(len(n.str())))

	case "INCR":
		return n.incrBy(1)
	case "DECR":
		return n.incrBy(-1)
	case "INCRBY":
		delta, err := strconv.ParseInt(p.Args[0], 10, 64)
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		return n.incrBy(delta)
	case "DECRBY":
		delta, err := strconv.ParseInt(p.Args[0], 10, 64)
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		return n.incrBy(-delta)

	case "INCRBYFLOAT":
		delta, err := strconv.ParseFloat(p.Args[0], 64)
		if err != nil {
			return command.Err("ERR value is not a valid float")
		}
		var current float64
		if n.str() != "" {
			current, err = strconv.ParseFloat(n.str(), 64)
			if err != nil {
				return command.Err("ERR value is not a valid float")
			}
		}
		result := current + delta
		formatted := strconv.FormatFloat(result, 'f', -1, 64)
		n.setStr(formatted)
		return command.Bulk(formatted)

	case "SETEX", "PSETEX":
		// KeyManager.setexTTL already armed the expire timer for this key
		// from p.Args[0] before forwarding; the node only sets the value.
		n.setStr(p.Args[len(p.Args)-1])
		return command.OK()

	case "_BGET":
		return command.Bulk(n.str())

	default:
		return command.Err("ERR unknown string command '" + p.Name + "'")
	}
}

func (n *Node) incrBy(delta int64) command.Reply {
	var current int64
	if n.str() != "" {
		v, err := strconv.ParseInt(n.str(), 10, 64)
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		current = v
	}
	newVal := current + delta
	n.setStr(strconv.FormatInt(newVal, 10))
	return command.Int(newVal)
}

// stringRange implements GETRANGE's negative-index wrap-and-clamp rules.
func stringRange(s, startArg, endArg string) string {
	start, err1 := strconv.Atoi(startArg)
	end, err2 := strconv.Atoi(endArg)
	if err1 != nil || err2 != nil {
		return ""
	}
	n := len(s)
	if n == 0 {
		return ""
	}
	if start < 0 {
		start = n + start
	}
	if end < 0 {
		end = n + end
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return ""
	}
	return s[start : end+1]
}

func setRange(s string, offset int, value string) string {
	if value == "" {
		return s
	}
	required := offset + len(value)
	if len(s) < required {
		s = s + string(make([]byte, required-len(s)))
	}
	b := []byte(s)
	copy(b[offset:], value)
	return string(b)
}
