package valuenode

import (
	"strconv"
	"strings"

	"curiodb/internal/command"
)

func (n *Node) list() *List { return n.data.(*List) }

func (n *Node) dispatchList(p command.Payload) command.Reply {
	l := n.list()

	switch p.Name {
	case "LPUSH", "LPUSHX":
		for _, v := range p.Args {
			l.PushFront(v)
		}
		n.markDirty()
		return command.Int(int64(l.Length))

	case "RPUSH", "RPUSHX":
		for _, v := range p.Args {
			l.PushBack(v)
		}
		n.markDirty()
		return command.Int(int64(l.Length))

	case "LPOP":
		return n.listPop(l, true, p.Args)

	case "RPOP":
		return n.listPop(l, false, p.Args)

	case "LLEN":
		return command.Int(int64(l.Length))

	case "LRANGE":
		start, err1 := strconv.Atoi(p.Args[0])
		stop, err2 := strconv.Atoi(p.Args[1])
		if err1 != nil || err2 != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		return command.BulkStrings(l.Range(start, stop))

	case "LTRIM":
		start, err1 := strconv.Atoi(p.Args[0])
		stop, err2 := strconv.Atoi(p.Args[1])
		if err1 != nil || err2 != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		l.Trim(start, stop)
		n.markDirty()
		return command.OK()

	case "LSET":
		idx, err := strconv.Atoi(p.Args[0])
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		if !l.SetAt(idx, p.Args[1]) {
			return command.Err("ERR index out of range")
		}
		n.markDirty()
		return command.OK()

	case "LINDEX":
		idx, err := strconv.Atoi(p.Args[0])
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		v, ok := l.GetAt(idx)
		if !ok {
			return command.Null()
		}
		return command.Bulk(v)

	case "LREM":
		count, err := strconv.Atoi(p.Args[0])
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		removed := n.listRem(l, count, p.Args[1])
		if removed > 0 {
			n.markDirty()
		}
		return command.Int(int64(removed))

	case "LINSERT":
		before := strings.EqualFold(p.Args[0], "BEFORE")
		pivot := l.FindNode(p.Args[1], true)
		if pivot == nil {
			return command.Int(-1)
		}
		if before {
			l.InsertBefore(pivot, p.Args[2])
		} else {
			l.InsertAfter(pivot, p.Args[2])
		}
		n.markDirty()
		return command.Int(int64(l.Length))

	case "RPOPLPUSH", "BRPOPLPUSH":
		// this node only pops; the destination push is issued by the
		// session (Session.popPush) as an LPUSH to the destination key.
		v, ok := l.PopBack()
		if !ok {
			return command.Null()
		}
		n.markDirty()
		return command.Bulk(v)

	case "_XSTORE":
		l2 := NewList()
		for _, v := range p.Args {
			l2.PushBack(v)
		}
		n.data = l2
		n.markDirty()
		return command.OK()

	default:
		return command.Err("ERR unknown list command '" + p.Name + "'")
	}
}

func (n *Node) listPop(l *List, front bool, args []string) command.Reply {
	count := 1
	multi := false
	if len(args) > 0 {
		c, err := strconv.Atoi(args[0])
		if err != nil || c < 0 {
			return command.Err("ERR value is not an integer or out of range")
		}
		count = c
		multi = true
	}

	out := make([]command.Reply, 0, count)
	for i := 0; i < count; i++ {
		var v string
		var ok bool
		if front {
			v, ok = l.PopFront()
		} else {
			v, ok = l.PopBack()
		}
		if !ok {
			break
		}
		out = append(out, command.Bulk(v))
	}
	if len(out) > 0 {
		n.markDirty()
	}

	if multi {
		return command.ArraySlice(out)
	}
	if len(out) == 0 {
		return command.Null()
	}
	return out[0]
}

func (n *Node) listRem(l *List, count int, value string) int {
	removed := 0
	if count >= 0 {
		limit := count
		node := l.Head
		for node != nil {
			next := node.Next
			if node.Value == value && (limit == 0 || removed < limit) {
				l.RemoveNode(node)
				removed++
			}
			node = next
		}
		return removed
	}

	limit := -count
	node := l.Tail
	for node != nil {
		prev := node.Prev
		if node.Value == value && removed < limit {
			l.RemoveNode(node)
			removed++
		}
		node = prev
	}
	return removed
}
