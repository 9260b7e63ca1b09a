package valuenode

import (
	"strconv"

	"curiodb/internal/command"
)

func (n *Node) set() *Set { return n.data.(*Set) }

func (n *Node) dispatchSet(p command.Payload) command.Reply {
	s := n.set()

	switch p.Name {
	case "SADD":
		added := 0
		for _, m := range p.Args {
			if s.Add(m) {
				added++
			}
		}
		if added > 0 {
			n.markDirty()
		}
		return command.Int(int64(added))

	case "SREM":
		removed := 0
		for _, m := range p.Args {
			if s.Remove(m) {
				removed++
			}
		}
		if removed > 0 {
			n.markDirty()
		}
		return command.Int(int64(removed))

	case "SCARD":
		return command.Int(int64(s.Len()))

	case "SISMEMBER":
		if s.IsMember(p.Args[0]) {
			return command.Int(1)
		}
		return command.Int(0)

	case "SMEMBERS":
		return command.BulkStrings(s.GetMembers())

	case "SRANDMEMBER":
		if len(p.Args) == 0 {
			v, ok := s.RandomMember()
			if !ok {
				return command.Null()
			}
			return command.Bulk(v)
		}
		count, err := strconv.Atoi(p.Args[0])
		if err != nil {
			return command.Err("ERR value is not an integer or out of range")
		}
		return command.BulkStrings(s.RandomMembers(count))

	case "SPOP":
		if len(p.Args) == 0 {
			v, ok := s.Pop()
			if !ok {
				return command.Null()
			}
			n.markDirty()
			return command.Bulk(v)
		}
		count, err := strconv.Atoi(p.Args[0])
		if err != nil || count < 0 {
			return command.Err("ERR value is out of range, must be positive")
		}
		out := make([]command.Reply, 0, count)
		for i := 0; i < count; i++ {
			v, ok := s.Pop()
			if !ok {
				break
			}
			out = append(out, command.Bulk(v))
		}
		if len(out) > 0 {
			n.markDirty()
		}
		return command.ArraySlice(out)

	case "SSCAN":
		return scanOver(s.GetMembers(), p.Args[1:])

	case "SMOVE":
		// the destination add is issued by the session (Session.smove),
		// which sends the destination key a plain SADD after this node
		// confirms removal.
		if !s.Remove(p.Args[1]) {
			return command.Int(0)
		}
		n.markDirty()
		return command.Int(1)

	case "_SSTORE":
		s2 := NewSet()
		for _, m := range p.Args {
			s2.Add(m)
		}
		n.data = s2
		n.markDirty()
		return command.OK()

	default:
		return command.Err("ERR unknown set command '" + p.Name + "'")
	}
}
