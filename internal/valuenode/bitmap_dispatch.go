package valuenode

import (
	"strconv"

	"curiodb/internal/command"
)

func (n *Node) bitmap() *Bitmap { return n.data.(*Bitmap) }

func (n *Node) dispatchBitmap(p command.Payload) command.Reply {
	b := n.bitmap()

	switch p.Name {
	case "SETBIT":
		offset, err := strconv.ParseInt(p.Args[0], 10, 64)
		if err != nil || offset < 0 {
			return command.Err("ERR bit offset is not an integer or out of range")
		}
		value, err := strconv.Atoi(p.Args[1])
		if err != nil || (value != 0 && value != 1) {
			return command.Err("ERR bit is not an integer or out of range")
		}
		old := b.SetBit(offset, value)
		n.markDirty()
		return command.Int(int64(old))

	case "GETBIT":
		offset, err := strconv.ParseInt(p.Args[0], 10, 64)
		if err != nil || offset < 0 {
			return command.Err("ERR bit offset is not an integer or out of range")
		}
		return command.Int(int64(b.GetBit(offset)))

	case "BITCOUNT":
		startByte, endByte := int64(0), b.Len()-1
		if len(p.Args) >= 2 {
			s, err1 := strconv.ParseInt(p.Args[0], 10, 64)
			e, err2 := strconv.ParseInt(p.Args[1], 10, 64)
			if err1 != nil || err2 != nil {
				return command.Err("ERR value is not an integer or out of range")
			}
			startByte, endByte = clampByteRange(s, e, b.Len())
		}
		if endByte < startByte {
			return command.Int(0)
		}
		return command.Int(b.Count(startByte, endByte))

	case "BITPOS":
		target, err := strconv.Atoi(p.Args[0])
		if err != nil || (target != 0 && target != 1) {
			return command.Err("ERR the bit argument must be 1 or 0")
		}
		startByte, endByte := int64(0), b.Len()-1
		if len(p.Args) >= 3 {
			s, err1 := strconv.ParseInt(p.Args[1], 10, 64)
			e, err2 := strconv.ParseInt(p.Args[2], 10, 64)
			if err1 != nil || err2 != nil {
				return command.Err("ERR value is not an integer or out of range")
			}
			startByte, endByte = clampByteRange(s, e, b.Len())
		} else if len(p.Args) == 2 {
			s, err := strconv.ParseInt(p.Args[1], 10, 64)
			if err != nil {
				return command.Err("ERR value is not an integer or out of range")
			}
			startByte, endByte = clampByteRange(s, b.Len()-1, b.Len())
		}
		if endByte < startByte {
			if target == 0 && len(p.Args) < 3 {
				return command.Int(b.Len() * 8)
			}
			return command.Int(-1)
		}
		pos := b.Pos(target, startByte, endByte)
		if pos == -1 && target == 0 && len(p.Args) < 3 {
			// searching for a 0 bit with no explicit end, past the end of
			// a set-all-ones string is a valid hit one byte beyond the data.
			return command.Int(b.Len() * 8)
		}
		return command.Int(pos)

	case "_BGET":
		out := make([]command.Reply, len(b.bits))
		for i, off := range b.bits {
			out[i] = command.Bulk(strconv.FormatInt(off, 10))
		}
		return command.ArraySlice(out)

	case "_BSTORE":
		b2 := NewBitmap()
		for _, a := range p.Args {
			off, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return command.Err("ERR invalid bitmap store payload")
			}
			b2.SetBit(off, 1)
		}
		n.data = b2
		n.markDirty()
		return command.OK()

	default:
		return command.Err("ERR unknown bitmap command '" + p.Name + "'")
	}
}

func clampByteRange(start, end, length int64) (int64, int64) {
	if start < 0 {
		start = length + start
	}
	if end < 0 {
		end = length + end
	}
	if start < 0 {
		start = 0
	}
	if end >= length {
		end = length - 1
	}
	return start, end
}
