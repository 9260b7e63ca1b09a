package valuenode

import (
	"strconv"

	"curiodb/internal/command"
)

func (n *Node) hyperloglog() *HyperLogLog { return n.data.(*HyperLogLog) }

func (n *Node) dispatchHyperLogLog(p command.Payload) command.Reply {
	hll := n.hyperloglog()

	switch p.Name {
	case "PFADD":
		changed := false
		for _, elem := range p.Args {
			if hll.Add(elem) {
				changed = true
			}
		}
		if changed {
			n.markDirty()
			return command.Int(1)
		}
		return command.Int(0)

	case "_PFCOUNT":
		return command.Int(hll.Count())

	case "_PFGET":
		out := make([]command.Reply, len(hll.registers)+1)
		out[0] = command.Bulk(strconv.Itoa(int(hll.precision)))
		for i, reg := range hll.registers {
			out[i+1] = command.Bulk(strconv.Itoa(int(reg)))
		}
		return command.ArraySlice(out)

	case "_PFSTORE":
		if len(p.Args) < 1 {
			return command.Err("ERR invalid hyperloglog store payload")
		}
		precision, err := strconv.Atoi(p.Args[0])
		if err != nil {
			return command.Err("ERR invalid hyperloglog store payload")
		}
		merged := NewHyperLogLog(uint8(precision))
		for i, a := range p.Args[1:] {
			reg, err := strconv.Atoi(a)
			if err != nil || i >= len(merged.registers) {
				return command.Err("ERR invalid hyperloglog store payload")
			}
			if uint8(reg) > merged.registers[i] {
				merged.registers[i] = uint8(reg)
			}
		}
		n.data = merged
		n.markDirty()
		return command.OK()

	default:
		return command.Err("ERR unknown hyperloglog command '" + p.Name + "'")
	}
}
