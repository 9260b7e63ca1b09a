package valuenode

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"curiodb/internal/descriptor"
)

// gobEnvelope is what actually gets gob-encoded for every node kind: a
// plain, exported-field mirror of the live data structure. ValueNode data
// types use unexported fields and linked-list pointers that gob cannot
// round-trip directly, so each kind converts to/from its envelope at the
// snapshot boundary only; the hot path never touches these.

type stringEnvelope struct{ Value string }

type hashEnvelope struct{ Fields map[string]string }

type listEnvelope struct{ Values []string }

type setEnvelope struct{ Members []string }

type zsetEnvelope struct {
	Members []string
	Scores  []float64
}

type bitmapEnvelope struct{ Bits []int64 }

type hllEnvelope struct {
	Registers []uint8
	Precision uint8
}

func encodeSnapshot(kind descriptor.NodeType, data any) ([]byte, error) {
	var env any
	switch kind {
	case descriptor.NodeString:
		env = stringEnvelope{Value: data.(string)}
	case descriptor.NodeHash:
		env = hashEnvelope{Fields: data.(*Hash).Fields}
	case descriptor.NodeList:
		env = listEnvelope{Values: data.(*List).ToSlice()}
	case descriptor.NodeSet:
		env = setEnvelope{Members: data.(*Set).GetMembers()}
	case descriptor.NodeSortedSet:
		all := data.(*ZSet).GetAll()
		members := make([]string, len(all))
		scores := make([]float64, len(all))
		for i, m := range all {
			members[i] = m.Member
			scores[i] = m.Score
		}
		env = zsetEnvelope{Members: members, Scores: scores}
	case descriptor.NodeBitmap:
		env = bitmapEnvelope{Bits: data.(*Bitmap).bits}
	case descriptor.NodeHyperLogLog:
		h := data.(*HyperLogLog)
		env = hllEnvelope{Registers: h.registers, Precision: h.precision}
	default:
		return nil, fmt.Errorf("valuenode: no snapshot envelope for kind %q", kind)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("valuenode: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(kind descriptor.NodeType, raw []byte) (any, error) {
	dec := gob.NewDecoder(bytes.NewReader(raw))

	switch kind {
	case descriptor.NodeString:
		var env stringEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		return env.Value, nil
	case descriptor.NodeHash:
		var env hashEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		h := NewHash()
		for k, v := range env.Fields {
			h.Set(k, v)
		}
		return h, nil
	case descriptor.NodeList:
		var env listEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		l := NewList()
		for _, v := range env.Values {
			l.PushBack(v)
		}
		return l, nil
	case descriptor.NodeSet:
		var env setEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		s := NewSet()
		for _, m := range env.Members {
			s.Add(m)
		}
		return s, nil
	case descriptor.NodeSortedSet:
		var env zsetEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		z := NewZSet()
		for i, m := range env.Members {
			z.Add(m, env.Scores[i])
		}
		return z, nil
	case descriptor.NodeBitmap:
		var env bitmapEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		return &Bitmap{bits: env.Bits}, nil
	case descriptor.NodeHyperLogLog:
		var env hllEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		h := NewHyperLogLog(env.Precision)
		copy(h.registers, env.Registers)
		return h, nil
	default:
		return nil, fmt.Errorf("valuenode: no snapshot envelope for kind %q", kind)
	}
}

// init registers every envelope type with gob once at process start, so no
// call site needs to call gob.Register itself.
func init() {
	gob.Register(stringEnvelope{})
	gob.Register(hashEnvelope{})
	gob.Register(listEnvelope{})
	gob.Register(setEnvelope{})
	gob.Register(zsetEnvelope{})
	gob.Register(bitmapEnvelope{})
	gob.Register(hllEnvelope{})
}
