package command

import "curiodb/internal/descriptor"

// DefaultReply computes the reply a keyed command returns when its target
// key does not exist, per the descriptor table's sentinel. descriptor.DefaultNone means the
// command has no fixed default: the KeyManager must create the node (for
// writes) or the caller must decide case by case.
func DefaultReply(kind descriptor.DefaultKind) (Reply, bool) {
	switch kind {
	case descriptor.DefaultOK:
		return OK(), true
	case descriptor.DefaultNil:
		return Null(), true
	case descriptor.DefaultZero:
		return Int(0), true
	case descriptor.DefaultNegOne:
		return Int(-1), true
	case descriptor.DefaultNegTwo:
		return Int(-2), true
	case descriptor.DefaultEmptySeq:
		return ArraySlice([]Reply{}), true
	case descriptor.DefaultNils:
		return ArraySlice(nil), true
	case descriptor.DefaultZeros:
		return ArraySlice(nil), true
	case descriptor.DefaultScanEmpty:
		return Array(Bulk("0"), ArraySlice([]Reply{})), true
	case descriptor.DefaultError:
		return Err("ERR no such key"), true
	case descriptor.DefaultEmptyString:
		return Bulk(""), true
	default:
		return Reply{}, false
	}
}
