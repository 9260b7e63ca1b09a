package valuenode

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"curiodb/internal/command"
)

func (n *Node) zset() *ZSet { return n.data.(*ZSet) }

func (n *Node) dispatchZSet(p command.Payload) command.Reply {
	z := n.zset()

	switch p.Name {
	case "ZADD":
		pairs, err := zaddPairs(p.Args)
		if err != nil {
			return command.Err(err.Error())
		}
		added := 0
		for _, pr := range pairs {
			if z.Add(pr.Member, pr.Score) {
				added++
			}
		}
		n.markDirty()
		return command.Int(int64(added))

	case "ZREM":
		removed := 0
		for _, m := range p.Args {
			if z.Remove(m) {
				removed++
			}
		}
		if removed > 0 {
			n.markDirty()
		}
		return command.Int(int64(removed))

	case "ZCARD":
		return command.Int(int64(z.Len()))

	case "ZSCORE":
		s := z.Score(p.Args[0])
		if s == nil {
			return command.Null()
		}
		return command.Double(*s)

	case "ZMSCORE":
		out := make([]command.Reply, len(p.Args))
		for i, m := range p.Args {
			if s := z.Score(m); s != nil {
				out[i] = command.Double(*s)
			} else {
				out[i] = command.Null()
			}
		}
		return command.ArraySlice(out)

	case "ZINCRBY":
		delta, err := strconv.ParseFloat(p.Args[0], 64)
		if err != nil {
			return command.Err("ERR value is not a valid float")
		}
		newScore := z.IncrBy(p.Args[1], delta)
		n.markDirty()
		return command.Double(newScore)

	case "ZRANK":
		r := z.Rank(p.Args[0])
		if r == -1 {
			return command.Null()
		}
		return command.Int(int64(r))

	case "ZREVRANK":
		r := z.RevRank(p.Args[0])
		if r == -1 {
			return command.Null()
		}
		return command.Int(int64(r))

	case "ZRANGE":
		return n.zRangeByRank(z, p.Args, false)
	case "ZREVRANGE":
		return n.zRangeByRank(z, p.Args, true)

	case "ZRANGEBYSCORE":
		return n.zRangeByScore(z, p.Args, false)
	case "ZREVRANGEBYSCORE":
		return n.zRangeByScore(z, p.Args, true)

	case "ZRANGEBYLEX":
		return n.zRangeByLex(z, p.Args, false)
	case "ZREVRANGEBYLEX":
		return n.zRangeByLex(z, p.Args, true)

	case "ZCOUNT":
		min, max, err := parseScoreRange(p.Args[0], p.Args[1])
		if err != nil {
			return command.Err(err.Error())
		}
		return command.Int(int64(z.Count(min.value, max.value)))

	case "ZLEXCOUNT":
		members := z.GetAll()
		lo, hi, err := parseLexRange(p.Args[0], p.Args[1])
		if err != nil {
			return command.Err(err.Error())
		}
		count := 0
		for _, m := range members {
			if lexInRange(m.Member, lo, hi) {
				count++
			}
		}
		return command.Int(int64(count))

	case "ZREMRANGEBYRANK":
		start, stop, err := parseRankRange(p.Args[0], p.Args[1], z.Len())
		if err != nil {
			return command.Err(err.Error())
		}
		removed := z.RemoveRangeByRank(start, stop)
		if removed > 0 {
			n.markDirty()
		}
		return command.Int(int64(removed))

	case "ZREMRANGEBYSCORE":
		min, max, err := parseScoreRange(p.Args[0], p.Args[1])
		if err != nil {
			return command.Err(err.Error())
		}
		removed := z.RemoveRangeByScore(min.value, max.value)
		if removed > 0 {
			n.markDirty()
		}
		return command.Int(int64(removed))

	case "ZREMRANGEBYLEX":
		lo, hi, err := parseLexRange(p.Args[0], p.Args[1])
		if err != nil {
			return command.Err(err.Error())
		}
		removed := 0
		for _, m := range z.GetAll() {
			if lexInRange(m.Member, lo, hi) {
				if z.Remove(m.Member) {
					removed++
				}
			}
		}
		if removed > 0 {
			n.markDirty()
		}
		return command.Int(int64(removed))

	case "_ZGET":
		return zsetEncode(z)

	case "_ZSTORE":
		z2, err := zsetDecode(p.Args)
		if err != nil {
			return command.Err(err.Error())
		}
		n.data = z2
		n.markDirty()
		return command.OK()

	default:
		return command.Err("ERR unknown sorted set command '" + p.Name + "'")
	}
}

func zaddPairs(args []string) ([]ZSetMember, error) {
	i := 0
	for i < len(args) {
		switch strings.ToUpper(args[i]) {
		case "NX", "XX", "GT", "LT", "CH":
			i++
		default:
			goto parsePairs
		}
	}
parsePairs:
	rest := args[i:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return nil, errString("ERR wrong number of arguments for 'zadd' command")
	}
	out := make([]ZSetMember, 0, len(rest)/2)
	for j := 0; j+1 < len(rest); j += 2 {
		score, err := strconv.ParseFloat(rest[j], 64)
		if err != nil {
			return nil, errString("ERR value is not a valid float")
		}
		out = append(out, ZSetMember{Member: rest[j+1], Score: score})
	}
	return out, nil
}

type errString string

func (e errString) Error() string { return string(e) }

// boundary represents a ZRANGEBYSCORE endpoint: a value plus whether the
// comparison at that value is exclusive ("(" prefix).
type boundary struct {
	value     float64
	exclusive bool
}

func parseScoreRange(minArg, maxArg string) (boundary, boundary, error) {
	min, err := parseBoundary(minArg)
	if err != nil {
		return boundary{}, boundary{}, errString("ERR min or max is not a float")
	}
	max, err := parseBoundary(maxArg)
	if err != nil {
		return boundary{}, boundary{}, errString("ERR min or max is not a float")
	}
	return min, max, nil
}

func parseBoundary(arg string) (boundary, error) {
	exclusive := false
	if strings.HasPrefix(arg, "(") {
		exclusive = true
		arg = arg[1:]
	}
	switch arg {
	case "+inf":
		return boundary{value: math.Inf(1), exclusive: exclusive}, nil
	case "-inf":
		return boundary{value: math.Inf(-1), exclusive: exclusive}, nil
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return boundary{}, err
	}
	return boundary{value: v, exclusive: exclusive}, nil
}

func (n *Node) zRangeByRank(z *ZSet, args []string, reverse bool) command.Reply {
	start, stop, err := parseRankRange(args[0], args[1], z.Len())
	if err != nil {
		return command.Err(err.Error())
	}
	withScores := len(args) > 2 && strings.EqualFold(args[2], "WITHSCORES")

	var members []ZSetMember
	if reverse {
		members = z.RevRangeByRank(start, stop)
	} else {
		members = z.RangeByRank(start, stop)
	}
	return membersReply(members, withScores)
}

func parseRankRange(startArg, stopArg string, length int) (int, int, error) {
	start, err1 := strconv.Atoi(startArg)
	stop, err2 := strconv.Atoi(stopArg)
	if err1 != nil || err2 != nil {
		return 0, 0, errString("ERR value is not an integer or out of range")
	}
	if start < 0 {
		start = length + start
	}
	if stop < 0 {
		stop = length + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop {
		return 0, -1, nil
	}
	return start, stop, nil
}

func (n *Node) zRangeByScore(z *ZSet, args []string, reverse bool) command.Reply {
	minArg, maxArg := args[0], args[1]
	if reverse {
		minArg, maxArg = args[1], args[0]
	}
	min, max, err := parseScoreRange(minArg, maxArg)
	if err != nil {
		return command.Err(err.Error())
	}

	withScores := false
	offset, count := 0, -1
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 < len(args) {
				offset, _ = strconv.Atoi(args[i+1])
				count, _ = strconv.Atoi(args[i+2])
				i += 2
			}
		}
	}

	var members []ZSetMember
	if reverse {
		members = z.RevRange(min.value, max.value, offset, count)
	} else {
		members = z.Range(min.value, max.value, offset, count)
	}
	members = excludeBoundaries(members, min, max)
	return membersReply(members, withScores)
}

// excludeBoundaries drops members that land exactly on an exclusive
// boundary, since the underlying skip list range query is inclusive.
func excludeBoundaries(members []ZSetMember, min, max boundary) []ZSetMember {
	if !min.exclusive && !max.exclusive {
		return members
	}
	out := members[:0:0]
	for _, m := range members {
		if min.exclusive && m.Score == min.value {
			continue
		}
		if max.exclusive && m.Score == max.value {
			continue
		}
		out = append(out, m)
	}
	return out
}

func membersReply(members []ZSetMember, withScores bool) command.Reply {
	out := make([]command.Reply, 0, len(members)*2)
	for _, m := range members {
		out = append(out, command.Bulk(m.Member))
		if withScores {
			out = append(out, command.Double(m.Score))
		}
	}
	return command.ArraySlice(out)
}

// lexBoundary represents a ZRANGEBYLEX endpoint: "-" and "+" are the
// sentinels for before-everything/after-everything.
type lexBoundary struct {
	value     string
	inclusive bool
	unbounded int // -1 = "-", +1 = "+", 0 = bounded
}

func parseLexRange(minArg, maxArg string) (lexBoundary, lexBoundary, error) {
	lo, err := parseLexBoundary(minArg)
	if err != nil {
		return lexBoundary{}, lexBoundary{}, err
	}
	hi, err := parseLexBoundary(maxArg)
	if err != nil {
		return lexBoundary{}, lexBoundary{}, err
	}
	return lo, hi, nil
}

func parseLexBoundary(arg string) (lexBoundary, error) {
	switch {
	case arg == "-":
		return lexBoundary{unbounded: -1}, nil
	case arg == "+":
		return lexBoundary{unbounded: 1}, nil
	case strings.HasPrefix(arg, "["):
		return lexBoundary{value: arg[1:], inclusive: true}, nil
	case strings.HasPrefix(arg, "("):
		return lexBoundary{value: arg[1:], inclusive: false}, nil
	default:
		return lexBoundary{}, errString("ERR min or max not valid string range item")
	}
}

func lexInRange(member string, lo, hi lexBoundary) bool {
	if lo.unbounded == 0 {
		if lo.inclusive && member < lo.value {
			return false
		}
		if !lo.inclusive && member <= lo.value {
			return false
		}
	} else if lo.unbounded == 1 {
		return false
	}

	if hi.unbounded == 0 {
		if hi.inclusive && member > hi.value {
			return false
		}
		if !hi.inclusive && member >= hi.value {
			return false
		}
	} else if hi.unbounded == -1 {
		return false
	}

	return true
}

func (n *Node) zRangeByLex(z *ZSet, args []string, reverse bool) command.Reply {
	minArg, maxArg := args[0], args[1]
	if reverse {
		minArg, maxArg = args[1], args[0]
	}
	lo, hi, err := parseLexRange(minArg, maxArg)
	if err != nil {
		return command.Err(err.Error())
	}

	offset, count := 0, -1
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(args[i], "LIMIT") && i+2 < len(args) {
			offset, _ = strconv.Atoi(args[i+1])
			count, _ = strconv.Atoi(args[i+2])
			i += 2
		}
	}

	all := z.GetAll()
	matched := make([]ZSetMember, 0, len(all))
	for _, m := range all {
		if lexInRange(m.Member, lo, hi) {
			matched = append(matched, m)
		}
	}
	if reverse {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Member > matched[j].Member })
	}
	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if count >= 0 && count < len(matched) {
		matched = matched[:count]
	}
	return membersReply(matched, false)
}

// zsetEncode/zsetDecode are used by ZUNIONSTORE/ZINTERSTORE's internal
// _ZGET/_ZSTORE path: _ZGET returns a flat member/score bulk array the
// aggregator merges client-side, _ZSTORE takes one back.
func zsetEncode(z *ZSet) command.Reply {
	return membersReply(z.GetAll(), true)
}

func zsetDecode(args []string) (*ZSet, error) {
	if len(args)%2 != 0 {
		return nil, errString("ERR invalid zset store payload")
	}
	z := NewZSet()
	for i := 0; i+1 < len(args); i += 2 {
		score, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, errString("ERR value is not a valid float")
		}
		z.Add(args[i], score)
	}
	return z, nil
}
