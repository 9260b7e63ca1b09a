package aggregator

import (
	"testing"
	"time"

	"curiodb/internal/command"
	"curiodb/internal/descriptor"
	"curiodb/internal/keymanager"
	"curiodb/internal/persistence"
	"curiodb/internal/router"
)

// newTestRig wires numPartitions keymanager.Manager partitions behind a
// Router, the same shape internal/bootstrap.Build uses, and an Aggregator
// over that Router. Using several partitions (not just one) matters here:
// it is the only way scatter/broadcast actually cross partition boundaries
// the way they do in production.
func newTestRig(t *testing.T, numPartitions int) (*router.Router, *Aggregator) {
	t.Helper()
	table, err := descriptor.LoadDefault()
	if err != nil {
		t.Fatalf("descriptor.LoadDefault() error: %v", err)
	}

	partitions := make([]router.Partition, numPartitions)
	managers := make([]*keymanager.Manager, numPartitions)
	for i := 0; i < numPartitions; i++ {
		m := keymanager.New(i, table, persistence.NullStore{}, -1, -1)
		t.Cleanup(m.Stop)
		managers[i] = m
		partitions[i] = m
	}
	r := router.New(partitions)
	for _, m := range managers {
		m.SetRouter(r)
	}
	return r, New(r, time.Second)
}

// put sends a single-key command straight through the router, bypassing the
// Aggregator — the direct-actor equivalent of a client issuing SET/SADD/...
// against one key, used here only to seed fixtures.
func put(t *testing.T, r *router.Router, db int, name, key string, args ...string) command.Reply {
	t.Helper()
	p := command.Payload{DB: db, Name: name, Key: key, Args: args, Reply: make(chan command.Reply, 1)}
	r.Route(p)
	select {
	case rep := <-p.Reply:
		return rep
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for reply to %s %s", name, key)
		return command.Reply{}
	}
}

func TestMGetAndPhantomKey(t *testing.T) {
	r, agg := newTestRig(t, 4)
	put(t, r, 0, "SET", "a", "1")
	put(t, r, 0, "SET", "b", "2")

	got := agg.Dispatch(0, "MGET", []string{"a", "b", "missing"})
	if len(got.Array) != 3 {
		t.Fatalf("MGET returned %d values, want 3", len(got.Array))
	}
	if got.Array[0].Str != "1" || got.Array[1].Str != "2" {
		t.Fatalf("MGET values = %+v", got.Array)
	}
	if got.Array[2].Kind != command.KindNull {
		t.Fatalf("MGET missing key = %+v, want Null", got.Array[2])
	}

	// The regression this guards: a scattered GET against a key that was
	// never written must not leave a phantom string entry behind.
	exists := put(t, r, 0, "EXISTS", "missing")
	if exists.Int != 0 {
		t.Fatalf("EXISTS missing = %d, want 0 (MGET must not materialize the key)", exists.Int)
	}
	typ := put(t, r, 0, "TYPE", "missing")
	if typ.Str != "none" {
		t.Fatalf("TYPE missing = %q, want \"none\"", typ.Str)
	}
}

func TestSetOpsAndStorePhantomKey(t *testing.T) {
	r, agg := newTestRig(t, 4)
	put(t, r, 0, "SADD", "s1", "a", "b", "c")
	put(t, r, 0, "SADD", "s2", "b", "c", "d")

	// SDIFF/SINTER/SUNION against an existing pair plus a missing third key
	// must not create the missing key either (same default-reply path as
	// MGET, via SMEMBERS instead of GET).
	diff := agg.Dispatch(0, "SDIFF", []string{"s1", "s2", "missing"})
	assertSet(t, diff, []string{"a"})
	inter := agg.Dispatch(0, "SINTER", []string{"s1", "s2"})
	assertSet(t, inter, []string{"b", "c"})
	union := agg.Dispatch(0, "SUNION", []string{"s1", "s2"})
	assertSet(t, union, []string{"a", "b", "c", "d"})

	exists := put(t, r, 0, "EXISTS", "missing")
	if exists.Int != 0 {
		t.Fatalf("EXISTS missing = %d, want 0 (SDIFF must not materialize the key)", exists.Int)
	}

	// *STORE variants must leave behind a set whose SMEMBERS equals the
	// computed result.
	storeReply := agg.Dispatch(0, "SINTERSTORE", []string{"dest", "s1", "s2"})
	if storeReply.Int != 2 {
		t.Fatalf("SINTERSTORE count = %d, want 2", storeReply.Int)
	}
	members := put(t, r, 0, "SMEMBERS", "dest")
	assertSet(t, members, []string{"b", "c"})
}

func assertSet(t *testing.T, r command.Reply, want []string) {
	t.Helper()
	got := make(map[string]bool, len(r.Array))
	for _, m := range r.Array {
		got[m.Str] = true
	}
	if len(got) != len(want) {
		t.Fatalf("set reply = %+v, want members %v", r.Array, want)
	}
	for _, w := range want {
		if !got[w] {
			t.Fatalf("set reply = %+v, missing member %q", r.Array, w)
		}
	}
}

func TestMSetAndMSetNx(t *testing.T) {
	r, agg := newTestRig(t, 4)

	ok := agg.Dispatch(0, "MSET", []string{"x", "1", "y", "2"})
	if ok.Kind != command.KindSimple || ok.Str != "OK" {
		t.Fatalf("MSET reply = %+v, want OK", ok)
	}
	if got := put(t, r, 0, "GET", "x"); got.Str != "1" {
		t.Fatalf("GET x = %+v, want 1", got)
	}
	if got := put(t, r, 0, "GET", "y"); got.Str != "2" {
		t.Fatalf("GET y = %+v, want 2", got)
	}

	// MSETNX fails entirely (no partial writes) when any destination key
	// already exists.
	nx := agg.Dispatch(0, "MSETNX", []string{"x", "9", "z", "3"})
	if nx.Int != 0 {
		t.Fatalf("MSETNX over existing key = %d, want 0", nx.Int)
	}
	if got := put(t, r, 0, "EXISTS", "z"); got.Int != 0 {
		t.Fatalf("EXISTS z = %d, want 0 (MSETNX must not partially write)", got.Int)
	}

	nx2 := agg.Dispatch(0, "MSETNX", []string{"p", "1", "q", "2"})
	if nx2.Int != 1 {
		t.Fatalf("MSETNX over fresh keys = %d, want 1", nx2.Int)
	}
	if got := put(t, r, 0, "GET", "p"); got.Str != "1" {
		t.Fatalf("GET p = %+v, want 1", got)
	}
}

func TestZsetStoreOps(t *testing.T) {
	r, agg := newTestRig(t, 4)
	put(t, r, 0, "ZADD", "z1", "1", "a", "2", "b")
	put(t, r, 0, "ZADD", "z2", "10", "b", "20", "c")

	union := agg.Dispatch(0, "ZUNIONSTORE", []string{"udest", "2", "z1", "z2"})
	if union.Int != 3 {
		t.Fatalf("ZUNIONSTORE count = %d, want 3", union.Int)
	}
	urange := put(t, r, 0, "ZSCORE", "udest", "b")
	if urange.Str != "12" {
		t.Fatalf("ZSCORE udest b = %q, want 12 (1b + 2b summed across partitions)", urange.Str)
	}

	inter := agg.Dispatch(0, "ZINTERSTORE", []string{"idest", "2", "z1", "z2"})
	if inter.Int != 1 {
		t.Fatalf("ZINTERSTORE count = %d, want 1", inter.Int)
	}
	irange := put(t, r, 0, "ZSCORE", "idest", "b")
	if irange.Str != "12" {
		t.Fatalf("ZSCORE idest b = %q, want 12", irange.Str)
	}
}

func TestBitop(t *testing.T) {
	r, agg := newTestRig(t, 4)
	put(t, r, 0, "SETBIT", "b1", "1", "1")
	put(t, r, 0, "SETBIT", "b1", "2", "1")
	put(t, r, 0, "SETBIT", "b2", "2", "1")
	put(t, r, 0, "SETBIT", "b2", "3", "1")

	and := agg.Dispatch(0, "BITOP", []string{"AND", "dest", "b1", "b2"})
	if and.Kind != command.KindInteger {
		t.Fatalf("BITOP AND reply = %+v, want integer", and)
	}
	if got := put(t, r, 0, "GETBIT", "dest", "2"); got.Int != 1 {
		t.Fatalf("GETBIT dest 2 = %d, want 1 (bit set in both sources)", got.Int)
	}
	if got := put(t, r, 0, "GETBIT", "dest", "1"); got.Int != 0 {
		t.Fatalf("GETBIT dest 1 = %d, want 0 (bit set only in b1)", got.Int)
	}
}

func TestPfcountAndPfmerge(t *testing.T) {
	r, agg := newTestRig(t, 4)
	put(t, r, 0, "PFADD", "hll1", "a", "b", "c")
	put(t, r, 0, "PFADD", "hll2", "c", "d", "e")

	count := agg.Dispatch(0, "PFCOUNT", []string{"hll1", "hll2"})
	if count.Kind != command.KindInteger || count.Int <= 0 {
		t.Fatalf("PFCOUNT reply = %+v, want positive integer", count)
	}

	merge := agg.Dispatch(0, "PFMERGE", []string{"hlldest", "hll1", "hll2"})
	if merge.Kind != command.KindSimple || merge.Str != "OK" {
		t.Fatalf("PFMERGE reply = %+v, want OK", merge)
	}
	merged := agg.Dispatch(0, "PFCOUNT", []string{"hlldest"})
	if merged.Int <= 0 {
		t.Fatalf("PFCOUNT hlldest after merge = %d, want positive", merged.Int)
	}
}

func TestPubsubAggregate(t *testing.T) {
	r, agg := newTestRig(t, 3)

	channels := agg.Dispatch(0, "PUBSUB", []string{"CHANNELS"})
	if len(channels.Array) != 0 {
		t.Fatalf("PUBSUB CHANNELS with no subscribers = %+v, want empty", channels.Array)
	}

	numpat := agg.Dispatch(0, "PUBSUB", []string{"NUMPAT"})
	if numpat.Kind != command.KindInteger || numpat.Int != 0 {
		t.Fatalf("PUBSUB NUMPAT with no subscribers = %+v, want 0", numpat)
	}

	numsub := agg.Dispatch(0, "PUBSUB", []string{"NUMSUB", "news"})
	if len(numsub.Array) != 2 || numsub.Array[0].Str != "news" || numsub.Array[1].Int != 0 {
		t.Fatalf("PUBSUB NUMSUB news = %+v, want [\"news\", 0]", numsub.Array)
	}
}
