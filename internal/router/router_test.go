package router

import (
	"testing"

	"curiodb/internal/clusterhash"
	"curiodb/internal/command"
)

type fakePartition struct {
	received []command.Payload
}

func (f *fakePartition) Send(p command.Payload) {
	f.received = append(f.received, p)
	if p.Reply != nil {
		p.Reply <- command.OK()
	}
}

func newFakePartitions(n int) ([]Partition, []*fakePartition) {
	fakes := make([]*fakePartition, n)
	parts := make([]Partition, n)
	for i := range fakes {
		fakes[i] = &fakePartition{}
		parts[i] = fakes[i]
	}
	return parts, fakes
}

func TestRouteDispatchesToOwningPartition(t *testing.T) {
	parts, fakes := newFakePartitions(4)
	r := New(parts)

	p := command.Payload{Name: "GET", Key: "foo"}
	r.Route(p)

	want := clusterhash.Partition("foo", 4)
	for i, f := range fakes {
		if i == want {
			if len(f.received) != 1 || f.received[0].Key != "foo" {
				t.Fatalf("partition %d = %v, want one payload for key foo", i, f.received)
			}
			continue
		}
		if len(f.received) != 0 {
			t.Fatalf("partition %d received %v, want none", i, f.received)
		}
	}
}

func TestRouteSameKeySamePartitionEveryTime(t *testing.T) {
	parts, fakes := newFakePartitions(8)
	r := New(parts)

	for i := 0; i < 20; i++ {
		r.Route(command.Payload{Name: "GET", Key: "stable-key"})
	}

	hit := 0
	for _, f := range fakes {
		if len(f.received) > 0 {
			hit++
			if len(f.received) != 20 {
				t.Fatalf("owning partition received %d payloads, want 20", len(f.received))
			}
		}
	}
	if hit != 1 {
		t.Fatalf("%d partitions received the key's payloads, want exactly 1", hit)
	}
}

func TestRouteNoPartitionsIsNoop(t *testing.T) {
	r := New(nil)
	r.Route(command.Payload{Name: "GET", Key: "foo"}) // must not panic
}

func TestBroadcastReachesEveryPartitionWithIndependentReplies(t *testing.T) {
	parts, fakes := newFakePartitions(3)
	r := New(parts)

	replies := r.Broadcast(command.Payload{Name: "DBSIZE"})
	if len(replies) != 3 {
		t.Fatalf("Broadcast returned %d reply channels, want 3", len(replies))
	}
	for i, f := range fakes {
		if len(f.received) != 1 {
			t.Fatalf("partition %d received %d payloads, want 1", i, len(f.received))
		}
	}
	for i, ch := range replies {
		select {
		case r := <-ch:
			if r.Str != "OK" {
				t.Fatalf("reply %d = %+v, want OK", i, r)
			}
		default:
			t.Fatalf("reply channel %d had nothing buffered", i)
		}
	}
}

func TestNumPartitions(t *testing.T) {
	parts, _ := newFakePartitions(5)
	r := New(parts)
	if r.NumPartitions() != 5 {
		t.Fatalf("NumPartitions() = %d, want 5", r.NumPartitions())
	}
}
