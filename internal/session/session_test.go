package session

import (
	"net"
	"testing"
	"time"

	"curiodb/internal/aggregator"
	"curiodb/internal/command"
	"curiodb/internal/descriptor"
	"curiodb/internal/keymanager"
	"curiodb/internal/persistence"
	"curiodb/internal/router"
)

// newTestSession wires one partition (passivation and persistence both off)
// behind a Router/Aggregator pair and returns a Session over one end of an
// in-memory pipe; the test owns the other end and must drain it if it
// writes replies, but helpers like blockingPop/popPush/smove never touch
// the connection directly, so most tests here don't need to.
func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	table, err := descriptor.LoadDefault()
	if err != nil {
		t.Fatalf("descriptor.LoadDefault() error: %v", err)
	}

	m := keymanager.New(0, table, persistence.NullStore{}, 0, -1)
	t.Cleanup(m.Stop)
	r := router.New([]router.Partition{m})
	m.SetRouter(r)
	agg := aggregator.New(r, time.Second)

	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	s := New(server, table, r, []*keymanager.Manager{m}, agg, 0)
	return s, client
}

func TestBlockingPopArityError(t *testing.T) {
	s, _ := newTestSession(t)
	r := s.blockingPop("BLPOP", []string{"onlykey"})
	if !r.IsError() {
		t.Fatalf("blockingPop with no timeout arg = %+v, want an error", r)
	}
}

func TestBlockingPopInvalidTimeout(t *testing.T) {
	s, _ := newTestSession(t)
	r := s.blockingPop("BLPOP", []string{"key", "notanumber"})
	if !r.IsError() {
		t.Fatalf("blockingPop with non-numeric timeout = %+v, want an error", r)
	}
}

func TestBlockingPopImmediateValue(t *testing.T) {
	s, _ := newTestSession(t)

	push := command.Payload{DB: 0, Name: "RPUSH", Key: "q", Args: []string{"v1"}, Reply: make(chan command.Reply, 1)}
	s.router.Route(push)
	<-push.Reply

	r := s.blockingPop("BLPOP", []string{"q", "1"})
	if r.Kind != command.KindArray || len(r.Array) != 2 {
		t.Fatalf("blockingPop on a non-empty key = %+v, want [key, value]", r)
	}
	if r.Array[0].Str != "q" || r.Array[1].Str != "v1" {
		t.Fatalf("blockingPop = %+v, want [q, v1]", r.Array)
	}
}

func TestBlockingPopTimesOutOnEmptyKey(t *testing.T) {
	s, _ := newTestSession(t)

	start := time.Now()
	r := s.blockingPop("BLPOP", []string{"never-pushed", "0.1"})
	elapsed := time.Since(start)

	if r.Kind != command.KindNull {
		t.Fatalf("blockingPop timeout = %+v, want nil", r)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("blockingPop returned after %v, want >= 100ms", elapsed)
	}
}

func TestBlockingPopPushArityError(t *testing.T) {
	s, _ := newTestSession(t)
	r := s.blockingPopPush([]string{"src", "dst"})
	if !r.IsError() {
		t.Fatalf("blockingPopPush with missing timeout = %+v, want an error", r)
	}
}

func TestPopPushMovesElementAcrossKeys(t *testing.T) {
	s, _ := newTestSession(t)

	push := command.Payload{DB: 0, Name: "RPUSH", Key: "src", Args: []string{"a", "b"}, Reply: make(chan command.Reply, 1)}
	s.router.Route(push)
	<-push.Reply

	r := s.popPush("src", "dst")
	if r.Kind != command.KindBulk || r.Str != "b" {
		t.Fatalf("popPush() = %+v, want bulk b", r)
	}

	get := command.Payload{DB: 0, Name: "LRANGE", Key: "dst", Args: []string{"0", "-1"}, Reply: make(chan command.Reply, 1)}
	s.router.Route(get)
	rr := <-get.Reply
	if len(rr.Array) != 1 || rr.Array[0].Str != "b" {
		t.Fatalf("dst after popPush = %+v, want [b]", rr.Array)
	}
}

func TestSmoveMovesMemberAcrossKeys(t *testing.T) {
	s, _ := newTestSession(t)

	add := command.Payload{DB: 0, Name: "SADD", Key: "src", Args: []string{"m"}, Reply: make(chan command.Reply, 1)}
	s.router.Route(add)
	<-add.Reply

	r := s.smove("src", "dst", "m")
	if r.Kind != command.KindInteger || r.Int != 1 {
		t.Fatalf("smove() = %+v, want integer 1", r)
	}

	check := command.Payload{DB: 0, Name: "SISMEMBER", Key: "dst", Args: []string{"m"}, Reply: make(chan command.Reply, 1)}
	s.router.Route(check)
	rr := <-check.Reply
	if rr.Int != 1 {
		t.Fatalf("SISMEMBER dst m = %d, want 1", rr.Int)
	}
}

func TestSmoveMissingMemberReturnsZero(t *testing.T) {
	s, _ := newTestSession(t)
	r := s.smove("src", "dst", "absent")
	if r.Kind != command.KindInteger || r.Int != 0 {
		t.Fatalf("smove() on missing member = %+v, want integer 0", r)
	}
}
