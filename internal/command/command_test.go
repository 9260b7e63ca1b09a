package command

import (
	"testing"

	"curiodb/internal/descriptor"
)

func TestPairs(t *testing.T) {
	p := Payload{Args: []string{"a", "1", "b", "2"}}
	pairs := p.Pairs()
	want := [][2]string{{"a", "1"}, {"b", "2"}}
	if len(pairs) != len(want) {
		t.Fatalf("Pairs() = %v, want %v", pairs, want)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("Pairs()[%d] = %v, want %v", i, pairs[i], want[i])
		}
	}
}

func TestPairsOddTrailingArgDropped(t *testing.T) {
	p := Payload{Args: []string{"a", "1", "b"}}
	pairs := p.Pairs()
	if len(pairs) != 1 {
		t.Fatalf("Pairs() with odd args = %v, want 1 pair", pairs)
	}
}

func TestNewPayloadKeyedPeelsKey(t *testing.T) {
	desc := &descriptor.Descriptor{Keyed: true}
	p := NewPayload(0, []string{"GET", "mykey"}, desc)
	if p.Name != "GET" {
		t.Fatalf("Name = %q, want GET", p.Name)
	}
	if p.Key != "mykey" {
		t.Fatalf("Key = %q, want mykey", p.Key)
	}
	if len(p.Args) != 0 {
		t.Fatalf("Args = %v, want empty", p.Args)
	}
}

func TestNewPayloadUnkeyed(t *testing.T) {
	p := NewPayload(0, []string{"PING", "hello"}, nil)
	if p.Key != "" {
		t.Fatalf("Key = %q, want empty for unkeyed command", p.Key)
	}
	if len(p.Args) != 1 || p.Args[0] != "hello" {
		t.Fatalf("Args = %v, want [hello]", p.Args)
	}
}

func TestReplyConstructors(t *testing.T) {
	if !Err("ERR boom").IsError() {
		t.Fatal("Err(...).IsError() = false, want true")
	}
	if OK().Kind != KindSimple || OK().Str != "OK" {
		t.Fatalf("OK() = %+v, want {Kind: KindSimple, Str: OK}", OK())
	}
	if WrongType().Kind != KindError {
		t.Fatalf("WrongType().Kind = %v, want KindError", WrongType().Kind)
	}
	bs := BulkStrings([]string{"a", "b"})
	if len(bs.Array) != 2 || bs.Array[0].Str != "a" || bs.Array[1].Str != "b" {
		t.Fatalf("BulkStrings = %+v", bs)
	}
}
