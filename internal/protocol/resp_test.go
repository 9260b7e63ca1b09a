package protocol

import (
	"bufio"
	"strings"
	"testing"

	"curiodb/internal/command"
)

func TestParseCommandArray(t *testing.T) {
	raw := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	cmd, err := ParseCommand(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}
	want := []string{"SET", "foo", "bar"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Errorf("Args[%d] = %q, want %q", i, cmd.Args[i], want[i])
		}
	}
}

func TestParseCommandInline(t *testing.T) {
	cmd, err := ParseCommand(bufio.NewReader(strings.NewReader("PING\r\n")))
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}
	if len(cmd.Args) != 1 || cmd.Args[0] != "PING" {
		t.Fatalf("Args = %v, want [PING]", cmd.Args)
	}
}

func TestParseCommandNullBulkString(t *testing.T) {
	raw := "*2\r\n$3\r\nGET\r\n$-1\r\n"
	cmd, err := ParseCommand(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ParseCommand() error: %v", err)
	}
	if len(cmd.Args) != 2 || cmd.Args[1] != "" {
		t.Fatalf("Args = %v, want [GET \"\"]", cmd.Args)
	}
}

func TestHasCompleteCommand(t *testing.T) {
	partial := bufio.NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$3\r\nfo"))
	if HasCompleteCommand(partial) {
		t.Error("HasCompleteCommand on partial buffer = true, want false")
	}

	full := bufio.NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	full.Peek(1) // force a fill so Buffered() is non-zero
	if !HasCompleteCommand(full) {
		t.Error("HasCompleteCommand on full buffer = false, want true")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		r    command.Reply
		want string
	}{
		{"simple", command.OK(), "+OK\r\n"},
		{"error", command.Err("ERR bad"), "-ERR bad\r\n"},
		{"integer", command.Int(42), ":42\r\n"},
		{"bulk", command.Bulk("hi"), "$2\r\nhi\r\n"},
		{"null", command.Null(), "$-1\r\n"},
		{"array", command.Array(command.Bulk("a"), command.Int(1)), "*2\r\n$1\r\na\r\n:1\r\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := string(Encode(c.r)); got != c.want {
				t.Errorf("Encode(%+v) = %q, want %q", c.r, got, c.want)
			}
		})
	}
}

func TestEncodeNilArray(t *testing.T) {
	r := command.Reply{Kind: command.KindArray, Array: nil}
	if got := string(Encode(r)); got != "*-1\r\n" {
		t.Errorf("Encode(nil array) = %q, want *-1\\r\\n", got)
	}
}
