package descriptor

import "testing"

func TestParseArity(t *testing.T) {
	cases := []struct {
		spec string
		n    int
		want bool
	}{
		{"1", 1, true},
		{"1", 2, false},
		{"1-3", 2, true},
		{"1-3", 4, false},
		{"2-many", 5, true},
		{"2-many", 1, false},
		{"pairs", 2, true},
		{"pairs", 3, false},
		{"pairs", 0, false},
	}
	for _, c := range cases {
		arity, err := parseArity(c.spec)
		if err != nil {
			t.Fatalf("parseArity(%q) error: %v", c.spec, err)
		}
		if got := arity.Accepts(c.n); got != c.want {
			t.Errorf("parseArity(%q).Accepts(%d) = %v, want %v", c.spec, c.n, got, c.want)
		}
	}
}

func TestParseArityInvalid(t *testing.T) {
	if _, err := parseArity("not-a-number"); err == nil {
		t.Fatal("parseArity(\"not-a-number\") returned no error")
	}
}

func TestLoadDefault(t *testing.T) {
	table, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	for _, name := range []string{"GET", "SET", "HSET", "LPUSH", "SADD", "ZADD", "EXPIRE", "SUBSCRIBE"} {
		if d := table.Lookup(name); d == nil {
			t.Errorf("Lookup(%q) = nil, want a descriptor", name)
		}
	}
	if d := table.Lookup("get"); d == nil {
		t.Error("Lookup is not case-insensitive")
	}
	if d := table.Lookup("NOSUCHCOMMAND"); d != nil {
		t.Errorf("Lookup(NOSUCHCOMMAND) = %+v, want nil", d)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
FOO:
  node_type: string
  keyed: true
  writes: true
  arity: "1-2"
  default: nil
`)
	table, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	d := table.Lookup("FOO")
	if d == nil {
		t.Fatal("Lookup(FOO) = nil")
	}
	if d.NodeType != NodeString || !d.Keyed || !d.Writes {
		t.Errorf("descriptor = %+v", d)
	}
	if d.Default != DefaultNil {
		t.Errorf("Default = %q, want nil", d.Default)
	}
	if !d.Arity.Accepts(1) || !d.Arity.Accepts(2) || d.Arity.Accepts(3) {
		t.Errorf("Arity = %+v, accepted wrong argument counts", d.Arity)
	}
}
