// Package descriptor loads the command metadata table: for every supported
// command, which kind of ValueNode it targets, whether it is keyed, whether
// it writes, whether it overwrites a key of a different type, its arity,
// and its default reply against a missing key. The table is stored as YAML
// and loaded once at startup into an immutable Table.
package descriptor

import (
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeType names the kind of actor a command targets.
type NodeType string

const (
	NodeString      NodeType = "string"
	NodeHash        NodeType = "hash"
	NodeList        NodeType = "list"
	NodeSet         NodeType = "set"
	NodeSortedSet   NodeType = "sortedset"
	NodeBitmap      NodeType = "bitmap"
	NodeHyperLogLog NodeType = "hyperloglog"
	NodeKeys        NodeType = "keys"
	NodeClient      NodeType = "client"
)

// ArityKind classifies how a command's argument count is validated.
type ArityKind int

const (
	ArityFixed ArityKind = iota // exactly N args
	ArityRange                 // between A and B args, inclusive
	ArityMany                  // N or more args
	ArityPairs                 // an even, non-zero number of args
)

// Arity describes the accepted argument count for a command (excluding the
// command name itself).
type Arity struct {
	Kind ArityKind
	Min  int
	Max  int // only meaningful for ArityRange
}

// Accepts reports whether n positional arguments satisfy this arity.
func (a Arity) Accepts(n int) bool {
	switch a.Kind {
	case ArityFixed:
		return n == a.Min
	case ArityRange:
		return n >= a.Min && n <= a.Max
	case ArityMany:
		return n >= a.Min
	case ArityPairs:
		return n > 0 && n%2 == 0
	default:
		return false
	}
}

func parseArity(spec string) (Arity, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "pairs":
		return Arity{Kind: ArityPairs}, nil
	case strings.HasSuffix(spec, "-many"):
		n, err := strconv.Atoi(strings.TrimSuffix(spec, "-many"))
		if err != nil {
			return Arity{}, fmt.Errorf("invalid many-arity %q: %w", spec, err)
		}
		return Arity{Kind: ArityMany, Min: n}, nil
	case strings.Contains(spec, "-"):
		parts := strings.SplitN(spec, "-", 2)
		a, err := strconv.Atoi(parts[0])
		if err != nil {
			return Arity{}, fmt.Errorf("invalid range-arity %q: %w", spec, err)
		}
		b, err := strconv.Atoi(parts[1])
		if err != nil {
			return Arity{}, fmt.Errorf("invalid range-arity %q: %w", spec, err)
		}
		return Arity{Kind: ArityRange, Min: a, Max: b}, nil
	default:
		n, err := strconv.Atoi(spec)
		if err != nil {
			return Arity{}, fmt.Errorf("invalid fixed-arity %q: %w", spec, err)
		}
		return Arity{Kind: ArityFixed, Min: n}, nil
	}
}

// DefaultKind names one of the sentinel replies a keyed command returns
// when its key is absent.
type DefaultKind string

const (
	DefaultEmptyString DefaultKind = ""
	DefaultOK          DefaultKind = "ok"
	DefaultNil         DefaultKind = "nil"
	DefaultZero        DefaultKind = "zero"
	DefaultNegOne      DefaultKind = "neg1"
	DefaultNegTwo      DefaultKind = "neg2"
	DefaultEmptySeq    DefaultKind = "empty_seq"
	DefaultNils        DefaultKind = "nils"
	DefaultZeros       DefaultKind = "zeros"
	DefaultScanEmpty   DefaultKind = "scan_empty"
	DefaultError       DefaultKind = "error"
	DefaultNone        DefaultKind = "none" // no default: command must be forwarded/created
)

// Descriptor is the immutable metadata for one command.
type Descriptor struct {
	Name       string
	NodeType   NodeType
	Keyed      bool
	Writes     bool
	Overwrites bool
	Arity      Arity
	Default    DefaultKind
}

// entry is the YAML-facing shape of one command's metadata row.
type entry struct {
	NodeType   string `yaml:"node_type"`
	Keyed      bool   `yaml:"keyed"`
	Writes     bool   `yaml:"writes"`
	Overwrites bool   `yaml:"overwrites"`
	Arity      string `yaml:"arity"`
	Default    string `yaml:"default"`
}

// Table is the full, immutable command metadata table, keyed by upper-cased
// command name.
type Table struct {
	entries map[string]*Descriptor
}

// Lookup returns the descriptor for name (case-insensitive), or nil if the
// command is unknown.
func (t *Table) Lookup(name string) *Descriptor {
	return t.entries[strings.ToUpper(name)]
}

//go:embed commands.yaml
var defaultCommandsYAML embed.FS

// LoadDefault parses the built-in command metadata table shipped with the
// binary.
func LoadDefault() (*Table, error) {
	data, err := defaultCommandsYAML.ReadFile("commands.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFile parses a command metadata table from a YAML file on disk,
// overriding the embedded default (curiodb.metadata-file).
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Table from raw YAML bytes.
func Parse(data []byte) (*Table, error) {
	var raw map[string]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("descriptor: parse: %w", err)
	}

	entries := make(map[string]*Descriptor, len(raw))
	for name, e := range raw {
		arity, err := parseArity(e.Arity)
		if err != nil {
			return nil, fmt.Errorf("descriptor: command %q: %w", name, err)
		}
		entries[strings.ToUpper(name)] = &Descriptor{
			Name:       strings.ToUpper(name),
			NodeType:   NodeType(e.NodeType),
			Keyed:      e.Keyed,
			Writes:     e.Writes,
			Overwrites: e.Overwrites,
			Arity:      arity,
			Default:    DefaultKind(e.Default),
		}
	}
	return &Table{entries: entries}, nil
}
