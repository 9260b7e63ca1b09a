// Package config implements curiodb's layered configuration: compiled-in
// defaults, overridden by an optional YAML file, overridden by CURIODB_*
// environment variables. Generalized from a single fixed process to a
// cluster of nodes addressed by curiodb.node / curiodb.nodes.*.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is curiodb's full runtime configuration: the curiodb.* keys plus
// the metadata-file path.
type Config struct {
	// Node is this process's entry in Nodes (curiodb.node).
	Node string `yaml:"node"`
	// Nodes maps node-id to a "host:port" (or "redis://host:port") URI
	// (curiodb.nodes.*).
	Nodes map[string]string `yaml:"nodes"`
	// KeynodesPerNode is the per-node partition factor; total partitions
	// = len(Nodes) * KeynodesPerNode (curiodb.keynodes).
	KeynodesPerNode int `yaml:"keynodes"`

	// PersistAfter is the write debounce in ms: 0 = synchronous,
	// negative = disabled (curiodb.persist-after).
	PersistAfterMS int `yaml:"persist-after"`
	// SleepAfter is the passivation window in ms; 0 disables passivation
	// (curiodb.sleep-after).
	SleepAfterMS int `yaml:"sleep-after"`
	// DataDir is where the FileStore snapshot tree is rooted.
	DataDir string `yaml:"data-dir"`

	HyperLogLog HyperLogLogConfig `yaml:"hyperloglog"`

	// AggregateTimeoutMS bounds every Aggregator scatter/gather round
	// (curiodb.aggregate-timeout).
	AggregateTimeoutMS int `yaml:"aggregate-timeout"`
	// IdleTimeoutMS disconnects a ClientSession that sends nothing for
	// this long (0 disables the deadline).
	IdleTimeoutMS int `yaml:"idle-timeout"`

	// MetadataFile is the path to the command descriptor YAML
	// (curiodb.metadata-file); empty uses the embedded default table.
	MetadataFile string `yaml:"metadata-file"`

	// LogLevel is one of zerolog's level names (trace, debug, info, ...).
	LogLevel string `yaml:"log-level"`
	// LogPretty switches the console-writer formatter on for local runs.
	LogPretty bool `yaml:"log-pretty"`
}

// HyperLogLogConfig maps the curiodb.hyperloglog.* keys.
type HyperLogLogConfig struct {
	// RegisterLog is the HyperLogLog precision (2^RegisterLog registers).
	RegisterLog int `yaml:"register-log"`
	// RegisterWidth is accepted for spec compatibility but has no effect:
	// this implementation always stores one byte per register (see
	// DESIGN.md).
	RegisterWidth int `yaml:"register-width"`
}

// PersistAfter is config's persist-after as a time.Duration.
func (c *Config) PersistAfter() time.Duration {
	return time.Duration(c.PersistAfterMS) * time.Millisecond
}

// SleepAfter is config's sleep-after as a time.Duration.
func (c *Config) SleepAfter() time.Duration {
	return time.Duration(c.SleepAfterMS) * time.Millisecond
}

// AggregateTimeout is config's aggregate-timeout as a time.Duration.
func (c *Config) AggregateTimeout() time.Duration {
	return time.Duration(c.AggregateTimeoutMS) * time.Millisecond
}

// IdleTimeout is config's idle-timeout as a time.Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

// Listen is the bind address for this config's own Node entry in Nodes,
// with any "redis://" scheme stripped (the scheme is accepted and ignored).
func (c *Config) Listen() (string, error) {
	uri, ok := c.Nodes[c.Node]
	if !ok {
		return "", fmt.Errorf("config: node %q not present in curiodb.nodes", c.Node)
	}
	return stripScheme(uri), nil
}

func stripScheme(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[i+3:]
	}
	return uri
}

// Partitions returns len(Nodes) * KeynodesPerNode, the total partition
// count curiodb.keynodes describes.
func (c *Config) Partitions() int {
	return len(c.Nodes) * c.KeynodesPerNode
}

// Default returns the compiled-in defaults: synchronous persistence,
// passivation disabled,
// default HyperLogLog precision, a single local node.
func Default() *Config {
	return &Config{
		Node:               "node1",
		Nodes:              map[string]string{"node1": "127.0.0.1:6379"},
		KeynodesPerNode:     4,
		PersistAfterMS:     0,
		SleepAfterMS:       0,
		DataDir:            "data",
		HyperLogLog:        HyperLogLogConfig{RegisterLog: 14, RegisterWidth: 8},
		AggregateTimeoutMS: 2000,
		IdleTimeoutMS:      0,
		LogLevel:           "info",
		LogPretty:          false,
	}
}

// Load builds a Config by layering, in order: Default(), the YAML file at
// path (skipped entirely when path is empty — a missing explicit path is
// an error, a disabled optional one is not), then CURIODB_* environment
// variables. A malformed file is reported so the caller can exit(1)
// before binding the listener.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides cfg in place from CURIODB_* environment variables,
// the outermost layer of the configuration stack.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("CURIODB_NODE"); ok {
		cfg.Node = v
	}
	if v, ok := os.LookupEnv("CURIODB_KEYNODES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KeynodesPerNode = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_PERSIST_AFTER"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PersistAfterMS = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_SLEEP_AFTER"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SleepAfterMS = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("CURIODB_HYPERLOGLOG_REGISTER_LOG"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HyperLogLog.RegisterLog = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_HYPERLOGLOG_REGISTER_WIDTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HyperLogLog.RegisterWidth = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_AGGREGATE_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AggregateTimeoutMS = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_IDLE_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeoutMS = n
		}
	}
	if v, ok := os.LookupEnv("CURIODB_METADATA_FILE"); ok {
		cfg.MetadataFile = v
	}
	if v, ok := os.LookupEnv("CURIODB_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("CURIODB_LOG_PRETTY"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogPretty = b
		}
	}
	for key, uri := range envNodes() {
		cfg.Nodes[key] = uri
	}
}

// envNodes parses CURIODB_NODES_<id>=<uri> pairs out of the environment,
// covering curiodb.nodes.* (a map key can't be named with a single env
// var, so each node gets its own suffixed variable).
func envNodes() map[string]string {
	const prefix = "CURIODB_NODES_"
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		id := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		out[id] = parts[1]
	}
	return out
}
