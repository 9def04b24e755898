// Package config loads the process configuration: durability paths, the
// worker id baked into every Gid, and the knobs external collaborators
// (query plan cache, Raft) read but this core ignores.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler via time.ParseDuration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full process configuration.
type Config struct {
	// DurabilityDir is the root under which snapshots/ and wal/ live.
	DurabilityDir string `yaml:"durability_dir"`

	// WorkerID is packed into the top bits of every allocated Gid.
	WorkerID int `yaml:"worker_id"`

	// GCInterval is how often the background collector runs.
	GCInterval Duration `yaml:"gc_interval"`

	// SnapshotOnExit writes a final snapshot during shutdown.
	SnapshotOnExit bool `yaml:"snapshot_on_exit"`

	// PlanCacheTTL is consumed by the query planner, not this core.
	PlanCacheTTL Duration `yaml:"plan_cache_ttl"`

	// RaftServerID and RaftPort are consumed by the coordination layer,
	// not this core.
	RaftServerID int `yaml:"raft_server_id"`
	RaftPort     int `yaml:"raft_port"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DurabilityDir: "data",
		WorkerID:      0,
		GCInterval:    Duration(time.Second),
		PlanCacheTTL:  Duration(5 * time.Minute),
		Log:           LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the storage cannot start with.
func (c *Config) Validate() error {
	if c.WorkerID < 0 || c.WorkerID > 1023 {
		return fmt.Errorf("config: worker_id %d out of range [0, 1023]", c.WorkerID)
	}
	if c.DurabilityDir == "" {
		return fmt.Errorf("config: durability_dir must not be empty")
	}
	return nil
}

// SnapshotDir returns the snapshot directory under the durability root.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DurabilityDir, "snapshots")
}

// WalDir returns the WAL directory under the durability root.
func (c *Config) WalDir() string {
	return filepath.Join(c.DurabilityDir, "wal")
}
