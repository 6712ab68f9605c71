// Package config loads runtime configuration from strand.toml. The file is
// optional: Default() covers every field, and the CLI searches upward from
// the working directory so nested packages share one project-level file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file searched for by Find.
const FileName = "strand.toml"

// Config is the full on-disk configuration.
type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Trace   TraceConfig   `toml:"trace"`
}

// RuntimeConfig sizes the runtime.
type RuntimeConfig struct {
	// Workers is the number of scheduler worker threads. Zero selects the
	// core count.
	Workers int `toml:"workers"`
	// BlockingWorkers caps the dedicated pool for thread-blocking work.
	BlockingWorkers int `toml:"blocking_workers"`
	// ChannelCapacity is the default bounded-channel capacity.
	ChannelCapacity int `toml:"channel_capacity"`
	// Seed seeds randomized race tie-breaking. Zero derives a seed from the
	// clock; a fixed value makes interleavings reproducible.
	Seed uint64 `toml:"seed"`
}

// TraceConfig configures the runtime tracer.
type TraceConfig struct {
	Level       string `toml:"level"`        // off|error|task|debug
	Mode        string `toml:"mode"`         // stream|ring|both
	Format      string `toml:"format"`       // text|binary
	Output      string `toml:"output"`       // file path, "-" for stderr
	RingSize    int    `toml:"ring_size"`    // ring buffer capacity
	HeartbeatMS int    `toml:"heartbeat_ms"` // 0 disables the heartbeat
}

// Default returns the configuration used when no strand.toml exists.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			Workers:         runtime.NumCPU(),
			BlockingWorkers: 64,
			ChannelCapacity: 64,
		},
		Trace: TraceConfig{
			Level:    "off",
			Mode:     "ring",
			Format:   "text",
			Output:   "-",
			RingSize: 4096,
		},
	}
}

// Load reads and validates a configuration file. Missing fields keep their
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown key %q in %q", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Runtime.Workers < 0 {
		return errors.New("runtime.workers must be >= 0")
	}
	if c.Runtime.BlockingWorkers < 0 {
		return errors.New("runtime.blocking_workers must be >= 0")
	}
	if c.Runtime.ChannelCapacity < 0 {
		return errors.New("runtime.channel_capacity must be >= 0")
	}
	if c.Trace.RingSize < 0 {
		return errors.New("trace.ring_size must be >= 0")
	}
	if c.Trace.HeartbeatMS < 0 {
		return errors.New("trace.heartbeat_ms must be >= 0")
	}
	return nil
}

// Find searches for strand.toml in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}
