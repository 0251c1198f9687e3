// Package config loads bureau's tunables from a JSON-with-comments file
// (spec: "process bootstrap and configuration loading" is an external
// collaborator, carried here as an ambient concern regardless).
//
// Grounded on calvinalkan-agent-task's internal/ticket config loader: read
// the file, run it through hujson.Standardize to strip comments/trailing
// commas, then json.Unmarshal onto a struct seeded with defaults.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// Config bounds every tunable named across spec §3/§4.
type Config struct {
	// BindAddr is the TCP address bureau-server listens on.
	BindAddr string `json:"bind_addr"`

	// DataDir holds sorted-table files; LogDir holds WAL segments (spec
	// §6: "Sorted tables live under a data directory... WAL lives under a
	// log directory").
	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`

	// MemtableTargetSize is the projected-encoded-size threshold that
	// seals the active memtable (spec §3: "~4 KiB of payload plus
	// overhead").
	MemtableTargetSize int `json:"memtable_target_size"`

	// ShadowPoolCapacity bounds the number of sealed memtables awaiting
	// flush (spec §3: "Capacity N (small, e.g. 4)").
	ShadowPoolCapacity int `json:"shadow_pool_capacity"`

	// BlockTargetSize bounds a sorted table's block size (spec §3: "~4
	// KiB").
	BlockTargetSize int `json:"block_target_size"`

	// BloomFalsePositiveRate sizes each sorted table's bloom filter (spec
	// §4.3: "~1%").
	BloomFalsePositiveRate float64 `json:"bloom_false_positive_rate"`

	// CompactionWindowCap bounds the combined size of tables a single
	// compaction step may merge (spec §4.5).
	CompactionWindowCap int64 `json:"compaction_window_cap"`

	// CacheCapacity bounds the number of entries the read cache holds
	// (spec §4.7).
	CacheCapacity int `json:"cache_capacity"`
}

// Default returns bureau's out-of-the-box tunables.
func Default() Config {
	return Config{
		BindAddr:               "127.0.0.1:7070",
		DataDir:                "./data",
		LogDir:                 "./wal",
		MemtableTargetSize:     4096,
		ShadowPoolCapacity:     4,
		BlockTargetSize:        4096,
		BloomFalsePositiveRate: 0.01,
		CompactionWindowCap:    4 * 4096,
		CacheCapacity:          1024,
	}
}

// Load reads a JSONC (JSON-with-comments) config file at path and merges
// it over Default(). A missing file is not an error: Default() is
// returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: invalid JSONC in %s", path)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: invalid JSON in %s", path)
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if cfg.MemtableTargetSize <= 0 {
		return errors.New("config: memtable_target_size must be positive")
	}
	if cfg.ShadowPoolCapacity <= 0 {
		return errors.New("config: shadow_pool_capacity must be positive")
	}
	if cfg.BlockTargetSize <= 0 {
		return errors.New("config: block_target_size must be positive")
	}
	if cfg.BloomFalsePositiveRate <= 0 || cfg.BloomFalsePositiveRate >= 1 {
		return errors.New("config: bloom_false_positive_rate must be in (0, 1)")
	}
	if cfg.CompactionWindowCap <= 0 {
		return errors.New("config: compaction_window_cap must be positive")
	}
	if cfg.CacheCapacity < 0 {
		return errors.New("config: cache_capacity must be non-negative")
	}
	return nil
}
