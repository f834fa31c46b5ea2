// Package config holds the filesystem root and size budgets the engine is
// given at startup (§6.4). It follows the teacher's plain-struct Config
// convention (pkg/manager.Config) rather than a global singleton.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's environment (§6.4): a filesystem root and the
// size budgets for memtable, sort spill, WAL retention, cache, and blob
// store.
type Config struct {
	Root string `yaml:"root"`

	MemtableBudgetBytes int64 `yaml:"memtable_budget_bytes"`
	SpillBudgetBytes    int64 `yaml:"spill_budget_bytes"`
	WALRetentionBytes   int64 `yaml:"wal_retention_bytes"`
	CacheBudgetBytes    int64 `yaml:"cache_budget_bytes"`
	BlobBudgetBytes     int64 `yaml:"blob_budget_bytes"`

	// BlobThresholdBytes is the value size above which a property value is
	// written to the blob sink instead of being inlined (§4.1, §4.3).
	BlobThresholdBytes int64 `yaml:"blob_threshold_bytes"`

	// BloomFalsePositiveRate is the target false-positive rate for
	// sorted-file bloom filters; the default 0.01 gives the ≥99%
	// negative-lookup rejection of §4.1.
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`

	// WALSegmentBytes is the fixed byte threshold at which WAL segments
	// roll (§4.1).
	WALSegmentBytes int64 `yaml:"wal_segment_bytes"`
}

// Default returns sensible defaults for embedding the engine in a single
// process, matching the order of magnitude the teacher uses for its own
// size-based triggers (scheduler tick, flush thresholds).
func Default(root string) Config {
	return Config{
		Root:                   root,
		MemtableBudgetBytes:    64 << 20,
		SpillBudgetBytes:       256 << 20,
		WALRetentionBytes:      512 << 20,
		CacheBudgetBytes:       128 << 20,
		BlobBudgetBytes:        1 << 30,
		BlobThresholdBytes:     1 << 12,
		BloomFalsePositiveRate: 0.01,
		WALSegmentBytes:        32 << 20,
	}
}

// Load reads a YAML config file, applying Default(root) for any field left
// unset in the file.
func Load(path, root string) (Config, error) {
	cfg := Default(root)
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
