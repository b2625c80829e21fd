package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/meshlink/internal/domain"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	NodeID         uint32       `toml:"node_id"`
	ListenAddr     string       `toml:"listen"`
	MetricsAddr    string       `toml:"metrics_addr"`
	LogLevel       string       `toml:"log_level"`
	MemoryBudget   uint64       `toml:"memory_budget"`
	SampleInterval string       `toml:"sample_interval"`
	DialTimeout    string       `toml:"dial_timeout"`
	Limits         LimitsConfig `toml:"limits"`
	Peers          []PeerConfig `toml:"peers"`
}

// LimitsConfig is the [limits] table. Zero values keep the current limit.
type LimitsConfig struct {
	MaxSliceBytes   int    `toml:"max_slice_bytes"`
	MaxBundleSlices int    `toml:"max_bundle_slices"`
	MaxQueueDepth   int    `toml:"max_queue_depth"`
	MinFreeMemory   uint64 `toml:"min_free_memory"`
	MaxPackageBytes int    `toml:"max_package_bytes"`
}

// PeerConfig is one [[peers]] entry.
type PeerConfig struct {
	NodeID uint32 `toml:"node_id"`
	Addr   string `toml:"addr"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.meshlink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".meshlink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setUint32("node-id", fc.NodeID, &cfg.NodeID)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setUint64("memory-budget", fc.MemoryBudget, &cfg.MemoryBudget)

	if err := s.setDuration("sample-interval", fc.SampleInterval, &cfg.SampleInterval); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}

	applyLimits(s, fc.Limits, cfg)

	peers := make([]Peer, 0, len(fc.Peers))
	for _, p := range fc.Peers {
		if p.NodeID == 0 || p.Addr == "" {
			return fmt.Errorf("peer entry %+v: node_id and addr are required", p)
		}
		peers = append(peers, Peer{NodeID: p.NodeID, Addr: p.Addr})
	}
	s.setPeers("peer", peers, &cfg.Peers)

	return nil
}

func applyLimits(s *configSetter, lc LimitsConfig, cfg *Config) {
	s.setInt("max-slice-bytes", lc.MaxSliceBytes, &cfg.Limits.MaxSliceBytes)
	s.setInt("max-bundle-slices", lc.MaxBundleSlices, &cfg.Limits.MaxBundleSlices)
	s.setInt("max-queue-depth", lc.MaxQueueDepth, &cfg.Limits.MaxQueueDepth)
	s.setUint64("min-free-memory", lc.MinFreeMemory, &cfg.Limits.MinFreeMemory)
	s.setInt("max-package-bytes", lc.MaxPackageBytes, &cfg.Limits.MaxPackageBytes)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Apply returns base with the limits set in lc.
func (lc LimitsConfig) Apply(base domain.Limits) domain.Limits {
	cfg := Config{Limits: base}
	applyLimits(newConfigSetter(nil), lc, &cfg)
	return cfg.Limits
}
