package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/meshlink/internal/domain"
)

func TestApplyFileConfig(t *testing.T) {
	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		check      func(t *testing.T, cfg Config)
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				NodeID:         5,
				ListenAddr:     "tcp://0.0.0.0:7000",
				MetricsAddr:    ":9100",
				LogLevel:       "debug",
				MemoryBudget:   1 << 20,
				SampleInterval: "250ms",
				Limits:         LimitsConfig{MaxSliceBytes: 500, MaxQueueDepth: 10},
				Peers:          []PeerConfig{{NodeID: 6, Addr: "tcp://10.0.0.6:7000"}},
			},
			changed: map[string]bool{},
			initial: DefaultConfig(),
			check: func(t *testing.T, cfg Config) {
				if cfg.NodeID != 5 {
					t.Errorf("NodeID = %v, want 5", cfg.NodeID)
				}
				if cfg.ListenAddr != "tcp://0.0.0.0:7000" {
					t.Errorf("ListenAddr = %v", cfg.ListenAddr)
				}
				if cfg.MetricsAddr != ":9100" {
					t.Errorf("MetricsAddr = %v", cfg.MetricsAddr)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %v", cfg.LogLevel)
				}
				if cfg.MemoryBudget != 1<<20 {
					t.Errorf("MemoryBudget = %v", cfg.MemoryBudget)
				}
				if cfg.SampleInterval != 250*time.Millisecond {
					t.Errorf("SampleInterval = %v, want 250ms", cfg.SampleInterval)
				}
				if cfg.Limits.MaxSliceBytes != 500 || cfg.Limits.MaxQueueDepth != 10 {
					t.Errorf("Limits = %+v", cfg.Limits)
				}
				if cfg.Limits.MaxBundleSlices != domain.DefaultMaxBundleSlices {
					t.Errorf("MaxBundleSlices = %v, want default", cfg.Limits.MaxBundleSlices)
				}
				if len(cfg.Peers) != 1 || cfg.Peers[0].NodeID != 6 {
					t.Errorf("Peers = %+v", cfg.Peers)
				}
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{NodeID: 5, Limits: LimitsConfig{MaxQueueDepth: 10}},
			changed:    map[string]bool{"node-id": true, "max-queue-depth": true},
			initial:    Config{NodeID: 9, Limits: domain.Limits{MaxQueueDepth: 3}},
			check: func(t *testing.T, cfg Config) {
				if cfg.NodeID != 9 {
					t.Errorf("NodeID = %v, want 9 (flag set)", cfg.NodeID)
				}
				if cfg.Limits.MaxQueueDepth != 3 {
					t.Errorf("MaxQueueDepth = %v, want 3 (flag set)", cfg.Limits.MaxQueueDepth)
				}
			},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{DialTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
		{
			name:       "returns error for incomplete peer",
			fileConfig: FileConfig{Peers: []PeerConfig{{NodeID: 3}}},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLimitsConfig_Apply(t *testing.T) {
	base := domain.DefaultLimits()
	got := LimitsConfig{MaxQueueDepth: 5, MinFreeMemory: 1024}.Apply(base)

	if got.MaxQueueDepth != 5 || got.MinFreeMemory != 1024 {
		t.Errorf("Apply() = %+v", got)
	}
	if got.MaxSliceBytes != base.MaxSliceBytes {
		t.Errorf("MaxSliceBytes = %v, want unchanged %v", got.MaxSliceBytes, base.MaxSliceBytes)
	}
	if base.MaxQueueDepth != domain.DefaultMaxQueueDepth {
		t.Error("Apply() modified its base")
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
node_id = 1
listen = "tcp://0.0.0.0:5670"
metrics_addr = ":9100"
log_level = "debug"

[limits]
max_slice_bytes = 800
max_queue_depth = 20

[[peers]]
node_id = 2
addr = "tcp://10.0.0.2:5670"

[[peers]]
node_id = 3
addr = "tcp://10.0.0.3:5670"
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.NodeID != 1 {
		t.Errorf("NodeID = %v, want 1", fc.NodeID)
	}
	if fc.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %v, want :9100", fc.MetricsAddr)
	}
	if fc.Limits.MaxSliceBytes != 800 || fc.Limits.MaxQueueDepth != 20 {
		t.Errorf("Limits = %+v", fc.Limits)
	}
	if len(fc.Peers) != 2 || fc.Peers[1].Addr != "tcp://10.0.0.3:5670" {
		t.Errorf("Peers = %+v", fc.Peers)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
node_id = 1
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".meshlink") {
		t.Errorf("DefaultConfigPath() = %v, should contain .meshlink", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
