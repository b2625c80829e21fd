package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "MESHLINK_"

// ApplyEnvConfig applies MESHLINK_* environment variables to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if v, ok, err := s.parseUint("node-id", env("NODE_ID"), 32); err != nil {
		return err
	} else if ok {
		cfg.NodeID = uint32(v)
	}
	s.setString("listen", env("LISTEN"), &cfg.ListenAddr)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if v, ok, err := s.parseUint("memory-budget", env("MEMORY_BUDGET"), 64); err != nil {
		return err
	} else if ok {
		cfg.MemoryBudget = v
	}
	if err := s.setDuration("sample-interval", env("SAMPLE_INTERVAL"), &cfg.SampleInterval); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", env("DIAL_TIMEOUT"), &cfg.DialTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-slice-bytes", env("MAX_SLICE_BYTES"), &cfg.Limits.MaxSliceBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-bundle-slices", env("MAX_BUNDLE_SLICES"), &cfg.Limits.MaxBundleSlices); err != nil {
		return err
	}
	if err := s.setIntFromString("max-queue-depth", env("MAX_QUEUE_DEPTH"), &cfg.Limits.MaxQueueDepth); err != nil {
		return err
	}
	if v, ok, err := s.parseUint("min-free-memory", env("MIN_FREE_MEMORY"), 64); err != nil {
		return err
	} else if ok {
		cfg.Limits.MinFreeMemory = v
	}
	if err := s.setIntFromString("max-package-bytes", env("MAX_PACKAGE_BYTES"), &cfg.Limits.MaxPackageBytes); err != nil {
		return err
	}

	if v := env("PEERS"); v != "" && !changed["peer"] {
		peers, err := ParsePeers(v)
		if err != nil {
			return err
		}
		s.setPeers("peer", peers, &cfg.Peers)
	}

	return nil
}
