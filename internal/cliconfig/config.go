package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/meshlink/internal/domain"
)

// Defaults for the meshlink CLI.
const (
	DefaultListenAddr     = "tcp://0.0.0.0:5670"
	DefaultLogLevel       = "info"
	DefaultMemoryBudget   = 64 << 20 // 64MB
	DefaultSampleInterval = time.Second
	DefaultDialTimeout    = 10 * time.Second
)

// Peer is a neighbour to connect to at startup.
type Peer struct {
	NodeID uint32
	Addr   string
}

// String formats the peer the way ParsePeer reads it.
func (p Peer) String() string {
	return fmt.Sprintf("%d@%s", p.NodeID, p.Addr)
}

// ParsePeer parses "<node id>@<address>".
func ParsePeer(s string) (Peer, error) {
	id, addr, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || addr == "" {
		return Peer{}, fmt.Errorf("peer %q: want <node id>@<address>", s)
	}
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return Peer{}, fmt.Errorf("peer %q: invalid node id", s)
	}
	return Peer{NodeID: uint32(n), Addr: addr}, nil
}

// ParsePeers parses a comma separated peer list.
func ParsePeers(s string) ([]Peer, error) {
	var peers []Peer
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		p, err := ParsePeer(item)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// Config holds CLI configuration for meshlink.
type Config struct {
	NodeID      uint32
	ListenAddr  string
	MetricsAddr string
	LogLevel    string

	MemoryBudget   uint64
	SampleInterval time.Duration
	DialTimeout    time.Duration

	Limits domain.Limits
	Peers  []Peer
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		LogLevel:       DefaultLogLevel,
		MemoryBudget:   DefaultMemoryBudget,
		SampleInterval: DefaultSampleInterval,
		DialTimeout:    DefaultDialTimeout,
		Limits:         domain.DefaultLimits(),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.NodeID == 0 {
		return fmt.Errorf("%w: node-id is required", domain.ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address is required", domain.ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if c.MemoryBudget <= c.Limits.MinFreeMemory {
		return fmt.Errorf("%w: memory budget %d must exceed min free memory %d",
			domain.ErrInvalidConfig, c.MemoryBudget, c.Limits.MinFreeMemory)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("%w: sample interval must be positive", domain.ErrInvalidConfig)
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}

	seen := make(map[uint32]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.NodeID == c.NodeID {
			return fmt.Errorf("%w: peer %s is this node", domain.ErrInvalidConfig, p)
		}
		if seen[p.NodeID] {
			return fmt.Errorf("%w: duplicate peer %d", domain.ErrInvalidConfig, p.NodeID)
		}
		seen[p.NodeID] = true
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setUint32 sets a uint32 value if positive and flag not changed.
func (s *configSetter) setUint32(flag string, value uint32, dst *uint32) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setUint64 sets a uint64 value if positive and flag not changed.
func (s *configSetter) setUint64(flag string, value uint64, dst *uint64) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setPeers replaces the peer list if non-empty and flag not changed.
func (s *configSetter) setPeers(flag string, peers []Peer, dst *[]Peer) {
	if len(peers) == 0 || s.changed[flag] {
		return
	}
	*dst = peers
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt(flag, i, dst)
	return nil
}

// parseUint parses an unsigned integer of the given bit size. ok is false
// when the value is empty, zero or its flag was set.
func (s *configSetter) parseUint(flag, value string, bits int) (uint64, bool, error) {
	if value == "" || s.changed[flag] {
		return 0, false, nil
	}
	u, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", flag, err)
	}
	return u, u > 0, nil
}
