package meshlink

import (
	"fmt"

	"github.com/bft-labs/meshlink/internal/domain"
)

// Config configures a Node.
type Config struct {
	// NodeID is this node's mesh identifier. Required; 0 is reserved.
	NodeID uint32

	// Limits bounds slicing and queueing. Zero fields take defaults.
	Limits Limits
}

// SetDefaults fills zero limits with their defaults.
func (c *Config) SetDefaults() {
	d := domain.DefaultLimits()
	if c.Limits.MaxSliceBytes == 0 {
		c.Limits.MaxSliceBytes = d.MaxSliceBytes
	}
	if c.Limits.MaxBundleSlices == 0 {
		c.Limits.MaxBundleSlices = d.MaxBundleSlices
	}
	if c.Limits.MaxQueueDepth == 0 {
		c.Limits.MaxQueueDepth = d.MaxQueueDepth
	}
	if c.Limits.MinFreeMemory == 0 {
		c.Limits.MinFreeMemory = d.MinFreeMemory
	}
	if c.Limits.MaxPackageBytes == 0 {
		c.Limits.MaxPackageBytes = d.MaxPackageBytes
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NodeID == 0 {
		return fmt.Errorf("%w: node id is required", domain.ErrInvalidConfig)
	}
	return c.Limits.Validate()
}
