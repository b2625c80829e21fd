// Package resourcegating feeds admission control with the node's free
// memory. The plugin samples heap usage against a memory budget and
// serves the result as the node's memory gauge, so send queues shed
// queued work once the process nears its budget.
package resourcegating

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/meshlink/internal/adapters/sysmem"
	"github.com/bft-labs/meshlink/internal/ports"
	"github.com/bft-labs/meshlink/pkg/meshlink"
)

// Plugin implements resource gating functionality.
// It is both a meshlink.Plugin and a meshlink.MemoryGauge.
type Plugin struct {
	mu sync.Mutex

	sampler *sysmem.Sampler

	// Runtime state
	logger meshlink.Logger
	limits meshlink.LimitsController
	cancel context.CancelFunc
	wg     sync.WaitGroup
	low    bool
}

// Config holds configuration options for the resource gating plugin.
type Config struct {
	// MemoryBudget is the number of bytes the process may use.
	// Default: 64MB
	MemoryBudget uint64

	// SampleInterval is how often memory usage is sampled.
	// Default: 1 second
	SampleInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MemoryBudget:   64 << 20,
		SampleInterval: sysmem.DefaultInterval,
	}
}

// New creates a new resource gating plugin with the given configuration.
// The first sample is taken immediately.
func New(cfg Config) *Plugin {
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = 64 << 20
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = sysmem.DefaultInterval
	}

	return &Plugin{
		sampler: sysmem.NewSampler(cfg.MemoryBudget, cfg.SampleInterval),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "resourcegating"
}

// Initialize starts periodic sampling.
func (p *Plugin) Initialize(ctx context.Context, cfg meshlink.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	p.limits = cfg.Limits
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("resource gating plugin initialized",
		ports.Uint64("budget_bytes", p.sampler.Budget()),
		ports.Uint64("free_bytes", p.sampler.FreeMemory()))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sampler.Run(runCtx, p.observe)
	}()
	return nil
}

// Shutdown stops sampling.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// FreeMemory implements meshlink.MemoryGauge.
func (p *Plugin) FreeMemory() uint64 {
	return p.sampler.FreeMemory()
}

// Low reports whether the last sample was below the node's free memory floor.
func (p *Plugin) Low() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.low
}

// observe logs crossings of the free memory floor.
func (p *Plugin) observe(free uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limits == nil {
		return
	}

	floor := p.limits.Limits().MinFreeMemory
	low := free < floor
	if low == p.low {
		return
	}
	p.low = low

	if low {
		p.logger.Warn("free memory below floor, queued packages will be shed",
			ports.Uint64("free_bytes", free),
			ports.Uint64("floor_bytes", floor))
		return
	}
	p.logger.Info("free memory recovered",
		ports.Uint64("free_bytes", free),
		ports.Uint64("floor_bytes", floor))
}

// Ensure Plugin implements meshlink.Plugin and meshlink.MemoryGauge.
var (
	_ meshlink.Plugin      = (*Plugin)(nil)
	_ meshlink.MemoryGauge = (*Plugin)(nil)
)
