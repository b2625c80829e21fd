package resourcegating

import "github.com/bft-labs/meshlink/pkg/meshlink"

// WithResourceGating returns a meshlink Option that registers the plugin
// and uses it as the node's memory gauge.
//
// Usage:
//
//	node, err := meshlink.New(cfg,
//	    resourcegating.WithResourceGating(resourcegating.Config{
//	        MemoryBudget:   128 << 20,
//	        SampleInterval: time.Second,
//	    }),
//	)
func WithResourceGating(cfg Config) meshlink.Option {
	plugin := New(cfg)
	return meshlink.Options(
		meshlink.WithPlugin(plugin),
		meshlink.WithMemoryGauge(plugin),
	)
}

// WithDefaultResourceGating returns a meshlink Option that enables resource
// gating with default settings (64MB budget, sampled every second).
//
// Usage:
//
//	node, err := meshlink.New(cfg, resourcegating.WithDefaultResourceGating())
func WithDefaultResourceGating() meshlink.Option {
	return WithResourceGating(DefaultConfig())
}
