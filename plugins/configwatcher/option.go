package configwatcher

import "github.com/bft-labs/meshlink/pkg/meshlink"

// WithConfigWatcher returns a meshlink Option that reloads limits from the
// config file whenever it changes.
//
// Usage:
//
//	node, err := meshlink.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/meshlink/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) meshlink.Option {
	plugin := New(cfg)
	return meshlink.WithPlugin(plugin)
}

// WithDefaultConfigWatcher returns a meshlink Option that watches
// ~/.meshlink/config.toml with default settings.
//
// Usage:
//
//	node, err := meshlink.New(cfg, configwatcher.WithDefaultConfigWatcher())
func WithDefaultConfigWatcher() meshlink.Option {
	return WithConfigWatcher(DefaultConfig())
}
