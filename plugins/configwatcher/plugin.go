// Package configwatcher reloads node limits when the config file changes.
// It watches the directory holding the TOML config and applies the
// [limits] table of the file to the running node after every write.
package configwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/meshlink/internal/cliconfig"
	"github.com/bft-labs/meshlink/internal/ports"
	"github.com/bft-labs/meshlink/pkg/meshlink"
)

// Plugin implements config watching functionality.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	retryInterval time.Duration
	debounceDelay time.Duration

	// Runtime state
	logger   meshlink.Logger
	limits   meshlink.LimitsController
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	reloads  int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML config file to watch. Empty disables the plugin.
	Path string

	// RetryInterval is the delay between attempts to watch a directory
	// that does not exist yet.
	// Default: 5 seconds
	RetryInterval time.Duration

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config watching the default config path.
func DefaultConfig() Config {
	return Config{
		Path:          cliconfig.DefaultConfigPath(),
		RetryInterval: 5 * time.Second,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	return &Plugin{
		path:          cfg.Path,
		retryInterval: cfg.RetryInterval,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts the watcher loop.
func (p *Plugin) Initialize(ctx context.Context, cfg meshlink.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	p.limits = cfg.Limits
	p.mu.Unlock()

	if p.path == "" {
		p.logger.Warn("config watcher disabled: no config path")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized", ports.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns the number of successful reloads.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("config watcher: failed to create watcher", ports.Err(err))
		return
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched.
	dir := filepath.Dir(p.path)
	for {
		err := watcher.Add(dir)
		if err == nil {
			break
		}
		p.logger.Warn("config watcher: cannot watch directory",
			ports.String("dir", dir),
			ports.Err(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error", ports.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload(ctx)
	})
}

// reload applies the file's limits on top of the limits in effect.
// Invalid files leave the node untouched.
func (p *Plugin) reload(ctx context.Context) {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		p.logger.Error("config watcher: failed to load config", ports.Err(err))
		return
	}

	current := p.limits.Limits()
	next := fc.Limits.Apply(current)
	if next == current {
		p.logger.Debug("config watcher: limits unchanged")
		return
	}

	if err := p.limits.SetLimits(ctx, next); err != nil {
		p.logger.Error("config watcher: rejected new limits", ports.Err(err))
		return
	}

	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	p.logger.Info("config watcher: limits reloaded",
		ports.Int("max_slice_bytes", next.MaxSliceBytes),
		ports.Int("max_bundle_slices", next.MaxBundleSlices),
		ports.Int("max_queue_depth", next.MaxQueueDepth),
		ports.Uint64("min_free_memory", next.MinFreeMemory),
		ports.Int("max_package_bytes", next.MaxPackageBytes))
}

// Ensure Plugin implements meshlink.Plugin.
var _ meshlink.Plugin = (*Plugin)(nil)
