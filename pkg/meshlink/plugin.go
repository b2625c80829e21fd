package meshlink

import "context"

// Plugin extends a Node with background functionality.
// Plugins are initialized in registration order when the node starts and
// shut down in reverse order when it stops.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize starts the plugin. ctx is canceled when the node stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown releases plugin resources.
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins on Initialize.
type PluginConfig struct {
	NodeID uint32
	Logger Logger
	Limits LimitsController
}

// LimitsController reads and replaces the limits of a running node.
type LimitsController interface {
	Limits() Limits
	SetLimits(ctx context.Context, l Limits) error
}
