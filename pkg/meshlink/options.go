package meshlink

import (
	logAdapter "github.com/bft-labs/meshlink/internal/adapters/log"
)

// Option configures optional behavior of a Node.
type Option func(*options)

type options struct {
	logger       Logger
	transport    Transport
	gauge        MemoryGauge
	clock        Clock
	observer     SendObserver
	newID        func() uint32
	eventHandler EventHandler
	plugins      []Plugin
}

func defaultOptions() options {
	return options{
		logger: logAdapter.NewNoopLogger(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport sets the transport packages are handed to. The caller
// must route the transport's completion signals to Node.SendComplete.
// If not provided, an in-memory transport that completes every send
// immediately is used.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithMemoryGauge sets the free memory source for admission control.
// If not provided, memory pressure is never reported.
func WithMemoryGauge(g MemoryGauge) Option {
	return func(o *options) {
		o.gauge = g
	}
}

// WithClock sets the node time source used for package timestamps.
// If not provided, a monotonic microsecond clock starting at zero is used.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithObserver registers an observer for send pipeline events, such as a
// metrics exporter. Observer methods run on the scheduler goroutine.
func WithObserver(obs SendObserver) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithIDSource sets the generator of transfer identifiers.
// If not provided, identifiers are drawn from random UUIDs.
func WithIDSource(next func() uint32) Option {
	return func(o *options) {
		o.newID = next
	}
}

// WithEventHandler sets a handler for node events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the node starts.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// Options combines several options into one. Plugins that also act as a
// node dependency use it to register both roles with a single option.
func Options(opts ...Option) Option {
	return func(o *options) {
		for _, opt := range opts {
			opt(o)
		}
	}
}
