package meshlink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/meshlink/internal/adapters/clock"
	"github.com/bft-labs/meshlink/internal/adapters/memory"
	"github.com/bft-labs/meshlink/internal/adapters/sysmem"
	"github.com/bft-labs/meshlink/internal/app"
	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// Dialer is implemented by transports that manage per-neighbour links.
// AddConnection and RemoveConnection call it when the transport has it.
type Dialer interface {
	Connect(ctx context.Context, link Link) error
	Disconnect(nodeID uint32)
}

// Node is the outbound side of one mesh node: its neighbour connections
// and the pipeline that slices, queues and hands packages to the transport.
//
// All methods are safe for concurrent use. Pipeline work runs on a single
// scheduler goroutine started by Start.
type Node struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	pipeline  *app.Pipeline
	transport Transport
	logger    ports.Logger
	plugins   []Plugin

	mu     sync.RWMutex
	runCtx context.Context
	limits Limits
}

// New creates a Node with the given configuration.
// The node is created in StateStopped; call Start to run it.
func New(cfg Config, opts ...Option) (*Node, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	observer := o.observer
	if observer == nil {
		observer = ports.NopObserver{}
	}
	bridge := &eventBridge{handler: o.eventHandler, observer: observer}

	var loopback *memory.Transport
	transport := o.transport
	if transport == nil {
		loopback = memory.NewTransport()
		transport = loopback
	}
	gauge := o.gauge
	if gauge == nil {
		gauge = sysmem.Unlimited
	}
	clk := o.clock
	if clk == nil {
		clk = clock.NewMonotonic()
	}

	n := &Node{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewLifecycle(o.logger, bridge),
		pipeline: app.NewPipeline(app.PipelineConfig{
			Limits:    cfg.Limits,
			Transport: transport,
			Gauge:     gauge,
			Clock:     clk,
			NewID:     o.newID,
			Logger:    o.logger,
			Observer:  bridge,
		}),
		transport: transport,
		logger:    o.logger,
		plugins:   o.plugins,
		limits:    cfg.Limits,
	}
	if loopback != nil {
		loopback.AutoComplete(n)
	}
	return n, nil
}

// ID returns this node's mesh identifier.
func (n *Node) ID() uint32 {
	return n.config.NodeID
}

// Start runs the node's scheduler in the background and initializes
// plugins. The node runs until Stop is called or ctx is canceled.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if !n.lifecycle.CanStart() {
		n.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if err := n.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		n.mu.Unlock()
		return err
	}
	runCtx := n.lifecycle.Context(ctx)
	sched := n.pipeline.Scheduler()
	n.lifecycle.Go("scheduler", func() { sched.Run(runCtx) })
	n.runCtx = runCtx
	n.mu.Unlock()

	// Plugins may already use the node while they initialize.
	pluginCfg := PluginConfig{
		NodeID: n.config.NodeID,
		Logger: n.logger,
		Limits: n,
	}
	for i, p := range n.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			n.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			n.lifecycle.Cancel()
			n.shutdownPlugins(n.plugins[:i])
			_ = n.lifecycle.Wait(app.ShutdownTimeout)
			_ = n.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		n.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	return n.lifecycle.TransitionTo(app.StateRunning, "scheduler started")
}

// Stop shuts the node down. Transfers still in progress are abandoned and
// their callers receive ErrNotRunning.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.lifecycle.CanStop() {
		n.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := n.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		n.mu.Unlock()
		return err
	}
	n.lifecycle.Cancel()
	n.mu.Unlock()

	err := n.lifecycle.Wait(app.ShutdownTimeout)
	n.shutdownPlugins(n.plugins)

	if err != nil {
		_ = n.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = n.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

func (n *Node) shutdownPlugins(plugins []Plugin) {
	ctx := context.Background()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			n.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			continue
		}
		n.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
	}
}

// Status returns the current lifecycle state.
func (n *Node) Status() State {
	return convertState(n.lifecycle.State())
}

// running returns the context of the running scheduler.
func (n *Node) running() (context.Context, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := n.lifecycle.State()
	if (s != app.StateRunning && s != app.StateStarting) || n.runCtx == nil || n.runCtx.Err() != nil {
		return nil, domain.ErrNotRunning
	}
	return n.runCtx, nil
}

// call runs fn on the scheduler and waits for it.
func (n *Node) call(ctx context.Context, fn func()) (context.Context, error) {
	runCtx, err := n.running()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	if err := n.pipeline.Scheduler().Call(callCtx, fn); err != nil {
		if runCtx.Err() != nil {
			return nil, domain.ErrNotRunning
		}
		return nil, err
	}
	return runCtx, nil
}

// wait blocks until done is closed, ctx is done or the node stops.
func wait(ctx, runCtx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return domain.ErrNotRunning
	}
}

// AddConnection registers the neighbour nodeID reachable at addr. When the
// transport implements Dialer, the link is dialed first.
func (n *Node) AddConnection(ctx context.Context, nodeID uint32, addr string) error {
	if nodeID == 0 || nodeID == n.config.NodeID {
		return fmt.Errorf("%w: invalid neighbour id %d", domain.ErrInvalidConfig, nodeID)
	}
	if _, err := n.running(); err != nil {
		return err
	}

	link := Link{NodeID: nodeID, Addr: addr}
	if d, ok := n.transport.(Dialer); ok {
		if err := d.Connect(ctx, link); err != nil {
			return err
		}
	}

	_, err := n.call(ctx, func() { n.pipeline.AddConnection(link) })
	return err
}

// RemoveConnection closes the connection to nodeID. Its queued packages
// are dropped and transfers in progress on it fail with ErrConnectionClosed.
func (n *Node) RemoveConnection(ctx context.Context, nodeID uint32) error {
	var removed bool
	if _, err := n.call(ctx, func() { removed = n.pipeline.RemoveConnection(nodeID) }); err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: node %d", domain.ErrNoRoute, nodeID)
	}
	if d, ok := n.transport.(Dialer); ok {
		d.Disconnect(nodeID)
	}
	return nil
}

// Connections returns the neighbour ids in the order they were added.
func (n *Node) Connections(ctx context.Context) ([]uint32, error) {
	var ids []uint32
	_, err := n.call(ctx, func() {
		for _, c := range n.pipeline.Connections().All() {
			ids = append(ids, c.NodeID)
		}
	})
	return ids, err
}

// SendMessage sends msg from this node to the neighbour destID and waits
// until every slice was accepted by the send queue. Priority messages are
// queued ahead of other traffic.
//
// Canceling ctx stops the wait, not the transfer.
func (n *Node) SendMessage(ctx context.Context, destID uint32, t PackageType, msg string, priority bool) error {
	return n.Forward(ctx, destID, n.config.NodeID, t, msg, priority)
}

// Forward is SendMessage on behalf of fromID, for relaying another node's
// message.
func (n *Node) Forward(ctx context.Context, destID, fromID uint32, t PackageType, msg string, priority bool) error {
	var tr *app.Transfer
	var sendErr error
	runCtx, err := n.call(ctx, func() {
		tr, sendErr = n.pipeline.SendMessage(destID, fromID, t, msg, priority)
	})
	if err != nil {
		return err
	}
	if sendErr != nil {
		return sendErr
	}
	if err := wait(ctx, runCtx, tr.Done()); err != nil {
		return err
	}
	return tr.Err()
}

// Broadcast sends msg to every neighbour except exclude (0 excludes none)
// and waits for all copies. It reports true when the node has at least one
// connection and no copy failed.
func (n *Node) Broadcast(ctx context.Context, t PackageType, msg string, exclude uint32) (bool, error) {
	var fo *app.Fanout
	runCtx, err := n.call(ctx, func() {
		fo = n.pipeline.Broadcast(n.config.NodeID, t, msg, exclude)
	})
	if err != nil {
		return false, err
	}
	if err := wait(ctx, runCtx, fo.Done()); err != nil {
		return false, err
	}
	return fo.OK(), nil
}

// SendComplete signals that the transport finished sending the in-flight
// package to nodeID. Transports call it from any goroutine.
func (n *Node) SendComplete(nodeID uint32) {
	n.pipeline.Scheduler().Post(func() { n.pipeline.Complete(nodeID) })
}

// Limits returns the limits in effect.
func (n *Node) Limits() Limits {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.limits
}

// SetLimits replaces the node's limits.
func (n *Node) SetLimits(ctx context.Context, l Limits) error {
	var setErr error
	if _, err := n.call(ctx, func() { setErr = n.pipeline.SetLimits(l) }); err != nil {
		return err
	}
	if setErr != nil {
		return setErr
	}
	n.mu.Lock()
	n.limits = l
	n.mu.Unlock()
	return nil
}

// QueueDepth returns the number of packages queued for nodeID.
func (n *Node) QueueDepth(ctx context.Context, nodeID uint32) (int, error) {
	var depth int
	var ok bool
	if _, err := n.call(ctx, func() { depth, ok = n.pipeline.QueueDepth(nodeID) }); err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: node %d", domain.ErrNoRoute, nodeID)
	}
	return depth, nil
}

// IsRetryable reports whether err is a transient send failure worth
// retrying later, as opposed to a message that can never be sent.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrQueueFull) ||
		errors.Is(err, domain.ErrMemoryPressure) ||
		errors.Is(err, domain.ErrTransportRejected)
}

var _ CompletionSink = (*Node)(nil)
