package app

import (
	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// PipelineConfig holds the collaborators of a send pipeline.
type PipelineConfig struct {
	Limits    domain.Limits
	Transport ports.Transport
	Gauge     ports.MemoryGauge
	Clock     ports.Clock
	NewID     IDSource
	Logger    ports.Logger
	Observer  ports.SendObserver
}

// Pipeline wires the outbound transport layer of one node: connection
// table, admission control, fragmentation, dispatch and broadcast, all
// driven by a single scheduler.
//
// Apart from Scheduler and Post, methods must be called from scheduler
// tasks.
type Pipeline struct {
	sched       *Scheduler
	limits      *domain.Limits
	conns       *ConnectionTable
	queue       *SendQueue
	fragmenter  *Fragmenter
	dispatcher  *Dispatcher
	broadcaster *Broadcaster
	logger      ports.Logger
}

// NewPipeline creates a pipeline. cfg.Limits must be valid.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Observer == nil {
		cfg.Observer = ports.NopObserver{}
	}

	limits := cfg.Limits
	sched := NewScheduler()
	conns := NewConnectionTable()
	queue := NewSendQueue(cfg.Transport, cfg.Gauge, &limits, sched, cfg.Logger, cfg.Observer)
	fragmenter := NewFragmenter(queue, sched, cfg.Clock, &limits, cfg.NewID, cfg.Logger, cfg.Observer)
	dispatcher := NewDispatcher(conns, fragmenter, cfg.Logger)

	return &Pipeline{
		sched:       sched,
		limits:      &limits,
		conns:       conns,
		queue:       queue,
		fragmenter:  fragmenter,
		dispatcher:  dispatcher,
		broadcaster: NewBroadcaster(conns, dispatcher, cfg.Logger),
		logger:      cfg.Logger,
	}
}

// Scheduler returns the scheduler driving the pipeline.
func (p *Pipeline) Scheduler() *Scheduler {
	return p.sched
}

// Connections returns the connection table.
func (p *Pipeline) Connections() *ConnectionTable {
	return p.conns
}

// Dispatcher returns the dispatcher.
func (p *Pipeline) Dispatcher() *Dispatcher {
	return p.dispatcher
}

// Broadcaster returns the broadcaster.
func (p *Pipeline) Broadcaster() *Broadcaster {
	return p.broadcaster
}

// Limits returns the limits in effect.
func (p *Pipeline) Limits() domain.Limits {
	return *p.limits
}

// SetLimits replaces the limits. Packages already queued are kept even if
// the new queue depth is smaller; transfers in progress keep their slice size.
func (p *Pipeline) SetLimits(l domain.Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	*p.limits = l
	p.logger.Info("limits updated",
		ports.Int("max_slice_bytes", l.MaxSliceBytes),
		ports.Int("max_bundle_slices", l.MaxBundleSlices),
		ports.Int("max_queue_depth", l.MaxQueueDepth),
		ports.Uint64("min_free_memory", l.MinFreeMemory),
		ports.Int("max_package_bytes", l.MaxPackageBytes),
	)
	return nil
}

// AddConnection registers a Ready connection to link. A connection already
// registered for the same node is closed and replaced.
func (p *Pipeline) AddConnection(link ports.Link) *Connection {
	c := NewConnection(link)
	if old := p.conns.Add(c); old != nil {
		p.queue.Close(old)
	}
	p.logger.Info("connection added",
		ports.Uint32("node", link.NodeID),
		ports.String("addr", link.Addr),
	)
	return c
}

// RemoveConnection closes and unregisters the connection to nodeID.
// Transfers waiting on it fail with ErrConnectionClosed.
func (p *Pipeline) RemoveConnection(nodeID uint32) bool {
	c, ok := p.conns.Remove(nodeID)
	if !ok {
		return false
	}
	p.queue.Close(c)
	p.logger.Info("connection removed", ports.Uint32("node", nodeID))
	return true
}

// Complete delivers the transport's completion signal for nodeID.
// Signals for unknown nodes are ignored.
func (p *Pipeline) Complete(nodeID uint32) {
	c, ok := p.conns.Find(nodeID)
	if !ok {
		return
	}
	p.queue.Complete(c)
}

// QueueDepth returns the queue length of the connection to nodeID.
func (p *Pipeline) QueueDepth(nodeID uint32) (int, bool) {
	c, ok := p.conns.Find(nodeID)
	if !ok {
		return 0, false
	}
	return c.QueueLen(), true
}

// SendMessage routes msg to the neighbour destID.
func (p *Pipeline) SendMessage(destID, fromID uint32, t domain.PackageType, msg string, priority bool) (*Transfer, error) {
	return p.dispatcher.SendMessage(destID, fromID, t, msg, priority)
}

// Broadcast sends msg to every neighbour except exclude (0 for none).
func (p *Pipeline) Broadcast(fromID uint32, t domain.PackageType, msg string, exclude uint32) *Fanout {
	var skip *Connection
	if exclude != 0 {
		skip, _ = p.conns.Find(exclude)
	}
	return p.broadcaster.Broadcast(fromID, t, msg, skip)
}
