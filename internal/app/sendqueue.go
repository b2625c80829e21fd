package app

import (
	"fmt"

	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// Admission describes what Submit did with an accepted package.
type Admission int

const (
	// AdmittedSent means the package was handed straight to the transport.
	AdmittedSent Admission = iota + 1

	// AdmittedQueued means the package waits in the connection queue.
	AdmittedQueued
)

// String returns a human-readable representation of the admission.
func (a Admission) String() string {
	switch a {
	case AdmittedSent:
		return "Sent"
	case AdmittedQueued:
		return "Queued"
	default:
		return "Rejected"
	}
}

// SendQueue is the per-connection admission controller.
// It decides between immediate send and queueing, keeps priority packages
// at the head, bounds the queue depth and sheds queued work under memory pressure.
type SendQueue struct {
	transport ports.Transport
	gauge     ports.MemoryGauge
	limits    *domain.Limits
	sched     *Scheduler
	logger    ports.Logger
	observer  ports.SendObserver
}

// NewSendQueue creates an admission controller. limits is read on every
// submission, so updates through the pointer apply to the next package.
func NewSendQueue(
	transport ports.Transport,
	gauge ports.MemoryGauge,
	limits *domain.Limits,
	sched *Scheduler,
	logger ports.Logger,
	observer ports.SendObserver,
) *SendQueue {
	return &SendQueue{
		transport: transport,
		gauge:     gauge,
		limits:    limits,
		sched:     sched,
		logger:    logger,
		observer:  observer,
	}
}

// Submit admits one encoded package to c.
func (q *SendQueue) Submit(c *Connection, wire []byte, priority bool) (Admission, error) {
	if c.closed {
		q.observer.OnDropped(c.NodeID, domain.ErrConnectionClosed)
		return 0, fmt.Errorf("%w: node %d", domain.ErrConnectionClosed, c.NodeID)
	}

	if len(wire) > q.limits.MaxPackageBytes {
		q.logger.Error("package too long",
			ports.Uint32("node", c.NodeID),
			ports.Int("bytes", len(wire)),
			ports.Int("max_bytes", q.limits.MaxPackageBytes),
		)
		q.observer.OnDropped(c.NodeID, domain.ErrOversizedPackage)
		return 0, fmt.Errorf("%w: %d > %d bytes", domain.ErrOversizedPackage, len(wire), q.limits.MaxPackageBytes)
	}

	if c.sendReady {
		if err := q.send(c, wire, false); err != nil {
			return 0, err
		}
		return AdmittedSent, nil
	}

	if free := q.gauge.FreeMemory(); free < q.limits.MinFreeMemory {
		discarded := c.discard()
		q.logger.Warn("low memory, discarding send queue",
			ports.Uint32("node", c.NodeID),
			ports.Uint64("free_bytes", free),
			ports.Uint64("floor_bytes", q.limits.MinFreeMemory),
			ports.Int("discarded", discarded),
		)
		q.observer.OnEvicted(c.NodeID, discarded)
		q.observer.OnDropped(c.NodeID, domain.ErrMemoryPressure)
		q.notifyDrained(c)
		return 0, fmt.Errorf("%w: %d bytes free, discarded %d queued packages",
			domain.ErrMemoryPressure, free, discarded)
	}

	if priority {
		if c.QueueLen() >= q.limits.MaxQueueDepth {
			c.dropBack()
			q.logger.Warn("queue full, dropping tail for priority package",
				ports.Uint32("node", c.NodeID),
				ports.Int("depth", c.QueueLen()),
			)
			q.observer.OnDropped(c.NodeID, domain.ErrQueueFull)
		}
		c.pushFront(wire)
	} else {
		if c.QueueLen() >= q.limits.MaxQueueDepth {
			q.observer.OnDropped(c.NodeID, domain.ErrQueueFull)
			return 0, fmt.Errorf("%w: node %d at %d packages", domain.ErrQueueFull, c.NodeID, c.QueueLen())
		}
		c.pushBack(wire)
	}

	q.logger.Debug("queued package",
		ports.Uint32("node", c.NodeID),
		ports.Int("depth", c.QueueLen()),
		ports.Bool("priority", priority),
	)
	q.observer.OnQueued(c.NodeID, c.QueueLen())
	return AdmittedQueued, nil
}

// Complete handles the transport's completion signal for c: the connection
// becomes Ready and the queue head, if any, is handed to the transport.
// Packages the transport rejects are dropped and the next head is tried.
// A completion arriving while c is already Ready has no send to account for
// and is ignored.
func (q *SendQueue) Complete(c *Connection) {
	if c.closed {
		return
	}
	if c.sendReady {
		q.logger.Debug("ignoring completion with no send in flight", ports.Uint32("node", c.NodeID))
		return
	}
	c.sendReady = true

	for c.sendReady {
		wire, ok := c.popFront()
		if !ok {
			break
		}
		if err := q.send(c, wire, true); err != nil {
			continue
		}
	}

	if c.QueueLen() == 0 {
		q.notifyDrained(c)
	}
}

// Close marks c closed, drops its queue and wakes transfers waiting on it.
func (q *SendQueue) Close(c *Connection) {
	if c.closed {
		return
	}
	c.closed = true
	c.sendReady = false
	if n := c.discard(); n > 0 {
		q.logger.Info("dropped queued packages of closed connection",
			ports.Uint32("node", c.NodeID),
			ports.Int("discarded", n),
		)
	}
	q.notifyDrained(c)
}

func (q *SendQueue) send(c *Connection, wire []byte, queued bool) error {
	q.logger.Debug("sending package",
		ports.Uint32("node", c.NodeID),
		ports.Int("bytes", len(wire)),
		ports.Bool("from_queue", queued),
	)

	if err := q.transport.Send(c.Link, wire); err != nil {
		q.logger.Error("transport send failed",
			ports.Uint32("node", c.NodeID),
			ports.Err(err),
		)
		q.observer.OnDropped(c.NodeID, domain.ErrTransportRejected)
		return fmt.Errorf("%w: %w", domain.ErrTransportRejected, err)
	}

	c.sendReady = false
	q.observer.OnSent(c.NodeID, len(wire), queued)
	return nil
}

func (q *SendQueue) notifyDrained(c *Connection) {
	for _, fn := range c.takeDrainWaiters() {
		q.sched.Post(fn)
	}
}
