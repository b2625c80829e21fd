package app

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bft-labs/meshlink/internal/codec"
	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// IDSource draws transfer identifiers.
type IDSource func() uint32

// RandomID draws a transfer identifier from a random (v4) UUID.
func RandomID() uint32 {
	return uuid.New().ID()
}

// Fragmenter splits logical messages into slices and submits them in order.
type Fragmenter struct {
	queue    *SendQueue
	sched    *Scheduler
	clock    ports.Clock
	limits   *domain.Limits
	newID    IDSource
	logger   ports.Logger
	observer ports.SendObserver
}

// NewFragmenter creates a fragmenter submitting to queue.
func NewFragmenter(
	queue *SendQueue,
	sched *Scheduler,
	clock ports.Clock,
	limits *domain.Limits,
	newID IDSource,
	logger ports.Logger,
	observer ports.SendObserver,
) *Fragmenter {
	if newID == nil {
		newID = RandomID
	}
	return &Fragmenter{
		queue:    queue,
		sched:    sched,
		clock:    clock,
		limits:   limits,
		newID:    newID,
		logger:   logger,
		observer: observer,
	}
}

// Fragment starts a transfer of msg to destID over c.
//
// Messages that cannot be sent at all (unknown type, malformed node sync
// payload, too many slices) are rejected with an error before any slice is
// submitted. Otherwise the first slices are submitted right away and the
// returned Transfer continues on the scheduler; its outcome is reported
// through Transfer.OnDone.
func (f *Fragmenter) Fragment(c *Connection, destID, fromID uint32, t domain.PackageType, msg string, priority bool) (*Transfer, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownPackageType, uint8(t))
	}

	if t.IsNodeSync() {
		normalized, err := codec.NormalizeSubs(msg)
		if err != nil {
			return nil, err
		}
		msg = normalized
	}

	slices := domain.SliceCount(len(msg), f.limits.MaxSliceBytes)
	if slices >= f.limits.MaxBundleSlices {
		f.logger.Error("message needs too many slices",
			ports.Uint32("dest", destID),
			ports.Int("bytes", len(msg)),
			ports.Int("slices", slices+1),
			ports.Int("max_slices", f.limits.MaxBundleSlices),
		)
		return nil, fmt.Errorf("%w: %d slices, limit %d", domain.ErrTooManySlices, slices+1, f.limits.MaxBundleSlices)
	}

	tr := &Transfer{
		f:         f,
		conn:      c,
		dest:      destID,
		from:      fromID,
		typ:       t,
		payload:   msg,
		sliceSize: f.limits.MaxSliceBytes,
		slices:    slices,
		packageID: f.newID(),
		priority:  priority,
		doneCh:    make(chan struct{}),
	}

	f.logger.Debug("sending message",
		ports.Uint32("node", c.NodeID),
		ports.Uint32("dest", destID),
		ports.String("type", t.String()),
		ports.Int("bytes", len(msg)),
		ports.Int("slices", slices+1),
		ports.Uint32("package_id", tr.packageID),
	)

	tr.step()
	return tr, nil
}

// Transfer is one logical message on its way out, slice by slice.
// It is driven by the scheduler and must only be used from scheduler tasks,
// except for Done, which may be waited on from anywhere.
type Transfer struct {
	f    *Fragmenter
	conn *Connection

	dest      uint32
	from      uint32
	typ       domain.PackageType
	payload   string
	sliceSize int
	slices    int
	packageID uint32
	priority  bool

	next      int
	finished  bool
	err       error
	callbacks []func(error)
	doneCh    chan struct{}
}

// PackageID returns the identifier shared by every slice of the transfer.
func (t *Transfer) PackageID() uint32 {
	return t.packageID
}

// Slices returns the index of the last slice.
func (t *Transfer) Slices() int {
	return t.slices
}

// Submitted returns how many slices the send queue accepted so far.
func (t *Transfer) Submitted() int {
	return t.next
}

// Finished reports whether the transfer completed or failed.
func (t *Transfer) Finished() bool {
	return t.finished
}

// Err returns the failure of a finished transfer, or nil.
func (t *Transfer) Err() error {
	return t.err
}

// Done is closed when the transfer finished.
func (t *Transfer) Done() <-chan struct{} {
	return t.doneCh
}

// OnDone registers fn to run when the transfer finishes. If it already
// finished, fn runs immediately.
func (t *Transfer) OnDone(fn func(error)) {
	if t.finished {
		fn(t.err)
		return
	}
	t.callbacks = append(t.callbacks, fn)
}

// step submits slices until the transfer is done or has to wait for the
// connection queue to drain. A waiting transfer is re-entered by the
// scheduler once the queue is empty.
func (t *Transfer) step() {
	if t.finished {
		return
	}

	for t.next <= t.slices {
		if t.conn.closed {
			t.finish(fmt.Errorf("slice %d of %d: %w", t.next, t.slices+1, domain.ErrConnectionClosed))
			return
		}

		// The previous slice has to leave the queue before the next one enters.
		if t.next > 0 && t.conn.QueueLen() > 0 {
			t.conn.waitDrain(t.step)
			return
		}

		wire, err := t.encode(t.next)
		if err != nil {
			t.finish(fmt.Errorf("encode slice %d: %w", t.next, err))
			return
		}

		if _, err := t.f.queue.Submit(t.conn, wire, t.priority); err != nil {
			t.finish(fmt.Errorf("slice %d of %d: %w", t.next, t.slices+1, err))
			return
		}
		t.next++
	}

	t.finish(nil)
}

func (t *Transfer) encode(i int) ([]byte, error) {
	start, end := domain.SliceBounds(i, len(t.payload), t.sliceSize)
	return codec.Encode(domain.Package{
		Dest:      t.dest,
		From:      t.from,
		Type:      t.typ,
		Slices:    uint16(t.slices),
		SliceNum:  uint16(i),
		PackageID: t.packageID,
		Timestamp: t.f.clock.NodeTime(),
		Payload:   t.payload[start:end],
	})
}

func (t *Transfer) finish(err error) {
	t.finished = true
	t.err = err

	if err != nil {
		t.f.logger.Warn("transfer failed",
			ports.Uint32("node", t.conn.NodeID),
			ports.Uint32("dest", t.dest),
			ports.Uint32("package_id", t.packageID),
			ports.Int("submitted", t.next),
			ports.Int("slices", t.slices+1),
			ports.Err(err),
		)
	}
	t.f.observer.OnTransferDone(t.conn.NodeID, t.slices+1, err)

	close(t.doneCh)
	callbacks := t.callbacks
	t.callbacks = nil
	for _, fn := range callbacks {
		fn(err)
	}
}
