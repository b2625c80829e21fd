package app

import (
	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// Broadcaster sends one message to every neighbour.
type Broadcaster struct {
	conns      *ConnectionTable
	dispatcher *Dispatcher
	logger     ports.Logger
}

// NewBroadcaster creates a broadcaster over conns.
func NewBroadcaster(conns *ConnectionTable, dispatcher *Dispatcher, logger ports.Logger) *Broadcaster {
	return &Broadcaster{
		conns:      conns,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Broadcast sends msg to every connection except exclude, addressing each
// copy to the neighbour it travels to. exclude may be nil.
func (b *Broadcaster) Broadcast(fromID uint32, t domain.PackageType, msg string, exclude *Connection) *Fanout {
	conns := b.conns.All()
	fo := &Fanout{
		reachable: len(conns) > 0,
		doneCh:    make(chan struct{}),
	}

	for _, c := range conns {
		if c == exclude {
			continue
		}
		fo.participants++
		fo.pending++

		tr, err := b.dispatcher.SendTo(c, c.NodeID, fromID, t, msg, false)
		if err != nil {
			fo.settle(err)
			continue
		}
		tr.OnDone(fo.settle)
	}

	b.logger.Debug("broadcasting message",
		ports.String("type", t.String()),
		ports.Int("bytes", len(msg)),
		ports.Int("connections", len(conns)),
		ports.Int("participants", fo.participants),
	)

	fo.sealed = true
	fo.maybeFinish()
	return fo
}

// Fanout aggregates the transfers of one broadcast.
// Like Transfer it belongs to the scheduler; only Done is safe elsewhere.
type Fanout struct {
	reachable    bool
	participants int
	pending      int
	failed       int
	sealed       bool
	finished     bool
	callbacks    []func(ok bool)
	doneCh       chan struct{}
}

// OK reports whether the node had at least one connection and no
// participant transfer failed. Meaningful once finished.
func (f *Fanout) OK() bool {
	return f.reachable && f.failed == 0
}

// Participants returns the number of connections the message was sent to.
func (f *Fanout) Participants() int {
	return f.participants
}

// Failed returns the number of participant transfers that failed.
func (f *Fanout) Failed() int {
	return f.failed
}

// Finished reports whether every participant transfer has finished.
func (f *Fanout) Finished() bool {
	return f.finished
}

// Done is closed when every participant transfer has finished.
func (f *Fanout) Done() <-chan struct{} {
	return f.doneCh
}

// OnDone registers fn to run with the outcome once the broadcast finished.
func (f *Fanout) OnDone(fn func(ok bool)) {
	if f.finished {
		fn(f.OK())
		return
	}
	f.callbacks = append(f.callbacks, fn)
}

func (f *Fanout) settle(err error) {
	f.pending--
	if err != nil {
		f.failed++
	}
	f.maybeFinish()
}

func (f *Fanout) maybeFinish() {
	if f.finished || !f.sealed || f.pending > 0 {
		return
	}
	f.finished = true
	close(f.doneCh)

	ok := f.OK()
	callbacks := f.callbacks
	f.callbacks = nil
	for _, fn := range callbacks {
		fn(ok)
	}
}
