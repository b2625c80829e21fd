// Package zmq carries mesh packages between nodes over ZeroMQ.
//
// Each neighbour gets a DEALER socket and a writer goroutine that accepts
// one package at a time, matching the one-in-flight model of the send
// queue. Inbound packages arrive on a ROUTER socket.
package zmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/bft-labs/meshlink/internal/ports"
)

var (
	// ErrUnknownPeer is returned when sending to a node that was never connected.
	ErrUnknownPeer = errors.New("zmq: unknown peer")

	// ErrLinkBusy is returned when a package is still in flight on the link.
	ErrLinkBusy = errors.New("zmq: link busy")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("zmq: transport closed")
)

// Config configures a Transport.
type Config struct {
	// NodeID identifies this node's sockets to peers.
	NodeID uint32

	// DialAttempts bounds connection attempts per peer. Zero means retry
	// until the context passed to Connect is done.
	DialAttempts int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Transport implements ports.Transport over ZeroMQ DEALER sockets.
type Transport struct {
	cfg    Config
	sink   ports.CompletionSink
	logger ports.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	peers  map[uint32]*peer
	router zmq4.Socket
	closed bool
	wg     sync.WaitGroup
}

type peer struct {
	link   ports.Link
	socket zmq4.Socket
	out    chan []byte
	cancel context.CancelFunc
}

// NewTransport creates a transport reporting send completions to sink.
func NewTransport(cfg Config, sink ports.CompletionSink, logger ports.Logger) *Transport {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[uint32]*peer),
	}
}

// SetSink replaces the completion sink. It must be called before the
// first Send.
func (t *Transport) SetSink(sink ports.CompletionSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

func (t *Transport) identity() zmq4.SocketIdentity {
	return zmq4.SocketIdentity(strconv.FormatUint(uint64(t.cfg.NodeID), 10))
}

// Connect dials link.Addr, retrying with backoff, and starts the writer
// for link.NodeID. An existing link to the same node is replaced.
func (t *Transport) Connect(ctx context.Context, link ports.Link) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	bo := newBackoff(t.cfg.BackoffInitial, t.cfg.BackoffMax)
	var socket zmq4.Socket
	for attempt := 1; ; attempt++ {
		socket = zmq4.NewDealer(t.ctx, zmq4.WithID(t.identity()))
		err := socket.Dial(link.Addr)
		if err == nil {
			break
		}
		_ = socket.Close()

		t.logger.Warn("dial failed",
			ports.Uint32("node", link.NodeID),
			ports.String("addr", link.Addr),
			ports.Int("attempt", attempt),
			ports.Err(err),
		)
		if t.cfg.DialAttempts > 0 && attempt >= t.cfg.DialAttempts {
			return fmt.Errorf("dial node %d at %s: %w", link.NodeID, link.Addr, err)
		}
		if werr := bo.Wait(ctx); werr != nil {
			return fmt.Errorf("dial node %d at %s: %w", link.NodeID, link.Addr, werr)
		}
	}

	pctx, pcancel := context.WithCancel(t.ctx)
	p := &peer{
		link:   link,
		socket: socket,
		out:    make(chan []byte, 1),
		cancel: pcancel,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pcancel()
		_ = socket.Close()
		return ErrClosed
	}
	old := t.peers[link.NodeID]
	t.peers[link.NodeID] = p
	t.wg.Add(1)
	go t.writer(pctx, p)
	t.mu.Unlock()

	if old != nil {
		old.stop()
	}

	t.logger.Info("connected to peer",
		ports.Uint32("node", link.NodeID),
		ports.String("addr", link.Addr),
	)
	return nil
}

// Send implements ports.Transport. It hands wire to the link's writer and
// returns without waiting for the network; completion is reported to the
// sink once the socket took the package.
func (t *Transport) Send(link ports.Link, wire []byte) error {
	t.mu.Lock()
	p, ok := t.peers[link.NodeID]
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: node %d", ErrUnknownPeer, link.NodeID)
	}

	select {
	case p.out <- wire:
		return nil
	default:
		return fmt.Errorf("%w: node %d", ErrLinkBusy, link.NodeID)
	}
}

func (t *Transport) writer(ctx context.Context, p *peer) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case wire := <-p.out:
			if err := p.socket.Send(zmq4.NewMsg(wire)); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.logger.Error("socket send failed",
					ports.Uint32("node", p.link.NodeID),
					ports.Err(err),
				)
			}

			// A replaced peer no longer owns the node's in-flight slot.
			t.mu.Lock()
			sink := t.sink
			current := t.peers[p.link.NodeID] == p
			t.mu.Unlock()
			if sink != nil && current {
				sink.SendComplete(p.link.NodeID)
			}
		}
	}
}

// Disconnect closes the link to nodeID.
func (t *Transport) Disconnect(nodeID uint32) {
	t.mu.Lock()
	p, ok := t.peers[nodeID]
	delete(t.peers, nodeID)
	t.mu.Unlock()

	if ok {
		p.stop()
		t.logger.Info("disconnected from peer", ports.Uint32("node", nodeID))
	}
}

func (p *peer) stop() {
	p.cancel()
	_ = p.socket.Close()
}

// Listen binds a ROUTER socket at addr and calls handle for every inbound
// package until the transport is closed. It returns the bound address.
func (t *Transport) Listen(addr string, handle func(wire []byte)) (string, error) {
	router := zmq4.NewRouter(t.ctx, zmq4.WithID(t.identity()))
	if err := router.Listen(addr); err != nil {
		_ = router.Close()
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = router.Close()
		return "", ErrClosed
	}
	t.router = router
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		for {
			msg, err := router.Recv()
			if err != nil {
				if t.ctx.Err() != nil {
					return
				}
				t.logger.Debug("receive failed", ports.Err(err))
				continue
			}
			if len(msg.Frames) == 0 {
				continue
			}
			// ROUTER prefixes the sender identity frame.
			handle(msg.Frames[len(msg.Frames)-1])
		}
	}()

	bound := addr
	if a := router.Addr(); a != nil {
		bound = "tcp://" + a.String()
	}
	t.logger.Info("listening", ports.String("addr", bound))
	return bound, nil
}

// Close disconnects every peer, stops listening and waits for the
// transport goroutines.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	peers := t.peers
	t.peers = make(map[uint32]*peer)
	router := t.router
	t.mu.Unlock()

	t.cancel()
	for _, p := range peers {
		p.stop()
	}
	if router != nil {
		_ = router.Close()
	}
	t.wg.Wait()
	return nil
}
