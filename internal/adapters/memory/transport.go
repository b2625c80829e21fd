// Package memory provides an in-process transport for tests and tooling.
package memory

import (
	"errors"
	"sync"

	"github.com/bft-labs/meshlink/internal/ports"
)

// ErrLinkDown is returned for links marked down with SetDown.
var ErrLinkDown = errors.New("memory: link down")

// Sent is one package handed to the transport.
type Sent struct {
	Link ports.Link
	Wire []byte
}

// Transport records every package it is given. With a completion sink set
// via AutoComplete, each send is acknowledged immediately on a separate
// goroutine; otherwise the caller acknowledges sends itself.
type Transport struct {
	mu   sync.Mutex
	sent []Sent
	down map[uint32]bool
	sink ports.CompletionSink
}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	return &Transport{down: make(map[uint32]bool)}
}

// AutoComplete acknowledges every successful send to sink.
func (t *Transport) AutoComplete(sink ports.CompletionSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Send implements ports.Transport.
func (t *Transport) Send(link ports.Link, wire []byte) error {
	t.mu.Lock()
	if t.down[link.NodeID] {
		t.mu.Unlock()
		return ErrLinkDown
	}
	t.sent = append(t.sent, Sent{Link: link, Wire: append([]byte(nil), wire...)})
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		go sink.SendComplete(link.NodeID)
	}
	return nil
}

// SetDown makes sends to nodeID fail.
func (t *Transport) SetDown(nodeID uint32, down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down[nodeID] = down
}

// Sent returns the packages sent so far, in order.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

// SentTo returns the packages sent to nodeID, in order.
func (t *Transport) SentTo(nodeID uint32) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]byte
	for _, s := range t.sent {
		if s.Link.NodeID == nodeID {
			out = append(out, s.Wire)
		}
	}
	return out
}

// Reset forgets the recorded packages.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}
