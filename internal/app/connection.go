package app

import "github.com/bft-labs/meshlink/internal/ports"

// Connection is one neighbour link and its outbound queue.
//
// A connection is Ready when the transport can take one more package and
// Busy while a send is in flight. Only the SendQueue and the transport
// completion path mutate the queue.
type Connection struct {
	NodeID uint32
	Link   ports.Link

	sendReady bool
	queue     [][]byte
	closed    bool

	// drainWaiters run once the queue is empty.
	drainWaiters []func()
}

// NewConnection creates a Ready connection to link.
func NewConnection(link ports.Link) *Connection {
	return &Connection{
		NodeID:    link.NodeID,
		Link:      link,
		sendReady: true,
	}
}

// SendReady reports whether the transport can take a package right now.
func (c *Connection) SendReady() bool {
	return c.sendReady
}

// QueueLen returns the number of packages waiting for the transport.
func (c *Connection) QueueLen() int {
	return len(c.queue)
}

// Queued returns a copy of the waiting packages, head first.
func (c *Connection) Queued() [][]byte {
	out := make([][]byte, len(c.queue))
	copy(out, c.queue)
	return out
}

// Closed reports whether the connection was removed from its table.
func (c *Connection) Closed() bool {
	return c.closed
}

// pushFront inserts wire at the head of the queue.
func (c *Connection) pushFront(wire []byte) {
	c.queue = append(c.queue, nil)
	copy(c.queue[1:], c.queue)
	c.queue[0] = wire
}

// pushBack appends wire to the tail of the queue.
func (c *Connection) pushBack(wire []byte) {
	c.queue = append(c.queue, wire)
}

// popFront removes and returns the head of the queue.
func (c *Connection) popFront() ([]byte, bool) {
	if len(c.queue) == 0 {
		return nil, false
	}
	wire := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		c.queue = nil
	}
	return wire, true
}

// dropBack removes the tail of the queue.
func (c *Connection) dropBack() {
	if len(c.queue) == 0 {
		return
	}
	c.queue[len(c.queue)-1] = nil
	c.queue = c.queue[:len(c.queue)-1]
}

// discard empties the queue and returns how many packages were dropped.
func (c *Connection) discard() int {
	n := len(c.queue)
	c.queue = nil
	return n
}

// waitDrain registers fn to run once the queue is empty.
func (c *Connection) waitDrain(fn func()) {
	c.drainWaiters = append(c.drainWaiters, fn)
}

// takeDrainWaiters returns and clears the registered drain waiters.
func (c *Connection) takeDrainWaiters() []func() {
	w := c.drainWaiters
	c.drainWaiters = nil
	return w
}
