package app

import (
	"fmt"

	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// ConnectionTable holds the live connections of a node in insertion order.
type ConnectionTable struct {
	order []*Connection
	byID  map[uint32]*Connection
}

// NewConnectionTable creates an empty table.
func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{byID: make(map[uint32]*Connection)}
}

// Add inserts c. It returns the connection c replaced, if any; the
// replaced connection keeps its place in the iteration order.
func (t *ConnectionTable) Add(c *Connection) (replaced *Connection) {
	if old, ok := t.byID[c.NodeID]; ok {
		for i, o := range t.order {
			if o == old {
				t.order[i] = c
				break
			}
		}
		t.byID[c.NodeID] = c
		return old
	}
	t.order = append(t.order, c)
	t.byID[c.NodeID] = c
	return nil
}

// Remove deletes the connection to nodeID.
func (t *ConnectionTable) Remove(nodeID uint32) (*Connection, bool) {
	c, ok := t.byID[nodeID]
	if !ok {
		return nil, false
	}
	delete(t.byID, nodeID)
	for i, o := range t.order {
		if o == c {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return c, true
}

// Find returns the connection whose neighbour is nodeID.
func (t *ConnectionTable) Find(nodeID uint32) (*Connection, bool) {
	c, ok := t.byID[nodeID]
	return c, ok
}

// All returns a snapshot of the connections in insertion order.
func (t *ConnectionTable) All() []*Connection {
	out := make([]*Connection, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of connections.
func (t *ConnectionTable) Len() int {
	return len(t.order)
}

// Dispatcher routes messages to the connection of their destination.
// Only direct neighbours are reachable.
type Dispatcher struct {
	conns      *ConnectionTable
	fragmenter *Fragmenter
	logger     ports.Logger
}

// NewDispatcher creates a dispatcher over conns.
func NewDispatcher(conns *ConnectionTable, fragmenter *Fragmenter, logger ports.Logger) *Dispatcher {
	return &Dispatcher{
		conns:      conns,
		fragmenter: fragmenter,
		logger:     logger,
	}
}

// SendMessage sends msg to the neighbour destID.
func (d *Dispatcher) SendMessage(destID, fromID uint32, t domain.PackageType, msg string, priority bool) (*Transfer, error) {
	c, ok := d.conns.Find(destID)
	if !ok {
		d.logger.Debug("no route to destination",
			ports.Uint32("dest", destID),
			ports.String("type", t.String()),
		)
		return nil, fmt.Errorf("%w: node %d", domain.ErrNoRoute, destID)
	}
	return d.SendTo(c, destID, fromID, t, msg, priority)
}

// SendTo sends msg over c, bypassing the route lookup. destID is written
// into every package and need not be c's neighbour.
func (d *Dispatcher) SendTo(c *Connection, destID, fromID uint32, t domain.PackageType, msg string, priority bool) (*Transfer, error) {
	return d.fragmenter.Fragment(c, destID, fromID, t, msg, priority)
}
