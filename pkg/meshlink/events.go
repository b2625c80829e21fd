package meshlink

import "github.com/bft-labs/meshlink/internal/app"

// State is the lifecycle state of a Node.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return app.State(s).String()
}

func convertState(s app.State) State {
	return State(s)
}

// StateChangeEvent reports a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// TransferEvent reports a finished message transfer. Err is nil when
// every slice was accepted by the send queue.
type TransferEvent struct {
	NodeID uint32
	Slices int
	Err    error
}

// DropEvent reports a package rejected or discarded by the send queue.
type DropEvent struct {
	NodeID uint32
	Reason error
}

// EventHandler receives node events. Transfer and drop events are
// delivered on the node's scheduler goroutine; handlers must return
// quickly and must not call back into the Node synchronously.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnTransferDone(TransferEvent)
	OnDropped(DropEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// handle only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnTransferDone(TransferEvent)   {}
func (BaseEventHandler) OnDropped(DropEvent)            {}

// eventBridge routes lifecycle and pipeline events to the event handler
// and the user's observer.
type eventBridge struct {
	handler  EventHandler
	observer SendObserver
}

func (e *eventBridge) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventBridge) OnSent(nodeID uint32, bytes int, queued bool) {
	e.observer.OnSent(nodeID, bytes, queued)
}

func (e *eventBridge) OnQueued(nodeID uint32, depth int) {
	e.observer.OnQueued(nodeID, depth)
}

func (e *eventBridge) OnDropped(nodeID uint32, reason error) {
	e.observer.OnDropped(nodeID, reason)
	if e.handler != nil {
		e.handler.OnDropped(DropEvent{NodeID: nodeID, Reason: reason})
	}
}

func (e *eventBridge) OnEvicted(nodeID uint32, discarded int) {
	e.observer.OnEvicted(nodeID, discarded)
}

func (e *eventBridge) OnTransferDone(nodeID uint32, slices int, err error) {
	e.observer.OnTransferDone(nodeID, slices, err)
	if e.handler != nil {
		e.handler.OnTransferDone(TransferEvent{NodeID: nodeID, Slices: slices, Err: err})
	}
}
