package ports

// SendObserver receives events from the send pipeline.
// All methods are called from the scheduler goroutine and must not block.
type SendObserver interface {
	// OnSent is called when a package was handed to the transport.
	// queued is true when the package waited in the connection queue first.
	OnSent(nodeID uint32, bytes int, queued bool)

	// OnQueued is called when a package entered the connection queue.
	OnQueued(nodeID uint32, depth int)

	// OnDropped is called when a package was rejected or discarded.
	OnDropped(nodeID uint32, reason error)

	// OnEvicted is called when memory pressure discarded a whole queue.
	OnEvicted(nodeID uint32, discarded int)

	// OnTransferDone is called when every slice of a transfer was submitted
	// or the transfer failed.
	OnTransferDone(nodeID uint32, slices int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnSent(uint32, int, bool)          {}
func (NopObserver) OnQueued(uint32, int)              {}
func (NopObserver) OnDropped(uint32, error)           {}
func (NopObserver) OnEvicted(uint32, int)             {}
func (NopObserver) OnTransferDone(uint32, int, error) {}
