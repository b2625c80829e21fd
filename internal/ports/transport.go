package ports

// Link identifies the remote end of a neighbour connection.
// It is an opaque handle owned by the transport; the pipeline only passes it back.
type Link struct {
	// NodeID is the mesh node id of the neighbour.
	NodeID uint32

	// Addr is the transport address of the neighbour (e.g. "tcp://10.0.0.2:5555").
	Addr string
}

// Transport is the single-send primitive of a neighbour link.
// Exactly one send may be outstanding per link; the transport signals
// completion through a CompletionSink.
type Transport interface {
	// Send hands wire to the link. It returns once the handoff happened,
	// not when the bytes reached the neighbour.
	// A non-nil error means the package was not taken.
	Send(link Link, wire []byte) error
}

// CompletionSink receives the transport's completion signal for a link.
// Implementations must be safe to call from any goroutine.
type CompletionSink interface {
	// SendComplete reports that the outstanding send to nodeID finished
	// and the link can take another package.
	SendComplete(nodeID uint32)
}
