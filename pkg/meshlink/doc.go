// Package meshlink provides the outbound transport layer of a mesh node.
//
// A [Node] keeps point-to-point connections to its neighbours and turns
// logical messages into wire packages: it slices long messages, queues
// packages per connection while the transport is busy, gives priority
// traffic the head of the queue, bounds queue depth and discards queued
// work when free memory runs low.
//
// # Basic Usage
//
//	node, err := meshlink.New(meshlink.Config{NodeID: 1},
//	    meshlink.WithTransport(transport),
//	    meshlink.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	if err := node.AddConnection(ctx, 2, "tcp://10.0.0.2:5670"); err != nil {
//	    log.Fatal(err)
//	}
//	err = node.SendMessage(ctx, 2, meshlink.TypeSingle, "hello", false)
//
// # Transports
//
// A [Transport] accepts one package per neighbour at a time and reports
// completion through [Node.SendComplete]. Packages submitted while a send
// is in flight wait in the connection queue. Without [WithTransport], the
// node uses an in-memory transport that completes every send at once.
//
// # Slicing
//
// Messages longer than Limits.MaxSliceBytes travel as several packages
// sharing one package id. Slices are submitted in order, and a slice only
// enters the queue once the previous one has left it. A message whose last
// slice index would reach Limits.MaxBundleSlices is rejected up front with
// [ErrTooManySlices].
//
// # Lifecycle States
//
// A Node can be in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Operations other than
// Status and SendComplete require a started node and return [ErrNotRunning]
// otherwise.
package meshlink
