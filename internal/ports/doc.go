// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the send pipeline and the outside world.
// They state what the pipeline needs from external collaborators without
// saying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Transport]: hands one encoded package to a neighbour link
//   - [CompletionSink]: receives the transport's "send finished" signal
//   - [Clock]: supplies the node time stamped into packages
//   - [MemoryGauge]: reports free memory for admission decisions
//   - [SendObserver]: receives send pipeline events (metrics)
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with zmq,
// runtime memory statistics, prometheus, zerolog and so on.
package ports
