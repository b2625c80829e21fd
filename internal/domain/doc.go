// Package domain contains the core domain entities and value objects for meshlink.
//
// This package is the innermost layer of the architecture. It has no
// dependencies on infrastructure concerns (transport, logging, configuration)
// and contains only the rules of the mesh package protocol.
//
// # Entities
//
//   - [Package]: one wire package, a single slice of a logical message
//   - [PackageType]: the closed set of package type tags
//   - [Limits]: protocol constants that bound slicing and queueing
//
// # Slicing
//
// A logical message of L bytes is carried by [SliceCount]+1 packages that
// share a PackageID. The encoded Slices field is the index of the last slice,
// so a message that fits in one slice encodes Slices = 0.
package domain
