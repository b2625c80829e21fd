// Package meshlink exposes the mesh wire format.
//
// Receivers and tooling that need to read or produce packages without
// running a node use this package; the node itself lives in
// github.com/bft-labs/meshlink/pkg/meshlink.
//
// Example usage:
//
//	p, err := meshlink.Decode(wire)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if p.Last() {
//	    // reassemble the transfer identified by p.PackageID
//	}
package meshlink

import (
	"github.com/bft-labs/meshlink/internal/codec"
	"github.com/bft-labs/meshlink/internal/domain"
)

// Package is one wire package: a single slice of a logical message.
type Package = domain.Package

// PackageType tags a package with its protocol role.
type PackageType = domain.PackageType

// Encode serializes p to its JSON wire representation.
func Encode(p Package) ([]byte, error) {
	return codec.Encode(p)
}

// Decode parses a wire package.
func Decode(wire []byte) (Package, error) {
	return codec.Decode(wire)
}

// LastSliceIndex returns the index of the last slice a message of length
// bytes is split into with slices of size bytes.
func LastSliceIndex(length, size int) int {
	return domain.SliceCount(length, size)
}
