package domain

import "fmt"

// PackageType is the type tag carried in every package.
// The set is closed; widening it needs a protocol version bump.
type PackageType uint8

const (
	TypeDrop            PackageType = 3
	TypeTimeSync        PackageType = 4
	TypeNodeSyncRequest PackageType = 5
	TypeNodeSyncReply   PackageType = 6
	TypeControl         PackageType = 7
	TypeBroadcast       PackageType = 8
	TypeSingle          PackageType = 9
)

// String returns a human-readable representation of the type.
func (t PackageType) String() string {
	switch t {
	case TypeDrop:
		return "Drop"
	case TypeTimeSync:
		return "TimeSync"
	case TypeNodeSyncRequest:
		return "NodeSyncRequest"
	case TypeNodeSyncReply:
		return "NodeSyncReply"
	case TypeControl:
		return "Control"
	case TypeBroadcast:
		return "Broadcast"
	case TypeSingle:
		return "Single"
	default:
		return fmt.Sprintf("PackageType(%d)", uint8(t))
	}
}

// Valid reports whether t belongs to the protocol set.
func (t PackageType) Valid() bool {
	return t >= TypeDrop && t <= TypeSingle
}

// IsNodeSync reports whether the payload of t is a subscriber list
// carried under the "subs" key.
func (t PackageType) IsNodeSync() bool {
	return t == TypeNodeSyncRequest || t == TypeNodeSyncReply
}

// ParsePackageType converts a raw tag to a PackageType.
func ParsePackageType(v uint8) (PackageType, error) {
	t := PackageType(v)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownPackageType, v)
	}
	return t, nil
}

// Package is one wire package: a single slice of a logical message.
type Package struct {
	// Dest is the final destination node.
	Dest uint32

	// From is the original sender, not necessarily the neighbour that
	// forwarded the package.
	From uint32

	Type PackageType

	// Slices is the index of the last slice of the transfer.
	Slices uint16

	// SliceNum is the zero-based index of this slice.
	SliceNum uint16

	// PackageID is shared by every slice of one transfer.
	PackageID uint32

	// Timestamp is the sender's node time when the package was encoded.
	Timestamp uint32

	// Payload is this slice's part of the message.
	Payload string
}

// Last reports whether p is the final slice of its transfer.
func (p Package) Last() bool {
	return p.SliceNum == p.Slices
}

// SliceCount returns the index of the last slice for a message of
// length bytes split into slices of size bytes.
// A message of exactly one full slice, or an empty message, yields 0.
func SliceCount(length, size int) int {
	if size <= 0 || length <= 0 {
		return 0
	}
	n := length / size
	if length%size == 0 {
		n--
	}
	return n
}

// SliceBounds returns the byte range of slice i in a message of length bytes.
func SliceBounds(i, length, size int) (start, end int) {
	start = i * size
	end = start + size
	if end > length {
		end = length
	}
	if start > length {
		start = length
	}
	return start, end
}
