package domain

import "fmt"

// Default protocol constants.
const (
	DefaultMaxSliceBytes   = 1000
	DefaultMaxBundleSlices = 32
	DefaultMaxQueueDepth   = 50
	DefaultMinFreeMemory   = 8 << 10 // 8KB
	DefaultMaxPackageBytes = 1400
)

// Limits bounds slicing and queueing on a node.
type Limits struct {
	// MaxSliceBytes is the largest payload carried by one slice.
	MaxSliceBytes int

	// MaxBundleSlices rejects transfers whose last-slice index reaches it.
	MaxBundleSlices int

	// MaxQueueDepth is the per-connection queue capacity.
	MaxQueueDepth int

	// MinFreeMemory is the free memory floor in bytes. Below it, queued
	// work is discarded instead of accepting more.
	MinFreeMemory uint64

	// MaxPackageBytes is the largest encoded package the transport accepts.
	MaxPackageBytes int
}

// DefaultLimits returns the limits of the reference protocol.
func DefaultLimits() Limits {
	return Limits{
		MaxSliceBytes:   DefaultMaxSliceBytes,
		MaxBundleSlices: DefaultMaxBundleSlices,
		MaxQueueDepth:   DefaultMaxQueueDepth,
		MinFreeMemory:   DefaultMinFreeMemory,
		MaxPackageBytes: DefaultMaxPackageBytes,
	}
}

// Validate checks the limits for consistency.
func (l Limits) Validate() error {
	if l.MaxSliceBytes <= 0 {
		return fmt.Errorf("%w: max slice bytes must be positive", ErrInvalidLimits)
	}
	if l.MaxBundleSlices <= 0 {
		return fmt.Errorf("%w: max bundle slices must be positive", ErrInvalidLimits)
	}
	if l.MaxQueueDepth <= 0 {
		return fmt.Errorf("%w: max queue depth must be positive", ErrInvalidLimits)
	}
	if l.MaxPackageBytes <= 0 {
		return fmt.Errorf("%w: max package bytes must be positive", ErrInvalidLimits)
	}
	if l.MaxSliceBytes >= l.MaxPackageBytes {
		return fmt.Errorf("%w: slice size %d leaves no room for the header within %d bytes",
			ErrInvalidLimits, l.MaxSliceBytes, l.MaxPackageBytes)
	}
	if l.MaxBundleSlices > 1<<16 {
		return fmt.Errorf("%w: max bundle slices %d exceeds slice index range", ErrInvalidLimits, l.MaxBundleSlices)
	}
	return nil
}
