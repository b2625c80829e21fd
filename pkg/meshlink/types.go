package meshlink

import (
	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// PackageType tags a package with its protocol role.
type PackageType = domain.PackageType

// Package types of the mesh protocol.
const (
	TypeDrop            = domain.TypeDrop
	TypeTimeSync        = domain.TypeTimeSync
	TypeNodeSyncRequest = domain.TypeNodeSyncRequest
	TypeNodeSyncReply   = domain.TypeNodeSyncReply
	TypeControl         = domain.TypeControl
	TypeBroadcast       = domain.TypeBroadcast
	TypeSingle          = domain.TypeSingle
)

// Limits bounds slicing and queueing on a node.
type Limits = domain.Limits

// DefaultLimits returns the limits of the reference protocol.
func DefaultLimits() Limits {
	return domain.DefaultLimits()
}

// Interfaces implemented by pluggable dependencies.
type (
	// Logger is the interface for structured logging.
	Logger = ports.Logger

	// LogField represents a structured log field.
	LogField = ports.Field

	// Link identifies a neighbour for a Transport.
	Link = ports.Link

	// Transport delivers encoded packages to neighbours.
	Transport = ports.Transport

	// CompletionSink receives transport completion signals.
	CompletionSink = ports.CompletionSink

	// Clock supplies node time for package timestamps.
	Clock = ports.Clock

	// MemoryGauge reports free memory to admission control.
	MemoryGauge = ports.MemoryGauge

	// SendObserver receives send pipeline events.
	SendObserver = ports.SendObserver
)

// Errors returned by Node operations. Check them with errors.Is.
var (
	ErrNoRoute            = domain.ErrNoRoute
	ErrOversizedPackage   = domain.ErrOversizedPackage
	ErrTooManySlices      = domain.ErrTooManySlices
	ErrQueueFull          = domain.ErrQueueFull
	ErrMemoryPressure     = domain.ErrMemoryPressure
	ErrTransportRejected  = domain.ErrTransportRejected
	ErrMalformedPayload   = domain.ErrMalformedPayload
	ErrUnknownPackageType = domain.ErrUnknownPackageType
	ErrConnectionClosed   = domain.ErrConnectionClosed
	ErrInvalidLimits      = domain.ErrInvalidLimits
	ErrInvalidConfig      = domain.ErrInvalidConfig
	ErrAlreadyRunning     = domain.ErrAlreadyRunning
	ErrNotRunning         = domain.ErrNotRunning
	ErrShutdownTimeout    = domain.ErrShutdownTimeout
)
