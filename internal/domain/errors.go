package domain

import "errors"

// Send path errors. They are returned by the application layer and can be
// checked with errors.Is.
var (
	// ErrNoRoute is returned when the destination has no active connection.
	ErrNoRoute = errors.New("meshlink: no route to destination")

	// ErrOversizedPackage is returned when a single encoded package exceeds
	// Limits.MaxPackageBytes. The package is neither sent nor queued.
	ErrOversizedPackage = errors.New("meshlink: package exceeds wire size limit")

	// ErrTooManySlices is returned when a message needs more slices than
	// Limits.MaxBundleSlices allows. No slice is sent.
	ErrTooManySlices = errors.New("meshlink: message needs too many slices")

	// ErrQueueFull is returned when a connection queue is at capacity.
	ErrQueueFull = errors.New("meshlink: send queue full")

	// ErrMemoryPressure is returned when free memory is below the floor.
	// The connection queue has been discarded.
	ErrMemoryPressure = errors.New("meshlink: free memory below floor")

	// ErrTransportRejected is returned when the transport refused an
	// immediate send. The package is lost.
	ErrTransportRejected = errors.New("meshlink: transport rejected send")

	// ErrMalformedPayload is returned when a node sync payload is not a JSON list.
	ErrMalformedPayload = errors.New("meshlink: malformed payload")

	// ErrUnknownPackageType is returned for type tags outside the protocol set.
	ErrUnknownPackageType = errors.New("meshlink: unknown package type")

	// ErrConnectionClosed is returned when a connection was removed while a
	// transfer was still using it.
	ErrConnectionClosed = errors.New("meshlink: connection closed")

	// ErrInvalidLimits is returned by Limits.Validate.
	ErrInvalidLimits = errors.New("meshlink: invalid limits")
)

// Lifecycle errors.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running node.
	ErrAlreadyRunning = errors.New("meshlink: already running")

	// ErrNotRunning is returned when an operation needs a running node.
	ErrNotRunning = errors.New("meshlink: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("meshlink: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("meshlink: invalid configuration")
)
