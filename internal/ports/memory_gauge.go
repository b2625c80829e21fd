package ports

// MemoryGauge reports process free memory before packages are queued.
// When free memory is below the configured floor, queued work is shed.
type MemoryGauge interface {
	// FreeMemory returns the currently available memory in bytes.
	FreeMemory() uint64
}
