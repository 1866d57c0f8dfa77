package core

// Config holds per-runtime configuration for the bridge.
type Config struct {
	TimeoutMs       int64 // milliseconds a top-level call may run; 0 disables the governor
	MemoryLimitMB   int   // engine heap limit; 0 leaves it unlimited
	MaxStackSlots   int   // recursion limit in libc TLS stack slots; 0 applies the default
	GCThreshold     int64 // bytes allocated between automatic collections; 0 keeps the default, -1 disables
	DeferFinalizers bool  // queue FREE_OBJECT notifications until the outermost call returns
}

// Bytes helpers used when applying Config to an engine runtime.
const (
	KB = 1024
	MB = 1024 * KB
)
