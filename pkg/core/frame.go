// Package core provides the small set of types shared by the rest of this
// module's embedder-facing glue: the global debug-mode flag, and
// FramePump, an optional worker-pool driver that feeds raw Ethernet frame
// bytes into a NetworkInterface without it blocking or locking.
//
// Grounded in the teacher's pkg/core/packet.go (debug-mode-conditional copy
// vs. reference semantics, folded directly into FramePump.Submit below
// rather than kept as a separate generic carrier type) and
// pkg/socket/processor.go (the worker-pool shape).
package core

import "sync/atomic"

// Global debug flag, set via configuration, controlling whether
// FramePump.Submit copies an incoming frame's backing buffer before
// queuing it.
var debugMode uint32

// SetDebugMode sets the global debug mode flag. When enabled, a frame
// submitted to a FramePump is copied before being queued, so the caller is
// free to reuse or mutate its buffer immediately after Submit returns;
// when disabled, the buffer is queued by reference for performance.
func SetDebugMode(enabled bool) {
	if enabled {
		atomic.StoreUint32(&debugMode, 1)
	} else {
		atomic.StoreUint32(&debugMode, 0)
	}
}

// IsDebugMode reports whether debug mode is enabled.
func IsDebugMode() bool {
	return atomic.LoadUint32(&debugMode) == 1
}
