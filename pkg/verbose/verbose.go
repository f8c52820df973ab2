// Package verbose holds the global trace switch used to dump serial traffic.
package verbose

import (
	"log"
	"sync/atomic"
)

var enabled atomic.Bool

// SetEnabled sets the global verbose logging flag
func SetEnabled(enable bool) {
	enabled.Store(enable)
}

// IsEnabled returns whether verbose logging is enabled
func IsEnabled() bool {
	return enabled.Load()
}

// Printf prints a verbose log message if verbose logging is enabled
func Printf(format string, args ...interface{}) {
	if enabled.Load() {
		log.Printf("[VERBOSE] "+format, args...)
	}
}

// Frame hex-dumps one frame sent to ("tx") or received from ("rx") the receiver
func Frame(direction string, frame []byte) {
	if enabled.Load() {
		log.Printf("[VERBOSE] %s % x", direction, frame)
	}
}
