//go:build !tinygo

package core

import "sync"

// State stands in for the saved interrupt mask on regular Go.
type State uintptr

// criticalMu serializes the polled context against the event context when
// both run as goroutines (tests, simulator). Critical sections never nest.
var criticalMu sync.Mutex

// disableInterrupts enters a critical section
func disableInterrupts() State {
	criticalMu.Lock()
	return 0
}

// restoreInterrupts leaves the critical section entered by disableInterrupts
func restoreInterrupts(state State) {
	criticalMu.Unlock()
}
