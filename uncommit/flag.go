package uncommit

import "sync/atomic"

// A SharedFlag is a one-shot latch shared between the threads that request
// uncommit work and the controller that consumes the requests. Multiple Set
// calls before a TryUnset collapse into a single pending activation.
type SharedFlag struct {
	v atomic.Bool
}

// Set raises the flag. Setting an already-set flag has no effect.
func (f *SharedFlag) Set() {
	f.v.Store(true)
}

// TryUnset consumes the flag. It returns true if the flag was set, and
// guarantees that concurrent consumers observe at most one activation.
func (f *SharedFlag) TryUnset() bool {
	return f.v.CompareAndSwap(true, false)
}

// IsSet reports whether the flag is raised without consuming it.
func (f *SharedFlag) IsSet() bool {
	return f.v.Load()
}
