// Package uncommit implements the memory-region lifecycle controller of the
// heap: a background goroutine that periodically finds committed regions that
// have been empty long enough and returns their physical memory to the
// operating system, without stalling threads that allocate concurrently.
package uncommit

import (
	"github.com/heaplab/regionheap/heap"
)

// Heap is the view of the region heap that the uncommit subsystem needs.
// *heap.Heap implements it; tests substitute mocks.
type Heap interface {
	// Committed returns the bytes currently backed by physical memory. Safe
	// to read without holding the heap lock.
	Committed() uint64

	// MinCapacity returns the committed capacity the heap never shrinks
	// below.
	MinCapacity() uint64

	// SoftMaxCapacity returns the capacity ceiling that proactive shrinking
	// targets.
	SoftMaxCapacity() uint64

	// RegionSize returns the size of every region in bytes.
	RegionSize() uint64

	// RegionCount returns the number of regions in the region table.
	RegionCount() int

	// Region returns the region at the given index.
	Region(i int) *heap.Region

	// Lock acquires the global heap lock, the sole serialization point for
	// region state transitions.
	Lock()

	// Unlock releases the global heap lock.
	Unlock()

	// NotifyCapacityChanged tells the heap owner that the committed capacity
	// changed.
	NotifyCapacityChanged()
}
