package heap

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"
)

// RegionState is the commit/occupancy state of a region.
type RegionState uint32

const (
	// RegionEmptyUncommitted is a region that holds no live data and has no
	// physical memory behind it.
	RegionEmptyUncommitted RegionState = iota

	// RegionEmptyCommitted is a region that has physical memory behind it but
	// holds no live data. Only regions in this state can be uncommitted.
	RegionEmptyCommitted

	// RegionRegular is a region that holds live data.
	RegionRegular
)

// String returns the name of the state.
func (s RegionState) String() string {
	switch s {
	case RegionEmptyUncommitted:
		return "EmptyUncommitted"
	case RegionEmptyCommitted:
		return "EmptyCommitted"
	case RegionRegular:
		return "Regular"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(s))
	}
}

// A Region is a fixed-size slice of the heap address space. It is the unit of
// commit and uncommit.
//
// State and empty time are stored atomically so that scan paths can read them
// without holding the heap lock. Readers that intend to mutate must re-check
// the state after acquiring the heap lock, since a lock-free read may be stale
// by the time the lock is held. All state transitions require the heap lock.
type Region struct {
	heap  *Heap
	index int

	state     atomic.Uint32
	emptyTime atomic.Uint64 // float64 bits of the elapsed time
}

// Index returns the position of the region in the region table. Index 0 is
// the application-allocation end of the heap; the highest index is the
// GC-allocation end.
func (r *Region) Index() int {
	return r.index
}

// State returns the current state of the region.
func (r *Region) State() RegionState {
	return RegionState(r.state.Load())
}

// IsCommitted returns true if the region has physical memory behind it.
func (r *Region) IsCommitted() bool {
	return r.State() != RegionEmptyUncommitted
}

// IsEmptyCommitted returns true if the region is committed and holds no live
// data.
func (r *Region) IsEmptyCommitted() bool {
	return r.State() == RegionEmptyCommitted
}

// EmptyTime returns the elapsed time at which the region last became empty.
// The value is only meaningful while the region is empty and committed.
func (r *Region) EmptyTime() float64 {
	return math.Float64frombits(r.emptyTime.Load())
}

// MakeCommitted backs the region with physical memory. The region must be
// empty and uncommitted, and the heap lock must be held.
func (r *Region) MakeCommitted() {
	r.mustBeInState(RegionEmptyUncommitted, "MakeCommitted")

	r.heap.commitRegion(r)
	r.stampEmptyTime()
	r.state.Store(uint32(RegionEmptyCommitted))
}

// MakeRegular marks the region as holding live data. The region must be empty
// and committed, and the heap lock must be held.
func (r *Region) MakeRegular() {
	r.mustBeInState(RegionEmptyCommitted, "MakeRegular")

	r.state.Store(uint32(RegionRegular))
}

// MakeEmpty returns a regular region to the empty-committed state and stamps
// the time it became empty. The heap lock must be held.
func (r *Region) MakeEmpty() {
	r.mustBeInState(RegionRegular, "MakeEmpty")

	r.stampEmptyTime()
	r.state.Store(uint32(RegionEmptyCommitted))
}

// MakeUncommitted returns the physical memory behind the region to the
// operating system. The region must be empty and committed, and the heap lock
// must be held.
func (r *Region) MakeUncommitted() {
	r.mustBeInState(RegionEmptyCommitted, "MakeUncommitted")

	r.heap.uncommitRegion(r)
	r.state.Store(uint32(RegionEmptyUncommitted))
}

func (r *Region) stampEmptyTime() {
	r.emptyTime.Store(math.Float64bits(r.heap.now()))
}

func (r *Region) mustBeInState(s RegionState, op string) {
	if r.State() != s {
		log.Panicf("region %d: %s on %s region", r.index, op, r.State())
	}
}
