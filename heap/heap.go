// Package heap provides a region-based managed heap abstraction. The heap
// owns a fixed table of equally sized regions, the global heap lock that
// serializes all region state transitions, and the committed-bytes
// accounting that capacity policies are computed from.
package heap

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/heaplab/regionheap/hooking"
)

// HookPosCapacityChanged is triggered after the committed capacity of the
// heap changed. The hook context item is a CapacitySnapshot.
var HookPosCapacityChanged = &hooking.HookPos{Name: "CapacityChanged"}

// ErrOutOfRegions is returned when an allocation request cannot be satisfied
// by any region.
var ErrOutOfRegions = errors.New("no region available")

// AllocKind tells the heap which end of the region table an allocation should
// be served from.
type AllocKind int

const (
	// ForMutator allocations are served from the beginning of the region
	// table. The application allocates here, so memory near the start stays
	// committed and warm.
	ForMutator AllocKind = iota

	// ForGC allocations are served from the end of the region table. The
	// collector allocates rarely, so the far end is the cheaper place to give
	// memory back from.
	ForGC
)

// A CapacitySnapshot is a point-in-time view of the heap capacity numbers.
// It is queried on demand and never cached across decision passes.
type CapacitySnapshot struct {
	Committed       uint64 `json:"committed"`
	MinCapacity     uint64 `json:"min_capacity"`
	SoftMaxCapacity uint64 `json:"soft_max_capacity"`
	MaxCapacity     uint64 `json:"max_capacity"`
	RegionSize      uint64 `json:"region_size"`
	RegionCount     int    `json:"region_count"`
}

// A Heap is a region-based managed heap. The region table is fixed at build
// time; regions move between uncommitted, committed-empty, and regular states
// under the heap lock.
type Heap struct {
	*hooking.HookableBase
	name string

	// mu is the global heap lock. It is the single serialization point for
	// all region state transitions.
	mu sync.Mutex

	regions    []*Region
	regionSize uint64

	minCapacity uint64
	maxCapacity uint64

	softMaxCapacity atomic.Uint64
	committed       atomic.Uint64

	backing Backing
	now     func() float64
}

// Name returns the name of the heap.
func (h *Heap) Name() string {
	return h.name
}

// RegionCount returns the number of regions in the region table.
func (h *Heap) RegionCount() int {
	return len(h.regions)
}

// Region returns the region at the given index.
func (h *Heap) Region(i int) *Region {
	return h.regions[i]
}

// RegionSize returns the size of every region in bytes.
func (h *Heap) RegionSize() uint64 {
	return h.regionSize
}

// Committed returns the number of bytes currently backed by physical memory.
// The value may be read without holding the heap lock.
func (h *Heap) Committed() uint64 {
	return h.committed.Load()
}

// MinCapacity returns the committed capacity the heap never shrinks below.
func (h *Heap) MinCapacity() uint64 {
	return h.minCapacity
}

// MaxCapacity returns the total capacity of the region table.
func (h *Heap) MaxCapacity() uint64 {
	return h.maxCapacity
}

// SoftMaxCapacity returns the capacity ceiling that proactive shrinking
// targets.
func (h *Heap) SoftMaxCapacity() uint64 {
	return h.softMaxCapacity.Load()
}

// SetSoftMaxCapacity updates the soft max capacity, clamping the value to
// the [min capacity, max capacity] range. It returns true if the effective
// value changed.
func (h *Heap) SetSoftMaxCapacity(v uint64) bool {
	if v < h.minCapacity {
		v = h.minCapacity
	}

	if v > h.maxCapacity {
		v = h.maxCapacity
	}

	old := h.softMaxCapacity.Load()
	if v == old {
		return false
	}

	h.softMaxCapacity.Store(v)
	log.Printf("%s: soft max capacity %d -> %d bytes", h.name, old, v)

	return true
}

// Lock acquires the global heap lock.
func (h *Heap) Lock() {
	h.mu.Lock()
}

// Unlock releases the global heap lock.
func (h *Heap) Unlock() {
	h.mu.Unlock()
}

// NotifyCapacityChanged tells the observers of the heap that the committed
// capacity changed.
func (h *Heap) NotifyCapacityChanged() {
	h.InvokeHook(hooking.HookCtx{
		Domain: h,
		Pos:    HookPosCapacityChanged,
		Item:   h.Snapshot(),
	})
}

// Snapshot returns the current capacity numbers.
func (h *Heap) Snapshot() CapacitySnapshot {
	return CapacitySnapshot{
		Committed:       h.Committed(),
		MinCapacity:     h.minCapacity,
		SoftMaxCapacity: h.SoftMaxCapacity(),
		MaxCapacity:     h.maxCapacity,
		RegionSize:      h.regionSize,
		RegionCount:     len(h.regions),
	}
}

// AllocateRegion finds a free region, commits it if needed, and marks it as
// holding live data. Mutator allocations scan from the beginning of the
// region table, GC allocations from the end. It returns ErrOutOfRegions when
// every region is in use.
func (h *Heap) AllocateRegion(kind AllocKind) (*Region, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r := h.findFreeRegion(kind, RegionEmptyCommitted); r != nil {
		r.MakeRegular()
		return r, nil
	}

	if r := h.findFreeRegion(kind, RegionEmptyUncommitted); r != nil {
		r.MakeCommitted()
		r.MakeRegular()
		return r, nil
	}

	return nil, ErrOutOfRegions
}

// FreeRegion returns a regular region to the empty-committed state, stamping
// the time it became empty.
func (h *Heap) FreeRegion(r *Region) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r.MakeEmpty()
}

// findFreeRegion scans the region table for a region in the wanted state.
// The scan direction depends on the allocation kind.
func (h *Heap) findFreeRegion(kind AllocKind, wanted RegionState) *Region {
	n := len(h.regions)

	for i := 0; i < n; i++ {
		idx := i
		if kind == ForGC {
			idx = n - 1 - i
		}

		r := h.regions[idx]
		if r.State() == wanted {
			return r
		}
	}

	return nil
}

// commitRegion backs a region with physical memory and grows the committed
// accounting. Called with the heap lock held.
func (h *Heap) commitRegion(r *Region) {
	offset := uint64(r.index) * h.regionSize

	err := h.backing.Commit(offset, h.regionSize)
	if err != nil {
		log.Panicf("%s: committing region %d: %v", h.name, r.index, err)
	}

	h.committed.Add(h.regionSize)
}

// uncommitRegion returns the memory behind a region to the operating system
// and shrinks the committed accounting. Called with the heap lock held.
func (h *Heap) uncommitRegion(r *Region) {
	offset := uint64(r.index) * h.regionSize

	err := h.backing.Uncommit(offset, h.regionSize)
	if err != nil {
		log.Panicf("%s: uncommitting region %d: %v", h.name, r.index, err)
	}

	h.committed.Add(^(h.regionSize - 1))
}
