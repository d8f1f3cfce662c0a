package heap

import (
	"log"

	"github.com/heaplab/regionheap/hooking"
)

// Builder builds heaps.
type Builder struct {
	regionCount     int
	regionSize      uint64
	minCapacity     uint64
	softMaxCapacity uint64
	backing         Backing
	timeSource      func() float64
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		regionCount: 64,
		regionSize:  1 * MB,
		timeSource:  ElapsedTime,
	}
}

// WithRegionCount sets the number of regions in the region table.
func (b Builder) WithRegionCount(n int) Builder {
	b.regionCount = n
	return b
}

// WithRegionSize sets the size of each region in bytes.
func (b Builder) WithRegionSize(size uint64) Builder {
	b.regionSize = size
	return b
}

// WithMinCapacity sets the committed capacity the heap never shrinks below.
func (b Builder) WithMinCapacity(bytes uint64) Builder {
	b.minCapacity = bytes
	return b
}

// WithSoftMaxCapacity sets the initial soft max capacity. When not set, the
// soft max capacity defaults to the max capacity.
func (b Builder) WithSoftMaxCapacity(bytes uint64) Builder {
	b.softMaxCapacity = bytes
	return b
}

// WithBacking sets the backing that provides the physical memory behind
// committed regions.
func (b Builder) WithBacking(backing Backing) Builder {
	b.backing = backing
	return b
}

// WithTimeSource sets the function used to read the current elapsed time.
func (b Builder) WithTimeSource(now func() float64) Builder {
	b.timeSource = now
	return b
}

// Build builds a new Heap. All regions start empty and uncommitted.
func (b Builder) Build(name string) *Heap {
	if b.regionCount <= 0 {
		log.Panic("heap must have at least one region")
	}

	if b.regionSize == 0 {
		log.Panic("region size must not be 0")
	}

	h := &Heap{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		regionSize:   b.regionSize,
		minCapacity:  b.minCapacity,
		maxCapacity:  uint64(b.regionCount) * b.regionSize,
		backing:      b.backing,
		now:          b.timeSource,
	}

	if h.minCapacity > h.maxCapacity {
		log.Panicf("min capacity %d exceeds max capacity %d",
			h.minCapacity, h.maxCapacity)
	}

	if h.backing == nil {
		h.backing = NopBacking{}
	}

	softMax := b.softMaxCapacity
	if softMax == 0 {
		softMax = h.maxCapacity
	}
	h.softMaxCapacity.Store(softMax)

	h.regions = make([]*Region, b.regionCount)
	for i := range h.regions {
		h.regions[i] = &Region{heap: h, index: i}
	}

	return h
}
