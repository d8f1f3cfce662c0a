package uncommit

import (
	"sync"

	"github.com/heaplab/regionheap/heap"
)

// manualClock is a test time source that only moves when told to.
type manualClock struct {
	mu sync.Mutex
	t  float64
}

func (c *manualClock) now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *manualClock) advance(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t += seconds
}

// buildTestHeap builds a heap on a manual clock with one-KB regions.
func buildTestHeap(
	clock *manualClock,
	regionCount int,
	minCapacityRegions int,
) *heap.Heap {
	return heap.MakeBuilder().
		WithRegionCount(regionCount).
		WithRegionSize(1 * heap.KB).
		WithMinCapacity(uint64(minCapacityRegions) * heap.KB).
		WithTimeSource(clock.now).
		Build("Heap")
}

// commitAll commits every region of the heap at the current clock time.
func commitAll(h *heap.Heap) {
	h.Lock()
	defer h.Unlock()

	for i := 0; i < h.RegionCount(); i++ {
		h.Region(i).MakeCommitted()
	}
}

// occupy marks the given regions as holding live data.
func occupy(h *heap.Heap, indices ...int) {
	h.Lock()
	defer h.Unlock()

	for _, i := range indices {
		h.Region(i).MakeRegular()
	}
}
