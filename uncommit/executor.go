package uncommit

import (
	"log"
	"runtime"

	"github.com/heaplab/regionheap/heap"
)

// An Executor performs the committed-to-uncommitted transition on eligible
// regions under the heap lock.
type Executor struct {
	heap Heap
}

// NewExecutor creates an Executor over the given heap.
func NewExecutor(h Heap) *Executor {
	return &Executor{heap: h}
}

// Uncommit returns the memory behind eligible regions to the operating
// system and reports how many regions it uncommitted.
//
// The scan runs from the highest region index down to 0. The application
// allocates from the beginning of the region table and the collector from the
// end, so uncommitting from the end lets the application keep its warm
// committed regions while only the rarely used collector-side capacity is
// surrendered first.
//
// The heap lock is held only around a single region's re-validation and
// transition, never across the whole scan, so allocating threads are not
// starved. The scan stops as soon as uncommitting one more region would drop
// the committed bytes below shrinkUntil.
func (e *Executor) Uncommit(shrinkBefore float64, shrinkUntil uint64) int {
	count := 0

	for i := e.heap.RegionCount(); i > 0; i-- {
		r := e.heap.Region(i - 1)
		if r.IsEmptyCommitted() && r.EmptyTime() < shrinkBefore {
			uncommitted, floorReached :=
				e.tryUncommitRegion(r, shrinkBefore, shrinkUntil)

			if floorReached {
				break
			}

			if uncommitted {
				count++
			}
		}

		// Let allocators take the lock between candidates.
		runtime.Gosched()
	}

	if count > 0 {
		e.heap.NotifyCapacityChanged()
		log.Printf(
			"uncommitted %d regions, keeping committed capacity above %d bytes",
			count, shrinkUntil+e.heap.RegionSize())
	}

	return count
}

// tryUncommitRegion re-validates the candidate under the heap lock and
// uncommits it if it is still eligible. The re-check is the sole mechanism
// that prevents uncommitting a region that was reused between the lock-free
// scan and the lock acquisition.
func (e *Executor) tryUncommitRegion(
	r *heap.Region,
	shrinkBefore float64,
	shrinkUntil uint64,
) (uncommitted, floorReached bool) {
	e.heap.Lock()
	defer e.heap.Unlock()

	if !r.IsEmptyCommitted() || r.EmptyTime() >= shrinkBefore {
		return false, false
	}

	if e.heap.Committed() < shrinkUntil+e.heap.RegionSize() {
		return false, true
	}

	r.MakeUncommitted()

	return true, false
}
