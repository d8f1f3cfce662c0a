package uncommit

import (
	"log"
	"time"

	"github.com/heaplab/regionheap/heap"
	"github.com/heaplab/regionheap/hooking"
)

// defaultDelay is how long a region must stay empty before a periodic pass
// may uncommit it.
const defaultDelay = 5 * time.Minute

// Builder builds controllers.
type Builder struct {
	heap       Heap
	delay      time.Duration
	enabled    bool
	timeSource func() float64
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		delay:      defaultDelay,
		enabled:    true,
		timeSource: heap.ElapsedTime,
	}
}

// WithHeap sets the heap the controller manages.
func (b Builder) WithHeap(h Heap) Builder {
	b.heap = h
	return b
}

// WithUncommitDelay sets how long a region must stay empty before a periodic
// pass may uncommit it.
func (b Builder) WithUncommitDelay(d time.Duration) Builder {
	b.delay = d
	return b
}

// WithEnabled turns the whole subsystem on or off. Starting a disabled
// controller panics.
func (b Builder) WithEnabled(enabled bool) Builder {
	b.enabled = enabled
	return b
}

// WithTimeSource sets the function used to read the current elapsed time.
func (b Builder) WithTimeSource(now func() float64) Builder {
	b.timeSource = now
	return b
}

// Build builds a new Controller.
func (b Builder) Build(name string) *Controller {
	if b.heap == nil {
		log.Panic("controller requires a heap")
	}

	if b.delay <= 0 {
		log.Panic("uncommit delay must be positive")
	}

	c := &Controller{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		heap:         b.heap,
		policy:       NewPolicy(b.heap),
		executor:     NewExecutor(b.heap),
		enabled:      b.enabled,
		delay:        b.delay,
		wake:         make(chan struct{}, 1),
		now:          b.timeSource,
	}

	return c
}
