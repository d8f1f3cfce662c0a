package uncommit

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/heaplab/regionheap/hooking"
)

// HookPosUncommitPass is triggered after a pass that uncommitted at least one
// region. The hook context item is a PassRecord.
var HookPosUncommitPass = &hooking.HookPos{Name: "UncommitPass"}

// Trigger names what caused a reclaiming pass to run.
type Trigger string

// The possible pass triggers.
const (
	TriggerPeriodic   Trigger = "periodic"
	TriggerSoftMax    Trigger = "soft-max-changed"
	TriggerExplicitGC Trigger = "explicit-gc"
)

// A PassRecord summarizes one reclaiming pass.
type PassRecord struct {
	ID        string
	Trigger   string
	StartTime float64
	EndTime   float64
	Regions   int
	Bytes     uint64
	Floor     uint64
}

// A Controller owns the background loop that periodically evaluates the
// region table and uncommits regions that have been empty long enough. One
// dedicated goroutine runs the loop; other threads interact with it only
// through the notify methods.
type Controller struct {
	*hooking.HookableBase
	name string

	heap     Heap
	policy   *Policy
	executor *Executor

	enabled bool
	delay   time.Duration

	softMaxChanged      SharedFlag
	explicitGCRequested SharedFlag

	wake chan struct{}

	started              atomic.Bool
	terminationRequested atomic.Bool
	terminated           atomic.Bool

	// shrinkPeriod and lastShrinkTime are only touched by the loop goroutine.
	shrinkPeriod   float64
	lastShrinkTime float64

	now func() float64
}

// Name returns the name of the controller.
func (c *Controller) Name() string {
	return c.name
}

// Delay returns the configured uncommit delay.
func (c *Controller) Delay() time.Duration {
	return c.delay
}

// Start launches the background loop. Starting a disabled or already-started
// controller is a programming error.
func (c *Controller) Start() {
	if !c.enabled {
		log.Panicf("%s: uncommit is disabled", c.name)
	}

	if !c.started.CompareAndSwap(false, true) {
		log.Panicf("%s: already started", c.name)
	}

	go c.run()
}

// RequestTermination asks the background loop to exit. The loop finishes its
// current pass, if any, and terminates without forcing pending work.
func (c *Controller) RequestTermination() {
	c.terminationRequested.Store(true)
	c.wakeUp()
}

// IsTerminated reports whether the background loop has exited.
func (c *Controller) IsTerminated() bool {
	return c.terminated.Load()
}

// NotifySoftMaxChanged tells the controller that the soft max capacity
// changed. The controller wakes immediately and shrinks toward the new soft
// max without waiting for regions to age.
func (c *Controller) NotifySoftMaxChanged() {
	c.softMaxChanged.Set()
	c.wakeUp()
}

// NotifyExplicitGCRequested tells the controller that an explicit collection
// was requested. The controller wakes immediately and shrinks toward the min
// capacity without waiting for regions to age.
func (c *Controller) NotifyExplicitGCRequested() {
	c.explicitGCRequested.Set()
	c.wakeUp()
}

// PendingTriggers reports which latches are raised but not yet consumed.
func (c *Controller) PendingTriggers() (softMaxChanged, explicitGC bool) {
	return c.softMaxChanged.IsSet(), c.explicitGCRequested.IsSet()
}

func (c *Controller) run() {
	// A period ten times finer than the configured delay bounds the idle
	// detection lag to about a tenth of the nominal delay.
	c.shrinkPeriod = c.delay.Seconds() / 10
	c.lastShrinkTime = c.now()

	for !c.terminationRequested.Load() {
		current := c.now()
		softMaxChanged := c.softMaxChanged.TryUnset()
		explicitGCRequested := c.explicitGCRequested.TryUnset()

		if softMaxChanged || explicitGCRequested ||
			current-c.lastShrinkTime > c.shrinkPeriod {
			c.runPass(current, softMaxChanged, explicitGCRequested)
		}

		c.waitForNextPass()
	}

	c.terminated.Store(true)
}

// runPass computes the time and capacity targets for one pass and runs the
// evaluator and, when there is work, the executor.
func (c *Controller) runPass(
	current float64,
	softMaxChanged bool,
	explicitGCRequested bool,
) {
	shrinkBefore := current
	trigger := TriggerPeriodic

	switch {
	case softMaxChanged:
		trigger = TriggerSoftMax
	case explicitGCRequested:
		trigger = TriggerExplicitGC
	default:
		// Periodic passes only touch regions that have been empty longer
		// than the configured delay.
		shrinkBefore = current - c.delay.Seconds()
	}

	shrinkUntil := c.heap.MinCapacity()
	if softMaxChanged {
		shrinkUntil = c.heap.SoftMaxCapacity()
	}

	if !c.policy.HasWork(shrinkBefore, shrinkUntil) {
		return
	}

	count := c.executor.Uncommit(shrinkBefore, shrinkUntil)
	c.lastShrinkTime = c.now()

	if count > 0 {
		regionSize := c.heap.RegionSize()
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosUncommitPass,
			Item: PassRecord{
				ID:        xid.New().String(),
				Trigger:   string(trigger),
				StartTime: current,
				EndTime:   c.lastShrinkTime,
				Regions:   count,
				Bytes:     uint64(count) * regionSize,
				Floor:     shrinkUntil + regionSize,
			},
		})
	}
}

// waitForNextPass blocks until the shrink period elapses or an external
// notification arrives, whichever is first.
func (c *Controller) waitForNextPass() {
	if c.terminationRequested.Load() {
		return
	}

	timer := time.NewTimer(time.Duration(c.shrinkPeriod * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-c.wake:
	case <-timer.C:
	}
}

// wakeUp nudges the loop out of its timed wait. The wake channel has capacity
// one, so notifications arriving while a wake is already pending collapse
// into it.
func (c *Controller) wakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
