package uncommit

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heaplab/regionheap/heap"
	"github.com/heaplab/regionheap/hooking"
)

// passCountingHook records every reclaiming pass the controller reports.
type passCountingHook struct {
	mu      sync.Mutex
	records []PassRecord
}

func (h *passCountingHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosUncommitPass {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, ctx.Item.(PassRecord))
}

func (h *passCountingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.records)
}

func (h *passCountingHook) last() PassRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.records[len(h.records)-1]
}

var _ = Describe("Controller", func() {
	var controller *Controller

	AfterEach(func() {
		if controller != nil && !controller.IsTerminated() {
			controller.RequestTermination()
			Eventually(controller.IsTerminated).
				WithTimeout(time.Second).
				Should(BeTrue())
		}
	})

	newHeap := func(regionCount, minCapacityRegions int) *heap.Heap {
		h := heap.MakeBuilder().
			WithRegionCount(regionCount).
			WithRegionSize(1 * heap.KB).
			WithMinCapacity(uint64(minCapacityRegions) * heap.KB).
			Build("Heap")
		commitAll(h)

		return h
	}

	It("should panic when started while disabled", func() {
		h := newHeap(4, 0)
		controller = MakeBuilder().
			WithHeap(h).
			WithEnabled(false).
			Build("Uncommitter")

		Expect(func() { controller.Start() }).To(Panic())
		controller = nil
	})

	It("should wake immediately on an explicit GC request", func() {
		h := newHeap(10, 4)
		occupy(h, 0, 1, 2, 3, 4, 5, 6)

		// The delay is long enough that neither the periodic deadline nor
		// the shrink period can fire within this test.
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(time.Hour).
			Build("Uncommitter")
		controller.Start()

		time.Sleep(50 * time.Millisecond)
		Expect(h.Committed()).To(Equal(10 * heap.KB))

		controller.NotifyExplicitGCRequested()

		Eventually(h.Committed).
			WithTimeout(time.Second).
			WithPolling(time.Millisecond).
			Should(Equal(7 * heap.KB))
	})

	It("should shrink toward the soft max when it changes", func() {
		h := newHeap(10, 0)
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(time.Hour).
			Build("Uncommitter")
		controller.Start()

		Expect(h.SetSoftMaxCapacity(5 * heap.KB)).To(BeTrue())
		controller.NotifySoftMaxChanged()

		Eventually(h.Committed).
			WithTimeout(time.Second).
			WithPolling(time.Millisecond).
			Should(Equal(5 * heap.KB))
	})

	It("should reclaim periodically once regions have aged", func() {
		h := newHeap(10, 4)
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(50 * time.Millisecond).
			Build("Uncommitter")
		controller.Start()

		Eventually(h.Committed).
			WithTimeout(5 * time.Second).
			WithPolling(time.Millisecond).
			Should(Equal(4 * heap.KB))
	})

	It("should run one urgent pass for repeated notifications", func() {
		h := newHeap(10, 0)
		h.SetSoftMaxCapacity(5 * heap.KB)

		hook := &passCountingHook{}
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(time.Hour).
			Build("Uncommitter")
		controller.AcceptHook(hook)

		controller.NotifySoftMaxChanged()
		controller.NotifySoftMaxChanged()
		controller.Start()

		Eventually(hook.count).
			WithTimeout(time.Second).
			Should(Equal(1))
		Consistently(hook.count).
			WithTimeout(300 * time.Millisecond).
			Should(Equal(1))

		record := hook.last()
		Expect(record.Trigger).To(Equal(string(TriggerSoftMax)))
		Expect(record.Regions).To(Equal(5))
		Expect(record.Bytes).To(Equal(5 * heap.KB))
		Expect(record.Floor).To(Equal(6 * heap.KB))
	})

	It("should report the explicit GC trigger in pass records", func() {
		h := newHeap(10, 4)
		occupy(h, 0, 1, 2, 3, 4, 5, 6)

		hook := &passCountingHook{}
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(time.Hour).
			Build("Uncommitter")
		controller.AcceptHook(hook)
		controller.Start()

		controller.NotifyExplicitGCRequested()

		Eventually(hook.count).
			WithTimeout(time.Second).
			Should(Equal(1))
		Expect(hook.last().Trigger).To(Equal(string(TriggerExplicitGC)))
		Expect(hook.last().Regions).To(Equal(3))
	})

	It("should terminate cleanly on request", func() {
		h := newHeap(4, 0)
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(time.Hour).
			Build("Uncommitter")
		controller.Start()

		Expect(controller.IsTerminated()).To(BeFalse())

		controller.RequestTermination()

		Eventually(controller.IsTerminated).
			WithTimeout(time.Second).
			Should(BeTrue())
	})

	It("should expose pending triggers before consumption", func() {
		h := newHeap(4, 0)
		controller = MakeBuilder().
			WithHeap(h).
			WithUncommitDelay(time.Hour).
			Build("Uncommitter")

		controller.NotifySoftMaxChanged()

		softMax, explicitGC := controller.PendingTriggers()
		Expect(softMax).To(BeTrue())
		Expect(explicitGC).To(BeFalse())
		controller = nil
	})
})
