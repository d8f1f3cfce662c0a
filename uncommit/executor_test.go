package uncommit

import (
	gomock "go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heaplab/regionheap/heap"
)

var _ = Describe("Executor", func() {
	var clock *manualClock

	BeforeEach(func() {
		clock = &manualClock{}
	})

	It("should uncommit from the GC-allocation end and stop at the floor",
		func() {
			h := buildTestHeap(clock, 10, 4)
			commitAll(h)
			occupy(h, 0, 1, 2, 3, 4, 5, 6)
			clock.advance(100)

			executor := NewExecutor(h)
			count := executor.Uncommit(50.0, h.MinCapacity())

			Expect(count).To(Equal(3))
			Expect(h.Committed()).To(Equal(7 * heap.KB))
			Expect(h.Region(9).State()).To(Equal(heap.RegionEmptyUncommitted))
			Expect(h.Region(8).State()).To(Equal(heap.RegionEmptyUncommitted))
			Expect(h.Region(7).State()).To(Equal(heap.RegionEmptyUncommitted))
			Expect(h.Region(6).State()).To(Equal(heap.RegionRegular))
		})

	It("should hard-stop when one more region would breach the floor", func() {
		h := buildTestHeap(clock, 10, 8)
		commitAll(h)
		occupy(h, 0, 1, 2, 3, 4, 5, 6)
		clock.advance(100)

		executor := NewExecutor(h)
		count := executor.Uncommit(50.0, h.MinCapacity())

		// 10KB committed, floor 8KB: regions 9 and 8 go, region 7 would drop
		// the committed bytes below the floor and stops the scan.
		Expect(count).To(Equal(2))
		Expect(h.Committed()).To(Equal(8 * heap.KB))
		Expect(h.Region(7).State()).To(Equal(heap.RegionEmptyCommitted))
	})

	It("should never reduce committed bytes below the floor", func() {
		h := buildTestHeap(clock, 10, 4)
		commitAll(h)
		clock.advance(100)

		executor := NewExecutor(h)
		count := executor.Uncommit(50.0, h.MinCapacity())

		Expect(count).To(Equal(6))
		Expect(h.Committed()).To(Equal(4 * heap.KB))
	})

	It("should perform no work on a second identical pass", func() {
		h := buildTestHeap(clock, 10, 4)
		commitAll(h)
		occupy(h, 0, 1, 2, 3, 4, 5, 6)
		clock.advance(100)

		executor := NewExecutor(h)
		first := executor.Uncommit(50.0, h.MinCapacity())
		second := executor.Uncommit(50.0, h.MinCapacity())

		Expect(first).To(Equal(3))
		Expect(second).To(Equal(0))
		Expect(h.Committed()).To(Equal(7 * heap.KB))
	})

	It("should leave regions outside the deadline committed", func() {
		h := buildTestHeap(clock, 4, 0)
		commitAll(h)
		clock.advance(100)

		executor := NewExecutor(h)
		count := executor.Uncommit(0.0, 0)

		Expect(count).To(Equal(0))
		Expect(h.Committed()).To(Equal(4 * heap.KB))
	})

	Context("with a mocked heap", func() {
		var (
			mockCtrl *gomock.Controller
			mockHeap *MockHeap
			executor *Executor
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			mockHeap = NewMockHeap(mockCtrl)
			executor = NewExecutor(mockHeap)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should scan regions in descending index order", func() {
			h := buildTestHeap(clock, 3, 0)

			mockHeap.EXPECT().RegionCount().Return(3).AnyTimes()
			gomock.InOrder(
				mockHeap.EXPECT().Region(2).Return(h.Region(2)),
				mockHeap.EXPECT().Region(1).Return(h.Region(1)),
				mockHeap.EXPECT().Region(0).Return(h.Region(0)),
			)

			Expect(executor.Uncommit(50.0, 0)).To(Equal(0))
		})

		It("should skip a region reused between scan and lock", func() {
			h := buildTestHeap(clock, 1, 0)
			commitAll(h)
			clock.advance(100)
			r := h.Region(0)

			mockHeap.EXPECT().RegionCount().Return(1).AnyTimes()
			mockHeap.EXPECT().Region(0).Return(r).AnyTimes()
			gomock.InOrder(
				mockHeap.EXPECT().Lock().Do(func() {
					// An allocator grabs the region after the lock-free
					// check observed it as empty.
					r.MakeRegular()
				}),
				mockHeap.EXPECT().Unlock(),
			)

			count := executor.Uncommit(50.0, 0)

			Expect(count).To(Equal(0))
			Expect(r.State()).To(Equal(heap.RegionRegular))
			Expect(h.Committed()).To(Equal(1 * heap.KB))
		})
	})
})
