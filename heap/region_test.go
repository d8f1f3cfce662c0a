package heap

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Region", func() {
	var (
		now float64
		h   *Heap
		r   *Region
	)

	BeforeEach(func() {
		now = 0
		h = MakeBuilder().
			WithRegionCount(4).
			WithRegionSize(4 * KB).
			WithTimeSource(func() float64 { return now }).
			Build("Heap")
		r = h.Region(0)
	})

	It("should start empty and uncommitted", func() {
		Expect(r.State()).To(Equal(RegionEmptyUncommitted))
		Expect(r.IsCommitted()).To(BeFalse())
		Expect(r.IsEmptyCommitted()).To(BeFalse())
	})

	It("should walk the full lifecycle", func() {
		h.Lock()
		r.MakeCommitted()
		r.MakeRegular()
		r.MakeEmpty()
		r.MakeUncommitted()
		h.Unlock()

		Expect(r.State()).To(Equal(RegionEmptyUncommitted))
		Expect(h.Committed()).To(Equal(uint64(0)))
	})

	It("should stamp the empty time when a region becomes empty", func() {
		h.Lock()
		r.MakeCommitted()
		r.MakeRegular()
		h.Unlock()

		now = 42.5

		h.Lock()
		r.MakeEmpty()
		h.Unlock()

		Expect(r.EmptyTime()).To(Equal(42.5))
	})

	It("should stamp the empty time on commit", func() {
		now = 3.0

		h.Lock()
		r.MakeCommitted()
		h.Unlock()

		Expect(r.EmptyTime()).To(Equal(3.0))
	})

	It("should reject uncommitting a busy region", func() {
		h.Lock()
		r.MakeCommitted()
		r.MakeRegular()
		h.Unlock()

		Expect(func() { r.MakeUncommitted() }).To(Panic())
	})

	It("should reject committing a committed region", func() {
		h.Lock()
		r.MakeCommitted()
		h.Unlock()

		Expect(func() { r.MakeCommitted() }).To(Panic())
	})

	It("should reject allocating into an uncommitted region", func() {
		Expect(func() { r.MakeRegular() }).To(Panic())
	})
})
