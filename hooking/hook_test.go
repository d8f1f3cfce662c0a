package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var testPos = &HookPos{Name: "Test"}

type collectingHook struct {
	contexts []HookCtx
}

func (h *collectingHook) Func(ctx HookCtx) {
	h.contexts = append(h.contexts, ctx)
}

var _ = Describe("HookableBase", func() {
	var hookable *HookableBase

	BeforeEach(func() {
		hookable = NewHookableBase()
	})

	It("should start with no hooks", func() {
		Expect(hookable.Hooks()).To(BeEmpty())
	})

	It("should invoke every registered hook", func() {
		hook1 := &collectingHook{}
		hook2 := &collectingHook{}
		hookable.AcceptHook(hook1)
		hookable.AcceptHook(hook2)

		ctx := HookCtx{Pos: testPos, Item: 42}
		hookable.InvokeHook(ctx)

		Expect(hook1.contexts).To(HaveLen(1))
		Expect(hook2.contexts).To(HaveLen(1))
		Expect(hook1.contexts[0].Item).To(Equal(42))
	})
})
