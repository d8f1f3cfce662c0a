// Package telemetry collects the reclaiming-pass records that the uncommit
// controller publishes through its hooks and persists them through
// pluggable writers.
package telemetry

import (
	"fmt"
	"reflect"

	"github.com/heaplab/regionheap/hooking"
	"github.com/heaplab/regionheap/uncommit"
)

// A PassWriter persists reclaiming-pass records.
type PassWriter interface {
	// Write stores one pass record. Writers may buffer.
	Write(record uncommit.PassRecord)

	// Flush forces buffered records out.
	Flush()
}

// CollectPasses attaches a writer to a domain that publishes pass records,
// typically the uncommit controller. Attaching the same writer to a domain
// twice is a programming error.
func CollectPasses(domain hooking.NamedHookable, writer PassWriter) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*passHook)
		if ok && hook.w == writer {
			panic(fmt.Sprintf(
				"domain %s already has writer %s",
				domain.Name(), reflect.TypeOf(writer)))
		}
	}

	domain.AcceptHook(&passHook{w: writer})
}

// A passHook forwards pass records to a writer.
type passHook struct {
	w PassWriter
}

// Func calls the writer when a pass record is published.
func (h *passHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos == uncommit.HookPosUncommitPass {
		h.w.Write(ctx.Item.(uncommit.PassRecord))
	}
}
