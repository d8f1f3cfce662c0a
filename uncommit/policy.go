package uncommit

// A Policy decides whether a pass over the region table would reclaim
// anything. It is pure decision logic with no side effects.
type Policy struct {
	heap Heap
}

// NewPolicy creates a Policy over the given heap.
func NewPolicy(h Heap) *Policy {
	return &Policy{heap: h}
}

// HasWork reports whether any region can be uncommitted. A region qualifies
// when it is empty, committed, and became empty strictly before shrinkBefore.
// No uncommit may reduce the committed bytes below shrinkUntil, so when the
// committed bytes are already at or below that threshold there is no possible
// gain and HasWork returns false without scanning.
//
// The scan is lock-free. Stale reads are tolerated here; the executor
// re-validates every candidate under the heap lock before mutating it. The
// point of this check is to avoid taking the heap lock and emitting telemetry
// when nothing is reclaimable.
func (p *Policy) HasWork(shrinkBefore float64, shrinkUntil uint64) bool {
	if p.heap.Committed() <= shrinkUntil {
		return false
	}

	for i := 0; i < p.heap.RegionCount(); i++ {
		r := p.heap.Region(i)
		if r.IsEmptyCommitted() && r.EmptyTime() < shrinkBefore {
			return true
		}
	}

	return false
}
