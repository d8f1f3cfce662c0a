package heap

// A Backing provides the physical memory behind committed regions. Offsets
// and lengths are in bytes from the start of the heap address space.
type Backing interface {
	// Commit backs the given range with physical memory.
	Commit(offset, length uint64) error

	// Uncommit returns the physical memory behind the given range to the
	// operating system.
	Uncommit(offset, length uint64) error

	// Release frees the whole reservation.
	Release() error
}

// NopBacking is a Backing with no OS interaction. It serves heaps that only
// track capacity accounting, such as in tests.
type NopBacking struct{}

// Commit does nothing.
func (NopBacking) Commit(_, _ uint64) error { return nil }

// Uncommit does nothing.
func (NopBacking) Uncommit(_, _ uint64) error { return nil }

// Release does nothing.
func (NopBacking) Release() error { return nil }
