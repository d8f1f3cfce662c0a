//go:build linux

package heap

import (
	"golang.org/x/sys/unix"
)

// MmapBacking reserves a contiguous range of address space up front and moves
// page ranges between committed and uncommitted with mprotect and madvise.
// Offsets and lengths must be multiples of the page size.
type MmapBacking struct {
	mem []byte
}

// NewMmapBacking reserves size bytes of address space without committing any
// physical memory.
func NewMmapBacking(size uint64) (Backing, error) {
	mem, err := unix.Mmap(
		-1, 0, int(size),
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE,
	)
	if err != nil {
		return nil, err
	}

	return &MmapBacking{mem: mem}, nil
}

// Commit makes the given range readable and writable.
func (b *MmapBacking) Commit(offset, length uint64) error {
	return unix.Mprotect(
		b.mem[offset:offset+length],
		unix.PROT_READ|unix.PROT_WRITE,
	)
}

// Uncommit tells the kernel to drop the pages behind the given range and
// removes access to them.
func (b *MmapBacking) Uncommit(offset, length uint64) error {
	span := b.mem[offset : offset+length]

	err := unix.Madvise(span, unix.MADV_DONTNEED)
	if err != nil {
		return err
	}

	return unix.Mprotect(span, unix.PROT_NONE)
}

// Release unmaps the whole reservation.
func (b *MmapBacking) Release() error {
	return unix.Munmap(b.mem)
}
