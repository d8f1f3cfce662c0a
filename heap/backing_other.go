//go:build !linux

package heap

import "errors"

// NewMmapBacking is only available on linux.
func NewMmapBacking(_ uint64) (Backing, error) {
	return nil, errors.New("mmap backing requires linux")
}
