package hfs

import (
	"github.com/boljen/go-bitmap"

	"github.com/hobbitfs/hfs/hfserr"
)

// Allocator is a linear-scan bitmap allocator used for both the inode table
// and the data region. Each index is either free (bit clear) or in
// use (bit set); neither allocator coalesces or reclaims eagerly.
type Allocator struct {
	bits  bitmap.Bitmap
	total uint32
}

// NewAllocator creates an allocator over `total` indices, all initially
// free.
func NewAllocator(total uint32) *Allocator {
	return &Allocator{
		bits:  bitmap.New(int(total)),
		total: total,
	}
}

// LoadAllocator reconstructs an allocator from bitmap bytes read off an
// existing image. Mount trusts the on-image bitmap as-is.
func LoadAllocator(data []byte, total uint32) *Allocator {
	return &Allocator{
		bits:  bitmap.Bitmap(data),
		total: total,
	}
}

// Bytes returns the raw bitmap bytes for writing back to the image.
func (a *Allocator) Bytes() []byte {
	return a.bits.Data(false)
}

// IsSet reports whether index i is currently allocated.
func (a *Allocator) IsSet(i uint32) bool {
	return a.bits.Get(int(i))
}

// Set forces the allocation state of index i without scanning. Used when
// restoring a known-good index, e.g. reserving inum 0 on format.
func (a *Allocator) Set(i uint32, value bool) {
	a.bits.Set(int(i), value)
}

// Allocate finds the first free index, marks it used, and returns it.
// Returns hfserr.ErrAllocFail if the bitmap is fully occupied.
func (a *Allocator) Allocate() (uint32, error) {
	for idx := uint32(0); idx < a.total; idx++ {
		if !a.bits.Get(int(idx)) {
			a.bits.Set(int(idx), true)
			return idx, nil
		}
	}
	return 0, hfserr.ErrAllocFail.WithMessage("allocator exhausted")
}

// Free marks index i as available again.
func (a *Allocator) Free(i uint32) {
	a.bits.Set(int(i), false)
}

// CountFree returns the number of unallocated indices.
func (a *Allocator) CountFree() uint32 {
	free := uint32(0)
	for i := uint32(0); i < a.total; i++ {
		if !a.bits.Get(int(i)) {
			free++
		}
	}
	return free
}
