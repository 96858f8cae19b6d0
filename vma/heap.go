package vma

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/addrspace/memutils"
)

// Heap manages a fixed range of a 64-bit address space by tracking the free holes within it.
// Allocations are carved from the top of the highest hole that can hold them, and freed ranges
// are merged with their neighbors so that no two holes are ever adjacent.
//
// Heap does not remember what it has handed out: the consumer must pass the same offset and size
// that Alloc returned back into Free. Offset 0 is reserved and will never be returned from Alloc.
//
// Heap is not safe for concurrent use. See virtual.Block for a synchronized heap that also
// tracks its allocations.
type Heap struct {
	start       uint64
	size        uint64
	sumFreeSize uint64
	holes       holeList
	live        bool
}

var _ memutils.Validatable = &Heap{}

// New creates a Heap and initializes it with the provided range. See Init.
func New(start, size uint64) (*Heap, error) {
	heap := &Heap{}
	err := heap.Init(start, size)
	if err != nil {
		return nil, err
	}

	return heap, nil
}

// Init prepares the heap to allocate from the range [start, start+size). The range may end at
// exactly 2^64. Because offset 0 is reserved, a range beginning at 0 has its first unit withheld
// and allocations will be made from [1, size).
//
// Calling Init on a heap that is already in use discards all of its holes.
func (h *Heap) Init(start, size uint64) error {
	if size == 0 {
		return errors.Wrap(ErrInvalidSize, "cannot initialize heap")
	}

	if start == 0 {
		if size == 1 {
			return errors.Wrap(ErrInvalidSize, "a heap starting at offset 0 must be larger than 1")
		}
		start++
		size--
	}

	if !rangeValid(start, size) {
		return errors.Wrapf(ErrRangeOverflow, "cannot initialize heap at offset 0x%x with size 0x%x", start, size)
	}

	h.start = start
	h.size = size
	h.sumFreeSize = 0
	h.holes = h.holes[:0]
	h.live = true

	h.free(start, size)
	memutils.DebugValidate(h)

	return nil
}

// Destroy releases all holes. Alloc and Free will fail with ErrDestroyed until Init is called again.
func (h *Heap) Destroy() {
	h.holes = nil
	h.sumFreeSize = 0
	h.live = false
}

// rangeValid returns false if offset+size goes past 2^64. A range that ends at exactly 2^64
// wraps to 0 and is allowed.
func rangeValid(offset, size uint64) bool {
	end := offset + size
	return end == 0 || end > offset
}

// Start returns the lowest offset managed by the heap
func (h *Heap) Start() uint64 { return h.start }

// Size returns the number of offsets managed by the heap
func (h *Heap) Size() uint64 { return h.size }

// SumFreeSize returns the total size of all holes in the heap
func (h *Heap) SumFreeSize() uint64 { return h.sumFreeSize }

// HoleCount returns the number of discrete free ranges in the heap
func (h *Heap) HoleCount() int { return len(h.holes) }

// IsDestroyed returns true if Destroy has been called and Init has not been called since
func (h *Heap) IsDestroyed() bool { return !h.live }

// IsEmpty returns true if there are no outstanding allocations in the heap
func (h *Heap) IsEmpty() bool {
	return h.live && h.sumFreeSize == h.size
}

// MayHaveFreeBlock returns false if no hole is large enough to hold an allocation of the requested
// size. A true result does not guarantee success, since alignment may still rule out every hole.
func (h *Heap) MayHaveFreeBlock(size uint64) bool {
	if size > h.sumFreeSize {
		return false
	}

	for _, hl := range h.holes {
		if hl.size >= size {
			return true
		}
	}

	return false
}

// Alloc finds space for size units aligned to alignment and returns its offset. Holes are searched
// from the highest address to the lowest, and the allocation is placed as high as possible inside
// the first hole that can hold it.
//
// If no hole can hold the allocation, ok will be false and err will be nil. An error is only
// returned for invalid arguments or when the heap has been destroyed.
func (h *Heap) Alloc(size, alignment uint64) (offset uint64, ok bool, err error) {
	if !h.live {
		return 0, false, ErrDestroyed
	}
	if size == 0 {
		return 0, false, errors.Wrap(ErrInvalidSize, "cannot allocate")
	}
	if alignment == 0 {
		return 0, false, errors.Wrapf(ErrInvalidAlignment, "cannot allocate 0x%x", size)
	}

	memutils.DebugValidate(h)

	for i := range h.holes {
		hl := &h.holes[i]
		if size > hl.size {
			continue
		}

		// hl.offset+hl.size can only wrap to exactly 0, so this can't overflow
		offset = (hl.size - size) + hl.offset

		// Align down, since we're allocating from the top of the hole
		offset = memutils.AlignDown(offset, alignment)
		if offset < hl.offset {
			continue
		}

		waste := (hl.size - size) - (offset - hl.offset)

		switch {
		case offset == hl.offset && size == hl.size:
			h.holes.remove(i)
		case waste == 0:
			// Allocated at the top
			hl.size -= size
		case offset == hl.offset:
			// Allocated at the bottom
			hl.offset += size
			hl.size -= size
		default:
			// Allocated in the middle, the new high hole goes before this one
			high := hole{offset: offset + size, size: waste}
			hl.size = offset - hl.offset
			h.holes.insert(i, high)
		}

		h.sumFreeSize -= size
		memutils.DebugValidate(h)

		return offset, true, nil
	}

	return 0, false, nil
}

// Free returns the range [offset, offset+size) to the heap, merging it with any adjacent holes.
// The range must have been allocated from this heap: freeing a range that overlaps a hole fails
// with ErrOverlap and leaves the heap unchanged.
func (h *Heap) Free(offset, size uint64) error {
	if !h.live {
		return ErrDestroyed
	}
	if offset == 0 {
		return ErrReservedOffset
	}
	if size == 0 {
		return errors.Wrapf(ErrInvalidSize, "cannot free offset 0x%x", offset)
	}
	if !rangeValid(offset, size) {
		return errors.Wrapf(ErrRangeOverflow, "cannot free offset 0x%x with size 0x%x", offset, size)
	}

	freed := hole{offset: offset, size: size}
	heapRange := hole{offset: h.start, size: h.size}
	if freed.offset < heapRange.offset || freed.last() > heapRange.last() {
		return errors.Wrapf(ErrOutOfRange, "range [0x%x, +0x%x) is not inside [0x%x, +0x%x)",
			offset, size, h.start, h.size)
	}

	memutils.DebugValidate(h)

	lowIndex := h.holes.lowIndex(offset)

	if lowIndex > 0 {
		high := h.holes[lowIndex-1]
		if freed.last() >= high.offset {
			return errors.Wrapf(ErrOverlap, "range [0x%x, +0x%x) overlaps hole [0x%x, +0x%x)",
				offset, size, high.offset, high.size)
		}
	}

	if lowIndex < len(h.holes) {
		low := h.holes[lowIndex]
		if low.last() >= offset {
			return errors.Wrapf(ErrOverlap, "range [0x%x, +0x%x) overlaps hole [0x%x, +0x%x)",
				offset, size, low.offset, low.size)
		}
	}

	h.free(offset, size)
	memutils.DebugValidate(h)

	return nil
}

// free inserts a validated, non-overlapping range into the hole list
func (h *Heap) free(offset, size uint64) {
	freed := hole{offset: offset, size: size}
	lowIndex := h.holes.lowIndex(offset)
	highIndex := lowIndex - 1

	highAdjacent := highIndex >= 0 && freed.end() == h.holes[highIndex].offset
	lowAdjacent := lowIndex < len(h.holes) && h.holes[lowIndex].end() == offset

	switch {
	case lowAdjacent && highAdjacent:
		h.holes[lowIndex].size += size + h.holes[highIndex].size
		h.holes.remove(highIndex)
	case lowAdjacent:
		h.holes[lowIndex].size += size
	case highAdjacent:
		h.holes[highIndex].offset = offset
		h.holes[highIndex].size += size
	default:
		// lowIndex is directly after the high hole, or the head of the list if there is none
		h.holes.insert(lowIndex, freed)
	}

	h.sumFreeSize += size
}

// VisitHoles calls the provided callback once for each hole, from the highest offset to the
// lowest. If the callback returns an error, iteration stops and the error is returned.
// The callback must not modify the heap.
func (h *Heap) VisitHoles(visit func(offset, size uint64) error) error {
	for _, hl := range h.holes {
		err := visit(hl.offset, hl.size)
		if err != nil {
			return err
		}
	}

	return nil
}
