package vma

import "github.com/cockroachdb/errors"

// Validate walks the hole list and verifies that every hole is non-empty, does not use the
// reserved offset 0, lies inside the heap, and is strictly below the previous hole with at least
// one allocated unit between them. Only the highest hole may end at exactly 2^64.
//
// Validate does not modify the heap. When the heap is working correctly, it should never
// return an error.
func (h *Heap) Validate() error {
	if !h.live {
		if len(h.holes) > 0 {
			return errors.Errorf("destroyed heap still has %d holes", len(h.holes))
		}
		return nil
	}

	heapRange := hole{offset: h.start, size: h.size}
	var prevOffset, sumFreeSize uint64

	for i, hl := range h.holes {
		if hl.offset == 0 {
			return errors.Errorf("hole %d has the reserved offset 0", i)
		}

		if hl.size == 0 {
			return errors.Errorf("hole %d at offset 0x%x is empty", i, hl.offset)
		}

		if hl.offset < heapRange.offset || hl.last() > heapRange.last() {
			return errors.Errorf("hole at offset 0x%x with size 0x%x is outside of the heap", hl.offset, hl.size)
		}

		if i == 0 {
			// The top-most hole may overflow, but only to exactly 2^64
			if hl.end() != 0 && hl.end() <= hl.offset {
				return errors.Errorf("top-most hole at offset 0x%x with size 0x%x runs past 2^64", hl.offset, hl.size)
			}
		} else {
			if hl.end() <= hl.offset {
				return errors.Errorf("hole at offset 0x%x with size 0x%x overflows but is not the top-most hole", hl.offset, hl.size)
			}

			if hl.end() == prevOffset {
				return errors.Errorf("hole at offset 0x%x is adjacent to the hole at offset 0x%x but they were not merged", hl.offset, prevOffset)
			}

			if hl.end() > prevOffset {
				return errors.Errorf("hole at offset 0x%x with size 0x%x is not strictly below the hole at offset 0x%x", hl.offset, hl.size, prevOffset)
			}
		}

		prevOffset = hl.offset
		sumFreeSize += hl.size
	}

	if sumFreeSize != h.sumFreeSize {
		return errors.Errorf("the free size of the heap is 0x%x, but the holes only added up to 0x%x", h.sumFreeSize, sumFreeSize)
	}

	return nil
}
