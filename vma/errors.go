package vma

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidSize is returned when a zero size is passed to Init, Alloc or Free
	ErrInvalidSize = errors.New("size must be greater than zero")
	// ErrInvalidAlignment is returned when a zero alignment is passed to Alloc
	ErrInvalidAlignment = errors.New("alignment must be greater than zero")
	// ErrReservedOffset is returned when offset 0 is passed to Free. Offset 0 is never a valid
	// allocation and can't be returned to the heap.
	ErrReservedOffset = errors.New("offset 0 is reserved")
	// ErrRangeOverflow is returned when offset+size runs past the top of the 64-bit address space.
	// A range may end at exactly 2^64, but not beyond it.
	ErrRangeOverflow = errors.New("range extends beyond the top of the address space")
	// ErrOutOfRange is returned when Free is passed a range that is not inside the range the heap
	// was initialized with
	ErrOutOfRange = errors.New("range is outside of the heap")
	// ErrOverlap is returned when Free is passed a range that is already partially or entirely free.
	// This usually indicates a double free.
	ErrOverlap = errors.New("range overlaps a free hole")
	// ErrDestroyed is returned by Alloc and Free after Destroy has been called
	ErrDestroyed = errors.New("heap has been destroyed")
)
