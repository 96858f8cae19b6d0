package virtual

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfSpace is returned from Block.Allocate when no free range can hold the requested allocation
	ErrOutOfSpace = errors.New("not enough free space in the virtual block")
	// ErrUnknownAllocation is returned when an offset is passed to Block that does not match a live allocation
	ErrUnknownAllocation = errors.New("no allocation exists at the provided offset")
	// ErrUnreleasedAllocations is returned from Block.Destroy when allocations are still live
	ErrUnreleasedAllocations = errors.New("some allocations were not freed before the destruction of this block")
)
