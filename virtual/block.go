package virtual

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/addrspace/internal/utils"
	"github.com/vkngwrapper/addrspace/memutils"
	"github.com/vkngwrapper/addrspace/vma"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// CreateOptions describes the range managed by a new Block
type CreateOptions struct {
	// Flags indicates specific block behaviors to activate or deactivate
	Flags CreateFlags
	// Offset is the first offset of the managed range. Offset 0 is reserved and will never be
	// allocated, so a block starting at 0 has one less unit of usable space.
	Offset uint64
	// Size is the length of the managed range. The range may end at exactly 2^64.
	Size uint64
}

// AllocationCreateInfo describes a requested allocation
type AllocationCreateInfo struct {
	// Size is the number of units to allocate. It must be greater than 0.
	Size uint64
	// Alignment is the required alignment of the allocation's offset. It must be a power of two,
	// or 0, which is treated as 1.
	Alignment uint64

	// UserData is an arbitrary value that will be associated with the allocation
	UserData any
}

// Allocation describes a live allocation within a Block
type Allocation struct {
	Offset uint64
	Size   uint64

	UserData any
}

type allocation struct {
	size     uint64
	userData any
}

// Block is an address-space heap that remembers its live allocations. Unlike vma.Heap, allocations
// are freed by offset alone, and it is safe to use a Block from multiple goroutines unless it was
// created with BlockCreateExternallySynchronized.
type Block struct {
	logger *slog.Logger
	mutex  utils.OptionalRWMutex

	heap            vma.Heap
	allocations     *swiss.Map[uint64, allocation]
	allocationBytes uint64
}

var _ memutils.Validatable = &Block{}

// New creates a Block managing the range described in options
func New(logger *slog.Logger, options CreateOptions) (*Block, error) {
	logger.Debug("Block::New",
		slog.String("Offset", vma.Hex(options.Offset)),
		slog.String("Size", vma.Hex(options.Size)),
		slog.String("Flags", options.Flags.String()),
	)

	block := &Block{
		logger:      logger,
		mutex:       utils.OptionalRWMutex{UseMutex: options.Flags&BlockCreateExternallySynchronized == 0},
		allocations: swiss.NewMap[uint64, allocation](42),
	}

	err := block.heap.Init(options.Offset, options.Size)
	if err != nil {
		return nil, err
	}

	return block, nil
}

// Allocate reserves a range within the block. If there is not enough contiguous space for the
// allocation, ErrOutOfSpace is returned.
func (b *Block) Allocate(createInfo AllocationCreateInfo) (Allocation, error) {
	alignment := createInfo.Alignment
	if alignment == 0 {
		alignment = 1
	}

	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return Allocation{}, err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	offset, ok, err := b.heap.Alloc(createInfo.Size, alignment)
	if err != nil {
		return Allocation{}, err
	}

	if !ok {
		b.logger.Debug("Block::Allocate failed",
			slog.String("Size", vma.Hex(createInfo.Size)),
			slog.String("Alignment", vma.Hex(alignment)),
			slog.String("SumFreeSize", vma.Hex(b.heap.SumFreeSize())),
		)
		return Allocation{}, errors.Wrapf(ErrOutOfSpace, "could not allocate 0x%x with alignment 0x%x", createInfo.Size, alignment)
	}

	b.allocations.Put(offset, allocation{size: createInfo.Size, userData: createInfo.UserData})
	b.allocationBytes += createInfo.Size

	return Allocation{
		Offset:   offset,
		Size:     createInfo.Size,
		UserData: createInfo.UserData,
	}, nil
}

// Free releases the allocation at the provided offset
func (b *Block) Free(offset uint64) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	alloc, ok := b.allocations.Get(offset)
	if !ok {
		return errors.Wrapf(ErrUnknownAllocation, "cannot free offset 0x%x", offset)
	}

	err := b.heap.Free(offset, alloc.size)
	if err != nil {
		return err
	}

	b.allocations.Delete(offset)
	b.allocationBytes -= alloc.size

	return nil
}

// AllocationInfo retrieves the size and user data of the allocation at the provided offset
func (b *Block) AllocationInfo(offset uint64) (Allocation, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	alloc, ok := b.allocations.Get(offset)
	if !ok {
		return Allocation{}, errors.Wrapf(ErrUnknownAllocation, "no allocation at offset 0x%x", offset)
	}

	return Allocation{
		Offset:   offset,
		Size:     alloc.size,
		UserData: alloc.userData,
	}, nil
}

// SetAllocationUserData replaces the user data of the allocation at the provided offset
func (b *Block) SetAllocationUserData(offset uint64, userData any) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	alloc, ok := b.allocations.Get(offset)
	if !ok {
		return errors.Wrapf(ErrUnknownAllocation, "cannot set user data at offset 0x%x", offset)
	}

	alloc.userData = userData
	b.allocations.Put(offset, alloc)

	return nil
}

// Clear frees every allocation in the block at once. A destroyed block can't be cleared.
func (b *Block) Clear() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.heap.IsDestroyed() {
		return vma.ErrDestroyed
	}

	err := b.heap.Init(b.heap.Start(), b.heap.Size())
	if err != nil {
		return err
	}

	b.allocations = swiss.NewMap[uint64, allocation](42)
	b.allocationBytes = 0

	return nil
}

// IsEmpty returns true if the block has no live allocations
func (b *Block) IsEmpty() bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.allocations.Count() == 0
}

// AllocationCount returns the number of live allocations in the block
func (b *Block) AllocationCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.allocations.Count()
}

// SumFreeSize returns the number of unallocated units in the block
func (b *Block) SumFreeSize() uint64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.heap.SumFreeSize()
}

// VisitAllRegions calls the provided callback once for each allocation and hole in the block,
// in ascending offset order. The callback must not call back into the block.
func (b *Block) VisitAllRegions(visit func(offset, size uint64, userData any, free bool) error) error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.visitAllRegionsAfterLock(visit)
}

func (b *Block) visitAllRegionsAfterLock(visit func(offset, size uint64, userData any, free bool) error) error {
	offsets := make([]uint64, 0, b.allocations.Count()+b.heap.HoleCount())
	b.allocations.Iter(func(offset uint64, alloc allocation) (stop bool) {
		offsets = append(offsets, offset)
		return false
	})

	holes := make(map[uint64]uint64, b.heap.HoleCount())
	err := b.heap.VisitHoles(func(offset, size uint64) error {
		_, taken := b.allocations.Get(offset)
		if taken {
			return errors.Errorf("the hole at offset 0x%x begins at the same offset as a live allocation", offset)
		}

		holes[offset] = size
		offsets = append(offsets, offset)
		return nil
	})
	if err != nil {
		return err
	}

	slices.Sort(offsets)

	for _, offset := range offsets {
		size, free := holes[offset]
		if free {
			err = visit(offset, size, nil, true)
		} else {
			alloc, _ := b.allocations.Get(offset)
			err = visit(offset, alloc.size, alloc.userData, false)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Validate verifies the block's heap, and that the live allocations and holes exactly tile the
// managed range with no overlaps or gaps. It is fairly expensive and should only be used for
// diagnostics.
func (b *Block) Validate() error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	err := b.heap.Validate()
	if err != nil {
		return err
	}

	if b.heap.IsDestroyed() {
		if b.allocations.Count() > 0 || b.allocationBytes > 0 {
			return errors.Errorf("destroyed block still has %d allocations", b.allocations.Count())
		}
		return nil
	}

	if b.heap.SumFreeSize()+b.allocationBytes != b.heap.Size() {
		return errors.Errorf("the block has size 0x%x, but its free size 0x%x and allocated size 0x%x do not add up to it",
			b.heap.Size(), b.heap.SumFreeSize(), b.allocationBytes)
	}

	next := b.heap.Start()
	var allocationBytes uint64
	var allocationCount int

	err = b.visitAllRegionsAfterLock(func(offset, size uint64, userData any, free bool) error {
		if offset != next {
			return errors.Errorf("expected a region at offset 0x%x, but the next region is at offset 0x%x", next, offset)
		}

		if !free {
			allocationBytes += size
			allocationCount++
		}

		next = offset + size
		return nil
	})
	if err != nil {
		return err
	}

	if next != b.heap.Start()+b.heap.Size() {
		return errors.Errorf("the regions of the block end at offset 0x%x, but the block ends at 0x%x", next, b.heap.Start()+b.heap.Size())
	}

	if allocationBytes != b.allocationBytes {
		return errors.Errorf("the allocated size of the block is 0x%x, but the allocations only added up to 0x%x", b.allocationBytes, allocationBytes)
	}

	if allocationCount != b.allocations.Count() {
		return errors.Errorf("the block has %d allocations, but only %d were visited", b.allocations.Count(), allocationCount)
	}

	return nil
}

// Destroy releases the block. If any allocations are still live, each is logged at error level,
// the block is left intact, and ErrUnreleasedAllocations is returned.
func (b *Block) Destroy() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.allocations.Count() > 0 {
		b.allocations.Iter(func(offset uint64, alloc allocation) (stop bool) {
			b.logUnreleasedAllocation(offset, alloc)
			return false
		})

		return errors.Wrapf(ErrUnreleasedAllocations, "%d allocations remain", b.allocations.Count())
	}

	b.heap.Destroy()
	return nil
}

func (b *Block) logUnreleasedAllocation(offset uint64, alloc allocation) {
	b.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.String("offset", vma.Hex(offset)),
		slog.String("size", vma.Hex(alloc.size)),
		slog.Any("userData", alloc.userData),
	)
}
