package vma_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/addrspace/vma"
	"golang.org/x/exp/slices"
)

type liveAllocation struct {
	offset uint64
	size   uint64
}

func requireDisjoint(t *testing.T, heap *vma.Heap, live []liveAllocation) {
	t.Helper()

	var ranges []span
	for _, alloc := range live {
		ranges = append(ranges, span{Offset: alloc.offset, Size: alloc.size})
	}
	ranges = append(ranges, holes(t, heap)...)

	offsets := make([]uint64, 0, len(ranges))
	sizes := make(map[uint64]uint64, len(ranges))
	for _, r := range ranges {
		_, duplicate := sizes[r.Offset]
		require.False(t, duplicate, "two ranges start at offset 0x%x", r.Offset)

		offsets = append(offsets, r.Offset)
		sizes[r.Offset] = r.Size
	}
	slices.Sort(offsets)

	// Allocations and holes together must tile the heap exactly
	next := heap.Start()
	for _, offset := range offsets {
		require.Equal(t, next, offset, "gap or overlap at offset 0x%x", offset)
		next = offset + sizes[offset]
	}
	require.Equal(t, heap.Start()+heap.Size(), next)
}

func TestHeapRandomAllocFree(t *testing.T) {
	heap, err := vma.New(0x10000, 0x400000)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var live []liveAllocation
	var liveBytes uint64

	for step := 0; step < 3000; step++ {
		if len(live) == 0 || rng.Intn(5) < 3 {
			size := uint64(1 + rng.Intn(0x8000))
			alignment := uint64(1) << rng.Intn(14)

			offset, ok, err := heap.Alloc(size, alignment)
			require.NoError(t, err)
			if !ok {
				// Any hole with room for the alignment padding must have been usable
				require.False(t, heap.MayHaveFreeBlock(size+alignment-1),
					"step %d: alloc of 0x%x failed with a large enough hole", step, size)
				continue
			}

			require.NotZero(t, offset)
			require.Zero(t, offset%alignment, "step %d: offset 0x%x is not aligned to 0x%x", step, offset, alignment)

			live = append(live, liveAllocation{offset: offset, size: size})
			liveBytes += size
		} else {
			index := rng.Intn(len(live))
			alloc := live[index]
			live = append(live[:index], live[index+1:]...)
			liveBytes -= alloc.size

			require.NoError(t, heap.Free(alloc.offset, alloc.size), "step %d", step)
		}

		require.NoError(t, heap.Validate(), "step %d", step)
		require.Equal(t, heap.Size(), heap.SumFreeSize()+liveBytes, "step %d", step)

		if step%100 == 0 {
			requireDisjoint(t, heap, live)
		}
	}

	requireDisjoint(t, heap, live)

	rng.Shuffle(len(live), func(i, j int) {
		live[i], live[j] = live[j], live[i]
	})
	for _, alloc := range live {
		require.NoError(t, heap.Free(alloc.offset, alloc.size))
		require.NoError(t, heap.Validate())
	}

	require.True(t, heap.IsEmpty())
	require.Equal(t, []span{{0x10000, 0x400000}}, holes(t, heap))
}

func TestHeapExhaustion(t *testing.T) {
	heap, err := vma.New(0x1000, 0x10000)
	require.NoError(t, err)

	var count int
	for {
		_, ok, err := heap.Alloc(0x1000, 0x1000)
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}

	require.Equal(t, 0x10, count)
	require.Zero(t, heap.SumFreeSize())
	require.Zero(t, heap.HoleCount())
}
