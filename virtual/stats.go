package virtual

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/addrspace/memutils"
	"github.com/vkngwrapper/addrspace/vma"
)

// AddStatistics sums this block's totals into the provided memutils.Statistics
func (b *Block) AddStatistics(stats *memutils.Statistics) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	b.heap.AddStatistics(stats)
	stats.AllocationCount += b.allocations.Count()
}

// AddDetailedStatistics sums this block's totals, holes and allocations into the provided
// memutils.DetailedStatistics
func (b *Block) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	b.addDetailedStatisticsAfterLock(stats)
}

func (b *Block) addDetailedStatisticsAfterLock(stats *memutils.DetailedStatistics) {
	stats.HeapCount++
	stats.HeapBytes += b.heap.Size()

	_ = b.heap.VisitHoles(func(offset, size uint64) error {
		stats.AddHole(size)
		return nil
	})

	b.allocations.Iter(func(offset uint64, alloc allocation) (stop bool) {
		stats.AddAllocation(alloc.size)
		return false
	})
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("HeapCount").Int(stats.HeapCount)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("HoleCount").Int(stats.HoleCount)
	json.Name("HeapBytes").String(vma.Hex(stats.HeapBytes))
	json.Name("AllocationBytes").String(vma.Hex(stats.AllocationBytes))

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").String(vma.Hex(stats.AllocationSizeMin))
		json.Name("AllocationSizeMax").String(vma.Hex(stats.AllocationSizeMax))
	}

	if stats.HoleCount > 0 {
		json.Name("HoleSizeMin").String(vma.Hex(stats.HoleSizeMin))
		json.Name("HoleSizeMax").String(vma.Hex(stats.HoleSizeMax))
	}
}

// BuildStatsString returns a json document describing the block. If detailed is true, every
// hole and allocation is listed as well.
func (b *Block) BuildStatsString(detailed bool) string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	var stats memutils.DetailedStatistics
	stats.Clear()
	b.addDetailedStatisticsAfterLock(&stats)

	totalObj := obj.Name("Total").Object()
	printDetailedStatistics(&totalObj, &stats)
	totalObj.End()

	if detailed {
		heapObj := obj.Name("Heap").Object()
		b.heap.BlockJsonData(&heapObj)
		heapObj.Name("Allocations").Int(b.allocations.Count())
		b.heap.PrintDetailedMap(&heapObj)
		b.printDetailedMapAllocations(&heapObj)
		heapObj.End()
	}

	obj.End()

	return string(writer.Bytes())
}

func (b *Block) printDetailedMapAllocations(json *jwriter.ObjectState) {
	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	_ = b.visitAllRegionsAfterLock(func(offset, size uint64, userData any, free bool) error {
		if free {
			return nil
		}

		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").String(vma.Hex(offset))
		obj.Name("Size").String(vma.Hex(size))

		if userData != nil {
			obj.Name("CustomData").String(fmt.Sprintf("%+v", userData))
		}

		return nil
	})
}
