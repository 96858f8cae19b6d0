package vma

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/addrspace/memutils"
)

// AddStatistics sums this heap's totals into the provided memutils.Statistics. The heap does
// not track individual allocations, so AllocationCount is left alone.
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	stats.HeapCount++
	stats.HeapBytes += h.size
	stats.AllocationBytes += h.size - h.sumFreeSize
}

// AddDetailedStatistics sums this heap's totals and holes into the provided
// memutils.DetailedStatistics.
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.AddStatistics(&stats.Statistics)

	for _, hl := range h.holes {
		stats.AddHole(hl.size)
	}
}

// Hex formats an offset or size the way it is written to JSON. 64-bit values can't be
// represented exactly as JSON numbers, so they are written as strings.
func Hex(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}

// BlockJsonData populates a json object with summary information about this heap
func (h *Heap) BlockJsonData(json *jwriter.ObjectState) {
	json.Name("Start").String(Hex(h.start))
	json.Name("TotalBytes").String(Hex(h.size))
	json.Name("UnusedBytes").String(Hex(h.sumFreeSize))
	json.Name("UnusedRanges").Int(len(h.holes))
}

// PrintDetailedMap adds a "Holes" array to the json object, listing every hole from the highest
// offset to the lowest
func (h *Heap) PrintDetailedMap(json *jwriter.ObjectState) {
	arrayState := json.Name("Holes").Array()
	defer arrayState.End()

	for _, hl := range h.holes {
		obj := arrayState.Object()
		obj.Name("Offset").String(Hex(hl.offset))
		obj.Name("Size").String(Hex(hl.size))
		obj.End()
	}
}
