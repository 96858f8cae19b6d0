package vma

import "golang.org/x/exp/slices"

type hole struct {
	offset uint64
	size   uint64
}

// end returns the first offset past the hole. It is 0 for a hole that reaches the top of the
// address space.
func (h hole) end() uint64 {
	return h.offset + h.size
}

// last returns the final offset inside the hole, which never wraps.
func (h hole) last() uint64 {
	return h.offset + (h.size - 1)
}

// compareDescending orders holes from the highest offset to the lowest, for use with
// slices.BinarySearchFunc
func compareDescending(h hole, target hole) int {
	if h.offset > target.offset {
		return -1
	} else if h.offset < target.offset {
		return 1
	}
	return 0
}

// holeList is the set of free holes, ordered from the highest offset to the lowest
type holeList []hole

// lowIndex returns the index of the first hole whose offset is at or below the provided offset.
// If every hole is above offset, len(l) is returned.
func (l holeList) lowIndex(offset uint64) int {
	index, _ := slices.BinarySearchFunc([]hole(l), hole{offset: offset}, compareDescending)
	return index
}

func (l *holeList) insert(index int, h hole) {
	*l = slices.Insert(*l, index, h)
}

func (l *holeList) remove(index int) {
	*l = slices.Delete(*l, index, index+1)
}
