package scraper

import (
	"math"
	"sort"
)

// interval is a closed block range.
type interval struct {
	from, to uint32
}

// firstGapAfter walks the sorted, disjoint segments that all start past
// bound and returns the first uncovered gap [a, b] with a > bound. When no
// segment lies beyond the cursor the gap is open-ended.
// Coordinates are int64 so the left side can reuse this routine by
// negation.
func firstGapAfter(bound int64, segments [][2]int64) (int64, int64) {
	x := bound + 1
	for _, seg := range segments {
		if x == seg[0] {
			x = seg[1] + 1
			continue
		}
		return x, seg[0] - 1
	}
	return x, math.MaxInt64 / 2
}

// scheduleRight picks the next right-side range: the lowest uncovered
// interval past indexedTo, clipped to the range size and the finalized
// tip.
func scheduleRight(indexedTo, finalized uint32, covered []interval, rangeSize uint32) (interval, bool) {
	segments := make([][2]int64, 0, len(covered))
	for _, seg := range covered {
		segments = append(segments, [2]int64{int64(seg.from), int64(seg.to)})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i][0] < segments[j][0] })

	a, b := firstGapAfter(int64(indexedTo), segments)
	if clip := a + int64(rangeSize) - 1; b > clip {
		b = clip
	}
	if clip := int64(finalized); b > clip {
		b = clip
	}
	if a > b {
		return interval{}, false
	}
	return interval{from: uint32(a), to: uint32(b)}, true
}

// scheduleLeft is the symmetric choice below indexedFrom, clipped below by
// minimum. Negating coordinates turns it into the right-side computation.
func scheduleLeft(indexedFrom, minimum uint32, covered []interval, rangeSize uint32) (interval, bool) {
	segments := make([][2]int64, 0, len(covered))
	for _, seg := range covered {
		segments = append(segments, [2]int64{-int64(seg.to), -int64(seg.from)})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i][0] < segments[j][0] })

	a, b := firstGapAfter(-int64(indexedFrom), segments)
	if clip := a + int64(rangeSize) - 1; b > clip {
		b = clip
	}
	if clip := -int64(minimum); b > clip {
		b = clip
	}
	if a > b {
		return interval{}, false
	}
	return interval{from: uint32(-b), to: uint32(-a)}, true
}
