package store

import "sort"

// Range is a half-open run of page ids [Start, Start+Length).
type Range struct {
	Start  PageID
	Length uint64
}

// End returns the exclusive end of the range.
func (r Range) End() PageID { return r.Start + PageID(r.Length) }

// DiscardSet is the set of page ids that have been freed and are
// available for reuse. It stores its contents as a sorted list of
// non-overlapping, non-adjacent ranges, coalescing on insert so that a
// long run of freed ids — the common case when an entire rope subtree is
// dropped — occupies one entry instead of one per id.
type DiscardSet struct {
	ranges []Range
}

// Add marks a single id as discarded.
func (d *DiscardSet) Add(id PageID) {
	d.AddRange(id, 1)
}

// AddRange marks [start, start+length) as discarded, merging with any
// overlapping or adjacent existing ranges.
func (d *DiscardSet) AddRange(start PageID, length uint64) {
	if length == 0 {
		return
	}
	end := start + PageID(length)

	i := sort.Search(len(d.ranges), func(i int) bool { return d.ranges[i].Start >= start })

	// Check whether the range immediately before i overlaps or touches
	// the new range; if so, fold the new range into it and back up i.
	if i > 0 && d.ranges[i-1].End() >= start {
		i--
		start = d.ranges[i].Start
		if d.ranges[i].End() > end {
			end = d.ranges[i].End()
		}
	}

	// Absorb every following range that the [start, end) span now covers.
	j := i
	for j < len(d.ranges) && d.ranges[j].Start <= end {
		if d.ranges[j].End() > end {
			end = d.ranges[j].End()
		}
		j++
	}

	merged := Range{Start: start, Length: uint64(end - start)}
	d.ranges = append(d.ranges[:i], append([]Range{merged}, d.ranges[j:]...)...)
}

// TakeRun removes up to maxLen ids from the lowest-numbered range and
// returns them as a single contiguous run. ok is false if the set is
// empty. Reusing the lowest ids first keeps device usage compact, which
// matters for devices that benefit from locality.
func (d *DiscardSet) TakeRun(maxLen int) (start PageID, length int, ok bool) {
	if len(d.ranges) == 0 || maxLen <= 0 {
		return 0, 0, false
	}
	r := &d.ranges[0]
	n := uint64(maxLen)
	if n >= r.Length {
		start, length = r.Start, int(r.Length)
		d.ranges = d.ranges[1:]
		return start, length, true
	}
	start = r.Start
	r.Start += PageID(n)
	r.Length -= n
	return start, maxLen, true
}

// DrainAsRanges removes and returns every range currently held, emptying
// the set. Used when persisting the discarded set to the superblock at
// checkpoint time.
func (d *DiscardSet) DrainAsRanges() []Range {
	out := d.ranges
	d.ranges = nil
	return out
}

// Len reports how many coalesced ranges are currently held (not the
// total number of discarded ids).
func (d *DiscardSet) Len() int { return len(d.ranges) }
