package store

import "testing"

func TestDiscardSetCoalesces(t *testing.T) {
	var d DiscardSet
	d.AddRange(10, 5) // [10,15)
	d.AddRange(20, 5) // [20,25)
	d.AddRange(15, 5) // bridges the gap -> [10,25)

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after bridging ranges", d.Len())
	}
	ranges := d.DrainAsRanges()
	if len(ranges) != 1 || ranges[0].Start != 10 || ranges[0].Length != 15 {
		t.Fatalf("unexpected merged range: %+v", ranges)
	}
}

func TestDiscardSetAddSingleIDs(t *testing.T) {
	var d DiscardSet
	for _, id := range []PageID{5, 6, 7, 100} {
		d.Add(id)
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (one run of 3, one singleton)", d.Len())
	}
}

func TestDiscardSetTakeRun(t *testing.T) {
	var d DiscardSet
	d.AddRange(10, 3)
	d.AddRange(20, 10)

	start, length, ok := d.TakeRun(100)
	if !ok || start != 10 || length != 3 {
		t.Fatalf("TakeRun(100) = (%d,%d,%v), want (10,3,true)", start, length, ok)
	}
	start, length, ok = d.TakeRun(4)
	if !ok || start != 20 || length != 4 {
		t.Fatalf("TakeRun(4) = (%d,%d,%v), want (20,4,true)", start, length, ok)
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 remaining range", d.Len())
	}

	_, _, ok = (&DiscardSet{}).TakeRun(1)
	if ok {
		t.Fatalf("TakeRun on empty set returned ok=true")
	}
}

func TestDiscardSetTouchingRangesMerge(t *testing.T) {
	var d DiscardSet
	d.AddRange(0, 4) // [0,4)
	d.AddRange(4, 4) // touches at 4 -> [0,8)
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want touching ranges to merge into 1", d.Len())
	}
}
