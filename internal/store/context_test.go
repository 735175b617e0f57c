package store

import "testing"

func newTestContextT(t *testing.T, pageSize uint32, numSectors uint64, maxLRU, minLRU int) *Context {
	t.Helper()
	disk := NewMemDisk(pageSize, numSectors)
	cfg := DefaultConfig()
	cfg.PageSize = pageSize
	cfg.MaxLRUSize = maxLRU
	cfg.MinLRUSize = minLRU
	ctx, err := Format(disk, FormatOptions{Config: cfg})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return ctx
}

// allocateSimplePage allocates a page that finalizes to Pending with no
// children to patch, for exercising eviction without needing the rope
// package's node shape.
func allocateSimplePage(t *testing.T, ctx *Context, content byte) *Element {
	t.Helper()
	e, err := ctx.Allocate(FromLoad)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	buf := ctx.CstructInMemory(e)
	for i := range buf {
		buf[i] = content
	}
	ctx.SetFinalize(e, func() (FinalizeResult, error) {
		return Pending(0, func(PageID) error { return nil }), nil
	})
	return e
}

func TestAllocateEvictsUnderPressure(t *testing.T) {
	ctx := newTestContextT(t, 128, 64, 3, 1)
	var elts []*Element
	for i := 0; i < 10; i++ {
		elts = append(elts, allocateSimplePage(t, ctx, byte('A'+i)))
	}
	// The cache holds at most 3 pages (maxLRU); the rest must have been
	// committed to disk already.
	committed := 0
	for _, e := range elts {
		if _, ok := e.OnDiskID(); ok {
			committed++
		}
	}
	if committed == 0 {
		t.Fatalf("expected eviction to have committed at least some pages under pressure")
	}
}

func TestSetIDRoundTrip(t *testing.T) {
	ctx := newTestContextT(t, 128, 64, 8, 2)
	e, err := ctx.Allocate(FromLoad)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	ctx.SetID(e, 5)
	if id, ok := e.OnDiskID(); !ok || id != 5 {
		t.Fatalf("OnDiskID() = (%d,%v), want (5,true)", id, ok)
	}
	// Calling SetID again with the same id must be a no-op, not a panic.
	ctx.SetID(e, 5)
}

func TestDiscardAndReuse(t *testing.T) {
	ctx := newTestContextT(t, 128, 64, 8, 2)
	ctx.DiscardRange(10, 5)

	runs, err := ctx.allocateIDs(3)
	if err != nil {
		t.Fatalf("allocateIDs failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Start != 10 || runs[0].Length != 3 {
		t.Fatalf("allocateIDs(3) = %+v, want a single run starting at 10", runs)
	}
}

func TestCheckpointRecoversGenerationAndDiscardRanges(t *testing.T) {
	disk := NewMemDisk(128, 64)
	cfg := DefaultConfig()
	cfg.PageSize = 128
	cfg.MaxLRUSize = 8
	cfg.MinLRUSize = 2

	ctx, err := Format(disk, FormatOptions{Config: cfg})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	ctx.DiscardRange(20, 4)
	ctx.SetRoot(42)
	if _, err := ctx.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	reopened, err := Open(disk, OpenOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	gen := reopened.Generation()
	if gen.RootID != 42 {
		t.Fatalf("RootID = %d, want 42", gen.RootID)
	}
	runs, err := reopened.allocateIDs(4)
	if err != nil {
		t.Fatalf("allocateIDs after reopen failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Start != 20 {
		t.Fatalf("discarded range was not recovered: %+v", runs)
	}
}

func TestOpenRejectsCorruptBothSlots(t *testing.T) {
	disk := NewMemDisk(128, 64)
	// Never formatted: both slots read as zero, which fails the magic
	// check; Open reports that as an unformatted disk.
	if _, err := Open(disk, OpenOptions{}); err == nil {
		t.Fatalf("expected Open on an unformatted disk to fail")
	}
}

func TestFormatRejectsMismatchedPageSize(t *testing.T) {
	disk := NewMemDisk(128, 64)
	cfg := DefaultConfig()
	cfg.PageSize = 256
	_, err := Format(disk, FormatOptions{Config: cfg})
	var wantErr *WrongPageSizeError
	if err == nil {
		t.Fatalf("expected WrongPageSizeError")
	}
	if _, ok := err.(*WrongPageSizeError); !ok {
		t.Fatalf("err = %v (%T), want %T", err, err, wantErr)
	}
}

func TestClearFlushesAllInMemoryPages(t *testing.T) {
	ctx := newTestContextT(t, 128, 64, 8, 2)
	e := allocateSimplePage(t, ctx, 'Z')
	if err := ctx.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := e.OnDiskID(); !ok {
		t.Fatalf("expected page to be committed after Clear")
	}
}
