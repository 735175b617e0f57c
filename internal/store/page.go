package store

// sectorState is the tagged-union discriminant for a page's residency.
// The zero value, stateInMemory, is deliberately not the "quiescent"
// state — every Element is constructed explicitly by Context, never via
// a zero-valued struct literal.
type sectorState uint8

const (
	stateInMemory sectorState = iota
	stateOnDisk
	stateFreed
)

// FinalizeFunc is invoked by Context when an InMemory sector reaches the
// LRU tail and must leave memory. It decides how: either the sector is
// already resolvable to a concrete on-disk id with no further I/O
// (Evicted), or it still needs an id allocated and its content patched
// before it can be written out (Pending). See Context's eviction loop in
// context.go for how the two results are handled.
type FinalizeFunc func() (FinalizeResult, error)

// FinalizeResult is the outcome of invoking a sector's FinalizeFunc.
// Construct with Evicted or Pending, never with a struct literal.
type FinalizeResult struct {
	evicted bool
	id      PageID
	height  int
	write   func(PageID) error
}

// Evicted reports that the sector's content is unchanged from what is
// already on disk at id (a clean page being dropped from cache with no
// write required).
func Evicted(id PageID) FinalizeResult {
	return FinalizeResult{evicted: true, id: id}
}

// Pending reports that the sector must be written before it can leave
// memory. height orders this entry relative to others accumulated in the
// same eviction batch: entries are committed from the smallest height
// upward, so a rope leaf (height 0) always commits before any of its
// ancestors that might be evicted in the same pass. write is called with
// the id the allocator assigned once it is this entry's turn; it must
// patch the sector's own buffer (via Context.CstructInMemory) in place
// and must not write that sector itself — Context batches its physical
// write across the whole run. (A rope node's write may still commit
// other, unbatched sectors through Context.CommitNow.)
func Pending(height int, write func(PageID) error) FinalizeResult {
	return FinalizeResult{height: height, write: write}
}

// Element is a handle to a single cached page. Its state is a tagged
// union: InMemory sectors hold a live buffer and may be attached to the
// LRU list; OnDisk sectors hold only an id; Freed sectors hold nothing
// and any further access is a programmer error.
type Element struct {
	state    sectorState
	buf      []byte
	id       PageID
	finalize FinalizeFunc

	attached    bool
	neverAttach bool
	prev, next  *Element
}

// InMemory reports whether the sector currently holds a live buffer.
func (e *Element) InMemory() bool { return e.state == stateInMemory }

// OnDiskID returns the sector's on-disk id and true if it is in the
// OnDisk state, or the zero id and false otherwise.
func (e *Element) OnDiskID() (PageID, bool) {
	if e.state != stateOnDisk {
		return 0, false
	}
	return e.id, true
}

// Freed reports whether the sector has been unallocated.
func (e *Element) Freed() bool { return e.state == stateFreed }
