// Package store implements the persistent page cache that every rope
// lives on top of: an allocator over a fixed-size id space, an LRU-backed
// buffer pool, a coalescing discarded-id set, and the generation/
// superblock record that makes a checkpoint atomic. It corresponds to
// components A-D of the design; component E (the rope itself) lives in
// the sibling internal/rope package and is built entirely on the
// exported surface here.
//
// Context is not safe for concurrent use by multiple goroutines. The
// model is single-threaded and cooperative: the only suspension points
// are the I/O calls Context itself makes into a Disk, never a lock wait.
// safeLRU is a re-entrancy assertion, not a mutual-exclusion lock — it
// catches a caller that lets one Context operation call back into
// another mid-eviction, which is a program bug, not a contended resource.
package store

import (
	"bytes"
	"log"
	"sort"
)

// Context is the page cache described in component D: it owns the
// buffer pool, the LRU list, the id allocator, the discarded-id set, and
// the current generation record, and is the only thing in this package
// that talks to a Disk.
type Context struct {
	disk     Disk
	checksum Checksum
	ids      *IDSpace
	discard  DiscardSet
	lru      Lru
	logger   *log.Logger

	pageSize    uint32
	maxLRUSize  int
	minLRUSize  int
	safeLRU     bool
	gen         Generation
	currentSlot PageID

	pool        [][]byte
	nbAvailable int
}

// AllocSource distinguishes a freshly created root page (pinned: it stays
// off the LRU, and registering a finalizer does not attach it; only an
// explicit Attach does) from a page loaded to satisfy cache pressure
// during ordinary access.
type AllocSource int

const (
	FromRoot AllocSource = iota
	FromLoad
)

func newContext(disk Disk, checksum Checksum, ids *IDSpace, cfg Config, gen Generation, currentSlot PageID, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.Default()
	}
	return &Context{
		disk:        disk,
		checksum:    checksum,
		ids:         ids,
		pageSize:    cfg.PageSize,
		maxLRUSize:  cfg.MaxLRUSize,
		minLRUSize:  cfg.MinLRUSize,
		safeLRU:     true,
		gen:         gen,
		currentSlot: currentSlot,
		logger:      logger,
	}
}

// PageSize returns the fixed page size every sector occupies.
func (c *Context) PageSize() int { return int(c.pageSize) }

// PtrSize returns the narrowest id width, in bytes, for this device —
// the size a rope interior node's child pointers are encoded at.
func (c *Context) PtrSize() int { return c.ids.PtrSize() }

// ChecksumDigestSize returns the number of trailing bytes every page
// reserves for its checksum.
func (c *Context) ChecksumDigestSize() int { return c.checksum.DigestSize() }

// Logger returns the logger Context was configured with (never nil).
func (c *Context) Logger() *log.Logger { return c.logger }

// Generation returns the generation record currently in effect.
func (c *Context) Generation() Generation { return c.gen }

// SetRoot records id as the directory root an embedder will look up on
// the next Open, persisted at the next Checkpoint.
func (c *Context) SetRoot(id PageID) { c.gen.RootID = id }

// protectLRU asserts single-threaded re-entrancy around the eviction
// path. Any attempt to enter a second lru_make_room/lru_clear while one
// is already running — the only way that can happen in a cooperative,
// single-threaded scheduler is a bug in the caller — panics rather than
// corrupting the LRU list.
func (c *Context) protectLRU(f func() error) error {
	if !c.safeLRU {
		fatalf("store: re-entrant call into the eviction path (safe_lru violated)")
	}
	c.safeLRU = false
	defer func() { c.safeLRU = true }()
	return f()
}

// cstructCreate returns a page-sized buffer, reusing one from the pool
// when available instead of allocating.
func (c *Context) cstructCreate() []byte {
	if n := len(c.pool); n > 0 {
		buf := c.pool[n-1]
		c.pool = c.pool[:n-1]
		c.nbAvailable--
		return buf
	}
	return make([]byte, c.pageSize)
}

// releaseToPool returns buffers to the pool for reuse, zeroing them
// first. Faithful to the documented source behaviour: nbAvailable is
// incremented by the whole batch even when that pushes the pool over
// maxLRUSize, so the pool can transiently overshoot its cap by up to
// len(bufs)-1 entries. This divergence is preserved rather than silently
// fixed — see DESIGN.md.
func (c *Context) releaseToPool(bufs [][]byte) {
	if c.nbAvailable >= c.maxLRUSize {
		return
	}
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
		c.pool = append(c.pool, b)
	}
	c.nbAvailable += len(bufs)
}

// Allocate creates a fresh, zeroed, InMemory sector. FromRoot returns a
// detached, pinned element the caller must manage explicitly (typically
// a rope's root). FromLoad attaches it to the LRU, making room first if
// the list is already at capacity.
func (c *Context) Allocate(from AllocSource) (*Element, error) {
	if from == FromRoot {
		return &Element{state: stateInMemory, buf: c.cstructCreate()}, nil
	}
	if c.lru.Length() >= c.maxLRUSize {
		if err := c.protectLRU(c.lruMakeRoomLocked); err != nil {
			return nil, err
		}
	}
	e := &Element{state: stateInMemory, buf: c.cstructCreate()}
	c.lru.PushFront(e)
	return e, nil
}

// Attach moves a detached, InMemory element onto the LRU so it becomes
// eligible for eviction, used when a page that used to be pinned (e.g. a
// rope root demoted by the creation of a new, taller root) starts being
// treated as an ordinary cached page.
func (c *Context) Attach(e *Element) {
	if e.state != stateInMemory {
		fatalf("store: Attach on a non-resident sector")
	}
	if !e.attached && !e.neverAttach {
		c.lru.PushFront(e)
	}
}

// Pin detaches an InMemory element from the LRU without permanently
// barring it from being attached again later (unlike DetachRemove, which
// marks an exiting sector's slot as never cache-managed again). Used to
// keep a rope's root resident for the lifetime of the handle regardless
// of cache pressure, while still allowing a later Attach — e.g. once a
// taller root demotes this one to an ordinary cache entry — to put it
// back under eviction.
func (c *Context) Pin(e *Element) {
	if e.state != stateInMemory {
		fatalf("store: Pin on a non-resident sector")
	}
	c.lru.Detach(e)
}

// Reference creates a detached handle to an existing on-disk page,
// without reading it. The first Cstruct call against it materializes the
// buffer and attaches it to the LRU.
func (c *Context) Reference(id PageID) *Element {
	return &Element{state: stateOnDisk, id: id}
}

// SetFinalize registers the function Context calls when e reaches the
// LRU tail while still InMemory. It must be called before e can be
// observed as evictable — an element with no finalizer is treated as
// unevictable and blocks eviction from progressing past it.
func (c *Context) SetFinalize(e *Element, fn FinalizeFunc) { e.finalize = fn }

// SetID transitions an InMemory sector directly to OnDisk(id), releasing
// its buffer to the pool and detaching it from the LRU. Calling it on a
// sector already OnDisk(id) with the same id is a no-op; any other state
// is a programmer error.
func (c *Context) SetID(e *Element, id PageID) {
	switch e.state {
	case stateInMemory:
		buf := c.commitSector(e, id)
		c.releaseToPool([][]byte{buf})
	case stateOnDisk:
		if e.id != id {
			fatalf("store: SetID id mismatch: sector is %d, requested %d", e.id, id)
		}
	default:
		fatalf("store: SetID on a freed sector")
	}
}

// Unallocate releases a sector's buffer (if any) and marks it Freed.
// Any further access to e panics.
func (c *Context) Unallocate(e *Element) {
	switch e.state {
	case stateInMemory:
		c.releaseToPool([][]byte{e.buf})
		e.buf = nil
	case stateFreed:
		fatalf("store: double unallocate")
	}
	e.state = stateFreed
	e.finalize = nil
	c.lru.DetachRemove(e)
}

// Cstruct returns e's buffer, reading it from disk and transitioning
// OnDisk to InMemory if necessary. Any access bumps e to the
// most-recently-used end of the LRU.
func (c *Context) Cstruct(e *Element) ([]byte, error) {
	switch e.state {
	case stateInMemory:
		c.lru.Use(e)
		return e.buf, nil
	case stateOnDisk:
		buf := c.cstructCreate()
		if err := c.disk.Read(e.id, [][]byte{buf}); err != nil {
			return nil, &ReadError{Err: err}
		}
		if err := c.verifyPage(e.id, buf); err != nil {
			return nil, err
		}
		e.state = stateInMemory
		e.buf = buf
		c.lru.PushFront(e)
		return buf, nil
	default:
		fatalf("store: Cstruct on a freed sector")
		return nil, nil
	}
}

// CstructInMemory returns e's buffer without touching the disk. e must
// already be InMemory; calling it otherwise is a programmer error, since
// callers that aren't sure should use Cstruct instead.
func (c *Context) CstructInMemory(e *Element) []byte {
	if e.state != stateInMemory {
		fatalf("store: CstructInMemory on a non-resident sector")
	}
	return e.buf
}

// Discard marks id as free for reuse by a future allocation.
func (c *Context) Discard(id PageID) { c.discard.Add(id) }

// DiscardRange marks [start, start+length) as free for reuse.
func (c *Context) DiscardRange(start PageID, length uint64) { c.discard.AddRange(start, length) }

// AcquireDiscarded drains and returns the full discarded-range set. Used
// by tests and diagnostics; Checkpoint drains it internally when
// persisting the chain.
func (c *Context) AcquireDiscarded() []Range { return c.discard.DrainAsRanges() }

// commitSector transitions an InMemory sector to OnDisk(id), returning
// its buffer without releasing it to the pool yet — callers that need to
// batch a physical write across several sectors (the eviction commit
// phase, Checkpoint) release the buffers themselves once the write
// completes. The element is only Detach'd, not DetachRemove'd, and its
// finalizer is left in place: a sector's finalizer (a rope node's
// finalizeFunc) keeps the same Element alive for as long as anything in
// memory still references the node, and a later Cstruct call is
// expected to read it back from disk and re-attach it to the LRU like
// any other cached page, evictable again under the same finalizer —
// which simply reports Evicted(id) for as long as nothing has re-dirtied
// it since. DetachRemove and clearing the finalizer are reserved for
// Unallocate, where the sector is actually gone for good.
func (c *Context) commitSector(e *Element, id PageID) []byte {
	if e.state != stateInMemory {
		fatalf("store: commitSector on a non-resident sector")
	}
	buf := e.buf
	e.buf = nil
	e.state = stateOnDisk
	e.id = id
	c.lru.Detach(e)
	return buf
}

// stampPage writes the configured Checksum's digest into the trailing
// DigestSize bytes of buf, over everything preceding it.
func (c *Context) stampPage(buf []byte) {
	n := c.checksum.DigestSize()
	digest := c.checksum.Compute(buf[:len(buf)-n])
	copy(buf[len(buf)-n:], digest)
}

func (c *Context) verifyPage(id PageID, buf []byte) error {
	n := c.checksum.DigestSize()
	want := buf[len(buf)-n:]
	got := c.checksum.Compute(buf[:len(buf)-n])
	if !bytes.Equal(want, got) {
		return &InvalidChecksumError{ID: id}
	}
	return nil
}

// writeRun stamps and writes a contiguous run of pages in one Disk.Write
// call.
func (c *Context) writeRun(start PageID, buffers [][]byte) error {
	for _, buf := range buffers {
		c.stampPage(buf)
	}
	if err := c.disk.Write(start, buffers); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// allocateIDs returns up to n fresh ids as one or more contiguous runs,
// draining the discarded set before extending the allocator's
// high-water mark. It returns ErrDiskIsFull, along with whatever runs it
// did manage to produce, if the device can't satisfy the full request.
func (c *Context) allocateIDs(n int) ([]Range, error) {
	var runs []Range
	remaining := n
	for remaining > 0 {
		if start, length, ok := c.discard.TakeRun(remaining); ok {
			runs = append(runs, Range{Start: start, Length: uint64(length)})
			remaining -= length
			continue
		}
		start, length := c.ids.Bump(remaining)
		if length == 0 {
			return runs, ErrDiskIsFull
		}
		runs = append(runs, Range{Start: start, Length: uint64(length)})
		remaining -= length
	}
	return runs, nil
}

// CommitNow synchronously allocates one id for e, writes its current
// buffer to disk, and transitions it to OnDisk. It is the non-batched
// escape hatch a rope interior node's finalizer uses to force a child
// that is still InMemory — but wasn't itself swept into the current
// eviction batch — to a concrete id before the parent can patch that id
// into its own page. The common case (both parent and child aging out of
// the LRU together) goes through the batched commit path in
// lruMakeRoomLocked instead; this path exists for the uncommon one.
func (c *Context) CommitNow(e *Element) (PageID, error) {
	if e.state != stateInMemory {
		fatalf("store: CommitNow on a non-resident sector")
	}
	runs, err := c.allocateIDs(1)
	if err != nil {
		return 0, err
	}
	id := runs[0].Start
	buf := c.commitSector(e, id)
	if err := c.writeRun(id, [][]byte{buf}); err != nil {
		return 0, err
	}
	c.releaseToPool([][]byte{buf})
	return id, nil
}

type pendingEntry struct {
	elt    *Element
	height int
	write  func(PageID) error
}

// lruMakeRoomLocked implements the eviction algorithm from §4.D: pop
// entries from the LRU tail until either an unevictable entry is reached
// or the list has shrunk to minLRUSize with buffers still available,
// discarding clean OnDisk tails immediately and accumulating sectors that
// need writing into a batch, then committing that batch in one pass
// ordered so that lower-height (closer to leaf) entries write first.
func (c *Context) lruMakeRoomLocked() error {
	var pending []pendingEntry
	for {
		tail := c.lru.PeekBack()
		if tail == nil {
			break
		}
		if tail.finalize == nil {
			break
		}
		if c.lru.Length() <= c.minLRUSize && c.nbAvailable > 0 {
			break
		}
		c.lru.PopBack()

		if tail.state == stateOnDisk {
			c.discard.Add(tail.id)
			continue
		}

		res, err := tail.finalize()
		if err != nil {
			return err
		}
		if res.evicted {
			buf := tail.buf
			tail.buf = nil
			tail.state = stateOnDisk
			tail.id = res.id
			// Leave the finalizer in place, same reasoning as
			// commitSector: a later Cstruct re-attaches tail to the
			// LRU, and its finalizer must still be callable then.
			c.releaseToPool([][]byte{buf})
			continue
		}
		pending = append(pending, pendingEntry{elt: tail, height: res.height, write: res.write})
	}
	if len(pending) == 0 {
		return nil
	}
	return c.commitPending(pending)
}

func (c *Context) commitPending(pending []pendingEntry) error {
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].height < pending[j].height })

	runs, err := c.allocateIDs(len(pending))
	committed := 0
	for _, run := range runs {
		bufs := make([][]byte, 0, run.Length)
		for i := uint64(0); i < run.Length; i++ {
			entry := pending[committed]
			committed++
			id := run.Start + PageID(i)
			if werr := entry.write(id); werr != nil {
				return werr
			}
			bufs = append(bufs, c.commitSector(entry.elt, id))
		}
		if werr := c.writeRun(run.Start, bufs); werr != nil {
			return werr
		}
		c.releaseToPool(bufs)
	}
	if err != nil {
		// Disk filled up partway through the batch. Entries already
		// committed above keep their OnDisk state; anything left over
		// is still InMemory and goes back onto the LRU, at its
		// most-recently-used end.
		for _, entry := range pending[committed:] {
			c.lru.PushFront(entry.elt)
		}
		return err
	}
	if c.logger != nil {
		c.logger.Printf("store: committed eviction batch of %d pages", committed)
	}
	return nil
}

// lruClearLocked is the simpler, unbatched variant Clear and Checkpoint
// use: it pops every entry one at a time, committing each Pending result
// immediately instead of accumulating a shared batch, since there is no
// further cache activity to amortize the batching against.
func (c *Context) lruClearLocked() error {
	for {
		e := c.lru.PopBack()
		if e == nil {
			break
		}
		if e.state != stateInMemory {
			continue
		}
		if e.finalize == nil {
			continue
		}
		res, err := e.finalize()
		if err != nil {
			return err
		}
		var id PageID
		if res.evicted {
			id = res.id
		} else {
			runs, err := c.allocateIDs(1)
			if err != nil {
				return err
			}
			id = runs[0].Start
			if err := res.write(id); err != nil {
				return err
			}
		}
		buf := c.commitSector(e, id)
		if err := c.writeRun(id, [][]byte{buf}); err != nil {
			return err
		}
		c.releaseToPool([][]byte{buf})
	}
	c.pool = nil
	c.nbAvailable = 0
	return nil
}

// Clear evicts the entire LRU to disk and empties the buffer pool. Used
// when shutting a Context down without performing a full checkpoint.
func (c *Context) Clear() error {
	return c.protectLRU(c.lruClearLocked)
}

// persistDiscardRanges writes the discarded-range set as a chain of
// pages, mirroring the teacher's free-list chain but storing coalesced
// ranges instead of individual page ids. It returns InvalidID if there
// was nothing to persist.
func (c *Context) persistDiscardRanges(ranges []Range) (PageID, error) {
	if len(ranges) == 0 {
		return InvalidID, nil
	}
	perPage := discardRangesPerPage(int(c.pageSize))
	chunks := chunkRanges(ranges, perPage)
	runs, err := c.allocateIDs(len(chunks))
	if err != nil {
		return InvalidID, err
	}
	ids := make([]PageID, 0, len(chunks))
	for _, run := range runs {
		for i := uint64(0); i < run.Length; i++ {
			ids = append(ids, run.Start+PageID(i))
		}
	}
	bufs := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		buf := make([]byte, c.pageSize)
		next := InvalidID
		if i+1 < len(chunks) {
			next = ids[i+1]
		}
		encodeDiscardPage(buf, next, chunk)
		bufs[i] = buf
	}
	idx := 0
	for _, run := range runs {
		n := int(run.Length)
		if err := c.writeRun(run.Start, bufs[idx:idx+n]); err != nil {
			return InvalidID, err
		}
		idx += n
	}
	return ids[0], nil
}

// loadDiscardRanges reads back a chain written by persistDiscardRanges.
func (c *Context) loadDiscardRanges(head PageID) ([]Range, error) {
	var out []Range
	for head != InvalidID {
		buf := make([]byte, c.pageSize)
		if err := c.disk.Read(head, [][]byte{buf}); err != nil {
			return nil, &ReadError{Err: err}
		}
		next, ranges := decodeDiscardPage(buf)
		out = append(out, ranges...)
		head = next
	}
	return out, nil
}

// writeGeneration writes g into whichever reserved slot does not
// currently hold the active generation, so a crash mid-write never
// destroys both records.
func (c *Context) writeGeneration(g Generation) error {
	slot := SuperblockSlotA
	if c.currentSlot == SuperblockSlotA {
		slot = SuperblockSlotB
	}
	buf := make([]byte, c.pageSize)
	g.Marshal(buf)
	if err := c.disk.Write(slot, [][]byte{buf}); err != nil {
		return &WriteError{Err: err}
	}
	c.currentSlot = slot
	return nil
}

// Checkpoint flushes every InMemory sector on the LRU to disk, persists
// the discarded-range set, and atomically swaps in a new generation
// record. Pinned sectors, such as a rope's root, are left as they are;
// Rope.Flush is what commits those.
// It is the only durability boundary the core provides — there is no
// multi-operation transaction log, by design (see the Non-goals in
// spec.md §1).
func (c *Context) Checkpoint() (Generation, error) {
	var next Generation
	err := c.protectLRU(func() error {
		if err := c.lruClearLocked(); err != nil {
			return err
		}
		ranges := c.discard.DrainAsRanges()
		discardHead, err := c.persistDiscardRanges(ranges)
		if err != nil {
			return err
		}
		next = c.gen.Next(c.gen.RootID, c.ids.Next(), discardHead)
		if err := c.writeGeneration(next); err != nil {
			return err
		}
		c.gen = next
		return nil
	})
	if err != nil {
		return Generation{}, err
	}
	if c.logger != nil {
		c.logger.Printf("store: checkpoint committed generation %s (sequence %d)", next.ID, next.Sequence)
	}
	return next, nil
}

// Close checkpoints and releases any OS resources the Disk holds, if it
// implements io.Closer.
func (c *Context) Close() error {
	_, err := c.Checkpoint()
	if closer, ok := c.disk.(interface{ Close() error }); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
