package rope

import (
	"fmt"
	"sort"

	"ropestore/internal/store"
)

// node is one page of a rope: either a leaf holding up to maxLeafBytes
// raw content bytes, or an interior page holding up to maxChildren
// {cumulative size, child id} entries. A node may represent a page that
// has never been materialized (elt == nil, id holds its on-disk
// location) — ensureLoaded turns that into a live page on first access.
//
// dirty distinguishes a page whose content is unchanged from what id
// already names on disk (safe to report Evicted with no write) from one
// that was created or mutated since it was last resolved to an id (must
// go through Pending). This is what lets an untouched subtree survive a
// whole eviction pass without ever being rewritten.
type node struct {
	ctx    *store.Context
	elt    *store.Element
	id     store.PageID
	height int
	dirty  bool

	leafLen int

	children []*node
	keys     []uint64 // cumulative sizes; keys[i] = total size of children[0..i]
}

func loadNode(ctx *store.Context, id store.PageID) *node {
	return &node{ctx: ctx, id: id}
}

// ensureLoaded materializes a node that was referenced but never
// touched, decoding its header and (for interior nodes) its child table
// into stub, not-yet-loaded child nodes.
func (n *node) ensureLoaded() error {
	if n.elt != nil {
		return nil
	}
	elt := n.ctx.Reference(n.id)
	buf, err := n.ctx.Cstruct(elt)
	if err != nil {
		return err
	}
	n.elt = elt
	n.height = pageHeight(buf)
	count := pageCount(buf)
	if n.height == 0 {
		n.leafLen = count
	} else {
		ptrSize := n.ctx.PtrSize()
		n.children = make([]*node, count)
		n.keys = make([]uint64, count)
		for i := 0; i < count; i++ {
			n.keys[i] = readKey(buf, i, ptrSize)
			n.children[i] = loadNode(n.ctx, store.PageID(readChildPtr(buf, i, ptrSize)))
		}
	}
	n.ctx.SetFinalize(elt, n.finalizeFunc())
	return nil
}

// size returns the total content length of the subtree rooted at n,
// valid once n is loaded.
func (n *node) size() uint64 {
	if n.height == 0 {
		return uint64(n.leafLen)
	}
	if len(n.keys) == 0 {
		return 0
	}
	return n.keys[len(n.keys)-1]
}

func (n *node) usablePageSize() int {
	return n.ctx.PageSize() - n.ctx.ChecksumDigestSize()
}

// finalizeFunc is what Context calls when n reaches the LRU tail. A
// clean node (never mutated since it was loaded from, or committed to,
// n.id) needs no write at all. A dirty node must have its children
// resolved to concrete ids — forcing any that are still in memory and
// weren't independently evicted this same pass — before it can be
// written under a freshly allocated id.
func (n *node) finalizeFunc() store.FinalizeFunc {
	return func() (store.FinalizeResult, error) {
		if !n.dirty {
			return store.Evicted(n.id), nil
		}
		height := n.height
		return store.Pending(height, func(id store.PageID) error {
			if n.height > 0 {
				if err := n.patchChildren(); err != nil {
					return err
				}
			}
			n.id = id
			n.dirty = false
			return nil
		}), nil
	}
}

// patchChildren writes every child's current id into n's own buffer.
// A child already resolved to an id (on disk, possibly just this
// eviction pass, since lower heights commit first) is cheap; a child
// still in memory and not part of this batch is forced via forceCommit.
func (n *node) patchChildren() error {
	buf := n.ctx.CstructInMemory(n.elt)
	ptrSize := n.ctx.PtrSize()
	for i, child := range n.children {
		var id store.PageID
		switch {
		case child.elt == nil:
			id = child.id
		default:
			if cid, ok := child.elt.OnDiskID(); ok {
				id = cid
			} else {
				var err error
				id, err = child.forceCommit()
				if err != nil {
					return err
				}
			}
		}
		writeChildPtr(buf, i, uint64(id), ptrSize)
	}
	return nil
}

// forceCommit resolves n to a concrete on-disk id outside of the normal
// eviction path, recursing into n's own children first if n is dirty and
// interior. Used only when a parent being committed finds a child that
// is still in memory but wasn't itself swept into the same eviction
// batch.
func (n *node) forceCommit() (store.PageID, error) {
	if id, ok := n.elt.OnDiskID(); ok {
		return id, nil
	}
	if !n.dirty {
		n.ctx.SetID(n.elt, n.id)
		return n.id, nil
	}
	if n.height > 0 {
		if err := n.patchChildren(); err != nil {
			return 0, err
		}
	}
	id, err := n.ctx.CommitNow(n.elt)
	if err != nil {
		return 0, err
	}
	n.id = id
	n.dirty = false
	return id, nil
}

func (n *node) newChildLeaf(data []byte) (*node, error) {
	elt, err := n.ctx.Allocate(store.FromLoad)
	if err != nil {
		return nil, err
	}
	leaf := &node{ctx: n.ctx, elt: elt, height: 0, leafLen: len(data), dirty: true}
	buf := n.ctx.CstructInMemory(elt)
	setPageHeight(buf, 0)
	setPageCount(buf, len(data))
	copy(buf[headerSize:], data)
	n.ctx.SetFinalize(elt, leaf.finalizeFunc())
	return leaf, nil
}

func (n *node) rewriteHeader() {
	buf := n.ctx.CstructInMemory(n.elt)
	setPageHeight(buf, n.height)
	setPageCount(buf, len(n.children))
}

// appendChild adds child as n's new rightmost entry with cumulative size
// running total running.
func (n *node) appendChild(child *node, running uint64) {
	n.children = append(n.children, child)
	n.keys = append(n.keys, running)
	n.rewriteHeader()
	writeKey(n.ctx.CstructInMemory(n.elt), len(n.keys)-1, running, n.ctx.PtrSize())
	n.dirty = true
}

func (n *node) bumpLastKey(delta uint64) {
	last := len(n.keys) - 1
	n.keys[last] += delta
	writeKey(n.ctx.CstructInMemory(n.elt), last, n.keys[last], n.ctx.PtrSize())
	n.dirty = true
}

// appendInto absorbs as much of data as fits into n (and its rightmost
// descendants), returning whatever did not fit (nil if all of it did).
// Growth only ever happens along the rightmost spine: an interior node
// first tries to push into its last child, then appends fresh sibling
// leaves for whatever remains as long as it has room for more children.
func (n *node) appendInto(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if err := n.ensureLoaded(); err != nil {
		return data, err
	}
	if n.height == 0 {
		return n.appendLeaf(data)
	}
	return n.appendInterior(data)
}

func (n *node) appendLeaf(data []byte) ([]byte, error) {
	usable := n.usablePageSize()
	room := maxLeafBytes(usable) - n.leafLen
	if room <= 0 {
		return data, nil
	}
	take := len(data)
	if take > room {
		take = room
	}
	buf := n.ctx.CstructInMemory(n.elt)
	copy(buf[headerSize+n.leafLen:], data[:take])
	n.leafLen += take
	setPageCount(buf, n.leafLen)
	n.dirty = true
	if take == len(data) {
		return nil, nil
	}
	return data[take:], nil
}

func (n *node) appendInterior(data []byte) ([]byte, error) {
	remaining := data
	if len(n.children) > 0 {
		last := n.children[len(n.children)-1]
		leftover, err := last.appendInto(remaining)
		if err != nil {
			return data, err
		}
		consumed := uint64(len(remaining))
		if leftover != nil {
			consumed -= uint64(len(leftover))
		}
		if consumed > 0 {
			n.bumpLastKey(consumed)
		}
		remaining = leftover
		if remaining == nil {
			return nil, nil
		}
	}

	usable := n.usablePageSize()
	maxLeaf := maxLeafBytes(usable)
	maxKids := maxChildren(usable, n.ctx.PtrSize())
	for len(remaining) > 0 && len(n.children) < maxKids {
		chunk := remaining
		if len(chunk) > maxLeaf {
			chunk = chunk[:maxLeaf]
		}
		leaf, err := n.newChildLeaf(chunk)
		if err != nil {
			return data, err
		}
		running := uint64(len(chunk))
		if len(n.keys) > 0 {
			running += n.keys[len(n.keys)-1]
		}
		n.appendChild(leaf, running)
		remaining = remaining[len(chunk):]
	}
	if len(remaining) == 0 {
		return nil, nil
	}
	return remaining, nil
}

// blitTo copies len(out) content bytes starting at offset into out.
func (n *node) blitTo(offset uint64, out []byte) error {
	if len(out) == 0 {
		return nil
	}
	if err := n.ensureLoaded(); err != nil {
		return err
	}
	if n.height == 0 {
		buf, err := n.ctx.Cstruct(n.elt)
		if err != nil {
			return err
		}
		start := headerSize + int(offset)
		copy(out, buf[start:start+len(out)])
		return nil
	}
	idx := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] > offset })
	prev := uint64(0)
	if idx > 0 {
		prev = n.keys[idx-1]
	}
	local := offset - prev
	pos := 0
	for idx < len(n.children) && pos < len(out) {
		childEnd := n.keys[idx]
		avail := childEnd - prev - local
		want := uint64(len(out) - pos)
		take := want
		if take > avail {
			take = avail
		}
		child := n.children[idx]
		if err := child.blitTo(local, out[pos:pos+int(take)]); err != nil {
			return err
		}
		pos += int(take)
		idx++
		prev = childEnd
		local = 0
	}
	if pos < len(out) {
		return fmt.Errorf("rope: read out of bounds")
	}
	return nil
}

// blitFrom overwrites len(data) existing content bytes starting at
// offset. It never extends the rope's size — only Append does that.
func (n *node) blitFrom(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := n.ensureLoaded(); err != nil {
		return err
	}
	if n.height == 0 {
		buf, err := n.ctx.Cstruct(n.elt)
		if err != nil {
			return err
		}
		start := headerSize + int(offset)
		copy(buf[start:], data)
		n.dirty = true
		return nil
	}
	idx := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] > offset })
	prev := uint64(0)
	if idx > 0 {
		prev = n.keys[idx-1]
	}
	local := offset - prev
	pos := 0
	for idx < len(n.children) && pos < len(data) {
		childEnd := n.keys[idx]
		avail := childEnd - prev - local
		want := uint64(len(data) - pos)
		take := want
		if take > avail {
			take = avail
		}
		child := n.children[idx]
		if err := child.blitFrom(local, data[pos:pos+int(take)]); err != nil {
			return err
		}
		// The child's identity may change at its next commit even though
		// its size didn't, so the pointer to it must be rewritten too.
		n.dirty = true
		pos += int(take)
		idx++
		prev = childEnd
		local = 0
	}
	if pos < len(data) {
		return fmt.Errorf("rope: write out of bounds")
	}
	return nil
}

// free discards every page in the subtree rooted at n, post-order so a
// parent's child pointers are never dereferenced after the children
// they name have already been unallocated.
func (n *node) free() error {
	if err := n.ensureLoaded(); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.free(); err != nil {
			return err
		}
	}
	if id, ok := n.elt.OnDiskID(); ok {
		n.ctx.Discard(id)
	} else if !store.Reserved(n.id) {
		// Resident, but read from (or last committed to) n.id on disk.
		n.ctx.Discard(n.id)
	}
	n.ctx.Unallocate(n.elt)
	return nil
}

// verify walks the subtree rooted at n, reading each page before its
// children and forcing every page that is not resident to be read (and
// therefore checksum-verified by Context.Cstruct). It shares free's
// child iteration rather than introducing a second walking convention.
func (n *node) verify() error {
	if err := n.ensureLoaded(); err != nil {
		return err
	}
	if _, onDisk := n.elt.OnDiskID(); onDisk {
		if _, err := n.ctx.Cstruct(n.elt); err != nil {
			return err
		}
	}
	for _, c := range n.children {
		if err := c.verify(); err != nil {
			return err
		}
	}
	return nil
}
