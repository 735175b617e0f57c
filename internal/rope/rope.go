// Package rope implements the persistent, variable-length byte
// container built on top of the page cache in the sibling internal/store
// package: a B-tree-shaped structure whose leaves hold raw content bytes
// and whose interior nodes hold cumulative-size keys alongside child
// pointers, so any offset can be located in O(height) page touches.
//
// A Rope's root is kept pinned in memory for the lifetime of the handle;
// every other page is an ordinary Context-managed sector, subject to the
// same LRU eviction as anything else in the cache. Growth only ever
// happens along the rightmost spine — Append either has room in the
// current last leaf, room to add a new sibling leaf, or (when the root
// itself is full) grows the tree by one level and retries.
package rope

import (
	"fmt"

	"ropestore/internal/store"
)

// Rope is a handle to one rope. It is not safe for concurrent use, for
// the same reason Context is not: the underlying cache has no locking.
type Rope struct {
	ctx  *store.Context
	root *node
}

// Create starts a brand new, empty rope.
func Create(ctx *store.Context) (*Rope, error) {
	elt, err := ctx.Allocate(store.FromRoot)
	if err != nil {
		return nil, err
	}
	root := &node{ctx: ctx, elt: elt, height: 0, dirty: true}
	buf := ctx.CstructInMemory(elt)
	setPageHeight(buf, 0)
	setPageCount(buf, 0)
	ctx.SetFinalize(elt, root.finalizeFunc())
	return &Rope{ctx: ctx, root: root}, nil
}

// New creates a rope pre-filled with data, equivalent to Create followed
// by Append but without the intermediate empty state.
func New(ctx *store.Context, data []byte) (*Rope, error) {
	r, err := Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Append(data); err != nil {
		return nil, err
	}
	return r, nil
}

// Load opens a rope whose root was previously committed at id (typically
// recovered from a directory structure built on top of this package, or
// from Generation.RootID for a single embedded rope). A null pointer
// (store.InvalidID) is not an error: it yields a fresh, empty rope, the
// same as Create, so a caller need not special-case a directory entry
// that has never been written to.
func Load(ctx *store.Context, id store.PageID) (*Rope, error) {
	if id == store.InvalidID {
		return Create(ctx)
	}
	root := loadNode(ctx, id)
	if err := root.ensureLoaded(); err != nil {
		return nil, err
	}
	// ensureLoaded went through Cstruct like any other reference and so
	// attached the root to the LRU; re-pin it so it behaves like a
	// freshly Create'd root for the rest of this handle's lifetime.
	ctx.Pin(root.elt)
	return &Rope{ctx: ctx, root: root}, nil
}

// ID returns the root's current on-disk id and true, or false if the
// root has never been committed (a brand new or freshly mutated rope
// that Flush has not yet been called on).
func (r *Rope) ID() (store.PageID, bool) {
	return r.root.elt.OnDiskID()
}

// Flush resolves the rope's root — and, transitively, every dirty page
// still reachable from it — to a concrete on-disk id. Because the root
// is pinned rather than cache-managed, it is never swept by ordinary
// eviction or by Context.Checkpoint on its own; a caller that needs a
// durable root id (to hand to Context.SetRoot, or to store in its own
// directory structure) must call Flush first.
func (r *Rope) Flush() (store.PageID, error) {
	return r.root.forceCommit()
}

// Size returns the rope's total content length in bytes.
func (r *Rope) Size() uint64 { return r.root.size() }

// Append adds data to the end of the rope, growing the tree by one level
// at a time whenever the current root has no room left for it.
func (r *Rope) Append(data []byte) error {
	for len(data) > 0 {
		leftover, err := r.root.appendInto(data)
		if err != nil {
			return err
		}
		if leftover == nil {
			return nil
		}
		if len(leftover) == len(data) {
			if err := r.growRoot(); err != nil {
				return err
			}
			continue
		}
		data = leftover
	}
	return nil
}

// growRoot wraps the current root in a new, taller root with the old
// root as its sole child, then demotes the old root from pinned to an
// ordinary cache entry.
func (r *Rope) growRoot() error {
	old := r.root
	elt, err := r.ctx.Allocate(store.FromRoot)
	if err != nil {
		return err
	}
	newRoot := &node{ctx: r.ctx, elt: elt, height: old.height + 1, dirty: true}
	buf := r.ctx.CstructInMemory(elt)
	setPageHeight(buf, newRoot.height)
	setPageCount(buf, 0)
	r.ctx.SetFinalize(elt, newRoot.finalizeFunc())

	r.ctx.Attach(old.elt)
	newRoot.appendChild(old, old.size())
	r.root = newRoot
	return nil
}

// BlitToBytes reads up to len(out) content bytes starting at offset into
// out, returning the number of bytes actually read. That count is less
// than len(out) whenever offset+len(out) runs past the rope's current
// size — reading past the end is not an error, it just yields fewer
// bytes, mirroring blit_to_bytes's "requested - leftover" contract.
func (r *Rope) BlitToBytes(offset uint64, out []byte) (int, error) {
	size := r.Size()
	if offset > size {
		return 0, nil
	}
	n := size - offset
	if n > uint64(len(out)) {
		n = uint64(len(out))
	}
	if n == 0 {
		return 0, nil
	}
	if err := r.root.blitTo(offset, out[:n]); err != nil {
		return 0, err
	}
	return int(n), nil
}

// BlitFromString overwrites content bytes starting at offset. If
// offset+len(data) exceeds the rope's current size, the portion that
// falls within bounds is overwritten in place and the remainder is
// appended, growing the rope exactly as a plain Append would.
func (r *Rope) BlitFromString(offset uint64, data []byte) error {
	size := r.Size()
	if offset > size {
		return fmt.Errorf("rope: write offset %d past size %d", offset, size)
	}
	inBounds := size - offset
	if inBounds > uint64(len(data)) {
		inBounds = uint64(len(data))
	}
	if inBounds > 0 {
		if err := r.root.blitFrom(offset, data[:inBounds]); err != nil {
			return err
		}
	}
	if rest := data[inBounds:]; len(rest) > 0 {
		if err := r.Append(rest); err != nil {
			return err
		}
	}
	return nil
}

// ToString returns the rope's full content as a single byte slice.
func (r *Rope) ToString() ([]byte, error) {
	out := make([]byte, r.Size())
	if _, err := r.BlitToBytes(0, out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyChecksum forces every page in the rope to be read from disk (if
// not already resident) and checksum-verified, returning the first
// InvalidChecksumError encountered.
func (r *Rope) VerifyChecksum() error { return r.root.verify() }

// Free discards every page the rope occupies. The handle must not be
// used afterward.
func (r *Rope) Free() error { return r.root.free() }
