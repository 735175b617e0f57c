package store

// Lru is an intrusive doubly linked list of *Element, ordered by access
// recency: head is most-recently-used, tail is least-recently-used.
// "Intrusive" means the list pointers live on Element itself rather than
// in a wrapper node, so attaching and detaching never allocates.
type Lru struct {
	head, tail *Element
	length     int
}

// Length reports how many elements are currently attached.
func (l *Lru) Length() int { return l.length }

// PeekBack returns the least-recently-used element without removing it,
// or nil if the list is empty.
func (l *Lru) PeekBack() *Element { return l.tail }

// PushFront attaches e at the most-recently-used end. e must not already
// be attached.
func (l *Lru) PushFront(e *Element) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	e.attached = true
	l.length++
}

// unlink removes e from the list's internal links without touching its
// attached flag. Safe to call on an element at any position.
func (l *Lru) unlink(e *Element) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
	l.length--
}

// Detach removes e from the list if it is currently attached. It is a
// no-op otherwise, so callers don't need to track attachment state
// themselves.
func (l *Lru) Detach(e *Element) {
	if !e.attached {
		return
	}
	l.unlink(e)
	e.attached = false
}

// DetachRemove detaches e and marks it as never eligible for re-attachment
// (used once a sector leaves the InMemory state for good: OnDisk and Freed
// sectors are never cache-resident).
func (l *Lru) DetachRemove(e *Element) {
	l.Detach(e)
	e.neverAttach = true
}

// Use moves e to the most-recently-used end if it is attached. Touching a
// detached element (e.g. one pinned as FromRoot) is a no-op: detached
// elements aren't subject to LRU ordering at all.
func (l *Lru) Use(e *Element) {
	if !e.attached {
		return
	}
	if l.head == e {
		return
	}
	l.unlink(e)
	e.attached = false
	l.PushFront(e)
}

// PopBack detaches and returns the least-recently-used element, or nil if
// the list is empty.
func (l *Lru) PopBack() *Element {
	e := l.tail
	if e == nil {
		return nil
	}
	l.unlink(e)
	e.attached = false
	return e
}
