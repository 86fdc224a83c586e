package replacer

import (
	"container/list"
	"sync"
)

// LRU tracks unpinned frames in recency order using a doubly-linked list
// for the ordering plus a map for O(1) removal, the same combination the
// teacher uses inline inside its buffer pool (container/list keyed by page
// id) — pulled out here into its own mutex-guarded component per the
// storage core's component boundary. A frame's position reflects when it
// most recently became unpinned, not when its page was last read: pinned
// frames are considered in-use and are never reordered.
type LRU struct {
	mu       sync.Mutex
	order    *list.List // front = most-recently-unpinned, back = least
	elements map[FrameID]*list.Element
}

var _ Replacer = (*LRU)(nil)

// NewLRU creates an LRU replacer with no tracked frames.
func NewLRU() *LRU {
	return &LRU{
		order:    list.New(),
		elements: make(map[FrameID]*list.Element),
	}
}

// Victim removes and returns the back of the order list.
func (r *LRU) Victim() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	id := back.Value.(FrameID)
	r.order.Remove(back)
	delete(r.elements, id)
	return id, true
}

// Pin removes id from tracking, if present.
func (r *LRU) Pin(id FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.elements[id]; ok {
		r.order.Remove(elem)
		delete(r.elements, id)
	}
}

// Unpin inserts id at the front of the order list, if not already tracked.
func (r *LRU) Unpin(id FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.elements[id]; ok {
		return
	}
	r.elements[id] = r.order.PushFront(id)
}

// Size returns the number of tracked (evictable) frames.
func (r *LRU) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
