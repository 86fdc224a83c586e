// Package replacer implements victim-frame selection for the Buffer Pool.
// A Replacer tracks only frame ids; page identity is the Buffer Pool's
// concern.
package replacer

// FrameID indexes a slot in the Buffer Pool's frame array.
type FrameID int

// Replacer is the capability set the Buffer Pool depends on: victim
// selection over the set of unpinned, resident frames. LRU is the only
// implementation this core ships, but other policies (Clock, LFU) are
// substitutable behind this interface without touching the Buffer Pool.
type Replacer interface {
	// Victim removes and returns the least-recently-used tracked frame.
	// Returns (0, false) when no frame is tracked.
	Victim() (FrameID, bool)

	// Pin removes id from tracking: the caller promises it is now pinned.
	// Idempotent if id is not currently tracked.
	Pin(id FrameID)

	// Unpin inserts id into tracking as the most-recently-unpinned frame.
	// Idempotent if id is already tracked.
	Unpin(id FrameID)

	// Size returns the current count of tracked (evictable) frames.
	Size() int
}
