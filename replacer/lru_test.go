package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUVictimOrderIsLeastRecentlyUnpinned(t *testing.T) {
	r := NewLRU()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	id, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(1), id)
}

func TestLRUReUnpinDoesNotMove(t *testing.T) {
	r := NewLRU()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	// Re-unpinning an already-tracked frame is idempotent: it must not move.
	r.Unpin(1)

	id, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(1), id)
}

func TestLRUPinRemovesFromTracking(t *testing.T) {
	r := NewLRU()
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	require.Equal(t, 1, r.Size())
	id, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(2), id)
}

func TestLRUPinUntrackedIsNoop(t *testing.T) {
	r := NewLRU()
	r.Pin(7) // never tracked
	require.Equal(t, 0, r.Size())
}

func TestLRUVictimEmptyReturnsFalse(t *testing.T) {
	r := NewLRU()
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestLRUSizeTracksTrackedFrames(t *testing.T) {
	r := NewLRU()
	require.Equal(t, 0, r.Size())
	r.Unpin(1)
	r.Unpin(2)
	require.Equal(t, 2, r.Size())
	r.Victim()
	require.Equal(t, 1, r.Size())
}
