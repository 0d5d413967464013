package buffer

import "sync"

// Ring is a fixed-capacity circular store of the most recent samples
// for visualization. Slots are pre-filled with zero samples, so a
// snapshot always has exactly the configured capacity; pushes
// overwrite the oldest slot. A mutex guards cursor and slots together
// so a snapshot never observes a torn rotation.
type Ring struct {
	mu     sync.Mutex
	slots  []Sample
	cursor int
	writes int64
}

// NewRing creates a ring with the given capacity
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		slots: make([]Sample, capacity),
	}
}

// Push stores a sample in the oldest slot. O(1), never blocks a
// concurrent Snapshot for more than a slot write.
func (r *Ring) Push(s Sample) {
	r.mu.Lock()
	r.slots[r.cursor] = s
	r.cursor = (r.cursor + 1) % len(r.slots)
	r.writes++
	r.mu.Unlock()
}

// Snapshot returns the capacity most recent samples oldest-first,
// reconstructed by rotating the slot array around the cursor. The
// returned slice is a copy the caller owns.
func (r *Ring) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sample, len(r.slots))
	n := copy(out, r.slots[r.cursor:])
	copy(out[n:], r.slots[:r.cursor])
	return out
}

// Capacity returns the fixed slot count
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Writes returns the total number of pushes
func (r *Ring) Writes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}
