package buffer

import "sync"

// Window is a bounded FIFO of the most recent samples, the input for
// feature extraction. Pushing beyond capacity evicts from the front,
// preserving oldest-first order. Backed by a circular array so push
// and evict are O(1).
type Window struct {
	mu    sync.Mutex
	buf   []Sample
	head  int // index of the oldest sample
	count int
}

// NewWindow creates a window with the given capacity
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		buf: make([]Sample, capacity),
	}
}

// Push appends a sample, evicting the oldest once full
func (w *Window) Push(s Sample) {
	w.mu.Lock()
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = s
		w.count++
	} else {
		w.buf[w.head] = s
		w.head = (w.head + 1) % len(w.buf)
	}
	w.mu.Unlock()
}

// Len returns the current sample count
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Capacity returns the maximum sample count
func (w *Window) Capacity() int {
	return len(w.buf)
}

// Snapshot returns the most recent min(n, len) samples oldest-first;
// n <= 0 means everything currently held. The returned slice is a
// copy the caller owns; extraction never shares state with the
// writer.
func (w *Window) Snapshot(n int) []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n <= 0 || n > w.count {
		n = w.count
	}
	out := make([]Sample, n)
	start := w.head + w.count - n
	for i := 0; i < n; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Values returns the most recent min(n, len) sample values
// oldest-first, the shape the feature extractor consumes. Like
// Snapshot, n <= 0 means everything currently held.
func (w *Window) Values(n int) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n <= 0 || n > w.count {
		n = w.count
	}
	out := make([]float64, n)
	start := w.head + w.count - n
	for i := 0; i < n; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)].Value
	}
	return out
}
