// Package buffer holds the two bounded sample stores the acquisition
// loop writes into: a fixed ring for the live display and a larger
// FIFO window for feature extraction. Both are safe for one writer
// and concurrent snapshot readers.
package buffer

import "time"

// Sample is one numeric physiological reading with its receipt
// timestamp. Immutable once created; buffers store copies, not
// shared references.
type Sample struct {
	Value      float64
	ReceivedAt time.Time
}
