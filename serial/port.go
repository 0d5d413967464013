package serial

import (
	"io"
	"sync"
	"time"
)

// PortConfig contains serial port configuration settings
type PortConfig struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "none", "odd", "even", "mark", "space"

	// ReadTimeout bounds a single Read call so polls never block
	// longer than this. Zero means the implementation default.
	ReadTimeout time.Duration
}

// Port defines the interface for serial port operations on the
// receive side. Read must be a bounded poll: it returns whatever
// bytes are available (possibly none) within the configured read
// timeout and never blocks indefinitely.
type Port interface {
	io.ReadCloser

	// Device returns the device path
	Device() string

	// IsOpen returns true if the port is currently open
	IsOpen() bool

	// ResetBuffers discards any pending input and output
	ResetBuffers() error
}

// Stats tracks statistics for a serial port
type Stats struct {
	BytesReceived int64
	ReadErrors    int64
	LastDataTime  time.Time
	OpenedAt      time.Time
}

// PortWithStats wraps a Port with statistics tracking
type PortWithStats struct {
	Port

	mu    sync.Mutex
	stats Stats
}

// NewPortWithStats creates a new port wrapper with statistics
func NewPortWithStats(port Port) *PortWithStats {
	return &PortWithStats{
		Port: port,
		stats: Stats{
			OpenedAt: time.Now(),
		},
	}
}

// Read reads from the port and tracks statistics
func (p *PortWithStats) Read(buf []byte) (int, error) {
	n, err := p.Port.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.ReadErrors++
		return n, err
	}
	if n > 0 {
		p.stats.BytesReceived += int64(n)
		p.stats.LastDataTime = time.Now()
	}
	return n, nil
}

// Stats returns a copy of the current statistics
func (p *PortWithStats) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
