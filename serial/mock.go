package serial

import (
	"bytes"
	"fmt"
	"sync"
)

// MockPort implements Port for testing purposes. Bytes queued with
// Feed become available to Read; an empty queue reads as (0, nil),
// matching a timed-out poll on a real port.
type MockPort struct {
	mu      sync.Mutex
	pending bytes.Buffer
	device  string
	isOpen  bool
	readErr error // If set, Read will return this error
}

// NewMockPort creates a new mock port
func NewMockPort(device string) *MockPort {
	return &MockPort{
		device: device,
		isOpen: true,
	}
}

// Feed queues data for subsequent reads
func (p *MockPort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Write(data)
}

// FeedString queues a string for subsequent reads
func (p *MockPort) FeedString(s string) {
	p.Feed([]byte(s))
}

// Read returns queued bytes, or (0, nil) when none are pending
func (p *MockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return 0, fmt.Errorf("port is closed")
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.pending.Len() == 0 {
		return 0, nil
	}
	return p.pending.Read(buf)
}

// Close closes the mock port
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = false
	return nil
}

// ResetBuffers discards queued data
func (p *MockPort) ResetBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return fmt.Errorf("port is closed")
	}
	p.pending.Reset()
	return nil
}

// Device returns the mock device path
func (p *MockPort) Device() string {
	return p.device
}

// IsOpen returns true if the mock port is open
func (p *MockPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

// Pending returns the number of unread bytes
func (p *MockPort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

// SetReadError sets an error to be returned on subsequent reads
func (p *MockPort) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// ClearReadError clears any read error
func (p *MockPort) ClearReadError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = nil
}

// Reopen reopens a closed mock port
func (p *MockPort) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = true
}
