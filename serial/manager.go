package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the connection lifecycle state. Owned exclusively
// by the Manager; other components only observe it.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateFailed       State = "failed"
)

// Sentinel errors for connection failures. Wrapped errors carry the
// underlying library detail; callers match with errors.Is.
var (
	ErrNoDevice           = errors.New("no such device")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrBusy               = errors.New("device busy")
	ErrTimeout            = errors.New("connect timed out")
	ErrNotConnected       = errors.New("not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// OpenFunc opens a port for the given configuration. Overridable so
// tests can substitute a MockPort.
type OpenFunc func(PortConfig) (Port, error)

// Manager owns the physical link lifecycle: open with a ladder of
// increasing timeouts, bounded reconnects, idempotent close, and a
// best-effort health probe.
type Manager struct {
	config        PortConfig
	timeouts      []time.Duration
	maxReconnects int
	openFn        OpenFunc
	logger        *slog.Logger

	mu                sync.RWMutex
	state             State
	port              *PortWithStats
	reconnectFailures int
	reconnectsTotal   int64
}

// NewManager creates a connection manager for a single device
func NewManager(cfg PortConfig, timeouts []time.Duration, maxReconnects int, logger *slog.Logger) *Manager {
	if len(timeouts) == 0 {
		timeouts = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
	}
	if maxReconnects <= 0 {
		maxReconnects = 5
	}
	return &Manager{
		config:        cfg,
		timeouts:      timeouts,
		maxReconnects: maxReconnects,
		openFn: func(cfg PortConfig) (Port, error) {
			return Open(cfg)
		},
		logger: logger.With("device", cfg.Device),
		state:  StateDisconnected,
	}
}

// SetOpenFunc replaces the port opener. Intended for tests.
func (m *Manager) SetOpenFunc(fn OpenFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openFn = fn
}

// Connect attempts to open the device, walking the timeout ladder
// until one attempt succeeds or all fail. Pending device buffers are
// cleared on success. Errors other than timeouts abort the ladder
// immediately since retrying cannot fix a missing device or a
// permission problem.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateFailed {
		m.mu.Unlock()
		return ErrReconnectExhausted
	}
	m.state = StateConnecting
	openFn := m.openFn
	m.mu.Unlock()

	var lastErr error
	for _, timeout := range m.timeouts {
		port, err := m.openWithTimeout(ctx, openFn, timeout)
		if err == nil {
			if rerr := port.ResetBuffers(); rerr != nil {
				m.logger.Warn("Failed to reset device buffers", "error", rerr)
			}

			m.mu.Lock()
			m.port = NewPortWithStats(port)
			m.state = StateConnected
			m.mu.Unlock()

			m.logger.Info("Connected", "baud_rate", m.config.BaudRate)
			return nil
		}

		lastErr = err
		if errors.Is(err, ErrNoDevice) || errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrBusy) {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		m.logger.Debug("Connect attempt failed", "timeout", timeout, "error", err)
	}

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	return fmt.Errorf("failed to connect to %s: %w", m.config.Device, lastErr)
}

func (m *Manager) openWithTimeout(ctx context.Context, openFn OpenFunc, timeout time.Duration) (Port, error) {
	type result struct {
		port Port
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		port, err := openFn(m.config)
		if err != nil {
			err = classifyOpenError(err)
		}
		ch <- result{port, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.port, r.err
	case <-timer.C:
		// Leaked open attempt closes itself once it completes
		go func() {
			if r := <-ch; r.port != nil {
				r.port.Close()
			}
		}()
		return nil, ErrTimeout
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.port != nil {
				r.port.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Disconnect releases the device. Idempotent: safe to call when
// already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port != nil {
		if err := m.port.Close(); err != nil {
			m.logger.Warn("Error closing port", "error", err)
		}
		m.port = nil
	}
	if m.state != StateFailed {
		m.state = StateDisconnected
	}
}

// ReadAvailable polls the device for available bytes. Returns
// (0, nil) when no bytes arrived within the poll bound.
func (m *Manager) ReadAvailable(buf []byte) (int, error) {
	m.mu.RLock()
	port := m.port
	m.mu.RUnlock()

	if port == nil {
		return 0, ErrNotConnected
	}
	return port.Read(buf)
}

// Healthy is a best-effort liveness probe: the port is open and a
// zero-length read does not error. A true result is a heuristic, not
// a guarantee.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	port := m.port
	m.mu.RUnlock()

	if port == nil || !port.IsOpen() {
		return false
	}
	_, err := port.Read(nil)
	return err == nil
}

// Reconnect closes the current port and attempts a fresh connect.
// Each failed attempt counts against the bound; exhausting it moves
// the manager to Failed, after which every call fails fast. A
// successful reconnect lands in Degraded until MarkHealthy.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateFailed {
		m.mu.Unlock()
		return ErrReconnectExhausted
	}
	if m.reconnectFailures >= m.maxReconnects {
		m.state = StateFailed
		m.mu.Unlock()
		m.logger.Error("Reconnect attempts exhausted", "attempts", m.reconnectFailures)
		return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, m.reconnectFailures)
	}
	m.reconnectsTotal++
	m.mu.Unlock()

	m.Disconnect()

	if err := m.Connect(ctx); err != nil {
		m.mu.Lock()
		m.reconnectFailures++
		failures := m.reconnectFailures
		exhausted := failures >= m.maxReconnects
		if exhausted {
			m.state = StateFailed
		}
		m.mu.Unlock()

		m.logger.Warn("Reconnect failed", "attempt", failures, "error", err)
		if exhausted {
			return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, failures, err)
		}
		return err
	}

	m.mu.Lock()
	m.state = StateDegraded
	m.mu.Unlock()

	m.logger.Info("Reconnected")
	return nil
}

// MarkHealthy promotes a Degraded connection back to Connected. The
// acquisition loop calls this after the first successful read
// following a reconnect.
func (m *Manager) MarkHealthy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDegraded {
		m.state = StateConnected
	}
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReconnectFailures returns the cumulative failed reconnect attempts
func (m *Manager) ReconnectFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconnectFailures
}

// ReconnectsTotal returns the total reconnect attempts made
func (m *Manager) ReconnectsTotal() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconnectsTotal
}

// PortStats returns statistics for the current port, or zero stats
// when disconnected
func (m *Manager) PortStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.port == nil {
		return Stats{}
	}
	return m.port.Stats()
}

// Device returns the configured device path
func (m *Manager) Device() string {
	return m.config.Device
}
