package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T, openFn OpenFunc) *Manager {
	t.Helper()
	m := NewManager(PortConfig{Device: "/dev/mock0", BaudRate: 57600},
		[]time.Duration{100 * time.Millisecond}, 3, testLogger())
	m.SetOpenFunc(openFn)
	return m
}

func TestManagerConnect(t *testing.T) {
	port := NewMockPort("/dev/mock0")
	m := newTestManager(t, func(PortConfig) (Port, error) {
		return port, nil
	})

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateConnected, m.State())

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, port.IsOpen())
}

func TestManagerConnectClearsPendingBytes(t *testing.T) {
	port := NewMockPort("/dev/mock0")
	port.FeedString("stale bytes from before\n")

	m := newTestManager(t, func(PortConfig) (Port, error) {
		return port, nil
	})

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 0, port.Pending())
}

func TestManagerConnectTimeoutLadder(t *testing.T) {
	attempts := 0
	m := NewManager(PortConfig{Device: "/dev/mock0"},
		[]time.Duration{20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond},
		3, testLogger())
	m.SetOpenFunc(func(PortConfig) (Port, error) {
		attempts++
		if attempts < 3 {
			// Slower than the rung's timeout
			time.Sleep(100 * time.Millisecond)
			return NewMockPort("/dev/mock0"), nil
		}
		return NewMockPort("/dev/mock0"), nil
	})

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerConnectAllTimeoutsFail(t *testing.T) {
	m := newTestManager(t, func(PortConfig) (Port, error) {
		time.Sleep(time.Second)
		return NewMockPort("/dev/mock0"), nil
	})

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManagerConnectAbortsOnClassifiedError(t *testing.T) {
	attempts := 0
	m := NewManager(PortConfig{Device: "/dev/mock0"},
		[]time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, 3, testLogger())
	m.SetOpenFunc(func(PortConfig) (Port, error) {
		attempts++
		return nil, fmt.Errorf("%w: /dev/mock0", ErrNoDevice)
	})

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDevice)
	// A missing device is not retried on longer timeouts
	assert.Equal(t, 1, attempts)
}

func TestManagerReadAvailable(t *testing.T) {
	port := NewMockPort("/dev/mock0")
	m := newTestManager(t, func(PortConfig) (Port, error) {
		return port, nil
	})
	require.NoError(t, m.Connect(context.Background()))

	port.FeedString("DATA,1,512,0,75\n")

	buf := make([]byte, 64)
	n, err := m.ReadAvailable(buf)
	require.NoError(t, err)
	assert.Equal(t, "DATA,1,512,0,75\n", string(buf[:n]))

	// Drained port polls as (0, nil)
	n, err = m.ReadAvailable(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManagerReadNotConnected(t *testing.T) {
	m := newTestManager(t, func(PortConfig) (Port, error) {
		return NewMockPort("/dev/mock0"), nil
	})

	_, err := m.ReadAvailable(make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManagerHealthy(t *testing.T) {
	port := NewMockPort("/dev/mock0")
	m := newTestManager(t, func(PortConfig) (Port, error) {
		return port, nil
	})

	assert.False(t, m.Healthy(), "not connected yet")

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.Healthy())

	port.SetReadError(errors.New("input/output error"))
	assert.False(t, m.Healthy())
}

func TestManagerReconnect(t *testing.T) {
	first := NewMockPort("/dev/mock0")
	second := NewMockPort("/dev/mock0")
	ports := []*MockPort{first, second}
	idx := 0

	m := newTestManager(t, func(PortConfig) (Port, error) {
		p := ports[idx]
		if idx < len(ports)-1 {
			idx++
		}
		return p, nil
	})

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Reconnect(context.Background()))

	// Fresh connection is degraded until data confirms it
	assert.Equal(t, StateDegraded, m.State())
	assert.False(t, first.IsOpen())
	assert.Equal(t, int64(1), m.ReconnectsTotal())

	m.MarkHealthy()
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerReconnectExhaustion(t *testing.T) {
	connected := true
	m := newTestManager(t, func(PortConfig) (Port, error) {
		if connected {
			return NewMockPort("/dev/mock0"), nil
		}
		return nil, fmt.Errorf("%w: gone", ErrNoDevice)
	})

	require.NoError(t, m.Connect(context.Background()))
	connected = false

	// Bound is 3; the first three failures count, then Failed
	var err error
	for i := 0; i < 3; i++ {
		err = m.Reconnect(context.Background())
		require.Error(t, err)
	}
	assert.ErrorIs(t, err, ErrReconnectExhausted)
	assert.Equal(t, StateFailed, m.State())

	// Failed is terminal: everything fails fast now
	assert.ErrorIs(t, m.Reconnect(context.Background()), ErrReconnectExhausted)
	assert.ErrorIs(t, m.Connect(context.Background()), ErrReconnectExhausted)
}

func TestManagerDisconnectIdempotent(t *testing.T) {
	m := newTestManager(t, func(PortConfig) (Port, error) {
		return NewMockPort("/dev/mock0"), nil
	})

	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManagerPortStats(t *testing.T) {
	port := NewMockPort("/dev/mock0")
	m := newTestManager(t, func(PortConfig) (Port, error) {
		return port, nil
	})

	assert.Zero(t, m.PortStats().BytesReceived)

	require.NoError(t, m.Connect(context.Background()))
	port.FeedString("hello\n")

	buf := make([]byte, 16)
	_, err := m.ReadAvailable(buf)
	require.NoError(t, err)

	assert.Equal(t, int64(6), m.PortStats().BytesReceived)
}
