// Package acquire runs the long-lived worker that drains bytes from
// the connection manager, reassembles lines, classifies them and
// fans accepted samples out to the display ring, the analysis window
// and the recorder.
package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ecgmonitor/buffer"
	"ecgmonitor/parse"
	"ecgmonitor/record"
	"ecgmonitor/serial"
)

// LoopState represents the acquisition loop state machine:
// Idle -> Running -> (Stalled -> Running | Stopping) -> Stopped.
type LoopState string

const (
	StateIdle     LoopState = "idle"
	StateRunning  LoopState = "running"
	StateStalled  LoopState = "stalled"
	StateStopping LoopState = "stopping"
	StateStopped  LoopState = "stopped"
)

// ErrNotConnected is returned by Start when the connection manager
// is not in the Connected state.
var ErrNotConnected = errors.New("acquisition requires a connected device")

// ErrStopTimeout is returned when the worker fails to exit within
// the bounded join wait.
var ErrStopTimeout = errors.New("timed out waiting for acquisition loop to stop")

// maxPartialLine caps the reassembly buffer. A device spewing bytes
// with no terminator gets its fragment discarded and counted invalid
// rather than growing memory without bound.
const maxPartialLine = 64 * 1024

// Config tunes the acquisition loop
type Config struct {
	PollInterval         time.Duration
	StallThreshold       time.Duration
	MaxConsecutiveErrors int
	StopTimeout          time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 20 * time.Millisecond
	}
	if c.StallThreshold == 0 {
		c.StallThreshold = 5 * time.Second
	}
	if c.MaxConsecutiveErrors == 0 {
		c.MaxConsecutiveErrors = 10
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 2 * time.Second
	}
}

// Stats contains counters for the acquisition loop
type Stats struct {
	BytesReceived  int64
	LinesTotal     int64
	Samples        int64
	SystemMessages int64
	InvalidLines   int64
	ReadErrors     int64
	RecordErrors   int64
	StallsDetected int64
	LastDataTime   time.Time
	StartTime      time.Time
	LastError      string
}

// Loop is the single worker feeding all downstream consumers. It is
// the sole writer to the ring, the window and the recorder.
type Loop struct {
	manager  *serial.Manager
	ring     *buffer.Ring
	window   *buffer.Window
	recorder *record.Recorder
	logger   *slog.Logger
	clock    clockwork.Clock
	config   Config

	state      LoopState
	stateMutex sync.RWMutex
	termErr    error

	stats      Stats
	statsMutex sync.RWMutex

	// partial holds an unterminated trailing fragment across polls.
	// Touched only by the worker goroutine.
	partial []byte

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewLoop creates an acquisition loop wired to its consumers. The
// recorder may be nil when recording is not configured.
func NewLoop(
	manager *serial.Manager,
	ring *buffer.Ring,
	window *buffer.Window,
	recorder *record.Recorder,
	cfg Config,
	logger *slog.Logger,
) *Loop {
	return NewLoopWithClock(manager, ring, window, recorder, cfg, logger, clockwork.NewRealClock())
}

// NewLoopWithClock is NewLoop with an injected clock, used by tests
// to drive stall detection deterministically.
func NewLoopWithClock(
	manager *serial.Manager,
	ring *buffer.Ring,
	window *buffer.Window,
	recorder *record.Recorder,
	cfg Config,
	logger *slog.Logger,
	clock clockwork.Clock,
) *Loop {
	cfg.applyDefaults()
	return &Loop{
		manager:  manager,
		ring:     ring,
		window:   window,
		recorder: recorder,
		logger:   logger.With("device", manager.Device()),
		clock:    clock,
		config:   cfg,
		state:    StateIdle,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. The connection manager must already be
// Connected.
func (l *Loop) Start(ctx context.Context) error {
	if s := l.manager.State(); s != serial.StateConnected {
		return fmt.Errorf("%w: connection state is %s", ErrNotConnected, s)
	}

	l.stateMutex.Lock()
	if l.started {
		l.stateMutex.Unlock()
		return fmt.Errorf("acquisition loop already started")
	}
	l.started = true
	l.state = StateRunning
	l.stateMutex.Unlock()

	l.statsMutex.Lock()
	l.stats.StartTime = l.clock.Now()
	l.statsMutex.Unlock()

	l.logger.Info("Acquisition started",
		"poll_interval", l.config.PollInterval,
		"stall_threshold", l.config.StallThreshold,
	)

	go l.run(ctx)
	return nil
}

// Stop requests shutdown and waits up to the configured bound for
// the worker to exit. Idempotent: repeated calls return the same
// outcome without duplicate side effects.
func (l *Loop) Stop() error {
	l.stateMutex.Lock()
	started := l.started
	if !started {
		l.state = StateStopped
	}
	l.stateMutex.Unlock()

	l.stopOnce.Do(func() {
		close(l.stopCh)
	})

	if !started {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-time.After(l.config.StopTimeout):
		return ErrStopTimeout
	}
}

// Done is closed when the worker has exited, whether by Stop or by a
// terminal error.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// State returns the current loop state
func (l *Loop) State() LoopState {
	l.stateMutex.RLock()
	defer l.stateMutex.RUnlock()
	return l.state
}

// Err returns the terminal error, if the loop stopped on one
func (l *Loop) Err() error {
	l.stateMutex.RLock()
	defer l.stateMutex.RUnlock()
	return l.termErr
}

// Stats returns a copy of the current statistics
func (l *Loop) Stats() Stats {
	l.statsMutex.RLock()
	defer l.statsMutex.RUnlock()
	return l.stats
}

func (l *Loop) setState(s LoopState) {
	l.stateMutex.Lock()
	l.state = s
	l.stateMutex.Unlock()
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.setState(StateStopped)

	readBuf := make([]byte, 4096)
	lastData := l.clock.Now()
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			l.setState(StateStopping)
			l.logger.Info("Acquisition stopping", "reason", "context cancelled")
			return
		case <-l.stopCh:
			l.setState(StateStopping)
			l.logger.Info("Acquisition stopping", "reason", "stop requested")
			return
		default:
		}

		n, err := l.manager.ReadAvailable(readBuf)
		if err != nil {
			consecutiveErrors++
			l.statsMutex.Lock()
			l.stats.ReadErrors++
			l.stats.LastError = err.Error()
			l.statsMutex.Unlock()

			if consecutiveErrors >= l.config.MaxConsecutiveErrors {
				l.terminate(fmt.Errorf("%d consecutive read errors, last: %w", consecutiveErrors, err))
				return
			}

			l.logger.Debug("Read error", "error", err, "consecutive", consecutiveErrors)
			l.clock.Sleep(l.config.PollInterval)
			continue
		}
		consecutiveErrors = 0

		if n > 0 {
			lastData = l.clock.Now()

			l.statsMutex.Lock()
			l.stats.BytesReceived += int64(n)
			l.stats.LastDataTime = lastData
			l.statsMutex.Unlock()

			l.ingest(readBuf[:n])

			if l.State() == StateStalled {
				l.setState(StateRunning)
			}
			l.manager.MarkHealthy()
			// Drain immediately rather than waiting a poll interval
			continue
		}

		if l.clock.Since(lastData) >= l.config.StallThreshold {
			if !l.handleStall(ctx) {
				return
			}
			// Give the recovered link a full threshold before the
			// next stall verdict
			lastData = l.clock.Now()
		}

		l.clock.Sleep(l.config.PollInterval)
	}
}

// handleStall probes the link and attempts one reconnect when the
// probe fails. Returns false when the loop must terminate.
func (l *Loop) handleStall(ctx context.Context) bool {
	if l.State() != StateStalled {
		l.setState(StateStalled)
		l.statsMutex.Lock()
		l.stats.StallsDetected++
		l.statsMutex.Unlock()
		l.logger.Warn("No data received", "threshold", l.config.StallThreshold)
	}

	if l.manager.Healthy() {
		// Link looks alive, the device is just quiet
		return true
	}

	l.logger.Warn("Link unhealthy, attempting reconnect")
	if err := l.manager.Reconnect(ctx); err != nil {
		if errors.Is(err, serial.ErrReconnectExhausted) {
			l.terminate(err)
			return false
		}
		l.statsMutex.Lock()
		l.stats.LastError = err.Error()
		l.statsMutex.Unlock()
		return true
	}
	return true
}

func (l *Loop) terminate(err error) {
	l.stateMutex.Lock()
	l.termErr = err
	l.state = StateStopping
	l.stateMutex.Unlock()

	l.statsMutex.Lock()
	l.stats.LastError = err.Error()
	l.statsMutex.Unlock()

	l.logger.Error("Acquisition terminated", "error", err)
}

// ingest appends a chunk to the reassembly buffer, splits out
// complete lines and classifies each one. The split happens at the
// byte level, so results do not depend on where poll boundaries fall.
func (l *Loop) ingest(chunk []byte) {
	l.partial = append(l.partial, chunk...)

	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(l.partial[:i], "\r")
		l.handleLine(parse.DecodeBytes(line))
		l.partial = append(l.partial[:0], l.partial[i+1:]...)
	}

	if len(l.partial) > maxPartialLine {
		l.logger.Debug("Discarding oversized unterminated fragment", "bytes", len(l.partial))
		l.partial = l.partial[:0]
		l.statsMutex.Lock()
		l.stats.InvalidLines++
		l.statsMutex.Unlock()
	}
}

func (l *Loop) handleLine(line string) {
	l.statsMutex.Lock()
	l.stats.LinesTotal++
	l.statsMutex.Unlock()

	switch res := parse.Classify(line).(type) {
	case parse.Sample:
		l.acceptSample(res.Primary())

	case parse.SystemMessage:
		l.statsMutex.Lock()
		l.stats.SystemMessages++
		l.statsMutex.Unlock()

		if res.Tag == "ERROR" {
			l.logger.Warn("Device message", "tag", res.Tag, "text", res.Text)
		} else {
			l.logger.Debug("Device message", "tag", res.Tag, "text", res.Text)
		}

	case parse.Invalid:
		l.statsMutex.Lock()
		l.stats.InvalidLines++
		l.statsMutex.Unlock()

		if res.Preview != "" {
			l.logger.Debug("Discarded unparseable line", "preview", res.Preview)
		}
	}
}

func (l *Loop) acceptSample(value float64) {
	now := l.clock.Now()
	sample := buffer.Sample{Value: value, ReceivedAt: now}

	l.ring.Push(sample)
	l.window.Push(sample)

	if l.recorder != nil && l.recorder.Active() {
		if err := l.recorder.Append(now, value); err != nil {
			// A failed write loses one row, never the loop
			l.statsMutex.Lock()
			l.stats.RecordErrors++
			l.statsMutex.Unlock()
			l.logger.Warn("Recording append failed", "error", err)
		}
	}

	l.statsMutex.Lock()
	l.stats.Samples++
	l.statsMutex.Unlock()
}
