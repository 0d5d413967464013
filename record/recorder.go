// Package record writes accepted samples to append-only CSV files,
// one file per recording session.
package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Sentinel errors for session control
var (
	ErrSessionActive = errors.New("a recording session is already active")
	ErrNoSession     = errors.New("no active recording session")
)

// timestampLayout is millisecond-precision local time, matching the
// header contract of the recording file format.
const timestampLayout = "2006-01-02 15:04:05.000"

var header = []string{"Timestamp", "Value"}

// Session is one continuous recording interval backed by one file.
// It exists only between Start and Stop.
type Session struct {
	ID        string
	Path      string
	StartTime time.Time
	RowCount  int64
}

// Recorder manages at most one active recording session at a time.
// Start/Append/Stop are safe to call concurrently with each other;
// the single-session invariant is enforced under the mutex.
type Recorder struct {
	prefix string
	logger *slog.Logger
	clock  clockwork.Clock

	mu      sync.Mutex
	session *Session
	file    *os.File
	writer  *csv.Writer
}

// NewRecorder creates a recorder. The prefix names recording files:
// <prefix>_<timestamp>.csv.
func NewRecorder(prefix string, logger *slog.Logger) *Recorder {
	return NewRecorderWithClock(prefix, logger, clockwork.NewRealClock())
}

// NewRecorderWithClock creates a recorder with an injected clock,
// used by tests to control file naming and row timestamps.
func NewRecorderWithClock(prefix string, logger *slog.Logger, clock clockwork.Clock) *Recorder {
	if prefix == "" {
		prefix = "ecg_recording"
	}
	return &Recorder{
		prefix: prefix,
		logger: logger,
		clock:  clock,
	}
}

// Start creates a new session file in the given directory and writes
// the header row. Fails with ErrSessionActive, without side effects,
// when a session is already running.
func (r *Recorder) Start(directory string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return Session{}, ErrSessionActive
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return Session{}, fmt.Errorf("failed to create recording directory: %w", err)
	}

	now := r.clock.Now()
	filename := fmt.Sprintf("%s_%s.csv", r.prefix, now.Format("20060102_150405"))
	path := filepath.Join(directory, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create recording file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		file.Close()
		os.Remove(path)
		return Session{}, fmt.Errorf("failed to write recording header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(path)
		return Session{}, fmt.Errorf("failed to flush recording header: %w", err)
	}

	r.session = &Session{
		ID:        uuid.NewString(),
		Path:      path,
		StartTime: now,
	}
	r.file = file
	r.writer = writer

	r.logger.Info("Recording started", "path", path, "session_id", r.session.ID)
	return *r.session, nil
}

// Append writes one row and flushes immediately, so a crash loses at
// most the in-flight row. A failed write fails only this operation;
// the session stays open.
func (r *Recorder) Append(timestamp time.Time, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return ErrNoSession
	}

	row := []string{
		timestamp.Format(timestampLayout),
		fmt.Sprintf("%g", value),
	}
	if err := r.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write recording row: %w", err)
	}
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush recording row: %w", err)
	}

	r.session.RowCount++
	return nil
}

// Stop closes the active session and returns the file path.
// Idempotent: a second call is a no-op returning an empty path.
func (r *Recorder) Stop() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return ""
	}

	path := r.session.Path
	rows := r.session.RowCount

	r.writer.Flush()
	if err := r.file.Close(); err != nil {
		r.logger.Warn("Error closing recording file", "error", err)
	}

	r.session = nil
	r.file = nil
	r.writer = nil

	r.logger.Info("Recording stopped", "path", path, "rows", rows)
	return path
}

// Active reports whether a session is currently running
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Current returns a copy of the active session, if any
func (r *Recorder) Current() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return Session{}, false
	}
	return *r.session, true
}
