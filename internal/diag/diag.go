// Package diag is the durable diagnostic sink. Every message goes to an
// append-only log file and, when configured, to the SQLite history so it
// outlives the session that produced it.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/setevik/procwarden/internal/record"
)

// Recorder persists diagnostic records.
type Recorder interface {
	Insert(rec *record.Record) error
}

// Sink writes diagnostics to a log file and an optional Recorder. It is safe
// for concurrent use.
type Sink struct {
	session string
	file    *slog.Logger
	rec     Recorder
	closer  io.Closer
	now     func() time.Time

	mu sync.Mutex
}

// Open creates a Sink appending to the log file at path. rec may be nil.
func Open(path, session string, rec Recorder) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening diagnostic log: %w", err)
	}

	s := New(f, session, rec)
	s.closer = f
	return s, nil
}

// New creates a Sink writing text records to w.
func New(w io.Writer, session string, rec Recorder) *Sink {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Sink{
		session: session,
		file:    slog.New(handler).With("session", session),
		rec:     rec,
		now:     time.Now,
	}
}

// Session returns the identifier stamped on every record.
func (s *Sink) Session() string {
	return s.session
}

// Info records a non-error diagnostic.
func (s *Sink) Info(process, msg string) {
	s.write(record.LevelInfo, process, msg)
}

// Error records a fault. It never fails; persistence problems are only
// reported on the console.
func (s *Sink) Error(process, msg string) {
	s.write(record.LevelError, process, msg)
}

func (s *Sink) write(level record.Level, process, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := record.New(s.session, s.now(), level, process, msg)

	attrs := []any{"id", rec.ID}
	if process != "" {
		attrs = append(attrs, "process", process)
	}
	if level == record.LevelError {
		s.file.Error(msg, attrs...)
	} else {
		s.file.Info(msg, attrs...)
	}

	if s.rec == nil {
		return
	}
	if err := s.rec.Insert(rec); err != nil {
		slog.Warn("failed to store diagnostic record", "error", err)
	}
}

// Recover converts a panic in the calling goroutine into an error record so
// that a fault in one task never takes the supervisor down. Use it as
// `defer sink.Recover("where")`.
func (s *Sink) Recover(where string) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("recovered panic", "where", where, "panic", r, "stack", string(debug.Stack()))
	s.Error("", fmt.Sprintf("Main Process: %s: %v", where, r))
}

// Close closes the underlying log file, if Open created one.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
