// Package record defines the durable diagnostic record written for every
// supervisor decision and every child error.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a diagnostic record.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Record is one diagnostic message tied to the supervisor session that
// produced it.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Level     Level     `json:"level" yaml:"level"`
	Process   string    `json:"process,omitempty" yaml:"process,omitempty"`
	Message   string    `json:"message" yaml:"message"`
}

// New creates a Record with a generated UUID.
func New(sessionID string, ts time.Time, level Level, process, message string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Timestamp: ts,
		Level:     level,
		Process:   process,
		Message:   message,
	}
}

// NewSessionID returns a fresh identifier for one supervisor run.
func NewSessionID() string {
	return uuid.NewString()
}

// Label returns the upper-case form used in text output.
func (l Level) Label() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelError:
		return "ERROR"
	default:
		return string(l)
	}
}
