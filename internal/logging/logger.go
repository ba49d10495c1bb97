// Package logging provides a stdlib-only, JSON-lines structured
// logger for relay session lifecycle events: state transitions and
// byte milestones rather than raw proxy traffic, written to an
// io.Writer (stdout in production) so a process manager can capture
// and ship the stream without this package knowing where it ends up.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Entry is one structured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Logger writes Entry values as JSON lines. It is safe for concurrent
// use.
type Logger struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New wraps w. Pass os.Stdout for production use.
func New(w io.Writer) *Logger {
	return &Logger{enc: json.NewEncoder(w)}
}

// Default returns a Logger writing to os.Stdout.
func Default() *Logger {
	return New(os.Stdout)
}

func (l *Logger) write(e Entry) {
	e.Timestamp = time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.enc.Encode(e)
}

// SessionCreated logs a new session entering CREATED.
func (l *Logger) SessionCreated(sessionID string) {
	l.write(Entry{Level: "info", Event: "session_created", SessionID: sessionID})
}

// StateTransition logs a session moving to a new state.
func (l *Logger) StateTransition(sessionID, state string) {
	l.write(Entry{Level: "info", Event: "state_transition", SessionID: sessionID, State: state})
}

// BytesMilestone logs a cumulative byte-transfer checkpoint for a
// streaming session, used for coarse throughput observability.
func (l *Logger) BytesMilestone(sessionID string, bytes int64) {
	l.write(Entry{Level: "info", Event: "bytes_milestone", SessionID: sessionID, Bytes: bytes})
}

// SessionError logs a session reaching a terminal error state.
func (l *Logger) SessionError(sessionID, state string, err error) {
	entry := Entry{Level: "error", Event: "session_error", SessionID: sessionID, State: state}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

// Warn logs a process-level warning unrelated to any single session,
// e.g. a failed optional dependency (Redis mirror unreachable).
func (l *Logger) Warn(message string) {
	l.write(Entry{Level: "warn", Event: "warning", Message: message})
}

// Info logs a process-level informational message, e.g. server
// startup and shutdown.
func (l *Logger) Info(message string) {
	l.write(Entry{Level: "info", Event: "info", Message: message})
}
