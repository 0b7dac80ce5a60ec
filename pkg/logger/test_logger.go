package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one event captured by a TestLogger. Fields holds the logger's
// bound fields merged with any passed at the call site.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// TestLogger captures events in memory. Loggers derived through WithField,
// WithFields or WithError record into the same capture as their root.
type TestLogger struct {
	rec    *recorder
	fields map[string]interface{}
	err    error
}

// NewTestLogger returns an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{rec: &recorder{}}
}

func (t *TestLogger) record(level, msg string, extra map[string]interface{}) {
	fields := make(map[string]interface{}, len(t.fields)+len(extra))
	for k, v := range t.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.entries = append(t.rec.entries, Entry{Level: level, Message: msg, Fields: fields, Error: t.err})
}

func (t *TestLogger) derive(fields map[string]interface{}, err error) *TestLogger {
	merged := make(map[string]interface{}, len(t.fields)+len(fields))
	for k, v := range t.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{rec: t.rec, fields: merged, err: err}
}

func (t *TestLogger) Debug(msg string) { t.record("DEBUG", msg, nil) }
func (t *TestLogger) Info(msg string)  { t.record("INFO", msg, nil) }
func (t *TestLogger) Warn(msg string)  { t.record("WARN", msg, nil) }
func (t *TestLogger) Error(msg string) { t.record("ERROR", msg, nil) }

// Fatal records the event without exiting.
func (t *TestLogger) Fatal(msg string) { t.record("FATAL", msg, nil) }

func (t *TestLogger) WithField(key string, value interface{}) Logger {
	return t.derive(map[string]interface{}{key: value}, t.err)
}

func (t *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return t.derive(fields, t.err)
}

func (t *TestLogger) WithError(err error) Logger {
	if err == nil {
		return t
	}
	return t.derive(nil, err)
}

func (t *TestLogger) WithContext(context.Context) Logger { return t }

func (t *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	t.record("DEBUG", msg, fields)
}

func (t *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	t.record("INFO", msg, fields)
}

func (t *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	t.record("WARN", msg, fields)
}

func (t *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	t.record("ERROR", msg, fields)
}

func (t *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func (t *TestLogger) snapshot() []Entry {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	return append([]Entry(nil), t.rec.entries...)
}

// EntriesAt returns the captured events at level (DEBUG, INFO, WARN, ERROR).
func (t *TestLogger) EntriesAt(level string) []Entry {
	var out []Entry
	for _, e := range t.snapshot() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// ItemMessages returns, in order, the messages logged with item_id set to id.
func (t *TestLogger) ItemMessages(id string) []string {
	var out []string
	for _, e := range t.snapshot() {
		if e.Fields["item_id"] == id {
			out = append(out, e.Message)
		}
	}
	return out
}

// HasMessage reports whether any event carried exactly msg.
func (t *TestLogger) HasMessage(msg string) bool {
	for _, e := range t.snapshot() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// String renders the capture one event per line, for failure output.
func (t *TestLogger) String() string {
	var b strings.Builder
	for _, e := range t.snapshot() {
		fmt.Fprintf(&b, "%s %s %v", e.Level, e.Message, e.Fields)
		if e.Error != nil {
			fmt.Fprintf(&b, " error=%v", e.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
