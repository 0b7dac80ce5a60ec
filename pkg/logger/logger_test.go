package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"pageharvest/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	return &zerologLogger{zl: zerolog.New(buf).Level(zerolog.DebugLevel)}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "loud"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var console bytes.Buffer
			l, err := NewWithWriter(tt.cfg, &console)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Fatal("NewWithWriter() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestWithFieldsCarriesItemID(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithField("run_id", "r-1").WithField("item_id", "A1").Info("Navigating")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["item_id"] != "A1" || lines[0]["run_id"] != "r-1" {
		t.Errorf("missing fields: %v", lines[0])
	}
	if lines[0]["message"] != "Navigating" {
		t.Errorf("message = %v", lines[0]["message"])
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := newBufferLogger(&buf)
	_ = parent.WithField("item_id", "A1")

	parent.Info("plain")

	lines := decodeLines(t, &buf)
	if _, ok := lines[0]["item_id"]; ok {
		t.Errorf("parent logger picked up child field: %v", lines[0])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithError(errors.New("navigation timed out")).Error("Item failed")
	l.WithError(nil).Info("no error")

	lines := decodeLines(t, &buf)
	if lines[0]["error"] != "navigation timed out" {
		t.Errorf("error field = %v", lines[0]["error"])
	}
	if _, ok := lines[1]["error"]; ok {
		t.Errorf("nil error should not add a field")
	}
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.InfoWithFields("typed", map[string]interface{}{
		"attempted": 3,
		"aborted":   false,
		"elapsed":   2 * time.Second,
		"ids":       []string{"A1", "A2"},
	})

	line := decodeLines(t, &buf)[0]
	if line["attempted"] != float64(3) {
		t.Errorf("attempted = %v", line["attempted"])
	}
	if line["aborted"] != false {
		t.Errorf("aborted = %v", line["aborted"])
	}
	if _, ok := line["elapsed"]; !ok {
		t.Error("duration field missing")
	}
	if ids, ok := line["ids"].([]interface{}); !ok || len(ids) != 2 {
		t.Errorf("ids = %v", line["ids"])
	}
}

func TestFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.log")
	var console bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "info", File: path, JSON: true}, &console)
	if err != nil {
		t.Fatal(err)
	}

	l.WithField("item_id", "B7").Warn("capture failed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &m); err != nil {
		t.Fatalf("file output is not JSON: %q", data)
	}
	if m["item_id"] != "B7" || m["app"] != "pageharvest" {
		t.Errorf("unexpected file record: %v", m)
	}
	if !strings.Contains(console.String(), "capture failed") {
		t.Errorf("console output missing message: %q", console.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var console bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "warn"}, &console)
	if err != nil {
		t.Fatal(err)
	}

	l.Info("hidden")
	l.Warn("shown")

	if strings.Contains(console.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(console.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	defer SetLogger(nil)

	WithField("item_id", "C3").Info("from global")
	GetLogger().Warn("global warn")

	if !tl.HasMessage("from global") || !tl.HasMessage("global warn") {
		t.Errorf("global logger did not route to test logger: %s", tl.String())
	}
	msgs := tl.EntriesAt("INFO")
	if len(msgs) != 1 || msgs[0].Fields["item_id"] != "C3" {
		t.Errorf("unexpected info messages: %+v", msgs)
	}
}

func TestLogItemOutcome(t *testing.T) {
	tl := NewTestLogger()

	LogItemOutcome(tl, "A1", true, 1500*time.Millisecond, nil)
	LogItemOutcome(tl, "A2", false, time.Second, errors.New("boom"))

	infos := tl.EntriesAt("INFO")
	if len(infos) != 1 || infos[0].Fields["item_id"] != "A1" {
		t.Fatalf("unexpected success logs: %+v", infos)
	}
	errs := tl.EntriesAt("ERROR")
	if len(errs) != 1 || errs[0].Error == nil || errs[0].Fields["item_id"] != "A2" {
		t.Fatalf("unexpected failure logs: %+v", errs)
	}
}

func TestTestLoggerDerivedCapture(t *testing.T) {
	tl := NewTestLogger()
	run := tl.WithField("run_id", "r-9")

	run.WithField("item_id", "A1").Debug("Fetching item")
	run.WithError(errors.New("timeout")).WarnWithFields("Item failed", map[string]interface{}{"item_id": "A1"})
	run.WithField("item_id", "B2").Info("Item harvested")
	run.Info("Run finished")

	got := tl.ItemMessages("A1")
	if len(got) != 2 || got[0] != "Fetching item" || got[1] != "Item failed" {
		t.Fatalf("ItemMessages(A1) = %v\n%s", got, tl.String())
	}
	warns := tl.EntriesAt("WARN")
	if len(warns) != 1 || warns[0].Error == nil || warns[0].Fields["run_id"] != "r-9" {
		t.Errorf("unexpected warn entries: %+v", warns)
	}
	if len(tl.ItemMessages("C3")) != 0 {
		t.Error("unknown item should have no messages")
	}
}
