package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newJSONLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v (%s)", err, buf.String())
	}
	return entry
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "console", ""} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(Config{Level: "info", Format: format, Output: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			l.Info("hello", "component", "core")
			if !strings.Contains(buf.String(), "hello") {
				t.Errorf("output missing message: %s", buf.String())
			}
		})
	}
}

func TestNamed(t *testing.T) {
	l, buf := newJSONLogger(t, "info")

	Named(l, "persistence").Info("snapshot saved", "keys", 3)

	entry := decodeLine(t, buf)
	if entry["component"] != "persistence" {
		t.Errorf("component = %v, want persistence", entry["component"])
	}
	if entry["keys"] != float64(3) {
		t.Errorf("keys = %v, want 3", entry["keys"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newJSONLogger(t, "warn")

	l.Debug("debug message")
	l.Info("info message")
	if buf.Len() > 0 {
		t.Error("Debug/Info messages should be filtered when level is warn")
	}

	l.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("Warn message should be logged")
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newJSONLogger(t, "error")

	l.Info("info message")
	if buf.Len() > 0 {
		t.Error("Info should be filtered at error level")
	}

	SetLevel("debug")
	defer SetLevel("info")

	l.Debug("debug after level change")
	if buf.Len() == 0 {
		t.Error("Debug should be logged after level changed to debug")
	}
	if level := GetLevel(); level != "debug" {
		t.Errorf("GetLevel() = %q, want %q", level, "debug")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "debug"},
		{"INFO", "info"},
		{"warning", "warn"},
		{"error", "error"},
		{"invalid", "info"},
		{"", "info"},
	}

	defer SetLevel("info")
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			SetLevel(tt.input)
			if got := GetLevel(); got != tt.expected {
				t.Errorf("SetLevel(%q); GetLevel() = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
	Discard().Error("dropped")

	l, buf := newJSONLogger(t, "debug")
	prev := Default()
	SetDefault(l)
	defer SetDefault(prev)

	Info("via package function")
	if buf.Len() == 0 {
		t.Error("package-level Info produced no output")
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New() with format xml should fail")
	}
}

func TestComponents(t *testing.T) {
	l, buf := newJSONLogger(t, "debug")
	defer SetComponents("")

	tests := []struct {
		list      string
		component string
		level     string
		logged    bool
	}{
		{"", "core", "debug", true},
		{"*", "persistence", "info", true},
		{"core", "core", "debug", true},
		{"core", "persistence", "info", false},
		{"core, persistence", "persistence", "warn", true},
		{"core", "server", "error", true},
	}
	for _, tt := range tests {
		t.Run(tt.list+"/"+tt.component+"/"+tt.level, func(t *testing.T) {
			buf.Reset()
			SetComponents(tt.list)
			named := Named(l, tt.component)
			switch tt.level {
			case "debug":
				named.Debug("msg")
			case "info":
				named.Info("msg")
			case "warn":
				named.Warn("msg")
			case "error":
				named.Error("msg")
			}
			if got := buf.Len() > 0; got != tt.logged {
				t.Errorf("logged = %v, want %v", got, tt.logged)
			}
		})
	}

	SetComponents("persistence,core")
	if got := Components(); got != "core,persistence" {
		t.Errorf("Components() = %q", got)
	}
	SetComponents(" ")
	if got := Components(); got != "*" {
		t.Errorf("Components() after reset = %q, want *", got)
	}

	// Loggers without a component are never filtered.
	SetComponents("core")
	buf.Reset()
	l.Info("plain")
	if buf.Len() == 0 {
		t.Error("logger without component was filtered")
	}
}
