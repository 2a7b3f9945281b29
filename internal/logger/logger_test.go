package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level LogLevel, format LogFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: format, Output: &buf}), &buf
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogLevels(t *testing.T) {
	log, buf := newBufferLogger(DEBUG, JSONFormat)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message", nil)

	entries := decodeEntries(t, buf)
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}
	wantLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, want := range wantLevels {
		if entries[i].Level != want {
			t.Errorf("entries[%d].Level = %q, want %q", i, entries[i].Level, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(WARN, JSONFormat)

	log.Debug("filtered")
	log.Info("filtered")
	log.Warn("kept")
	log.Error("kept", nil)

	entries := decodeEntries(t, buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries above WARN, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("Unexpected levels: %s, %s", entries[0].Level, entries[1].Level)
	}
}

func TestSetLevel(t *testing.T) {
	log, buf := newBufferLogger(INFO, JSONFormat)

	log.Debug("filtered")
	log.SetLevel(DEBUG)
	log.Debug("kept")

	entries := decodeEntries(t, buf)
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Errorf("Expected only the post-SetLevel debug entry, got %+v", entries)
	}
}

func TestStructuredFields(t *testing.T) {
	log, buf := newBufferLogger(INFO, JSONFormat)

	log.Info("loaded raster", map[string]interface{}{
		"period": "2020-04",
		"pixels": 4096,
	})

	entries := decodeEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Fields["period"] != "2020-04" {
		t.Errorf("fields.period = %v", entries[0].Fields["period"])
	}
	// json numbers decode as float64
	if entries[0].Fields["pixels"] != float64(4096) {
		t.Errorf("fields.pixels = %v", entries[0].Fields["pixels"])
	}
}

func TestErrorField(t *testing.T) {
	log, buf := newBufferLogger(INFO, JSONFormat)

	log.Error("load failed", errors.New("connection refused"))

	entries := decodeEntries(t, buf)
	if len(entries) != 1 || entries[0].Error != "connection refused" {
		t.Errorf("Expected error field, got %+v", entries)
	}
}

func TestWithComponent(t *testing.T) {
	log, buf := newBufferLogger(INFO, JSONFormat)

	log.WithComponent("datasource").Info("cache cleared")
	log.Info("untagged")

	entries := decodeEntries(t, buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Component != "datasource" {
		t.Errorf("Component = %q, want datasource", entries[0].Component)
	}
	if entries[1].Component != "" {
		t.Errorf("Derived logger must not leak its component, got %q", entries[1].Component)
	}
}

func TestFormattedMessages(t *testing.T) {
	log, buf := newBufferLogger(INFO, JSONFormat)

	log.Infof("decoded raster %s: %dx%d", "no2_data_2020_04.tif", 110, 94)

	entries := decodeEntries(t, buf)
	want := "decoded raster no2_data_2020_04.tif: 110x94"
	if len(entries) != 1 || entries[0].Message != want {
		t.Errorf("Message = %q, want %q", entries[0].Message, want)
	}
}

func TestTextFormat(t *testing.T) {
	log, buf := newBufferLogger(INFO, TextFormat)

	log.WithComponent("server").Warn("no city markers", map[string]interface{}{
		"period": "2020-04",
	})

	line := buf.String()
	for _, want := range []string{"WARN", "[server]", "no city markers", "period=2020-04"} {
		if !strings.Contains(line, want) {
			t.Errorf("Text line %q missing %q", line, want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"verbose", -1},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input string
		want  LogFormat
	}{
		{"json", JSONFormat},
		{"JSON", JSONFormat},
		{"text", TextFormat},
		{"xml", -1},
	}
	for _, tt := range tests {
		if got := parseLogFormat(tt.input); got != tt.want {
			t.Errorf("parseLogFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
