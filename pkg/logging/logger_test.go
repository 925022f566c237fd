package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ocular/pkg/config"
	"ocular/pkg/model"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "device.log")
	requestLog := filepath.Join(tempDir, "requests.log")
	eventLog := filepath.Join(tempDir, "events.log")

	// A previous run leaves a log behind; Init rotates it.
	if err := os.WriteFile(serverLog, []byte("previous boot\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
		Events:   config.LogSettings{Path: eventLog, Level: "INFO"},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	old, err := os.ReadFile(serverLog + ".old")
	if err != nil || string(old) != "previous boot\n" {
		t.Errorf("expected rotated log, got %q (%v)", old, err)
	}
	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}
}

func TestLogEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "events.log")
	SetEventLogPath(path)
	defer SetEventLogPath("")

	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	LogEvent(&model.DeviceEvent{Type: model.EventEmergencyOn, Title: "Emergency activated", Summary: "button", Timestamp: ts})
	Event(model.EventEmergencyOff, "Emergency cleared", "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if lines[0] != "[2026-03-04 05:06:07] [emergency_on] Emergency activated - button" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "[emergency_off] Emergency cleared") {
		t.Errorf("unexpected second line %q", lines[1])
	}
	if got := GlobalEventCapture.Last(); !strings.Contains(got, "Emergency cleared") {
		t.Errorf("event capture = %q", got)
	}
}

func TestLogEvent_NoPath(t *testing.T) {
	SetEventLogPath("")
	// Must not panic or create files.
	Event(model.EventSystem, "ignored", "")
}

func TestLineCapture(t *testing.T) {
	w := &LineCapture{}
	_, _ = w.Write([]byte("first"))
	_, _ = w.Write([]byte("second"))
	if w.Last() != "second" {
		t.Errorf("Last() = %q", w.Last())
	}
}

func TestParseLevel(t *testing.T) {
	defer SetTrace(false)

	tests := []struct {
		in    string
		want  slog.Level
		trace bool
	}{
		{"debug", slog.LevelDebug, false},
		{" WARN ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, false},
		{"TRACE", slog.LevelDebug, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			SetTrace(false)
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if traceOn.Load() != tt.trace {
				t.Errorf("trace = %v, want %v", traceOn.Load(), tt.trace)
			}
		})
	}
}

func TestFanout(t *testing.T) {
	var debug, warn bytes.Buffer
	log := slog.New(fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("component", "compass")

	log.Debug("sample")
	log.Warn("stale")

	if !strings.Contains(debug.String(), "msg=sample") || !strings.Contains(debug.String(), "msg=stale") {
		t.Errorf("debug handler got %q", debug.String())
	}
	if strings.Contains(warn.String(), "sample") || !strings.Contains(warn.String(), "component=compass") {
		t.Errorf("warn handler got %q", warn.String())
	}
}
