package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"ocular/pkg/model"
)

// eventLog is the append-only device event file. It is opened lazily and
// stays open until the path changes.
var eventLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// SetEventLogPath points the event log at path; "" disables the file.
func SetEventLogPath(path string) {
	eventLog.mu.Lock()
	defer eventLog.mu.Unlock()
	if eventLog.f != nil {
		_ = eventLog.f.Close()
		eventLog.f = nil
	}
	eventLog.path = path
}

// LogEvent mirrors a device event to the default logger and appends it
// to the event log as "[2006-01-02 15:04:05] [type] Title - Summary".
func LogEvent(event *model.DeviceEvent) {
	slog.Info("Device event", "type", event.Type, "title", event.Title, "summary", event.Summary)

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format(time.DateTime), event.Type, event.Title)
	if event.Summary != "" {
		line += " - " + event.Summary
	}
	_, _ = GlobalEventCapture.Write([]byte(line))

	eventLog.mu.Lock()
	defer eventLog.mu.Unlock()
	if eventLog.path == "" {
		return
	}
	if eventLog.f == nil {
		f, err := openLog(eventLog.path)
		if err != nil {
			slog.Error("Failed to open event log", "path", eventLog.path, "error", err)
			return
		}
		eventLog.f = f
	}
	if _, err := eventLog.f.WriteString(line + "\n"); err != nil {
		slog.Error("Failed to write event log", "error", err)
	}
}

// Event logs a device event stamped with the current time.
func Event(typ model.EventType, title, summary string) {
	LogEvent(&model.DeviceEvent{Type: typ, Title: title, Summary: summary, Timestamp: time.Now()})
}
