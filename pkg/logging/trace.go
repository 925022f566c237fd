package logging

import (
	"log/slog"
	"sync/atomic"
)

var traceOn atomic.Bool

// SetTrace turns per-sample logging from the sensor and alignment loops on
// or off. A TRACE log level turns it on.
func SetTrace(on bool) { traceOn.Store(on) }

// TraceDefault logs at DEBUG on the default logger while tracing is on.
func TraceDefault(msg string, args ...any) {
	if traceOn.Load() {
		slog.Debug(msg, args...)
	}
}
