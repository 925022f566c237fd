// Package logging configures slog for the device and keeps the event log.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ocular/pkg/config"
)

// RequestLogger records the HTTP requests served to the companion app.
var RequestLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init rotates the previous boot's logs to .old, installs the device
// logger as slog's default and opens the request and event logs. The
// returned func closes every file.
func Init(cfg *config.LogConfig) (func(), error) {
	for _, p := range []string{cfg.Server.Path, cfg.Requests.Path, cfg.Events.Path} {
		rotate(p)
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
		SetEventLogPath("")
	}

	devLevel := parseLevel(cfg.Server.Level)
	devFile, err := openLog(cfg.Server.Path)
	if err != nil {
		return nil, fmt.Errorf("device log: %w", err)
	}
	files = append(files, devFile)

	reqFile, err := openLog(cfg.Requests.Path)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("request log: %w", err)
	}
	files = append(files, reqFile)

	slog.SetDefault(slog.New(fanout{
		slog.NewTextHandler(devFile, &slog.HandlerOptions{Level: devLevel, AddSource: devLevel <= slog.LevelDebug}),
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: max(devLevel, slog.LevelInfo)}),
		slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}))
	RequestLogger = slog.New(slog.NewTextHandler(reqFile, &slog.HandlerOptions{Level: parseLevel(cfg.Requests.Level)}))
	SetEventLogPath(cfg.Events.Path)

	return closeAll, nil
}

// parseLevel maps a config level name to slog. TRACE is DEBUG plus the
// per-sample trace output; unknown names mean INFO.
func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		SetTrace(true)
		return slog.LevelDebug
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// rotate keeps exactly one previous generation of path.
func rotate(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	old := path + ".old"
	_ = os.Remove(old)
	_ = os.Rename(path, old)
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler takes the record by value
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
