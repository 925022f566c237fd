package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"ocular/pkg/logging"
)

const maxAttrLen = 20

// key=value or key="value with spaces"
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// handleLatestLog returns the last captured log line.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	writeLine(w, "log", formatLogLine(logging.GlobalLogCapture.Last()))
}

// handleLatestEvent returns the last device event line.
func handleLatestEvent(w http.ResponseWriter, r *http.Request) {
	writeLine(w, "event", strings.TrimSpace(logging.GlobalEventCapture.Last()))
}

func writeLine(w http.ResponseWriter, key, line string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{key: line}); err != nil {
		slog.Error("Failed to write log response", "error", err)
	}
}

// formatLogLine condenses a slog text line for the companion app:
// "HH:MM:SS msg (k=v, ...)". Time and level are consumed, the remaining
// attributes are sorted, and values longer than maxAttrLen are dropped.
func formatLogLine(raw string) string {
	var (
		stamp, msg string
		attrs      []string
	)
	for _, m := range logRegex.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch {
		case key == "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				stamp = t.Format(time.TimeOnly)
			}
		case key == "level":
		case key == "msg":
			msg = val
		case len(val) <= maxAttrLen:
			attrs = append(attrs, key+"="+val)
		}
	}
	if msg == "" {
		return raw
	}

	var b strings.Builder
	if stamp != "" {
		b.WriteString(stamp)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	if len(attrs) > 0 {
		slices.Sort(attrs)
		fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))
	}
	return b.String()
}
