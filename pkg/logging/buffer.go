package logging

import (
	"strings"
	"sync/atomic"
)

// LineCapture is an io.Writer that keeps only the most recent line written.
type LineCapture struct {
	last atomic.Pointer[string]
}

var (
	// GlobalLogCapture receives every log record at the file log level.
	GlobalLogCapture = &LineCapture{}
	// GlobalEventCapture receives one line per device event.
	GlobalEventCapture = &LineCapture{}
)

func (c *LineCapture) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\r\n")
	c.last.Store(&line)
	return len(p), nil
}

// Last returns the most recent line, or "" before the first write.
func (c *LineCapture) Last() string {
	if p := c.last.Load(); p != nil {
		return *p
	}
	return ""
}
