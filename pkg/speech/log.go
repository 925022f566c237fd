package speech

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logPath string
	logMu   sync.RWMutex
)

// SetLogPath configures the request log. An empty path disables it.
func SetLogPath(path string) {
	logMu.Lock()
	defer logMu.Unlock()
	logPath = path
}

// logRequest appends one speech API call to the request log.
func logRequest(kind, text string, err error) {
	logMu.RLock()
	path := logPath
	logMu.RUnlock()
	if path == "" {
		return
	}

	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, ferr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		return
	}
	defer f.Close()

	status := "OK"
	if err != nil {
		status = fmt.Sprintf("ERROR(%v)", err)
	}
	// Format: [TIMESTAMP] [KIND] STATUS | TEXT
	_, _ = fmt.Fprintf(f, "[%s] [%s] %s | %s\n", time.Now().Format("2006-01-02 15:04:05"), kind, status, text)
}
