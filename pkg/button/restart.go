package button

import (
	"fmt"
	"os"
	"syscall"
)

// Restarter restarts the device program.
type Restarter interface {
	Restart() error
}

// ExecRestarter replaces the running process with a fresh copy of the same
// binary and arguments. On success it does not return.
type ExecRestarter struct{}

// Restart implements Restarter.
func (ExecRestarter) Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("restart: locate executable: %w", err)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("restart: exec %s: %w", exe, err)
	}
	return nil
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func() error

// Restart implements Restarter.
func (f RestartFunc) Restart() error { return f() }
