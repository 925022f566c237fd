package button

import "sync"

// Interrupt is raised by a control press while a blocking mode such as
// navigation or alignment is running.
type Interrupt struct {
	mu        sync.Mutex
	requested bool
	ch        chan struct{}
}

// NewInterrupt returns a cleared Interrupt.
func NewInterrupt() *Interrupt {
	return &Interrupt{ch: make(chan struct{})}
}

// Request raises the interrupt. Repeated calls are no-ops until Reset.
func (i *Interrupt) Request() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.requested {
		return
	}
	i.requested = true
	close(i.ch)
}

// Requested reports whether the interrupt is raised.
func (i *Interrupt) Requested() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.requested
}

// Done is closed when the interrupt is raised, so waits can wake early.
func (i *Interrupt) Done() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ch
}

// Reset clears the interrupt.
func (i *Interrupt) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.requested {
		return
	}
	i.requested = false
	i.ch = make(chan struct{})
}
