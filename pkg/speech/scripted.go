package speech

import (
	"context"
	"log/slog"
	"time"
)

// Scripted is a listener fed from software, used by the simulated device.
// Phrases are queued with Say; Listen waits up to the timeout for one.
type Scripted struct {
	phrases chan string
	timeout time.Duration
}

// NewScripted returns a Scripted listener.
func NewScripted(timeout time.Duration) *Scripted {
	return &Scripted{phrases: make(chan string, 8), timeout: timeout}
}

// Say queues a phrase. It reports false when the queue is full.
func (s *Scripted) Say(phrase string) bool {
	select {
	case s.phrases <- phrase:
		return true
	default:
		return false
	}
}

// Listen implements the speech input.
func (s *Scripted) Listen(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		slog.Info("Asking", "prompt", prompt)
	}
	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case p := <-s.phrases:
		return p, nil
	case <-t.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
