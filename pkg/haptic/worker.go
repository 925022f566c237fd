// Package haptic drives the vibration motor used for heading feedback.
package haptic

import (
	"log/slog"
	"sync"
)

// Motor is a PWM driven actuator. Duty is a fraction in [0,1].
type Motor interface {
	SetDuty(pct float64) error
	Close() error
}

// Worker is the single owner of a Motor. Vibrate and Stop never block: the
// owner applies only the newest request.
type Worker struct {
	motor   Motor
	max     int
	reqs    chan int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.Mutex
	current int
}

// NewWorker starts the owner goroutine. max is the largest accepted
// intensity; intensity n maps to n percent duty.
func NewWorker(m Motor, max int) *Worker {
	if max <= 0 {
		max = 20
	}
	w := &Worker{
		motor:  m,
		max:    max,
		reqs:   make(chan int, 1),
		stopCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer w.wg.Done()
	applied := -1
	for {
		select {
		case <-w.stopCh:
			if err := w.motor.SetDuty(0); err != nil {
				slog.Warn("Failed to stop motor", "error", err)
			}
			return
		case n := <-w.reqs:
			if n == applied {
				continue
			}
			if err := w.motor.SetDuty(float64(n) / 100); err != nil {
				slog.Warn("Failed to set motor duty", "intensity", n, "error", err)
				continue
			}
			applied = n
			w.mu.Lock()
			w.current = n
			w.mu.Unlock()
		}
	}
}

// Vibrate requests intensity n, clamped to [0,max].
func (w *Worker) Vibrate(n int) {
	if n < 0 {
		n = 0
	}
	if n > w.max {
		n = w.max
	}
	select {
	case <-w.stopCh:
		return
	default:
	}
	// Latest wins: drop a pending request before queueing.
	select {
	case w.reqs <- n:
		return
	default:
	}
	select {
	case <-w.reqs:
	default:
	}
	select {
	case w.reqs <- n:
	default:
	}
}

// Stop requests zero output.
func (w *Worker) Stop() { w.Vibrate(0) }

// Intensity returns the last applied intensity.
func (w *Worker) Intensity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops the motor and the worker, then releases the motor.
func (w *Worker) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		err = w.motor.Close()
	})
	return err
}

// LogMotor stands in for the motor on machines without GPIO.
type LogMotor struct {
	mu   sync.Mutex
	duty float64
}

// SetDuty logs duty changes.
func (l *LogMotor) SetDuty(pct float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pct != l.duty {
		slog.Debug("Motor duty", "pct", pct)
	}
	l.duty = pct
	return nil
}

// Duty returns the last duty set.
func (l *LogMotor) Duty() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.duty
}

// Close implements Motor.
func (l *LogMotor) Close() error { return nil }
