package haptic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Pin is the subset of gpio.PinIO the motor driver needs.
type Pin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
}

// PWMMotor drives a vibration motor on a PWM capable pin. When the pin has
// no hardware PWM a software loop toggles it instead.
type PWMMotor struct {
	pin  Pin
	freq physic.Frequency

	mu       sync.Mutex
	duty     gpio.Duty
	software bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// OpenMotor initializes the host drivers and opens the named pin.
func OpenMotor(pinName string, freqHz int) (*PWMMotor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("haptic: host init: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("haptic: unknown pin %q", pinName)
	}
	return NewPWMMotor(p, freqHz)
}

// NewPWMMotor wraps pin and drives it low.
func NewPWMMotor(pin Pin, freqHz int) (*PWMMotor, error) {
	if freqHz <= 0 {
		freqHz = 100
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("haptic: pin out: %w", err)
	}
	return &PWMMotor{pin: pin, freq: physic.Hertz * physic.Frequency(freqHz)}, nil
}

// SetDuty sets the duty cycle, pct in [0,1].
func (m *PWMMotor) SetDuty(pct float64) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	duty := gpio.Duty(pct * float64(gpio.DutyMax))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.duty = duty

	if m.software {
		return nil
	}
	if duty == 0 {
		return m.pin.Out(gpio.Low)
	}
	if err := m.pin.PWM(duty, m.freq); err != nil {
		slog.Warn("Hardware PWM unavailable, using software loop", "error", err)
		m.startSoftwareLoop()
	}
	return nil
}

// expects m.mu held.
func (m *PWMMotor) startSoftwareLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	m.software = true
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.softwareLoop(ctx)
	}()
}

func (m *PWMMotor) softwareLoop(ctx context.Context) {
	period := m.freq.Period()
	for {
		m.mu.Lock()
		duty := m.duty
		m.mu.Unlock()

		onPeriod := time.Duration(float64(duty) / float64(gpio.DutyMax) * float64(period))
		if onPeriod > 0 {
			if err := m.pin.Out(gpio.High); err != nil {
				slog.Error("Motor pin write failed", "error", err)
			}
			if !sleepCtx(ctx, onPeriod) {
				_ = m.pin.Out(gpio.Low)
				return
			}
		}
		if err := m.pin.Out(gpio.Low); err != nil {
			slog.Error("Motor pin write failed", "error", err)
		}
		if !sleepCtx(ctx, period-onPeriod) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close stops any software loop and drives the pin low.
func (m *PWMMotor) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	return m.pin.Out(gpio.Low)
}
