package haptic

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePin struct {
	mu     sync.Mutex
	hwErr  error
	levels []gpio.Level
	duty   gpio.Duty
	freq   physic.Frequency
}

func (p *fakePin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakePin) PWM(d gpio.Duty, f physic.Frequency) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hwErr != nil {
		return p.hwErr
	}
	p.duty, p.freq = d, f
	return nil
}

func (p *fakePin) highs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.levels {
		if l == gpio.High {
			n++
		}
	}
	return n
}

func TestPWMMotor_Hardware(t *testing.T) {
	pin := &fakePin{}
	m, err := NewPWMMotor(pin, 100)
	require.NoError(t, err)

	pct := 0.2
	require.NoError(t, m.SetDuty(pct))
	assert.Equal(t, gpio.Duty(pct*float64(gpio.DutyMax)), pin.duty)
	assert.Equal(t, 100*physic.Hertz, pin.freq)

	require.NoError(t, m.SetDuty(2))
	assert.Equal(t, gpio.DutyMax, pin.duty)

	require.NoError(t, m.Close())
	assert.Equal(t, gpio.Low, pin.levels[len(pin.levels)-1])
}

func TestPWMMotor_SoftwareFallback(t *testing.T) {
	pin := &fakePin{hwErr: errors.New("no hardware pwm")}
	m, err := NewPWMMotor(pin, 100)
	require.NoError(t, err)

	require.NoError(t, m.SetDuty(0.5))
	require.Eventually(t, func() bool { return pin.highs() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	pin.mu.Lock()
	last := pin.levels[len(pin.levels)-1]
	pin.mu.Unlock()
	assert.Equal(t, gpio.Low, last)
}

type recMotor struct {
	mu     sync.Mutex
	duties []float64
	closed bool
}

func (r *recMotor) SetDuty(pct float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duties = append(r.duties, pct)
	return nil
}

func (r *recMotor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recMotor) last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.duties) == 0 {
		return -1
	}
	return r.duties[len(r.duties)-1]
}

func TestWorker_ClampsAndStops(t *testing.T) {
	m := &recMotor{}
	w := NewWorker(m, 20)

	w.Vibrate(50)
	require.Eventually(t, func() bool { return w.Intensity() == 20 }, time.Second, time.Millisecond)
	assert.InDelta(t, 0.2, m.last(), 1e-9)

	w.Stop()
	require.Eventually(t, func() bool { return m.last() == 0 }, time.Second, time.Millisecond)

	w.Vibrate(-3)
	require.NoError(t, w.Close())
	assert.True(t, m.closed)
	assert.Equal(t, 0.0, m.last())

	// Requests after Close are dropped.
	w.Vibrate(10)
	require.NoError(t, w.Close())
}

func TestLogMotor(t *testing.T) {
	l := &LogMotor{}
	require.NoError(t, l.SetDuty(0.1))
	assert.Equal(t, 0.1, l.Duty())
	require.NoError(t, l.Close())
}
