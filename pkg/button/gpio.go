package button

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Input is a push button.
type Input interface {
	// Pressed reports the current level.
	Pressed() bool
	// WaitForEdge blocks until the level changes or timeout elapses.
	WaitForEdge(timeout time.Duration) bool
}

// Pin is the subset of gpio.PinIO a button needs.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// GPIO is an active-low button wired between a pin and ground.
type GPIO struct {
	pin Pin
}

// OpenGPIO initializes the host drivers and opens the named pin with the
// internal pull-up and both-edge detection.
func OpenGPIO(name string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("button: host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("button: unknown pin %q", name)
	}
	return NewGPIO(p)
}

// NewGPIO configures pin as a pulled-up input.
func NewGPIO(pin Pin) (*GPIO, error) {
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("button: pin in: %w", err)
	}
	return &GPIO{pin: pin}, nil
}

// Pressed implements Input.
func (b *GPIO) Pressed() bool { return b.pin.Read() == gpio.Low }

// WaitForEdge implements Input.
func (b *GPIO) WaitForEdge(timeout time.Duration) bool { return b.pin.WaitForEdge(timeout) }

// Virtual is a button driven from software, used by the simulated device
// and the dev API.
type Virtual struct {
	mu      sync.Mutex
	pressed bool
	edges   chan struct{}
}

// NewVirtual returns a released button.
func NewVirtual() *Virtual {
	return &Virtual{edges: make(chan struct{}, 1)}
}

// Set changes the level, signalling an edge when it differs.
func (v *Virtual) Set(pressed bool) {
	v.mu.Lock()
	changed := v.pressed != pressed
	v.pressed = pressed
	v.mu.Unlock()
	if !changed {
		return
	}
	select {
	case v.edges <- struct{}{}:
	default:
	}
}

// Press holds the button down.
func (v *Virtual) Press() { v.Set(true) }

// Release lets the button go.
func (v *Virtual) Release() { v.Set(false) }

// Pressed implements Input.
func (v *Virtual) Pressed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pressed
}

// WaitForEdge implements Input.
func (v *Virtual) WaitForEdge(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-v.edges:
		return true
	case <-t.C:
		return false
	}
}
