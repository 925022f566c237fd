// Package qmc5883l reads the QMC5883L 3-axis magnetometer over I2C.
package qmc5883l

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddress is the fixed bus address of the chip.
const DefaultAddress = 0x0D

const (
	regDataOut  = 0x00
	regControl1 = 0x09
	regSetReset = 0x0B

	// continuous mode, 200Hz output, 8 gauss range, 512x oversampling
	control1Continuous = 0x1D
	setResetPeriod     = 0x01
)

// Conn is the subset of an I2C device the driver needs.
type Conn interface {
	Tx(w, r []byte) error
}

// Device is an initialized magnetometer.
type Device struct {
	mu     sync.Mutex
	conn   Conn
	closer func() error
}

// Open initializes the host drivers, opens the named bus ("" picks the
// first one) and configures the chip for continuous measurement.
func Open(busName string, addr uint16) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	if addr == 0 {
		addr = DefaultAddress
	}
	d, err := New(&i2c.Dev{Bus: bus, Addr: addr})
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.closer = bus.Close
	return d, nil
}

// New configures the chip behind conn.
func New(conn Conn) (*Device, error) {
	d := &Device{conn: conn}
	if err := conn.Tx([]byte{regControl1, control1Continuous}, nil); err != nil {
		return nil, fmt.Errorf("qmc5883l control: %w", err)
	}
	if err := conn.Tx([]byte{regSetReset, setResetPeriod}, nil); err != nil {
		return nil, fmt.Errorf("qmc5883l set/reset: %w", err)
	}
	return d, nil
}

// Read returns the signed X and Y axes. It implements sensor.HeadingSource.
func (d *Device) Read(ctx context.Context) (x, y int16, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, 6)
	if err := d.conn.Tx([]byte{regDataOut}, buf); err != nil {
		return 0, 0, fmt.Errorf("qmc5883l read: %w", err)
	}
	return decode(buf)
}

// decode converts the little-endian X/Y/Z block into signed axes.
func decode(buf []byte) (x, y int16, err error) {
	if len(buf) < 4 {
		return 0, 0, fmt.Errorf("qmc5883l: short read (%d bytes)", len(buf))
	}
	x = int16(binary.LittleEndian.Uint16(buf[0:2]))
	y = int16(binary.LittleEndian.Uint16(buf[2:4]))
	return x, y, nil
}

// Close releases the bus.
func (d *Device) Close() error {
	if d.closer != nil {
		return d.closer()
	}
	return nil
}
