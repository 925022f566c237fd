// Package nmea reads positions from a serial NMEA 0183 GPS receiver.
package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"

	"ocular/pkg/geo"
)

// Fix is the latest decoded position.
type Fix struct {
	Point      geo.Point
	Quality    string
	Satellites int64
	HDOP       float64
	SpeedKnots float64
	Course     float64
	At         time.Time
}

// Receiver owns the serial line and keeps the latest fix. Readers never
// touch the port; they get the cached value.
type Receiver struct {
	mu         sync.RWMutex
	fix        Fix
	lastErr    error
	staleAfter time.Duration
	now        func() time.Time

	dev    io.ReadCloser
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Open opens the serial port and starts reading.
func Open(port string, baud uint, staleAfter time.Duration) (*Receiver, error) {
	if port == "" {
		return nil, errors.New("nmea: empty serial port")
	}
	if baud == 0 {
		baud = 9600
	}
	dev, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("nmea: open %s: %w", port, err)
	}
	return NewReceiver(dev, staleAfter), nil
}

// NewReceiver starts reading sentences from dev.
func NewReceiver(dev io.ReadCloser, staleAfter time.Duration) *Receiver {
	r := &Receiver{
		dev:        dev,
		staleAfter: staleAfter,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.readLoop()
	return r
}

func (r *Receiver) readLoop() {
	defer r.wg.Done()
	br := bufio.NewReader(r.dev)
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		line, err := br.ReadString('\n')
		if err != nil {
			select {
			case <-r.stopCh:
			default:
				slog.Error("GPS serial read failed", "error", err)
			}
			r.mu.Lock()
			r.lastErr = err
			r.mu.Unlock()
			return
		}
		if err := r.handle(line); err != nil {
			slog.Debug("Unparsed NMEA sentence", "error", err)
		}
	}
}

// handle updates the cached fix from one sentence.
func (r *Receiver) handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	s, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch m := s.(type) {
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			r.fix = Fix{At: r.now()}
			return nil
		}
		r.fix.Point = geo.Point{Lat: m.Latitude, Lon: m.Longitude}
		r.fix.Quality = m.FixQuality
		r.fix.Satellites = m.NumSatellites
		r.fix.HDOP = m.HDOP
		r.fix.At = r.now()
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return nil
		}
		r.fix.Point = geo.Point{Lat: m.Latitude, Lon: m.Longitude}
		r.fix.SpeedKnots = m.Speed
		r.fix.Course = m.Course
		r.fix.At = r.now()
	}
	return nil
}

// Position implements sensor.PositionSource. A missing or stale fix is
// reported as geo.NoFix.
func (r *Receiver) Position(ctx context.Context) (geo.Point, error) {
	if err := ctx.Err(); err != nil {
		return geo.NoFix, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lastErr != nil {
		return geo.NoFix, fmt.Errorf("nmea: receiver stopped: %w", r.lastErr)
	}
	if r.fix.At.IsZero() || !r.fix.Point.Valid() {
		return geo.NoFix, nil
	}
	if r.staleAfter > 0 && r.now().Sub(r.fix.At) > r.staleAfter {
		return geo.NoFix, nil
	}
	return r.fix.Point, nil
}

// LastFix returns the cached fix as received.
func (r *Receiver) LastFix() Fix {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fix
}

// Close stops the reader and closes the port.
func (r *Receiver) Close() error {
	var err error
	r.once.Do(func() {
		close(r.stopCh)
		err = r.dev.Close()
	})
	r.wg.Wait()
	return err
}
