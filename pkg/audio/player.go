// Package audio plays prompt sounds and synthesized speech.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

const targetSampleRate = 48000

// Player plays an audio file. With wait set, Play returns after the clip
// finished or ctx ended.
type Player interface {
	Play(ctx context.Context, path string, wait bool) error
	Stop()
}

type clip struct {
	done chan struct{}
	once sync.Once
}

func (c *clip) finish() { c.once.Do(func() { close(c.done) }) }

// Speaker implements Player with gopxl/beep.
type Speaker struct {
	mu          sync.Mutex
	ctrl        *beep.Ctrl
	track       beep.StreamSeekCloser
	clip        *clip
	volume      float64
	initialized bool
}

// NewSpeaker returns a speaker at full volume. The device is opened lazily.
func NewSpeaker() *Speaker {
	return &Speaker{volume: 1.0}
}

// Play replaces any current clip with path.
func (s *Speaker) Play(ctx context.Context, path string, wait bool) error {
	s.mu.Lock()
	s.stopLocked()

	streamer, format, err := decode(path)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.ensureInitialized(); err != nil {
		streamer.Close()
		s.mu.Unlock()
		return err
	}

	resampled := beep.Resample(3, format.SampleRate, beep.SampleRate(targetSampleRate), streamer)
	vol := &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(s.volume),
		Silent:   s.volume <= 0.01,
	}
	c := &clip{done: make(chan struct{})}
	s.ctrl = &beep.Ctrl{Streamer: vol}
	s.track = streamer
	s.clip = c

	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		// Off the speaker goroutine: cleanup takes s.mu.
		go func() {
			s.mu.Lock()
			if s.clip == c {
				s.ctrl = nil
				s.track = nil
				s.clip = nil
				streamer.Close()
			}
			s.mu.Unlock()
			c.finish()
		}()
	})))
	s.mu.Unlock()

	slog.Debug("Playing audio", "path", path)
	if !wait {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}
}

// Stop cuts the current clip.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Speaker) stopLocked() {
	if s.ctrl == nil {
		return
	}
	speaker.Clear()
	if s.track != nil {
		s.track.Close()
	}
	if s.clip != nil {
		s.clip.finish()
	}
	s.ctrl = nil
	s.track = nil
	s.clip = nil
}

// SetVolume sets playback volume (0.0 to 1.0) for the next clip.
func (s *Speaker) SetVolume(vol float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = math.Max(0, math.Min(1, vol))
}

// Volume returns the current volume level.
func (s *Speaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Speaker) ensureInitialized() error {
	if s.initialized {
		return nil
	}
	sr := beep.SampleRate(targetSampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		slog.Error("Failed to initialize speaker", "error", err)
		return err
	}
	s.initialized = true
	return nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		err = errors.New("unsupported audio format")
	}
	if err != nil {
		f.Close()
		slog.Error("Failed to decode audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}
	return streamer, format, nil
}

// Duration returns the playing time of the file at path.
func Duration(path string) (time.Duration, error) {
	streamer, format, err := decode(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}

func volumeToPower(vol float64) float64 {
	// beep adds Volume to a base-2 exponent.
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
