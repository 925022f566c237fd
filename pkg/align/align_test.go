package align

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocular/pkg/audio"
	"ocular/pkg/config"
	"ocular/pkg/device"
)

func TestParseBearing(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		keyword string
		ok      bool
	}{
		{"plain", "Head north on Main St", 0, "north", true},
		{"html", "Head <b>south-west</b> on <b>Elm Rd</b>", 225, "south-west", true},
		{"compound not split", "Head north-east toward the park", 45, "north-east", true},
		{"joined", "Walk NorthWest", 315, "northwest", true},
		{"earliest wins", "Head west, then turn north", 270, "west", true},
		{"position beats list order", "Head south toward North St", 180, "south", true},
		{"not a word", "Turn left onto Eastern Ave", 0, "", false},
		{"none", "Turn right", 0, "", false},
		{"entities", "Head&nbsp;east", 90, "east", true},
		{"empty", "", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kw, ok := ParseBearing(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.keyword, kw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntensity(t *testing.T) {
	tests := []struct {
		err  float64
		want int
	}{
		{0, 0},
		{9, 1},
		{90, 10},
		{180, 20},
		{352, 20},
		{-5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Intensity(tt.err, 20), "err %v", tt.err)
	}
}

// scriptedCompass returns headings in order, repeating the last one.
type scriptedCompass struct {
	mu       sync.Mutex
	headings []float64
	errs     []error
	calls    int
}

func (s *scriptedCompass) Heading(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	if len(s.headings) == 0 {
		return 0, errors.New("no data")
	}
	if i >= len(s.headings) {
		i = len(s.headings) - 1
	}
	return s.headings[i], nil
}

type recFeedback struct {
	mu     sync.Mutex
	levels []int
	stops  int
}

func (r *recFeedback) Vibrate(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, n)
}

func (r *recFeedback) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

type flagInterrupt struct{ set atomic.Bool }

func (f *flagInterrupt) Requested() bool { return f.set.Load() }

type recCues struct {
	mu   sync.Mutex
	keys []audio.Key
}

func (r *recCues) Prompt(ctx context.Context, key audio.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func testProvider(mut func(c *config.Config)) config.Provider {
	cfg := config.DefaultConfig()
	cfg.Align.SampleInterval = config.Duration(time.Millisecond)
	if mut != nil {
		mut(cfg)
	}
	return config.NewProvider(cfg, nil)
}

func TestAlign_Converges(t *testing.T) {
	compass := &scriptedCompass{headings: []float64{180, 120, 60, 20, 5}}
	fb := &recFeedback{}
	cues := &recCues{}
	c := NewController(testProvider(nil), compass, fb, &flagInterrupt{}, cues, nil)

	res, err := c.Align(context.Background(), "Head <b>north</b>")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAligned, res.Outcome)
	assert.Equal(t, 5, res.Samples)
	assert.Equal(t, []int{20, 13, 6, 2}, fb.levels)
	assert.GreaterOrEqual(t, fb.stops, 1)
	assert.Equal(t, []audio.Key{audio.Compass, audio.CompassExit}, cues.keys)
}

func TestAlign_CircularError(t *testing.T) {
	// 355 is 5 degrees from north on the circle.
	compass := &scriptedCompass{headings: []float64{355}}
	c := NewController(testProvider(nil), compass, &recFeedback{}, &flagInterrupt{}, nil, nil)

	res, err := c.Align(context.Background(), "north")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAligned, res.Outcome)
	assert.InDelta(t, 5, res.Error, 1e-9)
}

func TestAlign_RawErrorDoesNotTerminate(t *testing.T) {
	compass := &scriptedCompass{headings: []float64{355}}
	fb := &recFeedback{}
	intr := &flagInterrupt{}
	prov := testProvider(func(c *config.Config) { c.Align.CircularError = false })
	c := NewController(prov, compass, fb, intr, nil, nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.Align(context.Background(), "north")
		done <- res
	}()

	require.Eventually(t, func() bool {
		compass.mu.Lock()
		defer compass.mu.Unlock()
		return compass.calls >= 20
	}, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("alignment ended while error stayed above tolerance")
	default:
	}

	intr.set.Store(true)
	res := <-done
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.InDelta(t, 355, res.Error, 1e-9)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.GreaterOrEqual(t, fb.stops, 1)
	assert.Equal(t, 20, fb.levels[0])
}

func TestAlign_NoDirection(t *testing.T) {
	fb := &recFeedback{}
	compass := &scriptedCompass{headings: []float64{0}}
	c := NewController(testProvider(nil), compass, fb, &flagInterrupt{}, nil, nil)

	res, err := c.Align(context.Background(), "Turn left")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDirection, res.Outcome)
	assert.Empty(t, fb.levels)
	assert.Zero(t, compass.calls)
}

func TestAlign_NoSignal(t *testing.T) {
	boom := errors.New("i2c nack")
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = boom
	}
	fb := &recFeedback{}
	c := NewController(testProvider(nil), &scriptedCompass{errs: errs}, fb, &flagInterrupt{}, nil, nil)

	res, err := c.Align(context.Background(), "east")
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.Equal(t, OutcomeNoSignal, res.Outcome)
	assert.GreaterOrEqual(t, fb.stops, 1)
}

func TestAlign_TransientFailure(t *testing.T) {
	compass := &scriptedCompass{
		errs:     []error{errors.New("glitch"), nil},
		headings: []float64{0, 90},
	}
	c := NewController(testProvider(nil), compass, &recFeedback{}, &flagInterrupt{}, nil, nil)

	res, err := c.Align(context.Background(), "east")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAligned, res.Outcome)
}

func TestAlign_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fb := &recFeedback{}
	c := NewController(testProvider(nil), &scriptedCompass{headings: []float64{180}}, fb, &flagInterrupt{}, nil, nil)

	res, err := c.Align(ctx, "north")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.GreaterOrEqual(t, fb.stops, 1)
}

func TestAlign_UpdatesDeviceState(t *testing.T) {
	st := device.New("en")
	defer st.Close()
	c := NewController(testProvider(nil), &scriptedCompass{headings: []float64{92}}, &recFeedback{}, &flagInterrupt{}, nil, st)

	res, err := c.Align(context.Background(), "east")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAligned, res.Outcome)

	snap := st.Snapshot()
	assert.True(t, snap.HeadingValid)
	assert.Equal(t, 92.0, snap.Heading)
	assert.Equal(t, device.ModeIdle, snap.Mode)
}
