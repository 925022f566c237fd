package button

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ocular/pkg/audio"
	"ocular/pkg/command"
	"ocular/pkg/config"
	"ocular/pkg/device"
)

func TestInterrupt(t *testing.T) {
	i := NewInterrupt()
	assert.False(t, i.Requested())
	done := i.Done()

	i.Request()
	i.Request()
	assert.True(t, i.Requested())
	select {
	case <-done:
	default:
		t.Fatal("Done not closed after Request")
	}

	i.Reset()
	assert.False(t, i.Requested())
	select {
	case <-i.Done():
		t.Fatal("Done closed after Reset")
	default:
	}
}

func TestTripleDetector(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	tests := []struct {
		name     string
		releases []int
		want     []TripleResult
	}{
		{
			name:     "three quick",
			releases: []int{0, 300, 600},
			want:     []TripleResult{TripleNone, TripleNone, TripleMatch},
		},
		{
			name:     "too slow",
			releases: []int{0, 600, 1200, 1900},
			want:     []TripleResult{TripleNone, TripleNone, TripleNone, TripleNone},
		},
		{
			name:     "window slides",
			releases: []int{0, 900, 1100, 1300},
			want:     []TripleResult{TripleNone, TripleNone, TripleNone, TripleMatch},
		},
		{
			name:     "cooldown",
			releases: []int{0, 100, 200, 5000, 5100, 5200},
			want:     []TripleResult{TripleNone, TripleNone, TripleMatch, TripleNone, TripleNone, TripleCooldown},
		},
		{
			name:     "after cooldown",
			releases: []int{0, 100, 200, 31000, 31100, 31200},
			want:     []TripleResult{TripleNone, TripleNone, TripleMatch, TripleNone, TripleNone, TripleMatch},
		},
		{
			name:     "cooldown presses not extending it",
			releases: []int{0, 100, 200, 20000, 20100, 20200, 30300, 30400, 30500},
			want: []TripleResult{
				TripleNone, TripleNone, TripleMatch,
				TripleNone, TripleNone, TripleCooldown,
				TripleNone, TripleNone, TripleMatch,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewTripleDetector(time.Second, 30*time.Second)
			var got []TripleResult
			for _, ms := range tt.releases {
				got = append(got, d.Release(at(ms)))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeEmergencies struct {
	mu         sync.Mutex
	active     bool
	toggles    int
	activates  int
	toggleErr  error
	activeErrs error
}

func (f *fakeEmergencies) Toggle(ctx context.Context, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.toggleErr != nil {
		return f.active, f.toggleErr
	}
	f.active = !f.active
	return f.active, nil
}

func (f *fakeEmergencies) Activate(ctx context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activates++
	if f.active {
		return device.ErrEmergencyActive
	}
	f.active = true
	return f.activeErrs
}

func (f *fakeEmergencies) Toggles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggles
}

type fakeListener struct {
	mu      sync.Mutex
	phrases []string
	err     error
	calls   int
}

func (f *fakeListener) Listen(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.phrases) == 0 {
		return "", nil
	}
	p := f.phrases[0]
	f.phrases = f.phrases[1:]
	return p, nil
}

func (f *fakeListener) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalyser struct {
	custom []bool
	err    error
}

func (f *fakeAnalyser) Analyse(ctx context.Context, custom bool) error {
	f.custom = append(f.custom, custom)
	return f.err
}

type fakeNavigator struct {
	calls int
	block chan struct{}
	intr  *Interrupt
}

func (f *fakeNavigator) Navigate(ctx context.Context) error {
	f.calls++
	if f.block == nil {
		return nil
	}
	close(f.block)
	select {
	case <-f.intr.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type recPrompter struct {
	mu   sync.Mutex
	keys []audio.Key
}

func (r *recPrompter) Prompt(ctx context.Context, key audio.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func (r *recPrompter) Keys() []audio.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.Key(nil), r.keys...)
}

type fixture struct {
	d        *Dispatcher
	em       *fakeEmergencies
	listener *fakeListener
	analyser *fakeAnalyser
	nav      *fakeNavigator
	prompts  *recPrompter
	restarts *atomic.Int32
	clock    *clock.Mock
	emButton *Virtual
	control  *Virtual
}

func newFixture(t *testing.T, clk clock.Clock, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	f := &fixture{
		em:       &fakeEmergencies{},
		listener: &fakeListener{},
		analyser: &fakeAnalyser{},
		nav:      &fakeNavigator{},
		prompts:  &recPrompter{},
		restarts: &atomic.Int32{},
		emButton: NewVirtual(),
		control:  NewVirtual(),
	}
	if m, ok := clk.(*clock.Mock); ok {
		f.clock = m
	}
	f.d = NewDispatcher(Options{
		Provider:    config.NewProvider(cfg, nil),
		Emergency:   f.emButton,
		Control:     f.control,
		Emergencies: f.em,
		Listener:    f.listener,
		Analyser:    f.analyser,
		Navigator:   f.nav,
		Prompts:     f.prompts,
		Restarter: RestartFunc(func() error {
			f.restarts.Add(1)
			return nil
		}),
		Clock: clk,
	})
	f.nav.intr = f.d.Interrupt()
	return f
}

func (f *fixture) click(ctx context.Context, gap time.Duration) {
	f.d.EmergencyEdge(ctx, true, f.clock.Now())
	f.clock.Add(50 * time.Millisecond)
	f.d.EmergencyEdge(ctx, false, f.clock.Now())
	f.clock.Add(gap)
}

func TestEmergencyEdge_TripleToggles(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.click(ctx, 200*time.Millisecond)
	}
	assert.Equal(t, 1, f.em.Toggles())
	assert.True(t, f.em.active)

	// A second triple inside the cooldown only plays the cooldown cue.
	for i := 0; i < 3; i++ {
		f.click(ctx, 200*time.Millisecond)
	}
	assert.Equal(t, 1, f.em.Toggles())
	assert.Equal(t, []audio.Key{audio.CooldownActive}, f.prompts.Keys())

	f.clock.Add(30 * time.Second)
	for i := 0; i < 3; i++ {
		f.click(ctx, 200*time.Millisecond)
	}
	assert.Equal(t, 2, f.em.Toggles())
	assert.False(t, f.em.active)
}

func TestEmergencyEdge_ToggleFailureStillConsumesCooldown(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	f.em.toggleErr = device.ErrNoFix
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.click(ctx, 200*time.Millisecond)
	}
	f.em.toggleErr = nil
	for i := 0; i < 3; i++ {
		f.click(ctx, 200*time.Millisecond)
	}
	assert.Equal(t, 1, f.em.Toggles())
	assert.Equal(t, []audio.Key{audio.CooldownActive}, f.prompts.Keys())
}

func TestEmergencyEdge_LongPressRestarts(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	ctx := context.Background()

	f.d.EmergencyEdge(ctx, true, f.clock.Now())
	f.clock.Add(1900 * time.Millisecond)
	assert.Equal(t, int32(0), f.restarts.Load())

	f.clock.Add(200 * time.Millisecond)
	require.Eventually(t, func() bool { return f.restarts.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		f.d.mu.Lock()
		defer f.d.mu.Unlock()
		return f.d.longFired
	}, time.Second, 5*time.Millisecond)
	f.d.EmergencyEdge(ctx, false, f.clock.Now())
	assert.Contains(t, f.prompts.Keys(), audio.Restarting)

	// The release after a long press does not count toward a triple.
	f.click(ctx, 100*time.Millisecond)
	f.click(ctx, 100*time.Millisecond)
	assert.Equal(t, 0, f.em.Toggles())
}

func TestEmergencyEdge_ShortPressDoesNotRestart(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	ctx := context.Background()

	f.click(ctx, 5*time.Second)
	assert.Equal(t, int32(0), f.restarts.Load())
}

func TestPollControl_Debounce(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	now := f.clock.Now()
	step := 50 * time.Millisecond

	// A 100ms blip is ignored.
	f.control.Press()
	f.d.pollControl(now)
	f.d.pollControl(now.Add(step))
	f.control.Release()
	f.d.pollControl(now.Add(2 * step))
	assert.Len(t, f.d.presses, 0)

	// A held press fires once.
	now = now.Add(time.Second)
	f.control.Press()
	for i := 0; i < 10; i++ {
		f.d.pollControl(now.Add(time.Duration(i) * step))
	}
	assert.Len(t, f.d.presses, 1)
}

func TestControlPress_InterruptsWhenBusy(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)

	f.d.busy.Store(true)
	f.d.ControlPress()
	assert.True(t, f.d.Interrupt().Requested())
	assert.Len(t, f.d.presses, 0)
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		phrase  string
		want    command.Command
		check   func(t *testing.T, f *fixture)
		prompts []audio.Key
	}{
		{"analyse", command.Analyse, func(t *testing.T, f *fixture) {
			assert.Equal(t, []bool{false}, f.analyser.custom)
		}, nil},
		{"custom analyse", command.CustomAnalyse, func(t *testing.T, f *fixture) {
			assert.Equal(t, []bool{true}, f.analyser.custom)
		}, nil},
		{"navigate to the station", command.Navigate, func(t *testing.T, f *fixture) {
			assert.Equal(t, 1, f.nav.calls)
		}, nil},
		{"emergency", command.Emergency, func(t *testing.T, f *fixture) {
			assert.True(t, f.em.active)
		}, nil},
		{"sing a song", command.Invalid, func(t *testing.T, f *fixture) {
			assert.Empty(t, f.analyser.custom)
			assert.Zero(t, f.nav.calls)
		}, []audio.Key{audio.InvalidCommand}},
		{"", command.Invalid, nil, []audio.Key{audio.InvalidCommand}},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			f := newFixture(t, clock.NewMock(), nil)
			f.listener.phrases = []string{tt.phrase}

			got, _ := f.d.HandleCommand(context.Background())
			assert.Equal(t, tt.want, got)
			if tt.check != nil {
				tt.check(t, f)
			}
			assert.Equal(t, tt.prompts, f.prompts.Keys())
		})
	}
}

func TestHandleCommand_AnalyseFailure(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	f.listener.phrases = []string{"analyse"}
	f.analyser.err = errors.New("camera busy")

	_, err := f.d.HandleCommand(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []audio.Key{audio.InvalidCommand}, f.prompts.Keys())
}

func TestHandleCommand_ListenFailure(t *testing.T) {
	f := newFixture(t, clock.NewMock(), nil)
	f.listener.err = errors.New("microphone unplugged")

	got, err := f.d.HandleCommand(context.Background())
	assert.Error(t, err)
	assert.Equal(t, command.Invalid, got)
	assert.Equal(t, []audio.Key{audio.InvalidCommand}, f.prompts.Keys())
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, clock.New(), func(cfg *config.Config) {
		cfg.Buttons.ControlPoll = config.Duration(2 * time.Millisecond)
		cfg.Buttons.ControlDebounce = config.Duration(6 * time.Millisecond)
		cfg.Buttons.Debounce = config.Duration(time.Millisecond)
	})
	f.listener.phrases = []string{"navigate"}
	f.nav.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.d.Run(ctx)
	}()

	// First press starts navigation, second interrupts it.
	f.control.Press()
	select {
	case <-f.nav.block:
	case <-time.After(2 * time.Second):
		t.Fatal("navigation never started")
	}
	f.control.Release()
	time.Sleep(20 * time.Millisecond)
	f.control.Press()
	require.Eventually(t, func() bool { return !f.d.Busy() }, 2*time.Second, 5*time.Millisecond)
	f.control.Release()
	assert.Equal(t, 1, f.listener.Calls())

	// Triple press on the emergency button.
	for i := 0; i < 3; i++ {
		f.emButton.Press()
		time.Sleep(15 * time.Millisecond)
		f.emButton.Release()
		time.Sleep(15 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return f.em.Toggles() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
