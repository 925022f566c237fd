package sensor

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ocular/pkg/geo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	x, y     int16
	err      error
	inFlight int32
	maxSeen  int32
}

func (f *fakeSource) Read(ctx context.Context) (int16, int16, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return f.x, f.y, f.err
}

type fakePosition struct {
	p   geo.Point
	err error
}

func (f fakePosition) Position(ctx context.Context) (geo.Point, error) { return f.p, f.err }

func TestHeadingWorker(t *testing.T) {
	src := &fakeSource{x: 0, y: 100}
	w := NewHeadingWorker(src)
	defer w.Close()

	h, err := w.Heading(context.Background())
	if err != nil {
		t.Fatalf("Heading() error = %v", err)
	}
	if math.Abs(h-90) > 1e-9 {
		t.Errorf("Heading() = %v, want 90", h)
	}
}

func TestHeadingWorker_SerializesAccess(t *testing.T) {
	src := &fakeSource{x: 100, y: 0}
	w := NewHeadingWorker(src)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Heading(context.Background())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&src.maxSeen); got != 1 {
		t.Errorf("source was read concurrently (max %d in flight)", got)
	}
}

func TestHeadingWorker_Errors(t *testing.T) {
	w := NewHeadingWorker(&fakeSource{err: errors.New("i2c nack")})

	_, err := w.Heading(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Heading(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}

	w.Close()
	w.Close()
	if _, err := w.Heading(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSample(t *testing.T) {
	good := NewHeadingWorker(&fakeSource{x: 100, y: 0})
	defer good.Close()
	bad := NewHeadingWorker(&fakeSource{err: errors.New("bus")})
	defer bad.Close()
	fix := geo.Point{Lat: 12.97, Lon: 77.59}

	r, err := Sample(context.Background(), good, fakePosition{p: fix})
	if err != nil || !r.HeadingOK || r.Position != fix {
		t.Errorf("Sample() = %+v, %v", r, err)
	}

	r, err = Sample(context.Background(), bad, fakePosition{p: fix})
	if err != nil || r.HeadingOK {
		t.Errorf("compass failure only: Sample() = %+v, %v", r, err)
	}

	_, err = Sample(context.Background(), bad, fakePosition{err: errors.New("serial")})
	if err == nil {
		t.Error("expected error when both sensors fail")
	}
}
