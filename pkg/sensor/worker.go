package sensor

import (
	"context"
	"fmt"
	"sync"

	"ocular/pkg/geo"
)

type headingRequest struct {
	ctx   context.Context
	reply chan headingReply
}

type headingReply struct {
	heading float64
	err     error
}

// HeadingWorker owns a HeadingSource. Reads from any goroutine are queued to
// the single owning goroutine so the bus is never driven concurrently.
type HeadingWorker struct {
	src     HeadingSource
	reqs    chan headingRequest
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Once
}

// NewHeadingWorker starts the owning goroutine for src.
func NewHeadingWorker(src HeadingSource) *HeadingWorker {
	w := &HeadingWorker{
		src:    src,
		reqs:   make(chan headingRequest),
		stopCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *HeadingWorker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case req := <-w.reqs:
			var rep headingReply
			if err := req.ctx.Err(); err != nil {
				rep.err = err
			} else if x, y, err := w.src.Read(req.ctx); err != nil {
				rep.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			} else {
				rep.heading = geo.Heading(x, y)
			}
			req.reply <- rep
		}
	}
}

// Heading implements Compass.
func (w *HeadingWorker) Heading(ctx context.Context) (float64, error) {
	req := headingRequest{ctx: ctx, reply: make(chan headingReply, 1)}
	select {
	case w.reqs <- req:
	case <-w.stopCh:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.heading, rep.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops the worker.
func (w *HeadingWorker) Close() error {
	w.closeMu.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return nil
}
