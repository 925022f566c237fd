// Package camera captures still images for scene description.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned after the worker has been closed.
var ErrClosed = errors.New("camera closed")

// Capturer takes one JPEG still.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CommandCapturer shells out to a still-capture tool such as rpicam-still.
type CommandCapturer struct {
	Command string
	Output  string
	Timeout time.Duration
}

// Capture runs the tool and reads back the image it wrote.
func (c *CommandCapturer) Capture(ctx context.Context) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return nil, errors.New("camera: empty capture command")
	}
	args := append(fields[1:], "-o", c.Output, "-t", "1", "--nopreview")
	cmd := exec.CommandContext(ctx, fields[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera: %s: %w: %s", fields[0], err, strings.TrimSpace(stderr.String()))
	}
	data, err := os.ReadFile(c.Output)
	if err != nil {
		return nil, fmt.Errorf("camera: read capture: %w", err)
	}
	slog.Debug("Image captured", "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// FileCapturer returns a fixed image from disk. Used with the simulated device.
type FileCapturer struct {
	Path string
}

// Capture implements Capturer.
func (f *FileCapturer) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return data, nil
}

type request struct {
	ctx   context.Context
	reply chan reply
}

type reply struct {
	data []byte
	err  error
}

// Worker owns the camera; captures are queued and run one at a time.
type Worker struct {
	cap    Capturer
	reqs   chan request
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorker starts the owner goroutine. queue is the number of captures that
// may wait for the camera.
func NewWorker(c Capturer, queue int) *Worker {
	if queue < 0 {
		queue = 0
	}
	w := &Worker{
		cap:    c,
		reqs:   make(chan request, queue),
		stopCh: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case req := <-w.reqs:
			if err := req.ctx.Err(); err != nil {
				req.reply <- reply{err: err}
				continue
			}
			data, err := w.cap.Capture(req.ctx)
			req.reply <- reply{data: data, err: err}
		}
	}
}

// Capture implements Capturer through the queue.
func (w *Worker) Capture(ctx context.Context) ([]byte, error) {
	req := request{ctx: ctx, reply: make(chan reply, 1)}
	select {
	case w.reqs <- req:
	case <-w.stopCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stopCh:
		return nil, ErrClosed
	}
}

// Close stops the worker. Pending captures are abandoned.
func (w *Worker) Close() error {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return nil
}
