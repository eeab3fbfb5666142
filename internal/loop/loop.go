// Package loop provides the single event-processing goroutine every
// controller runs on. Pointer events, timer callbacks and engine load
// completions are all posted here, so they never interleave.
package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/softkeys/internal/logger"
)

// ErrLoopStopped is returned when posting to a loop that is not running.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs posted functions one at a time, in order.
type Loop struct {
	mu      sync.Mutex
	queue   chan func()
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a loop with the given queue capacity.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Start runs the loop on its own goroutine until ctx is cancelled or Stop
// is called.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Run(ctx)
	}()
}

// Run processes posted functions on the calling goroutine until ctx is done
// or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.markStopped()
			return
		case <-l.done:
			return
		case fn := <-l.queue:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered panic in event loop: %v", r)
		}
	}()
	fn()
}

// Post queues fn. It returns false when the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Poster adapts Post to the func(func()) shape timers and engines expect.
// Callbacks posted after Stop are dropped.
func (l *Loop) Poster() func(func()) {
	return func(fn func()) {
		if !l.Post(fn) {
			logger.Debug("Dropped callback posted to stopped event loop")
		}
	}
}

// Do posts fn and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the loop. Functions still queued are discarded.
func (l *Loop) Stop() {
	l.markStopped()
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}

func (l *Loop) markStopped() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.done)
}

// Stopped reports whether the loop has stopped accepting work.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}
