// Package hci implements the Link Layer Adapter and the
// single-threaded cooperative Event Loop every ATT Transport runs
// its callbacks on.
package hci

import (
	"sync"
	"time"
)

// Loop is a single cooperative dispatcher
// on one dedicated worker thread. Go's runtime has no direct equivalent of
// a libuv-style fd-multiplexing reactor over an arbitrary io.ReadWriter,
// so this is re-expressed as a
// lazily-started goroutine draining a work queue — every func given to
// Post/AfterFunc runs serially, on that one goroutine, which is the
// "single-threaded execution domain" the ATT Transport Engine requires.
// The blocking read syscall itself still needs its own goroutine per
// connection (Conn is a blocking io.Reader, not a pollable fd this
// package owns) — that goroutine only ever calls Post to hand decoded
// PDUs back to the loop; it never touches transport state directly.
type Loop struct {
	work chan func()
	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewLoop returns a Loop that has not yet been started.
func NewLoop() *Loop {
	return &Loop{
		work: make(chan func(), 64),
		quit: make(chan struct{}),
	}
}

var (
	defaultLoopOnce sync.Once
	defaultLoop     *Loop
)

// DefaultLoop returns the process-wide lazily-initialized singleton Loop.
// It is what hci.Open and att.NewTransport fall back to when given a nil
// Loop; linux.Open does not use it, as each Requester starts its own Loop.
func DefaultLoop() *Loop {
	defaultLoopOnce.Do(func() {
		defaultLoop = NewLoop()
		defaultLoop.Start()
	})
	return defaultLoop
}

// Start launches the worker goroutine. Idempotent.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	l.wg.Add(1)
	go l.run()
}

// Stop drains and halts the worker goroutine. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	close(l.quit)
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.quit:
			// Drain whatever is already queued before exiting, so posted
			// teardown callbacks (reference-count drops, destroy hooks)
			// still run on this thread.
			for {
				select {
				case fn := <-l.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine, including the loop goroutine itself (fn then runs after the
// current callback returns).
func (l *Loop) Post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.quit:
	}
}

// AfterFunc arms a one-shot timer that posts fn to the loop when it
// fires, used for the ATT Transport's 30s per-request timeout.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}
