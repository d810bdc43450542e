// Package loop runs callbacks one at a time on a single goroutine.
//
// Bus events, timer expirations and administrative commands are all posted
// to the same Loop, so the state they touch needs no locking as long as it
// is only ever read or written from posted functions.
package loop

import (
	"context"
	"log/slog"
	"time"
)

const defaultQueueSize = 64

type Loop struct {
	queue  chan func()
	done   chan struct{}
	logger *slog.Logger
}

func New(queueSize int, logger *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run executes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			l.call(fn)
		}
	}
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Loop: callback panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn for execution on the loop goroutine. It returns false when
// the loop has already stopped. Post must not be called from the loop
// goroutine while the queue may be full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.queue <- fn:
		return true
	}
}

// Call runs fn on the loop goroutine and waits for it. It returns false when
// the loop stopped before fn could run. Never call it from the loop itself.
func (l *Loop) Call(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timer is a one-shot timer whose callback runs on the loop. It must only be
// used from the loop goroutine.
type Timer struct {
	loop  *Loop
	timer *time.Timer
	gen   uint64
	armed bool
}

func (l *Loop) NewTimer() *Timer {
	return &Timer{loop: l}
}

// ScheduleOnce arms the timer, replacing any pending callback.
func (t *Timer) ScheduleOnce(d time.Duration, fn func()) {
	t.Stop()
	t.gen++
	gen := t.gen
	t.armed = true
	t.timer = time.AfterFunc(d, func() {
		t.loop.Post(func() {
			// Stopped or re-armed while the expiration was in flight.
			if gen != t.gen || !t.armed {
				return
			}
			t.armed = false
			fn()
		})
	})
}

func (t *Timer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.armed = false
}

// Active reports whether a callback is pending.
func (t *Timer) Active() bool {
	return t.armed
}

// Ticker re-arms itself after each callback until stopped.
type Ticker struct {
	timer    *Timer
	interval time.Duration
	fn       func()
}

func (l *Loop) NewTicker(interval time.Duration, fn func()) *Ticker {
	return &Ticker{timer: l.NewTimer(), interval: interval, fn: fn}
}

func (t *Ticker) Start() {
	t.timer.ScheduleOnce(t.interval, t.tick)
}

func (t *Ticker) tick() {
	t.fn()
	t.timer.ScheduleOnce(t.interval, t.tick)
}

func (t *Ticker) Stop() {
	t.timer.Stop()
}
