package ember

import (
	"sync"
	"sync/atomic"
	"time"
)

// Loop is the host event loop the engine schedules on: a single goroutine
// executing posted callbacks serially, plus one-shot timers. Because only
// one callback runs at any instant, engine state needs no further locking.
type Loop struct {
	work    chan func()
	stopped chan struct{}
	once    sync.Once
}

// NewLoop creates an event loop. Run must be called (typically in its own
// goroutine) before posted callbacks execute.
func NewLoop() *Loop {
	return &Loop{
		work:    make(chan func(), 64),
		stopped: make(chan struct{}),
	}
}

// Run executes callbacks until Stop is called. It blocks the calling
// goroutine; that goroutine becomes the engine's single execution thread.
func (l *Loop) Run() {
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.stopped:
			// drain what was already posted
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

// Stop terminates Run after draining already-posted callbacks.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopped) })
}

// Post schedules fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.stopped:
	}
}

// Timer is a cancellable one-shot scheduled callback.
type Timer struct {
	fired  atomic.Bool
	cancel atomic.Bool
	timer  *time.Timer
}

// Cancel prevents the callback from firing if it has not already.
func (t *Timer) Cancel() {
	t.cancel.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// After schedules fn on the loop goroutine once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancel.Load() || !t.fired.CompareAndSwap(false, true) {
				return
			}
			fn()
		})
	})
	return t
}

// At schedules fn on the loop goroutine at the absolute time when.
func (l *Loop) At(when time.Time, fn func()) *Timer {
	d := time.Until(when)
	if d < 0 {
		d = 0
	}
	return l.After(d, fn)
}
