package ember

import (
	"time"
)

// ThreadState describes where a script thread is in its life cycle.
type ThreadState int

const (
	// ThreadPending means the thread waits in a context's start queue.
	ThreadPending ThreadState = iota
	// ThreadRunning means the thread currently executes script steps.
	ThreadRunning
	// ThreadSuspended means the thread waits for an asynchronous completion.
	ThreadSuspended
	// ThreadCompleted means the thread finished and carries a result.
	ThreadCompleted
	// ThreadAborted means the thread was cancelled.
	ThreadAborted
)

func (s ThreadState) String() string {
	switch s {
	case ThreadPending:
		return "pending"
	case ThreadRunning:
		return "running"
	case ThreadSuspended:
		return "suspended"
	case ThreadCompleted:
		return "completed"
	case ThreadAborted:
		return "aborted"
	}
	return "unknown"
}

// StartFlags control how a new thread enters a context that may already be
// running one. Without any flag, a busy context rejects the start.
type StartFlags uint8

const (
	// StartConcurrently runs the thread alongside whatever is running.
	StartConcurrently StartFlags = 1 << iota
	// StartQueue defers the start until the running thread finishes; queued
	// threads start in arrival order.
	StartQueue
	// StartAbortRunning cancels the running threads first.
	StartAbortRunning
	// StartKeepVars keeps the context's variables from the previous run
	// instead of clearing them.
	StartKeepVars
)

// Thread is one cooperative script execution. All of its methods must be
// called on the event loop goroutine; hosts reach it via Loop.Post or the
// engine's callbacks, which already run there.
type Thread struct {
	name   string
	loop   *Loop
	ctx    *ExecutionContext
	source string
	origin Position
	single bool
	flags  StartFlags

	syncOnly     bool
	maxRunTime   time.Duration
	maxBlockTime time.Duration
	started      time.Time
	sliceStart   time.Time

	state     ThreadState
	result    Value
	proc      *processor
	abortFlag bool
	callDepth int

	cleanups []func()
	waiters  []func(Value)
	onDone   func(Value)
}

// State reports the thread's current life cycle state.
func (t *Thread) State() ThreadState { return t.state }

// Result returns the completion value; null until the thread finishes.
func (t *Thread) Result() Value {
	if t.state != ThreadCompleted && t.state != ThreadAborted {
		return NewNull()
	}
	return t.result
}

// Name returns the label given at start time, for diagnostics.
func (t *Thread) Name() string { return t.name }

// Context returns the execution context the thread runs on.
func (t *Thread) Context() *ExecutionContext { return t.ctx }

func (t *Thread) mainCtx() *ExecutionContext { return t.ctx.mainContext() }

func (t *Thread) aborted() bool { return t.abortFlag }

func (t *Thread) noteSuspended() {
	if t.state == ThreadRunning {
		t.state = ThreadSuspended
	}
}

func (t *Thread) noteRunning() {
	if t.state == ThreadSuspended {
		t.state = ThreadRunning
	}
}

// registerCleanup records a cancellation hook, typically a timer cancel, to
// run when the thread finishes for any reason.
func (t *Thread) registerCleanup(fn func()) {
	t.cleanups = append(t.cleanups, fn)
}

// Await calls cb with the thread's result once it finishes; immediately when
// it already has.
func (t *Thread) Await(cb func(Value)) {
	if t.state == ThreadCompleted || t.state == ThreadAborted {
		cb(t.result)
		return
	}
	t.waiters = append(t.waiters, cb)
}

// launch applies the start policy against the main context's running set and
// either begins execution, queues the thread, or rejects the start.
func (t *Thread) launch() *ScriptError {
	main := t.mainCtx()
	if len(main.running) > 0 && t.flags&StartConcurrently == 0 {
		switch {
		case t.flags&StartAbortRunning != 0:
			for _, r := range append([]*Thread(nil), main.running...) {
				r.Abort()
			}
		case t.flags&StartQueue != 0:
			t.state = ThreadPending
			main.queued = append(main.queued, t)
			return nil
		default:
			return newScriptError(ErrBusy, "context is busy running %q", main.running[0].name)
		}
	}
	t.begin()
	return nil
}

// begin starts interpretation. Queued threads reach this once the context
// frees up; concurrent forks immediately.
func (t *Thread) begin() {
	main := t.mainCtx()
	main.running = append(main.running, t)
	if t.flags&(StartKeepVars|StartConcurrently) == 0 {
		t.ctx.ClearVars()
	}
	t.state = ThreadRunning
	t.started = time.Now()
	t.sliceStart = t.started
	t.proc = newProcessor(t.source, t.origin, t.ctx, t, t.single)
	t.proc.onComplete = t.finish
	t.proc.stepLoop()
}

// start launches a forked thread; policy checks do not apply because forks
// always run concurrently.
func (t *Thread) start() {
	t.begin()
}

func (t *Thread) finish(v Value) {
	for _, fn := range t.cleanups {
		fn()
	}
	t.cleanups = nil
	if t.abortFlag {
		t.state = ThreadAborted
	} else {
		t.state = ThreadCompleted
	}
	t.result = v

	main := t.mainCtx()
	for i, r := range main.running {
		if r == t {
			main.running = append(main.running[:i], main.running[i+1:]...)
			break
		}
	}

	waiters := t.waiters
	t.waiters = nil
	for _, w := range waiters {
		w(v)
	}
	if cb := t.onDone; cb != nil {
		t.onDone = nil
		cb(v)
	}

	if len(main.running) == 0 && len(main.queued) > 0 {
		next := main.queued[0]
		main.queued = main.queued[1:]
		next.begin()
	}
}

// Abort cancels the thread. A queued thread is removed from its queue; a
// suspended thread is completed right away with an aborted error; a running
// thread sees the flag at its next step and terminates there.
func (t *Thread) Abort() {
	switch t.state {
	case ThreadPending:
		t.abortFlag = true
		main := t.mainCtx()
		for i, q := range main.queued {
			if q == t {
				main.queued = append(main.queued[:i], main.queued[i+1:]...)
				break
			}
		}
		t.finishAborted()
	case ThreadRunning:
		t.abortFlag = true
	case ThreadSuspended:
		t.abortFlag = true
		if t.proc != nil {
			t.proc.complete(NewError(ErrAborted, "thread %q aborted", t.name))
			return
		}
		t.finishAborted()
	}
}

// finishAborted completes a thread that has no live processor to complete
// through.
func (t *Thread) finishAborted() {
	for _, fn := range t.cleanups {
		fn()
	}
	t.cleanups = nil
	t.state = ThreadAborted
	t.result = NewError(ErrAborted, "thread %q aborted", t.name)
	waiters := t.waiters
	t.waiters = nil
	for _, w := range waiters {
		w(t.result)
	}
	if cb := t.onDone; cb != nil {
		t.onDone = nil
		cb(t.result)
	}
}

// forkConcurrent creates the thread behind a detached block: the caller's
// context (so enclosing locals stay visible), same source buffer, its own
// clock, always concurrent.
func (t *Thread) forkConcurrent(origin Position, ctx *ExecutionContext) *Thread {
	return &Thread{
		name:         t.name + "/fork",
		loop:         t.loop,
		ctx:          ctx,
		source:       t.source,
		origin:       origin,
		single:       true,
		flags:        StartConcurrently,
		maxRunTime:   t.maxRunTime,
		maxBlockTime: t.maxBlockTime,
	}
}
