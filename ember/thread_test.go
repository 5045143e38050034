package ember

import (
	"io"
	"testing"
	"time"
)

func startEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine(Config{Output: io.Discard})
	go engine.Run()
	t.Cleanup(engine.Shutdown)
	return engine
}

func waitValue(t *testing.T, ch <-chan Value) Value {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for script result")
		return Value{}
	}
}

func TestAsyncScriptCompletes(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	engine.Start(nil, `delay(0.01) "after"`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	v := waitValue(t, done)
	if v.String() != "after" {
		t.Fatalf("expected after, got %q", v.String())
	}
}

func TestThreadSuspendsDuringDelay(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	th := engine.Start(nil, `delay(0.1) 1`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	observed := make(chan ThreadState, 1)
	engine.Loop().Post(func() { observed <- th.State() })
	if st := <-observed; st != ThreadSuspended {
		t.Fatalf("expected suspended, got %v", st)
	}
	waitValue(t, done)
	engine.Loop().Post(func() { observed <- th.State() })
	if st := <-observed; st != ThreadCompleted {
		t.Fatalf("expected completed, got %v", st)
	}
}

func TestBusyContextRejectsStart(t *testing.T) {
	engine := startEngine(t)
	ctx := engine.NewContext()
	first := make(chan Value, 1)
	second := make(chan Value, 1)
	engine.Start(ctx, `delay(0.1) "first"`, StartOptions{
		Name:   "first",
		OnDone: func(v Value) { first <- v },
	})
	engine.Start(ctx, `"second"`, StartOptions{
		Name:   "second",
		OnDone: func(v Value) { second <- v },
	})
	v := waitValue(t, second)
	if !v.IsError() || v.Err().Code != ErrBusy {
		t.Fatalf("expected busy error, got %s", v.String())
	}
	if v := waitValue(t, first); v.String() != "first" {
		t.Fatalf("running thread must finish, got %q", v.String())
	}
}

func TestQueuedStartRunsAfter(t *testing.T) {
	engine := startEngine(t)
	ctx := engine.NewContext()
	order := make(chan string, 2)
	engine.Start(ctx, `delay(0.05) "A"`, StartOptions{
		OnDone: func(v Value) { order <- v.String() },
	})
	engine.Start(ctx, `"B"`, StartOptions{
		Flags:  StartQueue,
		OnDone: func(v Value) { order <- v.String() },
	})
	if got := <-order; got != "A" {
		t.Fatalf("expected A first, got %q", got)
	}
	if got := <-order; got != "B" {
		t.Fatalf("expected B second, got %q", got)
	}
}

func TestAbortRunningPolicy(t *testing.T) {
	engine := startEngine(t)
	ctx := engine.NewContext()
	first := make(chan Value, 1)
	second := make(chan Value, 1)
	engine.Start(ctx, `delay(5) "never"`, StartOptions{
		OnDone: func(v Value) { first <- v },
	})
	engine.Start(ctx, `"replacement"`, StartOptions{
		Flags:  StartAbortRunning,
		OnDone: func(v Value) { second <- v },
	})
	v := waitValue(t, first)
	if !v.IsError() || v.Err().Code != ErrAborted {
		t.Fatalf("expected aborted, got %s", v.String())
	}
	if v := waitValue(t, second); v.String() != "replacement" {
		t.Fatalf("expected replacement, got %q", v.String())
	}
}

func TestConcurrentBlockAndAwait(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	engine.Start(nil, `
		concurrent as h {
			delay(0.01)
			return 42
		}
		await(h)`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	v := waitValue(t, done)
	if v.Number() != 42 {
		t.Fatalf("expected 42, got %s", v.String())
	}
}

func TestConcurrentSharesContext(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	engine.Start(nil, `
		var flag = 0
		concurrent as h {
			flag = 1
		}
		await(h)
		flag`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	v := waitValue(t, done)
	if v.Number() != 1 {
		t.Fatalf("fork must share the main scope, got %s", v.String())
	}
}

func TestAbortFromScript(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	engine.Start(nil, `
		concurrent as h {
			delay(5)
			return "never"
		}
		abort(h)
		await(h)`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	v := waitValue(t, done)
	if !v.IsError() || v.Err().Code != ErrAborted {
		t.Fatalf("expected aborted result, got %s", v.String())
	}
}

func TestHostAbort(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	th := engine.Start(nil, `delay(5) "never"`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	engine.Loop().Post(func() { th.Abort() })
	v := waitValue(t, done)
	if !v.IsError() || v.Err().Code != ErrAborted {
		t.Fatalf("expected aborted, got %s", v.String())
	}
}

func TestKeepVarsAcrossRuns(t *testing.T) {
	engine := startEngine(t)
	ctx := engine.NewContext()
	done := make(chan Value, 1)
	engine.Start(ctx, `var x = 5`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	waitValue(t, done)
	engine.Start(ctx, `x = x + 1 x`, StartOptions{
		Flags:  StartKeepVars,
		OnDone: func(v Value) { done <- v },
	})
	if v := waitValue(t, done); v.Number() != 6 {
		t.Fatalf("expected 6, got %s", v.String())
	}
	// without the flag, locals are cleared before the run
	engine.Start(ctx, `x`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	v := waitValue(t, done)
	if !v.IsError() || v.Err().Code != ErrNotFound {
		t.Fatalf("expected not found after clear, got %s", v.String())
	}
}

func TestLongScriptYieldsToLoop(t *testing.T) {
	engine := NewEngine(Config{Output: io.Discard, MaxBlockTime: 2 * time.Millisecond})
	go engine.Run()
	t.Cleanup(engine.Shutdown)

	events := make(chan string, 2)
	engine.Start(nil, `
		var i = 0
		while (i < 300000) { i = i + 1 }
		"done"`, StartOptions{
		OnDone: func(Value) { events <- "script" },
	})
	engine.Loop().Post(func() { events <- "marker" })
	if got := <-events; got != "marker" {
		t.Fatalf("loop work must interleave with a long script, got %q first", got)
	}
	select {
	case <-events:
	case <-time.After(30 * time.Second):
		t.Fatalf("script never finished")
	}
}

func TestAwaitCompletedThread(t *testing.T) {
	engine := startEngine(t)
	done := make(chan Value, 1)
	engine.Start(nil, `
		concurrent as h { return 7 }
		delay(0.02)
		await(h)`, StartOptions{
		OnDone: func(v Value) { done <- v },
	})
	if v := waitValue(t, done); v.Number() != 7 {
		t.Fatalf("awaiting a finished thread should return its result, got %s", v.String())
	}
}
