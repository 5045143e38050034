package ember

import (
	"io"
	"os"
	"time"
)

// Config controls execution bounds and host plumbing.
type Config struct {
	// Output receives script log output. Defaults to os.Stdout.
	Output io.Writer
	// MaxRunTime bounds the total wall-clock time of one thread; exceeding it
	// terminates the thread with an uncatchable timeout error. <=0 disables.
	MaxRunTime time.Duration
	// MaxBlockTime bounds one synchronous slice before an asynchronously
	// started thread yields back to the event loop.
	MaxBlockTime time.Duration
}

// Engine hosts a scripting domain plus its event loop and is the entry point
// for embedding.
type Engine struct {
	config Config
	loop   *Loop
	domain *Domain
}

// NewEngine constructs an Engine with sane defaults and the standard
// function library registered. The event loop is created but not yet
// running; call Run (usually on its own goroutine) before starting scripts.
func NewEngine(cfg Config) *Engine {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.MaxRunTime == 0 {
		cfg.MaxRunTime = 10 * time.Second
	}
	if cfg.MaxBlockTime == 0 {
		cfg.MaxBlockTime = 50 * time.Millisecond
	}
	loop := NewLoop()
	return &Engine{
		config: cfg,
		loop:   loop,
		domain: NewDomain(loop, cfg.Output),
	}
}

// Domain returns the scripting domain for registering functions and globals.
func (e *Engine) Domain() *Domain { return e.domain }

// Loop returns the event loop, for hosts that post their own work.
func (e *Engine) Loop() *Loop { return e.loop }

// NewContext creates a main execution context bound to the engine's domain.
// A host typically keeps one context per scriptable object.
func (e *Engine) NewContext() *ExecutionContext {
	return NewContext(e.domain)
}

// Run processes the event loop until Shutdown. It blocks; hosts run it on a
// dedicated goroutine.
func (e *Engine) Run() {
	e.loop.Run()
}

// Shutdown stops the event loop. Suspended threads never resume afterwards.
func (e *Engine) Shutdown() {
	e.loop.Stop()
}

// Eval runs source synchronously on the calling goroutine and returns its
// result. Asynchronous functions (delay, await) and detached blocks are
// rejected inside; errors surface as *ScriptError. Must not be used on a
// context while loop-driven threads run on it.
func (e *Engine) Eval(ctx *ExecutionContext, source string) (Value, *ScriptError) {
	if ctx == nil {
		ctx = e.NewContext()
	}
	t := &Thread{
		name:       "eval",
		ctx:        ctx,
		source:     source,
		syncOnly:   true,
		flags:      StartKeepVars,
		maxRunTime: e.config.MaxRunTime,
	}
	if err := t.launch(); err != nil {
		return NewNull(), err
	}
	v := t.Result()
	if v.IsError() {
		return NewNull(), v.Err()
	}
	return v, nil
}

// Check scans source without executing it and reports the first syntax
// error, or nil when the source is well formed. Declarations, calls and
// assignments are parsed but produce no effects.
func (e *Engine) Check(source string) *ScriptError {
	p := newProcessor(source, Position{}, e.NewContext(), nil, false)
	for _, f := range p.stack {
		f.skipping = true
	}
	p.stepLoop()
	if p.result.IsError() {
		return p.result.Err()
	}
	return nil
}

// StartOptions configure an asynchronous script start.
type StartOptions struct {
	// Name labels the thread in diagnostics and busy errors.
	Name string
	// Flags select the policy when the context already runs a thread.
	Flags StartFlags
	// OnDone is called on the event loop goroutine with the final result,
	// for both normal completion and errors.
	OnDone func(Value)
}

// Start launches source as a script thread on the event loop and returns its
// handle immediately. Safe to call from any goroutine; policy errors (busy
// context) are delivered through OnDone and the thread result.
func (e *Engine) Start(ctx *ExecutionContext, source string, opts StartOptions) *Thread {
	if ctx == nil {
		ctx = e.NewContext()
	}
	name := opts.Name
	if name == "" {
		name = "script"
	}
	t := &Thread{
		name:         name,
		loop:         e.loop,
		ctx:          ctx,
		source:       source,
		flags:        opts.Flags,
		maxRunTime:   e.config.MaxRunTime,
		maxBlockTime: e.config.MaxBlockTime,
		onDone:       opts.OnDone,
	}
	e.loop.Post(func() {
		if err := t.launch(); err != nil {
			t.state = ThreadCompleted
			t.result = NewErrorValue(err)
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
	})
	return t
}
