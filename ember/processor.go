package ember

import (
	"time"
)

// stateFunc is one grammar rule of the interpreter: it inspects the top
// frame and the cursor, does a bounded amount of work, and advances the
// machine by mutating frame state, pushing or popping frames, or suspending.
type stateFunc func(p *processor)

type frameTag int

const (
	tagNone frameTag = iota
	tagBody // statement list (program or braced block)
	tagStmt // single statement controller
	tagLoop // while controller, target for break/continue
	tagTry  // try controller, target for raised errors
	tagExpr // expression at one precedence level
)

// frame is one entry of the processor's explicit stack. Fields are shared
// across states; each state documents which ones it uses.
type frame struct {
	state       stateFunc
	tag         frameTag
	skipping    bool // parse but do not evaluate
	allowAssign bool // '=' may mean assignment at this level
	precedence  int  // floor for operator climbing

	op    operator // pending binary operator
	opPos Position
	unary operator // pending unary operator

	result Value // in-flight result; child pops deliver here
	prev   Value // saved left operand / container / caught-error backup

	name    string // pending identifier (unresolved term) or declaration kind
	namePos Position
	key     string // object literal key, declaration kind
	pos     Position

	callee Value   // resolved callable for a pending call
	args   []Value // collected call arguments
	node   *Node   // structured literal under construction
	lv     *lvalue // assignment target, when one is known

	flag   bool  // state-specific: branch taken, body ran
	exit   bool  // loop controller: break requested
	caught Value // try controller: captured error
	braced bool  // body: terminated by '}' rather than end of text
}

// lvalue describes where an assignment stores: either a named context member
// or a slot inside a structured container.
// lvalue describes an assignment target. A non-nil err marks a target that
// can be read (as undefined) but not written, such as a member of an
// undefined base.
type lvalue struct {
	name    string
	node    *Node
	key     string
	index   int
	isIndex bool
	err     *ScriptError
}

// processor is the resumable interpreter: a stack of frames walked by
// stepLoop. It never uses the native call stack for script nesting, so it
// can stop between any two steps and be re-entered later.
type processor struct {
	cursor    cursor
	ctx       *ExecutionContext
	thread    *Thread
	stack     []*frame
	result    Value
	completed bool
	suspended bool
	single    bool // complete after one statement (function/concurrent body)
	steps     int

	caughtErr  Value // error visible to error() while a catch block runs
	onComplete func(Value)
}

func newProcessor(source string, start Position, ctx *ExecutionContext, thread *Thread, single bool) *processor {
	p := &processor{
		cursor:    newCursor(source),
		ctx:       ctx,
		thread:    thread,
		single:    single,
		result:    NewNull(),
		caughtErr: NewNull(),
	}
	if start.valid() {
		p.cursor.setPosition(start)
	}
	if single {
		p.push((*processor).sStatement, tagStmt)
	} else {
		body := p.push((*processor).sBody, tagBody)
		body.braced = false
	}
	return p
}

func (p *processor) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *processor) push(st stateFunc, tag frameTag) *frame {
	f := &frame{state: st, tag: tag, result: NewNull(), prev: NewNull(), caught: NewNull()}
	if t := p.top(); t != nil {
		f.skipping = t.skipping
	}
	p.stack = append(p.stack, f)
	return f
}

func (p *processor) pop(result Value) {
	p.stack = p.stack[:len(p.stack)-1]
	if t := p.top(); t != nil {
		t.result = result
	} else {
		p.result = result
	}
}

func (p *processor) complete(v Value) {
	if p.completed {
		return
	}
	p.completed = true
	p.suspended = false
	p.stack = nil
	p.result = v
	if cb := p.onComplete; cb != nil {
		p.onComplete = nil
		cb(v)
	}
}

// raise delivers an error: unless the error is fatal, the nearest active
// try frame captures it and every frame above switches to skip mode so the
// rest of the construct is scanned but not executed. Without a try (or for
// fatal codes) the processor terminates with the error as its result.
func (p *processor) raise(errv Value) {
	se := errv.Err()
	if se == nil {
		se = newScriptError(ErrInternal, "raise of non-error value")
		errv = NewErrorValue(se)
	}
	if !se.Pos.valid() {
		errv = NewErrorValue(se.WithPos(p.cursor.position()))
	}
	if !se.Code.Fatal() {
		for i := len(p.stack) - 1; i >= 0; i-- {
			f := p.stack[i]
			if f.tag == tagTry && !f.skipping && !f.caught.Defined() {
				f.caught = errv
				for j := i + 1; j < len(p.stack); j++ {
					p.stack[j].skipping = true
				}
				return
			}
		}
	}
	p.complete(errv)
}

// raiseSyntax reports malformed source. Scanning cannot continue past such a
// point, so these terminate the processor instead of going through try/catch;
// error values produced by evaluation stay catchable.
func (p *processor) raiseSyntax(format string, args ...any) {
	p.complete(NewErrorAt(p.cursor.position(), ErrSyntax, format, args...))
}

// stepLoop drives the machine until completion, an unrecoverable error, or a
// suspension. It may be re-entered any number of times.
func (p *processor) stepLoop() {
	for !p.suspended && !p.completed {
		if len(p.stack) == 0 {
			p.complete(p.result)
			return
		}
		p.steps++
		if p.steps&63 == 0 && p.thread != nil && p.checkBudget() {
			return
		}
		if p.thread != nil && p.thread.aborted() {
			p.raise(NewError(ErrAborted, "aborted"))
			return
		}
		p.top().state(p)
	}
}

// checkBudget enforces the two time limits: the total run time (fatal) and
// the synchronous slice (voluntary yield back to the event loop). Returns
// true when the driver loop must stop for this entry.
func (p *processor) checkBudget() bool {
	t := p.thread
	now := time.Now()
	if t.maxRunTime > 0 && now.Sub(t.started) > t.maxRunTime {
		p.raise(NewError(ErrTimeout, "script exceeded maximum run time of %v", t.maxRunTime))
		return p.completed
	}
	if !t.syncOnly && t.maxBlockTime > 0 && now.Sub(t.sliceStart) > t.maxBlockTime {
		p.suspended = true
		t.noteSuspended()
		t.loop.After(0, func() {
			t.sliceStart = time.Now()
			p.resumeStep()
		})
		return true
	}
	return false
}

// resumeStep re-enters the driver after a yield that carries no value.
func (p *processor) resumeStep() {
	if p.completed || !p.suspended {
		return
	}
	if p.thread != nil && p.thread.aborted() {
		return
	}
	p.suspended = false
	if p.thread != nil {
		p.thread.noteRunning()
	}
	p.stepLoop()
}

// suspendFor suspends the processor and hands a one-shot deliver function to
// start. Synchronous delivery (before start returns) is folded back into the
// current driver pass; late delivery re-enters the driver loop.
func (p *processor) suspendFor(start func(deliver func(Value))) {
	p.suspended = true
	if p.thread != nil {
		p.thread.noteSuspended()
	}
	delivered := false
	inStart := true
	var sync Value
	syncDone := false
	start(func(v Value) {
		if delivered {
			return
		}
		delivered = true
		if inStart {
			sync = v
			syncDone = true
			return
		}
		if p.completed {
			return
		}
		if p.thread != nil && p.thread.aborted() {
			return
		}
		p.suspended = false
		if p.thread != nil {
			p.thread.noteRunning()
		}
		if t := p.top(); t != nil {
			t.result = v
		}
		p.stepLoop()
	})
	inStart = false
	if syncDone {
		p.suspended = false
		if p.thread != nil {
			p.thread.noteRunning()
		}
		if t := p.top(); t != nil {
			t.result = sync
		}
	}
}

// expect consumes ch or raises a syntax error.
func (p *processor) expect(ch byte) bool {
	p.cursor.skipNonCode()
	if p.cursor.current() != ch {
		p.raiseSyntax("expected %q", string(ch))
		return false
	}
	p.cursor.advance(1)
	return true
}

// ---- statement states ----

// sBody runs a statement list: the whole program, or a braced block.
// frame: braced, result (last statement value).
func (p *processor) sBody() {
	f := p.top()
	p.cursor.skipNonCode()
	switch p.cursor.current() {
	case eot:
		if f.braced {
			p.raiseSyntax("missing \"}\"")
			return
		}
		p.pop(f.result)
	case '}':
		if !f.braced {
			p.raiseSyntax("unexpected \"}\"")
			return
		}
		p.cursor.advance(1)
		p.pop(f.result)
	case ';':
		p.cursor.advance(1)
	default:
		f.state = (*processor).sBodyStmtDone
		p.push((*processor).sStatement, tagStmt)
	}
}

func (p *processor) sBodyStmtDone() {
	f := p.top()
	if f.result.IsError() && !f.skipping {
		errv := f.result
		f.result = NewNull()
		f.state = (*processor).sBody
		p.raise(errv)
		return
	}
	f.state = (*processor).sBody
}

var statementKeywords = map[string]bool{
	"if": true, "else": true, "while": true, "break": true, "continue": true,
	"return": true, "try": true, "catch": true, "throw": true,
	"var": true, "let": true, "glob": true, "function": true,
	"concurrent": true, "as": true,
}

// sStatement recognizes keyword-led constructs and falls back to expression
// parsing. frame: the whole statement's controller.
func (p *processor) sStatement() {
	f := p.top()
	p.cursor.skipNonCode()
	f.pos = p.cursor.position()
	if p.cursor.current() == '{' {
		p.cursor.advance(1)
		f.state = (*processor).sBody
		f.tag = tagBody
		f.braced = true
		return
	}
	mark := p.cursor.position()
	kw, ok := p.cursor.parseIdentifier()
	if !ok || !statementKeywords[kw] {
		p.cursor.setPosition(mark)
		f.state = (*processor).sStmtExprDone
		p.pushExpression(0, true, false)
		return
	}
	switch kw {
	case "if":
		if !p.expect('(') {
			return
		}
		f.state = (*processor).sIfCond
		p.pushExpression(0, false, false)
	case "while":
		f.tag = tagLoop
		if !p.expect('(') {
			return
		}
		p.cursor.skipNonCode()
		f.pos = p.cursor.position() // condition start, for re-entry
		f.state = (*processor).sWhileCond
		p.pushExpression(0, false, false)
	case "break", "continue":
		p.unwindLoop(kw == "break")
	case "else":
		p.raiseSyntax("\"else\" without matching \"if\"")
	case "catch":
		p.raiseSyntax("\"catch\" without matching \"try\"")
	case "return":
		p.cursor.skipNonCode()
		switch p.cursor.current() {
		case eot, ';', '}':
			p.doReturn(NewNull(), f.skipping)
		default:
			f.state = (*processor).sReturnDone
			p.pushExpression(0, false, false)
		}
	case "throw":
		f.state = (*processor).sThrowDone
		p.pushExpression(0, false, false)
	case "try":
		f.tag = tagTry
		f.prev = p.caughtErr
		f.state = (*processor).sTryBodyDone
		p.push((*processor).sStatement, tagStmt)
	case "var", "let", "glob":
		p.startDeclaration(kw)
	case "function":
		p.parseFunctionDeclaration()
	case "concurrent":
		p.startConcurrent()
	case "as":
		p.raiseSyntax("\"as\" without matching \"concurrent\" or \"catch\"")
	}
}

func (p *processor) sStmtExprDone() {
	f := p.top()
	if f.result.IsError() && !f.skipping {
		errv := f.result
		f.result = NewNull()
		p.raise(errv)
		if p.completed {
			return
		}
		// a try frame below captured the error; this frame is now skipping
	}
	p.pop(f.result)
}

// sIfCond receives the condition value. frame: flag records whether any
// branch of the chain has already run.
func (p *processor) sIfCond() {
	f := p.top()
	cond := f.result
	if !p.expect(')') {
		return
	}
	if cond.IsError() && !f.skipping {
		f.state = (*processor).sIfBodyDone
		f.flag = true
		p.raise(cond)
		if p.completed {
			return
		}
		branch := p.push((*processor).sStatement, tagStmt) // scan the branch in skip mode
		branch.skipping = true
		return
	}
	met := !f.skipping && !f.flag && cond.Truthy()
	if met {
		f.flag = true
	}
	f.state = (*processor).sIfBodyDone
	branch := p.push((*processor).sStatement, tagStmt)
	branch.skipping = f.skipping || !met
}

func (p *processor) sIfBodyDone() {
	f := p.top()
	p.cursor.skipNonCode()
	if !p.cursor.checkKeyword("else") {
		p.pop(f.result)
		return
	}
	p.cursor.skipNonCode()
	if p.cursor.checkKeyword("if") {
		if !p.expect('(') {
			return
		}
		f.state = (*processor).sIfCond
		cond := p.pushExpression(0, false, false)
		cond.skipping = f.skipping || f.flag
		return
	}
	f.state = (*processor).sElseDone
	branch := p.push((*processor).sStatement, tagStmt)
	branch.skipping = f.skipping || f.flag
}

func (p *processor) sElseDone() {
	p.pop(p.top().result)
}

// sWhileCond receives the loop condition. frame: pos is the condition start,
// exit is set by break, flag records that the body ran for real.
func (p *processor) sWhileCond() {
	f := p.top()
	cond := f.result
	if !p.expect(')') {
		return
	}
	if cond.IsError() && !f.skipping {
		f.exit = true
		f.state = (*processor).sWhileBodyDone
		p.raise(cond)
		if p.completed {
			return
		}
		body := p.push((*processor).sStatement, tagStmt)
		body.skipping = true
		return
	}
	met := !f.skipping && !f.exit && cond.Truthy()
	f.flag = met
	f.state = (*processor).sWhileBodyDone
	body := p.push((*processor).sStatement, tagStmt)
	body.skipping = f.skipping || !met
}

func (p *processor) sWhileBodyDone() {
	f := p.top()
	if f.flag && !f.exit && !f.skipping {
		p.cursor.setPosition(f.pos)
		f.state = (*processor).sWhileCond
		p.pushExpression(0, false, false)
		return
	}
	p.pop(f.result)
}

// unwindLoop implements break and continue: find the nearest loop frame by
// tag, then put everything above it into skip mode so the remainder of the
// body is scanned to its end. break additionally marks the loop to exit.
func (p *processor) unwindLoop(isBreak bool) {
	f := p.top()
	if f.skipping {
		p.pop(NewNull())
		return
	}
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].tag == tagLoop {
			if isBreak {
				p.stack[i].exit = true
			}
			for j := i + 1; j < len(p.stack); j++ {
				p.stack[j].skipping = true
			}
			p.pop(NewNull())
			return
		}
	}
	if isBreak {
		p.raiseSyntax("\"break\" outside of loop")
	} else {
		p.raiseSyntax("\"continue\" outside of loop")
	}
}

func (p *processor) sReturnDone() {
	f := p.top()
	if f.result.IsError() && !f.skipping {
		p.raise(f.result)
		if p.completed {
			return
		}
		p.pop(NewNull())
		return
	}
	p.doReturn(f.result, f.skipping)
}

// doReturn completes the processor with the given value; within a function
// body this returns to the caller, at program level it ends the script.
func (p *processor) doReturn(v Value, skipping bool) {
	if skipping {
		p.pop(NewNull())
		return
	}
	p.complete(v)
}

func (p *processor) sThrowDone() {
	f := p.top()
	if f.skipping {
		p.pop(NewNull())
		return
	}
	v := f.result
	var errv Value
	if v.IsError() {
		errv = v
	} else {
		errv = NewErrorAt(f.pos, ErrUser, "%s", v.String())
	}
	p.raise(errv)
	if p.completed {
		return
	}
	p.pop(NewNull())
}

// sTryBodyDone runs after the protected statement. frame: caught holds a
// captured error, prev the previous caughtErr to restore.
func (p *processor) sTryBodyDone() {
	f := p.top()
	p.cursor.skipNonCode()
	if !p.cursor.checkKeyword("catch") {
		p.raiseSyntax("\"try\" without \"catch\"")
		return
	}
	hadError := f.caught.Defined()
	if hadError {
		p.caughtErr = f.caught
	} else {
		// nothing to catch: prev no longer needs to restore caughtErr, so
		// it carries the body result past the scanned-only catch statement
		f.prev = f.result
	}
	p.cursor.skipNonCode()
	if p.cursor.checkKeyword("as") {
		p.cursor.skipNonCode()
		name, ok := p.cursor.parseIdentifier()
		if !ok {
			p.raiseSyntax("expected identifier after \"as\"")
			return
		}
		if hadError && !f.skipping {
			// bound as text so reading it does not re-raise
			if err := p.ctx.SetMemberByName(name, NewText(f.caught.String()), SetCreate); err != nil {
				p.complete(NewErrorValue(err))
				return
			}
		}
	}
	f.state = (*processor).sCatchDone
	body := p.push((*processor).sStatement, tagStmt)
	body.skipping = f.skipping || !hadError
}

func (p *processor) sCatchDone() {
	f := p.top()
	if f.caught.Defined() {
		p.caughtErr = f.prev
		p.pop(f.result)
		return
	}
	p.pop(f.prev)
}

// startDeclaration handles var/let/glob. var creates or overwrites a local;
// let creates a local only when absent; glob creates a domain global only
// when absent, so state survives re-runs.
func (p *processor) startDeclaration(kind string) {
	f := p.top()
	p.cursor.skipNonCode()
	name, ok := p.cursor.parseIdentifier()
	if !ok {
		p.raiseSyntax("expected variable name after %q", kind)
		return
	}
	f.key = kind
	f.name = name
	p.cursor.skipNonCode()
	if p.cursor.current() == '=' && p.cursor.peek(1) != '=' {
		p.cursor.advance(1)
		f.state = (*processor).sDeclInitDone
		p.pushExpression(0, false, false)
		return
	}
	p.declare(kind, name, NewNull(), f.skipping)
	if p.completed {
		return
	}
	p.pop(NewNull())
}

func (p *processor) sDeclInitDone() {
	f := p.top()
	if f.result.IsError() && !f.skipping {
		p.raise(f.result)
		if p.completed {
			return
		}
		p.pop(NewNull())
		return
	}
	p.declare(f.key, f.name, f.result, f.skipping)
	if p.completed {
		return
	}
	p.pop(f.result)
}

// declare is the chokepoint for all declaration side effects.
func (p *processor) declare(kind, name string, v Value, skipping bool) {
	if skipping {
		return
	}
	var flags SetFlags
	switch kind {
	case "var":
		flags = SetCreate
	case "let":
		flags = SetCreate | SetOnlyCreate
	case "glob":
		flags = SetCreate | SetOnlyCreate | SetGlobal
	}
	if err := p.ctx.SetMemberByName(name, v.Assignable(), flags); err != nil {
		p.raise(NewErrorValue(err))
	}
}

// parseFunctionDeclaration scans "function name(a, b) { ... }" and stores an
// executable referencing the body source region; the body is not parsed now.
func (p *processor) parseFunctionDeclaration() {
	f := p.top()
	p.cursor.skipNonCode()
	name, ok := p.cursor.parseIdentifier()
	if !ok {
		p.raiseSyntax("expected function name")
		return
	}
	if !p.expect('(') {
		return
	}
	var params []string
	p.cursor.skipNonCode()
	if p.cursor.current() != ')' {
		for {
			p.cursor.skipNonCode()
			param, ok := p.cursor.parseIdentifier()
			if !ok {
				p.raiseSyntax("expected parameter name")
				return
			}
			params = append(params, param)
			p.cursor.skipNonCode()
			if p.cursor.current() != ',' {
				break
			}
			p.cursor.advance(1)
		}
	}
	if !p.expect(')') {
		return
	}
	p.cursor.skipNonCode()
	if p.cursor.current() != '{' {
		p.raiseSyntax("expected function body")
		return
	}
	start := p.cursor.position()
	if err := p.cursor.skipBlock(); err != nil {
		p.complete(NewErrorValue(err))
		return
	}
	if !f.skipping {
		exec := &Executable{
			name: name,
			code: &CodeRef{params: params, source: p.cursor.source, start: start},
		}
		if err := p.ctx.SetMemberByName(name, NewExecutableValue(exec), SetCreate); err != nil {
			p.complete(NewErrorValue(err))
			return
		}
	}
	p.pop(NewNull())
}

// startConcurrent handles "concurrent [as handle] { ... }": the block source
// is captured and forked onto a new thread on the same main context.
func (p *processor) startConcurrent() {
	f := p.top()
	varName := ""
	p.cursor.skipNonCode()
	if p.cursor.checkKeyword("as") {
		p.cursor.skipNonCode()
		name, ok := p.cursor.parseIdentifier()
		if !ok {
			p.raiseSyntax("expected identifier after \"as\"")
			return
		}
		varName = name
	}
	p.cursor.skipNonCode()
	if p.cursor.current() != '{' {
		p.raiseSyntax("expected block after \"concurrent\"")
		return
	}
	start := p.cursor.position()
	if err := p.cursor.skipBlock(); err != nil {
		p.complete(NewErrorValue(err))
		return
	}
	if f.skipping {
		p.pop(NewNull())
		return
	}
	if p.thread == nil || p.thread.syncOnly || p.thread.loop == nil {
		p.raise(NewErrorAt(start, ErrInvalid, "\"concurrent\" requires asynchronous execution"))
		if p.completed {
			return
		}
		p.pop(NewNull())
		return
	}
	fork := p.thread.forkConcurrent(start, p.ctx)
	handle := NewThreadValue(fork)
	if varName != "" {
		if err := p.ctx.SetMemberByName(varName, handle, SetCreate); err != nil {
			p.complete(NewErrorValue(err))
			return
		}
	}
	fork.start()
	p.pop(handle)
}
