package ember

// maxCallDepth bounds nested script function calls.
const maxCallDepth = 200

// Expression parsing uses precedence climbing over the frame stack: each
// frame holds a floor, and a binary operator with precedence above the floor
// pushes a child frame for its right-hand side. Terms grow through a postfix
// loop (member access, subscripting, calls) before operators are scanned.
//
// Skip mode threads through every frame: a skipped expression is parsed in
// full but every chokepoint with a side effect or a resolution (name lookup,
// assignment, invocation, literal building) degrades to a null result.

func (p *processor) pushExpression(floor int, allowAssign, forceSkip bool) *frame {
	f := p.push((*processor).sExprStart, tagExpr)
	f.precedence = floor
	f.allowAssign = allowAssign
	if forceSkip {
		f.skipping = true
	}
	return f
}

// sExprStart parses one term: literal, grouped expression, structured
// literal, identifier, or a unary operator followed by a tight operand.
func (p *processor) sExprStart() {
	f := p.top()
	p.cursor.skipNonCode()
	f.pos = p.cursor.position()
	ch := p.cursor.current()
	switch {
	case ch == '-' || ch == '!' || ch == '+':
		switch ch {
		case '-':
			f.op = opNegate
		case '!':
			f.op = opNot
		default:
			f.op = opNone // unary plus is a no-op
		}
		p.cursor.advance(1)
		f.state = (*processor).sExprUnaryDone
		p.pushExpression(6, false, false)
	case isDigit(ch):
		v := p.cursor.parseNumericLiteral()
		if v.IsError() {
			p.complete(v)
			return
		}
		p.finishTerm(f, v)
	case ch == '"' || ch == '\'':
		v := p.cursor.parseStringLiteral()
		if v.IsError() {
			p.complete(v)
			return
		}
		p.finishTerm(f, v)
	case ch == '(':
		p.cursor.advance(1)
		f.state = (*processor).sExprGroupDone
		p.pushExpression(0, false, false)
	case ch == '[':
		p.cursor.advance(1)
		f.node = NewArrayNode()
		p.cursor.skipNonCode()
		if p.cursor.current() == ']' {
			p.cursor.advance(1)
			p.finishStructured(f)
			return
		}
		f.state = (*processor).sArrayElemDone
		p.pushExpression(0, false, false)
	case ch == '{':
		p.cursor.advance(1)
		f.node = NewObjectNode()
		f.state = (*processor).sObjectKey
	case isAlpha(ch):
		ident, _ := p.cursor.parseIdentifier()
		switch ident {
		case "true":
			p.finishTerm(f, NewBool(true))
		case "false":
			p.finishTerm(f, NewBool(false))
		case "null", "undefined":
			p.finishTerm(f, NewNull())
		default:
			if statementKeywords[ident] {
				p.complete(NewErrorAt(f.pos, ErrSyntax, "unexpected keyword %q", ident))
				return
			}
			f.name = ident
			f.namePos = f.pos
			f.state = (*processor).sExprPostfix
		}
	case ch == eot:
		p.raiseSyntax("unexpected end of script")
	default:
		p.raiseSyntax("unexpected character %q", string(ch))
	}
}

func (p *processor) sExprUnaryDone() {
	f := p.top()
	if f.skipping {
		f.result = NewNull()
	} else if f.op != opNone {
		f.result = applyUnary(f.op, f.result, f.pos)
	}
	f.op = opNone
	f.state = (*processor).sExprOperator
}

func (p *processor) finishTerm(f *frame, v Value) {
	f.result = v
	f.name = ""
	f.state = (*processor).sExprPostfix
}

func (p *processor) finishStructured(f *frame) {
	node := f.node
	f.node = nil
	if f.skipping {
		p.finishTerm(f, NewNull())
		return
	}
	p.finishTerm(f, NewStructured(node))
}

// sExprPostfix extends the current term: .member, [subscript] chains, and
// (call) argument lists. One extension per step. When no extension applies,
// an assignment lookahead runs before the term settles into operator scanning.
func (p *processor) sExprPostfix() {
	f := p.top()
	p.cursor.skipNonCode()
	switch p.cursor.current() {
	case '.':
		if !isAlpha(p.cursor.peek(1)) {
			break
		}
		p.resolveTerm(f)
		p.cursor.advance(1)
		memberPos := p.cursor.position()
		name, ok := p.cursor.parseIdentifier()
		if !ok {
			p.raiseSyntax("expected member name after \".\"")
			return
		}
		f.result, f.lv = p.memberValue(f, f.result, name, memberPos)
		return
	case '[':
		p.resolveTerm(f)
		p.cursor.advance(1)
		f.prev = f.result
		f.state = (*processor).sSubscriptDone
		p.pushExpression(0, false, false)
		return
	case '(':
		f.opPos = p.cursor.position()
		f.callee = p.resolveCallee(f)
		p.cursor.advance(1)
		f.args = nil
		p.cursor.skipNonCode()
		if p.cursor.current() == ')' {
			p.cursor.advance(1)
			p.invoke(f)
			return
		}
		f.state = (*processor).sCallArgDone
		p.pushExpression(0, false, false)
		return
	}
	if f.allowAssign && f.precedence == 0 && (f.name != "" || f.lv != nil) {
		mark := p.cursor.position()
		if p.cursor.parseOperator() == opAssignOrEq {
			if f.name != "" {
				f.lv = &lvalue{name: f.name}
				f.name = ""
			}
			f.state = (*processor).sAssignDone
			p.pushExpression(0, false, false)
			return
		}
		p.cursor.setPosition(mark)
	}
	p.resolveTerm(f)
	f.state = (*processor).sExprOperator
}

// resolveTerm turns a pending identifier into a value. Unknown names become
// error values that propagate per the usual rules.
func (p *processor) resolveTerm(f *frame) {
	if f.name == "" {
		return
	}
	name, pos := f.name, f.namePos
	f.name = ""
	if f.skipping {
		f.result = NewNull()
		return
	}
	if v, ok := p.ctx.MemberByName(name, MaskAny); ok {
		f.result = v
		return
	}
	f.result = NewErrorAt(pos, ErrNotFound, "unknown identifier %q", name)
}

// resolveCallee resolves a pending identifier against executables only, so a
// numeric variable does not shadow a builtin of the same name.
func (p *processor) resolveCallee(f *frame) Value {
	if f.name == "" {
		return f.result
	}
	name, pos := f.name, f.namePos
	f.name = ""
	if f.skipping {
		return NewNull()
	}
	if v, ok := p.ctx.MemberByName(name, TypeExecutable); ok {
		return v
	}
	return NewErrorAt(pos, ErrNotFound, "unknown function %q", name)
}

func (p *processor) memberValue(f *frame, base Value, name string, pos Position) (Value, *lvalue) {
	if f.skipping {
		return NewNull(), nil
	}
	switch {
	case base.IsError():
		return base, nil
	case base.IsNull():
		lv := &lvalue{err: newScriptError(ErrInvalid, "cannot set member %q of undefined value", name).WithPos(pos)}
		return NewAnnotatedNull("member access on undefined value"), lv
	case base.Matches(TypeStructured):
		node := base.Node()
		if node.Kind() != NodeObject && node.Kind() != NodeNull {
			return NewErrorAt(pos, ErrInvalid, "value has no named members"), nil
		}
		lv := &lvalue{node: node, key: name}
		child := node.Member(name)
		if child == nil {
			return NewAnnotatedNull("no member \"" + name + "\""), lv
		}
		return child.Value(), lv
	default:
		return NewErrorAt(pos, ErrInvalid, "cannot access member of %s value", base.TypeName()), nil
	}
}

// sSubscriptDone receives one subscript expression. A comma applies the key
// and continues with the next one, so a[i, j] reads like a[i][j].
func (p *processor) sSubscriptDone() {
	f := p.top()
	idx := f.result
	p.cursor.skipNonCode()
	switch p.cursor.current() {
	case ',':
		p.cursor.advance(1)
		inter, _ := p.subscriptValue(f, f.prev, idx)
		f.prev = inter
		p.pushExpression(0, false, false)
	case ']':
		p.cursor.advance(1)
		f.result, f.lv = p.subscriptValue(f, f.prev, idx)
		f.prev = Value{}
		f.state = (*processor).sExprPostfix
	default:
		p.raiseSyntax("expected \"]\"")
	}
}

func (p *processor) subscriptValue(f *frame, base, idx Value) (Value, *lvalue) {
	if f.skipping {
		return NewNull(), nil
	}
	switch {
	case base.IsError():
		return base, nil
	case idx.IsError():
		return idx, nil
	case base.IsNull():
		lv := &lvalue{err: newScriptError(ErrInvalid, "cannot subscript undefined value for writing").WithPos(f.pos)}
		return NewAnnotatedNull("subscript on undefined value"), lv
	case !base.Matches(TypeStructured):
		return NewErrorAt(f.pos, ErrInvalid, "cannot subscript %s value", base.TypeName()), nil
	}
	node := base.Node()
	switch {
	case idx.Matches(TypeText):
		key := idx.String()
		if node.Kind() != NodeObject && node.Kind() != NodeNull {
			return NewErrorAt(f.pos, ErrInvalid, "text subscript on non-object"), nil
		}
		lv := &lvalue{node: node, key: key}
		child := node.Member(key)
		if child == nil {
			return NewAnnotatedNull("no member \"" + key + "\""), lv
		}
		return child.Value(), lv
	case idx.Matches(TypeNumeric):
		i := int(idx.Int())
		if node.Kind() != NodeArray && node.Kind() != NodeNull {
			return NewErrorAt(f.pos, ErrInvalid, "numeric subscript on non-array"), nil
		}
		lv := &lvalue{node: node, index: i, isIndex: true}
		child := node.Index(i)
		if child == nil {
			return NewAnnotatedNull("index out of range"), lv
		}
		return child.Value(), lv
	default:
		return NewErrorAt(f.pos, ErrInvalid, "subscript must be numeric or text"), nil
	}
}

func (p *processor) sCallArgDone() {
	f := p.top()
	f.args = append(f.args, f.result)
	p.cursor.skipNonCode()
	switch p.cursor.current() {
	case ',':
		p.cursor.advance(1)
		p.pushExpression(0, false, false)
	case ')':
		p.cursor.advance(1)
		p.invoke(f)
	default:
		p.raiseSyntax("expected \",\" or \")\" in argument list")
	}
}

// invoke is the chokepoint for every call. Builtins dispatch through their
// descriptor; script functions run on a nested processor over the same
// source buffer, suspending this one until the body completes.
func (p *processor) invoke(f *frame) {
	callee := f.callee
	args := f.args
	callPos := f.opPos
	f.callee = Value{}
	f.args = nil
	f.lv = nil // a call result is not an assignment target
	f.state = (*processor).sExprPostfix
	if f.skipping {
		f.result = NewNull()
		return
	}
	if callee.IsError() {
		f.result = callee
		return
	}
	exec := callee.Executable()
	if exec == nil {
		f.result = NewErrorAt(callPos, ErrInvalid, "%s value is not callable", callee.TypeName())
		return
	}
	if def := exec.builtin; def != nil {
		errv, degenerate := checkArgs(def, args, callPos)
		if degenerate {
			f.result = NewAnnotatedNull("argument mismatch in " + def.Name)
			return
		}
		if errv.IsError() {
			f.result = errv
			return
		}
		call := &BuiltinCall{
			Name: def.Name, Args: args, Pos: callPos,
			proc: p, thread: p.thread, ctx: p.ctx, domain: p.ctx.Domain(),
		}
		if def.AsyncFn != nil {
			if p.thread == nil || p.thread.syncOnly {
				f.result = NewErrorAt(callPos, ErrInvalid, "%s requires asynchronous execution", def.Name)
				return
			}
			p.suspendFor(func(deliver func(Value)) {
				def.AsyncFn(call, deliver)
			})
			return
		}
		f.result = def.Fn(call)
		return
	}
	code := exec.code
	t := p.thread
	if t != nil {
		if t.callDepth >= maxCallDepth {
			f.result = NewErrorAt(callPos, ErrInvalid, "call nesting exceeds %d levels", maxCallDepth)
			return
		}
		t.callDepth++
	}
	child := p.ctx.newCallContext()
	for i, param := range code.params {
		v := NewNull()
		if i < len(args) {
			v = args[i].Assignable()
		}
		child.vars[param] = v
	}
	for _, a := range args {
		child.appendIndexedMember(a)
	}
	sub := newProcessor(code.source, code.start, child, p.thread, true)
	p.suspendFor(func(deliver func(Value)) {
		sub.onComplete = func(v Value) {
			if t != nil {
				t.callDepth--
			}
			deliver(v)
		}
		sub.stepLoop()
	})
}

// sExprOperator scans for a binary operator above this frame's floor.
func (p *processor) sExprOperator() {
	f := p.top()
	p.cursor.skipNonCode()
	mark := p.cursor.position()
	op := p.cursor.parseOperator()
	if op == opAssignOrEq {
		op = opEqual // a bare '=' below statement level compares
	}
	if op == opNone || op == opNot || op.precedence() <= f.precedence {
		p.cursor.setPosition(mark)
		p.pop(f.result)
		return
	}
	f.op = op
	f.opPos = mark
	f.prev = f.result
	if op == opAnd || op == opOr {
		f.state = (*processor).sExprLogicalDone
		p.pushExpression(op.precedence(), false, logicalSkipsRHS(f))
		return
	}
	f.state = (*processor).sExprBinaryDone
	p.pushExpression(op.precedence(), false, false)
}

// logicalSkipsRHS decides short-circuiting: the right side of && / || is
// parsed either way, but evaluated only when the left side does not already
// determine the outcome.
func logicalSkipsRHS(f *frame) bool {
	if f.skipping || f.prev.IsError() {
		return true
	}
	if f.op == opAnd {
		return !f.prev.Truthy()
	}
	return f.prev.Truthy()
}

func (p *processor) sExprBinaryDone() {
	f := p.top()
	if f.skipping {
		f.result = NewNull()
	} else {
		f.result = applyBinary(f.op, f.prev, f.result, f.opPos)
	}
	f.prev = Value{}
	f.state = (*processor).sExprOperator
}

func (p *processor) sExprLogicalDone() {
	f := p.top()
	rhs := f.result
	switch {
	case f.skipping:
		f.result = NewNull()
	case f.prev.IsError():
		f.result = f.prev
	case logicalSkipsRHS(f):
		f.result = NewBool(f.prev.Truthy())
	case rhs.IsError():
		f.result = rhs
	default:
		f.result = NewBool(rhs.Truthy())
	}
	f.prev = Value{}
	f.state = (*processor).sExprOperator
}

func (p *processor) sExprGroupDone() {
	f := p.top()
	if !p.expect(')') {
		return
	}
	f.state = (*processor).sExprPostfix
}

// sAssignDone is the chokepoint for every assignment. Structured right-hand
// sides are deep copied so variables never share trees; an error on the
// right side raises instead of being stored.
func (p *processor) sAssignDone() {
	f := p.top()
	rhs := f.result
	lv := f.lv
	f.lv = nil
	if f.skipping {
		p.pop(NewNull())
		return
	}
	if rhs.IsError() {
		p.raise(rhs)
		if p.completed {
			return
		}
		p.pop(NewNull())
		return
	}
	if err := p.storeLValue(lv, rhs); err != nil {
		p.raise(NewErrorValue(err))
		if p.completed {
			return
		}
		p.pop(NewNull())
		return
	}
	p.pop(rhs)
}

func (p *processor) storeLValue(lv *lvalue, rhs Value) *ScriptError {
	if lv.err != nil {
		return lv.err
	}
	v := rhs.Assignable()
	if lv.name != "" {
		return p.ctx.SetMemberByName(lv.name, v, 0)
	}
	child := NodeFromValue(v)
	if lv.isIndex {
		if !lv.node.SetIndex(lv.index, child) {
			return newScriptError(ErrInvalid, "index %d out of range", lv.index)
		}
		return nil
	}
	if !lv.node.SetMember(lv.key, child) {
		return newScriptError(ErrInvalid, "cannot set member %q", lv.key)
	}
	return nil
}

func (p *processor) sArrayElemDone() {
	f := p.top()
	if !f.skipping {
		if f.result.IsError() {
			elem := f.result
			f.result = NewNull()
			p.raise(elem)
			return
		}
		f.node.Append(NodeFromValue(f.result))
	}
	p.cursor.skipNonCode()
	switch p.cursor.current() {
	case ',':
		p.cursor.advance(1)
		p.pushExpression(0, false, false)
	case ']':
		p.cursor.advance(1)
		p.finishStructured(f)
	default:
		p.raiseSyntax("expected \",\" or \"]\" in array literal")
	}
}

// sObjectKey parses one "key: value" pair head inside an object literal.
func (p *processor) sObjectKey() {
	f := p.top()
	p.cursor.skipNonCode()
	ch := p.cursor.current()
	if ch == '}' {
		p.cursor.advance(1)
		p.finishStructured(f)
		return
	}
	var key string
	switch {
	case ch == '"' || ch == '\'':
		v := p.cursor.parseStringLiteral()
		if v.IsError() {
			p.complete(v)
			return
		}
		key = v.String()
	case isAlpha(ch):
		key, _ = p.cursor.parseIdentifier()
	default:
		p.raiseSyntax("expected member name in object literal")
		return
	}
	f.key = key
	if !p.expect(':') {
		return
	}
	f.state = (*processor).sObjectValDone
	p.pushExpression(0, false, false)
}

func (p *processor) sObjectValDone() {
	f := p.top()
	if !f.skipping {
		if f.result.IsError() {
			val := f.result
			f.result = NewNull()
			p.raise(val)
			return
		}
		f.node.SetMember(f.key, NodeFromValue(f.result))
	}
	p.cursor.skipNonCode()
	switch p.cursor.current() {
	case ',':
		p.cursor.advance(1)
		f.state = (*processor).sObjectKey
	case '}':
		p.cursor.advance(1)
		p.finishStructured(f)
	default:
		p.raiseSyntax("expected \",\" or \"}\" in object literal")
	}
}
