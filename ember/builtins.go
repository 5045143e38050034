package ember

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Executable is the payload of an executable value: either a native function
// descriptor or a script-defined function body.
type Executable struct {
	name    string
	builtin *BuiltinDef
	code    *CodeRef
}

// Name returns the callable's name for diagnostics.
func (e *Executable) Name() string { return e.name }

// CodeRef references the source region of a script-defined function body.
// The engine interprets source text directly, so a "compiled" function is a
// cursor position plus parameter names.
type CodeRef struct {
	params []string
	source string   // full source buffer the body lives in
	start  Position // position of the opening brace of the body
}

// ArgDesc declares one argument of a native function for declarative
// checking before invocation.
type ArgDesc struct {
	Type TypeFlags
	// Optional marks the argument as omittable.
	Optional bool
	// Multiple accepts any number of trailing arguments of this type.
	Multiple bool
	// Exact requires the content kind to match without conversion.
	Exact bool
	// NullOnMismatch makes a type mismatch yield a null result instead of an
	// error, without invoking the implementation.
	NullOnMismatch bool
}

// BuiltinCall carries everything a native implementation may need.
type BuiltinCall struct {
	Name   string
	Args   []Value
	Pos    Position
	proc   *processor
	thread *Thread
	ctx    *ExecutionContext
	domain *Domain
}

// Context returns the execution context of the calling script.
func (c *BuiltinCall) Context() *ExecutionContext { return c.ctx }

// Thread returns the calling script thread; nil in synchronous evaluation.
func (c *BuiltinCall) Thread() *Thread { return c.thread }

// Domain returns the scripting domain.
func (c *BuiltinCall) Domain() *Domain { return c.domain }

// BuiltinFunc is a synchronous native implementation.
type BuiltinFunc func(call *BuiltinCall) Value

// AsyncBuiltinFunc is a suspending native implementation: it must arrange for
// deliver to be called exactly once, possibly before returning (synchronous
// completion) or later from the event loop.
type AsyncBuiltinFunc func(call *BuiltinCall, deliver func(Value))

// BuiltinDef describes a native function: name, return mask and argument
// descriptors, plus exactly one of Fn or AsyncFn.
type BuiltinDef struct {
	Name    string
	Returns TypeFlags
	Args    []ArgDesc
	Fn      BuiltinFunc
	AsyncFn AsyncBuiltinFunc
}

// checkArgs validates supplied arguments against the descriptor list. It
// returns a non-nil error value on rejection, or degenerate=true when the
// NullOnMismatch policy converts the call into a null result.
func checkArgs(def *BuiltinDef, args []Value, pos Position) (errv Value, degenerate bool) {
	di := 0
	for ai := 0; ai < len(args); ai++ {
		if di >= len(def.Args) {
			return NewErrorAt(pos, ErrSyntax, "%s: too many arguments (max %d)", def.Name, len(def.Args)), false
		}
		desc := def.Args[di]
		arg := args[ai]
		ok, converted := matchArg(desc, arg)
		if !ok {
			if desc.NullOnMismatch {
				return Value{}, true
			}
			if arg.IsError() {
				return arg, false
			}
			return NewErrorAt(pos, ErrSyntax, "%s: argument %d must be %s, got %s",
				def.Name, ai+1, maskName(desc.Type), arg.TypeName()), false
		}
		args[ai] = converted
		if !desc.Multiple {
			di++
		}
	}
	for ; di < len(def.Args); di++ {
		if !def.Args[di].Optional && !def.Args[di].Multiple {
			return NewErrorAt(pos, ErrSyntax, "%s: missing argument %d", def.Name, di+1), false
		}
	}
	return Value{}, false
}

func matchArg(desc ArgDesc, arg Value) (bool, Value) {
	if arg.Matches(desc.Type) {
		return true, arg
	}
	if desc.Exact {
		return false, arg
	}
	// lenient scalar conversion
	if desc.Type&TypeNumeric != 0 && arg.flags&TypeText != 0 {
		return true, NewNumber(arg.Number())
	}
	if desc.Type&TypeText != 0 && arg.flags&TypeNumeric != 0 {
		return true, NewText(arg.String())
	}
	return false, arg
}

func maskName(mask TypeFlags) string {
	probe := Value{flags: mask}
	return probe.TypeName()
}

// registerStandardFunctions installs the standard library into a domain.
func registerStandardFunctions(d *Domain) {
	for _, def := range standardFunctions(d) {
		d.RegisterFunction(def)
	}
}

func standardFunctions(d *Domain) []*BuiltinDef {
	return []*BuiltinDef{
		{
			Name:    "log",
			Returns: TypeNull,
			Args:    []ArgDesc{{Type: MaskAny, Optional: true, Multiple: true}},
			Fn: func(call *BuiltinCall) Value {
				if d.output != nil {
					parts := make([]string, len(call.Args))
					for i, a := range call.Args {
						parts[i] = a.String()
					}
					fmt.Fprintln(d.output, strings.Join(parts, " "))
				}
				return NewNull()
			},
		},
		{
			Name:    "format",
			Returns: TypeText,
			Args: []ArgDesc{
				{Type: TypeText},
				{Type: MaskAny, Optional: true, Multiple: true},
			},
			Fn: func(call *BuiltinCall) Value {
				return NewText(formatValues(call.Args[0].String(), call.Args[1:]))
			},
		},
		{
			Name:    "string",
			Returns: TypeText,
			Args:    []ArgDesc{{Type: MaskAny}},
			Fn: func(call *BuiltinCall) Value {
				return NewText(call.Args[0].String())
			},
		},
		{
			Name:    "number",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: MaskScalar, NullOnMismatch: true}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(call.Args[0].Number())
			},
		},
		{
			Name:    "isvalid",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: MaskAny}},
			Fn: func(call *BuiltinCall) Value {
				return NewBool(call.Args[0].IsValue())
			},
		},
		{
			Name:    "ifvalid",
			Returns: MaskAny,
			Args:    []ArgDesc{{Type: MaskAny}, {Type: MaskAny}},
			Fn: func(call *BuiltinCall) Value {
				if call.Args[0].IsValue() {
					return call.Args[0]
				}
				return call.Args[1]
			},
		},
		{
			Name:    "abs",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(math.Abs(call.Args[0].Number()))
			},
		},
		{
			Name:    "int",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(math.Trunc(call.Args[0].Number()))
			},
		},
		{
			Name:    "frac",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric}},
			Fn: func(call *BuiltinCall) Value {
				f := call.Args[0].Number()
				return NewNumber(f - math.Trunc(f))
			},
		},
		{
			Name:    "round",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric}, {Type: TypeNumeric, Optional: true}},
			Fn: func(call *BuiltinCall) Value {
				f := call.Args[0].Number()
				if len(call.Args) > 1 {
					unit := call.Args[1].Number()
					if unit == 0 {
						return NewErrorAt(call.Pos, ErrDivisionByZero, "round: zero unit")
					}
					return NewNumber(math.Round(f/unit) * unit)
				}
				return NewNumber(math.Round(f))
			},
		},
		{
			Name:    "min",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric}, {Type: TypeNumeric}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(math.Min(call.Args[0].Number(), call.Args[1].Number()))
			},
		},
		{
			Name:    "max",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric}, {Type: TypeNumeric}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(math.Max(call.Args[0].Number(), call.Args[1].Number()))
			},
		},
		{
			Name:    "random",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeNumeric, Optional: true}, {Type: TypeNumeric, Optional: true}},
			Fn: func(call *BuiltinCall) Value {
				lo, hi := 0.0, 1.0
				if len(call.Args) > 0 {
					hi = call.Args[0].Number()
				}
				if len(call.Args) > 1 {
					lo = call.Args[0].Number()
					hi = call.Args[1].Number()
				}
				return NewNumber(lo + rand.Float64()*(hi-lo))
			},
		},
		{
			Name:    "strlen",
			Returns: TypeNumeric,
			Args:    []ArgDesc{{Type: TypeText}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(float64(len(call.Args[0].String())))
			},
		},
		{
			Name:    "substr",
			Returns: TypeText,
			Args: []ArgDesc{
				{Type: TypeText},
				{Type: TypeNumeric},
				{Type: TypeNumeric, Optional: true},
			},
			Fn: func(call *BuiltinCall) Value {
				s := call.Args[0].String()
				from := int(call.Args[1].Number())
				if from < 0 {
					from = 0
				}
				if from > len(s) {
					from = len(s)
				}
				to := len(s)
				if len(call.Args) > 2 {
					count := int(call.Args[2].Number())
					if from+count < to {
						to = from + count
					}
				}
				return NewText(s[from:to])
			},
		},
		{
			Name:    "find",
			Returns: TypeNumeric | TypeNull,
			Args: []ArgDesc{
				{Type: TypeText},
				{Type: TypeText},
				{Type: TypeNumeric, Optional: true},
			},
			Fn: func(call *BuiltinCall) Value {
				s := call.Args[0].String()
				from := 0
				if len(call.Args) > 2 {
					from = int(call.Args[2].Number())
					if from < 0 || from > len(s) {
						return NewAnnotatedNull("not found")
					}
				}
				idx := strings.Index(s[from:], call.Args[1].String())
				if idx < 0 {
					return NewAnnotatedNull("not found")
				}
				return NewNumber(float64(from + idx))
			},
		},
		{
			Name:    "elements",
			Returns: TypeNumeric | TypeNull,
			Args:    []ArgDesc{{Type: TypeStructured, NullOnMismatch: true}},
			Fn: func(call *BuiltinCall) Value {
				return NewNumber(float64(call.Args[0].Node().Len()))
			},
		},
		{
			Name:    "fromjson",
			Returns: TypeStructured,
			Args:    []ArgDesc{{Type: TypeText}},
			Fn: func(call *BuiltinCall) Value {
				node, err := ParseJSON(call.Args[0].String())
				if err != nil {
					return NewErrorAt(call.Pos, ErrInvalid, "fromjson: %v", err)
				}
				return node.Value()
			},
		},
		{
			Name:    "tojson",
			Returns: TypeText,
			Args:    []ArgDesc{{Type: MaskAny}},
			Fn: func(call *BuiltinCall) Value {
				return NewText(NodeFromValue(call.Args[0]).JSONString())
			},
		},
		{
			Name:    "eval",
			Returns: MaskAny,
			Args:    []ArgDesc{{Type: TypeText}},
			Fn: func(call *BuiltinCall) Value {
				// Runs in the caller's context, so declarations persist.
				// The nested run is synchronous and shares the caller's
				// run-time budget; asynchronous functions are rejected
				// inside it.
				var nested *Thread
				if t := call.thread; t != nil {
					if t.callDepth >= maxCallDepth {
						return NewErrorAt(call.Pos, ErrInvalid, "call nesting exceeds %d levels", maxCallDepth)
					}
					nested = &Thread{
						name:       t.name + "/eval",
						ctx:        t.ctx,
						syncOnly:   true,
						maxRunTime: t.maxRunTime,
						started:    t.started,
						callDepth:  t.callDepth + 1,
					}
				}
				sub := newProcessor(call.Args[0].String(), Position{}, call.ctx, nested, false)
				result := NewNull()
				sub.onComplete = func(v Value) { result = v }
				sub.stepLoop()
				if result.IsError() {
					return NewErrorValue(result.Err().WithPos(call.Pos))
				}
				return result
			},
		},
		{
			Name:    "throw",
			Returns: TypeError,
			Args:    []ArgDesc{{Type: MaskAny}},
			Fn: func(call *BuiltinCall) Value {
				arg := call.Args[0]
				if arg.IsError() {
					return arg
				}
				return NewErrorAt(call.Pos, ErrUser, "%s", arg.String())
			},
		},
		{
			Name:    "error",
			Returns: MaskAny,
			Args:    nil,
			Fn: func(call *BuiltinCall) Value {
				// inside a catch block: the caught value, without re-raising
				if call.proc == nil || !call.proc.caughtErr.Defined() {
					return NewAnnotatedNull("no current error")
				}
				// returned as text so it does not re-raise
				return NewText(call.proc.caughtErr.String())
			},
		},
		{
			Name:    "errorcode",
			Returns: TypeNumeric | TypeNull,
			Args:    nil,
			Fn: func(call *BuiltinCall) Value {
				if call.proc == nil || call.proc.caughtErr.Err() == nil {
					return NewAnnotatedNull("no current error")
				}
				return NewNumber(float64(call.proc.caughtErr.Err().Code))
			},
		},
		{
			Name:    "lastarg",
			Returns: MaskAny,
			Args:    []ArgDesc{{Type: MaskAny, Multiple: true}},
			Fn: func(call *BuiltinCall) Value {
				if len(call.Args) == 0 {
					return NewNull()
				}
				return call.Args[len(call.Args)-1]
			},
		},
		{
			Name:    "delay",
			Returns: TypeNull,
			Args:    []ArgDesc{{Type: TypeNumeric}},
			AsyncFn: func(call *BuiltinCall, deliver func(Value)) {
				seconds := call.Args[0].Number()
				t := call.thread
				timer := t.loop.After(time.Duration(seconds*float64(time.Second)), func() {
					deliver(NewNull())
				})
				t.registerCleanup(timer.Cancel)
			},
		},
		{
			Name:    "await",
			Returns: MaskAny,
			Args:    []ArgDesc{{Type: TypeThread, Exact: true}},
			AsyncFn: func(call *BuiltinCall, deliver func(Value)) {
				call.Args[0].Thread().Await(deliver)
			},
		},
		{
			Name:    "abort",
			Returns: TypeNull,
			Args:    []ArgDesc{{Type: TypeThread, Exact: true}},
			Fn: func(call *BuiltinCall) Value {
				call.Args[0].Thread().Abort()
				return NewNull()
			},
		},
	}
}

// formatValues implements the format() builtin: printf-style verbs with
// engine-value conversion per verb.
func formatValues(format string, args []Value) string {
	var b strings.Builder
	argi := 0
	next := func() Value {
		if argi >= len(args) {
			return NewNull()
		}
		v := args[argi]
		argi++
		return v
	}
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		// scan verb with optional flags/width/precision
		j := i + 1
		for j < len(format) && strings.ContainsRune("+-# 0123456789.", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			b.WriteByte('%')
			break
		}
		verb := format[j]
		spec := format[i : j+1]
		switch verb {
		case '%':
			b.WriteByte('%')
		case 'd', 'x', 'X', 'o', 'b':
			fmt.Fprintf(&b, spec, next().Int())
		case 'e', 'E', 'f', 'g', 'G':
			fmt.Fprintf(&b, spec, next().Number())
		case 's', 'q':
			fmt.Fprintf(&b, spec, next().String())
		default:
			b.WriteString(spec)
		}
		i = j
	}
	return b.String()
}
