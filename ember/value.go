package ember

import (
	"strconv"
	"strings"
)

// TypeFlags is a bitmask describing a Value. The low bits form the content
// kind axis (exactly one set per value); the high bits are container
// attributes that can combine with the structured kind.
type TypeFlags uint16

const (
	TypeNull TypeFlags = 1 << iota
	TypeError
	TypeNumeric
	TypeText
	TypeStructured
	TypeExecutable
	TypeThread

	// container attributes
	AttrObject
	AttrArray
	AttrMutable
)

const (
	// MaskContent selects the content kind axis of a TypeFlags mask.
	MaskContent = TypeNull | TypeError | TypeNumeric | TypeText | TypeStructured | TypeExecutable | TypeThread
	// MaskAny accepts every kind, including null and error.
	MaskAny = MaskContent
	// MaskValue accepts anything that is neither null nor error.
	MaskValue = TypeNumeric | TypeText | TypeStructured | TypeExecutable | TypeThread
	// MaskScalar accepts numbers and text.
	MaskScalar = TypeNumeric | TypeText
)

// Value is the tagged type flowing through the engine: variables, operands,
// arguments and results are all Values. Construct values through the New
// functions; the zero Value carries no kind bit and is only used internally
// as a sentinel.
type Value struct {
	flags  TypeFlags
	num    float64
	str    string // text payload, or annotation for null values
	errv   *ScriptError
	node   *Node
	exec   *Executable
	thread *Thread
}

// NewNull returns an unannotated null value.
func NewNull() Value {
	return Value{flags: TypeNull}
}

// NewAnnotatedNull returns a null carrying a reason string, shown when the
// value is rendered but otherwise behaving exactly like null.
func NewAnnotatedNull(reason string) Value {
	return Value{flags: TypeNull, str: reason}
}

// NewNumber returns a numeric value.
func NewNumber(f float64) Value {
	return Value{flags: TypeNumeric, num: f}
}

// NewBool returns the numeric value 1 or 0; booleans are numbers.
func NewBool(b bool) Value {
	if b {
		return Value{flags: TypeNumeric, num: 1}
	}
	return Value{flags: TypeNumeric, num: 0}
}

// NewText returns a text value.
func NewText(s string) Value {
	return Value{flags: TypeText, str: s}
}

// NewErrorValue wraps an already-built ScriptError.
func NewErrorValue(err *ScriptError) Value {
	return Value{flags: TypeError, errv: err}
}

// NewError builds an error value from a code and message.
func NewError(code ErrorCode, format string, args ...any) Value {
	return NewErrorValue(newScriptError(code, format, args...))
}

// NewErrorAt builds a position-annotated error value.
func NewErrorAt(pos Position, code ErrorCode, format string, args ...any) Value {
	err := newScriptError(code, format, args...)
	err.Pos = pos
	return NewErrorValue(err)
}

// NewStructured wraps a Node tree. Arrays and objects carry the matching
// container attributes; members are mutable through member assignment.
func NewStructured(n *Node) Value {
	if n == nil {
		return NewNull()
	}
	flags := TypeStructured | AttrMutable
	switch n.Kind() {
	case NodeArray:
		flags |= AttrArray
	case NodeObject:
		flags |= AttrObject
	}
	return Value{flags: flags, node: n}
}

// NewExecutableValue wraps a callable: a builtin descriptor or a script
// function body.
func NewExecutableValue(exec *Executable) Value {
	return Value{flags: TypeExecutable, exec: exec}
}

// NewThreadValue wraps a running or completed script thread so script code
// can await or abort it.
func NewThreadValue(t *Thread) Value {
	return Value{flags: TypeThread, thread: t}
}

// Flags returns the full type bitmask.
func (v Value) Flags() TypeFlags { return v.flags }

// Defined reports whether the value is anything but null.
func (v Value) Defined() bool { return v.flags&TypeNull == 0 }

// IsValue reports whether the value is neither null nor error.
func (v Value) IsValue() bool { return v.flags&(TypeNull|TypeError) == 0 }

// IsError reports whether the value carries an error.
func (v Value) IsError() bool { return v.flags&TypeError != 0 }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.flags&TypeNull != 0 }

// Matches reports whether the value's content kind intersects the mask.
// Container attribute bits in the mask must all be present on the value.
func (v Value) Matches(mask TypeFlags) bool {
	if mask&MaskContent&v.flags == 0 {
		return false
	}
	attrs := mask &^ MaskContent
	return v.flags&attrs == attrs
}

// Truthy converts to a condition: numbers are true when non-zero, text when
// non-empty, structured and executable values always, null and errors never.
func (v Value) Truthy() bool {
	switch {
	case v.flags&TypeNumeric != 0:
		return v.num != 0
	case v.flags&TypeText != 0:
		return v.str != ""
	case v.flags&(TypeStructured|TypeExecutable|TypeThread) != 0:
		return true
	default:
		return false
	}
}

// Number converts the value to a float64. Text is parsed leniently with the
// same literal grammar the cursor uses, so "0x2A" and "14:30" convert too.
// Null, errors and unparseable text yield 0.
func (v Value) Number() float64 {
	switch {
	case v.flags&TypeNumeric != 0:
		return v.num
	case v.flags&TypeText != 0:
		s := strings.TrimSpace(v.str)
		sign := 1.0
		if strings.HasPrefix(s, "-") {
			sign = -1
			s = s[1:]
		} else if strings.HasPrefix(s, "+") {
			s = s[1:]
		}
		c := newCursor(s)
		lit := c.parseNumericLiteral()
		c.skipNonCode()
		if !lit.IsValue() || !c.atEnd() {
			return 0
		}
		return sign * lit.num
	case v.flags&TypeStructured != 0:
		return v.node.Number()
	default:
		return 0
	}
}

// Int is Number truncated toward zero.
func (v Value) Int() int64 { return int64(v.Number()) }

// String renders the value as text. Numbers format with the shortest
// representation that round-trips; structured values render as JSON.
func (v Value) String() string {
	switch {
	case v.flags&TypeNull != 0:
		if v.str != "" {
			return "undefined (" + v.str + ")"
		}
		return "undefined"
	case v.flags&TypeError != 0:
		return v.errv.Error()
	case v.flags&TypeNumeric != 0:
		return formatNumber(v.num)
	case v.flags&TypeText != 0:
		return v.str
	case v.flags&TypeStructured != 0:
		return v.node.JSONString()
	case v.flags&TypeExecutable != 0:
		return "function " + v.exec.name + "()"
	case v.flags&TypeThread != 0:
		return "thread"
	}
	return ""
}

// Err returns the wrapped ScriptError, or nil for non-error values.
func (v Value) Err() *ScriptError {
	if v.flags&TypeError == 0 {
		return nil
	}
	return v.errv
}

// Node returns the structured payload, or nil.
func (v Value) Node() *Node {
	if v.flags&TypeStructured == 0 {
		return nil
	}
	return v.node
}

// Executable returns the callable payload, or nil.
func (v Value) Executable() *Executable {
	if v.flags&TypeExecutable == 0 {
		return nil
	}
	return v.exec
}

// Thread returns the wrapped thread handle, or nil.
func (v Value) Thread() *Thread {
	if v.flags&TypeThread == 0 {
		return nil
	}
	return v.thread
}

// NullReason returns the annotation of an annotated null, or "".
func (v Value) NullReason() string {
	if v.flags&TypeNull == 0 {
		return ""
	}
	return v.str
}

// Assignable returns the form of the value stored into a variable slot.
// Structured payloads are deep-copied so readers of the previous binding are
// unaffected by later member mutation through the new one.
func (v Value) Assignable() Value {
	if v.flags&TypeStructured != 0 {
		copied := v
		copied.node = v.node.DeepCopy()
		return copied
	}
	return v
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) && f > -1e15 && f < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// TypeName returns a short name for the value's content kind, used in
// diagnostics.
func (v Value) TypeName() string {
	names := []struct {
		flag TypeFlags
		name string
	}{
		{TypeNull, "null"},
		{TypeError, "error"},
		{TypeNumeric, "number"},
		{TypeText, "text"},
		{TypeStructured, "structured"},
		{TypeExecutable, "executable"},
		{TypeThread, "thread"},
	}
	var parts []string
	for _, n := range names {
		if v.flags&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
