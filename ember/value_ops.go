package ember

import "math"

// applyBinary evaluates lhs op rhs with the propagation rules every operator
// shares: an error operand wins (left first), a null operand makes the
// operation undefined, except equality which is null-tolerant.
func applyBinary(op operator, lhs, rhs Value, pos Position) Value {
	if lhs.IsError() {
		return lhs
	}
	if rhs.IsError() {
		return rhs
	}
	switch op {
	case opEqual, opAssignOrEq:
		return NewBool(valuesEqual(lhs, rhs))
	case opNotEqual:
		return NewBool(!valuesEqual(lhs, rhs))
	}
	if lhs.IsNull() || rhs.IsNull() {
		return NewAnnotatedNull("operand undefined")
	}
	switch op {
	case opLess:
		return compareValues(lhs, rhs, func(c int) bool { return c < 0 })
	case opGreater:
		return compareValues(lhs, rhs, func(c int) bool { return c > 0 })
	case opLessEq:
		return compareValues(lhs, rhs, func(c int) bool { return c <= 0 })
	case opGreaterEq:
		return compareValues(lhs, rhs, func(c int) bool { return c >= 0 })
	case opAdd:
		if lhs.flags&TypeText != 0 {
			return NewText(lhs.str + rhs.String())
		}
		return NewNumber(lhs.Number() + rhs.Number())
	case opSubtract:
		return NewNumber(lhs.Number() - rhs.Number())
	case opMultiply:
		return NewNumber(lhs.Number() * rhs.Number())
	case opDivide:
		divisor := rhs.Number()
		if divisor == 0 {
			return NewErrorAt(pos, ErrDivisionByZero, "division by zero")
		}
		return NewNumber(lhs.Number() / divisor)
	case opModulo:
		divisor := rhs.Number()
		if divisor == 0 {
			return NewErrorAt(pos, ErrDivisionByZero, "modulo by zero")
		}
		return NewNumber(math.Mod(lhs.Number(), divisor))
	}
	return NewErrorAt(pos, ErrInternal, "unhandled operator %s", op)
}

// applyUnary evaluates a prefix operator. Errors propagate; null stays null.
func applyUnary(op operator, v Value, pos Position) Value {
	if v.IsError() {
		return v
	}
	if v.IsNull() {
		return v
	}
	switch op {
	case opNegate, opSubtract:
		return NewNumber(-v.Number())
	case opNot:
		return NewBool(!v.Truthy())
	case opAdd:
		return NewNumber(v.Number())
	}
	return NewErrorAt(pos, ErrInternal, "unhandled unary operator %s", op)
}

// valuesEqual implements the null-tolerant equality: null equals only null.
func valuesEqual(lhs, rhs Value) bool {
	if lhs.IsNull() || rhs.IsNull() {
		return lhs.IsNull() && rhs.IsNull()
	}
	switch {
	case lhs.flags&TypeNumeric != 0 && rhs.flags&TypeNumeric != 0:
		return lhs.num == rhs.num
	case lhs.flags&TypeText != 0 && rhs.flags&TypeText != 0:
		return lhs.str == rhs.str
	case lhs.flags&TypeNumeric != 0 || rhs.flags&TypeNumeric != 0:
		// one side numeric: compare numerically
		return lhs.Number() == rhs.Number()
	case lhs.flags&TypeStructured != 0 && rhs.flags&TypeStructured != 0:
		return lhs.node.JSONString() == rhs.node.JSONString()
	case lhs.flags&TypeExecutable != 0 && rhs.flags&TypeExecutable != 0:
		return lhs.exec == rhs.exec
	case lhs.flags&TypeThread != 0 && rhs.flags&TypeThread != 0:
		return lhs.thread == rhs.thread
	}
	return false
}

func compareValues(lhs, rhs Value, pred func(int) bool) Value {
	var c int
	if lhs.flags&TypeText != 0 && rhs.flags&TypeText != 0 {
		switch {
		case lhs.str < rhs.str:
			c = -1
		case lhs.str > rhs.str:
			c = 1
		}
	} else {
		a, b := lhs.Number(), rhs.Number()
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	}
	return NewBool(pred(c))
}
