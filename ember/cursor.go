package ember

import (
	"strconv"
	"strings"
)

const eot byte = 0

// cursor is a position-tracking view into an immutable source buffer. It
// supplies the lexical primitives the processor drives: whitespace and
// comment skipping, identifier, number, string and operator scanning.
type cursor struct {
	source string
	pos    int // byte offset of the current character
	line   int // 0-based line number
	bol    int // offset of the beginning of the current line
}

func newCursor(source string) cursor {
	return cursor{source: source}
}

func (c *cursor) atEnd() bool { return c.pos >= len(c.source) }

func (c *cursor) current() byte {
	if c.pos >= len(c.source) {
		return eot
	}
	return c.source[c.pos]
}

func (c *cursor) peek(offset int) byte {
	i := c.pos + offset
	if i < 0 || i >= len(c.source) {
		return eot
	}
	return c.source[i]
}

func (c *cursor) advance(n int) {
	for n > 0 && c.pos < len(c.source) {
		if c.source[c.pos] == '\n' {
			c.line++
			c.bol = c.pos + 1
		}
		c.pos++
		n--
	}
}

func (c *cursor) position() Position {
	return Position{Offset: c.pos, Line: c.line + 1, Column: c.pos - c.bol + 1}
}

func (c *cursor) setPosition(pos Position) {
	c.pos = pos.Offset
	c.line = pos.Line - 1
	c.bol = pos.Offset - (pos.Column - 1)
}

// skipNonCode skips whitespace plus line and block comments, re-checking
// after each comment in case another follows.
func (c *cursor) skipNonCode() {
	for {
		for ch := c.current(); ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'; ch = c.current() {
			c.advance(1)
		}
		if c.current() == '/' && c.peek(1) == '/' {
			for !c.atEnd() && c.current() != '\n' {
				c.advance(1)
			}
			continue
		}
		if c.current() == '/' && c.peek(1) == '*' {
			c.advance(2)
			for !c.atEnd() && !(c.current() == '*' && c.peek(1) == '/') {
				c.advance(1)
			}
			c.advance(2)
			continue
		}
		return
	}
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isAlnum(ch byte) bool { return isAlpha(ch) || isDigit(ch) || ch == '_' }

// parseIdentifier accepts [A-Za-z_][A-Za-z0-9_]* at the current position.
func (c *cursor) parseIdentifier() (string, bool) {
	if !isAlpha(c.current()) {
		return "", false
	}
	start := c.pos
	for isAlnum(c.current()) {
		c.advance(1)
	}
	return c.source[start:c.pos], true
}

// checkKeyword consumes the given identifier only when it appears whole at
// the current position.
func (c *cursor) checkKeyword(kw string) bool {
	if !strings.HasPrefix(c.source[c.pos:], kw) {
		return false
	}
	if isAlnum(c.peek(len(kw))) {
		return false
	}
	c.advance(len(kw))
	return true
}

// skipBlock advances the cursor from an opening brace to just past its
// matching closing brace. Braces inside string literals and comments do not
// count. The block body is not interpreted here; callers record the region
// and process it later.
func (c *cursor) skipBlock() *ScriptError {
	start := c.position()
	if c.current() != '{' {
		return newScriptError(ErrSyntax, "expected \"{\"").WithPos(start)
	}
	c.advance(1)
	depth := 1
	for depth > 0 {
		c.skipNonCode()
		switch ch := c.current(); ch {
		case eot:
			return newScriptError(ErrSyntax, "unterminated block").WithPos(start)
		case '{':
			depth++
			c.advance(1)
		case '}':
			depth--
			c.advance(1)
		case '"', '\'':
			if v := c.parseStringLiteral(); v.IsError() {
				return v.Err()
			}
		default:
			c.advance(1)
		}
	}
	return nil
}

// cumulative days before each month, non-leap reference year
var monthStartDay = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

var monthNames = [12]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// parseNumericLiteral parses a C-style number, then opportunistically extends
// it into a clock-time literal (h:m[:s], yielding seconds) or a date literal
// (dd.monthname or dd.mm., yielding day-of-year) by peeking at the trailing
// characters. Failures return a position-annotated error value.
func (c *cursor) parseNumericLiteral() Value {
	start := c.position()
	if c.current() == '0' && (c.peek(1) == 'x' || c.peek(1) == 'X') {
		c.advance(2)
		hexStart := c.pos
		for ch := c.current(); isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F'); ch = c.current() {
			c.advance(1)
		}
		if c.pos == hexStart {
			return NewErrorAt(start, ErrSyntax, "invalid hex literal")
		}
		u, err := strconv.ParseUint(c.source[hexStart:c.pos], 16, 64)
		if err != nil {
			return NewErrorAt(start, ErrSyntax, "invalid hex literal")
		}
		return NewNumber(float64(u))
	}
	intStart := c.pos
	for isDigit(c.current()) {
		c.advance(1)
	}
	if c.pos == intStart && c.current() != '.' {
		return NewErrorAt(start, ErrSyntax, "invalid number")
	}
	// clock time literal: h:m[:s] in seconds since midnight
	if c.current() == ':' && isDigit(c.peek(1)) {
		hours, _ := strconv.ParseFloat(c.source[intStart:c.pos], 64)
		c.advance(1)
		minutes, ok := c.parseTimeComponent()
		if !ok {
			return NewErrorAt(start, ErrSyntax, "invalid time literal")
		}
		total := hours*3600 + minutes*60
		if c.current() == ':' && isDigit(c.peek(1)) {
			c.advance(1)
			seconds, ok := c.parseTimeComponent()
			if !ok {
				return NewErrorAt(start, ErrSyntax, "invalid time literal")
			}
			total += seconds
		}
		return NewNumber(total)
	}
	if c.current() == '.' {
		// Could be a decimal fraction, a dd.monthname date or a dd.mm. date.
		if isAlpha(c.peek(1)) && c.pos > intStart {
			day, _ := strconv.Atoi(c.source[intStart:c.pos])
			c.advance(1)
			name, _ := c.parseIdentifier()
			month := monthByName(name)
			if month < 0 {
				return NewErrorAt(start, ErrSyntax, "invalid month name %q", name)
			}
			return NewNumber(float64(dayOfYear(month, day)))
		}
		if digits, width := c.scanDigitsAhead(1); width > 0 && c.peek(1+width) == '.' && c.pos > intStart {
			day, _ := strconv.Atoi(c.source[intStart:c.pos])
			month, _ := strconv.Atoi(digits)
			if month < 1 || month > 12 {
				return NewErrorAt(start, ErrSyntax, "invalid month %d", month)
			}
			c.advance(1 + width + 1)
			return NewNumber(float64(dayOfYear(month-1, day)))
		}
		// plain decimal
		c.advance(1)
		for isDigit(c.current()) {
			c.advance(1)
		}
	}
	if ch := c.current(); ch == 'e' || ch == 'E' {
		mark := c.pos
		c.advance(1)
		if c.current() == '+' || c.current() == '-' {
			c.advance(1)
		}
		if !isDigit(c.current()) {
			c.pos = mark // not an exponent after all
		} else {
			for isDigit(c.current()) {
				c.advance(1)
			}
		}
	}
	text := c.source[intStart:c.pos]
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return NewErrorAt(start, ErrSyntax, "invalid number %q", text)
	}
	return NewNumber(f)
}

func (c *cursor) parseTimeComponent() (float64, bool) {
	start := c.pos
	for isDigit(c.current()) {
		c.advance(1)
	}
	if c.pos == start {
		return 0, false
	}
	f, err := strconv.ParseFloat(c.source[start:c.pos], 64)
	return f, err == nil
}

func (c *cursor) scanDigitsAhead(offset int) (string, int) {
	i := c.pos + offset
	start := i
	for i < len(c.source) && isDigit(c.source[i]) {
		i++
	}
	return c.source[start:i], i - start
}

func monthByName(name string) int {
	if len(name) < 3 {
		return -1
	}
	prefix := strings.ToLower(name[:3])
	for i, m := range monthNames {
		if m == prefix {
			return i
		}
	}
	return -1
}

// dayOfYear converts a 0-based month and 1-based day to the zero-based
// day-of-year of the non-leap reference year.
func dayOfYear(month, day int) int {
	return monthStartDay[month] + day - 1
}

// parseStringLiteral handles both delimiters: double quotes with C-style
// backslash escapes, single quotes with no escaping except doubling the
// quote.
func (c *cursor) parseStringLiteral() Value {
	start := c.position()
	delim := c.current()
	if delim != '"' && delim != '\'' {
		return NewErrorAt(start, ErrSyntax, "expected string literal")
	}
	c.advance(1)
	var b strings.Builder
	for {
		ch := c.current()
		if ch == eot || ch == '\n' {
			return NewErrorAt(start, ErrSyntax, "unterminated string")
		}
		if ch == delim {
			if delim == '\'' && c.peek(1) == '\'' {
				b.WriteByte('\'')
				c.advance(2)
				continue
			}
			c.advance(1)
			return NewText(b.String())
		}
		if delim == '"' && ch == '\\' {
			esc := c.peek(1)
			switch esc {
			case 'n':
				b.WriteByte('\n')
				c.advance(2)
			case 'r':
				b.WriteByte('\r')
				c.advance(2)
			case 't':
				b.WriteByte('\t')
				c.advance(2)
			case 'x':
				hex := ""
				i := 2
				for i < 4 && isHexDigit(c.peek(i)) {
					hex += string(c.peek(i))
					i++
				}
				if hex == "" {
					return NewErrorAt(c.position(), ErrSyntax, "invalid \\x escape")
				}
				u, _ := strconv.ParseUint(hex, 16, 8)
				b.WriteByte(byte(u))
				c.advance(i)
			case eot:
				return NewErrorAt(start, ErrSyntax, "unterminated string")
			default:
				b.WriteByte(esc)
				c.advance(2)
			}
			continue
		}
		b.WriteByte(ch)
		c.advance(1)
	}
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// operator identifies a binary or unary operator together with lexical data
// the processor needs for precedence climbing.
type operator int

const (
	opNone operator = iota
	opNot
	opNegate
	opMultiply
	opDivide
	opModulo
	opAdd
	opSubtract
	opLess
	opGreater
	opLessEq
	opGreaterEq
	opEqual
	opNotEqual
	opAssignOrEq // bare '=' whose meaning depends on assignment context
	opAnd
	opOr
)

// precedence returns the binding strength; higher binds tighter. opNone maps
// to 0, the floor at which a fresh expression starts.
func (op operator) precedence() int {
	switch op {
	case opOr:
		return 1
	case opAnd:
		return 2
	case opEqual, opNotEqual, opAssignOrEq:
		return 3
	case opLess, opGreater, opLessEq, opGreaterEq:
		return 4
	case opAdd, opSubtract:
		return 5
	case opMultiply, opDivide, opModulo:
		return 6
	case opNot, opNegate:
		return 7
	}
	return 0
}

func (op operator) String() string {
	switch op {
	case opNot:
		return "!"
	case opNegate:
		return "-"
	case opMultiply:
		return "*"
	case opDivide:
		return "/"
	case opModulo:
		return "%"
	case opAdd:
		return "+"
	case opSubtract:
		return "-"
	case opLess:
		return "<"
	case opGreater:
		return ">"
	case opLessEq:
		return "<="
	case opGreaterEq:
		return ">="
	case opEqual:
		return "=="
	case opNotEqual:
		return "!="
	case opAssignOrEq:
		return "="
	case opAnd:
		return "&&"
	case opOr:
		return "||"
	}
	return ""
}

// parseOperator recognizes the operator at the current position and consumes
// it. When no operator matches, opNone is returned and nothing is consumed.
func (c *cursor) parseOperator() operator {
	switch c.current() {
	case '*':
		c.advance(1)
		return opMultiply
	case '/':
		// comments are handled by skipNonCode before we get here
		c.advance(1)
		return opDivide
	case '%':
		c.advance(1)
		return opModulo
	case '+':
		c.advance(1)
		return opAdd
	case '-':
		c.advance(1)
		return opSubtract
	case '=':
		if c.peek(1) == '=' {
			c.advance(2)
			return opEqual
		}
		c.advance(1)
		return opAssignOrEq
	case '!':
		if c.peek(1) == '=' {
			c.advance(2)
			return opNotEqual
		}
		c.advance(1)
		return opNot
	case '<':
		switch c.peek(1) {
		case '=':
			c.advance(2)
			return opLessEq
		case '>':
			c.advance(2)
			return opNotEqual
		}
		c.advance(1)
		return opLess
	case '>':
		if c.peek(1) == '=' {
			c.advance(2)
			return opGreaterEq
		}
		c.advance(1)
		return opGreater
	case '&':
		if c.peek(1) == '&' {
			c.advance(2)
		} else {
			c.advance(1)
		}
		return opAnd
	case '|':
		if c.peek(1) == '|' {
			c.advance(2)
		} else {
			c.advance(1)
		}
		return opOr
	}
	return opNone
}
