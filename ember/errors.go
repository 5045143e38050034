package ember

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorCode classifies script errors. Errors travel through the engine as
// values, not as Go errors; only at the host API boundary do they surface as
// *ScriptError.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrSyntax
	ErrDivisionByZero
	ErrInvalid
	ErrNotFound
	ErrNotCreated
	ErrImmutable
	ErrBusy
	ErrAborted
	ErrTimeout
	ErrUser
	ErrInternal
)

var errorCodeNames = map[ErrorCode]string{
	ErrNone:           "none",
	ErrSyntax:         "syntax error",
	ErrDivisionByZero: "division by zero",
	ErrInvalid:        "invalid operand",
	ErrNotFound:       "not found",
	ErrNotCreated:     "cannot create",
	ErrImmutable:      "immutable",
	ErrBusy:           "busy",
	ErrAborted:        "aborted",
	ErrTimeout:        "timeout",
	ErrUser:           "user error",
	ErrInternal:       "internal error",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "error " + strconv.Itoa(int(c))
}

// Fatal codes bypass try/catch and always terminate the thread.
func (c ErrorCode) Fatal() bool {
	return c == ErrTimeout || c == ErrAborted || c == ErrInternal
}

// Position identifies a location in script source. Offset is the byte offset,
// Line and Column are 1-based for display.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) valid() bool { return p.Line > 0 }

// ScriptError is the payload of an error value: a code, a message and the
// source position where it was raised.
type ScriptError struct {
	Code    ErrorCode
	Message string
	Pos     Position
}

func newScriptError(code ErrorCode, format string, args ...any) *ScriptError {
	return &ScriptError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ScriptError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	if e.Code == ErrUser {
		return e.Message
	}
	return e.Code.String() + ": " + e.Message
}

// WithPos returns a copy annotated with pos, unless the error already carries
// a position; the first (innermost) annotation wins.
func (e *ScriptError) WithPos(pos Position) *ScriptError {
	if e.Pos.valid() {
		return e
	}
	copied := *e
	copied.Pos = pos
	return &copied
}

// CodeFrame renders the offending source line with a caret under the column,
// for interactive display.
func (e *ScriptError) CodeFrame(source string) string {
	return formatCodeFrame(source, e.Pos)
}

func formatCodeFrame(source string, pos Position) string {
	if source == "" || pos.Line <= 0 {
		return ""
	}

	lines := strings.Split(source, "\n")
	if pos.Line > len(lines) {
		return ""
	}

	lineText := lines[pos.Line-1]
	lineRunes := []rune(lineText)

	column := pos.Column
	if column <= 0 {
		column = 1
	}
	if column > len(lineRunes)+1 {
		column = len(lineRunes) + 1
	}

	lineLabel := strconv.Itoa(pos.Line)
	gutterPad := strings.Repeat(" ", len(lineLabel))
	caretPad := strings.Repeat(" ", column-1)

	return fmt.Sprintf(
		"  --> line %d, column %d\n %s | %s\n %s | %s^",
		pos.Line,
		column,
		lineLabel,
		lineText,
		gutterPad,
		caretPad,
	)
}
