package ember

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestLogWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	engine := NewEngine(Config{Output: &buf})
	if _, err := engine.Eval(nil, `log("tuner", 440)`); err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if got := buf.String(); got != "tuner 440\n" {
		t.Fatalf("unexpected log output %q", got)
	}
}

func TestFormatVerbs(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`format("%d items", 3.7)`, "3 items"},
		{`format("%x", 255)`, "ff"},
		{`format("%s/%s", "a", "b")`, "a/b"},
		{`format("%g", 2.5)`, "2.5"},
		{`format("%q", "hi")`, `"hi"`},
		{`format("100%%")`, "100%"},
	}
	for _, tc := range cases {
		v := evalValue(t, tc.src)
		if v.String() != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.src, tc.want, v.String())
		}
	}
}

func TestNumericBuiltins(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"abs(-4)", 4},
		{"int(3.9)", 3},
		{"int(-3.9)", -3},
		{"frac(3.25)", 0.25},
		{"round(2.5)", 3},
		{"round(2.37, 0.1)", 2.4},
		{"min(2, 5)", 2},
		{"max(2, 5)", 5},
		{`number("0x10")`, 16},
	}
	for _, tc := range cases {
		if got := evalNumber(t, tc.src); got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.src, tc.want, got)
		}
	}
}

func TestStringBuiltins(t *testing.T) {
	if got := evalNumber(t, `strlen("hello")`); got != 5 {
		t.Fatalf("strlen: got %v", got)
	}
	if v := evalValue(t, `substr("hello", 1, 3)`); v.String() != "ell" {
		t.Fatalf("substr: got %q", v.String())
	}
	if got := evalNumber(t, `find("hello", "ll")`); got != 2 {
		t.Fatalf("find: got %v", got)
	}
	v := evalValue(t, `find("hello", "xyz")`)
	if !v.IsNull() {
		t.Fatalf("find miss should be null, got %s", v.String())
	}
	if v := evalValue(t, `string(12)`); v.String() != "12" {
		t.Fatalf("string: got %q", v.String())
	}
}

func TestValidityBuiltins(t *testing.T) {
	if got := evalNumber(t, "isvalid(3)"); got != 1 {
		t.Fatalf("isvalid(3): got %v", got)
	}
	if got := evalNumber(t, "var x isvalid(x)"); got != 0 {
		t.Fatalf("isvalid(null): got %v", got)
	}
	if got := evalNumber(t, "isvalid(1 / 0)"); got != 0 {
		t.Fatalf("isvalid(error): got %v", got)
	}
	if got := evalNumber(t, "var x ifvalid(x, 9)"); got != 9 {
		t.Fatalf("ifvalid fallback: got %v", got)
	}
	if got := evalNumber(t, "ifvalid(4, 9)"); got != 4 {
		t.Fatalf("ifvalid pass-through: got %v", got)
	}
}

func TestJSONBuiltins(t *testing.T) {
	if got := evalNumber(t, `var d = fromjson("{\"pins\": [4, 5, 6]}") d.pins[2]`); got != 6 {
		t.Fatalf("fromjson: got %v", got)
	}
	v := evalValue(t, `tojson([1, "two"])`)
	if v.String() != `[1,"two"]` {
		t.Fatalf("tojson: got %q", v.String())
	}
	err := evalError(t, `fromjson("{broken")`)
	if err.Code != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestElementsBuiltin(t *testing.T) {
	if got := evalNumber(t, "elements([1, 2, 3])"); got != 3 {
		t.Fatalf("elements array: got %v", got)
	}
	if got := evalNumber(t, `elements({ a: 1, b: 2 })`); got != 2 {
		t.Fatalf("elements object: got %v", got)
	}
	// degenerate call: scalar argument yields null, not an error
	v := evalValue(t, "elements(5)")
	if !v.IsNull() {
		t.Fatalf("elements on scalar should be null, got %s", v.String())
	}
}

func TestArgumentChecking(t *testing.T) {
	err := evalError(t, "abs(1, 2)")
	if err.Code != ErrSyntax || !strings.Contains(err.Message, "too many") {
		t.Fatalf("unexpected error %v", err)
	}
	err = evalError(t, "min(1)")
	if err.Code != ErrSyntax || !strings.Contains(err.Message, "missing") {
		t.Fatalf("unexpected error %v", err)
	}
	// lenient conversion: text that reads as a number is accepted
	if got := evalNumber(t, `abs("-3")`); got != 3 {
		t.Fatalf("lenient conversion failed, got %v", got)
	}
}

func TestMultipleArgs(t *testing.T) {
	if got := evalNumber(t, "lastarg(1, 2, 3)"); got != 3 {
		t.Fatalf("lastarg: got %v", got)
	}
	v := evalValue(t, `lastarg("only")`)
	if v.String() != "only" {
		t.Fatalf("lastarg single: got %q", v.String())
	}
}

func TestRegisterHostFunction(t *testing.T) {
	engine := NewEngine(Config{Output: io.Discard})
	engine.Domain().RegisterFunction(&BuiltinDef{
		Name:    "setvolume",
		Returns: TypeNumeric,
		Args:    []ArgDesc{{Type: TypeNumeric}},
		Fn: func(call *BuiltinCall) Value {
			return NewNumber(call.Args[0].Number() * 2)
		},
	})
	v, err := engine.Eval(nil, "setvolume(21)")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if v.Number() != 42 {
		t.Fatalf("expected 42, got %v", v.Number())
	}
}

func TestThrowRethrowsErrorArgument(t *testing.T) {
	// throw(error-value) keeps the original code instead of wrapping it
	err := evalError(t, "throw(1 / 0)")
	if err.Code != ErrDivisionByZero {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestErrorBuiltinOutsideCatch(t *testing.T) {
	v := evalValue(t, "error()")
	if !v.IsNull() {
		t.Fatalf("expected null outside catch, got %s", v.String())
	}
}

func TestEvalBuiltinRunsInCallerContext(t *testing.T) {
	src := `
		var x = 5
		eval("var y = x * 2")
		y + eval("1 + 2")`
	if got := evalNumber(t, src); got != 13 {
		t.Fatalf("expected 13, got %v", got)
	}
}

func TestEvalBuiltinErrorIsCatchable(t *testing.T) {
	src := `
		var code = 0
		try {
			eval("1 / 0")
		} catch {
			code = errorcode()
		}
		code`
	if got := evalNumber(t, src); got != float64(ErrDivisionByZero) {
		t.Fatalf("expected division-by-zero code, got %v", got)
	}
}

func TestEvalBuiltinRejectsAsync(t *testing.T) {
	err := evalError(t, `eval("delay(10)")`)
	if err.Code != ErrInvalid {
		t.Fatalf("expected invalid operand, got %v", err)
	}
}
