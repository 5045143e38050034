package ember

import (
	"testing"
)

func TestValueKinds(t *testing.T) {
	if v := NewNull(); v.Defined() || !v.IsNull() {
		t.Fatalf("null misclassified: %v", v.Flags())
	}
	if v := NewNumber(3); !v.IsValue() || !v.Matches(TypeNumeric) {
		t.Fatalf("number misclassified")
	}
	if v := NewError(ErrInvalid, "x"); !v.IsError() || v.IsValue() {
		t.Fatalf("error misclassified")
	}
	if v := NewText(""); !v.Matches(TypeText) {
		t.Fatalf("empty text must still be text")
	}
}

func TestBoolIsNumeric(t *testing.T) {
	if v := NewBool(true); !v.Matches(TypeNumeric) || v.Number() != 1 {
		t.Fatalf("true must be numeric 1")
	}
	if v := NewBool(false); v.Number() != 0 {
		t.Fatalf("false must be numeric 0")
	}
}

func TestTruthiness(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{NewNumber(0), false},
		{NewNumber(0.5), true},
		{NewText(""), false},
		{NewText("x"), true},
		{NewNull(), false},
		{NewError(ErrInvalid, "bad"), false},
		{NewStructured(NewArrayNode()), true},
	}
	for i, tc := range cases {
		if got := tc.v.Truthy(); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestTextToNumberConversion(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"42", 42},
		{"-42", -42},
		{"+3", 3},
		{" 2.5 ", 2.5},
		{"0x2A", 42},
		{"14:30", 52200},
		{"junk", 0},
		{"12abc", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := NewText(tc.text).Number(); got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.text, tc.want, got)
		}
	}
}

func TestNumberFormatting(t *testing.T) {
	cases := []struct {
		num  float64
		want string
	}{
		{42, "42"},
		{-7, "-7"},
		{2.5, "2.5"},
		{0.1, "0.1"},
		{1e20, "1e+20"},
	}
	for _, tc := range cases {
		if got := NewNumber(tc.num).String(); got != tc.want {
			t.Fatalf("%v: expected %q, got %q", tc.num, tc.want, got)
		}
	}
}

func TestAnnotatedNullRendering(t *testing.T) {
	v := NewAnnotatedNull("sensor offline")
	if v.String() != "undefined (sensor offline)" {
		t.Fatalf("got %q", v.String())
	}
	if v.NullReason() != "sensor offline" {
		t.Fatalf("reason lost: %q", v.NullReason())
	}
	// annotation does not change behavior
	if v.Defined() || v.Truthy() {
		t.Fatalf("annotated null must still be null")
	}
}

func TestAssignableDeepCopies(t *testing.T) {
	node := NewArrayNode()
	node.Append(NewNumberNode(1))
	original := NewStructured(node)
	copied := original.Assignable()
	copied.Node().SetIndex(0, NewNumberNode(99))
	if original.Node().Index(0).Number() != 1 {
		t.Fatalf("deep copy failed, original mutated")
	}
}

func TestAssignableScalarsShareNothing(t *testing.T) {
	v := NewText("abc")
	if v.Assignable().String() != "abc" {
		t.Fatalf("scalar assignable changed value")
	}
}

func TestMatchesMask(t *testing.T) {
	if !NewNumber(1).Matches(MaskScalar) {
		t.Fatalf("number must match scalar mask")
	}
	if !NewText("x").Matches(MaskScalar) {
		t.Fatalf("text must match scalar mask")
	}
	if NewStructured(NewObjectNode()).Matches(MaskScalar) {
		t.Fatalf("structured must not match scalar mask")
	}
	if !NewStructured(NewObjectNode()).Matches(MaskValue) {
		t.Fatalf("structured must match value mask")
	}
	if NewNull().Matches(MaskValue) {
		t.Fatalf("null must not match value mask")
	}
}

func TestStructuredAttributes(t *testing.T) {
	arr := NewStructured(NewArrayNode())
	if arr.Flags()&AttrArray == 0 {
		t.Fatalf("array attribute missing")
	}
	obj := NewStructured(NewObjectNode())
	if obj.Flags()&AttrObject == 0 {
		t.Fatalf("object attribute missing")
	}
}

func TestBinaryOperatorRules(t *testing.T) {
	pos := Position{}
	// error on the left wins
	e1 := NewError(ErrInvalid, "left")
	e2 := NewError(ErrInvalid, "right")
	if got := applyBinary(opAdd, e1, e2, pos); got.Err().Message != "left" {
		t.Fatalf("left error must win, got %v", got.Err())
	}
	// null is tolerated by equality only
	if got := applyBinary(opEqual, NewNull(), NewNull(), pos); got.Number() != 1 {
		t.Fatalf("null == null must hold")
	}
	if got := applyBinary(opNotEqual, NewNull(), NewNumber(0), pos); got.Number() != 1 {
		t.Fatalf("null != 0 must hold")
	}
	if got := applyBinary(opAdd, NewNull(), NewNumber(1), pos); !got.IsNull() {
		t.Fatalf("null + 1 must be null, got %s", got.String())
	}
	// division by zero is an error value
	if got := applyBinary(opDivide, NewNumber(1), NewNumber(0), pos); got.Err() == nil || got.Err().Code != ErrDivisionByZero {
		t.Fatalf("expected division by zero")
	}
}

func TestUnaryOperatorRules(t *testing.T) {
	pos := Position{}
	if got := applyUnary(opNegate, NewNumber(3), pos); got.Number() != -3 {
		t.Fatalf("negate failed")
	}
	if got := applyUnary(opNot, NewNumber(0), pos); got.Number() != 1 {
		t.Fatalf("not failed")
	}
	if got := applyUnary(opNot, NewNull(), pos); !got.IsNull() {
		t.Fatalf("not on null must stay null")
	}
}
