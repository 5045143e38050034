package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/emberlang/emberscript/ember"
)

func TestUpdateQuitCommandReturnsQuit(t *testing.T) {
	m := newREPLModel()
	m.textInput.SetValue(":quit")

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	rm, ok := model.(replModel)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}

	if !rm.quitting {
		t.Fatalf("quitting flag not set")
	}
	if rm.textInput.Value() != "" {
		t.Fatalf("input not cleared after quit command")
	}
	if cmd == nil {
		t.Fatalf("expected tea.Quit command")
	}
	if msg := cmd(); msg != nil {
		if _, ok := msg.(tea.QuitMsg); !ok {
			t.Fatalf("expected QuitMsg, got %T", msg)
		}
	}
}

func TestUpdateNonQuitCommandDoesNotReturnCmd(t *testing.T) {
	m := newREPLModel()
	m.textInput.SetValue(":help")

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	rm, ok := model.(replModel)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}

	if cmd != nil {
		t.Fatalf("expected no command for non-quit input")
	}
	if rm.quitting {
		t.Fatalf("quitting should remain false")
	}
	if !rm.showHelp {
		t.Fatalf("help toggle should be enabled")
	}
	if rm.textInput.Value() != "" {
		t.Fatalf("input not cleared after command")
	}
}

func TestEvaluateDeclarationPersistsAcrossLines(t *testing.T) {
	m := newREPLModel()

	if out, isErr := m.evaluate("var score = 42"); isErr {
		t.Fatalf("unexpected eval error: %s", out)
	}

	v, ok := m.ctx.MemberByName("score", ember.MaskContent)
	if !ok || v.Number() != 42 {
		t.Fatalf("score not stored in session context: %v %v", v, ok)
	}

	out, isErr := m.evaluate("score + 1")
	if isErr {
		t.Fatalf("unexpected eval error: %s", out)
	}
	if out != "43" {
		t.Fatalf("unexpected result: %q", out)
	}
}

func TestEvaluateReportsScriptError(t *testing.T) {
	m := newREPLModel()

	out, isErr := m.evaluate("1 / 0")
	if !isErr {
		t.Fatalf("expected error, got %q", out)
	}
	if !strings.Contains(out, "division by zero") {
		t.Fatalf("unexpected error output: %q", out)
	}
}

func TestEvaluateCapturesLogOutput(t *testing.T) {
	m := newREPLModel()

	out, isErr := m.evaluate(`log("hi") 5`)
	if isErr {
		t.Fatalf("unexpected eval error: %s", out)
	}
	if out != "hi\n5" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUnderscoreHoldsLastResult(t *testing.T) {
	m := newREPLModel()

	if out, isErr := m.evaluate("6 * 7"); isErr {
		t.Fatalf("unexpected eval error: %s", out)
	}

	out, isErr := m.evaluate("_ + 1")
	if isErr {
		t.Fatalf("unexpected eval error: %s", out)
	}
	if out != "43" {
		t.Fatalf("unexpected result: %q", out)
	}
}

func TestResetCommandClearsSession(t *testing.T) {
	m := newREPLModel()

	if out, isErr := m.evaluate("var gain = 3"); isErr {
		t.Fatalf("unexpected eval error: %s", out)
	}

	m, _ = m.handleCommand(":reset")

	if _, ok := m.ctx.MemberByName("gain", ember.MaskContent); ok {
		t.Fatalf("gain should be gone after reset")
	}

	out, isErr := m.evaluate("gain")
	if !isErr {
		t.Fatalf("expected unknown name error, got %q", out)
	}
}
