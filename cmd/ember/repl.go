package main

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/emberlang/emberscript/ember"
)

var (
	accentColor    = lipgloss.Color("#F97316")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#FBBF24")

	promptStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
)

// scriptKeywords feeds tab completion alongside registered functions and
// session variables.
var scriptKeywords = []string{
	"if", "else", "while", "break", "continue", "return",
	"try", "catch", "throw", "as",
	"var", "let", "glob", "function", "concurrent",
	"true", "false", "null", "undefined",
}

type historyEntry struct {
	input  string
	output string
	isErr  bool
}

type replModel struct {
	textInput   textinput.Model
	engine      *ember.Engine
	ctx         *ember.ExecutionContext
	logBuf      *bytes.Buffer
	history     []historyEntry
	cmdHistory  []string
	historyIdx  int
	width       int
	height      int
	showHelp    bool
	showVars    bool
	quitting    bool
	initialized bool
}

var (
	keyHistoryPrev = key.NewBinding(key.WithKeys("up"))
	keyHistoryNext = key.NewBinding(key.WithKeys("down"))
	keySubmit      = key.NewBinding(key.WithKeys("enter"))
	keyQuit        = key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"))
	keyClear       = key.NewBinding(key.WithKeys("ctrl+l"))
	keyComplete    = key.NewBinding(key.WithKeys("tab"))
	keyVars        = key.NewBinding(key.WithKeys("ctrl+v"))
	keyHelp        = key.NewBinding(key.WithKeys("ctrl+k"))
)

// footerShortcuts drives the shortcut line at the bottom of the screen.
var footerShortcuts = []struct {
	key  string
	desc string
}{
	{"ctrl+k", "help"},
	{"ctrl+v", "vars"},
	{"ctrl+l", "clear"},
	{"ctrl+c", "quit"},
}

func newREPLModel() replModel {
	ti := textinput.New()
	ti.Placeholder = "type a statement..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60
	ti.PromptStyle = promptStyle
	ti.Prompt = "ember> "

	logBuf := &bytes.Buffer{}
	engine := ember.NewEngine(ember.Config{Output: logBuf})

	return replModel{
		textInput:  ti,
		engine:     engine,
		ctx:        engine.NewContext(),
		logBuf:     logBuf,
		history:    make([]historyEntry, 0),
		cmdHistory: make([]string, 0),
		historyIdx: -1,
	}
}

func (m replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen)
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keyClear):
			m.history = nil
			return m, nil

		case key.Matches(msg, keyVars):
			m.showVars = !m.showVars
			return m, nil

		case key.Matches(msg, keyHelp):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, keyHistoryPrev):
			m.recallHistory(-1)
			return m, nil

		case key.Matches(msg, keyHistoryNext):
			m.recallHistory(+1)
			return m, nil

		case key.Matches(msg, keyComplete):
			m = m.handleAutocomplete()
			return m, nil

		case key.Matches(msg, keySubmit):
			return m.submit()
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// recallHistory steps through previously submitted lines; stepping past the
// newest entry restores an empty prompt.
func (m *replModel) recallHistory(dir int) {
	if len(m.cmdHistory) == 0 {
		return
	}
	switch {
	case dir < 0 && m.historyIdx == -1:
		m.historyIdx = len(m.cmdHistory) - 1
	case dir < 0 && m.historyIdx > 0:
		m.historyIdx--
	case dir > 0 && m.historyIdx == -1:
		return
	case dir > 0 && m.historyIdx < len(m.cmdHistory)-1:
		m.historyIdx++
	case dir > 0:
		m.historyIdx = -1
		m.textInput.SetValue("")
		return
	}
	m.textInput.SetValue(m.cmdHistory[m.historyIdx])
	m.textInput.CursorEnd()
}

func (m replModel) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	if input == "" {
		return m, nil
	}
	m.textInput.SetValue("")
	m.historyIdx = -1

	if strings.HasPrefix(input, ":") {
		cm, cmd := m.handleCommand(input)
		return cm, cmd
	}

	output, isErr := m.evaluate(input)
	m.history = append(m.history, historyEntry{input: input, output: output, isErr: isErr})
	m.cmdHistory = append(m.cmdHistory, input)
	return m, nil
}

func (m replModel) handleCommand(input string) (replModel, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]

	switch cmd {
	case ":help", ":h":
		m.showHelp = !m.showHelp
	case ":clear", ":c":
		m.history = make([]historyEntry, 0)
	case ":vars", ":v":
		m.showVars = !m.showVars
	case ":reset", ":r":
		m.ctx.ClearVars()
		m.engine.Domain().ClearGlobals()
		m.history = append(m.history, historyEntry{
			input:  input,
			output: "Session reset",
		})
	case ":quit", ":q":
		m.quitting = true
		return m, tea.Quit
	default:
		m.history = append(m.history, historyEntry{
			input:  input,
			output: fmt.Sprintf("Unknown command: %s", cmd),
			isErr:  true,
		})
	}
	return m, nil
}

func (m replModel) handleAutocomplete() replModel {
	input := m.textInput.Value()
	if input == "" {
		return m
	}

	words := strings.Fields(input)
	if len(words) == 0 {
		return m
	}
	lastWord := words[len(words)-1]

	var completions []string
	add := func(name string) {
		if strings.HasPrefix(name, lastWord) {
			completions = append(completions, name)
		}
	}
	for _, kw := range scriptKeywords {
		add(kw)
	}
	for _, name := range m.engine.Domain().FunctionNames() {
		add(name)
	}
	for _, name := range m.ctx.LocalNames() {
		add(name)
	}
	for _, name := range m.engine.Domain().GlobalNames() {
		add(name)
	}
	sort.Strings(completions)

	if len(completions) == 1 {
		prefix := strings.TrimSuffix(input, lastWord)
		m.textInput.SetValue(prefix + completions[0])
		m.textInput.CursorEnd()
	} else if len(completions) > 1 {
		m.history = append(m.history, historyEntry{
			output: "Completions: " + strings.Join(completions, ", "),
		})
	}

	return m
}

// evaluate runs one line synchronously on the session context. Variables
// declared with var persist across lines; log output is folded into the
// reported result.
func (m *replModel) evaluate(input string) (string, bool) {
	m.logBuf.Reset()
	result, err := m.engine.Eval(m.ctx, input)
	logged := strings.TrimRight(m.logBuf.String(), "\n")
	if err != nil {
		out := err.Error()
		if frame := err.CodeFrame(input); frame != "" {
			out += "\n" + frame
		}
		if logged != "" {
			out = logged + "\n" + out
		}
		return out, true
	}

	m.ctx.SetMemberByName("_", result, ember.SetCreate)

	out := result.String()
	if logged != "" {
		out = logged + "\n" + out
	}
	return out, false
}

func (m replModel) View() string {
	if !m.initialized {
		return "starting..."
	}
	if m.quitting {
		return ""
	}

	sections := []string{
		headerStyle.Render("emberscript") + "  " + mutedStyle.Render("interactive session, :help for commands"),
		"",
	}
	sections = append(sections, m.renderHistory()...)
	if m.showVars {
		sections = append(sections, m.renderVarsPanel(), "")
	}
	if m.showHelp {
		sections = append(sections, renderHelpPanel(), "")
	}
	sections = append(sections, m.textInput.View(), "", m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m replModel) renderHistory() []string {
	visible := m.height - 8
	if m.showHelp {
		visible -= 11
	}
	if m.showVars {
		visible -= len(m.ctx.LocalNames()) + 3
	}
	start := 0
	if len(m.history) > visible {
		start = len(m.history) - visible
	}

	var lines []string
	for _, entry := range m.history[start:] {
		if entry.input != "" {
			lines = append(lines, promptStyle.Render("ember> ")+entry.input)
		}
		style := resultStyle
		if entry.isErr {
			style = errorStyle
		}
		for _, out := range strings.Split(entry.output, "\n") {
			lines = append(lines, "  "+style.Render(out))
		}
		lines = append(lines, "")
	}
	return lines
}

func (m replModel) renderFooter() string {
	parts := make([]string, 0, len(footerShortcuts))
	for _, s := range footerShortcuts {
		parts = append(parts, helpKeyStyle.Render(s.key)+helpDescStyle.Render(" "+s.desc))
	}
	return strings.Join(parts, "  ")
}

func (m replModel) renderVarsPanel() string {
	names := append(m.ctx.LocalNames(), m.engine.Domain().GlobalNames()...)
	if len(names) == 0 {
		return panelStyle.Render(mutedStyle.Render("No variables defined"))
	}
	sort.Strings(names)

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Variables"))
	nameStyle := lipgloss.NewStyle().Foreground(highlightColor)
	for _, name := range names {
		v, ok := m.ctx.MemberByName(name, ember.MaskContent)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s = %s", nameStyle.Render(name), v.String()))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderHelpPanel() string {
	help := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "Navigate command history"},
		{"Tab", "Autocomplete"},
		{"Enter", "Execute statement"},
		{":help", "Toggle this help"},
		{":vars", "Toggle variables panel"},
		{":clear", "Clear history"},
		{":reset", "Reset session variables"},
		{":quit", "Exit"},
	}

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Help"))
	for _, h := range help {
		lines = append(lines, fmt.Sprintf("  %s  %s",
			helpKeyStyle.Render(fmt.Sprintf("%-8s", h.key)),
			helpDescStyle.Render(h.desc)))
	}

	return panelStyle.Render(strings.Join(lines, "\n"))
}

func runREPL() error {
	p := tea.NewProgram(newREPLModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
