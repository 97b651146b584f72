// Package repl implements the Read-Eval-Print Loop for splisp.
//
// The REPL provides an interactive interface for entering splisp source,
// compiling it through the full pipeline (reader, scoper, lowerer,
// generator) and running it on a single persistent [vm.Machine], so a
// define submitted on one line is visible to expressions submitted on
// later lines. The same persistence applies one stage earlier: every
// submission resolves against one persistent [scope.Scoper] rather than
// a fresh one, so binding ids keep allocating forward instead of
// restarting at zero, and a name a scoper has not yet heard of is still
// unresolvable on the next submission. It uses the Charm libraries
// (Bubbletea, Bubbles, and Lipgloss) for an interactive terminal
// interface with history and syntax-highlighted input, in the same shape
// as the teacher's REPL.
//
// The main entry point is Start, which initializes and runs the REPL
// with the given username.
package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"splisp/core"
	"splisp/gen"
	"splisp/isa"
	"splisp/scope"
	"splisp/sexp"
	"splisp/vm"
)

const (
	// Prompt is the default prompt for the REPL.
	Prompt = ">> "

	// ContPrompt is the continuation prompt used in multiline input mode.
	ContPrompt = ".. "
)

// Options contains configuration options for the REPL.
type Options struct {
	NoColor bool // Disable syntax highlighting and colored output
	Debug   bool // Record each submission's disassembly for the :dis command
}

// Start initializes and runs the REPL with the given username and options.
func Start(username string, options Options) {
	p := tea.NewProgram(initialModel(username, options))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
	}
}

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	identifierStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F8F8F2"))

	literalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	delimiterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9"))
)

// evalResultMsg carries the outcome of one background evaluation back to
// Update.
type evalResultMsg struct {
	output  string
	isError bool
	elapsed time.Duration
	disasm  string
}

// model is the state of the running REPL.
type model struct {
	textInput       textinput.Model
	history         []historyEntry
	machine         *vm.Machine
	scoper          *scope.Scoper
	lastResult      string
	lastDisasm      string
	username        string
	evaluating      bool
	currentInput    string
	multilineBuffer string
	isMultiline     bool
	spinner         spinner.Model
	options         Options
}

type historyEntry struct {
	input          string
	output         string
	isError        bool
	evaluationTime time.Duration
}

func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

func initialModel(username string, options Options) model {
	ti := textinput.New()
	ti.Placeholder = "Enter splisp code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	image := vm.NewImage(nil, nil)
	return model{
		textInput: ti,
		history:   []historyEntry{},
		machine:   vm.New(image, 0),
		scoper:    scope.New(),
		username:  username,
		spinner:   s,
		options:   options,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// isBalanced reports whether parentheses in input are balanced, so the
// REPL knows when to keep collecting lines versus submit for evaluation.
func isBalanced(input string) bool {
	depth := 0
	for _, char := range input {
		switch char {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// evalCmd compiles input and runs it on the shared machine, extending
// its instruction segment rather than rebuilding it, so bindings made by
// an earlier submission stay live. It resolves against the session's one
// persistent Scoper rather than a fresh one, for the same reason: a fresh
// scope.New() would reset binding-id allocation to zero (clobbering the
// first submission's global slots) and would never have seen names
// defined by earlier submissions.
func evalCmd(input string, m *vm.Machine, sc *scope.Scoper, debug bool) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		nodes, err := sexp.Read(input)
		if err != nil {
			return evalResultMsg{output: fmt.Sprintf("read error: %s", err), isError: true, elapsed: time.Since(start)}
		}
		if err := sc.Run(nodes); err != nil {
			return evalResultMsg{output: fmt.Sprintf("resolve error: %s", err), isError: true, elapsed: time.Since(start)}
		}
		if err := sc.Resolve(nodes); err != nil {
			return evalResultMsg{output: fmt.Sprintf("resolve error: %s", err), isError: true, elapsed: time.Since(start)}
		}
		prog, err := core.Lower(nodes)
		if err != nil {
			return evalResultMsg{output: fmt.Sprintf("lower error: %s", err), isError: true, elapsed: time.Since(start)}
		}
		instrs, err := gen.Generate(prog)
		if err != nil {
			return evalResultMsg{output: fmt.Sprintf("generate error: %s", err), isError: true, elapsed: time.Since(start)}
		}
		instrs = append(instrs, isa.Instruction{Op: isa.Halt})

		var disasm string
		if debug {
			disasm = isa.String(isa.EncodeProgram(instrs), len(instrs))
		}

		entry := m.Extend(instrs)
		state := m.RunFrom(entry)
		if state != vm.Halt {
			return evalResultMsg{
				output:  fmt.Sprintf("runtime error: %s", state),
				isError: true,
				elapsed: time.Since(start),
				disasm:  disasm,
			}
		}

		output := "nil"
		if stack := m.DataStack(); len(stack) > 0 {
			output = fmt.Sprintf("%d", stack[len(stack)-1])
		}

		return evalResultMsg{output: output, elapsed: time.Since(start), disasm: disasm}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		m.evaluating = false
		if msg.disasm != "" {
			m.lastDisasm = msg.disasm
		}
		if !msg.isError {
			m.lastResult = msg.output
		}
		m.history = append(m.history, historyEntry{
			input:          m.currentInput,
			output:         msg.output,
			isError:        msg.isError,
			evaluationTime: msg.elapsed,
		})
		m.currentInput = ""
		return m, nil

	case tea.KeyMsg:
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()

			if meta, ok := m.tryMeta(input); ok {
				m.textInput.SetValue("")
				m.history = append(m.history, historyEntry{output: meta})
				return m, nil
			}

			if input == "" {
				if m.isMultiline {
					if m.multilineBuffer == "" {
						m.isMultiline = false
						return m, nil
					}
					return m.submit(m.multilineBuffer, "")
				}
				return m, nil
			}

			if m.isMultiline {
				m.multilineBuffer += "\n" + input
				m.textInput.SetValue("")
				if isBalanced(m.multilineBuffer) {
					return m.submit(m.multilineBuffer, "")
				}
				return m, nil
			}

			if !isBalanced(input) {
				m.isMultiline = true
				m.multilineBuffer = input
				m.textInput.SetValue("")
				return m, nil
			}

			return m.submit(input, "")
		}
	}

	if !m.evaluating {
		m.textInput, cmd = m.textInput.Update(msg)
	}

	if m.evaluating {
		return m, m.spinner.Tick
	}

	return m, cmd
}

// submit starts evaluating buffer in the background.
func (m model) submit(buffer, _ string) (tea.Model, tea.Cmd) {
	m.evaluating = true
	m.currentInput = buffer
	m.textInput.SetValue("")
	m.isMultiline = false
	return m, evalCmd(buffer, m.machine, m.scoper, m.options.Debug)
}

// tryMeta handles the `:`-prefixed REPL commands. It never touches the
// machine's execution state.
func (m *model) tryMeta(input string) (string, bool) {
	switch strings.TrimSpace(input) {
	case ":dis":
		if m.lastDisasm == "" {
			return "no disassembly recorded; :dis needs the REPL started with -d and a submitted expression", true
		}
		return m.lastDisasm, true
	case ":copy":
		if m.lastResult == "" {
			return "nothing to copy yet", true
		}
		if err := clipboard.WriteAll(m.lastResult); err != nil {
			return fmt.Sprintf("clipboard error: %s", err), true
		}
		return "copied " + m.lastResult + " to clipboard", true
	}
	return "", false
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.applyStyle(titleStyle, " splisp REPL "))
	s.WriteString("\n")

	if m.username != "" {
		s.WriteString(fmt.Sprintf("\nHello %s! Type splisp expressions, or :dis / :copy\n", m.username))
	}
	s.WriteString("\n")

	for _, entry := range m.history {
		if entry.input != "" {
			lines := strings.Split(entry.input, "\n")
			for i, line := range lines {
				if i == 0 {
					s.WriteString(m.applyStyle(promptStyle, Prompt))
				} else {
					s.WriteString(m.applyStyle(promptStyle, ContPrompt))
				}
				s.WriteString(m.highlightCode(line))
				s.WriteString("\n")
			}
		}

		if entry.isError {
			s.WriteString(m.applyStyle(errorStyle, entry.output))
		} else {
			s.WriteString(m.applyStyle(resultStyle, entry.output))
		}

		if entry.evaluationTime > 10*time.Millisecond {
			s.WriteString(m.applyStyle(historyStyle, fmt.Sprintf(" (%.2fs)", entry.evaluationTime.Seconds())))
		}

		s.WriteString("\n\n")
	}

	if m.evaluating {
		s.WriteString(m.applyStyle(promptStyle, Prompt))
		s.WriteString(m.highlightCode(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" Evaluating...\n\n")
	}

	if m.isMultiline && !m.evaluating {
		s.WriteString(m.applyStyle(historyStyle, "Current multiline input:\n"))
		s.WriteString(m.highlightCode(m.multilineBuffer))
		s.WriteString("\n")
	}

	if !m.evaluating {
		if m.isMultiline {
			m.textInput.Prompt = m.applyStyle(promptStyle, ContPrompt)
		} else {
			m.textInput.Prompt = m.applyStyle(promptStyle, Prompt)
		}
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	helpText := "\nPress Esc or Ctrl+C/D to exit | :dis shows bytecode | :copy copies the last result"
	s.WriteString(m.applyStyle(historyStyle, helpText))

	return s.String()
}

// highlightCode applies minimal syntax highlighting to a line of splisp
// source. The token set here is small (parens and atoms only), so unlike
// the teacher's Monkey highlighter this only distinguishes keywords,
// numeric literals, and parens; everything else is an identifier.
func (m model) highlightCode(code string) string {
	var s strings.Builder
	var atom strings.Builder

	flush := func() {
		if atom.Len() == 0 {
			return
		}
		text := atom.String()
		switch {
		case isKeywordText(text):
			s.WriteString(m.applyStyle(keywordStyle, text))
		case isIntegerText(text):
			s.WriteString(m.applyStyle(literalStyle, text))
		default:
			s.WriteString(m.applyStyle(identifierStyle, text))
		}
		atom.Reset()
	}

	for _, ch := range code {
		switch {
		case ch == '(' || ch == ')':
			flush()
			s.WriteString(m.applyStyle(delimiterStyle, string(ch)))
		case ch == ' ' || ch == '\t':
			flush()
			s.WriteRune(ch)
		default:
			atom.WriteRune(ch)
		}
	}
	flush()

	return s.String()
}

func isKeywordText(text string) bool {
	_, ok := sexp.IsKeyword(text)
	return ok
}

func isIntegerText(text string) bool {
	if text == "" {
		return false
	}
	for _, ch := range text {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
