package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-dualgen/codegen"
	"github.com/wippyai/wasm-dualgen/runner"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	build    *build
	runner   *runner.Runner
	filename string
	result   string
	outputs  []outputInfo
	inputs   []textinput.Model
	trace    viewport.Model
	width    int
	height   int
	selected int
	focusIdx int
	state    modelState
}

type outputInfo struct {
	slot  codegen.Slot
	flags string
}

func (o outputInfo) callable() bool {
	return !o.slot.Abstract && !o.slot.Private
}

type modelState int

const (
	stateSelectOutput modelState = iota
	stateInputArgs
	stateShowResult
	stateShowTrace
)

func newInteractiveModel(filename string, width, height int) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		state:    stateSelectOutput,
		width:    width,
		height:   height,
	}
}

type loadedMsg struct {
	err     error
	build   *build
	runner  *runner.Runner
	outputs []outputInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	b, err := compile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	var outputs []outputInfo
	for _, w := range b.compiled.Builder.Functions() {
		outputs = append(outputs, outputInfo{slot: w.Slot(), flags: b.flags(w.Slot())})
	}

	r, err := runner.New(context.Background(), b.compiled.Module, b.hosts(), runner.Config{})
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{build: b, runner: r, outputs: outputs}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.trace.Width, m.trace.Height = m.traceSize()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if msg.String() == "q" && m.state == stateInputArgs {
				break
			}
			if m.runner != nil {
				m.runner.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectOutput && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOutput && m.selected < len(m.outputs)-1 {
				m.selected++
			}

		case "t":
			if m.state == stateSelectOutput && len(m.outputs) > 0 {
				m.showTrace()
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectOutput:
				if len(m.outputs) == 0 || !m.outputs[m.selected].callable() {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult, stateShowTrace:
				m.back()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state != stateSelectOutput {
				m.back()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.build = msg.build
		m.runner = msg.runner
		m.outputs = msg.outputs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	switch m.state {
	case stateInputArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case stateShowTrace:
		var cmd tea.Cmd
		m.trace, cmd = m.trace.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) back() {
	m.state = stateSelectOutput
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) traceSize() (int, int) {
	return max(m.width, 40), max(m.height-6, 5)
}

func (m *interactiveModel) showTrace() {
	name := m.outputs[m.selected].slot.Name
	content := "no events recorded"
	if rec, ok := m.build.trace(name); ok {
		content = rec.String()
	}
	m.trace = viewport.New(m.traceSize())
	m.trace.SetContent(content)
	m.state = stateShowTrace
}

func (m *interactiveModel) prepareInputs() {
	o := m.outputs[m.selected]
	m.inputs = make([]textinput.Model, len(o.slot.Descriptor.Params))
	names := m.paramNames(o.slot.Name)
	for i, p := range o.slot.Descriptor.Params {
		ti := textinput.New()
		ti.Placeholder = codegen.TypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		if i < len(names) && names[i] != "" {
			ti.Prompt = names[i] + ": "
		}
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) paramNames(name string) []string {
	for _, fn := range m.build.program.Functions {
		if fn.Meta.Name == name {
			return fn.Meta.ParamNames
		}
	}
	return nil
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.runner == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}

	o := m.outputs[m.selected]
	inputs := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		inputs[i] = input.Value()
	}
	args, err := encodeArgs(o.slot.Descriptor, inputs)
	if err != nil {
		return callResultMsg{err: err}
	}

	before := m.runner.Suspensions()
	results, err := m.runner.Call(context.Background(), o.slot.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	result := formatResult(o.slot.Descriptor, results)
	if n := m.runner.Suspensions() - before; n > 0 {
		result += fmt.Sprintf("  (%d suspension(s))", n)
	}
	return callResultMsg{result: result}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.build == nil {
		return "Compiling declarations..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("dualgen"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOutput:
		b.WriteString("Outputs:\n\n")
		for i, o := range m.outputs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatOutput(o)))
			} else {
				b.WriteString(cursor + m.formatOutput(o))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • t trace • q quit"))

	case stateInputArgs:
		o := m.outputs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(o.slot.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(codegen.TypeName(o.slot.Descriptor.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		o := m.outputs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(o.slot.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))

	case stateShowTrace:
		o := m.outputs[m.selected]
		b.WriteString(fmt.Sprintf("Events of %s:\n\n", funcStyle.Render(o.slot.Name)))
		b.WriteString(m.trace.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatOutput(o outputInfo) string {
	var params []string
	for _, p := range o.slot.Descriptor.Params {
		params = append(params, typeStyle.Render(codegen.TypeName(p)))
	}
	s := funcStyle.Render(o.slot.Name) + "(" + strings.Join(params, ", ") + ") -> " +
		typeStyle.Render(codegen.TypeName(o.slot.Descriptor.Result))
	if o.flags != "" {
		s += " " + flagStyle.Render("["+o.flags+"]")
	}
	return s
}

func runInteractive(filename string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	width, height, err := term.GetSize(fd)
	if err != nil {
		width, height = 80, 24
	}
	p := tea.NewProgram(newInteractiveModel(filename, width, height), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
