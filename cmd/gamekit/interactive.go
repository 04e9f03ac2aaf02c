package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aws/aws-gamekit-unity-sub001/native"
	"github.com/aws/aws-gamekit-unity-sub001/threader"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#FF9900")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#232F3E"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	s        *session
	err      error
	last     *outcome
	sigs     []native.Signature
	inputs   []textinput.Model
	pending  int
	selected int
	focusIdx int
	state    modelState
}

// tickMsg drives the dispatcher: every tick runs one Update.
type tickMsg time.Time

func newInteractiveModel(s *session) *interactiveModel {
	return &interactiveModel{
		s:     s,
		sigs:  s.lib.Signatures(),
		state: stateSelectFunc,
	}
}

func (m *interactiveModel) tick() tea.Cmd {
	return tea.Tick(m.s.cfg.Dispatcher.TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.tick()
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		// completions run here, on the TUI goroutine, so they may touch m
		if err := m.s.d.Update(); err != nil {
			m.err = err
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "a":
			if m.state != stateInputArgs {
				m.s.d.Awake()
				m.pending = 0
				return m, nil
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.sigs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.sigs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					m.schedule()
					return m, nil
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				m.schedule()
				return m, nil

			case stateShowResult:
				m.state = stateSelectFunc
				m.last = nil
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.last = nil
				m.err = nil
			}
		}
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// prepareInputs builds one text input per parameter, leaving out a trailing
// u64 receiver, which invoke supplies.
func (m *interactiveModel) prepareInputs() {
	sig := m.sigs[m.selected]
	params := sig.Params
	if n := len(params); n > 0 && native.TypeName(params[n-1]) == "u64" {
		params = params[:n-1]
	}

	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = native.TypeName(p) + " or string"
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// schedule runs the selected entry point on a worker. The result arrives on
// a later tick, unless Awake discards it first.
func (m *interactiveModel) schedule() {
	sig := m.sigs[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}

	m.pending++
	threader.Call(m.s.d, func(ctx context.Context) outcome {
		return invoke(ctx, m.s.lib, sig, values)
	}, func(r outcome) {
		m.pending--
		m.last = &r
		m.err = r.err
		m.state = stateShowResult
	})
	m.inputs = nil
	m.state = stateSelectFunc
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GameKit Console"))
	b.WriteString(" ")
	b.WriteString(m.s.lib.ID())
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(fmt.Sprintf("dispatcher %s • generation %d • outstanding %d • waiting %d • pending callbacks %d",
		m.s.d.State(), m.s.d.Generation(), m.s.d.Outstanding(), m.s.d.WaitingQueueCount(), m.pending)))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.sigs) == 0 {
			b.WriteString("The library exports no entry points.\n")
		}
		for i, sig := range m.sigs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatSig(sig)))
			} else {
				b.WriteString("  " + formatSig(sig))
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • a awake • q quit"))

	case stateInputArgs:
		sig := m.sigs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(sig.Name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		if m.last != nil {
			b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(m.last.sig.Name)))
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else if m.last != nil {
			b.WriteString(resultStyle.Render(m.last.String()))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • a awake • q quit"))
	}

	return b.String()
}

func formatSig(sig native.Signature) string {
	var params []string
	for _, p := range sig.Params {
		params = append(params, typeStyle.Render(native.TypeName(p)))
	}
	result := ""
	if len(sig.Results) > 0 {
		result = " -> " + typeStyle.Render(native.TypeName(sig.Results[0]))
	}
	return funcStyle.Render(sig.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(s *session) error {
	p := tea.NewProgram(newInteractiveModel(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
