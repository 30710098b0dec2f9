package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mdwillman/dedalus/pkg/runner"
)

// Styles for the terminal UI.
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))            // magenta
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))            // red
)

// spinnerFrames are braille characters for smooth animation.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// thinkingMessages are displayed while the run is in flight.
var thinkingMessages = []string{
	"Thinking...",
	"Consulting the weather spirits...",
	"Routing through MCP servers...",
	"Crunching tokens...",
	"Assembling words...",
	"Waiting on the model...",
}

func randomThinkingMessage() string {
	return thinkingMessages[rand.IntN(len(thinkingMessages))] //nolint:gosec // cosmetic randomness
}

// Messages delivered to the bubbletea program.
type (
	deltaMsg string
	doneMsg  struct{ result *runner.Result }
	failMsg  struct{ err error }
)

// appModel drives the wait-for-answer UI: a spinner with elapsed time while
// the run is in flight, streamed text as it arrives, and exit once the
// result (or an error) lands.
type appModel struct {
	req       runner.Request
	thinking  string
	spin      spinner.Model
	start     time.Time
	width     int
	streamed  strings.Builder
	result    *runner.Result
	err       error
	cancelRun context.CancelFunc
}

func newAppModel(req runner.Request, cancelRun context.CancelFunc) *appModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Spinner{Frames: spinnerFrames, FPS: time.Second / 10}),
		spinner.WithStyle(spinnerStyle),
	)

	return &appModel{
		req:       req,
		thinking:  randomThinkingMessage(),
		spin:      sp,
		start:     time.Now(),
		width:     100,
		cancelRun: cancelRun,
	}
}

func (m *appModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		initMarkdownRenderer(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelRun()
			m.err = context.Canceled
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case deltaMsg:
		m.streamed.WriteString(string(msg))
		return m, nil

	case doneMsg:
		m.result = msg.result
		return m, tea.Quit

	case failMsg:
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m *appModel) View() string {
	var b strings.Builder

	target := m.req.Model
	if len(m.req.MCPServers) > 0 {
		target += " · " + strings.Join(m.req.MCPServers, ", ")
	}

	b.WriteString(headerStyle.Render("dedalus"))
	b.WriteString(" ")
	b.WriteString(statusStyle.Render(truncate(target, m.width-10)))
	b.WriteString("\n\n")

	if m.streamed.Len() > 0 {
		b.WriteString(m.streamed.String())
		b.WriteString("\n")
	}

	if m.result == nil && m.err == nil {
		elapsed := time.Since(m.start).Truncate(100 * time.Millisecond)
		fmt.Fprintf(&b, "%s %s %s\n",
			m.spin.View(),
			spinnerStyle.Render(m.thinking),
			statusStyle.Render(fmt.Sprintf("[%s]", elapsed)),
		)
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString("\n")
	}

	return b.String()
}

// runTUI executes the request behind a bubbletea program and returns the
// result once the model produces a final answer. Streamed deltas are shown
// live; the rendered final output is printed by the caller.
func runTUI(ctx context.Context, r *runner.Runner, req runner.Request) (*runner.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newAppModel(req, cancel)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	go func() {
		var (
			result *runner.Result
			err    error
		)

		if req.Stream {
			result, err = r.RunStream(runCtx, req, func(delta string) {
				p.Send(deltaMsg(delta))
			})
		} else {
			result, err = r.Run(runCtx, req)
		}

		if err != nil {
			p.Send(failMsg{err: err})
			return
		}
		p.Send(doneMsg{result: result})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}

	m, ok := final.(*appModel)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", final)
	}
	if m.err != nil {
		return nil, m.err
	}

	return m.result, nil
}
