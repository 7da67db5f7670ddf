package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/vaultsync/internal/sync"
)

var errPromptCancelled = errors.New("cancelled by user")

const (
	txtPasswordPrompt   = "Enter the encryption password, empty disables encryption"
	txtConfirmPrompt    = "Enter it again"
	txtPasswordMismatch = "Passwords do not match"
	txtSyncHelp         = "Press 'Ctrl+C' to stop after the current step."
	txtPromptHelp       = "Press 'Enter' to submit. 'Esc' or 'Ctrl+C' to quit."
)

var (
	titleStyle   = cyan.Bold(true)
	helpStyle    = gray
	errorStyle   = red
	spinnerStyle = cyan
)

// --- sync progress ---

type syncStatusMsg sync.SyncStatus

type syncProgressMsg struct {
	done     int
	total    int
	key      string
	decision sync.Decision
}

type syncDoneMsg struct {
	result *sync.RunResult
	err    error
}

type syncModel struct {
	spinner  spinner.Model
	progress progress.Model

	status   sync.SyncStatus
	done     int
	total    int
	key      string
	decision sync.Decision

	stopping bool
	finished bool
	err      error
	cancel   context.CancelFunc
}

func newSyncModel(cancel context.CancelFunc) syncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return syncModel{
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		status:   sync.StatusIdle,
		cancel:   cancel,
	}
}

func (m syncModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m syncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.stopping {
			// the run notices the cancel and reports back with syncDoneMsg
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case syncStatusMsg:
		m.status = sync.SyncStatus(msg)
		return m, nil

	case syncProgressMsg:
		m.done, m.total = msg.done, msg.total
		m.key, m.decision = msg.key, msg.decision
		return m, nil

	case syncDoneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-10, 10), 60)
	}
	return m, nil
}

func (m syncModel) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m syncModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("vaultsync"))
	b.WriteString("\n\n")

	if m.finished {
		if m.err != nil {
			b.WriteString(errorStyle.Render("ERROR: " + m.err.Error()))
		} else {
			b.WriteString(green.Render(string(sync.StatusFinish)))
		}
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), string(m.status))
	if m.total > 0 {
		fmt.Fprintf(&b, "\n%s %d/%d\n", m.progress.ViewAs(m.percent()), m.done, m.total)
		fmt.Fprintf(&b, "%s %s\n", categoryStyle(m.decision.Category().String()).Render(string(m.decision)), m.key)
	}

	b.WriteString("\n")
	if m.stopping {
		b.WriteString(yellow.Render("stopping..."))
	} else {
		b.WriteString(helpStyle.Render(txtSyncHelp))
	}
	b.WriteString("\n")
	return b.String()
}

// runSyncTUI runs one sync while drawing its progress on out.
func runSyncTUI(ctx context.Context, syncer *sync.Syncer, out io.Writer) (*sync.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSyncModel(cancel), tea.WithOutput(out))

	syncer.OnStatus = func(status sync.SyncStatus) {
		p.Send(syncStatusMsg(status))
	}
	syncer.OnProgress = func(done, total int, key string, decision sync.Decision) {
		p.Send(syncProgressMsg{done: done, total: total, key: key, decision: decision})
	}
	defer func() {
		syncer.OnStatus, syncer.OnProgress = nil, nil
	}()

	finished := make(chan syncDoneMsg, 1)
	go func() {
		result, err := syncer.Run(ctx)
		msg := syncDoneMsg{result: result, err: err}
		finished <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		return nil, fmt.Errorf("sync tui: %w", err)
	}

	msg := <-finished
	return msg.result, msg.err
}

// --- password prompt ---

type passwordModel struct {
	input     textinput.Model
	first     string
	confirm   bool
	errMsg    string
	submitted bool
}

func newPasswordModel() passwordModel {
	input := textinput.New()
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 256
	input.Width = 40
	input.PromptStyle = green
	input.TextStyle = green
	input.Focus()

	return passwordModel{input: input}
}

func (m passwordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m passwordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			value := m.input.Value()
			m.input.Reset()
			if !m.confirm {
				m.first = value
				m.confirm = true
				m.errMsg = ""
				return m, nil
			}
			if value != m.first {
				m.first = ""
				m.confirm = false
				m.errMsg = txtPasswordMismatch
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m passwordModel) View() string {
	var b strings.Builder
	if m.confirm {
		b.WriteString(txtConfirmPrompt)
	} else {
		b.WriteString(txtPasswordPrompt)
	}
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	if m.errMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(m.errMsg))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(txtPromptHelp))
	b.WriteString("\n")
	return b.String()
}

// promptPassword asks for the password twice without echoing it.
func promptPassword(in io.Reader, out io.Writer) (string, error) {
	final, err := tea.NewProgram(newPasswordModel(), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	m, ok := final.(passwordModel)
	if !ok || !m.submitted {
		return "", errPromptCancelled
	}
	return m.first, nil
}
