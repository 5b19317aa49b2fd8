package ui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SecretPrefix marks a detail line that carries a one-time credential; such
// lines are rendered highlighted.
const SecretPrefix = "temp password: "

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	secretStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

type resultMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	timeout time.Duration
	action  func(context.Context) ([]string, error)

	details []string
	err     error
	done    bool
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		details, err := m.action(ctx)
		return resultMsg{details: details, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case resultMsg:
		m.details, m.err, m.done = msg.details, msg.err, true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	switch {
	case !m.done:
		b.WriteString("\nworking...\n")
		return b.String()
	case m.err != nil:
		b.WriteString(failStyle.Render("FAILED"))
		b.WriteString(": " + m.err.Error() + "\n")
	default:
		b.WriteString(okStyle.Render("OK"))
		b.WriteString("\n")
	}
	for _, d := range m.details {
		b.WriteString("- " + renderDetail(d) + "\n")
	}
	return b.String()
}

func renderDetail(d string) string {
	if strings.HasPrefix(d, SecretPrefix) {
		return secretStyle.Render(d)
	}
	return d
}

// Run executes action behind a status view and returns what it produced.
func Run(title string, timeout time.Duration, action func(context.Context) ([]string, error)) ([]string, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	final, err := tea.NewProgram(model{title: title, timeout: timeout, action: action}).Run()
	if err != nil {
		return nil, err
	}
	res := final.(model)
	return res.details, res.err
}
