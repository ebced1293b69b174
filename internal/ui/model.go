// ABOUTME: Bubbletea model for the server TUI
// ABOUTME: Renders server status, group state and the connected client table
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ClientRow holds one client's display data.
type ClientRow struct {
	Name   string
	ID     string
	Codec  string
	State  string
	Volume float64
	Muted  bool
}

// Status is a snapshot of the server pushed into the TUI.
type Status struct {
	Name       string
	Port       int
	GroupState string
	TrackTitle string
	Clients    []ClientRow
	ChunksSent int64
}

// Model is the bubbletea model for the server display.
type Model struct {
	status    Status
	startTime time.Time
	width     int
	height    int
	quitting  bool
	quitChan  chan struct{}
}

// NewModel creates the TUI model; quitChan receives a signal when the user
// asks the server to stop.
func NewModel(quitChan chan struct{}) Model {
	return Model{
		startTime: time.Now(),
		quitChan:  quitChan,
	}
}

type tickMsg time.Time

// StatusMsg delivers a status snapshot to the model.
type StatusMsg Status

// Init starts the tick loop
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickEvery()

	case StatusMsg:
		m.status = Status(msg)
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Sendspin Server — %s", m.status.Name)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("port %d · up %s · group %s",
		m.status.Port, uptime(time.Since(m.startTime)), m.status.GroupState)))
	b.WriteString("\n\n")

	if m.status.TrackTitle != "" {
		b.WriteString(headerStyle.Render("Now Playing"))
		b.WriteString("\n  " + m.status.TrackTitle + "\n\n")
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("Clients (%d)", len(m.status.Clients))))
	b.WriteString("\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(dimStyle.Render("  waiting for players...") + "\n")
	} else {
		b.WriteString(fmt.Sprintf("  %-20s %-6s %-9s %-7s %s\n", "NAME", "CODEC", "STATE", "VOLUME", "MUTE"))
		for _, c := range m.status.Clients {
			mute := ""
			if c.Muted {
				mute = "muted"
			}
			b.WriteString(fmt.Sprintf("  %-20s %-6s %-9s %5.0f%%  %s\n",
				truncate(c.Name, 20), c.Codec, c.State, c.Volume*100, mute))
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("chunks sent: %d", m.status.ChunksSent)))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("q: quit"))
	b.WriteString("\n")

	return b.String()
}

func uptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
