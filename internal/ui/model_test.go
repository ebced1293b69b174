// ABOUTME: Tests for the server TUI model
// ABOUTME: Verifies status application, quit handling and rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestStatusMsgUpdatesModel(t *testing.T) {
	m := NewModel(make(chan struct{}, 1))

	status := Status{
		Name:       "Test Server",
		Port:       8927,
		GroupState: "playing",
		Clients: []ClientRow{
			{Name: "Kitchen", Codec: "pcm", State: "playing", Volume: 0.8},
		},
	}

	updated, _ := m.Update(StatusMsg(status))
	model := updated.(Model)

	if model.status.Name != "Test Server" {
		t.Errorf("got %s", model.status.Name)
	}
	if len(model.status.Clients) != 1 {
		t.Errorf("got %d clients", len(model.status.Clients))
	}
}

func TestQuitKeySignalsServer(t *testing.T) {
	quitChan := make(chan struct{}, 1)
	m := NewModel(quitChan)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	model := updated.(Model)

	if !model.quitting {
		t.Error("expected quitting state")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}

	select {
	case <-quitChan:
	default:
		t.Error("quit channel not signaled")
	}
}

func TestViewRendersClients(t *testing.T) {
	m := NewModel(make(chan struct{}, 1))
	updated, _ := m.Update(StatusMsg(Status{
		Name:       "Living Room Server",
		GroupState: "playing",
		Clients: []ClientRow{
			{Name: "Kitchen", Codec: "opus", State: "playing", Volume: 1.0},
			{Name: "Bedroom", Codec: "pcm", State: "paused", Volume: 0.5, Muted: true},
		},
	}))
	view := updated.(Model).View()

	for _, want := range []string{"Living Room Server", "Kitchen", "Bedroom", "opus", "muted", "Clients (2)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmptyClientList(t *testing.T) {
	m := NewModel(make(chan struct{}, 1))
	view := m.View()
	if !strings.Contains(view, "waiting for players") {
		t.Error("view missing empty-state text")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("got %s", got)
	}
	if got := truncate("a very long player name indeed", 10); got != "a very ..." {
		t.Errorf("got %s", got)
	}
}
