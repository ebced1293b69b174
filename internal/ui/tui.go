// ABOUTME: TUI runner for the server display
// ABOUTME: Wires the bubbletea program to server status updates
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI wraps the running bubbletea program.
type TUI struct {
	program  *tea.Program
	quitChan chan struct{}
}

// Run starts the TUI in the background and returns the handle.
func Run() (*TUI, error) {
	quitChan := make(chan struct{}, 1)
	program := tea.NewProgram(NewModel(quitChan), tea.WithAltScreen())

	t := &TUI{program: program, quitChan: quitChan}

	go func() {
		if _, err := program.Run(); err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		select {
		case quitChan <- struct{}{}:
		default:
		}
	}()

	return t, nil
}

// UpdateStatus pushes a status snapshot into the display.
func (t *TUI) UpdateStatus(status Status) {
	t.program.Send(StatusMsg(status))
}

// QuitRequests returns the channel signaled when the user quits.
func (t *TUI) QuitRequests() <-chan struct{} {
	return t.quitChan
}

// Stop terminates the TUI.
func (t *TUI) Stop() {
	t.program.Quit()
}
