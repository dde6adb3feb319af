// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the transport UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Options describes what the TUI shows
type Options struct {
	Title     string
	Backend   string
	Transport Transport
}

// NewModel creates a new TUI model
func NewModel(opts Options) Model {
	m := Model{
		transport: opts.Transport,
		title:     opts.Title,
		backend:   opts.Backend,
	}
	m.refresh()
	return m
}

// New creates the program; the caller runs it
func New(opts Options) *tea.Program {
	return tea.NewProgram(NewModel(opts), tea.WithAltScreen())
}
