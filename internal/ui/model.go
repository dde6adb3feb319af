// ABOUTME: Bubbletea model for the transport TUI
// ABOUTME: Shows session stats and maps keys to play, pause and stop
package ui

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	tea "github.com/charmbracelet/bubbletea"
)

// RefreshInterval is how often stats are polled
const RefreshInterval = 250 * time.Millisecond

// Transport is the session surface the TUI drives
type Transport interface {
	Play() error
	Pause() error
	Stop() error
	Stats() feed.Stats
}

// Model represents the TUI state
type Model struct {
	transport Transport
	title     string
	backend   string

	stats       feed.Stats
	deviceState string
	lastErr     error
	finished    bool

	width  int
	height int
}

// tickMsg triggers a stats refresh
type tickMsg time.Time

// StatusMsg updates TUI state from outside the program
type StatusMsg struct {
	// DeviceState is the source state reported by the device
	DeviceState string

	// Err is shown until the next successful command
	Err error

	// Finished marks the stream as over
	Finished bool
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tick()
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.transport != nil {
		m.stats = m.transport.Stats()
	}
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.transport == nil {
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	var err error
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p", " ":
		if m.stats.Intent {
			err = m.transport.Pause()
		} else {
			err = m.transport.Play()
		}
	case "s":
		err = m.transport.Stop()
	default:
		return m, nil
	}

	m.lastErr = err
	m.refresh()
	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.DeviceState != "" {
		m.deviceState = msg.DeviceState
	}
	if msg.Err != nil {
		m.lastErr = msg.Err
	}
	if msg.Finished {
		m.finished = true
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderTransport()
	s += m.renderStats()
	s += m.renderHelp()
	return s
}

// renderHeader renders the title and format
func (m Model) renderHeader() string {
	format := "(negotiating)"
	if m.stats.Format.SampleRate > 0 {
		f := m.stats.Format
		format = fmt.Sprintf("%dHz %s %s", f.SampleRate, channelName(f.Channels), f.Encoding)
	}

	return fmt.Sprintf(`┌─ ringfeed ───────────────────────────────────────────┐
│ Source:  %-44s │
│ Format:  %-44s │
│ Backend: %-44s │
├──────────────────────────────────────────────────────┤
`, truncate(m.title, 44), format, m.backend)
}

// renderTransport renders intent, device state and the ring
func (m Model) renderTransport() string {
	intent := "Stopped"
	if m.stats.Intent {
		intent = "Playing"
	}
	if m.finished {
		intent = "Finished"
	}
	state := m.deviceState
	if state == "" {
		state = "-"
	}

	s := fmt.Sprintf("│ Intent:  %-10s Device: %-24s │\n", intent, state)
	s += fmt.Sprintf("│ Ring:    [%s] %d queued, %d frames/buffer%-4s │\n",
		renderRing(m.stats.Queued, m.poolSize()), m.stats.Queued, m.stats.FrameBudget, "")
	if m.lastErr != nil {
		s += fmt.Sprintf("│ Error:   %-44s │\n", truncate(m.lastErr.Error(), 44))
	}
	return s
}

// renderStats renders the session counters
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Buffers: %-8d Frames: %-12d Reconf: %-4d │
│ Resumes: %-8d Drops:  %-24d │
`, m.stats.BuffersSubmitted, m.stats.FramesSubmitted, m.stats.Reconfigurations,
		m.stats.ForcedResumes, m.stats.Drops)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ p/space:Play/Pause  s:Stop  q:Quit                   │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) poolSize() int {
	if m.stats.PoolSize > 0 {
		return m.stats.PoolSize
	}
	return feed.DefaultPoolSize
}

// Utility functions
func renderRing(queued, size int) string {
	bar := ""
	for i := 0; i < size; i++ {
		if i < queued {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	}
	return fmt.Sprintf("%dch", channels)
}
