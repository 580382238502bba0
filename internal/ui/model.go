// ABOUTME: Bubbletea model for the voice coach TUI
// ABOUTME: Defines session display state, key handling and rendering
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/session"
)

const (
	// maxTurns bounds the transcript kept by the model
	maxTurns = 50

	// visibleTurns is how many recent turns are drawn
	visibleTurns = 8

	volumeStep = 5
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	faintStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Session
	state session.State
	turns []session.Turn

	// Catalogue
	languages []config.Language
	modes     []config.Mode

	// Notice
	notice    *session.Notice
	noticeSeq int

	// Playback
	volume int
	muted  bool

	// Stats
	stats   StatsMsg
	statsFn func() StatsMsg

	// Debug
	showDebug bool

	controls *Controls
	quitting bool

	// Dimensions
	width  int
	height int
}

// StateMsg carries a new session snapshot
type StateMsg session.State

// TurnMsg appends a transcript turn
type TurnMsg session.Turn

// NoticeMsg shows a transient notice
type NoticeMsg session.Notice

// StatsMsg carries pipeline counters for the stats panel
type StatsMsg struct {
	Inbound    int64
	Ignored    int64
	Turns      int64
	Captured   int64
	Sent       int64
	Throttled  int64
	Received   int64
	Played     int64
	Failed     int64
	QueueDepth int
}

// dismissNoticeMsg clears the notice it was scheduled for
type dismissNoticeMsg struct{ id int }

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	if m.statsFn == nil {
		return nil
	}
	return tickEvery()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StateMsg:
		prev := m.state.SessionID
		m.state = session.State(msg)
		if m.state.SessionID != prev {
			m.turns = nil
		}
	case TurnMsg:
		m.appendTurn(session.Turn(msg))
	case NoticeMsg:
		return m, m.showNotice(session.Notice(msg))
	case dismissNoticeMsg:
		if msg.id == m.noticeSeq {
			m.notice = nil
		}
	case StatsMsg:
		m.stats = msg
	case tickMsg:
		if m.statsFn != nil {
			m.stats = m.statsFn()
		}
		return m, tickEvery()
	}

	return m, nil
}

// appendTurn records a turn, keeping the most recent maxTurns
func (m *Model) appendTurn(t session.Turn) {
	m.turns = append(m.turns, t)
	if len(m.turns) > maxTurns {
		m.turns = m.turns[len(m.turns)-maxTurns:]
	}
}

// showNotice replaces the current notice and schedules its dismissal
func (m *Model) showNotice(n session.Notice) tea.Cmd {
	m.noticeSeq++
	m.notice = &n
	if n.TTL <= 0 {
		return nil
	}
	id := m.noticeSeq
	return tea.Tick(n.TTL, func(time.Time) tea.Msg {
		return dismissNoticeMsg{id: id}
	})
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Voice Coach"))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString(m.renderLanguages())
	b.WriteString(m.renderModes())
	b.WriteString(m.renderNotice())
	b.WriteString(m.renderTranscript())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

// renderStatus renders connection and recording state
func (m Model) renderStatus() string {
	conn := m.state.Connection.String()
	switch m.state.Connection {
	case session.Connected:
		conn = infoStyle.Render(conn)
	case session.Connecting:
		conn = selectedStyle.Render(conn)
	default:
		conn = valueStyle.Render(conn)
	}

	rec := valueStyle.Render(m.state.Recording.String())
	if m.state.Recording == session.Listening {
		rec = errorStyle.Render("● " + m.state.Recording.String())
	}

	return fmt.Sprintf("%s %s   %s %s\n",
		headerStyle.Render("Relay:"), conn,
		headerStyle.Render("Mic:"), rec)
}

// renderLanguages renders the language selector with the voice of the selected one
func (m Model) renderLanguages() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Language: "))

	voice := ""
	for i, l := range m.languages {
		if i > 0 {
			b.WriteString(" ")
		}
		if l.ID == m.state.Language {
			b.WriteString(selectedStyle.Render("[" + l.Label + "]"))
			voice = l.Voice
		} else {
			b.WriteString(valueStyle.Render(l.Label))
		}
	}
	b.WriteString("\n")

	if voice != "" {
		b.WriteString(faintStyle.Render("Voice: " + voice))
		b.WriteString("\n")
	}
	return b.String()
}

// renderModes renders the practice mode selector
func (m Model) renderModes() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Mode: "))
	for i, mode := range m.modes {
		if i > 0 {
			b.WriteString(" ")
		}
		if mode.ID == m.state.Mode {
			b.WriteString(selectedStyle.Render("[" + mode.Label + "]"))
		} else {
			b.WriteString(valueStyle.Render(mode.Label))
		}
	}
	b.WriteString("\n\n")
	return b.String()
}

// renderNotice renders the current notice, styled by level
func (m Model) renderNotice() string {
	if m.notice == nil {
		return "\n"
	}
	if m.notice.Level == session.NoticeError {
		return errorStyle.Render(m.notice.Text) + "\n"
	}
	return infoStyle.Render(m.notice.Text) + "\n"
}

// renderTranscript renders the most recent turns
func (m Model) renderTranscript() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Conversation"))
	b.WriteString("\n")

	if len(m.turns) == 0 {
		b.WriteString(faintStyle.Render("  Press 's' to start talking"))
		b.WriteString("\n\n")
		return b.String()
	}

	width := m.width - 10
	if width < 20 {
		width = 20
	}

	start := 0
	if len(m.turns) > visibleTurns {
		start = len(m.turns) - visibleTurns
	}
	for _, t := range m.turns[start:] {
		if t.Speaker == session.SpeakerUser {
			b.WriteString(userStyle.Render("  You:   "))
		} else {
			b.WriteString(agentStyle.Render("  Coach: "))
		}
		b.WriteString(truncate(t.Text, width))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// renderControls renders the volume bar
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	return fmt.Sprintf("%s [%s] %d%%%s\n",
		headerStyle.Render("Volume:"), renderBar(m.volume, 100, 10), m.volume, muteIcon)
}

// renderStats renders pipeline statistics
func (m Model) renderStats() string {
	return valueStyle.Render(fmt.Sprintf("Mic: sent %d  throttled %d   Agent: rx %d  played %d  queued %d",
		m.stats.Sent, m.stats.Throttled, m.stats.Received, m.stats.Played, m.stats.QueueDepth)) + "\n"
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return faintStyle.Render(fmt.Sprintf("session %s  inbound %d  ignored %d  captured %d  failed %d",
		m.state.SessionID, m.stats.Inbound, m.stats.Ignored, m.stats.Captured, m.stats.Failed)) + "\n"
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return "\n" + faintStyle.Render("s:Start  x:Stop  ↑/↓:Volume  m:Mute  d:Debug  q:Quit")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.send(ActionQuit)
		return m, tea.Quit
	case "s", "enter":
		m.controls.send(ActionStart)
	case "x", "esc":
		m.controls.send(ActionStop)
	case "up", "+":
		m.setVolume(m.volume + volumeStep)
	case "down", "-":
		m.setVolume(m.volume - volumeStep)
	case "m":
		m.muted = !m.muted
		m.controls.sendVolume(VolumeChangeMsg{Volume: m.volume, Muted: m.muted})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) setVolume(v int) {
	if v > 100 {
		v = 100
	}
	if v < 0 {
		v = 0
	}
	if v == m.volume {
		return
	}
	m.volume = v
	m.controls.sendVolume(VolumeChangeMsg{Volume: m.volume, Muted: m.muted})
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
