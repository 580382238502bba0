// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests session messages, notice dismissal, key actions and rendering
package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestModel(controls *Controls) Model {
	cfg := config.Default()
	m := NewModel(Options{
		Languages: cfg.Languages,
		Modes:     cfg.Modes,
		Initial:   session.State{Language: "english", Mode: "conversation"},
		Controls:  controls,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel(t *testing.T) {
	model := NewModel(Options{})

	assert.Equal(t, 100, model.volume)
	assert.False(t, model.muted)
	assert.False(t, model.showDebug)
	assert.Equal(t, session.Disconnected, model.state.Connection)
	assert.Nil(t, model.Init())
	assert.Equal(t, "Loading...", model.View())
}

func TestStateMsg(t *testing.T) {
	model := newTestModel(nil)

	model, _ = update(t, model, StateMsg(session.State{
		SessionID:  "s1",
		Connection: session.Connected,
		Recording:  session.Listening,
		Language:   "spanish",
		Mode:       "pronunciation",
	}))

	view := model.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "listening")
	assert.Contains(t, view, "[Spanish]")
	assert.Contains(t, view, "Voice: es-ES-Neural2-A")
	assert.Contains(t, view, "[Pronunciation Practice]")
	assert.NotContains(t, view, "[English]")
}

func TestTranscriptResetsOnNewSession(t *testing.T) {
	model := newTestModel(nil)
	model, _ = update(t, model, StateMsg(session.State{SessionID: "s1", Language: "english"}))
	model, _ = update(t, model, TurnMsg{Speaker: session.SpeakerUser, Text: "hola"})
	model, _ = update(t, model, TurnMsg{Speaker: session.SpeakerAgent, Text: "¡Hola! ¿Qué tal?"})

	view := model.View()
	assert.Contains(t, view, "You:")
	assert.Contains(t, view, "hola")
	assert.Contains(t, view, "Coach:")

	// Same session, new state: transcript kept
	model, _ = update(t, model, StateMsg(session.State{SessionID: "s1", Connection: session.Disconnected}))
	assert.Len(t, model.turns, 2)

	model, _ = update(t, model, StateMsg(session.State{SessionID: "s2", Connection: session.Connecting}))
	assert.Empty(t, model.turns)
	assert.Contains(t, model.View(), "Press 's' to start talking")
}

func TestTranscriptBounded(t *testing.T) {
	model := newTestModel(nil)
	for i := 0; i < maxTurns+10; i++ {
		model, _ = update(t, model, TurnMsg{Speaker: session.SpeakerUser, Text: "turn"})
	}
	assert.Len(t, model.turns, maxTurns)
}

func TestNoticeDismissedAfterTTL(t *testing.T) {
	model := newTestModel(nil)

	model, cmd := update(t, model, NoticeMsg{Level: session.NoticeError, Text: "Disconnected from relay", TTL: 5 * time.Second})
	require.NotNil(t, cmd)
	assert.Contains(t, model.View(), "Disconnected from relay")

	model, _ = update(t, model, dismissNoticeMsg{id: model.noticeSeq})
	assert.Nil(t, model.notice)
	assert.NotContains(t, model.View(), "Disconnected from relay")
}

func TestStaleDismissKeepsNewerNotice(t *testing.T) {
	model := newTestModel(nil)

	model, _ = update(t, model, NoticeMsg{Level: session.NoticeInfo, Text: "Thinking...", TTL: 3 * time.Second})
	first := model.noticeSeq
	model, _ = update(t, model, NoticeMsg{Level: session.NoticeError, Text: "boom", TTL: 5 * time.Second})

	model, _ = update(t, model, dismissNoticeMsg{id: first})
	require.NotNil(t, model.notice)
	assert.Equal(t, "boom", model.notice.Text)
}

func TestNoticeWithoutTTLStays(t *testing.T) {
	model := newTestModel(nil)
	model, cmd := update(t, model, NoticeMsg{Text: "sticky"})
	assert.Nil(t, cmd)
	assert.NotNil(t, model.notice)
}

func TestKeyActions(t *testing.T) {
	controls := NewControls()
	model := newTestModel(controls)

	model, _ = update(t, model, key("s"))
	model, _ = update(t, model, key("x"))

	require.Len(t, controls.Actions, 2)
	assert.Equal(t, ActionStart, <-controls.Actions)
	assert.Equal(t, ActionStop, <-controls.Actions)

	model, cmd := update(t, model, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, ActionQuit, <-controls.Actions)
	assert.True(t, model.quitting)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestVolumeKeys(t *testing.T) {
	controls := NewControls()
	model := newTestModel(controls)

	// Already at maximum: no change is reported
	model, _ = update(t, model, key("up"))
	assert.Equal(t, 100, model.volume)
	assert.Empty(t, controls.Volume)

	model, _ = update(t, model, key("down"))
	assert.Equal(t, 95, model.volume)
	assert.Equal(t, VolumeChangeMsg{Volume: 95}, <-controls.Volume)

	model, _ = update(t, model, key("m"))
	assert.True(t, model.muted)
	assert.Equal(t, VolumeChangeMsg{Volume: 95, Muted: true}, <-controls.Volume)
	assert.Contains(t, model.View(), "(muted)")

	for i := 0; i < 30; i++ {
		model, _ = update(t, model, key("down"))
	}
	assert.Equal(t, 0, model.volume)
}

func TestKeysWithoutControls(t *testing.T) {
	model := newTestModel(nil)
	model, _ = update(t, model, key("s"))
	model, _ = update(t, model, key("d"))
	assert.True(t, model.showDebug)
	assert.Contains(t, model.View(), "inbound")
}

func TestStatsTick(t *testing.T) {
	calls := 0
	model := NewModel(Options{Stats: func() StatsMsg {
		calls++
		return StatsMsg{Sent: 7, Played: 3, QueueDepth: 2}
	}})
	require.NotNil(t, model.Init())

	model, cmd := update(t, model, tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, calls)

	model, _ = update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})
	view := model.View()
	assert.Contains(t, view, "sent 7")
	assert.Contains(t, view, "played 3")
	assert.Contains(t, view, "queued 2")
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░", renderBar(50, 100, 10))
	assert.Equal(t, "░░░░░░░░░░", renderBar(0, 100, 10))
	assert.Equal(t, "██████████", renderBar(100, 100, 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "¿Qué...", truncate("¿Qué tal estás?", 7))
}

func TestControlsDropWhenFull(t *testing.T) {
	controls := NewControls()
	for i := 0; i < cap(controls.Actions)+5; i++ {
		controls.send(ActionStart)
	}
	assert.Len(t, controls.Actions, cap(controls.Actions))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "start", ActionStart.String())
	assert.Equal(t, "stop", ActionStop.String())
	assert.Equal(t, "quit", ActionQuit.String())
	assert.Equal(t, "unknown", Action(42).String())
}

func TestLogView(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	view := NewLogView(zap.New(core))

	view.Render(session.State{SessionID: "s1", Connection: session.Connected, Language: "french"})
	view.AppendTurn(session.Turn{Speaker: session.SpeakerAgent, Text: "Bonjour"})
	view.Notify(session.Notice{Level: session.NoticeError, Text: "Disconnected from relay"})
	view.Notify(session.Notice{Level: session.NoticeInfo, Text: "Thinking..."})

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, "connected", entries[0].ContextMap()["connection"])
	assert.Equal(t, "french", entries[0].ContextMap()["language"])
	assert.Equal(t, "Bonjour", entries[1].Message)
	assert.Equal(t, "agent", entries[1].ContextMap()["speaker"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[3].Level)
}
