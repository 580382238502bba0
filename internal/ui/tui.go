// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program as a session view and forwards key actions
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/session"
)

const updateBuffer = 64

// Action is a user request forwarded to the session
type Action int

const (
	ActionStart Action = iota
	ActionStop
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionQuit:
		return "quit"
	}
	return "unknown"
}

// VolumeChangeMsg reports a new volume or mute setting
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Controls holds channels for communication from the TUI to the app
type Controls struct {
	Actions chan Action
	Volume  chan VolumeChangeMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Actions: make(chan Action, 10),
		Volume:  make(chan VolumeChangeMsg, 10),
	}
}

// send forwards an action without blocking the UI
func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

func (c *Controls) sendVolume(v VolumeChangeMsg) {
	if c == nil {
		return
	}
	select {
	case c.Volume <- v:
	default:
	}
}

// Options configures the TUI
type Options struct {
	Languages []config.Language
	Modes     []config.Mode
	Initial   session.State
	Volume    int
	Controls  *Controls

	// Stats is polled once a second for the stats panel
	Stats func() StatsMsg
}

// NewModel creates a new TUI model
func NewModel(opts Options) Model {
	volume := opts.Volume
	if volume <= 0 || volume > 100 {
		volume = 100
	}
	return Model{
		state:     opts.Initial,
		languages: opts.Languages,
		modes:     opts.Modes,
		volume:    volume,
		controls:  opts.Controls,
		statsFn:   opts.Stats,
	}
}

// TUI runs the bubbletea program and implements session.View
type TUI struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
}

// New creates the TUI; it draws nothing until Run
func New(opts Options) *TUI {
	return &TUI{
		program: tea.NewProgram(NewModel(opts), tea.WithAltScreen()),
		updates: make(chan tea.Msg, updateBuffer),
		done:    make(chan struct{}),
	}
}

// Run blocks until the user quits or ctx is cancelled
func (t *TUI) Run(ctx context.Context) error {
	defer close(t.done)

	go func() {
		for {
			select {
			case msg := <-t.updates:
				t.program.Send(msg)
			case <-ctx.Done():
				t.program.Quit()
				return
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Render implements session.View
func (t *TUI) Render(s session.State) {
	t.push(StateMsg(s))
}

// AppendTurn implements session.View
func (t *TUI) AppendTurn(turn session.Turn) {
	t.push(TurnMsg(turn))
}

// Notify implements session.View
func (t *TUI) Notify(n session.Notice) {
	t.push(NoticeMsg(n))
}

// push queues a message for the program; it gives up once the TUI has exited
func (t *TUI) push(msg tea.Msg) {
	select {
	case t.updates <- msg:
	case <-t.done:
	}
}

var _ session.View = (*TUI)(nil)
