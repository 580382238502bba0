// ABOUTME: Session state types
// ABOUTME: Defines connection and recording states, transcript turns and notices
package session

import "time"

// Connection is the transport state of a session
type Connection int

const (
	Disconnected Connection = iota
	Connecting
	Connected
)

func (c Connection) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Recording is the microphone substate, independent of Connection
type Recording int

const (
	Idle Recording = iota
	Listening
)

func (r Recording) String() string {
	if r == Listening {
		return "listening"
	}
	return "idle"
}

// State is a snapshot of the session attributes
type State struct {
	SessionID  string
	Connection Connection
	Recording  Recording
	Language   string
	Mode       string
}

// CanEmit reports whether captured audio may be sent
func (s State) CanEmit() bool {
	return s.Connection == Connected && s.Recording == Listening
}

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one transcript entry
type Turn struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// NoticeLevel distinguishes routine notices from failures
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

func (l NoticeLevel) String() string {
	if l == NoticeError {
		return "error"
	}
	return "info"
}

// Notice is a transient user-visible message, dismissed after TTL
type Notice struct {
	Level NoticeLevel
	Text  string
	TTL   time.Duration
}

// View receives everything the user sees
type View interface {
	Render(State)
	AppendTurn(Turn)
	Notify(Notice)
}

type nopView struct{}

func (nopView) Render(State)    {}
func (nopView) AppendTurn(Turn) {}
func (nopView) Notify(Notice)   {}
