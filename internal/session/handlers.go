// ABOUTME: Inbound relay event handlers
// ABOUTME: Maps each event kind to the state change or side effect it causes
package session

import (
	"strings"

	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/protocol"
	"go.uber.org/zap"
)

type handler func(in protocol.Inbound)

func (m *Machine) dispatchTable() map[protocol.Kind]handler {
	return map[protocol.Kind]handler{
		protocol.KindConversation:   m.onConversation,
		protocol.KindThinking:       m.onThinking,
		protocol.KindAgentSpeaking:  m.onAgentSpeaking,
		protocol.KindSelectLanguage: m.onSelectLanguage,
		protocol.KindSelectMode:     m.onSelectMode,
		protocol.KindError:          m.onError,
		protocol.KindWelcome:        m.onInformational,
		protocol.KindOpen:           m.onInformational,
		protocol.KindFunctionCall:   m.onInformational,
	}
}

// dispatch routes one inbound message; unknown kinds are ignored
func (m *Machine) dispatch(in protocol.Inbound) {
	m.inbound.Add(1)
	m.metrics.MessageReceived(string(in.Kind))

	h, ok := m.handlers[in.Kind]
	if !ok {
		m.ignored.Add(1)
		m.logger.Debug("Ignoring unknown message", zap.String("kind", string(in.Kind)))
		return
	}
	h(in)
}

func (m *Machine) onConversation(in protocol.Inbound) {
	var conv protocol.ConversationText
	if err := in.Decode(&conv); err != nil {
		m.ignore(in, err)
		return
	}

	var speaker Speaker
	switch conv.Role {
	case protocol.RoleUser:
		speaker = SpeakerUser
	case protocol.RoleAssistant:
		speaker = SpeakerAgent
	default:
		m.logger.Debug("Ignoring conversation turn with unknown role", zap.String("role", conv.Role))
		m.ignored.Add(1)
		return
	}

	m.appendTurn(Turn{Speaker: speaker, Text: conv.Content, At: m.clock.Now()})
}

func (m *Machine) onThinking(in protocol.Inbound) {
	m.logger.Debug("Agent thinking")
	m.notify(NoticeInfo, "Thinking...")
}

func (m *Machine) onAgentSpeaking(in protocol.Inbound) {
	if len(in.Audio) == 0 {
		m.logger.Debug("Agent started speaking")
		return
	}

	frame := audio.FrameFromPCM16LE(in.Audio, audio.PlaybackFormat.SampleRate)
	if frame.Len() == 0 {
		m.ignored.Add(1)
		return
	}

	m.audioFrames.Add(1)
	m.playback.Enqueue(frame)
}

func (m *Machine) onSelectLanguage(in protocol.Inbound) {
	var sel protocol.SelectLanguage
	if err := in.Decode(&sel); err != nil {
		m.ignore(in, err)
		return
	}

	id := strings.ToLower(strings.TrimSpace(sel.Language))
	lang, ok := m.settings.Language(id)
	if !ok {
		m.logger.Warn("Ignoring unknown language", zap.String("language", sel.Language))
		m.ignored.Add(1)
		return
	}

	m.state.Language = lang.ID
	m.logger.Info("Language selected", zap.String("language", lang.ID), zap.String("voice", lang.Voice))
}

func (m *Machine) onSelectMode(in protocol.Inbound) {
	var sel protocol.SelectMode
	if err := in.Decode(&sel); err != nil {
		m.ignore(in, err)
		return
	}

	id := strings.ToLower(strings.TrimSpace(sel.Mode))
	mode, ok := m.settings.Mode(id)
	if !ok {
		m.logger.Warn("Ignoring unknown mode", zap.String("mode", sel.Mode))
		m.ignored.Add(1)
		return
	}

	m.state.Mode = mode.ID
	m.logger.Info("Mode selected", zap.String("mode", mode.ID))
}

func (m *Machine) onError(in protocol.Inbound) {
	var e protocol.ErrorPayload
	if err := in.Decode(&e); err != nil || e.Message == "" {
		m.notify(NoticeError, "The relay reported an error")
		return
	}

	if e.Type != "" {
		m.notify(NoticeError, "%s: %s", e.Type, e.Message)
		return
	}
	m.notify(NoticeError, "%s", e.Message)
}

func (m *Machine) onInformational(in protocol.Inbound) {
	m.logger.Info("Relay event", zap.String("kind", string(in.Kind)))
}

func (m *Machine) ignore(in protocol.Inbound, err error) {
	m.ignored.Add(1)
	m.logger.Debug("Ignoring malformed message", zap.String("kind", string(in.Kind)), zap.Error(err))
}
