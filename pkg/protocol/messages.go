// ABOUTME: Voice relay message type definitions
// ABOUTME: Defines event kinds, payloads and the binary audio framing
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a relay event
type Kind string

const (
	// Client to relay
	KindStartListening Kind = "start_listening"
	KindAudioData      Kind = "audio_data"

	// Relay to client
	KindConversation   Kind = "conversation"
	KindThinking       Kind = "thinking"
	KindAgentSpeaking  Kind = "agent_speaking"
	KindSelectLanguage Kind = "select_language"
	KindSelectMode     Kind = "select_mode"
	KindError          Kind = "error"

	// Informational events forwarded from the speech agent
	KindWelcome      Kind = "welcome"
	KindOpen         Kind = "open"
	KindFunctionCall Kind = "function_call"
)

const (
	// BinaryClientAudio tags microphone PCM sent to the relay
	BinaryClientAudio byte = 0x01

	// BinaryAgentAudio tags synthesized PCM sent to the client
	BinaryAgentAudio byte = 0x04

	// BinaryHeaderSize is the size of the binary frame header (type byte)
	BinaryHeaderSize = 1
)

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMalformed is returned for frames that cannot be decoded
var ErrMalformed = errors.New("malformed message")

// Message is the top-level wrapper for all JSON messages
type Message struct {
	Type    Kind        `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ConversationText carries one transcribed or generated utterance
type ConversationText struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SelectLanguage asks the client to highlight a language
type SelectLanguage struct {
	Language string `json:"language"`
}

// SelectMode asks the client to highlight a practice mode
type SelectMode struct {
	Mode string `json:"mode"`
}

// ErrorPayload reports a relay or agent failure
type ErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// AgentSpeaking may carry base64 PCM16LE audio when sent as JSON
type AgentSpeaking struct {
	Audio []byte `json:"audio,omitempty"`
}

// Inbound is one decoded frame
type Inbound struct {
	Kind Kind

	// Payload is the raw JSON payload of a text frame
	Payload json.RawMessage

	// Audio is PCM16LE carried by a binary frame or an agent_speaking payload
	Audio []byte
}

// Decode unmarshals the payload into v. A payload nested under a "data"
// object is unwrapped first.
func (in Inbound) Decode(v interface{}) error {
	if len(in.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, in.Kind)
	}

	payload := in.Payload
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		if d := bytes.TrimSpace(wrapped.Data); len(d) > 0 && d[0] == '{' {
			payload = d
		}
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, in.Kind, err)
	}
	return nil
}

// ParseText decodes a JSON envelope
func ParseText(data []byte) (Inbound, error) {
	var raw struct {
		Type    Kind            `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	in := Inbound{Kind: raw.Type, Payload: raw.Payload}

	if in.Kind == KindAgentSpeaking && len(in.Payload) > 0 {
		var speaking AgentSpeaking
		if err := in.Decode(&speaking); err == nil {
			in.Audio = speaking.Audio
		}
	}
	return in, nil
}

// ParseBinary decodes a tagged PCM frame
func ParseBinary(data []byte) (Inbound, error) {
	if len(data) < BinaryHeaderSize {
		return Inbound{}, fmt.Errorf("%w: empty binary frame", ErrMalformed)
	}

	audio := data[BinaryHeaderSize:]
	switch data[0] {
	case BinaryClientAudio:
		return Inbound{Kind: KindAudioData, Audio: audio}, nil
	case BinaryAgentAudio:
		return Inbound{Kind: KindAgentSpeaking, Audio: audio}, nil
	}
	return Inbound{}, fmt.Errorf("%w: unknown binary type 0x%02x", ErrMalformed, data[0])
}

// EncodeBinary prefixes PCM bytes with a type tag
func EncodeBinary(msgType byte, pcm []byte) []byte {
	out := make([]byte, BinaryHeaderSize+len(pcm))
	out[0] = msgType
	copy(out[BinaryHeaderSize:], pcm)
	return out
}
