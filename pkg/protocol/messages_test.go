// ABOUTME: Tests for relay message decoding
// ABOUTME: Tests envelopes, wrapped payloads and binary framing
package protocol

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextEnvelope(t *testing.T) {
	in, err := ParseText([]byte(`{"type":"select_language","payload":{"language":"spanish"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindSelectLanguage, in.Kind)

	var sel SelectLanguage
	require.NoError(t, in.Decode(&sel))
	assert.Equal(t, "spanish", sel.Language)
}

func TestDecodeUnwrapsDataObject(t *testing.T) {
	in, err := ParseText([]byte(`{"type":"conversation","payload":{"data":{"role":"assistant","content":"Hola"}}}`))
	require.NoError(t, err)

	var conv ConversationText
	require.NoError(t, in.Decode(&conv))
	assert.Equal(t, RoleAssistant, conv.Role)
	assert.Equal(t, "Hola", conv.Content)
}

func TestDecodeErrorPayload(t *testing.T) {
	in, err := ParseText([]byte(`{"type":"error","payload":{"data":{"message":"quota","type":"RateLimit"}}}`))
	require.NoError(t, err)

	var e ErrorPayload
	require.NoError(t, in.Decode(&e))
	assert.Equal(t, "quota", e.Message)
	assert.Equal(t, "RateLimit", e.Type)
}

func TestDecodeWithoutPayload(t *testing.T) {
	in, err := ParseText([]byte(`{"type":"thinking"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, in.Decode(&SelectMode{}), ErrMalformed)
}

func TestParseTextRejectsGarbage(t *testing.T) {
	_, err := ParseText([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseText([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseTextAgentSpeakingAudio(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	data := `{"type":"agent_speaking","payload":{"audio":"` + base64.StdEncoding.EncodeToString(pcm) + `"}}`

	in, err := ParseText([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, pcm, in.Audio)
}

func TestParseTextAgentSpeakingWithoutAudio(t *testing.T) {
	in, err := ParseText([]byte(`{"type":"agent_speaking","payload":{"data":{"total_latency":0.4}}}`))
	require.NoError(t, err)
	assert.Empty(t, in.Audio)
}

func TestBinaryFraming(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}

	frame := EncodeBinary(BinaryAgentAudio, pcm)
	assert.Equal(t, []byte{0x04, 1, 2, 3, 4}, frame)

	in, err := ParseBinary(frame)
	require.NoError(t, err)
	assert.Equal(t, KindAgentSpeaking, in.Kind)
	assert.Equal(t, pcm, in.Audio)

	in, err = ParseBinary(EncodeBinary(BinaryClientAudio, pcm))
	require.NoError(t, err)
	assert.Equal(t, KindAudioData, in.Kind)
}

func TestParseBinaryRejectsUnknown(t *testing.T) {
	_, err := ParseBinary(nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseBinary([]byte{0x09, 0, 0})
	assert.ErrorIs(t, err, ErrMalformed)
}
