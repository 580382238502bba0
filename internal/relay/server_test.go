// ABOUTME: Tests for the loopback relay
// ABOUTME: Drives the relay over real sockets with the relay client and a raw dialer
package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	srv := New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) protocol.Inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	in, err := protocol.ParseText(data)
	require.NoError(t, err)
	return in
}

func writeJSON(t *testing.T, conn *websocket.Conn, kind protocol.Kind) {
	t.Helper()
	data, err := json.Marshal(protocol.Message{Type: kind})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestGreetingOnStartListening(t *testing.T) {
	_, url := startRelay(t, Config{})
	conn := dial(t, url)

	writeJSON(t, conn, protocol.KindStartListening)

	in := readText(t, conn)
	require.Equal(t, protocol.KindConversation, in.Kind)

	var text protocol.ConversationText
	require.NoError(t, in.Decode(&text))
	assert.Equal(t, protocol.RoleAssistant, text.Role)
	assert.Equal(t, DefaultGreeting, text.Content)
}

func TestSelectsConfiguredLanguageAndMode(t *testing.T) {
	_, url := startRelay(t, Config{Greeting: "hi", Language: "spanish", Mode: "pronunciation"})
	conn := dial(t, url)

	writeJSON(t, conn, protocol.KindStartListening)

	assert.Equal(t, protocol.KindConversation, readText(t, conn).Kind)

	lang := readText(t, conn)
	require.Equal(t, protocol.KindSelectLanguage, lang.Kind)
	var sel protocol.SelectLanguage
	require.NoError(t, lang.Decode(&sel))
	assert.Equal(t, "spanish", sel.Language)

	mode := readText(t, conn)
	require.Equal(t, protocol.KindSelectMode, mode.Kind)
	var selMode protocol.SelectMode
	require.NoError(t, mode.Decode(&selMode))
	assert.Equal(t, "pronunciation", selMode.Mode)
}

func TestEchoesMicAudioAsAgentAudio(t *testing.T) {
	srv, url := startRelay(t, Config{})
	conn := dial(t, url)

	samples := make([]int16, audio.CaptureFrameSize)
	for i := range samples {
		samples[i] = 1000
	}
	frame := protocol.EncodeBinary(protocol.BinaryClientAudio, audio.EncodePCM16LE(samples))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)

	in, err := protocol.ParseBinary(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindAgentSpeaking, in.Kind)

	pcm := audio.DecodePCM16LE(in.Audio)
	assert.Len(t, pcm, 3071)
	for _, s := range pcm {
		require.Equal(t, int16(1000), s)
	}

	assert.Eventually(t, func() bool { return srv.Stats().FramesEchoed == 1 },
		time.Second, 10*time.Millisecond)
}

func TestIgnoresMalformedAndUnknownFrames(t *testing.T) {
	_, url := startRelay(t, Config{Greeting: "still here"})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x09, 0x00}))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{protocol.BinaryAgentAudio, 0x00, 0x00}))
	writeJSON(t, conn, protocol.KindSelectMode)

	// The connection survives and still answers
	writeJSON(t, conn, protocol.KindStartListening)
	in := readText(t, conn)
	var text protocol.ConversationText
	require.NoError(t, in.Decode(&text))
	assert.Equal(t, "still here", text.Content)
}

func TestRelayClientRoundTrip(t *testing.T) {
	_, url := startRelay(t, Config{})

	inbound := make(chan protocol.Inbound, 10)
	client := protocol.NewClient(protocol.Config{
		URL:       url,
		ClientID:  "test",
		OnMessage: func(in protocol.Inbound) { inbound <- in },
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.NoError(t, client.Send(protocol.KindStartListening, nil))
	require.NoError(t, client.SendAudio(make([]int16, 320)))

	kinds := map[protocol.Kind]bool{}
	for len(kinds) < 2 {
		select {
		case in := <-inbound:
			kinds[in.Kind] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", kinds)
		}
	}
	assert.True(t, kinds[protocol.KindConversation])
	assert.True(t, kinds[protocol.KindAgentSpeaking])
}

func TestCloseEndsConnections(t *testing.T) {
	srv, url := startRelay(t, Config{})
	conn := dial(t, url)

	require.Eventually(t, func() bool { return srv.Stats().Active == 1 },
		time.Second, 10*time.Millisecond)

	srv.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	assert.Equal(t, int64(0), srv.Stats().Active)
	assert.Equal(t, int64(1), srv.Stats().Connections)

	// New connections are refused once closed
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	require.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestPortOf(t *testing.T) {
	assert.Equal(t, 8787, portOf(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8787}))
	assert.Equal(t, 0, portOf(&net.UnixAddr{Name: "/tmp/sock", Net: "unix"}))
}
