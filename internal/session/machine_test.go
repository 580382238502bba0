// ABOUTME: Tests for the session state machine
// ABOUTME: Tests start, stop, disconnect and teardown transitions
package session

import (
	"errors"
	"testing"
	"time"

	"github.com/harperreed/voicecoach/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestInitialState(t *testing.T) {
	h := newHarness(t)

	s := h.machine.State()
	assert.Equal(t, Disconnected, s.Connection)
	assert.Equal(t, Idle, s.Recording)
	assert.Equal(t, "english", s.Language)
	assert.Equal(t, "conversation", s.Mode)
	assert.Empty(t, s.SessionID)
	assert.False(t, h.machine.CanEmit())
}

func TestStartConnectsThenListens(t *testing.T) {
	h := newHarness(t).run(t)

	h.listen(t)

	s := h.machine.State()
	assert.Equal(t, "session-1", s.SessionID)
	assert.True(t, h.machine.CanEmit())
	assert.Equal(t, []protocol.Kind{protocol.KindStartListening}, h.transport.sentKinds())
	assert.Equal(t, int32(1), h.transport.connects.Load())
	assert.Equal(t, int32(1), h.capture.starts.Load())
	assert.Equal(t, s, h.view.lastState())
}

func TestCaptureWaitsForConnection(t *testing.T) {
	h := newHarness(t)
	h.transport.block = make(chan struct{})
	h.run(t)

	h.machine.Start()
	h.waitFor(t, func(s State) bool { return s.Connection == Connecting })

	// Starting again while connecting neither redials nor acquires the microphone
	h.machine.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), h.capture.starts.Load())
	assert.Equal(t, int32(1), h.transport.connects.Load())

	close(h.transport.block)
	h.waitFor(t, func(s State) bool { return s.Recording == Listening })
	assert.Equal(t, int32(1), h.capture.starts.Load())
}

func TestStartWhenConnectedResumesCapture(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)

	h.machine.Stop()
	h.waitFor(t, func(s State) bool { return s.Recording == Idle })
	assert.Equal(t, Connected, h.machine.State().Connection)

	h.machine.Start()
	h.waitFor(t, func(s State) bool { return s.Recording == Listening })

	assert.Equal(t, int32(1), h.transport.connects.Load())
	assert.Equal(t, int32(2), h.capture.starts.Load())
	assert.Equal(t, "session-1", h.machine.State().SessionID)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t).run(t)

	// From Disconnected
	before := h.machine.State()
	h.machine.Stop()
	h.machine.Stop()
	h.machine.Deliver(protocol.Inbound{Kind: "flush"})
	require.Eventually(t, func() bool { return h.machine.Stats().Inbound == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, before, h.machine.State())

	// From Listening
	h.listen(t)
	h.machine.Stop()
	h.waitFor(t, func(s State) bool { return s.Recording == Idle })
	once := h.machine.State()

	h.machine.Stop()
	h.machine.Deliver(protocol.Inbound{Kind: "flush"})
	require.Eventually(t, func() bool { return h.machine.Stats().Inbound == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, once, h.machine.State())
	assert.Equal(t, Connected, once.Connection)
	assert.Empty(t, h.view.noticeList())
	assert.True(t, h.transport.isConnected(), "stop keeps the relay connection")
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.err = errors.New("connection refused")
	h.run(t)

	h.machine.Start()
	require.Eventually(t, func() bool { return len(h.view.noticeList()) == 1 }, time.Second, time.Millisecond)

	s := h.machine.State()
	assert.Equal(t, Disconnected, s.Connection)
	assert.Equal(t, Idle, s.Recording)
	assert.Equal(t, int32(0), h.capture.starts.Load())

	n := h.view.noticeList()[0]
	assert.Equal(t, NoticeError, n.Level)
	assert.Contains(t, n.Text, "connection refused")
	assert.Equal(t, 5*time.Second, n.TTL)
}

func TestConnectFailureClearsPlayback(t *testing.T) {
	h := newHarness(t)
	h.transport.block = make(chan struct{})
	h.transport.err = errors.New("handshake timeout")
	h.run(t)

	h.machine.Start()
	h.waitFor(t, func(s State) bool { return s.Connection == Connecting })

	for i := 0; i < 3; i++ {
		h.machine.Deliver(agentAudio(480))
	}
	<-h.sink.started
	require.Eventually(t, func() bool { return h.queue.Len() == 2 }, time.Second, time.Millisecond)

	close(h.transport.block)
	h.waitFor(t, func(s State) bool { return s.Connection == Disconnected })

	assert.Equal(t, Idle, h.machine.State().Recording)
	assert.Equal(t, 0, h.queue.Len())
	assert.GreaterOrEqual(t, h.capture.stops.Load(), int32(1))

	h.sink.release <- struct{}{}
	assert.Never(t, func() bool { return len(h.sink.started) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	notices := h.view.noticeList()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Text, "handshake timeout")
}

func TestCaptureLostReturnsToIdle(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)

	h.capture.lose()
	h.machine.CaptureLost(errors.New("capture stream ended"))
	h.waitFor(t, func(s State) bool { return s.Recording == Idle })

	s := h.machine.State()
	assert.Equal(t, Connected, s.Connection)
	assert.False(t, h.machine.CanEmit())

	notices := h.view.noticeList()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Level)
	assert.Equal(t, "Microphone unavailable: capture stream ended", notices[0].Text)

	// Start acquires the device again
	h.listen(t)
	assert.Equal(t, int32(2), h.capture.starts.Load())
}

func TestCaptureLostIgnoredWhileDeviceHeld(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)

	h.machine.CaptureLost(errors.New("capture stream ended"))
	h.machine.Deliver(textMessage(protocol.KindThinking, `{}`))
	require.Eventually(t, func() bool { return len(h.view.noticeList()) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, Listening, h.machine.State().Recording)
	assert.Equal(t, "Thinking...", h.view.noticeList()[0].Text)
}

func TestCaptureFailureIsReportedOnce(t *testing.T) {
	h := newHarness(t)
	h.capture.err = errors.New("permission denied")
	h.run(t)

	h.machine.Start()
	require.Eventually(t, func() bool { return len(h.view.noticeList()) == 1 }, time.Second, time.Millisecond)

	s := h.machine.State()
	assert.Equal(t, Connected, s.Connection)
	assert.Equal(t, Idle, s.Recording)
	assert.Contains(t, h.view.noticeList()[0].Text, "Microphone unavailable")

	// No retry
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), h.capture.starts.Load())
	assert.Len(t, h.view.noticeList(), 1)
}

func TestStopDuringAcquisitionReleasesDevice(t *testing.T) {
	h := newHarness(t)
	h.capture.block = make(chan struct{})
	h.run(t)

	h.machine.Start()
	<-h.capture.entered
	h.machine.Stop()
	h.waitFor(t, func(s State) bool { return s.Connection == Connected })

	close(h.capture.block)
	require.Eventually(t, func() bool { return h.capture.stops.Load() >= 2 }, time.Second, time.Millisecond)

	assert.False(t, h.capture.running.Load())
	assert.Equal(t, Idle, h.machine.State().Recording)
}

func TestDisconnectResetsSession(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)

	for i := 0; i < 3; i++ {
		h.machine.Deliver(agentAudio(480))
	}

	// One frame rendering, two pending
	<-h.sink.started
	require.Eventually(t, func() bool { return h.queue.Len() == 2 }, time.Second, time.Millisecond)

	h.machine.ConnectionLost(errors.New("EOF"))
	h.waitFor(t, func(s State) bool { return s.Connection == Disconnected })

	s := h.machine.State()
	assert.Equal(t, Idle, s.Recording)
	assert.Equal(t, 0, h.queue.Len())
	assert.False(t, h.capture.running.Load())
	assert.False(t, h.machine.CanEmit())

	h.sink.release <- struct{}{}
	assert.Never(t, func() bool { return len(h.sink.started) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, h.sink.count())

	notices := h.view.noticeList()
	require.NotEmpty(t, notices)
	assert.Equal(t, "Disconnected from relay", notices[len(notices)-1].Text)
}

func TestReconnectStartsNewSession(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)
	h.machine.Deliver(textMessage(protocol.KindConversation, `{"role":"user","content":"hola"}`))
	require.Eventually(t, func() bool { return len(h.machine.Transcript()) == 1 }, time.Second, time.Millisecond)

	h.machine.ConnectionLost(errors.New("reset"))
	h.waitFor(t, func(s State) bool { return s.Connection == Disconnected })

	h.machine.Start()
	h.waitFor(t, func(s State) bool { return s.Recording == Listening })

	assert.Equal(t, "session-2", h.machine.State().SessionID)
	assert.Empty(t, h.machine.Transcript())
	assert.Equal(t, int32(2), h.transport.connects.Load())
}

func TestCloseTearsDown(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)

	h.machine.Close()

	s := h.machine.State()
	assert.Equal(t, Disconnected, s.Connection)
	assert.Equal(t, Idle, s.Recording)
	assert.False(t, h.transport.isConnected())
	assert.Equal(t, int32(1), h.transport.closes.Load())

	// The loop has exited; further commands are dropped
	h.machine.Start()
	h.machine.Close()
	assert.Equal(t, int32(1), h.transport.connects.Load())
}

func TestCloseWhileConnecting(t *testing.T) {
	h := newHarness(t)
	h.transport.block = make(chan struct{})
	h.run(t)

	h.machine.Start()
	h.waitFor(t, func(s State) bool { return s.Connection == Connecting })

	h.machine.Close()
	assert.Equal(t, Disconnected, h.machine.State().Connection)
	assert.False(t, h.transport.isConnected())
}

func TestRunCancelTearsDown(t *testing.T) {
	h := newHarness(t).run(t)
	h.listen(t)

	h.cancel()
	h.waitFor(t, func(s State) bool { return s.Connection == Disconnected })
	assert.False(t, h.capture.running.Load())
}
