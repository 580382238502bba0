// ABOUTME: Test doubles for the session machine
// ABOUTME: Fake transport, capture, playback sink and recording view
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harperreed/voicecoach/internal/clock"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/player"
	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/protocol"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	err       error
	block     chan struct{}
	connected bool
	sent      []protocol.Kind

	connects atomic.Int32
	closes   atomic.Int32
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connects.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Send(kind protocol.Kind, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return protocol.ErrNotConnected
	}
	f.sent = append(f.sent, kind)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) sentKinds() []protocol.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Kind(nil), f.sent...)
}

type fakeCapture struct {
	err     error
	block   chan struct{}
	running atomic.Bool
	starts  atomic.Int32
	stops   atomic.Int32
	entered chan struct{}
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{entered: make(chan struct{}, 8)}
}

func (f *fakeCapture) Start(ctx context.Context) error {
	f.starts.Add(1)
	f.entered <- struct{}{}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return f.err
	}
	f.running.Store(true)
	return nil
}

func (f *fakeCapture) Stop() {
	f.stops.Add(1)
	f.running.Store(false)
}

func (f *fakeCapture) Running() bool {
	return f.running.Load()
}

// lose simulates the device going away
func (f *fakeCapture) lose() {
	f.running.Store(false)
}

// heldSink blocks renders until released
type heldSink struct {
	started chan audio.Frame
	release chan struct{}

	mu       sync.Mutex
	rendered []audio.Frame
}

func newHeldSink() *heldSink {
	return &heldSink{started: make(chan audio.Frame, 16), release: make(chan struct{})}
}

func (s *heldSink) Render(ctx context.Context, frame audio.Frame) error {
	s.started <- frame
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.rendered = append(s.rendered, frame)
	s.mu.Unlock()
	return nil
}

func (s *heldSink) Close() error { return nil }

func (s *heldSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rendered)
}

type recordingView struct {
	mu      sync.Mutex
	states  []State
	turns   []Turn
	notices []Notice
}

func (v *recordingView) Render(s State) {
	v.mu.Lock()
	v.states = append(v.states, s)
	v.mu.Unlock()
}

func (v *recordingView) AppendTurn(t Turn) {
	v.mu.Lock()
	v.turns = append(v.turns, t)
	v.mu.Unlock()
}

func (v *recordingView) Notify(n Notice) {
	v.mu.Lock()
	v.notices = append(v.notices, n)
	v.mu.Unlock()
}

func (v *recordingView) lastState() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.states) == 0 {
		return State{}
	}
	return v.states[len(v.states)-1]
}

func (v *recordingView) noticeList() []Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Notice(nil), v.notices...)
}

type harness struct {
	machine   *Machine
	transport *fakeTransport
	capture   *fakeCapture
	sink      *heldSink
	queue     *player.Queue
	view      *recordingView
	clock     *clock.Manual
	cancel    context.CancelFunc
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		transport: &fakeTransport{},
		capture:   newFakeCapture(),
		sink:      newHeldSink(),
		view:      &recordingView{},
		clock:     clock.NewManual(epoch),
	}
	h.queue = player.NewQueue(player.Config{Sink: h.sink})

	ids := 0
	m, err := New(Config{
		Transport: h.transport,
		Capture:   h.capture,
		Playback:  h.queue,
		View:      h.view,
		Settings:  config.Default(),
		Clock:     h.clock,
		NewSessionID: func() string {
			ids++
			return "session-" + string(rune('0'+ids))
		},
	})
	require.NoError(t, err)
	h.machine = m
	return h
}

// run starts the event loop and queue drain
func (h *harness) run(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	loopDone := make(chan struct{})
	queueDone := make(chan struct{})
	go func() {
		_ = h.machine.Run(ctx)
		close(loopDone)
	}()
	go func() {
		h.queue.Run(ctx)
		close(queueDone)
	}()

	t.Cleanup(func() {
		cancel()
		<-loopDone
		<-queueDone
	})
	return h
}

func (h *harness) waitFor(t *testing.T, cond func(State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.machine.State()) }, 2*time.Second, 2*time.Millisecond)
}

func (h *harness) listen(t *testing.T) {
	t.Helper()
	h.machine.Start()
	h.waitFor(t, func(s State) bool { return s.Connection == Connected && s.Recording == Listening })
}

func textMessage(kind protocol.Kind, payload string) protocol.Inbound {
	return protocol.Inbound{Kind: kind, Payload: []byte(payload)}
}

func agentAudio(samples int) protocol.Inbound {
	pcm := audio.EncodePCM16LE(make([]int16, samples))
	return protocol.Inbound{Kind: protocol.KindAgentSpeaking, Audio: pcm}
}
