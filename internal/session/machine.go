// ABOUTME: Session state machine for the voice relay client
// ABOUTME: Owns session state and serializes every event on one goroutine
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/voicecoach/internal/clock"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/metrics"
	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/protocol"
	"go.uber.org/zap"
)

const eventBuffer = 64

// Transport is the duplex channel to the relay
type Transport interface {
	Connect(ctx context.Context) error
	Send(kind protocol.Kind, payload interface{}) error
	Close() error
}

// Capture is the microphone pipeline
type Capture interface {
	// Start blocks until the device is acquired or acquisition fails
	Start(ctx context.Context) error
	Stop()

	// Running reports whether a device is held
	Running() bool
}

// Playback is the agent audio queue
type Playback interface {
	Enqueue(frame audio.Frame)
	Clear()
}

// Config holds machine configuration
type Config struct {
	Transport Transport
	Capture   Capture
	Playback  Playback
	View      View
	Settings  *config.Config
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// NewSessionID generates session ids; defaults to uuid
	NewSessionID func() string
}

// Stats tracks machine counters
type Stats struct {
	Inbound     int64
	Ignored     int64
	AudioFrames int64
	Turns       int64
	Notices     int64
}

// Machine is the only writer of session state
type Machine struct {
	transport Transport
	capture   Capture
	playback  Playback
	view      View
	settings  *config.Config
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	newID     func() string
	handlers  map[protocol.Kind]handler

	events chan event
	done   chan struct{}

	// postMu orders posts against loop exit so no event is stranded
	postMu sync.RWMutex
	exited bool

	// Owned by the event loop
	state         State
	rendered      State
	wantListening bool
	acquiring     bool
	connectGen    uint64
	connectCancel context.CancelFunc
	closed        bool
	runCtx        context.Context

	snapshot atomic.Pointer[State]
	gate     atomic.Bool

	transcriptMu sync.Mutex
	transcript   []Turn

	inbound     atomic.Int64
	ignored     atomic.Int64
	audioFrames atomic.Int64
	turns       atomic.Int64
	notices     atomic.Int64
}

// New creates a machine in Disconnected/Idle with the configured defaults
func New(cfg Config) (*Machine, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("session: transport is required")
	}
	if cfg.Capture == nil {
		return nil, fmt.Errorf("session: capture is required")
	}
	if cfg.Playback == nil {
		return nil, fmt.Errorf("session: playback is required")
	}
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if cfg.View == nil {
		cfg.View = nopView{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}

	m := &Machine{
		transport: cfg.Transport,
		capture:   cfg.Capture,
		playback:  cfg.Playback,
		view:      cfg.View,
		settings:  cfg.Settings,
		clock:     cfg.Clock,
		logger:    cfg.Logger.Named("session"),
		metrics:   cfg.Metrics,
		newID:     cfg.NewSessionID,
		events:    make(chan event, eventBuffer),
		done:      make(chan struct{}),
		runCtx:    context.Background(),
		state: State{
			Connection: Disconnected,
			Recording:  Idle,
			Language:   cfg.Settings.DefaultLanguage,
			Mode:       cfg.Settings.DefaultMode,
		},
	}
	m.handlers = m.dispatchTable()

	initial := m.state
	m.snapshot.Store(&initial)
	return m, nil
}

// Run processes events until ctx is cancelled, then tears the session down
func (m *Machine) Run(ctx context.Context) error {
	defer m.exit()

	m.runCtx = ctx
	m.publish()

	for {
		select {
		case <-ctx.Done():
			m.teardown()
			m.publish()
			return nil
		case ev := <-m.events:
			ev.apply(m)
			m.publish()
			if m.closed {
				return nil
			}
		}
	}
}

// Start begins or resumes listening
func (m *Machine) Start() {
	m.post(startEvent{})
}

// Stop stops listening and clears playback; the relay connection stays open
func (m *Machine) Stop() {
	m.post(stopEvent{})
}

// Close stops the session and closes the relay connection. It returns once
// teardown has completed or the loop has exited.
func (m *Machine) Close() {
	ack := make(chan struct{})
	if !m.post(closeEvent{ack: ack}) {
		return
	}
	select {
	case <-ack:
	case <-m.done:
	}
}

// Deliver hands an inbound relay message to the machine
func (m *Machine) Deliver(in protocol.Inbound) {
	m.post(inboundEvent{in: in})
}

// ConnectionLost reports an unexpected end of the relay connection
func (m *Machine) ConnectionLost(err error) {
	m.post(disconnectEvent{err: err})
}

// CaptureLost reports that the microphone stopped delivering audio
func (m *Machine) CaptureLost(err error) {
	m.post(captureLostEvent{err: err})
}

// CanEmit reports whether captured audio may leave the client
func (m *Machine) CanEmit() bool {
	return m.gate.Load()
}

// State returns the latest published state
func (m *Machine) State() State {
	return *m.snapshot.Load()
}

// Transcript returns the turns of the active session
func (m *Machine) Transcript() []Turn {
	m.transcriptMu.Lock()
	defer m.transcriptMu.Unlock()
	return append([]Turn(nil), m.transcript...)
}

// Stats returns machine counters
func (m *Machine) Stats() Stats {
	return Stats{
		Inbound:     m.inbound.Load(),
		Ignored:     m.ignored.Load(),
		AudioFrames: m.audioFrames.Load(),
		Turns:       m.turns.Load(),
		Notices:     m.notices.Load(),
	}
}

// post queues an event; it reports false once the loop has exited
func (m *Machine) post(ev event) bool {
	m.postMu.RLock()
	defer m.postMu.RUnlock()

	if m.exited {
		return false
	}
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// exit stops accepting events and settles the ones left behind
func (m *Machine) exit() {
	close(m.done)

	m.postMu.Lock()
	m.exited = true
	m.postMu.Unlock()

	for {
		select {
		case ev := <-m.events:
			m.settle(ev)
		default:
			return
		}
	}
}

// settle releases resources held by an event the loop will never apply
func (m *Machine) settle(ev event) {
	switch e := ev.(type) {
	case closeEvent:
		close(e.ack)
	case connectResult:
		if e.err == nil {
			_ = m.transport.Close()
		}
	case captureResult:
		if e.err == nil {
			m.capture.Stop()
		}
	}
}

// publish exposes the state to readers and renders it when it changed
func (m *Machine) publish() {
	s := m.state
	m.snapshot.Store(&s)
	m.gate.Store(s.CanEmit())

	if s == m.rendered {
		return
	}
	m.rendered = s

	m.metrics.SetConnection(int(s.Connection))
	m.metrics.SetRecording(s.Recording == Listening)
	m.view.Render(s)
}

func (m *Machine) notify(level NoticeLevel, format string, args ...interface{}) {
	ttl := m.settings.Notice.InfoTTL
	if level == NoticeError {
		ttl = m.settings.Notice.ErrorTTL
	}

	n := Notice{Level: level, Text: fmt.Sprintf(format, args...), TTL: ttl}
	m.notices.Add(1)
	m.metrics.NoticeShown(level.String())
	m.view.Notify(n)
}

// event is processed on the loop goroutine
type event interface {
	apply(m *Machine)
}

type startEvent struct{}

func (startEvent) apply(m *Machine) { m.start() }

type stopEvent struct{}

func (stopEvent) apply(m *Machine) { m.stop() }

type closeEvent struct{ ack chan struct{} }

func (e closeEvent) apply(m *Machine) {
	m.teardown()
	close(e.ack)
}

type inboundEvent struct{ in protocol.Inbound }

func (e inboundEvent) apply(m *Machine) { m.dispatch(e.in) }

type disconnectEvent struct{ err error }

func (e disconnectEvent) apply(m *Machine) { m.disconnected(e.err) }

type connectResult struct {
	gen uint64
	err error
}

func (e connectResult) apply(m *Machine) { m.connectDone(e.gen, e.err) }

type captureResult struct{ err error }

func (e captureResult) apply(m *Machine) { m.captureDone(e.err) }

type captureLostEvent struct{ err error }

func (e captureLostEvent) apply(m *Machine) { m.captureLost(e.err) }

func (m *Machine) start() {
	if m.closed {
		return
	}
	m.wantListening = true

	switch m.state.Connection {
	case Disconnected:
		m.state.SessionID = m.newID()
		m.state.Connection = Connecting
		m.resetTranscript()
		m.metrics.SessionStarted()
		m.logger.Info("Starting session", zap.String("session_id", m.state.SessionID))

		m.connectGen++
		gen := m.connectGen
		ctx, cancel := withOptionalTimeout(m.runCtx, m.settings.Relay.ConnectTimeout)
		m.connectCancel = cancel
		go func() {
			defer cancel()
			res := connectResult{gen: gen, err: m.transport.Connect(ctx)}
			if !m.post(res) {
				m.settle(res)
			}
		}()

	case Connecting:
		// Capture starts once the connection is ready

	case Connected:
		m.startCapture()
	}
}

func (m *Machine) connectDone(gen uint64, err error) {
	if gen == m.connectGen {
		m.connectCancel = nil
	}
	if gen != m.connectGen || m.state.Connection != Connecting {
		// Superseded by a stop, disconnect or teardown
		if err == nil {
			_ = m.transport.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("Connect failed", zap.String("session_id", m.state.SessionID), zap.Error(err))
		m.stop()
		m.state.Connection = Disconnected
		m.notify(NoticeError, "Could not connect to relay: %v", err)
		return
	}

	m.state.Connection = Connected
	m.logger.Info("Connected to relay", zap.String("session_id", m.state.SessionID))

	if err := m.transport.Send(protocol.KindStartListening, nil); err != nil {
		m.logger.Warn("Sending start_listening failed", zap.Error(err))
	} else {
		m.metrics.MessageSent(string(protocol.KindStartListening))
	}

	if m.wantListening {
		m.startCapture()
	}
}

// startCapture acquires the microphone off the loop
func (m *Machine) startCapture() {
	if m.state.Recording == Listening || m.acquiring {
		return
	}
	m.acquiring = true

	ctx := m.runCtx
	go func() {
		res := captureResult{err: m.capture.Start(ctx)}
		if !m.post(res) {
			m.settle(res)
		}
	}()
}

func (m *Machine) captureDone(err error) {
	m.acquiring = false

	if err != nil {
		m.logger.Warn("Microphone unavailable", zap.Error(err))
		m.wantListening = false
		m.state.Recording = Idle
		m.notify(NoticeError, "Microphone unavailable: %v", err)
		return
	}

	if !m.wantListening || m.state.Connection != Connected {
		// Stopped while the device was being acquired
		m.capture.Stop()
		return
	}

	m.state.Recording = Listening
	m.logger.Info("Listening", zap.String("session_id", m.state.SessionID))
}

// captureLost ends listening after the device went away mid-session
func (m *Machine) captureLost(err error) {
	if m.state.Recording != Listening || m.capture.Running() {
		// Already stopped, or a newer device was acquired since
		return
	}

	m.logger.Warn("Microphone lost", zap.String("session_id", m.state.SessionID), zap.Error(err))
	m.wantListening = false
	m.state.Recording = Idle
	m.notify(NoticeError, "Microphone unavailable: %v", err)
}

func (m *Machine) stop() {
	m.wantListening = false
	m.playback.Clear()
	m.capture.Stop()

	if m.state.Recording == Listening {
		m.logger.Info("Stopped listening", zap.String("session_id", m.state.SessionID))
	}
	m.state.Recording = Idle
}

// teardown stops the session and closes the relay connection
func (m *Machine) teardown() {
	if m.closed {
		return
	}
	m.stop()
	m.closed = true
	m.connectGen++
	if m.connectCancel != nil {
		m.connectCancel()
		m.connectCancel = nil
	}

	if err := m.transport.Close(); err != nil {
		m.logger.Warn("Closing transport failed", zap.Error(err))
	}
	m.state.Connection = Disconnected
	m.logger.Info("Session closed", zap.String("session_id", m.state.SessionID))
}

func (m *Machine) disconnected(err error) {
	if m.state.Connection == Disconnected {
		return
	}

	m.logger.Warn("Relay connection lost", zap.String("session_id", m.state.SessionID), zap.Error(err))
	m.connectGen++
	m.stop()
	m.state.Connection = Disconnected
	m.notify(NoticeError, "Disconnected from relay")
}

func (m *Machine) resetTranscript() {
	m.transcriptMu.Lock()
	m.transcript = nil
	m.transcriptMu.Unlock()
}

func (m *Machine) appendTurn(t Turn) {
	m.transcriptMu.Lock()
	m.transcript = append(m.transcript, t)
	m.transcriptMu.Unlock()

	m.turns.Add(1)
	m.view.AppendTurn(t)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
