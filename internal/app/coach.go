// ABOUTME: Voice coach application orchestration
// ABOUTME: Wires relay transport, capture, playback, session and UI and runs them together
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/voicecoach/internal/config"
	"github.com/harperreed/voicecoach/internal/discovery"
	"github.com/harperreed/voicecoach/internal/metrics"
	"github.com/harperreed/voicecoach/internal/player"
	"github.com/harperreed/voicecoach/internal/session"
	"github.com/harperreed/voicecoach/internal/ui"
	"github.com/harperreed/voicecoach/internal/version"
	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/audio/capture"
	"github.com/harperreed/voicecoach/pkg/audio/output"
	"github.com/harperreed/voicecoach/pkg/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options holds application configuration
type Options struct {
	Settings *config.Config

	// UseTUI runs the terminal UI; otherwise session events are logged
	UseTUI bool

	// AutoStart begins a session as soon as the app runs
	AutoStart bool

	Logger *zap.Logger

	// Source and Sink override the configured audio backends
	Source capture.Source
	Sink   output.Sink

	// View overrides the TUI or log view
	View session.View

	Dialer *websocket.Dialer
}

// Coach represents the client application
type Coach struct {
	opts     Options
	settings *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics

	client   *protocol.Client
	pipeline *capture.Pipeline
	sink     output.Sink
	volume   *output.Volume
	queue    *player.Queue
	machine  *session.Machine

	tui      *ui.TUI
	controls *ui.Controls
}

// New creates the application; Settings.Relay.URL must be resolved
func New(opts Options) (*Coach, error) {
	if opts.Settings == nil {
		opts.Settings = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	settings := opts.Settings
	if settings.Relay.URL == "" {
		return nil, fmt.Errorf("app: relay url is required")
	}

	c := &Coach{
		opts:     opts,
		settings: settings,
		logger:   opts.Logger,
		metrics:  metrics.New(),
	}

	c.volume = output.NewVolume()
	c.volume.SetVolume(settings.Playback.Volume)

	c.sink = opts.Sink
	if c.sink == nil {
		sink, err := newSink(settings.Playback, c.volume, c.logger)
		if err != nil {
			return nil, err
		}
		c.sink = sink
	}

	c.queue = player.NewQueue(player.Config{
		Sink:    c.sink,
		Logger:  c.logger,
		Metrics: c.metrics,
	})

	// The machine is created after the client, so callbacks resolve it late
	c.client = protocol.NewClient(protocol.Config{
		URL:       settings.Relay.URL,
		ClientID:  uuid.NewString(),
		Product:   version.Product,
		Version:   version.Version,
		OnMessage: func(in protocol.Inbound) { c.machine.Deliver(in) },
		OnClose:   func(err error) { c.machine.ConnectionLost(err) },
		Dialer:    opts.Dialer,
		Logger:    c.logger,
	})

	source := opts.Source
	if source == nil {
		var err error
		if source, err = newSource(settings.Capture, c.logger); err != nil {
			return nil, err
		}
	}

	pipeline, err := capture.NewPipeline(capture.Config{
		Source: source,
		Constraints: capture.Constraints{
			SampleRate:       settings.Capture.SampleRate,
			Channels:         audio.CaptureFormat.Channels,
			EchoCancellation: settings.Capture.EchoCancellation,
			NoiseSuppression: settings.Capture.NoiseSuppression,
			AutoGainControl:  settings.Capture.AutoGainControl,
		},
		Sender:      c.client,
		Gate:        capture.GateFunc(func() bool { return c.machine.CanEmit() }),
		MinInterval: settings.Capture.MinSendInterval,
		FrameSize:   settings.Capture.FrameSize,
		Logger:      c.logger,
		OnEnd:       func(err error) { c.machine.CaptureLost(err) },
		OnFrame: func(o capture.Outcome) {
			c.metrics.ObserveCapture(o.String())
			if o == capture.OutcomeSent {
				c.metrics.MessageSent(string(protocol.KindAudioData))
			}
		},
	})
	if err != nil {
		return nil, err
	}
	c.pipeline = pipeline

	view := opts.View
	if view == nil {
		if opts.UseTUI {
			c.controls = ui.NewControls()
			c.tui = ui.New(ui.Options{
				Languages: settings.Languages,
				Modes:     settings.Modes,
				Initial: session.State{
					Language: settings.DefaultLanguage,
					Mode:     settings.DefaultMode,
				},
				Volume:   settings.Playback.Volume,
				Controls: c.controls,
				Stats:    c.uiStats,
			})
			view = c.tui
		} else {
			view = ui.NewLogView(c.logger)
		}
	}

	c.machine, err = session.New(session.Config{
		Transport: c.client,
		Capture:   c.pipeline,
		Playback:  c.queue,
		View:      view,
		Settings:  settings,
		Logger:    c.logger,
		Metrics:   c.metrics,
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Run runs every component until ctx is cancelled or the user quits
func (c *Coach) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.machine.Run(gctx) })
	g.Go(func() error {
		c.queue.Run(gctx)
		return nil
	})

	if addr := c.settings.MetricsAddr; addr != "" {
		g.Go(func() error { return c.metrics.Serve(gctx, addr, c.logger) })
	}

	if c.tui != nil {
		g.Go(func() error {
			defer cancel()
			return c.tui.Run(gctx)
		})
		g.Go(func() error {
			c.handleControls(gctx, cancel)
			return nil
		})
	}

	if c.opts.AutoStart {
		c.machine.Start()
	}

	c.logger.Info("Voice coach running",
		zap.String("relay", c.settings.Relay.URL),
		zap.String("version", version.String()))

	err := g.Wait()

	if closeErr := c.sink.Close(); closeErr != nil {
		c.logger.Warn("Closing audio sink failed", zap.Error(closeErr))
	}
	c.logger.Info("Voice coach stopped")
	return err
}

// Start begins or resumes listening
func (c *Coach) Start() { c.machine.Start() }

// Stop stops listening
func (c *Coach) Stop() { c.machine.Stop() }

// State returns the current session state
func (c *Coach) State() session.State { return c.machine.State() }

// Transcript returns the active session's turns
func (c *Coach) Transcript() []session.Turn { return c.machine.Transcript() }

// Metrics returns the application metrics
func (c *Coach) Metrics() *metrics.Metrics { return c.metrics }

// Volume returns the playback gain stage
func (c *Coach) Volume() *output.Volume { return c.volume }

// handleControls processes key actions and volume changes from the TUI
func (c *Coach) handleControls(ctx context.Context, quit context.CancelFunc) {
	for {
		select {
		case action := <-c.controls.Actions:
			c.logger.Debug("UI action", zap.Stringer("action", action))
			switch action {
			case ui.ActionStart:
				c.machine.Start()
			case ui.ActionStop:
				c.machine.Stop()
			case ui.ActionQuit:
				quit()
				return
			}
		case vol := <-c.controls.Volume:
			c.logger.Debug("Volume change", zap.Int("volume", vol.Volume), zap.Bool("muted", vol.Muted))
			c.volume.SetVolume(vol.Volume)
			c.volume.SetMuted(vol.Muted)
		case <-ctx.Done():
			return
		}
	}
}

// uiStats gathers counters for the TUI stats panel
func (c *Coach) uiStats() ui.StatsMsg {
	ms := c.machine.Stats()
	cs := c.pipeline.Stats()
	qs := c.queue.Stats()
	return ui.StatsMsg{
		Inbound:    ms.Inbound,
		Ignored:    ms.Ignored,
		Turns:      ms.Turns,
		Captured:   cs.Captured,
		Sent:       cs.Sent,
		Throttled:  cs.Throttled,
		Received:   ms.AudioFrames,
		Played:     qs.Played,
		Failed:     qs.Failed,
		QueueDepth: c.queue.Len(),
	}
}

// ResolveRelay fills Relay.URL from mDNS when it is empty
func ResolveRelay(ctx context.Context, settings *config.Config, logger *zap.Logger) error {
	if settings.Relay.URL != "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Starting relay discovery...")
	disc := discovery.NewManager(discovery.Config{
		Path:   settings.Relay.Path,
		Logger: logger,
	})
	defer disc.Stop()

	server, err := disc.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("discover relay: %w", err)
	}
	settings.Relay.URL = server.URL()
	logger.Info("Discovered relay", zap.String("name", server.Name), zap.String("url", settings.Relay.URL))
	return nil
}

func newSink(cfg config.PlaybackConfig, volume *output.Volume, logger *zap.Logger) (output.Sink, error) {
	switch cfg.Sink {
	case "", "oto":
		return output.NewOto(output.OtoConfig{
			SampleRate: cfg.SampleRate,
			BufferSize: cfg.BufferSize,
			Volume:     volume,
			Logger:     logger,
		}), nil
	case "malgo":
		return output.NewMalgo(output.MalgoConfig{
			SampleRate: cfg.SampleRate,
			Volume:     volume,
			Logger:     logger,
		}), nil
	case "none":
		return output.NewPaced(), nil
	}
	return nil, fmt.Errorf("%w: unknown playback sink %q", config.ErrInvalid, cfg.Sink)
}

func newSource(cfg config.CaptureConfig, logger *zap.Logger) (capture.Source, error) {
	switch cfg.Source {
	case "", "device":
		return capture.NewMalgo(logger), nil
	case "tone":
		return capture.NewTone(), nil
	}
	return nil, fmt.Errorf("%w: unknown capture source %q", config.ErrInvalid, cfg.Source)
}
