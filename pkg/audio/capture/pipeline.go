// ABOUTME: Capture pipeline from microphone blocks to outbound PCM frames
// ABOUTME: Gates on session state and drops frames over the send rate
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/voicecoach/pkg/audio"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultMinInterval is the minimum spacing between outbound frames
	DefaultMinInterval = 100 * time.Millisecond
)

// Outcome describes what happened to one captured frame
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeGated
	OutcomeThrottled
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeGated:
		return "gated"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeDropped:
		return "dropped"
	}
	return "unknown"
}

// Config holds pipeline configuration
type Config struct {
	Source      Source
	Constraints Constraints
	Sender      Sender
	Gate        Gate
	Clock       Clock
	MinInterval time.Duration
	FrameSize   int
	Logger      *zap.Logger

	// OnFrame is called for every framed block after it has been handled
	OnFrame func(Outcome)

	// OnEnd is called when a running stream ends without Stop, for example
	// when the device is unplugged. The stream has been released by then.
	OnEnd func(error)
}

// Stats tracks pipeline counters
type Stats struct {
	Captured  int64
	Sent      int64
	Gated     int64
	Throttled int64
	Dropped   int64
}

// Pipeline forwards framed microphone audio to a Sender
type Pipeline struct {
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	stream  Stream
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	captured  atomic.Int64
	sent      atomic.Int64
	gated     atomic.Int64
	throttled atomic.Int64
	dropped   atomic.Int64
}

// NewPipeline creates a capture pipeline
func NewPipeline(config Config) (*Pipeline, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("capture: source is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("capture: sender is required")
	}
	if config.Gate == nil {
		config.Gate = GateFunc(func() bool { return true })
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.MinInterval <= 0 {
		config.MinInterval = DefaultMinInterval
	}
	if config.FrameSize <= 0 {
		config.FrameSize = audio.CaptureFrameSize
	}
	if config.Constraints.SampleRate == 0 {
		config.Constraints = DefaultConstraints()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Pipeline{
		config:  config,
		limiter: rate.NewLimiter(rate.Every(config.MinInterval), 1),
		logger:  config.Logger.Named("capture"),
	}, nil
}

// Start acquires the source and begins forwarding frames.
// It blocks until the device is acquired or acquisition fails; failures are
// wrapped with ErrUnavailable and are not retried. Starting a running
// pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	stream, err := p.config.Source.Open(ctx, p.config.Constraints)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		// Lost a race with a concurrent Start
		_ = stream.Close()
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.stream = stream
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.forward(runCtx, stream, p.done)

	p.logger.Info("Capture started",
		zap.Int("sample_rate", p.config.Constraints.SampleRate),
		zap.Int("bit_depth", audio.CaptureFormat.BitDepth),
		zap.Int("frame_size", p.config.FrameSize),
		zap.Duration("min_interval", p.config.MinInterval))

	return nil
}

// Stop halts capture and releases the device. Safe to call repeatedly.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stream, cancel, done := p.stream, p.cancel, p.done
	p.stream = nil
	p.mu.Unlock()

	cancel()
	if err := stream.Close(); err != nil {
		p.logger.Warn("Closing capture stream failed", zap.Error(err))
	}
	<-done

	p.logger.Info("Capture stopped")
}

// Running reports whether the pipeline holds an acquired stream
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns pipeline counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured:  p.captured.Load(),
		Sent:      p.sent.Load(),
		Gated:     p.gated.Load(),
		Throttled: p.throttled.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// forward frames blocks from the stream until it ends or the pipeline stops
func (p *Pipeline) forward(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)

	framer := NewFramer(p.config.FrameSize)
	blocks := stream.Blocks()

	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				p.streamEnded(stream, framer.Buffered())
				return
			}
			framer.Write(block, p.emit)
		}
	}
}

// streamEnded releases a stream that closed on its own and reports it
func (p *Pipeline) streamEnded(stream Stream, discarded int) {
	p.mu.Lock()
	if !p.running || p.stream != stream {
		// Closed by Stop
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stream = nil
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	if err := stream.Close(); err != nil {
		p.logger.Warn("Closing capture stream failed", zap.Error(err))
	}
	p.logger.Warn("Capture stream ended unexpectedly", zap.Int("discarded_samples", discarded))

	if p.config.OnEnd != nil {
		p.config.OnEnd(ErrStreamEnded)
	}
}

// emit handles one full frame
func (p *Pipeline) emit(frame []float32) {
	outcome := p.handle(frame)
	if p.config.OnFrame != nil {
		p.config.OnFrame(outcome)
	}
}

func (p *Pipeline) handle(frame []float32) Outcome {
	p.captured.Add(1)

	if !p.config.Gate.CanEmit() {
		p.gated.Add(1)
		return OutcomeGated
	}

	if !p.limiter.AllowN(p.config.Clock.Now(), 1) {
		p.throttled.Add(1)
		return OutcomeThrottled
	}

	if err := p.config.Sender.SendAudio(audio.FloatToPCM16(frame)); err != nil {
		p.dropped.Add(1)
		p.logger.Debug("Outbound frame dropped", zap.Error(err))
		return OutcomeDropped
	}

	p.sent.Add(1)
	return OutcomeSent
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
