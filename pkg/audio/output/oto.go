// ABOUTME: Oto-based audio sink
// ABOUTME: Streams PCM through a persistent player fed by a pipe
package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/voicecoach/pkg/audio"
	"go.uber.org/zap"
)

// defaultOtoBuffer keeps the device buffer small so Render tracks playback closely
const defaultOtoBuffer = 40 * time.Millisecond

// OtoConfig holds oto sink configuration
type OtoConfig struct {
	SampleRate int
	BufferSize time.Duration
	Volume     *Volume
	Logger     *zap.Logger
}

// Oto sink implementation using the oto library
type Oto struct {
	config OtoConfig
	logger *zap.Logger

	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	closed     bool
}

// NewOto creates an oto sink; the device is opened on first Render
func NewOto(config OtoConfig) *Oto {
	if config.SampleRate <= 0 {
		config.SampleRate = audio.PlaybackSampleRate
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaultOtoBuffer
	}
	if config.Volume == nil {
		config.Volume = NewVolume()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Oto{
		config: config,
		logger: config.Logger.Named("oto"),
	}
}

// Volume returns the sink's gain stage
func (o *Oto) Volume() *Volume {
	return o.config.Volume
}

// open initializes the device (must hold o.mu)
func (o *Oto) open() error {
	if o.otoCtx != nil {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   o.config.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   o.config.BufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx

	// Create pipe for continuous streaming
	o.pipeReader, o.pipeWriter = io.Pipe()

	// Create persistent player that reads from the pipe
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.logger.Info("Audio output initialized",
		zap.Int("sample_rate", o.config.SampleRate),
		zap.Duration("buffer", o.config.BufferSize))

	return nil
}

// Render writes the frame to the player; blocks until the player has read it
func (o *Oto) Render(ctx context.Context, frame audio.Frame) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err := o.open(); err != nil {
		o.mu.Unlock()
		return err
	}
	writer := o.pipeWriter
	o.mu.Unlock()

	if frame.SampleRate != 0 && frame.SampleRate != o.config.SampleRate {
		o.logger.Warn("Frame sample rate differs from device rate",
			zap.Int("frame_rate", frame.SampleRate),
			zap.Int("device_rate", o.config.SampleRate))
	}

	data := audio.EncodePCM16LE(audio.FloatToPCM16(o.config.Volume.Apply(frame.Samples)))

	written := make(chan error, 1)
	go func() {
		_, err := writer.Write(data)
		written <- err
	}()

	select {
	case err := <-written:
		if err != nil {
			return fmt.Errorf("pipe write failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The pending write finishes once the player drains or the pipe closes
		return ctx.Err()
	}
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
	}
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			o.logger.Warn("Closing player failed", zap.Error(err))
		}
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.logger.Warn("Suspending audio context failed", zap.Error(err))
		}
	}
	return nil
}
