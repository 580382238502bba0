// ABOUTME: Malgo-based microphone capture
// ABOUTME: Opens a miniaudio capture device delivering mono float samples
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

const (
	// malgoPeriodMs is the device callback period
	malgoPeriodMs = 20

	// malgoBlockBuffer is the number of callback blocks buffered before dropping
	malgoBlockBuffer = 64
)

// Malgo captures from the default input device via miniaudio
type Malgo struct {
	logger *zap.Logger
}

// NewMalgo creates a malgo capture source
func NewMalgo(logger *zap.Logger) *Malgo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Malgo{logger: logger.Named("malgo")}
}

// Open initializes and starts the capture device
func (m *Malgo) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl {
		m.logger.Debug("Capture processing hints are not applied by miniaudio",
			zap.Bool("echo_cancellation", c.EchoCancellation),
			zap.Bool("noise_suppression", c.NoiseSuppression),
			zap.Bool("auto_gain_control", c.AutoGainControl))
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrUnavailable, err)
	}

	stream := &malgoStream{
		malgoCtx: malgoCtx,
		channels: c.Channels,
		blocks:   make(chan []float32, malgoBlockBuffer),
		logger:   m.logger,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.Channels)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = malgoPeriodMs

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: stream.onData,
		Stop: stream.onStop,
	})
	if err != nil {
		stream.releaseContext()
		return nil, fmt.Errorf("%w: init capture device: %v", ErrUnavailable, err)
	}
	stream.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		stream.releaseContext()
		return nil, fmt.Errorf("%w: start capture device: %v", ErrUnavailable, err)
	}

	m.logger.Info("Microphone opened",
		zap.Int("sample_rate", c.SampleRate),
		zap.Int("channels", c.Channels))

	return stream, nil
}

// malgoStream is an open capture device
type malgoStream struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	blocks   chan []float32
	logger   *zap.Logger

	closeOnce  sync.Once
	endOnce    sync.Once
	warnedFull sync.Once
}

// onData runs on the audio thread; it must not block
func (s *malgoStream) onData(_, input []byte, frameCount uint32) {
	channels := s.channels
	if channels < 1 {
		channels = 1
	}

	n := int(frameCount)
	if limit := len(input) / (4 * channels); n > limit {
		n = limit
	}

	block := make([]float32, n)
	for i := 0; i < n; i++ {
		// Downmix by taking the first channel
		off := i * channels * 4
		block[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[off:]))
	}

	select {
	case s.blocks <- block:
	default:
		s.warnedFull.Do(func() {
			s.logger.Warn("Capture consumer is behind, dropping device blocks")
		})
	}
}

// onStop runs when the device stops, including when it is unplugged.
// Closing blocks tells the pipeline no more audio is coming.
func (s *malgoStream) onStop() {
	s.endOnce.Do(func() { close(s.blocks) })
}

func (s *malgoStream) Blocks() <-chan []float32 {
	return s.blocks
}

// Close stops the device; callbacks have returned once Stop does
func (s *malgoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.device != nil {
			if stopErr := s.device.Stop(); stopErr != nil {
				err = fmt.Errorf("stop capture device: %w", stopErr)
			}
			s.device.Uninit()
		}
		s.releaseContext()
		s.endOnce.Do(func() { close(s.blocks) })
	})
	return err
}

func (s *malgoStream) releaseContext() {
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
		s.malgoCtx.Free()
		s.malgoCtx = nil
	}
}
