// ABOUTME: Malgo-based audio sink
// ABOUTME: Feeds a miniaudio playback callback from a float ring buffer
package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/harperreed/voicecoach/pkg/audio"
	"go.uber.org/zap"
)

// RingBuffer provides thread-safe circular buffer for audio samples
type RingBuffer struct {
	buffer   []float32
	readPos  int
	writePos int
	size     int
	count    int // Number of samples currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]float32, capacity),
		size:   capacity,
	}
}

// Write adds samples to the ring buffer and returns how many fit
func (rb *RingBuffer) Write(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples) && rb.count < rb.size; i++ {
		rb.buffer[rb.writePos] = samples[i]
		rb.writePos = (rb.writePos + 1) % rb.size
		rb.count++
		written++
	}
	return written
}

// Read retrieves samples from the ring buffer, zero-filling on underrun
func (rb *RingBuffer) Read(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(samples) && rb.count > 0; i++ {
		samples[i] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
		rb.count--
		read++
	}

	for i := read; i < len(samples); i++ {
		samples[i] = 0
	}

	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free slots in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// MalgoConfig holds malgo sink configuration
type MalgoConfig struct {
	SampleRate int
	Volume     *Volume
	Logger     *zap.Logger
}

// Malgo sink implementation using malgo/miniaudio
type Malgo struct {
	config MalgoConfig
	logger *zap.Logger

	mu         sync.Mutex
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	ringBuffer *RingBuffer
	closed     bool

	// consumed is signalled by the device callback after each read
	consumed chan struct{}
}

// NewMalgo creates a malgo sink; the device is opened on first Render
func NewMalgo(config MalgoConfig) *Malgo {
	if config.SampleRate <= 0 {
		config.SampleRate = audio.PlaybackSampleRate
	}
	if config.Volume == nil {
		config.Volume = NewVolume()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Malgo{
		config:   config,
		logger:   config.Logger.Named("malgo"),
		consumed: make(chan struct{}, 1),
	}
}

// Volume returns the sink's gain stage
func (m *Malgo) Volume() *Volume {
	return m.config.Volume
}

// open initializes the playback device (must hold m.mu)
func (m *Malgo) open() error {
	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.malgoCtx = ctx

	// 250ms of headroom between Render and the device
	m.ringBuffer = NewRingBuffer(m.config.SampleRate / 4)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			m.dataCallback(pOutput, frameCount)
		},
	})
	if err != nil {
		m.releaseContext()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.releaseContext()
		return fmt.Errorf("failed to start device: %w", err)
	}
	m.device = device

	m.logger.Info("Audio output initialized",
		zap.Int("sample_rate", m.config.SampleRate),
		zap.String("format", "f32"))

	return nil
}

// Render queues the frame and blocks until the device has read all of it
func (m *Malgo) Render(ctx context.Context, frame audio.Frame) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := m.open(); err != nil {
		m.mu.Unlock()
		return err
	}
	ring := m.ringBuffer
	m.mu.Unlock()

	samples := m.config.Volume.Apply(frame.Samples)

	for len(samples) > 0 {
		n := ring.Write(samples)
		samples = samples[n:]
		if len(samples) == 0 {
			break
		}
		if err := m.waitConsumed(ctx); err != nil {
			return err
		}
	}

	for ring.Available() > 0 {
		if err := m.waitConsumed(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Malgo) waitConsumed(ctx context.Context) error {
	select {
	case <-m.consumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dataCallback is called by malgo to fill the output buffer; it must not block
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	samples := make([]float32, frameCount)
	m.ringBuffer.Read(samples)

	for i, s := range samples {
		binary.LittleEndian.PutUint32(pOutput[i*4:], math.Float32bits(s))
	}

	select {
	case m.consumed <- struct{}{}:
	default:
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Warn("Device stop error", zap.Error(err))
		}
		m.device.Uninit()
		m.device = nil
	}
	m.releaseContext()
	return nil
}

func (m *Malgo) releaseContext() {
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warn("Malgo context uninit error", zap.Error(err))
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
}
