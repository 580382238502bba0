// ABOUTME: Audio sink interface and shared software volume
// ABOUTME: Common contract for playback backends rendering float frames
package output

import (
	"context"
	"errors"
	"sync"

	"github.com/harperreed/voicecoach/pkg/audio"
)

// ErrClosed is returned when rendering to a closed sink
var ErrClosed = errors.New("output closed")

// Sink renders frames to an audio device
type Sink interface {
	// Render plays one frame and returns once the device has consumed it.
	// Frames rendered back to back play in order without overlap.
	Render(ctx context.Context, frame audio.Frame) error

	// Close releases output resources
	Close() error
}

// Volume is a software gain stage shared by sinks
type Volume struct {
	mu     sync.RWMutex
	volume int
	muted  bool
}

// NewVolume creates a volume at full level
func NewVolume() *Volume {
	return &Volume{volume: 100}
}

// SetVolume sets the volume (0-100)
func (v *Volume) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	v.mu.Lock()
	v.volume = volume
	v.mu.Unlock()
}

// SetMuted sets mute state
func (v *Volume) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
}

// GetVolume returns current volume
func (v *Volume) GetVolume() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.volume
}

// IsMuted returns mute state
func (v *Volume) IsMuted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.muted
}

// Apply returns a scaled copy of samples
func (v *Volume) Apply(samples []float32) []float32 {
	v.mu.RLock()
	multiplier := getVolumeMultiplier(v.volume, v.muted)
	v.mu.RUnlock()

	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = s * multiplier
	}
	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(volume) / 100
}
