// ABOUTME: Capture source interfaces and acquisition errors
// ABOUTME: Describes device constraints passed to capture backends
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/harperreed/voicecoach/pkg/audio"
)

var (
	// ErrUnavailable is returned when the input source cannot be acquired
	ErrUnavailable = errors.New("capture unavailable")

	// ErrStreamEnded is reported when an acquired stream stops delivering audio
	ErrStreamEnded = errors.New("capture stream ended")
)

// Constraints are the device hints requested from a capture backend.
// Echo cancellation, noise suppression and gain control are requests to the
// device; backends that cannot honour them capture without them.
type Constraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints returns the speech capture constraints the relay expects
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       audio.CaptureFormat.SampleRate,
		Channels:         audio.CaptureFormat.Channels,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Source acquires an input stream
type Source interface {
	// Open acquires the device; it may block on permission or hardware setup
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired input stream
type Stream interface {
	// Blocks delivers captured mono float blocks; closed when the stream ends
	Blocks() <-chan []float32

	// Close releases the device
	Close() error
}

// Clock provides the time used for rate limiting
type Clock interface {
	Now() time.Time
}

// Sender delivers encoded frames to the relay
type Sender interface {
	SendAudio(samples []int16) error
}

// Gate reports whether captured frames may leave the client
type Gate interface {
	CanEmit() bool
}

// GateFunc adapts a function to Gate
type GateFunc func() bool

// CanEmit implements Gate
func (f GateFunc) CanEmit() bool { return f() }
