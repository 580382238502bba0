// ABOUTME: Device-less sink that takes real time to render
// ABOUTME: Used for headless runs where no speaker is available
package output

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/harperreed/voicecoach/pkg/audio"
)

// Paced discards audio but blocks for each frame's duration
type Paced struct {
	// Speed divides the wait; values below 1 are treated as 1
	Speed    float64
	rendered atomic.Int64
	closed   atomic.Bool
}

// NewPaced creates a real-time paced sink
func NewPaced() *Paced {
	return &Paced{Speed: 1}
}

// Render waits for the frame's duration
func (p *Paced) Render(ctx context.Context, frame audio.Frame) error {
	if p.closed.Load() {
		return ErrClosed
	}

	speed := p.Speed
	if speed < 1 {
		speed = 1
	}
	wait := time.Duration(float64(frame.Duration()) / speed)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		p.rendered.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rendered returns the number of frames played to completion
func (p *Paced) Rendered() int64 {
	return p.rendered.Load()
}

// Close marks the sink closed
func (p *Paced) Close() error {
	p.closed.Store(true)
	return nil
}
