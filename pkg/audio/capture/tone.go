// ABOUTME: Test tone capture source
// ABOUTME: Generates a paced 440Hz sine wave in place of a microphone
package capture

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	toneFrequency = 440.0
	toneAmplitude = 0.5
	tonePeriod    = 20 * time.Millisecond
)

// Tone is a Source producing a sine wave at real-time pace
type Tone struct {
	Frequency float64
}

// NewTone creates a 440Hz tone source
func NewTone() *Tone {
	return &Tone{Frequency: toneFrequency}
}

// Open starts generating blocks
func (t *Tone) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	freq := t.Frequency
	if freq <= 0 {
		freq = toneFrequency
	}

	s := &toneStream{
		frequency:  freq,
		sampleRate: c.SampleRate,
		blocks:     make(chan []float32, 8),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run()
	return s, nil
}

type toneStream struct {
	frequency   float64
	sampleRate  int
	sampleIndex uint64

	blocks chan []float32
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *toneStream) run() {
	defer close(s.done)
	defer close(s.blocks)

	perBlock := s.sampleRate * int(tonePeriod/time.Millisecond) / 1000
	ticker := time.NewTicker(tonePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			block := make([]float32, perBlock)
			for i := range block {
				t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
				block[i] = float32(toneAmplitude * math.Sin(2*math.Pi*s.frequency*t))
			}
			s.sampleIndex += uint64(perBlock)

			select {
			case s.blocks <- block:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *toneStream) Blocks() <-chan []float32 {
	return s.blocks
}

func (s *toneStream) Close() error {
	s.once.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}
