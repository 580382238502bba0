// ABOUTME: Ordered playback queue for agent audio
// ABOUTME: Drains frames into a sink one at a time on a single goroutine
package player

import (
	"context"
	"sync"

	"github.com/harperreed/voicecoach/internal/metrics"
	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/audio/output"
	"go.uber.org/zap"
)

// Config holds queue configuration
type Config struct {
	Sink    output.Sink
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Stats tracks queue metrics
type Stats struct {
	Enqueued  int64
	Played    int64
	Failed    int64
	Discarded int64
}

// Queue plays frames in arrival order without overlap.
// The pending list is unbounded.
type Queue struct {
	sink    output.Sink
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending []audio.Frame
	playing bool
	stats   Stats

	wake chan struct{}
}

// NewQueue creates a playback queue
func NewQueue(config Config) *Queue {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Queue{
		sink:    config.Sink,
		logger:  config.Logger.Named("player"),
		metrics: config.Metrics,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends a frame; it starts playing if the queue was idle
func (q *Queue) Enqueue(frame audio.Frame) {
	q.mu.Lock()
	q.pending = append(q.pending, frame)
	q.playing = true
	q.stats.Enqueued++
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Clear discards pending frames. A frame already handed to the sink finishes.
func (q *Queue) Clear() {
	q.mu.Lock()
	discarded := len(q.pending)
	q.pending = nil
	q.playing = false
	q.stats.Discarded += int64(discarded)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(0)
	q.metrics.QueueCleared()

	if discarded > 0 {
		q.logger.Debug("Playback queue cleared", zap.Int("discarded", discarded))
	}
}

// Len returns the number of pending frames
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// IsPlaying reports whether a frame is pending or being rendered
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Stats returns queue statistics
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Run drains the queue until ctx is cancelled
func (q *Queue) Run(ctx context.Context) {
	for {
		frame, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		err := q.sink.Render(ctx, frame)
		if ctx.Err() != nil {
			return
		}

		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Played++
		}
		if len(q.pending) == 0 {
			q.playing = false
		}
		q.mu.Unlock()

		if err != nil {
			q.metrics.PlaybackFailed()
			q.logger.Warn("Frame render failed, skipping",
				zap.Int("samples", frame.Len()), zap.Error(err))
		} else {
			q.metrics.FramePlayed()
		}
	}
}

// next pops the head frame
func (q *Queue) next() (audio.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.playing = false
		return audio.Frame{}, false
	}

	frame := q.pending[0]
	q.pending[0] = audio.Frame{}
	q.pending = q.pending[1:]
	q.playing = true

	q.metrics.SetQueueDepth(len(q.pending))
	return frame, true
}
