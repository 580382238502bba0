// ABOUTME: Prometheus metrics for the voice session relay
// ABOUTME: Registers counters and gauges on a private registry and serves them
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicecoach"

// Metrics contains all Prometheus metrics for the client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	CaptureFrames *prometheus.CounterVec

	// Playback metrics
	QueueDepth     prometheus.Gauge
	FramesPlayed   prometheus.Counter
	PlaybackErrors prometheus.Counter
	QueueClears    prometheus.Counter

	// Transport metrics
	MessagesIn  *prometheus.CounterVec
	MessagesOut *prometheus.CounterVec

	// Session metrics
	Connection      prometheus.Gauge
	Recording       prometheus.Gauge
	SessionsStarted prometheus.Counter
	Notices         *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CaptureFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_total",
			Help:      "Captured microphone frames by outcome",
		}, []string{"outcome"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_queue_depth",
			Help:      "Agent audio frames waiting to be played",
		}),
		FramesPlayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_frames_played_total",
			Help:      "Agent audio frames rendered to completion",
		}),
		PlaybackErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_errors_total",
			Help:      "Agent audio frames that failed to render",
		}),
		QueueClears: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_queue_clears_total",
			Help:      "Times the playback queue was cleared",
		}),

		MessagesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound relay messages by kind",
		}, []string{"kind"}),
		MessagesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound relay messages by kind",
		}, []string{"kind"}),

		Connection: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state (0 disconnected, 1 connecting, 2 connected)",
		}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording",
			Help:      "1 while the microphone is listening",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions started by the user",
		}),
		Notices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User-visible notices by level",
		}, []string{"level"}),
	}
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCapture counts one captured frame outcome
func (m *Metrics) ObserveCapture(outcome string) {
	if m == nil {
		return
	}
	m.CaptureFrames.WithLabelValues(outcome).Inc()
}

// SetQueueDepth records the playback queue length
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// FramePlayed counts a rendered frame
func (m *Metrics) FramePlayed() {
	if m == nil {
		return
	}
	m.FramesPlayed.Inc()
}

// PlaybackFailed counts a frame that failed to render
func (m *Metrics) PlaybackFailed() {
	if m == nil {
		return
	}
	m.PlaybackErrors.Inc()
}

// QueueCleared counts a playback queue clear
func (m *Metrics) QueueCleared() {
	if m == nil {
		return
	}
	m.QueueClears.Inc()
}

// MessageReceived counts an inbound message
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.MessagesIn.WithLabelValues(kind).Inc()
}

// MessageSent counts an outbound message
func (m *Metrics) MessageSent(kind string) {
	if m == nil {
		return
	}
	m.MessagesOut.WithLabelValues(kind).Inc()
}

// SetConnection records the connection state ordinal
func (m *Metrics) SetConnection(state int) {
	if m == nil {
		return
	}
	m.Connection.Set(float64(state))
}

// SetRecording records whether the microphone is listening
func (m *Metrics) SetRecording(listening bool) {
	if m == nil {
		return
	}
	if listening {
		m.Recording.Set(1)
	} else {
		m.Recording.Set(0)
	}
}

// SessionStarted counts a user start action that opened a session
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// NoticeShown counts a notice by level
func (m *Metrics) NoticeShown(level string) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(level).Inc()
}
