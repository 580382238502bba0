// ABOUTME: Client configuration with defaults, YAML file and environment overrides
// ABOUTME: Declares the language catalogue, practice modes and pipeline tuning
package config

import (
	"time"

	"github.com/harperreed/voicecoach/pkg/audio"
)

// Language is a practice language and the agent voice that speaks it
type Language struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Voice string `yaml:"voice"`
}

// Mode is a practice mode
type Mode struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// RelayConfig locates the relay
type RelayConfig struct {
	// URL is the relay endpoint; empty means browse mDNS
	URL string `yaml:"url"`

	// Path is appended to discovered relay addresses
	Path string `yaml:"path"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// CaptureConfig tunes the microphone pipeline
type CaptureConfig struct {
	// Source selects the input backend: "device" or "tone"
	Source           string        `yaml:"source"`
	SampleRate       int           `yaml:"sample_rate"`
	FrameSize        int           `yaml:"frame_size"`
	MinSendInterval  time.Duration `yaml:"min_send_interval"`
	EchoCancellation bool          `yaml:"echo_cancellation"`
	NoiseSuppression bool          `yaml:"noise_suppression"`
	AutoGainControl  bool          `yaml:"auto_gain_control"`
}

// PlaybackConfig tunes agent audio output
type PlaybackConfig struct {
	// Sink selects the output backend: "oto", "malgo" or "none"
	Sink       string        `yaml:"sink"`
	SampleRate int           `yaml:"sample_rate"`
	BufferSize time.Duration `yaml:"buffer_size"`
	Volume     int           `yaml:"volume"`
}

// NoticeConfig sets how long notices stay visible
type NoticeConfig struct {
	InfoTTL  time.Duration `yaml:"info_ttl"`
	ErrorTTL time.Duration `yaml:"error_ttl"`
}

// Config is the complete client configuration
type Config struct {
	Relay           RelayConfig    `yaml:"relay"`
	Languages       []Language     `yaml:"languages"`
	Modes           []Mode         `yaml:"modes"`
	DefaultLanguage string         `yaml:"default_language"`
	DefaultMode     string         `yaml:"default_mode"`
	Capture         CaptureConfig  `yaml:"capture"`
	Playback        PlaybackConfig `yaml:"playback"`
	Notice          NoticeConfig   `yaml:"notice"`
	MetricsAddr     string         `yaml:"metrics_addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Path:           "/ws",
			ConnectTimeout: 10 * time.Second,
		},
		Languages: []Language{
			{ID: "english", Label: "English", Voice: "en-US-Neural2-F"},
			{ID: "spanish", Label: "Spanish", Voice: "es-ES-Neural2-A"},
			{ID: "french", Label: "French", Voice: "fr-FR-Neural2-A"},
			{ID: "german", Label: "German", Voice: "de-DE-Neural2-A"},
			{ID: "italian", Label: "Italian", Voice: "it-IT-Neural2-A"},
			{ID: "portuguese", Label: "Portuguese", Voice: "pt-BR-Neural2-A"},
			{ID: "japanese", Label: "Japanese", Voice: "ja-JP-Neural2-A"},
			{ID: "korean", Label: "Korean", Voice: "ko-KR-Neural2-A"},
			{ID: "chinese", Label: "Chinese", Voice: "cmn-CN-Neural2-A"},
			{ID: "russian", Label: "Russian", Voice: "ru-RU-Neural2-A"},
			{ID: "dutch", Label: "Dutch", Voice: "nl-NL-Neural2-A"},
			{ID: "hindi", Label: "Hindi", Voice: "hi-IN-Neural2-A"},
			{ID: "arabic", Label: "Arabic", Voice: "ar-XA-Neural2-A"},
		},
		Modes: []Mode{
			{ID: "conversation", Label: "Conversation Practice"},
			{ID: "pronunciation", Label: "Pronunciation Practice"},
		},
		DefaultLanguage: "english",
		DefaultMode:     "conversation",
		Capture: CaptureConfig{
			Source:           "device",
			SampleRate:       audio.CaptureFormat.SampleRate,
			FrameSize:        audio.CaptureFrameSize,
			MinSendInterval:  100 * time.Millisecond,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
		Playback: PlaybackConfig{
			Sink:       "oto",
			SampleRate: audio.PlaybackFormat.SampleRate,
			BufferSize: 40 * time.Millisecond,
			Volume:     100,
		},
		Notice: NoticeConfig{
			InfoTTL:  3 * time.Second,
			ErrorTTL: 5 * time.Second,
		},
	}
}

// Language looks up a configured language by id
func (c *Config) Language(id string) (Language, bool) {
	for _, l := range c.Languages {
		if l.ID == id {
			return l, true
		}
	}
	return Language{}, false
}

// Mode looks up a configured mode by id
func (c *Config) Mode(id string) (Mode, bool) {
	for _, m := range c.Modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}
