// ABOUTME: Configuration loading and validation
// ABOUTME: Layers YAML and environment over defaults and checks the result
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvServer      = "VOICECOACH_SERVER"
	EnvLanguage    = "VOICECOACH_LANGUAGE"
	EnvMetricsAddr = "VOICECOACH_METRICS_ADDR"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Load reads the YAML file at path over the defaults and validates the result.
// An empty path yields the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, Validate(cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the result
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. A missing file is not an error; existing variables win.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment via lookup
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvServer); ok && strings.TrimSpace(v) != "" {
		cfg.Relay.URL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLanguage); ok && strings.TrimSpace(v) != "" {
		cfg.DefaultLanguage = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all failures, each wrapping ErrInvalid.
func Validate(cfg *Config) error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if len(cfg.Languages) == 0 {
		fail("languages must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Languages))
	for i, l := range cfg.Languages {
		if l.ID == "" {
			fail("languages[%d].id is required", i)
			continue
		}
		if seen[l.ID] {
			fail("duplicate language %q", l.ID)
		}
		seen[l.ID] = true
	}
	if _, ok := cfg.Language(cfg.DefaultLanguage); !ok {
		fail("default_language %q is not a configured language", cfg.DefaultLanguage)
	}

	if len(cfg.Modes) == 0 {
		fail("modes must not be empty")
	}
	if _, ok := cfg.Mode(cfg.DefaultMode); !ok {
		fail("default_mode %q is not a configured mode", cfg.DefaultMode)
	}

	if cfg.Relay.URL != "" && !strings.HasPrefix(cfg.Relay.URL, "ws://") && !strings.HasPrefix(cfg.Relay.URL, "wss://") {
		fail("relay.url %q must start with ws:// or wss://", cfg.Relay.URL)
	}

	switch cfg.Capture.Source {
	case "device", "tone":
	default:
		fail("capture.source %q is invalid; valid values: device, tone", cfg.Capture.Source)
	}
	// The relay only accepts 16 kHz mono and always answers at 24 kHz
	if cfg.Capture.SampleRate != audio.CaptureFormat.SampleRate {
		fail("capture.sample_rate %d is unsupported; the relay expects %d", cfg.Capture.SampleRate, audio.CaptureFormat.SampleRate)
	}
	if cfg.Capture.FrameSize <= 0 {
		fail("capture.frame_size must be positive")
	}
	if cfg.Capture.MinSendInterval <= 0 {
		fail("capture.min_send_interval must be positive")
	}

	switch cfg.Playback.Sink {
	case "oto", "malgo", "none":
	default:
		fail("playback.sink %q is invalid; valid values: oto, malgo, none", cfg.Playback.Sink)
	}
	if cfg.Playback.SampleRate != audio.PlaybackFormat.SampleRate {
		fail("playback.sample_rate %d is unsupported; agent audio is %d", cfg.Playback.SampleRate, audio.PlaybackFormat.SampleRate)
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 100 {
		fail("playback.volume must be within 0-100")
	}

	if cfg.Notice.InfoTTL <= 0 || cfg.Notice.ErrorTTL <= 0 {
		fail("notice ttls must be positive")
	}

	return errors.Join(errs...)
}
