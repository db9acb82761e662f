// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rtfft/internal/acquire"
	applog "rtfft/internal/log"
	"rtfft/internal/sample"
)

// Source kinds.
const (
	SourceGenerator = "generator"
	SourceWAV       = "wav"
	SourceUDP       = "udp"
	SourcePortAudio = "portaudio"
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	Debug      bool            `yaml:"debug"`       // Enable debug logging.
	LogLevel   string          `yaml:"log_level"`   // "debug", "info", "warn" or "error".
	LockMemory bool            `yaml:"lock_memory"` // mlockall before the cycle starts (linux).
	TUI        bool            `yaml:"tui"`         // Run the terminal monitor.
	FFT        FFTConfig       `yaml:"fft"`
	Source     SourceConfig    `yaml:"source"`
	Transport  TransportConfig `yaml:"transport"`
	Recording  RecordingConfig `yaml:"recording"`
}

// FFTConfig holds the acquisition controller settings.
type FFTConfig struct {
	Name       string `yaml:"name"`        // Parameter prefix, published as plugin.<name>.*
	NFFT       int    `yaml:"nfft"`        // Window length.
	ApplyScale bool   `yaml:"apply_scale"` // Scale the spectrum by 1/nfft.
	DCRemove   bool   `yaml:"dc_remove"`   // Subtract the window mean.
	Enable     bool   `yaml:"enable"`      // Initial enable state.
	Mode       string `yaml:"mode"`        // "continuous" or "triggered".
}

// SourceConfig selects and configures the data source.
type SourceConfig struct {
	Kind            string          `yaml:"kind"`              // generator, wav, udp or portaudio.
	Name            string          `yaml:"name"`              // Data source identifier, e.g. ec0.s1.AI_1.
	Encoding        string          `yaml:"encoding"`          // Element encoding for generator and udp sources.
	CyclePeriod     time.Duration   `yaml:"cycle_period"`      // Real-time cycle period.
	SamplesPerCycle int             `yaml:"samples_per_cycle"` // Elements delivered per cycle.
	Generator       GeneratorConfig `yaml:"generator"`
	WAV             WAVConfig       `yaml:"wav"`
	UDP             UDPConfig       `yaml:"udp"`
	PortAudio       PortAudioConfig `yaml:"portaudio"`
}

// GeneratorConfig describes the synthetic tone.
type GeneratorConfig struct {
	SampleRate float64         `yaml:"sample_rate"`
	Offset     float64         `yaml:"offset"`
	Partials   []PartialConfig `yaml:"partials"`
}

// PartialConfig is one sine component of the generated tone.
type PartialConfig struct {
	Frequency float64 `yaml:"frequency"`
	Amplitude float64 `yaml:"amplitude"`
	Phase     float64 `yaml:"phase"`
}

// WAVConfig describes the replayed file.
type WAVConfig struct {
	Path    string `yaml:"path"`
	Channel int    `yaml:"channel"`
	Loop    bool   `yaml:"loop"`
}

// UDPConfig describes the datagram listener.
type UDPConfig struct {
	Listen      string `yaml:"listen"`
	MaxDatagram int    `yaml:"max_datagram"`
	Buffers     int    `yaml:"buffers"`
}

// PortAudioConfig describes the capture device.
type PortAudioConfig struct {
	Device          int     `yaml:"device"` // -1 for the default input device.
	Channels        int     `yaml:"channels"`
	Channel         int     `yaml:"channel"`
	SampleRate      float64 `yaml:"sample_rate"` // 0 for the device default.
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	LowLatency      bool    `yaml:"low_latency"`
}

// TransportConfig holds the publishing settings.
type TransportConfig struct {
	Log                  bool          `yaml:"log"`
	WebSocketEnabled     bool          `yaml:"websocket_enabled"`
	WebSocketAddress     string        `yaml:"websocket_address"`
	WebSocketMinInterval time.Duration `yaml:"websocket_min_interval"`
	UDPEnabled           bool          `yaml:"udp_enabled"`
	UDPTargetAddress     string        `yaml:"udp_target_address"`
	UDPSendInterval      time.Duration `yaml:"udp_send_interval"`
}

// RecordingConfig controls the raw window capture file.
type RecordingConfig struct {
	Enabled bool    `yaml:"enabled"`
	Path    string  `yaml:"path"`
	Gain    float64 `yaml:"gain"`
}

// Default returns the built-in configuration: a 1 kHz fieldbus channel with a
// 50 Hz tone, transformed over 4096 samples.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		FFT: FFTConfig{
			Name:       "fft0",
			NFFT:       4096,
			ApplyScale: true,
			Enable:     true,
			Mode:       "continuous",
		},
		Source: SourceConfig{
			Kind:            SourceGenerator,
			Name:            "ec0.s1.AI_1",
			Encoding:        "s16",
			CyclePeriod:     time.Millisecond,
			SamplesPerCycle: 1,
			Generator: GeneratorConfig{
				SampleRate: 1000,
				Partials:   []PartialConfig{{Frequency: 50, Amplitude: 1000}},
			},
			UDP: UDPConfig{
				Listen:      "127.0.0.1:9500",
				MaxDatagram: 1472,
				Buffers:     8,
			},
			PortAudio: PortAudioConfig{
				Device:          -1,
				Channels:        1,
				FramesPerBuffer: 512,
			},
		},
		Transport: TransportConfig{
			WebSocketAddress:     "127.0.0.1:8080",
			WebSocketMinInterval: 50 * time.Millisecond,
			UDPTargetAddress:     "127.0.0.1:9090",
			UDPSendInterval:      33 * time.Millisecond,
		},
		Recording: RecordingConfig{
			Path: "windows.wav",
			Gain: 1,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty, "rtfft.yaml" in the working directory is used when present and the
// built-in defaults otherwise. Environment overrides are applied after the
// file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("rtfft.yaml"); err == nil {
			path = "rtfft.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level '%s' is not a known level", c.LogLevel)
	}
	if _, err := c.AcquireConfig(); err != nil {
		return err
	}
	if strings.ContainsAny(c.FFT.Name, ". ") || c.FFT.Name == "" {
		return fmt.Errorf("fft.name '%s' must be a non-empty identifier without dots or spaces", c.FFT.Name)
	}

	s := c.Source
	if s.CyclePeriod <= 0 {
		return fmt.Errorf("source.cycle_period must be positive")
	}
	switch s.Kind {
	case SourceGenerator:
		if _, err := c.SampleEncoding(); err != nil {
			return err
		}
		if s.SamplesPerCycle <= 0 {
			return fmt.Errorf("source.samples_per_cycle must be positive")
		}
		if s.Generator.SampleRate <= 0 {
			return fmt.Errorf("source.generator.sample_rate must be positive")
		}
	case SourceWAV:
		if s.WAV.Path == "" {
			return fmt.Errorf("source.wav.path must be set for a wav source")
		}
		if s.SamplesPerCycle <= 0 {
			return fmt.Errorf("source.samples_per_cycle must be positive")
		}
	case SourceUDP:
		if _, err := c.SampleEncoding(); err != nil {
			return err
		}
		if !strings.Contains(s.UDP.Listen, ":") {
			return fmt.Errorf("source.udp.listen '%s' appears invalid (missing port?)", s.UDP.Listen)
		}
	case SourcePortAudio:
		pa := s.PortAudio
		if pa.Channels <= 0 || pa.Channel < 0 || pa.Channel >= pa.Channels {
			return fmt.Errorf("source.portaudio.channel %d invalid for %d channels", pa.Channel, pa.Channels)
		}
		if pa.FramesPerBuffer <= 0 {
			return fmt.Errorf("source.portaudio.frames_per_buffer must be positive")
		}
	default:
		return fmt.Errorf("source.kind '%s' is not one of generator, wav, udp, portaudio", s.Kind)
	}

	t := c.Transport
	if t.WebSocketEnabled && !strings.Contains(t.WebSocketAddress, ":") {
		return fmt.Errorf("transport.websocket_address '%s' appears invalid (missing port?)", t.WebSocketAddress)
	}
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Recording.Enabled && c.Recording.Path == "" {
		return fmt.Errorf("recording.path must be set when recording is enabled")
	}
	return nil
}

// AcquireConfig converts the fft and source sections to a controller
// configuration.
func (c *Config) AcquireConfig() (acquire.Config, error) {
	mode, err := acquire.ParseMode(c.FFT.Mode)
	if err != nil {
		return acquire.Config{}, fmt.Errorf("%w: fft.mode: %v", acquire.ErrConfiguration, err)
	}
	ac := acquire.Config{
		NFFT:       c.FFT.NFFT,
		ApplyScale: c.FFT.ApplyScale,
		DCRemove:   c.FFT.DCRemove,
		Enable:     c.FFT.Enable,
		Mode:       mode,
		SourceName: c.Source.Name,
	}
	if err := ac.Validate(); err != nil {
		return acquire.Config{}, err
	}
	return ac, nil
}

// SampleEncoding parses source.encoding.
func (c *Config) SampleEncoding() (sample.Encoding, error) {
	enc, err := sample.ParseEncoding(c.Source.Encoding)
	if err != nil {
		return sample.None, fmt.Errorf("source.encoding: %w", err)
	}
	if !enc.Supported() {
		return sample.None, fmt.Errorf("source.encoding '%s' is not supported", c.Source.Encoding)
	}
	return enc, nil
}

// Level returns the effective log level; debug forces LevelDebug.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides applies the ENV_* variables that are set. A variable
// with an unparsable value is an error.
func (c *Config) applyEnvOverrides() error {
	overrides := []struct {
		key string
		set func(string) error
	}{
		// General
		{"ENV_DEBUG", setBool(&c.Debug)},
		{"ENV_LOG_LEVEL", setString(&c.LogLevel)},

		// Acquisition
		{"ENV_FFT_NFFT", setInt(&c.FFT.NFFT)},
		{"ENV_FFT_MODE", setString(&c.FFT.Mode)},
		{"ENV_SOURCE_KIND", setString(&c.Source.Kind)},
		{"ENV_SOURCE_NAME", setString(&c.Source.Name)},

		// Transports
		{"ENV_WS_ENABLED", setBool(&c.Transport.WebSocketEnabled)},
		{"ENV_WS_ADDRESS", setString(&c.Transport.WebSocketAddress)},
		{"ENV_UDP_ENABLED", setBool(&c.Transport.UDPEnabled)},
		{"ENV_UDP_TARGET_ADDRESS", setString(&c.Transport.UDPTargetAddress)},
		{"ENV_UDP_SEND_INTERVAL", setDuration(&c.Transport.UDPSendInterval)},
	}

	for _, o := range overrides {
		val, ok := os.LookupEnv(o.key)
		if !ok {
			continue
		}
		if err := o.set(val); err != nil {
			return fmt.Errorf("environment %s=%q: %w", o.key, val, err)
		}
		applog.Infof("Config: Overriding from %s=%s", o.key, val)
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
		return err
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			*dst = d
		}
		return err
	}
}
