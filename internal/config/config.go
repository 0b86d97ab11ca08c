// ABOUTME: YAML configuration for the voice client
// ABOUTME: Defaults, file loading, validation and mapping onto voice chat options
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
	"github.com/Sendspin/sendspin-voice/pkg/audio/encode"
	"github.com/Sendspin/sendspin-voice/pkg/voicechat"
)

// Backend names
const (
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
	BackendSynthetic = "synthetic"
)

// Config represents the complete client configuration
type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Audio    AudioConfig    `yaml:"audio"`
	Jitter   JitterConfig   `yaml:"jitter"`
	Spatial  SpatialConfig  `yaml:"spatial"`
	Listener ListenerConfig `yaml:"listener"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ClientConfig identifies the client to the relay
type ClientConfig struct {
	Relay    string `yaml:"relay"` // host:port; empty discovers via mDNS
	Path     string `yaml:"path"`
	Name     string `yaml:"name"`
	ClientID string `yaml:"client_id"`
}

// AudioConfig selects the device backend and codec
type AudioConfig struct {
	Backend    string  `yaml:"backend"`
	Codec      string  `yaml:"codec"`
	Bitrate    int     `yaml:"bitrate"`
	Complexity int     `yaml:"complexity"`
	ToneHz     float64 `yaml:"tone_hz"`  // synthetic backend only
	MicFile    string  `yaml:"mic_file"` // MP3 played as the microphone
}

// JitterConfig mirrors voicechat.JitterConfig
type JitterConfig struct {
	TargetBufferSamples int           `yaml:"target_buffer_samples"`
	MinBufferSamples    int           `yaml:"min_buffer_samples"`
	ConcealTimeout      time.Duration `yaml:"conceal_timeout"`
	MaxConcealFrames    int           `yaml:"max_conceal_frames"`
	EvictTimeout        time.Duration `yaml:"evict_timeout"`
}

// SpatialConfig contains positional audio settings
type SpatialConfig struct {
	MaxVoiceDistance float64 `yaml:"max_voice_distance"`
}

// ListenerConfig is the static listener pose used when no game supplies one
type ListenerConfig struct {
	Position [3]float32 `yaml:"position"`
	Yaw      float32    `yaml:"yaw"` // radians
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a configuration that validates
func Default() *Config {
	jitter := voicechat.DefaultJitter()
	settings := encode.DefaultSettings()

	return &Config{
		Client: ClientConfig{
			Path: "/voice",
		},
		Audio: AudioConfig{
			Backend:    BackendMalgo,
			Codec:      audio.CodecOpus,
			Bitrate:    settings.Bitrate,
			Complexity: settings.Complexity,
			ToneHz:     440,
		},
		Jitter: JitterConfig{
			TargetBufferSamples: jitter.TargetBufferSamples,
			MinBufferSamples:    jitter.MinBufferSamples,
			ConcealTimeout:      jitter.ConcealTimeout,
			MaxConcealFrames:    jitter.MaxConcealFrames,
			EvictTimeout:        jitter.EvictTimeout,
		},
		Spatial: SpatialConfig{
			MaxVoiceDistance: voicechat.DefaultMaxVoiceDistance,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "sendspin-voice.log",
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
	}
}

// Load reads the file at path over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Jitter.voicechat().Validate(); err != nil {
		return fmt.Errorf("jitter config: %w", err)
	}
	if c.Spatial.MaxVoiceDistance <= 0 {
		return fmt.Errorf("spatial config: max_voice_distance must be positive, got %f", c.Spatial.MaxVoiceDistance)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics config: address cannot be empty when metrics are enabled")
	}
	return nil
}

// Validate validates client configuration
func (c *ClientConfig) Validate() error {
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got '%s'", c.Path)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.Backend {
	case BackendMalgo, BackendOto, BackendSynthetic:
	default:
		return fmt.Errorf("backend must be one of [malgo, oto, synthetic], got '%s'", a.Backend)
	}

	switch a.Codec {
	case audio.CodecOpus, audio.CodecPCM:
	default:
		return fmt.Errorf("codec must be 'opus' or 'pcm', got '%s'", a.Codec)
	}

	if a.Bitrate < 6000 || a.Bitrate > 510000 {
		return fmt.Errorf("bitrate must be between 6000 and 510000, got %d", a.Bitrate)
	}
	if a.Complexity < 0 || a.Complexity > 10 {
		return fmt.Errorf("complexity must be between 0 and 10, got %d", a.Complexity)
	}
	if a.Backend == BackendSynthetic && a.ToneHz <= 0 {
		return fmt.Errorf("tone_hz must be positive for the synthetic backend, got %f", a.ToneHz)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

func (j JitterConfig) voicechat() voicechat.JitterConfig {
	return voicechat.JitterConfig{
		TargetBufferSamples: j.TargetBufferSamples,
		MinBufferSamples:    j.MinBufferSamples,
		ConcealTimeout:      j.ConcealTimeout,
		MaxConcealFrames:    j.MaxConcealFrames,
		EvictTimeout:        j.EvictTimeout,
	}
}

// ResolveIdentity fills an empty name from the hostname and an empty
// client id with a fresh UUID
func (c *Config) ResolveIdentity() {
	if c.Client.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		c.Client.Name = fmt.Sprintf("%s-voice", hostname)
	}
	if c.Client.ClientID == "" {
		c.Client.ClientID = uuid.New().String()
	}
}

// NewBackend opens the configured audio subsystem
func (a *AudioConfig) NewBackend() device.Backend {
	var backend device.Backend
	switch a.Backend {
	case BackendOto:
		// oto only plays; microphones still come through malgo
		backend = device.NewSplit(device.NewMalgo(), device.NewOto())
	case BackendSynthetic:
		backend = device.NewSynthetic(a.ToneHz)
	default:
		backend = device.NewMalgo()
	}

	if a.MicFile != "" {
		return device.NewSplit(device.NewMP3(a.MicFile), backend)
	}
	return backend
}

// VoiceOptions maps the configuration onto voice chat options
func (c *Config) VoiceOptions(backend device.Backend, metrics *voicechat.Metrics) voicechat.Options {
	opts := voicechat.DefaultOptions()
	opts.Backend = backend
	opts.Codec = c.Audio.Codec
	opts.Encoder = encode.Settings{
		Bitrate:    c.Audio.Bitrate,
		Complexity: c.Audio.Complexity,
	}
	opts.Metrics = metrics
	opts.Jitter = c.Jitter.voicechat()
	opts.MaxVoiceDistance = c.Spatial.MaxVoiceDistance
	return opts
}

// ListenerPosition returns the static listener position
func (l ListenerConfig) ListenerPosition() audio.Vec3 {
	return audio.Vec3(l.Position)
}
