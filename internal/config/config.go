package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Audio   AudioConfig   `yaml:"audio"`
	Modem   ModemConfig   `yaml:"modem"`
	Attend  AttendConfig  `yaml:"attend"`
	Store   StoreConfig   `yaml:"store"`
	Tally   TallyConfig   `yaml:"tally"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture pipeline parameters. The capture profile
// flags record the device-side requirements: echo cancellation, auto gain
// and noise suppression all distort the data tones and must stay off.
type AudioConfig struct {
	SampleRate       int    `yaml:"sample_rate"`
	FrameSize        int    `yaml:"frame_size"` // samples per frame
	QueueSize        int    `yaml:"queue_size"` // frames buffered before dropping
	Source           string `yaml:"source"`     // "udp" or "stdin"
	UDPAddress       string `yaml:"udp_address"`
	EchoCancellation bool   `yaml:"echo_cancellation"`
	AutoGainControl  bool   `yaml:"auto_gain_control"`
	NoiseSuppression bool   `yaml:"noise_suppression"`
}

// ModemConfig contains acoustic codec parameters
type ModemConfig struct {
	SymbolDuration float64 `yaml:"symbol_duration"` // seconds
	BaseFrequency  float64 `yaml:"base_frequency"`  // Hz
	FrequencyStep  float64 `yaml:"frequency_step"`  // Hz
	Threshold      float64 `yaml:"threshold"`       // detection magnitude, 0..1
	MaxMessageLen  int     `yaml:"max_message_len"` // bytes
}

// AttendConfig contains attendance verification configuration
type AttendConfig struct {
	ListenTimeout int `yaml:"listen_timeout"` // seconds
}

// StoreConfig contains database configuration
type StoreConfig struct {
	Path string `yaml:"path"`
}

// TallyConfig contains tally coordinator configuration
type TallyConfig struct {
	SweepInterval int `yaml:"sweep_interval"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Modem.Validate(); err != nil {
		return fmt.Errorf("modem config: %w", err)
	}

	if err := c.Attend.Validate(); err != nil {
		return fmt.Errorf("attend config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Tally.Validate(); err != nil {
		return fmt.Errorf("tally config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}

	if a.FrameSize < 64 || a.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 64 and 8192 samples, got %d", a.FrameSize)
	}

	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1 frame, got %d", a.QueueSize)
	}

	validSources := map[string]bool{"udp": true, "stdin": true}
	if !validSources[a.Source] {
		return fmt.Errorf("source must be 'udp' or 'stdin', got '%s'", a.Source)
	}

	if a.Source == "udp" && a.UDPAddress == "" {
		return fmt.Errorf("udp_address cannot be empty when source is udp")
	}

	// Processing profiles distort the tones beyond what Goertzel detection
	// tolerates.
	if a.EchoCancellation {
		return fmt.Errorf("echo_cancellation must be disabled for data-over-sound capture")
	}
	if a.AutoGainControl {
		return fmt.Errorf("auto_gain_control must be disabled for data-over-sound capture")
	}
	if a.NoiseSuppression {
		return fmt.Errorf("noise_suppression must be disabled for data-over-sound capture")
	}

	return nil
}

// Validate validates modem configuration
func (m *ModemConfig) Validate() error {
	if m.SymbolDuration <= 0 {
		return fmt.Errorf("symbol_duration must be positive, got %f", m.SymbolDuration)
	}

	if m.BaseFrequency < 100 {
		return fmt.Errorf("base_frequency must be at least 100 Hz, got %f", m.BaseFrequency)
	}

	if m.FrequencyStep <= 0 {
		return fmt.Errorf("frequency_step must be positive, got %f", m.FrequencyStep)
	}

	if m.Threshold <= 0 || m.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", m.Threshold)
	}

	if m.MaxMessageLen < 1 {
		return fmt.Errorf("max_message_len must be at least 1 byte, got %d", m.MaxMessageLen)
	}

	return nil
}

// Validate validates attendance configuration
func (a *AttendConfig) Validate() error {
	if a.ListenTimeout < 1 {
		return fmt.Errorf("listen_timeout must be at least 1 second, got %d", a.ListenTimeout)
	}

	return nil
}

// Validate validates store configuration
func (s *StoreConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates tally configuration
func (t *TallyConfig) Validate() error {
	if t.SweepInterval < 1 {
		return fmt.Errorf("sweep_interval must be at least 1 second, got %d", t.SweepInterval)
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

// GetListenTimeoutDuration returns the listen timeout as a time.Duration
func (a *AttendConfig) GetListenTimeoutDuration() time.Duration {
	return time.Duration(a.ListenTimeout) * time.Second
}

// GetSweepIntervalDuration returns the sweep interval as a time.Duration
func (t *TallyConfig) GetSweepIntervalDuration() time.Duration {
	return time.Duration(t.SweepInterval) * time.Second
}

// GetSymbolSamples returns the symbol window length in samples at the given
// sample rate
func (m *ModemConfig) GetSymbolSamples(sampleRate int) int {
	return int(m.SymbolDuration * float64(sampleRate))
}
