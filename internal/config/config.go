package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio          AudioConfig          `yaml:"audio"`
	DSP            DSPConfig            `yaml:"dsp"`
	Bands          []BandConfig         `yaml:"bands"`
	Classification ClassificationConfig `yaml:"classification"`
	Dispatcher     DispatcherConfig     `yaml:"dispatcher"`
	HTTP           HTTPConfig           `yaml:"http"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// AudioConfig contains capture and buffering parameters
type AudioConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	Device            string  `yaml:"device"`              // empty selects the default input device
	ChunkSize         int     `yaml:"chunk_size"`          // capture chunk in samples
	BufferSeconds     float64 `yaml:"buffer_seconds"`      // stream buffer capacity
	MaxBacklogSeconds float64 `yaml:"max_backlog_seconds"` // 0 disables load shedding
}

// DSPConfig contains spectral transform parameters
type DSPConfig struct {
	FFTSize      int     `yaml:"fft_size"`
	HopLength    int     `yaml:"hop_length"`
	Window       string  `yaml:"window"` // hann, hamming or blackman
	Normalize    bool    `yaml:"normalize"`
	FilterOrder  int     `yaml:"filter_order"` // 0 disables band isolation
	MinFrequency float64 `yaml:"min_frequency"`
}

// BandConfig describes one monitored frequency band
type BandConfig struct {
	Name              string  `yaml:"name"`
	MinHz             float64 `yaml:"min_hz"`
	MaxHz             float64 `yaml:"max_hz"`
	ThresholdDB       float64 `yaml:"threshold_db"`
	MinDurationS      float64 `yaml:"min_duration_s"`
	MinPeakDistanceHz float64 `yaml:"min_peak_distance_hz"`
	ReleaseHops       int     `yaml:"release_hops"`
}

// MinDuration returns the band's minimum sustained duration
func (b *BandConfig) MinDuration() time.Duration {
	return time.Duration(b.MinDurationS * float64(time.Second))
}

// ClassificationConfig contains the subtype rule table
type ClassificationConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig maps a frequency range within a band to a subtype label
type RuleConfig struct {
	Band    string  `yaml:"band"`
	MinHz   float64 `yaml:"min_hz"`
	MaxHz   float64 `yaml:"max_hz"`
	Subtype string  `yaml:"subtype"`
}

// DispatcherConfig contains event queue parameters
type DispatcherConfig struct {
	QueueSize        int     `yaml:"queue_size"`
	ConsumerTimeoutS float64 `yaml:"consumer_timeout_s"`
}

// ConsumerTimeout returns the per-consumer delivery time bound
func (d *DispatcherConfig) ConsumerTimeout() time.Duration {
	return time.Duration(d.ConsumerTimeoutS * float64(time.Second))
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the stock configuration: a 96 kHz capture watching the
// infrasound and ultrasound bands.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:        96000,
			ChunkSize:         1024,
			BufferSeconds:     10,
			MaxBacklogSeconds: 2,
		},
		DSP: DSPConfig{
			FFTSize:      4096,
			HopLength:    1024,
			Window:       "hann",
			FilterOrder:  5,
			MinFrequency: 0,
		},
		Bands: []BandConfig{
			{
				Name:              "infrasound",
				MinHz:             0.01,
				MaxHz:             20,
				ThresholdDB:       -40,
				MinDurationS:      0.5,
				MinPeakDistanceHz: 0.5,
			},
			{
				Name:              "ultrasound",
				MinHz:             20000,
				MaxHz:             48000,
				ThresholdDB:       -50,
				MinDurationS:      0.05,
				MinPeakDistanceHz: 200,
			},
		},
		Classification: ClassificationConfig{
			Rules: []RuleConfig{
				{Band: "infrasound", MinHz: 0, MaxHz: 1, Subtype: "seismic/weather"},
				{Band: "infrasound", MinHz: 1, MaxHz: 20, Subtype: "machinery"},
				{Band: "ultrasound", MinHz: 20000, MaxHz: 50000, Subtype: "bat/insect"},
				{Band: "ultrasound", MinHz: 50000, MaxHz: 200000, Subtype: "rodent/electronic"},
			},
		},
		Dispatcher: DispatcherConfig{
			QueueSize:        256,
			ConsumerTimeoutS: 5,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
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

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.DSP.Validate(); err != nil {
		return fmt.Errorf("dsp config: %w", err)
	}

	if len(c.Bands) == 0 {
		return fmt.Errorf("at least one band must be configured")
	}

	nyquist := float64(c.Audio.SampleRate) / 2
	for i := range c.Bands {
		if err := c.Bands[i].Validate(nyquist); err != nil {
			return fmt.Errorf("band %d: %w", i, err)
		}
	}

	if err := c.Classification.Validate(); err != nil {
		return fmt.Errorf("classification config: %w", err)
	}

	if err := c.Dispatcher.Validate(); err != nil {
		return fmt.Errorf("dispatcher config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", a.ChunkSize)
	}

	if a.BufferSeconds <= 0 {
		return fmt.Errorf("buffer_seconds must be positive, got %f", a.BufferSeconds)
	}

	if a.MaxBacklogSeconds < 0 {
		return fmt.Errorf("max_backlog_seconds cannot be negative, got %f", a.MaxBacklogSeconds)
	}

	return nil
}

// Validate validates DSP configuration
func (d *DSPConfig) Validate() error {
	if d.FFTSize < 2 || d.FFTSize&(d.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two, got %d", d.FFTSize)
	}

	if d.HopLength < 1 {
		return fmt.Errorf("hop_length must be positive, got %d", d.HopLength)
	}

	if d.HopLength > d.FFTSize {
		return fmt.Errorf("hop_length (%d) cannot exceed fft_size (%d)", d.HopLength, d.FFTSize)
	}

	validWindows := map[string]bool{"hann": true, "hamming": true, "blackman": true}
	if !validWindows[d.Window] {
		return fmt.Errorf("window must be one of [hann, hamming, blackman], got '%s'", d.Window)
	}

	if d.FilterOrder < 0 {
		return fmt.Errorf("filter_order cannot be negative, got %d", d.FilterOrder)
	}

	if d.MinFrequency < 0 {
		return fmt.Errorf("min_frequency cannot be negative, got %f", d.MinFrequency)
	}

	return nil
}

// Validate validates one band against the capture Nyquist frequency
func (b *BandConfig) Validate(nyquist float64) error {
	if b.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if b.MinHz < 0 {
		return fmt.Errorf("min_hz cannot be negative, got %f", b.MinHz)
	}

	if b.MaxHz <= b.MinHz {
		return fmt.Errorf("max_hz (%f) must be greater than min_hz (%f)", b.MaxHz, b.MinHz)
	}

	if b.MaxHz > nyquist {
		return fmt.Errorf("max_hz (%f) exceeds Nyquist frequency (%f)", b.MaxHz, nyquist)
	}

	if b.MinDurationS <= 0 {
		return fmt.Errorf("min_duration_s must be positive, got %f", b.MinDurationS)
	}

	if b.MinPeakDistanceHz < 0 {
		return fmt.Errorf("min_peak_distance_hz cannot be negative, got %f", b.MinPeakDistanceHz)
	}

	if b.ReleaseHops < 0 {
		return fmt.Errorf("release_hops cannot be negative, got %d", b.ReleaseHops)
	}

	return nil
}

// Validate validates the classification rule table
func (c *ClassificationConfig) Validate() error {
	for i, r := range c.Rules {
		if r.Band == "" {
			return fmt.Errorf("rule %d: band cannot be empty", i)
		}
		if r.MaxHz <= r.MinHz {
			return fmt.Errorf("rule %d: max_hz (%f) must be greater than min_hz (%f)", i, r.MaxHz, r.MinHz)
		}
	}

	return nil
}

// Validate validates dispatcher configuration
func (d *DispatcherConfig) Validate() error {
	if d.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive, got %d", d.QueueSize)
	}

	if d.ConsumerTimeoutS <= 0 {
		return fmt.Errorf("consumer_timeout_s must be positive, got %f", d.ConsumerTimeoutS)
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

	validOutputs := map[string]bool{"stdout": true, "stderr": true}
	if !validOutputs[l.Output] {
		return fmt.Errorf("output must be 'stdout' or 'stderr', got '%s'", l.Output)
	}

	return nil
}
