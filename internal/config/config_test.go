package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := `
audio:
  sample_rate: 48000
dsp:
  fft_size: 8192
bands:
  - name: sonar
    min_hz: 18000
    max_hz: 24000
    threshold_db: -45
    min_duration_s: 0.1
    min_peak_distance_hz: 100
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected sample_rate 48000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.DSP.FFTSize != 8192 {
		t.Errorf("Expected fft_size 8192, got %d", cfg.DSP.FFTSize)
	}
	if cfg.DSP.Window != "hann" {
		t.Errorf("Expected default window hann, got %s", cfg.DSP.Window)
	}
	if len(cfg.Bands) != 1 || cfg.Bands[0].Name != "sonar" {
		t.Errorf("Expected bands to be replaced, got %+v", cfg.Bands)
	}
}

func TestLoadRejectsBandAboveNyquist(t *testing.T) {
	content := `
audio:
  sample_rate: 44100
`
	// Default ultrasound band reaches 48 kHz, above the 22.05 kHz Nyquist.
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for band above Nyquist")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("audio: [not a map"), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestSectionValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"fft not power of two", func(c *Config) { c.DSP.FFTSize = 3000 }},
		{"hop exceeds fft", func(c *Config) { c.DSP.HopLength = c.DSP.FFTSize * 2 }},
		{"unknown window", func(c *Config) { c.DSP.Window = "kaiser" }},
		{"no bands", func(c *Config) { c.Bands = nil }},
		{"inverted band", func(c *Config) { c.Bands[0].MaxHz = 0.001 }},
		{"zero band duration", func(c *Config) { c.Bands[0].MinDurationS = 0 }},
		{"empty rule band", func(c *Config) { c.Classification.Rules[0].Band = "" }},
		{"zero queue size", func(c *Config) { c.Dispatcher.QueueSize = 0 }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 99999 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()

	if got := cfg.Bands[0].MinDuration().Seconds(); got != 0.5 {
		t.Errorf("Expected 0.5s min duration, got %f", got)
	}
	if got := cfg.Dispatcher.ConsumerTimeout().Seconds(); got != 5 {
		t.Errorf("Expected 5s consumer timeout, got %f", got)
	}
}
