package dsp

import (
	"math"
	"testing"

	"github.com/openacoustics/inaudible-monitor/internal/audio"
)

// rmsTail measures RMS over the second half of buf, past filter settling.
func rmsTail(buf []float64) float64 {
	tail := buf[len(buf)/2:]
	sum := 0.0
	for _, s := range tail {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(tail)))
}

func attenuationDB(freq float64, f *Bandpass, sampleRate int) float64 {
	tone := audio.Tone(freq, 1.0, sampleRate, 0.5)
	before := rmsTail(tone)

	f.Reset()
	f.Process(tone)

	after := rmsTail(tone)
	return 20 * math.Log10(after/before)
}

func TestBandpassPassesInBandTone(t *testing.T) {
	f, err := NewBandpass(1000, 2000, 4, 48000)
	if err != nil {
		t.Fatalf("NewBandpass failed: %v", err)
	}

	gain := attenuationDB(1414, f, 48000)
	if gain < -1 || gain > 1 {
		t.Errorf("Expected near-unity gain at band center, got %.2f dB", gain)
	}
}

func TestBandpassRejectsOutOfBandTones(t *testing.T) {
	f, err := NewBandpass(1000, 2000, 4, 48000)
	if err != nil {
		t.Fatalf("NewBandpass failed: %v", err)
	}

	for _, freq := range []float64{100, 12000} {
		gain := attenuationDB(freq, f, 48000)
		if gain > -30 {
			t.Errorf("Expected strong attenuation at %.0f Hz, got %.2f dB", freq, gain)
		}
	}
}

func TestBandpassOddOrder(t *testing.T) {
	f, err := NewBandpass(500, 4000, 5, 48000)
	if err != nil {
		t.Fatalf("NewBandpass failed: %v", err)
	}

	gain := attenuationDB(1414, f, 48000)
	if gain < -1.5 || gain > 1 {
		t.Errorf("Expected near-unity gain at band center, got %.2f dB", gain)
	}

	if gain = attenuationDB(50, f, 48000); gain > -30 {
		t.Errorf("Expected strong attenuation at 50 Hz, got %.2f dB", gain)
	}
}

func TestBandpassResetClearsState(t *testing.T) {
	f, _ := NewBandpass(1000, 2000, 4, 48000)

	tone := audio.Tone(1414, 0.1, 48000, 0.5)
	first := make([]float64, len(tone))
	copy(first, tone)
	f.Process(first)

	f.Reset()
	second := make([]float64, len(tone))
	copy(second, tone)
	f.Process(second)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Sample %d differs after reset: %f vs %f", i, first[i], second[i])
		}
	}
}

func TestBandpassClampsExtremeEdges(t *testing.T) {
	// Infrasound bands reach toward 0 Hz; the design must stay finite.
	f, err := NewBandpass(0.01, 20, 5, 96000)
	if err != nil {
		t.Fatalf("NewBandpass failed: %v", err)
	}

	buf := audio.Tone(5, 1.0, 96000, 0.5)
	f.Process(buf)

	for i, s := range buf {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			t.Fatalf("Sample %d is not finite: %f", i, s)
		}
	}
}

func TestNewBandpassValidation(t *testing.T) {
	cases := []struct {
		name       string
		low, high  float64
		order      int
		sampleRate int
	}{
		{"zero sample rate", 100, 200, 4, 0},
		{"zero order", 100, 200, 0, 48000},
		{"inverted edges", 200, 100, 4, 48000},
		{"high edge above nyquist", 100, 30000, 4, 48000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewBandpass(tc.low, tc.high, tc.order, tc.sampleRate); err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
		})
	}
}
