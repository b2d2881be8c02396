package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/openacoustics/inaudible-monitor/internal/audio"
)

// WindowType selects the analysis window applied before the FFT.
type WindowType string

const (
	WindowHann     WindowType = "hann"
	WindowHamming  WindowType = "hamming"
	WindowBlackman WindowType = "blackman"
)

// SpectralFrame is the magnitude spectrum of one analysis frame. Frequencies
// are monotonically increasing; the DC bin and bins below the configured
// minimum frequency are excluded.
type SpectralFrame struct {
	Frequencies []float64 // Hz
	Magnitudes  []float64 // dBFS
	Start       time.Duration
	WindowSize  int     // samples in the source frame
	Resolution  float64 // Hz per bin
}

// TransformConfig contains spectral transform parameters.
type TransformConfig struct {
	FFTSize      int
	Window       WindowType
	Normalize    bool    // peak-normalize each frame before analysis
	MinFrequency float64 // Hz; bins below are excluded from the output
	FloorDB      float64 // magnitude floor, avoids -Inf for silent bins
}

// DefaultFloorDB matches a 1e-10 linear amplitude floor.
const DefaultFloorDB = -200.0

// Transform converts audio frames into magnitude spectra.
type Transform struct {
	cfg        TransformConfig
	sampleRate int

	win       []float64
	winSum    float64
	winLength int
}

// NewTransform creates a spectral transform for frames of frameSize samples.
func NewTransform(sampleRate, frameSize int, cfg TransformConfig) (*Transform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if cfg.FFTSize < frameSize {
		return nil, fmt.Errorf("fft size %d is smaller than frame size %d", cfg.FFTSize, frameSize)
	}

	if cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of two, got %d", cfg.FFTSize)
	}

	if cfg.FloorDB == 0 {
		cfg.FloorDB = DefaultFloorDB
	}

	t := &Transform{cfg: cfg, sampleRate: sampleRate}
	if err := t.buildWindow(frameSize); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Transform) buildWindow(length int) error {
	var coeffs []float64

	switch t.cfg.Window {
	case WindowHann, "":
		coeffs = window.Hann(length)
	case WindowHamming:
		coeffs = window.Hamming(length)
	case WindowBlackman:
		coeffs = window.Blackman(length)
	default:
		return fmt.Errorf("unknown window type %q (supported: hann, hamming, blackman)", t.cfg.Window)
	}

	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}

	t.win = coeffs
	t.winSum = sum
	t.winLength = length

	return nil
}

// Resolution returns the frequency width of one FFT bin in Hz.
func (t *Transform) Resolution() float64 {
	return float64(t.sampleRate) / float64(t.cfg.FFTSize)
}

// Spectrum computes the magnitude spectrum of one frame. The frame is
// DC-removed, optionally peak-normalized, windowed, zero-padded to the FFT
// size, and converted to dB relative to full scale.
func (t *Transform) Spectrum(frame *audio.Frame) (*SpectralFrame, error) {
	n := len(frame.Samples)
	if n == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	if n > t.cfg.FFTSize {
		return nil, fmt.Errorf("frame of %d samples exceeds fft size %d", n, t.cfg.FFTSize)
	}

	// The analysis loop always delivers full frames; rebuilding covers
	// direct callers analyzing shorter signals.
	if n != t.winLength {
		if err := t.buildWindow(n); err != nil {
			return nil, err
		}
	}

	buf := make([]float64, t.cfg.FFTSize)
	copy(buf, frame.Samples)

	var mean float64
	for _, s := range buf[:n] {
		mean += s
	}
	mean /= float64(n)

	peak := 0.0
	for i := 0; i < n; i++ {
		buf[i] -= mean
		if a := math.Abs(buf[i]); a > peak {
			peak = a
		}
	}

	if t.cfg.Normalize && peak > 0 {
		for i := 0; i < n; i++ {
			buf[i] /= peak
		}
	}

	for i := 0; i < n; i++ {
		buf[i] *= t.win[i]
	}

	spectrum := fft.FFTReal(buf)

	resolution := t.Resolution()
	floorAmp := math.Pow(10, t.cfg.FloorDB/20)

	// Single-sided amplitude estimate: 2|X(k)| over the window's coherent
	// gain. Bin 0 (DC) is always skipped.
	firstBin := 1
	if t.cfg.MinFrequency > 0 {
		minBin := int(math.Ceil(t.cfg.MinFrequency / resolution))
		if minBin > firstBin {
			firstBin = minBin
		}
	}

	lastBin := t.cfg.FFTSize / 2
	if firstBin > lastBin {
		return nil, fmt.Errorf("minimum frequency %.2f Hz leaves no analyzable bins", t.cfg.MinFrequency)
	}

	count := lastBin - firstBin + 1
	freqs := make([]float64, count)
	mags := make([]float64, count)

	for k := firstBin; k <= lastBin; k++ {
		amp := 2 * cmplx.Abs(spectrum[k]) / t.winSum
		if k == lastBin {
			amp /= 2 // Nyquist bin has no mirror
		}
		if amp < floorAmp {
			amp = floorAmp
		}

		freqs[k-firstBin] = float64(k) * resolution
		mags[k-firstBin] = 20 * math.Log10(amp)
	}

	return &SpectralFrame{
		Frequencies: freqs,
		Magnitudes:  mags,
		Start:       frame.Start,
		WindowSize:  n,
		Resolution:  resolution,
	}, nil
}
