package dsp

import (
	"fmt"
	"math"
)

// biquadSection is one second-order filter section with Direct Form II
// Transposed state. a0 is normalized to 1 and not stored.
type biquadSection struct {
	b0, b1, b2 float64
	a1, a2     float64

	d0, d1 float64
}

func (s *biquadSection) process(buf []float64) {
	for i, x := range buf {
		y := s.b0*x + s.d0
		s.d0 = s.b1*x - s.a1*y + s.d1
		s.d1 = s.b2*x - s.a2*y
		buf[i] = y
	}
}

func (s *biquadSection) reset() {
	s.d0 = 0
	s.d1 = 0
}

// Bandpass is a Butterworth bandpass filter realized as a cascade of
// second-order sections: a highpass cascade at the low edge followed by a
// lowpass cascade at the high edge, each of the configured order.
type Bandpass struct {
	sections []biquadSection
	lowHz    float64
	highHz   float64
	order    int
}

// NewBandpass designs a Butterworth bandpass for the [lowHz, highHz] range.
// Edges are clamped away from 0 and Nyquist to keep the sections stable.
func NewBandpass(lowHz, highHz float64, order, sampleRate int) (*Bandpass, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if order < 1 {
		return nil, fmt.Errorf("filter order must be at least 1, got %d", order)
	}

	nyquist := float64(sampleRate) / 2
	if highHz <= lowHz {
		return nil, fmt.Errorf("band high edge %.2f Hz must exceed low edge %.2f Hz", highHz, lowHz)
	}

	if highHz > nyquist {
		return nil, fmt.Errorf("band high edge %.2f Hz exceeds Nyquist %.2f Hz", highHz, nyquist)
	}

	low := math.Max(lowHz, nyquist*1e-6)
	high := math.Min(highHz, nyquist*0.9999)
	if high <= low {
		high = low + nyquist*1e-6
	}

	f := &Bandpass{lowHz: lowHz, highHz: highHz, order: order}

	fs := float64(sampleRate)
	pairs := order / 2
	for i := 0; i < pairs; i++ {
		q := butterworthQ(order, i)
		f.sections = append(f.sections, highpassSection(low, q, fs))
	}
	if order%2 != 0 {
		f.sections = append(f.sections, firstOrderHighpass(low, fs))
	}

	for i := 0; i < pairs; i++ {
		q := butterworthQ(order, i)
		f.sections = append(f.sections, lowpassSection(high, q, fs))
	}
	if order%2 != 0 {
		f.sections = append(f.sections, firstOrderLowpass(high, fs))
	}

	return f, nil
}

// Process filters buf in place.
func (f *Bandpass) Process(buf []float64) {
	for i := range f.sections {
		f.sections[i].process(buf)
	}
}

// Reset clears all section state, starting the filter cold.
func (f *Bandpass) Reset() {
	for i := range f.sections {
		f.sections[i].reset()
	}
}

// Range returns the configured passband edges in Hz.
func (f *Bandpass) Range() (low, high float64) {
	return f.lowHz, f.highHz
}

// butterworthQ returns the quality factor of pole-pair index for a
// Butterworth filter of the given order.
func butterworthQ(order, index int) float64 {
	theta := math.Pi * float64(2*index+1) / (2 * float64(order))

	s := math.Sin(theta)
	if s == 0 {
		return 1 / math.Sqrt2
	}

	return 1 / (2 * s)
}

func lowpassSection(freq, q, sampleRate float64) biquadSection {
	w0 := 2 * math.Pi * freq / sampleRate
	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 - cw) / 2
	b1 := 1 - cw
	b2 := (1 - cw) / 2
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	return biquadSection{
		b0: b0 / a0, b1: b1 / a0, b2: b2 / a0,
		a1: a1 / a0, a2: a2 / a0,
	}
}

func highpassSection(freq, q, sampleRate float64) biquadSection {
	w0 := 2 * math.Pi * freq / sampleRate
	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 + cw) / 2
	b1 := -(1 + cw)
	b2 := (1 + cw) / 2
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	return biquadSection{
		b0: b0 / a0, b1: b1 / a0, b2: b2 / a0,
		a1: a1 / a0, a2: a2 / a0,
	}
}

func firstOrderLowpass(freq, sampleRate float64) biquadSection {
	k := math.Tan(math.Pi * freq / sampleRate)
	norm := 1 / (1 + k)

	return biquadSection{
		b0: k * norm,
		b1: k * norm,
		a1: (k - 1) * norm,
	}
}

func firstOrderHighpass(freq, sampleRate float64) biquadSection {
	k := math.Tan(math.Pi * freq / sampleRate)
	norm := 1 / (1 + k)

	return biquadSection{
		b0: norm,
		b1: -norm,
		a1: (k - 1) * norm,
	}
}
