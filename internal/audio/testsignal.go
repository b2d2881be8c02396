package audio

import (
	"math"
	"math/rand"
)

// Tone generates a pure sinusoid at freq Hz with the given amplitude.
func Tone(freq float64, duration float64, sampleRate int, amplitude float64) []float64 {
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = amplitude * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

// Mix sums signals sample by sample; the result is as long as the longest
// input.
func Mix(signals ...[]float64) []float64 {
	n := 0
	for _, s := range signals {
		if len(s) > n {
			n = len(s)
		}
	}

	out := make([]float64, n)
	for _, s := range signals {
		for i, v := range s {
			out[i] += v
		}
	}
	return out
}

// WhiteNoise generates uniform noise with the given peak amplitude, using a
// fixed-seed source so test signals are reproducible.
func WhiteNoise(duration float64, sampleRate int, amplitude float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * (2*rng.Float64() - 1)
	}
	return out
}
