package engine

import "context"

// Source supplies sequential chunks of floating-point samples at a fixed
// sample rate. A live device and a decoded file both satisfy it.
type Source interface {
	// SampleRate returns the fixed capture rate in Hz.
	SampleRate() int

	// Chunks starts delivery and returns a channel of sample chunks. The
	// channel is closed when the source is exhausted or ctx is cancelled.
	Chunks(ctx context.Context) (<-chan []float64, error)
}
