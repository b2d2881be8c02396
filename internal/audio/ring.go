package audio

import (
	"fmt"
	"sync"
	"time"
)

// Frame is one analysis frame pulled from the ring buffer: an ordered
// sequence of samples, the sample rate, and the stream-time offset of the
// first sample.
type Frame struct {
	Samples    []float64
	SampleRate int
	Start      time.Duration
}

// Duration returns the time span covered by the frame's samples.
func (f *Frame) Duration() time.Duration {
	return time.Duration(float64(len(f.Samples)) / float64(f.SampleRate) * float64(time.Second))
}

// Ring is a fixed-capacity sample buffer connecting the capture path to the
// analysis loop. Push overwrites the oldest unread samples when full and
// never blocks; PopWindow yields overlapping analysis frames.
//
// Single producer, single consumer. Push holds the lock only for index
// updates and sample copies into preallocated storage.
type Ring struct {
	data       []float64
	sampleRate int

	// Absolute sample positions since the start of the session.
	// head is the next write position, tail the next read position.
	head uint64
	tail uint64

	pushed   uint64
	overruns uint64 // samples overwritten before being consumed

	mu sync.Mutex
}

// RingStats is a snapshot of ring buffer counters for monitoring.
type RingStats struct {
	CapacitySamples int    `json:"capacity_samples"`
	BufferedSamples int    `json:"buffered_samples"`
	PushedSamples   uint64 `json:"pushed_samples"`
	OverrunSamples  uint64 `json:"overrun_samples"`
}

// NewRing creates a ring buffer holding up to capacity samples.
func NewRing(capacity, sampleRate int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Ring{
		data:       make([]float64, capacity),
		sampleRate: sampleRate,
	}, nil
}

// Push appends newly captured samples. When the buffer is full the oldest
// unread samples are overwritten and the overrun counter advances by the
// number of samples lost. Safe to call from a latency-sensitive capture
// callback: no allocation, bounded time.
func (r *Ring) Push(samples []float64) {
	if len(samples) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := uint64(len(r.data))
	src := samples

	// A chunk larger than the whole ring can only ever leave its tail end
	// behind. Advancing head past the skipped samples makes the tail-lag
	// check below account for them, along with any unread samples they
	// overwrote.
	if uint64(len(src)) > capacity {
		skipped := uint64(len(src)) - capacity
		r.head += skipped
		src = src[skipped:]
	}

	pos := int(r.head % capacity)
	n := copy(r.data[pos:], src)
	copy(r.data, src[n:])

	r.head += uint64(len(src))
	r.pushed += uint64(len(samples))

	if r.head-r.tail > capacity {
		dropped := r.head - r.tail - capacity
		r.tail += dropped
		r.overruns += dropped
	}
}

// PopWindow returns the next analysis frame of size samples, advancing the
// read position by hop, or (nil, false) when not enough data has been
// buffered yet. Never blocks.
func (r *Ring) PopWindow(size, hop int) (*Frame, bool) {
	if size <= 0 || hop <= 0 || size > len(r.data) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.head-r.tail < uint64(size) {
		return nil, false
	}

	capacity := uint64(len(r.data))
	out := make([]float64, size)
	pos := int(r.tail % capacity)
	n := copy(out, r.data[pos:])
	copy(out[n:], r.data)

	frame := &Frame{
		Samples:    out,
		SampleRate: r.sampleRate,
		Start:      samplesToDuration(r.tail, r.sampleRate),
	}

	r.tail += uint64(hop)
	if r.tail > r.head {
		r.tail = r.head
	}

	return frame, true
}

// SkipToLatest drops all buffered samples except the most recent keep,
// returning the number of samples shed. Used by the analysis loop to bound
// latency when it falls behind the capture rate.
func (r *Ring) SkipToLatest(keep int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	buffered := r.head - r.tail
	if keep < 0 {
		keep = 0
	}

	if buffered <= uint64(keep) {
		return 0
	}

	skipped := buffered - uint64(keep)
	r.tail += skipped

	return int(skipped)
}

// Buffered returns the number of samples available to the consumer.
func (r *Ring) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.head - r.tail)
}

// Overruns returns the total number of samples lost to buffer overruns.
func (r *Ring) Overruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overruns
}

// SampleRate returns the buffer's sample rate in Hz.
func (r *Ring) SampleRate() int {
	return r.sampleRate
}

// GetStats returns a snapshot of the ring buffer counters.
func (r *Ring) GetStats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RingStats{
		CapacitySamples: len(r.data),
		BufferedSamples: int(r.head - r.tail),
		PushedSamples:   r.pushed,
		OverrunSamples:  r.overruns,
	}
}

func samplesToDuration(n uint64, sampleRate int) time.Duration {
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}
