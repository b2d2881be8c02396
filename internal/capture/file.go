package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/openacoustics/inaudible-monitor/internal/audio"
)

// FileSource replays a decoded WAV file through the engine, chunk by chunk.
// The file is read and decoded up front so analysis runs as fast as the
// pipeline allows.
type FileSource struct {
	samples    []float64
	sampleRate int
	chunkSize  int
}

// NewFileSource decodes the WAV file at path. chunkSize controls how many
// samples each delivered chunk carries.
func NewFileSource(path string, chunkSize int) (*FileSource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &FileSource{
		samples:    samples,
		sampleRate: rate,
		chunkSize:  chunkSize,
	}, nil
}

// SampleRate returns the decoded file's sample rate.
func (s *FileSource) SampleRate() int {
	return s.sampleRate
}

// Duration returns the decoded audio length in seconds.
func (s *FileSource) Duration() float64 {
	return float64(len(s.samples)) / float64(s.sampleRate)
}

// SampleCount returns the number of decoded samples.
func (s *FileSource) SampleCount() int {
	return len(s.samples)
}

// Chunks delivers the decoded samples sequentially and closes the channel
// when the file is exhausted.
func (s *FileSource) Chunks(ctx context.Context) (<-chan []float64, error) {
	ch := make(chan []float64)

	go func() {
		defer close(ch)
		for i := 0; i < len(s.samples); i += s.chunkSize {
			end := i + s.chunkSize
			if end > len(s.samples) {
				end = len(s.samples)
			}

			select {
			case ch <- s.samples[i:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
