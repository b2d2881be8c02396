package capture

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/openacoustics/inaudible-monitor/internal/audio"
)

func writeTestWAV(t *testing.T, samples []float64, rate int) string {
	t.Helper()

	data, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write test WAV: %v", err)
	}

	return path
}

func TestFileSourceDeliversAllSamples(t *testing.T) {
	tone := audio.Tone(440, 0.25, 8000, 0.5)
	path := writeTestWAV(t, tone, 8000)

	src, err := NewFileSource(path, 300)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}

	if src.SampleRate() != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", src.SampleRate())
	}
	if math.Abs(src.Duration()-0.25) > 1e-6 {
		t.Errorf("Expected duration 0.25s, got %f", src.Duration())
	}

	ch, err := src.Chunks(context.Background())
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}

	var got []float64
	for chunk := range ch {
		got = append(got, chunk...)
	}

	if len(got) != len(tone) {
		t.Fatalf("Expected %d samples, got %d", len(tone), len(got))
	}

	for i := range tone {
		if math.Abs(got[i]-tone[i]) > 1.0/32768+1e-9 {
			t.Fatalf("Sample %d: expected %f, got %f", i, tone[i], got[i])
		}
	}
}

func TestFileSourceCancellation(t *testing.T) {
	path := writeTestWAV(t, audio.Tone(440, 1.0, 8000, 0.5), 8000)

	src, err := NewFileSource(path, 100)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Chunks(ctx)
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}

	<-ch
	cancel()

	// The channel must close without delivering the whole file.
	count := 1
	for range ch {
		count++
	}
	if count >= 80 {
		t.Errorf("Expected early termination, got all %d chunks", count)
	}
}

func TestNewFileSourceErrors(t *testing.T) {
	if _, err := NewFileSource("/nonexistent.wav", 100); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not audio data at all......"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := NewFileSource(path, 100); err == nil {
		t.Error("Expected error for non-WAV content")
	}

	good := writeTestWAV(t, audio.Tone(440, 0.1, 8000, 0.5), 8000)
	if _, err := NewFileSource(good, 0); err == nil {
		t.Error("Expected error for zero chunk size")
	}
}
