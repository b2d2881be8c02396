package engine

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/openacoustics/inaudible-monitor/internal/audio"
	"github.com/openacoustics/inaudible-monitor/internal/detect"
	"github.com/openacoustics/inaudible-monitor/internal/dispatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sliceSource replays a fixed sample slice in chunks, like file analysis.
type sliceSource struct {
	rate      int
	samples   []float64
	chunkSize int
}

func (s *sliceSource) SampleRate() int { return s.rate }

func (s *sliceSource) Chunks(ctx context.Context) (<-chan []float64, error) {
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

// toneSource streams a continuous tone until cancelled, pacing chunks to
// roughly real time like a live device.
type toneSource struct {
	rate float64
	freq float64
	amp  float64
}

func (s *toneSource) SampleRate() int { return int(s.rate) }

func (s *toneSource) Chunks(ctx context.Context) (<-chan []float64, error) {
	ch := make(chan []float64)
	go func() {
		defer close(ch)
		const chunk = 256
		interval := time.Duration(chunk / s.rate * float64(time.Second))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		n := 0
		for {
			buf := make([]float64, chunk)
			for i := range buf {
				buf[i] = s.amp * math.Sin(2*math.Pi*s.freq*float64(n)/s.rate)
				n++
			}
			select {
			case ch <- buf:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []detect.Event
}

func (s *eventSink) Consume(ev detect.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *eventSink) snapshot() []detect.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]detect.Event, len(s.events))
	copy(out, s.events)
	return out
}

func defaultBands() []detect.BandConfig {
	return []detect.BandConfig{
		{
			Name:              "infrasound",
			MinHz:             0.01,
			MaxHz:             20,
			ThresholdDB:       -40,
			MinDuration:       500 * time.Millisecond,
			MinPeakDistanceHz: 0.5,
		},
		{
			Name:              "ultrasound",
			MinHz:             20000,
			MaxHz:             48000,
			ThresholdDB:       -50,
			MinDuration:       50 * time.Millisecond,
			MinPeakDistanceHz: 200,
		},
	}
}

func TestEngineEndToEnd(t *testing.T) {
	const rate = 96000

	// 5 seconds with a 5 Hz component at -6 dB and a 25 kHz component at
	// -10.5 dB. The long transform resolves 0.73 Hz per bin.
	signal := audio.Mix(
		audio.Tone(5, 5.0, rate, 0.5),
		audio.Tone(25000, 5.0, rate, 0.3),
	)

	cfg := Config{
		SampleRate: rate,
		FFTSize:    1 << 17,
		HopSize:    16384,
		Bands:      defaultBands(),
	}

	eng, err := New(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sink := &eventSink{}
	eng.Register("sink", sink)

	src := &sliceSource{rate: rate, samples: signal, chunkSize: 4096}
	if err := eng.Run(context.Background(), src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("Expected exactly 2 events, got %d: %+v", len(events), events)
	}

	byType := map[string]detect.Event{}
	for _, ev := range events {
		byType[ev.Type] = ev
	}

	infra, ok := byType["infrasound"]
	if !ok {
		t.Fatal("Missing infrasound event")
	}
	resolution := float64(rate) / float64(cfg.FFTSize)
	if math.Abs(infra.FrequencyHz-5) > resolution {
		t.Errorf("Infrasound: expected about 5 Hz, got %.3f Hz", infra.FrequencyHz)
	}
	if math.Abs(infra.MagnitudeDB-(-6.0)) > 1.5 {
		t.Errorf("Infrasound: expected about -6.0 dB, got %.2f dB", infra.MagnitudeDB)
	}
	if infra.Subtype != "machinery" {
		t.Errorf("Infrasound: expected subtype machinery, got %q", infra.Subtype)
	}

	ultra, ok := byType["ultrasound"]
	if !ok {
		t.Fatal("Missing ultrasound event")
	}
	if math.Abs(ultra.FrequencyHz-25000) > resolution {
		t.Errorf("Ultrasound: expected about 25000 Hz, got %.3f Hz", ultra.FrequencyHz)
	}
	if math.Abs(ultra.MagnitudeDB-(-10.5)) > 1.5 {
		t.Errorf("Ultrasound: expected about -10.5 dB, got %.2f dB", ultra.MagnitudeDB)
	}
	if ultra.Subtype != "bat/insect" {
		t.Errorf("Ultrasound: expected subtype bat/insect, got %q", ultra.Subtype)
	}

	stats := eng.GetStats()
	if stats.FramesProcessed == 0 {
		t.Error("Expected frames to be processed")
	}
	if stats.Buffer.OverrunSamples != 0 {
		t.Errorf("Expected no overruns, got %d", stats.Buffer.OverrunSamples)
	}
}

func TestEngineSilenceProducesNoEvents(t *testing.T) {
	const rate = 96000
	signal := make([]float64, rate) // one second of silence

	eng, err := New(Config{
		SampleRate: rate,
		FFTSize:    4096,
		HopSize:    1024,
		Bands:      defaultBands(),
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sink := &eventSink{}
	eng.Register("sink", sink)

	src := &sliceSource{rate: rate, samples: signal, chunkSize: 4096}
	if err := eng.Run(context.Background(), src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := len(sink.snapshot()); got != 0 {
		t.Errorf("Expected no events in silence, got %d", got)
	}
}

func TestEngineCancelFlushesConfirmed(t *testing.T) {
	// A continuous in-band tone is still confirmed when the session is
	// cancelled; stopping must finalize it instead of dropping it.
	cfg := Config{
		SampleRate: 8000,
		FFTSize:    1024,
		HopSize:    256,
		Bands: []detect.BandConfig{{
			Name:              "tone",
			MinHz:             900,
			MaxHz:             1100,
			ThresholdDB:       -20,
			MinDuration:       100 * time.Millisecond,
			MinPeakDistanceHz: 10,
		}},
	}

	eng, err := New(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sink := &eventSink{}
	eng.Register("sink", sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx, &toneSource{rate: 8000, freq: 1000, amp: 0.5})
	}()

	time.Sleep(time.Second)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("Expected the sustained tone to be flushed as 1 event, got %d", len(events))
	}
	if math.Abs(events[0].FrequencyHz-1000) > 8000.0/1024 {
		t.Errorf("Expected about 1000 Hz, got %.1f Hz", events[0].FrequencyHz)
	}
}

func TestEngineShedsBacklog(t *testing.T) {
	cfg := Config{
		SampleRate: 8000,
		FFTSize:    1024,
		HopSize:    256,
		MaxBacklog: 100 * time.Millisecond, // 800 samples
		Bands: []detect.BandConfig{{
			Name:              "tone",
			MinHz:             900,
			MaxHz:             1100,
			ThresholdDB:       -20,
			MinDuration:       100 * time.Millisecond,
			MinPeakDistanceHz: 10,
		}},
	}

	eng, err := New(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Far more than the backlog limit waiting unanalyzed.
	eng.ring.Push(make([]float64, 8000))
	eng.shedBacklog()

	stats := eng.GetStats()
	if stats.SamplesSkipped == 0 {
		t.Fatal("Expected backlog shedding to skip samples")
	}
	if buffered := eng.ring.Buffered(); buffered > cfg.FFTSize {
		t.Errorf("Expected at most one frame left after shedding, got %d samples", buffered)
	}
}

func TestEngineRejectsMismatchedSourceRate(t *testing.T) {
	eng, err := New(Config{
		SampleRate: 96000,
		FFTSize:    4096,
		HopSize:    1024,
		Bands:      defaultBands(),
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	src := &sliceSource{rate: 48000, samples: make([]float64, 1000), chunkSize: 100}
	if err := eng.Run(context.Background(), src); err == nil {
		t.Error("Expected error for mismatched source sample rate")
	}
}

func TestEngineConfigValidation(t *testing.T) {
	base := func() Config {
		return Config{
			SampleRate: 96000,
			FFTSize:    4096,
			HopSize:    1024,
			Bands:      defaultBands(),
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"fft not power of two", func(c *Config) { c.FFTSize = 5000 }},
		{"zero hop", func(c *Config) { c.HopSize = 0 }},
		{"hop exceeds frame", func(c *Config) { c.HopSize = 8192 }},
		{"no bands", func(c *Config) { c.Bands = nil }},
		{"band above nyquist", func(c *Config) { c.SampleRate = 16000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			if _, err := New(cfg, testLogger(), nil); err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
		})
	}
}

var _ dispatch.Consumer = (*eventSink)(nil)
