// Package engine wires the monitoring pipeline together: stream buffer,
// per-band spectral analysis and detection, classification, and event
// dispatch, under one explicit start/stop lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openacoustics/inaudible-monitor/internal/audio"
	"github.com/openacoustics/inaudible-monitor/internal/classify"
	"github.com/openacoustics/inaudible-monitor/internal/detect"
	"github.com/openacoustics/inaudible-monitor/internal/dispatch"
	"github.com/openacoustics/inaudible-monitor/internal/dsp"
	"github.com/openacoustics/inaudible-monitor/internal/metrics"
)

// Config contains the full analysis pipeline configuration.
type Config struct {
	SampleRate int
	FFTSize    int
	HopSize    int
	FrameSize  int // analysis window in samples; defaults to FFTSize

	Window    dsp.WindowType
	Normalize bool

	// FilterOrder sets the per-band Butterworth isolation filter order.
	// 0 disables band isolation.
	FilterOrder int

	MinFrequency float64

	// BufferCapacity is the stream buffer size in samples. Defaults to
	// ten seconds of audio.
	BufferCapacity int

	// MaxBacklog bounds how much unanalyzed audio may accumulate before
	// the analysis loop sheds load by skipping to the most recent frame.
	// 0 disables shedding, which offline file analysis relies on.
	MaxBacklog time.Duration

	Bands      []detect.BandConfig
	Rules      []classify.Rule
	Dispatcher dispatch.Config
}

// Validate checks the engine configuration
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}

	if c.FFTSize <= 0 || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a positive power of two, got %d", c.FFTSize)
	}

	if c.HopSize <= 0 {
		return fmt.Errorf("hop_length must be positive, got %d", c.HopSize)
	}

	frame := c.FrameSize
	if frame == 0 {
		frame = c.FFTSize
	}

	if c.HopSize > frame {
		return fmt.Errorf("hop_length %d exceeds frame size %d", c.HopSize, frame)
	}

	if frame > c.FFTSize {
		return fmt.Errorf("frame size %d exceeds fft_size %d", frame, c.FFTSize)
	}

	if c.FilterOrder < 0 {
		return fmt.Errorf("filter_order must not be negative, got %d", c.FilterOrder)
	}

	if len(c.Bands) == 0 {
		return fmt.Errorf("at least one band must be configured")
	}

	for i := range c.Bands {
		if err := c.Bands[i].Validate(c.SampleRate); err != nil {
			return err
		}
	}

	return nil
}

// band bundles the per-band processing chain: optional isolation filter,
// spectral transform, and hysteresis detector.
type band struct {
	cfg      detect.BandConfig
	filter   *dsp.Bandpass
	detector *detect.Detector
}

// Engine owns one monitoring session. Create with New, attach consumers,
// then Run exactly once.
type Engine struct {
	config Config
	logger *slog.Logger
	m      *metrics.Metrics // may be nil

	ring       *audio.Ring
	transform  *dsp.Transform
	bands      []band
	classifier *classify.Classifier
	dispatcher *dispatch.Dispatcher

	hop       time.Duration
	frameSize int
	scratch   []float64

	running         bool
	framesProcessed uint64
	samplesSkipped  uint64
	eventsDetected  uint64
	mu              sync.Mutex

	// Last observed component counters, for metric deltas.
	lastOverruns  uint64
	lastDropped   uint64
	lastErrors    uint64
	lastDiscarded []uint64
}

// Stats represents an engine snapshot for monitoring APIs
type Stats struct {
	Running         bool                   `json:"running"`
	FramesProcessed uint64                 `json:"frames_processed"`
	SamplesSkipped  uint64                 `json:"samples_skipped"`
	EventsDetected  uint64                 `json:"events_detected"`
	Buffer          audio.RingStats        `json:"buffer"`
	Dispatcher      dispatch.Stats         `json:"dispatcher"`
	Bands           []detect.DetectorStats `json:"bands"`
}

// New creates an engine from a validated configuration. m may be nil when
// metrics are not wanted, as in tests.
func New(config Config, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	if config.FrameSize == 0 {
		config.FrameSize = config.FFTSize
	}
	if config.BufferCapacity == 0 {
		config.BufferCapacity = 10 * config.SampleRate
	}
	if config.Dispatcher.QueueSize == 0 {
		config.Dispatcher = dispatch.DefaultConfig()
	}

	ring, err := audio.NewRing(config.BufferCapacity, config.SampleRate)
	if err != nil {
		return nil, err
	}

	transform, err := dsp.NewTransform(config.SampleRate, config.FrameSize, dsp.TransformConfig{
		FFTSize:      config.FFTSize,
		Window:       config.Window,
		Normalize:    config.Normalize,
		MinFrequency: config.MinFrequency,
	})
	if err != nil {
		return nil, err
	}

	hop := time.Duration(float64(config.HopSize) / float64(config.SampleRate) * float64(time.Second))

	bands := make([]band, 0, len(config.Bands))
	for _, bc := range config.Bands {
		detector, err := detect.NewDetector(bc, hop, config.SampleRate)
		if err != nil {
			return nil, err
		}

		b := band{cfg: bc, detector: detector}
		if config.FilterOrder > 0 {
			b.filter, err = dsp.NewBandpass(bc.MinHz, bc.MaxHz, config.FilterOrder, config.SampleRate)
			if err != nil {
				return nil, fmt.Errorf("band %s: %w", bc.Name, err)
			}
		}

		bands = append(bands, b)
	}

	rules := config.Rules
	if rules == nil {
		rules = classify.DefaultRules()
	}
	classifier, err := classify.NewClassifier(rules)
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(config.Dispatcher, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:        config,
		logger:        logger,
		m:             m,
		ring:          ring,
		transform:     transform,
		bands:         bands,
		classifier:    classifier,
		dispatcher:    dispatcher,
		hop:           hop,
		frameSize:     config.FrameSize,
		scratch:       make([]float64, config.FrameSize),
		lastDiscarded: make([]uint64, len(bands)),
	}, nil
}

// Register attaches a named event consumer. Safe at any time.
func (e *Engine) Register(name string, c dispatch.Consumer) {
	e.dispatcher.Register(name, c)
}

// Unregister detaches a named event consumer.
func (e *Engine) Unregister(name string) {
	e.dispatcher.Unregister(name)
}

// Run consumes the source until it is exhausted or ctx is cancelled, then
// finalizes still-confirmed detections and drains the dispatcher. The
// engine is single-use: Run must be called at most once.
func (e *Engine) Run(ctx context.Context, src Source) error {
	if src.SampleRate() != e.config.SampleRate {
		return fmt.Errorf("source sample rate %d does not match configured %d",
			src.SampleRate(), e.config.SampleRate)
	}

	chunks, err := src.Chunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Monitoring session started",
		slog.Int("sample_rate", e.config.SampleRate),
		slog.Int("fft_size", e.config.FFTSize),
		slog.Int("hop_length", e.config.HopSize),
		slog.Int("bands", len(e.bands)),
	)

	intakeDone := make(chan struct{})
	go func() {
		defer close(intakeDone)
		for chunk := range chunks {
			e.ring.Push(chunk)
			if e.m != nil {
				e.m.SamplesCaptured.Add(float64(len(chunk)))
			}
		}
	}()

	ticker := time.NewTicker(e.hop)
	defer ticker.Stop()

	cancelled := false
loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop

		case <-intakeDone:
			// Source exhausted: analyze everything still buffered.
			e.drainAvailable(ctx)
			break loop

		case <-ticker.C:
			e.shedBacklog()
			e.drainAvailable(ctx)
			e.updateMetrics()
		}
	}

	e.flush()
	e.dispatcher.Close()
	e.updateMetrics()

	e.mu.Lock()
	e.running = false
	frames := e.framesProcessed
	events := e.eventsDetected
	e.mu.Unlock()

	e.logger.Info("Monitoring session stopped",
		slog.Bool("cancelled", cancelled),
		slog.Uint64("frames_processed", frames),
		slog.Uint64("events_detected", events),
		slog.Uint64("buffer_overruns", e.ring.Overruns()),
	)

	return nil
}

// GetStats returns a snapshot of all pipeline counters
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	stats := Stats{
		Running:         e.running,
		FramesProcessed: e.framesProcessed,
		SamplesSkipped:  e.samplesSkipped,
		EventsDetected:  e.eventsDetected,
	}
	e.mu.Unlock()

	stats.Buffer = e.ring.GetStats()
	stats.Dispatcher = e.dispatcher.GetStats()
	for i := range e.bands {
		stats.Bands = append(stats.Bands, e.bands[i].detector.GetStats())
	}

	return stats
}

// drainAvailable analyzes every complete frame currently buffered. A
// cancelled context stops after the frame in flight.
func (e *Engine) drainAvailable(ctx context.Context) {
	for {
		frame, ok := e.ring.PopWindow(e.frameSize, e.config.HopSize)
		if !ok {
			return
		}

		e.processFrame(frame)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// shedBacklog keeps analysis latency bounded: when more than MaxBacklog of
// audio is waiting, skip ahead so only the most recent frame remains.
func (e *Engine) shedBacklog() {
	if e.config.MaxBacklog <= 0 {
		return
	}

	limit := int(e.config.MaxBacklog.Seconds() * float64(e.config.SampleRate))
	if e.ring.Buffered() <= limit {
		return
	}

	skipped := e.ring.SkipToLatest(e.frameSize)
	if skipped == 0 {
		return
	}

	e.mu.Lock()
	e.samplesSkipped += uint64(skipped)
	e.mu.Unlock()

	if e.m != nil {
		e.m.SamplesSkipped.Add(float64(skipped))
	}

	e.logger.Warn("Analysis backlog exceeded, skipping to latest audio",
		slog.Int("skipped_samples", skipped),
		slog.Duration("max_backlog", e.config.MaxBacklog),
	)
}

func (e *Engine) processFrame(frame *audio.Frame) {
	start := time.Now()

	for i := range e.bands {
		b := &e.bands[i]

		work := e.scratch[:len(frame.Samples)]
		copy(work, frame.Samples)

		if b.filter != nil {
			// Frames overlap, so each one is filtered from cold state.
			b.filter.Reset()
			b.filter.Process(work)
		}

		sf, err := e.transform.Spectrum(&audio.Frame{
			Samples:    work,
			SampleRate: frame.SampleRate,
			Start:      frame.Start,
		})
		if err != nil {
			e.logger.Warn("Spectral transform failed",
				slog.String("band", b.cfg.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		if ev := b.detector.Process(sf); ev != nil {
			e.emit(*ev)
		}
	}

	e.mu.Lock()
	e.framesProcessed++
	e.mu.Unlock()

	if e.m != nil {
		e.m.FramesProcessed.Inc()
		e.m.FrameTime.Observe(time.Since(start).Seconds())
	}
}

// flush finalizes every still-confirmed band so no sustained event is lost
// on session stop.
func (e *Engine) flush() {
	for i := range e.bands {
		if ev := e.bands[i].detector.Flush(); ev != nil {
			e.emit(*ev)
		}
	}
}

func (e *Engine) emit(ev detect.Event) {
	ev = e.classifier.Classify(ev)

	e.logger.Info("Event confirmed",
		slog.String("type", ev.Type),
		slog.String("subtype", ev.Subtype),
		slog.Float64("frequency_hz", ev.FrequencyHz),
		slog.Float64("magnitude_db", ev.MagnitudeDB),
		slog.Float64("timestamp", ev.Timestamp),
		slog.Float64("duration_s", ev.DurationS),
		slog.Float64("confidence", ev.Confidence),
	)

	e.dispatcher.Emit(ev)

	e.mu.Lock()
	e.eventsDetected++
	e.mu.Unlock()

	if e.m != nil {
		e.m.EventsDetected.WithLabelValues(ev.Type).Inc()
	}
}

// updateMetrics publishes component counters that only this loop observes.
func (e *Engine) updateMetrics() {
	if e.m == nil {
		return
	}

	e.m.BufferedSamples.Set(float64(e.ring.Buffered()))

	if overruns := e.ring.Overruns(); overruns > e.lastOverruns {
		e.m.BufferOverruns.Add(float64(overruns - e.lastOverruns))
		e.lastOverruns = overruns
	}

	ds := e.dispatcher.GetStats()
	e.m.EventQueueSize.Set(float64(ds.QueueSize))
	if ds.EventsDropped > e.lastDropped {
		e.m.EventsDropped.Add(float64(ds.EventsDropped - e.lastDropped))
		e.lastDropped = ds.EventsDropped
	}
	if ds.DeliveryErrors > e.lastErrors {
		e.m.DeliveryErrors.Add(float64(ds.DeliveryErrors - e.lastErrors))
		e.lastErrors = ds.DeliveryErrors
	}

	for i := range e.bands {
		bs := e.bands[i].detector.GetStats()
		if bs.CandidatesDiscarded > e.lastDiscarded[i] {
			e.m.CandidatesDiscarded.WithLabelValues(bs.Band).
				Add(float64(bs.CandidatesDiscarded - e.lastDiscarded[i]))
			e.lastDiscarded[i] = bs.CandidatesDiscarded
		}
	}
}
