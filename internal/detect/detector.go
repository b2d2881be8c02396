package detect

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openacoustics/inaudible-monitor/internal/dsp"
)

// Phase represents the current state of a band's detection cycle
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCandidate
	PhaseConfirmed
)

func (p Phase) String() string {
	switch p {
	case PhaseCandidate:
		return "candidate"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "idle"
	}
}

// BandConfig describes one monitored frequency band.
type BandConfig struct {
	Name              string
	MinHz             float64
	MaxHz             float64
	ThresholdDB       float64
	MinDuration       time.Duration
	MinPeakDistanceHz float64

	// ReleaseHops is how many consecutive hops without a qualifying peak
	// close a confirmed occurrence. 0 means 1: a single missed hop ends
	// the event.
	ReleaseHops int
}

// Validate checks the band configuration against the capture sample rate.
func (c *BandConfig) Validate(sampleRate int) error {
	if c.Name == "" {
		return fmt.Errorf("band name must not be empty")
	}

	if c.MinHz < 0 {
		return fmt.Errorf("band %s: min_hz must not be negative, got %.2f", c.Name, c.MinHz)
	}

	if c.MaxHz <= c.MinHz {
		return fmt.Errorf("band %s: max_hz %.2f must exceed min_hz %.2f", c.Name, c.MaxHz, c.MinHz)
	}

	nyquist := float64(sampleRate) / 2
	if c.MaxHz > nyquist {
		return fmt.Errorf("band %s: max_hz %.2f exceeds Nyquist %.2f for sample rate %d",
			c.Name, c.MaxHz, nyquist, sampleRate)
	}

	if c.MinDuration <= 0 {
		return fmt.Errorf("band %s: min_duration must be positive, got %v", c.Name, c.MinDuration)
	}

	if c.MinPeakDistanceHz < 0 {
		return fmt.Errorf("band %s: min_peak_distance_hz must not be negative, got %.2f",
			c.Name, c.MinPeakDistanceHz)
	}

	if c.ReleaseHops < 0 {
		return fmt.Errorf("band %s: release_hops must not be negative, got %d", c.Name, c.ReleaseHops)
	}

	return nil
}

// Event is an immutable record of one confirmed acoustic occurrence. It is
// the canonical export shape serialized by reporting consumers.
type Event struct {
	Type        string  `json:"type"`
	Subtype     string  `json:"subtype,omitempty"`
	FrequencyHz float64 `json:"frequency_hz"`
	MagnitudeDB float64 `json:"magnitude_db"`
	Timestamp   float64 `json:"timestamp"` // seconds from session start
	DurationS   float64 `json:"duration_s"`
	Confidence  float64 `json:"confidence"`
}

// Detector is the hysteresis state machine for one band. It is driven once
// per spectral frame and emits exactly one Event per continuous occurrence,
// when the occurrence closes.
type Detector struct {
	cfg BandConfig
	hop time.Duration

	phase      Phase
	start      time.Duration // stream time the occurrence began
	lastSeen   time.Duration // stream time of the last qualifying frame
	bestFreq   float64
	bestMag    float64
	missedHops int

	eventsEmitted       uint64
	candidatesDiscarded uint64
	framesProcessed     uint64

	mu sync.Mutex
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	Band                string `json:"band"`
	Phase               string `json:"phase"`
	FramesProcessed     uint64 `json:"frames_processed"`
	EventsEmitted       uint64 `json:"events_emitted"`
	CandidatesDiscarded uint64 `json:"candidates_discarded"`
}

// NewDetector creates a detector for one band. hop is the stream time
// advanced by each successive frame.
func NewDetector(cfg BandConfig, hop time.Duration, sampleRate int) (*Detector, error) {
	if err := cfg.Validate(sampleRate); err != nil {
		return nil, err
	}

	if hop <= 0 {
		return nil, fmt.Errorf("hop interval must be positive, got %v", hop)
	}

	if cfg.ReleaseHops == 0 {
		cfg.ReleaseHops = 1
	}

	return &Detector{cfg: cfg, hop: hop, phase: PhaseIdle}, nil
}

// Band returns the band configuration the detector was built with.
func (d *Detector) Band() BandConfig {
	return d.cfg
}

// Process advances the state machine with one spectral frame. It returns a
// finalized Event when a confirmed occurrence closes, otherwise nil.
func (d *Detector) Process(sf *dsp.SpectralFrame) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.framesProcessed++

	peaks := findPeaks(sf, d.cfg.MinHz, d.cfg.MaxHz, d.cfg.ThresholdDB, d.cfg.MinPeakDistanceHz)

	var peak Peak
	hasPeak := len(peaks) > 0
	if hasPeak {
		peak = peaks[0]
	}

	switch d.phase {
	case PhaseIdle:
		if hasPeak {
			d.phase = PhaseCandidate
			d.start = sf.Start
			d.lastSeen = sf.Start
			d.bestFreq = peak.FrequencyHz
			d.bestMag = peak.MagnitudeDB
		}

	case PhaseCandidate:
		if !hasPeak {
			// The crossing did not sustain. Discard without an event.
			d.candidatesDiscarded++
			d.reset()
			return nil
		}

		d.observe(peak, sf.Start)
		if d.sustained() >= d.cfg.MinDuration {
			d.phase = PhaseConfirmed
		}

	case PhaseConfirmed:
		if hasPeak {
			d.observe(peak, sf.Start)
			d.missedHops = 0
			return nil
		}

		d.missedHops++
		if d.missedHops >= d.cfg.ReleaseHops {
			ev := d.finalize()
			d.reset()
			return ev
		}
	}

	return nil
}

// Flush finalizes a still-confirmed occurrence, as on session stop. A
// pending candidate is discarded. Returns nil when there is nothing to
// finalize.
func (d *Detector) Flush() *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.phase {
	case PhaseConfirmed:
		ev := d.finalize()
		d.reset()
		return ev
	case PhaseCandidate:
		d.candidatesDiscarded++
		d.reset()
	}

	return nil
}

// Reset returns the detector to idle, discarding any pending occurrence.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return DetectorStats{
		Band:                d.cfg.Name,
		Phase:               d.phase.String(),
		FramesProcessed:     d.framesProcessed,
		EventsEmitted:       d.eventsEmitted,
		CandidatesDiscarded: d.candidatesDiscarded,
	}
}

func (d *Detector) observe(peak Peak, at time.Duration) {
	d.lastSeen = at
	if peak.MagnitudeDB > d.bestMag {
		d.bestMag = peak.MagnitudeDB
		d.bestFreq = peak.FrequencyHz
	}
}

// sustained is the cumulative qualifying span, counting each frame as one
// hop of coverage.
func (d *Detector) sustained() time.Duration {
	return d.lastSeen - d.start + d.hop
}

func (d *Detector) finalize() *Event {
	duration := d.sustained()
	d.eventsEmitted++

	return &Event{
		Type:        d.cfg.Name,
		FrequencyHz: d.bestFreq,
		MagnitudeDB: d.bestMag,
		Timestamp:   d.start.Seconds(),
		DurationS:   duration.Seconds(),
		Confidence:  d.confidence(duration),
	}
}

// confidence grows with threshold margin and with how far past the minimum
// duration the occurrence sustained. Monotonic in both, bounded to [0, 1].
func (d *Detector) confidence(duration time.Duration) float64 {
	margin := (d.bestMag - d.cfg.ThresholdDB) / 20
	if margin > 1 {
		margin = 1
	}
	if margin < 0 {
		margin = 0
	}

	excess := (duration - d.cfg.MinDuration).Seconds()
	if excess < 0 {
		excess = 0
	}
	persistence := excess / (excess + d.cfg.MinDuration.Seconds())

	return math.Min(1, 0.5*margin+0.5*persistence)
}

func (d *Detector) reset() {
	d.phase = PhaseIdle
	d.start = 0
	d.lastSeen = 0
	d.bestFreq = 0
	d.bestMag = 0
	d.missedHops = 0
}
