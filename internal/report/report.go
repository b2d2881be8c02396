// Package report exports confirmed events in line-delimited JSON or CSV.
// Both writers are dispatcher consumers.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"sync"

	"github.com/openacoustics/inaudible-monitor/internal/detect"
)

// JSONWriter streams one JSON object per event.
type JSONWriter struct {
	enc *json.Encoder
	mu  sync.Mutex
}

// NewJSONWriter creates a JSON exporter writing to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

// Consume writes the event as one JSON line.
func (j *JSONWriter) Consume(ev detect.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(ev)
}

var csvHeader = []string{
	"type", "subtype", "frequency_hz", "magnitude_db", "timestamp", "duration_s", "confidence",
}

// CSVWriter streams events as CSV rows, writing the header before the
// first event.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
	mu          sync.Mutex
}

// NewCSVWriter creates a CSV exporter writing to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Consume appends the event as one CSV row and flushes it.
func (c *CSVWriter) Consume(ev detect.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wroteHeader {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	row := []string{
		ev.Type,
		ev.Subtype,
		strconv.FormatFloat(ev.FrequencyHz, 'f', 3, 64),
		strconv.FormatFloat(ev.MagnitudeDB, 'f', 2, 64),
		strconv.FormatFloat(ev.Timestamp, 'f', 3, 64),
		strconv.FormatFloat(ev.DurationS, 'f', 3, 64),
		strconv.FormatFloat(ev.Confidence, 'f', 3, 64),
	}

	if err := c.w.Write(row); err != nil {
		return err
	}

	c.w.Flush()
	return c.w.Error()
}

// Recorder keeps the most recent events in memory for the status API.
type Recorder struct {
	limit  int
	events []detect.Event
	mu     sync.Mutex
}

// NewRecorder creates a recorder holding up to limit recent events.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

// Consume records the event, evicting the oldest past the limit.
func (r *Recorder) Consume(ev detect.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []detect.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]detect.Event, len(r.events))
	copy(out, r.events)
	return out
}
