package classify

import (
	"testing"

	"github.com/openacoustics/inaudible-monitor/internal/detect"
)

func TestClassifyDefaultRules(t *testing.T) {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}

	cases := []struct {
		band    string
		freq    float64
		subtype string
	}{
		{"infrasound", 0.3, "seismic/weather"},
		{"infrasound", 5.0, "machinery"},
		{"infrasound", 19.9, "machinery"},
		{"ultrasound", 25000, "bat/insect"},
		{"ultrasound", 49999, "bat/insect"},
		{"ultrasound", 50000, "rodent/electronic"},
		{"ultrasound", 80000, "rodent/electronic"},
	}

	for _, tc := range cases {
		ev := c.Classify(detect.Event{Type: tc.band, FrequencyHz: tc.freq})
		if ev.Subtype != tc.subtype {
			t.Errorf("%s %.1f Hz: expected subtype %q, got %q", tc.band, tc.freq, tc.subtype, ev.Subtype)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c, _ := NewClassifier(DefaultRules())

	in := detect.Event{Type: "ultrasound", FrequencyHz: 25000, MagnitudeDB: -10.5}
	first := c.Classify(in)
	for i := 0; i < 100; i++ {
		if got := c.Classify(in); got != first {
			t.Fatalf("Classification diverged on call %d: %+v vs %+v", i, got, first)
		}
	}
}

func TestClassifyUnmatchedKeepsEmptySubtype(t *testing.T) {
	c, _ := NewClassifier(DefaultRules())

	ev := c.Classify(detect.Event{Type: "sonar", FrequencyHz: 40000})
	if ev.Subtype != "" {
		t.Errorf("Expected empty subtype for unknown band, got %q", ev.Subtype)
	}
}

func TestClassifyDoesNotMutateInput(t *testing.T) {
	c, _ := NewClassifier(DefaultRules())

	in := detect.Event{Type: "infrasound", FrequencyHz: 5}
	_ = c.Classify(in)
	if in.Subtype != "" {
		t.Errorf("Expected input event untouched, got subtype %q", in.Subtype)
	}
}

func TestNewClassifierRejectsInvalidRules(t *testing.T) {
	if _, err := NewClassifier([]Rule{{Band: "", MinHz: 0, MaxHz: 1, Subtype: "x"}}); err == nil {
		t.Error("Expected error for empty band")
	}
	if _, err := NewClassifier([]Rule{{Band: "b", MinHz: 10, MaxHz: 5, Subtype: "x"}}); err == nil {
		t.Error("Expected error for inverted range")
	}
}
