// Package classify assigns a subtype to confirmed events using a
// configurable rule table keyed by band and frequency range.
package classify

import (
	"fmt"

	"github.com/openacoustics/inaudible-monitor/internal/detect"
)

// Rule maps a frequency range within one band to a subtype label. Ranges
// are half-open: [MinHz, MaxHz).
type Rule struct {
	Band    string
	MinHz   float64
	MaxHz   float64
	Subtype string
}

// Classifier is a pure lookup over an ordered rule table. Identical inputs
// always produce identical results.
type Classifier struct {
	rules []Rule
}

// DefaultRules covers the two stock monitoring bands.
func DefaultRules() []Rule {
	return []Rule{
		{Band: "infrasound", MinHz: 0, MaxHz: 1, Subtype: "seismic/weather"},
		{Band: "infrasound", MinHz: 1, MaxHz: 20, Subtype: "machinery"},
		{Band: "ultrasound", MinHz: 20000, MaxHz: 50000, Subtype: "bat/insect"},
		{Band: "ultrasound", MinHz: 50000, MaxHz: 200000, Subtype: "rodent/electronic"},
	}
}

// NewClassifier creates a classifier from a rule table. An empty table is
// valid: every event then keeps an empty subtype.
func NewClassifier(rules []Rule) (*Classifier, error) {
	for i, r := range rules {
		if r.Band == "" {
			return nil, fmt.Errorf("rule %d: band must not be empty", i)
		}
		if r.MaxHz <= r.MinHz {
			return nil, fmt.Errorf("rule %d (%s): max_hz %.2f must exceed min_hz %.2f",
				i, r.Band, r.MaxHz, r.MinHz)
		}
	}

	table := make([]Rule, len(rules))
	copy(table, rules)

	return &Classifier{rules: table}, nil
}

// Classify returns a copy of the event with its subtype filled in. The
// first matching rule wins; an unmatched event keeps an empty subtype.
func (c *Classifier) Classify(ev detect.Event) detect.Event {
	for _, r := range c.rules {
		if r.Band == ev.Type && ev.FrequencyHz >= r.MinHz && ev.FrequencyHz < r.MaxHz {
			ev.Subtype = r.Subtype
			return ev
		}
	}

	return ev
}
