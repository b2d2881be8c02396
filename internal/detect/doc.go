// Package detect turns magnitude spectra into confirmed acoustic events.
// Each configured frequency band runs an independent hysteresis state
// machine over per-frame peak observations.
package detect
