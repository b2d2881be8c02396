// Package capture provides audio sources for the monitoring engine: a live
// PortAudio input device and an offline WAV file reader. Both satisfy the
// engine's Source interface.
package capture
