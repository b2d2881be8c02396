// Package audio provides capture-side sample buffering and WAV I/O.
// It implements a fixed-capacity ring buffer with overwrite-oldest overrun
// semantics for real-time capture, plus PCM encoding and decoding for the
// offline analysis path.
package audio
