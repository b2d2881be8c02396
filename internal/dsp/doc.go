// Package dsp implements the spectral transform: preprocessing, optional
// band isolation with a Butterworth bandpass in cascaded second-order
// sections, windowing, and FFT magnitude spectra in dBFS.
package dsp
