// SPDX-License-Identifier: MIT
/*
Package spectrum computes the discrete Fourier transform of a real window.

The Engine owns every buffer it needs. They are sized once in NewEngine, and
the per-window chain (Transform, Scale, Amplitude) runs without allocating.

Output convention: the complex result always has the full window length N.
Bins 0..N/2 come from gonum's real-input transform; the remaining bins are
filled with the Hermitian mirror X[N-k] = conj(X[k]), which is exact for real
input. HalfSpectrum exposes the N/2+1 view for consumers that only want the
non-redundant part.
*/
package spectrum

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Options controls the post-processing applied around the transform.
type Options struct {
	ApplyScale bool // multiply the spectrum by the scale factor (1/N in Compute)
	DCRemove   bool // subtract the window mean before transforming
}

// Engine holds the FFT plan and the pre-allocated result buffers.
type Engine struct {
	size int
	opts Options

	fft *fourier.FFT

	input     []float64    // window copy, DC removed when enabled
	spectrum  []complex128 // full length complex result
	amplitude []float64    // |spectrum[k]|
	mean      float64      // mean removed from the last window
}

// NewEngine allocates an engine for windows of n samples.
func NewEngine(n int, opts Options) (*Engine, error) {
	if n <= 0 {
		return nil, fmt.Errorf("spectrum size must be positive, got %d", n)
	}

	return &Engine{
		size:      n,
		opts:      opts,
		fft:       fourier.NewFFT(n),
		input:     make([]float64, n),
		spectrum:  make([]complex128, n),
		amplitude: make([]float64, n),
	}, nil
}

// Size returns the window length N.
func (e *Engine) Size() int {
	return e.size
}

// Options returns the post-processing options fixed at construction.
func (e *Engine) Options() Options {
	return e.opts
}

// Transform computes the forward DFT of window into the engine's spectrum
// buffer and returns it. window must have exactly Size() samples and is not
// modified.
func (e *Engine) Transform(window []float64) []complex128 {
	copy(e.input, window)

	e.mean = 0
	if e.opts.DCRemove {
		e.mean = floats.Sum(e.input) / float64(e.size)
		floats.AddConst(-e.mean, e.input)
	}

	half := e.size/2 + 1
	e.fft.Coefficients(e.spectrum[:half], e.input)
	for k := half; k < e.size; k++ {
		e.spectrum[k] = cmplx.Conj(e.spectrum[e.size-k])
	}
	return e.spectrum
}

// Scale multiplies every spectrum element by factor when ApplyScale is set.
// It is the identity otherwise.
func (e *Engine) Scale(factor float64) {
	if !e.opts.ApplyScale {
		return
	}
	c := complex(factor, 0)
	for i := range e.spectrum {
		e.spectrum[i] *= c
	}
}

// Amplitude fills the amplitude buffer with the magnitude of every spectrum
// element and returns it.
func (e *Engine) Amplitude() []float64 {
	for i, c := range e.spectrum {
		e.amplitude[i] = cmplx.Abs(c)
	}
	return e.amplitude
}

// Compute runs the full chain for one window: transform, scale by 1/N and
// amplitude.
func (e *Engine) Compute(window []float64) {
	e.Transform(window)
	e.Scale(1 / float64(e.size))
	e.Amplitude()
}

// Spectrum returns the complex result buffer. Callers must not modify it.
func (e *Engine) Spectrum() []complex128 {
	return e.spectrum
}

// HalfSpectrum returns the non-redundant bins 0..N/2 of the result.
func (e *Engine) HalfSpectrum() []complex128 {
	return e.spectrum[:e.size/2+1]
}

// Amplitudes returns the amplitude buffer. Callers must not modify it.
func (e *Engine) Amplitudes() []float64 {
	return e.amplitude
}

// Mean returns the value removed from the last window by DC removal, 0 when
// DC removal is off.
func (e *Engine) Mean() float64 {
	return e.mean
}
