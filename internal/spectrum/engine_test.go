// SPDX-License-Identifier: MIT
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	dspfft "github.com/mjibson/go-dsp/fft"
)

const tolerance = 1e-9

func newTestEngine(t *testing.T, n int, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(n, opts)
	if err != nil {
		t.Fatalf("NewEngine(%d) error: %v", n, err)
	}
	return e
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}

func TestNewEngineInvalidSize(t *testing.T) {
	for _, n := range []int{0, -1, -1024} {
		if _, err := NewEngine(n, Options{}); err == nil {
			t.Errorf("NewEngine(%d) expected error", n)
		}
	}
}

func TestZeroWindow(t *testing.T) {
	e := newTestEngine(t, 16, Options{ApplyScale: true, DCRemove: true})
	e.Compute(make([]float64, 16))

	for k, a := range e.Amplitudes() {
		if a != 0 {
			t.Errorf("amplitude[%d] = %v, want 0", k, a)
		}
	}
}

func TestKnownWindow(t *testing.T) {
	// X[k] = 1 - (-1)^k for x = [1, 0, -1, 0].
	e := newTestEngine(t, 4, Options{})
	e.Compute([]float64{1, 0, -1, 0})

	want := []float64{0, 2, 0, 2}
	for k, a := range e.Amplitudes() {
		if !closeTo(a, want[k]) {
			t.Errorf("amplitude[%d] = %v, want %v", k, a, want[k])
		}
	}
}

func TestMatchesReferenceDFT(t *testing.T) {
	for _, n := range []int{1, 2, 7, 8, 12, 64, 100} {
		window := make([]float64, n)
		for i := range window {
			window[i] = math.Sin(0.7*float64(i)) + 0.25*float64(i%3)
		}

		e := newTestEngine(t, n, Options{})
		got := e.Transform(window)
		want := dspfft.FFTReal(window)

		if len(got) != n {
			t.Fatalf("n=%d: spectrum length %d", n, len(got))
		}
		for k := range want {
			if cmplx.Abs(got[k]-want[k]) > 1e-9*float64(n) {
				t.Errorf("n=%d: X[%d] = %v, reference %v", n, k, got[k], want[k])
			}
		}
	}
}

func TestAmplitudeIsEuclideanNorm(t *testing.T) {
	n := 32
	window := make([]float64, n)
	for i := range window {
		window[i] = float64((i*7)%11) - 5
	}

	e := newTestEngine(t, n, Options{ApplyScale: true})
	e.Compute(window)

	for k, c := range e.Spectrum() {
		want := math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
		if !closeTo(e.Amplitudes()[k], want) {
			t.Errorf("amplitude[%d] = %v, want %v", k, e.Amplitudes()[k], want)
		}
	}
}

func TestScale(t *testing.T) {
	window := []float64{3, 1, 4, 1, 5, 9, 2, 6}

	raw := newTestEngine(t, 8, Options{})
	raw.Compute(window)

	scaled := newTestEngine(t, 8, Options{ApplyScale: true})
	scaled.Compute(window)

	for k := range window {
		if !closeTo(scaled.Amplitudes()[k], raw.Amplitudes()[k]/8) {
			t.Errorf("bin %d: scaled %v, unscaled/8 %v", k, scaled.Amplitudes()[k], raw.Amplitudes()[k]/8)
		}
	}

	// Scale is the identity when the option is off.
	before := raw.Spectrum()[1]
	raw.Scale(0.5)
	if raw.Spectrum()[1] != before {
		t.Errorf("Scale changed spectrum with ApplyScale off")
	}
}

func TestDCRemove(t *testing.T) {
	window := []float64{11, 9, 11, 9, 11, 9, 11, 9}

	e := newTestEngine(t, 8, Options{DCRemove: true})
	e.Compute(window)

	if !closeTo(e.Mean(), 10) {
		t.Errorf("Mean() = %v, want 10", e.Mean())
	}
	if a := e.Amplitudes()[0]; a > tolerance {
		t.Errorf("DC bin = %v after removal, want 0", a)
	}
	if a := e.Amplitudes()[4]; !closeTo(a, 8) {
		t.Errorf("Nyquist bin = %v, want 8", a)
	}
	if window[0] != 11 {
		t.Error("Transform modified the caller's window")
	}
}

func TestHermitianMirror(t *testing.T) {
	for _, n := range []int{5, 6} {
		window := make([]float64, n)
		for i := range window {
			window[i] = float64(i*i) - 2
		}
		e := newTestEngine(t, n, Options{})
		s := e.Transform(window)

		if len(e.HalfSpectrum()) != n/2+1 {
			t.Errorf("n=%d: HalfSpectrum length %d", n, len(e.HalfSpectrum()))
		}
		for k := 1; k < n; k++ {
			if cmplx.Abs(s[k]-cmplx.Conj(s[n-k])) > tolerance*float64(n*n) {
				t.Errorf("n=%d: X[%d]=%v is not conj(X[%d])=%v", n, k, s[k], n-k, s[n-k])
			}
		}
	}
}

func TestComputeHotPath(t *testing.T) {
	const n = 1024
	e := newTestEngine(t, n, Options{ApplyScale: true, DCRemove: true})
	window := make([]float64, n)
	for i := range window {
		window[i] = math.Sin(2 * math.Pi * 13 * float64(i) / n)
	}

	e.Compute(window)
	allocs := testing.AllocsPerRun(100, func() {
		e.Compute(window)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in Compute hot path, got %.1f", allocs)
	}
}

func BenchmarkCompute(b *testing.B) {
	for _, n := range []int{1024, 4096, 1000} {
		e, _ := NewEngine(n, Options{ApplyScale: true})
		window := make([]float64, n)
		for i := range window {
			window[i] = math.Sin(float64(i))
		}

		b.Run(fmt.Sprintf("N=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				e.Compute(window)
			}
		})
	}
}
