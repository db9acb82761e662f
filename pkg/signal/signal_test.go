// SPDX-License-Identifier: MIT
package signal

import (
	"math"
	"testing"
)

func TestToneAt(t *testing.T) {
	tone := Tone{
		Offset: 10,
		Partials: []Partial{
			{Frequency: 250, Amplitude: 2},
			{Frequency: 500, Amplitude: 1, Phase: math.Pi / 2},
		},
	}
	const rate = 1000

	// 250 Hz at 1 kHz: quarter period per sample.
	want := []float64{11, 11, 11, 7}
	for n, w := range want {
		if got := tone.At(uint64(n), rate); math.Abs(got-w) > 1e-9 {
			t.Errorf("At(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestFillContinuesFromStart(t *testing.T) {
	tone := Tone{Partials: []Partial{{Frequency: 3, Amplitude: 1}}}
	whole := make([]float64, 8)
	tone.Fill(whole, 0, 64)

	tail := make([]float64, 4)
	tone.Fill(tail, 4, 64)
	for i := range tail {
		if tail[i] != whole[4+i] {
			t.Errorf("sample %d = %v, want %v", 4+i, tail[i], whole[4+i])
		}
	}
}

func TestSine(t *testing.T) {
	buf := Sine(1024, 44100, 440)
	if len(buf) != 1024 {
		t.Fatalf("len = %d", len(buf))
	}
	if buf[0] != 0 {
		t.Errorf("first sample = %v, want 0", buf[0])
	}
	for i, v := range buf {
		if v > 1 || v < -1 {
			t.Fatalf("sample %d = %v out of range", i, v)
		}
	}
}

func TestFindPeakBin(t *testing.T) {
	mags := make([]float64, 64)
	for i := range mags {
		mags[i] = math.Exp(-0.05 * math.Pow(float64(i-20), 2))
	}
	mags[50] = 0.9

	tests := []struct {
		name       string
		mags       []float64
		start, end int
		want       int
	}{
		{"Full range", mags, 0, 63, 20},
		{"Upper range", mags, 30, 63, 50},
		{"Clamped", mags, -5, 500, 20},
		{"Single bin", mags, 7, 7, 7},
		{"Inverted", mags, 10, 5, 10},
		{"Empty", nil, 0, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(tt.mags, tt.start, tt.end); got != tt.want {
				t.Errorf("FindPeakBin = %d, want %d", got, tt.want)
			}
		})
	}
}

func BenchmarkFindPeakBin(b *testing.B) {
	mags := Sine(4096, 4096, 100)
	b.ReportAllocs()
	for b.Loop() {
		FindPeakBin(mags, 1, len(mags)/2)
	}
}
