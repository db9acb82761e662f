// SPDX-License-Identifier: MIT
// Package signal has small signal helpers shared by the synthetic sources, the
// monitor and tests.
package signal

import "math"

// Tone is a sum of sine partials on top of a constant offset.
type Tone struct {
	Offset   float64
	Partials []Partial
}

// Partial is one sine component of a Tone.
type Partial struct {
	Frequency float64 // Hz
	Amplitude float64
	Phase     float64 // radians
}

// At returns the tone value at sample index n for the given sample rate.
func (t Tone) At(n uint64, sampleRate float64) float64 {
	tm := float64(n) / sampleRate
	v := t.Offset
	for _, p := range t.Partials {
		v += p.Amplitude * math.Sin(2*math.Pi*p.Frequency*tm+p.Phase)
	}
	return v
}

// Fill writes consecutive tone samples starting at index start into dst.
func (t Tone) Fill(dst []float64, start uint64, sampleRate float64) {
	for i := range dst {
		dst[i] = t.At(start+uint64(i), sampleRate)
	}
}

// Sine returns size samples of a unit sine at frequency Hz.
func Sine(size int, sampleRate, frequency float64) []float64 {
	buf := make([]float64, size)
	Tone{Partials: []Partial{{Frequency: frequency, Amplitude: 1}}}.Fill(buf, 0, sampleRate)
	return buf
}

// FindPeakBin returns the index of the largest value in
// magnitudes[startBin:endBin+1]. The range is clamped to the slice; an empty
// slice yields 0.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)
	if startBin > endBin {
		return startBin
	}

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
