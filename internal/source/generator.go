// SPDX-License-Identifier: MIT
package source

import (
	"fmt"

	applog "rtfft/internal/log"
	"rtfft/internal/sample"
	"rtfft/pkg/signal"
)

// GeneratorConfig describes a synthetic fieldbus channel.
type GeneratorConfig struct {
	Name            string
	Encoding        sample.Encoding
	SampleRate      float64 // samples per second of the simulated channel
	SamplesPerCycle int     // oversampling factor: elements delivered per cycle
	Tone            signal.Tone
}

// Generator produces a deterministic tone, encoded exactly as a fieldbus
// terminal would deliver it.
type Generator struct {
	*Dispatcher
	cfg GeneratorConfig
	raw []byte
	n   uint64 // index of the next sample
}

// NewGenerator validates cfg and pre-allocates the cycle buffer.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if !cfg.Encoding.Supported() {
		return nil, fmt.Errorf("generator: unsupported encoding %v", cfg.Encoding)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("generator: sample rate must be positive, got %v", cfg.SampleRate)
	}
	if cfg.SamplesPerCycle <= 0 {
		return nil, fmt.Errorf("generator: samples per cycle must be positive, got %d", cfg.SamplesPerCycle)
	}

	applog.Infof("Generator: '%s' %v, %.0f Hz sample rate, %d samples/cycle, %d partials",
		cfg.Name, cfg.Encoding, cfg.SampleRate, cfg.SamplesPerCycle, len(cfg.Tone.Partials))

	return &Generator{
		Dispatcher: NewDispatcher(cfg.Name, cfg.Encoding),
		cfg:        cfg,
		raw:        make([]byte, cfg.SamplesPerCycle*cfg.Encoding.Width()),
	}, nil
}

// Cycle encodes the next SamplesPerCycle samples and dispatches them.
func (g *Generator) Cycle() {
	for i := range g.cfg.SamplesPerCycle {
		sample.Put(g.raw, g.cfg.Encoding, i, g.cfg.Tone.At(g.n, g.cfg.SampleRate))
		g.n++
	}
	g.Dispatch(g.raw)
}

// Position returns the number of samples generated so far.
func (g *Generator) Position() uint64 {
	return g.n
}
