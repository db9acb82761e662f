// SPDX-License-Identifier: MIT
/*
Package engine assembles the acquisition pipeline from a configuration:

	source --(raw spans)--> acquire.Controller --(Refresh)--> params.Registry
	                                                              |
	                                   logging, websocket, udp, record transports

Cycle driven sources (generator, wav, udp) run on a cycle.Runner; the
PortAudio source is driven by the driver callback instead. Everything is
allocated in New. Start begins the real-time path and Close tears it down in
reverse order.
*/
package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"

	"rtfft/internal/acquire"
	"rtfft/internal/config"
	"rtfft/internal/cycle"
	applog "rtfft/internal/log"
	"rtfft/internal/params"
	"rtfft/internal/source"
	pasource "rtfft/internal/source/portaudio"
	"rtfft/internal/transport"
	"rtfft/internal/transport/record"
	"rtfft/internal/transport/udp"
	"rtfft/pkg/signal"
)

type closer interface {
	Close() error
}

type Engine struct {
	cfg *config.Config

	registry   *params.Registry
	controller *acquire.Controller

	// Exactly one of runner and input drives the source.
	runner     *cycle.Runner
	input      *pasource.Input
	sourceStop closer
	sampleRate float64

	transports []transport.Transport
	websocket  *transport.WebSocketTransport
	sender     *udp.Sender
	publisher  *udp.Publisher
	recorder   *record.Recorder

	locked  bool
	started bool
}

// New builds the pipeline. On error everything created so far is released.
func New(cfg *config.Config) (e *Engine, err error) {
	acfg, err := cfg.AcquireConfig()
	if err != nil {
		return nil, err
	}

	e = &Engine{cfg: cfg, registry: params.NewRegistry(cfg.FFT.Name)}
	defer func() {
		if err != nil {
			err = multierr.Append(err, e.Close())
			e = nil
		}
	}()

	e.controller, err = acquire.New(acfg, e.registry)
	if err != nil {
		return e, err
	}
	e.registry.Bind(e.controller)

	src, err := e.buildSource()
	if err != nil {
		return e, err
	}
	if err = e.controller.Connect(src); err != nil {
		return e, err
	}

	if err = e.buildTransports(); err != nil {
		return e, err
	}

	applog.Infof("Engine: Pipeline ready (source: %s '%s', nfft: %d, mode: %v, params: %d)",
		cfg.Source.Kind, cfg.Source.Name, acfg.NFFT, acfg.Mode, len(e.registry.Params()))
	return e, nil
}

func (e *Engine) buildSource() (acquire.Source, error) {
	sc := e.cfg.Source

	if sc.Kind == config.SourcePortAudio {
		in, err := pasource.NewInput(pasource.Config{
			Name:            sc.Name,
			DeviceID:        sc.PortAudio.Device,
			Channels:        sc.PortAudio.Channels,
			Channel:         sc.PortAudio.Channel,
			SampleRate:      sc.PortAudio.SampleRate,
			FramesPerBuffer: sc.PortAudio.FramesPerBuffer,
			LowLatency:      sc.PortAudio.LowLatency,
		})
		if err != nil {
			return nil, err
		}
		e.input = in
		e.sampleRate = in.SampleRate()
		return in, nil
	}

	runner, err := cycle.NewRunner(sc.CyclePeriod)
	if err != nil {
		return nil, err
	}
	e.runner = runner
	cyclesPerSecond := float64(1) / sc.CyclePeriod.Seconds()

	switch sc.Kind {
	case config.SourceGenerator:
		enc, err := e.cfg.SampleEncoding()
		if err != nil {
			return nil, err
		}
		tone := signal.Tone{Offset: sc.Generator.Offset}
		for _, p := range sc.Generator.Partials {
			tone.Partials = append(tone.Partials, signal.Partial{Frequency: p.Frequency, Amplitude: p.Amplitude, Phase: p.Phase})
		}
		gen, err := source.NewGenerator(source.GeneratorConfig{
			Name:            sc.Name,
			Encoding:        enc,
			SampleRate:      sc.Generator.SampleRate,
			SamplesPerCycle: sc.SamplesPerCycle,
			Tone:            tone,
		})
		if err != nil {
			return nil, err
		}
		runner.Add(gen)
		e.sampleRate = sc.Generator.SampleRate
		return gen, nil

	case config.SourceWAV:
		w, err := source.NewWAV(source.WAVConfig{
			Name:            sc.Name,
			Path:            sc.WAV.Path,
			Channel:         sc.WAV.Channel,
			SamplesPerCycle: sc.SamplesPerCycle,
			Loop:            sc.WAV.Loop,
		})
		if err != nil {
			return nil, err
		}
		runner.Add(w)
		e.sampleRate = float64(sc.SamplesPerCycle) * cyclesPerSecond
		if rate := float64(w.SampleRate()); math.Abs(rate-e.sampleRate) > 1 {
			applog.Warnf("Engine: File rate %.0f Hz replayed at %.0f Hz (%d samples every %s)",
				rate, e.sampleRate, sc.SamplesPerCycle, sc.CyclePeriod)
		}
		return w, nil

	case config.SourceUDP:
		enc, err := e.cfg.SampleEncoding()
		if err != nil {
			return nil, err
		}
		u, err := source.NewUDP(source.UDPConfig{
			Name:        sc.Name,
			Addr:        sc.UDP.Listen,
			Encoding:    enc,
			MaxDatagram: sc.UDP.MaxDatagram,
			Buffers:     sc.UDP.Buffers,
		})
		if err != nil {
			return nil, err
		}
		e.sourceStop = u
		runner.Add(u)
		e.sampleRate = float64(max(sc.SamplesPerCycle, 1)) * cyclesPerSecond
		return u, nil

	default:
		return nil, fmt.Errorf("unknown source kind '%s'", sc.Kind)
	}
}

func (e *Engine) buildTransports() error {
	tc := e.cfg.Transport

	if tc.Log {
		e.subscribe(transport.NewLoggingTransport())
	}

	if tc.WebSocketEnabled {
		e.websocket = transport.NewWebSocketTransport(tc.WebSocketAddress, tc.WebSocketMinInterval, e.registry)
		e.subscribe(e.websocket)
	}

	if tc.UDPEnabled {
		sender, err := udp.NewSender(tc.UDPTargetAddress)
		if err != nil {
			return err
		}
		e.sender = sender
		pub, err := udp.NewPublisher(tc.UDPSendInterval, sender, e.registry,
			e.registry.Name(acquire.Amplitude.String()), e.cfg.FFT.NFFT)
		if err != nil {
			return err
		}
		e.publisher = pub
	}

	if rc := e.cfg.Recording; rc.Enabled {
		rec, err := record.New(record.Config{
			Path:       rc.Path,
			Param:      e.registry.Name(acquire.RawWindow.String()),
			SampleRate: max(int(math.Round(e.sampleRate)), 1),
			Gain:       rc.Gain,
		}, e.cfg.FFT.NFFT)
		if err != nil {
			return err
		}
		e.recorder = rec
		e.subscribe(rec)
	}
	return nil
}

func (e *Engine) subscribe(t transport.Transport) {
	e.transports = append(e.transports, t)
	e.registry.Subscribe(t)
}

// Start begins publishing and then the real-time path.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return nil
	}

	if e.cfg.LockMemory {
		if err := cycle.LockMemory(); err != nil {
			applog.Warnf("Engine: Memory lock failed, continuing unlocked: %v", err)
		} else {
			e.locked = true
		}
	}

	if e.websocket != nil {
		if err := e.websocket.Start(); err != nil {
			return fmt.Errorf("websocket transport: %w", err)
		}
	}
	e.registry.Start()
	if e.publisher != nil {
		e.publisher.Start()
	}

	if e.input != nil {
		if err := e.input.Start(); err != nil {
			return err
		}
	} else {
		e.runner.Start(ctx)
	}

	e.started = true
	applog.Infof("Engine: Started")
	return nil
}

// Close stops the real-time path first, then publishing, then releases the
// transports and the source. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error

	if e.input != nil {
		err = multierr.Append(err, e.input.Close())
	}
	if e.runner != nil {
		e.runner.Stop()
	}
	if e.controller != nil {
		err = multierr.Append(err, e.controller.Close())
	}
	if e.publisher != nil {
		err = multierr.Append(err, e.publisher.Close())
	}
	e.registry.Stop()

	for _, t := range e.transports {
		err = multierr.Append(err, t.Close())
	}
	e.transports = nil
	if e.sender != nil {
		err = multierr.Append(err, e.sender.Close())
		e.sender = nil
	}
	if e.sourceStop != nil {
		err = multierr.Append(err, e.sourceStop.Close())
		e.sourceStop = nil
	}

	if e.locked {
		err = multierr.Append(err, cycle.UnlockMemory())
		e.locked = false
	}
	if e.started {
		e.started = false
		applog.Infof("Engine: Closed")
	}
	return err
}

// Registry returns the parameter registry of the pipeline.
func (e *Engine) Registry() *params.Registry {
	return e.registry
}

// Controller returns the acquisition controller.
func (e *Engine) Controller() *acquire.Controller {
	return e.controller
}

// SampleRate returns the rate of the acquired channel in samples per second.
// For fieldbus style sources it is derived from the cycle period.
func (e *Engine) SampleRate() float64 {
	return e.sampleRate
}

// CycleStats returns the runner counters. ok is false for callback driven
// sources.
func (e *Engine) CycleStats() (stats cycle.Stats, ok bool) {
	if e.runner == nil {
		return cycle.Stats{}, false
	}
	return e.runner.Stats(), true
}

// WebSocketAddr returns the bound websocket address, or "" when the
// transport is disabled or not started.
func (e *Engine) WebSocketAddr() string {
	if e.websocket == nil || e.websocket.Addr() == nil {
		return ""
	}
	return e.websocket.Addr().String()
}
