// SPDX-License-Identifier: MIT
/*
Package acquire implements the acquisition controller: it takes raw samples
pushed by a data source, fills a fixed window and runs the spectrum chain each
time the window completes.

Threading model:
  - DataUpdated is the real-time entry point. The source calls it at most once
    per cycle from a single goroutine. It never blocks, allocates or logs.
  - SetEnable, SetMode and Trigger may be called from any goroutine. They are
    single atomic stores; DataUpdated reads one snapshot of them when it starts,
    so each command lands entirely before or entirely after an ingestion call.
  - New, Connect and Close are cold-path calls.
*/
package acquire

import (
	"fmt"
	"sync"
	"sync/atomic"

	applog "rtfft/internal/log"
	"rtfft/internal/sample"
	"rtfft/internal/spectrum"
	"rtfft/internal/window"
	"rtfft/pkg/bitint"
)

// Controller is the acquisition state machine for one data source.
type Controller struct {
	cfg    Config
	buf    *window.Buffer
	engine *spectrum.Engine
	pub    Publisher

	// Commands, written from any goroutine.
	enable  atomic.Bool
	mode    atomic.Int32
	trigger atomic.Bool

	status atomic.Int32

	// Real-time state, owned by DataUpdated.
	armed    bool // triggered mode: one window requested
	computed bool // window content has been transformed

	windows    atomic.Uint64
	overruns   atomic.Uint64
	decodeGaps atomic.Uint64
	ignored    atomic.Uint64

	mu     sync.Mutex // guards source and cancel
	source Source
	cancel func()
}

type nopPublisher struct{}

func (nopPublisher) Refresh(BufferID, bool) {}

// New validates cfg and allocates every buffer the controller needs. A nil
// publisher is allowed; refresh signals are then dropped.
func New(cfg Config, pub Publisher) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := spectrum.NewEngine(cfg.NFFT, spectrum.Options{
		ApplyScale: cfg.ApplyScale,
		DCRemove:   cfg.DCRemove,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	if pub == nil {
		applog.Warnf("Acquire: No publisher for source '%s', results will not be published", cfg.SourceName)
		pub = nopPublisher{}
	}
	if !bitint.IsPowerOfTwo(cfg.NFFT) {
		applog.Warnf("Acquire: NFFT %d is not a power of 2 (next: %d), transform will be slower",
			cfg.NFFT, bitint.NextPowerOfTwo(cfg.NFFT))
	}

	c := &Controller{
		cfg:    cfg,
		buf:    window.New(cfg.NFFT),
		engine: engine,
		pub:    pub,
	}
	c.enable.Store(cfg.Enable)
	c.mode.Store(int32(cfg.Mode))
	c.status.Store(int32(NoStatus))

	applog.Infof("Acquire: Initializing controller (Source: %s, NFFT: %d, Scale: %v, DCRemove: %v, Mode: %v, Enable: %v)",
		cfg.SourceName, cfg.NFFT, cfg.ApplyScale, cfg.DCRemove, cfg.Mode, cfg.Enable)

	return c, nil
}

// Connect subscribes the controller to src and moves it from NoStatus to Idle.
// It can succeed once per controller.
func (c *Controller) Connect(src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		return fmt.Errorf("%w: already connected to '%s'", ErrConnection, c.source.Name())
	}
	if src == nil {
		return fmt.Errorf("%w: data source '%s' not found", ErrConnection, c.cfg.SourceName)
	}
	if src.Name() != c.cfg.SourceName {
		return fmt.Errorf("%w: source '%s' does not match configured '%s'", ErrConnection, src.Name(), c.cfg.SourceName)
	}
	if enc := src.Encoding(); !enc.Supported() {
		return fmt.Errorf("%w: source '%s' has unsupported encoding %v", ErrConnection, src.Name(), enc)
	}

	cancel, err := src.Subscribe(c.DataUpdated)
	if err != nil {
		return fmt.Errorf("%w: subscribe to '%s': %v", ErrConnection, src.Name(), err)
	}
	c.source = src
	c.cancel = cancel
	c.setStatus(Idle)

	applog.Infof("Acquire: Connected to source '%s' (%v)", src.Name(), src.Encoding())
	return nil
}

// Close removes the source subscription. The controller goes back to
// NoStatus and ignores further data. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return nil
	}
	c.cancel()
	c.cancel = nil
	c.setStatus(NoStatus)

	s := c.Stats()
	applog.Infof("Acquire: Disconnected from '%s' (windows: %d, overruns: %d, decode gaps: %d, ignored: %d)",
		c.source.Name(), s.Windows, s.Overruns, s.DecodeGaps, s.Ignored)
	return nil
}

// DataUpdated ingests one span of raw samples. It is the source callback and
// runs in the real-time context.
func (c *Controller) DataUpdated(raw []byte, enc sample.Encoding) {
	if Status(c.status.Load()) == NoStatus {
		return
	}

	// One consistent view of the commands for the whole call.
	enabled := c.enable.Load()
	mode := Mode(c.mode.Load())
	if c.trigger.Swap(false) {
		c.buf.Clear()
		c.computed = false
		c.armed = true
	}

	n := sample.Count(raw, enc)
	if w := enc.Width(); w == 0 || len(raw)%w != 0 {
		c.decodeGaps.Add(1)
	}

	if !enabled {
		c.ignored.Add(uint64(n))
		c.advance(Idle)
		return
	}

	switch mode {
	case Continuous:
		c.armed = false
		if c.computed {
			c.buf.Clear()
			c.computed = false
		}
	default:
		if !c.armed {
			c.ignored.Add(uint64(n))
			c.advance(Idle)
			return
		}
	}

	if n == 0 {
		return
	}
	c.advance(Acquiring)

	capacity := c.buf.Capacity()
	for i := range n {
		c.buf.Append(sample.At(raw, enc, i))

		filled := c.buf.Filled()
		if filled > capacity {
			c.overruns.Add(1)
			continue
		}
		if filled < capacity {
			continue
		}

		c.compute()
		if mode == Continuous {
			c.buf.Clear()
			c.computed = false
			c.advance(Acquiring)
		} else {
			c.armed = false
			c.advance(Idle)
		}
	}
}

// compute runs the transform chain on the full window and publishes the
// results. The whole chain completes before any refresh is signalled.
func (c *Controller) compute() {
	c.advance(Computing)

	c.engine.Compute(c.buf.Data())
	c.computed = true
	c.windows.Add(1)

	c.pub.Refresh(RawWindow, true)
	c.pub.Refresh(Spectrum, true)
	c.pub.Refresh(Amplitude, true)
}

func (c *Controller) setStatus(s Status) {
	if Status(c.status.Swap(int32(s))) != s {
		c.pub.Refresh(RunStatus, false)
	}
}

// advance moves the status from the ingestion path. It never leaves NoStatus,
// so a callback still in flight when Close runs cannot revive the controller.
func (c *Controller) advance(s Status) {
	for {
		cur := c.status.Load()
		if Status(cur) == NoStatus || Status(cur) == s {
			return
		}
		if c.status.CompareAndSwap(cur, int32(s)) {
			c.pub.Refresh(RunStatus, false)
			return
		}
	}
}

// SetEnable enables or disables acquisition. Disabling freezes the window in
// its current state.
func (c *Controller) SetEnable(enable bool) {
	c.enable.Store(enable)
}

// SetMode switches between continuous and triggered acquisition.
func (c *Controller) SetMode(m Mode) error {
	if m != Continuous && m != Triggered {
		return fmt.Errorf("invalid acquisition mode %d", m)
	}
	c.mode.Store(int32(m))
	return nil
}

// Trigger clears the window and arms one acquisition. The clear is applied at
// the start of the next ingestion call.
func (c *Controller) Trigger() {
	c.trigger.Store(true)
}

// Status returns the current run state.
func (c *Controller) Status() Status {
	return Status(c.status.Load())
}

// Enabled returns the commanded enable state.
func (c *Controller) Enabled() bool {
	return c.enable.Load()
}

// Mode returns the commanded acquisition mode.
func (c *Controller) Mode() Mode {
	return Mode(c.mode.Load())
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// Stats returns a copy of the controller counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Windows:    c.windows.Load(),
		Overruns:   c.overruns.Load(),
		DecodeGaps: c.decodeGaps.Load(),
		Ignored:    c.ignored.Load(),
	}
}

// RawWindow returns the acquisition window. The backing array is fixed for
// the controller's lifetime; its content is only stable inside a Refresh call.
func (c *Controller) RawWindow() []float64 {
	return c.buf.Data()
}

// Amplitudes returns the amplitude buffer of the last computed window.
func (c *Controller) Amplitudes() []float64 {
	return c.engine.Amplitudes()
}

// Spectrum returns the complex result of the last computed window.
func (c *Controller) Spectrum() []complex128 {
	return c.engine.Spectrum()
}

// Filled returns the window fill count. Only meaningful in the real-time
// context or while no data is flowing.
func (c *Controller) Filled() int {
	return c.buf.Filled()
}
