// SPDX-License-Identifier: MIT
/*
Package params republishes controller buffers as named parameters.

The Registry is the controller's acquire.Publisher. Refresh runs in the
real-time context: it copies the buffer into a snapshot taken from a
per-parameter pool and queues it for the dispatcher goroutine. Nothing on that
path blocks or allocates; when the pool or the queue is exhausted the update is
dropped and counted.

The dispatcher fans each snapshot out to the subscribers and keeps the most
recent one per parameter for polling readers (CopyLatest, LatestInt).
*/
package params

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"rtfft/internal/acquire"
	applog "rtfft/internal/log"
)

var (
	ErrUnknownParam = errors.New("unknown parameter")
	ErrReadOnly     = errors.New("parameter is read-only")
)

const (
	poolSize  = 4
	queueSize = 64
)

// Kind is the published value type of a parameter.
type Kind uint8

const (
	KindFloatArray   Kind = iota // []float64
	KindComplexArray             // []complex128, published interleaved re, im
	KindInt                      // scalar integer
)

func (k Kind) String() string {
	switch k {
	case KindFloatArray:
		return "float64[]"
	case KindComplexArray:
		return "complex128[]"
	case KindInt:
		return "int"
	default:
		return "unknown"
	}
}

// Snapshot is one published value. Subscribers receive it for the duration
// of Publish only and must copy what they keep.
type Snapshot struct {
	Name   string
	Kind   Kind
	Seq    uint64
	Time   time.Time
	Values []float64 // array kinds
	Int    int64     // KindInt

	owner *param
}

// Subscriber receives every snapshot from the dispatcher goroutine.
type Subscriber interface {
	Publish(s *Snapshot)
}

// Controller is the part of acquire.Controller the registry binds to.
type Controller interface {
	RawWindow() []float64
	Amplitudes() []float64
	Spectrum() []complex128
	Status() acquire.Status
	Enabled() bool
	Mode() acquire.Mode
	Config() acquire.Config
	SetEnable(bool)
	SetMode(acquire.Mode) error
	Trigger()
}

type param struct {
	name     string
	kind     Kind
	size     int // floats per snapshot
	writable bool

	fill  func(dst []float64)
	value func() int64
	write func(v float64) error

	pool    chan *Snapshot
	seq     atomic.Uint64
	last    atomic.Int64
	hasLast atomic.Bool
	dropped atomic.Uint64
}

// Registry owns the parameters of one controller.
type Registry struct {
	prefix string

	byID   [acquire.NumBuffers]*param
	byName map[string]*param

	updates chan *Snapshot
	dropped atomic.Uint64

	mu          sync.RWMutex
	latest      map[string]*Snapshot
	subscribers []Subscriber

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

var _ acquire.Publisher = (*Registry)(nil)

// NewRegistry creates an empty registry publishing under "plugin.<name>.".
func NewRegistry(name string) *Registry {
	return &Registry{
		prefix:  "plugin." + name + ".",
		byName:  make(map[string]*param),
		updates: make(chan *Snapshot, queueSize),
		latest:  make(map[string]*Snapshot),
		stop:    make(chan struct{}),
	}
}

// Bind creates the parameters of ctrl. It must be called once, before the
// controller is connected to a source.
func (r *Registry) Bind(ctrl Controller) {
	n := ctrl.Config().NFFT

	r.add(acquire.RawWindow, &param{kind: KindFloatArray, size: n,
		fill: func(dst []float64) { copy(dst, ctrl.RawWindow()) }})
	r.add(acquire.Amplitude, &param{kind: KindFloatArray, size: n,
		fill: func(dst []float64) { copy(dst, ctrl.Amplitudes()) }})
	r.add(acquire.Spectrum, &param{kind: KindComplexArray, size: 2 * n,
		fill: func(dst []float64) {
			for i, c := range ctrl.Spectrum() {
				dst[2*i] = real(c)
				dst[2*i+1] = imag(c)
			}
		}})
	r.add(acquire.RunStatus, &param{kind: KindInt,
		value: func() int64 { return int64(ctrl.Status()) }})
	r.add(acquire.Enable, &param{kind: KindInt, writable: true,
		value: func() int64 {
			if ctrl.Enabled() {
				return 1
			}
			return 0
		},
		write: func(v float64) error {
			ctrl.SetEnable(v != 0)
			r.Refresh(acquire.Enable, false)
			return nil
		}})
	r.add(acquire.ModeSelect, &param{kind: KindInt, writable: true,
		value: func() int64 { return int64(ctrl.Mode()) },
		write: func(v float64) error {
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return fmt.Errorf("invalid acquisition mode %v", v)
			}
			if err := ctrl.SetMode(acquire.Mode(v)); err != nil {
				return err
			}
			r.Refresh(acquire.ModeSelect, false)
			return nil
		}})

	r.addNamed("trigger", &param{kind: KindInt, writable: true,
		value: func() int64 { return 0 },
		write: func(v float64) error {
			if v != 0 {
				ctrl.Trigger()
			}
			return nil
		}})
	r.addNamed("nfft", &param{kind: KindInt,
		value: func() int64 { return int64(n) }})

	// Readers see the starting command values before the first write.
	r.Refresh(acquire.Enable, true)
	r.Refresh(acquire.ModeSelect, true)

	applog.Infof("Params: Registered %d parameters under '%s*'", len(r.byName), r.prefix)
}

func (r *Registry) add(id acquire.BufferID, p *param) {
	r.byID[id] = p
	r.addNamed(id.String(), p)
}

func (r *Registry) addNamed(suffix string, p *param) {
	p.name = r.prefix + suffix
	p.pool = make(chan *Snapshot, poolSize)
	for range poolSize {
		s := &Snapshot{Name: p.name, Kind: p.kind, owner: p}
		if p.size > 0 {
			s.Values = make([]float64, p.size)
		}
		p.pool <- s
	}
	r.byName[p.name] = p
}

// Refresh publishes the current value of buffer id. Unforced scalar refreshes
// are skipped when the value has not changed.
func (r *Registry) Refresh(id acquire.BufferID, forced bool) {
	if id < 0 || int(id) >= len(r.byID) {
		return
	}
	if p := r.byID[id]; p != nil {
		r.publish(p, forced)
	}
}

func (r *Registry) publish(p *param, forced bool) {
	var v int64
	if p.kind == KindInt {
		v = p.value()
		if !forced && p.hasLast.Load() && p.last.Load() == v {
			return
		}
		p.last.Store(v)
		p.hasLast.Store(true)
	}

	var s *Snapshot
	select {
	case s = <-p.pool:
	default:
		p.dropped.Add(1)
		r.dropped.Add(1)
		return
	}

	s.Seq = p.seq.Add(1)
	s.Time = time.Now()
	s.Int = v
	if p.fill != nil {
		p.fill(s.Values)
	}

	select {
	case r.updates <- s:
	default:
		release(s)
		p.dropped.Add(1)
		r.dropped.Add(1)
	}
}

func release(s *Snapshot) {
	if s == nil {
		return
	}
	select {
	case s.owner.pool <- s:
	default:
	}
}

// Subscribe adds a subscriber. Subscribers added after Start only see
// snapshots published from then on.
func (r *Registry) Subscribe(sub Subscriber) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, sub)
	r.mu.Unlock()
}

// Start launches the dispatcher goroutine.
func (r *Registry) Start() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatch()
	applog.Infof("Params: Dispatcher started")
}

// Stop terminates the dispatcher and waits for it to exit.
func (r *Registry) Stop() {
	if !r.running.Swap(false) {
		return
	}
	close(r.stop)
	r.wg.Wait()
	applog.Infof("Params: Dispatcher stopped (dropped updates: %d)", r.dropped.Load())
}

func (r *Registry) dispatch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case s := <-r.updates:
			r.deliver(s)
		}
	}
}

func (r *Registry) deliver(s *Snapshot) {
	r.mu.RLock()
	subs := r.subscribers
	r.mu.RUnlock()
	for _, sub := range subs {
		sub.Publish(s)
	}

	r.mu.Lock()
	prev := r.latest[s.Name]
	r.latest[s.Name] = s
	r.mu.Unlock()
	release(prev)
}

// Write sets a writable parameter from outside (enable, mode, trigger).
func (r *Registry) Write(name string, value float64) error {
	p, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownParam, name)
	}
	if !p.writable {
		return fmt.Errorf("%w: '%s'", ErrReadOnly, p.name)
	}
	if err := p.write(value); err != nil {
		return fmt.Errorf("write '%s': %w", p.name, err)
	}
	applog.Debugf("Params: %s <- %v", p.name, value)
	return nil
}

// lookup accepts the full parameter name or the suffix after the prefix.
func (r *Registry) lookup(name string) (*param, bool) {
	if p, ok := r.byName[name]; ok {
		return p, true
	}
	p, ok := r.byName[r.prefix+name]
	return p, ok
}

// CopyLatest appends the values of the last dispatched snapshot of an array
// parameter to dst. ok is false when nothing has been published yet.
func (r *Registry) CopyLatest(name string, dst []float64) (out []float64, seq uint64, ok bool) {
	p, found := r.lookup(name)
	if !found {
		return dst, 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.latest[p.name]
	if s == nil {
		return dst, 0, false
	}
	return append(dst, s.Values...), s.Seq, true
}

// LatestInt returns the last dispatched value of a scalar parameter.
func (r *Registry) LatestInt(name string) (int64, bool) {
	p, found := r.lookup(name)
	if !found {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.latest[p.name]
	if s == nil {
		return 0, false
	}
	return s.Int, true
}

// Info describes a registered parameter.
type Info struct {
	Name     string
	Kind     Kind
	Size     int
	Writable bool
	Dropped  uint64
}

// Params lists the registered parameters sorted by name.
func (r *Registry) Params() []Info {
	out := make([]Info, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, Info{Name: p.name, Kind: p.kind, Size: p.size, Writable: p.writable, Dropped: p.dropped.Load()})
	}
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Name returns the full name of a parameter suffix ("fftamplitude").
func (r *Registry) Name(suffix string) string {
	return r.prefix + suffix
}

// Dropped returns the number of updates lost to a full pool or queue.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}
