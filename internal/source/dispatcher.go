// SPDX-License-Identifier: MIT
/*
Package source provides the data sources a controller can subscribe to.

Every source pushes raw spans of encoded samples to at most one handler. The
cycle-driven sources (Generator, WAV, UDP) deliver one span per Cycle call and
are ticked by the cycle runner; device sources push from their driver
callback.
*/
package source

import (
	"errors"
	"sync/atomic"

	"rtfft/internal/acquire"
	"rtfft/internal/sample"
)

// ErrSubscribed is returned when a second handler subscribes to a source.
var ErrSubscribed = errors.New("source already has a subscriber")

// Dispatcher holds the single handler of a source. Dispatch is safe to call
// from the real-time context while Subscribe and cancel run elsewhere.
type Dispatcher struct {
	name    string
	enc     sample.Encoding
	handler atomic.Pointer[acquire.Handler]
}

// NewDispatcher creates a dispatcher for a source called name delivering
// samples encoded as enc.
func NewDispatcher(name string, enc sample.Encoding) *Dispatcher {
	return &Dispatcher{name: name, enc: enc}
}

func (d *Dispatcher) Name() string              { return d.name }
func (d *Dispatcher) Encoding() sample.Encoding { return d.enc }

// Subscribe registers h. The returned cancel function removes it and is safe
// to call more than once.
func (d *Dispatcher) Subscribe(h acquire.Handler) (func(), error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	p := &h
	if !d.handler.CompareAndSwap(nil, p) {
		return nil, ErrSubscribed
	}
	return func() { d.handler.CompareAndSwap(p, nil) }, nil
}

// Dispatch hands raw to the subscribed handler and reports whether there was
// one.
func (d *Dispatcher) Dispatch(raw []byte) bool {
	h := d.handler.Load()
	if h == nil {
		return false
	}
	(*h)(raw, d.enc)
	return true
}

var _ acquire.Source = (*Dispatcher)(nil)
