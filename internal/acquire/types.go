// SPDX-License-Identifier: MIT
package acquire

import (
	"errors"
	"fmt"
	"strings"

	"rtfft/internal/sample"
)

// Error classes returned by New and Connect. Callers test them with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrAllocation    = errors.New("allocation error")
)

// MaxNFFT is the largest window the controller will allocate.
const MaxNFFT = 1 << 22

// Status is the published run state of a controller.
type Status int32

const (
	NoStatus  Status = iota // no data source attached yet
	Idle                    // disabled, or waiting for a trigger
	Acquiring               // filling the window
	Computing               // window full, transform running
)

func (s Status) String() string {
	switch s {
	case NoStatus:
		return "NO_STAT"
	case Idle:
		return "IDLE"
	case Acquiring:
		return "ACQ"
	case Computing:
		return "CALC"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how acquisition restarts after a computed window.
type Mode int32

const (
	Continuous Mode = iota + 1 // rearm immediately
	Triggered                  // one window per Trigger
)

func (m Mode) String() string {
	switch m {
	case Continuous:
		return "continuous"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// ParseMode converts "continuous"/"cont"/"1" or "triggered"/"trig"/"2"
// (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "continuous", "cont", "1":
		return Continuous, nil
	case "triggered", "trig", "trigger", "2":
		return Triggered, nil
	default:
		return 0, fmt.Errorf("unknown acquisition mode: '%s'", name)
	}
}

// BufferID names a published buffer in Publisher.Refresh calls.
type BufferID int

const (
	RawWindow BufferID = iota
	Amplitude
	Spectrum
	RunStatus
	Enable
	ModeSelect

	NumBuffers // number of buffer ids
)

func (id BufferID) String() string {
	switch id {
	case RawWindow:
		return "rawdata"
	case Amplitude:
		return "fftamplitude"
	case Spectrum:
		return "fftspectrum"
	case RunStatus:
		return "status"
	case Enable:
		return "enable"
	case ModeSelect:
		return "mode"
	default:
		return "unknown"
	}
}

// Publisher receives a signal whenever a published buffer has new content.
// Refresh is called from the real-time context and must not block.
type Publisher interface {
	Refresh(id BufferID, forced bool)
}

// Handler receives raw data pushed by a Source.
type Handler func(raw []byte, enc sample.Encoding)

// Source is a push data source. Subscribe registers the single handler of the
// source; the returned cancel function removes it.
type Source interface {
	Name() string
	Encoding() sample.Encoding
	Subscribe(h Handler) (cancel func(), err error)
}

// Config is the immutable controller configuration.
type Config struct {
	NFFT       int    // window length, > 0
	ApplyScale bool   // scale the spectrum by 1/NFFT
	DCRemove   bool   // subtract the window mean before the transform
	Enable     bool   // initial enable state
	Mode       Mode   // initial acquisition mode
	SourceName string // identifier of the data source
}

// Validate checks the configuration, returning an ErrConfiguration or
// ErrAllocation wrapped error.
func (c Config) Validate() error {
	if c.NFFT <= 0 {
		return fmt.Errorf("%w: nfft must be positive, got %d", ErrConfiguration, c.NFFT)
	}
	if c.NFFT > MaxNFFT {
		return fmt.Errorf("%w: nfft %d exceeds limit %d", ErrAllocation, c.NFFT, MaxNFFT)
	}
	if strings.TrimSpace(c.SourceName) == "" {
		return fmt.Errorf("%w: data source identifier missing", ErrConfiguration)
	}
	if c.Mode != Continuous && c.Mode != Triggered {
		return fmt.Errorf("%w: invalid mode %d", ErrConfiguration, c.Mode)
	}
	return nil
}

// Stats is a point-in-time copy of the controller counters.
type Stats struct {
	Windows    uint64 // computed windows
	Overruns   uint64 // samples discarded because the window was full
	DecodeGaps uint64 // data spans that contributed nothing or had trailing bytes
	Ignored    uint64 // samples received while idle
}
