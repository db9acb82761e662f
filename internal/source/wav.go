// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/wav"

	applog "rtfft/internal/log"
	"rtfft/internal/sample"
)

// WAVConfig describes a recorded channel replayed as a live source.
type WAVConfig struct {
	Name            string
	Path            string
	Channel         int // channel of a multi-channel file to replay
	SamplesPerCycle int
	Loop            bool // restart at the end of the file instead of going quiet
}

// WAV replays one channel of a PCM WAV file. The file is decoded and encoded
// into fieldbus form once at construction; Cycle only slices it.
type WAV struct {
	*Dispatcher
	cfg        WAVConfig
	raw        []byte
	width      int
	sampleRate int
	pos        int // byte offset of the next span
	done       atomic.Bool
}

// NewWAV loads cfg.Path. 8-bit files replay as u8, 16-bit as s16, 24 and
// 32-bit as s32.
func NewWAV(cfg WAVConfig) (*WAV, error) {
	if cfg.SamplesPerCycle <= 0 {
		return nil, fmt.Errorf("wav source: samples per cycle must be positive, got %d", cfg.SamplesPerCycle)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("wav source: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("wav source: '%s' is not a valid WAV file", cfg.Path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav source: decode '%s': %w", cfg.Path, err)
	}

	chans := int(dec.NumChans)
	if cfg.Channel < 0 || cfg.Channel >= chans {
		return nil, fmt.Errorf("wav source: channel %d out of range, file has %d", cfg.Channel, chans)
	}

	var enc sample.Encoding
	switch dec.BitDepth {
	case 8:
		enc = sample.U8
	case 16:
		enc = sample.S16
	case 24, 32:
		enc = sample.S32
	default:
		return nil, fmt.Errorf("wav source: unsupported bit depth %d", dec.BitDepth)
	}

	frames := len(buf.Data) / chans
	if frames == 0 {
		return nil, errors.New("wav source: file has no samples")
	}
	raw := make([]byte, frames*enc.Width())
	for i := range frames {
		sample.Put(raw, enc, i, float64(buf.Data[i*chans+cfg.Channel]))
	}

	applog.Infof("WAVSource: Loaded '%s' (%d Hz, %d bit, %d channels, %d frames, channel %d as %v)",
		cfg.Path, dec.SampleRate, dec.BitDepth, chans, frames, cfg.Channel, enc)

	return &WAV{
		Dispatcher: NewDispatcher(cfg.Name, enc),
		cfg:        cfg,
		raw:        raw,
		width:      enc.Width(),
		sampleRate: int(dec.SampleRate),
	}, nil
}

// Cycle dispatches the next SamplesPerCycle samples. The last span of the
// file may be shorter.
func (w *WAV) Cycle() {
	if w.done.Load() {
		return
	}
	if w.pos >= len(w.raw) {
		if !w.cfg.Loop {
			w.done.Store(true)
			return
		}
		w.pos = 0
	}

	end := min(w.pos+w.cfg.SamplesPerCycle*w.width, len(w.raw))
	w.Dispatch(w.raw[w.pos:end])
	w.pos = end
}

// Done reports whether a non-looping replay has reached the end of the file.
func (w *WAV) Done() bool {
	return w.done.Load()
}

// Frames returns the number of samples in the replayed channel.
func (w *WAV) Frames() int {
	return len(w.raw) / w.width
}

// SampleRate returns the sample rate stored in the file header.
func (w *WAV) SampleRate() int {
	return w.sampleRate
}
