// SPDX-License-Identifier: MIT
// Package record captures every published raw window into a mono 32-bit PCM
// WAV file, one window after another, for offline inspection.
package record

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/multierr"

	applog "rtfft/internal/log"
	"rtfft/internal/params"
)

// Config describes the capture file.
type Config struct {
	Path       string
	Param      string  // raw window parameter to record
	SampleRate int     // header sample rate of the file
	Gain       float64 // applied before conversion to int32, 0 means 1
}

// Recorder is a params.Subscriber writing raw windows to a WAV file.
type Recorder struct {
	cfg Config

	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	windows int
	clipped int
}

// New creates the output file.
func New(cfg Config, nfft int) (*Recorder, error) {
	if cfg.Path == "" {
		return nil, errors.New("record: output path missing")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("record: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}

	file, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	applog.Infof("Recorder: Writing '%s' windows to '%s' (%d Hz, gain %g)", cfg.Param, cfg.Path, cfg.SampleRate, cfg.Gain)
	return &Recorder{
		cfg:     cfg,
		file:    file,
		encoder: wav.NewEncoder(file, cfg.SampleRate, 32, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: cfg.SampleRate},
			Data:           make([]int, nfft),
			SourceBitDepth: 32,
		},
	}, nil
}

// Publish appends s to the file when it is the recorded parameter.
func (r *Recorder) Publish(s *params.Snapshot) {
	if s.Name != r.cfg.Param || s.Kind != params.KindFloatArray {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return
	}

	if cap(r.buf.Data) < len(s.Values) {
		r.buf.Data = make([]int, len(s.Values))
	}
	r.buf.Data = r.buf.Data[:len(s.Values)]
	for i, v := range s.Values {
		x := math.Round(v * r.cfg.Gain)
		if x > math.MaxInt32 || x < math.MinInt32 || math.IsNaN(x) {
			r.clipped++
			x = max(min(x, math.MaxInt32), math.MinInt32)
			if math.IsNaN(x) {
				x = 0
			}
		}
		r.buf.Data[i] = int(x)
	}

	if err := r.encoder.Write(r.buf); err != nil {
		applog.Errorf("Recorder: Write failed, stopping capture: %v", err)
		r.closeLocked()
		return
	}
	r.windows++
}

// Windows returns the number of windows written.
func (r *Recorder) Windows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) closeLocked() error {
	if r.encoder == nil {
		return nil
	}
	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	r.encoder, r.file = nil, nil

	applog.Infof("Recorder: Closed '%s' (windows: %d, clipped samples: %d)", r.cfg.Path, r.windows, r.clipped)
	return multierr.Combine(encErr, fileErr)
}
