// SPDX-License-Identifier: MIT
// Package tui provides the terminal front ends: a live spectrum monitor bound
// to the parameter registry and a PortAudio device browser.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"

	"rtfft/internal/acquire"
	"rtfft/pkg/bitint"
	"rtfft/pkg/signal"
)

const (
	fps          = 30
	chartHeight  = 10
	defaultWidth = 64
)

var levels = []rune(" ▁▂▃▄▅▆▇█")

// Params is the registry surface the monitor polls and writes.
type Params interface {
	CopyLatest(name string, dst []float64) ([]float64, uint64, bool)
	LatestInt(name string) (int64, bool)
	Write(name string, value float64) error
}

// MonitorOptions describe the acquired channel.
type MonitorOptions struct {
	Title      string
	SampleRate float64 // samples per second, 0 if unknown
	NFFT       int
	Stats      func() acquire.Stats // optional controller counters
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// MonitorModel is the Bubble Tea model of the spectrum monitor.
type MonitorModel struct {
	params Params
	opts   MonitorOptions
	keys   monitorKeys
	help   help.Model
	width  int

	amp    []float64
	seq    uint64
	peak   int
	status acquire.Status
	enable bool
	mode   acquire.Mode

	// The peak marker glides to the peak bin.
	spring    harmonica.Spring
	marker    float64
	markerVel float64

	err      error
	quitting bool
}

// NewMonitor creates the monitor model.
func NewMonitor(p Params, opts MonitorOptions) MonitorModel {
	return MonitorModel{
		params: p,
		opts:   opts,
		keys:   monitorKeyMap,
		help:   help.New(),
		width:  defaultWidth,
		amp:    make([]float64, 0, opts.NFFT),
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.7),
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tickCmd()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Enable):
			v := 1.0
			if m.enable {
				v = 0
			}
			m.err = m.params.Write("enable", v)
		case key.Matches(msg, m.keys.Mode):
			next := acquire.Triggered
			if m.mode == acquire.Triggered {
				next = acquire.Continuous
			}
			m.err = m.params.Write("mode", float64(next))
		case key.Matches(msg, m.keys.Trigger):
			m.err = m.params.Write("trigger", 1)
		}
		return m, nil

	case tickMsg:
		m.poll()
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = max(msg.Width-2, 8)
		m.help.Width = msg.Width
		return m, nil
	}
	return m, nil
}

// poll reads the latest published values and advances the marker one frame.
func (m *MonitorModel) poll() {
	if amp, seq, ok := m.params.CopyLatest("fftamplitude", m.amp[:0]); ok {
		m.amp = amp
		if seq != m.seq {
			m.seq = seq
			m.peak = signal.FindPeakBin(m.amp, 1, m.bins()-1)
		}
	}
	if v, ok := m.params.LatestInt("status"); ok {
		m.status = acquire.Status(v)
	}
	if v, ok := m.params.LatestInt("enable"); ok {
		m.enable = v != 0
	}
	if v, ok := m.params.LatestInt("mode"); ok {
		m.mode = acquire.Mode(v)
	}
	m.marker, m.markerVel = m.spring.Update(m.marker, m.markerVel, float64(m.peak))
}

// bins is the number of displayed bins, 0..N/2.
func (m MonitorModel) bins() int {
	if len(m.amp) == 0 {
		return 0
	}
	return len(m.amp)/2 + 1
}

func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.opts.Title))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render(m.statusLine()))
	sb.WriteString("\n")
	if m.opts.Stats != nil {
		st := m.opts.Stats()
		sb.WriteString(infoStyle.Render(fmt.Sprintf("windows: %d  overruns: %d  decode gaps: %d  ignored: %d",
			st.Windows, st.Overruns, st.DecodeGaps, st.Ignored)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if m.seq == 0 {
		sb.WriteString(infoStyle.Render("Waiting for the first window..."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(m.chart())
		sb.WriteString(m.markerLine())
		sb.WriteString("\n")
		sb.WriteString(highlightStyle.Render(m.peakLine()))
		sb.WriteString("\n")
	}

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m MonitorModel) statusLine() string {
	enable := "off"
	if m.enable {
		enable = "on"
	}
	nfft := fmt.Sprintf("%d", m.opts.NFFT)
	if bitint.IsPowerOfTwo(m.opts.NFFT) {
		nfft += fmt.Sprintf(" (2^%d)", bitint.Log2(m.opts.NFFT))
	}
	return fmt.Sprintf("status: %-5s enable: %-3s mode: %-10s nfft: %s  window: #%d",
		m.status, enable, m.mode, nfft, m.seq)
}

// columnLevels reduces bins 0..N/2 to one value per column (max of the
// column's bins), normalised to 0..1.
func (m MonitorModel) columnLevels() []float64 {
	bins := m.bins()
	cols := min(m.width, bins)
	out := make([]float64, cols)
	var top float64
	for c := range cols {
		lo, hi := c*bins/cols, (c+1)*bins/cols
		for _, v := range m.amp[lo:max(hi, lo+1)] {
			out[c] = max(out[c], v)
		}
		top = max(top, out[c])
	}
	if top > 0 {
		for c := range out {
			out[c] /= top
		}
	}
	return out
}

func (m MonitorModel) chart() string {
	cols := m.columnLevels()
	steps := len(levels) - 1

	var sb strings.Builder
	for row := chartHeight - 1; row >= 0; row-- {
		line := make([]rune, len(cols))
		for c, v := range cols {
			fill := v*chartHeight - float64(row)
			idx := int(math.Round(math.Max(0, math.Min(1, fill)) * float64(steps)))
			line[c] = levels[idx]
		}
		sb.WriteString(barStyle.Render(string(line)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m MonitorModel) markerLine() string {
	bins := m.bins()
	cols := min(m.width, bins)
	if cols == 0 {
		return ""
	}
	col := int(math.Round(m.marker * float64(cols) / float64(bins)))
	col = max(0, min(cols-1, col))
	return strings.Repeat(" ", col) + markerStyle.Render("▲")
}

func (m MonitorModel) peakLine() string {
	var amp float64
	if m.peak < len(m.amp) {
		amp = m.amp[m.peak]
	}
	line := fmt.Sprintf("peak: bin %d  amplitude %.4g", m.peak, amp)
	if m.opts.SampleRate > 0 && len(m.amp) > 0 {
		line += fmt.Sprintf("  (%.2f Hz, resolution %.3f Hz)",
			float64(m.peak)*m.opts.SampleRate/float64(len(m.amp)), m.opts.SampleRate/float64(len(m.amp)))
	}
	return line
}

// RunMonitor runs the monitor until the user quits or ctx is done.
func RunMonitor(ctx context.Context, p Params, opts MonitorOptions) error {
	_, err := tea.NewProgram(NewMonitor(p, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
