// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"

	"rtfft/internal/acquire"
	"rtfft/internal/config"
	"rtfft/internal/sample"
	"rtfft/internal/transport/udp"
	"rtfft/pkg/signal"
)

// testConfig generates a 125 Hz tone at 1 kHz: bin 8 of a 64 point window,
// filled after four 1ms cycles.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.FFT.NFFT = 64
	cfg.Source.SamplesPerCycle = 16
	cfg.Source.CyclePeriod = time.Millisecond
	cfg.Source.Generator.SampleRate = 1000
	cfg.Source.Generator.Partials = []config.PartialConfig{{Frequency: 125, Amplitude: 1000}}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestGeneratorPipeline(t *testing.T) {
	e, err := New(testConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer e.Close()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	var amp []float64
	waitFor(t, "amplitude", func() bool {
		var ok bool
		amp, _, ok = e.Registry().CopyLatest("fftamplitude", amp[:0])
		return ok
	})

	if len(amp) != 64 {
		t.Fatalf("amplitude length %d, want 64", len(amp))
	}
	if peak := signal.FindPeakBin(amp, 1, 32); peak != 8 {
		t.Errorf("peak bin = %d, want 8", peak)
	}
	if math.Abs(amp[8]-500) > 5 {
		t.Errorf("scaled amplitude at bin 8 = %v, want about 500", amp[8])
	}
	if e.SampleRate() != 1000 {
		t.Errorf("SampleRate = %v", e.SampleRate())
	}
	if s, ok := e.CycleStats(); !ok || s.Cycles == 0 {
		t.Errorf("CycleStats = %+v, %v", s, ok)
	}

	if err := e.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if e.Controller().Status() != acquire.NoStatus {
		t.Errorf("status after Close = %v", e.Controller().Status())
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
}

func TestTransports(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer listener.Close()

	cfg := testConfig()
	cfg.Transport.Log = true
	cfg.Transport.WebSocketEnabled = true
	cfg.Transport.WebSocketAddress = "127.0.0.1:0"
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = listener.LocalAddr().String()
	cfg.Transport.UDPSendInterval = 5 * time.Millisecond
	cfg.Recording.Enabled = true
	cfg.Recording.Path = filepath.Join(t.TempDir(), "windows.wav")

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer e.Close()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// UDP: half spectrum of the 64 point window.
	buf := make([]byte, 65536)
	_ = listener.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := listener.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	pkt, err := udp.ParsePacket(buf[:n])
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if len(pkt.Values) != 33 {
		t.Errorf("packet carries %d bins, want 33", len(pkt.Values))
	}

	// WebSocket: a client write reaches the controller.
	addr := e.WebSocketAddr()
	if addr == "" {
		t.Fatal("websocket transport not listening")
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	cmd, _ := json.Marshal(map[string]any{"param": "enable", "value": 0})
	if err := conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	waitFor(t, "disable", func() bool { return !e.Controller().Enabled() })

	// Recording: at least one window lands in a valid file.
	waitFor(t, "recorded window", func() bool { return e.recorder.Windows() > 0 })
	if err := e.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	f, err := os.Open(cfg.Recording.Path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() || dec.SampleRate != 1000 || dec.BitDepth != 32 {
		t.Errorf("recording header: valid %v, rate %d, depth %d", dec.IsValidFile(), dec.SampleRate, dec.BitDepth)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *config.Config)
	}{
		{"BadMode", func(c *config.Config) { c.FFT.Mode = "never" }},
		{"MissingWAV", func(c *config.Config) {
			c.Source.Kind = config.SourceWAV
			c.Source.WAV.Path = filepath.Join(t.TempDir(), "missing.wav")
		}},
		{"BadUDPTarget", func(c *config.Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "not an address"
		}},
		{"RecordingDir", func(c *config.Config) {
			c.Recording.Enabled = true
			c.Recording.Path = t.TempDir()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			e, err := New(cfg)
			if err == nil {
				e.Close()
				t.Fatal("New succeeded")
			}
			if e != nil {
				t.Error("New returned an engine with an error")
			}
		})
	}
}

func TestUDPSourcePipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Source.Kind = config.SourceUDP
	cfg.Source.Encoding = "f64"
	cfg.Source.UDP.Listen = "127.0.0.1:0"
	cfg.FFT.NFFT = 4
	cfg.FFT.ApplyScale = false

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer e.Close()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	u := e.sourceStop.(interface{ Addr() net.Addr })
	conn, err := net.Dial("udp", u.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	raw := make([]byte, 32)
	for i, v := range []float64{1, 0, -1, 0} {
		sample.Put(raw, sample.F64, i, v)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var amp []float64
	waitFor(t, "amplitude", func() bool {
		var ok bool
		amp, _, ok = e.Registry().CopyLatest("fftamplitude", amp[:0])
		return ok
	})
	want := []float64{0, 2, 0, 2}
	for k := range want {
		if math.Abs(amp[k]-want[k]) > 1e-9 {
			t.Errorf("amplitude = %v, want %v", amp, want)
			break
		}
	}
}
