// SPDX-License-Identifier: MIT
package params

import (
	"errors"
	"math"
	"testing"
	"time"

	"rtfft/internal/acquire"
	"rtfft/internal/sample"
)

const sourceName = "ec0.s1.AI_1"

type pushSource struct {
	h acquire.Handler
}

func (s *pushSource) Name() string              { return sourceName }
func (s *pushSource) Encoding() sample.Encoding { return sample.F64 }
func (s *pushSource) Subscribe(h acquire.Handler) (func(), error) {
	s.h = h
	return func() { s.h = nil }, nil
}

func (s *pushSource) push(values ...float64) {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		sample.Put(raw, sample.F64, i, v)
	}
	s.h(raw, sample.F64)
}

// collector copies every snapshot it sees onto a channel.
type collector struct {
	ch chan Snapshot
}

func (c *collector) Publish(s *Snapshot) {
	cp := *s
	cp.Values = append([]float64(nil), s.Values...)
	c.ch <- cp
}

func (c *collector) waitFor(t *testing.T, name string) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-c.ch:
			if s.Name == name {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

// waitAll collects snapshots until one of each name has arrived. The
// controller publishes a window as several snapshots in a fixed order, so
// waiting for them one at a time would discard the earlier ones.
func (c *collector) waitAll(t *testing.T, names ...string) map[string]Snapshot {
	t.Helper()
	got := make(map[string]Snapshot, len(names))
	timeout := time.After(2 * time.Second)
	for {
		missing := ""
		for _, n := range names {
			if _, ok := got[n]; !ok {
				missing = n
				break
			}
		}
		if missing == "" {
			return got
		}
		select {
		case s := <-c.ch:
			if _, seen := got[s.Name]; !seen {
				got[s.Name] = s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", missing)
		}
	}
}

func setup(t *testing.T, nfft int, mode acquire.Mode) (*Registry, *acquire.Controller, *pushSource) {
	t.Helper()
	reg := NewRegistry("fft0")
	ctrl, err := acquire.New(acquire.Config{NFFT: nfft, Enable: true, Mode: mode, SourceName: sourceName}, reg)
	if err != nil {
		t.Fatalf("acquire.New error: %v", err)
	}
	reg.Bind(ctrl)

	src := &pushSource{}
	if err := ctrl.Connect(src); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(func() {
		ctrl.Close()
		reg.Stop()
	})
	return reg, ctrl, src
}

func TestRefreshBeforeBind(t *testing.T) {
	reg := NewRegistry("fft0")
	reg.Refresh(acquire.Amplitude, true)
	reg.Refresh(acquire.BufferID(99), true)
	if len(reg.updates) != 0 {
		t.Errorf("unbound registry queued %d updates", len(reg.updates))
	}
}

func TestPublishesComputedWindow(t *testing.T) {
	reg, _, src := setup(t, 4, acquire.Continuous)
	col := &collector{ch: make(chan Snapshot, 64)}
	reg.Subscribe(col)
	reg.Start()

	src.push(1, 0, -1, 0)

	got := col.waitAll(t, "plugin.fft0.fftspectrum", "plugin.fft0.fftamplitude")
	amp := got["plugin.fft0.fftamplitude"]
	want := []float64{0, 2, 0, 2}
	for k, v := range amp.Values {
		if math.Abs(v-want[k]) > 1e-9 {
			t.Errorf("amplitude[%d] = %v, want %v", k, v, want[k])
		}
	}
	if amp.Kind != KindFloatArray || amp.Seq != 1 {
		t.Errorf("snapshot kind %v seq %d", amp.Kind, amp.Seq)
	}

	cx := got["plugin.fft0.fftspectrum"]
	if len(cx.Values) != 8 {
		t.Fatalf("spectrum length %d, want 8 interleaved values", len(cx.Values))
	}
	// X1 = 2 + 0i.
	if math.Abs(cx.Values[2]-2) > 1e-9 || math.Abs(cx.Values[3]) > 1e-9 {
		t.Errorf("X1 = (%v, %v), want (2, 0)", cx.Values[2], cx.Values[3])
	}

	// Readers polling the registry see the same content once dispatched.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, seq, ok := reg.CopyLatest("fftamplitude", nil)
		if ok {
			if seq != 1 || len(got) != 4 || math.Abs(got[1]-2) > 1e-9 {
				t.Errorf("CopyLatest = %v seq %d", got, seq)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("CopyLatest never returned the amplitude")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRawWindowSnapshotTakenBeforeRearm(t *testing.T) {
	reg, _, src := setup(t, 2, acquire.Continuous)
	col := &collector{ch: make(chan Snapshot, 64)}
	reg.Subscribe(col)
	reg.Start()

	src.push(5, 6, 7)

	raw := col.waitFor(t, "plugin.fft0.rawdata")
	if raw.Values[0] != 5 || raw.Values[1] != 6 {
		t.Errorf("raw snapshot = %v, want [5 6]", raw.Values)
	}
}

func TestInitialCommandValuesPublished(t *testing.T) {
	reg, _, _ := setup(t, 8, acquire.Triggered)
	reg.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		enable, okEnable := reg.LatestInt("enable")
		mode, okMode := reg.LatestInt("mode")
		if okEnable && okMode {
			if enable != 1 || mode != int64(acquire.Triggered) {
				t.Errorf("enable = %d, mode = %d, want 1 and %d", enable, mode, acquire.Triggered)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("initial values not published: enable ok %v, mode ok %v", okEnable, okMode)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScalarRefreshDeduplicated(t *testing.T) {
	reg, ctrl, _ := setup(t, 8, acquire.Continuous)
	for len(reg.updates) > 0 {
		release(<-reg.updates)
	}

	reg.Refresh(acquire.RunStatus, false)
	reg.Refresh(acquire.RunStatus, false)
	if got := len(reg.updates); got != 0 {
		t.Errorf("unchanged status queued %d updates, want 0", got)
	}

	reg.Refresh(acquire.RunStatus, true)
	if got := len(reg.updates); got != 1 {
		t.Fatalf("forced status queued %d updates, want 1", got)
	}
	s := <-reg.updates
	if s.Int != int64(ctrl.Status()) {
		t.Errorf("status snapshot = %d, want %d", s.Int, ctrl.Status())
	}
	release(s)
}

func TestPoolExhaustionDrops(t *testing.T) {
	reg, _, _ := setup(t, 8, acquire.Continuous)

	for range poolSize + 2 {
		reg.Refresh(acquire.Amplitude, true)
	}
	if reg.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", reg.Dropped())
	}
	for _, p := range reg.Params() {
		if p.Name == "plugin.fft0.fftamplitude" && p.Dropped != 2 {
			t.Errorf("amplitude Dropped = %d, want 2", p.Dropped)
		}
	}
}

func TestWrite(t *testing.T) {
	reg, ctrl, src := setup(t, 2, acquire.Continuous)

	if err := reg.Write("plugin.fft0.enable", 0); err != nil {
		t.Fatalf("Write enable error: %v", err)
	}
	if ctrl.Enabled() {
		t.Error("enable write did not disable the controller")
	}
	if err := reg.Write("enable", 1); err != nil {
		t.Fatalf("Write enable error: %v", err)
	}
	if !ctrl.Enabled() {
		t.Error("short-name enable write had no effect")
	}

	if err := reg.Write("mode", 2); err != nil {
		t.Fatalf("Write mode error: %v", err)
	}
	if ctrl.Mode() != acquire.Triggered {
		t.Errorf("Mode = %v, want triggered", ctrl.Mode())
	}
	if err := reg.Write("mode", 9); err == nil {
		t.Error("invalid mode accepted")
	}
	if err := reg.Write("mode", 1.9); err == nil {
		t.Error("fractional mode accepted")
	}
	if ctrl.Mode() != acquire.Triggered {
		t.Errorf("rejected write changed mode to %v", ctrl.Mode())
	}

	if err := reg.Write("trigger", 1); err != nil {
		t.Fatalf("Write trigger error: %v", err)
	}
	src.push(1, 2)
	if ctrl.Stats().Windows != 1 {
		t.Errorf("trigger write did not arm an acquisition, windows = %d", ctrl.Stats().Windows)
	}

	if err := reg.Write("nfft", 8); !errors.Is(err, ErrReadOnly) {
		t.Errorf("nfft write error = %v, want ErrReadOnly", err)
	}
	if err := reg.Write("plugin.fft0.bogus", 1); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("unknown write error = %v, want ErrUnknownParam", err)
	}
}

func TestParams(t *testing.T) {
	reg, _, _ := setup(t, 16, acquire.Continuous)

	want := []string{
		"plugin.fft0.enable",
		"plugin.fft0.fftamplitude",
		"plugin.fft0.fftspectrum",
		"plugin.fft0.mode",
		"plugin.fft0.nfft",
		"plugin.fft0.rawdata",
		"plugin.fft0.status",
		"plugin.fft0.trigger",
	}
	got := reg.Params()
	if len(got) != len(want) {
		t.Fatalf("Params() returned %d entries, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.Name != want[i] {
			t.Errorf("param %d = %s, want %s", i, p.Name, want[i])
		}
	}
	if got[2].Size != 32 || got[2].Kind != KindComplexArray {
		t.Errorf("spectrum param = %+v", got[2])
	}
	if reg.Name("status") != "plugin.fft0.status" {
		t.Errorf("Name(status) = %s", reg.Name("status"))
	}
}

func TestRefreshHotPath(t *testing.T) {
	reg, _, _ := setup(t, 1024, acquire.Continuous)

	allocs := testing.AllocsPerRun(100, func() {
		reg.Refresh(acquire.Amplitude, true)
		reg.Refresh(acquire.Spectrum, true)
		reg.Refresh(acquire.RunStatus, true)
		for len(reg.updates) > 0 {
			release(<-reg.updates)
		}
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in Refresh, got %.1f", allocs)
	}
}
