// SPDX-License-Identifier: MIT
/*
Package portaudio turns a sound card input into a data source. The PortAudio
driver callback is the real-time context: each buffer is packed into a
pre-allocated s32 span and dispatched straight to the subscribed controller.

Initialize must be called before any other function and paired with
Terminate.
*/
package portaudio

import (
	"fmt"
	"runtime"
	"time"

	"github.com/gordonklaus/portaudio"

	applog "rtfft/internal/log"
	"rtfft/internal/sample"
	"rtfft/internal/source"
)

// DefaultDevice selects the host's default input device.
const DefaultDevice = -1

// Device describes one host audio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
}

var paDevicesFunc = portaudio.Devices

// Initialize sets up the PortAudio subsystem.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts the PortAudio subsystem down.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns all devices known to PortAudio.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowInputLatency:   info.DefaultLowInputLatency,
			HighInputLatency:  info.DefaultHighInputLatency,
		}
	}
	return devices, nil
}

func inputDevice(id int) (*portaudio.DeviceInfo, error) {
	if id == DefaultDevice {
		return portaudio.DefaultInputDevice()
	}
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(infos) {
		return nil, fmt.Errorf("invalid device ID: %d", id)
	}
	if infos[id].MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", id, infos[id].Name)
	}
	return infos[id], nil
}

// ListDevices prints the input-capable devices.
func ListDevices() error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Printf("\nAvailable Input Devices\n\n")
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		fmt.Printf("[%d] %s\n", d.ID, d.Name)
		fmt.Printf("    Input channels: %d, Default sample rate: %.0f Hz\n", d.MaxInputChannels, d.DefaultSampleRate)
		fmt.Printf("    Latency: Low=%.2fms, High=%.2fms\n\n",
			d.LowInputLatency.Seconds()*1000, d.HighInputLatency.Seconds()*1000)
	}
	return nil
}

// Config selects the capture device and stream shape.
type Config struct {
	Name            string
	DeviceID        int
	Channels        int
	Channel         int // channel delivered to the subscriber
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// Input is a running capture stream.
type Input struct {
	*source.Dispatcher
	cfg    Config
	device *portaudio.DeviceInfo
	stream *portaudio.Stream
	raw    []byte
}

// NewInput resolves the device. The stream is opened by Start.
func NewInput(cfg Config) (*Input, error) {
	if cfg.Channels <= 0 || cfg.Channel < 0 || cfg.Channel >= cfg.Channels {
		return nil, fmt.Errorf("portaudio: channel %d invalid for %d channels", cfg.Channel, cfg.Channels)
	}
	if cfg.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("portaudio: frames per buffer must be positive, got %d", cfg.FramesPerBuffer)
	}
	device, err := inputDevice(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = device.DefaultSampleRate
	}

	return &Input{
		Dispatcher: source.NewDispatcher(cfg.Name, sample.S32),
		cfg:        cfg,
		device:     device,
		raw:        make([]byte, cfg.FramesPerBuffer*sample.S32.Width()),
	}, nil
}

// Start opens and starts the input stream.
func (in *Input) Start() error {
	latency := in.device.DefaultHighInputLatency
	if in.cfg.LowLatency {
		latency = in.device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in.device,
			Channels: in.cfg.Channels,
			Latency:  latency,
		},
		FramesPerBuffer: in.cfg.FramesPerBuffer,
		SampleRate:      in.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, in.process)
	if err != nil {
		return fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	in.stream = stream

	applog.Infof("PortAudio: Capturing '%s' (%d ch, channel %d, %.0f Hz, %d frames, latency %s)",
		in.device.Name, in.cfg.Channels, in.cfg.Channel, in.cfg.SampleRate, in.cfg.FramesPerBuffer, latency)
	return nil
}

// process is the driver callback. Only pre-allocated buffers are used.
func (in *Input) process(buf []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	in.Dispatch(in.pack(buf))
}

// pack extracts the configured channel of an interleaved buffer as s32.
func (in *Input) pack(buf []int32) []byte {
	frames := min(len(buf)/in.cfg.Channels, in.cfg.FramesPerBuffer)
	for i := range frames {
		sample.Put(in.raw, sample.S32, i, float64(buf[i*in.cfg.Channels+in.cfg.Channel]))
	}
	return in.raw[:frames*4]
}

// SampleRate returns the stream rate, resolved to the device default when
// none was configured.
func (in *Input) SampleRate() float64 {
	return in.cfg.SampleRate
}

// Close stops and closes the stream.
func (in *Input) Close() error {
	if in.stream == nil {
		return nil
	}
	if err := in.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop stream: %w", err)
	}
	if err := in.stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close stream: %w", err)
	}
	in.stream = nil
	applog.Infof("PortAudio: Stopped capture on '%s'", in.device.Name)
	return nil
}
