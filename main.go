// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"rtfft/cmd"
	"rtfft/internal/config"
	"rtfft/internal/engine"
	applog "rtfft/internal/log"
	pasource "rtfft/internal/source/portaudio"
	"rtfft/internal/tui"
	"rtfft/pkg/build"
)

// main runs in three phases:
//
// 1. Startup (cold path): build info, arguments, configuration, and every
// allocation of the pipeline.
//
// 2. Running (hot path): the source delivers spans to the controller every
// cycle; transports and the optional monitor consume published parameters.
//
// 3. Shutdown (cold path): on SIGINT/SIGTERM or when the monitor quits, the
// pipeline is closed in reverse order.
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Main: %v", err)
	}

	// One thread for the cycle, one for publishing and I/O.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("Main: %v", err)
	}

	switch opts.Command {
	case cmd.CommandVersion:
		fmt.Println(build.Get())
		return
	case cmd.CommandList:
		if err := listDevices(opts.Interactive); err != nil {
			applog.Fatalf("Main: %v", err)
		}
		return
	}

	cfg, err := opts.Config()
	if err != nil {
		applog.Fatalf("Main: %v", err)
	}
	applog.SetLevel(cfg.Level())
	defer applog.Sync()

	if err := run(cfg); err != nil {
		applog.Fatalf("Main: %v", err)
	}
}

func listDevices(interactive bool) error {
	if err := pasource.Initialize(); err != nil {
		return err
	}
	defer pasource.Terminate()

	if interactive {
		return tui.RunDeviceList()
	}
	return pasource.ListDevices()
}

func run(cfg *config.Config) error {
	if cfg.Source.Kind == config.SourcePortAudio {
		if err := pasource.Initialize(); err != nil {
			return err
		}
		defer pasource.Terminate()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			applog.Errorf("Main: Error closing engine: %v", err)
		}
	}()

	// ==================== RUNNING PHASE (Hot Path) ====================

	if err := e.Start(ctx); err != nil {
		return err
	}

	if cfg.TUI {
		// The monitor owns the terminal; keep log output out of it.
		applog.SetOutput(io.Discard)
		defer applog.SetOutput(os.Stderr)

		opts := tui.MonitorOptions{
			Title:      fmt.Sprintf("%s  %s <- %s", build.Get().Name, e.Registry().Name("*"), cfg.Source.Name),
			SampleRate: e.SampleRate(),
			NFFT:       cfg.FFT.NFFT,
			Stats:      e.Controller().Stats,
		}
		return tui.RunMonitor(ctx, e.Registry(), opts)
	}

	applog.Infof("Main: Running, press Ctrl+C to stop")
	<-ctx.Done()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	applog.Infof("Main: Shutting down")
	return nil
}
