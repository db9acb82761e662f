// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"rtfft/internal/config"
	"rtfft/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun     = ""
	CommandList    = "list"
	CommandVersion = "version"
)

// Options is the parsed command line.
type Options struct {
	Command     string
	Interactive bool // list: browse devices in the TUI

	ConfigPath string
	Options    string // startup option string, "SOURCE=...;NFFT=..."

	Source   string
	NFFT     int
	Mode     string
	LogLevel string
	Debug    bool
	TUI      bool
	Record   string
	WSAddr   string
	UDPAddr  string

	flags *pflag.FlagSet
}

// ParseArgs parses os.Args.
func ParseArgs() (*Options, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*Options, error) {
	info := build.Get()
	options := &Options{}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         "Real-time FFT analysis of a cyclic data channel",
		Version:       info.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Browse devices and generate a source configuration")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandVersion
		},
	})

	// Configuration
	flags := rootCmd.Flags()
	flags.StringVarP(&options.ConfigPath, "config", "c", "",
		"YAML configuration file (default: rtfft.yaml when present)")
	flags.StringVarP(&options.Options, "options", "O", "",
		"Option string, e.g. \"SOURCE=ec0.s1.AI_1;NFFT=1024;MODE=TRIG;ENABLE=1\"")

	// Acquisition
	flags.StringVarP(&options.Source, "source", "s", "",
		"Source kind: generator, wav, udp or portaudio")
	flags.IntVarP(&options.NFFT, "nfft", "n", 0, "Window length")
	flags.StringVarP(&options.Mode, "mode", "m", "", "Acquisition mode: continuous or triggered")

	// Outputs
	flags.StringVar(&options.WSAddr, "ws", "", "Serve parameters over WebSocket on this address")
	flags.StringVar(&options.UDPAddr, "udp", "", "Send the amplitude spectrum to this UDP address")
	flags.StringVarP(&options.Record, "record", "r", "", "Record raw windows to this WAV file")
	flags.BoolVarP(&options.TUI, "tui", "t", false, "Show the spectrum monitor")

	// Debug
	flags.StringVar(&options.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVarP(&options.Debug, "verbose", "v", false, "Show verbose output")

	options.flags = flags

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// Config loads the configuration file, then applies the option string and
// the flags given on the command line, in that order, and validates the
// result.
func (o *Options) Config() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyOptions(o.Options); err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		return o.flags != nil && o.flags.Changed(name)
	}
	if changed("source") {
		cfg.Source.Kind = o.Source
	}
	if changed("nfft") {
		cfg.FFT.NFFT = o.NFFT
	}
	if changed("mode") {
		cfg.FFT.Mode = o.Mode
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = o.WSAddr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = o.UDPAddr
	}
	if changed("record") {
		cfg.Recording.Enabled = true
		cfg.Recording.Path = o.Record
	}
	if changed("tui") {
		cfg.TUI = o.TUI
	}
	if changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if changed("verbose") {
		cfg.Debug = o.Debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
